package exec

import (
	"testing"

	"coredb/catalog"
	"coredb/storage/buffer"
	"coredb/storage/disk"
	"coredb/txn"
	"coredb/types"
)

func newTestContext(t *testing.T) (*Context, *catalog.Catalog) {
	t.Helper()
	diskMgr := disk.NewManager()
	pool := buffer.NewPool(32, diskMgr)
	cat := catalog.New(t.TempDir(), pool, diskMgr)

	mgr := txn.NewManager()
	lm := txn.NewLockManager(mgr)
	tx := mgr.Begin(txn.RepeatableRead)

	return &Context{Catalog: cat, Locks: lm, Txn: tx}, cat
}

func widgetSchema() types.TableSchema {
	return types.TableSchema{
		TableName: "widgets",
		Columns: []types.ColumnDef{
			{Name: "id", Type: "INT", IsPrimaryKey: true},
			{Name: "name", Type: "VARCHAR"},
		},
	}
}

func widgetRow(id int64, name string) types.Row {
	r := types.NewRow()
	r.Set("id", id)
	r.Set("name", name)
	return r
}

func drain(t *testing.T, it Iterator) []types.RowWithRID {
	t.Helper()
	if err := it.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	var out []types.RowWithRID
	for {
		row, ok, err := it.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			return out
		}
		out = append(out, row)
	}
}

func TestExec_InsertScanThenDeleteRemovesFromIndex(t *testing.T) {
	ctx, cat := newTestContext(t)
	if _, err := cat.CreateTable(widgetSchema()); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	ins := NewRawInsert(ctx, "widgets", []types.Row{
		widgetRow(1, "a"), widgetRow(2, "b"), widgetRow(3, "c"),
	})
	inserted := drain(t, ins)
	if len(inserted) != 3 {
		t.Fatalf("inserted %d rows, want 3", len(inserted))
	}

	scanned := drain(t, NewSeqScan(ctx, "widgets", nil))
	if len(scanned) != 3 {
		t.Fatalf("scanned %d rows, want 3", len(scanned))
	}

	del := NewDelete(ctx, "widgets", NewSeqScan(ctx, "widgets", func(r types.Row) (bool, error) {
		return r.Get("id") == int64(2), nil
	}))
	deleted := drain(t, del)
	if len(deleted) != 1 {
		t.Fatalf("deleted %d rows, want 1", len(deleted))
	}

	remaining := drain(t, NewSeqScan(ctx, "widgets", nil))
	if len(remaining) != 2 {
		t.Fatalf("remaining %d rows, want 2", len(remaining))
	}

	ti, _ := cat.GetTable("widgets")
	values, err := ti.Index.Get(2)
	if err != nil {
		t.Fatalf("Index.Get: %v", err)
	}
	if len(values) != 0 {
		t.Fatalf("deleted key should have no index entries, got %v", values)
	}
}

func TestExec_UpdateChangesValue(t *testing.T) {
	ctx, cat := newTestContext(t)
	if _, err := cat.CreateTable(widgetSchema()); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	drain(t, NewRawInsert(ctx, "widgets", []types.Row{widgetRow(1, "old")}))

	upd := NewUpdate(ctx, "widgets", NewSeqScan(ctx, "widgets", nil), func(r types.Row) types.Row {
		r.Set("name", "new")
		return r
	})
	updated := drain(t, upd)
	if len(updated) != 1 || updated[0].Row.Get("name") != "new" {
		t.Fatalf("unexpected update result: %+v", updated)
	}

	got := drain(t, NewSeqScan(ctx, "widgets", nil))
	if len(got) != 1 || got[0].Row.Get("name") != "new" {
		t.Fatalf("scan after update: %+v", got)
	}
}

func TestExec_NestedLoopJoin(t *testing.T) {
	ctx, cat := newTestContext(t)
	if _, err := cat.CreateTable(widgetSchema()); err != nil {
		t.Fatalf("CreateTable widgets: %v", err)
	}
	orderSchema := types.TableSchema{
		TableName: "orders",
		Columns: []types.ColumnDef{
			{Name: "order_id", Type: "INT", IsPrimaryKey: true},
			{Name: "widget_id", Type: "INT"},
		},
	}
	if _, err := cat.CreateTable(orderSchema); err != nil {
		t.Fatalf("CreateTable orders: %v", err)
	}

	drain(t, NewRawInsert(ctx, "widgets", []types.Row{widgetRow(1, "a"), widgetRow(2, "b")}))

	order := func(orderID, widgetID int64) types.Row {
		r := types.NewRow()
		r.Set("order_id", orderID)
		r.Set("widget_id", widgetID)
		return r
	}
	drain(t, NewRawInsert(ctx, "orders", []types.Row{order(100, 1), order(101, 2), order(102, 1)}))

	join := NewNestedLoopJoin(
		NewSeqScan(ctx, "widgets", nil),
		NewSeqScan(ctx, "orders", nil),
		func(left, right types.Row) (bool, error) {
			return left.Get("id") == right.Get("widget_id"), nil
		},
	)
	joined := drain(t, join)
	if len(joined) != 3 {
		t.Fatalf("joined %d rows, want 3", len(joined))
	}
}

func TestExec_HashJoinMatchesNestedLoop(t *testing.T) {
	ctx, cat := newTestContext(t)
	cat.CreateTable(widgetSchema())
	orderSchema := types.TableSchema{
		TableName: "orders",
		Columns: []types.ColumnDef{
			{Name: "order_id", Type: "INT", IsPrimaryKey: true},
			{Name: "widget_id", Type: "INT"},
		},
	}
	cat.CreateTable(orderSchema)

	drain(t, NewRawInsert(ctx, "widgets", []types.Row{widgetRow(1, "a"), widgetRow(2, "b")}))
	order := func(orderID, widgetID int64) types.Row {
		r := types.NewRow()
		r.Set("order_id", orderID)
		r.Set("widget_id", widgetID)
		return r
	}
	drain(t, NewRawInsert(ctx, "orders", []types.Row{order(100, 1), order(101, 2)}))

	hj := NewHashJoin(
		NewSeqScan(ctx, "widgets", nil),
		NewSeqScan(ctx, "orders", nil),
		func(r types.Row) (interface{}, error) { return r.Get("id"), nil },
		func(r types.Row) (interface{}, error) { return r.Get("widget_id"), nil },
	)
	joined := drain(t, hj)
	if len(joined) != 2 {
		t.Fatalf("joined %d rows, want 2", len(joined))
	}
}

func TestExec_AggregateCountAndSum(t *testing.T) {
	ctx, cat := newTestContext(t)
	saleSchema := types.TableSchema{
		TableName: "sales",
		Columns: []types.ColumnDef{
			{Name: "region", Type: "VARCHAR"},
			{Name: "amount", Type: "FLOAT"},
		},
	}
	cat.CreateTable(saleSchema)

	sale := func(region string, amount float64) types.Row {
		r := types.NewRow()
		r.Set("region", region)
		r.Set("amount", amount)
		return r
	}
	drain(t, NewRawInsert(ctx, "sales", []types.Row{
		sale("east", 10), sale("east", 20), sale("west", 5),
	}))

	agg := NewAggregate(
		NewSeqScan(ctx, "sales", nil),
		[]string{"region"},
		[]AggregateExpr{
			{GroupBy: true, Column: "region"},
			{Func: Count, Column: "amount", As: "cnt"},
			{Func: Sum, Column: "amount", As: "total"},
		},
		nil,
	)
	rows := drain(t, agg)
	if len(rows) != 2 {
		t.Fatalf("got %d groups, want 2", len(rows))
	}

	totals := map[string]float64{}
	for _, r := range rows {
		totals[r.Row.Get("region").(string)] = r.Row.Get("total").(float64)
	}
	if totals["east"] != 30 {
		t.Fatalf("east total = %v, want 30", totals["east"])
	}
	if totals["west"] != 5 {
		t.Fatalf("west total = %v, want 5", totals["west"])
	}
}

func TestExec_DistinctDropsDuplicates(t *testing.T) {
	ctx, cat := newTestContext(t)
	cat.CreateTable(widgetSchema())

	drain(t, NewRawInsert(ctx, "widgets", []types.Row{
		widgetRow(1, "dup"), widgetRow(2, "dup"), widgetRow(3, "unique"),
	}))

	dedup := NewDistinct(NewSeqScan(ctx, "widgets", func(r types.Row) (bool, error) {
		return true, nil
	}))
	rows := drain(t, dedup)
	names := map[string]bool{}
	for _, r := range rows {
		names[r.Row.Get("name").(string)] = true
	}
	if len(rows) != 3 {
		// Distinct operates on whole rows; every row differs by id, so all
		// three survive — this asserts that behavior rather than
		// deduping on name alone.
		t.Fatalf("got %d rows, want 3 (rows differ by id)", len(rows))
	}
}
