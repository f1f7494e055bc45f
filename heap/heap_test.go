package heap

import (
	"path/filepath"
	"testing"

	"coredb/storage/buffer"
	"coredb/storage/disk"
	"coredb/types"
)

func newTestHeap(t *testing.T) (*Heap, *buffer.Pool) {
	t.Helper()
	diskMgr := disk.NewManager()
	fileID, err := diskMgr.OpenFile(filepath.Join(t.TempDir(), "t.heap"))
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	pool := buffer.NewPool(8, diskMgr)
	schema := &types.TableSchema{
		TableName: "widgets",
		Columns: []types.ColumnDef{
			{Name: "id", Type: "INT", IsPrimaryKey: true},
			{Name: "name", Type: "VARCHAR"},
		},
	}
	h, err := Create(pool, diskMgr, fileID, schema)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return h, pool
}

func row(id int64, name string) types.Row {
	r := types.NewRow()
	r.Set("id", id)
	r.Set("name", name)
	return r
}

func TestHeap_InsertAndGet(t *testing.T) {
	h, _ := newTestHeap(t)

	rid, err := h.InsertTuple(row(1, "widget"))
	if err != nil {
		t.Fatalf("InsertTuple: %v", err)
	}

	got, ok, err := h.GetTuple(rid)
	if err != nil || !ok {
		t.Fatalf("GetTuple: ok=%v err=%v", ok, err)
	}
	if got.Get("name") != "widget" {
		t.Fatalf("got name %v, want widget", got.Get("name"))
	}
}

func TestHeap_MarkDeleteHidesTuple(t *testing.T) {
	h, _ := newTestHeap(t)

	rid, err := h.InsertTuple(row(1, "gone"))
	if err != nil {
		t.Fatalf("InsertTuple: %v", err)
	}

	ok, err := h.MarkDelete(rid)
	if err != nil || !ok {
		t.Fatalf("MarkDelete: ok=%v err=%v", ok, err)
	}

	_, found, err := h.GetTuple(rid)
	if err != nil {
		t.Fatalf("GetTuple: %v", err)
	}
	if found {
		t.Fatalf("tombstoned tuple should not be found")
	}

	if ok, _ := h.MarkDelete(rid); ok {
		t.Fatalf("double delete should fail")
	}
}

func TestHeap_UpdateInPlaceKeepsRID(t *testing.T) {
	h, _ := newTestHeap(t)

	rid, err := h.InsertTuple(row(1, "short"))
	if err != nil {
		t.Fatalf("InsertTuple: %v", err)
	}

	newRID, inPlace, err := h.UpdateTuple(rid, row(1, "short"))
	if err != nil {
		t.Fatalf("UpdateTuple: %v", err)
	}
	if !inPlace || newRID != rid {
		t.Fatalf("equal-length update should stay in place, got inPlace=%v newRID=%v", inPlace, newRID)
	}
}

func TestHeap_UpdateGrowMovesTuple(t *testing.T) {
	h, _ := newTestHeap(t)

	rid, err := h.InsertTuple(row(1, "a"))
	if err != nil {
		t.Fatalf("InsertTuple: %v", err)
	}

	newRID, inPlace, err := h.UpdateTuple(rid, row(1, "a much longer replacement value"))
	if err != nil {
		t.Fatalf("UpdateTuple: %v", err)
	}
	if inPlace {
		t.Fatalf("growing update should not stay in place")
	}

	if _, found, _ := h.GetTuple(rid); found {
		t.Fatalf("old RID should no longer resolve after a moving update")
	}
	got, found, err := h.GetTuple(newRID)
	if err != nil || !found {
		t.Fatalf("new RID should resolve: found=%v err=%v", found, err)
	}
	if got.Get("name") != "a much longer replacement value" {
		t.Fatalf("unexpected value at new RID: %v", got.Get("name"))
	}
}

func TestHeap_ScanWalksAllPagesAndTuples(t *testing.T) {
	h, _ := newTestHeap(t)

	const n = 400 // forces at least one overflow page at a 4KB page size
	for i := int64(0); i < n; i++ {
		if _, err := h.InsertTuple(row(i, "x")); err != nil {
			t.Fatalf("InsertTuple(%d): %v", i, err)
		}
	}

	count := 0
	rid, ok, err := h.GetFirstTupleRID()
	if err != nil {
		t.Fatalf("GetFirstTupleRID: %v", err)
	}
	for ok {
		count++
		rid, ok, err = h.GetNextTupleRID(rid)
		if err != nil {
			t.Fatalf("GetNextTupleRID: %v", err)
		}
	}
	if count != n {
		t.Fatalf("scanned %d tuples, want %d", count, n)
	}
}
