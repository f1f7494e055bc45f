package exec

import (
	"fmt"

	"coredb/catalog"
	"coredb/types"
)

// Insert pulls rows from a child iterator (or, for a raw VALUES list,
// synthesizes its own) and writes each into the target table's heap,
// maintaining its hash index. Grounded on
// BusTub's insert_executor.cpp.
type Insert struct {
	ctx       *Context
	tableName string
	table     *catalog.TableInfo
	child     Iterator // nil for a raw insert
	raw       []types.Row
	rawIdx    int
	done      bool
}

// NewInsert builds an Insert that re-encodes tuples pulled from child.
func NewInsert(ctx *Context, tableName string, child Iterator) *Insert {
	return &Insert{ctx: ctx, tableName: tableName, child: child}
}

// NewRawInsert builds an Insert for a literal VALUES list, with no child
// iterator to pull from.
func NewRawInsert(ctx *Context, tableName string, rows []types.Row) *Insert {
	return &Insert{ctx: ctx, tableName: tableName, raw: rows}
}

func (ins *Insert) Init() error {
	ti, ok := ins.ctx.Catalog.GetTable(ins.tableName)
	if !ok {
		return fmt.Errorf("exec: table %q not found", ins.tableName)
	}
	ins.table = ti
	ins.rawIdx = 0
	ins.done = false
	if ins.child != nil {
		return ins.child.Init()
	}
	return nil
}

func (ins *Insert) Next() (types.RowWithRID, bool, error) {
	if ins.done {
		return types.RowWithRID{}, false, nil
	}

	var row types.Row
	if ins.child != nil {
		out, ok, err := ins.child.Next()
		if err != nil {
			return types.RowWithRID{}, false, err
		}
		if !ok {
			ins.done = true
			return types.RowWithRID{}, false, nil
		}
		row = out.Row
	} else {
		if ins.rawIdx >= len(ins.raw) {
			ins.done = true
			return types.RowWithRID{}, false, nil
		}
		row = ins.raw[ins.rawIdx]
		ins.rawIdx++
		if ins.rawIdx == len(ins.raw) {
			ins.done = true
		}
	}

	rid, err := ins.table.Heap.InsertTuple(row)
	if err != nil {
		return types.RowWithRID{}, false, err
	}

	// A freshly inserted RID cannot already be in another transaction's
	// lock set, so unlike delete/update there is nothing to acquire here
	// before mutating — grounded on insert_executor.cpp, which likewise
	// does not lock.
	if pk := ins.table.PrimaryKeyColumn(); pk != "" && ins.table.Index != nil {
		key, err := catalog.IndexKey(row.Get(pk))
		if err != nil {
			return types.RowWithRID{}, false, err
		}
		if _, err := ins.table.Index.Insert(key, rid); err != nil {
			return types.RowWithRID{}, false, err
		}
		ins.ctx.Txn.AppendIndexWrite(IndexWriteRecord{
			Type:   WriteInsert,
			Table:  ins.tableName,
			RID:    rid,
			NewTup: row,
		})
	}

	return types.RowWithRID{RID: rid, Row: row}, true, nil
}
