package exec

import (
	"fmt"

	"coredb/catalog"
	"coredb/types"
)

// Delete pulls RIDs from a child scan and tombstones each, taking an
// exclusive lock first (upgrading from shared if the scan already holds
// one). Grounded on BusTub's delete_executor.cpp.
type Delete struct {
	ctx       *Context
	tableName string
	table     *catalog.TableInfo
	child     Iterator
	done      bool
}

func NewDelete(ctx *Context, tableName string, child Iterator) *Delete {
	return &Delete{ctx: ctx, tableName: tableName, child: child}
}

func (d *Delete) Init() error {
	ti, ok := d.ctx.Catalog.GetTable(d.tableName)
	if !ok {
		return fmt.Errorf("exec: table %q not found", d.tableName)
	}
	d.table = ti
	d.done = false
	return d.child.Init()
}

func (d *Delete) Next() (types.RowWithRID, bool, error) {
	if d.done {
		return types.RowWithRID{}, false, nil
	}

	out, ok, err := d.child.Next()
	if err != nil {
		return types.RowWithRID{}, false, err
	}
	if !ok {
		d.done = true
		return types.RowWithRID{}, false, nil
	}

	if !acquireForMutation(d.ctx, out.RID) {
		return types.RowWithRID{}, false, fmt.Errorf("exec: transaction aborted acquiring exclusive lock on %v", out.RID)
	}

	if _, err := d.table.Heap.MarkDelete(out.RID); err != nil {
		return types.RowWithRID{}, false, err
	}

	if pk := d.table.PrimaryKeyColumn(); pk != "" && d.table.Index != nil {
		key, err := catalog.IndexKey(out.Row.Get(pk))
		if err != nil {
			return types.RowWithRID{}, false, err
		}
		if _, err := d.table.Index.Remove(key, out.RID); err != nil {
			return types.RowWithRID{}, false, err
		}
		d.ctx.Txn.AppendIndexWrite(IndexWriteRecord{
			Type:   WriteDelete,
			Table:  d.tableName,
			RID:    out.RID,
			OldTup: out.Row,
		})
	}

	return out, true, nil
}
