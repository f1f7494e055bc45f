package exec

import (
	"fmt"

	"coredb/catalog"
	"coredb/types"
)

// Update pulls RIDs from a child scan, applies set to each row, and
// writes the result back — in place when the heap allows it, or via
// tombstone-then-reinsert when the tuple grows (mirrored in the index).
// Grounded on BusTub's update_executor.cpp.
type Update struct {
	ctx       *Context
	tableName string
	table     *catalog.TableInfo
	child     Iterator
	set       func(types.Row) types.Row
	done      bool
}

func NewUpdate(ctx *Context, tableName string, child Iterator, set func(types.Row) types.Row) *Update {
	return &Update{ctx: ctx, tableName: tableName, child: child, set: set}
}

func (u *Update) Init() error {
	ti, ok := u.ctx.Catalog.GetTable(u.tableName)
	if !ok {
		return fmt.Errorf("exec: table %q not found", u.tableName)
	}
	u.table = ti
	u.done = false
	return u.child.Init()
}

func (u *Update) Next() (types.RowWithRID, bool, error) {
	if u.done {
		return types.RowWithRID{}, false, nil
	}

	out, ok, err := u.child.Next()
	if err != nil {
		return types.RowWithRID{}, false, err
	}
	if !ok {
		u.done = true
		return types.RowWithRID{}, false, nil
	}

	if !acquireForMutation(u.ctx, out.RID) {
		return types.RowWithRID{}, false, fmt.Errorf("exec: transaction aborted acquiring exclusive lock on %v", out.RID)
	}

	updated := u.set(out.Row)

	newRID, _, err := u.table.Heap.UpdateTuple(out.RID, updated)
	if err != nil {
		return types.RowWithRID{}, false, err
	}

	if pk := u.table.PrimaryKeyColumn(); pk != "" && u.table.Index != nil {
		oldKey, err := catalog.IndexKey(out.Row.Get(pk))
		if err != nil {
			return types.RowWithRID{}, false, err
		}
		newKey, err := catalog.IndexKey(updated.Get(pk))
		if err != nil {
			return types.RowWithRID{}, false, err
		}
		if oldKey != newKey || newRID != out.RID {
			if _, err := u.table.Index.Remove(oldKey, out.RID); err != nil {
				return types.RowWithRID{}, false, err
			}
			if _, err := u.table.Index.Insert(newKey, newRID); err != nil {
				return types.RowWithRID{}, false, err
			}
			u.ctx.Txn.AppendIndexWrite(IndexWriteRecord{
				Type:   WriteUpdate,
				Table:  u.tableName,
				RID:    newRID,
				OldTup: out.Row,
				NewTup: updated,
			})
		}
	}

	return types.RowWithRID{RID: newRID, Row: updated}, true, nil
}
