package exec

import (
	"fmt"

	"coredb/catalog"
	"coredb/txn"
	"coredb/types"
)

// SeqScan walks a table's heap chain tuple by tuple, taking a shared lock
// on each RID before returning it, grounded on
// BusTub's seq_scan_executor.cpp.
type SeqScan struct {
	ctx       *Context
	tableName string
	table     *catalog.TableInfo
	predicate func(types.Row) (bool, error)

	cur   types.RID
	valid bool
}

// NewSeqScan scans tableName, filtering with predicate (nil for no
// filter).
func NewSeqScan(ctx *Context, tableName string, predicate func(types.Row) (bool, error)) *SeqScan {
	return &SeqScan{ctx: ctx, tableName: tableName, predicate: predicate}
}

func (s *SeqScan) Init() error {
	ti, ok := s.ctx.Catalog.GetTable(s.tableName)
	if !ok {
		return fmt.Errorf("exec: table %q not found", s.tableName)
	}
	s.table = ti

	rid, ok, err := ti.Heap.GetFirstTupleRID()
	if err != nil {
		return err
	}
	s.cur, s.valid = rid, ok
	return nil
}

func (s *SeqScan) Next() (types.RowWithRID, bool, error) {
	for s.valid {
		rid := s.cur

		next, nextOK, err := s.table.Heap.GetNextTupleRID(rid)
		if err != nil {
			return types.RowWithRID{}, false, err
		}
		s.cur, s.valid = next, nextOK

		locked, err := s.lockIfNeeded(rid)
		if err != nil {
			return types.RowWithRID{}, false, err
		}
		if !locked {
			return types.RowWithRID{}, false, fmt.Errorf("exec: transaction aborted acquiring shared lock on %v", rid)
		}

		row, found, err := s.table.Heap.GetTuple(rid)
		if err != nil {
			return types.RowWithRID{}, false, err
		}
		if !found {
			continue // tombstoned since the scan started
		}

		if s.predicate != nil {
			ok, err := s.predicate(row)
			if err != nil {
				return types.RowWithRID{}, false, err
			}
			if !ok {
				continue
			}
		}

		return types.RowWithRID{RID: rid, Row: row}, true, nil
	}
	return types.RowWithRID{}, false, nil
}

// lockIfNeeded acquires a shared lock on rid unless the isolation level
// reads without locking (READ_UNCOMMITTED) or the transaction already
// holds a lock there.
func (s *SeqScan) lockIfNeeded(rid types.RID) (bool, error) {
	if s.ctx.Txn.Isolation == txn.ReadUncommitted {
		return true, nil
	}
	if s.ctx.Txn.HoldsShared(rid) || s.ctx.Txn.HoldsExclusive(rid) {
		return true, nil
	}
	return s.ctx.Locks.LockShared(s.ctx.Txn, rid), nil
}
