package exec

import "coredb/types"

// NestedLoopJoin cross-joins left and right, filtering with predicate and
// re-initializing the right child for every left row. Grounded on
// BusTub's nested_loop_join_executor.cpp.
type NestedLoopJoin struct {
	left, right Iterator
	predicate   func(left, right types.Row) (bool, error)

	leftRow types.RowWithRID
	leftOK  bool
	done    bool
	started bool
}

func NewNestedLoopJoin(left, right Iterator, predicate func(left, right types.Row) (bool, error)) *NestedLoopJoin {
	return &NestedLoopJoin{left: left, right: right, predicate: predicate}
}

func (j *NestedLoopJoin) Init() error {
	if err := j.left.Init(); err != nil {
		return err
	}
	j.done = false
	j.started = false
	return nil
}

func (j *NestedLoopJoin) Next() (types.RowWithRID, bool, error) {
	if j.done {
		return types.RowWithRID{}, false, nil
	}

	for {
		if !j.started {
			out, ok, err := j.left.Next()
			if err != nil {
				return types.RowWithRID{}, false, err
			}
			if !ok {
				j.done = true
				return types.RowWithRID{}, false, nil
			}
			j.leftRow, j.leftOK = out, true
			if err := j.right.Init(); err != nil {
				return types.RowWithRID{}, false, err
			}
			j.started = true
		}

		rightOut, ok, err := j.right.Next()
		if err != nil {
			return types.RowWithRID{}, false, err
		}
		if !ok {
			j.started = false
			continue
		}

		matched, err := j.predicate(j.leftRow.Row, rightOut.Row)
		if err != nil {
			return types.RowWithRID{}, false, err
		}
		if !matched {
			continue
		}

		return types.RowWithRID{RID: j.leftRow.RID, Row: mergeRows(j.leftRow.Row, rightOut.Row)}, true, nil
	}
}

func mergeRows(left, right types.Row) types.Row {
	merged := types.NewRow()
	for k, v := range left.Values {
		merged.Values[k] = v
	}
	for k, v := range right.Values {
		merged.Values[k] = v
	}
	return merged
}
