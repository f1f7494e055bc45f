package exec

import (
	"coredb/types"
)

// HashJoin builds an in-memory hash table over the left child keyed by
// joinKey, then probes it once per right-child row. Grounded on
// BusTub's hash_join_executor.cpp (SimpleJoinHashTable
// +Insert/Get), with Go's native map standing in for its unordered_map.
type HashJoin struct {
	left, right Iterator
	leftKey     func(types.Row) (interface{}, error)
	rightKey    func(types.Row) (interface{}, error)
	table       map[interface{}][]types.RowWithRID

	matches  []types.RowWithRID
	idx      int
	curRight types.RowWithRID
	done     bool
}

func NewHashJoin(left, right Iterator, leftKey, rightKey func(types.Row) (interface{}, error)) *HashJoin {
	return &HashJoin{left: left, right: right, leftKey: leftKey, rightKey: rightKey}
}

func (j *HashJoin) Init() error {
	if err := j.left.Init(); err != nil {
		return err
	}
	if err := j.right.Init(); err != nil {
		return err
	}
	j.table = make(map[interface{}][]types.RowWithRID)
	j.matches = nil
	j.idx = 0
	j.done = false

	for {
		out, ok, err := j.left.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		key, err := j.leftKey(out.Row)
		if err != nil {
			return err
		}
		j.table[key] = append(j.table[key], out)
	}
	return nil
}

func (j *HashJoin) Next() (types.RowWithRID, bool, error) {
	if j.done {
		return types.RowWithRID{}, false, nil
	}

	for {
		if j.idx < len(j.matches) {
			left := j.matches[j.idx]
			right := j.curRight
			j.idx++
			return types.RowWithRID{RID: left.RID, Row: mergeRows(left.Row, right.Row)}, true, nil
		}

		rightOut, ok, err := j.right.Next()
		if err != nil {
			return types.RowWithRID{}, false, err
		}
		if !ok {
			j.done = true
			return types.RowWithRID{}, false, nil
		}

		key, err := j.rightKey(rightOut.Row)
		if err != nil {
			return types.RowWithRID{}, false, err
		}
		j.matches = j.table[key]
		j.idx = 0
		j.curRight = rightOut
	}
}
