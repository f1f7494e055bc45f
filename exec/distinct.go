package exec

import (
	"fmt"
	"sort"

	"coredb/types"
)

// Distinct suppresses rows whose column values it has already seen,
// grounded on BusTub's distinct_executor.h
// (SimpleDistinctSet), with a Go map of string keys standing in for its
// unordered_set<DistinctKey>.
type Distinct struct {
	child Iterator
	seen  map[string]bool
}

func NewDistinct(child Iterator) *Distinct {
	return &Distinct{child: child}
}

func (d *Distinct) Init() error {
	d.seen = make(map[string]bool)
	return d.child.Init()
}

func (d *Distinct) Next() (types.RowWithRID, bool, error) {
	for {
		out, ok, err := d.child.Next()
		if err != nil {
			return types.RowWithRID{}, false, err
		}
		if !ok {
			return types.RowWithRID{}, false, nil
		}
		key := rowKey(out.Row)
		if d.seen[key] {
			continue
		}
		d.seen[key] = true
		return out, true, nil
	}
}

// rowKey builds a stable identity string for row: Go randomizes map
// iteration order, so the column names are sorted first to keep two rows
// with identical values producing identical keys.
func rowKey(row types.Row) string {
	names := make([]string, 0, len(row.Values))
	for name := range row.Values {
		names = append(names, name)
	}
	sort.Strings(names)

	key := ""
	for _, name := range names {
		key += name + "=" + fmt.Sprintf("%v", row.Values[name]) + "|"
	}
	return key
}
