package exec

import (
	"fmt"

	"coredb/types"
)

// AggregateFunc names a supported aggregate, mirrored on
// BusTub's aggregation_executor.cpp (AggregationType
// COUNT/SUM/MIN/MAX, implemented here with a running accumulator per
// group instead of its AggregateValueExpression tree).
type AggregateFunc int

const (
	Count AggregateFunc = iota
	Sum
	Min
	Max
)

// AggregateExpr is one output column of the aggregation: Func applied to
// Column, or a bare group-by column when Func is the zero value and
// GroupBy is true.
type AggregateExpr struct {
	Func    AggregateFunc
	Column  string
	GroupBy bool
	As      string
}

// Aggregate groups its child's rows by groupBy, computes each expr, and
// filters groups with having. Grounded on
// BusTub's aggregation_executor.cpp: Init() drains the
// child entirely before Next() ever yields — an aggregate cannot produce
// its first row until every input row has been seen.
type Aggregate struct {
	child   Iterator
	groupBy []string
	exprs   []AggregateExpr
	having  func(map[string]interface{}) (bool, error)

	groups []map[string]interface{}
	idx    int
	done   bool
}

func NewAggregate(child Iterator, groupBy []string, exprs []AggregateExpr, having func(map[string]interface{}) (bool, error)) *Aggregate {
	return &Aggregate{child: child, groupBy: groupBy, exprs: exprs, having: having}
}

func (a *Aggregate) Init() error {
	if err := a.child.Init(); err != nil {
		return err
	}

	// Accumulators are keyed by the expression's index in a.exprs, so two
	// aggregates over the same column (e.g. COUNT and SUM of amount) do not
	// share state.
	type bucket struct {
		key    []interface{}
		values map[int]float64
		counts map[int]int
		mins   map[int]interface{}
		maxs   map[int]interface{}
	}
	buckets := make(map[string]*bucket)
	var order []string

	keyOf := func(row types.Row) ([]interface{}, string) {
		key := make([]interface{}, len(a.groupBy))
		repr := ""
		for i, col := range a.groupBy {
			key[i] = row.Get(col)
			repr += fmt.Sprintf("%v|", key[i])
		}
		return key, repr
	}

	for {
		out, ok, err := a.child.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		key, repr := keyOf(out.Row)
		b, exists := buckets[repr]
		if !exists {
			b = &bucket{
				key:    key,
				values: make(map[int]float64),
				counts: make(map[int]int),
				mins:   make(map[int]interface{}),
				maxs:   make(map[int]interface{}),
			}
			buckets[repr] = b
			order = append(order, repr)
		}
		for i, e := range a.exprs {
			if e.GroupBy {
				continue
			}
			val := out.Row.Get(e.Column)
			switch e.Func {
			case Count:
				b.counts[i]++
			case Sum:
				if f, err := toFloat(val); err == nil {
					b.values[i] += f
				}
			case Min:
				if cur, ok := b.mins[i]; !ok || types.CompareValues(val, cur) < 0 {
					b.mins[i] = val
				}
			case Max:
				if cur, ok := b.maxs[i]; !ok || types.CompareValues(val, cur) > 0 {
					b.maxs[i] = val
				}
			}
		}
	}

	for _, repr := range order {
		b := buckets[repr]
		result := make(map[string]interface{})
		for i, col := range a.groupBy {
			result[col] = b.key[i]
		}
		for i, e := range a.exprs {
			if e.GroupBy {
				continue
			}
			out := e.As
			if out == "" {
				out = e.Column
			}
			switch e.Func {
			case Count:
				result[out] = b.counts[i]
			case Sum:
				result[out] = b.values[i]
			case Min:
				result[out] = b.mins[i]
			case Max:
				result[out] = b.maxs[i]
			}
		}
		if a.having != nil {
			ok, err := a.having(result)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
		}
		a.groups = append(a.groups, result)
	}

	a.idx = 0
	a.done = false
	return nil
}

func (a *Aggregate) Next() (types.RowWithRID, bool, error) {
	if a.done || a.idx >= len(a.groups) {
		a.done = true
		return types.RowWithRID{}, false, nil
	}
	row := types.NewRow()
	for k, v := range a.groups[a.idx] {
		row.Set(k, v)
	}
	a.idx++
	return types.RowWithRID{Row: row}, true, nil
}

func toFloat(val interface{}) (float64, error) {
	switch v := val.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	}
	return 0, fmt.Errorf("exec: cannot aggregate non-numeric value %v (%T)", val, val)
}
