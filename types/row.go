package types

import (
	"fmt"
	"strings"
)

// RID identifies a record uniquely while it exists: the page that holds it
// and its slot within that page's slot directory.
type RID struct {
	PageID uint32
	Slot   uint16
}

func (r RID) String() string {
	return fmt.Sprintf("(%d,%d)", r.PageID, r.Slot)
}

// Row is the in-memory representation of a tuple, keyed by column name.
// Encoding onto the wire/disk format is an external collaborator's concern;
// the core only needs a representation to move tuples through iterators.
type Row struct {
	Values map[string]interface{}
}

func NewRow() Row {
	return Row{Values: make(map[string]interface{})}
}

// RowWithRID pairs a row with the RID it was fetched from, the shape the
// executors pull out of a scan.
type RowWithRID struct {
	RID RID
	Row Row
}

func (r *Row) Set(column string, value interface{}) {
	r.Values[strings.ToLower(column)] = value
}

func (r *Row) Get(column string) interface{} {
	return r.Values[strings.ToLower(column)]
}

func (r *Row) ToMap() map[string]interface{} {
	return r.Values
}

func (r *RowWithRID) ToMap() map[string]interface{} {
	return r.Row.Values
}

func (r *Row) Clone() Row {
	newMap := make(map[string]interface{})
	for k, v := range r.Values {
		newMap[k] = v
	}
	return Row{Values: newMap}
}
