// Package transform converts raw dataset rows into typed, denormalized rows.
//
// The pipeline has two stages applied in order: cast (field type conversion,
// one row in, one or more rows out) and map (denormalization, one row in, one
// row per y column out). Both stages share the Func signature so either can be
// replaced by a caller-supplied function.
package transform

import "maps"

// Row is a single record keyed by field name.
type Row map[string]any

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	if r == nil {
		return Row{}
	}
	return maps.Clone(r)
}

// CloneRows returns a copy of rows where every row is itself cloned.
func CloneRows(rows []Row) []Row {
	if rows == nil {
		return nil
	}
	copied := make([]Row, len(rows))
	for i, row := range rows {
		copied[i] = row.Clone()
	}
	return copied
}
