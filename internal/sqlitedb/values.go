package sqlitedb

import "sort"

// Values is a string-keyed bag of columns to serialize for an insert,
// replace, or update (spec.md §4.C "value bag"). Supported scalar
// types are the ones database/sql already accepts as driver values:
// integers of various widths, floats, doubles, strings, and nil.
// Unlike the original C++ ContentValues (which rendered every value
// through a single string representation that the query builder then
// interpolated as an escaped SQL literal), values here are carried
// through as typed Go values and bound as query parameters — see
// spec.md §9's "Open Question" on SQL injection, resolved in favor of
// full parameter binding.
type Values map[string]any

// NewValues returns an empty Values bag.
func NewValues() Values {
	return make(Values)
}

// Put stores a column value, overwriting any previous value for the
// same column.
func (v Values) Put(column string, value any) Values {
	v[column] = value
	return v
}

// Keys returns the column names currently set, in a stable order
// (lexicographic) so generated SQL is deterministic and testable.
func (v Values) Keys() []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
