package sqlitedb

import (
	"regexp"
	"strings"
)

// ConflictAlgorithm mirrors SQLite's ON CONFLICT resolution keywords
// (spec.md §4.C).
type ConflictAlgorithm int

const (
	ConflictNone ConflictAlgorithm = iota
	ConflictRollback
	ConflictAbort
	ConflictFail
	ConflictIgnore
	ConflictReplace
)

var conflictKeywords = [...]string{
	ConflictNone:     "",
	ConflictRollback: "OR ROLLBACK ",
	ConflictAbort:    "OR ABORT ",
	ConflictFail:     "OR FAIL ",
	ConflictIgnore:   "OR IGNORE ",
	ConflictReplace:  "OR REPLACE ",
}

var limitPattern = regexp.MustCompile(`^\s*\d+\s*(,\s*\d+\s*)?$`)

// QuerySpec describes a SELECT to build.
type QuerySpec struct {
	Table    string
	Columns  []string // empty/nil means "*"
	Where    string
	WhereArgs []any
	GroupBy  string
	Having   string
	OrderBy  string
	Limit    string
	Distinct bool
}

// BuildQuery renders spec into a parameterized SELECT string and
// returns it alongside the (already-ordered) where args to bind.
// HAVING without GROUP BY and a malformed LIMIT both raise
// KindIllegalArgument (spec.md §8 properties 8-9).
func BuildQuery(spec QuerySpec) (string, []any, error) {
	if spec.GroupBy == "" && spec.Having != "" {
		return "", nil, IllegalArgument("HAVING clauses are only permitted when using a GROUP BY clause")
	}
	if spec.Limit != "" && !limitPattern.MatchString(spec.Limit) {
		return "", nil, IllegalArgument("invalid LIMIT clause: " + spec.Limit)
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	if spec.Distinct {
		b.WriteString("DISTINCT ")
	}
	if len(spec.Columns) == 0 {
		b.WriteString("* ")
	} else {
		b.WriteString(strings.Join(spec.Columns, ", "))
		b.WriteString(" ")
	}
	b.WriteString("FROM ")
	b.WriteString(spec.Table)

	if spec.Where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(spec.Where)
	}
	if spec.GroupBy != "" {
		b.WriteString(" GROUP BY ")
		b.WriteString(spec.GroupBy)
	}
	if spec.Having != "" {
		b.WriteString(" HAVING ")
		b.WriteString(spec.Having)
	}
	if spec.OrderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(spec.OrderBy)
	}
	if spec.Limit != "" {
		b.WriteString(" LIMIT ")
		b.WriteString(spec.Limit)
	}

	return b.String(), spec.WhereArgs, nil
}

// BuildInsert renders an INSERT [OR <conflict>] INTO ... statement
// with every value column bound as a parameter.
func BuildInsert(table string, values Values, conflict ConflictAlgorithm) (string, []any) {
	keys := values.Keys()

	var b strings.Builder
	b.WriteString("INSERT ")
	b.WriteString(conflictKeywords[conflict])
	b.WriteString("INTO ")
	b.WriteString(table)

	if len(keys) == 0 {
		b.WriteString(" () VALUES (NULL)")
		return b.String(), nil
	}

	args := make([]any, 0, len(keys))
	placeholders := make([]string, len(keys))
	for i, k := range keys {
		args = append(args, values[k])
		placeholders[i] = "?"
	}

	b.WriteString(" (")
	b.WriteString(strings.Join(keys, ", "))
	b.WriteString(") VALUES (")
	b.WriteString(strings.Join(placeholders, ", "))
	b.WriteString(")")

	return b.String(), args
}

// BuildUpdate renders an UPDATE [OR <conflict>] ... SET ... [WHERE
// ...] statement. whereArgs are appended after the SET-clause args,
// matching database/sql's positional "?" ordering.
func BuildUpdate(table string, values Values, where string, whereArgs []any, conflict ConflictAlgorithm) (string, []any, error) {
	keys := values.Keys()
	if len(keys) == 0 {
		return "", nil, IllegalArgument("Values has no value")
	}

	var b strings.Builder
	b.WriteString("UPDATE ")
	b.WriteString(conflictKeywords[conflict])
	b.WriteString(table)
	b.WriteString(" SET ")

	args := make([]any, 0, len(keys)+len(whereArgs))
	sets := make([]string, len(keys))
	for i, k := range keys {
		sets[i] = k + "=?"
		args = append(args, values[k])
	}
	b.WriteString(strings.Join(sets, ", "))

	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
		args = append(args, whereArgs...)
	}

	return b.String(), args, nil
}

// BuildDelete renders a DELETE FROM ... [WHERE ...] statement.
func BuildDelete(table, where string) string {
	var b strings.Builder
	b.WriteString("DELETE FROM ")
	b.WriteString(table)
	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}
	return b.String()
}
