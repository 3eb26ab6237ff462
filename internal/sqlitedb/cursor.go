package sqlitedb

// Cursor is a forward/backward iterator with absolute positioning over
// a buffered result set (spec.md §4.C). Positions range over
// [0, RowCount()-1]; position -1 is "pre-first" (the state before the
// first MoveNext/MoveFirst), and RowCount() is "past-last".
//
// Unlike database/sql's Rows (forward-only, non-seekable), Cursor
// materializes its rows up front — see DESIGN.md for why that's safe
// here.
type Cursor struct {
	columns []string
	rows    [][]any
	pos     int
	closed  bool
}

func newCursor(columns []string, rows [][]any) *Cursor {
	return &Cursor{columns: columns, rows: rows, pos: -1}
}

// Close marks the cursor as closed; further access raises
// KindIllegalState.
func (c *Cursor) Close() error {
	c.closed = true
	return nil
}

func (c *Cursor) checkOpen() error {
	if c.closed {
		return IllegalState("cursor is closed")
	}
	return nil
}

// RowCount returns the number of rows in the result set.
func (c *Cursor) RowCount() int { return len(c.rows) }

// ColumnCount returns the number of columns in the result set.
func (c *Cursor) ColumnCount() int { return len(c.columns) }

// ColumnNames returns the column names in projection order.
func (c *Cursor) ColumnNames() []string {
	out := make([]string, len(c.columns))
	copy(out, c.columns)
	return out
}

// ColumnIndex returns the index of name, or -1 (with KindIllegalArgument)
// if no such column exists.
func (c *Cursor) ColumnIndex(name string) (int, error) {
	for i, n := range c.columns {
		if n == name {
			return i, nil
		}
	}
	return -1, IllegalArgument("unknown column: " + name)
}

// Position returns the current row position.
func (c *Cursor) Position() int { return c.pos }

// IsFirst reports whether the cursor is positioned on the first row.
func (c *Cursor) IsFirst() bool { return c.pos == 0 && len(c.rows) > 0 }

// IsLast reports whether the cursor is positioned on the last row.
func (c *Cursor) IsLast() bool { return len(c.rows) > 0 && c.pos == len(c.rows)-1 }

// MoveFirst positions the cursor on the first row, if any.
func (c *Cursor) MoveFirst() bool { return c.MoveTo(0) }

// MoveLast positions the cursor on the last row, if any.
func (c *Cursor) MoveLast() bool { return c.MoveTo(len(c.rows) - 1) }

// MoveNext advances the cursor by one row.
func (c *Cursor) MoveNext() bool { return c.MoveTo(c.pos + 1) }

// MovePrevious moves the cursor back by one row.
func (c *Cursor) MovePrevious() bool { return c.MoveTo(c.pos - 1) }

// MoveBy moves the cursor by a relative offset.
func (c *Cursor) MoveBy(offset int) bool { return c.MoveTo(c.pos + offset) }

// MoveTo positions the cursor at an absolute position. Returns false
// (without raising an error) if the position lands outside
// [0, RowCount()-1]; the cursor is left clamped to the nearest valid
// pre-first/past-last boundary, matching moveToFirst/moveToNext
// semantics in the original SqliteCursor.
func (c *Cursor) MoveTo(position int) bool {
	if position < -1 {
		position = -1
	}
	if position > len(c.rows) {
		position = len(c.rows)
	}
	c.pos = position
	return c.pos >= 0 && c.pos < len(c.rows)
}

func (c *Cursor) cell(column int) (any, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if c.pos < 0 || c.pos >= len(c.rows) {
		return nil, IllegalState("cursor is not positioned on a row")
	}
	if column < 0 || column >= len(c.columns) {
		return nil, IllegalArgument("column index out of range")
	}
	return c.rows[c.pos][column], nil
}

// IsNull reports whether the given column is NULL on the current row.
func (c *Cursor) IsNull(column int) (bool, error) {
	v, err := c.cell(column)
	if err != nil {
		return false, err
	}
	return v == nil, nil
}

// GetString returns the column's value converted to string. Integers
// and floats always convert; see GetStringWithDefault for a
// non-erroring variant.
func (c *Cursor) GetString(column int) (string, error) {
	v, err := c.cell(column)
	if err != nil {
		return "", err
	}
	return toString(v), nil
}

// GetStringWithDefault returns GetString's value, or def if the access
// fails.
func (c *Cursor) GetStringWithDefault(column int, def string) string {
	v, err := c.GetString(column)
	if err != nil {
		return def
	}
	return v
}

// GetInt returns the column's value converted to int.
func (c *Cursor) GetInt(column int) (int, error) {
	v, err := c.cell(column)
	if err != nil {
		return 0, err
	}
	i, ok := toInt64(v)
	if !ok {
		return 0, IllegalState("value is not convertible to int")
	}
	return int(i), nil
}

// GetIntWithDefault returns GetInt's value, or def if the access fails.
func (c *Cursor) GetIntWithDefault(column int, def int) int {
	v, err := c.GetInt(column)
	if err != nil {
		return def
	}
	return v
}

// GetLong returns the column's value converted to int32.
func (c *Cursor) GetLong(column int) (int32, error) {
	i, err := c.GetLongLong(column)
	return int32(i), err
}

// GetLongLong returns the column's value converted to int64.
func (c *Cursor) GetLongLong(column int) (int64, error) {
	v, err := c.cell(column)
	if err != nil {
		return 0, err
	}
	i, ok := toInt64(v)
	if !ok {
		return 0, IllegalState("value is not convertible to long long")
	}
	return i, nil
}

// GetUnsignedLongLong returns the column's value converted to uint64.
func (c *Cursor) GetUnsignedLongLong(column int) (uint64, error) {
	i, err := c.GetLongLong(column)
	if err != nil {
		return 0, err
	}
	if i < 0 {
		return 0, IllegalState("value is negative")
	}
	return uint64(i), nil
}

// GetUnsignedLongLongWithDefault returns GetUnsignedLongLong's value,
// or def if the access fails.
func (c *Cursor) GetUnsignedLongLongWithDefault(column int, def uint64) uint64 {
	v, err := c.GetUnsignedLongLong(column)
	if err != nil {
		return def
	}
	return v
}

// GetDouble returns the column's value converted to float64.
func (c *Cursor) GetDouble(column int) (float64, error) {
	v, err := c.cell(column)
	if err != nil {
		return 0, err
	}
	f, ok := toFloat64(v)
	if !ok {
		return 0, IllegalState("value is not convertible to double")
	}
	return f, nil
}

// GetFloat returns the column's value converted to float32.
func (c *Cursor) GetFloat(column int) (float32, error) {
	f, err := c.GetDouble(column)
	return float32(f), err
}
