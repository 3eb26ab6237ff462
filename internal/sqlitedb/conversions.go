package sqlitedb

import "strconv"

// ColumnType is a coarse classification of a cell's underlying Go
// value, mirroring the original Cursor::getType() discriminator.
type ColumnType int

const (
	TypeNull ColumnType = iota
	TypeInteger
	TypeFloat
	TypeString
	TypeBlob
)

// Type reports the coarse type of the given column on the current row.
func (c *Cursor) Type(column int) (ColumnType, error) {
	v, err := c.cell(column)
	if err != nil {
		return TypeNull, err
	}
	switch v.(type) {
	case nil:
		return TypeNull, nil
	case int64, int32, int, bool:
		return TypeInteger, nil
	case float64, float32:
		return TypeFloat, nil
	case []byte:
		return TypeBlob, nil
	default:
		return TypeString, nil
	}
}

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		if t {
			return "1"
		}
		return "0"
	default:
		return ""
	}
}

func toInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int32:
		return int64(t), true
	case int:
		return int64(t), true
	case float64:
		return int64(t), true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case string:
		i, err := strconv.ParseInt(t, 10, 64)
		return i, err == nil
	case []byte:
		i, err := strconv.ParseInt(string(t), 10, 64)
		return i, err == nil
	case nil:
		return 0, true
	default:
		return 0, false
	}
}

func toFloat64(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	case []byte:
		f, err := strconv.ParseFloat(string(t), 64)
		return f, err == nil
	case nil:
		return 0, true
	default:
		return 0, false
	}
}
