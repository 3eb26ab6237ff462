package sqlitedb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCursor() *Cursor {
	return newCursor([]string{"key", "size"}, [][]any{
		{"e1", int64(10)},
		{"e2", int64(20)},
		{"e3", int64(30)},
	})
}

func TestCursorPositioning(t *testing.T) {
	c := sampleCursor()
	assert.Equal(t, 3, c.RowCount())
	assert.Equal(t, 2, c.ColumnCount())
	assert.Equal(t, -1, c.Position())

	require.True(t, c.MoveFirst())
	assert.True(t, c.IsFirst())
	key, err := c.GetString(0)
	require.NoError(t, err)
	assert.Equal(t, "e1", key)

	require.True(t, c.MoveNext())
	require.True(t, c.MoveNext())
	assert.True(t, c.IsLast())

	assert.False(t, c.MoveNext())
	assert.Equal(t, 3, c.Position())
}

func TestCursorMoveBackwardAndByOffset(t *testing.T) {
	c := sampleCursor()
	require.True(t, c.MoveLast())
	size, err := c.GetLongLong(1)
	require.NoError(t, err)
	assert.EqualValues(t, 30, size)

	require.True(t, c.MovePrevious())
	size, err = c.GetLongLong(1)
	require.NoError(t, err)
	assert.EqualValues(t, 20, size)

	require.True(t, c.MoveBy(-1))
	size, err = c.GetLongLong(1)
	require.NoError(t, err)
	assert.EqualValues(t, 10, size)
}

func TestCursorColumnIndex(t *testing.T) {
	c := sampleCursor()
	idx, err := c.ColumnIndex("size")
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	_, err = c.ColumnIndex("nope")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindIllegalArgument))
}

func TestCursorAccessAfterCloseFails(t *testing.T) {
	c := sampleCursor()
	require.True(t, c.MoveFirst())
	require.NoError(t, c.Close())

	_, err := c.GetString(0)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindIllegalState))
}

func TestCursorSafeGettersReturnDefaultOnFailure(t *testing.T) {
	c := sampleCursor()
	// not positioned on a row yet
	assert.Equal(t, "fallback", c.GetStringWithDefault(0, "fallback"))
	assert.Equal(t, 42, c.GetIntWithDefault(0, 42))
	assert.EqualValues(t, 99, c.GetUnsignedLongLongWithDefault(1, 99))
}

func TestCursorEmptyResultSet(t *testing.T) {
	c := newCursor([]string{"k"}, nil)
	assert.False(t, c.MoveFirst())
	assert.False(t, c.MoveNext())
	assert.Equal(t, 0, c.RowCount())
}
