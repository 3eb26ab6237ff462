package bodystore

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bboehmke/httpcachecore/internal/sqlitedb"
)

func TestPutThenOpenRoundTrip(t *testing.T) {
	store := New(t.TempDir())
	ctx := context.Background()

	n, err := store.Put(ctx, "fp1", strings.NewReader("hello world"))
	require.NoError(t, err)
	assert.EqualValues(t, 11, n)

	r, err := store.Open("fp1")
	require.NoError(t, err)
	defer r.Close()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestPutOverwritesExistingBody(t *testing.T) {
	store := New(t.TempDir())
	ctx := context.Background()

	_, err := store.Put(ctx, "fp1", strings.NewReader("first"))
	require.NoError(t, err)
	_, err = store.Put(ctx, "fp1", strings.NewReader("second-version"))
	require.NoError(t, err)

	r, err := store.Open("fp1")
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "second-version", string(data))
}

func TestOpenMissingBodyIsIllegalState(t *testing.T) {
	store := New(t.TempDir())
	_, err := store.Open("missing")
	require.Error(t, err)
	assert.True(t, sqlitedb.IsKind(err, sqlitedb.KindIllegalState))
}

func TestRemoveIsIdempotent(t *testing.T) {
	store := New(t.TempDir())
	ctx := context.Background()

	_, err := store.Put(ctx, "fp1", strings.NewReader("x"))
	require.NoError(t, err)

	require.NoError(t, store.Remove("fp1"))
	assert.False(t, store.Exists("fp1"))
	require.NoError(t, store.Remove("fp1")) // second remove: no error
}

func TestSizeReflectsWrittenBytes(t *testing.T) {
	store := New(t.TempDir())
	ctx := context.Background()

	_, err := store.Put(ctx, "fp1", strings.NewReader("0123456789"))
	require.NoError(t, err)

	size, err := store.Size("fp1")
	require.NoError(t, err)
	assert.EqualValues(t, 10, size)
}

func TestPutFailureLeavesNoTempFileBehind(t *testing.T) {
	store := New(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Put(ctx, "fp1", strings.NewReader("data"))
	require.Error(t, err)
	assert.False(t, store.Exists("fp1"))

	entries, err := os.ReadDir(store.TempDirectory())
	require.NoError(t, err)
	assert.Empty(t, entries)
}
