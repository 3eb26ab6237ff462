package schema

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bboehmke/httpcachecore/internal/sqlitedb"
)

func corruptSqliteFile(t *testing.T, path string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte("Hello, world! not a database"), 0)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

type recordingHooks struct {
	DefaultHooks
	created  int
	upgraded int
	opened   int
}

func (h *recordingHooks) OnCreate(ctx context.Context, db *sqlitedb.Database) error {
	h.created++
	return db.Exec(ctx, "CREATE TABLE cache_metadata (id INTEGER PRIMARY KEY, cache_key TEXT)")
}

func (h *recordingHooks) OnUpgrade(ctx context.Context, db *sqlitedb.Database, oldVersion, newVersion uint32) error {
	h.upgraded++
	return nil
}

func (h *recordingHooks) OnOpen(ctx context.Context, db *sqlitedb.Database) error {
	h.opened++
	return nil
}

func TestNewManagerRejectsVersionBelowOne(t *testing.T) {
	_, err := NewManager("path", 0, &recordingHooks{})
	require.Error(t, err)
	assert.True(t, sqlitedb.IsKind(err, sqlitedb.KindIllegalArgument))
}

func TestGetWritableDatabaseRunsOnCreateThenOnOpen(t *testing.T) {
	hooks := &recordingHooks{}
	mgr, err := NewManager(filepath.Join(t.TempDir(), "meta.db"), 1, hooks)
	require.NoError(t, err)
	defer mgr.Close()

	db, err := mgr.GetWritableDatabase(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, hooks.created)
	assert.Equal(t, 1, hooks.opened)

	version, err := db.Version(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, version)
}

func TestGetDatabaseReturnsSameHandleOnceOpen(t *testing.T) {
	hooks := &recordingHooks{}
	mgr, err := NewManager(filepath.Join(t.TempDir(), "meta.db"), 1, hooks)
	require.NoError(t, err)
	defer mgr.Close()

	ctx := context.Background()
	first, err := mgr.GetWritableDatabase(ctx)
	require.NoError(t, err)
	second, err := mgr.GetReadableDatabase(ctx)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, hooks.created)
}

func TestUpgradeHookRunsOnVersionBump(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.db")
	hooksV1 := &recordingHooks{}
	mgrV1, err := NewManager(path, 1, hooksV1)
	require.NoError(t, err)
	_, err = mgrV1.GetWritableDatabase(context.Background())
	require.NoError(t, err)
	require.NoError(t, mgrV1.Close())

	hooksV2 := &recordingHooks{}
	mgrV2, err := NewManager(path, 2, hooksV2)
	require.NoError(t, err)
	defer mgrV2.Close()

	_, err = mgrV2.GetWritableDatabase(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, hooksV2.upgraded)
	assert.Equal(t, 0, hooksV2.created)
}

func TestDowngradeRefusedByDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.db")
	mgrV2, err := NewManager(path, 2, &recordingHooks{})
	require.NoError(t, err)
	_, err = mgrV2.GetWritableDatabase(context.Background())
	require.NoError(t, err)
	require.NoError(t, mgrV2.Close())

	mgrV1, err := NewManager(path, 1, &recordingHooks{})
	require.NoError(t, err)
	defer mgrV1.Close()

	_, err = mgrV1.GetWritableDatabase(context.Background())
	require.Error(t, err)
	assert.True(t, sqlitedb.IsKind(err, sqlitedb.KindIllegalState))
}

func TestCloseIsIdempotentWhenNeverOpened(t *testing.T) {
	mgr, err := NewManager(filepath.Join(t.TempDir(), "meta.db"), 1, &recordingHooks{})
	require.NoError(t, err)
	assert.NoError(t, mgr.Close())
}

func TestCorruptionListenerInvokedOnCorruptOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.db")
	hooks := &recordingHooks{}
	mgr, err := NewManager(path, 1, hooks)
	require.NoError(t, err)
	_, err = mgr.GetWritableDatabase(context.Background())
	require.NoError(t, err)
	require.NoError(t, mgr.Close())

	corruptSqliteFile(t, path)

	var notifiedPath string
	var notifiedErr error
	mgr2, err := NewManager(path, 1, hooks)
	require.NoError(t, err)
	defer mgr2.Close()
	mgr2.SetCorruptionListener(func(databasePath string, detail error) {
		notifiedPath = databasePath
		notifiedErr = detail
	})

	_, err = mgr2.GetWritableDatabase(context.Background())
	require.Error(t, err)
	assert.Equal(t, path, notifiedPath)
	assert.True(t, sqlitedb.IsKind(notifiedErr, sqlitedb.KindDatabaseCorrupt))
}
