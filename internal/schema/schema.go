// Package schema manages the lifecycle of the metadata database: open
// or create, enforce schema version, and route corruption to a
// listener (spec.md §4.D, §4.H).
package schema

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/AdguardTeam/golibs/log"
	"github.com/sony/gobreaker"

	"github.com/bboehmke/httpcachecore/internal/sqlitedb"
)

// Hooks is the capability interface a caller implements to react to
// the schema manager's lifecycle (spec.md §4.D, §9 "virtual base
// classes with overridable hooks become a capability interface").
type Hooks interface {
	// OnConfigure runs immediately after the session opens, before any
	// version check.
	OnConfigure(ctx context.Context, db *sqlitedb.Database) error
	// OnCreate runs inside a transaction when the stored version is 0.
	OnCreate(ctx context.Context, db *sqlitedb.Database) error
	// OnUpgrade runs inside a transaction when 0 < stored < declared.
	OnUpgrade(ctx context.Context, db *sqlitedb.Database, oldVersion, newVersion uint32) error
	// OnDowngrade runs inside a transaction when stored > declared.
	OnDowngrade(ctx context.Context, db *sqlitedb.Database, oldVersion, newVersion uint32) error
	// OnOpen runs every time the database becomes ready, after any
	// create/upgrade/downgrade step.
	OnOpen(ctx context.Context, db *sqlitedb.Database) error
}

// DefaultHooks gives every hook a no-op implementation so callers only
// override what they need, except OnDowngrade which refuses by
// default (spec.md §4.D: "the downgrade hook logs and refuses by
// default").
type DefaultHooks struct{}

func (DefaultHooks) OnConfigure(context.Context, *sqlitedb.Database) error { return nil }
func (DefaultHooks) OnOpen(context.Context, *sqlitedb.Database) error      { return nil }

// OnUpgrade defaults to a no-op, matching the initial shipped schema's
// upgrade hook (spec.md §4.D "on_upgrade for the initial shipped
// schema is a no-op").
func (DefaultHooks) OnUpgrade(context.Context, *sqlitedb.Database, uint32, uint32) error { return nil }

func (DefaultHooks) OnDowngrade(_ context.Context, _ *sqlitedb.Database, oldVersion, newVersion uint32) error {
	log.Debug("schema: refusing downgrade from version %d to %d", oldVersion, newVersion)
	return sqlitedb.IllegalState(fmt.Sprintf("can't downgrade database from version %d to %d", oldVersion, newVersion))
}

// CorruptionListener is invoked with the database file path and the
// detected corruption error when opening or migrating the database
// fails with a corrupt image (spec.md §4.H). Corruption raised by
// operations on an already-open handle is returned to the caller and
// does not reach the listener.
type CorruptionListener func(databasePath string, detail error)

// Manager opens/creates the metadata DB at a configured path, enforces
// its schema version, and funnels corruption notifications to an
// installed listener. It corresponds to SqliteOpenHelper in the
// original source.
type Manager struct {
	mu                 sync.Mutex
	path               string
	version            uint32
	hooks              Hooks
	db                 *sqlitedb.Database
	initializing       bool
	corruptionListener CorruptionListener
	breaker            *gobreaker.CircuitBreaker
}

// NewManager constructs a Manager for the database at path declaring
// schema version version. version must be >= 1 (spec.md §4.D).
func NewManager(path string, version uint32, hooks Hooks) (*Manager, error) {
	if version < 1 {
		return nil, sqlitedb.IllegalArgument(fmt.Sprintf("version must be >= 1, was %d", version))
	}
	if hooks == nil {
		return nil, sqlitedb.IllegalArgument("hooks must not be nil")
	}

	m := &Manager{path: path, version: version, hooks: hooks}
	m.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "schema-reopen:" + path,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info("schema: circuit breaker %s: %s -> %s", name, from, to)
		},
	})
	return m, nil
}

// SetCorruptionListener installs the listener invoked on corruption
// detection. Passing nil disables notification.
func (m *Manager) SetCorruptionListener(listener CorruptionListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.corruptionListener = listener
}

// Path returns the configured database file path.
func (m *Manager) Path() string { return m.path }

// Version returns the declared schema version.
func (m *Manager) Version() uint32 { return m.version }

// GetWritableDatabase returns the (possibly freshly opened/migrated)
// database handle. Writable and readable access share one handle, as
// in the original (spec.md §4.D).
func (m *Manager) GetWritableDatabase(ctx context.Context) (*sqlitedb.Database, error) {
	return m.getDatabase(ctx)
}

// GetReadableDatabase returns the database handle; see GetWritableDatabase.
func (m *Manager) GetReadableDatabase(ctx context.Context) (*sqlitedb.Database, error) {
	return m.getDatabase(ctx)
}

func (m *Manager) getDatabase(ctx context.Context) (*sqlitedb.Database, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.db != nil {
		if !m.db.IsOpen() {
			m.db = nil
		} else {
			return m.db, nil
		}
	}

	if m.initializing {
		return nil, sqlitedb.IllegalState("getDatabase called recursively")
	}
	m.initializing = true
	defer func() { m.initializing = false }()

	result, err := m.breaker.Execute(func() (any, error) {
		return m.openAndMigrate(ctx)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, sqlitedb.IllegalState("schema manager circuit open after repeated failures: " + err.Error())
		}
		m.notifyIfCorrupt(err)
		return nil, err
	}

	db := result.(*sqlitedb.Database)
	m.db = db
	return db, nil
}

func (m *Manager) openAndMigrate(ctx context.Context) (*sqlitedb.Database, error) {
	db, err := sqlitedb.OpenOrCreate(m.path)
	if err != nil {
		return nil, err
	}

	if err := m.hooks.OnConfigure(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	version, err := db.Version(ctx)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	if version == 0 {
		// AutoVacuum must be set before any table is created to take
		// effect; a failure here is tolerated (logged, not fatal),
		// matching SqliteOpenHelper.cpp's behavior.
		if err := db.SetAutoVacuum(ctx, sqlitedb.AutoVacuumFull); err != nil {
			log.Info("schema: failed to set auto-vacuum to full: %v", err)
		}
	}

	if version != m.version {
		if err := db.Begin(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}

		var hookErr error
		switch {
		case version == 0:
			hookErr = m.hooks.OnCreate(ctx, db)
		case version > m.version:
			hookErr = m.hooks.OnDowngrade(ctx, db, version, m.version)
		default:
			hookErr = m.hooks.OnUpgrade(ctx, db, version, m.version)
		}
		if hookErr != nil {
			_ = db.Rollback()
			_ = db.Close()
			return nil, hookErr
		}

		if err := db.SetVersion(ctx, m.version); err != nil {
			_ = db.Rollback()
			_ = db.Close()
			return nil, err
		}
		if err := db.Commit(); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	if err := m.hooks.OnOpen(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

func (m *Manager) notifyIfCorrupt(err error) {
	if !sqlitedb.IsKind(err, sqlitedb.KindDatabaseCorrupt) {
		return
	}
	if m.corruptionListener != nil {
		m.corruptionListener(m.path, err)
	}
}

// Close closes the underlying database handle, if open. Closing
// during initialization raises KindIllegalState (spec.md §4.D).
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initializing {
		return sqlitedb.IllegalState("closed during initialization")
	}
	if m.db != nil && m.db.IsOpen() {
		err := m.db.Close()
		m.db = nil
		return err
	}
	return nil
}
