// Package sqlitedb is a typed cursor / row-builder / query-builder
// wrapper over an embedded single-file SQL engine (spec.md §4.C), with
// transactional discipline and corruption classification (spec.md
// §4.H).
package sqlitedb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// AutoVacuumMode mirrors SQLite's PRAGMA auto_vacuum values.
type AutoVacuumMode int

const (
	AutoVacuumNone        AutoVacuumMode = 0
	AutoVacuumFull        AutoVacuumMode = 1
	AutoVacuumIncremental AutoVacuumMode = 2
)

// execQuerier is satisfied by both *sql.DB and *sql.Tx, letting
// Database route every statement through whichever is active.
type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Database is a reference-counted-in-spirit handle owning one SQLite
// session (spec.md §4.C "Database handle"). Every write-family
// operation (Exec/Insert/Replace/Update/Delete/RawQuery/Query/
// SetVersion/SetAutoVacuum/Begin/Commit/Rollback) funnels its driver
// error through classify(), turning a corrupt-image condition into a
// KindDatabaseCorrupt error.
//
// Database is not safe for concurrent use by multiple goroutines that
// nest calls into each other — mu serializes at the call level, not
// reentrantly, matching spec.md §4.G.
type Database struct {
	mu     sync.Mutex
	path   string
	db     *sql.DB
	tx     *sql.Tx
	opened bool
}

// OpenOrCreate opens (creating if necessary) the SQLite database file
// at path.
func OpenOrCreate(path string) (*Database, error) {
	if path == "" {
		return nil, IllegalState("can't create database: path is not set")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, IllegalState("can't create database directory: " + err.Error())
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, IllegalState("failed to create database session: " + err.Error())
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, classify("OpenOrCreate", err)
	}
	return &Database{path: path, db: db, opened: true}, nil
}

func (d *Database) throwIfNotOpen() error {
	if !d.opened || d.db == nil {
		return IllegalState("database session is not open")
	}
	return nil
}

func (d *Database) querier() execQuerier {
	if d.tx != nil {
		return d.tx
	}
	return d.db
}

// Exec executes an arbitrary statement with no result set.
func (d *Database) Exec(ctx context.Context, sqlStr string, args ...any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.throwIfNotOpen(); err != nil {
		return err
	}
	if _, err := d.querier().ExecContext(ctx, sqlStr, args...); err != nil {
		return classify("Exec", err)
	}
	return nil
}

// RawQuery executes sqlStr (expected to be a SELECT) with the given
// positional args and buffers the result into a Cursor.
func (d *Database) RawQuery(ctx context.Context, sqlStr string, args []any) (*Cursor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.throwIfNotOpen(); err != nil {
		return nil, err
	}

	rows, err := d.querier().QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, classify("RawQuery", err)
	}
	defer rows.Close()

	return bufferRows(rows)
}

// Query builds and runs a SELECT via QuerySpec.
func (d *Database) Query(ctx context.Context, spec QuerySpec) (*Cursor, error) {
	sqlStr, args, err := BuildQuery(spec)
	if err != nil {
		return nil, err
	}
	return d.RawQuery(ctx, sqlStr, args)
}

func bufferRows(rows *sql.Rows) (*Cursor, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, classify("bufferRows", err)
	}

	var buffered [][]any
	for rows.Next() {
		raw := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, classify("bufferRows", err)
		}
		buffered = append(buffered, raw)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("bufferRows", err)
	}

	return newCursor(columns, buffered), nil
}

// Insert inserts values into table with ConflictNone and returns the
// new row's rowid.
func (d *Database) Insert(ctx context.Context, table string, values Values) (int64, error) {
	return d.insertWithConflict(ctx, table, values, ConflictNone)
}

// Replace inserts values into table as INSERT OR REPLACE, returning
// the affected row's rowid.
func (d *Database) Replace(ctx context.Context, table string, values Values) (int64, error) {
	return d.insertWithConflict(ctx, table, values, ConflictReplace)
}

func (d *Database) insertWithConflict(ctx context.Context, table string, values Values, conflict ConflictAlgorithm) (int64, error) {
	sqlStr, args := BuildInsert(table, values, conflict)

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.throwIfNotOpen(); err != nil {
		return 0, err
	}

	result, err := d.querier().ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, classify("Insert", err)
	}
	return result.LastInsertId()
}

// Delete deletes rows matching where/whereArgs (where may be empty to
// delete all rows) and returns the number of rows removed.
func (d *Database) Delete(ctx context.Context, table, where string, whereArgs []any) (int64, error) {
	sqlStr := BuildDelete(table, where)

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.throwIfNotOpen(); err != nil {
		return 0, err
	}

	result, err := d.querier().ExecContext(ctx, sqlStr, whereArgs...)
	if err != nil {
		return 0, classify("Delete", err)
	}
	return result.RowsAffected()
}

// Update updates rows matching where/whereArgs with values and
// returns the number of rows changed. Raises KindIllegalArgument if
// values is empty.
func (d *Database) Update(ctx context.Context, table string, values Values, where string, whereArgs []any) (int64, error) {
	sqlStr, args, err := BuildUpdate(table, values, where, whereArgs, ConflictNone)
	if err != nil {
		return 0, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.throwIfNotOpen(); err != nil {
		return 0, err
	}

	result, execErr := d.querier().ExecContext(ctx, sqlStr, args...)
	if execErr != nil {
		return 0, classify("Update", execErr)
	}
	return result.RowsAffected()
}

// Begin starts a transaction. Opening a transaction while one is
// already open raises KindIllegalState (spec.md §4.C).
func (d *Database) Begin(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.throwIfNotOpen(); err != nil {
		return err
	}
	if d.tx != nil {
		return IllegalState("a transaction is already open")
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("Begin", err)
	}
	d.tx = tx
	return nil
}

// Commit commits the open transaction.
func (d *Database) Commit() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.throwIfNotOpen(); err != nil {
		return err
	}
	if d.tx == nil {
		return IllegalState("no transaction is open")
	}
	tx := d.tx
	d.tx = nil
	if err := tx.Commit(); err != nil {
		return classify("Commit", err)
	}
	return nil
}

// Rollback rolls back the open transaction, if any. Calling it with no
// open transaction is a no-op, matching endTransaction's "rollback
// unless committed" contract (spec.md §4.C scoped transaction).
func (d *Database) Rollback() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tx == nil {
		return nil
	}
	tx := d.tx
	d.tx = nil
	if err := tx.Rollback(); err != nil {
		return classify("Rollback", err)
	}
	return nil
}

// InTransaction reports whether a transaction is currently open.
func (d *Database) InTransaction() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tx != nil
}

// Version returns PRAGMA user_version, clamping a (theoretically
// impossible but defensively handled, per the original's negative-
// version guard) negative value to 0.
func (d *Database) Version(ctx context.Context) (uint32, error) {
	cur, err := d.RawQuery(ctx, "PRAGMA user_version", nil)
	if err != nil {
		return 0, err
	}
	if !cur.MoveFirst() {
		return 0, nil
	}
	v, err := cur.GetInt(0)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, nil
	}
	return uint32(v), nil
}

// SetVersion sets PRAGMA user_version.
func (d *Database) SetVersion(ctx context.Context, version uint32) error {
	return d.Exec(ctx, fmt.Sprintf("PRAGMA user_version = %d", version))
}

// AutoVacuum returns PRAGMA auto_vacuum.
func (d *Database) AutoVacuum(ctx context.Context) (AutoVacuumMode, error) {
	cur, err := d.RawQuery(ctx, "PRAGMA auto_vacuum", nil)
	if err != nil {
		return AutoVacuumNone, err
	}
	if !cur.MoveFirst() {
		return AutoVacuumNone, nil
	}
	v, err := cur.GetInt(0)
	if err != nil {
		return AutoVacuumNone, err
	}
	return AutoVacuumMode(v), nil
}

// SetAutoVacuum sets PRAGMA auto_vacuum. Must be called before any
// table is created to take effect.
func (d *Database) SetAutoVacuum(ctx context.Context, mode AutoVacuumMode) error {
	return d.Exec(ctx, fmt.Sprintf("PRAGMA auto_vacuum = %d", mode))
}

// IsOpen reports whether the session is currently open.
func (d *Database) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened
}

// Close closes the session. Closing while a transaction is open
// raises KindIllegalState.
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.throwIfNotOpen(); err != nil {
		return err
	}
	if d.tx != nil {
		return IllegalState("can not close database: a transaction is open")
	}
	if err := d.db.Close(); err != nil {
		return classify("Close", err)
	}
	d.opened = false
	return nil
}

// Reopen re-establishes the session after a Close.
func (d *Database) Reopen() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	db, err := sql.Open("sqlite3", d.path)
	if err != nil {
		return IllegalState("can not open database: " + err.Error())
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return classify("Reopen", err)
	}
	d.db = db
	d.tx = nil
	d.opened = true
	return nil
}
