package sqlitedb

import (
	"context"

	"github.com/AdguardTeam/golibs/log"
)

// ScopedTransaction begins a transaction on construction and, unless
// SetSuccessful was called, rolls it back when End is invoked —
// mirroring AutoSqliteTransaction (spec.md §4.C). Callers use it as:
//
//	txn, err := BeginScoped(ctx, db)
//	if err != nil { return err }
//	defer txn.End()
//	... do work ...
//	return txn.SetSuccessful()
//
// End after a successful SetSuccessful is a silent no-op, matching
// the "any subsequent endTransaction becomes a no-op" contract.
type ScopedTransaction struct {
	db        *Database
	succeeded bool
	ended     bool
}

// BeginScoped begins a transaction and returns a guard over it.
func BeginScoped(ctx context.Context, db *Database) (*ScopedTransaction, error) {
	if err := db.Begin(ctx); err != nil {
		return nil, err
	}
	return &ScopedTransaction{db: db}, nil
}

// SetSuccessful commits the transaction immediately. Any later call to
// End becomes a no-op.
func (s *ScopedTransaction) SetSuccessful() error {
	if s.ended {
		return nil
	}
	s.ended = true
	s.succeeded = true
	return s.db.Commit()
}

// End rolls back the transaction unless SetSuccessful already ran.
// Errors are logged, not returned or panicked, matching the scoped
// guard's destructor contract (spec.md §4.C/§4.G/§7).
func (s *ScopedTransaction) End() {
	if s.ended {
		return
	}
	s.ended = true
	if err := s.db.Rollback(); err != nil {
		log.Debug("sqlitedb: scoped transaction rollback failed: %v", err)
	}
}

// ScopedCursor closes a Cursor on scope exit, swallowing any close
// error (spec.md §4.C "scoped cursor").
type ScopedCursor struct {
	cursor *Cursor
}

// NewScopedCursor wraps cursor in a scope guard.
func NewScopedCursor(cursor *Cursor) *ScopedCursor {
	return &ScopedCursor{cursor: cursor}
}

// Cursor returns the wrapped cursor.
func (s *ScopedCursor) Cursor() *Cursor { return s.cursor }

// Close closes the cursor, logging (not propagating) any failure.
func (s *ScopedCursor) Close() {
	if err := s.cursor.Close(); err != nil {
		log.Debug("sqlitedb: scoped cursor close failed: %v", err)
	}
}

// ScopedDatabase closes a Database handle on scope exit, swallowing
// any close-time error (spec.md §4.C "scoped database").
type ScopedDatabase struct {
	db *Database
}

// NewScopedDatabase wraps db in a scope guard.
func NewScopedDatabase(db *Database) *ScopedDatabase {
	return &ScopedDatabase{db: db}
}

// Close closes the database, logging (not propagating) any failure.
func (s *ScopedDatabase) Close() {
	if err := s.db.Close(); err != nil {
		log.Debug("sqlitedb: scoped database close failed: %v", err)
	}
}
