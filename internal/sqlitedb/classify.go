package sqlitedb

import (
	"errors"

	"github.com/mattn/go-sqlite3"
)

// classify inspects a raw driver error and wraps it as either
// KindDatabaseCorrupt (the engine reports its image can't be parsed)
// or the generic KindSqlExecution, per spec.md §4.H / §7. Every
// write-family entry point on Database funnels its engine errors
// through this function.
func classify(funcName string, err error) error {
	if err == nil {
		return nil
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code == sqlite3.ErrCorrupt || sqliteErr.Code == sqlite3.ErrNotADB {
			return newError(KindDatabaseCorrupt,
				"database got corrupted; you might have to delete the database to recover ("+funcName+")", err)
		}
	}

	return newError(KindSqlExecution, "sql execution failed in "+funcName, err)
}
