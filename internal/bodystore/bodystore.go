// Package bodystore is the file-per-entry response body store: one
// opaque stream per cache entry, written via a temp file that is
// fsync'd then atomically renamed into place (spec.md §3.1 BodyFile,
// §4.F put/get body semantics).
package bodystore

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/bboehmke/httpcachecore/internal/cachekey"
	"github.com/bboehmke/httpcachecore/internal/sqlitedb"
)

// Store manages body files under one root directory, with a
// subdirectory reserved for in-progress writes (grounded on the
// teacher's writeResponseToTmpFile/rename dance, helper.go:44-62, and
// cache.go's Set).
type Store struct {
	rootDir string
	tempDir string
}

// New creates a Store rooted at rootDir. The directory (and its temp
// subdirectory) are created lazily on first write.
func New(rootDir string) *Store {
	return &Store{rootDir: rootDir, tempDir: filepath.Join(rootDir, "temp")}
}

// RootDirectory returns the configured body storage root.
func (s *Store) RootDirectory() string { return s.rootDir }

// TempDirectory returns the directory used for in-progress writes.
func (s *Store) TempDirectory() string { return s.tempDir }

func (s *Store) pathFor(fingerprint string) string {
	return filepath.Join(s.rootDir, cachekey.BodyFileName(fingerprint))
}

// Open returns a reader over the body file for fingerprint. The
// caller must Close it. Returns KindIllegalState if no body file
// exists.
func (s *Store) Open(fingerprint string) (io.ReadCloser, error) {
	f, err := os.Open(s.pathFor(fingerprint))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, sqlitedb.IllegalState("no cached body for fingerprint " + fingerprint)
		}
		return nil, sqlitedb.IOError("failed to open cached body: "+fingerprint, err)
	}
	return f, nil
}

// Put streams body into a temp file, fsyncs it, then renames it into
// place over fingerprint's body path, replacing any existing body.
// Returns the number of bytes written. On any failure the temp file is
// removed and no partial body is left at the final path (spec.md §4.F
// "a failed put never clobbers an existing cached body").
func (s *Store) Put(ctx context.Context, fingerprint string, body io.Reader) (int64, error) {
	if err := os.MkdirAll(s.tempDir, 0o755); err != nil {
		return 0, sqlitedb.IOError("failed to create temp directory", err)
	}

	tmpPath := filepath.Join(s.tempDir, uuid.NewString()+".tmp")
	f, err := os.Create(tmpPath)
	if err != nil {
		return 0, sqlitedb.IOError("failed to create temp body file", err)
	}

	written, copyErr := io.Copy(f, body)
	if copyErr == nil {
		copyErr = ctx.Err()
	}
	if copyErr == nil {
		copyErr = f.Sync()
	}
	closeErr := f.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(tmpPath)
		return 0, sqlitedb.IOError("failed to write body for "+fingerprint, copyErr)
	}

	if err := os.MkdirAll(s.rootDir, 0o755); err != nil {
		_ = os.Remove(tmpPath)
		return 0, sqlitedb.IOError("failed to create body root directory", err)
	}
	if err := os.Rename(tmpPath, s.pathFor(fingerprint)); err != nil {
		_ = os.Remove(tmpPath)
		return 0, sqlitedb.IOError("failed to finalize body for "+fingerprint, err)
	}
	return written, nil
}

// Remove deletes the body file for fingerprint. Removing a body that
// doesn't exist is not an error, matching os.Remove's typical cache
// cleanup usage (best-effort, idempotent).
func (s *Store) Remove(fingerprint string) error {
	if err := os.Remove(s.pathFor(fingerprint)); err != nil && !os.IsNotExist(err) {
		return sqlitedb.IOError("failed to remove body for "+fingerprint, err)
	}
	return nil
}

// Size returns the body file's length in bytes. Returns
// KindIllegalState if it does not exist.
func (s *Store) Size(fingerprint string) (int64, error) {
	info, err := os.Stat(s.pathFor(fingerprint))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, sqlitedb.IllegalState("no cached body for fingerprint " + fingerprint)
		}
		return 0, sqlitedb.IOError("failed to stat cached body: "+fingerprint, err)
	}
	return info.Size(), nil
}

// Exists reports whether a body file is present for fingerprint.
func (s *Store) Exists(fingerprint string) bool {
	_, err := os.Stat(s.pathFor(fingerprint))
	return err == nil
}
