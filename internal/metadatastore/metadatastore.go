// Package metadatastore is the CRUD + LRU-ordered enumeration layer
// over the cache_metadata table (spec.md §4.E).
package metadatastore

import (
	"context"
	"sync"

	"github.com/AdguardTeam/golibs/log"

	"github.com/bboehmke/httpcachecore/internal/schema"
	"github.com/bboehmke/httpcachecore/internal/sqlitedb"
)

// TableName is the single table this store owns.
const TableName = "cache_metadata"

// Method mirrors the original's Request::HttpMethod enum, stored as
// an integer column (spec.md §3.1 CacheEntry.method).
type Method int

const (
	MethodDelete Method = iota
	MethodGet
	MethodHead
	MethodPatch
	MethodPost
	MethodPut
)

const (
	columnID                    = "id"
	columnCacheKey              = "cache_key"
	columnURL                   = "url"
	columnMethod                = "method"
	columnStatusCode            = "status_code"
	columnStatusMessage         = "status_message"
	columnResponseHeaderJSON    = "response_header_json"
	columnResponseBodySize      = "response_body_size"
	columnSentRequestAtEpoch    = "sent_request_at_epoch"
	columnReceivedResponseEpoch = "received_response_at_epoch"
	columnCreatedAtEpoch        = "created_at_epoch"
	columnLastAccessedAtEpoch   = "last_accessed_at_epoch"
)

// Entry is one row of cache_metadata (spec.md §3.1 CacheEntry).
type Entry struct {
	Key                     string
	URL                     string
	Method                  Method
	StatusCode              int
	StatusMessage           string
	ResponseHeaderJSON      string
	ResponseBodySize        uint64
	SentRequestAtEpoch      uint64
	ReceivedResponseAtEpoch uint64
	CreatedAtEpoch          uint64
	LastAccessedAtEpoch     uint64
}

// EnumerationItem is what Enumerate hands the listener for each row,
// ordered by ascending last-accessed time (the LRU order).
type EnumerationItem struct {
	Key              string
	ResponseBodySize uint64
}

// EnumerationFunc is called once per row in LRU order. Returning false
// stops enumeration early without error, matching onEnumerate's
// boolean-return contract.
type EnumerationFunc func(item EnumerationItem) bool

// Hooks implements schema.Hooks for the cache_metadata table.
type Hooks struct {
	schema.DefaultHooks
}

// OnCreate creates cache_metadata (spec.md §4.D onCreate, grounded on
// HttpCacheDatabase::onCreate).
func (Hooks) OnCreate(ctx context.Context, db *sqlitedb.Database) error {
	return db.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+TableName+` (
		`+columnID+` INTEGER PRIMARY KEY AUTOINCREMENT,
		`+columnCacheKey+` TEXT UNIQUE,
		`+columnURL+` TEXT,
		`+columnMethod+` INTEGER,
		`+columnStatusCode+` INTEGER,
		`+columnStatusMessage+` TEXT,
		`+columnResponseHeaderJSON+` TEXT,
		`+columnResponseBodySize+` INTEGER,
		`+columnSentRequestAtEpoch+` INTEGER,
		`+columnReceivedResponseEpoch+` INTEGER,
		`+columnCreatedAtEpoch+` INTEGER,
		`+columnLastAccessedAtEpoch+` INTEGER)`)
}

// Repository is the metadata CRUD + enumeration API (spec.md §4.E).
// Its own mutex serializes access the way HttpCacheDatabase's
// m_mutex does, except during Enumerate — a listener callback may
// itself call Delete, so Enumerate deliberately does not hold the
// lock across the whole scan (grounded on HttpCacheDatabase.cpp:278-280's
// comment: "do not lock in enumerate ... exclusive control is done by
// the caller").
type Repository struct {
	mu      sync.Mutex
	manager *schema.Manager
	now     func() uint64
}

// NewRepository builds a Repository backed by manager. now supplies
// the current epoch second for timestamping writes; pass a fixed
// clock in tests.
func NewRepository(manager *schema.Manager, now func() uint64) *Repository {
	return &Repository{manager: manager, now: now}
}

// Get looks up the entry for key. The second return is false if no
// row matches (spec.md §4.E get_metadata).
func (r *Repository) Get(ctx context.Context, key string) (Entry, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	db, err := r.manager.GetReadableDatabase(ctx)
	if err != nil {
		log.Debug("metadatastore: Get unable to open database: %v", err)
		return Entry{}, false, err
	}

	cur, err := db.Query(ctx, sqlitedb.QuerySpec{
		Table: TableName,
		Columns: []string{
			columnURL, columnMethod, columnStatusCode, columnStatusMessage,
			columnResponseHeaderJSON, columnResponseBodySize,
			columnSentRequestAtEpoch, columnReceivedResponseEpoch, columnCreatedAtEpoch,
			columnLastAccessedAtEpoch,
		},
		Where:     columnCacheKey + "=?",
		WhereArgs: []any{key},
	})
	if err != nil {
		return Entry{}, false, err
	}
	defer cur.Close()

	if !cur.MoveFirst() {
		return Entry{}, false, nil
	}

	entry, err := scanEntry(cur, key)
	if err != nil {
		return Entry{}, false, err
	}
	return entry, true, nil
}

func scanEntry(cur *sqlitedb.Cursor, key string) (Entry, error) {
	url, err := cur.GetString(0)
	if err != nil {
		return Entry{}, err
	}
	method, err := cur.GetInt(1)
	if err != nil {
		return Entry{}, err
	}
	statusCode, err := cur.GetInt(2)
	if err != nil {
		return Entry{}, err
	}
	statusMessage, err := cur.GetString(3)
	if err != nil {
		return Entry{}, err
	}
	headerJSON, err := cur.GetString(4)
	if err != nil {
		return Entry{}, err
	}
	bodySize, err := cur.GetUnsignedLongLong(5)
	if err != nil {
		return Entry{}, err
	}
	sentAt, err := cur.GetUnsignedLongLong(6)
	if err != nil {
		return Entry{}, err
	}
	receivedAt, err := cur.GetUnsignedLongLong(7)
	if err != nil {
		return Entry{}, err
	}
	createdAt, err := cur.GetUnsignedLongLong(8)
	if err != nil {
		return Entry{}, err
	}
	lastAccessedAt, err := cur.GetUnsignedLongLong(9)
	if err != nil {
		return Entry{}, err
	}

	return Entry{
		Key:                     key,
		URL:                     url,
		Method:                  Method(method),
		StatusCode:              statusCode,
		StatusMessage:           statusMessage,
		ResponseHeaderJSON:      headerJSON,
		ResponseBodySize:        bodySize,
		SentRequestAtEpoch:      sentAt,
		ReceivedResponseAtEpoch: receivedAt,
		CreatedAtEpoch:          createdAt,
		LastAccessedAtEpoch:     lastAccessedAt,
	}, nil
}

// Delete removes the row for key inside its own transaction, returning
// whether a row was actually removed (spec.md §4.E delete_metadata).
func (r *Repository) Delete(ctx context.Context, key string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	db, err := r.manager.GetWritableDatabase(ctx)
	if err != nil {
		log.Debug("metadatastore: Delete unable to open database: %v", err)
		return false, err
	}

	txn, err := sqlitedb.BeginScoped(ctx, db)
	if err != nil {
		return false, err
	}
	defer txn.End()

	affected, err := db.Delete(ctx, TableName, columnCacheKey+"=?", []any{key})
	if err != nil {
		log.Debug("metadatastore: Delete failed: %v", err)
		return false, nil
	}
	if err := txn.SetSuccessful(); err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Update upserts entry via REPLACE, stamping last_accessed_at_epoch to
// now (spec.md §4.E update_metadata; grounded on
// HttpCacheDatabase::updateMetadata's "do an INSERT, and if that
// INSERT fails because of a conflict, delete the conflicting rows
// before INSERTing again" replace semantics).
func (r *Repository) Update(ctx context.Context, entry Entry) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.replace(ctx, entry, r.now())
}

func (r *Repository) replace(ctx context.Context, entry Entry, lastAccessedAtEpoch uint64) (bool, error) {
	db, err := r.manager.GetWritableDatabase(ctx)
	if err != nil {
		log.Debug("metadatastore: Update unable to open database: %v", err)
		return false, err
	}

	txn, err := sqlitedb.BeginScoped(ctx, db)
	if err != nil {
		return false, err
	}
	defer txn.End()

	values := sqlitedb.NewValues().
		Put(columnCacheKey, entry.Key).
		Put(columnURL, entry.URL).
		Put(columnMethod, int(entry.Method)).
		Put(columnStatusCode, entry.StatusCode).
		Put(columnStatusMessage, entry.StatusMessage).
		Put(columnResponseHeaderJSON, entry.ResponseHeaderJSON).
		Put(columnResponseBodySize, entry.ResponseBodySize).
		Put(columnSentRequestAtEpoch, entry.SentRequestAtEpoch).
		Put(columnReceivedResponseEpoch, entry.ReceivedResponseAtEpoch).
		Put(columnCreatedAtEpoch, entry.CreatedAtEpoch).
		Put(columnLastAccessedAtEpoch, lastAccessedAtEpoch)

	id, err := db.Replace(ctx, TableName, values)
	if err != nil {
		log.Debug("metadatastore: replace failed: %v", err)
		return false, nil
	}
	if id <= 0 {
		return false, nil
	}
	if err := txn.SetSuccessful(); err != nil {
		return false, err
	}
	return true, nil
}

// UpdateLastAccessedSec touches just last_accessed_at_epoch, used to
// promote an entry to most-recently-used on a cache hit (spec.md §4.E
// update_last_accessed_sec, scenario S3).
func (r *Repository) UpdateLastAccessedSec(ctx context.Context, key string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	db, err := r.manager.GetWritableDatabase(ctx)
	if err != nil {
		log.Debug("metadatastore: UpdateLastAccessedSec unable to open database: %v", err)
		return false, err
	}

	txn, err := sqlitedb.BeginScoped(ctx, db)
	if err != nil {
		return false, err
	}
	defer txn.End()

	values := sqlitedb.NewValues().Put(columnLastAccessedAtEpoch, r.now())
	affected, err := db.Update(ctx, TableName, values, columnCacheKey+"=?", []any{key})
	if err != nil {
		log.Debug("metadatastore: UpdateLastAccessedSec failed: %v", err)
		return false, nil
	}
	if err := txn.SetSuccessful(); err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Enumerate visits every row in ascending last-accessed order (the
// LRU order, oldest first), calling fn for each until fn returns false
// or rows are exhausted. Callers serialize their own access around
// Enumerate if they intend to mutate the store from within fn
// (spec.md §4.E enumerate; see the Repository doc comment on locking).
//
// Rows are snapshotted into memory before fn is invoked (Open Question
// decision in SPEC_FULL.md): the cursor this store reads from is
// already a fully-buffered Cursor (internal/sqlitedb), so mutation
// from within fn cannot corrupt an in-flight scan.
func (r *Repository) Enumerate(ctx context.Context, fn EnumerationFunc) error {
	db, err := r.manager.GetReadableDatabase(ctx)
	if err != nil {
		log.Debug("metadatastore: Enumerate unable to open database: %v", err)
		return err
	}

	cur, err := db.Query(ctx, sqlitedb.QuerySpec{
		Table:   TableName,
		Columns: []string{columnCacheKey, columnResponseBodySize},
		OrderBy: columnLastAccessedAtEpoch + " ASC",
	})
	if err != nil {
		return err
	}
	defer cur.Close()

	if !cur.MoveFirst() {
		return nil
	}
	for {
		key, err := cur.GetString(0)
		if err != nil {
			return err
		}
		size, err := cur.GetUnsignedLongLong(1)
		if err != nil {
			return err
		}
		if !fn(EnumerationItem{Key: key, ResponseBodySize: size}) {
			return nil
		}
		if !cur.MoveNext() {
			return nil
		}
	}
}

// GetAllForTest is Get without the repository mutex, for tests that
// already hold it or that want to read state concurrently with an
// in-flight Get/Update (supplemented feature; spec.md's distillation
// dropped the original's getMetadataAll test accessor, see
// SPEC_FULL.md item 1).
func (r *Repository) GetAllForTest(ctx context.Context, key string) (Entry, bool, error) {
	db, err := r.manager.GetReadableDatabase(ctx)
	if err != nil {
		return Entry{}, false, err
	}

	cur, err := db.Query(ctx, sqlitedb.QuerySpec{
		Table: TableName,
		Columns: []string{
			columnURL, columnMethod, columnStatusCode, columnStatusMessage,
			columnResponseHeaderJSON, columnResponseBodySize,
			columnSentRequestAtEpoch, columnReceivedResponseEpoch, columnCreatedAtEpoch,
			columnLastAccessedAtEpoch,
		},
		Where:     columnCacheKey + "=?",
		WhereArgs: []any{key},
	})
	if err != nil {
		return Entry{}, false, err
	}
	defer cur.Close()

	if !cur.MoveFirst() {
		return Entry{}, false, nil
	}

	entry, err := scanEntry(cur, key)
	if err != nil {
		return Entry{}, false, err
	}
	return entry, true, nil
}

// UpdateAllForTest upserts entry including an explicit
// last_accessed_at_epoch, letting tests seed a known LRU order without
// waiting on the clock (supplemented feature, mirrors
// updateMetadataAll).
func (r *Repository) UpdateAllForTest(ctx context.Context, entry Entry) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.replace(ctx, entry, entry.LastAccessedAtEpoch)
}
