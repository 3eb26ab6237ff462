// Package httpcache is the cache façade: it orchestrates the metadata
// repository and the body store behind the external cache contract,
// enforces the size bound via LRU eviction, and owns the mutex
// discipline spec.md §4.G describes (spec.md §4.F).
package httpcache

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AdguardTeam/golibs/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bboehmke/httpcachecore/internal/bodystore"
	"github.com/bboehmke/httpcachecore/internal/cachekey"
	"github.com/bboehmke/httpcachecore/internal/headercodec"
	"github.com/bboehmke/httpcachecore/internal/metadatastore"
	"github.com/bboehmke/httpcachecore/internal/metrics"
	"github.com/bboehmke/httpcachecore/internal/schema"
	"github.com/bboehmke/httpcachecore/internal/sqlitedb"
)

const schemaVersion = 1

var tracer = otel.Tracer("github.com/bboehmke/httpcachecore/internal/httpcache")

// Metadata is the response-shaped metadata the façade accepts on Put
// and returns from Get (spec.md §6 "Response and associated Headers").
type Metadata struct {
	URL                     string
	Method                  metadatastore.Method
	StatusCode              int
	StatusMessage           string
	Headers                 http.Header
	ResponseBodySize        uint64
	SentRequestAtEpoch      uint64
	ReceivedResponseAtEpoch uint64
	CreatedAtEpoch          uint64
	LastAccessedAtEpoch     uint64
}

// Result is what Get returns on a hit: the metadata plus an open body
// stream the caller must Close.
type Result struct {
	Metadata Metadata
	Body     io.ReadCloser
}

// Cache is the façade over internal/metadatastore + internal/bodystore
// bound to one root directory (spec.md §3.1 CacheRootLayout).
type Cache struct {
	rootDir string
	maxSize uint64

	schemaMgr *schema.Manager
	metadata  *metadatastore.Repository
	bodies    *bodystore.Store
	clock     func() uint64

	// putMu serializes put+eviction as one critical section (spec.md
	// §4.G); the read path does not take it.
	putMu chan struct{}

	currentSize  atomic.Uint64
	sizeInitOnce sync.Once
}

// New builds a Cache rooted at rootDir with the given byte size bound.
// The cache subdirectory and metadata DB are created lazily on first
// use.
func New(rootDir string, maxSize uint64) (*Cache, error) {
	return newWithClock(rootDir, maxSize, nowEpoch)
}

func newWithClock(rootDir string, maxSize uint64, clock func() uint64) (*Cache, error) {
	if rootDir == "" {
		return nil, sqlitedb.IllegalArgument("root directory must not be empty")
	}

	cacheDir := filepath.Join(rootDir, "cache")
	dbPath := filepath.Join(cacheDir, "cache_metadata.db")

	schemaMgr, err := schema.NewManager(dbPath, schemaVersion, metadatastore.Hooks{})
	if err != nil {
		return nil, err
	}

	c := &Cache{
		rootDir:   cacheDir,
		maxSize:   maxSize,
		schemaMgr: schemaMgr,
		metadata:  metadatastore.NewRepository(schemaMgr, clock),
		bodies:    bodystore.New(cacheDir),
		clock:     clock,
		putMu:     make(chan struct{}, 1),
	}
	c.putMu <- struct{}{}

	schemaMgr.SetCorruptionListener(c.onCorruption)
	return c, nil
}

func nowEpoch() uint64 { return uint64(time.Now().Unix()) }

// onCorruption is the default DatabaseCorruptionListener: it deletes
// the whole cache subtree so that the next open recreates an empty
// schema (spec.md §4.H "the cache façade's default listener deletes
// both the DB and the body directory"). It must not call back into
// schemaMgr, which is still holding its own lock when this runs.
func (c *Cache) onCorruption(databasePath string, detail error) {
	log.Info("httpcache: database corrupt at %s: %v; recreating cache directory", databasePath, detail)
	metrics.CorruptionsTotal.Inc()
	if err := os.RemoveAll(c.rootDir); err != nil {
		log.Info("httpcache: failed to remove corrupted cache directory %s: %v", c.rootDir, err)
	}
}

// Path returns the cache root subdirectory (<cache_root>/cache).
func (c *Cache) Path() string { return c.rootDir }

// MaxSize returns the configured size bound in bytes.
func (c *Cache) MaxSize() uint64 { return c.maxSize }

// TempDirectory returns the staging directory for in-progress body writes.
func (c *Cache) TempDirectory() string { return c.bodies.TempDirectory() }

// Close closes the underlying metadata database.
func (c *Cache) Close() error { return c.schemaMgr.Close() }

// Get looks up fingerprint. On a miss, or if the body file is absent
// or shorter than the recorded size, it returns ok=false and schedules
// removal of the stale entry (spec.md §4.F get).
func (c *Cache) Get(ctx context.Context, fingerprint string) (Result, bool, error) {
	ctx, span := tracer.Start(ctx, "httpcache.Get", trace.WithAttributes(attribute.String("fingerprint", fingerprint)))
	defer span.End()

	entry, ok, err := c.metadata.Get(ctx, fingerprint)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Result{}, false, err
	}
	if !ok {
		metrics.MissesTotal.Inc()
		return Result{}, false, nil
	}

	size, sizeErr := c.bodies.Size(fingerprint)
	if sizeErr != nil || uint64(size) < entry.ResponseBodySize {
		log.Debug("httpcache: body missing or truncated for %s, evicting stale entry", fingerprint)
		_, _ = c.Remove(ctx, fingerprint)
		metrics.MissesTotal.Inc()
		return Result{}, false, nil
	}

	body, err := c.bodies.Open(fingerprint)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Result{}, false, err
	}

	metrics.HitsTotal.Inc()
	metrics.HitBytesTotal.Add(float64(entry.ResponseBodySize))

	result := Result{Metadata: toFacadeMetadata(entry), Body: body}

	// Touch after the stream is ready to hand back; a failure here
	// only degrades LRU ordering, never the read itself (spec.md §4.F
	// get, §4.G "get schedules its touch after delivering the stream").
	if _, err := c.metadata.UpdateLastAccessedSec(ctx, fingerprint); err != nil {
		log.Debug("httpcache: failed to touch last-accessed for %s: %v", fingerprint, err)
	}

	return result, true, nil
}

func toFacadeMetadata(entry metadatastore.Entry) Metadata {
	return Metadata{
		URL:                     entry.URL,
		Method:                  entry.Method,
		StatusCode:              entry.StatusCode,
		StatusMessage:           entry.StatusMessage,
		Headers:                 headercodec.Decode(entry.ResponseHeaderJSON),
		ResponseBodySize:        entry.ResponseBodySize,
		SentRequestAtEpoch:      entry.SentRequestAtEpoch,
		ReceivedResponseAtEpoch: entry.ReceivedResponseAtEpoch,
		CreatedAtEpoch:          entry.CreatedAtEpoch,
		LastAccessedAtEpoch:     entry.LastAccessedAtEpoch,
	}
}

// Put writes body under fingerprint and upserts its metadata, then
// runs eviction if the cache now exceeds its size bound (spec.md §4.F
// put). meta.ResponseBodySize is ignored: the stored size is the
// actual number of bytes written.
func (c *Cache) Put(ctx context.Context, fingerprint string, meta Metadata, body io.Reader) (bool, error) {
	ctx, span := tracer.Start(ctx, "httpcache.Put", trace.WithAttributes(attribute.String("fingerprint", fingerprint)))
	defer span.End()

	c.lockPut()
	defer c.unlockPut()

	c.ensureSizeInitialized(ctx)

	previousSize, hadPrevious, err := c.bodyLen(fingerprint)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}

	written, err := c.bodies.Put(ctx, fingerprint, body)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}

	now := c.clock()
	entry := metadatastore.Entry{
		Key:                     fingerprint,
		URL:                     meta.URL,
		Method:                  meta.Method,
		StatusCode:              meta.StatusCode,
		StatusMessage:           meta.StatusMessage,
		ResponseHeaderJSON:      headercodec.Encode(meta.Headers),
		ResponseBodySize:        uint64(written),
		SentRequestAtEpoch:      meta.SentRequestAtEpoch,
		ReceivedResponseAtEpoch: meta.ReceivedResponseAtEpoch,
		CreatedAtEpoch:          meta.CreatedAtEpoch,
	}
	if entry.CreatedAtEpoch == 0 {
		entry.CreatedAtEpoch = now
	}

	updated, err := c.metadata.Update(ctx, entry)
	if err != nil {
		_ = c.bodies.Remove(fingerprint)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}
	if !updated {
		_ = c.bodies.Remove(fingerprint)
		return false, nil
	}

	if hadPrevious {
		c.currentSize.Add(^uint64(previousSize - 1))
	}
	c.currentSize.Add(uint64(written))
	metrics.MissBytesTotal.Add(float64(written))
	metrics.CacheSizeBytes.Set(float64(c.currentSize.Load()))

	if err := c.evictLocked(ctx); err != nil {
		log.Debug("httpcache: eviction failed after put: %v", err)
	}
	return true, nil
}

func (c *Cache) bodyLen(fingerprint string) (int64, bool, error) {
	size, err := c.bodies.Size(fingerprint)
	if err != nil {
		if sqlitedb.IsKind(err, sqlitedb.KindIllegalState) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return size, true, nil
}

// Remove deletes the metadata row and body file for fingerprint.
// Returns true if the entry (row, file, or both) was actually removed
// (spec.md §4.F remove).
func (c *Cache) Remove(ctx context.Context, fingerprint string) (bool, error) {
	ctx, span := tracer.Start(ctx, "httpcache.Remove", trace.WithAttributes(attribute.String("fingerprint", fingerprint)))
	defer span.End()

	size, hadBody, _ := c.bodyLen(fingerprint)

	rowDeleted, err := c.metadata.Delete(ctx, fingerprint)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}
	if err := c.bodies.Remove(fingerprint); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}

	if hadBody {
		c.currentSize.Add(^uint64(size - 1))
		metrics.CacheSizeBytes.Set(float64(c.currentSize.Load()))
	}
	return rowDeleted || hadBody, nil
}

// Purge closes the database, deletes the entire cache subtree, and
// reopens a fresh empty schema (spec.md §4.F purge).
func (c *Cache) Purge(ctx context.Context) (bool, error) {
	ctx, span := tracer.Start(ctx, "httpcache.Purge")
	defer span.End()

	c.lockPut()
	defer c.unlockPut()

	if err := c.schemaMgr.Close(); err != nil && !sqlitedb.IsKind(err, sqlitedb.KindIllegalState) {
		return false, err
	}
	if err := os.RemoveAll(c.rootDir); err != nil {
		return false, sqlitedb.IOError("failed to purge cache directory", err)
	}
	c.currentSize.Store(0)
	metrics.CacheSizeBytes.Set(0)
	c.sizeInitOnce = sync.Once{}
	c.sizeInitOnce.Do(func() {})

	if _, err := c.schemaMgr.GetWritableDatabase(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Size returns the cumulative body size across all entries.
func (c *Cache) Size(ctx context.Context) uint64 {
	c.ensureSizeInitialized(ctx)
	return c.currentSize.Load()
}

func (c *Cache) ensureSizeInitialized(ctx context.Context) {
	c.sizeInitOnce.Do(func() {
		var total uint64
		if err := c.metadata.Enumerate(ctx, func(item metadatastore.EnumerationItem) bool {
			total += item.ResponseBodySize
			return true
		}); err != nil {
			log.Debug("httpcache: failed to compute initial cache size: %v", err)
		}
		c.currentSize.Store(total)
		metrics.CacheSizeBytes.Set(float64(total))
	})
}

// evictLocked removes LRU entries until the running size is within
// bound. Caller must hold putMu (spec.md §4.F eviction policy).
func (c *Cache) evictLocked(ctx context.Context) error {
	if c.currentSize.Load() <= c.maxSize {
		return nil
	}

	var toRemove []metadatastore.EnumerationItem
	if err := c.metadata.Enumerate(ctx, func(item metadatastore.EnumerationItem) bool {
		toRemove = append(toRemove, item)
		return c.currentSize.Load() > c.maxSize && len(toRemove) < 1_000_000
	}); err != nil {
		return err
	}

	for _, item := range toRemove {
		if c.currentSize.Load() <= c.maxSize {
			break
		}
		removed, err := c.removeUnlocked(ctx, item.Key)
		if err != nil {
			log.Debug("httpcache: eviction failed to remove %s: %v", item.Key, err)
			continue
		}
		if removed {
			metrics.EvictionsTotal.Inc()
		}
	}
	metrics.CacheSizeBytes.Set(float64(c.currentSize.Load()))
	return nil
}

// removeUnlocked is Remove's body without the span and size-gauge
// bookkeeping, used by evictLocked which already holds putMu (Remove
// itself never takes putMu, so calling Remove directly is also safe,
// but this avoids an extra span per evicted entry).
func (c *Cache) removeUnlocked(ctx context.Context, fingerprint string) (bool, error) {
	size, hadBody, _ := c.bodyLen(fingerprint)

	rowDeleted, err := c.metadata.Delete(ctx, fingerprint)
	if err != nil {
		return false, err
	}
	if err := c.bodies.Remove(fingerprint); err != nil {
		return false, err
	}
	if hadBody {
		c.currentSize.Add(^uint64(size - 1))
	}
	return rowDeleted || hadBody, nil
}

func (c *Cache) lockPut()   { <-c.putMu }
func (c *Cache) unlockPut() { c.putMu <- struct{}{} }

// Fingerprint derives the fingerprint for an HTTP method/URL pair, the
// same one Put/Get/Remove key off of (re-exported for callers; spec.md
// §4.A).
func Fingerprint(method, url string) string { return cachekey.Fingerprint(method, url) }
