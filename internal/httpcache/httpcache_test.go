package httpcache

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bboehmke/httpcachecore/internal/metadatastore"
)

func newTestCache(t *testing.T, maxSize uint64) *Cache {
	t.Helper()
	cache, err := New(t.TempDir(), maxSize)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

// sequencedClock hands out a strictly increasing epoch second on every
// call, so LRU ordering in tests never depends on same-second ties.
type sequencedClock struct{ t uint64 }

func (c *sequencedClock) next() uint64 {
	c.t++
	return c.t
}

func newSequencedTestCache(t *testing.T, maxSize uint64) *Cache {
	t.Helper()
	clock := &sequencedClock{}
	cache, err := newWithClock(t.TempDir(), maxSize, clock.next)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

func putEntry(t *testing.T, cache *Cache, fingerprint, body string) {
	t.Helper()
	meta := Metadata{
		URL:        "http://h/" + fingerprint,
		Method:     metadatastore.MethodGet,
		StatusCode: 200,
		Headers:    http.Header{"Content-Type": []string{"text/plain"}},
	}
	ok, err := cache.Put(context.Background(), fingerprint, meta, strings.NewReader(body))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestS1PutThenGet(t *testing.T) {
	cache := newTestCache(t, 1<<20)
	ctx := context.Background()

	putEntry(t, cache, Fingerprint("GET", "http://h/x"), "hello")

	result, ok, err := cache.Get(ctx, Fingerprint("GET", "http://h/x"))
	require.NoError(t, err)
	require.True(t, ok)
	defer result.Body.Close()

	assert.Equal(t, 200, result.Metadata.StatusCode)
	data, err := io.ReadAll(result.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.EqualValues(t, 5, cache.Size(ctx))
	assert.GreaterOrEqual(t, result.Metadata.LastAccessedAtEpoch, result.Metadata.CreatedAtEpoch)
}

func TestGetMissReturnsFalse(t *testing.T) {
	cache := newTestCache(t, 1<<20)
	_, ok, err := cache.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestS2LruEviction(t *testing.T) {
	cache := newSequencedTestCache(t, 100)
	ctx := context.Background()

	var fingerprints []string
	for i := 0; i < 10; i++ {
		fp := Fingerprint("GET", "http://h/e"+string(rune('0'+i)))
		fingerprints = append(fingerprints, fp)
		putEntry(t, cache, fp, strings.Repeat("x", 20))
	}

	assert.LessOrEqual(t, cache.Size(ctx), uint64(100))

	// the five most recently put entries (e5..e9) must still be present
	for _, fp := range fingerprints[5:] {
		_, ok, err := cache.Get(ctx, fp)
		require.NoError(t, err)
		assert.True(t, ok, "expected %s to survive eviction", fp)
	}
	// the five oldest must be gone
	for _, fp := range fingerprints[:5] {
		_, ok, err := cache.Get(ctx, fp)
		require.NoError(t, err)
		assert.False(t, ok, "expected %s to be evicted", fp)
	}
}

func TestS3TouchPromotesEntry(t *testing.T) {
	cache := newSequencedTestCache(t, 100)
	ctx := context.Background()

	var fingerprints []string
	for i := 0; i < 10; i++ {
		fp := Fingerprint("GET", "http://h/e"+string(rune('0'+i)))
		fingerprints = append(fingerprints, fp)
		putEntry(t, cache, fp, strings.Repeat("x", 20))
	}

	// touch e5 (the oldest survivor) so it becomes most-recently-used
	oldestSurvivor := fingerprints[5]
	_, ok, err := cache.Get(ctx, oldestSurvivor)
	require.NoError(t, err)
	require.True(t, ok)

	// insert an 11th entry, which should now evict e6, not e5
	e11 := Fingerprint("GET", "http://h/e10")
	putEntry(t, cache, e11, strings.Repeat("x", 20))

	_, ok, err = cache.Get(ctx, oldestSurvivor)
	require.NoError(t, err)
	assert.True(t, ok, "touched entry must survive")

	_, ok, err = cache.Get(ctx, fingerprints[6])
	require.NoError(t, err)
	assert.False(t, ok, "next-oldest entry must be evicted instead")
}

func TestRemoveDeletesEntry(t *testing.T) {
	cache := newTestCache(t, 1<<20)
	ctx := context.Background()
	fp := Fingerprint("GET", "http://h/x")
	putEntry(t, cache, fp, "hello")

	removed, err := cache.Remove(ctx, fp)
	require.NoError(t, err)
	assert.True(t, removed)

	_, ok, err := cache.Get(ctx, fp)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPutOverwritesOldBody(t *testing.T) {
	cache := newTestCache(t, 1<<20)
	ctx := context.Background()
	fp := Fingerprint("GET", "http://h/x")

	putEntry(t, cache, fp, "first-value")
	putEntry(t, cache, fp, "second")

	result, ok, err := cache.Get(ctx, fp)
	require.NoError(t, err)
	require.True(t, ok)
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
	assert.EqualValues(t, 6, cache.Size(ctx))
}

func TestPurgeClearsEverything(t *testing.T) {
	cache := newTestCache(t, 1<<20)
	ctx := context.Background()
	fp := Fingerprint("GET", "http://h/x")
	putEntry(t, cache, fp, "hello")

	ok, err := cache.Purge(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, 0, cache.Size(ctx))

	_, found, err := cache.Get(ctx, fp)
	require.NoError(t, err)
	assert.False(t, found)
}
