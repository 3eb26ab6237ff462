package main

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/AdguardTeam/golibs/log"
	"github.com/pquerna/cachecontrol/cacheobject"

	"github.com/bboehmke/httpcachecore/internal/config"
	"github.com/bboehmke/httpcachecore/internal/httpcache"
	"github.com/bboehmke/httpcachecore/internal/metadatastore"
	"github.com/bboehmke/httpcachecore/internal/metrics"
)

// CacheTransport is an http.RoundTripper that serves GET requests out
// of a httpcache.Cache, falling through to next for everything else
// and for misses. Only one upstream fetch per URL happens at a time
// (spec.md's per-fingerprint serialization is about the cache's own
// put/evict section; this singleflight is the proxy's own concern,
// same as the teacher's CacheTransport).
type CacheTransport struct {
	cache  *httpcache.Cache
	config *config.Config
	next   http.RoundTripper

	inflightMu sync.Mutex
	inflight   map[string]*sync.WaitGroup
}

// NewCacheTransport builds a CacheTransport over cache, falling
// through to roundTripper (http.DefaultTransport if nil) on a miss.
func NewCacheTransport(cache *httpcache.Cache, cfg *config.Config, roundTripper http.RoundTripper) *CacheTransport {
	if cache == nil {
		panic("cache must not be nil")
	}
	if roundTripper == nil {
		roundTripper = http.DefaultTransport
	}
	return &CacheTransport{
		cache:    cache,
		config:   cfg,
		next:     roundTripper,
		inflight: make(map[string]*sync.WaitGroup),
	}
}

// RoundTrip implements http.RoundTripper. Only GET requests are
// cached; everything else bypasses the cache entirely.
func (t *CacheTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	metrics.RequestsTotal.WithLabelValues(req.Method).Inc()

	if req.Method != http.MethodGet {
		return t.next.RoundTrip(req)
	}
	fingerprint := httpcache.Fingerprint(req.Method, req.URL.String())

	for {
		resp, fresh, err := t.tryCached(req, fingerprint)
		if err != nil {
			return nil, err
		}
		if resp != nil && fresh {
			return resp, nil
		}

		t.inflightMu.Lock()
		if wg, ok := t.inflight[fingerprint]; ok {
			t.inflightMu.Unlock()
			wg.Wait()
			continue
		}
		wg := &sync.WaitGroup{}
		wg.Add(1)
		t.inflight[fingerprint] = wg
		t.inflightMu.Unlock()

		result, err := t.fetchAndStore(req, fingerprint, resp)
		t.inflightMu.Lock()
		delete(t.inflight, fingerprint)
		t.inflightMu.Unlock()
		wg.Done()
		return result, err
	}
}

// tryCached looks the fingerprint up and reports whether the hit is
// still fresh enough to serve as-is (EntryTTL check, same as the
// teacher's mtime-based expiry).
func (t *CacheTransport) tryCached(req *http.Request, fingerprint string) (*http.Response, bool, error) {
	result, ok, err := t.cache.Get(req.Context(), fingerprint)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	resp := buildResponse(req, result)

	if t.config.EntryTTL > 0 {
		age := time.Since(time.Unix(int64(result.Metadata.ReceivedResponseAtEpoch), 0))
		if age > t.config.EntryTTL {
			if etag := resp.Header.Get("ETag"); etag != "" {
				req.Header.Set("If-None-Match", etag)
			}
			return resp, false, nil
		}
	}

	if t.config.EnableLogging {
		log.Printf("cache HIT: %s %s", req.Method, req.URL.String())
	}
	return resp, true, nil
}

// fetchAndStore performs the upstream request and updates the cache.
// staleCached, if non-nil, is the expired entry being revalidated; a
// 304 response reuses its stored body instead of re-downloading it.
func (t *CacheTransport) fetchAndStore(req *http.Request, fingerprint string, staleCached *http.Response) (*http.Response, error) {
	origResp, err := t.next.RoundTrip(req)
	if err != nil || origResp == nil {
		return origResp, err
	}

	if origResp.StatusCode == http.StatusNotModified && staleCached != nil {
		origResp.Body.Close()
		if t.config.EnableLogging {
			log.Printf("cache MISS-UP: %s %s", req.Method, req.URL.String())
		}
		return staleCached, nil
	}

	if origResp.StatusCode != http.StatusOK {
		return origResp, nil
	}

	if !t.config.IgnoreServerCacheControl {
		reasons, _, ccErr := cacheobject.UsingRequestResponse(req, origResp.StatusCode, origResp.Header, false)
		if ccErr != nil {
			if t.config.EnableLogging {
				log.Printf("cache control error: %s %s: %v", req.Method, req.URL.String(), ccErr)
			}
			return origResp, nil
		}
		if len(reasons) > 0 {
			if t.config.EnableLogging {
				log.Printf("cache control ignore: %s %s: %v", req.Method, req.URL.String(), reasons)
			}
			return origResp, nil
		}
	}

	if t.config.EntryMaxSize > 0 && origResp.ContentLength > int64(t.config.EntryMaxSize) && origResp.ContentLength >= 0 {
		if t.config.EnableLogging {
			log.Printf("response TOO LARGE to cache: %s %s (Content-Length: %d, limit: %d)",
				req.Method, req.URL.String(), origResp.ContentLength, t.config.EntryMaxSize)
		}
		return origResp, nil
	}

	now := uint64(time.Now().Unix())
	meta := httpcache.Metadata{
		URL:                     req.URL.String(),
		Method:                  metadatastore.MethodGet,
		StatusCode:              origResp.StatusCode,
		StatusMessage:           origResp.Status,
		Headers:                 origResp.Header,
		SentRequestAtEpoch:      now,
		ReceivedResponseAtEpoch: now,
	}
	stored, putErr := t.cache.Put(req.Context(), fingerprint, meta, origResp.Body)
	origResp.Body.Close()
	if putErr != nil {
		return nil, fmt.Errorf("cache put failed: %w", putErr)
	}
	if !stored {
		return origResp, nil
	}

	result, ok, err := t.cache.Get(req.Context(), fingerprint)
	if err != nil || !ok {
		return origResp, err
	}
	if t.config.EnableLogging {
		log.Printf("cache MISS: %s %s", req.Method, req.URL.String())
	}
	return buildResponse(req, result), nil
}

// buildResponse reconstructs an *http.Response from a cache Result,
// mirroring the teacher's bodyWithFile wrapping (spec.md §4.F get:
// the caller receives a stream, not a buffered body).
func buildResponse(req *http.Request, result httpcache.Result) *http.Response {
	header := result.Metadata.Headers
	resp := &http.Response{
		Status:        result.Metadata.StatusMessage,
		StatusCode:    result.Metadata.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          result.Body,
		ContentLength: int64(result.Metadata.ResponseBodySize),
		Request:       req,
	}
	if cl := header.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
			resp.ContentLength = n
		}
	}
	return resp
}
