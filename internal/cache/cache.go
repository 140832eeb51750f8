// Package cache time-boxes read-only API responses so dashboards and
// role-based views do not re-fetch slow-changing aggregates on every
// render. Expiry is enforced lazily at read time; the periodic sweep only
// reclaims space.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"stayline/internal/common"
	"stayline/internal/logging"
	"stayline/internal/models"
	"stayline/internal/store"
)

// Fetcher performs the actual network read on a miss.
type Fetcher interface {
	Fetch(ctx context.Context, method, path string, query url.Values, headers map[string]string) ([]byte, error)
}

// RequestDescriptor identifies a cacheable read. Two descriptors with the
// same method, path, query and headers map to the same cache key.
type RequestDescriptor struct {
	Method  string
	Path    string
	Query   url.Values
	Headers map[string]string
}

// Key derives the deterministic cache key for the descriptor.
func (d RequestDescriptor) Key() string {
	method := d.Method
	if method == "" {
		method = http.MethodGet
	}

	var b strings.Builder
	b.WriteString(method)
	b.WriteByte('\n')
	b.WriteString(d.Path)
	b.WriteByte('\n')
	b.WriteString(d.Query.Encode()) // Encode sorts keys
	b.WriteByte('\n')

	keys := make([]string, 0, len(d.Headers))
	for k := range d.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(d.Headers[k])
		b.WriteByte('\n')
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Cache is the client response cache over the store's cache table.
type Cache struct {
	store   *store.Store
	fetcher Fetcher
	log     logging.Logger
	now     func() time.Time
}

func New(st *store.Store, fetcher Fetcher, log logging.Logger) *Cache {
	return &Cache{
		store:   st,
		fetcher: fetcher,
		log:     log.With("component", "cache"),
		now:     time.Now,
	}
}

// FetchCached returns the cached response when fresh, otherwise performs
// the network read and stores the result with expiry = now + ttl. Only
// idempotent reads are cacheable: any non-GET method passes straight
// through, never cached. Concurrent callers missing on the same key each
// do their own network read; the worst case is redundant work.
func (c *Cache) FetchCached(ctx context.Context, desc RequestDescriptor, ttl time.Duration) ([]byte, error) {
	method := desc.Method
	if method == "" {
		method = http.MethodGet
	}
	if method != http.MethodGet {
		return c.fetcher.Fetch(ctx, method, desc.Path, desc.Query, desc.Headers)
	}

	key := desc.Key()
	now := c.now().UTC()

	entry, err := c.store.CacheGet(ctx, key)
	switch {
	case err == nil:
		if !entry.Expired(now) {
			return entry.Data, nil
		}
		// lazy eviction of the stale entry
		if err := c.store.CacheDelete(ctx, key); err != nil {
			c.log.Warn(ctx, "stale entry not evicted", "key", key, "error", err)
		}
	case errors.Is(err, common.ErrNotFound):
		// miss
	case errors.Is(err, common.ErrStorageUnavailable):
		// degrade to a plain network read
		c.log.Warn(ctx, "cache unavailable, fetching directly", "error", err)
	default:
		return nil, err
	}

	data, err := c.fetcher.Fetch(ctx, method, desc.Path, desc.Query, desc.Headers)
	if err != nil {
		// no fallback to stale data beyond the ttl window
		return nil, err
	}

	if err := c.store.CachePut(ctx, &models.CacheEntry{
		Key:       key,
		Data:      data,
		Timestamp: now,
		Expiry:    now.Add(ttl),
	}); err != nil {
		c.log.Warn(ctx, "response not cached", "key", key, "error", err)
	}
	return data, nil
}

// Invalidate drops the entry for the descriptor, if any.
func (c *Cache) Invalidate(ctx context.Context, desc RequestDescriptor) error {
	return c.store.CacheDelete(ctx, desc.Key())
}

// StartSweeper reclaims expired entries every interval until ctx is done.
// Correctness never depends on it running.
func (c *Cache) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := c.store.CacheSweep(ctx, c.now().UTC())
				if err != nil {
					c.log.Warn(ctx, "cache sweep failed", "error", err)
					continue
				}
				if n > 0 {
					c.log.Debug(ctx, "cache sweep", "evicted", n)
				}
			}
		}
	}()
}
