package store

import (
	"context"
	"sync"
	"time"

	"cleanplate/internal/establishment/models"
	"cleanplate/internal/platform/metrics"
	"cleanplate/pkg/platform/sentinel"
	"cleanplate/pkg/requestcontext"
)

// ErrNotFound is returned when a record is missing or past its TTL.
var ErrNotFound = sentinel.ErrNotFound

type cachedEstablishment struct {
	record   models.Establishment
	storedAt time.Time
}

// InMemoryCache keeps establishment records in process memory with a TTL.
type InMemoryCache struct {
	mu       sync.RWMutex
	records  map[string]cachedEstablishment
	cacheTTL time.Duration
	metrics  *metrics.Metrics
}

// NewInMemoryCache creates an in-memory cache with the given TTL.
func NewInMemoryCache(cacheTTL time.Duration, m *metrics.Metrics) *InMemoryCache {
	return &InMemoryCache{
		records:  make(map[string]cachedEstablishment),
		cacheTTL: cacheTTL,
		metrics:  m,
	}
}

// Save stores e keyed by its identifier, replacing any older snapshot.
// Records without an identifier are ignored.
func (c *InMemoryCache) Save(ctx context.Context, e models.Establishment) error {
	if e.CAMIS == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[e.CAMIS] = cachedEstablishment{record: e, storedAt: requestcontext.Now(ctx)}
	return nil
}

// Find returns the cached record for camis or ErrNotFound.
func (c *InMemoryCache) Find(ctx context.Context, camis string) (*models.Establishment, error) {
	c.mu.RLock()
	cached, ok := c.records[camis]
	c.mu.RUnlock()

	if ok && requestcontext.Now(ctx).Sub(cached.storedAt) < c.cacheTTL {
		c.metrics.RecordCacheHit("memory")
		record := cached.record
		return &record, nil
	}
	c.metrics.RecordCacheMiss("memory")
	return nil, ErrNotFound
}

// Delete drops the record for camis.
func (c *InMemoryCache) Delete(_ context.Context, camis string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.records, camis)
	return nil
}
