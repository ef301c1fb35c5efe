// Package refcache keeps point-in-time snapshots of reference data used to
// validate incoming records, such as the set of known warehouse codes. A
// snapshot is refreshed lazily once its TTL elapses; when the refresh fails
// and a previous snapshot exists, the stale snapshot keeps serving.
package refcache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultTTL is how long a snapshot is served before a refresh is attempted.
const DefaultTTL = 5 * time.Minute

// Source loads the full set of valid keys for one entity type.
type Source interface {
	ListValidKeys(ctx context.Context, entityType string) (map[string]struct{}, error)
}

type snapshot struct {
	keys      map[string]struct{}
	fetchedAt time.Time
}

// Cache serves reference key sets with TTL-based refresh.
type Cache struct {
	source Source
	logger *slog.Logger
	ttl    time.Duration
	now    func() time.Time

	mu        sync.RWMutex
	snapshots map[string]snapshot
}

// New creates a Cache backed by source. A non-positive ttl falls back to
// DefaultTTL.
func New(source Source, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		source:    source,
		logger:    logger,
		ttl:       ttl,
		now:       time.Now,
		snapshots: make(map[string]snapshot),
	}
}

// ValidKeys returns the current key set for entityType. A fresh snapshot is
// served as-is unless forceRefresh is set. An expired snapshot triggers a
// refresh; if the refresh fails the stale snapshot is served and a warning
// logged. With no snapshot at all a failed load is an error, since validating
// against an empty set would reject every record.
func (c *Cache) ValidKeys(ctx context.Context, entityType string, forceRefresh bool) (map[string]struct{}, error) {
	c.mu.RLock()
	snap, ok := c.snapshots[entityType]
	c.mu.RUnlock()

	if ok && !forceRefresh && c.now().Sub(snap.fetchedAt) < c.ttl {
		return snap.keys, nil
	}

	keys, err := c.source.ListValidKeys(ctx, entityType)
	if err != nil {
		if ok {
			c.logger.WarnContext(ctx, "reference data refresh failed, serving stale snapshot",
				slog.String("entity_type", entityType),
				slog.Time("fetched_at", snap.fetchedAt),
				slog.String("error", err.Error()),
			)
			return snap.keys, nil
		}
		return nil, fmt.Errorf("load reference data for %s: %w", entityType, err)
	}

	c.mu.Lock()
	c.snapshots[entityType] = snapshot{keys: keys, fetchedAt: c.now()}
	c.mu.Unlock()

	c.logger.DebugContext(ctx, "reference data refreshed",
		slog.String("entity_type", entityType),
		slog.Int("key_count", len(keys)),
	)

	return keys, nil
}

// Invalidate drops the snapshot for entityType so the next read reloads it.
func (c *Cache) Invalidate(entityType string) {
	c.mu.Lock()
	delete(c.snapshots, entityType)
	c.mu.Unlock()
}
