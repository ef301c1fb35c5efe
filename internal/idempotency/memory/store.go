// Package memory provides the in-process idempotency store. Keys do not
// survive a restart, which is acceptable for single-instance deployments
// where a restart also drops any in-flight duplicate deliveries.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/steadyops/ingestd/internal/ingest/ports"
)

// Store retains cached write outcomes for replaying duplicate requests.
type Store struct {
	mu    sync.RWMutex
	items map[string]ports.StoredResponse
	now   func() time.Time
}

// NewStore creates a new in-memory idempotency store.
func NewStore() *Store {
	return &Store{
		items: make(map[string]ports.StoredResponse),
		now:   time.Now,
	}
}

// GetIfFresh returns the stored response for key when present and unexpired.
func (s *Store) GetIfFresh(_ context.Context, key string) (*ports.StoredResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.items[key]
	if !ok {
		return nil, nil
	}
	if !s.now().Before(value.ExpiresAt) {
		return nil, nil
	}

	copied := value
	copied.Body = append([]byte(nil), value.Body...)
	return &copied, nil
}

// InsertIfAbsent stores response unless the key already exists. The first
// writer wins; losing the race is silent, matching the store contract.
func (s *Store) InsertIfAbsent(_ context.Context, key string, response ports.StoredResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[key]; ok {
		return nil
	}
	response.Body = append([]byte(nil), response.Body...)
	s.items[key] = response
	return nil
}

// DeleteExpired removes records whose expiry is before olderThan.
func (s *Store) DeleteExpired(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for key, value := range s.items {
		if value.ExpiresAt.Before(olderThan) {
			delete(s.items, key)
			deleted++
		}
	}
	return deleted, nil
}

// Stats aggregates key counts.
func (s *Store) Stats(_ context.Context) (ports.IdempotencyStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	stats := ports.IdempotencyStats{}
	for _, value := range s.items {
		stats.Total++
		if now.Before(value.ExpiresAt) {
			stats.Active++
		}
		switch value.Outcome {
		case ports.OutcomeCompleted:
			stats.Completed++
		case ports.OutcomeFailed:
			stats.Failed++
		}
	}
	return stats, nil
}
