// Package memory provides the in-process admission window for single-instance
// deployments. State is lost on restart; multi-instance deployments should use
// the postgres backend instead.
package memory

import (
	"context"
	"sync"
	"time"
)

// Store keeps per-key request timestamps guarded by one mutex.
type Store struct {
	mu      sync.Mutex
	entries map[string][]time.Time
	now     func() time.Time
}

// NewStore creates an empty in-memory window.
func NewStore() *Store {
	return &Store{
		entries: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Allow prunes expired timestamps and records the request iff the key is
// under limit. Rejections leave the window untouched.
func (s *Store) Allow(_ context.Context, key string, limit int, period time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	kept := s.prune(key, now, period)
	if len(kept) >= limit {
		return false, nil
	}
	s.entries[key] = append(kept, now)
	return true, nil
}

// Count returns the number of in-window timestamps for key.
func (s *Store) Count(_ context.Context, key string, period time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.prune(key, s.now(), period)
	s.entries[key] = kept
	return len(kept), nil
}

// OldestInWindow returns the oldest retained timestamp, or the zero time when
// the window is empty.
func (s *Store) OldestInWindow(_ context.Context, key string, period time.Duration) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.prune(key, s.now(), period)
	s.entries[key] = kept
	if len(kept) == 0 {
		return time.Time{}, nil
	}
	return kept[0], nil
}

// Reset clears the window for key.
func (s *Store) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// prune drops timestamps older than period. Timestamps are appended in order,
// so the retained slice stays sorted and index 0 is the oldest.
func (s *Store) prune(key string, now time.Time, period time.Duration) []time.Time {
	existing := s.entries[key]
	kept := existing[:0]
	for _, ts := range existing {
		if now.Sub(ts) < period {
			kept = append(kept, ts)
		}
	}
	if len(kept) == 0 {
		delete(s.entries, key)
		return nil
	}
	s.entries[key] = kept
	return kept
}
