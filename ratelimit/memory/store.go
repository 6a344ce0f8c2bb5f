package memory

import (
	"context"
	"sort"
	"sync"
	"time"
)

/* In-process fallback counter store.
 * Used while the shared Redis store is unreachable. Bounded: when an insert
 * of a new key would exceed MaxEntries, the 10% of entries expiring soonest
 * are evicted first — an approximation of LRU using only the resetAt data
 * already tracked. A periodic sweep drops entries whose window ended more
 * than a grace period ago, so keys that are never revisited cannot
 * accumulate.
 *
 * Per-instance state: in a horizontally scaled deployment each instance
 * enforces degraded limits independently, so the aggregate limit during an
 * outage is perInstanceLimit x instanceCount.
 */

const (
	// DefaultMaxEntries bounds the fallback map.
	DefaultMaxEntries = 10000

	// SweepGrace is how long past its resetAt an entry may linger before
	// the sweep removes it.
	SweepGrace = 60 * time.Second

	// evictFraction of entries removed when the bound is hit.
	evictFraction = 0.10
)

type entry struct {
	count   int64
	resetAt time.Time
}

type Store struct {
	mu         sync.Mutex
	entries    map[string]entry
	maxEntries int
	now        func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithMaxEntries overrides the entry bound.
func WithMaxEntries(n int) Option {
	return func(s *Store) { s.maxEntries = n }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a bounded in-memory counter store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		entries:    make(map[string]entry),
		maxEntries: DefaultMaxEntries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Incr increments the counter for key, starting a new window when the key
// is absent or its window has elapsed. It never fails.
func (s *Store) Incr(_ context.Context, key string, window time.Duration) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	e, ok := s.entries[key]
	if !ok || now.After(e.resetAt) {
		if !ok && len(s.entries) >= s.maxEntries {
			s.evictOldest()
		}
		e = entry{count: 1, resetAt: now.Add(window)}
		s.entries[key] = e
		return e.count, e.resetAt, nil
	}

	e.count++
	s.entries[key] = e
	return e.count, e.resetAt, nil
}

// Len returns the number of tracked entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep removes entries whose window ended more than SweepGrace ago and
// returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-SweepGrace)
	removed := 0
	for key, e := range s.entries {
		if e.resetAt.Before(cutoff) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// StartSweeper runs Sweep on the given interval until ctx is cancelled.
func (s *Store) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
}

// evictOldest removes the 10% of entries with the smallest resetAt.
// Caller must hold the lock.
func (s *Store) evictOldest() {
	n := int(float64(len(s.entries)) * evictFraction)
	if n < 1 {
		n = 1
	}

	type keyed struct {
		key     string
		resetAt time.Time
	}
	snapshot := make([]keyed, 0, len(s.entries))
	for key, e := range s.entries {
		snapshot = append(snapshot, keyed{key: key, resetAt: e.resetAt})
	}

	sort.Slice(snapshot, func(i, j int) bool {
		return snapshot[i].resetAt.Before(snapshot[j].resetAt)
	})

	for i := 0; i < n && i < len(snapshot); i++ {
		delete(s.entries, snapshot[i].key)
	}
}
