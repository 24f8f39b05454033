// Package store provides CounterStore backends for the admission engine.
//
// Two interchangeable backends are supported:
//   - MemoryStore: in-process sliding windows for single-instance and
//     development deployments
//   - RedisStore: Redis-backed sliding windows shared by every instance of
//     the service
//
// Both satisfy ratelimit.CounterStore identically from the engine's point
// of view.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hotelio/admission/ratelimit"
)

// windowLog is the per-key event log. Timestamps are kept sorted ascending.
type windowLog struct {
	events  []time.Time
	window  time.Duration
	touched time.Time
}

// MemoryStore is an in-memory implementation of ratelimit.CounterStore.
//
// The mutex is held only for the duration of a map mutation, never across
// anything that blocks.
//
// Note: MemoryStore is suitable for single-instance deployments; scaled-out
// services share counters through RedisStore instead.
type MemoryStore struct {
	mu   sync.Mutex
	logs map[string]*windowLog
}

// NewMemory creates a new MemoryStore.
//
// ctx bounds the lifetime of the background cleanup goroutine.
// cleanupInterval is how often idle keys are evicted; pass 0 to disable
// cleanup.
func NewMemory(ctx context.Context, cleanupInterval time.Duration) *MemoryStore {
	s := &MemoryStore{logs: make(map[string]*windowLog)}
	if cleanupInterval > 0 {
		go s.runCleanup(ctx, cleanupInterval)
	}
	return s
}

// Check prunes events older than now-window and reports the remaining count
// against limit. Repeated checks without increments do not change the count.
func (s *MemoryStore) Check(ctx context.Context, key string, limit int64, window time.Duration, now time.Time) (ratelimit.WindowCheckResult, error) {
	if err := ctx.Err(); err != nil {
		return ratelimit.WindowCheckResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res := ratelimit.WindowCheckResult{Limit: limit, ResetAt: now}

	log, ok := s.logs[key]
	if ok {
		log.events = prune(log.events, now.Add(-window))
		res.Current = int64(len(log.events))
		if len(log.events) > 0 {
			res.ResetAt = log.events[0].Add(window)
		}
	}

	res.Remaining = limit - res.Current
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	res.Allowed = res.Current < limit
	return res, nil
}

// Increment appends one event stamped now and returns the updated count.
func (s *MemoryStore) Increment(ctx context.Context, key string, window time.Duration, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	log, ok := s.logs[key]
	if !ok {
		log = &windowLog{}
		s.logs[key] = log
	}
	log.window = window
	log.touched = now

	log.events = prune(log.events, now.Add(-window))
	log.events = append(log.events, now)
	// Appends are near-monotonic; restore order only when a skewed clock
	// hands us an out-of-order stamp.
	if n := len(log.events); n > 1 && log.events[n-1].Before(log.events[n-2]) {
		sort.Slice(log.events, func(i, j int) bool { return log.events[i].Before(log.events[j]) })
	}
	return int64(len(log.events)), nil
}

// Reset discards all events under key.
func (s *MemoryStore) Reset(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.logs, key)
	return nil
}

// prune drops events at or before cutoff. Events are sorted, so this is a
// single search plus re-slice.
func prune(events []time.Time, cutoff time.Time) []time.Time {
	idx := sort.Search(len(events), func(i int) bool {
		return events[i].After(cutoff)
	})
	if idx == 0 {
		return events
	}
	return append(events[:0], events[idx:]...)
}

// runCleanup periodically drops keys that have been idle past their window
// plus the TTL buffer, mirroring the expiry Redis applies automatically.
func (s *MemoryStore) runCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup(time.Now())
		case <-ctx.Done():
			return
		}
	}
}

func (s *MemoryStore) cleanup(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, log := range s.logs {
		if now.Sub(log.touched) > log.window+ratelimit.KeyTTLBuffer {
			delete(s.logs, key)
		}
	}
}
