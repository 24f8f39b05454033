package ratelimit

import (
	"context"
	"time"
)

// WindowCheckResult reports the state of one sliding window at check time.
// It is computed per check and never stored.
type WindowCheckResult struct {
	// Key is the storage key the check ran against.
	Key string
	// Rule is the name of the rule the window belongs to.
	Rule string
	// Kind identifies which of the rule's windows was checked.
	Kind WindowKind

	Limit     int64
	Current   int64
	Remaining int64
	// ResetAt is when the oldest counted event leaves the window. Equal to
	// the check time when the window is empty.
	ResetAt time.Time
	Allowed bool
}

// CounterStore is the sliding-window counting primitive shared by all
// engine instances.
//
// Check and Increment are deliberately two separate store round-trips, not
// one atomic operation: under concurrent requests this can admit slightly
// more than the limit inside a narrow race window. That is an accepted
// tradeoff for abuse mitigation rather than hard quota enforcement; a
// stricter backend may fuse the two calls, but nothing here requires it.
//
// Implementations must be safe for concurrent use and must never assume
// exclusive ownership of a key: Increment only appends a uniquely stamped
// event and refreshes the key's TTL, so it is safe from any number of
// instances at once.
type CounterStore interface {
	// Check drops events older than now-window under key, then reports the
	// remaining count against limit. Aside from that stale-entry cleanup it
	// does not mutate state: repeated checks without increments converge.
	Check(ctx context.Context, key string, limit int64, window time.Duration, now time.Time) (WindowCheckResult, error)

	// Increment records one event stamped now under key, refreshes the
	// key's expiration to window plus a safety buffer, and returns the
	// updated count.
	Increment(ctx context.Context, key string, window time.Duration, now time.Time) (int64, error)

	// Reset discards all events under key. Administrative use only; normal
	// operation relies on TTLs.
	Reset(ctx context.Context, key string) error
}

// KeyTTLBuffer pads every counter key's expiration beyond its window so a
// key is never evicted early under clock skew. Kept at a minute or more.
const KeyTTLBuffer = 60 * time.Second
