// Package sharedstore is the optional cross-process backend described in
// spec.md §4.F: atomic compare-and-increment and sorted-set admission via
// server-side scripts, keyed by a configurable prefix. A connection
// failure at startup disables the feature and logs a single warning; the
// rate limiter and daily budget both fall back to their local,
// process-only implementations rather than erroring.
package sharedstore

import (
	"context"
	"time"
)

// Store is the abstract interface spec.md §4.F enumerates, trimmed to the
// operations this repository's two consumers (the rate limiter and the
// daily budget) actually need. The only concrete implementation is
// Redis-backed (redis.go); when a Store cannot be constructed or a call
// fails, callers fall back to the process-local implementations in
// internal/ratelimit and internal/budget rather than wrapping this
// interface with a second, local Store.
type Store interface {
	// Get returns the raw string value at key, or ("", false) if absent.
	Get(ctx context.Context, key string) (string, bool, error)

	// IncrBy atomically adds delta to the integer at key (creating it at 0
	// first) and returns the new value.
	IncrBy(ctx context.Context, key string, delta int64) (int64, error)

	// Expire sets a TTL on key; implementations refresh rather than
	// shorten an existing TTL where that distinction matters (budget
	// counters extend their 48h TTL on every commit).
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// SlidingWindowAdmit runs spec.md §4.D's shared rate-limiter script:
	// remove sorted-set members scored at or below cutoff, read the
	// remaining cardinality, and if it is below limit, add a member scored
	// at nowScore and refresh the set's TTL. Returns whether the call was
	// admitted.
	SlidingWindowAdmit(ctx context.Context, key string, cutoff, nowScore float64, member string, limit int, ttl time.Duration) (bool, error)

	// ReserveBudget runs spec.md §4.E's shared reserve script: read the
	// total at key, and if total+n <= max, increment by n and refresh ttl.
	// Returns the new total and whether the reservation was admitted.
	ReserveBudget(ctx context.Context, key string, n, max int64, ttl time.Duration) (newTotal int64, admitted bool, err error)

	// CommitBudget applies delta to the total at key and incr by actual to
	// the per-tool key, refreshing both TTLs, as one transaction.
	CommitBudget(ctx context.Context, totalKey, perToolKey string, delta, actual int64, ttl time.Duration) error

	// Close releases any underlying connection.
	Close() error
}

// Disabled is a typed marker returned by constructors when the shared
// store could not be reached; callers check errors.Is(err, Disabled) to
// decide whether to log-and-fall-back versus treat the error as fatal.
var Disabled = &disabledError{}

type disabledError struct{}

func (*disabledError) Error() string { return "shared limit store unreachable, falling back to local state" }
