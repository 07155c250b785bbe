package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/genaibridge/genai-bridge/internal/apierr"
	"github.com/genaibridge/genai-bridge/internal/sharedstore"
)

// sharedTTL is applied to the sorted set backing a key so abandoned keys
// self-clean even if the member-removal script is never hit again.
const sharedTTL = 120 * time.Second

// Checker is the interface the pipeline holds instead of a concrete
// *Limiter, so a cross-process SharedChecker can stand in for the local
// sliding-window Limiter without the pipeline caring which one it has.
type Checker interface {
	CheckOrThrow(ctx context.Context, key string, now time.Time) error
}

// LocalChecker adapts *Limiter to Checker. The local limiter never blocks
// on I/O, so it simply ignores ctx.
type LocalChecker struct{ *Limiter }

func (c LocalChecker) CheckOrThrow(_ context.Context, key string, now time.Time) error {
	return c.Limiter.CheckOrThrow(key, now)
}

// SharedChecker enforces the same contract as Limiter.CheckOrThrow but
// against a cross-process sharedstore.Store, per spec.md §4.D's shared
// algorithm: trim members scored at or before the cutoff, read
// cardinality, reject at the limit, else add a (now, uuid) member and
// refresh the TTL. The uuid suffix avoids score collisions within the same
// millisecond across processes.
type SharedChecker struct {
	store        sharedstore.Store
	prefix       string
	maxPerMinute int
}

// NewSharedChecker builds a SharedChecker over store, namespacing every
// key under prefix (e.g. "genai-bridge").
func NewSharedChecker(store sharedstore.Store, prefix string, maxPerMinute int) *SharedChecker {
	return &SharedChecker{store: store, prefix: prefix, maxPerMinute: maxPerMinute}
}

func (s *SharedChecker) key(id string) string {
	return fmt.Sprintf("%s:ratelimit:%s", s.prefix, id)
}

// CheckOrThrow performs the remove-cutoff/cardinality/add sequence as one
// atomic script via the store, so no client ever observes a racing
// read-then-write against the sorted set.
func (s *SharedChecker) CheckOrThrow(ctx context.Context, id string, now time.Time) error {
	key := s.key(id)
	cutoff := float64(now.Add(-window).UnixMilli())
	member := fmt.Sprintf("%d:%s", now.UnixMilli(), uuid.NewString())

	admitted, err := s.store.SlidingWindowAdmit(ctx, key, cutoff, float64(now.UnixMilli()), member, s.maxPerMinute, sharedTTL)
	if err != nil {
		return err
	}
	if !admitted {
		return &apierr.RateLimitExceeded{MaxPerMinute: s.maxPerMinute}
	}
	return nil
}
