package ratelimit

import (
	"context"
	"testing"
	"time"
)

// fakeStore is a minimal in-process stand-in for sharedstore.Store that
// only implements the sorted-set admission script, sufficient to exercise
// SharedChecker without a real Redis server.
type fakeStore struct {
	members map[string]float64
}

func newFakeStore() *fakeStore { return &fakeStore{members: map[string]float64{}} }

func (f *fakeStore) Get(ctx context.Context, key string) (string, bool, error) { return "", false, nil }
func (f *fakeStore) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	return 0, nil
}
func (f *fakeStore) Expire(ctx context.Context, key string, ttl time.Duration) error { return nil }

func (f *fakeStore) SlidingWindowAdmit(ctx context.Context, key string, cutoff, nowScore float64, member string, limit int, ttl time.Duration) (bool, error) {
	for m, score := range f.members {
		if score <= cutoff {
			delete(f.members, m)
		}
	}
	if len(f.members) >= limit {
		return false, nil
	}
	f.members[member] = nowScore
	return true, nil
}

func (f *fakeStore) ReserveBudget(ctx context.Context, key string, n, max int64, ttl time.Duration) (int64, bool, error) {
	return 0, false, nil
}
func (f *fakeStore) CommitBudget(ctx context.Context, totalKey, perToolKey string, delta, actual int64, ttl time.Duration) error {
	return nil
}
func (f *fakeStore) Close() error { return nil }

func TestSharedCheckerAdmitsUpToLimit(t *testing.T) {
	store := newFakeStore()
	checker := NewSharedChecker(store, "test", 2)

	now := time.Now()
	if err := checker.CheckOrThrow(context.Background(), "tenant-a", now); err != nil {
		t.Fatalf("call 1: unexpected error: %v", err)
	}
	if err := checker.CheckOrThrow(context.Background(), "tenant-a", now); err != nil {
		t.Fatalf("call 2: unexpected error: %v", err)
	}
	if err := checker.CheckOrThrow(context.Background(), "tenant-a", now); err == nil {
		t.Fatal("expected 3rd call to be rejected")
	}
}
