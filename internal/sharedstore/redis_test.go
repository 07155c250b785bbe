package sharedstore

import (
	"context"
	"errors"
	"testing"
	"time"
)

var _ Store = (*RedisStore)(nil)

func TestNewRedisStoreReturnsDisabledWhenUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewRedisStore(ctx, "redis://127.0.0.1:1", "genai-bridge", 100*time.Millisecond)
	if !errors.Is(err, Disabled) {
		t.Fatalf("expected Disabled, got %v", err)
	}
}

func TestNewRedisStoreFallsBackOnUnparsableAddr(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Not a redis:// URL; NewRedisStore should still attempt a plain-addr
	// dial rather than erroring on the URL parse itself.
	_, err := NewRedisStore(ctx, "127.0.0.1:1", "genai-bridge", 100*time.Millisecond)
	if !errors.Is(err, Disabled) {
		t.Fatalf("expected Disabled, got %v", err)
	}
}
