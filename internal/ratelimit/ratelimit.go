// Package ratelimit implements spec.md §4.D's sliding 60-second window
// admission control. The mutex-guarded-struct-plus-cleanup-goroutine idiom
// is grounded on toolbridge-api's internal/httpapi/ratelimit.go; the
// admission algorithm itself is not — that file implements a token bucket,
// and aezizhu-universal-model-registry's middleware implements a fixed
// window, neither of which matches the sliding-window-over-a-capped-slice
// algorithm spec.md mandates, so this package's Allow method is a fresh
// implementation of that algorithm in the teacher's structural idiom (see
// DESIGN.md for the full divergence note).
package ratelimit

import (
	"sync"
	"time"

	"github.com/genaibridge/genai-bridge/internal/apierr"
)

// Config mirrors the Config-struct idiom from the teacher's rate limiter:
// one exported struct holding every tunable, with a constructor providing
// sane defaults.
type Config struct {
	MaxPerMinute int
	// IdleTTL is how long a per-key window may sit unused before the
	// cleanup goroutine reclaims it.
	IdleTTL time.Duration
	// CleanupInterval controls how often the cleanup goroutine runs.
	CleanupInterval time.Duration
}

// DefaultConfig returns the spec's baseline: 60 admissions per minute,
// windows idle for an hour are reclaimed, swept every 10 minutes —
// matching the teacher's own cleanup cadence.
func DefaultConfig() Config {
	return Config{
		MaxPerMinute:    60,
		IdleTTL:         time.Hour,
		CleanupInterval: 10 * time.Minute,
	}
}

const window = 60 * time.Second

// slidingWindow holds the bounded slice of recent admission timestamps for
// one key (e.g. one API key or one session), guarded by its own mutex so
// concurrent keys never contend on a single global lock.
type slidingWindow struct {
	mu         sync.Mutex
	timestamps []time.Time // oldest first
	lastTouch  time.Time
}

// Limiter is the top-level component: one per process, holding one
// slidingWindow per key.
type Limiter struct {
	cfg Config

	mu      sync.Mutex
	windows map[string]*slidingWindow

	stopCleanup chan struct{}
}

// New constructs a Limiter and starts its background cleanup goroutine.
func New(cfg Config) *Limiter {
	if cfg.MaxPerMinute <= 0 {
		cfg.MaxPerMinute = DefaultConfig().MaxPerMinute
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultConfig().IdleTTL
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultConfig().CleanupInterval
	}
	l := &Limiter{
		cfg:         cfg,
		windows:     make(map[string]*slidingWindow),
		stopCleanup: make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Stop halts the cleanup goroutine. Safe to call once.
func (l *Limiter) Stop() {
	close(l.stopCleanup)
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep(time.Now())
		case <-l.stopCleanup:
			return
		}
	}
}

func (l *Limiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, w := range l.windows {
		w.mu.Lock()
		idle := now.Sub(w.lastTouch) > l.cfg.IdleTTL
		w.mu.Unlock()
		if idle {
			delete(l.windows, key)
		}
	}
}

func (l *Limiter) windowFor(key string) *slidingWindow {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.windows[key]
	if !ok {
		w = &slidingWindow{}
		l.windows[key] = w
	}
	return w
}

// CheckOrThrow implements spec.md §4.D's local algorithm: drop every
// stored timestamp at or before now-60s; if the remaining count is at the
// limit, reject with RateLimitExceeded; otherwise record now and admit.
// The stored slice is hard-capped at 2*MaxPerMinute, discarding the oldest
// entries first, as a defensive bound on memory regardless of bookkeeping
// bugs upstream.
func (l *Limiter) CheckOrThrow(key string, now time.Time) error {
	w := l.windowFor(key)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastTouch = now

	cutoff := now.Add(-window)
	kept := w.timestamps[:0]
	for _, ts := range w.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	w.timestamps = kept

	if len(w.timestamps) >= l.cfg.MaxPerMinute {
		return &apierr.RateLimitExceeded{MaxPerMinute: l.cfg.MaxPerMinute}
	}

	w.timestamps = append(w.timestamps, now)
	if maxLen := 2 * l.cfg.MaxPerMinute; len(w.timestamps) > maxLen {
		w.timestamps = w.timestamps[len(w.timestamps)-maxLen:]
	}
	return nil
}
