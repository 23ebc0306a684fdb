// Package ratelimit implements the fixed-window per-user request limiter.
//
// This is deliberately a fixed window, not a sliding one: a burst straddling
// a window boundary can briefly see up to twice the cap. That imprecision is
// accepted in exchange for O(1) state per user.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultLimit is the number of requests allowed per owner per window
	// when no explicit limit is configured.
	DefaultLimit = 50

	// DefaultWindow is the window length when none is configured.
	DefaultWindow = time.Hour

	// DefaultPruneInterval is the cadence of the background bucket prune.
	DefaultPruneInterval = time.Minute
)

// Result reports the outcome of a single Check call.
type Result struct {
	// Allowed is true when the request may proceed.
	Allowed bool
	// Remaining is the number of requests the owner can still make in the
	// current window, after this decision. Never negative.
	Remaining int
	// ResetAt is when the current window ends and the counter resets.
	ResetAt time.Time
}

type window struct {
	count   int
	resetAt time.Time
}

// Limiter is a fixed-window request counter keyed by owner. It is safe for
// concurrent use from multiple goroutines.
type Limiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	buckets map[string]*window

	stopPrune context.CancelFunc
	pruneDone chan struct{}

	// now is injectable for tests; defaults to time.Now.
	now func() time.Time
}

// New returns a Limiter allowing at most limit requests per owner within
// each window. Non-positive arguments fall back to the defaults.
func New(limit int, windowLen time.Duration) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if windowLen <= 0 {
		windowLen = DefaultWindow
	}
	return &Limiter{
		limit:   limit,
		window:  windowLen,
		buckets: make(map[string]*window),
		now:     time.Now,
	}
}

// Check evaluates and records one request for ownerKey. A fresh window is
// opened when the owner is unseen or the previous window has lapsed. Below
// the cap the request is allowed and counted; at the cap it is denied
// without counting.
func (l *Limiter) Check(ownerKey string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	b, ok := l.buckets[ownerKey]
	if !ok || now.After(b.resetAt) {
		b = &window{resetAt: now.Add(l.window)}
		l.buckets[ownerKey] = b
	}

	res := Result{ResetAt: b.resetAt}
	if b.count < l.limit {
		b.count++
		res.Allowed = true
	}
	res.Remaining = l.limit - b.count
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	return res
}

// Prune drops buckets whose window has already ended. StartPruner runs it
// periodically so the map does not grow without bound for one-off senders.
func (l *Limiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, b := range l.buckets {
		if now.After(b.resetAt) {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// StartPruner launches the background bucket-eviction goroutine. Call
// StopPruner (or cancel ctx) to stop it; starting twice is a no-op.
// Non-positive intervals fall back to DefaultPruneInterval.
func (l *Limiter) StartPruner(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultPruneInterval
	}

	l.mu.Lock()
	if l.stopPrune != nil {
		l.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	l.stopPrune = cancel
	l.pruneDone = make(chan struct{})
	l.mu.Unlock()

	go func() {
		defer close(l.pruneDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := l.Prune(); removed > 0 {
					slog.Debug("rate-limit prune evicted lapsed buckets", "removed", removed)
				}
			}
		}
	}()
}

// StopPruner stops the background pruner and waits for it to exit. Safe to
// call when the pruner was never started.
func (l *Limiter) StopPruner() {
	l.mu.Lock()
	cancel := l.stopPrune
	done := l.pruneDone
	l.stopPrune = nil
	l.pruneDone = nil
	l.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}
