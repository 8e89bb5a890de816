// rate_limiter.go
// ----------------
// This file defines the RateLimiter type, a local sliding-window throttle on
// outbound calls. It is independent of any rate-limit signal the remote
// service returns: the limiter keeps the process from sending too fast, while
// the 429 classification path reacts after the remote says "too fast".
//
// Responsibilities:
// - Keeping the timestamps of recent calls, pruned on every check.
// - Letting a call through immediately while the window has capacity.
// - Blocking the calling goroutine (only) until the oldest timestamp leaves
//   the window when capacity is exhausted.
package relaykit

import (
	"context"
	"sync"
	"time"
)

// RateLimiter bounds calls to at most max per sliding window. The zero value
// is not usable; construct with NewRateLimiter.
type RateLimiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	calls  []time.Time

	now func() time.Time
}

// NewRateLimiter returns a limiter allowing max calls per window.
func NewRateLimiter(max int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		max:    max,
		window: window,
		now:    time.Now,
	}
}

// Allow blocks until the call may proceed, then records it. The wait is
// interruptible: if ctx is done before capacity frees up, the ctx error is
// returned and no call is recorded.
func (r *RateLimiter) Allow(ctx context.Context) error {
	for {
		wait, ok := r.tryAcquire()
		if ok {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// tryAcquire is the prune-then-check-then-record step. It records the call
// and returns ok when the window has capacity; otherwise it returns how long
// until the oldest recorded call exits the window.
func (r *RateLimiter) tryAcquire() (wait time.Duration, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cutoff := now.Add(-r.window)
	kept := r.calls[:0]
	for _, t := range r.calls {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	r.calls = kept

	if len(r.calls) < r.max {
		r.calls = append(r.calls, now)
		return 0, true
	}

	return r.calls[0].Add(r.window).Sub(now), false
}
