package validation

import (
	"sync"
	"time"
)

// RateLimiter enforces a sliding-window cap on completed transactions per
// identity.
type RateLimiter struct {
	mu     sync.Mutex
	events map[string][]time.Time
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRateLimiter creates a limiter allowing limit events per window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		events: make(map[string][]time.Time),
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Reserve claims a slot for the identity in one step: the check and the
// recording happen under the same lock, so concurrent callers can never
// exceed the cap between them. When the cap is hit it returns the remaining
// cool-down until the oldest in-window event expires.
func (r *RateLimiter) Reserve(identity string) (bool, time.Duration) {
	if r.limit <= 0 {
		return true, 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	kept := r.prune(identity, now)
	if len(kept) < r.limit {
		r.events[identity] = append(kept, now)
		return true, 0
	}

	retryAfter := kept[0].Add(r.window).Sub(now)
	if retryAfter < 0 {
		retryAfter = 0
	}
	return false, retryAfter
}

// Release gives back the identity's most recent slot. Called when the
// reserved operation fails, so only stored transactions count.
func (r *RateLimiter) Release(identity string) {
	if r.limit <= 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	events := r.events[identity]
	if len(events) == 0 {
		return
	}
	if len(events) == 1 {
		delete(r.events, identity)
		return
	}
	r.events[identity] = events[:len(events)-1]
}

// Reset drops all tracked identities.
func (r *RateLimiter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = make(map[string][]time.Time)
}

// prune drops events outside the window; caller holds the lock.
func (r *RateLimiter) prune(identity string, now time.Time) []time.Time {
	cutoff := now.Add(-r.window)
	events := r.events[identity]
	kept := events[:0]
	for _, t := range events {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		delete(r.events, identity)
		return nil
	}
	r.events[identity] = kept
	return kept
}
