package main

import (
	"sync"
	"time"
)

// rateLimiter is a sliding-window command limiter keyed by connection.
type rateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	hits   []time.Time
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{limit: limit, window: window}
}

// Allow records one command attempt and reports whether it fits the window.
func (r *rateLimiter) Allow(now time.Time) bool {
	if r.limit <= 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.Add(-r.window)
	kept := r.hits[:0]
	for _, hit := range r.hits {
		if hit.After(cutoff) {
			kept = append(kept, hit)
		}
	}
	r.hits = kept

	if len(r.hits) >= r.limit {
		return false
	}
	r.hits = append(r.hits, now)
	return true
}
