package realtime

import (
	"sync"
	"time"
)

// RateLimiter is a sliding-window limiter for a single caller.
type RateLimiter struct {
	mu     sync.Mutex
	events []time.Time
	limit  int
	window time.Duration
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = rateLimitEvents
	}
	if window <= 0 {
		window = rateLimitWindow
	}
	return &RateLimiter{
		events: make([]time.Time, 0, limit),
		limit:  limit,
		window: window,
	}
}

// Allow records an event at now if the window has room.
func (r *RateLimiter) Allow(now time.Time) bool {
	ok, _ := r.allow(now)
	return ok
}

// allow also returns how long until the oldest event leaves the window.
func (r *RateLimiter) allow(now time.Time) (bool, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prune(now)
	if len(r.events) >= r.limit {
		return false, r.events[0].Add(r.window).Sub(now)
	}
	r.events = append(r.events, now)
	return true, 0
}

func (r *RateLimiter) prune(now time.Time) {
	cut := now.Add(-r.window)
	i := 0
	for i < len(r.events) && !r.events[i].After(cut) {
		i++
	}
	r.events = append(r.events[:0], r.events[i:]...)
}

func (r *RateLimiter) idle(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prune(now)
	return len(r.events) == 0
}

// KeyedLimiter keeps one RateLimiter per key (client IP for login throttling).
type KeyedLimiter struct {
	mu       sync.Mutex
	limit    int
	window   time.Duration
	limiters map[string]*RateLimiter
	lastGC   time.Time
}

func NewKeyedLimiter(limit int, window time.Duration) *KeyedLimiter {
	if limit <= 0 {
		limit = rateLimitEvents
	}
	if window <= 0 {
		window = rateLimitWindow
	}
	return &KeyedLimiter{limit: limit, window: window, limiters: make(map[string]*RateLimiter)}
}

// Allow reports whether key may proceed, and if not, how long to wait.
func (k *KeyedLimiter) Allow(key string, now time.Time) (bool, time.Duration) {
	k.mu.Lock()
	if now.Sub(k.lastGC) > k.window {
		for id, l := range k.limiters {
			if l.idle(now) {
				delete(k.limiters, id)
			}
		}
		k.lastGC = now
	}
	l := k.limiters[key]
	if l == nil {
		l = NewRateLimiter(k.limit, k.window)
		k.limiters[key] = l
	}
	k.mu.Unlock()

	return l.allow(now)
}
