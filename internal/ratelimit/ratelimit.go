// Package ratelimit implements a per-chat token bucket limiter for the
// chat gateways. Tokens refill lazily on each Allow call, no background
// goroutines.
package ratelimit

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a chat has exhausted its bucket.
var ErrRateLimited = errors.New("rate limit exceeded")

// Config configures the limiter.
type Config struct {
	RequestsPerMinute int // Tokens added per minute. 0 = unlimited.
	BurstSize         int // Bucket capacity. 0 = RequestsPerMinute.
}

// Limiter keeps an independent token bucket per chat, so one noisy chat
// cannot starve another.
type Limiter struct {
	mu    sync.Mutex
	chats map[int64]*bucket
	rate  float64 // tokens per second
	burst float64
	now   func() time.Time
}

type bucket struct {
	tokens   float64
	lastFill time.Time
}

// New creates a limiter. RequestsPerMinute of 0 disables limiting.
func New(cfg Config) *Limiter {
	burst := cfg.BurstSize
	if burst <= 0 {
		burst = cfg.RequestsPerMinute
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		chats: make(map[int64]*bucket),
		rate:  float64(cfg.RequestsPerMinute) / 60.0,
		burst: float64(burst),
		now:   time.Now,
	}
}

// WithClock overrides the time source. Test hook.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Allow consumes one token from the chat's bucket, refilling first based
// on elapsed time. Returns ErrRateLimited when the bucket is empty.
func (l *Limiter) Allow(chatID int64) error {
	if l.rate <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.chats[chatID]
	if !ok {
		b = &bucket{tokens: l.burst, lastFill: now}
		l.chats[chatID] = b
	}

	b.tokens += now.Sub(b.lastFill).Seconds() * l.rate
	if b.tokens > l.burst {
		b.tokens = l.burst
	}
	b.lastFill = now

	if b.tokens < 1 {
		return ErrRateLimited
	}
	b.tokens--
	return nil
}
