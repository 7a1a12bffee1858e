package ratelimit

import (
	"context"
	"sync"
	"time"
)

// TokenLimiter enforces a tokens-per-minute budget with a sliding window
// refill. It complements the request-rate limiter for providers that bill
// by token.
type TokenLimiter struct {
	mu           sync.Mutex
	maxPerMinute int
	remaining    int
	windowStart  time.Time
}

// NewTokenLimiter creates a limiter with the given per-minute budget.
func NewTokenLimiter(maxPerMinute int) *TokenLimiter {
	return &TokenLimiter{
		maxPerMinute: maxPerMinute,
		remaining:    maxPerMinute,
		windowStart:  time.Now(),
	}
}

// GetRemaining returns the tokens left in the current window.
func (l *TokenLimiter) GetRemaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill()
	return l.remaining
}

// Wait blocks until the budget can cover n tokens or the context is done.
func (l *TokenLimiter) Wait(ctx context.Context, n int) error {
	if n > l.maxPerMinute {
		n = l.maxPerMinute
	}
	for {
		l.mu.Lock()
		l.refill()
		if l.remaining >= n {
			l.remaining -= n
			l.mu.Unlock()
			return nil
		}
		wait := time.Minute - time.Since(l.windowStart)
		l.mu.Unlock()

		if wait <= 0 {
			wait = time.Second
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (l *TokenLimiter) refill() {
	if time.Since(l.windowStart) >= time.Minute {
		l.remaining = l.maxPerMinute
		l.windowStart = time.Now()
	}
}
