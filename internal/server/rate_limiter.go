// Package server throttles inbound envelopes per connection so one chatty
// session cannot monopolize the hub's fan-out.
package server

import (
	"sync"
	"time"
)

// rateLimiter is a token bucket sized by the gateway's rate_limit config:
// Burst tokens refilled evenly over RefillInterval. Each Client owns one;
// the read pump consumes a token per decoded envelope.
type rateLimiter struct {
	mu        sync.Mutex
	tokens    float64
	capacity  float64
	perSecond float64
	lastCheck time.Time
}

func newRateLimiter(burst int, refill time.Duration) *rateLimiter {
	if burst <= 0 {
		burst = 1
	}
	if refill <= 0 {
		refill = time.Second
	}

	capacity := float64(burst)
	perSecond := capacity / refill.Seconds()
	if perSecond <= 0 {
		perSecond = capacity
	}

	return &rateLimiter{
		tokens:    capacity,
		capacity:  capacity,
		perSecond: perSecond,
		lastCheck: time.Now(),
	}
}

// allow consumes one token, reporting false when the bucket is empty. The
// caller replies with a rate-limit error and keeps the connection open.
func (rl *rateLimiter) allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if elapsed := now.Sub(rl.lastCheck).Seconds(); elapsed > 0 {
		rl.tokens = min(rl.tokens+elapsed*rl.perSecond, rl.capacity)
	}
	rl.lastCheck = now

	if rl.tokens < 1 {
		return false
	}
	rl.tokens--
	return true
}
