package router

import (
	"sync"
	"time"
)

const (
	defaultLimit  = 100
	defaultWindow = time.Minute
)

// RateLimiter implements fixed-window per-connection rate limiting
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	clients map[string]*ClientLimit
	now     func() time.Time
}

// ClientLimit tracks the current window for one connection
type ClientLimit struct {
	messageCount int
	windowStart  time.Time
}

// NewRateLimiter allows 100 messages per minute per connection
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		limit:   defaultLimit,
		window:  defaultWindow,
		clients: make(map[string]*ClientLimit),
		now:     time.Now,
	}
}

// Allow records one message from connID and reports whether it is within the limit
func (rl *RateLimiter) Allow(connID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()

	limit, exists := rl.clients[connID]
	if !exists {
		rl.clients[connID] = &ClientLimit{
			messageCount: 1,
			windowStart:  now,
		}
		return true
	}

	if now.Sub(limit.windowStart) >= rl.window {
		limit.messageCount = 1
		limit.windowStart = now
		return true
	}

	if limit.messageCount >= rl.limit {
		return false
	}

	limit.messageCount++
	return true
}

// Forget removes connID's window immediately
func (rl *RateLimiter) Forget(connID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.clients, connID)
}

// Cleanup removes windows idle for more than five windows
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for connID, limit := range rl.clients {
		if now.Sub(limit.windowStart) > 5*rl.window {
			delete(rl.clients, connID)
		}
	}
}

// Size returns the number of tracked connections
func (rl *RateLimiter) Size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}
