// ABOUTME: In-process fixed-window rate limiter
// ABOUTME: Suitable for a single gateway instance; state is lost on restart

package ratelimit

import (
	"context"
	"sync"
	"time"
)

const sweepInterval = 5 * time.Minute

type window struct {
	count int
	end   time.Time
}

// MemoryLimiter keeps per-key windows in a map swept by a background goroutine.
type MemoryLimiter struct {
	mu      sync.Mutex
	entries map[string]window
	now     func() time.Time
	stopCh  chan struct{}
	once    sync.Once
}

var _ Limiter = (*MemoryLimiter)(nil)

// NewMemoryLimiter creates a limiter and starts its sweeper.
func NewMemoryLimiter() *MemoryLimiter {
	rl := &MemoryLimiter{
		entries: make(map[string]window),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	go rl.sweepLoop()
	return rl
}

// Allow implements Limiter.
func (rl *MemoryLimiter) Allow(_ context.Context, key string, limit int, win time.Duration) Decision {
	if limit <= 0 {
		return Decision{Allowed: true}
	}
	if win <= 0 {
		win = DefaultWindow
	}
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	state, ok := rl.entries[key]
	if !ok || !now.Before(state.end) {
		state = window{count: 1, end: now.Add(win)}
		rl.entries[key] = state
		return Decision{Allowed: true, Count: 1, Limit: limit, WindowEnd: state.end}
	}
	if state.count >= limit {
		return Decision{Allowed: false, Count: state.count, Limit: limit, WindowEnd: state.end}
	}
	state.count++
	rl.entries[key] = state
	return Decision{Allowed: true, Count: state.count, Limit: limit, WindowEnd: state.end}
}

func (rl *MemoryLimiter) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.sweep(rl.now())
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *MemoryLimiter) sweep(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, state := range rl.entries {
		if !now.Before(state.end) {
			delete(rl.entries, key)
		}
	}
}

// Close stops the sweeper. Safe to call more than once.
func (rl *MemoryLimiter) Close() error {
	rl.once.Do(func() {
		close(rl.stopCh)
	})
	return nil
}
