// ABOUTME: Thread-safe TTL cache of pending OAuth login attempts
// ABOUTME: Maps a state value to its PKCE verifier and hands it out exactly once

package oauth

import (
	"container/list"
	"sync"
	"time"
)

// stateEntry stores the verifier, creation time, and list element for a state.
type stateEntry struct {
	verifier  string
	timestamp time.Time
	element   *list.Element
}

// StateCache is a TTL-based, size-limited store of pending login attempts.
// Each state can be taken once; replaying a callback finds nothing.
// Uses a doubly-linked list to maintain insertion order for O(1) eviction.
type StateCache struct {
	mu      sync.Mutex
	pending map[string]*stateEntry
	order   *list.List // states in insertion order (oldest at front)
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// NewStateCache creates a cache with the given TTL and maximum size.
// A background goroutine periodically removes expired entries.
func NewStateCache(ttl time.Duration, maxSize int) *StateCache {
	c := &StateCache{
		pending: make(map[string]*stateEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Put records a pending login. If the cache is at capacity the oldest attempt
// is evicted to make room.
func (c *StateCache) Put(state, verifier string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, exists := c.pending[state]; exists {
		entry.verifier = verifier
		entry.timestamp = c.now()
		c.order.MoveToBack(entry.element)
		return
	}

	if c.maxSize > 0 && len(c.pending) >= c.maxSize {
		c.evictOldest()
	}

	elem := c.order.PushBack(state)
	c.pending[state] = &stateEntry{
		verifier:  verifier,
		timestamp: c.now(),
		element:   elem,
	}
}

// Take removes the state and returns its verifier. ok is false if the state
// is unknown, already taken, or expired.
func (c *StateCache) Take(state string) (verifier string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.pending[state]
	if !exists {
		return "", false
	}
	c.order.Remove(entry.element)
	delete(c.pending, state)

	if c.now().Sub(entry.timestamp) >= c.ttl {
		return "", false
	}
	return entry.verifier, true
}

// Len returns the number of pending attempts, including expired ones not yet swept.
func (c *StateCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// evictOldest removes the oldest entry. Must be called with mu held.
func (c *StateCache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}

	state, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.pending, state)
}

// cleanup runs in a background goroutine, periodically removing expired entries.
func (c *StateCache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runCleanup()
		case <-c.done:
			return
		}
	}
}

// runCleanup removes all expired entries. Entries are in insertion order, so
// the sweep stops at the first live one.
func (c *StateCache) runCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for e := c.order.Front(); e != nil; {
		state, _ := e.Value.(string)
		entry := c.pending[state]
		if now.Sub(entry.timestamp) < c.ttl {
			return
		}
		next := e.Next()
		c.order.Remove(e)
		delete(c.pending, state)
		e = next
	}
}

// Close stops the background cleanup goroutine. It is safe to call multiple times.
func (c *StateCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
