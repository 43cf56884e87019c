package main

import (
	"sync"
	"time"
)

// idempotencyCache remembers acknowledged command IDs per user and session so
// a client retry returns the original ack instead of reapplying the command.
// Two users picking the same command ID stay independent.
type idempotencyCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	max     int
	entries map[string]*idempotencyEntry
}

type idempotencyEntry struct {
	ack      AckMessage
	storedAt time.Time
}

func newIdempotencyCache(ttl time.Duration, max int) *idempotencyCache {
	return &idempotencyCache{
		ttl:     ttl,
		max:     max,
		entries: make(map[string]*idempotencyEntry),
	}
}

func idempotencyKey(userUID, sessionUID, commandID string) string {
	return userUID + "\x00" + sessionUID + "\x00" + commandID
}

// Get returns the cached ack for a command ID, expiring stale entries.
func (c *idempotencyCache) Get(userUID, sessionUID, commandID string, now time.Time) (AckMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := idempotencyKey(userUID, sessionUID, commandID)
	entry, ok := c.entries[key]
	if !ok {
		return AckMessage{}, false
	}
	if now.Sub(entry.storedAt) > c.ttl {
		delete(c.entries, key)
		return AckMessage{}, false
	}
	return entry.ack, true
}

// Put stores an ack, evicting expired entries first and then the oldest ones
// past the capacity cap.
func (c *idempotencyCache) Put(userUID, sessionUID, commandID string, ack AckMessage, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range c.entries {
		if now.Sub(entry.storedAt) > c.ttl {
			delete(c.entries, key)
		}
	}
	for len(c.entries) >= c.max {
		oldestKey := ""
		var oldestAt time.Time
		for key, entry := range c.entries {
			if oldestKey == "" || entry.storedAt.Before(oldestAt) {
				oldestKey = key
				oldestAt = entry.storedAt
			}
		}
		delete(c.entries, oldestKey)
	}
	c.entries[idempotencyKey(userUID, sessionUID, commandID)] = &idempotencyEntry{ack: ack, storedAt: now}
}
