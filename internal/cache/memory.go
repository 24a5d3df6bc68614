package cache

import (
	"context"
	"encoding/json"
	"path"
	"sync"
	"time"
)

type entry struct {
	val []byte
	exp time.Time
}

// Memory is an in-process Cache for tests and cacheless deployments.
// Bounded by maxEntries; expired entries are dropped lazily on read and
// evicted wholesale when the bound is hit.
type Memory struct {
	mu         sync.RWMutex
	data       map[string]entry
	maxEntries int
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]entry), maxEntries: 4096}
}

func (c *Memory) GetJSON(_ context.Context, key string, dest any) bool {
	c.mu.RLock()
	e, ok := c.data[key]
	c.mu.RUnlock()
	if !ok {
		return false
	}
	if !e.exp.IsZero() && time.Now().After(e.exp) {
		c.mu.Lock()
		delete(c.data, key)
		c.mu.Unlock()
		return false
	}
	if err := json.Unmarshal(e.val, dest); err != nil {
		c.mu.Lock()
		delete(c.data, key)
		c.mu.Unlock()
		return false
	}
	return true
}

func (c *Memory) SetJSON(_ context.Context, key string, val any, ttl time.Duration) bool {
	raw, err := json.Marshal(val)
	if err != nil {
		return false
	}
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.data) >= c.maxEntries {
		c.evictExpiredLocked()
		if len(c.data) >= c.maxEntries {
			c.data = make(map[string]entry)
		}
	}
	c.data[key] = entry{val: raw, exp: exp}
	return true
}

func (c *Memory) Delete(_ context.Context, keys ...string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.data, k)
	}
	return true
}

func (c *Memory) DeletePattern(_ context.Context, pattern string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(c.data, k)
			n++
		}
	}
	return n
}

func (c *Memory) Exists(_ context.Context, key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.data[key]
	if !ok {
		return false
	}
	return e.exp.IsZero() || time.Now().Before(e.exp)
}

func (c *Memory) TTL(_ context.Context, key string) time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.data[key]
	if !ok || e.exp.IsZero() {
		return 0
	}
	return time.Until(e.exp)
}

func (c *Memory) Close() error { return nil }

func (c *Memory) evictExpiredLocked() {
	now := time.Now()
	for k, e := range c.data {
		if !e.exp.IsZero() && now.After(e.exp) {
			delete(c.data, k)
		}
	}
}
