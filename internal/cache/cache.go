// Package cache is the advisory in-memory response cache shared by tool and
// resource handlers.
package cache

import (
	"container/list"
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"
)

// Entry is one cached value with its bookkeeping.
type Entry[T any] struct {
	Key        string
	Value      T
	CreatedAt  time.Time
	ExpiresAt  time.Time
	HitCount   int64
	LastAccess time.Time
}

func (e *Entry[T]) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Cache is a TTL cache with least-recently-accessed eviction.
// One mutex guards both the map and the recency list.
type Cache[T any] struct {
	mu         sync.Mutex
	items      map[string]*list.Element
	order      *list.List // front = most recently accessed
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

// Option configures a Cache.
type Option func(*config)

type config struct {
	now func() time.Time
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

// New creates a cache with a default TTL and a capacity. A non-positive
// capacity means unbounded; a non-positive ttl means entries never expire.
func New[T any](ttl time.Duration, maxEntries int, opts ...Option) *Cache[T] {
	cfg := config{now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Cache[T]{
		items:      make(map[string]*list.Element),
		order:      list.New(),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        cfg.now,
	}
}

// MakeKey builds a key from an operation identifier and its parameters.
// Parameters are rendered as canonical JSON, so map order never matters.
func MakeKey(operationID string, params map[string]any) string {
	if len(params) == 0 {
		return operationID + ":{}"
	}
	data, err := json.Marshal(params)
	if err != nil {
		return operationID + ":" + fallbackKey(params)
	}
	return operationID + ":" + string(data)
}

func fallbackKey(params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}

// Get returns a live value and records the access. Expired entries are
// removed on read.
func (c *Cache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	el, ok := c.items[key]
	if !ok {
		return zero, false
	}
	e := el.Value.(*Entry[T])
	now := c.now()
	if e.expired(now) {
		c.removeElement(el)
		return zero, false
	}
	e.HitCount++
	e.LastAccess = now
	c.order.MoveToFront(el)
	return e.Value, true
}

// Set stores value under key. An optional ttl overrides the default. When
// the cache is full the least-recently-accessed entry is evicted first.
func (c *Cache[T]) Set(key string, value T, ttl ...time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d := c.ttl
	if len(ttl) > 0 {
		d = ttl[0]
	}
	now := c.now()
	e := &Entry[T]{Key: key, Value: value, CreatedAt: now, LastAccess: now}
	if d > 0 {
		e.ExpiresAt = now.Add(d)
	}

	if el, exists := c.items[key]; exists {
		el.Value = e
		c.order.MoveToFront(el)
		return
	}

	if c.maxEntries > 0 {
		for c.order.Len() >= c.maxEntries {
			c.removeElement(c.order.Back())
		}
	}
	c.items[key] = c.order.PushFront(e)
}

// Delete removes key.
func (c *Cache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}
}

// Keys returns the live keys in sorted order.
func (c *Cache[T]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	keys := make([]string, 0, len(c.items))
	for key, el := range c.items {
		if !el.Value.(*Entry[T]).expired(now) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of stored entries, expired or not.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Peek returns a copy of the entry bookkeeping without recording an access.
func (c *Cache[T]) Peek(key string) (Entry[T], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return Entry[T]{}, false
	}
	return *el.Value.(*Entry[T]), true
}

// InvalidatePrefix removes every entry whose key starts with prefix and
// returns how many were removed.
func (c *Cache[T]) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for key, el := range c.items {
		if strings.HasPrefix(key, prefix) {
			c.removeElement(el)
			n++
		}
	}
	return n
}

// Sweep removes every expired entry and returns how many were removed.
func (c *Cache[T]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for _, el := range c.items {
		if el.Value.(*Entry[T]).expired(now) {
			c.removeElement(el)
			n++
		}
	}
	return n
}

// StartSweeper sweeps every interval until ctx is done. The returned channel
// is closed when the sweeper has stopped.
func (c *Cache[T]) StartSweeper(ctx context.Context, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	if interval <= 0 {
		close(done)
		return done
	}
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Sweep()
			}
		}
	}()
	return done
}

// removeElement must be called with mu held.
func (c *Cache[T]) removeElement(el *list.Element) {
	e := c.order.Remove(el).(*Entry[T])
	delete(c.items, e.Key)
}
