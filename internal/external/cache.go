package external

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// ttlCache is a thread-safe map whose entries expire after ttl. When it
// holds maxEntries, expired entries are swept before inserting; if none
// expired, the oldest insertion is dropped.
type ttlCache[V any] struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	clock      clockwork.Clock
	entries    map[string]ttlEntry[V]
}

type ttlEntry[V any] struct {
	value    V
	storedAt time.Time
}

func newTTLCache[V any](ttl time.Duration, maxEntries int, clock clockwork.Clock) *ttlCache[V] {
	return &ttlCache[V]{
		ttl:        ttl,
		maxEntries: maxEntries,
		clock:      clock,
		entries:    make(map[string]ttlEntry[V]),
	}
}

func (c *ttlCache[V]) get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || c.clock.Since(e.storedAt) >= c.ttl {
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *ttlCache[V]) put(key string, value V) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.sweep()
	}
	c.entries[key] = ttlEntry[V]{value: value, storedAt: c.clock.Now()}
}

func (c *ttlCache[V]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// sweep must be called with mu held.
func (c *ttlCache[V]) sweep() {
	var oldestKey string
	var oldest time.Time
	for k, e := range c.entries {
		if c.clock.Since(e.storedAt) >= c.ttl {
			delete(c.entries, k)
			continue
		}
		if oldestKey == "" || e.storedAt.Before(oldest) {
			oldestKey, oldest = k, e.storedAt
		}
	}
	if len(c.entries) >= c.maxEntries && oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
