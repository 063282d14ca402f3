package quota

import (
	"hash/fnv"
	"sync"
	"time"
)

// shardCount spreads principals across locks to keep contention low
// under high request volume. Power of two so the hash masks cleanly.
const shardCount = 32

// counters is the per-principal cache entry. All reads and writes go
// through mu so concurrent requests never lose increments; the lock is
// per principal, so unrelated principals never contend.
type counters struct {
	mu sync.Mutex

	// monthAnchor is the UTC month start the monthly counter belongs
	// to. A rollover resets the counter.
	monthAnchor time.Time

	monthly int64
	hourly  int64

	// pending is weight recorded in-process but not yet confirmed
	// durable. Refreshes add it on top of the store sum so counters
	// never move backwards while a flush is in flight.
	pending int64

	refreshedAt time.Time
	touchedAt   time.Time
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]*counters
}

// counterCache is the process-wide usage counter cache, sharded by
// principal. Entries untouched past the TTL are evicted by sweep;
// eviction is safe because the durable store stays authoritative.
type counterCache struct {
	shards [shardCount]*shard
}

func newCounterCache() *counterCache {
	c := &counterCache{}
	for i := range c.shards {
		c.shards[i] = &shard{entries: make(map[string]*counters)}
	}
	return c
}

func (c *counterCache) shardFor(principalID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(principalID)) //nolint:errcheck // fnv never fails
	return c.shards[h.Sum32()&(shardCount-1)]
}

// get returns the entry for the principal, creating it if absent.
func (c *counterCache) get(principalID string) *counters {
	s := c.shardFor(principalID)

	s.mu.RLock()
	e, ok := s.entries[principalID]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.entries[principalID]; ok {
		return e
	}
	e = &counters{}
	s.entries[principalID] = e
	return e
}

// peek returns the entry without creating one.
func (c *counterCache) peek(principalID string) (*counters, bool) {
	s := c.shardFor(principalID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[principalID]
	return e, ok
}

// sweep drops entries untouched for longer than ttl and reports how
// many were evicted.
func (c *counterCache) sweep(now time.Time, ttl time.Duration) int {
	var evicted int
	for _, s := range c.shards {
		s.mu.Lock()
		for key, e := range s.entries {
			e.mu.Lock()
			stale := now.Sub(e.touchedAt) > ttl && e.pending == 0
			e.mu.Unlock()
			if stale {
				delete(s.entries, key)
				evicted++
			}
		}
		s.mu.Unlock()
	}
	return evicted
}

// size reports the total entry count across shards.
func (c *counterCache) size() int {
	var n int
	for _, s := range c.shards {
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}
