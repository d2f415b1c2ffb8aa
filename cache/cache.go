// Package cache provides a sharded LRU cache for rendered frame-view
// results. The graph model consults it during the request pass: a hit
// marks the request already rendered, so the scheduler finalizes it
// inline instead of consuming a worker.
package cache

import (
	"hash/fnv"
	"math"
	"sync"
	"sync/atomic"
)

// Default configuration constants.
const (
	// shardCount is the number of shards for reduced lock contention.
	// Must be a power of 2 for fast modulo via bitwise AND.
	shardCount = 16

	// DefaultCapacity is the default maximum entries per shard.
	DefaultCapacity = 256

	shardMask = shardCount - 1
)

// FrameViewKey identifies one cached frame-view result.
type FrameViewKey struct {
	// Node is the producing node's name.
	Node string

	// Time and View select the frame-view.
	Time float64
	View int

	// Plane is the produced plane's ID.
	Plane string

	// MipMapLevel is the downscale level the result was rendered at.
	MipMapLevel uint32
}

// hash computes an FNV-1a hash over all key fields, used for shard
// selection.
func (k FrameViewKey) hash() uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(k.Node))
	_, _ = h.Write([]byte{0})
	var buf [8]byte
	t := math.Float64bits(k.Time)
	for i := 0; i < 8; i++ {
		buf[i] = byte(t >> (8 * i))
	}
	_, _ = h.Write(buf[:])
	v := uint64(int64(k.View))
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * i))
	}
	_, _ = h.Write(buf[:])
	_, _ = h.Write([]byte(k.Plane))
	_, _ = h.Write([]byte{0})
	m := k.MipMapLevel
	_, _ = h.Write([]byte{byte(m), byte(m >> 8), byte(m >> 16), byte(m >> 24)})
	return h.Sum64()
}

// Stats is a snapshot of cache effectiveness counters.
type Stats struct {
	Len       int
	Hits      uint64
	Misses    uint64
	Evictions uint64
	HitRate   float64
}

// Cache is a thread-safe, sharded LRU cache of rendered results.
// Results are stored opaquely; the cache never inspects pixel data.
type Cache struct {
	shards   [shardCount]*shard
	capacity int // per shard

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// shard is one lock domain of the cache, with its own LRU order.
type shard struct {
	mu      sync.Mutex
	entries map[FrameViewKey]*entry
	head    *entry // most recently used
	tail    *entry // least recently used
}

type entry struct {
	key        FrameViewKey
	value      any
	prev, next *entry
}

// New creates a cache with the given capacity per shard; total capacity
// is capacity*16. capacity <= 0 selects DefaultCapacity.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c := &Cache{capacity: capacity}
	for i := range c.shards {
		c.shards[i] = &shard{entries: make(map[FrameViewKey]*entry)}
	}
	return c
}

func (c *Cache) shardFor(k FrameViewKey) *shard {
	return c.shards[k.hash()&shardMask]
}

// unlink removes e from the shard's LRU list. Caller holds s.mu.
func (s *shard) unlink(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		s.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		s.tail = e.prev
	}
	e.prev, e.next = nil, nil
}

// pushFront makes e the most recently used entry. Caller holds s.mu.
func (s *shard) pushFront(e *entry) {
	e.next = s.head
	if s.head != nil {
		s.head.prev = e
	}
	s.head = e
	if s.tail == nil {
		s.tail = e
	}
}

// Get retrieves a cached result, refreshing its LRU position.
func (c *Cache) Get(k FrameViewKey) (any, bool) {
	s := c.shardFor(k)
	s.mu.Lock()
	e, ok := s.entries[k]
	if !ok {
		s.mu.Unlock()
		c.misses.Add(1)
		return nil, false
	}
	s.unlink(e)
	s.pushFront(e)
	v := e.value
	s.mu.Unlock()
	c.hits.Add(1)
	return v, true
}

// Set stores a result, evicting least recently used entries if the shard
// is over capacity. The value is stored as-is, not copied.
func (c *Cache) Set(k FrameViewKey, v any) {
	s := c.shardFor(k)
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[k]; ok {
		e.value = v
		s.unlink(e)
		s.pushFront(e)
		return
	}

	for len(s.entries) >= c.capacity && s.tail != nil {
		oldest := s.tail
		s.unlink(oldest)
		delete(s.entries, oldest.key)
		c.evictions.Add(1)
	}

	e := &entry{key: k, value: v}
	s.entries[k] = e
	s.pushFront(e)
}

// Delete removes an entry, reporting whether it existed.
func (c *Cache) Delete(k FrameViewKey) bool {
	s := c.shardFor(k)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[k]
	if !ok {
		return false
	}
	s.unlink(e)
	delete(s.entries, k)
	return true
}

// Clear removes every entry.
func (c *Cache) Clear() {
	for _, s := range c.shards {
		s.mu.Lock()
		s.entries = make(map[FrameViewKey]*entry)
		s.head, s.tail = nil, nil
		s.mu.Unlock()
	}
}

// Len returns the total number of entries across all shards.
func (c *Cache) Len() int {
	total := 0
	for _, s := range c.shards {
		s.mu.Lock()
		total += len(s.entries)
		s.mu.Unlock()
	}
	return total
}

// Stats returns a snapshot of the effectiveness counters.
func (c *Cache) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	st := Stats{
		Len:       c.Len(),
		Hits:      hits,
		Misses:    misses,
		Evictions: c.evictions.Load(),
	}
	if total := hits + misses; total > 0 {
		st.HitRate = float64(hits) / float64(total)
	}
	return st
}
