// Package cache provides generation-windowed LRU stores used to memoize
// compiled resource sources and evaluated artifacts across host builds.
package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stats is a point-in-time snapshot of store counters.
type Stats struct {
	Entries    int
	MaxEntries int
	Hits       int64
	Misses     int64
	Sets       int64
	Evictions  int64
	Generation string
}

// HitRate returns hits over lookups in the range 0.0 to 1.0.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0.0
	}
	return float64(s.Hits) / float64(total)
}

type entry[V any] struct {
	key        string
	value      V
	epoch      uint64
	accessedAt time.Time
	prev       *entry[V]
	next       *entry[V]
}

// Store is an LRU cache whose entries are tagged with the generation that
// last stored or hit them. Advancing to a new generation drops every entry
// not touched within the configured window of generations.
type Store[V any] struct {
	mutex       sync.Mutex
	entries     map[string]*entry[V]
	maxEntries  int
	generations int

	generation string
	epoch      uint64

	head *entry[V]
	tail *entry[V]

	hits      int64
	misses    int64
	sets      int64
	evictions int64
}

// NewStore creates a store holding at most maxEntries entries (0 means
// unbounded) and keeping entries from the last generations generations
// (values below 1 are treated as 1).
func NewStore[V any](maxEntries, generations int) *Store[V] {
	if generations < 1 {
		generations = 1
	}
	s := &Store[V]{
		entries:     make(map[string]*entry[V]),
		maxEntries:  maxEntries,
		generations: generations,
		head:        &entry[V]{},
		tail:        &entry[V]{},
	}
	s.head.next = s.tail
	s.tail.prev = s.head
	return s
}

// Get retrieves a value and refreshes its generation tag.
func (s *Store[V]) Get(key string) (V, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	e, ok := s.entries[key]
	if !ok {
		atomic.AddInt64(&s.misses, 1)
		var zero V
		return zero, false
	}

	e.epoch = s.epoch
	e.accessedAt = time.Now()
	s.moveToFront(e)
	atomic.AddInt64(&s.hits, 1)
	return e.value, true
}

// Peek retrieves a value without touching counters, recency or generation.
func (s *Store[V]) Peek(key string) (V, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if e, ok := s.entries[key]; ok {
		return e.value, true
	}
	var zero V
	return zero, false
}

// Set stores a value tagged with the current generation.
func (s *Store[V]) Set(key string, value V) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	atomic.AddInt64(&s.sets, 1)

	if e, ok := s.entries[key]; ok {
		e.value = value
		e.epoch = s.epoch
		e.accessedAt = time.Now()
		s.moveToFront(e)
		return
	}

	s.evictIfNeeded()

	e := &entry[V]{
		key:        key,
		value:      value,
		epoch:      s.epoch,
		accessedAt: time.Now(),
	}
	s.entries[key] = e
	s.addToFront(e)
}

// Delete removes a key and reports whether it was present.
func (s *Store[V]) Delete(key string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return false
	}
	s.removeFromList(e)
	delete(s.entries, key)
	return true
}

// Advance moves the store to generation. When generation differs from the
// current one the epoch advances and entries last touched outside the
// window are evicted. It returns the number of evicted entries.
func (s *Store[V]) Advance(generation string) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if generation == s.generation {
		return 0
	}
	s.generation = generation
	s.epoch++

	evicted := 0
	for e := s.tail.prev; e != s.head; {
		prev := e.prev
		if s.epoch-e.epoch >= uint64(s.generations) {
			s.removeFromList(e)
			delete(s.entries, e.key)
			evicted++
		}
		e = prev
	}
	atomic.AddInt64(&s.evictions, int64(evicted))
	return evicted
}

// Generation returns the generation most recently passed to Advance.
func (s *Store[V]) Generation() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.generation
}

// Len returns the number of entries.
func (s *Store[V]) Len() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.entries)
}

// Clear removes all entries and resets statistics.
func (s *Store[V]) Clear() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.entries = make(map[string]*entry[V])
	s.head.next = s.tail
	s.tail.prev = s.head

	atomic.StoreInt64(&s.hits, 0)
	atomic.StoreInt64(&s.misses, 0)
	atomic.StoreInt64(&s.sets, 0)
	atomic.StoreInt64(&s.evictions, 0)
}

// Stats returns a snapshot of the store counters.
func (s *Store[V]) Stats() Stats {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return Stats{
		Entries:    len(s.entries),
		MaxEntries: s.maxEntries,
		Hits:       atomic.LoadInt64(&s.hits),
		Misses:     atomic.LoadInt64(&s.misses),
		Sets:       atomic.LoadInt64(&s.sets),
		Evictions:  atomic.LoadInt64(&s.evictions),
		Generation: s.generation,
	}
}

// evictIfNeeded drops least recently used entries to make room for one more.
func (s *Store[V]) evictIfNeeded() {
	if s.maxEntries <= 0 {
		return
	}
	for len(s.entries) >= s.maxEntries && s.tail.prev != s.head {
		lru := s.tail.prev
		s.removeFromList(lru)
		delete(s.entries, lru.key)
		atomic.AddInt64(&s.evictions, 1)
	}
}

// LRU doubly-linked list operations
func (s *Store[V]) addToFront(e *entry[V]) {
	e.prev = s.head
	e.next = s.head.next
	s.head.next.prev = e
	s.head.next = e
}

func (s *Store[V]) removeFromList(e *entry[V]) {
	e.prev.next = e.next
	e.next.prev = e.prev
}

func (s *Store[V]) moveToFront(e *entry[V]) {
	s.removeFromList(e)
	s.addToFront(e)
}
