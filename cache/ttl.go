// Package cache implements the dedup cache service: an in-memory TTL map
// behind a request/reply IPC endpoint. Pollers ask it whether a feed-entry
// fingerprint has been seen before, which is what makes novelty detection
// exactly-once across many concurrent pollers and across restarts within
// the TTL window of a still-running service.
package cache

import "time"

// DefaultTTL is the absolute lifetime of a cache entry.
const DefaultTTL = 18600 * time.Second

// DefaultCapacity is the maximum number of entries held at once.
const DefaultCapacity = 10000

type entry struct {
	value      string
	insertedAt time.Time
}

// TTLStore is a time-bounded map with oldest-first eviction. It is not
// safe for concurrent use; the service loop is its only consumer.
type TTLStore struct {
	ttl      time.Duration
	capacity int
	now      func() time.Time

	entries map[string]entry
	// order holds keys by insertion time, oldest first. Re-setting a key
	// moves it to the back, mirroring a fresh insertion.
	order []string
}

// NewTTLStore creates a store with the given entry lifetime and capacity.
func NewTTLStore(ttl time.Duration, capacity int) *TTLStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &TTLStore{
		ttl:      ttl,
		capacity: capacity,
		now:      time.Now,
		entries:  make(map[string]entry),
	}
}

// Get returns the live value for key. Reads never extend an entry's
// lifetime.
func (s *TTLStore) Get(key string) (string, bool) {
	e, ok := s.entries[key]
	if !ok {
		return "", false
	}
	if s.now().Sub(e.insertedAt) >= s.ttl {
		s.delete(key)
		return "", false
	}
	return e.value, true
}

// Set inserts or replaces key. When the store is full the oldest entry by
// insertion time is evicted first.
func (s *TTLStore) Set(key, value string) {
	s.expire()
	if _, ok := s.entries[key]; ok {
		s.delete(key)
	}
	for len(s.entries) >= s.capacity {
		s.delete(s.order[0])
	}
	s.entries[key] = entry{value: value, insertedAt: s.now()}
	s.order = append(s.order, key)
}

// Len reports the number of live entries.
func (s *TTLStore) Len() int {
	s.expire()
	return len(s.entries)
}

func (s *TTLStore) expire() {
	now := s.now()
	for len(s.order) > 0 {
		key := s.order[0]
		e, ok := s.entries[key]
		if !ok {
			s.order = s.order[1:]
			continue
		}
		if now.Sub(e.insertedAt) < s.ttl {
			return
		}
		s.delete(key)
	}
}

func (s *TTLStore) delete(key string) {
	delete(s.entries, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}
