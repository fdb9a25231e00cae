// Package history keeps a bounded, in-memory window of recent weather
// observations per location. It is the only shared mutable state of the
// prediction pipeline.
//
// Each LocationKey owns a fixed-capacity ring buffer guarded by its own
// mutex, so requests for different locations never contend. The set of keys
// is itself bounded by an LRU: when a new key would exceed MaxKeys the least
// recently touched key and its history are dropped.
package history

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultCapacity is one day of hourly samples.
const DefaultCapacity = 24

// DefaultMaxKeys bounds the number of distinct locations held in memory.
const DefaultMaxKeys = 10000

// ErrOutOfOrder is returned when an observation is older than the most recent
// one already recorded for the same key.
var ErrOutOfOrder = errors.New("observation timestamp precedes latest recorded observation")

// LocationKey identifies the history bucket of a coordinate pair.
type LocationKey string

// Key quantizes a coordinate pair to 4 decimal degrees. Coordinates that
// quantize identically share history.
func Key(lat, lon float64) LocationKey {
	return LocationKey(fmt.Sprintf("%.4f_%.4f", lat, lon))
}

// Observation is one recorded sample. Wind direction is kept as its sine and
// cosine so that 359° and 1° are close in feature space.
type Observation struct {
	Timestamp  time.Time `json:"timestamp"`
	Humidity   float64   `json:"HR"`
	Irradiance float64   `json:"radinf"`
	WindSpeed  float64   `json:"vel"`
	DirSin     float64   `json:"dir_sin"`
	DirCos     float64   `json:"dir_cos"`
}

// Stats is a point-in-time view of the store for metrics.
type Stats struct {
	Keys        int
	EvictedKeys uint64
	Rejected    uint64
}

// Store is safe for concurrent use.
type Store struct {
	capacity int
	maxKeys  int

	// mu guards index and the LRU links only. It is never held while a
	// partition's buffer is read or written.
	mu    sync.Mutex
	index map[LocationKey]*partition
	head  *partition // most recently used
	tail  *partition // least recently used

	evictedKeys atomic.Uint64
	rejected    atomic.Uint64
}

// partition is the per-key unit of locking.
type partition struct {
	key     LocationKey
	mu      sync.Mutex
	ring    ring
	evicted atomic.Bool

	prev *partition
	next *partition
}

// Option configures a Store.
type Option func(*Store)

// WithCapacity sets the per-key buffer capacity.
func WithCapacity(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithMaxKeys sets the maximum number of tracked keys.
func WithMaxKeys(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxKeys = n
		}
	}
}

// NewStore creates an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		capacity: DefaultCapacity,
		maxKeys:  DefaultMaxKeys,
		index:    make(map[LocationKey]*partition),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Capacity returns the per-key buffer capacity.
func (s *Store) Capacity() int { return s.capacity }

// Record appends obs to the key's buffer, evicting the oldest entry when the
// buffer is full.
func (s *Store) Record(key LocationKey, obs Observation) error {
	return s.Update(key, func([]Observation) (Observation, error) {
		return obs, nil
	})
}

// History returns a copy of the key's buffer, oldest first. Unknown keys
// yield an empty slice. History does not refresh the key's LRU position.
func (s *Store) History(key LocationKey) []Observation {
	s.mu.Lock()
	p, ok := s.index[key]
	s.mu.Unlock()
	if !ok {
		return []Observation{}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ring.snapshot()
}

// Update runs the read-modify sequence for one key under that key's
// exclusive lock: fn receives a snapshot of the current buffer (which never
// contains the observation being produced) and returns the observation to
// append. If fn returns an error nothing is appended and the error is
// returned unchanged.
func (s *Store) Update(key LocationKey, fn func(snapshot []Observation) (Observation, error)) error {
	for {
		p := s.acquire(key)

		p.mu.Lock()
		if p.evicted.Load() {
			// Lost a race with LRU eviction; retry against a fresh partition.
			p.mu.Unlock()
			continue
		}

		obs, err := fn(p.ring.snapshot())
		if err == nil {
			if last, ok := p.ring.last(); ok && obs.Timestamp.Before(last.Timestamp) {
				s.rejected.Add(1)
				err = fmt.Errorf("%w: %s < %s", ErrOutOfOrder,
					obs.Timestamp.Format(time.RFC3339), last.Timestamp.Format(time.RFC3339))
			} else {
				p.ring.push(obs)
			}
		}
		p.mu.Unlock()
		return err
	}
}

// Len returns the number of tracked keys.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.index)
}

// Keys returns the tracked keys, most recently used first.
func (s *Store) Keys() []LocationKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]LocationKey, 0, len(s.index))
	for p := s.head; p != nil; p = p.next {
		keys = append(keys, p.key)
	}
	return keys
}

// Stats returns counters for metrics export.
func (s *Store) Stats() Stats {
	return Stats{
		Keys:        s.Len(),
		EvictedKeys: s.evictedKeys.Load(),
		Rejected:    s.rejected.Load(),
	}
}

// acquire finds or creates the key's partition and marks it most recently
// used, evicting the LRU tail when the key bound is exceeded.
func (s *Store) acquire(key LocationKey) *partition {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.index[key]; ok {
		s.moveToFront(p)
		return p
	}

	p := &partition{key: key, ring: newRing(s.capacity)}
	s.index[key] = p
	s.addToFront(p)

	if len(s.index) > s.maxKeys {
		s.evictTail()
	}
	return p
}

func (s *Store) moveToFront(p *partition) {
	if p == s.head {
		return
	}
	s.unlink(p)
	s.addToFront(p)
}

func (s *Store) addToFront(p *partition) {
	p.next = s.head
	p.prev = nil
	if s.head != nil {
		s.head.prev = p
	}
	s.head = p
	if s.tail == nil {
		s.tail = p
	}
}

func (s *Store) unlink(p *partition) {
	if p.prev != nil {
		p.prev.next = p.next
	} else {
		s.head = p.next
	}
	if p.next != nil {
		p.next.prev = p.prev
	} else {
		s.tail = p.prev
	}
}

func (s *Store) evictTail() {
	victim := s.tail
	if victim == nil {
		return
	}
	victim.evicted.Store(true)
	delete(s.index, victim.key)
	s.unlink(victim)
	s.evictedKeys.Add(1)
}
