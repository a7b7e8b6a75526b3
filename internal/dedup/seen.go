package dedup

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// Set tracks seen identities with a Bloom filter fast path backed by an
// exact map. The map is authoritative; the filter only short-circuits
// misses. Insertion order is preserved for stable serialization.
type Set struct {
	mu     sync.RWMutex
	filter *bloom.BloomFilter
	exact  map[string]struct{}
	order  []string
}

// NewSet creates a seen-set sized for the estimated number of items.
func NewSet(estimatedItems int) *Set {
	if estimatedItems < 1000 {
		estimatedItems = 1000
	}

	return &Set{
		filter: bloom.NewWithEstimates(uint(estimatedItems), 0.001),
		exact:  make(map[string]struct{}),
	}
}

// Add inserts an identity. Returns true if it was new. Inserting the
// same identity twice is a no-op.
func (s *Set) Add(identity string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.exact[identity]; exists {
		return false
	}
	s.filter.AddString(identity)
	s.exact[identity] = struct{}{}
	s.order = append(s.order, identity)
	return true
}

// Has checks membership.
func (s *Set) Has(identity string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.filter.TestString(identity) {
		return false
	}
	_, exists := s.exact[identity]
	return exists
}

// Count returns the number of distinct identities.
func (s *Set) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.exact)
}

// Values returns all identities in insertion order.
func (s *Set) Values() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}
