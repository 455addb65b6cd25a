// Package publish persists resolved entries for the list endpoints and
// notifies downstream consumers.
package publish

import (
	"sync"

	"github.com/pkaris/listbridge/internal/media"
)

// Store holds every published entry, seeded from the ledger replay so the
// list endpoints survive restarts.
type Store struct {
	mu      sync.RWMutex
	entries []media.Entry
	keys    map[string]struct{}
}

// NewStore creates a Store pre-populated with previously published entries.
func NewStore(seed []media.Entry) *Store {
	s := &Store{keys: make(map[string]struct{}, len(seed))}
	for _, e := range seed {
		s.add(e)
	}
	return s
}

// Add appends an entry unless its key is already present.
func (s *Store) Add(entry media.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.add(entry)
}

func (s *Store) add(entry media.Entry) {
	key := entry.Key()
	if _, ok := s.keys[key]; ok {
		return
	}
	s.keys[key] = struct{}{}
	s.entries = append(s.entries, entry)
}

// ByKind returns all entries of the given kind in publish order.
func (s *Store) ByKind(kind media.Kind) []media.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []media.Entry
	for _, e := range s.entries {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
