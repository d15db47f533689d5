package queue

import (
	"sort"

	"supportdesk/pkg/types"
)

// Removed is an entry taken out of the store, tagged with its category
type Removed struct {
	Category string
	Entry    types.QueueEntry
}

// Store holds one FIFO list of waiting customers per category.
// It is not safe for concurrent use; the dispatcher goroutine owns it.
type Store struct {
	lists map[string][]types.QueueEntry // category -> entries, oldest first
}

// NewStore creates a store with an empty list for each default category.
// Default categories always appear in snapshots, even when empty.
func NewStore(defaultCategories ...string) *Store {
	s := &Store{lists: make(map[string][]types.QueueEntry)}
	for _, category := range defaultCategories {
		s.lists[category] = []types.QueueEntry{}
	}
	return s
}

// Enqueue appends entry to category, creating the list on first use,
// and returns the entry's 1-based position
func (s *Store) Enqueue(category string, entry types.QueueEntry) int {
	entry.Category = category
	s.lists[category] = append(s.lists[category], entry)
	return len(s.lists[category])
}

// PositionOf returns the 1-based position of connID's entry in category
func (s *Store) PositionOf(category, connID string) (int, bool) {
	for i, entry := range s.lists[category] {
		if entry.ConnectionID == connID {
			return i + 1, true
		}
	}
	return 0, false
}

// Find returns the entry for customerID in category without removing it
func (s *Store) Find(category, customerID string) (types.QueueEntry, bool) {
	for _, entry := range s.lists[category] {
		if entry.CustomerID == customerID {
			return entry, true
		}
	}
	return types.QueueEntry{}, false
}

// Contains reports the category customerID is waiting in, if any
func (s *Store) Contains(customerID string) (string, bool) {
	for _, category := range s.categories() {
		for _, entry := range s.lists[category] {
			if entry.CustomerID == customerID {
				return category, true
			}
		}
	}
	return "", false
}

// DequeueByCustomerID removes and returns customerID's entry from category
func (s *Store) DequeueByCustomerID(category, customerID string) (types.QueueEntry, error) {
	entries := s.lists[category]
	for i, entry := range entries {
		if entry.CustomerID == customerID {
			s.lists[category] = append(entries[:i:i], entries[i+1:]...)
			return entry, nil
		}
	}
	return types.QueueEntry{}, ErrNotFound
}

// RemoveByConnectionID removes every entry owned by connID across all categories
func (s *Store) RemoveByConnectionID(connID string) []Removed {
	var removed []Removed
	for _, category := range s.categories() {
		entries := s.lists[category]
		kept := entries[:0:0]
		for _, entry := range entries {
			if entry.ConnectionID == connID {
				removed = append(removed, Removed{Category: category, Entry: entry})
				continue
			}
			kept = append(kept, entry)
		}
		if len(kept) != len(entries) {
			s.lists[category] = kept
		}
	}
	return removed
}

// Len returns the number of entries waiting in category
func (s *Store) Len(category string) int {
	return len(s.lists[category])
}

// Snapshot returns a deep copy of every category list
func (s *Store) Snapshot() types.QueueSnapshot {
	snapshot := make(types.QueueSnapshot, len(s.lists))
	for category, entries := range s.lists {
		copied := make([]types.QueueEntry, len(entries))
		copy(copied, entries)
		snapshot[category] = copied
	}
	return snapshot
}

func (s *Store) categories() []string {
	categories := make([]string, 0, len(s.lists))
	for category := range s.lists {
		categories = append(categories, category)
	}
	sort.Strings(categories)
	return categories
}
