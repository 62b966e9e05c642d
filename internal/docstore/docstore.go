// Package docstore maps vector index positions to the documents stored there.
//
// Deleting a document removes its entry but not its vector: the slot becomes a
// tombstone that search results must skip. Internal ids are never reused.
// A Store is not safe for concurrent use; the search engine serializes access.
package docstore

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrDuplicateID is returned when an internal id already holds an entry
	ErrDuplicateID = errors.New("internal id already in use")
	// ErrInvalidID is returned for negative internal ids
	ErrInvalidID = errors.New("invalid internal id")
)

// IndexEntry is one stored document
type IndexEntry struct {
	InternalID int64  `json:"internal_id"`
	ExternalID string `json:"external_id"` // Caller-supplied, may repeat
	Content    string `json:"content"`
}

// Store holds entries keyed by internal id
type Store struct {
	entries map[int64]IndexEntry
}

// New creates an empty store
func New() *Store {
	return &Store{entries: make(map[int64]IndexEntry)}
}

// Put stores entry under its internal id; each slot holds at most one entry
func (s *Store) Put(entry IndexEntry) error {
	if entry.InternalID < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidID, entry.InternalID)
	}
	if _, exists := s.entries[entry.InternalID]; exists {
		return fmt.Errorf("%w: %d", ErrDuplicateID, entry.InternalID)
	}
	s.entries[entry.InternalID] = entry
	return nil
}

// Get returns the entry at an internal id
func (s *Store) Get(internalID int64) (IndexEntry, bool) {
	e, ok := s.entries[internalID]
	return e, ok
}

// FindByExternalID returns the live entry with the lowest internal id whose
// external id matches. The scan is linear in the number of entries.
func (s *Store) FindByExternalID(externalID string) (IndexEntry, bool) {
	var (
		found IndexEntry
		ok    bool
	)
	for id, e := range s.entries {
		if e.ExternalID != externalID {
			continue
		}
		if !ok || id < found.InternalID {
			found, ok = e, true
		}
	}
	return found, ok
}

// DeleteByExternalID removes the first matching entry, leaving its slot tombstoned.
// It reports whether anything was removed.
func (s *Store) DeleteByExternalID(externalID string) bool {
	e, ok := s.FindByExternalID(externalID)
	if !ok {
		return false
	}
	delete(s.entries, e.InternalID)
	return true
}

// Len returns the number of live entries
func (s *Store) Len() int {
	return len(s.entries)
}

// Entries returns all live entries ordered by internal id
func (s *Store) Entries() []IndexEntry {
	out := make([]IndexEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InternalID < out[j].InternalID })
	return out
}

// Tombstones returns the ids in [0, size) that have no entry
func (s *Store) Tombstones(size int) []int64 {
	var out []int64
	for id := int64(0); id < int64(size); id++ {
		if _, ok := s.entries[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// Replace swaps the contents for entries, used when loading a snapshot
func (s *Store) Replace(entries []IndexEntry) error {
	next := New()
	for _, e := range entries {
		if err := next.Put(e); err != nil {
			return err
		}
	}
	s.entries = next.entries
	return nil
}
