package store

import (
	"sort"

	"github.com/getmockd/stubd/internal/matching"
	"github.com/getmockd/stubd/pkg/mapping"
)

// Entry is a registered mapping with its compiled matcher. Entries are
// shared between snapshots and must be treated as read-only.
type Entry struct {
	Mapping *mapping.Mapping
	Matcher *matching.Composite

	// Revision increases with every write; later writes have larger values.
	Revision uint64

	// Source tags where the mapping came from, e.g. a static directory.
	Source string
}

// Snapshot is an immutable view of the store.
type Snapshot struct {
	entries []*Entry
	byID    map[string]*Entry

	// Version is the revision of the write that produced the snapshot.
	Version uint64
}

func newSnapshot(byID map[string]*Entry, version uint64) *Snapshot {
	entries := make([]*Entry, 0, len(byID))
	for _, e := range byID {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Mapping.Priority != b.Mapping.Priority {
			return a.Mapping.Priority < b.Mapping.Priority
		}
		return a.Revision < b.Revision
	})
	return &Snapshot{entries: entries, byID: byID, Version: version}
}

// Entries returns entries ordered by priority, then registration order.
func (s *Snapshot) Entries() []*Entry { return s.entries }

// Get returns the entry with id.
func (s *Snapshot) Get(id string) (*Entry, bool) {
	e, ok := s.byID[id]
	return e, ok
}

// Len returns the number of mappings.
func (s *Snapshot) Len() int { return len(s.entries) }

// Mappings returns deep copies of every mapping in Entries order.
func (s *Snapshot) Mappings() []*mapping.Mapping {
	out := make([]*mapping.Mapping, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Mapping.Clone()
	}
	return out
}
