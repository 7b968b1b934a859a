package requestlog

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Logger records entries.
type Logger interface {
	Log(entry *Entry)
}

// Store is a queryable journal.
type Store interface {
	Logger

	// Get returns entry id, or nil.
	Get(id string) *Entry

	// List returns matching entries, newest first.
	List(filter *Filter) []*Entry

	Clear()
	Count() int
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Method     string
	PathPrefix string
	MappingID  string
	Status     int

	// Matched selects matched (true) or unmatched (false) requests.
	Matched *bool

	Limit  int
	Offset int
}

// Bool returns a pointer to b, for Filter.Matched.
func Bool(b bool) *bool { return &b }

func (f *Filter) match(e *Entry) bool {
	if f == nil {
		return true
	}
	if f.Method != "" && !strings.EqualFold(f.Method, e.Method) {
		return false
	}
	if f.PathPrefix != "" && !strings.HasPrefix(e.Path, f.PathPrefix) {
		return false
	}
	if f.MappingID != "" && f.MappingID != e.MatchedMappingID {
		return false
	}
	if f.Status != 0 && f.Status != e.ResponseStatus {
		return false
	}
	if f.Matched != nil && *f.Matched != e.Matched() {
		return false
	}
	return true
}

// MemoryStore keeps the most recent entries in a ring buffer.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []*Entry
	next    int
	full    bool
	now     func() time.Time
}

// NewMemoryStore keeps up to capacity entries. capacity <= 0 means 1000.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemoryStore{entries: make([]*Entry, capacity), now: time.Now}
}

// Log stores entry, evicting the oldest when full. Missing IDs and
// timestamps are filled in.
func (s *MemoryStore) Log(entry *Entry) {
	if entry == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[s.next] = entry
	s.next = (s.next + 1) % len(s.entries)
	if s.next == 0 {
		s.full = true
	}
}

// Get returns entry id, or nil.
func (s *MemoryStore) Get(id string) *Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e != nil && e.ID == id {
			return e
		}
	}
	return nil
}

// List returns matching entries, newest first.
func (s *MemoryStore) List(filter *Filter) []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Entry, 0)
	skipped := 0
	n := s.countLocked()
	for i := 0; i < n; i++ {
		idx := (s.next - 1 - i + len(s.entries)) % len(s.entries)
		e := s.entries[idx]
		if !filter.match(e) {
			continue
		}
		if filter != nil && skipped < filter.Offset {
			skipped++
			continue
		}
		out = append(out, e)
		if filter != nil && filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out
}

// Clear removes every entry.
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make([]*Entry, len(s.entries))
	s.next = 0
	s.full = false
}

// Count returns the number of stored entries.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countLocked()
}

func (s *MemoryStore) countLocked() int {
	if s.full {
		return len(s.entries)
	}
	return s.next
}
