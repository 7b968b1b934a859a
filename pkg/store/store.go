package store

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/getmockd/stubd/internal/matching"
	"github.com/getmockd/stubd/pkg/logging"
	"github.com/getmockd/stubd/pkg/mapping"
)

// ErrNotFound is returned for an unknown mapping identifier.
var ErrNotFound = errors.New("mapping not found")

// Store holds the current snapshot and serializes writers.
type Store struct {
	mu       sync.Mutex
	current  atomic.Pointer[Snapshot]
	revision uint64

	now      func() time.Time
	onChange func(count int)
	logger   *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithOnChange registers a callback run after every successful write,
// while the writer lock is held, with the new mapping count.
func WithOnChange(fn func(count int)) Option {
	return func(s *Store) { s.onChange = fn }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{now: time.Now, logger: logging.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	s.current.Store(newSnapshot(map[string]*Entry{}, 0))
	return s
}

// Snapshot returns the current immutable view.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Batch is a set of changes applied atomically.
type Batch struct {
	Upserts []*mapping.Mapping
	Deletes []string

	// Source tags every upserted mapping.
	Source string

	// ReplaceSource removes mappings tagged with Source that the batch does
	// not upsert.
	ReplaceSource bool
}

// Result reports what Apply changed.
type Result struct {
	IDs     []string
	Created []bool
	Deleted []string
	Missing []string
}

// Apply validates and compiles every upsert, then publishes all changes in
// one swap. Any validation failure rejects the whole batch.
func (s *Store) Apply(b Batch) (Result, error) {
	prepared := make([]*Entry, len(b.Upserts))
	for i, m := range b.Upserts {
		e, err := prepare(m)
		if err != nil {
			return Result{}, err
		}
		prepared[i] = e
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.current.Load()
	next := make(map[string]*Entry, len(prev.byID)+len(prepared))
	for id, e := range prev.byID {
		next[id] = e
	}

	var res Result
	for _, id := range b.Deletes {
		if _, ok := next[id]; ok {
			delete(next, id)
			res.Deleted = append(res.Deleted, id)
		} else {
			res.Missing = append(res.Missing, id)
		}
	}

	now := s.now().UTC()
	kept := make(map[string]bool, len(prepared))
	for _, e := range prepared {
		s.revision++
		e.Revision = s.revision
		e.Source = b.Source

		m := e.Mapping
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		old, exists := next[m.ID]
		switch {
		case exists:
			m.CreatedAt = old.Mapping.CreatedAt
		case m.CreatedAt.IsZero():
			m.CreatedAt = now
		}
		m.UpdatedAt = now

		next[m.ID] = e
		kept[m.ID] = true
		res.IDs = append(res.IDs, m.ID)
		res.Created = append(res.Created, !exists)
	}

	if b.ReplaceSource {
		for id, e := range next {
			if e.Source == b.Source && !kept[id] {
				delete(next, id)
				res.Deleted = append(res.Deleted, id)
			}
		}
	}

	s.publish(next)
	s.logger.Debug("applied mapping batch",
		"upserts", len(res.IDs), "deleted", len(res.Deleted), "source", b.Source, "version", s.revision)
	return res, nil
}

// Upsert registers or replaces m and returns its identifier. The caller's
// value is not retained.
func (s *Store) Upsert(m *mapping.Mapping) (id string, created bool, err error) {
	res, err := s.Apply(Batch{Upserts: []*mapping.Mapping{m}})
	if err != nil {
		return "", false, err
	}
	return res.IDs[0], res.Created[0], nil
}

// Delete removes id and reports whether it existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.current.Load()
	if _, ok := prev.byID[id]; !ok {
		return false
	}
	next := make(map[string]*Entry, len(prev.byID))
	for k, e := range prev.byID {
		if k != id {
			next[k] = e
		}
	}
	s.revision++
	s.publish(next)
	s.logger.Debug("deleted mapping", "id", id)
	return true
}

// Get returns a copy of mapping id, or ErrNotFound.
func (s *Store) Get(id string) (*mapping.Mapping, error) {
	e, ok := s.Snapshot().Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return e.Mapping.Clone(), nil
}

// List returns copies of all mappings ordered by priority, then registration order.
func (s *Store) List() []*mapping.Mapping {
	return s.Snapshot().Mappings()
}

// Count returns the number of mappings.
func (s *Store) Count() int {
	return s.Snapshot().Len()
}

// Reset removes every mapping, or every non-persistent one when
// keepPersistent is set, and returns how many were removed.
func (s *Store) Reset(keepPersistent bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.current.Load()
	next := make(map[string]*Entry)
	if keepPersistent {
		for id, e := range prev.byID {
			if e.Mapping.Persistent {
				next[id] = e
			}
		}
	}
	removed := len(prev.byID) - len(next)
	s.revision++
	s.publish(next)
	s.logger.Debug("reset mappings", "removed", removed, "keepPersistent", keepPersistent)
	return removed
}

func (s *Store) publish(byID map[string]*Entry) {
	snap := newSnapshot(byID, s.revision)
	s.current.Store(snap)
	if s.onChange != nil {
		s.onChange(snap.Len())
	}
}

func prepare(m *mapping.Mapping) (*Entry, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	own := m.Clone()
	composite, err := matching.CompileRequest(own.Request)
	if err != nil {
		return nil, err
	}
	return &Entry{Mapping: own, Matcher: composite}, nil
}

// Check reports whether Apply would accept m, without registering it.
func Check(m *mapping.Mapping) error {
	_, err := prepare(m)
	return err
}
