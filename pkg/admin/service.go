package admin

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/getmockd/stubd/pkg/config"
	"github.com/getmockd/stubd/pkg/logging"
	"github.com/getmockd/stubd/pkg/mapping"
	"github.com/getmockd/stubd/pkg/requestlog"
	"github.com/getmockd/stubd/pkg/scenario"
	"github.com/getmockd/stubd/pkg/store"
	"github.com/getmockd/stubd/pkg/template"
)

// NotFoundError reports an unknown mapping, scenario or journal entry.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// IsNotFound reports whether err is or wraps a *NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// ErrJournalDisabled is returned by request journal operations when no
// journal is configured.
var ErrJournalDisabled = errors.New("request journal is disabled")

// ErrNoMappingsDir is returned by directory operations when no mapping
// directory is configured.
var ErrNoMappingsDir = errors.New("no mappings directory configured")

// Service implements the admin operations.
type Service struct {
	store       *store.Store
	tracker     *scenario.Tracker
	sequences   *template.SequenceStore
	journal     requestlog.Store
	mappingsDir string
	saveFormat  config.Format
	logger      *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithMappingsDir sets the static mapping directory used by save and reload.
func WithMappingsDir(dir string, format config.Format) ServiceOption {
	return func(s *Service) {
		s.mappingsDir = dir
		s.saveFormat = format
	}
}

// WithSequences lets a scenario reset also restart template sequences.
func WithSequences(seq *template.SequenceStore) ServiceOption {
	return func(s *Service) {
		s.sequences = seq
	}
}

// WithJournal exposes the request journal j.
func WithJournal(j requestlog.Store) ServiceOption {
	return func(s *Service) {
		s.journal = j
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a service over st and tracker.
func NewService(st *store.Store, tracker *scenario.Tracker, opts ...ServiceOption) *Service {
	s := &Service{store: st, tracker: tracker, saveFormat: config.FormatJSON, logger: logging.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListMappings returns a point-in-time copy of every mapping.
func (s *Service) ListMappings() []*mapping.Mapping {
	return s.store.List()
}

// GetMapping returns mapping id.
func (s *Service) GetMapping(id string) (*mapping.Mapping, error) {
	m, err := s.store.Get(id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &NotFoundError{Kind: "mapping", ID: id}
	}
	return m, err
}

// UpsertMapping validates and registers m. Invalid mappings are rejected
// with a *mapping.ValidationError and the store is left unchanged.
func (s *Service) UpsertMapping(m *mapping.Mapping) (*mapping.Mapping, bool, error) {
	id, created, err := s.store.Upsert(m)
	if err != nil {
		return nil, false, err
	}
	s.logger.Info("mapping saved", "id", id, "created", created)
	saved, err := s.store.Get(id)
	if err != nil {
		// Deleted concurrently; report what was written.
		saved = m.Clone()
		saved.ID = id
	}
	return saved, created, nil
}

// DeleteMapping removes mapping id.
func (s *Service) DeleteMapping(id string) error {
	if !s.store.Delete(id) {
		return &NotFoundError{Kind: "mapping", ID: id}
	}
	s.logger.Info("mapping deleted", "id", id)
	return nil
}

// ResetMappings removes every mapping, or every non-persistent one, and
// returns the number removed. A full reset also resets all scenarios and
// sequences; with keepPersistent they are left to the surviving mappings.
func (s *Service) ResetMappings(keepPersistent bool) int {
	removed := s.store.Reset(keepPersistent)
	if !keepPersistent {
		s.ResetScenarios()
	}
	s.logger.Info("mappings reset", "removed", removed, "keepPersistent", keepPersistent)
	return removed
}

// ListScenarios returns every scenario that has been referenced or set.
func (s *Service) ListScenarios() []scenario.State {
	return s.tracker.List()
}

// GetScenarioState returns the state of scenario name. Unknown scenarios
// are reported in scenario.Started.
func (s *Service) GetScenarioState(name string) scenario.State {
	return s.tracker.Get(name)
}

// SetScenarioState forces scenario name into state.
func (s *Service) SetScenarioState(name, state string) (scenario.State, error) {
	if name == "" {
		return scenario.State{}, &mapping.ValidationError{Field: "name", Message: "is required"}
	}
	if state == "" {
		return scenario.State{}, &mapping.ValidationError{Field: "state", Message: "is required"}
	}
	s.tracker.Set(name, state)
	return s.tracker.Get(name), nil
}

// ResetScenario returns scenario name to scenario.Started.
func (s *Service) ResetScenario(name string) error {
	if !s.tracker.Reset(name) {
		return &NotFoundError{Kind: "scenario", ID: name}
	}
	return nil
}

// ResetScenarios returns every scenario to scenario.Started and restarts
// template sequences.
func (s *Service) ResetScenarios() {
	s.tracker.ResetAll()
	if s.sequences != nil {
		s.sequences.Reset()
	}
}

// ImportResult reports a document import.
type ImportResult struct {
	Report  *config.LoadReport
	IDs     []string
	Created int
}

// LoadDocuments parses docs and upserts every mapping of the accepted ones
// in a single batch. Rejected documents are listed in the report.
func (s *Service) LoadDocuments(docs []config.RawDocument) (*ImportResult, error) {
	report := config.LoadDocuments(docs)
	for _, e := range report.Errors {
		s.logger.Warn("skipped mapping document", "source", e.Source, "error", e.Err)
	}

	res, err := s.store.Apply(store.Batch{Upserts: report.Mappings})
	if err != nil {
		return nil, err
	}
	out := &ImportResult{Report: report, IDs: res.IDs}
	for _, c := range res.Created {
		if c {
			out.Created++
		}
	}
	s.logger.Info("mapping documents imported",
		"documents", report.Documents,
		"mappings", len(res.IDs),
		"skipped", len(report.Errors),
	)
	return out, nil
}

// Export serializes the current mappings as one document.
func (s *Service) Export(format config.Format) ([]byte, error) {
	return config.MarshalDocument(s.store.List(), format)
}

// SaveDocuments writes every mapping to the mapping directory.
func (s *Service) SaveDocuments() ([]string, error) {
	if s.mappingsDir == "" {
		return nil, ErrNoMappingsDir
	}
	paths, err := config.DirSink{Dir: s.mappingsDir, Format: s.saveFormat}.Save(s.store.List())
	if err != nil {
		return paths, err
	}
	s.logger.Info("mappings saved", "dir", s.mappingsDir, "files", len(paths))
	return paths, nil
}

// ReloadStatic re-reads the mapping directory.
func (s *Service) ReloadStatic() (*config.LoadReport, store.Result, error) {
	if s.mappingsDir == "" {
		return nil, store.Result{}, ErrNoMappingsDir
	}
	return config.SyncStatic(s.store, s.mappingsDir)
}

// MappingCount returns the number of registered mappings.
func (s *Service) MappingCount() int {
	return s.store.Count()
}

// ListRequests returns journal entries, newest first.
func (s *Service) ListRequests(filter *requestlog.Filter) ([]*requestlog.Entry, error) {
	if s.journal == nil {
		return nil, ErrJournalDisabled
	}
	return s.journal.List(filter), nil
}

// GetRequest returns journal entry id.
func (s *Service) GetRequest(id string) (*requestlog.Entry, error) {
	if s.journal == nil {
		return nil, ErrJournalDisabled
	}
	e := s.journal.Get(id)
	if e == nil {
		return nil, &NotFoundError{Kind: "request", ID: id}
	}
	return e, nil
}

// ClearRequests empties the journal and returns how many entries it held.
func (s *Service) ClearRequests() (int, error) {
	if s.journal == nil {
		return 0, ErrJournalDisabled
	}
	n := s.journal.Count()
	s.journal.Clear()
	return n, nil
}
