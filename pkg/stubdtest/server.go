package stubdtest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/getmockd/stubd/pkg/admin"
	"github.com/getmockd/stubd/pkg/engine"
	"github.com/getmockd/stubd/pkg/requestlog"
	"github.com/getmockd/stubd/pkg/scenario"
	"github.com/getmockd/stubd/pkg/store"
)

// Server is a running stubd bound to a test.
type Server struct {
	t       testing.TB
	store   *store.Store
	tracker *scenario.Tracker
	journal *requestlog.MemoryStore
	engine  *engine.Engine
	httpSrv *httptest.Server
}

// New starts a server on a loopback port. opts configure the engine.
func New(t testing.TB, opts ...engine.Option) *Server {
	t.Helper()

	s := &Server{
		t:       t,
		store:   store.New(),
		tracker: scenario.NewTracker(),
		journal: requestlog.NewMemoryStore(10000),
	}
	opts = append([]engine.Option{engine.WithJournal(s.journal)}, opts...)
	s.engine = engine.New(s.store, s.tracker, opts...)

	api := admin.NewAPI(admin.NewService(s.store, s.tracker, admin.WithJournal(s.journal)))
	routes := engine.NewServer(engine.ServerConfig{}, s.engine, api.Handler()).Routes()
	s.httpSrv = httptest.NewServer(routes)
	t.Cleanup(s.Close)
	return s
}

// URL returns the base URL, without a trailing slash.
func (s *Server) URL() string { return s.httpSrv.URL }

// Client returns a client for the server.
func (s *Server) Client() *http.Client { return s.httpSrv.Client() }

// Engine returns the engine for advanced use.
func (s *Server) Engine() *engine.Engine { return s.engine }

// Close stops the server. It is safe to call more than once.
func (s *Server) Close() {
	s.httpSrv.Close()
}

// Reset removes every mapping, scenario and journal entry.
func (s *Server) Reset() {
	s.store.Reset(false)
	s.tracker.ResetAll()
	s.journal.Clear()
}

// Requests returns the journal, newest first.
func (s *Server) Requests() []*requestlog.Entry {
	return s.journal.List(nil)
}

// Unmatched returns the requests no mapping answered, newest first.
func (s *Server) Unmatched() []*requestlog.Entry {
	return s.journal.List(&requestlog.Filter{Matched: requestlog.Bool(false)})
}

// AssertCalled fails t unless method path was requested at least once.
// path may use {name} segments.
func (s *Server) AssertCalled(t testing.TB, method, path string) {
	t.Helper()
	if s.countCalls(method, path) == 0 {
		t.Errorf("expected %s %s to be called, but it was not called", method, path)
	}
}

// AssertCalledTimes fails t unless method path was requested exactly n times.
func (s *Server) AssertCalledTimes(t testing.TB, method, path string, n int) {
	t.Helper()
	if got := s.countCalls(method, path); got != n {
		t.Errorf("expected %s %s to be called %d times, but was called %d times", method, path, n, got)
	}
}

// AssertNotCalled fails t if method path was requested.
func (s *Server) AssertNotCalled(t testing.TB, method, path string) {
	t.Helper()
	if got := s.countCalls(method, path); got > 0 {
		t.Errorf("expected %s %s to not be called, but it was called %d times", method, path, got)
	}
}

func (s *Server) countCalls(method, path string) int {
	n := 0
	for _, e := range s.journal.List(&requestlog.Filter{Method: method}) {
		if matchesPath(e.Path, path) {
			n++
		}
	}
	return n
}

// matchesPath compares segment by segment; {name} matches any one segment.
func matchesPath(actual, expected string) bool {
	if actual == expected {
		return true
	}
	a := strings.Split(actual, "/")
	e := strings.Split(expected, "/")
	if len(a) != len(e) {
		return false
	}
	for i := range e {
		if strings.HasPrefix(e[i], "{") && strings.HasSuffix(e[i], "}") {
			continue
		}
		if e[i] != a[i] {
			return false
		}
	}
	return true
}
