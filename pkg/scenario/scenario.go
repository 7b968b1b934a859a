// Package scenario tracks per-scenario state for stateful mappings.
//
// A scenario is in the Started state until a matched mapping moves it
// elsewhere. Entries are created lazily and cleared on reset.
package scenario

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/getmockd/stubd/pkg/logging"
)

// Started is the state of a scenario that has never transitioned.
const Started = "Started"

// State describes one scenario.
type State struct {
	Name   string `json:"name"`
	State  string `json:"state"`
	Visits int64  `json:"visits"`
}

type entry struct {
	state  string
	visits int64
}

// Tracker holds the state of every scenario. Writers are serialized, so
// transitions apply in the order they are accepted.
type Tracker struct {
	mu        sync.RWMutex
	scenarios map[string]*entry
	logger    *slog.Logger
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{scenarios: make(map[string]*entry), logger: logging.Nop()}
}

// SetLogger sets the logger used for transition records.
func (t *Tracker) SetLogger(logger *slog.Logger) {
	if logger != nil {
		t.logger = logger
	}
}

// CurrentState returns the scenario's state, or Started.
func (t *Tracker) CurrentState(name string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if e, ok := t.scenarios[name]; ok {
		return e.state
	}
	return Started
}

// Visits returns how many matches the scenario has seen.
func (t *Tracker) Visits(name string) int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if e, ok := t.scenarios[name]; ok {
		return e.visits
	}
	return 0
}

// Get returns the scenario's state. Unknown scenarios report Started with no visits.
func (t *Tracker) Get(name string) State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if e, ok := t.scenarios[name]; ok {
		return State{Name: name, State: e.state, Visits: e.visits}
	}
	return State{Name: name, State: Started}
}

// Advance moves the scenario to newState without counting a visit.
func (t *Tracker) Advance(name, newState string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lookup(name).state = newState
}

// Set is the administrative form of Advance.
func (t *Tracker) Set(name, state string) {
	t.Advance(name, state)
	t.logger.Info("scenario state set", "scenario", name, "state", state)
}

// Transition records a match of a mapping bound to scenario name. When
// required is non-empty the scenario must currently be in that state;
// otherwise nothing changes and false is returned. On success the visit
// counter is incremented and, if newState is non-empty, the state advances.
func (t *Tracker) Transition(name, required, newState string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.lookup(name)
	if required != "" && e.state != required {
		return false
	}
	e.visits++
	from := e.state
	if newState != "" {
		e.state = newState
	}
	t.logger.Debug("scenario transition", "scenario", name, "from", from, "to", e.state, "visits", e.visits)
	return true
}

// States returns a copy of every scenario's current state name.
func (t *Tracker) States() map[string]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]string, len(t.scenarios))
	for name, e := range t.scenarios {
		out[name] = e.state
	}
	return out
}

// List returns every known scenario sorted by name.
func (t *Tracker) List() []State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]State, 0, len(t.scenarios))
	for name, e := range t.scenarios {
		out = append(out, State{Name: name, State: e.state, Visits: e.visits})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Reset forgets one scenario and reports whether it was known.
func (t *Tracker) Reset(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.scenarios[name]
	delete(t.scenarios, name)
	return ok
}

// ResetAll forgets every scenario.
func (t *Tracker) ResetAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scenarios = make(map[string]*entry)
}

// lookup returns the entry for name, creating it. Callers hold the write lock.
func (t *Tracker) lookup(name string) *entry {
	e, ok := t.scenarios[name]
	if !ok {
		e = &entry{state: Started}
		t.scenarios[name] = e
	}
	return e
}
