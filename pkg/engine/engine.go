package engine

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/getmockd/stubd/pkg/logging"
	"github.com/getmockd/stubd/pkg/metrics"
	"github.com/getmockd/stubd/pkg/request"
	"github.com/getmockd/stubd/pkg/requestlog"
	"github.com/getmockd/stubd/pkg/scenario"
	"github.com/getmockd/stubd/pkg/store"
	"github.com/getmockd/stubd/pkg/template"
)

// ErrNoMappingMatched signals that no mapping accepted the request. It is
// answered with the not-found response and is never a server fault.
var ErrNoMappingMatched = errors.New("no mapping matched the request")

// maxTransitionAttempts bounds reselection when a concurrent request moves
// a scenario between selection and transition.
const maxTransitionAttempts = 8

// Engine matches requests against a store and applies scenario transitions.
type Engine struct {
	store     *store.Store
	tracker   *scenario.Tracker
	templates *template.Engine
	opts      Options
	logger    *slog.Logger
	metrics   *metrics.Metrics
	journal   requestlog.Logger
}

// New creates an engine over st and tracker.
func New(st *store.Store, tracker *scenario.Tracker, opts ...Option) *Engine {
	e := &Engine{
		store:     st,
		tracker:   tracker,
		templates: template.New(),
		opts:      DefaultOptions(),
		logger:    logging.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Options returns the engine's selection options.
func (e *Engine) Options() Options { return e.opts }

// Store returns the mapping store.
func (e *Engine) Store() *store.Store { return e.store }

// Tracker returns the scenario tracker.
func (e *Engine) Tracker() *scenario.Tracker { return e.tracker }

// Templates returns the template engine used for rendering.
func (e *Engine) Templates() *template.Engine { return e.templates }

// Match selects a mapping for req and applies its scenario transition
// exactly once. A HEAD request that matches nothing is retried as GET.
// The scenario transition is durable as soon as Match returns.
func (e *Engine) Match(req *request.Request) (*MatchResult, error) {
	snap := e.store.Snapshot()

	res, err := e.matchSnapshot(snap, req)
	if errors.Is(err, ErrNoMappingMatched) && req.Method == http.MethodHead {
		res, err = e.matchSnapshot(snap, req.WithMethod(http.MethodGet))
	}
	if err != nil {
		return nil, err
	}

	e.metrics.MappingHit(res.Mapping.ID)
	e.logger.Debug("request matched",
		"method", req.Method,
		"path", req.Path,
		"mapping_id", res.Mapping.ID,
		"score", res.Score,
		"partial", !res.Complete,
	)
	return res, nil
}

func (e *Engine) matchSnapshot(snap *store.Snapshot, req *request.Request) (*MatchResult, error) {
	for range maxTransitionAttempts {
		res, ok := Select(snap, req, e.tracker.States(), e.opts)
		if !ok {
			return nil, ErrNoMappingMatched
		}
		m := res.Mapping
		if m.ScenarioName == "" {
			return res, nil
		}
		if e.tracker.Transition(m.ScenarioName, m.RequiredState, m.NewState) {
			e.metrics.ScenarioTransition(m.ScenarioName)
			return res, nil
		}
		e.logger.Debug("scenario moved during selection, reselecting",
			"scenario", m.ScenarioName,
			"mapping_id", m.ID,
		)
	}
	e.logger.Warn("scenario contention exhausted reselection attempts",
		"method", req.Method,
		"path", req.Path,
	)
	return nil, ErrNoMappingMatched
}

// NearMisses returns the closest mappings for an unmatched request.
func (e *Engine) NearMisses(req *request.Request) []NearMiss {
	return Closest(e.store.Snapshot(), req, e.opts.Aggregation, e.opts.NearMisses)
}
