package engine

import (
	"log/slog"
	"net/http"

	"github.com/getmockd/stubd/internal/matching"
	"github.com/getmockd/stubd/pkg/httputil"
	"github.com/getmockd/stubd/pkg/metrics"
	"github.com/getmockd/stubd/pkg/requestlog"
	"github.com/getmockd/stubd/pkg/template"
)

// Options controls mapping selection and fallback behavior.
type Options struct {
	// AllowPartial lets the best incomplete mapping answer when nothing
	// matches completely.
	AllowPartial bool

	// MinScore is the acceptance threshold. Complete candidates must score
	// above it; partial candidates must reach it.
	MinScore float64

	Aggregation matching.Aggregation

	// NotFoundStatus is the status of the unmatched response.
	NotFoundStatus int

	MaxBodySize int64

	// NearMisses is how many closest mappings the unmatched response lists.
	NearMisses int
}

// DefaultOptions returns the stock selection options.
func DefaultOptions() Options {
	return Options{
		Aggregation:    matching.AggregateMean,
		NotFoundStatus: http.StatusNotFound,
		MaxBodySize:    httputil.DefaultMaxBodySize,
		NearMisses:     3,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Aggregation == "" {
		o.Aggregation = d.Aggregation
	}
	if o.NotFoundStatus == 0 {
		o.NotFoundStatus = d.NotFoundStatus
	}
	if o.MaxBodySize <= 0 {
		o.MaxBodySize = d.MaxBodySize
	}
	if o.NearMisses < 0 {
		o.NearMisses = 0
	}
	return o
}

// Option configures an Engine.
type Option func(*Engine)

// WithOptions sets the selection options.
func WithOptions(opts Options) Option {
	return func(e *Engine) {
		e.opts = opts.withDefaults()
	}
}

// WithLogger sets the operational logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics records selections and renders on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithTemplates sets the template engine used by the renderer.
func WithTemplates(t *template.Engine) Option {
	return func(e *Engine) {
		if t != nil {
			e.templates = t
		}
	}
}

// WithJournal records every served request in j.
func WithJournal(j requestlog.Logger) Option {
	return func(e *Engine) {
		e.journal = j
	}
}
