package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stubd"

// Request outcomes.
const (
	OutcomeMatched   = "matched"
	OutcomeUnmatched = "unmatched"
	OutcomeError     = "error"
)

// Metrics groups the server's collectors.
type Metrics struct {
	registry *prometheus.Registry

	requests            *prometheus.CounterVec
	requestDuration     *prometheus.HistogramVec
	mappingHits         *prometheus.CounterVec
	mappings            prometheus.Gauge
	templateWarnings    prometheus.Counter
	scenarioTransitions *prometheus.CounterVec
	adminRequests       *prometheus.CounterVec
	adminDuration       *prometheus.HistogramVec
	inFlight            prometheus.Gauge
}

// New creates collectors registered on a fresh registry, together with the
// Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Stubbed requests by method, outcome and status code.",
		}, []string{"method", "outcome", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Stubbed request latency in seconds, including configured delays.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		mappingHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mapping_hits_total",
			Help:      "Requests answered by each mapping.",
		}, []string{"mapping_id"}),
		mappings: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mappings",
			Help:      "Mappings in the current store snapshot.",
		}),
		templateWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "template_warnings_total",
			Help:      "Responses rendered with unresolved template placeholders.",
		}),
		scenarioTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scenario_transitions_total",
			Help:      "Scenario transitions applied by matched requests.",
		}, []string{"scenario"}),
		adminRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admin_requests_total",
			Help:      "Admin API requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		adminDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "admin_request_duration_seconds",
			Help:      "Admin API latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "in_flight",
			Help:      "Requests currently being served.",
		}),
	}

	m.registry.MustRegister(
		m.requests, m.requestDuration, m.mappingHits, m.mappings,
		m.templateWarnings, m.scenarioTransitions,
		m.adminRequests, m.adminDuration, m.inFlight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRequest records one stubbed request.
func (m *Metrics) ObserveRequest(method, outcome string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, outcome, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// MappingHit counts a selection of mapping id.
func (m *Metrics) MappingHit(id string) {
	if m == nil {
		return
	}
	m.mappingHits.WithLabelValues(id).Inc()
}

// SetMappings records the snapshot size.
func (m *Metrics) SetMappings(n int) {
	if m == nil {
		return
	}
	m.mappings.Set(float64(n))
}

// TemplateWarning counts a render that left placeholders unresolved.
func (m *Metrics) TemplateWarning() {
	if m == nil {
		return
	}
	m.templateWarnings.Inc()
}

// ScenarioTransition counts an applied transition of scenario name.
func (m *Metrics) ScenarioTransition(name string) {
	if m == nil {
		return
	}
	m.scenarioTransitions.WithLabelValues(name).Inc()
}

// TrackInFlight increments the in-flight gauge and returns its decrement.
func (m *Metrics) TrackInFlight() func() {
	if m == nil {
		return func() {}
	}
	m.inFlight.Inc()
	return m.inFlight.Dec
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// Measure is chi middleware recording admin API calls. Routes are labelled
// by their chi pattern so path parameters do not explode cardinality.
func (m *Metrics) Measure(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		m.adminRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.code)).Inc()
		m.adminDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
