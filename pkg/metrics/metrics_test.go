package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Recorders(t *testing.T) {
	m := New()

	m.ObserveRequest("GET", OutcomeMatched, 200, 5*time.Millisecond)
	m.ObserveRequest("GET", OutcomeMatched, 200, time.Millisecond)
	m.ObserveRequest("POST", OutcomeUnmatched, 404, time.Millisecond)
	m.MappingHit("m1")
	m.SetMappings(3)
	m.TemplateWarning()
	m.ScenarioTransition("todo")
	m.ScenarioTransition("todo")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", OutcomeMatched, "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("POST", OutcomeUnmatched, "404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.mappingHits.WithLabelValues("m1")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.mappings))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.templateWarnings))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.scenarioTransitions.WithLabelValues("todo")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.requestDuration))
}

func TestMetrics_InFlight(t *testing.T) {
	m := New()
	done := m.TrackInFlight()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.inFlight))
	done()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.inFlight))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRequest("GET", OutcomeMatched, 200, 0)
		m.MappingHit("x")
		m.SetMappings(1)
		m.TemplateWarning()
		m.ScenarioTransition("s")
		m.TrackInFlight()()
	})
	assert.Nil(t, m.Registry())

	h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })
	rec := httptest.NewRecorder()
	m.Measure(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestMetrics_MeasureUsesRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Measure)
	r.Get("/mappings/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/mappings/"+id, nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.adminRequests.WithLabelValues("GET", "/mappings/{id}", "404")))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.SetMappings(7)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "stubd_mappings 7"))
	assert.True(t, strings.Contains(string(body), "go_goroutines"))
}
