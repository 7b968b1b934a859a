package admin

import (
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/getmockd/stubd/pkg/config"
	"github.com/getmockd/stubd/pkg/httputil"
	"github.com/getmockd/stubd/pkg/logging"
	"github.com/getmockd/stubd/pkg/mapping"
	"github.com/getmockd/stubd/pkg/metrics"
	"github.com/getmockd/stubd/pkg/requestlog"
)

// API serves Service over HTTP.
type API struct {
	svc         *Service
	metrics     *metrics.Metrics
	maxBodySize int64
	logger      *slog.Logger
}

// APIOption configures an API.
type APIOption func(*API)

// WithMetrics instruments the admin routes and serves /metrics.
func WithMetrics(m *metrics.Metrics) APIOption {
	return func(a *API) { a.metrics = m }
}

// WithMaxBodySize bounds request bodies. Zero uses httputil.DefaultMaxBodySize.
func WithMaxBodySize(n int64) APIOption {
	return func(a *API) { a.maxBodySize = n }
}

// WithAPILogger sets the logger.
func WithAPILogger(logger *slog.Logger) APIOption {
	return func(a *API) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAPI creates an API over svc.
func NewAPI(svc *Service, opts ...APIOption) *API {
	a := &API{svc: svc, logger: logging.Nop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns the admin router. Paths are relative to the mount point.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if a.metrics != nil {
		r.Use(a.metrics.Measure)
		r.Method(http.MethodGet, "/metrics", a.metrics.Handler())
	}

	r.Get("/health", a.handleHealth)

	r.Route("/mappings", func(r chi.Router) {
		r.Get("/", a.handleListMappings)
		r.Post("/", a.handleCreateMapping)
		r.Delete("/", a.handleResetMappings)
		r.Post("/reset", a.handleResetMappings)
		r.Post("/import", a.handleImport)
		r.Get("/export", a.handleExport)
		r.Post("/save", a.handleSave)
		r.Post("/reload", a.handleReload)

		r.Get("/{id}", a.handleGetMapping)
		r.Put("/{id}", a.handleUpdateMapping)
		r.Delete("/{id}", a.handleDeleteMapping)
	})

	r.Route("/requests", func(r chi.Router) {
		r.Get("/", a.handleListRequests)
		r.Delete("/", a.handleClearRequests)
		r.Get("/unmatched", a.handleListUnmatched)
		r.Get("/{id}", a.handleGetRequest)
	})

	r.Route("/scenarios", func(r chi.Router) {
		r.Get("/", a.handleListScenarios)
		r.Post("/reset", a.handleResetScenarios)
		r.Get("/{name}", a.handleGetScenario)
		r.Put("/{name}/state", a.handleSetScenarioState)
		r.Post("/{name}/reset", a.handleResetScenario)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteError(w, http.StatusNotFound, httputil.CodeNotFound, "unknown admin route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
	return r
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Mappings int    `json:"mappings"`
}

// MappingList is the body of GET /mappings.
type MappingList struct {
	Mappings []*mapping.Mapping `json:"mappings"`
	Count    int                `json:"count"`
}

// ResetResponse reports removed mappings.
type ResetResponse struct {
	Removed int `json:"removed"`
}

// ImportResponse is the body of POST /mappings/import.
type ImportResponse struct {
	Documents int           `json:"documents"`
	IDs       []string      `json:"ids"`
	Created   int           `json:"created"`
	Errors    []ImportError `json:"errors,omitempty"`
}

// ImportError describes a skipped document.
type ImportError struct {
	Source  string `json:"source"`
	Message string `json:"message"`
}

// SaveResponse is the body of POST /mappings/save.
type SaveResponse struct {
	Files []string `json:"files"`
}

// ReloadResponse is the body of POST /mappings/reload.
type ReloadResponse struct {
	Documents int           `json:"documents"`
	Mappings  int           `json:"mappings"`
	Removed   int           `json:"removed"`
	Errors    []ImportError `json:"errors,omitempty"`
}

// ScenarioStateRequest is the body of PUT /scenarios/{name}/state.
type ScenarioStateRequest struct {
	State string `json:"state"`
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, HealthResponse{Status: "ok", Mappings: a.svc.MappingCount()})
}

func (a *API) handleListMappings(w http.ResponseWriter, _ *http.Request) {
	list := a.svc.ListMappings()
	if list == nil {
		list = []*mapping.Mapping{}
	}
	httputil.WriteJSON(w, http.StatusOK, MappingList{Mappings: list, Count: len(list)})
}

func (a *API) handleCreateMapping(w http.ResponseWriter, r *http.Request) {
	var m mapping.Mapping
	if err := httputil.DecodeJSON(w, r, a.maxBodySize, &m); err != nil {
		httputil.WriteDecodeError(w, err)
		return
	}
	a.upsert(w, &m)
}

func (a *API) handleUpdateMapping(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var m mapping.Mapping
	if err := httputil.DecodeJSON(w, r, a.maxBodySize, &m); err != nil {
		httputil.WriteDecodeError(w, err)
		return
	}
	if m.ID != "" && m.ID != id {
		httputil.WriteErrorWithDetails(w, http.StatusBadRequest, httputil.CodeValidationError,
			"mapping id does not match the path", fieldDetail("id", "must match the path"))
		return
	}
	m.ID = id
	a.upsert(w, &m)
}

func (a *API) upsert(w http.ResponseWriter, m *mapping.Mapping) {
	saved, created, err := a.svc.UpsertMapping(m)
	if err != nil {
		a.writeError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, saved)
}

func (a *API) handleGetMapping(w http.ResponseWriter, r *http.Request) {
	m, err := a.svc.GetMapping(chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, m)
}

func (a *API) handleDeleteMapping(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.DeleteMapping(chi.URLParam(r, "id")); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleResetMappings(w http.ResponseWriter, r *http.Request) {
	keep, _ := strconv.ParseBool(r.URL.Query().Get("keepPersistent"))
	httputil.WriteJSON(w, http.StatusOK, ResetResponse{Removed: a.svc.ResetMappings(keep)})
}

func (a *API) handleImport(w http.ResponseWriter, r *http.Request) {
	body, err := httputil.ReadBody(w, r, a.maxBodySize)
	if err != nil {
		httputil.WriteDecodeError(w, err)
		return
	}
	format, err := requestFormat(r, body)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, httputil.CodeBadRequest, err.Error())
		return
	}

	res, err := a.svc.LoadDocuments([]config.RawDocument{{Source: "admin", Data: body, Format: format}})
	if err != nil {
		a.writeError(w, err)
		return
	}
	out := ImportResponse{
		Documents: res.Report.Documents,
		IDs:       res.IDs,
		Created:   res.Created,
		Errors:    importErrors(res.Report),
	}
	if out.IDs == nil {
		out.IDs = []string{}
	}
	if len(res.IDs) == 0 && len(out.Errors) > 0 {
		httputil.WriteErrorWithDetails(w, http.StatusBadRequest, httputil.CodeValidationError,
			"no mappings imported", out.Errors)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (a *API) handleExport(w http.ResponseWriter, r *http.Request) {
	format := config.FormatJSON
	if q := r.URL.Query().Get("format"); q != "" {
		f, err := config.ParseFormat(q)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, httputil.CodeBadRequest, err.Error())
			return
		}
		format = f
	}
	data, err := a.svc.Export(format)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if format == config.FormatYAML {
		w.Header().Set("Content-Type", "application/yaml")
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (a *API) handleSave(w http.ResponseWriter, _ *http.Request) {
	files, err := a.svc.SaveDocuments()
	if err != nil {
		a.writeError(w, err)
		return
	}
	if files == nil {
		files = []string{}
	}
	httputil.WriteJSON(w, http.StatusOK, SaveResponse{Files: files})
}

func (a *API) handleReload(w http.ResponseWriter, _ *http.Request) {
	report, res, err := a.svc.ReloadStatic()
	if err != nil {
		a.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ReloadResponse{
		Documents: report.Documents,
		Mappings:  len(res.IDs),
		Removed:   len(res.Deleted),
		Errors:    importErrors(report),
	})
}

func (a *API) handleListScenarios(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"scenarios": a.svc.ListScenarios()})
}

func (a *API) handleGetScenario(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, a.svc.GetScenarioState(chi.URLParam(r, "name")))
}

func (a *API) handleSetScenarioState(w http.ResponseWriter, r *http.Request) {
	var req ScenarioStateRequest
	if err := httputil.DecodeJSON(w, r, a.maxBodySize, &req); err != nil {
		httputil.WriteDecodeError(w, err)
		return
	}
	st, err := a.svc.SetScenarioState(chi.URLParam(r, "name"), req.State)
	if err != nil {
		a.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, st)
}

func (a *API) handleResetScenarios(w http.ResponseWriter, _ *http.Request) {
	a.svc.ResetScenarios()
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleResetScenario(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.ResetScenario(chi.URLParam(r, "name")); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RequestList is the body of GET /requests.
type RequestList struct {
	Requests []*requestlog.Entry `json:"requests"`
	Count    int                 `json:"count"`
}

func (a *API) handleListRequests(w http.ResponseWriter, r *http.Request) {
	filter, err := requestFilter(r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, httputil.CodeBadRequest, err.Error())
		return
	}
	a.writeRequests(w, filter)
}

func (a *API) handleListUnmatched(w http.ResponseWriter, r *http.Request) {
	filter, err := requestFilter(r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, httputil.CodeBadRequest, err.Error())
		return
	}
	filter.Matched = requestlog.Bool(false)
	a.writeRequests(w, filter)
}

func (a *API) writeRequests(w http.ResponseWriter, filter *requestlog.Filter) {
	entries, err := a.svc.ListRequests(filter)
	if err != nil {
		a.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, RequestList{Requests: entries, Count: len(entries)})
}

func (a *API) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	e, err := a.svc.GetRequest(chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, e)
}

func (a *API) handleClearRequests(w http.ResponseWriter, _ *http.Request) {
	n, err := a.svc.ClearRequests()
	if err != nil {
		a.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int{"cleared": n})
}

// requestFilter reads method, path, mapping, status, matched, limit and
// offset query parameters.
func requestFilter(r *http.Request) (*requestlog.Filter, error) {
	q := r.URL.Query()
	f := &requestlog.Filter{
		Method:     q.Get("method"),
		PathPrefix: q.Get("path"),
		MappingID:  q.Get("mapping"),
	}
	ints := []struct {
		name string
		dst  *int
	}{
		{"status", &f.Status},
		{"limit", &f.Limit},
		{"offset", &f.Offset},
	}
	for _, p := range ints {
		if v := q.Get(p.name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return nil, fmt.Errorf("invalid %s %q", p.name, v)
			}
			*p.dst = n
		}
	}
	if v := q.Get("matched"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid matched %q", v)
		}
		f.Matched = &b
	}
	return f, nil
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	var ve *mapping.ValidationError
	var nf *NotFoundError
	switch {
	case errors.As(err, &ve):
		httputil.WriteErrorWithDetails(w, http.StatusBadRequest, httputil.CodeValidationError,
			ve.Error(), fieldDetail(ve.Field, ve.Message))
	case errors.As(err, &nf):
		httputil.WriteError(w, http.StatusNotFound, httputil.CodeNotFound, nf.Error())
	case errors.Is(err, ErrNoMappingsDir):
		httputil.WriteError(w, http.StatusConflict, "no_mappings_dir", err.Error())
	case errors.Is(err, ErrJournalDisabled):
		httputil.WriteError(w, http.StatusConflict, "journal_disabled", err.Error())
	default:
		a.logger.Error("admin request failed", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, httputil.CodeInternal, err.Error())
	}
}

func fieldDetail(field, message string) map[string]string {
	return map[string]string{"field": field, "message": message}
}

func importErrors(report *config.LoadReport) []ImportError {
	if report == nil || len(report.Errors) == 0 {
		return nil
	}
	out := make([]ImportError, len(report.Errors))
	for i, e := range report.Errors {
		out[i] = ImportError{Source: e.Source, Message: e.Err.Error()}
	}
	return out
}

// requestFormat picks the document format from ?format=, then the
// Content-Type, then the body itself.
func requestFormat(r *http.Request, body []byte) (config.Format, error) {
	if q := r.URL.Query().Get("format"); q != "" {
		return config.ParseFormat(q)
	}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err == nil {
			switch mt {
			case "application/json":
				return config.FormatJSON, nil
			case "application/yaml", "application/x-yaml", "text/yaml", "text/x-yaml":
				return config.FormatYAML, nil
			}
		}
	}
	return config.DetectFormat(body), nil
}
