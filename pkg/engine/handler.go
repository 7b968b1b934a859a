package engine

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/getmockd/stubd/pkg/httputil"
	"github.com/getmockd/stubd/pkg/metrics"
	"github.com/getmockd/stubd/pkg/request"
	"github.com/getmockd/stubd/pkg/requestlog"
)

// CodeNoMatch is the error code of the unmatched response.
const CodeNoMatch = "no_match"

// statusClientClosed records requests abandoned by the client during a delay.
const statusClientClosed = 499

// NotFoundResponse is the body of the unmatched response.
type NotFoundResponse struct {
	Error   string     `json:"error"`
	Message string     `json:"message"`
	Method  string     `json:"method"`
	Path    string     `json:"path"`
	Closest []NearMiss `json:"closest,omitempty"`
}

// Handler serves mock traffic through an Engine.
type Handler struct {
	engine *Engine
}

// NewHandler returns the http.Handler for e.
func NewHandler(e *Engine) *Handler {
	return &Handler{engine: e}
}

// ServeHTTP implements http.Handler. Panics raised while matching or
// rendering are answered with a 500 and never reach the server.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e := h.engine
	start := time.Now()
	defer e.metrics.TrackInFlight()()

	outcome, status := metrics.OutcomeError, http.StatusInternalServerError
	entry := &requestlog.Entry{
		Method:      r.Method,
		Path:        r.URL.Path,
		QueryString: r.URL.RawQuery,
		Headers:     r.Header.Clone(),
		RemoteAddr:  r.RemoteAddr,
	}
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error("panic serving mock request",
				"method", r.Method,
				"path", r.URL.Path,
				"panic", fmt.Sprint(rec),
			)
			httputil.WriteError(w, http.StatusInternalServerError, httputil.CodeInternal, "internal error while serving mock")
			outcome, status = metrics.OutcomeError, http.StatusInternalServerError
			entry.Error = fmt.Sprint(rec)
		}
		elapsed := time.Since(start)
		e.metrics.ObserveRequest(r.Method, outcome, status, elapsed)
		if e.journal != nil {
			entry.ResponseStatus = status
			entry.DurationMs = elapsed.Milliseconds()
			e.journal.Log(entry)
		}
	}()

	body, err := httputil.ReadBody(w, r, e.opts.MaxBodySize)
	if err != nil {
		e.logger.Warn("failed to read request body", "path", r.URL.Path, "error", err)
		httputil.WriteDecodeError(w, err)
		var de *httputil.DecodeError
		if errors.As(err, &de) {
			status = de.Status
		}
		entry.Error = err.Error()
		return
	}
	entry.Body = requestlog.TruncateBody(body)
	entry.BodySize = len(body)
	req := request.FromHTTP(r, body)

	res, err := e.Match(req)
	if err != nil {
		outcome, status = metrics.OutcomeUnmatched, e.opts.NotFoundStatus
		entry.NearMisses = h.writeNotFound(w, req)
		return
	}
	entry.MatchedMappingID = res.Mapping.ID
	entry.Score = res.Score
	entry.Partial = !res.Complete

	rendered, err := e.Render(res)
	if err != nil {
		e.logger.Error("failed to render response", "mapping_id", res.Mapping.ID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, httputil.CodeInternal, err.Error())
		entry.Error = err.Error()
		return
	}

	if rendered.Delay > 0 {
		timer := time.NewTimer(rendered.Delay)
		select {
		case <-timer.C:
		case <-r.Context().Done():
			timer.Stop()
			e.logger.Debug("client went away during delay", "mapping_id", res.Mapping.ID)
			outcome, status = metrics.OutcomeMatched, statusClientClosed
			entry.Error = r.Context().Err().Error()
			return
		}
	}

	for name, values := range rendered.Header {
		w.Header()[name] = values
	}
	w.WriteHeader(rendered.Status)
	if len(rendered.Body) > 0 {
		_, _ = w.Write(rendered.Body)
	}
	outcome, status = metrics.OutcomeMatched, rendered.Status
}

// writeNotFound answers an unmatched request and returns the near misses
// it reported.
func (h *Handler) writeNotFound(w http.ResponseWriter, req *request.Request) []requestlog.NearMissInfo {
	e := h.engine
	closest := e.NearMisses(req)
	e.logger.Debug("no mapping matched",
		"method", req.Method,
		"path", req.Path,
		"near_misses", len(closest),
	)
	w.Header().Set("X-Stubd-Near-Misses", strconv.Itoa(len(closest)))
	httputil.WriteJSON(w, e.opts.NotFoundStatus, NotFoundResponse{
		Error:   CodeNoMatch,
		Message: ErrNoMappingMatched.Error(),
		Method:  req.Method,
		Path:    req.Path,
		Closest: closest,
	})

	if len(closest) == 0 {
		return nil
	}
	infos := make([]requestlog.NearMissInfo, len(closest))
	for i, nm := range closest {
		infos[i] = requestlog.NearMissInfo{MappingID: nm.ID, Title: nm.Title, Score: nm.Score}
	}
	return infos
}
