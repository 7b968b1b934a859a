package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultLokiFlushInterval is how often buffered records are pushed.
const DefaultLokiFlushInterval = 5 * time.Second

// LokiHandler is a slog.Handler pushing JSON log lines to a Loki
// /loki/api/v1/push endpoint. Handlers derived with WithAttrs or WithGroup
// share the parent's buffer.
type LokiHandler struct {
	sink   *lokiSink
	level  slog.Leveler
	attrs  []slog.Attr
	prefix string
}

type lokiSink struct {
	url       string
	labels    map[string]string
	client    *http.Client
	batchSize int
	interval  time.Duration

	mu    sync.Mutex
	batch [][2]string
	timer *time.Timer
}

type lokiStream struct {
	Stream map[string]string `json:"stream"`
	Values [][2]string       `json:"values"`
}

type lokiPush struct {
	Streams []lokiStream `json:"streams"`
}

// LokiOption configures a LokiHandler.
type LokiOption func(*LokiHandler)

// WithLokiLabels adds stream labels.
func WithLokiLabels(labels map[string]string) LokiOption {
	return func(h *LokiHandler) {
		for k, v := range labels {
			h.sink.labels[k] = v
		}
	}
}

// WithLokiLevel sets the minimum level pushed.
func WithLokiLevel(level slog.Leveler) LokiOption {
	return func(h *LokiHandler) { h.level = level }
}

// WithLokiBatchSize flushes once size records are buffered.
func WithLokiBatchSize(size int) LokiOption {
	return func(h *LokiHandler) {
		if size > 0 {
			h.sink.batchSize = size
		}
	}
}

// WithLokiClient replaces the HTTP client.
func WithLokiClient(c *http.Client) LokiOption {
	return func(h *LokiHandler) {
		if c != nil {
			h.sink.client = c
		}
	}
}

// WithLokiFlushInterval sets the periodic flush interval.
func WithLokiFlushInterval(d time.Duration) LokiOption {
	return func(h *LokiHandler) {
		if d > 0 {
			h.sink.interval = d
		}
	}
}

// NewLokiHandler creates a handler pushing to url. Close it to flush the
// remaining records.
func NewLokiHandler(url string, opts ...LokiOption) *LokiHandler {
	h := &LokiHandler{
		sink: &lokiSink{
			url:       url,
			labels:    map[string]string{"job": "stubd"},
			client:    &http.Client{Timeout: 5 * time.Second},
			batchSize: 100,
			interval:  DefaultLokiFlushInterval,
		},
		level: LevelInfo,
	}
	for _, opt := range opts {
		opt(h)
	}
	s := h.sink
	s.timer = time.AfterFunc(s.interval, func() {
		_ = s.flush(context.Background())
		s.mu.Lock()
		if s.timer != nil {
			s.timer.Reset(s.interval)
		}
		s.mu.Unlock()
	})
	return h
}

// Enabled implements slog.Handler.
func (h *LokiHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *LokiHandler) Handle(_ context.Context, r slog.Record) error {
	line := map[string]any{
		"level": r.Level.String(),
		"msg":   r.Message,
	}
	for _, a := range h.attrs {
		line[a.Key] = a.Value.Resolve().Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		line[h.prefix+a.Key] = a.Value.Resolve().Any()
		return true
	})
	data, err := json.Marshal(line)
	if err != nil {
		return err
	}

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	s := h.sink
	s.mu.Lock()
	s.batch = append(s.batch, [2]string{strconv.FormatInt(ts.UnixNano(), 10), string(data)})
	full := len(s.batch) >= s.batchSize
	s.mu.Unlock()

	if full {
		go func() { _ = s.flush(context.Background()) }()
	}
	return nil
}

// WithAttrs implements slog.Handler.
func (h *LokiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	c.attrs = append(c.attrs, h.attrs...)
	for _, a := range attrs {
		c.attrs = append(c.attrs, slog.Attr{Key: h.prefix + a.Key, Value: a.Value})
	}
	return &c
}

// WithGroup implements slog.Handler. Grouped keys are dotted.
func (h *LokiHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.prefix = h.prefix + name + "."
	return &c
}

// Flush pushes every buffered record.
func (h *LokiHandler) Flush(ctx context.Context) error {
	return h.sink.flush(ctx)
}

// Close stops the periodic flush and pushes what is left.
func (h *LokiHandler) Close(ctx context.Context) error {
	s := h.sink
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	return s.flush(ctx)
}

func (s *lokiSink) flush(ctx context.Context) error {
	s.mu.Lock()
	batch := s.batch
	s.batch = nil
	s.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}

	body, err := json.Marshal(lokiPush{Streams: []lokiStream{{Stream: s.labels, Values: batch}}})
	if err != nil {
		return fmt.Errorf("failed to marshal loki push: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create loki request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to push logs to loki: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("loki push to %s: status %d", strings.TrimSuffix(s.url, "/"), resp.StatusCode)
	}
	return nil
}
