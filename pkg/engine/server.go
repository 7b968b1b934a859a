package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/getmockd/stubd/pkg/logging"
)

// AdminPrefix is where the admin API is mounted on the mock listener.
const AdminPrefix = "/__admin"

// ServerConfig holds listener settings.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server binds an Engine, and optionally the admin API, to one listener.
type Server struct {
	mu         sync.Mutex
	cfg        ServerConfig
	engine     *Engine
	admin      http.Handler
	httpServer *http.Server
	listener   net.Listener
	running    bool
	startTime  time.Time
	log        *slog.Logger
}

// NewServer creates a server for e. admin may be nil.
func NewServer(cfg ServerConfig, e *Engine, admin http.Handler) *Server {
	return &Server{cfg: cfg, engine: e, admin: admin, log: logging.Nop()}
}

// SetLogger sets the operational logger.
func (s *Server) SetLogger(log *slog.Logger) {
	if log != nil {
		s.log = log
	}
}

// Routes returns the top-level handler: the admin API under AdminPrefix and
// mock traffic everywhere else.
func (s *Server) Routes() http.Handler {
	mock := NewHandler(s.engine)
	if s.admin == nil {
		return mock
	}
	r := chi.NewRouter()
	r.Mount(AdminPrefix, s.admin)
	r.NotFound(mock.ServeHTTP)
	r.MethodNotAllowed(mock.ServeHTTP)
	return r
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("server is already running")
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}

	srv := s.httpServer
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("HTTP server error", "error", err)
		}
	}()

	s.running = true
	s.startTime = time.Now()
	s.log.Info("server started", "addr", ln.Addr().String(), "admin", s.admin != nil)
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// IsRunning reports whether the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Uptime returns how long the server has been running.
func (s *Server) Uptime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startTime)
}

// Stop gracefully shuts the server down, waiting for in-flight requests
// until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP shutdown: %w", err)
	}
	s.log.Info("server stopped")
	return nil
}
