package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/getmockd/stubd/pkg/admin"
	"github.com/getmockd/stubd/pkg/config"
	"github.com/getmockd/stubd/pkg/engine"
	"github.com/getmockd/stubd/pkg/logging"
	"github.com/getmockd/stubd/pkg/metrics"
	"github.com/getmockd/stubd/pkg/requestlog"
	"github.com/getmockd/stubd/pkg/scenario"
	"github.com/getmockd/stubd/pkg/store"
	"github.com/getmockd/stubd/pkg/template"
)

// shutdownTimeout is the maximum time to wait for graceful shutdown.
const shutdownTimeout = 30 * time.Second

// serveFlagKeys maps serve flags to configuration keys.
var serveFlagKeys = map[string]string{
	"host":             "host",
	"port":             "port",
	"mappings-dir":     "mappingsDir",
	"read-static":      "readStaticMappings",
	"watch":            "watchStaticMappings",
	"admin":            "adminEnabled",
	"journal-size":     "journalSize",
	"allow-partial":    "allowPartialMapping",
	"min-score":        "minScore",
	"aggregation":      "aggregation",
	"not-found-status": "notFoundStatus",
	"near-misses":      "nearMisses",
	"max-body-size":    "maxBodySize",
	"log-level":        "logLevel",
	"log-format":       "logFormat",
	"loki-endpoint":    "lokiEndpoint",
	"read-timeout":     "readTimeout",
	"write-timeout":    "writeTimeout",
}

func newServeCommand() *cobra.Command {
	v := config.NewViper()
	var configFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the mock server (foreground)",
		Long: `Start the mock server in the foreground.

Options are read, in increasing precedence, from built-in defaults, the
--config file (JSON or YAML), STUBD_* environment variables and flags.`,
		Example: `  # Serve mappings from ./__admin/mappings on port 9091
  stubd serve

  # Custom directory, reloaded on change
  stubd serve --mappings-dir ./mappings --watch

  # Accept partial matches scoring at least 0.5
  stubd serve --allow-partial --min-score 0.5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v, configFile)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, nil)
		},
	}

	fs := cmd.Flags()
	d := config.Defaults()
	fs.StringVarP(&configFile, "config", "c", "", "Config file (JSON or YAML)")
	fs.String("host", d.Host, "Listen host")
	fs.IntP("port", "p", d.Port, "Listen port")
	fs.StringP("mappings-dir", "d", d.MappingsDir, "Static mapping directory")
	fs.Bool("read-static", d.ReadStaticMappings, "Load the static mapping directory at startup")
	fs.Bool("watch", d.WatchStaticMappings, "Reload static mappings when the directory changes")
	fs.Bool("admin", d.AdminEnabled, "Serve the admin API under "+engine.AdminPrefix)
	fs.Int("journal-size", d.JournalSize, "Served requests kept for the admin API (0 disables)")
	fs.Bool("allow-partial", d.AllowPartialMapping, "Answer with the best partial match when nothing matches fully")
	fs.Float64("min-score", d.MinScore, "Minimum score a match must exceed")
	fs.String("aggregation", d.Aggregation, "Score aggregation: mean or min")
	fs.Int("not-found-status", d.NotFoundStatus, "Status returned when nothing matches")
	fs.Int("near-misses", d.NearMisses, "Closest mappings listed in not-found responses")
	fs.Int64("max-body-size", d.MaxBodySize, "Maximum request body size in bytes")
	fs.String("log-level", d.LogLevel, "Log level (debug, info, warn, error)")
	fs.String("log-format", d.LogFormat, "Log format (text, json)")
	fs.String("loki-endpoint", d.LokiEndpoint, "Also push logs to this Loki push URL")
	fs.Duration("read-timeout", d.ReadTimeout, "HTTP read timeout")
	fs.Duration("write-timeout", d.WriteTimeout, "HTTP write timeout")

	if err := bindFlags(v, fs, serveFlagKeys); err != nil {
		panic(err)
	}
	return cmd
}

// bindFlags makes each flag override its configuration key when set.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet, keys map[string]string) error {
	for flag, key := range keys {
		f := fs.Lookup(flag)
		if f == nil {
			return fmt.Errorf("unknown flag %q", flag)
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding flag %q: %w", flag, err)
		}
	}
	return nil
}

// newLogger builds the process logger and the Loki handler to close on exit.
func newLogger(cfg *config.ServerConfig) (*slog.Logger, *logging.LokiHandler) {
	logger := logging.New(cfg.Logging())
	if cfg.LokiEndpoint == "" {
		return logger, nil
	}
	loki := logging.NewLokiHandler(cfg.LokiEndpoint,
		logging.WithLokiLabels(map[string]string{
			"service": "stubd",
			"port":    strconv.Itoa(cfg.Port),
		}),
		logging.WithLokiLevel(logging.ParseLevel(cfg.LogLevel)),
	)
	logger = slog.New(logging.NewMultiHandler(logger.Handler(), loki))
	logger.Info("log aggregation enabled", "endpoint", cfg.LokiEndpoint)
	return logger, loki
}

// stack is a wired server instance.
type stack struct {
	cfg     *config.ServerConfig
	log     *slog.Logger
	metrics *metrics.Metrics
	store   *store.Store
	tracker *scenario.Tracker
	engine  *engine.Engine
	server  *engine.Server
}

func buildStack(cfg *config.ServerConfig, log *slog.Logger) (*stack, error) {
	opts, err := cfg.EngineOptions()
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	st := store.New(
		store.WithLogger(logging.Component(log, "store")),
		store.WithOnChange(m.SetMappings),
	)
	tracker := scenario.NewTracker()
	tracker.SetLogger(logging.Component(log, "scenario"))
	sequences := template.NewSequenceStore()

	engineOpts := []engine.Option{
		engine.WithOptions(opts),
		engine.WithLogger(logging.Component(log, "engine")),
		engine.WithMetrics(m),
		engine.WithTemplates(template.NewWithSequences(sequences)),
	}
	var journal *requestlog.MemoryStore
	if cfg.JournalSize > 0 {
		journal = requestlog.NewMemoryStore(cfg.JournalSize)
		engineOpts = append(engineOpts, engine.WithJournal(journal))
	}
	eng := engine.New(st, tracker, engineOpts...)

	var adminHandler http.Handler
	if cfg.AdminEnabled {
		svcOpts := []admin.ServiceOption{
			admin.WithMappingsDir(cfg.MappingsDir, config.FormatJSON),
			admin.WithSequences(sequences),
			admin.WithLogger(logging.Component(log, "admin")),
		}
		if journal != nil {
			svcOpts = append(svcOpts, admin.WithJournal(journal))
		}
		svc := admin.NewService(st, tracker, svcOpts...)
		adminHandler = admin.NewAPI(svc,
			admin.WithMetrics(m),
			admin.WithMaxBodySize(cfg.MaxBodySize),
			admin.WithAPILogger(logging.Component(log, "admin")),
		).Handler()
	}

	srv := engine.NewServer(cfg.ServerSettings(), eng, adminHandler)
	srv.SetLogger(logging.Component(log, "server"))

	return &stack{cfg: cfg, log: log, metrics: m, store: st, tracker: tracker, engine: eng, server: srv}, nil
}

// loadStatic performs the startup load of the mapping directory.
func (s *stack) loadStatic() error {
	if !s.cfg.ReadStaticMappings {
		return nil
	}
	report, res, err := config.SyncStatic(s.store, s.cfg.MappingsDir)
	if err != nil {
		return fmt.Errorf("loading static mappings: %w", err)
	}
	for _, e := range report.Errors {
		s.log.Warn("skipped mapping document", "source", e.Source, "error", e.Err)
	}
	s.log.Info("static mappings loaded", "dir", s.cfg.MappingsDir, "documents", report.Documents, "mappings", len(res.IDs))
	return nil
}

// runServe serves until ctx is done. ready, when set, receives the bound
// address once the listener is up.
func runServe(ctx context.Context, cfg *config.ServerConfig, ready func(addr string)) error {
	log, loki := newLogger(cfg)
	if loki != nil {
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = loki.Close(closeCtx)
		}()
	}

	s, err := buildStack(cfg, log)
	if err != nil {
		return err
	}
	if err := s.loadStatic(); err != nil {
		return err
	}
	if err := s.server.Start(); err != nil {
		return err
	}
	if ready != nil {
		ready(s.server.Addr())
	}

	watchErr := make(chan error, 1)
	if cfg.WatchStaticMappings {
		if err := os.MkdirAll(cfg.MappingsDir, 0o755); err != nil {
			log.Warn("cannot create mapping directory", "dir", cfg.MappingsDir, "error", err)
		}
		w := config.NewWatcher(cfg.MappingsDir, s.store, config.WithWatcherLogger(logging.Component(log, "watcher")))
		go func() { watchErr <- w.Run(ctx) }()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-watchErr:
		if err != nil {
			runErr = fmt.Errorf("watching static mappings: %w", err)
		} else {
			<-ctx.Done()
		}
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.server.Stop(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, err)
	}
	return runErr
}
