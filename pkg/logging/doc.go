// Package logging builds the slog loggers used across stubd.
//
// Every component accepts a *slog.Logger through its constructor options or a
// SetLogger method and falls back to Nop when none is given:
//
//	logger := logging.New(logging.Config{
//	    Level:  logging.ParseLevel(cfg.LogLevel),
//	    Format: logging.ParseFormat(cfg.LogFormat),
//	})
//	eng := engine.New(st, tracker, engine.WithLogger(logging.Component(logger, "engine")))
//
// Text output is meant for terminals, JSON output for log shippers.
package logging
