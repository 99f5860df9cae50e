package main

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/pario-ai/replay/pkg/backend"
	"github.com/pario-ai/replay/pkg/config"
	"github.com/pario-ai/replay/pkg/replay"
	"github.com/pario-ai/replay/pkg/tracker"
	"github.com/pario-ai/replay/pkg/usage"
)

type globalOptions struct {
	configPath string
	cacheFile  string
	logLevel   string
}

// load reads the config file, applying command line overrides.
func (o *globalOptions) load() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.cacheFile != "" {
		cfg.CacheFile = o.cacheFile
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	return cfg, nil
}

func newLogger(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}).
		Level(lvl).
		With().Timestamp().Logger()
}

// session bundles a replay cache with the collaborators it owns.
type session struct {
	cache   *replay.Cache
	usage   *usage.Log
	tracker *tracker.SQLiteTracker
}

func (s *session) Close() error {
	if s.tracker != nil {
		return s.tracker.Close()
	}
	return nil
}

// openSession wires the backend, usage log, and tracker described by cfg
// into a replay cache. cacheOnly skips backend construction entirely.
func openSession(cfg *config.Config, logger zerolog.Logger, cacheOnly bool) (*session, error) {
	s := &session{}

	var recorder usage.Recorder
	if cfg.DBPath != "" {
		tr, err := tracker.New(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		s.tracker = tr
		recorder = tr
	}

	// Only live runs count tokens.
	var counter usage.Counter = usage.HeuristicCounter{}
	if !cacheOnly {
		if tc, err := usage.NewTiktokenCounter(cfg.Backend.Model); err == nil {
			counter = tc
		} else {
			logger.Debug().Err(err).Msg("tiktoken unavailable, estimating tokens")
		}
	}
	s.usage = usage.NewLog(cfg.Backend.Model, cfg.PricingFor(cfg.Backend.Model), counter, recorder, logger)

	avail := replay.Connect(func() (backend.Backend, error) {
		if cacheOnly {
			return nil, backend.ErrUnavailable
		}
		return backend.New(cfg.Backend, logger)
	})
	s.cache = replay.NewWithAvailability(replay.Config{
		Path:   cfg.CacheFile,
		Usage:  s.usage,
		Logger: logger,
	}, avail)
	return s, nil
}

// printSummary reports how the step was answered and what live calls cost.
func (s *session) printSummary(w io.Writer) error {
	stats, err := s.cache.Stats()
	if err != nil {
		return err
	}
	source := "fixture"
	if stats.Misses > 0 {
		source = "backend"
	}
	totals := s.usage.Totals()
	fmt.Fprintf(w, "answered from %s (entries %d, hits %d, misses %d, tokens %d, cost $%.4f)\n",
		source, stats.Entries, stats.Hits, stats.Misses, totals.TotalTokens, totals.Cost)
	return nil
}
