package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/nicheradar/internal/application/pipeline"
	"github.com/sawpanic/nicheradar/internal/config"
	"github.com/sawpanic/nicheradar/internal/data/cache"
	"github.com/sawpanic/nicheradar/internal/infrastructure/db"
	"github.com/sawpanic/nicheradar/internal/metrics"
	"github.com/sawpanic/nicheradar/internal/net/budget"
	"github.com/sawpanic/nicheradar/internal/net/circuit"
	"github.com/sawpanic/nicheradar/internal/net/ratelimit"
	"github.com/sawpanic/nicheradar/internal/net/retry"
	"github.com/sawpanic/nicheradar/internal/providers"
	"github.com/sawpanic/nicheradar/internal/providers/fixture"
	"github.com/sawpanic/nicheradar/internal/providers/googletrends"
)

const defaultConfigPath = "config.yaml"

// app is the wired dependency graph for one command invocation
type app struct {
	metrics  *metrics.Registry
	breakers *circuit.Manager
	limiter  *ratelimit.Limiter
	quota    *budget.Tracker
	cache    cache.Cache // nil when caching is off
	db       *db.Manager
	analyzer *pipeline.Analyzer
}

// loadConfig reads .env, the config file and environment, then applies flag overrides
func loadConfig(cmd *cobra.Command, opts *options) (config.Config, error) {
	if err := config.LoadEnvFile(".env"); err != nil {
		log.Warn().Err(err).Msg("Ignoring .env file")
	}

	path := opts.configPath
	if path == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			path = defaultConfigPath
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("source") {
		cfg.Source.Name = opts.source
	}
	if flags.Changed("fixture") {
		cfg.Source.Fixture = opts.fixture
		if !flags.Changed("source") {
			cfg.Source.Name = config.SourceFixture
		}
	}
	if flags.Changed("attempts") {
		cfg.Retry.Attempts = opts.attempts
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	if err := applyLogLevel(cfg.LogLevel); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// newApp wires source, breaker, limiter, cache, history and metrics into an Analyzer
func newApp(ctx context.Context, cfg config.Config, withCache bool) (*app, error) {
	source, err := newSource(cfg)
	if err != nil {
		return nil, err
	}

	m := metrics.NewRegistry()
	breakers := circuit.NewManager()
	breaker := circuit.NewBreaker(source.Name(), cfg.Circuit, providers.IsBreakerSuccess)
	breakers.Add(breaker)
	limiter := ratelimit.NewLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	quota := budget.NewTracker(source.Name(), cfg.Budget)
	guarded := providers.NewGuarded(source, breaker, limiter, m).WithBudget(quota)

	manager, err := db.NewManager(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}

	policy := retry.DefaultPolicy()
	policy.MaxAttempts = cfg.Retry.Attempts
	policy.Classify = nil

	opts := []pipeline.Option{
		pipeline.WithPolicy(policy),
		pipeline.WithMetrics(m),
	}
	var reports cache.Cache
	if withCache {
		reports = cache.New(cfg.Cache.Config)
		opts = append(opts, pipeline.WithCache(reports, cfg.Cache.TTL))
	}
	if repo := manager.Trends(); repo != nil {
		opts = append(opts, pipeline.WithHistory(repo))
	}

	log.Debug().
		Str("source", source.Name()).
		Int("attempts", cfg.Retry.Attempts).
		Bool("cache", withCache).
		Bool("history", manager.IsEnabled()).
		Msg("Pipeline wired")

	return &app{
		metrics:  m,
		breakers: breakers,
		limiter:  limiter,
		quota:    quota,
		cache:    reports,
		db:       manager,
		analyzer: pipeline.NewAnalyzer(guarded, opts...),
	}, nil
}

func newSource(cfg config.Config) (providers.Source, error) {
	switch cfg.Source.Name {
	case config.SourceFixture:
		src, err := fixture.Load(cfg.Source.Fixture)
		if err != nil {
			return nil, err
		}
		return src, nil
	case config.SourceGoogleTrends:
		return googletrends.NewClient(cfg.GoogleTrends), nil
	default:
		return nil, fmt.Errorf("unknown source %q", cfg.Source.Name)
	}
}

// exportMetrics writes the textfile when requested. Failures only warn.
func (a *app) exportMetrics(path string) {
	if path == "" {
		return
	}
	if err := a.metrics.WriteTextfile(path); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to write metrics textfile")
	}
}

func (a *app) Close() {
	for name, stats := range a.breakers.Stats() {
		log.Debug().
			Str("breaker", name).
			Str("state", stats.State).
			Uint32("requests", stats.Requests).
			Uint32("failures", stats.TotalFailures).
			Msg("Breaker summary")
	}
	if closer, ok := a.cache.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close report cache")
		}
	}
	if err := a.db.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close history store")
	}
}
