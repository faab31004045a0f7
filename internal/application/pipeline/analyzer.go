// Package pipeline turns a topic into a report: fetch with retries, derive, or
// fall back to synthetic data, then assemble, cache and record history.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/nicheradar/internal/data/cache"
	"github.com/sawpanic/nicheradar/internal/metrics"
	"github.com/sawpanic/nicheradar/internal/net/circuit"
	"github.com/sawpanic/nicheradar/internal/net/retry"
	"github.com/sawpanic/nicheradar/internal/persistence"
	"github.com/sawpanic/nicheradar/internal/providers"
	"github.com/sawpanic/nicheradar/internal/trends"
)

// ErrEmptyTopic is the only error Analyze returns
var ErrEmptyTopic = errors.New("no topic provided")

// Outcome is a finished run with its bookkeeping
type Outcome struct {
	RunID    string
	Topic    string
	Report   *trends.Report
	Attempts int
	Cached   bool
	Reason   string
}

// Analyzer runs the report pipeline against one source
type Analyzer struct {
	source   providers.Source
	policy   retry.Policy
	engine   *trends.Engine
	fallback *trends.Generator
	cache    cache.Cache
	cacheTTL time.Duration
	history  persistence.TrendRepo
	metrics  *metrics.Registry
	runID    func() string
	now      func() time.Time
	rand     trends.Rand
}

// Option configures an Analyzer
type Option func(*Analyzer)

// WithPolicy replaces the default retry policy. A nil Classify uses Classifier.
func WithPolicy(p retry.Policy) Option {
	return func(a *Analyzer) { a.policy = p }
}

// WithRand sets the randomness source for placeholder and synthetic values
func WithRand(r trends.Rand) Option {
	return func(a *Analyzer) { a.rand = r }
}

// WithClock sets the clock used for synthetic dates, insights and history
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// WithCache enables the report cache. Only measured reports are stored.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(a *Analyzer) {
		a.cache = c
		a.cacheTTL = ttl
	}
}

// WithHistory enables best-effort history writes
func WithHistory(repo persistence.TrendRepo) Option {
	return func(a *Analyzer) { a.history = repo }
}

// WithMetrics records pipeline metrics into m
func WithMetrics(m *metrics.Registry) Option {
	return func(a *Analyzer) { a.metrics = m }
}

// WithRunID overrides run id generation
func WithRunID(fn func() string) Option {
	return func(a *Analyzer) { a.runID = fn }
}

// NewAnalyzer creates an analyzer over source
func NewAnalyzer(source providers.Source, opts ...Option) *Analyzer {
	policy := retry.DefaultPolicy()
	policy.Classify = nil

	a := &Analyzer{
		source:   source,
		policy:   policy,
		cacheTTL: cache.DefaultTTL,
		runID:    func() string { return uuid.NewString() },
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.rand == nil {
		a.rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if a.cacheTTL <= 0 {
		a.cacheTTL = cache.DefaultTTL
	}
	r := &lockedRand{r: a.rand}
	a.engine = trends.NewEngine(r, a.now)
	a.fallback = trends.NewGenerator(r, a.now)
	return a
}

// Analyze returns a structurally valid report for topic, real or synthetic
func (a *Analyzer) Analyze(ctx context.Context, topic string) (*trends.Report, error) {
	out, err := a.Run(ctx, topic)
	if err != nil {
		return nil, err
	}
	return out.Report, nil
}

// Run is Analyze plus run metadata
func (a *Analyzer) Run(ctx context.Context, topic string) (*Outcome, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, ErrEmptyTopic
	}

	out := &Outcome{RunID: a.runID(), Topic: topic}
	logger := log.With().Str("topic", topic).Str("run_id", out.RunID).Logger()

	defer a.metrics.TrackActive()()

	if report, ok := a.cached(ctx, topic, logger); ok {
		out.Report = report
		out.Cached = true
		a.metrics.RecordReport(report.Path(), report.Score, 0)
		logger.Info().Str("path", report.Path()).Int("score", report.Score).Msg("Serving cached report")
		return out, nil
	}

	policy := a.policy
	if policy.Classify == nil {
		policy.Classify = Classifier(ctx)
	}
	onRetry := policy.OnRetry
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warn().Err(err).Int("attempt", attempt).Dur("backoff", delay).Msg("Fetch attempt failed, retrying")
		if onRetry != nil {
			onRetry(attempt, err, delay)
		}
	}

	timer := a.metrics.StartStepTimer("fetch")
	result := retry.Do(ctx, policy, func(ctx context.Context, attempt int) (trends.Fields, error) {
		logger.Debug().Int("attempt", attempt).Str("source", a.source.Name()).Msg("Fetching trend data")
		return a.attempt(ctx, topic)
	})
	out.Attempts = result.Attempts
	a.recordBreaker()

	if result.OK() {
		timer.Stop("success")
		out.Report = trends.Assemble(result.Value, trends.MeasuredOrigin())
	} else {
		out.Reason = fallbackReason(result.Err, result.Exhausted)
		timer.Stop(out.Reason)
		a.metrics.RecordFallback(out.Reason)

		event := logger.Warn()
		if out.Reason == ReasonNoData {
			event = logger.Info()
		}
		event.Err(result.Err).Str("reason", out.Reason).Int("attempts", result.Attempts).
			Msg("Using synthetic fallback report")

		out.Report = trends.Assemble(a.fallback.Generate(topic), trends.FallbackOrigin(result.Err))
	}

	a.metrics.RecordReport(out.Report.Path(), out.Report.Score, out.Attempts)
	logger.Info().
		Str("path", out.Report.Path()).
		Int("score", out.Report.Score).
		Int("attempts", out.Attempts).
		Interface("provenance", out.Report.Provenance).
		Msg("Report ready")

	if !out.Report.IsMock {
		a.store(ctx, topic, out.Report, logger)
	}
	a.record(ctx, out, logger)
	return out, nil
}

// attempt is one fetch-and-derive pass. An empty series stops before the
// remaining calls are made.
func (a *Analyzer) attempt(ctx context.Context, topic string) (trends.Fields, error) {
	series, err := a.source.InterestOverTime(ctx, topic)
	if err != nil {
		return trends.Fields{}, fmt.Errorf("interest over time: %w", err)
	}
	if len(series) == 0 {
		return trends.Fields{}, fmt.Errorf("%w for the topic: %s", trends.ErrNoData, topic)
	}

	rising, err := a.source.RisingQueries(ctx, topic)
	if err != nil {
		return trends.Fields{}, fmt.Errorf("rising queries: %w", err)
	}

	regions, err := a.source.InterestByRegion(ctx, topic)
	if err != nil {
		return trends.Fields{}, fmt.Errorf("interest by region: %w", err)
	}

	return a.engine.Derive(topic, trends.RawData{Series: series, Rising: rising, Regions: regions})
}

type cachedReport struct {
	Report     *trends.Report               `json:"report"`
	Provenance map[string]trends.Provenance `json:"provenance"`
}

func (a *Analyzer) cached(ctx context.Context, topic string, logger zerolog.Logger) (*trends.Report, bool) {
	if a.cache == nil {
		return nil, false
	}

	data, ok, err := a.cache.Get(ctx, cache.Key(topic))
	if err != nil {
		logger.Warn().Err(err).Str("cache", a.cache.Kind()).Msg("Report cache lookup failed")
		a.metrics.RecordCacheMiss(a.cache.Kind())
		return nil, false
	}
	if !ok {
		a.metrics.RecordCacheMiss(a.cache.Kind())
		return nil, false
	}

	var entry cachedReport
	if err := json.Unmarshal(data, &entry); err != nil || entry.Report == nil {
		logger.Warn().Err(err).Msg("Discarding unreadable cached report")
		a.metrics.RecordCacheMiss(a.cache.Kind())
		return nil, false
	}
	entry.Report.Provenance = entry.Provenance
	a.metrics.RecordCacheHit(a.cache.Kind())
	return entry.Report, true
}

func (a *Analyzer) store(ctx context.Context, topic string, report *trends.Report, logger zerolog.Logger) {
	if a.cache == nil {
		return
	}
	data, err := json.Marshal(cachedReport{Report: report, Provenance: report.Provenance})
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to encode report for cache")
		return
	}
	if err := a.cache.Set(ctx, cache.Key(topic), data, a.cacheTTL); err != nil {
		logger.Warn().Err(err).Str("cache", a.cache.Kind()).Msg("Failed to cache report")
	}
}

func (a *Analyzer) record(ctx context.Context, out *Outcome, logger zerolog.Logger) {
	if a.history == nil {
		return
	}
	entry, err := persistence.NewTrendEntry(out.RunID, out.Topic, out.Report, out.Attempts, a.now())
	if err == nil {
		var id int64
		id, err = a.history.Insert(ctx, entry)
		if err == nil {
			logger.Debug().Int64("history_id", id).Msg("Report stored in history")
		}
	}
	a.metrics.RecordHistoryWrite(err)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to store report history")
	}
}

func (a *Analyzer) recordBreaker() {
	guarded, ok := a.source.(interface{ Breaker() *circuit.Breaker })
	if !ok || guarded.Breaker() == nil {
		return
	}
	b := guarded.Breaker()
	a.metrics.SetBreakerState(b.Name(), b.State().String())
}

// lockedRand serializes access so concurrent runs can share one source
type lockedRand struct {
	mu sync.Mutex
	r  trends.Rand
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}
