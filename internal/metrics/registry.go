package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	io_prometheus_client "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog/log"
)

// Registry holds all Prometheus metrics for nicheradar.
// A nil *Registry is valid and records nothing.
type Registry struct {
	registry *prometheus.Registry

	// Pipeline metrics
	Reports       *prometheus.CounterVec
	Fallbacks     *prometheus.CounterVec
	Attempts      prometheus.Histogram
	StepDuration  *prometheus.HistogramVec
	ReportScore   *prometheus.HistogramVec
	ActiveReports prometheus.Gauge

	// Source metrics
	SourceCalls   *prometheus.CounterVec
	SourceLatency *prometheus.HistogramVec
	BreakerState  *prometheus.GaugeVec

	// Cache and history metrics
	CacheHits     *prometheus.CounterVec
	CacheMisses   *prometheus.CounterVec
	CacheHitRatio prometheus.Gauge
	HistoryWrites *prometheus.CounterVec
}

// NewRegistry creates a registry with all nicheradar metrics registered
func NewRegistry() *Registry {
	m := &Registry{
		registry: prometheus.NewRegistry(),

		Reports: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nicheradar_reports_total",
				Help: "Total number of reports emitted by path (real or mock)",
			},
			[]string{"path"},
		),

		Fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nicheradar_fallbacks_total",
				Help: "Total number of synthetic fallbacks by trigger",
			},
			[]string{"reason"},
		),

		Attempts: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "nicheradar_fetch_attempts",
				Help:    "Number of fetch attempts per report",
				Buckets: []float64{1, 2, 3, 4, 5},
			},
		),

		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nicheradar_step_duration_seconds",
				Help:    "Duration of each pipeline step in seconds",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"step", "result"},
		),

		ReportScore: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nicheradar_report_score",
				Help:    "Distribution of niche scores by path",
				Buckets: prometheus.LinearBuckets(10, 10, 10),
			},
			[]string{"path"},
		),

		ActiveReports: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "nicheradar_active_reports",
				Help: "Number of reports currently being built",
			},
		),

		SourceCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nicheradar_source_calls_total",
				Help: "Total number of source calls by source, operation and outcome",
			},
			[]string{"source", "op", "outcome"},
		),

		SourceLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nicheradar_source_latency_seconds",
				Help:    "Source call latency in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
			},
			[]string{"source", "op"},
		),

		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "nicheradar_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"breaker"},
		),

		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nicheradar_cache_hits_total",
				Help: "Total number of report cache hits by backend",
			},
			[]string{"cache_type"},
		),

		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nicheradar_cache_misses_total",
				Help: "Total number of report cache misses by backend",
			},
			[]string{"cache_type"},
		),

		CacheHitRatio: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "nicheradar_cache_hit_ratio",
				Help: "Current report cache hit ratio (0.0 to 1.0)",
			},
		),

		HistoryWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nicheradar_history_writes_total",
				Help: "Total number of history writes by result",
			},
			[]string{"result"},
		),
	}

	m.registry.MustRegister(
		m.Reports,
		m.Fallbacks,
		m.Attempts,
		m.StepDuration,
		m.ReportScore,
		m.ActiveReports,
		m.SourceCalls,
		m.SourceLatency,
		m.BreakerState,
		m.CacheHits,
		m.CacheMisses,
		m.CacheHitRatio,
		m.HistoryWrites,
	)

	return m
}

// Gatherer exposes the underlying registry
func (m *Registry) Gatherer() prometheus.Gatherer {
	return m.registry
}

// StepTimer tracks execution time for pipeline steps
type StepTimer struct {
	metrics *Registry
	step    string
	start   time.Time
}

// StartStepTimer begins timing a pipeline step
func (m *Registry) StartStepTimer(step string) *StepTimer {
	return &StepTimer{
		metrics: m,
		step:    step,
		start:   time.Now(),
	}
}

// Stop completes the step timing and records the metric
func (st *StepTimer) Stop(result string) {
	duration := time.Since(st.start)
	if st.metrics != nil {
		st.metrics.StepDuration.WithLabelValues(st.step, result).Observe(duration.Seconds())
	}

	log.Debug().
		Str("step", st.step).
		Str("result", result).
		Dur("duration", duration).
		Msg("Pipeline step completed")
}

// RecordReport records an emitted report and its score
func (m *Registry) RecordReport(path string, score int, attempts int) {
	if m == nil {
		return
	}
	m.Reports.WithLabelValues(path).Inc()
	m.ReportScore.WithLabelValues(path).Observe(float64(score))
	if attempts > 0 {
		m.Attempts.Observe(float64(attempts))
	}
}

// RecordFallback records why the synthetic path was taken
func (m *Registry) RecordFallback(reason string) {
	if m == nil {
		return
	}
	m.Fallbacks.WithLabelValues(reason).Inc()
}

// TrackActive increments the in-flight gauge and returns its release
func (m *Registry) TrackActive() func() {
	if m == nil {
		return func() {}
	}
	m.ActiveReports.Inc()
	return m.ActiveReports.Dec
}

// ObserveSourceCall implements providers.Recorder
func (m *Registry) ObserveSourceCall(source, op, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.SourceCalls.WithLabelValues(source, op, outcome).Inc()
	m.SourceLatency.WithLabelValues(source, op).Observe(d.Seconds())
}

// SetBreakerState records a breaker state as 0 closed, 1 half-open, 2 open
func (m *Registry) SetBreakerState(name string, state string) {
	if m == nil {
		return
	}
	value := 0.0
	switch state {
	case "half-open":
		value = 1
	case "open":
		value = 2
	}
	m.BreakerState.WithLabelValues(name).Set(value)
}

// RecordCacheHit records a cache hit for the specified backend
func (m *Registry) RecordCacheHit(cacheType string) {
	if m == nil {
		return
	}
	m.CacheHits.WithLabelValues(cacheType).Inc()
	m.updateCacheHitRatio()
}

// RecordCacheMiss records a cache miss for the specified backend
func (m *Registry) RecordCacheMiss(cacheType string) {
	if m == nil {
		return
	}
	m.CacheMisses.WithLabelValues(cacheType).Inc()
	m.updateCacheHitRatio()
}

// RecordHistoryWrite records the outcome of a best-effort history insert
func (m *Registry) RecordHistoryWrite(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.HistoryWrites.WithLabelValues(result).Inc()
}

// updateCacheHitRatio recomputes the ratio from the counters across all backends
func (m *Registry) updateCacheHitRatio() {
	hits := sumCounter(m.CacheHits)
	misses := sumCounter(m.CacheMisses)
	if total := hits + misses; total > 0 {
		m.CacheHitRatio.Set(hits / total)
	}
}

func sumCounter(vec *prometheus.CounterVec) float64 {
	ch := make(chan prometheus.Metric, 16)
	go func() {
		vec.Collect(ch)
		close(ch)
	}()

	total := 0.0
	for metric := range ch {
		var pb io_prometheus_client.Metric
		if err := metric.Write(&pb); err == nil {
			total += pb.GetCounter().GetValue()
		}
	}
	return total
}

// Handler returns an HTTP handler for this registry
func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// WriteTextfile exports the registry in the node-exporter textfile format
func (m *Registry) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
