package providers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/nicheradar/internal/net/budget"
	"github.com/sawpanic/nicheradar/internal/net/circuit"
	"github.com/sawpanic/nicheradar/internal/net/ratelimit"
	"github.com/sawpanic/nicheradar/internal/trends"
)

type stubSource struct {
	err   error
	calls int
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) InterestOverTime(ctx context.Context, topic string) ([]trends.SeriesPoint, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return []trends.SeriesPoint{{Date: time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC), Value: 42}}, nil
}

func (s *stubSource) RisingQueries(ctx context.Context, topic string) ([]trends.RisingQuery, error) {
	s.calls++
	return nil, s.err
}

func (s *stubSource) InterestByRegion(ctx context.Context, topic string) ([]trends.RegionInterest, error) {
	s.calls++
	return nil, s.err
}

type observation struct {
	source, op, outcome string
}

type recordingRecorder struct {
	mu  sync.Mutex
	obs []observation
}

func (r *recordingRecorder) ObserveSourceCall(source, op, outcome string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.obs = append(r.obs, observation{source, op, outcome})
}

func TestGuarded_PassesThroughResults(t *testing.T) {
	src := &stubSource{}
	rec := &recordingRecorder{}
	g := NewGuarded(src, circuit.NewBreaker("stub", circuit.DefaultConfig(), IsBreakerSuccess), ratelimit.NewLimiter(0, 1), rec)

	points, err := g.InterestOverTime(context.Background(), "sourdough")
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, 42.0, points[0].Value)

	rising, err := g.RisingQueries(context.Background(), "sourdough")
	require.NoError(t, err)
	assert.Empty(t, rising)

	assert.Equal(t, []observation{
		{"stub", "interest_over_time", OutcomeOK},
		{"stub", "rising_queries", OutcomeOK},
	}, rec.obs)
	assert.Equal(t, "stub", g.Name())
}

func TestGuarded_OpenCircuitRejectsWithoutCallingSource(t *testing.T) {
	src := &stubSource{err: &ProviderError{Provider: "stub", StatusCode: 503, Message: "unavailable", Retryable: true}}
	rec := &recordingRecorder{}
	cfg := circuit.DefaultConfig()
	cfg.ConsecutiveFailures = 2
	g := NewGuarded(src, circuit.NewBreaker("stub", cfg, IsBreakerSuccess), nil, rec)

	for i := 0; i < 2; i++ {
		_, err := g.InterestByRegion(context.Background(), "sourdough")
		var perr *ProviderError
		require.True(t, errors.As(err, &perr))
		assert.Equal(t, 503, perr.StatusCode)
	}
	require.Equal(t, circuit.StateOpen, g.Breaker().State())

	_, err := g.InterestOverTime(context.Background(), "sourdough")
	assert.ErrorIs(t, err, circuit.ErrOpen)
	assert.Equal(t, 2, src.calls)
	assert.Equal(t, OutcomeRejected, rec.obs[len(rec.obs)-1].outcome)
}

func TestGuarded_RateLimitWaitHonoursContext(t *testing.T) {
	src := &stubSource{}
	rec := &recordingRecorder{}
	limiter := ratelimit.NewLimiter(0.01, 1)
	g := NewGuarded(src, nil, limiter, rec)

	_, err := g.InterestOverTime(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = g.InterestOverTime(ctx, "b")
	assert.Error(t, err)
	assert.Equal(t, 1, src.calls)
	assert.Equal(t, OutcomeRateLimited, rec.obs[len(rec.obs)-1].outcome)
}

func TestGuarded_BudgetStopsUpstreamCalls(t *testing.T) {
	src := &stubSource{}
	rec := &recordingRecorder{}
	breaker := circuit.NewBreaker("stub", circuit.DefaultConfig(), IsBreakerSuccess)
	g := NewGuarded(src, breaker, nil, rec).WithBudget(budget.NewTracker("stub", budget.Config{Limit: 2}))

	for i := 0; i < 2; i++ {
		_, err := g.InterestOverTime(context.Background(), "sourdough")
		require.NoError(t, err)
	}

	for i := 0; i < 6; i++ {
		_, err := g.RisingQueries(context.Background(), "sourdough")
		assert.ErrorIs(t, err, budget.ErrExhausted)
	}
	assert.Equal(t, 2, src.calls)
	assert.Equal(t, OutcomeOverBudget, rec.obs[len(rec.obs)-1].outcome)
	// a spent budget is not an upstream failure
	assert.Equal(t, circuit.StateClosed, breaker.State())
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(errors.New("connection reset")))
	assert.True(t, IsRetryable(&ProviderError{StatusCode: 429, Retryable: true}))
	assert.False(t, IsRetryable(&ProviderError{StatusCode: 400, Retryable: false}))

	assert.True(t, StatusRetryable(429))
	assert.True(t, StatusRetryable(502))
	assert.False(t, StatusRetryable(404))
}

func TestProviderError_Message(t *testing.T) {
	err := &ProviderError{Provider: "google_trends", StatusCode: 429, Message: "too many requests", RetryAfter: 2 * time.Second}
	assert.Equal(t, "provider google_trends error (status 429): too many requests (retry after 2s)", err.Error())
}
