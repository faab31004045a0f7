package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sawpanic/nicheradar/internal/net/budget"
	"github.com/sawpanic/nicheradar/internal/net/circuit"
	"github.com/sawpanic/nicheradar/internal/net/ratelimit"
	"github.com/sawpanic/nicheradar/internal/trends"
)

// Call outcomes reported to the Recorder
const (
	OutcomeOK          = "ok"
	OutcomeError       = "error"
	OutcomeRejected    = "rejected"
	OutcomeRateLimited = "rate_limited"
	OutcomeOverBudget  = "over_budget"
)

// Recorder receives one observation per guarded call
type Recorder interface {
	ObserveSourceCall(source, op, outcome string, d time.Duration)
}

// Guarded decorates a Source with a circuit breaker, a rate limiter and an
// optional daily request budget
type Guarded struct {
	source   Source
	breaker  *circuit.Breaker
	limiter  *ratelimit.Limiter
	budget   *budget.Tracker
	recorder Recorder
}

var _ Source = (*Guarded)(nil)

// NewGuarded wraps source. Nil breaker, limiter or recorder disable that guard.
func NewGuarded(source Source, breaker *circuit.Breaker, limiter *ratelimit.Limiter, recorder Recorder) *Guarded {
	return &Guarded{
		source:   source,
		breaker:  breaker,
		limiter:  limiter,
		recorder: recorder,
	}
}

// WithBudget caps upstream calls per day. Calls the breaker rejects are not counted.
func (g *Guarded) WithBudget(t *budget.Tracker) *Guarded {
	g.budget = t
	return g
}

// Name returns the wrapped source name
func (g *Guarded) Name() string { return g.source.Name() }

// Breaker exposes the circuit for health reporting
func (g *Guarded) Breaker() *circuit.Breaker { return g.breaker }

func (g *Guarded) InterestOverTime(ctx context.Context, topic string) ([]trends.SeriesPoint, error) {
	return guardedFetch(ctx, g, "interest_over_time", func(ctx context.Context) ([]trends.SeriesPoint, error) {
		return g.source.InterestOverTime(ctx, topic)
	})
}

func (g *Guarded) RisingQueries(ctx context.Context, topic string) ([]trends.RisingQuery, error) {
	return guardedFetch(ctx, g, "rising_queries", func(ctx context.Context) ([]trends.RisingQuery, error) {
		return g.source.RisingQueries(ctx, topic)
	})
}

func (g *Guarded) InterestByRegion(ctx context.Context, topic string) ([]trends.RegionInterest, error) {
	return guardedFetch(ctx, g, "interest_by_region", func(ctx context.Context) ([]trends.RegionInterest, error) {
		return g.source.InterestByRegion(ctx, topic)
	})
}

func guardedFetch[T any](ctx context.Context, g *Guarded, op string, fetch func(context.Context) ([]T, error)) ([]T, error) {
	start := time.Now()

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx, g.source.Name()); err != nil {
			g.observe(op, OutcomeRateLimited, start)
			return nil, fmt.Errorf("%s rate limit wait: %w", g.source.Name(), err)
		}
	}

	var out []T
	call := func(ctx context.Context) error {
		if err := g.budget.Consume(); err != nil {
			return err
		}
		var err error
		out, err = fetch(ctx)
		return err
	}

	var err error
	if g.breaker != nil {
		err = g.breaker.Call(ctx, call)
	} else {
		err = call(ctx)
	}

	switch {
	case err == nil:
		g.observe(op, OutcomeOK, start)
	case circuit.IsRejection(err):
		g.observe(op, OutcomeRejected, start)
		return nil, fmt.Errorf("%s %s: %w", g.source.Name(), op, err)
	case errors.Is(err, budget.ErrExhausted):
		g.observe(op, OutcomeOverBudget, start)
		return nil, err
	default:
		g.observe(op, OutcomeError, start)
	}
	return out, err
}

func (g *Guarded) observe(op, outcome string, start time.Time) {
	if g.recorder == nil {
		return
	}
	g.recorder.ObserveSourceCall(g.source.Name(), op, outcome, time.Since(start))
}
