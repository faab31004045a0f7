package pipeline

import (
	"context"
	"errors"

	"github.com/sawpanic/nicheradar/internal/net/budget"
	"github.com/sawpanic/nicheradar/internal/net/circuit"
	"github.com/sawpanic/nicheradar/internal/net/retry"
	"github.com/sawpanic/nicheradar/internal/providers"
	"github.com/sawpanic/nicheradar/internal/trends"
)

// Fallback reasons reported to metrics and logs
const (
	ReasonNoData      = "no_data"
	ReasonCircuitOpen = "circuit_open"
	ReasonOverBudget  = "over_budget"
	ReasonExhausted   = "exhausted"
	ReasonTerminal    = "terminal"
)

// Classifier returns the retry classifier for a run bound to ctx.
// No-data, breaker rejections, a spent budget, caller cancellation and
// non-retryable provider errors end the run. Everything else gets another attempt.
func Classifier(ctx context.Context) retry.Classifier {
	return func(err error) retry.Decision {
		switch {
		case ctx.Err() != nil:
			return retry.Stop
		case errors.Is(err, trends.ErrNoData):
			return retry.Stop
		case circuit.IsRejection(err):
			return retry.Stop
		case errors.Is(err, budget.ErrExhausted):
			return retry.Stop
		case errors.Is(err, context.Canceled):
			return retry.Stop
		case !providers.IsRetryable(err):
			return retry.Stop
		}
		return retry.Retry
	}
}

// fallbackReason names why a failed result led to the synthetic path
func fallbackReason(err error, exhausted bool) string {
	switch {
	case errors.Is(err, trends.ErrNoData):
		return ReasonNoData
	case circuit.IsRejection(err):
		return ReasonCircuitOpen
	case errors.Is(err, budget.ErrExhausted):
		return ReasonOverBudget
	case exhausted:
		return ReasonExhausted
	default:
		return ReasonTerminal
	}
}
