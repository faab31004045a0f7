// Package providers defines the trend data source boundary and the guards
// wrapped around every upstream call.
package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sawpanic/nicheradar/internal/net/budget"
	"github.com/sawpanic/nicheradar/internal/trends"
)

// Source fetches the three raw signals for a topic.
// Empty results are legal and mean the upstream had nothing for the topic.
type Source interface {
	Name() string
	InterestOverTime(ctx context.Context, topic string) ([]trends.SeriesPoint, error)
	RisingQueries(ctx context.Context, topic string) ([]trends.RisingQuery, error)
	InterestByRegion(ctx context.Context, topic string) ([]trends.RegionInterest, error)
}

// ProviderError represents provider-specific errors with retry guidance
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Retryable  bool
	RetryAfter time.Duration
}

func (e *ProviderError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("provider %s error (status %d): %s (retry after %v)",
			e.Provider, e.StatusCode, e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("provider %s error (status %d): %s",
		e.Provider, e.StatusCode, e.Message)
}

// IsRetryable reports whether err may succeed on another attempt.
// Errors that are not ProviderErrors are treated as transient.
func IsRetryable(err error) bool {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Retryable
	}
	return true
}

// StatusRetryable maps an HTTP status to retry guidance
func StatusRetryable(status int) bool {
	return status == 429 || status == 408 || status >= 500
}

// IsBreakerSuccess decides which call outcomes keep the circuit healthy.
// Caller cancellation and a spent local budget say nothing about the upstream.
func IsBreakerSuccess(err error) bool {
	return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, budget.ErrExhausted)
}
