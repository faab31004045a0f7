package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"

	"github.com/sawpanic/nicheradar/internal/net/budget"
	"github.com/sawpanic/nicheradar/internal/net/retry"
	"github.com/sawpanic/nicheradar/internal/providers"
	"github.com/sawpanic/nicheradar/internal/trends"
)

func TestClassifier(t *testing.T) {
	classify := Classifier(context.Background())

	tests := []struct {
		name string
		err  error
		want retry.Decision
	}{
		{"transient network error", errors.New("connection reset"), retry.Retry},
		{"rate limited", &providers.ProviderError{StatusCode: 429, Retryable: true}, retry.Retry},
		{"per-call timeout", fmt.Errorf("interest over time: %w", context.DeadlineExceeded), retry.Retry},
		{"no data", fmt.Errorf("%w for the topic: x", trends.ErrNoData), retry.Stop},
		{"circuit open", fmt.Errorf("google_trends: %w", gobreaker.ErrOpenState), retry.Stop},
		{"half-open saturated", gobreaker.ErrTooManyRequests, retry.Stop},
		{"caller cancelled", context.Canceled, retry.Stop},
		{"bad request", &providers.ProviderError{StatusCode: 400}, retry.Stop},
		{"daily budget spent", &budget.ExhaustedError{Source: "google_trends", Used: 5, Limit: 5}, retry.Stop},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.err))
		})
	}
}

func TestClassifier_StopsWhenRunContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, retry.Stop, Classifier(ctx)(errors.New("connection reset")))
}

func TestFallbackReason(t *testing.T) {
	assert.Equal(t, ReasonNoData, fallbackReason(trends.ErrNoData, false))
	assert.Equal(t, ReasonCircuitOpen, fallbackReason(gobreaker.ErrOpenState, false))
	assert.Equal(t, ReasonOverBudget, fallbackReason(&budget.ExhaustedError{}, true))
	assert.Equal(t, ReasonExhausted, fallbackReason(errors.New("x"), true))
	assert.Equal(t, ReasonTerminal, fallbackReason(errors.New("x"), false))
}
