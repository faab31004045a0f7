package budget

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestTracker_ConsumeUntilExhausted(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)}
	tracker := newTracker("google_trends", Config{Limit: 3}, clock.now)

	for i := 0; i < 3; i++ {
		require.NoError(t, tracker.Consume())
	}

	err := tracker.Consume()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExhausted))

	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, int64(3), exhausted.Used)
	assert.Equal(t, time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC), exhausted.ResetAt)
	assert.Equal(t, "budget exhausted for google_trends: 3/3 requests used, resets at 00:00 UTC", err.Error())

	stats := tracker.Stats()
	assert.True(t, stats.IsExhausted)
	assert.Equal(t, int64(0), stats.Remaining)
	assert.Equal(t, 1.0, stats.UtilizationRate)
}

func TestTracker_WindowResets(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 10, 16, 5, 0, 0, 0, time.UTC)}
	tracker := newTracker("src", Config{Limit: 1, ResetHour: 6}, clock.now)

	require.NoError(t, tracker.Consume())
	assert.Error(t, tracker.Consume())

	// the window opened at 06:00 the previous day
	clock.t = time.Date(2026, 10, 16, 6, 0, 0, 0, time.UTC)
	assert.NoError(t, tracker.Consume())
	assert.Equal(t, time.Date(2026, 10, 17, 6, 0, 0, 0, time.UTC), tracker.Stats().NextReset)
}

func TestTracker_DisabledAndNil(t *testing.T) {
	tracker := NewTracker("src", Config{})
	for i := 0; i < 100; i++ {
		require.NoError(t, tracker.Consume())
	}
	assert.False(t, tracker.Stats().IsExhausted)

	var none *Tracker
	assert.NoError(t, none.Consume())
}

func TestNewTracker_NormalisesConfig(t *testing.T) {
	tracker := NewTracker("src", Config{Limit: 10, ResetHour: 30, WarnThreshold: 2})
	assert.Equal(t, 0, tracker.config.ResetHour)
	assert.Equal(t, 0.8, tracker.config.WarnThreshold)
}
