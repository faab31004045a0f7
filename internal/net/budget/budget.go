package budget

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrExhausted matches every ExhaustedError via errors.Is
var ErrExhausted = errors.New("daily budget exhausted")

// ExhaustedError reports a spent daily quota
type ExhaustedError struct {
	Source  string
	Used    int64
	Limit   int64
	ResetAt time.Time
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("budget exhausted for %s: %d/%d requests used, resets at %s",
		e.Source, e.Used, e.Limit, e.ResetAt.Format("15:04 UTC"))
}

func (e *ExhaustedError) Is(target error) bool { return target == ErrExhausted }

// Config is a daily request quota. A zero Limit disables tracking.
type Config struct {
	Limit         int64   `yaml:"daily_limit"`
	ResetHour     int     `yaml:"reset_hour"`     // UTC hour the window restarts (0-23)
	WarnThreshold float64 `yaml:"warn_threshold"` // fraction of Limit that logs a warning
}

// Tracker counts requests for one source in a 24h window starting at ResetHour UTC
type Tracker struct {
	source string
	config Config
	now    func() time.Time

	mu          sync.Mutex
	used        int64
	windowStart time.Time
	warned      bool
}

// NewTracker creates a tracker. Out of range ResetHour and WarnThreshold fall back to 0 and 0.8.
func NewTracker(source string, config Config) *Tracker {
	return newTracker(source, config, time.Now)
}

func newTracker(source string, config Config, now func() time.Time) *Tracker {
	if config.ResetHour < 0 || config.ResetHour > 23 {
		config.ResetHour = 0
	}
	if config.WarnThreshold <= 0 || config.WarnThreshold > 1 {
		config.WarnThreshold = 0.8
	}
	return &Tracker{
		source:      source,
		config:      config,
		now:         now,
		windowStart: windowStart(now().UTC(), config.ResetHour),
	}
}

// windowStart is the most recent reset boundary at or before now
func windowStart(now time.Time, resetHour int) time.Time {
	today := time.Date(now.Year(), now.Month(), now.Day(), resetHour, 0, 0, 0, time.UTC)
	if now.Hour() >= resetHour {
		return today
	}
	return today.AddDate(0, 0, -1)
}

// rollLocked starts a new window once the current one has passed
func (t *Tracker) rollLocked() {
	now := t.now().UTC()
	if !now.Before(t.windowStart.Add(24 * time.Hour)) {
		t.windowStart = windowStart(now, t.config.ResetHour)
		t.used = 0
		t.warned = false
	}
}

// Consume takes one request from the quota or returns an *ExhaustedError
func (t *Tracker) Consume() error {
	if t == nil || t.config.Limit <= 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollLocked()

	if t.used >= t.config.Limit {
		return &ExhaustedError{
			Source:  t.source,
			Used:    t.used,
			Limit:   t.config.Limit,
			ResetAt: t.windowStart.Add(24 * time.Hour),
		}
	}
	t.used++

	if !t.warned && float64(t.used)/float64(t.config.Limit) >= t.config.WarnThreshold {
		t.warned = true
		log.Warn().
			Str("source", t.source).
			Int64("used", t.used).
			Int64("limit", t.config.Limit).
			Msg("Daily request budget nearly spent")
	}
	return nil
}

// Stats returns current budget statistics
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollLocked()

	stats := Stats{
		Source:    t.source,
		Limit:     t.config.Limit,
		Used:      t.used,
		Remaining: t.config.Limit - t.used,
		NextReset: t.windowStart.Add(24 * time.Hour),
	}
	if t.config.Limit > 0 {
		stats.UtilizationRate = float64(t.used) / float64(t.config.Limit)
		stats.IsExhausted = t.used >= t.config.Limit
	}
	return stats
}

// Stats represents budget tracker statistics
type Stats struct {
	Source          string    `json:"source"`
	Limit           int64     `json:"limit"`
	Used            int64     `json:"used"`
	Remaining       int64     `json:"remaining"`
	UtilizationRate float64   `json:"utilization_rate"`
	NextReset       time.Time `json:"next_reset"`
	IsExhausted     bool      `json:"is_exhausted"`
}
