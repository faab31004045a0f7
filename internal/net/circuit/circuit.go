package circuit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// ErrOpen is returned while the breaker rejects calls
var ErrOpen = gobreaker.ErrOpenState

// State mirrors the gobreaker state for callers that should not import it
type State = gobreaker.State

const (
	StateClosed   = gobreaker.StateClosed
	StateHalfOpen = gobreaker.StateHalfOpen
	StateOpen     = gobreaker.StateOpen
)

// Config holds breaker thresholds for one upstream
type Config struct {
	ConsecutiveFailures uint32        `yaml:"consecutive_failures"`
	MaxRequests         uint32        `yaml:"half_open_requests"`
	Interval            time.Duration `yaml:"interval"`
	Timeout             time.Duration `yaml:"open_timeout"`
	RequestTimeout      time.Duration `yaml:"request_timeout"`
}

// DefaultConfig trips after five consecutive failures and probes again after a minute
func DefaultConfig() Config {
	return Config{
		ConsecutiveFailures: 5,
		MaxRequests:         1,
		Interval:            0,
		Timeout:             time.Minute,
		RequestTimeout:      15 * time.Second,
	}
}

// Breaker wraps a gobreaker circuit with a per-call timeout
type Breaker struct {
	name   string
	config Config
	cb     *gobreaker.CircuitBreaker
}

// NewBreaker creates a breaker. isSuccessful decides which errors still count
// as a healthy upstream (nil treats only a nil error as success).
func NewBreaker(name string, config Config, isSuccessful func(error) bool) *Breaker {
	if config.ConsecutiveFailures == 0 {
		config.ConsecutiveFailures = DefaultConfig().ConsecutiveFailures
	}
	threshold := config.ConsecutiveFailures

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
		IsSuccessful: isSuccessful,
	}

	return &Breaker{
		name:   name,
		config: config,
		cb:     gobreaker.NewCircuitBreaker(settings),
	}
}

// Call executes fn through the breaker
func (b *Breaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		callCtx := ctx
		if b.config.RequestTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, b.config.RequestTimeout)
			defer cancel()
		}
		return nil, fn(callCtx)
	})
	return err
}

// Name returns the breaker name
func (b *Breaker) Name() string { return b.name }

// State returns the current state
func (b *Breaker) State() State { return b.cb.State() }

// Stats returns a snapshot of the breaker counters
func (b *Breaker) Stats() Stats {
	counts := b.cb.Counts()
	return Stats{
		Name:                 b.name,
		State:                b.cb.State().String(),
		Requests:             counts.Requests,
		TotalFailures:        counts.TotalFailures,
		ConsecutiveFailures:  counts.ConsecutiveFailures,
		ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
	}
}

// IsRejection reports whether err came from the breaker rather than the call
func IsRejection(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// Stats contains breaker statistics
type Stats struct {
	Name                 string `json:"name"`
	State                string `json:"state"`
	Requests             uint32 `json:"requests"`
	TotalFailures        uint32 `json:"total_failures"`
	ConsecutiveFailures  uint32 `json:"consecutive_failures"`
	ConsecutiveSuccesses uint32 `json:"consecutive_successes"`
}

// IsHealthy returns true unless the breaker is open
func (s *Stats) IsHealthy() bool {
	return s.State != StateOpen.String()
}

// Manager keeps one breaker per upstream
type Manager struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
}

// NewManager creates an empty manager
func NewManager() *Manager {
	return &Manager{breakers: make(map[string]*Breaker)}
}

// Add registers a breaker under its name
func (m *Manager) Add(b *Breaker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.breakers[b.Name()] = b
}

// Get returns the breaker for name
func (m *Manager) Get(name string) (*Breaker, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.breakers[name]
	return b, ok
}

// Stats returns statistics for all breakers
func (m *Manager) Stats() map[string]Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[string]Stats, len(m.breakers))
	for name, b := range m.breakers {
		stats[name] = b.Stats()
	}
	return stats
}

// IsHealthy returns true if no breaker is open
func (m *Manager) IsHealthy() bool {
	for _, s := range m.Stats() {
		if !s.IsHealthy() {
			return false
		}
	}
	return true
}
