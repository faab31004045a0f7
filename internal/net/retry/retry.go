package retry

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"
)

// Decision is the classifier verdict for a failed attempt
type Decision int

const (
	// Retry schedules another attempt after backoff
	Retry Decision = iota
	// Stop ends the run with the current error
	Stop
)

func (d Decision) String() string {
	switch d {
	case Retry:
		return "retry"
	case Stop:
		return "stop"
	default:
		return "unknown"
	}
}

// Classifier decides whether a failure is worth another attempt
type Classifier func(err error) Decision

// Backoff returns the delay to wait after the given failed attempt (1-based)
type Backoff func(attempt int) time.Duration

// Sleeper blocks for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

// Policy is the retry strategy injected into Do
type Policy struct {
	MaxAttempts int
	Backoff     Backoff
	Classify    Classifier
	Sleep       Sleeper
	// OnRetry is called before each backoff sleep
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Result is the tagged outcome of a retried operation.
// Err is nil on success and holds the last failure otherwise.
type Result[T any] struct {
	Value    T
	Err      error
	Attempts int
	// Exhausted is true when every attempt failed with retryable errors
	Exhausted bool
}

// OK reports whether the operation eventually succeeded
func (r Result[T]) OK() bool { return r.Err == nil }

// DefaultPolicy returns three attempts with a uniform [3s, 4s) backoff
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		Backoff:     UniformJitter(3*time.Second, 4*time.Second, nil),
		Classify:    func(error) Decision { return Retry },
		Sleep:       ContextSleep,
	}
}

// Do runs op until it succeeds, the classifier stops it, or attempts run out.
// Failures are reported in the Result and never returned as an error.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context, attempt int) (T, error)) Result[T] {
	p = p.withDefaults()

	var result Result[T]
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		result.Attempts = attempt

		value, err := op(ctx, attempt)
		if err == nil {
			result.Value = value
			result.Err = nil
			return result
		}
		result.Err = err

		if p.Classify(err) == Stop {
			return result
		}
		if attempt == p.MaxAttempts {
			break
		}

		delay := p.Backoff(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, delay)
		}
		if sleepErr := p.Sleep(ctx, delay); sleepErr != nil {
			result.Err = errors.Join(err, sleepErr)
			return result
		}
	}

	result.Exhausted = true
	return result
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.Backoff == nil {
		p.Backoff = def.Backoff
	}
	if p.Classify == nil {
		p.Classify = def.Classify
	}
	if p.Sleep == nil {
		p.Sleep = def.Sleep
	}
	return p
}

// UniformJitter draws each delay uniformly from [lo, hi).
// A nil source uses a private time-seeded generator.
func UniformJitter(lo, hi time.Duration, src *rand.Rand) Backoff {
	if hi < lo {
		lo, hi = hi, lo
	}
	var mu sync.Mutex
	if src == nil {
		src = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return func(int) time.Duration {
		mu.Lock()
		defer mu.Unlock()
		return lo + time.Duration(src.Float64()*float64(hi-lo))
	}
}

// ContextSleep waits for d, returning early with ctx.Err() on cancellation
func ContextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
