// Package retry provides a bounded, fixed-delay retry policy driven by error
// classification. Callers decide per error whether to stop, retry after the
// normal delay, or wait out a longer cooldown (rate limits).
package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

// ErrExhausted is wrapped into the returned error when every attempt failed
var ErrExhausted = errors.New("retry attempts exhausted")

// Decision tells a Policy what to do after a failed attempt
type Decision int

const (
	// Stop returns the error immediately
	Stop Decision = iota
	// Again retries after Policy.Delay
	Again
	// Cooldown retries after Policy.Cooldown
	Cooldown
)

func (d Decision) String() string {
	switch d {
	case Stop:
		return "stop"
	case Again:
		return "again"
	case Cooldown:
		return "cooldown"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Policy configures fixed-delay retry behavior
type Policy struct {
	MaxAttempts int           // Total attempts including the first (minimum 1)
	Delay       time.Duration // Wait before an Again retry; zero retries immediately
	Cooldown    time.Duration // Wait before a Cooldown retry; zero falls back to Delay

	// Classify maps an attempt error to a Decision. Nil uses Classify.
	Classify func(error) Decision

	// OnRetry is called before each wait, with the 1-based attempt that failed
	OnRetry func(attempt int, err error, wait time.Duration)
}

// Do runs fn until it succeeds, the policy says Stop, attempts run out or ctx ends.
// Stop errors are returned unchanged; exhaustion wraps both ErrExhausted and the last error.
func Do[T any](ctx context.Context, p Policy, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	classify := p.Classify
	if classify == nil {
		classify = Classify
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		decision := classify(err)
		if decision == Stop {
			return zero, err
		}
		if attempt == attempts {
			break
		}

		wait := p.Delay
		if decision == Cooldown && p.Cooldown > 0 {
			wait = p.Cooldown
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}
		if err := sleep(ctx, wait); err != nil {
			return zero, err
		}
	}

	return zero, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// StatusError is returned by HTTP clients for non-2xx responses
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Body)
}

// IsRateLimited reports whether err signals a backend rate limit
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusTooManyRequests {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, http.StatusText(http.StatusTooManyRequests)) ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED") ||
		strings.Contains(strings.ToLower(msg), "rate limit")
}

// Classify is the default classifier for remote calls.
// Cancellation and 4xx responses stop, rate limits cool down, everything else retries.
func Classify(err error) Decision {
	if err == nil || errors.Is(err, context.Canceled) {
		return Stop
	}
	if IsRateLimited(err) {
		return Cooldown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Again
	}

	var se *StatusError
	if errors.As(err, &se) {
		if se.StatusCode >= 500 {
			return Again
		}
		return Stop
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return Again
	}

	return Again
}

// Always retries every error except cancellation
func Always(err error) Decision {
	if err == nil || errors.Is(err, context.Canceled) {
		return Stop
	}
	return Again
}
