package resilience

import (
	"context"
	"log/slog"
	"math/rand"
	"time"
)

// Policy configures exponential-backoff retry for Archive Client calls,
// trimmed from the teacher's RetryPolicy (internal/core/resilience/retry.go)
// down to the fields this dispatcher actually drives: no per-operation
// metrics, since archive I/O failures are logged and swallowed per
// spec.md §7 rather than tracked as an SLO.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	Jitter     bool
	Logger     *slog.Logger
}

// DefaultPolicy mirrors the teacher's DefaultRetryPolicy defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}
}

// Do runs fn, retrying on error up to MaxRetries times with exponential
// backoff. It returns the last error if every attempt fails. Archive
// Client implementations use this around individual REST calls; the
// dispatcher itself never retries a whole event (spec.md §7: "nothing in
// the core is retried automatically" — retry lives inside the archive
// adapter's own calls, not in the dispatch loop).
func (p Policy) Do(ctx context.Context, op string, fn func() error) error {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	delay := p.BaseDelay
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt == p.MaxRetries {
			break
		}
		logger.Warn("retrying archive call", "op", op, "attempt", attempt+1, "error", lastErr)

		wait := delay
		if p.Jitter {
			wait += time.Duration(rand.Int63n(int64(delay) / 10 + 1))
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}

		delay = time.Duration(float64(delay) * p.Multiplier)
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return lastErr
}
