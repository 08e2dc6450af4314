// Package retry re-runs an operation that failed with a transient error,
// waiting a little longer before each new attempt.
//
//	p := retry.Policy{Attempts: 3, Backoff: 50 * time.Millisecond, Retryable: isBusy}
//	err := p.Do(ctx, "append turn", func() error { return insert() })
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Policy describes how an operation is retried. The zero value runs the
// operation once.
type Policy struct {
	// Attempts is the total number of tries, the first one included.
	Attempts int
	// Backoff is the wait after the first failure. It doubles after every
	// further failure, up to MaxBackoff when that is set.
	Backoff    time.Duration
	MaxBackoff time.Duration
	// Retryable classifies errors. Nil retries every error.
	Retryable func(err error) bool
}

// Do runs fn until it succeeds, returns an error Retryable rejects, the
// attempts are used up or ctx ends. It returns the last error, joined with
// the context error when the wait was cut short.
func (p Policy) Do(ctx context.Context, op string, fn func() error) error {
	attempts := max(p.Attempts, 1)
	wait := p.Backoff

	var err error
	for attempt := 1; ; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return errors.Join(err, cerr)
		}
		if err = fn(); err == nil {
			return nil
		}
		if attempt >= attempts || (p.Retryable != nil && !p.Retryable(err)) {
			return err
		}

		slog.Debug("retrying", "op", op, "attempt", attempt, "of", attempts, "wait", wait, "err", err)
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return errors.Join(err, ctx.Err())
			case <-timer.C:
			}
		}

		wait *= 2
		if p.MaxBackoff > 0 && wait > p.MaxBackoff {
			wait = p.MaxBackoff
		}
	}
}
