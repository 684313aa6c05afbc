// Package retry runs an operation with bounded quadratic backoff.
package retry

import (
	"context"
	"time"

	"leadfunnel_backend/platform/apperr"
	"leadfunnel_backend/platform/logger"
)

// Policy bounds a retry loop. Delay before attempt n+1 is n*n*BaseDelay.
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
	// Retryable decides whether an error is worth another attempt.
	// Defaults to apperr.IsTransient.
	Retryable func(error) bool
}

// Do calls fn until it succeeds, returns a non-retryable error, the attempts
// run out or ctx is done. The last error is returned.
func Do(ctx context.Context, log *logger.Logger, name string, p Policy, fn func(context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = apperr.IsTransient
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if log != nil {
			log.ExternalCallFailed(name, "attempt", attempt, err)
		}
		if attempt == attempts || !retryable(err) {
			return err
		}

		delay := time.Duration(attempt*attempt) * p.BaseDelay
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}
