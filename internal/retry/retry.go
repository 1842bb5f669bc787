package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy controls how WithRetry re-runs a failing function.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	Linear      bool // delay grows as attempt * Delay instead of staying flat
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks an error as non-retryable: WithRetry returns it immediately
// without consuming further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

func WithRetry(ctx context.Context, policy Policy, fn func() error) error {
	var lastErr error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := fn(); err != nil {
			lastErr = err

			var pe *permanentError
			if errors.As(err, &pe) {
				return pe.err
			}

			if attempt == policy.MaxAttempts {
				return fmt.Errorf("failed after %d attempts: %w", policy.MaxAttempts, err)
			}

			delay := policy.Delay
			if policy.Linear {
				delay = time.Duration(attempt) * policy.Delay
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				continue
			}
		}
		return nil
	}

	return lastErr
}
