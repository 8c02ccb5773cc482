// Package retry wraps fallible operations with an exponential backoff
// policy. It is a thin layer over cenkalti/backoff that pins down the
// wait schedule (factor^attempt units, no randomization) and logs a
// warning per retry.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy configures how an operation is retried. The wait before the
// n-th retry (n starting at 0) is Factor^n * Unit.
type Policy struct {
	// total number of attempts, must be >= 1
	MaxRetries int
	// multiplier applied to the wait between consecutive attempts,
	// must be > 1.0
	Factor float64
	// base wait unit, defaults to one second
	Unit time.Duration
}

// DefaultPolicy mirrors the retry envelope used around every upstream
// network call: three attempts, doubling waits.
var DefaultPolicy = Policy{MaxRetries: 3, Factor: 2.0}

func (p Policy) unit() time.Duration {
	if p.Unit <= 0 {
		return time.Second
	}
	return p.Unit
}

// Permanent marks an error as not worth retrying. Do propagates it
// immediately, unwrapped.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do invokes op until it succeeds or the policy is exhausted. The error
// of the final attempt is returned unchanged. Context cancellation cuts
// backoff waits short.
func Do[T any](ctx context.Context, p Policy, name string, op func() (T, error)) (T, error) {
	var out T

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = p.unit()
	expo.RandomizationFactor = 0
	expo.Multiplier = p.Factor
	expo.MaxInterval = 24 * time.Hour
	expo.MaxElapsedTime = 0
	expo.Reset()

	attempt := 0
	err := backoff.RetryNotify(
		func() error {
			var err error
			out, err = op()
			return err
		},
		backoff.WithContext(backoff.WithMaxRetries(expo, uint64(p.MaxRetries-1)), ctx),
		func(err error, wait time.Duration) {
			attempt++
			slog.WarnContext(
				ctx, "operation failed, retrying",
				"op", name,
				"attempt", attempt,
				"max_retries", p.MaxRetries,
				"wait", wait,
				"err", err,
			)
		},
	)
	return out, err
}

// Retry is Do for operations without a result.
func Retry(ctx context.Context, p Policy, name string, op func() error) error {
	_, err := Do(ctx, p, name, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}
