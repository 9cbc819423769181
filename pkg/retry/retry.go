// Package retry runs an operation under a deterministic exponential
// backoff schedule, retrying only errors classified as transient.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/cloud-wave-best-zizon/fulfillment-service/internal/apperr"
)

type Policy struct {
	MaxRetries   uint64
	InitialDelay time.Duration
	Multiplier   float64
}

// DefaultPaymentPolicy retries three times, 2s/4s/8s.
var DefaultPaymentPolicy = Policy{
	MaxRetries:   3,
	InitialDelay: 2 * time.Second,
	Multiplier:   2.0,
}

func (p Policy) backoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialDelay
	b.Multiplier = p.Multiplier
	// No jitter: the schedule is part of the contract.
	b.RandomizationFactor = 0
	b.MaxInterval = 1 * time.Hour
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, p.MaxRetries), ctx)
}

// Do runs op until it succeeds, returns a non-retryable error, or the
// retry budget is exhausted. Only apperr.KindTransient errors are retried.
func Do(ctx context.Context, p Policy, op func() error) error {
	return DoWithTimer(ctx, p, op, nil)
}

// DoWithTimer is Do with an injectable backoff timer. Tests pass a fake
// timer to observe the delay schedule without sleeping.
func DoWithTimer(ctx context.Context, p Policy, op func() error, timer backoff.Timer) error {
	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !apperr.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.RetryNotifyWithTimer(wrapped, p.backoff(ctx), nil, timer)
}
