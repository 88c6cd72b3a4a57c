package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"
)

// RetryPolicy is an explicit, independently testable retry policy: attempt
// budget, base backoff, and a classification function deciding what is worth
// retrying. Context cancellation always stops the retries.
type RetryPolicy struct {
	MaxAttempts uint
	Backoff     time.Duration
	Retryable   func(error) bool // nil retries everything except cancellation
}

// Do runs fn under the policy with exponential backoff and returns the last
// error once attempts are exhausted.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	retryable := p.Retryable
	if retryable == nil {
		retryable = func(err error) bool {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}
	}

	return retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(p.MaxAttempts),
		retry.Delay(p.Backoff),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			log.Error().Err(err).Uint("attempt", n+1).Msg("retrying after failure")
		}))
}
