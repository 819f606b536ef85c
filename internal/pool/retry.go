package pool

import (
	"context"
	"errors"
	"time"

	"cloudMining/internal/ledger"
)

// retryable reports whether a failed pass may succeed when repeated. Domain
// rejections are final; bank and store failures are not.
func retryable(err error) bool {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, ledger.ErrNoSharesIssued), errors.Is(err, ledger.ErrInvalidSnapshot), errors.Is(err, ErrNotDeployed):
		return false
	}
	return true
}

// withRetry calls fn until it succeeds, returns a final error, or runs out of
// attempts. The delay doubles after each failure.
func withRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func(context.Context) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	delay := baseDelay
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil || !retryable(err) || attempt >= maxRetries {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
	}
}
