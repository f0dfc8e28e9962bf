// Package retrypolicy provides the single bounded-retry policy used for all
// ledger-facing loops (provider connection, receipt polling, fee-history
// polling). Every loop in this module that talks to a node goes through a
// Policy so that attempt counts, intervals and per-attempt timeouts live in
// one place instead of being duplicated ad hoc.
package retrypolicy

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

// Policy describes a bounded retry loop. A zero MaxAttempts is treated as 1.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first one.
	MaxAttempts int

	// Interval is the fixed wait between attempts.
	Interval time.Duration

	// TimeoutPerAttempt bounds each individual attempt. Zero means the
	// attempt inherits the caller's context deadline only.
	TimeoutPerAttempt time.Duration
}

// Do runs op until it succeeds, the attempt budget is exhausted, or ctx is
// cancelled. Every non-nil error from op counts as a retryable failure; the
// last error is returned when the budget runs out. Context cancellation wins
// over retrying immediately.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	interval := p.Interval
	if interval <= 0 {
		interval = time.Millisecond
	}
	b := retry.WithMaxRetries(uint64(maxAttempts-1), retry.NewConstant(interval))

	return retry.Do(ctx, b, func(ctx context.Context) error {
		attemptCtx := ctx
		if p.TimeoutPerAttempt > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, p.TimeoutPerAttempt)
			defer cancel()
		}
		if err := op(attemptCtx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

// Attempts returns the effective attempt budget.
func (p Policy) Attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}
