package gasfee

import (
	"context"
	"errors"
	"fmt"

	"github.com/KyberNetwork/logger"

	"github.com/tranvictor/txlifecycle/internal/retrypolicy"
)

var (
	// ErrInsufficientFeeHistory is returned when the fee-history window is
	// too short to estimate from.
	ErrInsufficientFeeHistory = fmt.Errorf("fee history window is too short")

	// ErrFeeHistoryTimeout is returned when the fee-history attempt budget
	// is exhausted. Callers must handle it explicitly; the poller never
	// retries past the policy bound.
	ErrFeeHistoryTimeout = fmt.Errorf("fee history polling exhausted attempt budget")
)

// FeeHistorySource is the slice of the ledger provider surface the poller
// needs.
type FeeHistorySource interface {
	FeeHistory(ctx context.Context, blockCount uint64, rewardPercentiles []float64) (*FeeHistory, error)
}

// PollFeeHistory fetches a usable fee-history window from source under the
// given bounded-retry policy. On budget exhaustion it returns
// ErrFeeHistoryTimeout wrapping the last fetch error.
func PollFeeHistory(
	ctx context.Context,
	source FeeHistorySource,
	blockCount uint64,
	rewardPercentiles []float64,
	policy retrypolicy.Policy,
) (*FeeHistory, error) {
	var history *FeeHistory

	err := policy.Do(ctx, func(ctx context.Context) error {
		h, err := source.FeeHistory(ctx, blockCount, rewardPercentiles)
		if err != nil {
			logger.WithFields(logger.Fields{
				"block_count": blockCount,
				"error":       err,
			}).Debug("fee history fetch failed, will retry within budget")
			return err
		}
		if h == nil || len(h.BaseFeePerGas) < 2 {
			return ErrInsufficientFeeHistory
		}
		history = h
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, errors.Join(ErrFeeHistoryTimeout, err)
	}

	return history, nil
}
