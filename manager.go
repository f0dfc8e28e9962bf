package txlifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/KyberNetwork/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/tranvictor/txlifecycle/gasfee"
	"github.com/tranvictor/txlifecycle/internal/retrypolicy"
	"github.com/tranvictor/txlifecycle/providerpool"
)

// Receipt polling budget: an expected confirmation window of 25 blocks at a
// 12 second block time, polled every 4 seconds.
const (
	receiptPollInterval = 4 * time.Second
	receiptPollAttempts = 25 * 12 / 4

	// defaultFeeHistoryBlocks is the fee-history window a quote samples.
	defaultFeeHistoryBlocks = 10
)

// errReceiptPending drives the poll loop between attempts.
var errReceiptPending = fmt.Errorf("receipt not available yet")

// Manager is the top-level assembly: one record store, one replacement
// engine and one provider pool, plus the receipt watcher that moves records
// to their terminal status when a confirmation arrives.
type Manager struct {
	store     *RecordStore
	engine    *Engine
	pool      *providerpool.Pool
	estimator *gasfee.Estimator

	receiptPolicy    retrypolicy.Policy
	feeHistoryPolicy retrypolicy.Policy
	feeHistoryBlocks uint64
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithReceiptPolicy overrides the receipt polling budget.
func WithReceiptPolicy(p retrypolicy.Policy) ManagerOption {
	return func(m *Manager) { m.receiptPolicy = p }
}

// WithEstimator replaces the default gas fee estimator.
func WithEstimator(e *gasfee.Estimator) ManagerOption {
	return func(m *Manager) { m.estimator = e }
}

// WithFeeHistoryPolicy overrides the fee-history polling budget.
func WithFeeHistoryPolicy(p retrypolicy.Policy) ManagerOption {
	return func(m *Manager) { m.feeHistoryPolicy = p }
}

// WithFeeHistoryBlocks sets how many recent blocks a fee quote samples.
func WithFeeHistoryBlocks(n uint64) ManagerOption {
	return func(m *Manager) { m.feeHistoryBlocks = n }
}

// NewManager assembles a manager over an existing pool and signer. Engine
// options are passed through so hosts can attach notifiers and hooks.
func NewManager(pool *providerpool.Pool, signer SignerPort, storeOpts []RecordStoreOption, engineOpts []EngineOption, opts ...ManagerOption) *Manager {
	store := NewRecordStore(storeOpts...)

	estimator, err := gasfee.NewEstimator(gasfee.DefaultConfig())
	if err != nil {
		// the default config is always valid
		panic(err)
	}

	m := &Manager{
		store:     store,
		pool:      pool,
		estimator: estimator,
		receiptPolicy: retrypolicy.Policy{
			MaxAttempts: receiptPollAttempts,
			Interval:    receiptPollInterval,
		},
		feeHistoryPolicy: retrypolicy.Policy{
			MaxAttempts:       providerpool.DefaultConnectAttempts,
			Interval:          time.Second,
			TimeoutPerAttempt: time.Second,
		},
		feeHistoryBlocks: defaultFeeHistoryBlocks,
	}
	m.engine = NewEngine(store, signer, poolBroadcasters{pool}, engineOpts...)

	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store exposes the record store for read paths (activity feed, batch
// status aggregation).
func (m *Manager) Store() *RecordStore { return m.store }

// Engine exposes the replacement engine.
func (m *Manager) Engine() *Engine { return m.engine }

// Pool exposes the provider pool.
func (m *Manager) Pool() *providerpool.Pool { return m.pool }

// Estimator exposes the gas fee estimator.
func (m *Manager) Estimator() *gasfee.Estimator { return m.estimator }

// SuggestGasFees fetches a fee-history window from the chain's provider and
// turns it into a per-tier suggestion. Fee-history fetches are bounded by
// the fee-history policy; exhaustion surfaces gasfee.ErrFeeHistoryTimeout.
func (m *Manager) SuggestGasFees(ctx context.Context, chainID uint64) (*gasfee.Suggestion, error) {
	conn, err := m.pool.GetProvider(chainID)
	if err != nil {
		return nil, err
	}

	history, err := gasfee.PollFeeHistory(ctx, conn, m.feeHistoryBlocks, m.estimator.RewardPercentiles(), m.feeHistoryPolicy)
	if err != nil {
		m.pool.RecordFailure(chainID)
		return nil, err
	}
	m.pool.RecordSuccess(chainID)

	return m.estimator.Suggest(chainID, history)
}

// WatchReceipt polls the chain for hash's receipt and applies it to the
// record when it lands. The loop is bounded; exhausting the budget returns
// ErrReceiptTimeout. Cancelling ctx abandons the wait without leaking the
// loop.
func (m *Manager) WatchReceipt(ctx context.Context, wallet common.Address, chainID uint64, hash common.Hash) error {
	var receipt *types.Receipt

	err := m.receiptPolicy.Do(ctx, func(ctx context.Context) error {
		conn, err := m.pool.GetProvider(chainID)
		if err != nil {
			return err
		}

		r, err := conn.Receipt(ctx, hash)
		if err != nil {
			m.pool.RecordFailure(chainID)
			return err
		}
		m.pool.RecordSuccess(chainID)

		if r == nil {
			return errReceiptPending
		}
		receipt = r
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.WithFields(logger.Fields{
			"wallet":   wallet.Hex(),
			"chain_id": chainID,
			"hash":     hash.Hex(),
			"attempts": m.receiptPolicy.Attempts(),
		}).Warn("receipt wait exhausted its attempt budget")
		return fmt.Errorf("%s after %d attempts: %w", hash.Hex(), m.receiptPolicy.Attempts(), errors.Join(ErrReceiptTimeout, err))
	}

	if err := m.store.ApplyReceipt(wallet, chainID, hash, receipt); err != nil {
		return fmt.Errorf("applying receipt for %s: %w", hash.Hex(), err)
	}

	logger.WithFields(logger.Fields{
		"wallet":   wallet.Hex(),
		"chain_id": chainID,
		"hash":     hash.Hex(),
		"status":   receipt.Status,
	}).Info("receipt applied")
	return nil
}

// poolBroadcasters adapts the provider pool to the engine's per-chain
// broadcaster lookup.
type poolBroadcasters struct {
	pool *providerpool.Pool
}

func (p poolBroadcasters) BroadcasterFor(chainID uint64) (Broadcaster, error) {
	conn, err := p.pool.GetProvider(chainID)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
