// Package providerpool owns one verified ledger connection per chain. A
// connection is accepted only after its node proves live: the latest block
// exists, is not stale, and the reported network id matches the requested
// chain. Per-chain circuit breakers stop callers from hammering an endpoint
// that went bad after connecting.
package providerpool

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/KyberNetwork/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/tranvictor/txlifecycle/gasfee"
	"github.com/tranvictor/txlifecycle/internal/circuitbreaker"
	"github.com/tranvictor/txlifecycle/internal/retrypolicy"
)

const (
	// DefaultConnectAttempts caps connection attempts per CreateProvider
	// call.
	DefaultConnectAttempts = 3

	// DefaultConnectInterval is the wait between connection attempts.
	DefaultConnectInterval = time.Second

	// DefaultAttemptTimeout bounds each individual attempt.
	DefaultAttemptTimeout = time.Second

	// DefaultStalenessThreshold is how old the latest block may be before
	// the node is considered out of sync.
	DefaultStalenessThreshold = 600_000 * time.Millisecond
)

// Status is the lifecycle state of a pool entry.
type Status int

const (
	StatusDisconnected Status = iota
	StatusInitializing
	StatusConnected
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusInitializing:
		return "initializing"
	case StatusConnected:
		return "connected"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// BlockInfo is the slice of a block header the liveness check needs.
type BlockInfo struct {
	Number    *big.Int
	Timestamp uint64
}

// Connection is the capability surface of one chain's node, consumed by the
// lifecycle engine, the receipt watcher and the gas fee estimator.
type Connection interface {
	Broadcast(ctx context.Context, tx *types.Transaction) (common.Hash, error)
	Receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	LatestBlock(ctx context.Context) (*BlockInfo, error)
	NetworkID(ctx context.Context) (*big.Int, error)
	FeeHistory(ctx context.Context, blockCount uint64, rewardPercentiles []float64) (*gasfee.FeeHistory, error)
	Close() error
}

// Dialer opens a raw connection to the chain's node. The pool verifies it
// before accepting.
type Dialer func(ctx context.Context, chainID uint64) (Connection, error)

// Errors returned by the pool.
var (
	ErrProviderExists   = fmt.Errorf("provider already exists for chain")
	ErrProviderNotFound = fmt.Errorf("no provider for chain")
	ErrProviderNotReady = fmt.Errorf("provider is not connected")
	ErrConnectionFailed = fmt.Errorf("could not establish a live connection")
	ErrCircuitOpen      = fmt.Errorf("circuit breaker is open: chain temporarily unavailable")
	ErrStaleBlock       = fmt.Errorf("latest block is stale")
	ErrWrongNetwork     = fmt.Errorf("node reports a different network id")
	ErrNoLatestBlock    = fmt.Errorf("node returned no latest block")
)

type entry struct {
	mu     sync.Mutex
	status Status
	conn   Connection
}

// Pool owns at most one verified connection per chain.
type Pool struct {
	dialer Dialer

	connectPolicy retrypolicy.Policy

	// stalenessByChain overrides the default staleness threshold per chain
	stalenessByChain map[uint64]time.Duration
	defaultStaleness time.Duration

	entries  sync.Map // map[uint64]*entry
	breakers sync.Map // map[uint64]*circuitbreaker.Breaker

	breakerConfig circuitbreaker.Config
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithConnectPolicy overrides the connection retry policy.
func WithConnectPolicy(p retrypolicy.Policy) PoolOption {
	return func(pool *Pool) { pool.connectPolicy = p }
}

// WithStalenessThreshold sets the per-chain staleness threshold for the
// liveness check.
func WithStalenessThreshold(chainID uint64, threshold time.Duration) PoolOption {
	return func(pool *Pool) { pool.stalenessByChain[chainID] = threshold }
}

// WithDefaultStaleness sets the staleness threshold for chains without an
// explicit override.
func WithDefaultStaleness(threshold time.Duration) PoolOption {
	return func(pool *Pool) { pool.defaultStaleness = threshold }
}

// WithBreakerConfig overrides the per-chain circuit breaker thresholds.
func WithBreakerConfig(cfg circuitbreaker.Config) PoolOption {
	return func(pool *Pool) { pool.breakerConfig = cfg }
}

// NewPool creates a pool that dials nodes through dialer.
func NewPool(dialer Dialer, opts ...PoolOption) *Pool {
	p := &Pool{
		dialer: dialer,
		connectPolicy: retrypolicy.Policy{
			MaxAttempts:       DefaultConnectAttempts,
			Interval:          DefaultConnectInterval,
			TimeoutPerAttempt: DefaultAttemptTimeout,
		},
		stalenessByChain: map[uint64]time.Duration{},
		defaultStaleness: DefaultStalenessThreshold,
		breakerConfig:    circuitbreaker.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pool) breaker(chainID uint64) *circuitbreaker.Breaker {
	b, _ := p.breakers.LoadOrStore(chainID, circuitbreaker.New(p.breakerConfig))
	return b.(*circuitbreaker.Breaker)
}

func (p *Pool) staleness(chainID uint64) time.Duration {
	if threshold, ok := p.stalenessByChain[chainID]; ok {
		return threshold
	}
	return p.defaultStaleness
}

// CreateProvider dials and verifies a connection for chainID. It fails if an
// entry for the chain already exists; entries are never silently
// overwritten. Each verification attempt fetches the latest block and the
// network id under the attempt timeout; the connection is accepted only when
// the block exists, is fresh, and the network id matches.
func (p *Pool) CreateProvider(ctx context.Context, chainID uint64) error {
	raw, loaded := p.entries.LoadOrStore(chainID, &entry{status: StatusInitializing})
	if loaded {
		return fmt.Errorf("chain %d: %w", chainID, ErrProviderExists)
	}
	ent := raw.(*entry)

	ent.mu.Lock()
	defer ent.mu.Unlock()

	var conn Connection
	err := p.connectPolicy.Do(ctx, func(attemptCtx context.Context) error {
		c, err := p.verifyOnce(attemptCtx, chainID)
		if err != nil {
			logger.WithFields(logger.Fields{
				"chain_id": chainID,
				"error":    err,
			}).Debug("provider connection attempt failed")
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		ent.status = StatusError
		logger.WithFields(logger.Fields{
			"chain_id": chainID,
			"attempts": p.connectPolicy.Attempts(),
			"error":    err,
		}).Error("provider connection failed after all attempts")
		return fmt.Errorf("chain %d after %d attempts: %w: %w", chainID, p.connectPolicy.Attempts(), ErrConnectionFailed, err)
	}

	ent.conn = conn
	ent.status = StatusConnected

	logger.WithFields(logger.Fields{
		"chain_id": chainID,
	}).Info("provider connected")

	return nil
}

// verifyOnce dials and runs the liveness check. The connection is closed on
// any verification failure.
func (p *Pool) verifyOnce(ctx context.Context, chainID uint64) (Connection, error) {
	conn, err := p.dialer(ctx, chainID)
	if err != nil {
		return nil, err
	}

	block, err := conn.LatestBlock(ctx)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if block == nil {
		conn.Close()
		return nil, ErrNoLatestBlock
	}

	age := time.Since(time.Unix(int64(block.Timestamp), 0))
	if age > p.staleness(chainID) {
		conn.Close()
		return nil, fmt.Errorf("block %s is %s old: %w", block.Number, age, ErrStaleBlock)
	}

	networkID, err := conn.NetworkID(ctx)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if networkID == nil || networkID.Uint64() != chainID {
		conn.Close()
		return nil, fmt.Errorf("got %s, want %d: %w", networkID, chainID, ErrWrongNetwork)
	}

	return conn, nil
}

// GetProvider returns the connection for chainID. It fails when no entry
// exists, the entry is not Connected, or the chain's circuit breaker is
// open.
func (p *Pool) GetProvider(chainID uint64) (Connection, error) {
	if !p.breaker(chainID).Allow() {
		return nil, fmt.Errorf("chain %d: %w", chainID, ErrCircuitOpen)
	}

	raw, ok := p.entries.Load(chainID)
	if !ok {
		return nil, fmt.Errorf("chain %d: %w", chainID, ErrProviderNotFound)
	}
	ent := raw.(*entry)

	ent.mu.Lock()
	defer ent.mu.Unlock()
	if ent.status != StatusConnected {
		return nil, fmt.Errorf("chain %d is %s: %w", chainID, ent.status, ErrProviderNotReady)
	}
	return ent.conn, nil
}

// ProviderStatus returns the entry status for chainID.
func (p *Pool) ProviderStatus(chainID uint64) Status {
	raw, ok := p.entries.Load(chainID)
	if !ok {
		return StatusDisconnected
	}
	ent := raw.(*entry)
	ent.mu.Lock()
	defer ent.mu.Unlock()
	return ent.status
}

// RemoveProvider closes and forgets the chain's connection. It is
// idempotent: removing an absent entry logs and no-ops.
func (p *Pool) RemoveProvider(chainID uint64) {
	raw, ok := p.entries.LoadAndDelete(chainID)
	if !ok {
		logger.WithFields(logger.Fields{
			"chain_id": chainID,
		}).Debug("remove provider: no entry, nothing to do")
		return
	}
	ent := raw.(*entry)

	ent.mu.Lock()
	defer ent.mu.Unlock()
	if ent.conn != nil {
		if err := ent.conn.Close(); err != nil {
			logger.WithFields(logger.Fields{
				"chain_id": chainID,
				"error":    err,
			}).Warn("closing provider connection failed")
		}
	}
	ent.status = StatusDisconnected

	logger.WithFields(logger.Fields{
		"chain_id": chainID,
	}).Info("provider removed")
}

// RecordSuccess feeds the chain's circuit breaker after a successful ledger
// operation.
func (p *Pool) RecordSuccess(chainID uint64) {
	p.breaker(chainID).RecordSuccess()
}

// RecordFailure feeds the chain's circuit breaker after a failed ledger
// operation.
func (p *Pool) RecordFailure(chainID uint64) {
	p.breaker(chainID).RecordFailure()
}

// BreakerStats exposes the chain's circuit breaker counters.
func (p *Pool) BreakerStats(chainID uint64) circuitbreaker.Stats {
	return p.breaker(chainID).Stats()
}

// ResetBreaker forces the chain's circuit breaker closed.
func (p *Pool) ResetBreaker(chainID uint64) {
	p.breaker(chainID).Reset()
}
