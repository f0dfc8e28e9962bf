// Package circuitbreaker protects per-chain ledger provider connections from
// cascading failures. The provider pool keeps one breaker per chain; when a
// chain's node keeps failing, the breaker opens and lookups fail fast instead
// of hammering a dead endpoint.
package circuitbreaker

import (
	"sync"
	"time"
)

// State is the breaker state.
type State int

const (
	StateClosed   State = iota // normal operation, requests pass through
	StateOpen                  // failing fast, the endpoint is considered down
	StateHalfOpen              // probing whether the endpoint recovered
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds breaker thresholds.
type Config struct {
	// FailureThreshold is the number of consecutive failures before opening.
	FailureThreshold int

	// SuccessThreshold is the number of consecutive successes in half-open
	// state before closing again.
	SuccessThreshold int

	// Cooldown is how long the breaker stays open before moving to half-open.
	Cooldown time.Duration

	// OnStateChange is called whenever the state changes.
	OnStateChange func(from, to State)
}

// DefaultConfig returns thresholds tuned for RPC node flakiness.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Cooldown:         30 * time.Second,
	}
}

// Breaker implements the circuit breaker pattern for a single chain endpoint.
type Breaker struct {
	mu sync.RWMutex

	config Config
	state  State

	consecutiveFailures  int
	consecutiveSuccesses int

	lastFailureTime time.Time
}

// New creates a breaker, normalizing non-positive config values to defaults.
func New(config Config) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 2
	}
	if config.Cooldown <= 0 {
		config.Cooldown = 30 * time.Second
	}

	return &Breaker{
		config: config,
		state:  StateClosed,
	}
}

// State returns the current state of the breaker.
func (b *Breaker) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.currentState()
}

// currentState accounts for the open -> half-open transition on cooldown
// expiry. Must be called with at least a read lock held.
func (b *Breaker) currentState() State {
	if b.state == StateOpen && time.Since(b.lastFailureTime) >= b.config.Cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Allow reports whether a request to the endpoint should proceed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.currentState() {
	case StateOpen:
		return false
	default:
		// closed, or half-open probing with one request
		return true
	}
}

// RecordSuccess records a successful endpoint operation.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures = 0
	b.consecutiveSuccesses++

	if b.currentState() == StateHalfOpen && b.consecutiveSuccesses >= b.config.SuccessThreshold {
		b.setState(StateClosed)
		b.consecutiveSuccesses = 0
	}
}

// RecordFailure records a failed endpoint operation.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveSuccesses = 0
	b.consecutiveFailures++
	b.lastFailureTime = time.Now()

	switch b.currentState() {
	case StateClosed:
		if b.consecutiveFailures >= b.config.FailureThreshold {
			b.setState(StateOpen)
		}
	case StateHalfOpen:
		// any failure while probing reopens the circuit
		b.setState(StateOpen)
	}
}

// Reset forces the breaker back to closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures = 0
	b.consecutiveSuccesses = 0
	b.setState(StateClosed)
}

func (b *Breaker) setState(newState State) {
	if b.state == newState {
		return
	}

	oldState := b.state
	b.state = newState

	if b.config.OnStateChange != nil {
		go b.config.OnStateChange(oldState, newState)
	}
}

// Stats is a snapshot of breaker counters.
type Stats struct {
	State                State
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	LastFailureTime      time.Time
}

// Stats returns the current counters.
func (b *Breaker) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return Stats{
		State:                b.currentState(),
		ConsecutiveFailures:  b.consecutiveFailures,
		ConsecutiveSuccesses: b.consecutiveSuccesses,
		LastFailureTime:      b.lastFailureTime,
	}
}
