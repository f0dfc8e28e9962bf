// Package batchstatus answers atomic call-bundle status queries. A bundle is
// a fixed, ordered set of transaction hashes submitted as one unit; callers
// poll its aggregate status by bundle id instead of per-hash.
package batchstatus

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// ErrBatchNotFound is returned when no bundle exists for the queried id.
var ErrBatchNotFound = fmt.Errorf("batch not found")

// Batch is an immutable record of one submitted call bundle.
type Batch struct {
	BatchID         string
	ChainID         uint64
	OrderedTxHashes []common.Hash
}

// Registry stores bundles by id. Bundles are write-once: registered when the
// batch is submitted and never mutated afterwards.
type Registry struct {
	mu      sync.RWMutex
	batches map[string]Batch
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{batches: map[string]Batch{}}
}

// NewBatchID mints a fresh bundle id.
func NewBatchID() string {
	return uuid.New().String()
}

// Register stores a bundle under a freshly minted id and returns it. The
// hash slice is copied so later caller mutation cannot reach the registry.
func (r *Registry) Register(chainID uint64, hashes []common.Hash) Batch {
	ordered := make([]common.Hash, len(hashes))
	copy(ordered, hashes)

	b := Batch{
		BatchID:         NewBatchID(),
		ChainID:         chainID,
		OrderedTxHashes: ordered,
	}

	r.mu.Lock()
	r.batches[b.BatchID] = b
	r.mu.Unlock()
	return b
}

// Lookup returns the bundle for id.
func (r *Registry) Lookup(id string) (Batch, error) {
	r.mu.RLock()
	b, ok := r.batches[id]
	r.mu.RUnlock()
	if !ok {
		return Batch{}, fmt.Errorf("%q: %w", id, ErrBatchNotFound)
	}
	return b, nil
}
