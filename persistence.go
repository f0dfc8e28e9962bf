// Persistence interfaces for crash-resilient lifecycle tracking. Implement
// RecordPersistence to keep the transaction record map across restarts; the
// in-memory store remains authoritative while the process is alive.
package txlifecycle

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// RecordPersistence receives a write-through copy of every record mutation.
//
// Thread safety: implementations MUST be safe for concurrent use; the
// RecordStore calls SaveRecord from multiple goroutines while holding only
// its own per-wallet lock.
type RecordPersistence interface {
	// SaveRecord creates or updates the stored copy of the record, keyed by
	// (From, ChainID, Hash).
	SaveRecord(rec TransactionRecord) error

	// LoadAll returns every stored record, for rehydrating a RecordStore at
	// startup.
	LoadAll() ([]TransactionRecord, error)
}

// InMemoryPersistence is a map-backed RecordPersistence, useful for tests and
// as a reference implementation.
type InMemoryPersistence struct {
	mu      sync.RWMutex
	records map[persistKey]TransactionRecord
}

type persistKey struct {
	wallet  common.Address
	chainID uint64
	hash    common.Hash
}

// NewInMemoryPersistence creates an empty backend.
func NewInMemoryPersistence() *InMemoryPersistence {
	return &InMemoryPersistence{records: map[persistKey]TransactionRecord{}}
}

func (p *InMemoryPersistence) SaveRecord(rec TransactionRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records[persistKey{rec.From, rec.ChainID, rec.Hash}] = rec.Clone()
	return nil
}

func (p *InMemoryPersistence) LoadAll() ([]TransactionRecord, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]TransactionRecord, 0, len(p.records))
	for _, rec := range p.records {
		out = append(out, rec.Clone())
	}
	return out, nil
}
