// Package nonceindex tracks which nonces currently have a non-terminal
// transaction record attached, per wallet and per chain. The record store uses
// it to enforce the at-most-one-active-record-per-(wallet, chain, nonce)
// invariant: a replacement reuses the slot in place, a brand new record on an
// occupied nonce is rejected.
package nonceindex

import (
	"sync"

	"github.com/KyberNetwork/logger"
	"github.com/ethereum/go-ethereum/common"
)

// Index maps (wallet, chain, nonce) to the hash of the active record.
type Index struct {
	// active maps wallet -> (chainID -> (nonce -> active record hash))
	active sync.Map // map[common.Address]map[uint64]map[uint64]common.Hash

	// walletLocks provides per-wallet locking
	walletLocks sync.Map // map[common.Address]*sync.RWMutex
}

// New creates an empty index.
func New() *Index {
	return &Index{}
}

func (i *Index) getWalletLock(wallet common.Address) *sync.RWMutex {
	lock, _ := i.walletLocks.LoadOrStore(wallet, &sync.RWMutex{})
	return lock.(*sync.RWMutex)
}

// getOrCreateChainMap returns the chain map for a wallet, creating it if
// necessary. MUST be called with the wallet lock held.
func (i *Index) getOrCreateChainMap(wallet common.Address) map[uint64]map[uint64]common.Hash {
	raw, _ := i.active.LoadOrStore(wallet, make(map[uint64]map[uint64]common.Hash))
	return raw.(map[uint64]map[uint64]common.Hash)
}

// Reserve marks nonce as occupied by hash. It fails if another hash already
// occupies the slot; reserving the same hash again is a no-op.
func (i *Index) Reserve(wallet common.Address, chainID uint64, nonce uint64, hash common.Hash) error {
	lock := i.getWalletLock(wallet)
	lock.Lock()
	defer lock.Unlock()

	chains := i.getOrCreateChainMap(wallet)
	if chains[chainID] == nil {
		chains[chainID] = map[uint64]common.Hash{}
	}

	if existing, ok := chains[chainID][nonce]; ok && existing != hash {
		logger.WithFields(logger.Fields{
			"wallet":        wallet.Hex(),
			"chain_id":      chainID,
			"nonce":         nonce,
			"existing_hash": existing.Hex(),
			"new_hash":      hash.Hex(),
		}).Debug("nonce slot already occupied by another active record")
		return ErrNonceOccupied
	}

	chains[chainID][nonce] = hash
	return nil
}

// Supersede swaps the hash occupying a nonce slot. The slot must currently be
// held by oldHash; this is how a replacement takes over the slot atomically.
func (i *Index) Supersede(wallet common.Address, chainID uint64, nonce uint64, oldHash, newHash common.Hash) error {
	lock := i.getWalletLock(wallet)
	lock.Lock()
	defer lock.Unlock()

	chains := i.getOrCreateChainMap(wallet)
	if chains[chainID] == nil {
		return ErrNonceNotActive
	}

	existing, ok := chains[chainID][nonce]
	if !ok {
		return ErrNonceNotActive
	}
	if existing != oldHash {
		logger.WithFields(logger.Fields{
			"wallet":        wallet.Hex(),
			"chain_id":      chainID,
			"nonce":         nonce,
			"existing_hash": existing.Hex(),
			"old_hash":      oldHash.Hex(),
		}).Debug("supersede skipped: slot held by a different hash")
		return ErrNonceOccupied
	}

	chains[chainID][nonce] = newHash
	return nil
}

// Release frees the nonce slot if it is held by hash. Releasing a slot held
// by a different hash (or not held at all) is a no-op; the caller may have
// lost a supersede race and the slot belongs to someone else now.
func (i *Index) Release(wallet common.Address, chainID uint64, nonce uint64, hash common.Hash) {
	lock := i.getWalletLock(wallet)
	lock.Lock()
	defer lock.Unlock()

	raw, ok := i.active.Load(wallet)
	if !ok {
		return
	}
	chains := raw.(map[uint64]map[uint64]common.Hash)
	if chains[chainID] == nil {
		return
	}
	if existing, ok := chains[chainID][nonce]; ok && existing == hash {
		delete(chains[chainID], nonce)
	}
}

// Active returns the hash occupying the nonce slot, if any.
func (i *Index) Active(wallet common.Address, chainID uint64, nonce uint64) (common.Hash, bool) {
	lock := i.getWalletLock(wallet)
	lock.RLock()
	defer lock.RUnlock()

	raw, ok := i.active.Load(wallet)
	if !ok {
		return common.Hash{}, false
	}
	chains := raw.(map[uint64]map[uint64]common.Hash)
	if chains[chainID] == nil {
		return common.Hash{}, false
	}
	hash, ok := chains[chainID][nonce]
	return hash, ok
}
