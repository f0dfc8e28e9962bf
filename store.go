package txlifecycle

import (
	"fmt"
	"sync"

	"github.com/KyberNetwork/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/tranvictor/txlifecycle/internal/nonceindex"
)

// RecordStore is the durable map of transaction state keyed by wallet, chain
// and hash. It is the single source of truth for status; the replacement
// engine and the receipt-confirmation path are the only writers. Every
// mutation is an atomic read-modify-write under a per-wallet lock, so a
// concurrently-arriving receipt cannot be overwritten by an in-flight
// replacement or vice versa. Records are never deleted.
type RecordStore struct {
	// records maps wallet -> (chainID -> (hash -> record))
	records sync.Map // map[common.Address]map[uint64]map[common.Hash]*TransactionRecord

	// walletLocks provides per-wallet locking
	walletLocks sync.Map // map[common.Address]*sync.RWMutex

	// nonces enforces at-most-one non-terminal record per (wallet, chain,
	// nonce)
	nonces *nonceindex.Index

	// persistence, when set, receives a write-through copy of every mutated
	// record
	persistence RecordPersistence
}

// RecordStoreOption configures a RecordStore.
type RecordStoreOption func(*RecordStore)

// WithRecordPersistence sets a write-through persistence backend.
func WithRecordPersistence(p RecordPersistence) RecordStoreOption {
	return func(s *RecordStore) {
		s.persistence = p
	}
}

// NewRecordStore creates an empty store.
func NewRecordStore(opts ...RecordStoreOption) *RecordStore {
	s := &RecordStore{
		nonces: nonceindex.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RecordStore) getWalletLock(wallet common.Address) *sync.RWMutex {
	lock, _ := s.walletLocks.LoadOrStore(wallet, &sync.RWMutex{})
	return lock.(*sync.RWMutex)
}

// getOrCreateChainMap returns the chain map for a wallet, creating it if
// necessary. MUST be called with the wallet lock held.
func (s *RecordStore) getOrCreateChainMap(wallet common.Address) map[uint64]map[common.Hash]*TransactionRecord {
	raw, _ := s.records.LoadOrStore(wallet, make(map[uint64]map[common.Hash]*TransactionRecord))
	return raw.(map[uint64]map[common.Hash]*TransactionRecord)
}

// Add inserts a freshly submitted record. On-chain records must arrive as
// Pending with a nonce; their nonce slot is reserved so no second active
// record can appear at the same (wallet, chain, nonce).
func (s *RecordStore) Add(rec TransactionRecord) error {
	if rec.Status != StatusPending {
		return fmt.Errorf("new records must be pending, got %s: %w", rec.Status, ErrInvalidTransition)
	}

	lock := s.getWalletLock(rec.From)
	lock.Lock()
	defer lock.Unlock()

	chains := s.getOrCreateChainMap(rec.From)
	if chains[rec.ChainID] == nil {
		chains[rec.ChainID] = map[common.Hash]*TransactionRecord{}
	}
	if _, exists := chains[rec.ChainID][rec.Hash]; exists {
		return fmt.Errorf("hash %s: %w", rec.Hash.Hex(), ErrDuplicateRecord)
	}

	if !rec.TypeInfo.IsOffChain {
		if rec.Nonce == nil {
			return ErrReplaceMissingNonce
		}
		if err := s.nonces.Reserve(rec.From, rec.ChainID, *rec.Nonce, rec.Hash); err != nil {
			return fmt.Errorf("nonce %d: %w", *rec.Nonce, ErrNonceInUse)
		}
	}

	stored := rec.Clone()
	chains[rec.ChainID][rec.Hash] = &stored

	logger.WithFields(logger.Fields{
		"wallet":   rec.From.Hex(),
		"chain_id": rec.ChainID,
		"tx_hash":  rec.Hash.Hex(),
		"status":   rec.Status.String(),
	}).Debug("record added")

	s.persist(&stored)
	return nil
}

// Record returns a copy of the record for (wallet, chain, hash).
func (s *RecordStore) Record(wallet common.Address, chainID uint64, hash common.Hash) (TransactionRecord, bool) {
	lock := s.getWalletLock(wallet)
	lock.RLock()
	defer lock.RUnlock()

	rec := s.lookupUnlocked(wallet, chainID, hash)
	if rec == nil {
		return TransactionRecord{}, false
	}
	return rec.Clone(), true
}

// lookupUnlocked returns the live record pointer. MUST be called with the
// wallet lock held.
func (s *RecordStore) lookupUnlocked(wallet common.Address, chainID uint64, hash common.Hash) *TransactionRecord {
	raw, ok := s.records.Load(wallet)
	if !ok {
		return nil
	}
	chains := raw.(map[uint64]map[common.Hash]*TransactionRecord)
	if chains[chainID] == nil {
		return nil
	}
	return chains[chainID][hash]
}

// Update runs fn against the live record under the wallet lock. fn sees the
// current state and mutates it in place; any error aborts the mutation.
// Status changes made by fn are validated against the state machine.
func (s *RecordStore) Update(wallet common.Address, chainID uint64, hash common.Hash, fn func(rec *TransactionRecord) error) error {
	lock := s.getWalletLock(wallet)
	lock.Lock()
	defer lock.Unlock()

	rec := s.lookupUnlocked(wallet, chainID, hash)
	if rec == nil {
		return fmt.Errorf("%s/%d/%s: %w", wallet.Hex(), chainID, hash.Hex(), ErrRecordNotFound)
	}

	before := rec.Clone()
	if err := fn(rec); err != nil {
		*rec = before
		return err
	}
	if rec.Status != before.Status && !canTransition(before.Status, rec.Status) {
		*rec = before
		return fmt.Errorf("%s -> %s: %w", before.Status, rec.Status, ErrInvalidTransition)
	}

	s.persist(rec)
	return nil
}

// ApplyReceipt is the confirmation path. Non-terminal records move to their
// terminal status (success receipt confirms Pending and Cancelling alike;
// a revert receipt fails them); terminal records only attach the receipt.
func (s *RecordStore) ApplyReceipt(wallet common.Address, chainID uint64, hash common.Hash, receipt *types.Receipt) error {
	lock := s.getWalletLock(wallet)
	lock.Lock()
	defer lock.Unlock()

	rec := s.lookupUnlocked(wallet, chainID, hash)
	if rec == nil {
		return fmt.Errorf("%s/%d/%s: %w", wallet.Hex(), chainID, hash.Hex(), ErrRecordNotFound)
	}

	if rec.Status.IsTerminal() {
		rec.Receipt = receipt
		s.persist(rec)
		return nil
	}

	target := StatusSuccess
	if receipt.Status != types.ReceiptStatusSuccessful {
		target = StatusFailed
	}
	if !canTransition(rec.Status, target) {
		return fmt.Errorf("%s -> %s: %w", rec.Status, target, ErrInvalidTransition)
	}

	prior := rec.Status
	rec.Status = target
	rec.Receipt = receipt
	s.releaseNonceUnlocked(rec)

	logger.WithFields(logger.Fields{
		"wallet":     wallet.Hex(),
		"chain_id":   chainID,
		"tx_hash":    hash.Hex(),
		"old_status": prior.String(),
		"new_status": target.String(),
		"block":      receipt.BlockNumber,
	}).Info("record confirmed by receipt")

	s.persist(rec)
	return nil
}

// ReplaceInPlace supersedes a record at the same nonce: the hash and request
// change, any prior receipt is cleared, and the status lands on Cancelling
// when the replacement is itself a cancellation, Pending otherwise. The
// transient Replacing state is passed through under the lock so both hops are
// validated by the state machine.
func (s *RecordStore) ReplaceInPlace(
	wallet common.Address,
	chainID uint64,
	oldHash common.Hash,
	newHash common.Hash,
	newRequest TransactionRequest,
	isCancellation bool,
) error {
	lock := s.getWalletLock(wallet)
	lock.Lock()
	defer lock.Unlock()

	rec := s.lookupUnlocked(wallet, chainID, oldHash)
	if rec == nil {
		return fmt.Errorf("%s/%d/%s: %w", wallet.Hex(), chainID, oldHash.Hex(), ErrRecordNotFound)
	}

	target := StatusPending
	if isCancellation {
		target = StatusCancelling
	}
	if !canTransition(rec.Status, StatusReplacing) || !canTransition(StatusReplacing, target) {
		return fmt.Errorf("%s -> %s -> %s: %w", rec.Status, StatusReplacing, target, ErrInvalidTransition)
	}

	if rec.Nonce != nil {
		if err := s.nonces.Supersede(wallet, chainID, *rec.Nonce, oldHash, newHash); err != nil {
			return err
		}
	}

	prior := rec.Status
	rec.Status = target
	rec.Hash = newHash
	rec.Request = newRequest.Clone()
	rec.Receipt = nil

	// re-key the map entry under the superseding hash
	chains := s.getOrCreateChainMap(wallet)
	delete(chains[chainID], oldHash)
	chains[chainID][newHash] = rec

	logger.WithFields(logger.Fields{
		"wallet":       wallet.Hex(),
		"chain_id":     chainID,
		"old_hash":     oldHash.Hex(),
		"new_hash":     newHash.Hex(),
		"old_status":   prior.String(),
		"new_status":   target.String(),
		"cancellation": isCancellation,
	}).Info("record superseded in place")

	s.persist(rec)
	return nil
}

// Finalize moves a record to a terminal status without a receipt, for
// exhausted replacement attempts and unrecoverable broadcast errors.
func (s *RecordStore) Finalize(wallet common.Address, chainID uint64, hash common.Hash, status TransactionStatus) error {
	if !status.IsTerminal() {
		return fmt.Errorf("%s is not terminal: %w", status, ErrInvalidTransition)
	}

	lock := s.getWalletLock(wallet)
	lock.Lock()
	defer lock.Unlock()

	rec := s.lookupUnlocked(wallet, chainID, hash)
	if rec == nil {
		return fmt.Errorf("%s/%d/%s: %w", wallet.Hex(), chainID, hash.Hex(), ErrRecordNotFound)
	}
	if rec.Status.IsTerminal() {
		return fmt.Errorf("already %s: %w", rec.Status, ErrRecordTerminal)
	}
	if !canTransition(rec.Status, status) {
		return fmt.Errorf("%s -> %s: %w", rec.Status, status, ErrInvalidTransition)
	}

	prior := rec.Status
	rec.Status = status
	s.releaseNonceUnlocked(rec)

	logger.WithFields(logger.Fields{
		"wallet":     wallet.Hex(),
		"chain_id":   chainID,
		"tx_hash":    hash.Hex(),
		"old_status": prior.String(),
		"new_status": status.String(),
	}).Info("record finalized")

	s.persist(rec)
	return nil
}

// ActiveAtNonce returns the non-terminal record occupying (wallet, chain,
// nonce), if any.
func (s *RecordStore) ActiveAtNonce(wallet common.Address, chainID uint64, nonce uint64) (TransactionRecord, bool) {
	hash, ok := s.nonces.Active(wallet, chainID, nonce)
	if !ok {
		return TransactionRecord{}, false
	}
	return s.Record(wallet, chainID, hash)
}

// RecordsFor returns copies of all records for a wallet across chains,
// for presentation-layer reads.
func (s *RecordStore) RecordsFor(wallet common.Address) []TransactionRecord {
	lock := s.getWalletLock(wallet)
	lock.RLock()
	defer lock.RUnlock()

	raw, ok := s.records.Load(wallet)
	if !ok {
		return nil
	}
	chains := raw.(map[uint64]map[common.Hash]*TransactionRecord)

	var out []TransactionRecord
	for _, byHash := range chains {
		for _, rec := range byHash {
			out = append(out, rec.Clone())
		}
	}
	return out
}

// releaseNonceUnlocked frees the nonce slot when a record goes terminal.
// MUST be called with the wallet lock held.
func (s *RecordStore) releaseNonceUnlocked(rec *TransactionRecord) {
	if rec.Nonce == nil || rec.TypeInfo.IsOffChain {
		return
	}
	s.nonces.Release(rec.From, rec.ChainID, *rec.Nonce, rec.Hash)
}

func (s *RecordStore) persist(rec *TransactionRecord) {
	if s.persistence == nil {
		return
	}
	if err := s.persistence.SaveRecord(rec.Clone()); err != nil {
		logger.WithFields(logger.Fields{
			"tx_hash": rec.Hash.Hex(),
			"error":   err,
		}).Error("persisting record failed, in-memory state is authoritative")
	}
}
