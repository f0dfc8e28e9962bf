// Package txlifecycle tracks the lifecycle of on-chain transactions: the
// durable record store, the replacement/cancellation engine and the receipt
// watcher. It is a library consumed by a presentation layer through pure
// query/command functions; signing, broadcasting and remote history live
// behind injected ports.
package txlifecycle

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/tranvictor/txlifecycle/gasfee"
)

// TransactionStatus is the canonical status of a tracked transaction. Every
// consumer switches exhaustively over this set; there is no default "failure"
// bucket.
type TransactionStatus int

const (
	StatusPending TransactionStatus = iota
	StatusCancelling
	StatusReplacing
	StatusSuccess
	StatusFailed
	StatusFailedCancel
)

func (s TransactionStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusCancelling:
		return "cancelling"
	case StatusReplacing:
		return "replacing"
	case StatusSuccess:
		return "success"
	case StatusFailed:
		return "failed"
	case StatusFailedCancel:
		return "failed_cancel"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transition is permitted out of s.
// Terminal records are immutable except for attaching a receipt.
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusFailedCancel:
		return true
	case StatusPending, StatusCancelling, StatusReplacing:
		return false
	default:
		return false
	}
}

// IsPendingLike reports whether s still awaits an on-chain outcome
// (pending, cancelling or replacing).
func (s TransactionStatus) IsPendingLike() bool {
	return !s.IsTerminal()
}

// TransactionKind classifies what the transaction does, for presentation and
// history reconciliation.
type TransactionKind string

const (
	KindSend    TransactionKind = "send"
	KindSwap    TransactionKind = "swap"
	KindApprove TransactionKind = "approve"
	KindWrap    TransactionKind = "wrap"
	KindCancel  TransactionKind = "cancel"
	KindUnknown TransactionKind = "unknown"
)

// TypeInfo carries the classification of a record. Off-chain orders (signed
// intents settled by a third party) have no nonce and are marked as such.
type TypeInfo struct {
	Kind TransactionKind

	// IsOffChain is true for orders that are never broadcast by the user
	// directly and therefore carry no nonce.
	IsOffChain bool

	// OrderHash identifies the off-chain order, when applicable.
	OrderHash string
}

// TransactionRequest is the serializable form of the transaction parameters
// that were (or will be) sent. From and Nonce are pointers because a request
// without them is not replaceable.
type TransactionRequest struct {
	From     *common.Address
	To       *common.Address
	Nonce    *uint64
	Value    *big.Int
	Data     []byte
	Fee      gasfee.FeeParams
	GasLimit uint64
}

// Clone returns a copy of the request safe to mutate. Data is copied; Value
// is re-boxed; Fee params are value types and shared as-is.
func (r TransactionRequest) Clone() TransactionRequest {
	out := r
	if r.From != nil {
		from := *r.From
		out.From = &from
	}
	if r.To != nil {
		to := *r.To
		out.To = &to
	}
	if r.Nonce != nil {
		nonce := *r.Nonce
		out.Nonce = &nonce
	}
	if r.Value != nil {
		out.Value = new(big.Int).Set(r.Value)
	}
	if r.Data != nil {
		out.Data = append([]byte(nil), r.Data...)
	}
	return out
}

// TransactionRecord is the single source of truth for one tracked
// transaction. It is owned by the RecordStore and mutated only through the
// replacement engine or the receipt-confirmation path. For a given
// (From, ChainID, Nonce) at most one record is non-terminal; a replacement
// reuses the nonce and supersedes the previous hash in place.
type TransactionRecord struct {
	Hash      common.Hash
	ChainID   uint64
	From      common.Address
	Nonce     *uint64
	Status    TransactionStatus
	Request   TransactionRequest
	Receipt   *types.Receipt
	AddedTime time.Time
	TypeInfo  TypeInfo
}

// Clone returns a deep-enough copy of the record for handing outside the
// store's locks.
func (r TransactionRecord) Clone() TransactionRecord {
	out := r
	out.Request = r.Request.Clone()
	if r.Nonce != nil {
		nonce := *r.Nonce
		out.Nonce = &nonce
	}
	return out
}

// canTransition encodes the status state machine. Receipt attachment on a
// terminal record is not a transition and is handled separately.
func canTransition(from, to TransactionStatus) bool {
	if from.IsTerminal() {
		return false
	}
	switch from {
	case StatusPending:
		switch to {
		case StatusSuccess, StatusFailed, StatusCancelling, StatusReplacing:
			return true
		}
	case StatusCancelling:
		// Success: the cancellation itself was mined, superseding the
		// original. FailedCancel: the cancel's replacement broadcast lost the
		// race. Failed: a non-cancellation replacement broadcast failed, or
		// the original reverted on chain.
		switch to {
		case StatusSuccess, StatusFailed, StatusFailedCancel, StatusReplacing:
			return true
		}
	case StatusReplacing:
		switch to {
		case StatusPending, StatusCancelling:
			return true
		}
	}
	return false
}
