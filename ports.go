package txlifecycle

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// SignerPort resolves signing identities and produces signatures. Key
// management is out of scope; a host wallet implements this.
type SignerPort interface {
	// HasSigner reports whether a signing identity exists for the
	// checksummed address.
	HasSigner(from common.Address) bool

	// SignTx signs tx for the given address and chain. The returned
	// transaction carries the signature and the final hash.
	SignTx(ctx context.Context, from common.Address, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// Broadcaster is the slice of the ledger provider surface the replacement
// engine needs.
type Broadcaster interface {
	// Broadcast submits a signed transaction and returns its hash.
	Broadcast(ctx context.Context, tx *types.Transaction) (common.Hash, error)
}

// ReceiptFetcher fetches receipts. A nil receipt with a nil error means the
// transaction is not yet confirmed.
type ReceiptFetcher interface {
	Receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// NotificationKind enumerates the side-effect notifications the engine
// emits. Rendering and localization are the consumer's concern; the engine
// only supplies the message key.
type NotificationKind int

const (
	// NotifyReplacementSubmitted: a replacement or cancellation was
	// broadcast and the record was superseded in place.
	NotifyReplacementSubmitted NotificationKind = iota

	// NotifyRecordAlreadyMatches: the freshly broadcast hash was already in
	// the recent candidate set; the record was updated anyway.
	NotifyRecordAlreadyMatches

	// NotifyReplacementFailed: the broadcast failed and the record was
	// finalized as Failed.
	NotifyReplacementFailed

	// NotifyCancelLostRace: the broadcast of a cancellation failed while the
	// record was already Cancelling; the original was almost certainly mined
	// and the record was finalized as FailedCancel.
	NotifyCancelLostRace
)

// Notification is a user-facing side effect emitted by the engine.
type Notification struct {
	Kind       NotificationKind
	Address    common.Address
	ChainID    uint64
	Hash       common.Hash
	MessageKey string
	Err        error
}

// Notifier receives engine notifications. Implementations must not block.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(n Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// Message keys handed to the presentation layer's localizer.
const (
	msgKeyReplaceSubmitted = "transaction.replace.submitted"
	msgKeyAlreadyMatches   = "transaction.replace.alreadyMatches"
	msgKeyReplaceFailed    = "transaction.replace.error"
	msgKeyCancelLostRace   = "transaction.watcher.error.cancel"
)
