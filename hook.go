package txlifecycle

import (
	"github.com/ethereum/go-ethereum/core/types"
)

// Hook is called around the sign-and-broadcast step of a replacement. The
// before hook sees the unsigned transaction; the after hook sees the signed
// transaction together with the broadcast error, if any. Returning an error
// from either stops the attempt and propagates to the caller.
type Hook func(tx *types.Transaction, err error) error

// FinalizedHook is called when the engine finalizes a record (Failed or
// FailedCancel) after a broadcast failure. The record is a copy; mutating it
// has no effect.
type FinalizedHook func(rec TransactionRecord, err error)
