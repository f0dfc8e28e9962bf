package txlifecycle

import "fmt"

// Validation errors: returned as typed results, never panics across the
// consumer boundary.
var (
	ErrReplaceMissingFrom  = fmt.Errorf("replacement requires the original from address")
	ErrReplaceMissingNonce = fmt.Errorf("replacement requires a pinned nonce")
)

// Lookup errors.
var (
	ErrRecordNotFound  = fmt.Errorf("transaction record not found")
	ErrUnknownSigner   = fmt.Errorf("no signing identity for address")
	ErrDuplicateRecord = fmt.Errorf("record already exists for this hash")
	ErrNonceInUse      = fmt.Errorf("another non-terminal transaction already holds this nonce")
)

// State machine errors.
var (
	ErrInvalidTransition = fmt.Errorf("invalid status transition")
	ErrRecordTerminal    = fmt.Errorf("record is terminal and immutable")
)

// Network errors: caught at the engine boundary and converted into a
// terminal record status plus a user-facing notification.
var (
	ErrSignFailed       = fmt.Errorf("signing failed")
	ErrBroadcastFailed  = fmt.Errorf("broadcast failed")
	ErrReceiptTimeout   = fmt.Errorf("receipt polling exhausted attempt budget")
	ErrReceiptNotFound  = fmt.Errorf("receipt not available yet")
	ErrProviderRequired = fmt.Errorf("no ledger provider configured")
)
