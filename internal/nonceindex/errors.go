package nonceindex

import "fmt"

var (
	// ErrNonceOccupied is returned when a nonce slot is already held by a
	// different active record.
	ErrNonceOccupied = fmt.Errorf("nonce already occupied by another active transaction")

	// ErrNonceNotActive is returned when superseding a nonce slot that has no
	// active record.
	ErrNonceNotActive = fmt.Errorf("no active transaction at this nonce")
)
