package activity

import (
	"fmt"
	"strconv"
	"strings"
)

// CancellableOrder is the slice of an off-chain order the cancellation
// validator needs. EncodedOrder may be empty; its presence does not affect
// validity.
type CancellableOrder struct {
	OrderHash    string
	ChainID      uint64
	EncodedOrder string
}

// OrdersValidation is the typed result of ValidateOrdersForCancellation.
// Invalid inputs produce Error, never a panic or a thrown failure.
type OrdersValidation struct {
	Valid   bool
	ChainID uint64
	Error   string
}

// Validation error messages. Orders spanning multiple chains report every
// order's chain id in input order, without deduplication, so the caller can
// see exactly which orders disagree.
const msgInvalidOrdersArray = "Invalid orders array"

// ValidateOrdersForCancellation checks that a group of orders can be
// cancelled in one transaction: the group must be non-empty and every order
// must live on the same chain.
func ValidateOrdersForCancellation(orders []CancellableOrder) OrdersValidation {
	if len(orders) == 0 {
		return OrdersValidation{Error: msgInvalidOrdersArray}
	}

	distinct := map[uint64]struct{}{}
	all := make([]string, 0, len(orders))
	for _, order := range orders {
		distinct[order.ChainID] = struct{}{}
		all = append(all, strconv.FormatUint(order.ChainID, 10))
	}

	if len(distinct) > 1 {
		return OrdersValidation{
			Error: fmt.Sprintf("Cannot cancel orders from different chains: %s", strings.Join(all, ", ")),
		}
	}

	return OrdersValidation{Valid: true, ChainID: orders[0].ChainID}
}
