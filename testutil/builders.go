package testutil

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ============================================================
// Transaction Builders
// ============================================================

// NewDynamicTx creates an EIP-1559 transaction for testing.
func NewDynamicTx(nonce uint64, to common.Address, value *big.Int, gasLimit uint64, gasTipCap, gasFeeCap *big.Int, chainID uint64) *types.Transaction {
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   new(big.Int).SetUint64(chainID),
		Nonce:     nonce,
		GasTipCap: gasTipCap,
		GasFeeCap: gasFeeCap,
		Gas:       gasLimit,
		To:        &to,
		Value:     value,
	})
}

// NewTx creates a plain mainnet transfer with default gas settings.
func NewTx(nonce uint64, to common.Address, value *big.Int) *types.Transaction {
	return NewDynamicTx(nonce, to, value, 21000, TwoGwei, TwentyGwei, ChainMainnet)
}

// NewLegacyTx creates a pre-EIP-1559 transaction for testing.
func NewLegacyTx(nonce uint64, to common.Address, value *big.Int, gasLimit uint64, gasPrice *big.Int) *types.Transaction {
	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       &to,
		Value:    value,
	})
}

// NewCancelTx creates a zero-value self-transfer reusing nonce, the shape a
// cancellation submits.
func NewCancelTx(nonce uint64, from common.Address) *types.Transaction {
	return NewTx(nonce, from, big.NewInt(0))
}

// ============================================================
// Receipt Builders
// ============================================================

// NewReceipt creates a receipt for tx with the given status.
func NewReceipt(tx *types.Transaction, status uint64) *types.Receipt {
	return &types.Receipt{
		Status:            status,
		TxHash:            tx.Hash(),
		BlockNumber:       big.NewInt(12345678),
		BlockHash:         common.HexToHash("0xabcdef1234567890abcdef1234567890abcdef1234567890abcdef1234567890"),
		GasUsed:           tx.Gas(),
		CumulativeGasUsed: tx.Gas(),
	}
}

// NewSuccessReceipt creates a successful receipt for tx.
func NewSuccessReceipt(tx *types.Transaction) *types.Receipt {
	return NewReceipt(tx, types.ReceiptStatusSuccessful)
}

// NewFailedReceipt creates a reverted receipt for tx.
func NewFailedReceipt(tx *types.Transaction) *types.Receipt {
	return NewReceipt(tx, types.ReceiptStatusFailed)
}

// ============================================================
// Fee History Samples
// ============================================================

// GweiRow converts gwei amounts into a wei row, one entry per percentile.
func GweiRow(gwei ...int64) []*big.Int {
	row := make([]*big.Int, len(gwei))
	for i, g := range gwei {
		row[i] = new(big.Int).Mul(big.NewInt(g), OneGwei)
	}
	return row
}

// GweiSeries converts gwei amounts into a wei series, one entry per block.
func GweiSeries(gwei ...int64) []*big.Int {
	return GweiRow(gwei...)
}
