package txlifecycle

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/tranvictor/txlifecycle/gasfee"
)

// ErrMissingFee is returned when a request carries no fee parameters.
var ErrMissingFee = fmt.Errorf("request carries no fee parameters")

// BuildTransaction turns a serializable request into an unsigned transaction
// at the chosen speed tier. The fee model of the request decides the wire
// format: LegacyFee builds a gasPrice transaction, DynamicFee builds an
// EIP-1559 one. This is the single place fee params meet the wire.
func BuildTransaction(req TransactionRequest, chainID uint64, speed gasfee.Speed) (*types.Transaction, error) {
	if req.Nonce == nil {
		return nil, ErrReplaceMissingNonce
	}
	if req.Fee == nil {
		return nil, ErrMissingFee
	}

	value := req.Value
	if value == nil {
		value = big.NewInt(0)
	}
	gasLimit := req.GasLimit
	if gasLimit == 0 {
		gasLimit = req.Fee.GasLimit()
	}

	switch fee := req.Fee.(type) {
	case gasfee.LegacyFee:
		price := fee.GasPrice.For(speed)
		if price == nil {
			return nil, fmt.Errorf("no gas price at speed %s: %w", speed, ErrMissingFee)
		}
		return types.NewTx(&types.LegacyTx{
			Nonce:    *req.Nonce,
			GasPrice: new(big.Int).Set(price),
			Gas:      gasLimit,
			To:       req.To,
			Value:    value,
			Data:     req.Data,
		}), nil

	case gasfee.DynamicFee:
		feeCap := fee.MaxFeePerGas.For(speed)
		tipCap := fee.MaxPriorityFeePerGas.For(speed)
		if feeCap == nil || tipCap == nil {
			return nil, fmt.Errorf("no fee caps at speed %s: %w", speed, ErrMissingFee)
		}
		return types.NewTx(&types.DynamicFeeTx{
			ChainID:   new(big.Int).SetUint64(chainID),
			Nonce:     *req.Nonce,
			GasTipCap: new(big.Int).Set(tipCap),
			GasFeeCap: new(big.Int).Set(feeCap),
			Gas:       gasLimit,
			To:        req.To,
			Value:     value,
			Data:      req.Data,
		}), nil

	default:
		return nil, fmt.Errorf("unsupported fee model %T: %w", req.Fee, ErrMissingFee)
	}
}
