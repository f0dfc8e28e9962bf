package txlifecycle

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tranvictor/txlifecycle/gasfee"
)

// ReplaceRequest is a fluent builder over Engine.AttemptReplace, in the style
// of go-resty's R(). It carries the record to supersede and the parameters of
// the superseding transaction.
type ReplaceRequest struct {
	engine *Engine

	record TransactionRecord
	params TransactionRequest
	cancel bool
}

// R creates a new replacement request.
func (e *Engine) R() *ReplaceRequest {
	return &ReplaceRequest{
		engine: e,
		params: TransactionRequest{Value: big.NewInt(0)},
	}
}

// SetRecord sets the record to supersede.
func (r *ReplaceRequest) SetRecord(rec TransactionRecord) *ReplaceRequest {
	r.record = rec
	return r
}

// SetTo sets the destination address.
func (r *ReplaceRequest) SetTo(to common.Address) *ReplaceRequest {
	r.params.To = &to
	return r
}

// SetValue sets the transferred value.
func (r *ReplaceRequest) SetValue(value *big.Int) *ReplaceRequest {
	if value != nil {
		r.params.Value = value
	}
	return r
}

// SetData sets the calldata.
func (r *ReplaceRequest) SetData(data []byte) *ReplaceRequest {
	r.params.Data = data
	return r
}

// SetFee sets the fee parameters of the superseding transaction.
func (r *ReplaceRequest) SetFee(fee gasfee.FeeParams) *ReplaceRequest {
	r.params.Fee = fee
	return r
}

// SetGasLimit overrides the gas limit carried by the fee params.
func (r *ReplaceRequest) SetGasLimit(gasLimit uint64) *ReplaceRequest {
	r.params.GasLimit = gasLimit
	return r
}

// AsCancellation marks the request as a cancellation: a zero-value
// self-transfer is substituted for the payload.
func (r *ReplaceRequest) AsCancellation() *ReplaceRequest {
	r.cancel = true
	return r
}

// Do executes the replacement attempt.
func (r *ReplaceRequest) Do(ctx context.Context) (TransactionRecord, error) {
	if r.cancel {
		return r.engine.AttemptCancel(ctx, r.record, r.params.Fee)
	}
	return r.engine.AttemptReplace(ctx, r.record, r.params, false)
}
