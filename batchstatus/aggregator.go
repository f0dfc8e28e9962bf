package batchstatus

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/tranvictor/txlifecycle"
)

// Aggregate status codes of the call-bundle wire protocol, version 2.0.0.
const (
	// CodePending means no call in the bundle has confirmed yet.
	CodePending = 100
	// CodeConfirmed means the bundle landed successfully.
	CodeConfirmed = 200
	// CodeFailed means the bundle reached a terminal failure.
	CodeFailed = 400
)

// CallsVersion is the wire protocol version reported in every response.
const CallsVersion = "2.0.0"

// CallReceipt is one confirmed call inside a bundle, wire-shaped.
type CallReceipt struct {
	TransactionHash string        `json:"transactionHash"`
	Status          string        `json:"status"` // "0x1" success, "0x0" otherwise
	BlockHash       string        `json:"blockHash"`
	BlockNumber     string        `json:"blockNumber"`
	GasUsed         string        `json:"gasUsed"`
	Logs            []interface{} `json:"logs"`
}

// CallsStatus is the aggregate wire response for one bundle.
type CallsStatus struct {
	ID           string                 `json:"id"`
	Version      string                 `json:"version"`
	ChainID      string                 `json:"chainId"`
	Receipts     []CallReceipt          `json:"receipts"`
	Status       int                    `json:"status"`
	Capabilities map[string]interface{} `json:"capabilities"`
}

// RecordSource is the read surface the aggregator needs from the record
// store.
type RecordSource interface {
	Record(wallet common.Address, chainID uint64, hash common.Hash) (txlifecycle.TransactionRecord, bool)
}

// Aggregator derives bundle statuses from registered bundles and the live
// record store.
type Aggregator struct {
	registry *Registry
	records  RecordSource
}

// NewAggregator wires a registry to a record source.
func NewAggregator(registry *Registry, records RecordSource) *Aggregator {
	return &Aggregator{registry: registry, records: records}
}

// Status computes the aggregate status of the bundle for account. Hashes
// without a receipt are skipped rather than failing the call; the aggregate
// code follows the last hash in bundle order that does have a receipt. A
// bundle with no confirmed hash at all reports the pending code with an
// empty receipts array.
//
// TODO(multi-call bundles): with more than one hash, "status of the last
// confirmed hash" does not define what a partially failed bundle means.
// Today every bundle carries exactly one hash, so the question never arises;
// revisit before relaxing that.
func (a *Aggregator) Status(batchID string, account common.Address) (CallsStatus, error) {
	batch, err := a.registry.Lookup(batchID)
	if err != nil {
		return CallsStatus{}, err
	}

	out := CallsStatus{
		ID:           batch.BatchID,
		Version:      CallsVersion,
		ChainID:      hexutil.EncodeUint64(batch.ChainID),
		Receipts:     []CallReceipt{},
		Status:       CodePending,
		Capabilities: map[string]interface{}{},
	}

	for _, hash := range batch.OrderedTxHashes {
		rec, ok := a.records.Record(account, batch.ChainID, hash)
		if !ok || rec.Receipt == nil {
			continue
		}

		out.Receipts = append(out.Receipts, toCallReceipt(rec))
		out.Status = codeFor(rec.Status)
	}

	return out, nil
}

func codeFor(status txlifecycle.TransactionStatus) int {
	switch status {
	case txlifecycle.StatusPending, txlifecycle.StatusCancelling, txlifecycle.StatusReplacing:
		return CodePending
	case txlifecycle.StatusSuccess:
		return CodeConfirmed
	default:
		return CodeFailed
	}
}

func toCallReceipt(rec txlifecycle.TransactionRecord) CallReceipt {
	receipt := rec.Receipt

	status := "0x0"
	if receipt.Status == 1 {
		status = "0x1"
	}

	blockNumber := receipt.BlockNumber
	if blockNumber == nil {
		blockNumber = big.NewInt(0)
	}

	return CallReceipt{
		TransactionHash: receipt.TxHash.Hex(),
		Status:          status,
		BlockHash:       receipt.BlockHash.Hex(),
		BlockNumber:     hexutil.EncodeBig(blockNumber),
		GasUsed:         hexutil.EncodeUint64(receipt.GasUsed),
		Logs:            []interface{}{},
	}
}
