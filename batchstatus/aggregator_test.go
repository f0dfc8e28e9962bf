package batchstatus

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tranvictor/txlifecycle"
)

var account = common.HexToAddress("0x1111111111111111111111111111111111111111")

type recordKey struct {
	wallet  common.Address
	chainID uint64
	hash    common.Hash
}

type fakeRecords map[recordKey]txlifecycle.TransactionRecord

func (f fakeRecords) Record(wallet common.Address, chainID uint64, hash common.Hash) (txlifecycle.TransactionRecord, bool) {
	rec, ok := f[recordKey{wallet, chainID, hash}]
	return rec, ok
}

func successReceipt(hash common.Hash) *types.Receipt {
	return &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      hash,
		BlockHash:   common.HexToHash("0xb10c"),
		BlockNumber: big.NewInt(255),
		GasUsed:     21000,
	}
}

func TestRegistry(t *testing.T) {
	t.Run("register and lookup", func(t *testing.T) {
		r := NewRegistry()
		b := r.Register(1, []common.Hash{common.HexToHash("0x01")})
		require.NotEmpty(t, b.BatchID)

		got, err := r.Lookup(b.BatchID)
		require.NoError(t, err)
		assert.Equal(t, b, got)
	})

	t.Run("unknown id", func(t *testing.T) {
		r := NewRegistry()
		_, err := r.Lookup("nope")
		assert.ErrorIs(t, err, ErrBatchNotFound)
	})

	t.Run("registered hashes are isolated from caller mutation", func(t *testing.T) {
		r := NewRegistry()
		hashes := []common.Hash{common.HexToHash("0x01")}
		b := r.Register(1, hashes)

		hashes[0] = common.HexToHash("0xff")
		got, err := r.Lookup(b.BatchID)
		require.NoError(t, err)
		assert.Equal(t, common.HexToHash("0x01"), got.OrderedTxHashes[0])
	})
}

func TestAggregatorStatus(t *testing.T) {
	t.Run("unknown batch", func(t *testing.T) {
		agg := NewAggregator(NewRegistry(), fakeRecords{})
		_, err := agg.Status("missing", account)
		assert.ErrorIs(t, err, ErrBatchNotFound)
	})

	t.Run("no receipt yet reports pending with empty receipts", func(t *testing.T) {
		registry := NewRegistry()
		hash := common.HexToHash("0x01")
		b := registry.Register(1, []common.Hash{hash})

		records := fakeRecords{
			{account, 1, hash}: {
				Hash:    hash,
				ChainID: 1,
				From:    account,
				Status:  txlifecycle.StatusPending,
			},
		}

		status, err := NewAggregator(registry, records).Status(b.BatchID, account)
		require.NoError(t, err)

		assert.Equal(t, CodePending, status.Status)
		assert.NotNil(t, status.Receipts)
		assert.Empty(t, status.Receipts)
		assert.Equal(t, "2.0.0", status.Version)
		assert.Equal(t, "0x1", status.ChainID)
		assert.Equal(t, b.BatchID, status.ID)
		assert.NotNil(t, status.Capabilities)
	})

	t.Run("confirmed success reports 200 with a 0x1 receipt", func(t *testing.T) {
		registry := NewRegistry()
		hash := common.HexToHash("0x01")
		b := registry.Register(1, []common.Hash{hash})

		records := fakeRecords{
			{account, 1, hash}: {
				Hash:    hash,
				ChainID: 1,
				From:    account,
				Status:  txlifecycle.StatusSuccess,
				Receipt: successReceipt(hash),
			},
		}

		status, err := NewAggregator(registry, records).Status(b.BatchID, account)
		require.NoError(t, err)

		assert.Equal(t, CodeConfirmed, status.Status)
		require.Len(t, status.Receipts, 1)

		receipt := status.Receipts[0]
		assert.Equal(t, hash.Hex(), receipt.TransactionHash)
		assert.Equal(t, "0x1", receipt.Status)
		assert.Equal(t, "0xff", receipt.BlockNumber)
		assert.Equal(t, "0x5208", receipt.GasUsed)
		assert.NotNil(t, receipt.Logs)
		assert.Empty(t, receipt.Logs)
	})

	t.Run("terminal failure reports 400 with a 0x0 receipt", func(t *testing.T) {
		registry := NewRegistry()
		hash := common.HexToHash("0x01")
		b := registry.Register(1, []common.Hash{hash})

		failed := successReceipt(hash)
		failed.Status = types.ReceiptStatusFailed

		records := fakeRecords{
			{account, 1, hash}: {
				Hash:    hash,
				ChainID: 1,
				From:    account,
				Status:  txlifecycle.StatusFailed,
				Receipt: failed,
			},
		}

		status, err := NewAggregator(registry, records).Status(b.BatchID, account)
		require.NoError(t, err)

		assert.Equal(t, CodeFailed, status.Status)
		require.Len(t, status.Receipts, 1)
		assert.Equal(t, "0x0", status.Receipts[0].Status)
	})

	t.Run("missing record is skipped, not an error", func(t *testing.T) {
		registry := NewRegistry()
		b := registry.Register(1, []common.Hash{common.HexToHash("0x01")})

		status, err := NewAggregator(registry, fakeRecords{}).Status(b.BatchID, account)
		require.NoError(t, err)
		assert.Equal(t, CodePending, status.Status)
		assert.Empty(t, status.Receipts)
	})

	t.Run("aggregate follows the last hash with a receipt", func(t *testing.T) {
		registry := NewRegistry()
		first := common.HexToHash("0x01")
		second := common.HexToHash("0x02")
		b := registry.Register(1, []common.Hash{first, second})

		records := fakeRecords{
			{account, 1, first}: {
				Hash: first, ChainID: 1, From: account,
				Status:  txlifecycle.StatusFailed,
				Receipt: successReceipt(first),
			},
			{account, 1, second}: {
				Hash: second, ChainID: 1, From: account,
				Status:  txlifecycle.StatusSuccess,
				Receipt: successReceipt(second),
			},
		}

		status, err := NewAggregator(registry, records).Status(b.BatchID, account)
		require.NoError(t, err)
		assert.Equal(t, CodeConfirmed, status.Status)
		assert.Len(t, status.Receipts, 2)
	})
}
