package txlifecycle

import (
	"context"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tranvictor/txlifecycle/gasfee"
	"github.com/tranvictor/txlifecycle/testutil"
)

type engineFixture struct {
	store       *RecordStore
	engine      *Engine
	signer      *mockSigner
	broadcaster *mockBroadcaster
	source      *mockBroadcasterSource
	notifier    *mockNotifier
}

func newEngineFixture(t *testing.T, opts ...EngineOption) *engineFixture {
	t.Helper()

	f := &engineFixture{
		store:       NewRecordStore(),
		signer:      &mockSigner{key: testutil.TestPrivateKey1, addr: testutil.TestPrivateKey1Address},
		broadcaster: &mockBroadcaster{},
		notifier:    &mockNotifier{},
	}
	f.source = &mockBroadcasterSource{broadcaster: f.broadcaster}

	opts = append([]EngineOption{WithNotifier(f.notifier)}, opts...)
	f.engine = NewEngine(f.store, f.signer, f.source, opts...)
	return f
}

// signedPendingRecord seeds the store with a pending record owned by the
// fixture's signing key.
func (f *engineFixture) signedPendingRecord(t *testing.T, nonce uint64) TransactionRecord {
	t.Helper()

	from := testutil.TestPrivateKey1Address
	rec := TransactionRecord{
		Hash:    common.HexToHash(fmt.Sprintf("0x%02x", nonce+1)),
		ChainID: testutil.ChainMainnet,
		From:    from,
		Nonce:   testutil.Uint64Ptr(nonce),
		Status:  StatusPending,
		Request: TransactionRequest{
			From:  &from,
			To:    testutil.AddrPtr(testutil.TestAddr2),
			Nonce: testutil.Uint64Ptr(nonce),
			Value: testutil.OneEth,
			Fee:   testFee(),
		},
		AddedTime: time.Now(),
	}
	require.NoError(t, f.store.Add(rec))
	return rec
}

func replaceParams() TransactionRequest {
	return TransactionRequest{
		To:    testutil.AddrPtr(testutil.TestAddr2),
		Value: testutil.OneEth,
		Fee:   testFee(),
	}
}

func TestAttemptReplace(t *testing.T) {
	t.Run("happy path supersedes the record", func(t *testing.T) {
		f := newEngineFixture(t)
		rec := f.signedPendingRecord(t, 7)

		updated, err := f.engine.AttemptReplace(context.Background(), rec, replaceParams(), false)
		require.NoError(t, err)

		assert.Equal(t, StatusPending, updated.Status)
		assert.NotEqual(t, rec.Hash, updated.Hash)
		assert.Equal(t, 1, f.broadcaster.sentCount())

		// old hash is gone, new hash owns the nonce slot
		_, ok := f.store.Record(rec.From, rec.ChainID, rec.Hash)
		assert.False(t, ok)
		active, ok := f.store.ActiveAtNonce(rec.From, rec.ChainID, 7)
		require.True(t, ok)
		assert.Equal(t, updated.Hash, active.Hash)

		n, ok := f.notifier.last()
		require.True(t, ok)
		assert.Equal(t, NotifyReplacementSubmitted, n.Kind)
		assert.Equal(t, "transaction.replace.submitted", n.MessageKey)
	})

	t.Run("nonce is pinned, never recomputed", func(t *testing.T) {
		f := newEngineFixture(t)
		rec := f.signedPendingRecord(t, 42)

		params := replaceParams()
		params.Nonce = testutil.Uint64Ptr(99) // must be ignored

		updated, err := f.engine.AttemptReplace(context.Background(), rec, params, false)
		require.NoError(t, err)
		require.NotNil(t, updated.Request.Nonce)
		assert.Equal(t, uint64(42), *updated.Request.Nonce)
		assert.Equal(t, uint64(42), f.broadcaster.sent[0].Nonce())
	})

	t.Run("missing from is a validation error", func(t *testing.T) {
		f := newEngineFixture(t)
		rec := f.signedPendingRecord(t, 1)
		rec.Request.From = nil

		_, err := f.engine.AttemptReplace(context.Background(), rec, replaceParams(), false)
		assert.ErrorIs(t, err, ErrReplaceMissingFrom)
		assert.Equal(t, 0, f.broadcaster.sentCount())
	})

	t.Run("missing nonce is a validation error", func(t *testing.T) {
		f := newEngineFixture(t)
		rec := f.signedPendingRecord(t, 1)
		rec.Request.Nonce = nil

		_, err := f.engine.AttemptReplace(context.Background(), rec, replaceParams(), false)
		assert.ErrorIs(t, err, ErrReplaceMissingNonce)
	})

	t.Run("unknown signer", func(t *testing.T) {
		f := newEngineFixture(t)
		rec := f.signedPendingRecord(t, 1)
		rec.Request.From = testutil.AddrPtr(testutil.TestAddr3)

		_, err := f.engine.AttemptReplace(context.Background(), rec, replaceParams(), false)
		assert.ErrorIs(t, err, ErrUnknownSigner)
	})

	t.Run("broadcast failure finalizes as failed", func(t *testing.T) {
		f := newEngineFixture(t)
		f.broadcaster.broadcastErr = fmt.Errorf("mempool rejected")
		rec := f.signedPendingRecord(t, 7)

		final, err := f.engine.AttemptReplace(context.Background(), rec, replaceParams(), false)
		require.ErrorIs(t, err, ErrBroadcastFailed)
		assert.Equal(t, StatusFailed, final.Status)

		n, ok := f.notifier.last()
		require.True(t, ok)
		assert.Equal(t, NotifyReplacementFailed, n.Kind)
		assert.Equal(t, "transaction.replace.error", n.MessageKey)
		assert.Error(t, n.Err)

		// the nonce slot is free again
		_, ok = f.store.ActiveAtNonce(rec.From, rec.ChainID, 7)
		assert.False(t, ok)
	})

	t.Run("failed cancellation of a cancelling record is FailedCancel", func(t *testing.T) {
		f := newEngineFixture(t)
		rec := f.signedPendingRecord(t, 7)
		require.NoError(t, f.store.Update(rec.From, rec.ChainID, rec.Hash, func(r *TransactionRecord) error {
			r.Status = StatusCancelling
			return nil
		}))
		rec.Status = StatusCancelling

		f.broadcaster.broadcastErr = fmt.Errorf("nonce too low")

		final, err := f.engine.AttemptReplace(context.Background(), rec, replaceParams(), true)
		require.ErrorIs(t, err, ErrBroadcastFailed)
		assert.Equal(t, StatusFailedCancel, final.Status, "must be FailedCancel, not Failed")

		n, ok := f.notifier.last()
		require.True(t, ok)
		assert.Equal(t, NotifyCancelLostRace, n.Kind)
		assert.Equal(t, "transaction.watcher.error.cancel", n.MessageKey)
	})

	t.Run("failed cancellation of a pending record is plain Failed", func(t *testing.T) {
		f := newEngineFixture(t)
		rec := f.signedPendingRecord(t, 7)
		f.broadcaster.broadcastErr = fmt.Errorf("nonce too low")

		final, err := f.engine.AttemptReplace(context.Background(), rec, replaceParams(), true)
		require.ErrorIs(t, err, ErrBroadcastFailed)
		assert.Equal(t, StatusFailed, final.Status)
	})

	t.Run("failed replacement of a cancelling record is plain Failed", func(t *testing.T) {
		f := newEngineFixture(t)
		rec := f.signedPendingRecord(t, 7)
		require.NoError(t, f.store.Update(rec.From, rec.ChainID, rec.Hash, func(r *TransactionRecord) error {
			r.Status = StatusCancelling
			return nil
		}))
		rec.Status = StatusCancelling
		f.broadcaster.broadcastErr = fmt.Errorf("underpriced")

		final, err := f.engine.AttemptReplace(context.Background(), rec, replaceParams(), false)
		require.ErrorIs(t, err, ErrBroadcastFailed)
		assert.Equal(t, StatusFailed, final.Status)
	})

	t.Run("sign failure finalizes without broadcasting", func(t *testing.T) {
		f := newEngineFixture(t)
		f.signer.signErr = fmt.Errorf("hardware wallet unplugged")
		rec := f.signedPendingRecord(t, 7)

		final, err := f.engine.AttemptReplace(context.Background(), rec, replaceParams(), false)
		require.ErrorIs(t, err, ErrSignFailed)
		assert.Equal(t, StatusFailed, final.Status)
		assert.Equal(t, 0, f.broadcaster.sentCount())
	})

	t.Run("request persisted as what was actually sent", func(t *testing.T) {
		f := newEngineFixture(t)
		rec := f.signedPendingRecord(t, 7)

		updated, err := f.engine.AttemptReplace(context.Background(), rec, replaceParams(), false)
		require.NoError(t, err)

		sent := f.broadcaster.sent[0]
		assert.Equal(t, sent.Nonce(), *updated.Request.Nonce)
		assert.Equal(t, sent.Gas(), updated.Request.GasLimit)
		assert.Equal(t, sent.To(), updated.Request.To)
		assert.Equal(t, sent.Value(), updated.Request.Value)
	})

	t.Run("already-seen hash notifies record-already-matches", func(t *testing.T) {
		recent := NewRecentSubmissions(time.Minute)
		defer recent.Close()

		f := newEngineFixture(t, WithRecentSubmissions(recent))
		rec := f.signedPendingRecord(t, 7)

		// pre-mark the exact hash the engine will produce
		outgoing := replaceParams().Clone()
		outgoing.From = testutil.AddrPtr(testutil.TestPrivateKey1Address)
		outgoing.Nonce = testutil.Uint64Ptr(7)
		unsigned, err := BuildTransaction(outgoing, rec.ChainID, gasfee.SpeedUrgent)
		require.NoError(t, err)
		signed, err := f.signer.SignTx(context.Background(), testutil.TestPrivateKey1Address, unsigned, new(big.Int).SetUint64(rec.ChainID))
		require.NoError(t, err)
		recent.Mark(signed.Hash())

		updated, err := f.engine.AttemptReplace(context.Background(), rec, replaceParams(), false)
		require.NoError(t, err)
		assert.Equal(t, signed.Hash(), updated.Hash)

		n, ok := f.notifier.last()
		require.True(t, ok)
		assert.Equal(t, NotifyRecordAlreadyMatches, n.Kind)
		assert.Equal(t, "transaction.replace.alreadyMatches", n.MessageKey)
	})

	t.Run("before-broadcast hook error stops the attempt", func(t *testing.T) {
		hookErr := fmt.Errorf("simulation says revert")
		fixtureOpts := WithBeforeBroadcastHook(func(tx *types.Transaction, err error) error {
			return hookErr
		})
		f := newEngineFixture(t, fixtureOpts)
		rec := f.signedPendingRecord(t, 7)

		_, err := f.engine.AttemptReplace(context.Background(), rec, replaceParams(), false)
		require.ErrorIs(t, err, hookErr)
		assert.Equal(t, 0, f.broadcaster.sentCount())

		got, _ := f.store.Record(rec.From, rec.ChainID, rec.Hash)
		assert.Equal(t, StatusPending, got.Status, "hook veto must not finalize the record")
	})

	t.Run("finalized hook observes the terminal record", func(t *testing.T) {
		var finalized []TransactionRecord
		f := newEngineFixture(t, WithFinalizedHook(func(rec TransactionRecord, err error) {
			finalized = append(finalized, rec)
		}))
		f.broadcaster.broadcastErr = fmt.Errorf("down")
		rec := f.signedPendingRecord(t, 7)

		_, err := f.engine.AttemptReplace(context.Background(), rec, replaceParams(), false)
		require.Error(t, err)
		require.Len(t, finalized, 1)
		assert.Equal(t, StatusFailed, finalized[0].Status)
	})
}

func TestAttemptCancel(t *testing.T) {
	t.Run("submits a zero-value self-transfer", func(t *testing.T) {
		f := newEngineFixture(t)
		rec := f.signedPendingRecord(t, 7)

		updated, err := f.engine.AttemptCancel(context.Background(), rec, testFee())
		require.NoError(t, err)

		assert.Equal(t, StatusCancelling, updated.Status)

		sent := f.broadcaster.sent[0]
		assert.Equal(t, uint64(7), sent.Nonce())
		require.NotNil(t, sent.To())
		assert.Equal(t, testutil.TestPrivateKey1Address, *sent.To())
		assert.Equal(t, int64(0), sent.Value().Int64())
	})

	t.Run("missing from", func(t *testing.T) {
		f := newEngineFixture(t)
		rec := f.signedPendingRecord(t, 7)
		rec.Request.From = nil

		_, err := f.engine.AttemptCancel(context.Background(), rec, testFee())
		assert.ErrorIs(t, err, ErrReplaceMissingFrom)
	})
}

func TestReplaceRequestBuilder(t *testing.T) {
	t.Run("replacement", func(t *testing.T) {
		f := newEngineFixture(t)
		rec := f.signedPendingRecord(t, 7)

		updated, err := f.engine.R().
			SetRecord(rec).
			SetTo(testutil.TestAddr2).
			SetValue(testutil.OneEth).
			SetFee(testFee()).
			Do(context.Background())
		require.NoError(t, err)
		assert.Equal(t, StatusPending, updated.Status)
		assert.Equal(t, 1, f.broadcaster.sentCount())
	})

	t.Run("cancellation", func(t *testing.T) {
		f := newEngineFixture(t)
		rec := f.signedPendingRecord(t, 7)

		updated, err := f.engine.R().
			SetRecord(rec).
			SetFee(testFee()).
			AsCancellation().
			Do(context.Background())
		require.NoError(t, err)
		assert.Equal(t, StatusCancelling, updated.Status)
	})
}
