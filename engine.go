package txlifecycle

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/KyberNetwork/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/tranvictor/txlifecycle/gasfee"
)

// BroadcasterSource resolves the per-chain broadcaster. The provider pool
// satisfies this through a thin adapter.
type BroadcasterSource interface {
	BroadcasterFor(chainID uint64) (Broadcaster, error)
}

// Engine builds and submits nonce-reusing replacement transactions and
// transitions records accordingly. A cancellation is a replacement whose
// payload is a zero-value self-transfer.
//
// The engine does not lock across calls: replacement and cancellation for
// the same (wallet, chain, nonce) must be serialized by the caller.
// Concurrent attempts on the same nonce are a caller-level precondition
// violation.
type Engine struct {
	store     *RecordStore
	signer    SignerPort
	providers BroadcasterSource

	notifier Notifier
	recent   *RecentSubmissions
	speed    gasfee.Speed

	beforeBroadcastHook Hook
	afterBroadcastHook  Hook
	finalizedHook       FinalizedHook
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithNotifier sets the side-effect notification sink.
func WithNotifier(n Notifier) EngineOption {
	return func(e *Engine) { e.notifier = n }
}

// WithRecentSubmissions sets the recent-hash tracker used for the
// "record already matches" idempotency note.
func WithRecentSubmissions(r *RecentSubmissions) EngineOption {
	return func(e *Engine) { e.recent = r }
}

// WithReplacementSpeed sets the fee tier used when building replacements.
// Defaults to urgent: a replacement exists to outbid its predecessor.
func WithReplacementSpeed(speed gasfee.Speed) EngineOption {
	return func(e *Engine) { e.speed = speed }
}

// WithBeforeBroadcastHook sets a hook called with the unsigned transaction
// before signing.
func WithBeforeBroadcastHook(h Hook) EngineOption {
	return func(e *Engine) { e.beforeBroadcastHook = h }
}

// WithAfterBroadcastHook sets a hook called with the signed transaction and
// the broadcast error, if any.
func WithAfterBroadcastHook(h Hook) EngineOption {
	return func(e *Engine) { e.afterBroadcastHook = h }
}

// WithFinalizedHook sets a hook called when a broadcast failure finalizes
// the record.
func WithFinalizedHook(h FinalizedHook) EngineOption {
	return func(e *Engine) { e.finalizedHook = h }
}

// NewEngine creates a replacement engine over the given store and ports.
func NewEngine(store *RecordStore, signer SignerPort, providers BroadcasterSource, opts ...EngineOption) *Engine {
	e := &Engine{
		store:     store,
		signer:    signer,
		providers: providers,
		speed:     gasfee.SpeedUrgent,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AttemptReplace builds a replacement for rec at the same nonce, signs and
// broadcasts it, and updates the record in place. On broadcast failure the
// record is finalized: FailedCancel when the record was already Cancelling
// and this attempt was itself a cancellation (the original almost certainly
// won the race), Failed otherwise. The call itself is never retried by the
// engine.
//
// The returned record reflects the store after the attempt.
func (e *Engine) AttemptReplace(
	ctx context.Context,
	rec TransactionRecord,
	newParams TransactionRequest,
	isCancellation bool,
) (TransactionRecord, error) {
	// a replacement is meaningless without a pinned nonce
	if rec.Request.From == nil || *rec.Request.From == (common.Address{}) {
		return rec, ErrReplaceMissingFrom
	}
	if rec.Request.Nonce == nil {
		return rec, ErrReplaceMissingNonce
	}

	from := *rec.Request.From
	if !e.signer.HasSigner(from) {
		return rec, fmt.Errorf("%s: %w", from.Hex(), ErrUnknownSigner)
	}

	// merge: the original from and nonce are pinned, never recomputed
	outgoing := newParams.Clone()
	outgoing.From = &from
	outgoing.Nonce = rec.Request.Nonce

	unsigned, err := BuildTransaction(outgoing, rec.ChainID, e.speed)
	if err != nil {
		return rec, err
	}

	if e.beforeBroadcastHook != nil {
		if hookErr := e.beforeBroadcastHook(unsigned, nil); hookErr != nil {
			return rec, fmt.Errorf("before-broadcast hook: %w", hookErr)
		}
	}

	signed, err := e.signer.SignTx(ctx, from, unsigned, new(big.Int).SetUint64(rec.ChainID))
	if err != nil {
		return e.finalizeFailure(rec, isCancellation, errors.Join(ErrSignFailed, err))
	}

	broadcastErr := e.broadcast(ctx, rec.ChainID, signed)

	if e.afterBroadcastHook != nil {
		if hookErr := e.afterBroadcastHook(signed, broadcastErr); hookErr != nil {
			return rec, fmt.Errorf("after-broadcast hook: %w", hookErr)
		}
	}

	if broadcastErr != nil {
		logger.WithFields(logger.Fields{
			"wallet":       from.Hex(),
			"chain_id":     rec.ChainID,
			"old_hash":     rec.Hash.Hex(),
			"nonce":        *rec.Request.Nonce,
			"cancellation": isCancellation,
			"error":        broadcastErr,
		}).Warn("replacement broadcast failed")
		return e.finalizeFailure(rec, isCancellation, errors.Join(ErrBroadcastFailed, broadcastErr))
	}

	newHash := signed.Hash()
	alreadySeen := false
	if e.recent != nil {
		alreadySeen = e.recent.Mark(newHash)
	}

	sent := sentRequest(outgoing, signed)
	if err := e.store.ReplaceInPlace(from, rec.ChainID, rec.Hash, newHash, sent, isCancellation); err != nil {
		return rec, err
	}

	logger.WithFields(logger.Fields{
		"wallet":       from.Hex(),
		"chain_id":     rec.ChainID,
		"old_hash":     rec.Hash.Hex(),
		"new_hash":     newHash.Hex(),
		"nonce":        signed.Nonce(),
		"cancellation": isCancellation,
		"already_seen": alreadySeen,
	}).Info("replacement broadcast and record superseded")

	kind := NotifyReplacementSubmitted
	msgKey := msgKeyReplaceSubmitted
	if alreadySeen {
		kind = NotifyRecordAlreadyMatches
		msgKey = msgKeyAlreadyMatches
	}
	e.notify(Notification{
		Kind:       kind,
		Address:    from,
		ChainID:    rec.ChainID,
		Hash:       newHash,
		MessageKey: msgKey,
	})

	updated, ok := e.store.Record(from, rec.ChainID, newHash)
	if !ok {
		return rec, fmt.Errorf("record vanished after replacement: %w", ErrRecordNotFound)
	}
	return updated, nil
}

// AttemptCancel submits a zero-value self-transfer at the record's own nonce
// to supersede it. fee prices the cancel; its gas limit applies.
func (e *Engine) AttemptCancel(ctx context.Context, rec TransactionRecord, fee gasfee.FeeParams) (TransactionRecord, error) {
	if rec.Request.From == nil || *rec.Request.From == (common.Address{}) {
		return rec, ErrReplaceMissingFrom
	}
	from := *rec.Request.From
	cancelParams := TransactionRequest{
		To:    &from,
		Value: big.NewInt(0),
		Fee:   fee,
	}
	return e.AttemptReplace(ctx, rec, cancelParams, true)
}

func (e *Engine) broadcast(ctx context.Context, chainID uint64, signed *types.Transaction) error {
	b, err := e.providers.BroadcasterFor(chainID)
	if err != nil {
		return err
	}
	_, err = b.Broadcast(ctx, signed)
	return err
}

// finalizeFailure applies the terminal classification rule. A failed
// cancellation of an already-cancelling record is FailedCancel, never a
// generic Failed: that combination means the original transaction was almost
// certainly mined and the cancel lost the race.
func (e *Engine) finalizeFailure(rec TransactionRecord, isCancellation bool, cause error) (TransactionRecord, error) {
	// classify off the live status: a concurrent receipt may have finalized
	// the record while we were broadcasting
	current, ok := e.store.Record(rec.From, rec.ChainID, rec.Hash)
	if !ok {
		current = rec
	}

	target := StatusFailed
	kind := NotifyReplacementFailed
	msgKey := msgKeyReplaceFailed
	if current.Status == StatusCancelling && isCancellation {
		target = StatusFailedCancel
		kind = NotifyCancelLostRace
		msgKey = msgKeyCancelLostRace
	}

	if err := e.store.Finalize(rec.From, rec.ChainID, rec.Hash, target); err != nil {
		// the record may already be terminal from a racing receipt; report
		// the broadcast failure either way
		logger.WithFields(logger.Fields{
			"tx_hash": rec.Hash.Hex(),
			"target":  target.String(),
			"error":   err,
		}).Debug("finalize after broadcast failure did not apply")
	}

	e.notify(Notification{
		Kind:       kind,
		Address:    rec.From,
		ChainID:    rec.ChainID,
		Hash:       rec.Hash,
		MessageKey: msgKey,
		Err:        cause,
	})

	final, ok := e.store.Record(rec.From, rec.ChainID, rec.Hash)
	if !ok {
		final = rec
		final.Status = target
	}
	if e.finalizedHook != nil {
		e.finalizedHook(final, cause)
	}
	return final, cause
}

func (e *Engine) notify(n Notification) {
	if e.notifier == nil {
		return
	}
	e.notifier.Notify(n)
}

// sentRequest captures the serializable form of what was actually broadcast.
func sentRequest(outgoing TransactionRequest, signed *types.Transaction) TransactionRequest {
	sent := outgoing.Clone()
	nonce := signed.Nonce()
	sent.Nonce = &nonce
	sent.GasLimit = signed.Gas()
	sent.Value = signed.Value()
	sent.Data = signed.Data()
	sent.To = signed.To()
	return sent
}
