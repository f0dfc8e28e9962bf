package txlifecycle

// Mock implementations of the engine's ports live here rather than in
// testutil to avoid an import cycle with the root package.

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// mockSigner signs with a real ECDSA key so signed transactions carry
// genuine hashes.
type mockSigner struct {
	key  *ecdsa.PrivateKey
	addr common.Address

	signErr error
}

func (m *mockSigner) HasSigner(from common.Address) bool {
	return from == m.addr
}

func (m *mockSigner) SignTx(ctx context.Context, from common.Address, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if m.signErr != nil {
		return nil, m.signErr
	}
	if from != m.addr {
		return nil, fmt.Errorf("no key for %s", from.Hex())
	}
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), m.key)
}

// mockBroadcaster collects broadcast transactions and optionally fails.
type mockBroadcaster struct {
	mu           sync.Mutex
	sent         []*types.Transaction
	broadcastErr error
}

func (m *mockBroadcaster) Broadcast(ctx context.Context, tx *types.Transaction) (common.Hash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.broadcastErr != nil {
		return common.Hash{}, m.broadcastErr
	}
	m.sent = append(m.sent, tx)
	return tx.Hash(), nil
}

func (m *mockBroadcaster) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// mockBroadcasterSource serves one broadcaster for every chain.
type mockBroadcasterSource struct {
	broadcaster *mockBroadcaster
	lookupErr   error
}

func (m *mockBroadcasterSource) BroadcasterFor(chainID uint64) (Broadcaster, error) {
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	return m.broadcaster, nil
}

// mockNotifier records every notification in order.
type mockNotifier struct {
	mu            sync.Mutex
	notifications []Notification
}

func (m *mockNotifier) Notify(n Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, n)
}

func (m *mockNotifier) all() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Notification, len(m.notifications))
	copy(out, m.notifications)
	return out
}

func (m *mockNotifier) last() (Notification, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.notifications) == 0 {
		return Notification{}, false
	}
	return m.notifications[len(m.notifications)-1], true
}
