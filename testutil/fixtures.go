package testutil

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ============================================================
// Test Addresses
// ============================================================

var (
	// TestAddr1 is the usual "from" wallet.
	TestAddr1 = common.HexToAddress("0x1111111111111111111111111111111111111111")
	// TestAddr2 is the usual "to" address.
	TestAddr2 = common.HexToAddress("0x2222222222222222222222222222222222222222")
	// TestAddr3 is a spare address for multi-wallet cases.
	TestAddr3 = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

// ============================================================
// Test Private Keys
// ============================================================

var (
	// TestPrivateKeyHex is a throwaway private key in hex form.
	TestPrivateKeyHex = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	// TestPrivateKey1 is the parsed ECDSA key.
	TestPrivateKey1, _ = crypto.HexToECDSA(TestPrivateKeyHex)
	// TestPrivateKey1Address is the wallet derived from TestPrivateKey1.
	TestPrivateKey1Address = crypto.PubkeyToAddress(TestPrivateKey1.PublicKey)
)

// ============================================================
// Common Values
// ============================================================

var (
	// OneEth is 1 ETH in wei.
	OneEth = big.NewInt(1000000000000000000)
	// OneGwei is 1 gwei in wei.
	OneGwei = big.NewInt(1000000000)
	// TwoGwei is 2 gwei in wei.
	TwoGwei = big.NewInt(2000000000)
	// TwentyGwei is 20 gwei in wei.
	TwentyGwei = big.NewInt(20000000000)
)

// ============================================================
// Chain IDs
// ============================================================

const (
	// ChainMainnet is the Ethereum mainnet chain id.
	ChainMainnet uint64 = 1
	// ChainOptimism is the Optimism mainnet chain id.
	ChainOptimism uint64 = 10
	// ChainArbitrum is the Arbitrum One chain id.
	ChainArbitrum uint64 = 42161
)

// Uint64Ptr returns a pointer to v, handy for nonce fields.
func Uint64Ptr(v uint64) *uint64 { return &v }

// AddrPtr returns a pointer to a, handy for request fields.
func AddrPtr(a common.Address) *common.Address { return &a }
