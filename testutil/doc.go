// Package testutil provides fixtures and builders shared across the
// module's tests: well-known addresses and keys, wei constants, transaction
// and receipt builders, and fee-history samples.
//
// Mock implementations of the engine's ports (signer, broadcaster, receipt
// fetcher, notifier) live in the root package's test files to avoid import
// cycles; this package depends only on go-ethereum types.
package testutil
