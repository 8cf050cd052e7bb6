// Copyright (c) 2025 Scilla Labs
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file.
//
// Change Date: 2028-10-01
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package remotestate implements bridge.Backend on top of the remote query
// protocol of the node holding the authoritative chain state. Every read the
// engine issues becomes one remote round trip.
//
// Missing values split into two classes. State that may legitimately not
// exist yet (an untouched account, an unset storage slot, code of a
// non-contract account) defaults softly to the zero value of its type. Block
// metadata that a healthy node must always be able to answer (chain id,
// block number, block hash) is a hard failure when absent, surfaced as a
// FatalError panic for the orchestrator to recover.
package remotestate

import (
	"fmt"

	"github.com/ethereum/go-ethereum/log"

	"github.com/scilla-labs/evmbridge/bridge"
	"github.com/scilla-labs/evmbridge/nodeclient"
	"github.com/scilla-labs/evmbridge/query"
)

// ChainIDOffset separates the EVM chain id space from the native protocol's
// chain id space. The node reports its native id; the EVM sees native + offset.
const ChainIDOffset = 33000

// GasPriceConstant is the fixed gas price reported to the engine. Pricing is
// decided by the node when it commits the result, not during execution.
const GasPriceConstant = 2

// FatalError is the panic payload raised when a remote query cannot be
// answered. It aborts the current execution; the orchestrator recovers it at
// the supervised call boundary.
type FatalError struct {
	Op  string
	Err error
}

func (e FatalError) Error() string {
	return fmt.Sprintf("fatal state query %s: %v", e.Op, e.Err)
}

func (e FatalError) Unwrap() error {
	return e.Err
}

// Backend answers engine reads through one node connection. One instance
// serves exactly one execution.
type Backend struct {
	client nodeclient.Client
}

// New creates a backend reading through the given client. The backend does
// not take ownership of the client; the caller closes it when the execution
// completes.
func New(client nodeclient.Client) *Backend {
	return &Backend{client: client}
}

func (b *Backend) AccountExists(address bridge.Address) bool {
	response := b.fetchState(address, query.NewScalarQuery(query.BalanceVariable))
	return response.Found
}

func (b *Backend) GetBalance(address bridge.Address) bridge.Value {
	response := b.fetchState(address, query.NewScalarQuery(query.BalanceVariable))
	if !response.Found {
		return bridge.Value{}
	}
	return query.DecodeValue(response.Value)
}

func (b *Backend) GetNonce(address bridge.Address) uint64 {
	response := b.fetchState(address, query.NewScalarQuery(query.NonceVariable))
	if !response.Found {
		return 0
	}
	// An absent nonce is a fresh account, but a nonce the node reports and
	// we cannot parse means the account state is corrupt.
	nonce, err := query.DecodeUint64(response.Value)
	if err != nil {
		panic(FatalError{Op: query.NonceVariable, Err: fmt.Errorf("malformed nonce %q: %w", response.Value, err)})
	}
	return nonce
}

func (b *Backend) GetCode(address bridge.Address) bridge.Code {
	response := b.fetchState(address, query.NewScalarQuery(query.CodeVariable))
	if !response.Found {
		return bridge.Code{}
	}
	return query.DecodeCode(response.Value)
}

func (b *Backend) GetStorage(address bridge.Address, key bridge.Key) bridge.Word {
	response := b.fetchState(address, query.NewMapQuery(query.StorageVariable, key))
	if !response.Found {
		return bridge.Word{}
	}
	return query.DecodeWord(response.Value)
}

// GetCommittedStorage equals GetStorage: no write leaves the engine until the
// node commits the reported mutations, so pre-execution and current state
// coincide from this backend's point of view.
func (b *Backend) GetCommittedStorage(address bridge.Address, key bridge.Key) bridge.Word {
	return b.GetStorage(address, key)
}

func (b *Backend) BlockNumber() uint64 {
	return b.fetchMetadataUint64(query.BlockNumberQuery, "")
}

func (b *Backend) Timestamp() uint64 {
	return b.fetchMetadataUint64(query.TimestampQuery, "")
}

func (b *Backend) Difficulty() bridge.Value {
	return query.DecodeValue(b.fetchMetadata(query.BlockDifficultyQuery, ""))
}

func (b *Backend) GasLimit() uint64 {
	return b.fetchMetadataUint64(query.BlockGasLimitQuery, "")
}

func (b *Backend) GasPrice() bridge.Value {
	return bridge.NewValue(GasPriceConstant)
}

func (b *Backend) ChainID() bridge.Word {
	id := b.fetchMetadataUint64(query.ChainIDQuery, "")
	return bridge.NewWord(id + ChainIDOffset)
}

func (b *Backend) Origin() bridge.Address {
	return query.DecodeAddress(b.fetchMetadata(query.OriginQuery, ""))
}

// Coinbase is not sourced remotely; the native protocol has no equivalent of
// a block beneficiary visible to contract execution.
func (b *Backend) Coinbase() bridge.Address {
	return bridge.Address{}
}

func (b *Backend) BlockHash(number uint64) bridge.Hash {
	return query.DecodeHash(b.fetchMetadata(query.BlockHashQuery, fmt.Sprint(number)))
}

// fetchState resolves one state-variable query; transport failure is fatal,
// an absent value is the caller's per-field decision.
func (b *Backend) fetchState(address bridge.Address, q query.StateQuery) query.StateResponse {
	response, err := b.client.FetchStateValue(address, q)
	if err != nil {
		panic(FatalError{Op: q.Name, Err: err})
	}
	log.Trace("State query answered", "address", address, "variable", q.Name, "found", response.Found)
	return response
}

// fetchMetadata resolves one metadata query; both transport failure and an
// absent answer are fatal.
func (b *Backend) fetchMetadata(name, arg string) string {
	response, err := b.client.FetchBlockchainInfo(name, arg)
	if err != nil {
		panic(FatalError{Op: name, Err: err})
	}
	if !response.Found {
		panic(FatalError{Op: name, Err: fmt.Errorf("node reports no answer")})
	}
	return response.Value
}

func (b *Backend) fetchMetadataUint64(name, arg string) uint64 {
	value := b.fetchMetadata(name, arg)
	decoded, err := query.DecodeUint64(value)
	if err != nil {
		panic(FatalError{Op: name, Err: fmt.Errorf("malformed numeric answer %q: %w", value, err)})
	}
	return decoded
}
