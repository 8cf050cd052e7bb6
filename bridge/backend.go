// Copyright (c) 2025 Scilla Labs
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file.
//
// Change Date: 2028-10-01
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package bridge

//go:generate mockgen -source backend.go -destination backend_mock.go -package bridge

// Backend is the read-only state-access capability consumed by an execution
// engine. It answers every account, storage, and block-context read an engine
// may issue while running a contract.
//
// The interface deliberately has no error returns: engines are written
// against an infallible state view. Implementations backed by fallible
// sources (such as a remote node) signal unrecoverable conditions by
// panicking with a typed error; the orchestrator driving the engine is the
// single place where such panics are recovered and converted into an error
// response. Fields that may legitimately be absent (a never-touched account,
// an unset storage slot) resolve to the zero value of their type instead.
//
// A Backend instance serves exactly one execution and is not shared across
// goroutines.
type Backend interface {
	// AccountExists reports whether the account is known to the state source.
	AccountExists(Address) bool

	GetBalance(Address) Value
	GetNonce(Address) uint64
	GetCode(Address) Code

	// GetStorage returns the value of the given storage slot, or the zero
	// word if the slot was never written.
	GetStorage(Address, Key) Word

	// GetCommittedStorage returns the value the slot had before the current
	// execution. Since no write leaves the engine until the caller commits
	// the reported mutations, this always equals GetStorage.
	GetCommittedStorage(Address, Key) Word

	BlockNumber() uint64
	Timestamp() uint64
	Difficulty() Value
	GasLimit() uint64
	GasPrice() Value
	ChainID() Word
	Origin() Address
	Coinbase() Address
	BlockHash(number uint64) Hash
}
