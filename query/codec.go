// Copyright (c) 2025 Scilla Labs
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file.
//
// Change Date: 2028-10-01
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package query implements the wire encoding of state lookups sent to the
// node holding the authoritative chain state, and the decoding of the scalar
// values it reports back. The package owns no I/O.
package query

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/scilla-labs/evmbridge/bridge"
)

// Names of the node-side state variables backing EVM account fields.
const (
	BalanceVariable = "_balance"
	NonceVariable   = "_nonce"
	CodeVariable    = "_code"
	StorageVariable = "_evm_storage"
)

// Names of the blockchain metadata queries understood by the node.
const (
	BlockNumberQuery     = "BLOCKNUMBER"
	TimestampQuery       = "TIMESTAMP"
	BlockDifficultyQuery = "BLOCKDIFFICULTY"
	BlockGasLimitQuery   = "BLOCKGASLIMIT"
	ChainIDQuery         = "CHAINID"
	OriginQuery          = "ORIGIN"
	BlockHashQuery       = "BLOCKHASH"
)

// StateQuery describes one lookup of a node-side state variable. A scalar
// variable is addressed by name alone (depth 0); a single-level map variable
// is addressed by name plus exactly one index key (depth 1). The RLP encoding
// of the struct, [name, [indices...], depth], is the binary message shipped
// to the node.
type StateQuery struct {
	Name    string
	Indices [][]byte
	Depth   uint32
}

// NewScalarQuery creates a depth-0 query for the named variable.
func NewScalarQuery(name string) StateQuery {
	return StateQuery{Name: name}
}

// NewMapQuery creates a depth-1 query for the named map variable at the
// given 32-byte index key.
func NewMapQuery(name string, key bridge.Key) StateQuery {
	return StateQuery{Name: name, Indices: [][]byte{key[:]}, Depth: 1}
}

// Validate checks the depth/index invariant: depth must be 1 exactly when an
// index key is present.
func (q StateQuery) Validate() error {
	switch q.Depth {
	case 0:
		if len(q.Indices) != 0 {
			return fmt.Errorf("scalar query %q must not carry index keys", q.Name)
		}
	case 1:
		if len(q.Indices) != 1 {
			return fmt.Errorf("map query %q must carry exactly one index key, has %d", q.Name, len(q.Indices))
		}
	default:
		return fmt.Errorf("unsupported nesting depth %d for query %q", q.Depth, q.Name)
	}
	return nil
}

// Encode produces the deterministic binary form of the query.
func (q StateQuery) Encode() ([]byte, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return rlp.EncodeToBytes(q)
}

// DecodeStateQuery parses the binary form produced by Encode.
func DecodeStateQuery(data []byte) (StateQuery, error) {
	var q StateQuery
	if err := rlp.DecodeBytes(data, &q); err != nil {
		return StateQuery{}, err
	}
	// rlp decodes an empty list into a non-nil empty slice.
	if len(q.Indices) == 0 {
		q.Indices = nil
	}
	if err := q.Validate(); err != nil {
		return StateQuery{}, err
	}
	return q, nil
}

// EncodeAddress renders an address as the lowercase hex string used as a
// transport argument, without a 0x prefix.
func EncodeAddress(a bridge.Address) string {
	return hex.EncodeToString(a[:])
}

// DecodeUint64 parses a numeric field reported by the node, accepting a
// decimal literal or a 0x-prefixed hex literal.
func DecodeUint64(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "0x"); ok {
		return strconv.ParseUint(rest, 16, 64)
	}
	return strconv.ParseUint(s, 10, 64)
}

// decodeFixed parses a hex byte string into a zero-filled buffer of the given
// width. The decoded bytes fill the least significant positions, so a short
// value keeps its numeric meaning under the big-endian interpretation of the
// buffer; an over-long value keeps its trailing (least significant) bytes.
// Malformed hex resolves to the all-zero buffer.
func decodeFixed(s string, width int) []byte {
	buf := make([]byte, width)
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return buf
	}
	if len(decoded) > width {
		decoded = decoded[len(decoded)-width:]
	}
	copy(buf[width-len(decoded):], decoded)
	return buf
}

// DecodeAddress parses a hex string into a 20-byte address, zero on
// malformed input.
func DecodeAddress(s string) (a bridge.Address) {
	copy(a[:], decodeFixed(s, 20))
	return a
}

// DecodeWord parses a hex string into a 32-byte word, zero on malformed
// input.
func DecodeWord(s string) (w bridge.Word) {
	copy(w[:], decodeFixed(s, 32))
	return w
}

// DecodeValue parses a hex string into a 32-byte currency value, zero on
// malformed input.
func DecodeValue(s string) (v bridge.Value) {
	copy(v[:], decodeFixed(s, 32))
	return v
}

// DecodeHash parses a hex string into a 32-byte hash, zero on malformed
// input.
func DecodeHash(s string) (h bridge.Hash) {
	copy(h[:], decodeFixed(s, 32))
	return h
}

// DecodeCode parses a hex string into contract byte-code. Malformed input
// resolves to empty code.
func DecodeCode(s string) bridge.Code {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return bridge.Code{}
	}
	return decoded
}
