// Copyright (c) 2025 Scilla Labs
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file.
//
// Change Date: 2028-10-01
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package geth

import (
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
	"pgregory.net/rand"
)

func TestCodeHasher_MatchesReferenceKeccak(t *testing.T) {
	hasher := newCodeHasher(4)
	rnd := rand.New(0)
	for i := 0; i < 100; i++ {
		code := make([]byte, rnd.Intn(200))
		rnd.Read(code)
		require.Equal(t, crypto.Keccak256Hash(code), hasher.hash(code))
	}
}

func TestCodeHasher_CachedHashStaysCorrect(t *testing.T) {
	hasher := newCodeHasher(4)
	code := []byte{0x60, 0x00}
	first := hasher.hash(code)
	require.Equal(t, first, hasher.hash(code), "cache hit must return the same hash")
	require.Equal(t, crypto.Keccak256Hash(code), first)
}

func TestCodeHasher_EmptyCodeHashesToTheWellKnownValue(t *testing.T) {
	hasher := newCodeHasher(4)
	require.Equal(t, types.EmptyCodeHash, hasher.hash(nil))
}
