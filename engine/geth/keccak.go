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
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// codeHasher caches the keccak hash of contract code. The same code bytes are
// hashed on every execution the code participates in, and EXTCODEHASH may hit
// the same account repeatedly within one run.
type codeHasher struct {
	cache *lru.Cache[string, common.Hash]
}

func newCodeHasher(capacity int) *codeHasher {
	cache, err := lru.New[string, common.Hash](capacity)
	if err != nil {
		panic(err) // only reachable with a non-positive capacity
	}
	return &codeHasher{cache: cache}
}

func (h *codeHasher) hash(code []byte) common.Hash {
	key := string(code)
	if hash, found := h.cache.Get(key); found {
		return hash
	}
	hasher := sha3.NewLegacyKeccak256()
	hasher.Write(code)
	var hash common.Hash
	hasher.Sum(hash[:0])
	h.cache.Add(key, hash)
	return hash
}
