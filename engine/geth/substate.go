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
	"bytes"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/stateless"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/trie/utils"
	"github.com/holiman/uint256"
	"golang.org/x/exp/maps"

	"github.com/scilla-labs/evmbridge/bridge"
)

var _ vm.StateDB = (*substate)(nil)

// slot identifies one storage cell.
type slot struct {
	address bridge.Address
	key     bridge.Key
}

// journal holds every piece of state the interpreter may mutate and roll
// back. Snapshots are taken by value copy; executions touch few accounts, so
// copying the maps is cheaper than maintaining an undo log.
type journal struct {
	balances       map[bridge.Address]bridge.Value
	nonces         map[bridge.Address]uint64
	codes          map[bridge.Address]bridge.Code
	storage        map[slot]bridge.Word
	transient      map[slot]bridge.Word
	created        map[bridge.Address]bool
	selfDestructed map[bridge.Address]bool

	accessedAccounts map[bridge.Address]bool
	accessedSlots    map[slot]bool

	refund   uint64
	logCount int
}

func newJournal() journal {
	return journal{
		balances:         map[bridge.Address]bridge.Value{},
		nonces:           map[bridge.Address]uint64{},
		codes:            map[bridge.Address]bridge.Code{},
		storage:          map[slot]bridge.Word{},
		transient:        map[slot]bridge.Word{},
		created:          map[bridge.Address]bool{},
		selfDestructed:   map[bridge.Address]bool{},
		accessedAccounts: map[bridge.Address]bool{},
		accessedSlots:    map[slot]bool{},
	}
}

func (j journal) clone() journal {
	return journal{
		balances:         maps.Clone(j.balances),
		nonces:           maps.Clone(j.nonces),
		codes:            maps.Clone(j.codes),
		storage:          maps.Clone(j.storage),
		transient:        maps.Clone(j.transient),
		created:          maps.Clone(j.created),
		selfDestructed:   maps.Clone(j.selfDestructed),
		accessedAccounts: maps.Clone(j.accessedAccounts),
		accessedSlots:    maps.Clone(j.accessedSlots),
		refund:           j.refund,
		logCount:         j.logCount,
	}
}

// substate adapts a bridge.Backend for use as a geth.StateDB. Reads fall
// through to the backend and are cached; writes are buffered in the journal
// and never reach the backend. Deconstruct turns the buffered writes into the
// mutation list reported to the caller.
type substate struct {
	backend bridge.Backend
	hasher  *codeHasher

	// read-through caches mirroring remote state; never rolled back.
	originalBalances map[bridge.Address]bridge.Value
	originalNonces   map[bridge.Address]uint64
	originalCodes    map[bridge.Address]bridge.Code
	originalStorage  map[slot]bridge.Word
	existence        map[bridge.Address]bool

	journal   journal
	snapshots []journal
	logs      []bridge.Log
}

func newSubstate(backend bridge.Backend, hasher *codeHasher) *substate {
	return &substate{
		backend:          backend,
		hasher:           hasher,
		originalBalances: map[bridge.Address]bridge.Value{},
		originalNonces:   map[bridge.Address]uint64{},
		originalCodes:    map[bridge.Address]bridge.Code{},
		originalStorage:  map[slot]bridge.Word{},
		existence:        map[bridge.Address]bool{},
		journal:          newJournal(),
	}
}

func (s *substate) balance(address bridge.Address) bridge.Value {
	if value, dirty := s.journal.balances[address]; dirty {
		return value
	}
	if value, cached := s.originalBalances[address]; cached {
		return value
	}
	value := s.backend.GetBalance(address)
	s.originalBalances[address] = value
	return value
}

func (s *substate) nonce(address bridge.Address) uint64 {
	if nonce, dirty := s.journal.nonces[address]; dirty {
		return nonce
	}
	if nonce, cached := s.originalNonces[address]; cached {
		return nonce
	}
	nonce := s.backend.GetNonce(address)
	s.originalNonces[address] = nonce
	return nonce
}

func (s *substate) code(address bridge.Address) bridge.Code {
	if code, dirty := s.journal.codes[address]; dirty {
		return code
	}
	if code, cached := s.originalCodes[address]; cached {
		return code
	}
	code := s.backend.GetCode(address)
	s.originalCodes[address] = code
	return code
}

func (s *substate) committedStorage(cell slot) bridge.Word {
	if value, cached := s.originalStorage[cell]; cached {
		return value
	}
	value := s.backend.GetCommittedStorage(cell.address, cell.key)
	s.originalStorage[cell] = value
	return value
}

// --- geth.StateDB ---

func (s *substate) CreateAccount(address common.Address) {
	s.journal.created[bridge.Address(address)] = true
}

func (s *substate) CreateContract(address common.Address) {
	// Creation wipes any pre-existing storage when the result is applied.
	s.journal.created[bridge.Address(address)] = true
}

func (s *substate) SubBalance(address common.Address, diff *uint256.Int, _ tracing.BalanceChangeReason) {
	account := bridge.Address(address)
	s.journal.balances[account] = bridge.Sub(s.balance(account), bridge.ValueFromUint256(diff))
}

func (s *substate) AddBalance(address common.Address, diff *uint256.Int, _ tracing.BalanceChangeReason) {
	account := bridge.Address(address)
	s.journal.balances[account] = bridge.Add(s.balance(account), bridge.ValueFromUint256(diff))
}

func (s *substate) GetBalance(address common.Address) *uint256.Int {
	return s.balance(bridge.Address(address)).ToUint256()
}

func (s *substate) GetNonce(address common.Address) uint64 {
	return s.nonce(bridge.Address(address))
}

func (s *substate) SetNonce(address common.Address, nonce uint64) {
	s.journal.nonces[bridge.Address(address)] = nonce
}

func (s *substate) GetCodeHash(address common.Address) common.Hash {
	if !s.Exist(address) {
		return common.Hash{}
	}
	return s.hasher.hash(s.code(bridge.Address(address)))
}

func (s *substate) GetCode(address common.Address) []byte {
	return s.code(bridge.Address(address))
}

func (s *substate) SetCode(address common.Address, code []byte) {
	s.journal.codes[bridge.Address(address)] = bytes.Clone(code)
}

func (s *substate) GetCodeSize(address common.Address) int {
	return len(s.code(bridge.Address(address)))
}

func (s *substate) AddRefund(value uint64) {
	s.journal.refund += value
}

func (s *substate) SubRefund(value uint64) {
	s.journal.refund -= value
}

func (s *substate) GetRefund() uint64 {
	return s.journal.refund
}

func (s *substate) GetCommittedState(address common.Address, key common.Hash) common.Hash {
	return common.Hash(s.committedStorage(slot{bridge.Address(address), bridge.Key(key)}))
}

func (s *substate) GetState(address common.Address, key common.Hash) common.Hash {
	cell := slot{bridge.Address(address), bridge.Key(key)}
	if value, dirty := s.journal.storage[cell]; dirty {
		return common.Hash(value)
	}
	return common.Hash(s.committedStorage(cell))
}

func (s *substate) SetState(address common.Address, key common.Hash, value common.Hash) {
	s.journal.storage[slot{bridge.Address(address), bridge.Key(key)}] = bridge.Word(value)
}

func (s *substate) GetStorageRoot(address common.Address) common.Hash {
	// Only consulted by the create-collision check; a zero root reads as
	// "no storage", which matches the information available remotely.
	return common.Hash{}
}

func (s *substate) GetTransientState(address common.Address, key common.Hash) common.Hash {
	return common.Hash(s.journal.transient[slot{bridge.Address(address), bridge.Key(key)}])
}

func (s *substate) SetTransientState(address common.Address, key, value common.Hash) {
	s.journal.transient[slot{bridge.Address(address), bridge.Key(key)}] = bridge.Word(value)
}

func (s *substate) SelfDestruct(address common.Address) {
	s.journal.selfDestructed[bridge.Address(address)] = true
}

func (s *substate) HasSelfDestructed(address common.Address) bool {
	return s.journal.selfDestructed[bridge.Address(address)]
}

func (s *substate) Selfdestruct6780(address common.Address) {
	if s.journal.created[bridge.Address(address)] {
		s.SelfDestruct(address)
	}
}

func (s *substate) Exist(address common.Address) bool {
	account := bridge.Address(address)
	if s.journal.created[account] {
		return true
	}
	if exists, cached := s.existence[account]; cached {
		return exists
	}
	exists := s.backend.AccountExists(account)
	s.existence[account] = exists
	return exists
}

func (s *substate) Empty(address common.Address) bool {
	return s.GetBalance(address).IsZero() &&
		s.GetNonce(address) == 0 &&
		s.GetCodeSize(address) == 0
}

func (s *substate) AddressInAccessList(address common.Address) bool {
	return s.journal.accessedAccounts[bridge.Address(address)]
}

func (s *substate) SlotInAccessList(address common.Address, key common.Hash) (addressOk bool, slotOk bool) {
	return s.journal.accessedAccounts[bridge.Address(address)],
		s.journal.accessedSlots[slot{bridge.Address(address), bridge.Key(key)}]
}

func (s *substate) AddAddressToAccessList(address common.Address) {
	s.journal.accessedAccounts[bridge.Address(address)] = true
}

func (s *substate) AddSlotToAccessList(address common.Address, key common.Hash) {
	s.journal.accessedAccounts[bridge.Address(address)] = true
	s.journal.accessedSlots[slot{bridge.Address(address), bridge.Key(key)}] = true
}

func (s *substate) Prepare(rules params.Rules, sender, coinbase common.Address, dest *common.Address, precompiles []common.Address, txAccesses types.AccessList) {
	s.AddAddressToAccessList(sender)
	if dest != nil {
		s.AddAddressToAccessList(*dest)
	}
	for _, address := range precompiles {
		s.AddAddressToAccessList(address)
	}
	for _, entry := range txAccesses {
		s.AddAddressToAccessList(entry.Address)
		for _, key := range entry.StorageKeys {
			s.AddSlotToAccessList(entry.Address, key)
		}
	}
	if rules.IsShanghai {
		s.AddAddressToAccessList(coinbase)
	}
}

func (s *substate) Snapshot() int {
	s.snapshots = append(s.snapshots, s.journal.clone())
	return len(s.snapshots) - 1
}

func (s *substate) RevertToSnapshot(id int) {
	s.journal = s.snapshots[id]
	s.snapshots = s.snapshots[:id]
	s.logs = s.logs[:s.journal.logCount]
}

func (s *substate) AddLog(entry *types.Log) {
	topics := make([]bridge.Hash, 0, len(entry.Topics))
	for _, topic := range entry.Topics {
		topics = append(topics, bridge.Hash(topic))
	}
	s.logs = append(s.logs, bridge.Log{
		Address: bridge.Address(entry.Address),
		Topics:  topics,
		Data:    entry.Data,
	})
	s.journal.logCount = len(s.logs)
}

func (s *substate) AddPreimage(common.Hash, []byte) {
	// preimage recording is disabled in the interpreter configuration
}

func (s *substate) PointCache() *utils.PointCache {
	// see https://eips.ethereum.org/EIPS/eip-4762
	panic("not needed by revisions up to London")
}

func (s *substate) Witness() *stateless.Witness {
	return nil
}

// Deconstruct converts the buffered writes into the ordered mutation list
// and returns it together with the emitted logs. Mutations are ordered by
// account address, storage writes within one account by key, making the
// output deterministic across runs.
func (s *substate) Deconstruct() ([]bridge.Mutation, []bridge.Log) {
	touched := map[bridge.Address]bool{}
	for address := range s.journal.balances {
		touched[address] = true
	}
	for address := range s.journal.nonces {
		touched[address] = true
	}
	for address := range s.journal.codes {
		touched[address] = true
	}
	for cell := range s.journal.storage {
		touched[cell.address] = true
	}
	for address := range s.journal.created {
		touched[address] = true
	}
	for address := range s.journal.selfDestructed {
		touched[address] = true
	}

	addresses := maps.Keys(touched)
	slices.SortFunc(addresses, func(a, b bridge.Address) int {
		return bytes.Compare(a[:], b[:])
	})

	mutations := make([]bridge.Mutation, 0, len(addresses))
	for _, address := range addresses {
		if s.journal.selfDestructed[address] {
			mutations = append(mutations, bridge.Mutation{
				Kind:    bridge.DeleteAccount,
				Address: address,
			})
			continue
		}

		var writes []bridge.StorageWrite
		for cell, value := range s.journal.storage {
			if cell.address == address {
				writes = append(writes, bridge.StorageWrite{Key: cell.key, Value: value})
			}
		}
		slices.SortFunc(writes, func(a, b bridge.StorageWrite) int {
			return bytes.Compare(a.Key[:], b.Key[:])
		})
		if writes == nil {
			writes = []bridge.StorageWrite{}
		}

		mutation := bridge.Mutation{
			Kind:         bridge.ModifyAccount,
			Address:      address,
			Balance:      s.balance(address),
			Nonce:        s.nonce(address),
			Storage:      writes,
			ResetStorage: s.journal.created[address],
		}
		if code, dirty := s.journal.codes[address]; dirty {
			mutation.Code = code
		}
		mutations = append(mutations, mutation)
	}
	return mutations, slices.Clone(s.logs)
}
