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

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/mock/gomock"

	"github.com/scilla-labs/evmbridge/bridge"
)

func TestSubstate_StorageWritesAreBufferedLocally(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend := bridge.NewMockBackend(ctrl)

	address := common.Address{0x01}
	key := common.Hash{0x02}

	backend.EXPECT().GetCommittedStorage(bridge.Address(address), bridge.Key(key)).
		Return(bridge.NewWord(1)).Times(1) // cached after the first read

	state := newSubstate(backend, newCodeHasher(16))

	if got := state.GetState(address, key); got != (common.Hash{31: 1}) {
		t.Errorf("unexpected initial value: %v", got)
	}
	state.SetState(address, key, common.Hash{31: 7})
	if got := state.GetState(address, key); got != (common.Hash{31: 7}) {
		t.Errorf("write not visible: %v", got)
	}
	if got := state.GetCommittedState(address, key); got != (common.Hash{31: 1}) {
		t.Errorf("committed state must stay at the pre-execution value, got %v", got)
	}
}

func TestSubstate_SnapshotRollsBackWritesAndLogs(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend := bridge.NewMockBackend(ctrl)
	backend.EXPECT().GetCommittedStorage(gomock.Any(), gomock.Any()).Return(bridge.Word{}).AnyTimes()

	address := common.Address{0x01}
	key := common.Hash{0x02}

	state := newSubstate(backend, newCodeHasher(16))
	state.SetState(address, key, common.Hash{31: 1})
	state.AddLog(&types.Log{Address: address})
	state.AddRefund(100)

	snapshot := state.Snapshot()
	state.SetState(address, key, common.Hash{31: 2})
	state.AddLog(&types.Log{Address: address})
	state.AddRefund(50)
	state.SelfDestruct(address)

	state.RevertToSnapshot(snapshot)

	if got := state.GetState(address, key); got != (common.Hash{31: 1}) {
		t.Errorf("storage write survived the rollback: %v", got)
	}
	if got := len(state.logs); got != 1 {
		t.Errorf("expected 1 log after rollback, got %d", got)
	}
	if got := state.GetRefund(); got != 100 {
		t.Errorf("expected refund 100 after rollback, got %d", got)
	}
	if state.HasSelfDestructed(address) {
		t.Errorf("self destruct survived the rollback")
	}
}

func TestSubstate_DeconstructOrdersMutationsDeterministically(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend := bridge.NewMockBackend(ctrl)
	backend.EXPECT().GetBalance(gomock.Any()).Return(bridge.NewValue(5)).AnyTimes()
	backend.EXPECT().GetNonce(gomock.Any()).Return(uint64(3)).AnyTimes()

	state := newSubstate(backend, newCodeHasher(16))

	// Touch accounts and keys out of order.
	state.SetState(common.Address{0x02}, common.Hash{0x09}, common.Hash{31: 2})
	state.SetState(common.Address{0x02}, common.Hash{0x01}, common.Hash{31: 1})
	state.SetCode(common.Address{0x03}, []byte{0x60, 0x00})
	state.SelfDestruct(common.Address{0x01})

	mutations, _ := state.Deconstruct()
	if len(mutations) != 3 {
		t.Fatalf("expected 3 mutations, got %d", len(mutations))
	}

	if mutations[0].Kind != bridge.DeleteAccount || mutations[0].Address != (bridge.Address{0x01}) {
		t.Errorf("expected delete of account 01 first, got %+v", mutations[0])
	}

	second := mutations[1]
	if second.Kind != bridge.ModifyAccount || second.Address != (bridge.Address{0x02}) {
		t.Fatalf("expected modification of account 02, got %+v", second)
	}
	if second.Balance != bridge.NewValue(5) || second.Nonce != 3 {
		t.Errorf("modification must carry current balance and nonce, got %+v", second)
	}
	if second.Code != nil {
		t.Errorf("untouched code must be reported as nil, got %x", second.Code)
	}
	if len(second.Storage) != 2 ||
		second.Storage[0].Key != (bridge.Key{0x01}) ||
		second.Storage[1].Key != (bridge.Key{0x09}) {
		t.Errorf("storage writes must be ordered by key, got %+v", second.Storage)
	}

	third := mutations[2]
	if third.Address != (bridge.Address{0x03}) || string(third.Code) != string([]byte{0x60, 0x00}) {
		t.Errorf("expected code update on account 03, got %+v", third)
	}
	if len(third.Storage) != 0 || third.Storage == nil {
		t.Errorf("account without writes must carry an empty storage list, got %+v", third.Storage)
	}
}

func TestSubstate_CreatedContractRequestsStorageReset(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend := bridge.NewMockBackend(ctrl)
	backend.EXPECT().GetBalance(gomock.Any()).Return(bridge.Value{}).AnyTimes()
	backend.EXPECT().GetNonce(gomock.Any()).Return(uint64(0)).AnyTimes()

	state := newSubstate(backend, newCodeHasher(16))
	state.CreateContract(common.Address{0x01})

	mutations, _ := state.Deconstruct()
	if len(mutations) != 1 || !mutations[0].ResetStorage {
		t.Errorf("created contract must request a storage reset, got %+v", mutations)
	}
}

func TestSubstate_PrepareWarmsAccessList(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend := bridge.NewMockBackend(ctrl)

	state := newSubstate(backend, newCodeHasher(16))
	sender := common.Address{0x01}
	recipient := common.Address{0x02}
	precompile := common.Address{0x09}

	config := makeChainConfig(nil)
	state.Prepare(config.Rules(common.Big0, false, 0),
		sender, common.Address{}, &recipient, []common.Address{precompile},
		types.AccessList{{Address: common.Address{0x03}, StorageKeys: []common.Hash{{0x04}}}})

	for _, address := range []common.Address{sender, recipient, precompile, {0x03}} {
		if !state.AddressInAccessList(address) {
			t.Errorf("address %v must be warm after prepare", address)
		}
	}
	if _, slotOk := state.SlotInAccessList(common.Address{0x03}, common.Hash{0x04}); !slotOk {
		t.Errorf("declared storage key must be warm after prepare")
	}
	if state.AddressInAccessList(common.Address{0x05}) {
		t.Errorf("undeclared address must stay cold")
	}
}

func TestSubstate_ExistConsultsBackendOncePerAccount(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend := bridge.NewMockBackend(ctrl)
	backend.EXPECT().AccountExists(bridge.Address{0x01}).Return(true).Times(1)

	state := newSubstate(backend, newCodeHasher(16))
	if !state.Exist(common.Address{0x01}) || !state.Exist(common.Address{0x01}) {
		t.Errorf("existing account reported as missing")
	}

	state.CreateAccount(common.Address{0x02})
	if !state.Exist(common.Address{0x02}) {
		t.Errorf("created account must exist without a remote query")
	}
}
