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

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// MutationKind distinguishes the two variants of a state mutation.
type MutationKind int

const (
	// ModifyAccount describes a surviving account whose fields changed.
	ModifyAccount MutationKind = iota
	// DeleteAccount describes an account removed by the execution.
	DeleteAccount
)

// StorageWrite is one (key, value) storage assignment of a modified account.
type StorageWrite struct {
	Key   Key  `json:"key"`
	Value Word `json:"value"`
}

// Mutation describes how one account changed during an execution. Mutations
// are produced by the engine's internal accounting and reported to the
// caller; nothing in this repository ever applies them.
//
// For ModifyAccount, Balance and Nonce carry the post-execution values, Code
// is nil if the account's code was not touched, and Storage lists the dirty
// slots in ascending key order. ResetStorage requests that all prior storage
// of the account be cleared before the listed writes are applied.
type Mutation struct {
	Kind         MutationKind
	Address      Address
	Balance      Value
	Nonce        uint64
	Code         Code
	Storage      []StorageWrite
	ResetStorage bool
}

type modifyJSON struct {
	Address      Address        `json:"address"`
	Balance      Value          `json:"balance"`
	Nonce        hexutil.Uint64 `json:"nonce"`
	Code         *Data          `json:"code"`
	Storage      []StorageWrite `json:"storage"`
	ResetStorage bool           `json:"reset_storage"`
}

type deleteJSON struct {
	Address Address `json:"address"`
}

// MarshalJSON encodes the mutation as a single-key object tagged with its
// variant, e.g. {"modify": {...}} or {"delete": {...}}.
func (m Mutation) MarshalJSON() ([]byte, error) {
	switch m.Kind {
	case ModifyAccount:
		var code *Data
		if m.Code != nil {
			d := Data(m.Code)
			code = &d
		}
		storage := m.Storage
		if storage == nil {
			storage = []StorageWrite{}
		}
		return json.Marshal(map[string]modifyJSON{"modify": {
			Address:      m.Address,
			Balance:      m.Balance,
			Nonce:        hexutil.Uint64(m.Nonce),
			Code:         code,
			Storage:      storage,
			ResetStorage: m.ResetStorage,
		}})
	case DeleteAccount:
		return json.Marshal(map[string]deleteJSON{"delete": {Address: m.Address}})
	default:
		return nil, fmt.Errorf("invalid mutation kind: %d", int(m.Kind))
	}
}

// UnmarshalJSON decodes the tagged form produced by MarshalJSON.
func (m *Mutation) UnmarshalJSON(data []byte) error {
	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(data, &tagged); err != nil {
		return err
	}
	if raw, ok := tagged["modify"]; ok {
		var body modifyJSON
		if err := json.Unmarshal(raw, &body); err != nil {
			return err
		}
		*m = Mutation{
			Kind:         ModifyAccount,
			Address:      body.Address,
			Balance:      body.Balance,
			Nonce:        uint64(body.Nonce),
			Storage:      body.Storage,
			ResetStorage: body.ResetStorage,
		}
		if body.Code != nil {
			m.Code = Code(*body.Code)
		}
		return nil
	}
	if raw, ok := tagged["delete"]; ok {
		var body deleteJSON
		if err := json.Unmarshal(raw, &body); err != nil {
			return err
		}
		*m = Mutation{Kind: DeleteAccount, Address: body.Address}
		return nil
	}
	return fmt.Errorf("unknown mutation variant in %s", string(data))
}
