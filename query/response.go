// Copyright (c) 2025 Scilla Labs
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file.
//
// Change Date: 2028-10-01
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package query

import (
	"encoding/json"
	"fmt"
)

// The node answers both query kinds with a 2-element JSON sequence
// [found, value]. The types below give each kind a strict schema so that a
// malformed frame surfaces as one classified decoding error instead of ad hoc
// per-field failures downstream.

// MetadataResponse is the reply to a blockchain metadata query. A false
// Found means the node could not answer, which callers must treat as fatal.
type MetadataResponse struct {
	Found bool
	Value string
}

func (r *MetadataResponse) UnmarshalJSON(data []byte) error {
	found, value, err := decodeFoundValuePair(data)
	if err != nil {
		return fmt.Errorf("malformed metadata response: %w", err)
	}
	r.Found, r.Value = found, value
	return nil
}

func (r MetadataResponse) MarshalJSON() ([]byte, error) {
	return encodeFoundValuePair(r.Found, r.Value)
}

// StateResponse is the reply to a contract state-variable query. A false
// Found means the queried variable has no value on the node; callers apply
// their per-field default policy.
type StateResponse struct {
	Found bool
	Value string
}

func (r *StateResponse) UnmarshalJSON(data []byte) error {
	found, value, err := decodeFoundValuePair(data)
	if err != nil {
		return fmt.Errorf("malformed state response: %w", err)
	}
	r.Found, r.Value = found, value
	return nil
}

func (r StateResponse) MarshalJSON() ([]byte, error) {
	return encodeFoundValuePair(r.Found, r.Value)
}

func decodeFoundValuePair(data []byte) (bool, string, error) {
	var elements []json.RawMessage
	if err := json.Unmarshal(data, &elements); err != nil {
		return false, "", err
	}
	if len(elements) != 2 {
		return false, "", fmt.Errorf("expected 2 elements, got %d", len(elements))
	}
	var found bool
	if err := json.Unmarshal(elements[0], &found); err != nil {
		return false, "", fmt.Errorf("leading element is not a boolean: %w", err)
	}
	if !found {
		// The value slot is unspecified for a negative answer.
		return false, "", nil
	}
	var value string
	if err := json.Unmarshal(elements[1], &value); err != nil {
		return false, "", fmt.Errorf("value element is not a string: %w", err)
	}
	return true, value, nil
}

func encodeFoundValuePair(found bool, value string) ([]byte, error) {
	return json.Marshal([]any{found, value})
}
