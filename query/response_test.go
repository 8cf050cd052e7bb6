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
	"testing"
)

func TestStateResponse_DecodesFoundValuePair(t *testing.T) {
	tests := map[string]struct {
		input   string
		want    StateResponse
		invalid bool
	}{
		"found":               {input: `[true, "2a"]`, want: StateResponse{Found: true, Value: "2a"}},
		"not found":           {input: `[false, null]`, want: StateResponse{}},
		"not found with junk": {input: `[false, 17]`, want: StateResponse{}},
		"empty value":         {input: `[true, ""]`, want: StateResponse{Found: true}},
		"not a list":          {input: `{"found": true}`, invalid: true},
		"too short":           {input: `[true]`, invalid: true},
		"too long":            {input: `[true, "a", "b"]`, invalid: true},
		"leading non-bool":    {input: `["true", "a"]`, invalid: true},
		"non-string value":    {input: `[true, 42]`, invalid: true},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			var got StateResponse
			err := json.Unmarshal([]byte(test.input), &got)
			if test.invalid {
				if err == nil {
					t.Errorf("expected decoding error for %s", test.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("failed to decode %s: %v", test.input, err)
			}
			if got != test.want {
				t.Errorf("decoded %s to %+v, want %+v", test.input, got, test.want)
			}
		})
	}
}

func TestMetadataResponse_DecodesFoundValuePair(t *testing.T) {
	var got MetadataResponse
	if err := json.Unmarshal([]byte(`[true, "33001"]`), &got); err != nil {
		t.Fatalf("failed to decode metadata response: %v", err)
	}
	if want := (MetadataResponse{Found: true, Value: "33001"}); got != want {
		t.Errorf("decoded to %+v, want %+v", got, want)
	}
	if err := json.Unmarshal([]byte(`"33001"`), &got); err == nil {
		t.Errorf("expected decoding error for a bare string")
	}
}

func TestResponses_EncodeAsFoundValuePair(t *testing.T) {
	data, err := json.Marshal(StateResponse{Found: true, Value: "2a"})
	if err != nil {
		t.Fatalf("failed to encode response: %v", err)
	}
	if got, want := string(data), `[true,"2a"]`; got != want {
		t.Errorf("unexpected encoding: got %s, want %s", got, want)
	}

	data, err = json.Marshal(MetadataResponse{})
	if err != nil {
		t.Fatalf("failed to encode response: %v", err)
	}
	if got, want := string(data), `[false,""]`; got != want {
		t.Errorf("unexpected encoding: got %s, want %s", got, want)
	}
}
