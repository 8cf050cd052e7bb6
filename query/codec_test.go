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
	"reflect"
	"testing"

	"pgregory.net/rand"

	"github.com/scilla-labs/evmbridge/bridge"
)

func TestStateQuery_EncodeDecodeRoundTrip(t *testing.T) {
	rnd := rand.New(0)
	for i := 0; i < 100; i++ {
		var key bridge.Key
		rnd.Read(key[:])

		queries := []StateQuery{
			NewScalarQuery(BalanceVariable),
			NewScalarQuery(CodeVariable),
			NewMapQuery(StorageVariable, key),
		}
		for _, q := range queries {
			encoded, err := q.Encode()
			if err != nil {
				t.Fatalf("failed to encode %+v: %v", q, err)
			}
			decoded, err := DecodeStateQuery(encoded)
			if err != nil {
				t.Fatalf("failed to decode %x: %v", encoded, err)
			}
			if !reflect.DeepEqual(q, decoded) {
				t.Errorf("round trip altered query:\nwant %+v\ngot  %+v", q, decoded)
			}
		}
	}
}

func TestStateQuery_EncodingIsDeterministic(t *testing.T) {
	q := NewMapQuery(StorageVariable, bridge.Key{0x42})
	first, err := q.Encode()
	if err != nil {
		t.Fatalf("failed to encode query: %v", err)
	}
	second, err := q.Encode()
	if err != nil {
		t.Fatalf("failed to encode query: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("encoding is not deterministic: %x != %x", first, second)
	}
}

func TestStateQuery_DepthIndexInvariant(t *testing.T) {
	tests := map[string]StateQuery{
		"scalar with index": {Name: BalanceVariable, Indices: [][]byte{{0x01}}, Depth: 0},
		"map without index": {Name: StorageVariable, Depth: 1},
		"map with two keys": {Name: StorageVariable, Indices: [][]byte{{0x01}, {0x02}}, Depth: 1},
		"unsupported depth": {Name: StorageVariable, Indices: [][]byte{{0x01}}, Depth: 2},
	}
	for name, q := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := q.Encode(); err == nil {
				t.Errorf("expected validation error for %+v", q)
			}
		})
	}
}

func TestEncodeAddress_IsLowercaseHexWithoutPrefix(t *testing.T) {
	address := bridge.Address{0xAB, 0xCD, 0xEF}
	want := "abcdef0000000000000000000000000000000000"
	if got := EncodeAddress(address); got != want {
		t.Errorf("unexpected address encoding: got %q, want %q", got, want)
	}
}

func TestEncodeDecodeAddress_RoundTrip(t *testing.T) {
	rnd := rand.New(0)
	for i := 0; i < 100; i++ {
		var address bridge.Address
		rnd.Read(address[:])
		if got := DecodeAddress(EncodeAddress(address)); got != address {
			t.Errorf("round trip altered address: %v != %v", address, got)
		}
	}
}

func TestDecodeUint64(t *testing.T) {
	tests := map[string]struct {
		input   string
		want    uint64
		invalid bool
	}{
		"decimal":       {input: "42", want: 42},
		"zero":          {input: "0", want: 0},
		"hex":           {input: "0x2a", want: 42},
		"padded":        {input: " 42 ", want: 42},
		"empty":         {input: "", invalid: true},
		"negative":      {input: "-1", invalid: true},
		"not a number":  {input: "forty-two", invalid: true},
		"overflow":      {input: "18446744073709551616", invalid: true},
		"malformed hex": {input: "0xzz", invalid: true},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := DecodeUint64(test.input)
			if test.invalid {
				if err == nil {
					t.Errorf("expected error for input %q", test.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error for input %q: %v", test.input, err)
			}
			if got != test.want {
				t.Errorf("DecodeUint64(%q) = %d, want %d", test.input, got, test.want)
			}
		})
	}
}

func TestDecodeWord_ShortValuesStayNumericallySmall(t *testing.T) {
	word := DecodeWord("0x2a")
	want := bridge.NewWord(42)
	if word != want {
		t.Errorf("short value must align to the least significant end: got %v, want %v", word, want)
	}
}

func TestDecodeWord_MalformedInputIsZero(t *testing.T) {
	for _, input := range []string{"zz", "0x123", "not hex"} {
		if got := DecodeWord(input); got != (bridge.Word{}) {
			t.Errorf("malformed input %q must decode to zero, got %v", input, got)
		}
	}
}

func TestDecodeWord_OverlongInputKeepsTrailingBytes(t *testing.T) {
	input := "ff" + "000000000000000000000000000000000000000000000000000000000000002a"
	if got := DecodeWord(input); got != bridge.NewWord(42) {
		t.Errorf("over-long input must keep the least significant bytes, got %v", got)
	}
}

func TestDecodeCode(t *testing.T) {
	tests := map[string]struct {
		input string
		want  bridge.Code
	}{
		"empty":     {input: "", want: bridge.Code{}},
		"plain":     {input: "6000", want: bridge.Code{0x60, 0x00}},
		"prefixed":  {input: "0x6000", want: bridge.Code{0x60, 0x00}},
		"malformed": {input: "zz", want: bridge.Code{}},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			if got := DecodeCode(test.input); !reflect.DeepEqual(got, test.want) {
				t.Errorf("DecodeCode(%q) = %x, want %x", test.input, got, test.want)
			}
		})
	}
}
