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
	"testing"

	"pgregory.net/rand"
)

func TestAddress_TextRoundTrip(t *testing.T) {
	rnd := rand.New(0)
	for i := 0; i < 100; i++ {
		var address Address
		rnd.Read(address[:])

		text, err := address.MarshalText()
		if err != nil {
			t.Fatalf("failed to marshal address: %v", err)
		}
		var restored Address
		if err := restored.UnmarshalText(text); err != nil {
			t.Fatalf("failed to unmarshal %s: %v", text, err)
		}
		if address != restored {
			t.Errorf("round trip altered address: %v != %v", address, restored)
		}
	}
}

func TestAddress_UnmarshalRejectsInvalidInput(t *testing.T) {
	tests := map[string]string{
		"missing prefix": "000102030405060708090a0b0c0d0e0f10111213",
		"odd length":     "0x000",
		"non-hex":        "0xzz0102030405060708090a0b0c0d0e0f10111213",
		"too short":      "0x0001",
		"too long":       "0x000102030405060708090a0b0c0d0e0f10111213ff",
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			var address Address
			if err := address.UnmarshalText([]byte(input)); err == nil {
				t.Errorf("expected error unmarshalling %q", input)
			}
		})
	}
}

func TestValue_TextRoundTrip(t *testing.T) {
	rnd := rand.New(0)
	for i := 0; i < 100; i++ {
		var value Value
		rnd.Read(value[:])

		text, err := value.MarshalText()
		if err != nil {
			t.Fatalf("failed to marshal value: %v", err)
		}
		var restored Value
		if err := restored.UnmarshalText(text); err != nil {
			t.Fatalf("failed to unmarshal %s: %v", text, err)
		}
		if value != restored {
			t.Errorf("round trip altered value: %v != %v", value, restored)
		}
	}
}

func TestValue_AddSub(t *testing.T) {
	tests := map[string]struct {
		a, b, sum Value
	}{
		"zero":          {NewValue(), NewValue(), NewValue()},
		"small":         {NewValue(1), NewValue(2), NewValue(3)},
		"carry":         {NewValue(1, 0), NewValue(0, 1), NewValue(1, 1)},
		"word boundary": {NewValue(0, ^uint64(0)), NewValue(0, 1), NewValue(1, 0)},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			if got := Add(test.a, test.b); got != test.sum {
				t.Errorf("Add(%v, %v) = %v, want %v", test.a, test.b, got, test.sum)
			}
			if got := Sub(test.sum, test.b); got != test.a {
				t.Errorf("Sub(%v, %v) = %v, want %v", test.sum, test.b, got, test.a)
			}
		})
	}
}

func TestValue_NewValueIsBigEndian(t *testing.T) {
	value := NewValue(1)
	if value[31] != 1 {
		t.Errorf("least significant byte not at the end: %v", value)
	}
	if value.ToUint256().Uint64() != 1 {
		t.Errorf("unexpected numeric interpretation: %v", value)
	}
}

func TestValue_Cmp(t *testing.T) {
	small := NewValue(1)
	big := NewValue(1, 0)
	if small.Cmp(big) >= 0 {
		t.Errorf("%v should compare below %v", small, big)
	}
	if big.Cmp(small) <= 0 {
		t.Errorf("%v should compare above %v", big, small)
	}
	if small.Cmp(small) != 0 {
		t.Errorf("%v should compare equal to itself", small)
	}
}

func TestExitKind_String(t *testing.T) {
	tests := map[ExitKind]string{
		Succeeded:    "success",
		Reverted:     "revert",
		Failed:       "error",
		ExitKind(42): "ExitKind(42)",
	}
	for kind, want := range tests {
		if got := kind.String(); got != want {
			t.Errorf("unexpected string for %d: got %q, want %q", int(kind), got, want)
		}
	}
}
