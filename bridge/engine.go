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

import "fmt"

//go:generate mockgen -source engine.go -destination engine_mock.go -package bridge

// Engine is a component capable of executing EVM byte-code against a state
// view provided by a Backend. It is consumed as an already-correct execution
// capability; this repository only provides bindings to existing interpreter
// implementations.
//
// The returned error is nil whenever the code was processed, even if the
// execution itself reverted or failed; such outcomes are encoded in the
// result's ExitReason. A non-nil error indicates the engine itself could not
// correctly process the program, in which case the result is undefined.
// Engines are required to be thread-safe; multiple runs may be conducted in
// parallel, each with its own Backend.
type Engine interface {
	Run(Parameters) (Result, error)
}

// Parameters summarizes the list of input parameters required for executing
// code. Block and transaction context is not part of the parameters; engines
// source it from the Backend on demand.
type Parameters struct {
	Backend   Backend
	Recipient Address
	Sender    Address
	Input     Data
	Value     Value
	Code      Code
	Gas       uint64
}

// Result summarizes the outcome of one code execution.
type Result struct {
	ExitReason ExitReason
	Output     Data
	GasLeft    uint64

	// Mutations lists how accounts changed during the execution, in a
	// deterministic order. They are reported only; applying them is the
	// responsibility of the component owning the authoritative state.
	Mutations []Mutation

	// Logs lists the log messages emitted during the execution, in emission
	// order.
	Logs []Log
}

// ExitKind classifies how an execution ended.
type ExitKind int

const (
	// Succeeded indicates the code ran to completion via STOP, RETURN, or
	// SELFDESTRUCT.
	Succeeded ExitKind = iota
	// Reverted indicates the code explicitly reverted; return data may be
	// present, state mutations are rolled back.
	Reverted
	// Failed indicates a code-level failure such as running out of gas or an
	// invalid instruction.
	Failed
)

func (k ExitKind) String() string {
	switch k {
	case Succeeded:
		return "success"
	case Reverted:
		return "revert"
	case Failed:
		return "error"
	default:
		return fmt.Sprintf("ExitKind(%d)", int(k))
	}
}

func (k ExitKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ExitReason pairs the exit classification with an engine-provided detail
// string, such as "returned" or "out of gas".
type ExitReason struct {
	Kind   ExitKind `json:"kind"`
	Detail string   `json:"detail,omitempty"`
}

func (r ExitReason) String() string {
	if r.Detail == "" {
		return r.Kind.String()
	}
	return fmt.Sprintf("%s(%s)", r.Kind, r.Detail)
}
