// Copyright (c) 2025 Scilla Labs
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file.
//
// Change Date: 2028-10-01
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package runner turns one inbound execution request into one isolated
// engine run. It parses the raw hex inputs, binds a fresh state backend,
// drives the engine under a supervised call boundary, and shapes the outcome
// for transport. A fatal condition raised anywhere below, including a remote
// query that cannot be answered, is recovered here and reported as a single
// internal error instead of taking the serving process down.
package runner

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"

	"github.com/scilla-labs/evmbridge/bridge"
)

// GasLimit is the fixed gas budget of one execution. Gas is not metered
// against a caller-provided budget; the node accounts for the consumed gas
// when it commits the result.
const GasLimit = 1_000_000_000

// ErrInvalidParams marks a request rejected before any remote interaction
// because one of its fields could not be parsed.
var ErrInvalidParams = errors.New("invalid parameters")

// ErrInternal is the uniform error reported when an execution aborted for
// any reason other than bad input. Details stay in the local log.
var ErrInternal = errors.New("internal error")

// Request carries the raw string fields of one inbound execution request.
type Request struct {
	// Address of the contract being executed, 20 bytes of hex.
	Address string
	// Caller address, 20 bytes of hex.
	Caller string
	// Code to execute, hex bytes.
	Code string
	// Data passed as call input, hex bytes.
	Data string
	// ApparentValue visible to CALLVALUE, a decimal or 0x-prefixed hex
	// unsigned integer. No balance is moved.
	ApparentValue string
}

// EvmResult is the caller-facing outcome of one completed execution. It is
// produced for every run the engine processed, including reverted and failed
// ones; those are encoded in the exit reason.
type EvmResult struct {
	ExitReason  bridge.ExitReason `json:"exit_reason"`
	ReturnValue string            `json:"return_value"`
	Apply       []bridge.Mutation `json:"apply"`
	Logs        []bridge.Log      `json:"logs"`
}

// BackendFactory produces the state backend bound to one execution together
// with a release function closing its resources.
type BackendFactory func() (bridge.Backend, func())

// Runner executes requests on a fixed engine. It is safe for concurrent use;
// every run owns its own backend.
type Runner struct {
	engine   bridge.Engine
	backends BackendFactory
}

func New(engine bridge.Engine, backends BackendFactory) *Runner {
	return &Runner{engine: engine, backends: backends}
}

// Run processes one request. The error is non-nil only for the two
// request-level failures: unparsable input and an aborted execution.
func (r *Runner) Run(request Request) (EvmResult, error) {
	parameters, err := parseRequest(request)
	if err != nil {
		return EvmResult{}, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	backend, release := r.backends()
	defer release()
	parameters.Backend = backend

	start := time.Now()
	log.Info("Executing contract", "address", request.Address, "caller", request.Caller,
		"codeSize", len(parameters.Code), "dataSize", len(parameters.Input))

	result, err := r.supervisedRun(parameters)
	if err != nil {
		log.Error("Execution aborted", "address", request.Address, "err", err)
		return EvmResult{}, ErrInternal
	}

	log.Info("Execution finished", "address", request.Address,
		"exitReason", result.ExitReason, "gasUsed", GasLimit-result.GasLeft,
		"duration", time.Since(start))
	return shapeResult(result), nil
}

// supervisedRun is the isolation boundary: a panic from the engine or from
// the backend's fatal remote-query path surfaces as an error here.
func (r *Runner) supervisedRun(parameters bridge.Parameters) (result bridge.Result, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			result = bridge.Result{}
			err = fmt.Errorf("execution panicked: %v", recovered)
		}
	}()
	return r.engine.Run(parameters)
}

func parseRequest(request Request) (bridge.Parameters, error) {
	address, err := parseAddress(request.Address)
	if err != nil {
		return bridge.Parameters{}, fmt.Errorf("address: %w", err)
	}
	caller, err := parseAddress(request.Caller)
	if err != nil {
		return bridge.Parameters{}, fmt.Errorf("caller: %w", err)
	}
	code, err := parseBytes(request.Code)
	if err != nil {
		return bridge.Parameters{}, fmt.Errorf("code: %w", err)
	}
	data, err := parseBytes(request.Data)
	if err != nil {
		return bridge.Parameters{}, fmt.Errorf("data: %w", err)
	}
	value, err := parseValue(request.ApparentValue)
	if err != nil {
		return bridge.Parameters{}, fmt.Errorf("apparent value: %w", err)
	}
	return bridge.Parameters{
		Recipient: address,
		Sender:    caller,
		Input:     data,
		Value:     value,
		Code:      code,
		Gas:       GasLimit,
	}, nil
}

func parseAddress(s string) (bridge.Address, error) {
	decoded, err := parseBytes(s)
	if err != nil {
		return bridge.Address{}, err
	}
	if len(decoded) != 20 {
		return bridge.Address{}, fmt.Errorf("expected 20 bytes, got %d", len(decoded))
	}
	var address bridge.Address
	copy(address[:], decoded)
	return address, nil
}

func parseBytes(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return decoded, nil
}

func parseValue(s string) (bridge.Value, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return bridge.Value{}, nil
	}
	var parsed *uint256.Int
	var err error
	if strings.HasPrefix(s, "0x") {
		parsed, err = uint256.FromHex(s)
	} else {
		parsed, err = uint256.FromDecimal(s)
	}
	if err != nil {
		return bridge.Value{}, err
	}
	return bridge.ValueFromUint256(parsed), nil
}

func shapeResult(result bridge.Result) EvmResult {
	shaped := EvmResult{
		ExitReason:  result.ExitReason,
		ReturnValue: hex.EncodeToString(result.Output),
		Apply:       result.Mutations,
		Logs:        result.Logs,
	}
	// The transport shape uses empty lists, not null.
	if shaped.Apply == nil {
		shaped.Apply = []bridge.Mutation{}
	}
	if shaped.Logs == nil {
		shaped.Logs = []bridge.Log{}
	}
	return shaped
}
