// Copyright (c) 2025 Scilla Labs
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file.
//
// Change Date: 2028-10-01
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package geth binds the go-ethereum interpreter as an execution engine.
// State reads are answered by the bridge.Backend bound into the run; state
// writes are buffered locally and reported as mutations, never applied.
package geth

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/tracing"
	geth "github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"

	"github.com/scilla-labs/evmbridge/bridge"
)

func init() {
	bridge.MustRegisterEngineFactory("geth", func(any) (bridge.Engine, error) {
		return &gethEngine{hasher: newCodeHasher(codeHashCacheCapacity)}, nil
	})
}

const codeHashCacheCapacity = 1024

type gethEngine struct {
	hasher *codeHasher
}

func (e *gethEngine) Run(parameters bridge.Parameters) (bridge.Result, error) {
	evm, contract, stateDb := e.createInterpreterContext(parameters)

	output, err := evm.Interpreter().Run(contract, parameters.Input, false)

	result := bridge.Result{
		Output:  output,
		GasLeft: contract.Gas,
	}

	// No error means the code ended with a STOP, RETURN, or SELFDESTRUCT.
	if err == nil {
		mutations, logs := stateDb.Deconstruct()
		result.ExitReason = bridge.ExitReason{Kind: bridge.Succeeded}
		result.Mutations = mutations
		result.Logs = logs
		return result, nil
	}

	// A revert still carries the return data; its buffered writes are
	// discarded rather than reported.
	if errors.Is(err, geth.ErrExecutionReverted) {
		result.ExitReason = bridge.ExitReason{Kind: bridge.Reverted, Detail: err.Error()}
		return result, nil
	}

	// Failures caused by the executed code are normal outcomes, not engine
	// errors.
	if isCodeFailure(err) {
		return bridge.Result{
			ExitReason: bridge.ExitReason{Kind: bridge.Failed, Detail: err.Error()},
		}, nil
	}

	return bridge.Result{}, fmt.Errorf("internal EVM error: %w", err)
}

func isCodeFailure(err error) bool {
	switch {
	case errors.Is(err, geth.ErrOutOfGas),
		errors.Is(err, geth.ErrCodeStoreOutOfGas),
		errors.Is(err, geth.ErrDepth),
		errors.Is(err, geth.ErrInsufficientBalance),
		errors.Is(err, geth.ErrContractAddressCollision),
		errors.Is(err, geth.ErrMaxCodeSizeExceeded),
		errors.Is(err, geth.ErrInvalidJump),
		errors.Is(err, geth.ErrWriteProtection),
		errors.Is(err, geth.ErrReturnDataOutOfBounds),
		errors.Is(err, geth.ErrGasUintOverflow),
		errors.Is(err, geth.ErrInvalidCode):
		return true
	}
	var stackOverflow *geth.ErrStackOverflow
	var stackUnderflow *geth.ErrStackUnderflow
	var invalidOpCode *geth.ErrInvalidOpCode
	return errors.As(err, &stackOverflow) ||
		errors.As(err, &stackUnderflow) ||
		errors.As(err, &invalidOpCode)
}

// makeChainConfig pins the chain rules to the London revision. The executed
// protocol predates the merge; later revisions would change gas accounting
// under the engine's feet.
func makeChainConfig(chainID *big.Int) params.ChainConfig {
	config := *params.AllEthashProtocolChanges
	config.ChainID = chainID
	config.ByzantiumBlock = big.NewInt(0)
	config.IstanbulBlock = big.NewInt(0)
	config.BerlinBlock = big.NewInt(0)
	config.LondonBlock = big.NewInt(0)
	config.MergeNetsplitBlock = nil
	config.ShanghaiTime = nil
	config.CancunTime = nil
	return config
}

func (e *gethEngine) createInterpreterContext(parameters bridge.Parameters) (*geth.EVM, *geth.Contract, *substate) {
	backend := parameters.Backend

	// Block metadata is resolved up front; the interpreter context carries
	// concrete values, not lazy accessors. Each field is one remote query.
	chainID := backend.ChainID()
	chainConfig := makeChainConfig(new(big.Int).SetBytes(chainID[:]))

	getHash := func(number uint64) common.Hash {
		return common.Hash(backend.BlockHash(number))
	}

	difficulty := backend.Difficulty()
	blockCtx := geth.BlockContext{
		CanTransfer: canTransferFunc,
		Transfer:    transferFunc,
		GetHash:     getHash,
		Coinbase:    common.Address(backend.Coinbase()),
		BlockNumber: new(big.Int).SetUint64(backend.BlockNumber()),
		Time:        backend.Timestamp(),
		Difficulty:  difficulty.ToBig(),
		GasLimit:    backend.GasLimit(),
		BaseFee:     big.NewInt(0),
	}

	gasPrice := backend.GasPrice()
	txCtx := geth.TxContext{
		Origin:   common.Address(backend.Origin()),
		GasPrice: gasPrice.ToBig(),
	}

	stateDb := newSubstate(backend, e.hasher)
	evm := geth.NewEVM(blockCtx, txCtx, stateDb, &chainConfig, geth.Config{})

	// Warm up the access list the way a transaction-level entry point would.
	rules := chainConfig.Rules(blockCtx.BlockNumber, false, blockCtx.Time)
	recipient := common.Address(parameters.Recipient)
	stateDb.Prepare(rules, common.Address(parameters.Sender), blockCtx.Coinbase,
		&recipient, geth.ActivePrecompiles(rules), nil)

	address := geth.AccountRef(parameters.Recipient)
	contract := geth.NewContract(address, address, parameters.Value.ToUint256(), parameters.Gas)
	contract.CallerAddress = common.Address(parameters.Sender)
	contract.Code = parameters.Code
	contract.CodeHash = e.hasher.hash(parameters.Code)
	contract.Input = parameters.Input

	return evm, contract, stateDb
}

// transferFunc moves value between accounts for calls made by the executed
// code. The top-level apparent value is not transferred; it only shapes
// CALLVALUE, mirroring how the node invokes this service.
func transferFunc(stateDb geth.StateDB, sender, recipient common.Address, value *uint256.Int) {
	stateDb.SubBalance(sender, value, tracing.BalanceChangeTransfer)
	stateDb.AddBalance(recipient, value, tracing.BalanceChangeTransfer)
}

func canTransferFunc(stateDb geth.StateDB, sender common.Address, value *uint256.Int) bool {
	return stateDb.GetBalance(sender).Cmp(value) >= 0
}
