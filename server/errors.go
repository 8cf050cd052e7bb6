// Copyright (c) 2025 Scilla Labs
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file.
//
// Change Date: 2028-10-01
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package server

import (
	"errors"

	"github.com/scilla-labs/evmbridge/runner"
)

const (
	invalidParamsCode = -32602
	internalErrorCode = -32603
)

// codedError carries a JSON-RPC error code alongside the message, picked up
// by the rpc package through its Error interface.
type codedError struct {
	code    int
	message string
}

func (e *codedError) Error() string  { return e.message }
func (e *codedError) ErrorCode() int { return e.code }

// toRPCError classifies a request failure for the wire. Bad input keeps its
// parse detail; everything else is reported opaquely, full detail stays in
// the local log.
func toRPCError(err error) error {
	if errors.Is(err, runner.ErrInvalidParams) {
		return &codedError{code: invalidParamsCode, message: err.Error()}
	}
	return &codedError{code: internalErrorCode, message: "internal error"}
}
