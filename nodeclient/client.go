// Copyright (c) 2025 Scilla Labs
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file.
//
// Change Date: 2028-10-01
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package nodeclient owns the connection to the node holding the
// authoritative chain state and issues the two remote queries the state
// backend depends on. A call that cannot complete within the configured
// bound fails the whole call; this layer never retries and never degrades
// a transport failure into a soft "value absent" answer.
package nodeclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/scilla-labs/evmbridge/bridge"
	"github.com/scilla-labs/evmbridge/query"
)

// DefaultTimeout bounds one remote round trip, connection setup included.
const DefaultTimeout = 3 * time.Second

// Client is the remote-query capability required by the state backend.
// Implementations are safe for use by a single execution at a time; every
// execution owns its own instance.
type Client interface {
	// FetchBlockchainInfo resolves one named blockchain metadata query.
	FetchBlockchainInfo(name, arg string) (query.MetadataResponse, error)
	// FetchStateValue resolves one state-variable lookup under the given
	// account address.
	FetchStateValue(address bridge.Address, q query.StateQuery) (query.StateResponse, error)
	// Close releases the connection. The client is unusable afterwards.
	Close()
}

type rpcClient struct {
	endpoint string
	timeout  time.Duration

	mu     sync.Mutex
	client *rpc.Client
	closed bool
}

// New creates a client for the node reachable at the given endpoint,
// typically a unix domain socket path. The connection is established lazily
// on first use and recreated after a failed call.
func New(endpoint string) Client {
	return NewWithTimeout(endpoint, DefaultTimeout)
}

// NewWithTimeout is New with an explicit round-trip bound.
func NewWithTimeout(endpoint string, timeout time.Duration) Client {
	return &rpcClient{endpoint: endpoint, timeout: timeout}
}

func (c *rpcClient) FetchBlockchainInfo(name, arg string) (query.MetadataResponse, error) {
	var result query.MetadataResponse
	if err := c.call(&result, "fetchBlockchainInfo", name, arg); err != nil {
		return query.MetadataResponse{}, fmt.Errorf("fetchBlockchainInfo(%s): %w", name, err)
	}
	return result, nil
}

func (c *rpcClient) FetchStateValue(address bridge.Address, q query.StateQuery) (query.StateResponse, error) {
	encoded, err := q.Encode()
	if err != nil {
		return query.StateResponse{}, err
	}
	var result query.StateResponse
	if err := c.call(&result, "fetchStateValue", query.EncodeAddress(address), hexutil.Bytes(encoded)); err != nil {
		return query.StateResponse{}, fmt.Errorf("fetchStateValue(%s): %w", q.Name, err)
	}
	return result, nil
}

func (c *rpcClient) call(result any, method string, args ...any) error {
	client, err := c.getClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	if err := client.CallContext(ctx, result, method, args...); err != nil {
		c.resetClient(err)
		return err
	}
	return nil
}

// getClient returns the current connection, dialing if there is none yet.
func (c *rpcClient) getClient() (*rpc.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, fmt.Errorf("node client is closed")
	}
	if c.client != nil {
		return c.client, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	client, err := rpc.DialContext(ctx, c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", c.endpoint, err)
	}
	c.client = client
	log.Debug("Connected to node", "endpoint", c.endpoint)
	return client, nil
}

// resetClient drops the current connection so the next call dials again.
// Covers a restarted node as well as a dropped socket.
func (c *rpcClient) resetClient(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		c.client.Close()
		c.client = nil
		log.Warn("Node connection reset due to error", "endpoint", c.endpoint, "err", err)
	}
}

func (c *rpcClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
}
