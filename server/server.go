// Copyright (c) 2025 Scilla Labs
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file.
//
// Change Date: 2028-10-01
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package server exposes the execution service over a unix domain socket
// and, optionally, an HTTP port. The connection-handling layer stays thin:
// every request is handed to a worker drawn from a bounded pool, so one
// stalled execution cannot starve the acceptance of others.
package server

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dsnet/golib/unitconv"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/scilla-labs/evmbridge/runner"
)

// Executor is the request-processing capability the server dispatches to.
// *runner.Runner implements it.
type Executor interface {
	Run(runner.Request) (runner.EvmResult, error)
}

// Config carries the server's listening endpoints and worker bound.
type Config struct {
	// SocketPath of the unix domain socket. A stale socket file is removed.
	SocketPath string
	// HTTPPort exposes the same API over HTTP when positive.
	HTTPPort int
	// Workers bounds the number of concurrently running executions.
	Workers int
	// StatsInterval between throughput log lines; zero disables them.
	StatsInterval time.Duration
}

// Server serves the execution API until Close is called or a shutdown is
// requested through the API itself.
type Server struct {
	executor Executor
	workers  chan struct{}

	rpcServer *rpc.Server
	listener  net.Listener
	httpSrv   *http.Server

	executions atomic.Uint64
	failures   atomic.Uint64

	done     chan struct{}
	doneOnce sync.Once
	quit     chan struct{}
}

// New starts a server for the given executor. The returned server is already
// accepting requests.
func New(config Config, executor Executor) (*Server, error) {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	s := &Server{
		executor: executor,
		workers:  make(chan struct{}, config.Workers),
		done:     make(chan struct{}),
		quit:     make(chan struct{}),
	}

	s.rpcServer = rpc.NewServer()
	if err := s.rpcServer.RegisterName("evm", &api{server: s}); err != nil {
		return nil, fmt.Errorf("failed to register evm API: %w", err)
	}

	// A socket file left behind by a previous run would block the listener.
	if err := os.Remove(config.SocketPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to remove stale socket %s: %w", config.SocketPath, err)
	}
	listener, err := net.Listen("unix", config.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", config.SocketPath, err)
	}
	s.listener = listener
	go func() {
		if err := s.rpcServer.ServeListener(listener); err != nil {
			select {
			case <-s.quit:
			default:
				log.Error("Socket server error", "err", err)
			}
		}
	}()
	log.Info("Execution server started", "socket", config.SocketPath, "workers", config.Workers)

	if config.HTTPPort > 0 {
		httpListener, err := net.Listen("tcp", fmt.Sprintf(":%d", config.HTTPPort))
		if err != nil {
			listener.Close()
			return nil, fmt.Errorf("failed to listen on port %d: %w", config.HTTPPort, err)
		}
		s.httpSrv = &http.Server{Handler: s.rpcServer}
		go func() {
			if err := s.httpSrv.Serve(httpListener); err != nil && err != http.ErrServerClosed {
				log.Error("HTTP server error", "err", err)
			}
		}()
		log.Info("HTTP endpoint started", "addr", httpListener.Addr())
	}

	if config.StatsInterval > 0 {
		go s.statsLoop(config.StatsInterval)
	}
	return s, nil
}

// Done is closed when a shutdown was requested through the API.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Close stops accepting requests. Executions already running complete on
// their own workers.
func (s *Server) Close() {
	close(s.quit)
	s.listener.Close()
	if s.httpSrv != nil {
		s.httpSrv.Close()
	}
	s.rpcServer.Stop()
}

func (s *Server) execute(request runner.Request) (runner.EvmResult, error) {
	s.workers <- struct{}{}
	defer func() { <-s.workers }()

	result, err := s.executor.Run(request)
	s.executions.Add(1)
	if err != nil {
		s.failures.Add(1)
	}
	return result, err
}

func (s *Server) requestShutdown() {
	s.doneOnce.Do(func() {
		log.Info("Shutdown requested")
		close(s.done)
	})
}

func (s *Server) statsLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	last := uint64(0)
	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			total := s.executions.Load()
			rate := float64(total-last) / interval.Seconds()
			last = total
			log.Info("Execution statistics",
				"total", total,
				"failures", s.failures.Load(),
				"rate", unitconv.FormatPrefix(rate, unitconv.SI, 1)+"/s")
		}
	}
}

// api is the JSON-RPC surface registered under the evm namespace.
type api struct {
	server *Server
}

// Run executes the given code and reports the outcome. Engine-level reverts
// and failures are successful responses; only unparsable input and aborted
// executions surface as JSON-RPC errors.
func (a *api) Run(address, caller, code, data, apparentValue string) (runner.EvmResult, error) {
	result, err := a.server.execute(runner.Request{
		Address:       address,
		Caller:        caller,
		Code:          code,
		Data:          data,
		ApparentValue: apparentValue,
	})
	if err != nil {
		return runner.EvmResult{}, toRPCError(err)
	}
	return result, nil
}

// Die asks the serving process to shut down.
func (a *api) Die() bool {
	a.server.requestShutdown()
	return true
}
