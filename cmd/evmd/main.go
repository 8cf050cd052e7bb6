// Copyright (c) 2025 Scilla Labs
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file.
//
// Change Date: 2028-10-01
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// evmd serves EVM executions over a unix domain socket, reading all chain
// state from a node process through its local query socket.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
	"golang.org/x/exp/maps"

	"github.com/scilla-labs/evmbridge/bridge"
	_ "github.com/scilla-labs/evmbridge/engine/geth"
	"github.com/scilla-labs/evmbridge/nodeclient"
	"github.com/scilla-labs/evmbridge/remotestate"
	"github.com/scilla-labs/evmbridge/runner"
	"github.com/scilla-labs/evmbridge/server"
)

func main() {
	app := &cli.App{
		Name:      "evmd",
		Usage:     "EVM execution service backed by remote node state",
		Copyright: "(c) 2025 Scilla Labs",
		Action:    serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "socket",
				Usage: "unix socket to serve execution requests on",
				Value: "/tmp/evm-server.sock",
			},
			&cli.StringFlag{
				Name:  "node-socket",
				Usage: "unix socket of the node's state query endpoint",
				Value: "/tmp/node.sock",
			},
			&cli.IntFlag{
				Name:  "http-port",
				Usage: "also serve the API over HTTP on this port, 0 to disable",
				Value: 3333,
			},
			&cli.StringFlag{
				Name:  "engine",
				Usage: "execution engine to use",
				Value: "geth",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "number of executions run simultaneously",
				Value: runtime.NumCPU(),
			},
			&cli.IntFlag{
				Name:  "verbosity",
				Usage: "log verbosity (0=crit, 5=trace)",
				Value: 3,
			},
			&cli.DurationFlag{
				Name:  "stats-interval",
				Usage: "interval between throughput log lines, 0 to disable",
				Value: time.Minute,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(context *cli.Context) error {
	handler := log.NewTerminalHandlerWithLevel(os.Stderr,
		log.FromLegacyLevel(context.Int("verbosity")), false)
	log.SetDefault(log.NewLogger(handler))

	engine, err := bridge.NewEngine(context.String("engine"))
	if err != nil {
		return fmt.Errorf("%w, available engines: %v",
			err, maps.Keys(bridge.GetAllRegisteredEngines()))
	}

	nodeSocket := context.String("node-socket")
	backends := func() (bridge.Backend, func()) {
		client := nodeclient.New(nodeSocket)
		return remotestate.New(client), client.Close
	}

	srv, err := server.New(server.Config{
		SocketPath:    context.String("socket"),
		HTTPPort:      context.Int("http-port"),
		Workers:       context.Int("workers"),
		StatsInterval: context.Duration("stats-interval"),
	}, runner.New(engine, backends))
	if err != nil {
		return err
	}
	defer srv.Close()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-signals:
		log.Info("Shutting down", "signal", sig)
	case <-srv.Done():
		log.Info("Shutting down", "reason", "requested via API")
	}
	return nil
}
