// Copyright 2025 MakeMCP Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/gatewaylabs/kong-mcp-bridge/pkg/config"
	"github.com/gatewaylabs/kong-mcp-bridge/pkg/server"
)

// version is set by build flags during release
var version = "dev"

// shutdownGrace bounds how long in-flight requests may finish on shutdown.
const shutdownGrace = 10 * time.Second

func main() {
	app := &cli.Command{
		Name:    "kongmcp",
		Usage:   "Expose routed HTTP APIs as MCP tools.",
		Version: version,
		Commands: []*cli.Command{
			serveCommand(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the MCP bridge endpoint for a bridge configuration file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "Path to the bridge configuration file",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address",
				Value: ":8080",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return serve(ctx, cmd.String("config"), cmd.String("addr"))
		},
	}
}

// serve runs the bridge until the context is cancelled or a termination
// signal arrives. SIGHUP reloads the configuration file in place.
func serve(ctx context.Context, configPath, addr string) error {
	file, err := config.LoadBridgeFile(configPath)
	if err != nil {
		return err
	}

	bridge := server.NewBridge(file)
	defer bridge.Close()

	httpServer := &http.Server{
		Addr:    addr,
		Handler: bridge,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("listening on %s", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(signals)

	for {
		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server error: %w", err)
		case <-ctx.Done():
			return shutdown(httpServer)
		case sig := <-signals:
			if sig == syscall.SIGHUP {
				reload(bridge, configPath)
				continue
			}
			log.Printf("received %s, shutting down", sig)
			return shutdown(httpServer)
		}
	}
}

// reload re-reads the configuration file and swaps it in. A broken file
// leaves the running configuration untouched.
func reload(bridge *server.Bridge, configPath string) {
	file, err := config.LoadBridgeFile(configPath)
	if err != nil {
		log.Printf("reload failed, keeping current configuration: %v", err)
		return
	}
	bridge.Reload(file)
	log.Printf("configuration reloaded from %s", configPath)
}

func shutdown(httpServer *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
