// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cli "gopkg.in/urfave/cli.v1"

	"github.com/a2afabric/fabric/api"
	"github.com/a2afabric/fabric/fabric"
	"github.com/a2afabric/fabric/log"
	"github.com/a2afabric/fabric/metrics"
	"github.com/a2afabric/fabric/node"
	"github.com/a2afabric/fabric/transport"
)

var version = "0.1.0"

var logger = log.WithContext("pkg", "main")

func main() {
	app := cli.App{
		Version:   version,
		Name:      "fabricd",
		Usage:     "Node of the A2A coordination fabric",
		Copyright: "2026 The A2AFabric developers",
		Flags: []cli.Flag{
			configFlag,
			nodeIDFlag,
			agentIDFlag,
			dataDirFlag,
			keyFileFlag,
			listenAddrFlag,
			apiAddrFlag,
			apiCorsFlag,
			verbosityFlag,
			enableMetricsFlag,
		},
		Action: runAction,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runAction(ctx *cli.Context) error {
	defer func() { logger.Info("exited") }()

	initLogger(ctx)
	cfg, err := buildConfig(ctx)
	if err != nil {
		return err
	}

	if ctx.Bool(enableMetricsFlag.Name) {
		metrics.InitializePrometheusMetrics()
	}

	trans, err := transport.ListenWS(cfg.ListenAddr)
	if err != nil {
		return err
	}

	n, err := node.New(cfg, passphrase(), trans)
	if err != nil {
		trans.Close() //nolint:errcheck
		return err
	}
	defer func() { logger.Info("stopping node..."); n.Close() }()

	apiSrv, apiURL, err := startAPIServer(cfg, n, ctx.Bool(enableMetricsFlag.Name))
	if err != nil {
		return err
	}
	defer func() {
		logger.Info("stopping API server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		apiSrv.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	runCtx := handleExitSignal()
	n.Run(runCtx)
	printStartupMessage(cfg, n, apiURL)

	<-runCtx.Done()
	return nil
}

// buildConfig loads the optional config file and applies flag overrides.
func buildConfig(ctx *cli.Context) (node.Config, error) {
	cfg := node.DefaultConfig()
	if path := ctx.String(configFlag.Name); path != "" {
		var err error
		if cfg, err = node.LoadConfig(path); err != nil {
			return cfg, err
		}
	}
	if v := ctx.String(nodeIDFlag.Name); v != "" {
		cfg.NodeID = v
	}
	if v := ctx.String(agentIDFlag.Name); v != "" {
		cfg.AgentID = v
	}
	if v := ctx.String(dataDirFlag.Name); v != "" {
		cfg.DataDir = v
	}
	if v := ctx.String(keyFileFlag.Name); v != "" {
		cfg.KeyFile = v
	}
	if ctx.IsSet(listenAddrFlag.Name) || cfg.ListenAddr == "" {
		cfg.ListenAddr = ctx.String(listenAddrFlag.Name)
	}
	if ctx.IsSet(apiAddrFlag.Name) || cfg.APIAddr == "" {
		cfg.APIAddr = ctx.String(apiAddrFlag.Name)
	}
	if v := ctx.String(apiCorsFlag.Name); v != "" {
		cfg.APIOrigins = v
	}
	return cfg, cfg.Validate()
}

// passphrase reads the keystore passphrase from the environment, so it never
// shows up in process listings.
func passphrase() []byte {
	return []byte(os.Getenv("FABRIC_KEY_PASSPHRASE"))
}

func startAPIServer(cfg node.Config, n *node.Node, enableMetrics bool) (*http.Server, string, error) {
	handler := api.New(n, n.Registry(), n.Sessions(), n.Ledger(), n.Gov(), api.Options{
		AllowedOrigins:  cfg.APIOrigins,
		EnableMetrics:   enableMetrics,
		EnableReqLogger: true,
		RateLimit:       cfg.RateLimitSteady,
		RateBurst:       cfg.RateLimitBurst,
	})

	listener, err := net.Listen("tcp", cfg.APIAddr)
	if err != nil {
		return nil, "", err
	}
	srv := &http.Server{Handler: handler}
	go func() {
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Error("API server stopped", "err", err)
		}
	}()
	return srv, "http://" + listener.Addr().String() + "/", nil
}

func printStartupMessage(cfg node.Config, n *node.Node, apiURL string) {
	fmt.Printf(`Starting %v
    Version     %v
    Node ID     %v
    Agent ID    %v
    Fingerprint %v
    Transport   %v
    API portal  %v
    Data dir    %v
`,
		"A2A Fabric",
		version+" (protocol "+fabric.ProtocolVersion+")",
		cfg.NodeID,
		cfg.AgentID,
		n.Keys().Fingerprint(),
		cfg.ListenAddr,
		apiURL,
		dataDirLabel(cfg.DataDir),
	)
}

func dataDirLabel(dir string) string {
	if dir == "" {
		return "(in-memory)"
	}
	return dir
}

// handleExitSignal returns a context cancelled on SIGINT or SIGTERM.
func handleExitSignal() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		exitSignalCh := make(chan os.Signal, 1)
		signal.Notify(exitSignalCh, os.Interrupt, syscall.SIGTERM)
		sig := <-exitSignalCh
		logger.Info("exit signal received", "signal", sig)
		cancel()
	}()
	return ctx
}
