// Command bcmcp runs the Business Central MCP server on stdio, the framing
// Claude Desktop and other MCP hosts expect. Configuration comes from the
// environment, or from a YAML file named with -cfg; stdout carries the
// protocol, all logging goes to stderr.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/effective-security/xlog"

	"github.com/techspheredynamics/bcmcp/bcapi"
	"github.com/techspheredynamics/bcmcp/mcp"
	"github.com/techspheredynamics/bcmcp/mcp/transport/stdio"
	"github.com/techspheredynamics/bcmcp/tools/bc"
)

var logger = xlog.NewPackageLogger("github.com/techspheredynamics/bcmcp/cmd", "bcmcp")

const serverVersion = "0.1.0"

func main() {
	cfgFile := flag.String("cfg", "", "path to YAML configuration file (environment is used when empty)")
	dataDir := flag.String("data", "data", "directory with the CSV resource catalog")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	xlog.SetFormatter(xlog.NewStringFormatter(os.Stderr))
	if *debug {
		xlog.SetGlobalLogLevel(xlog.DEBUG)
	} else {
		xlog.SetGlobalLogLevel(xlog.INFO)
	}

	if err := run(*cfgFile, *dataDir); err != nil {
		fmt.Fprintf(os.Stderr, "bcmcp: %v\n", err)
		os.Exit(1)
	}
}

func run(cfgFile, dataDir string) error {
	var (
		cfg *bcapi.Config
		err error
	)
	if cfgFile != "" {
		cfg, err = bcapi.LoadConfig(cfgFile)
		if err != nil {
			return err
		}
	} else {
		cfg = bcapi.NewConfigFromEnv()
	}

	online, err := cfg.Validate()
	if err != nil {
		return err
	}
	if !online {
		logger.KV(xlog.WARNING, "reason", "incomplete_credentials", "mode", "offline")
	}

	client := bcapi.NewClient(cfg)

	server := mcp.NewServer(stdio.New()).WithInfo("bc-workshop-server", serverVersion)

	if err := bc.RegisterAll(server, client); err != nil {
		return err
	}
	if err := registerPrompts(server); err != nil {
		return err
	}
	if err := registerResources(server, dataDir); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.KV(xlog.INFO, "status", "starting", "transport", "stdio", "version", serverVersion)
	return server.Serve(ctx)
}
