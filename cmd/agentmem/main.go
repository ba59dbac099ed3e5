// Command agentmem is the process entry point: the cobra CLI by default,
// or the MCP (--mcp) / REST (--rest) long-running server modes, all three
// sharing the same internal/engine.Engine.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agentmem/agentmem/internal/api"
	"github.com/agentmem/agentmem/internal/cli"
	"github.com/agentmem/agentmem/internal/engine"
	"github.com/agentmem/agentmem/internal/mcp"
	"github.com/agentmem/agentmem/pkg/config"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

var (
	mcpMode  bool
	restMode bool
)

func init() {
	cli.Version = version
	cli.RootCmd.PersistentFlags().BoolVar(&mcpMode, "mcp", false, "run as MCP server (JSON-RPC over stdin/stdout) instead of executing a subcommand")
	cli.RootCmd.PersistentFlags().BoolVar(&restMode, "rest", false, "run the REST API server instead of executing a subcommand")
}

func main() {
	if mcpFlagSet() {
		runMCPServer()
		return
	}
	if restFlagSet() {
		runRESTServer()
		return
	}
	cli.Execute()
}

// mcpFlagSet/restFlagSet peek at os.Args directly: cobra only populates the
// bound bool after Execute() parses flags, but these two modes need to
// branch before RootCmd.Execute() ever runs a subcommand.
func mcpFlagSet() bool {
	return hasFlag("--mcp")
}

func restFlagSet() bool {
	return hasFlag("--rest")
}

func hasFlag(name string) bool {
	for _, a := range os.Args[1:] {
		if a == name {
			return true
		}
	}
	return false
}

func runMCPServer() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	eng, err := engine.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening engine: %v\n", err)
		os.Exit(1)
	}
	defer eng.Close()

	server := mcp.NewServer(eng, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	if err := server.Run(ctx); err != nil && err != context.Canceled {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}

func runRESTServer() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	eng, err := engine.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening engine: %v\n", err)
		os.Exit(1)
	}
	defer eng.Close()

	server := api.NewServer(eng, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	if err := server.StartWithContext(ctx, 10*time.Second); err != nil {
		fmt.Fprintf(os.Stderr, "REST server error: %v\n", err)
		os.Exit(1)
	}
}
