// Package cli implements the command-line surface: one cmd_<group>.go file
// per command group, all delegating to the shared engine the same way the
// RPC and REST surfaces do. No command reimplements ingest, ranking, or
// filtering itself.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/agentmem/agentmem/internal/engine"
	"github.com/agentmem/agentmem/internal/logging"
	"github.com/agentmem/agentmem/pkg/config"
)

// Version is set by the main package at build time via -ldflags.
var Version = "dev"

var (
	cfgFile  string
	logLevel string
	quiet    bool
)

// RootCmd is the base command; main wires it via Execute.
var RootCmd = &cobra.Command{
	Use:     "agentmem",
	Short:   "Persistent memory engine for LLM coding agents",
	Version: Version,
	Long: `agentmem stores, retrieves, and organizes an LLM coding agent's
knowledge across sessions: typed memories ranked by a multi-signal fusion
score, linked into a typed graph, and packed into token-budgeted context.

Examples:
  agentmem save "Auth uses short-lived JWTs" --kind decision --tags auth
  agentmem search "jwt expiry"
  agentmem context-pack "auth flow" --tokens 2000
  agentmem chain <memory-id>`,
}

// Execute runs the root command, exiting 1 on runtime error and 2 on
// argument/flag misuse (cobra's own usage errors already exit via
// SilenceUsage=false at the subcommand level).
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	RootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-essential output")
}

// openEngine loads config (honoring --config/--log-level overrides) and
// opens the shared engine. Every command but init/status/tui/demo --clean
// goes through this.
func openEngine() (*engine.Engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return engine.New(cfg)
}

// loadConfig resolves the layered config and applies CLI overrides on top.
// An explicit --config path is read directly instead of through the usual
// global/project/local search, since the caller named it deliberately.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if cfgFile != "" {
		v := viper.New()
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
		cfg = &config.Config{}
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("error unmarshaling config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	} else {
		cfg, err = config.Load()
		if err != nil {
			return nil, err
		}
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	return cfg, nil
}

// fatal prints err and exits 1, the CLI's runtime-error exit code.
func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// misuse prints a usage message and exits 2, the CLI's validation-error
// exit code.
func misuse(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(2)
}

func note(format string, args ...interface{}) {
	if !quiet {
		fmt.Printf(format+"\n", args...)
	}
}
