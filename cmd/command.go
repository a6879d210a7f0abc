// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"os"

	"github.com/LeeDigitalWorks/icbucket/pkg/config"
	"github.com/LeeDigitalWorks/icbucket/pkg/debug"
	"github.com/LeeDigitalWorks/icbucket/pkg/logger"
	"github.com/LeeDigitalWorks/icbucket/pkg/types"
	"github.com/LeeDigitalWorks/icbucket/pkg/unload"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// cfg is loaded before any subcommand runs
	cfg *config.Config

	// guard holds interrupts off while a batch is open
	guard *unload.SignalGuard
)

var rootCmd = &cobra.Command{
	Use:   "icbucket",
	Short: "icbucket - manage the files of an asset canister",
	Long: `icbucket lists, uploads and deletes the assets of an asset canister.
Concurrent changes are grouped into batches that are committed atomically.
"icbucket serve" runs a local replica to develop against.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.String("config", "", "Config file (default "+config.DefaultConfigPath()+")")
	f.String("network", "", "Network to talk to: local or ic")
	f.String("host", "", "Override the network's host, e.g. localhost:4943")
	f.String("canister", "", "Asset canister id")
	f.String("log_level", "", "Log level: trace, debug, info, warn, error")
	f.String("debug_addr", "", "Serve metrics and pprof on this address")
}

// loadConfig reads the configuration and applies explicitly set flags on top.
func loadConfig(cmd *cobra.Command, args []string) error {
	fl := NewFlagLoader(cmd)

	loaded, err := config.Load(fl.String("config", ""))
	if err != nil {
		return err
	}
	loaded.Network = types.Network(fl.String("network", string(loaded.Network)))
	loaded.Host = fl.String("host", loaded.Host)
	loaded.Canister = fl.String("canister", loaded.Canister)
	loaded.Log.Level = fl.String("log_level", loaded.Log.Level)
	loaded.DebugAddr = fl.String("debug_addr", loaded.DebugAddr)
	if err := config.Validate(loaded); err != nil {
		return err
	}
	cfg = loaded

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger.SetLevel(level)
	if cfg.Log.Console {
		logger.SetConsole(os.Stderr)
	}

	if cfg.DebugAddr != "" {
		go debug.Serve(cmd.Context(), cfg.DebugAddr)
	}
	return nil
}

// Execute runs the CLI. A second interrupt while a batch is open cancels
// the root context.
func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	guard = unload.NewSignalGuard(cancel)

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		os.Exit(1)
	}
}
