// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/LeeDigitalWorks/icbucket/pkg/config"
	"github.com/LeeDigitalWorks/icbucket/pkg/debug"
	"github.com/LeeDigitalWorks/icbucket/pkg/logger"
	"github.com/LeeDigitalWorks/icbucket/pkg/replica"
	"github.com/LeeDigitalWorks/icbucket/pkg/replica/store"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a local replica hosting asset canisters",
	Long: `Run a local replica that implements the asset canister API and serves
the stored assets, either at http://<canister-id>.<host>/ or with a
?canisterId= query parameter.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	f := serveCmd.Flags()
	f.String("addr", "", "Address to listen on (default "+config.DefaultReplicaAddr+")")
	f.String("store", "", "Asset store: memory, badger or s3")
	f.String("store_path", "", "Badger directory")
	f.StringSlice("canisters", nil, "Only host these canister ids")
}

func openStore(ctx context.Context, c config.StoreConfig) (store.Store, error) {
	switch c.Type {
	case "memory":
		return store.NewMemory(), nil
	case "badger":
		return store.NewBadger(store.BadgerConfig{Path: c.Path})
	case "s3":
		return store.NewS3(ctx, c.S3)
	}
	return nil, fmt.Errorf("unknown store type %q", c.Type)
}

func runServe(cmd *cobra.Command, args []string) error {
	fl := NewFlagLoader(cmd)
	cfg.Replica.Addr = fl.String("addr", cfg.Replica.Addr)
	cfg.Replica.Store.Type = fl.String("store", cfg.Replica.Store.Type)
	cfg.Replica.Store.Path = fl.String("store_path", cfg.Replica.Store.Path)
	cfg.Replica.Canisters = fl.StringSlice("canisters", cfg.Replica.Canisters)
	if err := config.Validate(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ids, err := cfg.ReplicaCanisters()
	if err != nil {
		return err
	}
	s, err := openStore(ctx, cfg.Replica.Store)
	if err != nil {
		return err
	}
	r := replica.New(s, replica.WithCanisters(ids...))
	defer r.Close()

	logger.Info().
		Str("store", cfg.Replica.Store.Type).
		Int("canisters", len(ids)).
		Msg("serve: replica starting")

	debug.SetReady()
	defer debug.SetNotReady()

	return replica.NewServer(r).Serve(ctx, cfg.Replica.Addr)
}
