// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"path"
	"strings"

	"github.com/LeeDigitalWorks/icbucket/pkg/bucket"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <directory>...",
	Short: "Create directories",
	Long: `Create directories. A directory exists as long as it holds an asset;
mkdir stores an empty ".keep" asset in it.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMkdir,
}

var rmCmd = &cobra.Command{
	Use:   "rm <key>...",
	Short: "Delete assets",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRm,
}

func init() {
	rootCmd.AddCommand(mkdirCmd)
	rootCmd.AddCommand(rmCmd)

	rmCmd.Flags().BoolP("recursive", "r", false, "Delete directories and everything below them")
}

func runMkdir(cmd *cobra.Command, args []string) error {
	b, _, err := openBucket()
	if err != nil {
		return err
	}
	defer b.Close()

	g, ctx := errgroup.WithContext(cmd.Context())
	for _, arg := range args {
		parent, name := path.Split(strings.TrimSuffix(arg, "/"))
		g.Go(func() error {
			return b.CreateDirectory(ctx, parent, name)
		})
	}
	return g.Wait()
}

func runRm(cmd *cobra.Command, args []string) error {
	b, _, err := openBucket()
	if err != nil {
		return err
	}
	defer b.Close()
	recursive, _ := cmd.Flags().GetBool("recursive")

	g, ctx := errgroup.WithContext(cmd.Context())
	for _, arg := range args {
		key := arg
		if !strings.HasPrefix(key, "/") {
			key = "/" + key
		}
		g.Go(func() error {
			if recursive && (strings.HasSuffix(key, "/") || isDirectory(ctx, b, key)) {
				return b.DeleteTree(ctx, key)
			}
			return b.Delete(ctx, key)
		})
	}
	return g.Wait()
}

// isDirectory reports whether any asset lives below key.
func isDirectory(ctx context.Context, b *bucket.Bucket, key string) bool {
	assets, err := b.List(ctx)
	if err != nil {
		return false
	}
	prefix := key + "/"
	for _, a := range assets {
		if strings.HasPrefix(a.Key, prefix) {
			return true
		}
	}
	return false
}
