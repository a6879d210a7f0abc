// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/LeeDigitalWorks/icbucket/pkg/tree"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var lsCmd = &cobra.Command{
	Use:   "ls [directory]",
	Short: "List a directory of the canister",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLs,
}

var treeCmd = &cobra.Command{
	Use:   "tree [directory]",
	Short: "Print the directory hierarchy below a directory",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTree,
}

func init() {
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(treeCmd)

	lsCmd.Flags().BoolP("all", "a", false, "Show entries starting with '.'")
	lsCmd.Flags().BoolP("long", "l", false, "Show size, content type and modification time")
	treeCmd.Flags().BoolP("all", "a", false, "Show entries starting with '.'")
}

func dirArg(args []string) string {
	if len(args) == 0 {
		return "/"
	}
	return args[0]
}

func runLs(cmd *cobra.Command, args []string) error {
	b, _, err := openBucket()
	if err != nil {
		return err
	}
	defer b.Close()
	dir, err := b.Tree(cmd.Context(), dirArg(args))
	if err != nil {
		return err
	}
	all, _ := cmd.Flags().GetBool("all")
	long, _ := cmd.Flags().GetBool("long")

	writeListing(cmd.OutOrStdout(), dir, all, long)
	return nil
}

func writeListing(out io.Writer, dir *tree.Directory, all, long bool) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	for _, e := range dir.Children {
		name := e.Name()
		if !all && strings.HasPrefix(name, ".") {
			continue
		}
		if !long {
			fmt.Fprintln(tw, name)
			continue
		}
		if e.IsDir() {
			fmt.Fprintf(tw, "-\tdirectory\t-\t%s\n", name)
			continue
		}
		a := e.Asset
		modified := "-"
		if len(a.Encodings) > 0 && a.Encodings[0].Modified > 0 {
			modified = humanize.Time(time.Unix(0, a.Encodings[0].Modified))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", humanize.IBytes(a.Size()), a.ContentType, modified, name)
	}
}

func runTree(cmd *cobra.Command, args []string) error {
	b, _, err := openBucket()
	if err != nil {
		return err
	}
	defer b.Close()
	dir, err := b.Tree(cmd.Context(), dirArg(args))
	if err != nil {
		return err
	}
	all, _ := cmd.Flags().GetBool("all")

	writeTree(cmd.OutOrStdout(), dir, all)
	return nil
}

func writeTree(out io.Writer, dir *tree.Directory, all bool) {
	fmt.Fprintln(out, dir.Key)
	dir.Walk(func(e tree.Entity, depth int) bool {
		name := e.Name()
		if !all && strings.HasPrefix(name, ".") {
			return false
		}
		fmt.Fprintf(out, "%s%s\n", strings.Repeat("  ", depth+1), name)
		return true
	})
}
