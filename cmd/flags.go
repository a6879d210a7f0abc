// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package cmd implements the icbucket command line.
package cmd

import (
	"github.com/spf13/cobra"
)

// FlagLoader gives explicitly set CLI flags precedence over loaded
// configuration. A flag left at its default never overrides.
type FlagLoader struct {
	cmd *cobra.Command
}

// NewFlagLoader creates a FlagLoader for the given cobra command.
func NewFlagLoader(cmd *cobra.Command) *FlagLoader {
	return &FlagLoader{cmd: cmd}
}

// String returns the flag value if it was set, otherwise fallback.
func (f *FlagLoader) String(flagName, fallback string) string {
	if f.cmd.Flags().Changed(flagName) {
		val, _ := f.cmd.Flags().GetString(flagName)
		return val
	}
	return fallback
}

// Int returns the flag value if it was set, otherwise fallback.
func (f *FlagLoader) Int(flagName string, fallback int) int {
	if f.cmd.Flags().Changed(flagName) {
		val, _ := f.cmd.Flags().GetInt(flagName)
		return val
	}
	return fallback
}

// Bool returns the flag value if it was set, otherwise fallback.
func (f *FlagLoader) Bool(flagName string, fallback bool) bool {
	if f.cmd.Flags().Changed(flagName) {
		val, _ := f.cmd.Flags().GetBool(flagName)
		return val
	}
	return fallback
}

// StringSlice returns the flag value if it was set, otherwise fallback.
func (f *FlagLoader) StringSlice(flagName string, fallback []string) []string {
	if f.cmd.Flags().Changed(flagName) {
		val, _ := f.cmd.Flags().GetStringSlice(flagName)
		return val
	}
	return fallback
}
