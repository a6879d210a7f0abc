// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"strings"

	"github.com/LeeDigitalWorks/icbucket/pkg/chunk"
	"github.com/LeeDigitalWorks/icbucket/pkg/types"
)

const (
	DefaultConcurrency = 4
	DefaultReplicaAddr = "127.0.0.1:8000"
	DefaultLogLevel    = "info"
)

// ApplyDefaults fills every unset field. Explicit values are kept.
func ApplyDefaults(cfg *Config) {
	if cfg.Network == "" {
		cfg.Network = types.NetworkLocal
	}

	if cfg.Upload.ChunkSize == 0 {
		cfg.Upload.ChunkSize = chunk.ChunkSize
	}
	if cfg.Upload.Encodings == nil {
		cfg.Upload.Encodings = []string{"gzip"}
	}
	if cfg.Upload.Concurrency == 0 {
		cfg.Upload.Concurrency = DefaultConcurrency
	}

	if cfg.Replica.Addr == "" {
		cfg.Replica.Addr = DefaultReplicaAddr
	}
	if cfg.Replica.Store.Type == "" {
		cfg.Replica.Store.Type = "memory"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	return &cfg
}
