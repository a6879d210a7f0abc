// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads icbucket settings. Environment variables
// (ICBUCKET_*) take precedence over the YAML file, which takes precedence
// over defaults. CLI flags are applied on top by cmd.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/LeeDigitalWorks/icbucket/pkg/compression"
	"github.com/LeeDigitalWorks/icbucket/pkg/replica/store"
	"github.com/LeeDigitalWorks/icbucket/pkg/types"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config is the complete icbucket configuration.
type Config struct {
	// Network selects the default host: "local" or "ic"
	Network types.Network `mapstructure:"network" validate:"required,oneof=local ic"`
	// Host overrides the network's default host, e.g. "localhost:4943"
	Host string `mapstructure:"host" validate:"omitempty,hostname_port|hostname"`
	// Canister is the asset canister the client commands operate on
	Canister string `mapstructure:"canister" validate:"omitempty,canister"`

	Upload  UploadConfig  `mapstructure:"upload"`
	Replica ReplicaConfig `mapstructure:"replica"`
	Log     LogConfig     `mapstructure:"log"`

	// DebugAddr serves /metrics and pprof when set
	DebugAddr string `mapstructure:"debug_addr" validate:"omitempty,hostname_port"`
}

// UploadConfig tunes uploads.
type UploadConfig struct {
	ChunkSize ByteSize `mapstructure:"chunk_size" validate:"required,gte=1024,lte=8388608"`
	// RateLimit caps upload throughput in bytes per second; 0 disables it
	RateLimit   ByteSize `mapstructure:"rate_limit"`
	Encodings   []string `mapstructure:"encodings" validate:"dive,oneof=identity gzip deflate br zstd"`
	Concurrency int      `mapstructure:"concurrency" validate:"required,gte=1,lte=64"`
}

// ReplicaConfig configures `icbucket serve`.
type ReplicaConfig struct {
	Addr string `mapstructure:"addr" validate:"required,hostname_port"`
	// Canisters restricts the hosted canisters; empty hosts any id
	Canisters []string    `mapstructure:"canisters" validate:"dive,canister"`
	Store     StoreConfig `mapstructure:"store"`
}

// StoreConfig selects the replica's asset store.
type StoreConfig struct {
	Type string         `mapstructure:"type" validate:"required,oneof=memory badger s3"`
	Path string         `mapstructure:"path" validate:"required_if=Type badger"`
	S3   store.S3Config `mapstructure:"s3"`
}

type LogConfig struct {
	Level   string `mapstructure:"level" validate:"required,oneof=trace debug info warn error"`
	Console bool   `mapstructure:"console"`
}

// Endpoint returns the base URL of the canister API.
func (c *Config) Endpoint() string {
	host, secure := c.hostAndScheme()
	if secure {
		return "https://" + host
	}
	return "http://" + host
}

// CanisterURL returns the root URL the configured canister serves assets at.
func (c *Config) CanisterURL(id types.CanisterID) string {
	host, secure := c.hostAndScheme()
	return types.CanisterURL(id, host, secure).String()
}

func (c *Config) hostAndScheme() (string, bool) {
	host, secure := c.Network.Host()
	if c.Host != "" {
		host = c.Host
	}
	return host, secure
}

// CanisterID parses Canister.
func (c *Config) CanisterID() (types.CanisterID, error) {
	if c.Canister == "" {
		return types.CanisterID{}, errors.New("no canister configured (set --canister or ICBUCKET_CANISTER)")
	}
	return types.ParseCanisterID(c.Canister)
}

// ReplicaCanisters parses Replica.Canisters.
func (c *Config) ReplicaCanisters() ([]types.CanisterID, error) {
	ids := make([]types.CanisterID, 0, len(c.Replica.Canisters))
	for _, s := range c.Replica.Canisters {
		id, err := types.ParseCanisterID(s)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Encodings returns the compressed encodings to store next to identity. An
// empty result is returned as identity alone so no default is substituted.
func (c *Config) Encodings() ([]compression.Algorithm, error) {
	algos, err := compression.ParseAlgorithms(c.Upload.Encodings)
	if err != nil {
		return nil, err
	}
	if len(algos) == 0 {
		return []compression.Algorithm{compression.Identity}, nil
	}
	return algos, nil
}

// Load reads configuration from configPath, or from the default location
// when configPath is empty. A missing default file is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToSliceHookFunc(","),
		byteSizeHook(),
	)
}

// envKeys are bound explicitly so that Unmarshal sees them without a file.
var envKeys = []string{
	"network",
	"host",
	"canister",
	"debug_addr",
	"upload.chunk_size",
	"upload.rate_limit",
	"upload.encodings",
	"upload.concurrency",
	"replica.addr",
	"replica.canisters",
	"replica.store.type",
	"replica.store.path",
	"replica.store.s3.endpoint",
	"replica.store.s3.region",
	"replica.store.s3.bucket",
	"replica.store.s3.prefix",
	"replica.store.s3.access_key_id",
	"replica.store.s3.secret_access_key",
	"replica.store.s3.path_style",
	"log.level",
	"log.console",
}

func setupViper(v *viper.Viper, configPath string) {
	// ICBUCKET_UPLOAD_CHUNK_SIZE=1MiB
	v.SetEnvPrefix("ICBUCKET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(getConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper, configPath string) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && configPath == "" {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns $XDG_CONFIG_HOME/icbucket, or ~/.config/icbucket.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "icbucket")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "icbucket")
}

// DefaultConfigPath returns the file Load reads when no path is given.
func DefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}
