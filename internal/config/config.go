// Package config loads pledgeflow settings from a YAML file and the
// environment. Environment variables (prefix PLEDGEFLOW_) override the file.
package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "pledgeflow.config"

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "pledgeflow"

const (
	DefaultDatabasePath   = "pledgeflow.db"
	DefaultOwner          = "owner"
	DefaultVaultAddress   = "vault"
	DefaultCommitTime     = 259200
	DefaultLogLevel       = "info"
	DefaultConfigFileName = "pledgeflow.yaml"
	userConfigDirName     = ".pledgeflow"
	systemConfigPath      = "/etc/pledgeflow/pledgeflow.yaml"
)

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

// Config is the runtime configuration of a persisted ledger.
type Config struct {
	DatabasePath      string   `yaml:"databasePath"      split_words:"true"`
	Owner             string   `yaml:"owner"`
	VaultAddress      string   `yaml:"vaultAddress"      split_words:"true"`
	DefaultCommitTime uint64   `yaml:"defaultCommitTime" split_words:"true"`
	Whitelist         bool     `yaml:"whitelist"`
	AllowedPlugins    []string `yaml:"allowedPlugins"    split_words:"true"`
	LogLevel          string   `yaml:"logLevel"          split_words:"true"`
	Metrics           bool     `yaml:"metrics"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DatabasePath:      DefaultDatabasePath,
		Owner:             DefaultOwner,
		VaultAddress:      DefaultVaultAddress,
		DefaultCommitTime: DefaultCommitTime,
		LogLevel:          DefaultLogLevel,
	}
}

// Load reads configFile over the defaults and then applies environment
// overrides. With an empty configFile it looks for
// ~/.pledgeflow/pledgeflow.yaml, then /etc/pledgeflow/pledgeflow.yaml;
// finding neither is not an error.
func Load(configFile string) (*Config, error) {
	cfg := Default()

	if configFile == "" {
		configFile = findConfigFile()
	}
	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := decodeStrict(buf, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file %s: %w", configFile, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findConfigFile() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		userPath := filepath.Join(homeDir, userConfigDirName, DefaultConfigFileName)
		if _, err := os.Stat(userPath); err == nil {
			return userPath
		}
	}
	if _, err := os.Stat(systemConfigPath); err == nil {
		return systemConfigPath
	}
	return ""
}

// decodeStrict rejects unknown keys so typos do not silently fall back to
// defaults. An empty file leaves cfg unchanged.
func decodeStrict(buf []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(buf))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks the fields that have no safe zero value.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return errors.New("invalid config: databasePath must not be empty")
	}
	if c.Owner == "" {
		return errors.New("invalid config: owner must not be empty")
	}
	if c.VaultAddress == "" {
		return errors.New("invalid config: vaultAddress must not be empty")
	}
	if c.VaultAddress == c.Owner {
		return fmt.Errorf("invalid config: vaultAddress %q must differ from owner", c.VaultAddress)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel parses LogLevel ("debug", "info", "warn", "error").
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid config: logLevel %q: %w", c.LogLevel, err)
	}
	return level, nil
}
