// Package config loads and validates the blocksave configuration.
//
// Configuration is an explicit value threaded into every component; no
// package reads ambient global state.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/tis24dev/blocksave/internal/types"
	"github.com/tis24dev/blocksave/pkg/utils"
)

// Config contains the full blocksave configuration.
type Config struct {
	// BackupRoot is the directory holding partition archives; whole-disk
	// archives live under BackupRoot/disk_backup.
	BackupRoot string `yaml:"backup_root"`

	// Compression settings
	Algorithm types.CompressionType   `yaml:"algorithm"`
	Preset    types.CompressionPreset `yaml:"preset"`

	// Signing settings. SigningKey selects the key for the configured signer:
	// a GPG key id for signer "gpg", an SSH private key path for signer "ssh".
	SigningEnabled bool   `yaml:"signing_enabled"`
	Signer         string `yaml:"signer,omitempty"`
	SigningKey     string `yaml:"signing_key,omitempty"`

	// Encryption settings (optional streaming age encryption of archives)
	EncryptEnabled bool     `yaml:"encrypt_enabled"`
	AgeRecipients  []string `yaml:"age_recipients,omitempty"`
	AgeIdentity    string   `yaml:"age_identity,omitempty"`

	// RetentionLimit is the number of archives kept per family.
	RetentionLimit int `yaml:"retention_limit"`

	// RestoreDelaySeconds is the countdown before a destructive restore write
	// begins, giving the operator a final cancellation window.
	RestoreDelaySeconds int `yaml:"restore_delay_seconds"`

	// Logging
	DebugLevel types.LogLevel `yaml:"debug_level"`
	UseColor   bool           `yaml:"use_color"`
	LogPath    string         `yaml:"log_path,omitempty"`
}

// defaultConfig provides baseline settings.
var defaultConfig = Config{
	Algorithm:           types.CompressionZstd,
	Preset:              types.PresetBalanced,
	Signer:              "gpg",
	RetentionLimit:      5,
	RestoreDelaySeconds: 5,
	DebugLevel:          types.LogLevelInfo,
	UseColor:            true,
}

// Default returns a copy of the built-in default configuration.
func Default() *Config {
	cfg := defaultConfig
	return &cfg
}

// Load reads the configuration from path, falling back to default locations
// and then to built-in defaults when no file exists.
func Load(path string) (*Config, error) {
	if path == "" {
		candidates := []string{
			"/etc/blocksave/config.yaml",
			filepath.Join(os.Getenv("HOME"), ".config/blocksave/config.yaml"),
			"config.yaml",
		}
		for _, c := range candidates {
			if utils.FileExists(c) {
				path = c
				break
			}
		}
	}

	// Unmarshal over a pre-populated copy of the defaults: absent keys keep
	// their default, and an explicit zero (retention_limit: 0, debug_level: 0)
	// survives to Validate instead of being promoted back to the default.
	cfg := defaultConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	return &cfg, nil
}

// Validate performs the fail-fast pre-flight checks. A configuration error
// must abort the operation before any device I/O begins.
func (c *Config) Validate() error {
	if c.BackupRoot == "" {
		return fmt.Errorf("backup_root cannot be empty")
	}
	switch c.Algorithm {
	case types.CompressionZstd, types.CompressionGzip, types.CompressionXZ:
	default:
		return fmt.Errorf("unknown compression algorithm: %q", c.Algorithm)
	}
	switch c.Preset {
	case types.PresetFast, types.PresetBalanced, types.PresetMax:
	default:
		return fmt.Errorf("unknown compression preset: %q", c.Preset)
	}
	if c.RetentionLimit < 1 {
		return fmt.Errorf("retention_limit must be >= 1, got %d", c.RetentionLimit)
	}
	if c.RestoreDelaySeconds < 0 {
		return fmt.Errorf("restore_delay_seconds cannot be negative")
	}
	if c.SigningEnabled {
		switch c.Signer {
		case "gpg", "ssh":
		default:
			return fmt.Errorf("unknown signer: %q", c.Signer)
		}
		if c.SigningKey == "" {
			return fmt.Errorf("signing_enabled requires signing_key")
		}
	}
	if c.EncryptEnabled && len(c.AgeRecipients) == 0 {
		return fmt.Errorf("encrypt_enabled requires at least one age recipient")
	}
	return nil
}

// Spec returns the compression spec selected by this configuration.
func (c *Config) Spec() types.CompressionSpec {
	return types.CompressionSpec{Algorithm: c.Algorithm, Preset: c.Preset}
}

// DiskBackupDir returns the whole-disk archive directory under the backup root.
func (c *Config) DiskBackupDir() string {
	return filepath.Join(c.BackupRoot, "disk_backup")
}
