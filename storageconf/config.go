// Package storageconf provides the YAML-driven bootstrap configuration for
// a storage.Storage instance: initial mount declarations plus tuning for
// the backoff and filesystem subsystems, via a Config/DefaultConfig/Merge/
// LoadConfig constructor chain.
package storageconf

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// MountDeclaration bootstraps one mount record at startup.
type MountDeclaration struct {
	MountID  string `yaml:"mount_id"`
	TomID    string `yaml:"tom_id"`
	SubPath  string `yaml:"sub_path"`
	Priority int    `yaml:"priority,omitempty"`
}

// BackoffConfig tunes the contention-retry policy.
type BackoffConfig struct {
	SpinLimit     int           `yaml:"spin_limit,omitempty"`
	SleepDuration time.Duration `yaml:"sleep_duration,omitempty"`
}

// MapConfig tunes the segmented concurrent hash map backing the mount
// registry and the tom coordinator's tom table.
type MapConfig struct {
	InitialSegments int     `yaml:"initial_segments,omitempty"`
	GrowthFactor    float64 `yaml:"growth_factor,omitempty"`
}

// FileStoreConfig tunes the on-disk tom backing store.
type FileStoreConfig struct {
	Root string `yaml:"root"`
	// Compression names the on-disk codec: "zstd" or "none". Empty defaults
	// to "zstd".
	Compression string `yaml:"compression,omitempty"`
}

// Config holds initialization parameters for a Storage instance.
type Config struct {
	Mounts    []MountDeclaration `yaml:"mounts,omitempty"`
	Backoff   BackoffConfig      `yaml:"backoff,omitempty"`
	Map       MapConfig          `yaml:"map,omitempty"`
	FileStore FileStoreConfig    `yaml:"file_store"`
	// Observers names observers registered in the observability package
	// (e.g. "slog", "noop", or an operator-registered custom sink) to fan
	// events out to. Empty defaults to ["slog"].
	Observers []string `yaml:"observers,omitempty"`
}

const (
	defaultSpinLimit     = 32
	defaultSleepDuration = time.Nanosecond
	defaultCompression   = "zstd"
)

// DefaultConfig returns a Config with sensible defaults for all
// subsystems.
func DefaultConfig() Config {
	return Config{
		Backoff: BackoffConfig{
			SpinLimit:     defaultSpinLimit,
			SleepDuration: defaultSleepDuration,
		},
		FileStore: FileStoreConfig{
			Compression: defaultCompression,
		},
		Observers: []string{"slog"},
	}
}

// Merge applies non-zero values from source into c, overwriting only the
// fields source sets explicitly.
func (c *Config) Merge(source *Config) {
	if len(source.Mounts) > 0 {
		c.Mounts = source.Mounts
	}
	if source.Backoff.SpinLimit > 0 {
		c.Backoff.SpinLimit = source.Backoff.SpinLimit
	}
	if source.Backoff.SleepDuration > 0 {
		c.Backoff.SleepDuration = source.Backoff.SleepDuration
	}
	if source.Map.InitialSegments > 0 {
		c.Map.InitialSegments = source.Map.InitialSegments
	}
	if source.Map.GrowthFactor > 0 {
		c.Map.GrowthFactor = source.Map.GrowthFactor
	}
	if source.FileStore.Root != "" {
		c.FileStore.Root = source.FileStore.Root
	}
	if source.FileStore.Compression != "" {
		c.FileStore.Compression = source.FileStore.Compression
	}
	if len(source.Observers) > 0 {
		c.Observers = source.Observers
	}
}

// LoadConfig reads a YAML config file, merges it with defaults, and
// returns the resulting Config.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("storageconf: read config file: %w", err)
	}

	var loaded Config
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("storageconf: parse config file: %w", err)
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}
