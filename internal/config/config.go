// Package config provides configuration for the voxpack CLI. Settings come
// from an optional YAML file with flag overrides applied by the commands.
package config

import (
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/voxpack/voxpack/internal/plan"
	"github.com/voxpack/voxpack/internal/storage"
	"github.com/voxpack/voxpack/pkg/types"
)

// Config holds the voxpack settings.
type Config struct {
	// Columns names the required metadata columns in flat input.
	Columns types.Columns `yaml:"columns"`

	// Defaults supply source/speaker labels when the flat metadata lacks
	// the partition columns. Empty defaults make a missing column fatal.
	Defaults DefaultLabels `yaml:"defaults"`

	// MaxRows is the batch row-count ceiling.
	MaxRows int `yaml:"max_rows"`

	// Mode is the payload relocation mode: copy or hardlink.
	Mode string `yaml:"mode"`

	// Verify re-reads placed payloads and compares checksums.
	Verify bool `yaml:"verify"`

	// Strict aborts on the first per-row payload failure instead of
	// collecting skipped rows.
	Strict bool `yaml:"strict"`

	// Concurrency bounds parallel payload placement. Zero picks a default
	// from the machine's CPU count.
	Concurrency int `yaml:"concurrency"`
}

// DefaultLabels are fallback partition labels for flat input.
type DefaultLabels struct {
	Source  string `yaml:"source"`
	Speaker string `yaml:"speaker"`
}

// Default returns the standard configuration.
func Default() Config {
	return Config{
		Columns: types.DefaultColumns(),
		MaxRows: plan.DefaultMaxRows,
		Mode:    string(storage.ModeCopy),
	}
}

// Load reads a YAML configuration file over the defaults. An empty path
// returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	if c.Columns.ID == "" || c.Columns.AudioPath == "" {
		return fmt.Errorf("config: id and audio_path column names must not be empty")
	}
	if c.Columns.Source == "" || c.Columns.Speaker == "" {
		return fmt.Errorf("config: source and speaker column names must not be empty")
	}
	if c.MaxRows <= 0 {
		return fmt.Errorf("config: max_rows must be > 0, got %d", c.MaxRows)
	}
	if _, err := storage.ParseMode(c.Mode); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("config: concurrency must be >= 0, got %d", c.Concurrency)
	}
	return nil
}

// EffectiveConcurrency resolves the payload placement parallelism.
func (c *Config) EffectiveConcurrency() int {
	if c.Concurrency > 0 {
		return c.Concurrency
	}
	n := runtime.GOMAXPROCS(0)
	if n > 8 {
		n = 8
	}
	if n < 1 {
		n = 1
	}
	return n
}
