// Package config loads repoctx settings from an optional project file and
// the environment. Command-line flags are applied last by the caller.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/phobologic/repoctx/internal/discover"
	"github.com/phobologic/repoctx/internal/lang"
	"github.com/phobologic/repoctx/internal/store"
)

// DefaultMaxFileSize skips files over 1 MB.
const DefaultMaxFileSize = 1_000_000

// FileNames lists the project config files looked up in the repository
// root, in order.
var FileNames = []string{".repoctx.toml", ".repoctx.yaml", ".repoctx.yml"}

// Config holds the settings of one run.
type Config struct {
	Store            string   `toml:"store" yaml:"store"`
	Hash             string   `toml:"hash" yaml:"hash"`
	Languages        []string `toml:"languages" yaml:"languages"`
	ExtraIgnore      []string `toml:"extra_ignore" yaml:"extra_ignore"`
	RespectGitignore bool     `toml:"respect_gitignore" yaml:"respect_gitignore"`
	MaxFileSize      int64    `toml:"max_file_size" yaml:"max_file_size"`
	Workers          int      `toml:"workers" yaml:"workers"`
	LogLevel         string   `toml:"log_level" yaml:"log_level"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Store:       store.KindJSON,
		Hash:        discover.HashSHA256,
		MaxFileSize: DefaultMaxFileSize,
		LogLevel:    "warn",
	}
}

// Load returns the defaults overlaid by the config file and then the
// environment. An explicit path must exist; otherwise the first of
// FileNames found in root is used, if any.
func Load(root, path string) (Config, error) {
	cfg := Default()
	if path == "" {
		for _, name := range FileNames {
			candidate := filepath.Join(root, name)
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return cfg, err
		}
	}
	if err := cfg.ApplyEnvOverrides(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if _, err := toml.Decode(string(data), c); err != nil {
			return fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
		}
	default:
		return fmt.Errorf("config %s: unsupported format %q", filepath.Base(path), ext)
	}
	return nil
}

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - REPOCTX_STORE: overrides store
//   - REPOCTX_HASH: overrides hash
//   - REPOCTX_LOG_LEVEL: overrides log_level
//   - REPOCTX_MAX_FILE_SIZE: overrides max_file_size (bytes)
//
// An unparsable value is reported and leaves the setting unchanged.
func (c *Config) ApplyEnvOverrides() error {
	return c.applyEnv(os.Getenv)
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("REPOCTX_STORE"); v != "" {
		c.Store = v
	}
	if v := getenv("REPOCTX_HASH"); v != "" {
		c.Hash = v
	}
	if v := getenv("REPOCTX_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := getenv("REPOCTX_MAX_FILE_SIZE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("REPOCTX_MAX_FILE_SIZE %q: not a byte count", v)
		}
		c.MaxFileSize = n
	}
	return nil
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if !contains(store.Kinds, c.Store) {
		errs = append(errs, fmt.Errorf("store %q: want one of %s", c.Store, strings.Join(store.Kinds, ", ")))
	}
	if _, err := discover.HashFunc(c.Hash); err != nil {
		errs = append(errs, err)
	}
	for _, name := range c.Languages {
		if _, ok := lang.Languages[name]; !ok {
			errs = append(errs, fmt.Errorf("unsupported language %q", name))
		}
	}
	if c.MaxFileSize < 0 {
		errs = append(errs, fmt.Errorf("max_file_size must not be negative"))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative"))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log level %q: %w", s, err)
	}
	return level, nil
}

// SnapshotOptions returns the discover options for these settings.
func (c Config) SnapshotOptions(logger *slog.Logger) discover.Options {
	return discover.Options{
		Languages:        c.Languages,
		ExtraIgnore:      c.ExtraIgnore,
		RespectGitignore: c.RespectGitignore,
		MaxFileSize:      c.MaxFileSize,
		Hash:             c.Hash,
		Workers:          c.Workers,
		Logger:           logger,
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
