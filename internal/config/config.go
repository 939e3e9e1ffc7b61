// Package config loads gmailpipe settings from a YAML file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Bounds on the worker pools.
const (
	MinThreads = 1
	MaxThreads = 10
	MaxPage    = 500
)

// Config is the top-level configuration.
type Config struct {
	AuthDir   string   `yaml:"auth_dir"`
	LogLevel  string   `yaml:"log_level"`
	Producers int      `yaml:"producers"`
	Consumers int      `yaml:"consumers"`
	Capacity  int      `yaml:"capacity"` // 0 picks a default from the thread counts
	PageSize  int      `yaml:"page_size"`
	RPS       int      `yaml:"rps"` // 0 disables rate limiting
	Retry     Retry    `yaml:"retry"`
	Gmailctl  Gmailctl `yaml:"gmailctl"`
}

// Retry bounds how often a failing API call is repeated.
type Retry struct {
	Attempts  int           `yaml:"attempts"`
	BaseDelay time.Duration `yaml:"base_delay"`
	MaxDelay  time.Duration `yaml:"max_delay"`
}

// Gmailctl locates the gmailctl binary and configuration used by by-rule.
type Gmailctl struct {
	Binary string `yaml:"binary"`
	Config string `yaml:"config"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		AuthDir:   filepath.Join(home, ".gmailctl"),
		LogLevel:  "info",
		Producers: 1,
		Consumers: 1,
		PageSize:  MaxPage,
		RPS:       10,
		Retry: Retry{
			Attempts:  3,
			BaseDelay: 500 * time.Millisecond,
			MaxDelay:  10 * time.Second,
		},
		Gmailctl: Gmailctl{Binary: "gmailctl"},
	}
}

// DefaultPath is where Load looks when no path is given.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".gmailpipe", "config.yaml")
}

// Load reads path over the defaults. A missing file at the default path is
// not an error; a missing explicit path is.
func Load(path string) (Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path) // #nosec G304 - path chosen by the user
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate checks ranges. It runs again after flags are applied.
func (c Config) Validate() error {
	if c.Producers < MinThreads || c.Producers > MaxThreads {
		return fmt.Errorf("producers must be between %d and %d, got %d", MinThreads, MaxThreads, c.Producers)
	}
	if c.Consumers < MinThreads || c.Consumers > MaxThreads {
		return fmt.Errorf("consumers must be between %d and %d, got %d", MinThreads, MaxThreads, c.Consumers)
	}
	if c.Capacity < 0 {
		return fmt.Errorf("capacity must not be negative, got %d", c.Capacity)
	}
	if c.PageSize <= 0 || c.PageSize > MaxPage {
		return fmt.Errorf("page_size must be between 1 and %d, got %d", MaxPage, c.PageSize)
	}
	if c.RPS < 0 {
		return fmt.Errorf("rps must not be negative, got %d", c.RPS)
	}
	if c.Retry.Attempts < 1 {
		return fmt.Errorf("retry.attempts must be at least 1, got %d", c.Retry.Attempts)
	}
	if c.Retry.BaseDelay < 0 || c.Retry.MaxDelay < 0 {
		return errors.New("retry delays must not be negative")
	}
	return nil
}
