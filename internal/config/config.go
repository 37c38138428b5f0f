// Package config loads tgsift settings from a TOML file with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

// FileName is the config file looked up in the data directory
const FileName = "config.toml"

// Environment overrides
const (
	EnvDataDir  = "TGSIFT_DATA_DIR"
	EnvLogLevel = "TGSIFT_LOG_LEVEL"
)

// MaxSearchLimit is the hard hit cap; larger limits are clamped to it
const MaxSearchLimit = 500

// Config is the full configuration
type Config struct {
	DataDir string       `toml:"data_dir"`
	Index   IndexConfig  `toml:"index"`
	Search  SearchConfig `toml:"search"`
	Log     LogConfig    `toml:"log"`
	Serve   ServeConfig  `toml:"serve"`
}

// IndexConfig tunes index builds
type IndexConfig struct {
	ProgressEvery int `toml:"progress_every"`
	Workers       int `toml:"workers"`
}

// SearchConfig tunes searches
type SearchConfig struct {
	Limit     int `toml:"limit"`
	Fragments int `toml:"fragments"`
}

// LogConfig selects log level, format and file output
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   bool   `toml:"file"`
}

// ServeConfig is the address of the HTTP server
type ServeConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr returns host:port
func (s ServeConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// DefaultDataDir returns ~/.tgsift, or .tgsift when the home directory is
// unknown
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tgsift"
	}
	return filepath.Join(home, ".tgsift")
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		DataDir: DefaultDataDir(),
		Index: IndexConfig{
			ProgressEvery: 100,
			Workers:       runtime.NumCPU(),
		},
		Search: SearchConfig{
			Limit:     MaxSearchLimit,
			Fragments: 5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Serve: ServeConfig{
			Host: "localhost",
			Port: 6894,
		},
	}
}

// Load reads path over the defaults. A missing file is not an error.
// When path is empty the file is looked up in the data directory, which may
// itself come from the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if dir := os.Getenv(EnvDataDir); dir != "" {
		cfg.DataDir = dir
	}
	if path == "" {
		path = filepath.Join(cfg.DataDir, FileName)
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if dir := os.Getenv(EnvDataDir); dir != "" {
		c.DataDir = dir
	}
	if level := os.Getenv(EnvLogLevel); level != "" {
		c.Log.Level = level
	}
}

// Validate fills zero values with defaults and rejects impossible settings
func (c *Config) Validate() error {
	def := Default()
	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}
	if c.Index.ProgressEvery <= 0 {
		c.Index.ProgressEvery = def.Index.ProgressEvery
	}
	if c.Index.Workers <= 0 {
		c.Index.Workers = def.Index.Workers
	}
	if c.Search.Limit <= 0 || c.Search.Limit > MaxSearchLimit {
		c.Search.Limit = MaxSearchLimit
	}
	if c.Search.Fragments <= 0 {
		c.Search.Fragments = def.Search.Fragments
	}
	if c.Serve.Host == "" {
		c.Serve.Host = def.Serve.Host
	}
	if c.Serve.Port < 0 || c.Serve.Port > 65535 {
		return fmt.Errorf("invalid serve.port %d", c.Serve.Port)
	}
	if c.Serve.Port == 0 {
		c.Serve.Port = def.Serve.Port
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid log.format %q", c.Log.Format)
	}
	return nil
}

// Save writes c to path as TOML
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// LogDir is where the rotating log file is written when enabled
func (c *Config) LogDir() string {
	return filepath.Join(c.DataDir, "logs")
}
