package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
)

// Config holds the per-dialect option flags and writer selection, loadable
// from an optional .vasmrc.toml and overridden by CLI flags (two-layer
// precedence: DefaultConfig() then flag overrides), matching the teacher's
// config.Config/Load/Save shape.
type Config struct {
	Dialect struct {
		Name       string `toml:"name"` // edtasm, merlin, scasm
		NoCase     bool   `toml:"nocase"`
		DotDirs    bool   `toml:"dotdir"`
		AutoExpand bool   `toml:"autoexp"`
		IgnTrail   bool   `toml:"igntrail"`
		NoC        bool   `toml:"noc"`
		NoI        bool   `toml:"noi"`
		LDots      bool   `toml:"ldots"`
		Sect       bool   `toml:"sect"`
	} `toml:"dialect"`

	Output struct {
		Format     string `toml:"format"` // aof, cmd
		Path       string `toml:"path"`
		DefaultOrg uint64 `toml:"org"`
		Exec       string `toml:"exec"` // /CMD writer -exec= entry symbol
		AST        bool   `toml:"ast"`  // emit a debug atom-stream dump
	} `toml:"output"`

	Include struct {
		Paths []string `toml:"paths"`
	} `toml:"include"`
}

// DefaultConfig returns a configuration with default values, mirroring the
// teacher's DefaultConfig() baseline the flag layer then overrides.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Dialect.Name = "edtasm"
	cfg.Dialect.NoCase = false
	cfg.Dialect.DotDirs = false
	cfg.Dialect.AutoExpand = true
	cfg.Dialect.IgnTrail = false
	cfg.Dialect.NoC = false
	cfg.Dialect.NoI = false
	cfg.Dialect.LDots = false
	cfg.Dialect.Sect = false

	cfg.Output.Format = "aof"
	cfg.Output.Path = ""
	cfg.Output.DefaultOrg = 0x8000
	cfg.Output.Exec = ""
	cfg.Output.AST = false

	return cfg
}

// GetConfigPath returns the platform-specific config file path.
func GetConfigPath() string {
	var configDir string

	switch runtime.GOOS {
	case "windows":
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		configDir = filepath.Join(configDir, "vasmgo")

	case "darwin", "linux":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ".vasmrc.toml"
		}
		configDir = filepath.Join(homeDir, ".config", "vasmgo")

	default:
		return ".vasmrc.toml"
	}

	if err := os.MkdirAll(configDir, 0750); err != nil {
		return ".vasmrc.toml"
	}

	return filepath.Join(configDir, "config.toml")
}

// Load loads configuration from the default config file.
func Load() (*Config, error) {
	return LoadFrom(GetConfigPath())
}

// LoadFrom loads configuration from the specified file. A missing file is
// not an error: it just means the defaults stand until flags override them.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Save saves configuration to the default config file.
func (c *Config) Save() error {
	return c.SaveTo(GetConfigPath())
}

// SaveTo saves configuration to the specified file.
func (c *Config) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path) // #nosec G304 -- user config file path
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close config file: %w", closeErr)
		}
	}()

	enc := toml.NewEncoder(f)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}
