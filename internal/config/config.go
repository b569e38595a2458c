// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/lanegrid/agtrace/internal/provider"
)

// Config represents the agtrace configuration: the data directory and the
// set of providers with their log roots.
type Config struct {
	// DataDir holds the index store. Defaults to ~/.agtrace.
	DataDir   string                    `toml:"data_dir"`
	Providers map[string]ProviderConfig `toml:"providers"`
}

// ProviderConfig enables one provider and points at its log root.
type ProviderConfig struct {
	Enabled bool   `toml:"enabled"`
	LogRoot string `toml:"log_root"`
}

// Default returns a configuration with every known provider enabled at its
// conventional log root.
func Default() *Config {
	cfg := &Config{Providers: make(map[string]ProviderConfig)}
	for _, m := range provider.All() {
		cfg.Providers[m.Name] = ProviderConfig{Enabled: true, LogRoot: m.DefaultLogRoot}
	}
	return cfg
}

// DefaultPath returns the conventional config file location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".agtrace", "config.toml"), nil
}

// Load reads configuration from a TOML file.
func Load(path string) (*Config, error) {
	cfg := &Config{Providers: make(map[string]ProviderConfig)}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault reads the config at path, falling back to defaults when
// the file does not exist yet.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// Save writes the configuration, creating parent directories as needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// IndexPath returns the index store location under the data dir.
func (c *Config) IndexPath() (string, error) {
	dir := c.DataDir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory: %w", err)
		}
		dir = filepath.Join(home, ".agtrace")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return filepath.Join(dir, "index.db"), nil
}

// EnabledRoots resolves the enabled providers to (name, expanded log root)
// pairs.
func (c *Config) EnabledRoots() ([][2]string, error) {
	var roots [][2]string
	for _, m := range provider.All() {
		pc, ok := c.Providers[m.Name]
		if !ok || !pc.Enabled {
			continue
		}
		root := pc.LogRoot
		if root == "" {
			root = m.DefaultLogRoot
		}
		expanded, err := provider.ExpandHome(root)
		if err != nil {
			return nil, err
		}
		roots = append(roots, [2]string{m.Name, expanded})
	}
	return roots, nil
}
