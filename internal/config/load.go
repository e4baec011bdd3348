package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Load loads configuration with priority: defaults < file < flags. path
// may be empty, in which case the standard locations are searched. flags
// may be nil.
func Load(path string, flags *Flags) (*Config, error) {
	cfg := Default()

	if path == "" && flags != nil {
		path = flags.ConfigPath()
	}
	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", path, err)
		}
	}

	flags.apply(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// findConfigFile looks for config in standard locations.
func findConfigFile() string {
	candidates := []string{
		"./meshbridge.yaml",
		filepath.Join(ConfigDir(), "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// ConfigDir returns the OS-appropriate config directory.
func ConfigDir() string {
	switch runtime.GOOS {
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "MeshBridge")
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "MeshBridge")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "meshbridge")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "meshbridge")
	}
}

// loadFromFile loads config from a YAML file, merging with existing values.
// A file without a version is taken to be the current version.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	cfg.Version = 0
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return err
	}
	if cfg.Version == 0 {
		cfg.Version = Version
	}
	return nil
}
