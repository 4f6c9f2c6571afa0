package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"cfgvault/internal/config"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - CFGVAULT_CONFIG_PATH: config file location (default: ~/.config/cfgvault.toml)
//   - CFGVAULT_HOME: base directory for cfgvault data (default: ~/.local/share/cfgvault)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// getConfigPath returns the config file path, checking CFGVAULT_CONFIG_PATH first,
// then falling back to the default ~/.config/cfgvault.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv("CFGVAULT_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "cfgvault.toml"), nil
}

// getBaseDir returns the base directory for cfgvault data, checking CFGVAULT_HOME
// first, then falling back to the XDG default ~/.local/share/cfgvault.
func getBaseDir() (string, error) {
	if path := os.Getenv("CFGVAULT_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "cfgvault"), nil
}

// LoadConfig reads the config file at configPath. A missing file is not an
// error: the built-in defaults for baseDir are used instead, so the tool
// works without any setup.
func LoadConfig(configPath, baseDir string) (*config.Config, error) {
	cfg, err := config.ReadFromFile(configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		cfg = config.NewConfig(baseDir)
	case err != nil:
		return nil, err
	default:
		cfg.ApplyDefaults(baseDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
