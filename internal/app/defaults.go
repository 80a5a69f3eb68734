package app

import (
	"fmt"
	"os"
	"path/filepath"

	"hard-sync/internal/config"
)

// dotenvFile is loaded from the working directory when present.
const dotenvFile = ".env"

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables (also read from ./.env):
//   - HARD_SYNC_CONFIG_PATH: config file location (default: ~/.config/hard-sync.toml)
//   - HARD_SYNC_HOME: base directory for hard-sync data (default: ~/.local/share/hard-sync)
//   - HARD_SYNC_LOG_DIR: log directory (default: <base_dir>/log)
func GetDefaults() (map[string]string, error) {
	e, err := config.LoadEnv(dotenvFile)
	if err != nil {
		return nil, err
	}
	return defaultsFromEnv(e)
}

func defaultsFromEnv(e *config.Env) (map[string]string, error) {
	configPath, err := getConfigPath(e)
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir(e)
	if err != nil {
		return nil, err
	}

	logDir := e.LogDir
	if logDir == "" {
		logDir = filepath.Join(baseDir, "log")
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     logDir,
	}, nil
}

// LoadConfig reads the config file named by the defaults and applies
// environment overrides. A missing file yields the default config.
func LoadConfig() (*config.Config, error) {
	e, err := config.LoadEnv(dotenvFile)
	if err != nil {
		return nil, err
	}
	defaults, err := defaultsFromEnv(e)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(defaults["config_path"], defaults["base_dir"])
	if err != nil {
		return nil, err
	}
	e.Apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// getConfigPath returns the config file path, checking HARD_SYNC_CONFIG_PATH first,
// then falling back to the default ~/.config/hard-sync.toml.
func getConfigPath(e *config.Env) (string, error) {
	if e.ConfigPath != "" {
		return e.ConfigPath, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "hard-sync.toml"), nil
}

// getBaseDir returns the base directory for hard-sync data, checking HARD_SYNC_HOME first,
// then falling back to the XDG default ~/.local/share/hard-sync.
func getBaseDir(e *config.Env) (string, error) {
	if e.Home != "" {
		return e.Home, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "hard-sync"), nil
}
