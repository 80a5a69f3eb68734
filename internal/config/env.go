package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	env "github.com/netflix/go-env"
)

// Env holds the environment overrides. Empty fields mean "not set".
type Env struct {
	ConfigPath string `env:"HARD_SYNC_CONFIG_PATH"`
	Home       string `env:"HARD_SYNC_HOME"`
	LogDir     string `env:"HARD_SYNC_LOG_DIR"`
	LogLevel   string `env:"HARD_SYNC_LOG_LEVEL"`
}

// LoadEnv reads the overrides from the process environment after loading
// dotenvPath, if that file exists. Variables already set in the environment
// win over the file.
func LoadEnv(dotenvPath string) (*Env, error) {
	if dotenvPath != "" {
		if _, err := os.Stat(dotenvPath); err == nil {
			if err := godotenv.Load(dotenvPath); err != nil {
				return nil, fmt.Errorf("loading %s: %w", dotenvPath, err)
			}
		}
	}

	var e Env
	if _, err := env.UnmarshalFromEnviron(&e); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}
	return &e, nil
}

// Apply overrides cfg fields that have an environment value.
func (e *Env) Apply(cfg *Config) {
	if e.LogDir != "" {
		cfg.LogDir = e.LogDir
	}
	if e.LogLevel != "" {
		cfg.LogLevel = e.LogLevel
	}
}
