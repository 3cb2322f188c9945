package config

import (
	"errors"
	"fmt"
	"os"

	"milecal/pkg/logging"

	"gopkg.in/yaml.v3"
)

// Environment variables that override provider credentials from the
// config file. Secrets generally come from the environment so the config
// file can be committed.
const (
	EnvGoogleClientID     = "MILECAL_GOOGLE_CLIENT_ID"
	EnvGoogleClientSecret = "MILECAL_GOOGLE_CLIENT_SECRET"
	EnvGitHubClientID     = "MILECAL_GITHUB_CLIENT_ID"
	EnvGitHubClientSecret = "MILECAL_GITHUB_CLIENT_SECRET"
	EnvSessionPostgresURL = "MILECAL_SESSION_POSTGRES_URL"
)

// LoadConfig loads configuration from the given file path. A missing
// file yields the defaults; a malformed file is an error.
func LoadConfig(configFilePath string) (Config, error) {
	config := GetDefaultConfig()

	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("ConfigLoader", "No config file found at %s, using defaults", configFilePath)
			applyEnvOverrides(&config)
			return config, nil
		}
		return Config{}, fmt.Errorf("error reading config from %s: %w", configFilePath, err)
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("error loading config from %s: %w", configFilePath, err)
	}

	applyEnvOverrides(&config)
	logging.Info("ConfigLoader", "Loaded configuration from %s", configFilePath)
	return config, nil
}

func applyEnvOverrides(config *Config) {
	if v := os.Getenv(EnvGoogleClientID); v != "" {
		config.Auth.Google.ClientID = v
	}
	if v := os.Getenv(EnvGoogleClientSecret); v != "" {
		config.Auth.Google.ClientSecret = v
	}
	if v := os.Getenv(EnvGitHubClientID); v != "" {
		config.Auth.GitHub.ClientID = v
	}
	if v := os.Getenv(EnvGitHubClientSecret); v != "" {
		config.Auth.GitHub.ClientSecret = v
	}
	if v := os.Getenv(EnvSessionPostgresURL); v != "" {
		config.Session.PostgresURL = v
	}
}

// Validate checks settings that would otherwise fail at first use.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.BaseURL == "" {
		return errors.New("server baseURL cannot be empty")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("invalid session TTL: %v", c.Session.TTL)
	}
	if c.Session.Store == SessionStorePostgres && c.Session.PostgresURL == "" {
		return errors.New("postgres URL is required when using the postgres session store")
	}
	if c.Policy.File == "" {
		return errors.New("policy file cannot be empty")
	}
	return nil
}
