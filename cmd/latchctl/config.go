package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the latchctl configuration, loaded from YAML.
type Config struct {
	Credentials CredentialsConfig `yaml:"credentials"`
	API         APIConfig         `yaml:"api"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// CredentialsConfig carries the account credentials.
type CredentialsConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// APIConfig overrides service endpoints, mainly for proxying.
type APIConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// LoggingConfig selects log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// loadConfig reads and validates the YAML config at path.
func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.Credentials.Username == "" || cfg.Credentials.Password == "" {
		return nil, fmt.Errorf("config %s: credentials.username and credentials.password are required", path)
	}
	return &cfg, nil
}
