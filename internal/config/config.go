package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/a8m/envsubst"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Core struct {
		// LogLevel sets the verbosity of the log output (debug, info, warn, error).
		LogLevel string `yaml:"log_level"`
		// LogJson enables JSON log output instead of the plain text format.
		LogJson bool `yaml:"log_json"`
	} `yaml:"core"`

	RestAuth RestAuthConfig `yaml:"restauth"`

	Sync SyncConfig `yaml:"sync"`

	Database DatabaseConfig `yaml:"database"`

	Web WebConfig `yaml:"web"`

	Mail MailConfig `yaml:"mail"`
}

func defaultConfig() *Config {
	cfg := &Config{}

	cfg.Core.LogLevel = "info"

	cfg.RestAuth = RestAuthConfig{
		Url:     "http://localhost:8000",
		Timeout: 10 * defaultTimeoutUnit,
	}

	cfg.Sync = defaultSyncConfig()

	cfg.Database = DatabaseConfig{
		Type: "sqlite",
		DSN:  "sqlite.db",
	}

	cfg.Web = WebConfig{
		RequestLogging:   false,
		ListeningAddress: ":8123",
	}

	return cfg
}

// GetConfig loads the configuration from the YAML file referenced by the
// RESTAUTH_BRIDGE_CONFIG environment variable (default: config.yml).
// Environment variable references inside the file are substituted before
// parsing.
func GetConfig() (*Config, error) {
	cfg := defaultConfig()

	cfgFileName := "config.yml"
	if envCfgFileName := os.Getenv("RESTAUTH_BRIDGE_CONFIG"); envCfgFileName != "" {
		cfgFileName = envCfgFileName
	}

	if err := loadConfigFile(cfg, cfgFileName); err != nil {
		return nil, fmt.Errorf("failed to load config from yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the loaded configuration for inconsistencies.
func (c *Config) Validate() error {
	validate := validator.New()

	if err := validate.Struct(c.RestAuth); err != nil {
		return fmt.Errorf("invalid restauth config: %w", err)
	}
	if err := validate.Struct(c.Sync); err != nil {
		return fmt.Errorf("invalid sync config: %w", err)
	}

	return nil
}

func loadConfigFile(cfg any, filename string) error {
	data, err := envsubst.ReadFile(filename)
	if err != nil {
		return err
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	err = decoder.Decode(cfg)
	if err != nil {
		return err
	}

	return nil
}
