// Package config provides configuration management for the sourcedctl CLI.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the default config file name.
const ConfigFileName = "sourced.yaml"

// Config represents the sourcedctl configuration.
type Config struct {
	// Version of the config file format
	Version string `yaml:"version"`

	// Store configuration
	Store StoreConfig `yaml:"store"`
}

// StoreConfig contains event store connection settings.
type StoreConfig struct {
	// Driver is the storage backend (postgres, memory)
	Driver string `yaml:"driver"`

	// URL is the database connection string (postgres only)
	URL string `yaml:"url,omitempty"`

	// Schema is the database schema to use (postgres only)
	Schema string `yaml:"schema,omitempty"`
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		Version: "1",
		Store: StoreConfig{
			Driver: "postgres",
			Schema: "public",
		},
	}
}

// Load loads configuration from the specified directory.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile loads configuration from a specific file path.
// Environment variable references like ${DATABASE_URL} in the URL are expanded.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.Store.URL = os.ExpandEnv(cfg.Store.URL)
	return &cfg, nil
}

// Save saves the configuration to the specified directory.
func (c *Config) Save(dir string) error {
	return c.SaveFile(filepath.Join(dir, ConfigFileName))
}

// SaveFile saves the configuration to a specific file path.
func (c *Config) SaveFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Exists checks if a config file exists in the directory.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}

// Validate validates the configuration and returns a list of problems.
func (c *Config) Validate() []string {
	var problems []string

	if c.Store.Driver == "" {
		problems = append(problems, "store.driver is required")
	}
	if c.Store.Driver != "" && c.Store.Driver != "postgres" && c.Store.Driver != "memory" {
		problems = append(problems, "store.driver must be 'postgres' or 'memory'")
	}
	if c.Store.Driver == "postgres" && c.Store.URL == "" {
		problems = append(problems, "store.url is required for postgres driver")
	}

	return problems
}
