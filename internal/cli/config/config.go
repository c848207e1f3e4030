package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
)

const ConfigFileName = "careerpath.json"

// Storage media for the identity triple
const (
	StorageKeyring = "keyring"
	StorageFile    = "file"
	StorageMemory  = "memory"
)

// Environment is one careerpath deployment the CLI can talk to
type Environment struct {
	Name    string `json:"name" validate:"required,excludesall=/\\"`
	APIURL  string `json:"api_url" validate:"required,url"`
	AuthURL string `json:"auth_url" validate:"required,url"`
	// Storage selects where the session lives: keyring (default), file or memory
	Storage        string `json:"storage,omitempty" validate:"omitempty,oneof=keyring file memory"`
	GoogleClientID string `json:"google_client_id,omitempty"`
}

// StorageMedium returns the configured medium, defaulting to the keyring
func (e *Environment) StorageMedium() string {
	if e.Storage == "" {
		return StorageKeyring
	}
	return e.Storage
}

// Config represents the CLI configuration file
type Config struct {
	Environments []Environment `json:"environments" validate:"required,min=1,dive"`
}

// DefaultConfig returns a default configuration pointing at a local stack
func DefaultConfig() *Config {
	return &Config{
		Environments: []Environment{
			{
				Name:    "local",
				APIURL:  "http://localhost:5000",
				AuthURL: "http://localhost:8090",
				Storage: StorageFile,
			},
		},
	}
}

// Validate checks field formats and that environment names are unique
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed '%s'", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid %s: %s", ConfigFileName, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid %s: %w", ConfigFileName, err)
	}

	seen := make(map[string]bool, len(c.Environments))
	for _, env := range c.Environments {
		if seen[env.Name] {
			return fmt.Errorf("invalid %s: duplicate environment '%s'", ConfigFileName, env.Name)
		}
		seen[env.Name] = true
	}
	return nil
}

// FindConfigFile searches for careerpath.json in current directory and parent directories
func FindConfigFile() (string, error) {
	currentDir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}

	// Search upwards until we find careerpath.json or reach root
	dir := currentDir
	for {
		configPath := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("%s not found in %s or any parent directory", ConfigFileName, currentDir)
}

// Load reads and validates the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadFromCurrentDir loads config from current directory or parent directories
func LoadFromCurrentDir() (*Config, error) {
	configPath, err := FindConfigFile()
	if err != nil {
		return nil, err
	}

	return Load(configPath)
}

// Save writes the configuration to a file
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetEnvironment returns an environment by its name
func (c *Config) GetEnvironment(name string) (*Environment, error) {
	for i := range c.Environments {
		if c.Environments[i].Name == name {
			return &c.Environments[i], nil
		}
	}
	return nil, fmt.Errorf("environment '%s' not found", name)
}

// GetDefaultEnvironment returns the first environment in the list
func (c *Config) GetDefaultEnvironment() (*Environment, error) {
	if len(c.Environments) == 0 {
		return nil, fmt.Errorf("no environments configured in %s", ConfigFileName)
	}
	return &c.Environments[0], nil
}
