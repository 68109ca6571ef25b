// Package config provides configuration loading and management for Plotline.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete Plotline configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Model     ModelConfig     `yaml:"model"`
	Repair    RepairConfig    `yaml:"repair"`
	Bundle    BundleConfig    `yaml:"bundle"`
	Retention RetentionConfig `yaml:"retention"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	// Addr is the listen address (default: :8000)
	Addr string `yaml:"addr"`
	// UploadDir is where uploaded CSV files are stored
	UploadDir string `yaml:"upload_dir"`
	// DataDir holds the SQLite database
	DataDir string `yaml:"data_dir"`
	// MaxUploadBytes caps the size of a single uploaded file
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

// ModelConfig configures the LLM model settings
type ModelConfig struct {
	// Provider selects the API dialect ("anthropic" or "openai")
	Provider string `yaml:"provider"`
	// Name is the model to use (e.g., "claude-3-5-sonnet-20241022")
	Name string `yaml:"name"`
	// Endpoint is the API base URL
	Endpoint string `yaml:"endpoint"`
	// APIKeyEnv names the environment variable holding the API key
	APIKeyEnv string `yaml:"api_key_env"`
	// Temperature controls randomness (0.0-1.0, default: 0.2)
	Temperature float64 `yaml:"temperature"`
	// MaxTokens caps the completion length
	MaxTokens int `yaml:"max_tokens"`
	// Timeout is the maximum time to wait for model responses
	Timeout time.Duration `yaml:"timeout"`
}

// RepairConfig bounds the schema repair loop
type RepairConfig struct {
	// MaxAttempts is the number of repair callbacks after the first
	// failed validation (default: 2)
	MaxAttempts int `yaml:"max_attempts"`
}

// BundleConfig configures slide bundle processing
type BundleConfig struct {
	// InboxDir is watched for dropped bundle archives (empty = disabled)
	InboxDir string `yaml:"inbox_dir"`
	// OutputDir receives processed bundle results
	OutputDir string `yaml:"output_dir"`
}

// RetentionConfig configures cleanup and backup of uploaded data
type RetentionConfig struct {
	// UploadDays is how long uploads are kept before cleanup (default: 7)
	UploadDays int `yaml:"upload_days"`
	// BackupDir receives upload backups
	BackupDir string `yaml:"backup_dir"`
	// BackupDays is how long backups are kept (default: 30)
	BackupDays int `yaml:"backup_days"`
	// CleanupSchedule is a cron expression for the cleanup job
	CleanupSchedule string `yaml:"cleanup_schedule"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":8000",
			UploadDir:      "uploads",
			DataDir:        "data",
			MaxUploadBytes: 100 << 20,
		},
		Model: ModelConfig{
			Provider:    "anthropic",
			Name:        "claude-3-5-sonnet-20241022",
			Endpoint:    "https://api.anthropic.com",
			APIKeyEnv:   "ANTHROPIC_API_KEY",
			Temperature: 0.2,
			MaxTokens:   4096,
			Timeout:     2 * time.Minute,
		},
		Repair: RepairConfig{
			MaxAttempts: 2,
		},
		Bundle: BundleConfig{
			InboxDir:  "",
			OutputDir: "bundles",
		},
		Retention: RetentionConfig{
			UploadDays:      7,
			BackupDir:       "backups",
			BackupDays:      30,
			CleanupSchedule: "0 3 * * *",
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("server.max_upload_bytes must be positive")
	}
	if c.Model.Provider == "" {
		return fmt.Errorf("model.provider is required")
	}
	if c.Model.Name == "" {
		return fmt.Errorf("model.name is required")
	}
	if c.Model.Endpoint == "" {
		return fmt.Errorf("model.endpoint is required")
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 1 {
		return fmt.Errorf("model.temperature must be between 0 and 1")
	}
	if c.Repair.MaxAttempts < 0 {
		return fmt.Errorf("repair.max_attempts must not be negative")
	}
	if c.Retention.UploadDays < 0 || c.Retention.BackupDays < 0 {
		return fmt.Errorf("retention days must not be negative")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// APIKey resolves the model API key from the configured environment
// variable. Empty when unset.
func (c *Config) APIKey() string {
	if c.Model.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.Model.APIKeyEnv)
}

// DatabasePath returns the SQLite database location under the data dir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Server.DataDir, "visualizations.db")
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Server
	if other.Server.Addr != "" {
		c.Server.Addr = other.Server.Addr
	}
	if other.Server.UploadDir != "" {
		c.Server.UploadDir = other.Server.UploadDir
	}
	if other.Server.DataDir != "" {
		c.Server.DataDir = other.Server.DataDir
	}
	if other.Server.MaxUploadBytes != 0 {
		c.Server.MaxUploadBytes = other.Server.MaxUploadBytes
	}

	// Model
	if other.Model.Provider != "" {
		c.Model.Provider = other.Model.Provider
	}
	if other.Model.Name != "" {
		c.Model.Name = other.Model.Name
	}
	if other.Model.Endpoint != "" {
		c.Model.Endpoint = other.Model.Endpoint
	}
	if other.Model.APIKeyEnv != "" {
		c.Model.APIKeyEnv = other.Model.APIKeyEnv
	}
	if other.Model.Temperature != 0 {
		c.Model.Temperature = other.Model.Temperature
	}
	if other.Model.MaxTokens != 0 {
		c.Model.MaxTokens = other.Model.MaxTokens
	}
	if other.Model.Timeout != 0 {
		c.Model.Timeout = other.Model.Timeout
	}

	// Repair
	if other.Repair.MaxAttempts != 0 {
		c.Repair.MaxAttempts = other.Repair.MaxAttempts
	}

	// Bundle
	if other.Bundle.InboxDir != "" {
		c.Bundle.InboxDir = other.Bundle.InboxDir
	}
	if other.Bundle.OutputDir != "" {
		c.Bundle.OutputDir = other.Bundle.OutputDir
	}

	// Retention
	if other.Retention.UploadDays != 0 {
		c.Retention.UploadDays = other.Retention.UploadDays
	}
	if other.Retention.BackupDir != "" {
		c.Retention.BackupDir = other.Retention.BackupDir
	}
	if other.Retention.BackupDays != 0 {
		c.Retention.BackupDays = other.Retention.BackupDays
	}
	if other.Retention.CleanupSchedule != "" {
		c.Retention.CleanupSchedule = other.Retention.CleanupSchedule
	}
}
