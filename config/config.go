package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the tool-level configuration for deployctl itself: where the
// environment files live, where backups go, and how to reach the deployment
// collaborators. Per-environment settings live in EnvironmentConfig.
type Config struct {
	ConfigDir  string        `yaml:"config_dir"`
	BackupRoot string        `yaml:"backup_root"`
	LogDir     string        `yaml:"log_dir"`
	BuildDir   string        `yaml:"build_dir"`
	History    HistoryConfig `yaml:"history"`
	Repo       RepoConfig    `yaml:"repo"`
	Server     ServerConfig  `yaml:"server"`
	Logging    LoggingConfig `yaml:"logging"`
	Notify     NotifyConfig  `yaml:"notify"`
}

// HistoryConfig locates the deployment-manifest history database.
type HistoryConfig struct {
	Path string `yaml:"path"`
}

// RepoConfig describes the application repository the version rollback
// engine operates on.
type RepoConfig struct {
	Path        string `yaml:"path"`
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`
}

// ServerConfig configures the read-only status API started by `serve`.
type ServerConfig struct {
	Port    int      `yaml:"port"`
	APIKeys []APIKey `yaml:"api_keys"`
}

type APIKey struct {
	Name string `yaml:"name"`
	Key  string `yaml:"key"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// NotifyConfig lists notification endpoints. Failures to deliver are never
// fatal to a deployment.
type NotifyConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	Channel    string `yaml:"channel"`
}

// Load reads the tool configuration, expanding ${VAR} environment references
// before parsing and applying defaults afterwards.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables
	dataStr := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(dataStr), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// LoadOrDefault loads path if it exists and falls back to pure defaults
// otherwise, so read-only commands work without a config file.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := &Config{}
		cfg.applyDefaults()
		return cfg, nil
	}
	return Load(path)
}

func (c *Config) applyDefaults() {
	if c.ConfigDir == "" {
		c.ConfigDir = "config"
	}
	if c.BackupRoot == "" {
		c.BackupRoot = "backups"
	}
	if c.LogDir == "" {
		c.LogDir = "logs"
	}
	if c.BuildDir == "" {
		c.BuildDir = "dist"
	}
	if c.History.Path == "" {
		c.History.Path = filepath.Join("data", "deployments.db")
	}
	if c.Repo.Path == "" {
		c.Repo.Path = "."
	}
	if c.Repo.AuthorName == "" {
		c.Repo.AuthorName = "deployctl"
	}
	if c.Repo.AuthorEmail == "" {
		c.Repo.AuthorEmail = "deployctl@localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8090
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// ValidateAPIKey reports whether key matches a configured API key.
func (c *Config) ValidateAPIKey(key string) bool {
	for _, ak := range c.Server.APIKeys {
		if ak.Key == key {
			return true
		}
	}
	return false
}
