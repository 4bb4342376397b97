package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
)

// Config is the top-level configuration structure.
type Config struct {
	Server    ServerConfig   `json:"server"`
	Model     ModelConfig    `json:"model"`
	Database  DatabaseConfig `json:"database"`
	Advisor   AdvisorConfig  `json:"advisor"`
	Approvals ApprovalConfig `json:"approvals"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
}

// ModelConfig selects the model-runtime execution mode and its
// backend parameters.
type ModelConfig struct {
	Mode            string   `json:"mode"` // inprocess | sandbox | container
	Model           string   `json:"model"`
	MaxTokens       int      `json:"max_tokens"`
	Endpoint        string   `json:"endpoint"`
	APIKey          string   `json:"api_key"`
	SandboxCommand  []string `json:"sandbox_command"`
	ContainerBinary string   `json:"container_binary"`
	TimeoutSeconds  int      `json:"timeout_seconds"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres"`
	Redis    RedisConfig    `json:"redis"`
}

type PostgresConfig struct {
	DSN string `json:"dsn"`
}

type RedisConfig struct {
	URL string `json:"url"`
}

// AdvisorConfig tunes the conversation loop and freshness threshold.
type AdvisorConfig struct {
	MaxToolIterations    int     `json:"max_tool_iterations"`
	FreshnessMaxAgeHours float64 `json:"freshness_max_age_hours"`
}

// ApprovalConfig configures pending-approval notifications.
type ApprovalConfig struct {
	SlackWebhookURL string `json:"slack_webhook_url"`
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file and substitutes environment variable references.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Substitute ${VAR} and ${VAR:default} with environment values.
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}
