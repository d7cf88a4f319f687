package config

import (
	"encoding/json"
	"fmt"
)

// Config represents the main zipbot configuration
type Config struct {
	// Telegram
	Telegram TelegramConfig `json:"telegram" mapstructure:"telegram"`

	// Staging storage
	Storage StorageConfig `json:"storage" mapstructure:"storage"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Metrics endpoint
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// TelegramConfig holds Telegram bot configuration
type TelegramConfig struct {
	BotToken     string  `json:"bot_token" mapstructure:"bot_token"`
	APIEndpoint  string  `json:"api_endpoint" mapstructure:"api_endpoint"`   // e.g. http://localhost:8081/bot%s/%s
	FileEndpoint string  `json:"file_endpoint" mapstructure:"file_endpoint"` // e.g. http://localhost:8081/file/bot%s/%s
	Allowlist    []int64 `json:"allowlist" mapstructure:"allowlist"`         // empty allows everyone
	PollTimeout  int     `json:"poll_timeout" mapstructure:"poll_timeout"`   // seconds
}

// StorageConfig holds blob staging configuration
type StorageConfig struct {
	Backend        string `json:"backend" mapstructure:"backend"` // disk, memory
	Dir            string `json:"dir" mapstructure:"dir"`
	MaxUploadBytes int64  `json:"max_upload_bytes" mapstructure:"max_upload_bytes"`
	SweepSchedule  string `json:"sweep_schedule" mapstructure:"sweep_schedule"`
	OrphanMaxAge   int    `json:"orphan_max_age" mapstructure:"orphan_max_age"` // minutes
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
	AuditFile string `json:"audit_file" mapstructure:"audit_file"`
}

// MetricsConfig holds the prometheus endpoint configuration
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Host    string `json:"host" mapstructure:"host"`
	Port    int    `json:"port" mapstructure:"port"`
}

// Addr returns the listen address of the metrics endpoint
func (m MetricsConfig) Addr() string {
	return fmt.Sprintf("%s:%d", m.Host, m.Port)
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{
			PollTimeout: 60,
		},
		Storage: StorageConfig{
			Backend:        "disk",
			MaxUploadBytes: 20 * 1024 * 1024, // Bot API download limit
			SweepSchedule:  "@every 10m",
			OrphanMaxAge:   360,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			Pretty:    true,
			Redaction: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    9090,
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram bot token is required")
	}

	if c.Storage.Backend != "disk" && c.Storage.Backend != "memory" {
		return fmt.Errorf("invalid storage backend %s (must be: disk, memory)", c.Storage.Backend)
	}
	if c.Storage.Backend == "disk" && c.Storage.Dir == "" {
		return fmt.Errorf("storage dir is required for the disk backend")
	}

	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return fmt.Errorf("invalid metrics port: %d", c.Metrics.Port)
	}

	errs := NewValidator().ValidateConfig(c)
	if len(errs) > 0 {
		return errs[0]
	}

	return nil
}
