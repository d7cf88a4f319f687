package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/robfig/cron/v3"
)

var telegramTokenPattern = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]+$`)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateTelegramToken validates a Telegram bot token
func (v *Validator) ValidateTelegramToken(token string) error {
	if token == "" {
		return fmt.Errorf("telegram bot token cannot be empty")
	}

	// Telegram bot tokens have format: <bot_id>:<token>
	// Example: 123456789:ABCdefGHIjklMNOpqrsTUVwxyz
	if !telegramTokenPattern.MatchString(token) {
		return fmt.Errorf("invalid Telegram bot token format")
	}

	return nil
}

// ValidateAPIEndpoint validates a custom Bot API or file endpoint template
func (v *Validator) ValidateAPIEndpoint(endpoint string) error {
	if endpoint == "" {
		return nil // Use default
	}

	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		return fmt.Errorf("api endpoint must be an http(s) URL")
	}
	if strings.Count(endpoint, "%s") != 2 {
		return fmt.Errorf("api endpoint must contain two %%s placeholders (token, method or file path)")
	}

	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateSweepSchedule validates the janitor's cron expression
func (v *Validator) ValidateSweepSchedule(schedule string) error {
	if schedule == "" {
		return nil // Use default
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return nil
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if cfg.Telegram.BotToken != "" {
		if err := v.ValidateTelegramToken(cfg.Telegram.BotToken); err != nil {
			errors = append(errors, err)
		}
	}
	if err := v.ValidateAPIEndpoint(cfg.Telegram.APIEndpoint); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateAPIEndpoint(cfg.Telegram.FileEndpoint); err != nil {
		errors = append(errors, err)
	}
	if cfg.Telegram.PollTimeout < 0 {
		errors = append(errors, fmt.Errorf("telegram poll_timeout must be >= 0"))
	}

	if cfg.Storage.MaxUploadBytes < 0 {
		errors = append(errors, fmt.Errorf("storage max_upload_bytes must be >= 0"))
	}
	if cfg.Storage.OrphanMaxAge < 0 {
		errors = append(errors, fmt.Errorf("storage orphan_max_age must be >= 0"))
	}
	if err := v.ValidateSweepSchedule(cfg.Storage.SweepSchedule); err != nil {
		errors = append(errors, err)
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	return errors
}
