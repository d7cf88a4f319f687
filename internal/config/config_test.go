package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "123456789:ABCdefGHIjklMNOpqrsTUVwxyz"

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Telegram.BotToken = testToken
	cfg.Storage.Dir = "/tmp/zipbot-staging"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 60, cfg.Telegram.PollTimeout)
	assert.Equal(t, "disk", cfg.Storage.Backend)
	assert.Equal(t, int64(20*1024*1024), cfg.Storage.MaxUploadBytes)
	assert.Equal(t, "@every 10m", cfg.Storage.SweepSchedule)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Redaction)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, "127.0.0.1:9090", cfg.Metrics.Addr())
}

func TestConfigValidate(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	t.Run("missing bot token", func(t *testing.T) {
		cfg := validConfig()
		cfg.Telegram.BotToken = ""
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bot token is required")
	})

	t.Run("malformed bot token", func(t *testing.T) {
		cfg := validConfig()
		cfg.Telegram.BotToken = "not-a-token"
		assert.Error(t, cfg.Validate())
	})

	t.Run("unknown backend", func(t *testing.T) {
		cfg := validConfig()
		cfg.Storage.Backend = "s3"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid storage backend")
	})

	t.Run("disk backend needs dir", func(t *testing.T) {
		cfg := validConfig()
		cfg.Storage.Dir = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("memory backend needs no dir", func(t *testing.T) {
		cfg := validConfig()
		cfg.Storage.Backend = "memory"
		cfg.Storage.Dir = ""
		assert.NoError(t, cfg.Validate())
	})

	t.Run("bad metrics port", func(t *testing.T) {
		cfg := validConfig()
		cfg.Metrics.Enabled = true
		cfg.Metrics.Port = 70000
		assert.Error(t, cfg.Validate())
	})

	t.Run("bad log level", func(t *testing.T) {
		cfg := validConfig()
		cfg.Logging.Level = "verbose"
		assert.Error(t, cfg.Validate())
	})
}

func TestConfigString(t *testing.T) {
	s := validConfig().String()
	assert.True(t, strings.HasPrefix(s, "{"))
	assert.Contains(t, s, `"backend": "disk"`)
}
