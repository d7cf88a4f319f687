package cli

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartCommand(t *testing.T) {
	t.Run("help text", func(t *testing.T) {
		out, err := execute(t, "start", "--help")
		require.NoError(t, err)
		assert.Contains(t, out, "Start the zipbot service in the foreground")
	})

	t.Run("rejects invalid config", func(t *testing.T) {
		t.Setenv("ZIPBOT_TELEGRAM_BOT_TOKEN", "")
		path := filepath.Join(t.TempDir(), "zipbot.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"telegram": {"bot_token": "not-a-token"}}`), 0600))

		_, err := execute(t, "start", "--config", path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid configuration")
	})
}

func TestIsRunning(t *testing.T) {
	t.Run("missing pid file", func(t *testing.T) {
		pidFile := filepath.Join(t.TempDir(), "test.pid")
		assert.False(t, isRunning(pidFile))
	})

	t.Run("live process", func(t *testing.T) {
		pidFile := filepath.Join(t.TempDir(), "test.pid")
		require.NoError(t, os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())), 0644))
		assert.True(t, isRunning(pidFile))
	})

	t.Run("garbage pid file", func(t *testing.T) {
		pidFile := filepath.Join(t.TempDir(), "test.pid")
		require.NoError(t, os.WriteFile(pidFile, []byte("nope"), 0644))
		assert.False(t, isRunning(pidFile))
	})
}
