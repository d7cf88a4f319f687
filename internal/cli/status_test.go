package cli

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDataDirConfig(t *testing.T, dataDir string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "zipbot.json")
	content := `{"data_dir": "` + dataDir + `"}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestStatusCommand(t *testing.T) {
	t.Run("help text", func(t *testing.T) {
		out, err := execute(t, "status", "--help")
		require.NoError(t, err)
		assert.Contains(t, out, "status")
	})

	t.Run("stopped", func(t *testing.T) {
		dataDir := t.TempDir()
		out, err := execute(t, "status", "--config", writeDataDirConfig(t, dataDir))
		require.NoError(t, err)
		assert.Contains(t, out, "Status: stopped")
	})

	t.Run("running", func(t *testing.T) {
		dataDir := t.TempDir()
		pidFile := filepath.Join(dataDir, "zipbot.pid")
		require.NoError(t, os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())), 0644))

		out, err := execute(t, "status", "--config", writeDataDirConfig(t, dataDir))
		require.NoError(t, err)
		assert.Contains(t, out, "Status: running")
		assert.Contains(t, out, "PID: "+strconv.Itoa(os.Getpid()))
		assert.Contains(t, out, "Uptime:")
	})
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		expected string
	}{
		{"seconds only", 45 * time.Second, "45s"},
		{"minutes and seconds", 2*time.Minute + 30*time.Second, "2m30s"},
		{"hours minutes seconds", 3*time.Hour + 15*time.Minute + 20*time.Second, "3h15m20s"},
		{"zero", 0, "0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := formatDuration(tt.duration)
			assert.Equal(t, tt.expected, result)
		})
	}
}
