package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/agentbridge/internal/config"
)

func TestInitConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentbridge", "config.yaml")

	require.NoError(t, initConfigFile(path, false))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfigTemplate(), string(data))

	err = initConfigFile(path, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	require.NoError(t, os.WriteFile(path, []byte("model: devin-deep\n"), 0o600))
	require.NoError(t, initConfigFile(path, true))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfigTemplate(), string(data))

	require.Error(t, initConfigFile("", false))
}

func TestSetConfigValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, config.WriteDefaultConfig(path))

	require.NoError(t, setConfigValue(path, "devin.poll_interval", "5s"))
	require.NoError(t, setConfigValue(path, "approval_policy", "approve-plan"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "poll_interval: 5s")
	assert.Contains(t, string(data), "approval_policy: approve-plan")
	assert.Contains(t, string(data), "# agentbridge configuration")
}

func TestSetConfigValue_Rejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, config.WriteDefaultConfig(path))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	tests := []struct {
		key, value, want string
	}{
		{"approval_policy", "yolo", "invalid value for approval_policy"},
		{"tracing.sample_rate", "2", "sample_rate"},
		{"devin.base_url", "http://api.devin.ai", "https"},
		{"theme.color", "red", "unknown config key"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			err := setConfigValue(path, tt.key, tt.value)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestSetConfigValue_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new", "config.yaml")
	require.NoError(t, setConfigValue(path, "model", "devin-deep"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "model: devin-deep\n", string(data))
}

func TestShowConfig_MasksKey(t *testing.T) {
	var buf bytes.Buffer
	settings := map[string]any{
		"model": "devin-standard",
		"devin": map[string]any{"api_key": "apk_live_0123456789abcdef", "max_retries": 3},
	}
	require.NoError(t, showConfig(&buf, settings, "/tmp/config.yaml"))

	out := buf.String()
	assert.Contains(t, out, "# /tmp/config.yaml")
	assert.Contains(t, out, "apk_...cdef")
	assert.NotContains(t, out, "apk_live_0123456789abcdef")
	assert.Contains(t, out, "max_retries: 3")
}
