package model

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.NoError(t, err)

	assert.Equal(t, ":3000", cfg.Server.Addr)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, 4, cfg.Hub.QueueDepth)
	assert.Equal(t, 10*time.Second, cfg.Fallback.Interval)
	assert.Equal(t, 5*time.Second, cfg.Client.PollInterval)
	assert.Equal(t, 3, cfg.Client.MaxConnectAttempts)
	assert.Equal(t, "http://localhost:3000", cfg.Client.ServerURL)
	assert.Empty(t, cfg.Auth.Token)
	assert.Equal(t, DefaultAppConfig(), cfg)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":8080"
store:
  backend: memory
hub:
  queue_depth: 16
client:
  poll_interval: 2s
  backoff_max: 1m
`), 0o644))

	cfg, err := LoadConfig(path, nil)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, 16, cfg.Hub.QueueDepth)
	assert.Equal(t, 2*time.Second, cfg.Client.PollInterval)
	assert.Equal(t, time.Minute, cfg.Client.BackoffMax)
	// Unset keys keep their defaults.
	assert.Equal(t, 25*time.Second, cfg.Hub.PingInterval)
}

func TestLoadConfigEnvAndFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":8080\"\n"), 0o644))
	t.Setenv("WORKCAL_SERVER_ADDR", ":9090")
	t.Setenv("WORKCAL_AUTH_TOKEN", "from-env")

	cfg, err := LoadConfig(path, nil)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "from-env", cfg.Auth.Token)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("server-addr", "", "")
	fs.String("client-server-url", "", "")
	fs.String("not-a-key", "", "")
	require.NoError(t, fs.Parse([]string{"--server-addr", ":7070", "--client-server-url", "http://cal:3000"}))

	cfg, err = LoadConfig(path, fs)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, "http://cal:3000", cfg.Client.ServerURL)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"backend":     "store:\n  backend: redis\n",
		"queue depth": "hub:\n  queue_depth: 0\n",
		"interval":    "fallback:\n  interval: 0s\n",
		"backoff":     "client:\n  backoff_initial: 10s\n  backoff_max: 1s\n",
		"attempts":    "client:\n  max_connect_attempts: 0\n",
		"malformed":   "server: [\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			_, err := LoadConfig(path, nil)
			assert.Error(t, err)
		})
	}
}

func TestSaveConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultAppConfig()
	cfg.Server.Addr = ":4000"
	cfg.Client.PollInterval = 7 * time.Second
	cfg.Auth.Token = "secret"

	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path, nil)
	require.NoError(t, err)
	assert.Equal(t, ":4000", loaded.Server.Addr)
	assert.Equal(t, 7*time.Second, loaded.Client.PollInterval)
	// Tokens live in the keyring, never in the file.
	assert.Empty(t, loaded.Auth.Token)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf).Info("dropped")
	assert.Empty(t, buf.String())

	LogConfig{Level: "debug", Format: "json"}.NewLogger(&buf).Debug("kept", "k", "v")
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "kept", line["msg"])
	assert.Equal(t, "v", line["k"])

	buf.Reset()
	LogConfig{Level: "nonsense"}.NewLogger(&buf).Info("text")
	assert.Contains(t, buf.String(), "msg=text")
}
