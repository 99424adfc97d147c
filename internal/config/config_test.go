package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	t.Setenv(configPathEnv, "")
	t.Setenv(geminiAPIKeyEnv, "")
	t.Setenv(geminiModelEnv, "")
	t.Setenv(databaseDSNEnv, "")
	t.Setenv(databaseDriverEnv, "")
	t.Setenv(logLevelEnv, "")
	t.Setenv(serverAddrEnv, "")

	cfg := Load()

	assert.Equal(t, "rest", cfg.Classifier.Backend)
	assert.Equal(t, 10, cfg.Classifier.BatchSize)
	assert.Equal(t, 20, cfg.Inbox.PageSize)
	assert.Equal(t, 30*time.Second, cfg.Graph.Timeout)
	assert.Equal(t, 30*time.Second, cfg.Classifier.Timeout)
	assert.Equal(t, "sqlite3", cfg.Storage.Driver)
	assert.Zero(t, cfg.Inbox.RefreshInterval)
}

func TestLoadFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logging:
  level: debug
graph:
  baseUrl: http://graph.local
  timeout: 5s
classifier:
  backend: genai
  model: gemini-test
  batchSize: 4
inbox:
  pageSize: 50
  cancelAbandoned: true
  refreshInterval: 10m
storage:
  driver: postgres
  dsn: postgres://inbox@localhost/inbox
`), 0o600))

	t.Setenv(geminiAPIKeyEnv, "env-key")
	t.Setenv(geminiModelEnv, "")
	t.Setenv(databaseDSNEnv, "")
	t.Setenv(databaseDriverEnv, "")
	t.Setenv(logLevelEnv, "")
	t.Setenv(serverAddrEnv, ":9999")

	cfg := LoadFrom(path)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "http://graph.local", cfg.Graph.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Graph.Timeout)
	assert.Equal(t, "genai", cfg.Classifier.Backend)
	assert.Equal(t, "gemini-test", cfg.Classifier.Model)
	assert.Equal(t, "env-key", cfg.Classifier.APIKey)
	assert.Equal(t, 4, cfg.Classifier.BatchSize)
	assert.Equal(t, 50, cfg.Inbox.PageSize)
	assert.True(t, cfg.Inbox.CancelAbandoned)
	assert.Equal(t, 10*time.Minute, cfg.Inbox.RefreshInterval)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, "postgres://inbox@localhost/inbox", cfg.Storage.DSN)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, defaultGeminiURL, cfg.Classifier.Endpoint)
}

func TestLoadFromBrokenFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("graph: [unclosed"), 0o600))
	t.Setenv(serverAddrEnv, "")

	cfg := LoadFrom(path)
	assert.Equal(t, defaultGraphURL, cfg.Graph.BaseURL)
	assert.Equal(t, ":8790", cfg.Server.Addr)
}
