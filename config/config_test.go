package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	doc := `{
  "storage": {"driver": "sqlite", "dsn": ":memory:"},
  "gremlin": {"endpoint": "http://localhost:8182", "timeout_s": 5},
  "http": {"host": "127.0.0.1", "port": 9090},
  "log": {"level": "debug"}
}`
	path := filepath.Join(t.TempDir(), "twingraph.config.json")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, ":memory:", cfg.Storage.DSN)
	assert.Equal(t, "http://localhost:8182", cfg.Gremlin.Endpoint)
	assert.Equal(t, 5, cfg.Gremlin.TimeoutS)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfigMissing(t *testing.T) {
	_, err := LoadConfig("nope.json")
	assert.Error(t, err)
}

func TestLoadConfigInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
	_, err := LoadConfig(path)
	assert.Error(t, err)
}
