package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvModelPath, EnvFeaturesPath, EnvPort, EnvDomain} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.HTTP.Port)
	assert.Equal(t, DefaultModelPath, cfg.Model.Path)
	assert.Equal(t, DefaultFeaturesPath, cfg.Model.FeaturesPath)
	assert.Equal(t, "taxi", cfg.Model.Domain)
	assert.False(t, cfg.Database.Enabled)
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
http:
  port: 9090
  timeout: 5s
  allowed_origins: ["https://example.com"]
log:
  level: debug
  format: console
model:
  path: models/house.json
  features_path: models/house_features.json
  domain: house
  cache_size: 10
database:
  enabled: true
  path: /tmp/farecast.db
  wal: false
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, 5*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, []string{"https://example.com"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "house", cfg.Model.Domain)
	assert.Equal(t, 10, cfg.Model.CacheSize)
	assert.True(t, cfg.Database.Enabled)
	assert.Equal(t, "/tmp/farecast.db", cfg.Database.DBPath)
	assert.False(t, cfg.Database.EnableWAL)
	// untouched keys keep their defaults
	assert.Equal(t, int64(32), cfg.HTTP.MaxUploadMB)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "model:\n  path: from_file.json\n")
	t.Setenv(EnvModelPath, "from_env.json")
	t.Setenv(EnvFeaturesPath, "cols.json")
	t.Setenv(EnvPort, "8123")
	t.Setenv(EnvDomain, "house")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from_env.json", cfg.Model.Path)
	assert.Equal(t, "cols.json", cfg.Model.FeaturesPath)
	assert.Equal(t, 8123, cfg.HTTP.Port)
	assert.Equal(t, "house", cfg.Model.Domain)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		env  map[string]string
	}{
		{name: "bad port env", env: map[string]string{EnvPort: "eighty"}},
		{name: "port out of range", body: "http:\n  port: 70000\n"},
		{name: "unknown domain", env: map[string]string{EnvDomain: "boats"}},
		{name: "unknown key", body: "modle:\n  path: x\n"},
		{name: "malformed yaml", body: "http: [\n"},
		{name: "negative cache", body: "model:\n  cache_size: -1\n"},
		{name: "database without path", body: "database:\n  enabled: true\n  path: \"\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.body != "" {
				path = writeConfig(t, tt.body)
			}
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}
