package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "provenant.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load("", env(nil))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, `
database: /var/lib/provenant/lmps.db
blob_dir: /var/lib/provenant/blobs
tracking_required: true
log_level: debug
autocommit:
  enabled: true
  model: gpt-4o
  max_diff_lines: 50
`)

	cfg, err := load(path, env(nil))
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/provenant/lmps.db", cfg.Database)
	assert.Equal(t, "/var/lib/provenant/blobs", cfg.BlobDir)
	assert.True(t, cfg.TrackingRequired)
	assert.True(t, cfg.RecordFailures, "unset keys keep their defaults")
	assert.True(t, cfg.AutoCommit.Enabled)
	assert.Equal(t, "gpt-4o", cfg.AutoCommit.Model)
	assert.Equal(t, 50, cfg.AutoCommit.MaxDiffLines)
	assert.Equal(t, "OPENAI_API_KEY", cfg.AutoCommit.APIKeyEnv)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "database: from-file.db\nrecord_failures: true\n")

	cfg, err := load(path, env(map[string]string{
		"PROVENANT_DATABASE":                  "from-env.db",
		"PROVENANT_RECORD_FAILURES":           "false",
		"PROVENANT_AUTOCOMMIT":                "1",
		"PROVENANT_AUTOCOMMIT_MAX_DIFF_LINES": "12",
	}))
	require.NoError(t, err)
	assert.Equal(t, "from-env.db", cfg.Database)
	assert.False(t, cfg.RecordFailures)
	assert.True(t, cfg.AutoCommit.Enabled)
	assert.Equal(t, 12, cfg.AutoCommit.MaxDiffLines)
}

func TestLoad_MalformedEnv(t *testing.T) {
	_, err := load("", env(map[string]string{
		"PROVENANT_TRACKING_REQUIRED":         "sometimes",
		"PROVENANT_AUTOCOMMIT_MAX_DIFF_LINES": "lots",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PROVENANT_TRACKING_REQUIRED")
	assert.Contains(t, err.Error(), "PROVENANT_AUTOCOMMIT_MAX_DIFF_LINES")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := load(filepath.Join(t.TempDir(), "nope.yaml"), env(nil))
	assert.Error(t, err)
}

func TestLoad_BadYAML(t *testing.T) {
	path := writeFile(t, "database: [unterminated\n")
	_, err := load(path, env(nil))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"empty database", func(c *Config) { c.Database = "" }, true},
		{"unknown log level", func(c *Config) { c.LogLevel = "chatty" }, true},
		{"negative diff budget", func(c *Config) { c.AutoCommit.MaxDiffLines = -1 }, true},
		{"autocommit without model", func(c *Config) {
			c.AutoCommit.Enabled = true
			c.AutoCommit.Model = ""
		}, true},
		{"disabled autocommit without model", func(c *Config) { c.AutoCommit.Model = "" }, false},
		{"bad api key variable", func(c *Config) { c.AutoCommit.APIKeyEnv = "not a var" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	cfg := Default()
	cfg.LogLevel = "warn"

	logger := cfg.Logger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "lmp_name", "greet")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "lmp_name=greet")
}

func TestAPIKey(t *testing.T) {
	t.Setenv("PROVENANT_TEST_KEY", "sk-test")
	cfg := Default()
	cfg.AutoCommit.APIKeyEnv = "PROVENANT_TEST_KEY"
	assert.Equal(t, "sk-test", cfg.APIKey())

	cfg.AutoCommit.APIKeyEnv = ""
	assert.Empty(t, cfg.APIKey())
}
