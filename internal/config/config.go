// Package config loads provenant settings.
//
// Settings come from three layers, later ones winning: built-in defaults, an
// optional YAML file, and PROVENANT_* environment variables. The merged result
// is checked against an embedded CUE schema before use.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PROVENANT_"

// Config is the full provenant configuration.
type Config struct {
	Database         string     `yaml:"database" json:"database"`
	BlobDir          string     `yaml:"blob_dir,omitempty" json:"blob_dir,omitempty"`
	TrackingRequired bool       `yaml:"tracking_required" json:"tracking_required"`
	RecordFailures   bool       `yaml:"record_failures" json:"record_failures"`
	DefaultModel     string     `yaml:"default_model" json:"default_model"`
	LogLevel         string     `yaml:"log_level" json:"log_level"`
	AutoCommit       AutoCommit `yaml:"autocommit" json:"autocommit"`
}

// AutoCommit configures generated commit messages for new versions.
type AutoCommit struct {
	Enabled      bool   `yaml:"enabled" json:"enabled"`
	Model        string `yaml:"model" json:"model"`
	BaseURL      string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	APIKeyEnv    string `yaml:"api_key_env" json:"api_key_env"`
	MaxDiffLines int    `yaml:"max_diff_lines" json:"max_diff_lines"`
}

// Default returns the configuration used when nothing else is set.
func Default() Config {
	return Config{
		Database:       "provenant.db",
		RecordFailures: true,
		LogLevel:       "info",
		AutoCommit: AutoCommit{
			Model:        "gpt-4o-mini",
			APIKeyEnv:    "OPENAI_API_KEY",
			MaxDiffLines: 400,
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and the process environment.
func Load(path string) (Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overrides fields from PROVENANT_* variables. All malformed
// values are reported together.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []error

	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	boolean := func(name string, dst *bool) {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
			return
		}
		*dst = b
	}
	integer := func(name string, dst *int) {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
			return
		}
		*dst = n
	}

	str("DATABASE", &cfg.Database)
	str("BLOB_DIR", &cfg.BlobDir)
	boolean("TRACKING_REQUIRED", &cfg.TrackingRequired)
	boolean("RECORD_FAILURES", &cfg.RecordFailures)
	str("DEFAULT_MODEL", &cfg.DefaultModel)
	str("LOG_LEVEL", &cfg.LogLevel)
	boolean("AUTOCOMMIT", &cfg.AutoCommit.Enabled)
	str("AUTOCOMMIT_MODEL", &cfg.AutoCommit.Model)
	str("AUTOCOMMIT_BASE_URL", &cfg.AutoCommit.BaseURL)
	str("AUTOCOMMIT_API_KEY_ENV", &cfg.AutoCommit.APIKeyEnv)
	integer("AUTOCOMMIT_MAX_DIFF_LINES", &cfg.AutoCommit.MaxDiffLines)

	return errors.Join(errs...)
}

// Validate checks cfg against the embedded CUE schema.
func (c Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Config"))
	value := ctx.Encode(c)
	if err := value.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := def.Unify(value).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Level returns the slog level named by LogLevel, defaulting to Info.
func (c Config) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Logger builds a text logger writing to w at the configured level.
func (c Config) Logger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: c.Level()}))
}

// APIKey returns the summarizer API key from the variable named by
// AutoCommit.APIKeyEnv.
func (c Config) APIKey() string {
	if c.AutoCommit.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.AutoCommit.APIKeyEnv)
}
