// Package setup builds a ready-to-use Recorder from configuration: the
// SQLite version store, the optional blob store, the auto-commit messenger
// and the model clients for prompt units.
package setup

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/roach88/provenant/internal/blob"
	"github.com/roach88/provenant/internal/commit"
	"github.com/roach88/provenant/internal/config"
	"github.com/roach88/provenant/internal/llm"
	"github.com/roach88/provenant/internal/recorder"
	"github.com/roach88/provenant/internal/store"
)

// Runtime owns everything Open created. Close releases it.
type Runtime struct {
	Config   config.Config
	Logger   *slog.Logger
	Store    *store.Store
	Blobs    *blob.Store // nil unless blob_dir is set
	Recorder *recorder.Recorder
}

type options struct {
	logger       *slog.Logger
	summarizer   commit.Summarizer
	client       recorder.ModelClient
	recorderOpts []recorder.Option
}

// Option configures Open.
type Option func(*options)

// WithLogger replaces the logger built from the configuration.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithSummarizer replaces the OpenAI commit summarizer.
func WithSummarizer(s commit.Summarizer) Option {
	return func(o *options) {
		o.summarizer = s
	}
}

// WithModelClient sets the default client for prompt units instead of the
// OpenAI client.
func WithModelClient(c recorder.ModelClient) Option {
	return func(o *options) {
		o.client = c
	}
}

// WithRecorderOptions appends options applied after the configured ones.
func WithRecorderOptions(opts ...recorder.Option) Option {
	return func(o *options) {
		o.recorderOpts = append(o.recorderOpts, opts...)
	}
}

// Open opens the stores named by cfg and returns a Recorder writing to them.
//
// Auto-commit without an API key is disabled with a warning instead of
// failing; a prompt unit called without any client then fails with
// recorder.ErrNoClient.
func Open(cfg config.Config, opts ...Option) (*Runtime, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger
	if logger == nil {
		logger = cfg.Logger(os.Stderr)
	}

	rt := &Runtime{Config: cfg, Logger: logger}
	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("setup: %w", err)
	}
	rt.Store = st

	recOpts := []recorder.Option{
		recorder.WithLogger(logger),
		recorder.WithDefaultModel(cfg.DefaultModel),
		recorder.WithTrackingRequired(cfg.TrackingRequired),
		recorder.WithRecordFailures(cfg.RecordFailures),
	}

	if cfg.BlobDir != "" {
		bs, err := blob.Open(blob.Config{Dir: cfg.BlobDir, Logger: logger})
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
		rt.Blobs = bs
		recOpts = append(recOpts, recorder.WithBlobs(bs))
	}

	if m := messenger(cfg, o, logger); m != nil {
		recOpts = append(recOpts, recorder.WithMessenger(m))
	}

	client := o.client
	if client == nil && cfg.APIKey() != "" {
		client, err = llm.NewOpenAIClient(cfg.APIKey(), cfg.AutoCommit.BaseURL, logger)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}
	if client != nil {
		recOpts = append(recOpts, recorder.WithProviders(recorder.NewProviders(client)))
	}

	rt.Recorder = recorder.New(st, append(recOpts, o.recorderOpts...)...)
	logger.Debug("recorder ready",
		"database", cfg.Database,
		"blob_dir", cfg.BlobDir,
		"autocommit", cfg.AutoCommit.Enabled,
	)
	return rt, nil
}

// messenger returns the auto-commit messenger, or nil when auto-commit is
// off or has no summarizer.
func messenger(cfg config.Config, o *options, logger *slog.Logger) *commit.Messenger {
	if !cfg.AutoCommit.Enabled {
		return nil
	}
	s := o.summarizer
	if s == nil {
		openai, err := llm.NewOpenAISummarizer(cfg.APIKey(), cfg.AutoCommit.BaseURL, cfg.AutoCommit.Model, logger)
		if err != nil {
			logger.Warn("auto-commit disabled",
				"api_key_env", cfg.AutoCommit.APIKeyEnv,
				"error", err,
			)
			return nil
		}
		s = openai
	}
	return commit.New(s,
		commit.WithLogger(logger),
		commit.WithMaxDiffLines(cfg.AutoCommit.MaxDiffLines),
	)
}

// Close releases the stores.
func (rt *Runtime) Close() error {
	var errs []error
	if rt.Blobs != nil {
		errs = append(errs, rt.Blobs.Close())
	}
	if rt.Store != nil {
		errs = append(errs, rt.Store.Close())
	}
	return errors.Join(errs...)
}
