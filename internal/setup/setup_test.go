package setup_test

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/provenant/internal/commit"
	"github.com/roach88/provenant/internal/config"
	"github.com/roach88/provenant/internal/ir"
	"github.com/roach88/provenant/internal/origin"
	"github.com/roach88/provenant/internal/recorder"
	"github.com/roach88/provenant/internal/setup"
)

func fixtureSummary(_ context.Context, text string) ([]recorder.Message, error) {
	return []recorder.Message{recorder.User(origin.Sprintf("Summarize: %s", text))}, nil
}

func testConfig(t *testing.T) config.Config {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Database = filepath.Join(dir, "provenant.db")
	cfg.BlobDir = filepath.Join(dir, "blobs")
	cfg.DefaultModel = "test-model"
	cfg.AutoCommit.APIKeyEnv = "PROVENANT_TEST_UNSET_KEY"
	return cfg
}

func TestOpenWiresRecorder(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.AutoCommit.Enabled = true

	var summarized int
	summarizer := commit.SummarizerFunc(func(context.Context, commit.Request) (commit.Summary, error) {
		summarized++
		return commit.Summary{Title: "Ask for a shorter summary"}, nil
	})
	client := recorder.ModelClientFunc(func(_ context.Context, req recorder.ModelRequest) (recorder.ModelResponse, error) {
		return recorder.ModelResponse{Text: req.Model + " says hi"}, nil
	})

	open := func(source string) (*setup.Runtime, ir.LMP) {
		rt, err := setup.Open(cfg, setup.WithSummarizer(summarizer), setup.WithModelClient(client))
		require.NoError(t, err)
		require.NotNil(t, rt.Blobs)

		summary, err := recorder.TrackPrompt(rt.Recorder, fixtureSummary,
			recorder.WithName("summary"), recorder.WithSource(source))
		require.NoError(t, err)
		out, err := summary.Call(ctx, "a long text")
		require.NoError(t, err)
		assert.Equal(t, "test-model says hi", out.Text())

		v, ok := summary.Version()
		require.True(t, ok)
		return rt, v
	}

	rt, first := open("func summary(text string) []Message { return long(text) }")
	require.NoError(t, rt.Close())
	rt, second := open("func summary(text string) []Message { return short(text) }")
	defer rt.Close()

	assert.Equal(t, "test-model", first.Model)
	assert.Equal(t, int64(2), second.Version)
	assert.Equal(t, "Ask for a shorter summary", second.CommitMessage)
	assert.Equal(t, 1, summarized)

	counts, err := rt.Store.InvocationCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{first.ID: 1, second.ID: 1}, counts)
}

func TestOpenWithoutAPIKeyDisablesAutoCommit(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.BlobDir = ""
	cfg.AutoCommit.Enabled = true

	var logs bytes.Buffer
	rt, err := setup.Open(cfg, setup.WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	require.NoError(t, err)
	defer rt.Close()

	assert.Nil(t, rt.Blobs)
	assert.Contains(t, logs.String(), "auto-commit disabled")
	assert.Contains(t, logs.String(), "PROVENANT_TEST_UNSET_KEY")

	summary, err := recorder.TrackPrompt(rt.Recorder, fixtureSummary, recorder.WithName("summary"))
	require.NoError(t, err)
	_, err = summary.Call(ctx, "text")
	require.ErrorIs(t, err, recorder.ErrNoClient)
}

func TestOpenRecordsFailuresPerConfig(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.RecordFailures = false

	rt, err := setup.Open(cfg, setup.WithModelClient(recorder.ModelClientFunc(
		func(context.Context, recorder.ModelRequest) (recorder.ModelResponse, error) {
			return recorder.ModelResponse{}, assert.AnError
		})))
	require.NoError(t, err)
	defer rt.Close()

	summary, err := recorder.TrackPrompt(rt.Recorder, fixtureSummary, recorder.WithName("summary"))
	require.NoError(t, err)
	_, err = summary.Call(ctx, "text")
	require.ErrorIs(t, err, assert.AnError)

	counts, err := rt.Store.InvocationCounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestOpenFailsOnBadDatabase(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database = filepath.Join(t.TempDir(), "missing", "dir", "provenant.db")

	_, err := setup.Open(cfg)
	require.Error(t, err)
}
