// Package llm holds model-backed collaborators: the OpenAI commit
// summarizer and an OpenAI-backed recorder model client.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/roach88/provenant/internal/commit"
)

// summarizerPrompt instructs the model to describe what changed, never why.
const summarizerPrompt = `You write commit messages for versions of a language model program.
You are given a unified diff of the program's source.
Describe WHAT changed, not why. Answer with one short sentence, optionally
followed by up to six bullet points starting with "- ". No preamble.`

// ChatCompleter is the slice of the OpenAI client used here.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAISummarizer implements commit.Summarizer with a chat completion.
type OpenAISummarizer struct {
	client ChatCompleter
	model  string
	logger *slog.Logger
}

// NewOpenAISummarizer creates a summarizer for the given model. An empty
// baseURL uses the public API.
func NewOpenAISummarizer(apiKey, baseURL, model string, logger *slog.Logger) (*OpenAISummarizer, error) {
	if apiKey == "" {
		return nil, errors.New("openai summarizer: API key not set")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return NewOpenAISummarizerWithClient(openai.NewClientWithConfig(cfg), model, logger), nil
}

// NewOpenAISummarizerWithClient wraps an existing client.
func NewOpenAISummarizerWithClient(client ChatCompleter, model string, logger *slog.Logger) *OpenAISummarizer {
	if model == "" {
		model = openai.GPT4oMini
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAISummarizer{client: client, model: model, logger: logger}
}

// Summarize implements commit.Summarizer.
func (s *OpenAISummarizer) Summarize(ctx context.Context, req commit.Request) (commit.Summary, error) {
	var user strings.Builder
	fmt.Fprintf(&user, "Lines added: %d, lines removed: %d.\n", req.Stats.Added, req.Stats.Removed)
	if req.Truncated {
		user.WriteString("The diff is truncated.\n")
	}
	user.WriteString("\n")
	user.WriteString(req.Diff)

	s.logger.Debug("summarizing diff", "model", s.model, "added", req.Stats.Added, "removed", req.Stats.Removed)
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: summarizerPrompt},
			{Role: openai.ChatMessageRoleUser, Content: user.String()},
		},
		Temperature: 0,
	})
	if err != nil {
		return commit.Summary{}, fmt.Errorf("openai summarize: %w", err)
	}
	if len(resp.Choices) == 0 {
		return commit.Summary{}, errors.New("openai summarize: no choices returned")
	}

	summary := commit.ParseSummary(resp.Choices[0].Message.Content)
	if summary.Title == "" {
		return commit.Summary{}, errors.New("openai summarize: empty answer")
	}
	return summary, nil
}
