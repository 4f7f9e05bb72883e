package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sashabaranov/go-openai"

	"github.com/roach88/provenant/internal/ir"
	"github.com/roach88/provenant/internal/recorder"
)

// OpenAIClient implements recorder.ModelClient with chat completions.
type OpenAIClient struct {
	client ChatCompleter
	logger *slog.Logger
}

var _ recorder.ModelClient = (*OpenAIClient)(nil)

// NewOpenAIClient creates a model client. An empty baseURL uses the public
// API; any OpenAI-compatible endpoint works.
func NewOpenAIClient(apiKey, baseURL string, logger *slog.Logger) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("openai client: API key not set")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return NewOpenAIClientWithClient(openai.NewClientWithConfig(cfg), logger), nil
}

// NewOpenAIClientWithClient wraps an existing client.
func NewOpenAIClientWithClient(client ChatCompleter, logger *slog.Logger) *OpenAIClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIClient{client: client, logger: logger}
}

// Complete implements recorder.ModelClient.
func (c *OpenAIClient) Complete(ctx context.Context, req recorder.ModelRequest) (recorder.ModelResponse, error) {
	if req.Model == "" {
		return recorder.ModelResponse{}, errors.New("openai complete: no model")
	}

	chat := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(req.Messages)),
	}
	for _, m := range req.Messages {
		chat.Messages = append(chat.Messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content.Text(),
		})
	}
	if err := c.applyParams(&chat, req.Params); err != nil {
		return recorder.ModelResponse{}, err
	}

	resp, err := c.client.CreateChatCompletion(ctx, chat)
	if err != nil {
		return recorder.ModelResponse{}, fmt.Errorf("openai complete: %w", err)
	}
	if len(resp.Choices) == 0 {
		return recorder.ModelResponse{}, errors.New("openai complete: no choices returned")
	}
	return recorder.ModelResponse{
		Text: resp.Choices[0].Message.Content,
		Usage: ir.Usage{
			PromptTokens:     int64(resp.Usage.PromptTokens),
			CompletionTokens: int64(resp.Usage.CompletionTokens),
		},
	}, nil
}

// applyParams copies the request parameters the API understands onto chat.
// Unknown keys are skipped.
func (c *OpenAIClient) applyParams(chat *openai.ChatCompletionRequest, params ir.IRObject) error {
	for _, key := range params.SortedKeys() {
		v := params[key]
		var err error
		switch key {
		case "temperature":
			chat.Temperature, err = float32Param(key, v)
		case "top_p":
			chat.TopP, err = float32Param(key, v)
		case "presence_penalty":
			chat.PresencePenalty, err = float32Param(key, v)
		case "frequency_penalty":
			chat.FrequencyPenalty, err = float32Param(key, v)
		case "max_tokens":
			chat.MaxTokens, err = intParam(key, v)
		case "n":
			chat.N, err = intParam(key, v)
		case "seed":
			var seed int
			if seed, err = intParam(key, v); err == nil {
				chat.Seed = &seed
			}
		case "stop":
			chat.Stop, err = stringsParam(key, v)
		default:
			c.logger.Debug("model param ignored", "param", key)
		}
		if err != nil {
			return fmt.Errorf("openai complete: %w", err)
		}
	}
	return nil
}

func float32Param(key string, v ir.IRValue) (float32, error) {
	switch n := v.(type) {
	case ir.IRFloat:
		return float32(n), nil
	case ir.IRInt:
		return float32(n), nil
	}
	return 0, fmt.Errorf("param %s: want number, got %T", key, v)
}

func intParam(key string, v ir.IRValue) (int, error) {
	if n, ok := v.(ir.IRInt); ok {
		return int(n), nil
	}
	return 0, fmt.Errorf("param %s: want integer, got %T", key, v)
}

func stringsParam(key string, v ir.IRValue) ([]string, error) {
	switch s := v.(type) {
	case ir.IRString:
		return []string{string(s)}, nil
	case ir.IRArray:
		out := make([]string, 0, len(s))
		for _, elem := range s {
			str, ok := elem.(ir.IRString)
			if !ok {
				return nil, fmt.Errorf("param %s: want strings, got %T", key, elem)
			}
			out = append(out, string(str))
		}
		return out, nil
	}
	return nil, fmt.Errorf("param %s: want string or list, got %T", key, v)
}
