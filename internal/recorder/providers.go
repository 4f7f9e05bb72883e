package recorder

import (
	"context"
	"sync"

	"github.com/roach88/provenant/internal/ir"
	"github.com/roach88/provenant/internal/origin"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat message produced by a prompt unit. Content keeps the
// origins of any tracked outputs interpolated into it.
type Message struct {
	Role    string        `json:"role"`
	Content origin.String `json:"content"`
}

// System returns a system message.
func System(content origin.String) Message {
	return Message{Role: RoleSystem, Content: content}
}

// User returns a user message.
func User(content origin.String) Message {
	return Message{Role: RoleUser, Content: content}
}

// Assistant returns an assistant message.
func Assistant(content origin.String) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// ModelRequest is what a prompt unit asks of a model client.
type ModelRequest struct {
	Model    string
	Messages []Message
	Params   ir.IRObject
}

// ModelResponse is a model client's answer.
type ModelResponse struct {
	Text  string
	Usage ir.Usage
}

// ModelClient performs model calls. The recorder never speaks a provider
// protocol itself.
type ModelClient interface {
	Complete(ctx context.Context, req ModelRequest) (ModelResponse, error)
}

// ModelClientFunc adapts a function to ModelClient.
type ModelClientFunc func(ctx context.Context, req ModelRequest) (ModelResponse, error)

// Complete calls f.
func (f ModelClientFunc) Complete(ctx context.Context, req ModelRequest) (ModelResponse, error) {
	return f(ctx, req)
}

// Providers resolves model names to clients. It is passed to the recorder
// explicitly; there is no process-wide registry.
type Providers struct {
	mu       sync.RWMutex
	byModel  map[string]ModelClient
	fallback ModelClient
}

// NewProviders returns a table whose default client is fallback (may be nil).
func NewProviders(fallback ModelClient) *Providers {
	return &Providers{
		byModel:  make(map[string]ModelClient),
		fallback: fallback,
	}
}

// Register binds model to client and returns p for chaining.
func (p *Providers) Register(model string, client ModelClient) *Providers {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byModel[model] = client
	return p
}

// ClientFor returns the client registered for model, falling back to the
// default client.
func (p *Providers) ClientFor(model string) (ModelClient, bool) {
	if p == nil {
		return nil, false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if c, ok := p.byModel[model]; ok {
		return c, true
	}
	return p.fallback, p.fallback != nil
}
