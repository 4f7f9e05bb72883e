package ir

import "time"

// Kind tags the variant of a trackable unit.
type Kind string

const (
	// KindFunc is a plain tracked function.
	KindFunc Kind = "func"

	// KindPrompt is a prompt-producing function that terminates in a model call.
	KindPrompt Kind = "prompt"

	// KindTool is a function exposed to models as a tool.
	KindTool Kind = "tool"
)

// ValidKinds defines allowed unit kinds.
var ValidKinds = map[Kind]bool{
	KindFunc:   true,
	KindPrompt: true,
	KindTool:   true,
}

// LMP is one stored version of a language model program.
// Rows are append-only: a changed closure produces a new row, never an update.
type LMP struct {
	ID            string    `json:"lmp_id"`  // Content-addressed (VersionID)
	Name          string    `json:"name"`    // Fully-qualified name
	Version       int64     `json:"version"` // 1 + max(version) for Name at creation
	Source        string    `json:"source"`  // Lexically closured source
	Dependencies  []string  `json:"dependencies"`
	Kind          Kind      `json:"kind"`
	IsLM          bool      `json:"is_lm"`
	Model         string    `json:"model,omitempty"`
	APIParams     IRObject  `json:"api_params"`
	FreeVars      IRObject  `json:"free_vars"`   // Initial snapshot
	GlobalVars    IRObject  `json:"global_vars"` // Initial snapshot
	CommitMessage string    `json:"commit_message,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Usage carries token counts reported by the model-call layer.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
}

// Total returns prompt plus completion tokens.
func (u Usage) Total() int64 {
	return u.PromptTokens + u.CompletionTokens
}

// Invocation is the immutable record of one call to a tracked unit.
type Invocation struct {
	ID            string        `json:"id"` // UUIDv7
	LMPID         string        `json:"lmp_id"`
	Args          IRArray       `json:"args"`
	Kwargs        IRObject      `json:"kwargs"`
	FreeVars      IRObject      `json:"free_vars"`   // Call-time snapshot
	GlobalVars    IRObject      `json:"global_vars"` // Call-time snapshot
	Result        IRValue       `json:"result"`
	Error         string        `json:"error,omitempty"` // Set on failure records
	Latency       time.Duration `json:"latency"`
	Usage         Usage         `json:"usage"`
	StateCacheKey string        `json:"state_cache_key"`
	CreatedAt     time.Time     `json:"created_at"`
	Consumes      []string      `json:"consumes"` // Invocations whose outputs fed this one
}

// Failed reports whether this is a failure record.
func (inv Invocation) Failed() bool {
	return inv.Error != ""
}
