package cli

import (
	"strings"
	"time"

	"github.com/roach88/provenant/internal/ir"
)

// VersionView is one stored version as printed by the CLI.
type VersionView struct {
	LMPID         string         `json:"lmp_id"`
	Name          string         `json:"name"`
	Version       int64          `json:"version"`
	Kind          ir.Kind        `json:"kind"`
	IsLM          bool           `json:"is_lm"`
	Model         string         `json:"model,omitempty"`
	CommitMessage string         `json:"commit_message,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	Invocations   *int64         `json:"invocations,omitempty"`
	Uses          []string       `json:"uses,omitempty"`
	Dependencies  []string       `json:"dependencies,omitempty"`
	APIParams     map[string]any `json:"api_params,omitempty"`
	Source        string         `json:"source,omitempty"`
}

func newVersionView(l ir.LMP) VersionView {
	v := VersionView{
		LMPID:         l.ID,
		Name:          l.Name,
		Version:       l.Version,
		Kind:          l.Kind,
		IsLM:          l.IsLM,
		Model:         l.Model,
		CommitMessage: l.CommitMessage,
		CreatedAt:     l.CreatedAt,
	}
	if len(l.APIParams) > 0 {
		v.APIParams, _ = ir.ToInterface(l.APIParams).(map[string]any)
	}
	return v
}

// InvocationView is one stored invocation as printed by the CLI.
type InvocationView struct {
	ID        string         `json:"id"`
	LMPID     string         `json:"lmp_id"`
	Args      []any          `json:"args"`
	Kwargs    map[string]any `json:"kwargs"`
	Result    any            `json:"result"`
	Error     string         `json:"error,omitempty"`
	LatencyMS float64        `json:"latency_ms"`
	Usage     ir.Usage       `json:"usage"`
	CreatedAt time.Time      `json:"created_at"`
	Consumes  []string       `json:"consumes"`

	args   ir.IRArray
	kwargs ir.IRObject
	result ir.IRValue
}

func newInvocationView(inv ir.Invocation) InvocationView {
	args, _ := ir.ToInterface(inv.Args).([]any)
	kwargs, _ := ir.ToInterface(inv.Kwargs).(map[string]any)
	if args == nil {
		args = []any{}
	}
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	consumes := inv.Consumes
	if consumes == nil {
		consumes = []string{}
	}
	return InvocationView{
		ID:        inv.ID,
		LMPID:     inv.LMPID,
		Args:      args,
		Kwargs:    kwargs,
		Result:    ir.ToInterface(inv.Result),
		Error:     inv.Error,
		LatencyMS: float64(inv.Latency.Microseconds()) / 1000,
		Usage:     inv.Usage,
		CreatedAt: inv.CreatedAt,
		Consumes:  consumes,
		args:      inv.Args,
		kwargs:    inv.Kwargs,
		result:    inv.Result,
	}
}

// inputs renders the canonical inputs on one line: positional arguments
// first, then keyword arguments.
func (v InvocationView) inputs() string {
	var parts []string
	for _, a := range v.args {
		parts = append(parts, compact(a))
	}
	for _, k := range v.kwargs.SortedKeys() {
		parts = append(parts, k+"="+compact(v.kwargs[k]))
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// compact renders an IR value as canonical JSON, shortened for display.
func compact(v ir.IRValue) string {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return "?"
	}
	s := string(data)
	if len(s) > 60 {
		s = s[:57] + "..."
	}
	return s
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}

// firstLine returns the first line of a commit message.
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

const timeLayout = "2006-01-02 15:04:05.000"
