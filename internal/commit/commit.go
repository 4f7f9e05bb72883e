// Package commit generates short commit messages for new versions.
//
// A message is derived from a unified diff of the previous and the new
// closure source. The diff is summarized by an external Summarizer; the
// messenger only shapes its output. Every failure yields an empty message so
// that registering a version never depends on the summarizer.
package commit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/sourcegraph/go-diff/diff"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/provenant/internal/closure"
)

// Limits applied to every generated message.
const (
	MaxTitleRunes       = 120
	MaxBullets          = 6
	DefaultMaxDiffLines = 400
)

// Stats counts changed lines in a diff.
type Stats struct {
	Added   int
	Removed int
}

// Request is what a Summarizer is asked to describe.
type Request struct {
	Diff  string
	Stats Stats
	// Truncated is set when Diff was cut to the configured line budget.
	Truncated bool
}

// Summary is a summarizer's answer: one sentence plus optional bullets.
type Summary struct {
	Title   string
	Bullets []string
}

// Summarizer describes what changed in a diff.
type Summarizer interface {
	Summarize(ctx context.Context, req Request) (Summary, error)
}

// SummarizerFunc adapts a function to Summarizer.
type SummarizerFunc func(ctx context.Context, req Request) (Summary, error)

// Summarize calls f.
func (f SummarizerFunc) Summarize(ctx context.Context, req Request) (Summary, error) {
	return f(ctx, req)
}

// Messenger produces commit messages. A nil *Messenger is valid and disabled.
type Messenger struct {
	summarizer   Summarizer
	logger       *slog.Logger
	enabled      bool
	maxDiffLines int
}

// Option configures a Messenger.
type Option func(*Messenger)

// WithLogger sets the logger for summarizer failures.
func WithLogger(l *slog.Logger) Option {
	return func(m *Messenger) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithEnabled turns message generation on or off.
func WithEnabled(enabled bool) Option {
	return func(m *Messenger) {
		m.enabled = enabled
	}
}

// WithMaxDiffLines bounds the diff sent to the summarizer. Zero or less
// means DefaultMaxDiffLines.
func WithMaxDiffLines(n int) Option {
	return func(m *Messenger) {
		if n > 0 {
			m.maxDiffLines = n
		}
	}
}

// New returns an enabled Messenger backed by s.
func New(s Summarizer, opts ...Option) *Messenger {
	m := &Messenger{
		summarizer:   s,
		logger:       slog.Default(),
		enabled:      true,
		maxDiffLines: DefaultMaxDiffLines,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Enabled reports whether Message can produce anything.
func (m *Messenger) Enabled() bool {
	return m != nil && m.enabled && m.summarizer != nil
}

// Message describes the change from oldSource to newSource. It returns ""
// when disabled, for a first version (oldSource empty), when the sources
// differ only in closure markers, or when the summarizer fails.
func (m *Messenger) Message(ctx context.Context, oldSource, newSource string) string {
	if !m.Enabled() || oldSource == "" {
		return ""
	}

	text, err := Diff(oldSource, newSource)
	if err != nil {
		m.logger.Warn("commit diff failed", "error", err)
		return ""
	}
	if text == "" {
		return ""
	}

	stats, err := DiffStats(text)
	if err != nil {
		m.logger.Warn("commit diff unreadable", "error", err)
		return ""
	}

	req := Request{Diff: text, Stats: stats}
	req.Diff, req.Truncated = truncateLines(text, m.maxDiffLines)

	summary, err := m.summarizer.Summarize(ctx, req)
	if err != nil {
		m.logger.Warn("commit summarizer failed", "error", err)
		return ""
	}
	return Format(summary)
}

// Diff returns a unified diff of two closure sources with closure markers
// stripped. Identical inputs produce "".
func Diff(oldSource, newSource string) (string, error) {
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(closure.StripMarkers(oldSource)),
		B:        difflib.SplitLines(closure.StripMarkers(newSource)),
		FromFile: "a/lmp",
		ToFile:   "b/lmp",
		Context:  3,
	})
}

// DiffStats counts added and removed lines of a single-file unified diff.
func DiffStats(unified string) (Stats, error) {
	fd, err := diff.ParseFileDiff([]byte(unified))
	if err != nil {
		return Stats{}, fmt.Errorf("parse diff: %w", err)
	}

	var st Stats
	for _, hunk := range fd.Hunks {
		for _, line := range strings.Split(string(hunk.Body), "\n") {
			switch {
			case strings.HasPrefix(line, "+"):
				st.Added++
			case strings.HasPrefix(line, "-"):
				st.Removed++
			}
		}
	}
	return st, nil
}

func truncateLines(s string, max int) (string, bool) {
	lines := strings.SplitAfter(s, "\n")
	if len(lines) <= max {
		return s, false
	}
	return strings.Join(lines[:max], ""), true
}

// Format renders a summary as a commit message: the title on the first line,
// then a blank line and "- " bullets. Text is NFC normalized, titles are cut
// to MaxTitleRunes and at most MaxBullets non-empty bullets are kept.
func Format(s Summary) string {
	title := norm.NFC.String(firstLine(s.Title))
	if title == "" {
		return ""
	}
	title = truncateRunes(title, MaxTitleRunes)

	var bullets []string
	for _, b := range s.Bullets {
		b = norm.NFC.String(strings.TrimSpace(trimBullet(b)))
		if b == "" {
			continue
		}
		bullets = append(bullets, "- "+b)
		if len(bullets) == MaxBullets {
			break
		}
	}

	if len(bullets) == 0 {
		return title
	}
	return title + "\n\n" + strings.Join(bullets, "\n")
}

// ParseSummary splits free-form model output into a Summary. The first
// non-bullet line is the title; lines starting with "-", "*" or "•" are
// bullets.
func ParseSummary(text string) Summary {
	var s Summary
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if isBullet(line) {
			s.Bullets = append(s.Bullets, strings.TrimSpace(trimBullet(line)))
			continue
		}
		if s.Title == "" {
			s.Title = line
		}
	}
	return s
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(trimBullet(strings.TrimSpace(line))); line != "" {
			return line
		}
	}
	return ""
}

func isBullet(line string) bool {
	return strings.HasPrefix(line, "-") || strings.HasPrefix(line, "*") || strings.HasPrefix(line, "•")
}

func trimBullet(line string) string {
	for _, p := range []string{"-", "*", "•"} {
		if strings.HasPrefix(line, p) {
			return line[len(p):]
		}
	}
	return line
}

// truncateRunes cuts s to at most max runes including the ellipsis, never
// inside a combining sequence.
func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	cut := 0
	for range max - 1 {
		_, size := utf8.DecodeRuneInString(s[cut:])
		cut += size
	}
	for cut > 0 && !norm.NFC.PropertiesString(s[cut:]).BoundaryBefore() {
		_, size := utf8.DecodeLastRuneInString(s[:cut])
		cut -= size
	}
	return strings.TrimSpace(s[:cut]) + "…"
}
