// Package origin tracks which invocations produced a piece of text.
//
// A String carries its text plus the set of invocation ids whose outputs
// contributed to it. Combining strings unions their origins; slicing keeps
// them. Literals start with an empty set. The recorder reads these sets when a
// String is passed into another tracked call to build consumption edges.
package origin

import (
	"fmt"
	"slices"
	"strings"
)

// Set is a de-duplicated set of invocation ids.
// The zero value is empty and ready to use.
type Set map[string]struct{}

// NewSet builds a set from ids. Empty ids are ignored.
func NewSet(ids ...string) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Add inserts id. Empty ids are ignored.
func (s Set) Add(id string) {
	if id == "" {
		return
	}
	s[id] = struct{}{}
}

// Union adds every id of other into s.
func (s Set) Union(other Set) {
	for id := range other {
		s[id] = struct{}{}
	}
}

// Has reports whether id is in the set.
func (s Set) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the ids in ascending order. Never nil.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// String is text tagged with the ids of the invocations it was derived from.
type String struct {
	text    string
	origins []string // sorted, unique
}

// Plain wraps a literal. Its origin set is empty.
func Plain(text string) String {
	return String{text: text, origins: []string{}}
}

// Tag returns text attributed to the given invocation ids.
func Tag(text string, ids ...string) String {
	return String{text: text, origins: NewSet(ids...).Sorted()}
}

// Retag replaces the origins of s with a single invocation id.
// Returned outputs of a tracked call are retagged with that call's id.
func Retag(s String, id string) String {
	return Tag(s.text, id)
}

// Text returns the underlying text.
func (s String) Text() string { return s.text }

// String implements fmt.Stringer.
func (s String) String() string { return s.text }

// Origins returns the sorted origin ids. Never nil.
func (s String) Origins() []string {
	if s.origins == nil {
		return []string{}
	}
	return slices.Clone(s.origins)
}

// OriginSet returns the origins as a Set.
func (s String) OriginSet() Set {
	return NewSet(s.origins...)
}

// Len returns the length of the text in bytes.
func (s String) Len() int { return len(s.text) }

// Slice returns s.text[i:j] keeping the origins of s.
func (s String) Slice(i, j int) String {
	return String{text: s.text[i:j], origins: s.Origins()}
}

// Concat joins parts into one String whose origins are the union of all parts.
func Concat(parts ...String) String {
	var b strings.Builder
	set := Set{}
	for _, p := range parts {
		b.WriteString(p.text)
		set.Union(p.OriginSet())
	}
	return String{text: b.String(), origins: set.Sorted()}
}

// Join is strings.Join for tagged strings.
func Join(parts []String, sep string) String {
	var b strings.Builder
	set := Set{}
	for i, p := range parts {
		if i > 0 {
			b.WriteString(sep)
		}
		b.WriteString(p.text)
		set.Union(p.OriginSet())
	}
	return String{text: b.String(), origins: set.Sorted()}
}

// Sprintf formats like fmt.Sprintf. Every String argument contributes its
// origins to the result and is formatted as its text.
func Sprintf(format string, args ...any) String {
	set := Set{}
	plain := make([]any, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case String:
			set.Union(v.OriginSet())
			plain[i] = v.text
		case *String:
			if v != nil {
				set.Union(v.OriginSet())
				plain[i] = v.text
			}
		default:
			plain[i] = a
		}
	}
	return String{text: fmt.Sprintf(format, plain...), origins: set.Sorted()}
}

// MarshalText renders only the text. Origins travel through the recorder, not
// through serialized payloads.
func (s String) MarshalText() ([]byte, error) {
	return []byte(s.text), nil
}

// UnmarshalText reads a literal with no origins.
func (s *String) UnmarshalText(data []byte) error {
	*s = Plain(string(data))
	return nil
}
