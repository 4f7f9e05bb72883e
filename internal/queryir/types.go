package queryir

import (
	"time"

	"github.com/roach88/provenant/internal/ir"
)

// Query is a query node. Sealed to this package.
type Query interface {
	queryNode()
}

// Predicate is a filter condition. Sealed to this package.
type Predicate interface {
	predicateNode()
}

// Select reads rows of one source, optionally filtered.
type Select struct {
	From    string    // Source table (e.g., "invocations")
	Columns []string  // Explicit column list, in output order
	Filter  Predicate // WHERE conditions (nil = no filter)
}

func (Select) queryNode() {}

// Field names accepted by Equals.
const (
	FieldID            = "id"
	FieldLMPID         = "lmp_id"
	FieldStateCacheKey = "state_cache_key"
	FieldError         = "error"
	FieldFailed        = "failed"

	// KwargsPrefix selects a keyword argument: "kwargs.<key>".
	KwargsPrefix = "kwargs."
)

// Equals matches rows where Field equals Value.
//
// Example: Equals{Field: "kwargs.name", Value: ir.IRString("Ada")}
type Equals struct {
	Field string     // Column name or "kwargs.<key>"
	Value ir.IRValue // Scalar literal
}

func (Equals) predicateNode() {}

// CreatedBetween matches rows created in [From, To). A zero bound is open.
type CreatedBetween struct {
	From time.Time
	To   time.Time
}

func (CreatedBetween) predicateNode() {}

// And is a conjunction. Empty And is vacuously true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// All combines predicates, dropping nils. Returns nil when nothing remains.
func All(preds ...Predicate) Predicate {
	var out []Predicate
	for _, p := range preds {
		if p != nil {
			out = append(out, p)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	default:
		return And{Predicates: out}
	}
}
