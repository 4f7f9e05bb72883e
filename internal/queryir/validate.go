package queryir

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/provenant/internal/ir"
)

var columns = map[string]bool{
	FieldID:            true,
	FieldLMPID:         true,
	FieldStateCacheKey: true,
	FieldError:         true,
	FieldFailed:        true,
}

var kwargKey = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks that a predicate only names known fields and compares them
// against scalar values. A nil predicate is valid.
//
// All problems are reported together, joined with errors.Join.
func Validate(p Predicate) error {
	v := &validator{}
	v.validatePredicate(p)
	return errors.Join(v.errs...)
}

// IsKwargsField reports whether field selects a keyword argument, returning
// the key.
func IsKwargsField(field string) (string, bool) {
	key, ok := strings.CutPrefix(field, KwargsPrefix)
	if !ok || !kwargKey.MatchString(key) {
		return "", false
	}
	return key, true
}

// validator accumulates errors during traversal.
type validator struct {
	errs []error
}

func (v *validator) addError(format string, args ...any) {
	v.errs = append(v.errs, fmt.Errorf(format, args...))
}

func (v *validator) validatePredicate(p Predicate) {
	if p == nil {
		return
	}

	switch pred := p.(type) {
	case Equals:
		v.validateEquals(pred)
	case *Equals:
		v.validateEquals(*pred)
	case CreatedBetween:
		v.validateCreatedBetween(pred)
	case *CreatedBetween:
		v.validateCreatedBetween(*pred)
	case And:
		v.validateAnd(pred)
	case *And:
		v.validateAnd(*pred)
	default:
		v.addError("unknown predicate type: %T", p)
	}
}

func (v *validator) validateEquals(eq Equals) {
	if eq.Field == "" {
		v.addError("equals: empty field")
		return
	}
	if _, ok := IsKwargsField(eq.Field); !ok && !columns[eq.Field] {
		v.addError("equals: unknown field %q", eq.Field)
	}

	switch eq.Value.(type) {
	case ir.IRString, ir.IRInt, ir.IRFloat, ir.IRBool:
	case nil, ir.IRNull:
		v.addError("equals: field %q compared to null", eq.Field)
	default:
		v.addError("equals: field %q compared to non-scalar %T", eq.Field, eq.Value)
	}

	if eq.Field == FieldFailed {
		if _, ok := eq.Value.(ir.IRBool); !ok {
			v.addError("equals: field %q takes a bool", eq.Field)
		}
	}
}

func (v *validator) validateCreatedBetween(cb CreatedBetween) {
	if !cb.From.IsZero() && !cb.To.IsZero() && !cb.From.Before(cb.To) {
		v.addError("created between: from %s is not before to %s", cb.From, cb.To)
	}
}

func (v *validator) validateAnd(and And) {
	for _, sub := range and.Predicates {
		v.validatePredicate(sub)
	}
}
