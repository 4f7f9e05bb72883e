package queryir

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/provenant/internal/ir"
)

func TestValidate_Valid(t *testing.T) {
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		pred Predicate
	}{
		{"nil", nil},
		{"column", Equals{Field: FieldLMPID, Value: ir.IRString("abc")}},
		{"kwargs", &Equals{Field: "kwargs.name", Value: ir.IRString("Ada")}},
		{"kwargs int", Equals{Field: "kwargs.count", Value: ir.IRInt(3)}},
		{"failed", Equals{Field: FieldFailed, Value: ir.IRBool(true)}},
		{"open window", CreatedBetween{From: from}},
		{"window", CreatedBetween{From: from, To: from.Add(time.Hour)}},
		{"empty and", And{}},
		{"nested", And{Predicates: []Predicate{
			Equals{Field: FieldID, Value: ir.IRString("x")},
			&And{Predicates: []Predicate{CreatedBetween{To: from}}},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, Validate(tt.pred))
		})
	}
}

func TestValidate_Invalid(t *testing.T) {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		pred    Predicate
		message string
	}{
		{"empty field", Equals{Value: ir.IRInt(1)}, "empty field"},
		{"unknown column", Equals{Field: "source", Value: ir.IRString("x")}, `unknown field "source"`},
		{"bad kwargs key", Equals{Field: "kwargs.a'b", Value: ir.IRString("x")}, "unknown field"},
		{"null", Equals{Field: FieldID, Value: ir.IRNull{}}, "null"},
		{"object", Equals{Field: FieldID, Value: ir.IRObject{}}, "non-scalar"},
		{"failed not bool", Equals{Field: FieldFailed, Value: ir.IRInt(1)}, "takes a bool"},
		{"inverted window", CreatedBetween{From: at, To: at}, "not before"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.pred)
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.message)
			}
		})
	}
}

func TestValidate_ReportsAllErrors(t *testing.T) {
	err := Validate(And{Predicates: []Predicate{
		Equals{Field: "nope", Value: ir.IRInt(1)},
		Equals{Field: "also_nope", Value: ir.IRInt(1)},
	}})

	assert.ErrorContains(t, err, `"nope"`)
	assert.ErrorContains(t, err, `"also_nope"`)
}

func TestIsKwargsField(t *testing.T) {
	key, ok := IsKwargsField("kwargs.user_name")
	assert.True(t, ok)
	assert.Equal(t, "user_name", key)

	_, ok = IsKwargsField("kwargs.")
	assert.False(t, ok)

	_, ok = IsKwargsField("lmp_id")
	assert.False(t, ok)
}

func TestAll(t *testing.T) {
	eq := Equals{Field: FieldID, Value: ir.IRString("x")}

	assert.Nil(t, All())
	assert.Nil(t, All(nil, nil))
	assert.Equal(t, eq, All(nil, eq))
	assert.Equal(t, And{Predicates: []Predicate{eq, eq}}, All(eq, nil, eq))
}
