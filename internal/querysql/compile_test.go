package querysql

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/provenant/internal/ir"
	"github.com/roach88/provenant/internal/queryir"
)

func TestCompile_SimpleSelect(t *testing.T) {
	compiler := NewSQLCompiler()

	query := queryir.Select{
		From:    "invocations",
		Columns: []string{"id", "lmp_id"},
		Filter: queryir.Equals{
			Field: queryir.FieldLMPID,
			Value: ir.IRString("abc"),
		},
	}

	sql, params, err := compiler.Compile(query)
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT id, lmp_id FROM invocations WHERE lmp_id = ? ORDER BY created_at ASC, id COLLATE BINARY ASC",
		sql)
	assert.NotContains(t, sql, "abc")
	assert.Equal(t, []any{"abc"}, params)
}

func TestCompile_NoFilter(t *testing.T) {
	sql, params, err := NewSQLCompiler().Compile(&queryir.Select{
		From:    "invocations",
		Columns: []string{"id"},
	})
	require.NoError(t, err)

	assert.Contains(t, sql, "WHERE 1 = 1")
	assert.Contains(t, sql, "ORDER BY")
	assert.Empty(t, params)
}

func TestCompile_KwargsUsesJSONExtract(t *testing.T) {
	where, params, err := NewSQLCompiler().CompileFilter(queryir.Equals{
		Field: "kwargs.name",
		Value: ir.IRString("Ada"),
	})
	require.NoError(t, err)

	assert.Equal(t, "json_extract(kwargs, ?) = ?", where)
	assert.Equal(t, []any{"$.name", "Ada"}, params)
}

func TestCompile_Failed(t *testing.T) {
	where, params, err := NewSQLCompiler().CompileFilter(queryir.Equals{
		Field: queryir.FieldFailed,
		Value: ir.IRBool(true),
	})
	require.NoError(t, err)

	assert.Equal(t, "(error <> '') = ?", where)
	assert.Equal(t, []any{true}, params)
}

func TestCompile_CreatedBetween(t *testing.T) {
	from := time.Unix(100, 0)
	to := time.Unix(200, 0)

	where, params, err := NewSQLCompiler().CompileFilter(queryir.CreatedBetween{From: from, To: to})
	require.NoError(t, err)
	assert.Equal(t, "created_at >= ? AND created_at < ?", where)
	assert.Equal(t, []any{from.UnixNano(), to.UnixNano()}, params)

	where, params, err = NewSQLCompiler().CompileFilter(queryir.CreatedBetween{To: to})
	require.NoError(t, err)
	assert.Equal(t, "created_at < ?", where)
	assert.Equal(t, []any{to.UnixNano()}, params)
}

func TestCompile_AndParamsInOrder(t *testing.T) {
	where, params, err := NewSQLCompiler().CompileFilter(queryir.And{Predicates: []queryir.Predicate{
		queryir.Equals{Field: queryir.FieldLMPID, Value: ir.IRString("abc")},
		queryir.Equals{Field: "kwargs.count", Value: ir.IRInt(2)},
		queryir.CreatedBetween{From: time.Unix(0, 5)},
	}})
	require.NoError(t, err)

	assert.Equal(t, "(lmp_id = ?) AND (json_extract(kwargs, ?) = ?) AND (created_at >= ?)", where)
	assert.Equal(t, []any{"abc", "$.count", int64(2), int64(5)}, params)
}

func TestCompile_RejectsInvalidFilter(t *testing.T) {
	_, _, err := NewSQLCompiler().CompileFilter(queryir.Equals{
		Field: "1=1; DROP TABLE invocations; --",
		Value: ir.IRString("x"),
	})
	assert.ErrorContains(t, err, "invalid filter")
}

func TestCompile_RequiresColumnsAndSource(t *testing.T) {
	_, _, err := NewSQLCompiler().Compile(queryir.Select{From: "invocations"})
	assert.Error(t, err)

	_, _, err = NewSQLCompiler().Compile(queryir.Select{Columns: []string{"id"}})
	assert.Error(t, err)

	_, _, err = NewSQLCompiler().Compile(nil)
	assert.Error(t, err)
}
