// Package querysql compiles queryir queries to parameterized SQLite SQL.
package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/provenant/internal/ir"
	"github.com/roach88/provenant/internal/queryir"
)

// SQLCompiler compiles QueryIR to parameterized SQL for SQLite.
//
// Every query is ordered by created_at with id as tiebreaker so results are
// stable across runs. Values are always bound as parameters, never
// interpolated.
type SQLCompiler struct{}

// NewSQLCompiler creates a new SQLCompiler.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{}
}

// Compile converts a query to (sql, params).
// The query is validated first; invalid filters are rejected.
func (c *SQLCompiler) Compile(q queryir.Query) (string, []any, error) {
	switch query := q.(type) {
	case queryir.Select:
		return c.compileSelect(query)
	case *queryir.Select:
		return c.compileSelect(*query)
	case nil:
		return "", nil, fmt.Errorf("cannot compile nil query")
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

// CompileFilter compiles only the WHERE fragment of a predicate. A nil
// predicate compiles to "1 = 1".
func (c *SQLCompiler) CompileFilter(p queryir.Predicate) (string, []any, error) {
	if err := queryir.Validate(p); err != nil {
		return "", nil, fmt.Errorf("invalid filter: %w", err)
	}
	return c.compilePredicate(p)
}

func (c *SQLCompiler) compileSelect(q queryir.Select) (string, []any, error) {
	if q.From == "" {
		return "", nil, fmt.Errorf("select: empty source")
	}
	if len(q.Columns) == 0 {
		return "", nil, fmt.Errorf("select: explicit columns required")
	}

	where, params, err := c.CompileFilter(q.Filter)
	if err != nil {
		return "", nil, err
	}

	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s",
		strings.Join(q.Columns, ", "),
		q.From,
		where,
		stableOrderKey,
	)
	return sql, params, nil
}

// stableOrderKey is appended to every query.
const stableOrderKey = "created_at ASC, id COLLATE BINARY ASC"

func (c *SQLCompiler) compilePredicate(p queryir.Predicate) (string, []any, error) {
	if p == nil {
		return "1 = 1", nil, nil
	}

	switch pred := p.(type) {
	case queryir.Equals:
		return c.compileEquals(pred)
	case *queryir.Equals:
		return c.compileEquals(*pred)
	case queryir.CreatedBetween:
		return c.compileCreatedBetween(pred)
	case *queryir.CreatedBetween:
		return c.compileCreatedBetween(*pred)
	case queryir.And:
		return c.compileAnd(pred)
	case *queryir.And:
		return c.compileAnd(*pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func (c *SQLCompiler) compileEquals(eq queryir.Equals) (string, []any, error) {
	param, err := irValueToParam(eq.Value)
	if err != nil {
		return "", nil, fmt.Errorf("convert value: %w", err)
	}

	if key, ok := queryir.IsKwargsField(eq.Field); ok {
		return "json_extract(kwargs, ?) = ?", []any{"$." + key, param}, nil
	}
	if eq.Field == queryir.FieldFailed {
		return "(error <> '') = ?", []any{param}, nil
	}
	return fmt.Sprintf("%s = ?", eq.Field), []any{param}, nil
}

func (c *SQLCompiler) compileCreatedBetween(cb queryir.CreatedBetween) (string, []any, error) {
	var parts []string
	var params []any
	if !cb.From.IsZero() {
		parts = append(parts, "created_at >= ?")
		params = append(params, cb.From.UnixNano())
	}
	if !cb.To.IsZero() {
		parts = append(parts, "created_at < ?")
		params = append(params, cb.To.UnixNano())
	}
	if len(parts) == 0 {
		return "1 = 1", nil, nil
	}
	return strings.Join(parts, " AND "), params, nil
}

func (c *SQLCompiler) compileAnd(and queryir.And) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil
	}

	var sqlParts []string
	var allParams []any
	for _, pred := range and.Predicates {
		sql, params, err := c.compilePredicate(pred)
		if err != nil {
			return "", nil, err
		}
		sqlParts = append(sqlParts, "("+sql+")")
		allParams = append(allParams, params...)
	}
	return strings.Join(sqlParts, " AND "), allParams, nil
}

// irValueToParam converts a scalar IRValue to a driver parameter.
func irValueToParam(v ir.IRValue) (any, error) {
	switch val := v.(type) {
	case ir.IRString:
		return string(val), nil
	case ir.IRInt:
		return int64(val), nil
	case ir.IRFloat:
		return float64(val), nil
	case ir.IRBool:
		return bool(val), nil
	default:
		return nil, fmt.Errorf("unsupported IRValue type for SQL parameter: %T", v)
	}
}
