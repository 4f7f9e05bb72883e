package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/provenant/internal/ir"
	"github.com/roach88/provenant/internal/queryir"
)

const selectLMP = `
	SELECT lmp_id, name, version, source, dependencies, kind, is_lm, model,
	       api_params, free_vars, global_vars, commit_message, created_at
	FROM lmps`

var invocationColumns = []string{
	"id", "lmp_id", "args", "kwargs", "free_vars", "global_vars", "result", "error",
	"latency_ns", "prompt_tokens", "completion_tokens", "state_cache_key", "created_at",
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// GetLMP returns the version with the given id, or ErrNotFound.
func (s *Store) GetLMP(ctx context.Context, lmpID string) (ir.LMP, error) {
	return scanLMP(s.db.QueryRowContext(ctx, selectLMP+` WHERE lmp_id = ?`, lmpID))
}

// GetLatest returns the highest version registered under name, or ErrNotFound.
func (s *Store) GetLatest(ctx context.Context, name string) (ir.LMP, error) {
	return scanLMP(s.db.QueryRowContext(ctx, selectLMP+`
		WHERE name = ?
		ORDER BY version DESC
		LIMIT 1
	`, name))
}

// GetVersionsByName returns every version of name in ascending version order.
// Returns an empty slice (not nil) if the name is unknown.
func (s *Store) GetVersionsByName(ctx context.Context, name string) ([]ir.LMP, error) {
	return s.queryLMPs(ctx, selectLMP+`
		WHERE name = ?
		ORDER BY version ASC
	`, name)
}

// ListLatest returns the latest version of every name, ordered by name.
func (s *Store) ListLatest(ctx context.Context) ([]ir.LMP, error) {
	return s.queryLMPs(ctx, selectLMP+` AS l
		WHERE version = (SELECT MAX(version) FROM lmps WHERE name = l.name)
		ORDER BY name COLLATE BINARY ASC
	`)
}

// GetUses returns the lmp_ids a version depends on, sorted.
func (s *Store) GetUses(ctx context.Context, lmpID string) ([]string, error) {
	return s.queryIDs(ctx, `
		SELECT uses_id FROM lmp_uses
		WHERE lmp_id = ?
		ORDER BY uses_id COLLATE BINARY ASC
	`, lmpID)
}

func (s *Store) queryLMPs(ctx context.Context, query string, args ...any) ([]ir.LMP, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query lmps: %w", err)
	}
	defer rows.Close()

	lmps := []ir.LMP{}
	for rows.Next() {
		lmp, err := scanLMP(rows)
		if err != nil {
			return nil, err
		}
		lmps = append(lmps, lmp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lmps: %w", err)
	}
	return lmps, nil
}

func scanLMP(row scanner) (ir.LMP, error) {
	var (
		lmp                                          ir.LMP
		kind, deps, apiParams, freeVars, globalVars string
		createdAt                                    int64
	)
	err := row.Scan(
		&lmp.ID,
		&lmp.Name,
		&lmp.Version,
		&lmp.Source,
		&deps,
		&kind,
		&lmp.IsLM,
		&lmp.Model,
		&apiParams,
		&freeVars,
		&globalVars,
		&lmp.CommitMessage,
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.LMP{}, ErrNotFound
	}
	if err != nil {
		return ir.LMP{}, fmt.Errorf("scan lmp: %w", err)
	}

	lmp.Kind = ir.Kind(kind)
	lmp.CreatedAt = fromNanos(createdAt)
	if lmp.Dependencies, err = unmarshalStrings(deps); err != nil {
		return ir.LMP{}, err
	}
	if lmp.APIParams, err = unmarshalObject(apiParams); err != nil {
		return ir.LMP{}, err
	}
	if lmp.FreeVars, err = unmarshalObject(freeVars); err != nil {
		return ir.LMP{}, err
	}
	if lmp.GlobalVars, err = unmarshalObject(globalVars); err != nil {
		return ir.LMP{}, err
	}
	return lmp, nil
}

// GetInvocation returns one invocation with its consumption edges, or
// ErrNotFound.
func (s *Store) GetInvocation(ctx context.Context, id string) (ir.Invocation, error) {
	invs, err := s.queryInvocations(ctx, queryir.Equals{Field: queryir.FieldID, Value: ir.IRString(id)}, 0)
	if err != nil {
		return ir.Invocation{}, err
	}
	if len(invs) == 0 {
		return ir.Invocation{}, ErrNotFound
	}
	return invs[0], nil
}

// GetInvocations returns the invocations of a version that match filter,
// ordered by creation time. An empty lmpID searches all versions; a nil
// filter matches everything.
func (s *Store) GetInvocations(ctx context.Context, lmpID string, filter queryir.Predicate) ([]ir.Invocation, error) {
	var byLMP queryir.Predicate
	if lmpID != "" {
		byLMP = queryir.Equals{Field: queryir.FieldLMPID, Value: ir.IRString(lmpID)}
	}
	return s.queryInvocations(ctx, queryir.All(byLMP, filter), 0)
}

// FindByStateCacheKey returns the earliest successful invocation recorded
// under key, or ErrNotFound. Failure records never match.
func (s *Store) FindByStateCacheKey(ctx context.Context, key string) (ir.Invocation, error) {
	invs, err := s.queryInvocations(ctx, queryir.And{Predicates: []queryir.Predicate{
		queryir.Equals{Field: queryir.FieldStateCacheKey, Value: ir.IRString(key)},
		queryir.Equals{Field: queryir.FieldFailed, Value: ir.IRBool(false)},
	}}, 1)
	if err != nil {
		return ir.Invocation{}, err
	}
	if len(invs) == 0 {
		return ir.Invocation{}, ErrNotFound
	}
	return invs[0], nil
}

// InvocationCounts returns the number of stored invocations per lmp_id.
func (s *Store) InvocationCounts(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT lmp_id, COUNT(*) FROM invocations
		GROUP BY lmp_id
		ORDER BY lmp_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("count invocations: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var id string
		var n int64
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counts: %w", err)
	}
	return counts, nil
}

// queryInvocations compiles filter, reads the matching rows and then loads
// their consumption edges. Rows are fully drained before the edge queries run
// because the pool holds a single connection.
func (s *Store) queryInvocations(ctx context.Context, filter queryir.Predicate, limit int) ([]ir.Invocation, error) {
	query, params, err := s.compiler.Compile(queryir.Select{
		From:    "invocations",
		Columns: invocationColumns,
		Filter:  filter,
	})
	if err != nil {
		return nil, fmt.Errorf("compile invocation query: %w", err)
	}
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query invocations: %w", err)
	}

	invs := []ir.Invocation{}
	for rows.Next() {
		inv, err := scanInvocation(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		invs = append(invs, inv)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate invocations: %w", err)
	}
	rows.Close()

	for i := range invs {
		consumes, err := s.GetConsumes(ctx, invs[i].ID)
		if err != nil {
			return nil, err
		}
		invs[i].Consumes = consumes
	}
	return invs, nil
}

func scanInvocation(row scanner) (ir.Invocation, error) {
	var (
		inv                                              ir.Invocation
		args, kwargs, freeVars, globalVars, result       string
		latencyNs, promptTokens, completionTokens, ctime int64
	)
	err := row.Scan(
		&inv.ID,
		&inv.LMPID,
		&args,
		&kwargs,
		&freeVars,
		&globalVars,
		&result,
		&inv.Error,
		&latencyNs,
		&promptTokens,
		&completionTokens,
		&inv.StateCacheKey,
		&ctime,
	)
	if err != nil {
		return ir.Invocation{}, fmt.Errorf("scan invocation: %w", err)
	}

	inv.Latency = time.Duration(latencyNs)
	inv.Usage = ir.Usage{PromptTokens: promptTokens, CompletionTokens: completionTokens}
	inv.CreatedAt = fromNanos(ctime)
	if inv.Args, err = unmarshalArray(args); err != nil {
		return ir.Invocation{}, err
	}
	if inv.Kwargs, err = unmarshalObject(kwargs); err != nil {
		return ir.Invocation{}, err
	}
	if inv.FreeVars, err = unmarshalObject(freeVars); err != nil {
		return ir.Invocation{}, err
	}
	if inv.GlobalVars, err = unmarshalObject(globalVars); err != nil {
		return ir.Invocation{}, err
	}
	if inv.Result, err = unmarshalValue(result); err != nil {
		return ir.Invocation{}, err
	}
	return inv, nil
}

// GetConsumes returns the invocations whose outputs fed id (one hop back).
func (s *Store) GetConsumes(ctx context.Context, id string) ([]string, error) {
	return s.queryIDs(ctx, `
		SELECT consumed_id FROM invocation_consumes
		WHERE invocation_id = ?
		ORDER BY consumed_id COLLATE BINARY ASC
	`, id)
}

// GetConsumedBy returns the invocations that consumed the output of id (one
// hop forward).
func (s *Store) GetConsumedBy(ctx context.Context, id string) ([]string, error) {
	return s.queryIDs(ctx, `
		SELECT invocation_id FROM invocation_consumes
		WHERE consumed_id = ?
		ORDER BY invocation_id COLLATE BINARY ASC
	`, id)
}

// GetLineage returns every invocation id id transitively consumed, computed at
// query time. The result excludes id itself.
func (s *Store) GetLineage(ctx context.Context, id string) ([]string, error) {
	return s.queryIDs(ctx, `
		WITH RECURSIVE lineage(id) AS (
			SELECT consumed_id FROM invocation_consumes WHERE invocation_id = ?
			UNION
			SELECT c.consumed_id
			FROM invocation_consumes c
			JOIN lineage l ON c.invocation_id = l.id
		)
		SELECT id FROM lineage
		WHERE id <> ?
		ORDER BY id COLLATE BINARY ASC
	`, id, id)
}

func (s *Store) queryIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ids: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ids: %w", err)
	}
	return ids, nil
}
