package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/provenant/internal/ir"
)

// maxVersionAttempts bounds retries of a (name, version) collision.
const maxVersionAttempts = 5

// WriteLMP registers a version (get-or-create). Returns the stored row and
// whether this call inserted it.
//
// The version number is 1 + the current maximum for def.Name, computed inside
// the INSERT statement so the read and the write happen under one lock. If
// def.ID already exists the existing row is returned with inserted=false and
// nothing is changed. A conflict on (name, version) without an existing id
// means another process registered a different version of the same name at
// the same moment; the insert is retried with the next number.
//
// uses are the lmp_ids of the versions this one depends on. They must already
// be stored; they are linked in the same transaction.
func (s *Store) WriteLMP(ctx context.Context, def ir.LMP, uses []string) (lmp ir.LMP, inserted bool, err error) {
	if !ir.ValidKinds[def.Kind] {
		return ir.LMP{}, false, fmt.Errorf("write lmp: invalid kind %q", def.Kind)
	}

	deps, err := marshalStrings(def.Dependencies)
	if err != nil {
		return ir.LMP{}, false, fmt.Errorf("write lmp: %w", err)
	}
	apiParams, err := marshalObject(def.APIParams)
	if err != nil {
		return ir.LMP{}, false, fmt.Errorf("write lmp: api params: %w", err)
	}
	freeVars, err := marshalObject(def.FreeVars)
	if err != nil {
		return ir.LMP{}, false, fmt.Errorf("write lmp: free vars: %w", err)
	}
	globalVars, err := marshalObject(def.GlobalVars)
	if err != nil {
		return ir.LMP{}, false, fmt.Errorf("write lmp: global vars: %w", err)
	}
	createdAt := nanos(def.CreatedAt)

	for attempt := 0; attempt < maxVersionAttempts; attempt++ {
		lmp, inserted, err = s.writeLMPOnce(ctx, def, uses, deps, apiParams, freeVars, globalVars, createdAt)
		if !errors.Is(err, errVersionCollision) {
			return lmp, inserted, err
		}
	}
	return ir.LMP{}, false, fmt.Errorf("write lmp %q: version collision after %d attempts", def.Name, maxVersionAttempts)
}

var errVersionCollision = errors.New("version collision")

func (s *Store) writeLMPOnce(
	ctx context.Context,
	def ir.LMP,
	uses []string,
	deps, apiParams, freeVars, globalVars string,
	createdAt int64,
) (ir.LMP, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ir.LMP{}, false, fmt.Errorf("write lmp: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx, `
		INSERT INTO lmps
		(lmp_id, name, version, source, dependencies, kind, is_lm, model,
		 api_params, free_vars, global_vars, commit_message, created_at)
		SELECT ?, ?, COALESCE(MAX(version), 0) + 1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		FROM lmps
		WHERE name = ?
		ON CONFLICT DO NOTHING
	`,
		def.ID,
		def.Name,
		def.Source,
		deps,
		string(def.Kind),
		def.IsLM,
		def.Model,
		apiParams,
		freeVars,
		globalVars,
		def.CommitMessage,
		createdAt,
		def.Name,
	)
	if err != nil {
		return ir.LMP{}, false, fmt.Errorf("write lmp: insert: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return ir.LMP{}, false, fmt.Errorf("write lmp: rows affected: %w", err)
	}

	if rowsAffected == 0 {
		// Conflict - either this id exists, or (name, version) was taken
		existing, err := scanLMP(tx.QueryRowContext(ctx, selectLMP+` WHERE lmp_id = ?`, def.ID))
		if errors.Is(err, ErrNotFound) {
			return ir.LMP{}, false, errVersionCollision
		}
		if err != nil {
			return ir.LMP{}, false, fmt.Errorf("write lmp: read existing: %w", err)
		}
		return existing, false, nil
	}

	for _, usesID := range uses {
		if usesID == def.ID {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO lmp_uses (lmp_id, uses_id)
			VALUES (?, ?)
			ON CONFLICT DO NOTHING
		`, def.ID, usesID); err != nil {
			return ir.LMP{}, false, fmt.Errorf("write lmp: uses %s: %w", usesID, err)
		}
	}

	stored, err := scanLMP(tx.QueryRowContext(ctx, selectLMP+` WHERE lmp_id = ?`, def.ID))
	if err != nil {
		return ir.LMP{}, false, fmt.Errorf("write lmp: read back: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return ir.LMP{}, false, fmt.Errorf("write lmp: commit: %w", err)
	}
	return stored, true, nil
}

// WriteUses adds uses edges from an already stored version. Both ends must
// be stored; existing edges and self edges are ignored. The recorder uses it
// for the back-edge of a dependency cycle, whose target is stored last.
func (s *Store) WriteUses(ctx context.Context, lmpID string, usesIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write uses: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	for _, usesID := range usesIDs {
		if usesID == lmpID {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO lmp_uses (lmp_id, uses_id)
			VALUES (?, ?)
			ON CONFLICT DO NOTHING
		`, lmpID, usesID); err != nil {
			return fmt.Errorf("write uses: %s -> %s: %w", lmpID, usesID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write uses: commit: %w", err)
	}
	return nil
}

// WriteInvocation appends an invocation record and its consumption edges.
//
// The referenced version must already be stored; otherwise the write fails
// with ErrVersionNotCommitted. Duplicate invocation ids are ignored. Edges to
// consumed ids that are not stored are dropped.
func (s *Store) WriteInvocation(ctx context.Context, inv ir.Invocation) error {
	args, err := marshalArray(inv.Args)
	if err != nil {
		return fmt.Errorf("write invocation: args: %w", err)
	}
	kwargs, err := marshalObject(inv.Kwargs)
	if err != nil {
		return fmt.Errorf("write invocation: kwargs: %w", err)
	}
	freeVars, err := marshalObject(inv.FreeVars)
	if err != nil {
		return fmt.Errorf("write invocation: free vars: %w", err)
	}
	globalVars, err := marshalObject(inv.GlobalVars)
	if err != nil {
		return fmt.Errorf("write invocation: global vars: %w", err)
	}
	result, err := marshalValue(inv.Result)
	if err != nil {
		return fmt.Errorf("write invocation: result: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write invocation: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM lmps WHERE lmp_id = ?`, inv.LMPID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("write invocation %s: lmp %s: %w", inv.ID, inv.LMPID, ErrVersionNotCommitted)
	}
	if err != nil {
		return fmt.Errorf("write invocation: check lmp: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO invocations
		(id, lmp_id, args, kwargs, free_vars, global_vars, result, error,
		 latency_ns, prompt_tokens, completion_tokens, state_cache_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		inv.ID,
		inv.LMPID,
		args,
		kwargs,
		freeVars,
		globalVars,
		result,
		inv.Error,
		inv.Latency.Nanoseconds(),
		inv.Usage.PromptTokens,
		inv.Usage.CompletionTokens,
		inv.StateCacheKey,
		nanos(inv.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("write invocation: insert: %w", err)
	}

	for _, consumed := range inv.Consumes {
		if consumed == inv.ID {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO invocation_consumes (invocation_id, consumed_id)
			SELECT ?, id FROM invocations WHERE id = ?
			ON CONFLICT DO NOTHING
		`, inv.ID, consumed); err != nil {
			return fmt.Errorf("write invocation: consumes %s: %w", consumed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write invocation: commit: %w", err)
	}
	return nil
}
