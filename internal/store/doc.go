// Package store provides SQLite-backed durable storage for LMP versions and
// invocation records.
//
// The store is append-only:
//   - lmps: one row per version, content-addressed by lmp_id
//   - lmp_uses: version-level dependency edges (lmp_id uses uses_id)
//   - invocations: one immutable row per call
//   - invocation_consumes: data-flow edges between invocations
//
// # Critical Patterns
//
// Idempotent Versions
//   - lmp_id PRIMARY KEY plus UNIQUE(name, version)
//   - The version number is derived inside the insert statement itself, so
//     concurrent first registrations never produce gaps or duplicates
//
// Durable Before Referenced
//   - An invocation is written only if its version row exists in the same
//     transaction (ErrVersionNotCommitted otherwise)
//   - Consumption edges to unknown invocations are dropped, never dangling
//
// Deterministic Query Results
//   - Every query has an ORDER BY with an id tiebreaker (COLLATE BINARY)
//   - Reads return empty slices, never nil
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//   - _txlock=immediate: Writers take the write lock at BEGIN
//
// Timestamps are stored as Unix nanoseconds. Structured columns hold
// canonical JSON produced by internal/ir.
package store
