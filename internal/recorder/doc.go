// Package recorder tracks language model programs.
//
// A tracked unit wraps an ordinary Go function. On its first call the
// recorder computes the unit's lexical closure, derives a content-addressed
// version id and registers the version with the backend; every call then
// appends one immutable invocation record with canonical inputs, outputs,
// captured state and the ids of the invocations whose outputs it consumed.
//
// Provenance flows through origin.String values: a tracked call returns its
// string outputs tagged with its own invocation id, and any tagged value that
// reaches another tracked call's inputs or outputs becomes a consumes edge.
//
// Per-call configuration (model client, request parameters, required
// tracking, cache reuse) travels in the context via WithCallOptions.
package recorder
