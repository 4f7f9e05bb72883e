// Package ir provides the canonical value and record types for provenant.
//
// This package contains type definitions, canonical JSON and content hashing
// only. All other internal packages import ir; ir imports nothing internal.
// This keeps IR the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Values are a sealed set (IRNull, IRString, IRInt, IRFloat, IRBool, IRArray, IRObject)
//   - Floats are allowed but always serialised with a fixed rule (see MarshalCanonical)
//   - All JSON tags use snake_case
//   - Identity hashes use domain-separated SHA-256 over canonical JSON
package ir
