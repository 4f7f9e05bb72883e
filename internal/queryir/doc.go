// Package queryir is the filter language for invocation queries.
//
// Filters are built from sealed Predicate values and compiled to SQL by
// package querysql. Keeping the representation separate from SQL lets the CLI,
// the recorder and tests build filters without touching query strings.
//
//	[CLI flags] → [queryir.Predicate] → [querysql] → parameterized SQL
//
// Supported predicates:
//   - Equals(field, value): a whitelisted column or a kwargs key ("kwargs.name")
//   - CreatedBetween(from, to): half-open creation-time window
//   - And(predicates...): conjunction; empty And is always true
//
// There is no OR, no NULL comparison and no ordering control. Every compiled
// query is ordered by creation time with the id as tiebreaker.
package queryir
