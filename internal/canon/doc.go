// Package canon turns arbitrary Go values into canonical IR values.
//
// Canonicalization never fails. Values with no meaningful JSON form (functions,
// channels, complex numbers, structures deeper than the depth limit) become the
// placeholder string "<unserializable:TYPE>" and are logged at debug level.
// Binary payloads are replaced by a content-addressed blob reference. Origin
// sets carried by origin.String values are collected on a side channel so the
// recorder can build consumption edges.
package canon
