// Package closure computes the lexical closure of a trackable unit.
//
// The closure of a unit is its own source text followed by the declarations it
// depends on: package-level vars, consts and types it references, untracked
// helper functions it calls, and the closures of other tracked units. The
// result is stable under unrelated edits and changes whenever anything the unit
// can observe through its source changes. It is the input to version identity.
//
// Go has no runtime access to source text, so compiled functions are located
// through runtime.FuncForPC and re-parsed with go/parser. Units that carry their
// own text (prompt templates, generated code) use TextCode instead.
//
// Output layout:
//
//	<own source>
//
//	//lmp:global <name>
//	<declaration>
//
//	//lmp:helper <name>
//	<declaration>
//
//	//lmp:uses <unit name>
//	<closured source of that unit>
//
// Each group is sorted by name. A dependency cycle is cut at the back-edge,
// which renders as "//lmp:uses <name> (cycle)".
package closure
