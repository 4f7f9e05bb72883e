package closure

// Unit is anything the analyzer can compute a closure for.
// Implementations must be comparable; the analyzer caches by unit identity.
type Unit interface {
	UnitName() string
	Code() Code
}

// Code is the source of a unit. Implemented by FuncCode and TextCode.
type Code interface {
	code()
}

// FuncCode is a compiled Go function whose source is recovered from disk.
// Uses lists tracked units the function reaches in ways static analysis cannot
// see, such as calls through an interface.
type FuncCode struct {
	Fn   any
	Uses []Unit
}

func (FuncCode) code() {}

// TextCode is a unit whose source is given explicitly.
type TextCode struct {
	Text string
	Uses []Unit
}

func (TextCode) code() {}

// Resolver maps a function symbol (as reported by runtime.FuncForPC, without
// the "-fm" suffix) to the tracked unit registered for it.
type Resolver interface {
	Resolve(symbol string) (Unit, bool)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(symbol string) (Unit, bool)

// Resolve calls f.
func (f ResolverFunc) Resolve(symbol string) (Unit, bool) {
	return f(symbol)
}

// Closure is the analyzed closure of one unit.
type Closure struct {
	// Source is the own source followed by global, helper and uses blocks.
	Source string

	// Dependencies are the names of tracked units this unit uses, sorted.
	Dependencies []string

	// Uses are the tracked units behind Dependencies, in the same order.
	Uses []Unit
}
