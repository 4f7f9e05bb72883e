package closure

import (
	"fmt"
	"reflect"
	"regexp"
	"runtime"
	"strings"
)

// funcRef is a parsed runtime function symbol.
type funcRef struct {
	symbol  string // full symbol without "-fm"
	pkgPath string
	recv    string // receiver base type for methods
	name    string // declared name; empty for literals
	literal bool
	depth   int // literal nesting depth, 0 if unknown
	file    string
	line    int
}

var literalPart = regexp.MustCompile(`^(func[0-9]+|[0-9]+)$`)

// Symbol returns the runtime symbol of a function value, the key a Resolver
// is queried with.
func Symbol(fn any) (string, error) {
	ref, err := funcRefOf(fn)
	if err != nil {
		return "", err
	}
	return ref.symbol, nil
}

// PackageOf returns the package path of a symbol.
func PackageOf(symbol string) string {
	pkgPath, _ := splitSymbol(symbol)
	return pkgPath
}

func funcRefOf(fn any) (funcRef, error) {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return funcRef{}, fmt.Errorf("%w: %T is not a function", ErrSourceUnavailable, fn)
	}
	rf := runtime.FuncForPC(v.Pointer())
	if rf == nil {
		return funcRef{}, fmt.Errorf("%w: no runtime info for %T", ErrSourceUnavailable, fn)
	}
	file, line := rf.FileLine(rf.Entry())

	ref := parseSymbol(rf.Name())
	ref.file = file
	ref.line = line
	return ref, nil
}

// parseSymbol splits names such as
//
//	example.com/app/prompts.Greet
//	example.com/app/prompts.(*Client).Ask
//	example.com/app/prompts.Greet.func1
//	example.com/app/prompts.Map[...]
func parseSymbol(name string) funcRef {
	name = strings.TrimSuffix(name, "-fm")
	ref := funcRef{symbol: name}

	pkgPath, rest := splitSymbol(name)
	ref.pkgPath = pkgPath
	rest = strings.ReplaceAll(rest, "[...]", "")

	if strings.HasPrefix(rest, "(") {
		end := strings.Index(rest, ")")
		if end < 0 {
			ref.literal = true
			return ref
		}
		ref.recv = strings.TrimPrefix(rest[1:end], "*")
		rest = strings.TrimPrefix(rest[end+1:], ".")
		parts := strings.Split(rest, ".")
		ref.name = parts[0]
		ref.depth = literalDepth(parts[1:])
		ref.literal = ref.depth > 0
		return ref
	}

	parts := strings.Split(rest, ".")
	ref.depth = literalDepth(parts[1:])
	switch {
	case ref.depth > 0:
		ref.literal = true
	case len(parts) == 1:
		ref.name = parts[0]
	case len(parts) == 2:
		ref.recv = parts[0]
		ref.name = parts[1]
	default:
		ref.literal = true
	}
	return ref
}

func splitSymbol(name string) (pkgPath, rest string) {
	slash := strings.LastIndex(name, "/")
	dot := strings.Index(name[slash+1:], ".")
	if dot < 0 {
		return name, ""
	}
	return name[:slash+1+dot], name[slash+1+dot+1:]
}

// literalDepth counts the closure parts of a symbol: Greet.func1 is 1,
// Greet.func1.2 is 2.
func literalDepth(parts []string) int {
	n := 0
	for _, p := range parts {
		if literalPart.MatchString(p) {
			n++
		}
	}
	return n
}
