package closure

import (
	"bytes"
	"go/ast"
	"go/printer"
	"go/token"
	"strings"
)

var printConfig = printer.Config{Mode: printer.UseSpaces | printer.TabIndent, Tabwidth: 8}

// render prints a declaration in gofmt layout. Doc comments are kept because
// they shape what the unit means; comments inside bodies are dropped.
func render(fset *token.FileSet, node ast.Node) (string, error) {
	var buf bytes.Buffer
	if err := printConfig.Fprint(&buf, fset, node); err != nil {
		return "", err
	}
	return trimLines(buf.String()), nil
}

// renderSpec prints one spec of a var or type declaration on its own.
// Const groups are printed whole since their specs may depend on iota and
// implicit repetition.
func renderSpec(fset *token.FileSet, ref *declRef) (string, error) {
	if ref.decl.Tok == token.CONST || len(ref.decl.Specs) == 1 {
		return render(fset, ref.decl)
	}
	return render(fset, &ast.GenDecl{Tok: ref.decl.Tok, Specs: []ast.Spec{ref.spec}})
}

// NormalizeText canonicalizes explicit source text: line endings become LF,
// trailing whitespace and blank edge lines are removed, and the common
// indentation is stripped.
func NormalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return dedent(trimLines(text))
}

// trimLines removes trailing whitespace on each line and blank leading and
// trailing lines.
func trimLines(text string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	for len(lines) > 0 && lines[0] == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

func dedent(text string) string {
	lines := strings.Split(text, "\n")
	prefix := ""
	first := true
	for _, l := range lines {
		if l == "" {
			continue
		}
		indent := l[:len(l)-len(strings.TrimLeft(l, " \t"))]
		if first {
			prefix = indent
			first = false
			continue
		}
		prefix = commonPrefix(prefix, indent)
	}
	if prefix == "" {
		return text
	}
	for i, l := range lines {
		lines[i] = strings.TrimPrefix(l, prefix)
	}
	return strings.Join(lines, "\n")
}

func commonPrefix(a, b string) string {
	n := min(len(a), len(b))
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return a[:i]
}
