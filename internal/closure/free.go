package closure

import (
	"go/ast"
	"go/token"
	"slices"
)

// qualifiedRef is a selector X.Sel whose X is a free identifier, such as a
// call into another package.
type qualifiedRef struct {
	pkg  string
	name string
}

// freeRefs collects the identifiers a node uses but does not declare.
//
// Shadowing is resolved conservatively: a name declared anywhere inside the
// node hides the package-level declaration of the same name everywhere in it.
type freeRefs struct {
	used      map[string]bool
	declared  map[string]bool
	qualified map[qualifiedRef]bool
}

func collectFree(node ast.Node) ([]string, []qualifiedRef) {
	r := &freeRefs{
		used:      make(map[string]bool),
		declared:  make(map[string]bool),
		qualified: make(map[qualifiedRef]bool),
	}
	r.walk(node)

	var idents []string
	for name := range r.used {
		if !r.declared[name] && name != "_" {
			idents = append(idents, name)
		}
	}
	slices.Sort(idents)

	var quals []qualifiedRef
	for q := range r.qualified {
		if !r.declared[q.pkg] {
			quals = append(quals, q)
		}
	}
	slices.SortFunc(quals, func(a, b qualifiedRef) int {
		if a.pkg != b.pkg {
			if a.pkg < b.pkg {
				return -1
			}
			return 1
		}
		if a.name < b.name {
			return -1
		}
		if a.name > b.name {
			return 1
		}
		return 0
	})
	return idents, quals
}

func (r *freeRefs) declare(idents ...*ast.Ident) {
	for _, id := range idents {
		if id != nil {
			r.declared[id.Name] = true
		}
	}
}

func (r *freeRefs) walk(node ast.Node) {
	ast.Inspect(node, func(n ast.Node) bool {
		switch x := n.(type) {
		case *ast.FuncDecl:
			r.declare(x.Name)

		case *ast.Field:
			r.declare(x.Names...)

		case *ast.AssignStmt:
			if x.Tok == token.DEFINE {
				for _, lhs := range x.Lhs {
					if id, ok := lhs.(*ast.Ident); ok {
						r.declare(id)
					}
				}
			}

		case *ast.RangeStmt:
			if x.Tok == token.DEFINE {
				if id, ok := x.Key.(*ast.Ident); ok {
					r.declare(id)
				}
				if id, ok := x.Value.(*ast.Ident); ok {
					r.declare(id)
				}
			}

		case *ast.ValueSpec:
			r.declare(x.Names...)

		case *ast.TypeSpec:
			r.declare(x.Name)

		case *ast.LabeledStmt:
			r.declare(x.Label)

		case *ast.BranchStmt:
			// Labels are not references to package declarations.
			return false

		case *ast.SelectorExpr:
			if id, ok := x.X.(*ast.Ident); ok {
				r.used[id.Name] = true
				r.qualified[qualifiedRef{pkg: id.Name, name: x.Sel.Name}] = true
				return false
			}
			r.walk(x.X)
			return false

		case *ast.CompositeLit:
			r.walkComposite(x)
			return false

		case *ast.Ident:
			r.used[x.Name] = true
		}
		return true
	})
}

// walkComposite skips struct field keys, which name fields rather than
// referencing declarations. Map keys are expressions and are walked.
func (r *freeRefs) walkComposite(lit *ast.CompositeLit) {
	if lit.Type != nil {
		r.walk(lit.Type)
	}
	_, isMap := lit.Type.(*ast.MapType)
	for _, elt := range lit.Elts {
		kv, ok := elt.(*ast.KeyValueExpr)
		if !ok {
			r.walk(elt)
			continue
		}
		if _, keyIsIdent := kv.Key.(*ast.Ident); !keyIsIdent || isMap {
			r.walk(kv.Key)
		}
		r.walk(kv.Value)
	}
}
