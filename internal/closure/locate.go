package closure

import (
	"go/ast"
	"path/filepath"
)

// located is a unit resolved to its declaration in a parsed package.
type located struct {
	index   *pkgIndex
	file    *ast.File
	node    ast.Node // *ast.FuncDecl or *ast.FuncLit
	ref     funcRef
	selfKey string // index key of the declaration itself, if any
}

func (a *Analyzer) locateFunc(unitName string, code FuncCode) (*located, error) {
	ref, err := funcRefOf(code.Fn)
	if err != nil {
		return nil, &AnalysisError{Unit: unitName, Err: err}
	}
	if ref.file == "" || !filepath.IsAbs(ref.file) {
		return nil, analysisErr(unitName, ErrSourceUnavailable, "no absolute source path for %s (built with -trimpath?)", ref.symbol)
	}

	idx, err := a.packageFor(ref.file)
	if err != nil {
		return nil, &AnalysisError{Unit: unitName, Err: err}
	}
	file, ok := idx.files[filepath.Clean(ref.file)]
	if !ok {
		return nil, analysisErr(unitName, ErrSourceUnavailable, "%s is not part of package %s", ref.file, idx.name)
	}

	loc := &located{index: idx, file: file, ref: ref}

	switch {
	case ref.literal:
		lit := findFuncLit(idx, file, ref.line, ref.depth)
		if lit == nil {
			return nil, analysisErr(unitName, ErrSourceUnavailable, "no function literal at %s:%d", ref.file, ref.line)
		}
		loc.node = lit

	case ref.recv != "":
		key := ref.recv + "." + ref.name
		decl, ok := idx.methods[key]
		if !ok {
			return nil, analysisErr(unitName, ErrSourceUnavailable, "method %s not found in %s", key, idx.dir)
		}
		loc.node = decl
		loc.selfKey = key

	default:
		decl, ok := idx.funcs[ref.name]
		if !ok {
			return nil, analysisErr(unitName, ErrSourceUnavailable, "function %s not found in %s", ref.name, idx.dir)
		}
		loc.node = decl
		loc.selfKey = ref.name
		loc.file = idx.fileOf[decl]
	}

	return loc, nil
}

// findFuncLit returns the function literal whose source spans line.
//
// The runtime reports the line of a literal's entry PC, which is the func
// line for literals that set up a frame and the first statement line for
// leaf literals. Literals nest, so several may span the line; the one whose
// nesting depth matches the symbol (Outer.func1.2 is depth 2) wins, then the
// innermost.
func findFuncLit(idx *pkgIndex, file *ast.File, line, depth int) *ast.FuncLit {
	var (
		path       []bool // per open node: is it a literal
		lits       int
		innermost  *ast.FuncLit
		innerDepth int
		atDepth    *ast.FuncLit
	)
	ast.Inspect(file, func(n ast.Node) bool {
		if n == nil {
			if path[len(path)-1] {
				lits--
			}
			path = path[:len(path)-1]
			return true
		}
		start := idx.fset.Position(n.Pos()).Line
		end := idx.fset.Position(n.End()).Line
		if line < start || line > end {
			return false
		}
		lit, ok := n.(*ast.FuncLit)
		path = append(path, ok)
		if !ok {
			return true
		}
		lits++
		if lits > innerDepth {
			innermost, innerDepth = lit, lits
		}
		if lits == depth && atDepth == nil {
			atDepth = lit
		}
		return true
	})
	if atDepth != nil {
		return atDepth
	}
	return innermost
}

// packageFor returns the cached index for the package containing file.
// Callers hold a.mu.
func (a *Analyzer) packageFor(file string) (*pkgIndex, error) {
	dir := filepath.Dir(file)
	name, err := packageNameOf(file)
	if err != nil {
		return nil, err
	}

	key := dir + "\x00" + name
	if idx, ok := a.packages[key]; ok {
		return idx, nil
	}
	idx, err := loadPackage(dir, name)
	if err != nil {
		return nil, err
	}
	a.packages[key] = idx
	return idx, nil
}
