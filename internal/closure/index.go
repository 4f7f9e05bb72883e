package closure

import (
	"fmt"
	"go/ast"
	"go/build"
	"go/parser"
	"go/token"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// declRef points at one package-level var, const or type spec.
type declRef struct {
	decl *ast.GenDecl
	spec ast.Spec
	file *ast.File
}

// pkgIndex holds the parsed top-level declarations of one package directory.
type pkgIndex struct {
	dir     string
	name    string
	fset    *token.FileSet
	files   map[string]*ast.File // absolute path -> file
	funcs   map[string]*ast.FuncDecl
	methods map[string]*ast.FuncDecl // "Type.Method"
	values  map[string]*declRef
	fileOf  map[ast.Decl]*ast.File
	imports map[*ast.File]map[string]string // local name -> import path
}

// loadPackage parses every buildable file in dir that belongs to package name.
// Test files are included so units declared in tests can be analyzed.
func loadPackage(dir, name string) (*pkgIndex, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrSourceUnavailable, dir, err)
	}

	idx := &pkgIndex{
		dir:     dir,
		name:    name,
		fset:    token.NewFileSet(),
		files:   make(map[string]*ast.File),
		funcs:   make(map[string]*ast.FuncDecl),
		methods: make(map[string]*ast.FuncDecl),
		values:  make(map[string]*declRef),
		fileOf:  make(map[ast.Decl]*ast.File),
		imports: make(map[*ast.File]map[string]string),
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".go") {
			continue
		}
		if ok, err := build.Default.MatchFile(dir, e.Name()); err != nil || !ok {
			continue
		}

		full := filepath.Join(dir, e.Name())
		f, err := parser.ParseFile(idx.fset, full, nil, parser.ParseComments|parser.SkipObjectResolution)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParse, err)
		}
		if f.Name.Name != name {
			continue
		}
		idx.files[full] = f
		idx.add(f)
	}

	return idx, nil
}

// packageNameOf reads only the package clause of file.
func packageNameOf(file string) (string, error) {
	if _, err := os.Stat(file); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	f, err := parser.ParseFile(token.NewFileSet(), file, nil, parser.PackageClauseOnly)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrParse, err)
	}
	return f.Name.Name, nil
}

func (idx *pkgIndex) add(f *ast.File) {
	imports := make(map[string]string)
	for _, imp := range f.Imports {
		p, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			continue
		}
		local := importName(p)
		if imp.Name != nil {
			local = imp.Name.Name
		}
		if local == "_" || local == "." {
			continue
		}
		imports[local] = p
	}
	idx.imports[f] = imports

	for _, decl := range f.Decls {
		idx.fileOf[decl] = f

		switch d := decl.(type) {
		case *ast.FuncDecl:
			if d.Recv == nil {
				if d.Name.Name != "init" && d.Name.Name != "_" {
					idx.funcs[d.Name.Name] = d
				}
				continue
			}
			if recv := receiverType(d); recv != "" {
				idx.methods[recv+"."+d.Name.Name] = d
			}

		case *ast.GenDecl:
			if d.Tok == token.IMPORT {
				continue
			}
			for _, spec := range d.Specs {
				ref := &declRef{decl: d, spec: spec, file: f}
				switch s := spec.(type) {
				case *ast.ValueSpec:
					for _, n := range s.Names {
						if n.Name != "_" {
							idx.values[n.Name] = ref
						}
					}
				case *ast.TypeSpec:
					idx.values[s.Name.Name] = ref
				}
			}
		}
	}
}

// methodsOf returns the method keys declared on type name.
func (idx *pkgIndex) methodsOf(name string) []string {
	var keys []string
	prefix := name + "."
	for k := range idx.methods {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys
}

// receiverType returns the base type name of a method receiver.
func receiverType(d *ast.FuncDecl) string {
	if d.Recv == nil || len(d.Recv.List) == 0 {
		return ""
	}
	expr := d.Recv.List[0].Type
	for {
		switch t := expr.(type) {
		case *ast.StarExpr:
			expr = t.X
		case *ast.IndexExpr:
			expr = t.X
		case *ast.IndexListExpr:
			expr = t.X
		case *ast.ParenExpr:
			expr = t.X
		case *ast.Ident:
			return t.Name
		default:
			return ""
		}
	}
}

var majorVersion = regexp.MustCompile(`^v[0-9]+$`)

// importName guesses the package name of an import path the way goimports
// does when no explicit name is given.
func importName(importPath string) string {
	base := path.Base(importPath)
	if majorVersion.MatchString(base) {
		base = path.Base(path.Dir(importPath))
	}
	if i := strings.LastIndex(base, ".v"); i > 0 && majorVersion.MatchString(base[i+1:]) {
		base = base[:i]
	}
	base = strings.TrimPrefix(base, "go-")
	return strings.NewReplacer("-", "", ".", "").Replace(base)
}
