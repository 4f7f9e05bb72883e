package closure

import (
	"fmt"
	"go/ast"
	"go/token"
	"log/slog"
	"slices"
	"strings"
	"sync"
)

// Block markers in closured source.
const (
	markerGlobal = "//lmp:global "
	markerHelper = "//lmp:helper "
	markerUses   = "//lmp:uses "
	cycleSuffix  = " (cycle)"

	// MarkerPrefix starts every block marker line.
	MarkerPrefix = "//lmp:"
)

// Analyzer computes and caches unit closures.
// Parsed packages and finished closures live for the lifetime of the Analyzer.
type Analyzer struct {
	resolver Resolver
	logger   *slog.Logger

	mu       sync.Mutex
	packages map[string]*pkgIndex
	located  map[Unit]*located
	closures map[Unit]*Closure
}

// New creates an Analyzer. Tracked dependencies are discovered through
// resolver, which may be nil when nothing else is tracked.
func New(resolver Resolver, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		resolver: resolver,
		logger:   logger,
		packages: make(map[string]*pkgIndex),
		located:  make(map[Unit]*located),
		closures: make(map[Unit]*Closure),
	}
}

// Locate checks that the source of u can be retrieved and parsed.
// It is cheap to call again; results are cached.
func (a *Analyzer) Locate(u Unit) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, err := a.locate(u)
	return err
}

// Closure returns the closure of u, computing it on first use.
func (a *Analyzer) Closure(u Unit) (*Closure, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if c, ok := a.closures[u]; ok {
		return c, nil
	}

	b := &builder{a: a, stack: map[Unit]bool{u: true}}
	c, err := b.closure(u)
	if err != nil {
		return nil, err
	}
	a.closures[u] = c

	a.logger.Debug("closure computed",
		"unit", u.UnitName(),
		"dependencies", len(c.Dependencies),
	)
	return c, nil
}

// Forget drops cached results for u so the next Closure call re-reads its source.
func (a *Analyzer) Forget(u Unit) {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.located, u)
	delete(a.closures, u)
}

// locate resolves a FuncCode unit to its declaration. TextCode units have
// nothing to locate. Callers hold a.mu.
func (a *Analyzer) locate(u Unit) (*located, error) {
	if loc, ok := a.located[u]; ok {
		return loc, nil
	}
	code, ok := u.Code().(FuncCode)
	if !ok {
		return nil, nil
	}
	loc, err := a.locateFunc(u.UnitName(), code)
	if err != nil {
		return nil, err
	}
	a.located[u] = loc
	return loc, nil
}

func (a *Analyzer) resolve(symbol string) (Unit, bool) {
	if a.resolver == nil {
		return nil, false
	}
	return a.resolver.Resolve(symbol)
}

// builder computes one closure. stack holds the units currently being built
// so a dependency cycle is cut at its back-edge.
type builder struct {
	a     *Analyzer
	stack map[Unit]bool
}

// blocks accumulates the dependency blocks of one closure.
type blocks struct {
	globals map[string]string
	helpers map[string]string
	uses    map[string]string
	cycles  map[string]bool
	units   map[string]Unit
}

func newBlocks() *blocks {
	return &blocks{
		globals: make(map[string]string),
		helpers: make(map[string]string),
		uses:    make(map[string]string),
		cycles:  make(map[string]bool),
		units:   make(map[string]Unit),
	}
}

func (b *builder) closure(u Unit) (*Closure, error) {
	switch code := u.Code().(type) {
	case TextCode:
		bl := newBlocks()
		for _, dep := range code.Uses {
			if err := b.addUse(bl, u, dep); err != nil {
				return nil, err
			}
		}
		return bl.assemble(NormalizeText(code.Text)), nil

	case FuncCode:
		return b.funcClosure(u, code)

	default:
		return nil, analysisErr(u.UnitName(), ErrSourceUnavailable, "unsupported code %T", code)
	}
}

func (b *builder) funcClosure(u Unit, code FuncCode) (*Closure, error) {
	loc, err := b.a.locate(u)
	if err != nil {
		return nil, err
	}
	idx := loc.index

	own, err := render(idx.fset, loc.node)
	if err != nil {
		return nil, analysisErr(u.UnitName(), ErrParse, "print: %v", err)
	}

	bl := newBlocks()
	w := &walker{
		b:       b,
		unit:    u,
		idx:     idx,
		blocks:  bl,
		seen:    map[string]bool{loc.selfKey: true},
		selfSym: loc.ref.symbol,
	}
	if err := w.visit(loc.node, loc.file); err != nil {
		return nil, err
	}
	for _, dep := range code.Uses {
		if err := b.addUse(bl, u, dep); err != nil {
			return nil, err
		}
	}
	return bl.assemble(own), nil
}

// addUse records dep as a tracked dependency of u, merging its closure.
func (b *builder) addUse(bl *blocks, u, dep Unit) error {
	name := dep.UnitName()
	if dep == u {
		return nil
	}
	if _, ok := bl.units[name]; ok {
		return nil
	}
	bl.units[name] = dep

	if b.stack[dep] {
		bl.cycles[name] = true
		return nil
	}

	b.stack[dep] = true
	defer delete(b.stack, dep)

	c, err := b.closure(dep)
	if err != nil {
		return err
	}
	bl.uses[name] = c.Source
	return nil
}

func (bl *blocks) assemble(own string) *Closure {
	parts := []string{own}
	for _, name := range sortedKeys(bl.globals) {
		parts = append(parts, markerGlobal+name+"\n"+bl.globals[name])
	}
	for _, name := range sortedKeys(bl.helpers) {
		parts = append(parts, markerHelper+name+"\n"+bl.helpers[name])
	}

	names := sortedKeys(bl.units)
	units := make([]Unit, 0, len(names))
	for _, name := range names {
		units = append(units, bl.units[name])
		if bl.cycles[name] {
			parts = append(parts, markerUses+name+cycleSuffix)
			continue
		}
		parts = append(parts, markerUses+name+"\n"+bl.uses[name])
	}

	return &Closure{
		Source:       strings.Join(parts, "\n\n"),
		Dependencies: names,
		Uses:         units,
	}
}

// walker follows free identifiers from a declaration into the package.
type walker struct {
	b       *builder
	unit    Unit
	idx     *pkgIndex
	blocks  *blocks
	seen    map[string]bool
	selfSym string
}

func (w *walker) visit(node ast.Node, file *ast.File) error {
	idents, quals := collectFree(node)

	for _, name := range idents {
		if err := w.ident(name); err != nil {
			return err
		}
	}

	imports := w.idx.imports[file]
	for _, q := range quals {
		if _, local := w.idx.values[q.pkg]; local {
			continue
		}
		if _, local := w.idx.funcs[q.pkg]; local {
			continue
		}
		importPath, ok := imports[q.pkg]
		if !ok {
			continue
		}
		if dep, ok := w.b.a.resolve(importPath + "." + q.name); ok {
			if err := w.b.addUse(w.blocks, w.unit, dep); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *walker) ident(name string) error {
	if w.seen[name] {
		return nil
	}
	w.seen[name] = true
	idx := w.idx

	if fd, ok := idx.funcs[name]; ok {
		symbol := idx.pkgPath(w.selfSym) + "." + name
		if dep, ok := w.b.a.resolve(symbol); ok {
			return w.b.addUse(w.blocks, w.unit, dep)
		}
		src, err := render(idx.fset, fd)
		if err != nil {
			return analysisErr(w.unit.UnitName(), ErrParse, "print %s: %v", name, err)
		}
		w.blocks.helpers[name] = src
		return w.visit(fd, idx.fileOf[fd])
	}

	ref, ok := idx.values[name]
	if !ok {
		return nil
	}

	// A package var initialized from a tracked function is a handle to it.
	if deps := w.trackedInitializers(ref); len(deps) > 0 {
		for _, dep := range deps {
			if err := w.b.addUse(w.blocks, w.unit, dep); err != nil {
				return err
			}
		}
		return nil
	}

	src, err := renderSpec(idx.fset, ref)
	if err != nil {
		return analysisErr(w.unit.UnitName(), ErrParse, "print %s: %v", name, err)
	}
	w.blocks.globals[name] = src

	var target ast.Node = ref.spec
	if ref.decl.Tok == token.CONST {
		target = ref.decl
	}
	if err := w.visit(target, ref.file); err != nil {
		return err
	}

	if _, isType := ref.spec.(*ast.TypeSpec); isType {
		return w.methods(name)
	}
	return nil
}

// methods captures the methods of a referenced type as helpers, since calls
// through a value of that type are invisible to identifier lookup.
func (w *walker) methods(typeName string) error {
	keys := w.idx.methodsOf(typeName)
	slices.Sort(keys)
	for _, key := range keys {
		if w.seen[key] {
			continue
		}
		w.seen[key] = true
		fd := w.idx.methods[key]
		src, err := render(w.idx.fset, fd)
		if err != nil {
			return analysisErr(w.unit.UnitName(), ErrParse, "print %s: %v", key, err)
		}
		w.blocks.helpers[key] = src
		if err := w.visit(fd, w.idx.fileOf[fd]); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) trackedInitializers(ref *declRef) []Unit {
	vs, ok := ref.spec.(*ast.ValueSpec)
	if !ok || len(vs.Values) == 0 {
		return nil
	}
	pkg := w.idx.pkgPath(w.selfSym)

	var deps []Unit
	for _, v := range vs.Values {
		idents, _ := collectFree(v)
		for _, name := range idents {
			if _, isFunc := w.idx.funcs[name]; !isFunc {
				continue
			}
			if dep, ok := w.b.a.resolve(pkg + "." + name); ok && dep != w.unit {
				deps = append(deps, dep)
			}
		}
	}
	return deps
}

// pkgPath derives the package path from the symbol of a unit declared in it.
func (idx *pkgIndex) pkgPath(symbol string) string {
	if symbol == "" {
		return idx.name
	}
	return PackageOf(symbol)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// StripMarkers removes block marker lines, leaving only declarations.
// Used when diffing two closures for a human.
func StripMarkers(source string) string {
	lines := strings.Split(source, "\n")
	out := lines[:0]
	for _, l := range lines {
		if strings.HasPrefix(l, MarkerPrefix) {
			continue
		}
		out = append(out, l)
	}
	return strings.Join(out, "\n")
}

// String renders a short description for logs.
func (c *Closure) String() string {
	return fmt.Sprintf("closure(%d bytes, deps=%v)", len(c.Source), c.Dependencies)
}
