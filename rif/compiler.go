package rif

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"rifc/parser"
)

// Compiler drives whole compilations: it discovers the units reachable from
// a root file, checks the include graph for cycles before any elaboration,
// and elaborates independent units of the same topological rank in parallel.
// Compiled units are memoized by name, so a unit included from several
// places compiles once.
type Compiler struct {
	IncludePath []string
	Overrides   map[string]string

	mu    sync.Mutex
	units map[string]*Compiled

	definedParams map[string]bool
}

func NewCompiler(includePath []string, overrides map[string]string) *Compiler {
	return &Compiler{
		IncludePath:   includePath,
		Overrides:     overrides,
		units:         map[string]*Compiled{},
		definedParams: map[string]bool{},
	}
}

// Unit implements Lookup over the already elaborated units.
func (compiler *Compiler) Unit(name string) (*Compiled, error) {
	compiler.mu.Lock()
	defer compiler.mu.Unlock()
	if unit, ok := compiler.units[name]; ok {
		return unit, nil
	}
	return nil, &Error{Kind: UnitNotFoundErr, Msg: fmt.Sprintf("unit %s was not compiled", name)}
}

// Warnings reports override names that matched no parameter in any loaded
// unit. Unknown overrides are not fatal: the same override set may be reused
// across compilations of different units.
func (compiler *Compiler) Warnings() []string {
	var warnings []string
	for name := range compiler.Overrides {
		if !compiler.definedParams[name] {
			warnings = append(warnings, fmt.Sprintf("override %s matches no parameter of any unit", name))
		}
	}
	sort.Strings(warnings)
	return warnings
}

// unitDecl is one loaded-but-not-yet-elaborated unit.
type unitDecl struct {
	name    string
	file    string
	top     *TopDecl
	symbols *SymbolTable
	deps    []string
}

// CompileFile compiles the unit in the given file together with everything
// it transitively includes, and returns the root unit.
func (compiler *Compiler) CompileFile(path string) (*Compiled, error) {
	baseDir := filepath.Dir(path)
	decls := map[string]*unitDecl{}
	root, err := compiler.loadUnit(path, decls, baseDir)
	if err != nil {
		return nil, err
	}
	ranks, err := topoRanks(decls, root.name)
	if err != nil {
		return nil, err
	}
	for _, rank := range ranks {
		group := new(errgroup.Group)
		for _, name := range rank {
			unit := decls[name]
			group.Go(func() error {
				if err := resolveIncludes(unit.top, compiler); err != nil {
					return annotateUnit(err, unit.name)
				}
				compiled, err := elaborate(unit.top, unit.symbols, compiler)
				if err != nil {
					return annotateUnit(err, unit.name)
				}
				compiler.mu.Lock()
				compiler.units[unit.name] = compiled
				compiler.mu.Unlock()
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return nil, err
		}
	}
	return compiler.Unit(root.name)
}

// loadUnit parses and builds one unit's declarations, then loads its
// dependencies recursively. Elaboration happens later, rank by rank.
func (compiler *Compiler) loadUnit(path string, decls map[string]*unitDecl, baseDir string) (*unitDecl, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &Error{Kind: UnitNotFoundErr, Msg: fmt.Sprintf("cannot open %s: %v", path, err)}
	}
	defer file.Close()
	tree, err := parser.ParseTree(path, file)
	if err != nil {
		return nil, annotateUnit(err, filepath.Base(path))
	}
	unit, err := compiler.buildUnit(filepath.Base(path), tree)
	if err != nil {
		return nil, err
	}
	unit.file = path
	if existing, ok := decls[unit.name]; ok {
		return existing, nil
	}
	decls[unit.name] = unit
	for _, dep := range unit.deps {
		if _, ok := decls[dep]; ok {
			continue
		}
		depPath, err := compiler.findUnitFile(dep, baseDir)
		if err != nil {
			return nil, annotateUnit(err, unit.name)
		}
		if _, err := compiler.loadUnit(depPath, decls, baseDir); err != nil {
			return nil, err
		}
	}
	return unit, nil
}

// buildUnit runs the declaration pipeline on a parsed tree: parameter
// extraction, resolution with overrides, then the full build.
func (compiler *Compiler) buildUnit(file string, tree *parser.Node) (*unitDecl, error) {
	params, generics, err := buildParamDecls(tree)
	if err != nil {
		return nil, annotateUnit(err, file)
	}
	symbols, _, err := resolveParams(&TopDecl{Params: params, Generics: generics, Name: file}, compiler.Overrides)
	if err != nil {
		return nil, annotateUnit(err, file)
	}
	top, err := buildDecl(tree, symbols, params, generics)
	if err != nil {
		return nil, annotateUnit(err, file)
	}
	compiler.mu.Lock()
	for _, param := range params {
		compiler.definedParams[param.Name] = true
	}
	compiler.mu.Unlock()
	return &unitDecl{name: top.Name, top: top, symbols: symbols, deps: declDeps(top)}, nil
}

// declDeps lists the unit names this declaration pulls in via includes or
// cross-unit group references.
func declDeps(top *TopDecl) []string {
	seen := map[string]bool{}
	var deps []string
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			deps = append(deps, name)
		}
	}
	for _, page := range top.Pages {
		if page.Include != "" {
			add(strings.SplitN(page.Include, ".", 2)[0])
		}
		for _, reg := range page.Registers {
			if reg.Include != "" {
				add(strings.SplitN(reg.Include, ".", 2)[0])
			}
			add(reg.GroupRif)
		}
	}
	return deps
}

// topoRanks orders the loaded units into ranks: every unit's dependencies
// sit in an earlier rank. A cycle is fatal before any elaboration begins.
func topoRanks(decls map[string]*unitDecl, rootName string) ([][]string, error) {
	rank := map[string]int{}
	state := map[string]int{} // 0 unvisited, 1 in progress, 2 done
	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch state[name] {
		case 2:
			return nil
		case 1:
			return &Error{
				Kind: CyclicIncludeErr,
				Unit: rootName,
				Msg:  fmt.Sprintf("include cycle: %s", strings.Join(append(path, name), " -> ")),
			}
		}
		state[name] = 1
		unit, ok := decls[name]
		if !ok {
			return &Error{Kind: UnitNotFoundErr, Unit: rootName, Msg: fmt.Sprintf("unit %s was never loaded", name)}
		}
		highest := -1
		for _, dep := range unit.deps {
			if err := visit(dep, append(path, name)); err != nil {
				return err
			}
			if rank[dep] > highest {
				highest = rank[dep]
			}
		}
		rank[name] = highest + 1
		state[name] = 2
		return nil
	}
	names := make([]string, 0, len(decls))
	for name := range decls {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := visit(name, nil); err != nil {
			return nil, err
		}
	}
	ranks := make([][]string, 0)
	for _, name := range names {
		r := rank[name]
		for len(ranks) <= r {
			ranks = append(ranks, nil)
		}
		ranks[r] = append(ranks[r], name)
	}
	return ranks, nil
}

// FindUnitFile resolves a unit name to a file, searching next to refFile
// first and then along the include path.
func (compiler *Compiler) FindUnitFile(name, refFile string) (string, error) {
	return compiler.findUnitFile(name, filepath.Dir(refFile))
}

// findUnitFile resolves a unit name to a .rif file: first next to the root
// file, then along the include path. File basenames are normalized the same
// way as unit names, so "include spi.*" finds rif_spi.rif. The search is
// deterministic and reported in full on failure.
func (compiler *Compiler) findUnitFile(name string, baseDir string) (string, error) {
	dirs := append([]string{baseDir}, compiler.IncludePath...)
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		names := make([]string, 0, len(entries))
		for _, entry := range entries {
			if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".rif") {
				names = append(names, entry.Name())
			}
		}
		sort.Strings(names)
		for _, fileName := range names {
			if normalizeUnitName(fileName) == name {
				return filepath.Join(dir, fileName), nil
			}
		}
	}
	return "", &Error{
		Kind: UnitNotFoundErr,
		Msg:  fmt.Sprintf("no file for unit %s in %s", name, strings.Join(dirs, ", ")),
	}
}

// normalizeUnitName strips the .rif extension and conventional rif/rifmux
// affixes from a file name.
func normalizeUnitName(fileName string) string {
	name := strings.TrimSuffix(fileName, ".rif")
	for _, prefix := range []string{"rifmux_", "rif_"} {
		name = strings.TrimPrefix(name, prefix)
	}
	for _, suffix := range []string{"_rifmux", "_rif"} {
		name = strings.TrimSuffix(name, suffix)
	}
	return name
}

// CompileUnit compiles a single already-parsed unit against a lookup for its
// dependencies. The returned warnings name override keys this unit did not
// define.
func CompileUnit(file string, tree *parser.Node, overrides map[string]string, lookup Lookup) (*Compiled, []string, error) {
	if lookup == nil {
		lookup = noLookup{}
	}
	params, generics, err := buildParamDecls(tree)
	if err != nil {
		return nil, nil, annotateUnit(err, file)
	}
	symbols, warnings, err := resolveParams(&TopDecl{Params: params, Generics: generics, Name: file}, overrides)
	if err != nil {
		return nil, nil, annotateUnit(err, file)
	}
	top, err := buildDecl(tree, symbols, params, generics)
	if err != nil {
		return nil, nil, annotateUnit(err, file)
	}
	if err := resolveIncludes(top, lookup); err != nil {
		return nil, nil, annotateUnit(err, top.Name)
	}
	compiled, err := elaborate(top, symbols, lookup)
	if err != nil {
		return nil, nil, annotateUnit(err, top.Name)
	}
	return compiled, warnings, nil
}

type noLookup struct{}

func (noLookup) Unit(name string) (*Compiled, error) {
	return nil, &Error{Kind: UnitNotFoundErr, Msg: fmt.Sprintf("unit %s is not available", name)}
}
