package rif

import "strings"

// Lookup is the cross-unit resolution capability: it returns the already
// compiled unit for a name or fails with a UnitNotFoundErr naming the places
// searched. Implementations must be deterministic.
type Lookup interface {
	Unit(name string) (*Compiled, error)
}

// includePattern is a parsed include directive: rifName[.pageName][.regName|.*].
type includePattern struct {
	rif  string
	page string
	reg  string // "*" for wildcard
}

func parseIncludePattern(directive string, line int) (includePattern, error) {
	parts := strings.Split(directive, ".")
	switch len(parts) {
	case 2:
		return includePattern{rif: parts[0], reg: parts[1]}, nil
	case 3:
		return includePattern{rif: parts[0], page: parts[1], reg: parts[2]}, nil
	}
	return includePattern{}, makeSyntaxError(line, "malformed include %q", directive)
}

// resolveIncludes replaces every include directive in top with declarations
// copied from the named units. Page includes copy a whole page's registers
// and instances; register includes copy field lists; wildcard includes copy
// every matching register. Copied declarations are deep-copied so the source
// unit stays untouched.
func resolveIncludes(top *TopDecl, lookup Lookup) error {
	for _, page := range top.Pages {
		if page.Include != "" {
			if err := resolvePageInclude(top, page, lookup); err != nil {
				return err
			}
			continue
		}
		var regs []*RegDecl
		for _, reg := range page.Registers {
			if reg.Include == "" {
				regs = append(regs, reg)
				continue
			}
			included, err := resolveRegInclude(page, reg, lookup)
			if err != nil {
				return err
			}
			regs = append(regs, included...)
		}
		page.Registers = regs
	}
	return nil
}

func resolvePageInclude(top *TopDecl, page *PageDecl, lookup Lookup) error {
	pattern, err := parseIncludePattern(page.Include, page.Line)
	if err != nil {
		return err
	}
	if pattern.page != "" || pattern.reg == "*" {
		return makeSyntaxError(page.Line, "page include needs the form rifName.pageName, got %q", page.Include)
	}
	unit, err := lookup.Unit(pattern.rif)
	if err != nil {
		return annotateInclude(err, page.Line, pattern.rif)
	}
	source := unit.declPage(pattern.reg)
	if source == nil {
		return makeReferenceError(page.Line, "unit %s has no page %s", pattern.rif, pattern.reg)
	}
	for _, reg := range source.Registers {
		page.Registers = append(page.Registers, copyRegDecl(reg))
	}
	for _, inst := range source.Instances {
		instCopy := *inst
		page.Instances = append(page.Instances, &instCopy)
	}
	page.InstancesAuto = source.InstancesAuto
	page.Include = ""
	return nil
}

func resolveRegInclude(page *PageDecl, reg *RegDecl, lookup Lookup) ([]*RegDecl, error) {
	pattern, err := parseIncludePattern(reg.Include, reg.Line)
	if err != nil {
		return nil, err
	}
	unit, err := lookup.Unit(pattern.rif)
	if err != nil {
		return nil, annotateInclude(err, reg.Line, pattern.rif)
	}
	sources := unit.declRegisters(pattern.page)
	if sources == nil {
		return nil, makeReferenceError(reg.Line, "unit %s has no page %s", pattern.rif, pattern.page)
	}
	if pattern.reg == "*" {
		var copies []*RegDecl
		for _, source := range sources {
			copies = append(copies, copyRegDecl(source))
		}
		if len(copies) == 0 {
			return nil, makeReferenceError(reg.Line, "include %q matches no register", reg.Include)
		}
		return copies, nil
	}
	for _, source := range sources {
		if source.Name == pattern.reg {
			// The including register keeps its own name and properties and
			// adopts the source's fields.
			merged := *reg
			merged.Include = ""
			merged.Fields = copyRegDecl(source).Fields
			if merged.Desc == "" {
				merged.Desc = source.Desc
			}
			if merged.Intr == nil {
				merged.Intr = source.Intr
			}
			return []*RegDecl{&merged}, nil
		}
	}
	return nil, makeReferenceError(reg.Line, "unit %s has no register %s", pattern.rif, pattern.reg)
}

// declPage finds a page declaration in an already compiled unit.
func (compiled *Compiled) declPage(name string) *PageDecl {
	for _, page := range compiled.decls.Pages {
		if page.Name == name {
			return page
		}
	}
	return nil
}

// declRegisters returns the register declarations of the named page, or of
// every page when name is empty. A nil result means the page was not found.
func (compiled *Compiled) declRegisters(name string) []*RegDecl {
	if name == "" {
		regs := []*RegDecl{}
		for _, page := range compiled.decls.Pages {
			regs = append(regs, page.Registers...)
		}
		return regs
	}
	page := compiled.declPage(name)
	if page == nil {
		return nil
	}
	return page.Registers
}

func copyRegDecl(reg *RegDecl) *RegDecl {
	regCopy := *reg
	regCopy.Fields = make([]*FieldDecl, len(reg.Fields))
	for i, field := range reg.Fields {
		fieldCopy := *field
		fieldCopy.Mods = append([]Modifier(nil), field.Mods...)
		fieldCopy.Resets = append([]uint64(nil), field.Resets...)
		regCopy.Fields[i] = &fieldCopy
	}
	return &regCopy
}

// annotateInclude ties a lookup failure to the include site.
func annotateInclude(err error, line int, unit string) error {
	rifErr, ok := err.(*Error)
	if !ok {
		return err
	}
	if rifErr.Line == 0 {
		rifErr.Line = line
	}
	return rifErr
}

// resolveGroups checks that all registers sharing a group name have the
// identical field layout and records which register carries the structure.
// Cross-unit references (otherRif::group) resolve the structure from the
// other unit during elaboration instead.
func resolveGroups(top *TopDecl) (map[string]*RegDecl, error) {
	owners := map[string]*RegDecl{}
	for _, page := range top.Pages {
		for _, reg := range page.Registers {
			if reg.Group == "" || reg.GroupRif != "" {
				continue
			}
			owner, seen := owners[reg.Group]
			if !seen {
				owners[reg.Group] = reg
				continue
			}
			if err := compareGroupLayout(owner, reg); err != nil {
				return nil, err
			}
		}
	}
	return owners, nil
}

// compareGroupLayout verifies that two registers of one group agree on field
// names, positions and modifier sets.
func compareGroupLayout(owner, reg *RegDecl) error {
	if len(owner.Fields) != len(reg.Fields) {
		return makeConflictError(reg.Line,
			"group %s: register %s has %d fields, register %s has %d",
			reg.Group, owner.Name, len(owner.Fields), reg.Name, len(reg.Fields))
	}
	for i, ownerField := range owner.Fields {
		regField := reg.Fields[i]
		if ownerField.Name != regField.Name {
			return makeConflictError(regField.Line,
				"group %s: field %s of %s does not match field %s of %s",
				reg.Group, regField.Name, reg.Name, ownerField.Name, owner.Name)
		}
		if ownerField.Lsb != regField.Lsb || ownerField.Width != regField.Width ||
			ownerField.HasPos != regField.HasPos || ownerField.ArraySize != regField.ArraySize {
			return makeConflictError(regField.Line,
				"group %s: field %s has a different layout in %s and %s",
				reg.Group, regField.Name, owner.Name, reg.Name)
		}
		if modSignature(ownerField.Mods) != modSignature(regField.Mods) {
			return makeConflictError(regField.Line,
				"group %s: field %s has different modifiers in %s and %s",
				reg.Group, regField.Name, owner.Name, reg.Name)
		}
	}
	return nil
}

func modSignature(mods []Modifier) string {
	names := make([]string, len(mods))
	for i, mod := range mods {
		names[i] = mod.modifierName()
	}
	return strings.Join(names, ",")
}
