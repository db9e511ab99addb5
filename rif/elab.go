package rif

import (
	"rifc/parser"
)

// The elaborator turns declarations into the frozen model: final bit ranges,
// array expansion, access defaults, interrupt shadows, clocking and overlap
// validation. All running state (next free lsb, partial continuations) is
// threaded through explicitly so compiling units in parallel is safe.

type elaborator struct {
	top         *TopDecl
	symbols     *SymbolTable
	lookup      Lookup
	groupOwners map[string]*RegDecl
}

// carriedField is the not-yet-placed tail of an array field that overflowed
// its register and continues in the next one at a declared lsb offset.
type carriedField struct {
	decl       *FieldDecl
	startIndex int
	offset     int
}

func elaborate(top *TopDecl, symbols *SymbolTable, lookup Lookup) (*Compiled, error) {
	owners, err := resolveGroups(top)
	if err != nil {
		return nil, err
	}
	elab := &elaborator{top: top, symbols: symbols, lookup: lookup, groupOwners: owners}
	compiled := &Compiled{
		Name:      top.Name,
		AddrWidth: top.AddrWidth,
		DataWidth: top.DataWidth,
		Interface: top.Interface,
		SwClock:   top.SwClock,
		HwClocks:  top.HwClocks,
		SwReset:   top.SwReset,
		HwResets:  top.HwResets,
		SwClkEn:   top.SwClkEn,
		HwClkEn:   top.HwClkEn,
		SwClear:   top.SwClear,
		HwClear:   top.HwClear,
		decls:     top,
		symbols:   symbols,
	}
	for _, name := range symbols.Names() {
		value, _ := symbols.LookupSymbol(name)
		compiled.Params = append(compiled.Params, ParamValue{Name: name, Value: formatValue(value)})
	}
	for _, pageDecl := range top.Pages {
		page, err := elab.elaboratePage(pageDecl)
		if err != nil {
			return nil, err
		}
		compiled.Pages = append(compiled.Pages, page)
	}
	return compiled, nil
}

func (elab *elaborator) elaboratePage(pageDecl *PageDecl) (*Page, error) {
	page := &Page{
		Name:      pageDecl.Name,
		BaseAddr:  pageDecl.BaseAddr,
		AddrWidth: pageDecl.AddrWidth,
		External:  pageDecl.External,
	}
	if page.AddrWidth == 0 {
		page.AddrWidth = elab.top.AddrWidth
	}
	// regStructs maps every register declaration to the structure backing
	// it; grouped registers all map to the owner's structure.
	regStructs := map[string]*RegStruct{}
	var carry []carriedField
	for _, reg := range pageDecl.Registers {
		structFor, newCarry, err := elab.structForRegister(page, pageDecl, reg, carry)
		if err != nil {
			return nil, err
		}
		carry = newCarry
		regStructs[reg.Name] = structFor
	}
	if len(carry) > 0 {
		return nil, makeStructuralError(pageDecl.Line,
			"field %s continues past the last register of page %s", carry[0].decl.Name, pageDecl.Name)
	}
	instances, err := elab.buildInstances(pageDecl, page, regStructs)
	if err != nil {
		return nil, err
	}
	page.Instances = instances
	if err := allocateAddrs(page, elab.top.DataWidth); err != nil {
		return nil, err
	}
	return page, nil
}

// structForRegister returns the structure backing one register declaration,
// elaborating it when this declaration owns the layout.
func (elab *elaborator) structForRegister(page *Page, pageDecl *PageDecl, reg *RegDecl, carry []carriedField) (*RegStruct, []carriedField, error) {
	if reg.GroupRif != "" {
		unit, err := elab.lookup.Unit(reg.GroupRif)
		if err != nil {
			return nil, carry, annotateInclude(err, reg.Line, reg.GroupRif)
		}
		shared := unit.GroupStruct(reg.Group)
		if shared == nil {
			return nil, carry, makeReferenceError(reg.Line,
				"unit %s has no register group %s", reg.GroupRif, reg.Group)
		}
		if findStruct(page, shared.Name) == nil {
			page.Structs = append(page.Structs, shared)
		}
		return shared, carry, nil
	}
	if reg.Group != "" {
		owner := elab.groupOwners[reg.Group]
		if owner != reg {
			// Layout already built (and checked) under the owner's name.
			for _, existing := range page.Structs {
				if existing.Group == reg.Group {
					return existing, carry, nil
				}
			}
		}
	}
	regStruct, newCarry, err := elab.elaborateRegister(pageDecl, reg, carry)
	if err != nil {
		return nil, carry, err
	}
	page.Structs = append(page.Structs, regStruct)
	for _, shadow := range elab.shadowStructs(regStruct) {
		page.Structs = append(page.Structs, shadow)
	}
	return regStruct, newCarry, nil
}

func (elab *elaborator) elaborateRegister(pageDecl *PageDecl, reg *RegDecl, carry []carriedField) (*RegStruct, []carriedField, error) {
	desc, err := elab.expandDesc(reg.Desc, -1, reg.Line)
	if err != nil {
		return nil, nil, err
	}
	regStruct := &RegStruct{
		Name:         reg.Name,
		Group:        reg.Group,
		Desc:         desc,
		External:     reg.External,
		ExternalDone: reg.ExternalDone,
		Pulses:       reg.Pulses,
		Intr:         reg.Intr,
	}
	var nextCarry []carriedField
	nextLsb := 0
	for _, carried := range carry {
		placedUpTo, err := elab.placeField(pageDecl, reg, regStruct, carried.decl,
			carried.offset, carried.startIndex)
		if err != nil {
			return nil, nil, err
		}
		if placedUpTo < carried.decl.ArraySize {
			nextCarry = append(nextCarry, carriedField{
				decl: carried.decl, startIndex: placedUpTo, offset: carried.decl.ArrayPartial,
			})
		}
		nextLsb = maxInt(nextLsb, structTopBit(regStruct))
	}
	for _, field := range reg.Fields {
		lsb := nextLsb
		if field.HasPos {
			lsb = field.Lsb
		}
		placedUpTo, err := elab.placeField(pageDecl, reg, regStruct, field, lsb, 0)
		if err != nil {
			return nil, nil, err
		}
		if placedUpTo < field.ArraySize {
			nextCarry = append(nextCarry, carriedField{
				decl: field, startIndex: placedUpTo, offset: field.ArrayPartial,
			})
		}
		nextLsb = maxInt(nextLsb, structTopBit(regStruct))
	}
	if err := validateOverlap(regStruct, reg.Line); err != nil {
		return nil, nil, err
	}
	for _, field := range regStruct.Fields {
		if field.HasReset {
			regStruct.Reset |= field.Reset << uint(field.Lsb)
		}
	}
	return regStruct, nextCarry, nil
}

// placeField expands one field declaration from startIndex on, at base lsb,
// into the structure. Returns the first index that did not fit (equal to the
// array size when everything was placed).
func (elab *elaborator) placeField(pageDecl *PageDecl, reg *RegDecl, regStruct *RegStruct, field *FieldDecl, baseLsb, startIndex int) (int, error) {
	if len(field.Resets) > 1 && len(field.Resets) != field.ArraySize {
		return 0, makeRangeError(field.Line,
			"field %s has %d reset entries for array size %d", field.Name, len(field.Resets), field.ArraySize)
	}
	if err := validateLimit(field); err != nil {
		return 0, err
	}
	sw, hw, impliedMods, err := elab.resolveAccess(reg, field)
	if err != nil {
		return 0, err
	}
	incr := field.ArrayPosIncr
	if incr < field.Width {
		incr = field.Width
	}
	clock, resetSig, clkEn := elab.resolveClocking(pageDecl, reg, field, hw)
	for index := startIndex; index < field.ArraySize; index++ {
		lsb := baseLsb + (index-startIndex)*incr
		if lsb+field.Width > elab.top.DataWidth {
			if field.ArrayPartial >= 0 {
				return index, nil
			}
			return 0, makeRangeError(field.Line,
				"field %s index %d at bit %d exceeds the %d-bit register width",
				field.Name, index, lsb, elab.top.DataWidth)
		}
		reset, hasReset, err := fieldReset(field, index)
		if err != nil {
			return 0, err
		}
		descIndex := index
		if field.ArraySize == 1 {
			descIndex = -1
		}
		desc, err := elab.expandDesc(field.Desc, descIndex, field.Line)
		if err != nil {
			return 0, err
		}
		compiledField := &Field{
			Name:     field.Name,
			Index:    descIndex,
			Lsb:      lsb,
			Width:    field.Width,
			Reset:    reset,
			HasReset: hasReset,
			Sw:       sw,
			Hw:       hw,
			Desc:     desc,
			Partial:  field.HasMod(ModPartial{}) || field.ArrayPartial >= 0,
			Hidden:   field.HasMod(ModHidden{}) || field.HasMod(ModDisable{}),
			Reserved: field.HasMod(ModReserved{}) || field.HasMod(ModDisable{}),
			Clock:    clock,
			ResetSig: resetSig,
			ClkEn:    clkEn,
			Enum:     field.Enum,
			Mods:     append(append([]Modifier(nil), field.Mods...), impliedMods...),
		}
		if field.HasMod(ModDisable{}) {
			compiledField.Sw, compiledField.Hw = SwRO, HwNA
		}
		regStruct.Fields = append(regStruct.Fields, compiledField)
	}
	return field.ArraySize, nil
}

// validateLimit checks that every limit literal fits the field width. Enum
// limits carry no literals of their own.
func validateLimit(field *FieldDecl) error {
	if field.Width >= 64 {
		return nil
	}
	top := uint64(1)<<uint(field.Width) - 1
	for _, mod := range field.Mods {
		limit, ok := mod.(ModLimit)
		if !ok {
			continue
		}
		switch limit.Kind {
		case LimitRange:
			if limit.Max > top {
				return makeRangeError(field.Line,
					"limit bound 0x%x does not fit the %d-bit field %s", limit.Max, field.Width, field.Name)
			}
		case LimitSet:
			for _, value := range limit.Values {
				if value > top {
					return makeRangeError(field.Line,
						"limit value 0x%x does not fit the %d-bit field %s", value, field.Width, field.Name)
				}
			}
		}
	}
	return nil
}

// fieldReset returns the reset value of one array index and checks it fits.
func fieldReset(field *FieldDecl, index int) (uint64, bool, error) {
	if len(field.Resets) == 0 {
		return 0, false, nil
	}
	reset := field.Resets[0]
	if len(field.Resets) > 1 {
		reset = field.Resets[index]
	}
	if field.Width < 64 && reset >= uint64(1)<<uint(field.Width) {
		return 0, false, makeRangeError(field.Line,
			"reset value 0x%x does not fit the %d-bit field %s", reset, field.Width, field.Name)
	}
	return reset, true, nil
}

// resolveAccess applies the default-and-override access rules:
//   - nothing declared: a reset makes it a software register (sw rw, hw r),
//     no reset makes it a hardware status (sw ro, hw w)
//   - software-only declared: read-write kinds leave hardware read-only;
//     read-only and clear/set kinds leave hardware write-only with an
//     implied update mechanism
//   - both writable sides need an explicit update qualifier
//   - counter fields are hardware-read-only unless hw rw follows counter
//
// For interrupt registers the clear mode dictates the software kind and
// hardware drives the status, so the rules above are bypassed.
func (elab *elaborator) resolveAccess(reg *RegDecl, field *FieldDecl) (SwAccess, HwAccess, []Modifier, error) {
	if reg.Intr != nil {
		return intrAccess(reg.Intr, field)
	}
	sw, hw := field.Sw, field.Hw
	hasReset := len(field.Resets) > 0
	var implied []Modifier
	switch {
	case !field.HasSw && !field.HasHw:
		if hasReset {
			sw, hw = SwRW, HwR
		} else {
			sw, hw = SwRO, HwW
		}
	case field.HasSw && !field.HasHw:
		switch sw {
		case SwRW, SwWO:
			hw = HwR
		default:
			// ro and the clear/set kinds exist to expose hardware state.
			hw = HwW
			implied = impliedUpdateMod(sw, field.Width)
		}
	case !field.HasSw && field.HasHw:
		if hw.CanWrite() && !hasReset {
			sw = SwRO
		} else {
			sw = SwRW
		}
	}
	counterHw, err := counterAccess(field, hw)
	if err != nil {
		return 0, 0, nil, err
	}
	hw = counterHw
	if sw.CanWrite() && hw.CanWrite() && field.HasHw {
		if !hasUpdateMechanism(field) && len(implied) == 0 {
			return 0, 0, nil, makeConflictError(field.Line,
				"field %s is written by both software and hardware without we, wel, hwset, hwclr or hwtgl",
				field.Name)
		}
	}
	return sw, hw, implied, nil
}

// impliedUpdateMod picks the hardware update mechanism implied by a software
// clear/set kind: wide fields get a write-enable, single bits get the
// opposite-direction strobe.
func impliedUpdateMod(sw SwAccess, width int) []Modifier {
	if width > 1 {
		return []Modifier{ModWe{}}
	}
	if sw == SwW1SET {
		return []Modifier{ModHwClr{}}
	}
	return []Modifier{ModHwSet{}}
}

func hasUpdateMechanism(field *FieldDecl) bool {
	for _, mod := range field.Mods {
		switch mod.(type) {
		case ModWe, ModHwSet, ModHwClr, ModHwTgl, ModCounter:
			return true
		}
	}
	return false
}

// counterAccess enforces the declaration-order rule: a counter field is
// hardware-read-only unless hw rw appears after the counter modifier.
func counterAccess(field *FieldDecl, hw HwAccess) (HwAccess, error) {
	counterAt := -1
	hwRwAfter := false
	for i, mod := range field.Mods {
		switch typed := mod.(type) {
		case ModCounter:
			counterAt = i
		case ModHwAccess:
			if !typed.Access.CanWrite() && typed.Access != HwRW {
				continue
			}
			if counterAt < 0 {
				if field.HasMod(ModCounter{}) {
					return 0, makeStructuralError(field.Line,
						"field %s declares hw access before the counter modifier", field.Name)
				}
				continue
			}
			if typed.Access == HwRW {
				hwRwAfter = true
			}
		}
	}
	if counterAt < 0 {
		return hw, nil
	}
	if hwRwAfter {
		return HwRW, nil
	}
	return HwR, nil
}

var intrClearSw = map[IntrClear]SwAccess{
	IntrRclr:  SwRCLR,
	IntrW1clr: SwW1CLR,
	IntrW0clr: SwW0CLR,
	IntrHwclr: SwRO,
}

// intrAccess derives the access pair of an interrupt status field from the
// clear mode; hardware always drives the status.
func intrAccess(intr *IntrSpec, field *FieldDecl) (SwAccess, HwAccess, []Modifier, error) {
	sw := intrClearSw[intr.Clear]
	if field.HasSw {
		sw = field.Sw
	}
	hw := HwW
	if field.HasHw && field.Hw == HwNA {
		hw = HwNA
	}
	return sw, hw, []Modifier{ModHwSet{}}, nil
}

// resolveClocking walks the field, register, page, top inheritance chain.
// Hardware-writable fields run on the hardware clock domain, everything else
// on the software one.
func (elab *elaborator) resolveClocking(pageDecl *PageDecl, reg *RegDecl, field *FieldDecl, hw HwAccess) (clock, resetSig, clkEn string) {
	hwSide := hw.CanWrite()
	clock = elab.top.SwClock
	if hwSide && len(elab.top.HwClocks) > 0 {
		clock = elab.top.HwClocks[0]
	}
	if reg.Clock != "" {
		clock = reg.Clock
	}
	resetSig = elab.top.SwReset.Name
	if hwSide && len(elab.top.HwResets) > 0 {
		resetSig = elab.top.HwResets[0].Name
	}
	if reg.HwReset != "" {
		resetSig = reg.HwReset
	}
	clkEn = elab.top.SwClkEn
	if hwSide && elab.top.HwClkEn != "" {
		clkEn = elab.top.HwClkEn
	}
	if pageDecl.ClkEn != "" {
		clkEn = pageDecl.ClkEn
	}
	if reg.ClkEn != "" {
		clkEn = reg.ClkEn
	}
	for _, mod := range field.Mods {
		if typed, ok := mod.(ModClkEn); ok {
			clkEn = typed.Signal
		}
	}
	return clock, resetSig, clkEn
}

// expandDesc substitutes $name and $i in a description; index -1 leaves $i
// undefined.
func (elab *elaborator) expandDesc(desc string, index int, line int) (string, error) {
	if desc == "" {
		return "", nil
	}
	symbols := parser.SymbolTable(elab.symbols)
	if index >= 0 {
		symbols = elab.symbols.child(map[string]parser.Value{
			"i": parser.NumberValue(float64(index)),
		})
	}
	expanded, err := substitute(desc, symbols)
	if err != nil {
		return "", wrapExprError(err, line)
	}
	return expanded, nil
}

// validateOverlap rejects two fields occupying the same bits unless both are
// partial slices of multi-register fields.
func validateOverlap(regStruct *RegStruct, line int) error {
	for i, a := range regStruct.Fields {
		for _, b := range regStruct.Fields[i+1:] {
			if a.Partial && b.Partial {
				continue
			}
			lo := maxInt(a.Lsb, b.Lsb)
			hi := minInt(a.Msb(), b.Msb())
			if lo <= hi {
				return makeConflictError(line,
					"fields %s [%d:%d] and %s [%d:%d] of register %s overlap in bits [%d:%d]",
					a.InstName(), a.Msb(), a.Lsb, b.InstName(), b.Msb(), b.Lsb,
					regStruct.Name, hi, lo)
			}
		}
	}
	return nil
}

// shadowStructs synthesizes the _en, _mask and _pending companions of an
// interrupt register.
func (elab *elaborator) shadowStructs(base *RegStruct) []*RegStruct {
	if base.Intr == nil {
		return nil
	}
	var shadows []*RegStruct
	if base.Intr.Enable != nil {
		shadows = append(shadows, makeShadow(base, "_en", *base.Intr.Enable,
			"Interrupt enable for "+base.Name))
	}
	if base.Intr.Mask != nil {
		shadows = append(shadows, makeShadow(base, "_mask", *base.Intr.Mask,
			"Interrupt mask for "+base.Name))
	}
	if base.Intr.Pending {
		pending := makeShadow(base, "_pending", 0, "Pending interrupts of "+base.Name+" (status AND mask)")
		for _, field := range pending.Fields {
			field.Sw, field.Hw = SwRO, HwNA
		}
		shadows = append(shadows, pending)
	}
	return shadows
}

// makeShadow clones the field geometry of base with every field reset to
// value (clipped to the field width) and plain software read-write access.
func makeShadow(base *RegStruct, suffix string, value uint64, desc string) *RegStruct {
	shadow := &RegStruct{Name: base.Name + suffix, Desc: desc}
	for _, field := range base.Fields {
		reset := value
		if field.Width < 64 {
			reset &= (uint64(1) << uint(field.Width)) - 1
		}
		shadowField := &Field{
			Name:     field.Name,
			Index:    field.Index,
			Lsb:      field.Lsb,
			Width:    field.Width,
			Reset:    reset,
			HasReset: true,
			Sw:       SwRW,
			Hw:       HwR,
			Desc:     field.Desc,
			Clock:    field.Clock,
			ResetSig: field.ResetSig,
			ClkEn:    field.ClkEn,
		}
		shadow.Fields = append(shadow.Fields, shadowField)
		shadow.Reset |= reset << uint(field.Lsb)
	}
	return shadow
}

// buildInstances returns the addressed placements of a page, auto-created
// from the register declarations when none are declared explicitly, plus an
// instance per interrupt shadow right after its base.
func (elab *elaborator) buildInstances(pageDecl *PageDecl, page *Page, regStructs map[string]*RegStruct) ([]*Instance, error) {
	var instances []*Instance
	appendWithShadows := func(inst *Instance, regStruct *RegStruct) {
		instances = append(instances, inst)
		if regStruct == nil || regStruct.Intr == nil {
			return
		}
		for _, suffix := range shadowSuffixes(regStruct.Intr) {
			shadowStruct := findStruct(page, regStruct.Name+suffix)
			instances = append(instances, &Instance{
				Name:      inst.Name + suffix,
				Type:      regStruct.Name + suffix,
				ArraySize: inst.ArraySize,
				Reset:     shadowStruct.Reset,
			})
		}
	}
	if len(pageDecl.Instances) == 0 || pageDecl.InstancesAuto {
		for _, reg := range pageDecl.Registers {
			regStruct := regStructs[reg.Name]
			appendWithShadows(&Instance{
				Name:      reg.Name,
				Type:      regStruct.Name,
				ArraySize: 1,
				Reset:     regStruct.Reset,
			}, regStruct)
		}
		return instances, nil
	}
	for _, decl := range pageDecl.Instances {
		regStruct := regStructs[decl.Type]
		if regStruct == nil {
			regStruct = findStruct(page, decl.Type)
		}
		if regStruct == nil {
			return nil, makeReferenceError(decl.Line,
				"instance %s references unknown register %s", decl.Name, decl.Type)
		}
		desc, err := elab.expandDesc(decl.Desc, -1, decl.Line)
		if err != nil {
			return nil, err
		}
		inst := &Instance{
			Name:      decl.Name,
			Type:      regStruct.Name,
			Group:     decl.GroupInst,
			AddrKind:  decl.AddrKind,
			Addr:      decl.Addr,
			ArraySize: decl.ArraySize,
			Desc:      desc,
			HwNA:      decl.HwNA,
		}
		reset, err := instanceReset(regStruct, decl)
		if err != nil {
			return nil, err
		}
		inst.Reset = reset
		inst.FieldDesc, err = elab.instanceFieldDescs(regStruct, decl)
		if err != nil {
			return nil, err
		}
		appendWithShadows(inst, regStruct)
	}
	return instances, nil
}

func shadowSuffixes(intr *IntrSpec) []string {
	var suffixes []string
	if intr.Enable != nil {
		suffixes = append(suffixes, "_en")
	}
	if intr.Mask != nil {
		suffixes = append(suffixes, "_mask")
	}
	if intr.Pending {
		suffixes = append(suffixes, "_pending")
	}
	return suffixes
}

func findStruct(page *Page, name string) *RegStruct {
	for _, regStruct := range page.Structs {
		if regStruct.Name == name {
			return regStruct
		}
	}
	return nil
}

// instanceFieldDescs expands per-instance field description overrides and
// checks they name fields of the backing structure.
func (elab *elaborator) instanceFieldDescs(regStruct *RegStruct, decl *InstanceDecl) (map[string]string, error) {
	if len(decl.FieldDesc) == 0 {
		return nil, nil
	}
	descs := map[string]string{}
	for name, text := range decl.FieldDesc {
		if regStruct.field(name) == nil {
			return nil, makeReferenceError(decl.Line,
				"instance %s overrides description of unknown field %s", decl.Name, name)
		}
		expanded, err := elab.expandDesc(text, -1, decl.Line)
		if err != nil {
			return nil, err
		}
		descs[name] = expanded
	}
	return descs, nil
}

// instanceReset recomputes the packed reset with per-instance field
// overrides applied.
func instanceReset(regStruct *RegStruct, decl *InstanceDecl) (uint64, error) {
	reset := regStruct.Reset
	for name, value := range decl.FieldRst {
		field := regStruct.field(name)
		if field == nil {
			return 0, makeReferenceError(decl.Line,
				"instance %s overrides reset of unknown field %s", decl.Name, name)
		}
		if field.Width < 64 && value >= uint64(1)<<uint(field.Width) {
			return 0, makeRangeError(decl.Line,
				"reset override 0x%x does not fit the %d-bit field %s", value, field.Width, name)
		}
		mask := ^(((uint64(1) << uint(field.Width)) - 1) << uint(field.Lsb))
		reset = reset&mask | value<<uint(field.Lsb)
	}
	return reset, nil
}

// structTopBit returns the first bit above every placed field.
func structTopBit(regStruct *RegStruct) int {
	top := 0
	for _, field := range regStruct.Fields {
		top = maxInt(top, field.Msb()+1)
	}
	return top
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
