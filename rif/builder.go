package rif

import (
	"fmt"
	"strings"

	"rifc/parser"
	"rifc/util"
)

// The declaration builder walks the node tree into the typed declarations of
// decl.go. Surface grammar, by context:
//
//	rif <name>
//	    addrWidth: 16        dataWidth: 32       interface: apb
//	    clk: <name>          hwClk: <name> ...
//	    rst: <name> [activeLow|activeHigh] [async|sync]     hwRst: ...
//	    clkEn: <name>        hwClkEn: <name>
//	    clear: <name>        hwClear: <name>
//	    parameters:
//	        <name> = <expr>
//	    generics:
//	        <name> = <default> | <min>:<max> | <min>:<default>:<max>
//	    page <name> @<addr>
//	        registers:
//	            reg <name> [<group> | <rif>::<group>]
//	                field <name>[<size>] <pos> [rst=<val>] ["<desc>"]
//	                    <modifier lines>
//	        instances: [auto]
//	            - <name> [= <type>] [@<addr>] [[<size>]]
//
// Every $name in a numeric context is substituted from the symbol table
// before interpretation. optional: conditions are evaluated here and a false
// condition drops the declaration and everything under it.

var interfaceKinds = map[string]InterfaceKind{
	"default": IntfDefault,
	"apb":     IntfAPB,
	"uaux":    IntfUAUX,
}

var swAccessKinds = map[string]SwAccess{
	"rw": SwRW, "ro": SwRO, "wo": SwWO, "rclr": SwRCLR,
	"w1clr": SwW1CLR, "w0clr": SwW0CLR, "w1set": SwW1SET,
}

var hwAccessKinds = map[string]HwAccess{
	"r": HwR, "ro": HwR, "w": HwW, "wo": HwW, "rw": HwRW, "na": HwNA,
}

var intrTriggers = map[string]IntrTrigger{
	"high": IntrHigh, "low": IntrLow, "rising": IntrRising,
	"falling": IntrFalling, "edge": IntrEdge,
}

var intrClears = map[string]IntrClear{
	"rclr": IntrRclr, "wclr": IntrW1clr, "w1clr": IntrW1clr,
	"w0clr": IntrW0clr, "hwclr": IntrHwclr,
}

var pulseKinds = map[string]PulseKind{
	"write": PulseWrite, "read": PulseRead, "access": PulseAccess,
}

var counterDirs = map[string]CounterDir{
	"up": CounterUp, "down": CounterDown, "updown": CounterUpDown,
}

var passwordKinds = map[string]PasswordKind{
	"once": PasswordOnce, "hold": PasswordHold, "protect": PasswordProtect,
}

type declBuilder struct {
	symbols  *SymbolTable
	generics []*GenericDecl
}

// buildParamDecls extracts parameter and generic declarations from the raw
// tree before anything else is interpreted, so that the resolver can run
// first and the rest of the build can substitute resolved values.
func buildParamDecls(tree *parser.Node) ([]*ParamDecl, []*GenericDecl, error) {
	topNode := tree.Child("rif")
	if topNode == nil {
		return nil, nil, makeStructuralError(0, "no rif declaration in file")
	}
	var params []*ParamDecl
	var generics []*GenericDecl
	for _, node := range topNode.Children {
		switch node.Key {
		case "parameters":
			for _, paramNode := range node.Children {
				expr := strings.TrimSpace(strings.TrimPrefix(paramNode.Value, "="))
				if paramNode.Key == "" || expr == "" {
					return nil, nil, makeSyntaxError(paramNode.Line, "parameter needs the form name = expr")
				}
				params = append(params, &ParamDecl{Name: paramNode.Key, Expr: expr, Line: paramNode.Line})
			}
		case "generics":
			for _, genericNode := range node.Children {
				generic, err := buildGeneric(genericNode)
				if err != nil {
					return nil, nil, err
				}
				generics = append(generics, generic)
			}
		}
	}
	return params, generics, nil
}

// buildGeneric parses "name = v", "name = min:max" or "name = min:def:max".
func buildGeneric(node *parser.Node) (*GenericDecl, error) {
	spec := strings.TrimSpace(strings.TrimPrefix(node.Value, "="))
	parts := strings.Split(spec, ":")
	values := make([]int64, 0, 3)
	for _, part := range parts {
		num, ok := util.ParseUint(strings.TrimSpace(part))
		if !ok {
			return nil, makeSyntaxError(node.Line, "malformed generic bound %q", part)
		}
		values = append(values, int64(num))
	}
	generic := &GenericDecl{Name: node.Key, Line: node.Line}
	switch len(values) {
	case 1:
		generic.Min, generic.Default, generic.Max = 1, values[0], values[0]
	case 2:
		generic.Min, generic.Default, generic.Max = 1, values[0], values[1]
	case 3:
		generic.Min, generic.Default, generic.Max = values[0], values[1], values[2]
	default:
		return nil, makeSyntaxError(node.Line, "generic needs 1 to 3 bounds, got %d", len(values))
	}
	return generic, nil
}

// buildDecl interprets the whole tree against the resolved symbol table.
func buildDecl(tree *parser.Node, symbols *SymbolTable, params []*ParamDecl, generics []*GenericDecl) (*TopDecl, error) {
	builder := &declBuilder{symbols: symbols, generics: generics}
	topNode := tree.Child("rif")
	if topNode == nil {
		return nil, makeStructuralError(0, "no rif declaration in file")
	}
	top := &TopDecl{
		Name:      topNode.Value,
		AddrWidth: 16,
		DataWidth: 32,
		SwClock:   "clk",
		SwReset:   ResetDecl{Name: "rst_n", ActiveLow: true, Async: true},
		Params:    params,
		Generics:  generics,
		Line:      topNode.Line,
	}
	if top.Name == "" {
		return nil, makeSyntaxError(topNode.Line, "rif declaration needs a name")
	}
	swClockSet, swResetSet := false, false
	for _, node := range topNode.Children {
		switch node.Key {
		case "parameters", "generics":
			// Consumed by buildParamDecls.
		case "addrWidth":
			width, err := builder.intValue(node.Value, node.Line)
			if err != nil {
				return nil, err
			}
			top.AddrWidth = width
		case "dataWidth":
			width, err := builder.intValue(node.Value, node.Line)
			if err != nil {
				return nil, err
			}
			top.DataWidth = width
		case "interface":
			kind, ok := interfaceKinds[node.Value]
			if !ok {
				return nil, makeSyntaxError(node.Line, "unknown interface kind %q", node.Value)
			}
			top.Interface = kind
		case "clk":
			top.SwClock = node.Value
			swClockSet = true
		case "hwClk":
			top.HwClocks = append(top.HwClocks, strings.Fields(node.Value)...)
		case "rst":
			reset, err := buildReset(node)
			if err != nil {
				return nil, err
			}
			top.SwReset = reset
			swResetSet = true
		case "hwRst":
			reset, err := buildReset(node)
			if err != nil {
				return nil, err
			}
			top.HwResets = append(top.HwResets, reset)
		case "clkEn":
			top.SwClkEn = node.Value
		case "hwClkEn":
			top.HwClkEn = node.Value
		case "clear":
			top.SwClear = node.Value
		case "hwClear":
			top.HwClear = node.Value
		case "page":
			page, keep, err := builder.buildPage(node)
			if err != nil {
				return nil, err
			}
			if keep {
				top.Pages = append(top.Pages, page)
			}
		default:
			return nil, makeSyntaxError(node.Line, "unknown rif property %q", node.Key)
		}
	}
	// The APB wrapper brings its own bus clock and reset names.
	if top.Interface == IntfAPB {
		if !swClockSet {
			top.SwClock = "pclk"
		}
		if !swResetSet {
			top.SwReset = ResetDecl{Name: "presetn", ActiveLow: true, Async: true}
		}
	}
	if len(top.Pages) == 0 {
		return nil, makeStructuralError(topNode.Line, "rif %s declares no page", top.Name)
	}
	return top, nil
}

func buildReset(node *parser.Node) (ResetDecl, error) {
	tokens := strings.Fields(node.Value)
	if len(tokens) == 0 {
		return ResetDecl{}, makeSyntaxError(node.Line, "reset needs a signal name")
	}
	reset := ResetDecl{Name: tokens[0], ActiveLow: true, Async: true}
	for _, token := range tokens[1:] {
		switch token {
		case "activeLow":
			reset.ActiveLow = true
		case "activeHigh":
			reset.ActiveLow = false
		case "async":
			reset.Async = true
		case "sync":
			reset.Async = false
		default:
			return ResetDecl{}, makeSyntaxError(node.Line, "unknown reset attribute %q", token)
		}
	}
	return reset, nil
}

func (builder *declBuilder) buildPage(node *parser.Node) (*PageDecl, bool, error) {
	tokens, err := builder.splitValue(node.Value, node.Line)
	if err != nil {
		return nil, false, err
	}
	if len(tokens) == 0 {
		return nil, false, makeSyntaxError(node.Line, "page needs a name")
	}
	page := &PageDecl{Name: tokens[0], Line: node.Line}
	for i := 1; i < len(tokens); i++ {
		token := tokens[i]
		if !strings.HasPrefix(token, "@") {
			return nil, false, makeSyntaxError(node.Line, "unexpected page token %q", token)
		}
		spec := strings.TrimPrefix(token, "@")
		if spec == "" {
			// "@ addr" with a separating space.
			i++
			if i == len(tokens) {
				return nil, false, makeSyntaxError(node.Line, "page '@' needs an address")
			}
			spec = tokens[i]
		}
		page.BaseAddr, err = builder.uintValue(spec, node.Line)
		if err != nil {
			return nil, false, err
		}
	}
	for _, child := range node.Children {
		switch child.Key {
		case "addrWidth":
			page.AddrWidth, err = builder.intValue(child.Value, child.Line)
			if err != nil {
				return nil, false, err
			}
		case "clkEn":
			page.ClkEn = child.Value
		case "external":
			page.External = true
		case "optional":
			keep, err := builder.evalOptional(child)
			if err != nil {
				return nil, false, err
			}
			if !keep {
				return nil, false, nil
			}
		case "include":
			page.Include = child.Value
		case "registers":
			for _, regNode := range child.Children {
				if regNode.Key != "reg" {
					return nil, false, makeSyntaxError(regNode.Line, "expected reg declaration, got %q", regNode.Key)
				}
				reg, keep, err := builder.buildRegister(regNode)
				if err != nil {
					return nil, false, err
				}
				if keep {
					page.Registers = append(page.Registers, reg)
				}
			}
		case "instances":
			page.InstancesAuto = child.Value == "auto"
			for _, instNode := range child.Children {
				inst, err := builder.buildInstance(instNode)
				if err != nil {
					return nil, false, err
				}
				page.Instances = append(page.Instances, inst)
			}
		default:
			return nil, false, makeSyntaxError(child.Line, "unknown page property %q", child.Key)
		}
	}
	if page.Include != "" && (len(page.Registers) > 0 || len(page.Instances) > 0) {
		return nil, false, makeStructuralError(page.Line,
			"page %s mixes a page include with manual registers or instances", page.Name)
	}
	if page.External && page.AddrWidth == 0 {
		return nil, false, makeStructuralError(page.Line,
			"external page %s needs an explicit addrWidth", page.Name)
	}
	return page, true, nil
}

func (builder *declBuilder) buildRegister(node *parser.Node) (*RegDecl, bool, error) {
	tokens := strings.Fields(node.Value)
	if len(tokens) == 0 {
		return nil, false, makeSyntaxError(node.Line, "reg needs a name")
	}
	reg := &RegDecl{Name: tokens[0], Line: node.Line}
	if len(tokens) > 1 {
		group := tokens[1]
		if sep := strings.Index(group, "::"); sep >= 0 {
			reg.GroupRif, group = group[:sep], group[sep+2:]
		}
		reg.Group = group
	}
	if len(tokens) > 2 {
		return nil, false, makeSyntaxError(node.Line, "unexpected reg token %q", tokens[2])
	}
	for _, child := range node.Children {
		switch child.Key {
		case "desc":
			reg.Desc = child.Text()
		case "clk":
			reg.Clock = child.Value
		case "rst":
			reg.HwReset = child.Value
		case "clkEn":
			reg.ClkEn = child.Value
		case "external":
			reg.External = true
		case "externalDone":
			reg.External, reg.ExternalDone = true, true
		case "pulse":
			pulse, err := builder.buildPulse(child)
			if err != nil {
				return nil, false, err
			}
			reg.Pulses = append(reg.Pulses, pulse)
		case "interrupt":
			intr, err := builder.buildInterrupt(child)
			if err != nil {
				return nil, false, err
			}
			reg.Intr = intr
		case "optional":
			keep, err := builder.evalOptional(child)
			if err != nil {
				return nil, false, err
			}
			if !keep {
				return nil, false, nil
			}
		case "include":
			reg.Include = child.Value
		case "field":
			field, keep, err := builder.buildField(child)
			if err != nil {
				return nil, false, err
			}
			if keep {
				reg.Fields = append(reg.Fields, field)
			}
		default:
			return nil, false, makeSyntaxError(child.Line, "unknown reg property %q", child.Key)
		}
	}
	if reg.Include != "" && len(reg.Fields) > 0 {
		return nil, false, makeStructuralError(reg.Line,
			"reg %s mixes an include with explicit fields", reg.Name)
	}
	return reg, true, nil
}

func (builder *declBuilder) buildPulse(node *parser.Node) (PulseSpec, error) {
	tokens := strings.Fields(node.Value)
	if len(tokens) == 0 {
		return PulseSpec{}, makeSyntaxError(node.Line, "pulse needs a kind: write, read or access")
	}
	kind, ok := pulseKinds[tokens[0]]
	if !ok {
		return PulseSpec{}, makeSyntaxError(node.Line, "unknown pulse kind %q", tokens[0])
	}
	pulse := PulseSpec{Kind: kind, Reg: kind != PulseRead}
	for _, token := range tokens[1:] {
		switch {
		case token == "comb":
			pulse.Reg = false
		case token == "reg":
			pulse.Reg = true
		case strings.HasPrefix(token, "clk="):
			pulse.Clock = strings.TrimPrefix(token, "clk=")
		default:
			return PulseSpec{}, makeSyntaxError(node.Line, "unknown pulse attribute %q", token)
		}
	}
	return pulse, nil
}

func (builder *declBuilder) buildInterrupt(node *parser.Node) (*IntrSpec, error) {
	intr := &IntrSpec{Trigger: IntrHigh, Clear: IntrRclr}
	tokens, err := builder.splitValue(node.Value, node.Line)
	if err != nil {
		return nil, err
	}
	for _, token := range tokens {
		if trigger, ok := intrTriggers[token]; ok {
			intr.Trigger = trigger
			continue
		}
		if clear, ok := intrClears[token]; ok {
			intr.Clear = clear
			continue
		}
		switch {
		case token == "pending":
			intr.Pending = true
		case strings.HasPrefix(token, "enable="):
			value, err := builder.uintValue(strings.TrimPrefix(token, "enable="), node.Line)
			if err != nil {
				return nil, err
			}
			intr.Enable = &value
		case strings.HasPrefix(token, "mask="):
			value, err := builder.uintValue(strings.TrimPrefix(token, "mask="), node.Line)
			if err != nil {
				return nil, err
			}
			intr.Mask = &value
		default:
			return nil, makeSyntaxError(node.Line, "unknown interrupt attribute %q", token)
		}
	}
	if intr.Pending && intr.Mask == nil {
		return nil, makeStructuralError(node.Line, "interrupt pending requires mask")
	}
	return intr, nil
}

// buildField parses "field name[size] pos [rst=val] [\"desc\"]" and the
// modifier lines nested under it.
func (builder *declBuilder) buildField(node *parser.Node) (*FieldDecl, bool, error) {
	field := &FieldDecl{ArraySize: 1, ArrayPartial: -1, Width: 1, Line: node.Line}
	tokens, err := builder.splitValue(node.Value, node.Line)
	if err != nil {
		return nil, false, err
	}
	if len(tokens) == 0 {
		return nil, false, makeSyntaxError(node.Line, "field needs a name")
	}
	if err := builder.parseFieldName(field, tokens[0], node.Line); err != nil {
		return nil, false, err
	}
	for _, token := range tokens[1:] {
		switch {
		case strings.HasPrefix(token, "\""):
			field.Desc = util.UnQuote(token)
		case strings.HasPrefix(token, "rst="):
			if err := builder.parseFieldReset(field, strings.TrimPrefix(token, "rst="), node.Line); err != nil {
				return nil, false, err
			}
		default:
			if err := builder.parseFieldPos(field, token, node.Line); err != nil {
				return nil, false, err
			}
		}
	}
	for _, child := range node.Children {
		keep, err := builder.buildFieldProperty(field, child)
		if err != nil {
			return nil, false, err
		}
		if !keep {
			return nil, false, nil
		}
	}
	return field, true, nil
}

func (builder *declBuilder) parseFieldName(field *FieldDecl, token string, line int) error {
	name := token
	if open := strings.Index(token, "["); open >= 0 {
		if !strings.HasSuffix(token, "]") {
			return makeSyntaxError(line, "malformed field array size in %q", token)
		}
		size, err := builder.intValue(token[open+1:len(token)-1], line)
		if err != nil {
			return err
		}
		if size < 1 {
			return makeRangeError(line, "field array size must be positive, got %d", size)
		}
		name, field.ArraySize = token[:open], size
	}
	if name == "" || !util.IsLetterOrUnderscore(name[0]) {
		return makeSyntaxError(line, "malformed field name %q", token)
	}
	field.Name = name
	return nil
}

// parseFieldPos accepts msb:lsb, lsb+:width and Nb position forms.
func (builder *declBuilder) parseFieldPos(field *FieldDecl, token string, line int) error {
	switch {
	case strings.Contains(token, "+:"):
		parts := strings.SplitN(token, "+:", 2)
		lsb, err := builder.intValue(parts[0], line)
		if err != nil {
			return err
		}
		width, err := builder.intValue(parts[1], line)
		if err != nil {
			return err
		}
		field.Lsb, field.Width, field.HasPos = lsb, width, true
	case strings.Contains(token, ":"):
		parts := strings.SplitN(token, ":", 2)
		msb, err := builder.intValue(parts[0], line)
		if err != nil {
			return err
		}
		lsb, err := builder.intValue(parts[1], line)
		if err != nil {
			return err
		}
		if msb < lsb {
			return makeRangeError(line, "field position %q has msb below lsb", token)
		}
		field.Lsb, field.Width, field.HasPos = lsb, msb-lsb+1, true
	case strings.HasSuffix(token, "b"):
		width, err := builder.intValue(strings.TrimSuffix(token, "b"), line)
		if err != nil {
			return err
		}
		field.Width = width
	default:
		return makeSyntaxError(line, "malformed field position %q", token)
	}
	if field.Width < 1 {
		return makeRangeError(line, "field width must be positive")
	}
	return nil
}

// parseFieldReset accepts a single value or a {v0, v1, ...} per-index list.
func (builder *declBuilder) parseFieldReset(field *FieldDecl, spec string, line int) error {
	if strings.HasPrefix(spec, "{") && strings.HasSuffix(spec, "}") {
		for _, part := range strings.Split(spec[1:len(spec)-1], ",") {
			value, err := builder.uintValue(strings.TrimSpace(part), line)
			if err != nil {
				return err
			}
			field.Resets = append(field.Resets, value)
		}
		return nil
	}
	value, err := builder.uintValue(spec, line)
	if err != nil {
		return err
	}
	field.Resets = []uint64{value}
	return nil
}

// buildFieldProperty dispatches one modifier line. Returns keep=false when a
// false optional: condition drops the whole field.
func (builder *declBuilder) buildFieldProperty(field *FieldDecl, node *parser.Node) (bool, error) {
	switch node.Key {
	case "desc":
		field.Desc = node.Text()
	case "sw":
		kind, ok := swAccessKinds[node.Value]
		if !ok {
			return false, makeSyntaxError(node.Line, "unknown sw access %q", node.Value)
		}
		field.Sw, field.HasSw = kind, true
	case "hw":
		kind, ok := hwAccessKinds[node.Value]
		if !ok {
			return false, makeSyntaxError(node.Line, "unknown hw access %q", node.Value)
		}
		field.Hw, field.HasHw = kind, true
		field.Mods = append(field.Mods, ModHwAccess{Access: kind})
	case "clkEn":
		field.Mods = append(field.Mods, ModClkEn{Signal: node.Value})
	case "hwset":
		field.Mods = append(field.Mods, ModHwSet{Signal: node.Value})
	case "hwclr":
		field.Mods = append(field.Mods, ModHwClr{Signal: node.Value})
	case "hwtgl":
		field.Mods = append(field.Mods, ModHwTgl{Signal: node.Value})
	case "lock":
		field.Mods = append(field.Mods, ModLock{Signal: node.Value})
	case "we":
		field.Mods = append(field.Mods, ModWe{})
	case "wel":
		field.Mods = append(field.Mods, ModWe{Low: true})
	case "pulse":
		field.Mods = append(field.Mods, ModPulse{Comb: node.Value == "comb"})
	case "toggle":
		field.Mods = append(field.Mods, ModToggle{})
	case "swset":
		field.Mods = append(field.Mods, ModSwSet{})
	case "signed":
		field.Mods = append(field.Mods, ModSigned{})
	case "clear":
		field.Mods = append(field.Mods, ModClear{})
	case "hidden":
		field.Mods = append(field.Mods, ModHidden{})
	case "reserved":
		field.Mods = append(field.Mods, ModReserved{})
	case "disable":
		field.Mods = append(field.Mods, ModDisable{})
	case "counter":
		counter, err := builder.buildCounter(node)
		if err != nil {
			return false, err
		}
		field.Mods = append(field.Mods, counter)
	case "partial":
		offset, err := builder.intValue(node.Value, node.Line)
		if err != nil {
			return false, err
		}
		field.Mods = append(field.Mods, ModPartial{LsbOffset: offset})
	case "arrayPosIncr":
		incr, err := builder.intValue(node.Value, node.Line)
		if err != nil {
			return false, err
		}
		field.ArrayPosIncr = incr
	case "arrayPartial":
		offset, err := builder.intValue(node.Value, node.Line)
		if err != nil {
			return false, err
		}
		field.ArrayPartial = offset
	case "limit":
		limit, err := builder.buildLimit(node)
		if err != nil {
			return false, err
		}
		field.Mods = append(field.Mods, limit)
	case "password":
		password, err := builder.buildPassword(node)
		if err != nil {
			return false, err
		}
		field.Mods = append(field.Mods, password)
	case "enum":
		enum, err := builder.buildEnum(node)
		if err != nil {
			return false, err
		}
		field.Enum = enum
	case "optional":
		return builder.evalOptional(node)
	default:
		return false, makeSyntaxError(node.Line, "unknown field property %q", node.Key)
	}
	return true, nil
}

func (builder *declBuilder) buildCounter(node *parser.Node) (ModCounter, error) {
	counter := ModCounter{Dir: CounterUp}
	for _, token := range strings.Fields(node.Value) {
		if dir, ok := counterDirs[token]; ok {
			counter.Dir = dir
			continue
		}
		switch {
		case strings.HasPrefix(token, "incr="):
			counter.IncrSig = strings.TrimPrefix(token, "incr=")
		case strings.HasPrefix(token, "decr="):
			counter.DecrSig = strings.TrimPrefix(token, "decr=")
		case token == "clr":
			counter.Clear = true
		case token == "sat":
			counter.Saturate = true
		default:
			return ModCounter{}, makeSyntaxError(node.Line, "unknown counter attribute %q", token)
		}
	}
	return counter, nil
}

func (builder *declBuilder) buildLimit(node *parser.Node) (ModLimit, error) {
	tokens, err := builder.splitValue(node.Value, node.Line)
	if err != nil {
		return ModLimit{}, err
	}
	if len(tokens) == 0 {
		return ModLimit{}, makeSyntaxError(node.Line, "limit needs a range, value set or enum")
	}
	limit := ModLimit{}
	switch spec := tokens[0]; {
	case spec == "enum":
		limit.Kind = LimitEnum
	case strings.HasPrefix(spec, "{") && strings.HasSuffix(spec, "}"):
		limit.Kind = LimitSet
		for _, part := range strings.Split(spec[1:len(spec)-1], ",") {
			value, err := builder.uintValue(strings.TrimSpace(part), node.Line)
			if err != nil {
				return ModLimit{}, err
			}
			limit.Values = append(limit.Values, value)
		}
	case strings.Contains(spec, ":"):
		parts := strings.SplitN(spec, ":", 2)
		if limit.Min, err = builder.uintValue(parts[0], node.Line); err != nil {
			return ModLimit{}, err
		}
		if limit.Max, err = builder.uintValue(parts[1], node.Line); err != nil {
			return ModLimit{}, err
		}
		if limit.Min > limit.Max {
			return ModLimit{}, makeRangeError(node.Line, "limit range %q has min above max", spec)
		}
	default:
		return ModLimit{}, makeSyntaxError(node.Line, "malformed limit %q", spec)
	}
	for _, token := range tokens[1:] {
		if strings.HasPrefix(token, "bypass=") {
			limit.Bypass = strings.TrimPrefix(token, "bypass=")
			continue
		}
		return ModLimit{}, makeSyntaxError(node.Line, "unknown limit attribute %q", token)
	}
	return limit, nil
}

func (builder *declBuilder) buildPassword(node *parser.Node) (ModPassword, error) {
	tokens := strings.Fields(node.Value)
	if len(tokens) == 0 {
		return ModPassword{}, makeSyntaxError(node.Line, "password needs a kind: once, hold or protect")
	}
	kind, ok := passwordKinds[tokens[0]]
	if !ok {
		return ModPassword{}, makeSyntaxError(node.Line, "unknown password kind %q", tokens[0])
	}
	password := ModPassword{Kind: kind}
	if kind != PasswordProtect {
		if len(tokens) != 2 {
			return ModPassword{}, makeSyntaxError(node.Line, "password %s needs a compare value", tokens[0])
		}
		value, err := builder.uintValue(tokens[1], node.Line)
		if err != nil {
			return ModPassword{}, err
		}
		password.Value = value
	}
	return password, nil
}

// buildEnum parses child lines "name [= value] [\"desc\"]"; values default
// to 0, 1, 2, ... when omitted.
func (builder *declBuilder) buildEnum(node *parser.Node) (*EnumDecl, error) {
	enum := &EnumDecl{TypeName: strings.TrimSuffix(node.Value, ":")}
	next := uint64(0)
	seenNames := map[string]bool{}
	seenValues := map[uint64]bool{}
	for _, entryNode := range node.Children {
		entry := EnumEntry{Name: entryNode.Key, Value: next}
		rest := strings.TrimSpace(strings.TrimPrefix(entryNode.Value, "="))
		if rest != "" {
			tokens, err := builder.splitValue(rest, entryNode.Line)
			if err != nil {
				return nil, err
			}
			for _, token := range tokens {
				if strings.HasPrefix(token, "\"") {
					entry.Desc = util.UnQuote(token)
					continue
				}
				value, err := builder.uintValue(token, entryNode.Line)
				if err != nil {
					return nil, err
				}
				entry.Value = value
			}
		}
		if seenNames[entry.Name] {
			return nil, makeConflictError(entryNode.Line, "duplicate enum name %s", entry.Name)
		}
		if seenValues[entry.Value] {
			return nil, makeConflictError(entryNode.Line, "duplicate enum value %d", entry.Value)
		}
		seenNames[entry.Name], seenValues[entry.Value] = true, true
		next = entry.Value + 1
		enum.Entries = append(enum.Entries, entry)
	}
	return enum, nil
}

// buildInstance parses "- name [= type] [@addr | @+off | @+=off] [[size]]".
func (builder *declBuilder) buildInstance(node *parser.Node) (*InstanceDecl, error) {
	if node.Key != "-" {
		return nil, makeSyntaxError(node.Line, "expected an instance line starting with '-', got %q", node.Key)
	}
	tokens, err := builder.splitValue(node.Value, node.Line)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, makeSyntaxError(node.Line, "instance needs a name")
	}
	inst := &InstanceDecl{Name: tokens[0], Type: tokens[0], ArraySize: 1, Line: node.Line}
	expectType := false
	expectAddr := false
	for i := 1; i < len(tokens); i++ {
		token := tokens[i]
		switch {
		case token == "=":
			expectType = true
		case expectType:
			inst.Type = token
			expectType = false
		case expectAddr:
			if inst.Addr, err = builder.uintValue(token, node.Line); err != nil {
				return nil, err
			}
			expectAddr = false
		case strings.HasPrefix(token, "@+="):
			inst.AddrKind = AddrRelativeSet
			if token == "@+=" {
				expectAddr = true
				continue
			}
			if inst.Addr, err = builder.uintValue(token[3:], node.Line); err != nil {
				return nil, err
			}
		case strings.HasPrefix(token, "@+"):
			inst.AddrKind = AddrRelative
			if token == "@+" {
				expectAddr = true
				continue
			}
			if inst.Addr, err = builder.uintValue(token[2:], node.Line); err != nil {
				return nil, err
			}
		case strings.HasPrefix(token, "@"):
			inst.AddrKind = AddrAbsolute
			if token == "@" {
				expectAddr = true
				continue
			}
			if inst.Addr, err = builder.uintValue(token[1:], node.Line); err != nil {
				return nil, err
			}
		case strings.HasPrefix(token, "[") && strings.HasSuffix(token, "]"):
			size, err := builder.intValue(token[1:len(token)-1], node.Line)
			if err != nil {
				return nil, err
			}
			if size < 1 {
				return nil, makeRangeError(node.Line, "instance array size must be positive")
			}
			inst.ArraySize = size
		case strings.HasPrefix(token, "group="):
			inst.GroupInst = strings.TrimPrefix(token, "group=")
		default:
			return nil, makeSyntaxError(node.Line, "unexpected instance token %q", token)
		}
	}
	if expectType {
		return nil, makeSyntaxError(node.Line, "instance '=' needs a type name")
	}
	if expectAddr {
		return nil, makeSyntaxError(node.Line, "instance '@' needs an address")
	}
	for _, child := range node.Children {
		if err := builder.buildInstanceOverride(inst, child); err != nil {
			return nil, err
		}
	}
	return inst, nil
}

// buildInstanceOverride handles per-instance description/access/field tweaks.
func (builder *declBuilder) buildInstanceOverride(inst *InstanceDecl, node *parser.Node) error {
	switch {
	case node.Key == "desc":
		inst.Desc = node.Text()
	case node.Key == "hw":
		if node.Value != "na" {
			return makeSyntaxError(node.Line, "instance hw override only supports na, got %q", node.Value)
		}
		inst.HwNA = true
	case strings.HasSuffix(node.Key, ".desc"):
		if inst.FieldDesc == nil {
			inst.FieldDesc = map[string]string{}
		}
		inst.FieldDesc[strings.TrimSuffix(node.Key, ".desc")] = node.Text()
	case strings.HasSuffix(node.Key, ".rst"):
		value, err := builder.uintValue(node.Value, node.Line)
		if err != nil {
			return err
		}
		if inst.FieldRst == nil {
			inst.FieldRst = map[string]uint64{}
		}
		inst.FieldRst[strings.TrimSuffix(node.Key, ".rst")] = value
	default:
		return makeSyntaxError(node.Line, "unknown instance property %q", node.Key)
	}
	return nil
}

// evalOptional evaluates an optional: condition; false drops the owner.
// Conditions may reference parameters only: generics stay as opaque ranges.
func (builder *declBuilder) evalOptional(node *parser.Node) (bool, error) {
	for _, generic := range builder.generics {
		if containsSymbol(node.Value, generic.Name) {
			return false, makeReferenceError(node.Line,
				"optional condition references generic %s; only parameters are allowed", generic.Name)
		}
	}
	keep, err := parser.EvalCondition(node.Value, builder.symbols)
	if err != nil {
		return false, wrapExprError(err, node.Line)
	}
	return keep, nil
}

// substitute replaces every $name and ${expr} occurrence with its evaluated
// value rendered as text. Used for numeric contexts at build time and for
// descriptions (with the array index in scope) at elaboration time.
func substitute(text string, symbols parser.SymbolTable) (string, error) {
	if !strings.Contains(text, "$") {
		return text, nil
	}
	var out strings.Builder
	for i := 0; i < len(text); {
		if text[i] != '$' {
			out.WriteByte(text[i])
			i++
			continue
		}
		var expr string
		if i+1 < len(text) && text[i+1] == '{' {
			close := strings.IndexByte(text[i+2:], '}')
			if close < 0 {
				return "", makeEvalSyntaxError("unterminated ${ in %q", text)
			}
			expr = text[i+2 : i+2+close]
			i += close + 3
		} else {
			end := i + 1
			for end < len(text) && util.IsLetterOrUnderscoreOrNumber(text[end]) {
				end++
			}
			if end == i+1 {
				out.WriteByte('$')
				i++
				continue
			}
			expr = "$" + text[i+1:end]
			i = end
		}
		value, err := parser.EvalExpr(expr, symbols)
		if err != nil {
			return "", err
		}
		out.WriteString(formatValue(value))
	}
	return out.String(), nil
}

func makeEvalSyntaxError(format string, args ...interface{}) error {
	return makeSyntaxError(0, format, args...)
}

func formatValue(value parser.Value) string {
	if value.IsBool {
		return fmt.Sprintf("%v", value.Bool)
	}
	if value.Num == float64(value.Int()) {
		return fmt.Sprintf("%d", value.Int())
	}
	return fmt.Sprintf("%g", value.Num)
}

// uintValue substitutes and evaluates a numeric token.
func (builder *declBuilder) uintValue(token string, line int) (uint64, error) {
	if num, ok := util.ParseUint(token); ok {
		return num, nil
	}
	value, err := parser.EvalExpr(token, builder.symbols)
	if err != nil {
		return 0, wrapExprError(err, line)
	}
	if value.IsBool {
		return 0, makeStructuralError(line, "expected a number, got a boolean from %q", token)
	}
	return value.Uint(), nil
}

func (builder *declBuilder) intValue(token string, line int) (int, error) {
	num, err := builder.uintValue(token, line)
	if err != nil {
		return 0, err
	}
	return int(num), nil
}

// splitValue splits a value string on spaces while keeping quoted strings
// and {...} groups as single tokens.
func (builder *declBuilder) splitValue(value string, line int) ([]string, error) {
	var tokens []string
	i := 0
	for i < len(value) {
		switch {
		case util.IsSpace(value[i]):
			i++
		case value[i] == '"':
			end := strings.IndexByte(value[i+1:], '"')
			if end < 0 {
				return nil, makeSyntaxError(line, "unterminated quote in %q", value)
			}
			tokens = append(tokens, value[i:i+end+2])
			i += end + 2
		default:
			start := i
			depth := 0
			for i < len(value) && (depth > 0 || !util.IsSpace(value[i])) {
				switch value[i] {
				case '{':
					depth++
				case '}':
					depth--
				}
				i++
			}
			if depth != 0 {
				return nil, makeSyntaxError(line, "unbalanced braces in %q", value)
			}
			tokens = append(tokens, value[start:i])
		}
	}
	return tokens, nil
}
