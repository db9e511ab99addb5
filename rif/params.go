package rif

import (
	"fmt"
	"sort"

	"rifc/parser"
	"rifc/util"
)

// SymbolTable holds the resolved parameters and generics of one unit, in
// resolution order. It backs every $name substitution and expression
// evaluation after the resolver has run.
type SymbolTable struct {
	names  []string
	values map[string]parser.Value
}

func newSymbolTable() *SymbolTable {
	return &SymbolTable{values: map[string]parser.Value{}}
}

// LookupSymbol implements parser.SymbolTable.
func (symbols *SymbolTable) LookupSymbol(name string) (parser.Value, bool) {
	value, ok := symbols.values[name]
	return value, ok
}

func (symbols *SymbolTable) define(name string, value parser.Value) {
	if _, ok := symbols.values[name]; !ok {
		symbols.names = append(symbols.names, name)
	}
	symbols.values[name] = value
}

// Names returns the symbol names in resolution order.
func (symbols *SymbolTable) Names() []string {
	return symbols.names
}

// child returns a table layering extra short-lived symbols (the array index
// during elaboration) over this one without mutating it.
func (symbols *SymbolTable) child(extra map[string]parser.Value) parser.SymbolTable {
	return &layeredSymbols{base: symbols, extra: extra}
}

type layeredSymbols struct {
	base  *SymbolTable
	extra map[string]parser.Value
}

func (symbols *layeredSymbols) LookupSymbol(name string) (parser.Value, bool) {
	if value, ok := symbols.extra[name]; ok {
		return value, true
	}
	return symbols.base.LookupSymbol(name)
}

// resolveParams processes parameter declarations strictly in source order.
// An override matching the name wins over the declared expression and is
// applied before any dependent parameter evaluates. An expression naming a
// parameter declared later in the unit is a forward reference. Generics are
// defined as their default value for substitution purposes but kept as
// opaque triples otherwise. Returns warnings for override names that match
// no parameter in this unit.
func resolveParams(top *TopDecl, overrides map[string]string) (*SymbolTable, []string, error) {
	symbols := newSymbolTable()
	declared := map[string]int{}
	for _, param := range top.Params {
		declared[param.Name] = param.Line
	}
	for _, generic := range top.Generics {
		if generic.Min > generic.Max {
			return nil, nil, makeRangeError(generic.Line,
				"generic %s has min %d > max %d", generic.Name, generic.Min, generic.Max)
		}
		if generic.Default < generic.Min || generic.Default > generic.Max {
			return nil, nil, makeRangeError(generic.Line,
				"generic %s default %d outside [%d, %d]",
				generic.Name, generic.Default, generic.Min, generic.Max)
		}
		symbols.define(generic.Name, parser.NumberValue(float64(generic.Default)))
	}
	for _, param := range top.Params {
		if literal, ok := overrides[param.Name]; ok {
			value, err := parseOverrideValue(literal)
			if err != nil {
				return nil, nil, makeSyntaxError(param.Line,
					"override for %s: %v", param.Name, err)
			}
			symbols.define(param.Name, value)
			continue
		}
		value, err := parser.EvalExpr(param.Expr, symbols)
		if err != nil {
			err = wrapExprError(err, param.Line)
			if KindOf(err) == ReferenceErr {
				err = decorateForwardReference(err, param, declared)
			}
			return nil, nil, err
		}
		symbols.define(param.Name, value)
	}
	var warnings []string
	for name := range overrides {
		if _, ok := declared[name]; !ok {
			warnings = append(warnings, fmt.Sprintf("override %s matches no parameter of %s", name, top.Name))
		}
	}
	sort.Strings(warnings)
	return symbols, warnings, nil
}

// decorateForwardReference distinguishes "declared later" from "never
// declared" in the error text.
func decorateForwardReference(err error, param *ParamDecl, declared map[string]int) error {
	rifErr := err.(*Error)
	for name, line := range declared {
		if line > param.Line && containsSymbol(param.Expr, name) {
			return makeReferenceError(param.Line,
				"parameter %s forward-references %s declared at line %d", param.Name, name, line)
		}
	}
	return rifErr
}

// containsSymbol reports whether expr mentions $name as a whole token.
func containsSymbol(expr, name string) bool {
	for i := 0; i+len(name) < len(expr); i++ {
		if expr[i] != '$' {
			continue
		}
		end := i + 1 + len(name)
		if expr[i+1:end] != name {
			continue
		}
		if end == len(expr) || !util.IsLetterOrUnderscoreOrNumber(expr[end]) {
			return true
		}
	}
	return false
}

// parseOverrideValue interprets a command-line override literal: a number in
// any supported base, or true/false.
func parseOverrideValue(literal string) (parser.Value, error) {
	switch literal {
	case "true":
		return parser.BoolValue(true), nil
	case "false":
		return parser.BoolValue(false), nil
	}
	num, ok := util.ParseUint(literal)
	if !ok {
		return parser.Value{}, fmt.Errorf("malformed literal %q", literal)
	}
	return parser.NumberValue(float64(num)), nil
}
