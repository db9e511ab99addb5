package parser

import (
	"math"
	"strings"

	"rifc/util"
)

// Parameter expressions are plain arithmetic with a fixed function set.
// Grammar elements:
// * Literal: decimal, 0x hex, 0b binary (underscore separators), true, false.
// * Variable: $name, resolved through a SymbolTable.
// * Operator: + - * / % ^ << >> == != < <= > >= and unary - ! not.
// * Function: pow, log2, log10, ceil, floor, round, int.
// Expressions are parsed once into a small AST and evaluated on demand;
// evaluation is in float64 with integer rounding left to the caller.

// Value is a number or a boolean. Conditions must reduce to booleans and
// arithmetic rejects booleans, so the two kinds never mix silently.
type Value struct {
	Num    float64
	Bool   bool
	IsBool bool
}

func NumberValue(num float64) Value {
	return Value{Num: num}
}

func BoolValue(b bool) Value {
	return Value{Bool: b, IsBool: true}
}

// Int returns the value rounded to the nearest integer.
func (v Value) Int() int64 {
	return int64(math.Round(v.Num))
}

func (v Value) Uint() uint64 {
	return uint64(math.Round(v.Num))
}

// SymbolTable resolves $name references during evaluation.
type SymbolTable interface {
	LookupSymbol(name string) (Value, bool)
}

// MapSymbols is the trivial SymbolTable over a plain map.
type MapSymbols map[string]Value

func (symbols MapSymbols) LookupSymbol(name string) (Value, bool) {
	value, ok := symbols[name]
	return value, ok
}

// Expr is a parsed expression, evaluatable against any symbol table.
type Expr interface {
	Eval(symbols SymbolTable) (Value, error)
}

type numberExpr float64

type boolExpr bool

type varExpr string

type unaryExpr struct {
	op      string
	operand Expr
}

type binaryExpr struct {
	op          string
	left, right Expr
}

type callExpr struct {
	fn   string
	args []Expr
}

func (e numberExpr) Eval(symbols SymbolTable) (Value, error) {
	return NumberValue(float64(e)), nil
}

func (e boolExpr) Eval(symbols SymbolTable) (Value, error) {
	return BoolValue(bool(e)), nil
}

func (e varExpr) Eval(symbols SymbolTable) (Value, error) {
	value, ok := symbols.LookupSymbol(string(e))
	if !ok {
		return Value{}, makeEvalError(UndefinedSymbolErr, "undefined symbol $%s", string(e))
	}
	return value, nil
}

func (e *unaryExpr) Eval(symbols SymbolTable) (Value, error) {
	operand, err := e.operand.Eval(symbols)
	if err != nil {
		return Value{}, err
	}
	switch e.op {
	case "-":
		if operand.IsBool {
			return Value{}, makeEvalError(TypeErr, "cannot negate a boolean")
		}
		return NumberValue(-operand.Num), nil
	default: // ! or not
		if !operand.IsBool {
			return Value{}, makeEvalError(TypeErr, "operator %s needs a boolean", e.op)
		}
		return BoolValue(!operand.Bool), nil
	}
}

func (e *binaryExpr) Eval(symbols SymbolTable) (Value, error) {
	left, err := e.left.Eval(symbols)
	if err != nil {
		return Value{}, err
	}
	right, err := e.right.Eval(symbols)
	if err != nil {
		return Value{}, err
	}
	switch e.op {
	case "==", "!=":
		if left.IsBool != right.IsBool {
			return Value{}, makeEvalError(TypeErr, "cannot compare boolean with number")
		}
		equal := left.Bool == right.Bool && left.Num == right.Num
		return BoolValue(equal == (e.op == "==")), nil
	}
	if left.IsBool || right.IsBool {
		return Value{}, makeEvalError(TypeErr, "boolean used with arithmetic operator %s", e.op)
	}
	a, b := left.Num, right.Num
	switch e.op {
	case "+":
		return NumberValue(a + b), nil
	case "-":
		return NumberValue(a - b), nil
	case "*":
		return NumberValue(a * b), nil
	case "/":
		if b == 0 {
			return Value{}, makeEvalError(DivisionByZeroErr, "division by zero")
		}
		return NumberValue(a / b), nil
	case "%":
		if b == 0 {
			return Value{}, makeEvalError(DivisionByZeroErr, "modulo by zero")
		}
		return NumberValue(math.Mod(a, b)), nil
	case "^":
		return NumberValue(math.Pow(a, b)), nil
	case "<<":
		return NumberValue(float64(int64(a) << uint(b))), nil
	case ">>":
		return NumberValue(float64(int64(a) >> uint(b))), nil
	case "<":
		return BoolValue(a < b), nil
	case "<=":
		return BoolValue(a <= b), nil
	case ">":
		return BoolValue(a > b), nil
	default: // >=
		return BoolValue(a >= b), nil
	}
}

// unaryFuncs are the single-argument functions of the expression language.
var unaryFuncs = map[string]func(float64) float64{
	"log2":  math.Log2,
	"log10": math.Log10,
	"ceil":  math.Ceil,
	"floor": math.Floor,
	"round": math.Round,
	"int":   math.Trunc,
}

func (e *callExpr) Eval(symbols SymbolTable) (Value, error) {
	args := make([]float64, len(e.args))
	for i, argExpr := range e.args {
		arg, err := argExpr.Eval(symbols)
		if err != nil {
			return Value{}, err
		}
		if arg.IsBool {
			return Value{}, makeEvalError(TypeErr, "boolean argument to %s", e.fn)
		}
		args[i] = arg.Num
	}
	if e.fn == "pow" {
		return NumberValue(math.Pow(args[0], args[1])), nil
	}
	return NumberValue(unaryFuncs[e.fn](args[0])), nil
}

// binaryPrec orders the binary operators; higher binds tighter.
var binaryPrec = map[string]int{
	"==": 1, "!=": 1, "<": 1, "<=": 1, ">": 1, ">=": 1,
	"<<": 2, ">>": 2,
	"+": 3, "-": 3,
	"*": 4, "/": 4, "%": 4,
	"^": 5,
}

type exprParser struct {
	tokens []string
	pos    int
}

// ParseExpr parses an expression into its AST without evaluating it.
func ParseExpr(text string) (Expr, error) {
	tokens, err := lexExpr(text)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, makeEvalError(SyntaxErr, "empty expression")
	}
	parser := &exprParser{tokens: tokens}
	expr, err := parser.parseBinary(1)
	if err != nil {
		return nil, err
	}
	if parser.pos != len(parser.tokens) {
		return nil, makeEvalError(SyntaxErr, "unexpected token %q in expression %q", parser.peek(), text)
	}
	return expr, nil
}

// EvalExpr parses and evaluates in one step.
func EvalExpr(text string, symbols SymbolTable) (Value, error) {
	expr, err := ParseExpr(text)
	if err != nil {
		return Value{}, err
	}
	return expr.Eval(symbols)
}

// EvalCondition evaluates an optional: condition, which must be boolean.
func EvalCondition(text string, symbols SymbolTable) (bool, error) {
	value, err := EvalExpr(text, symbols)
	if err != nil {
		return false, err
	}
	if !value.IsBool {
		return false, makeEvalError(TypeErr, "condition %q does not reduce to a boolean", text)
	}
	return value.Bool, nil
}

func (parser *exprParser) peek() string {
	if parser.pos < len(parser.tokens) {
		return parser.tokens[parser.pos]
	}
	return ""
}

func (parser *exprParser) next() string {
	token := parser.peek()
	parser.pos++
	return token
}

func (parser *exprParser) parseBinary(minPrec int) (Expr, error) {
	left, err := parser.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		prec, ok := binaryPrec[parser.peek()]
		if !ok || prec < minPrec {
			return left, nil
		}
		op := parser.next()
		right, err := parser.parseBinary(prec + 1)
		if err != nil {
			return nil, err
		}
		left = &binaryExpr{op: op, left: left, right: right}
	}
}

func (parser *exprParser) parseUnary() (Expr, error) {
	switch parser.peek() {
	case "-", "!", "not":
		op := parser.next()
		operand, err := parser.parseUnary()
		if err != nil {
			return nil, err
		}
		if op == "not" {
			op = "!"
		}
		return &unaryExpr{op: op, operand: operand}, nil
	}
	return parser.parseAtom()
}

func (parser *exprParser) parseAtom() (Expr, error) {
	token := parser.next()
	switch {
	case token == "":
		return nil, makeEvalError(SyntaxErr, "unexpected end of expression")
	case token == "(":
		expr, err := parser.parseBinary(1)
		if err != nil {
			return nil, err
		}
		if parser.next() != ")" {
			return nil, makeEvalError(SyntaxErr, "missing closing parenthesis")
		}
		return expr, nil
	case token == "true":
		return boolExpr(true), nil
	case token == "false":
		return boolExpr(false), nil
	case token[0] == '$':
		return varExpr(token[1:]), nil
	case util.IsNumber(token[0]):
		num, ok := util.ParseUint(token)
		if !ok {
			return nil, makeEvalError(SyntaxErr, "malformed number %q", token)
		}
		return numberExpr(num), nil
	case util.IsLetterOrUnderscore(token[0]):
		return parser.parseCall(token)
	}
	return nil, makeEvalError(SyntaxErr, "unexpected token %q", token)
}

func (parser *exprParser) parseCall(fn string) (Expr, error) {
	_, isUnary := unaryFuncs[fn]
	if !isUnary && fn != "pow" {
		return nil, makeEvalError(SyntaxErr, "unknown function %q", fn)
	}
	if parser.next() != "(" {
		return nil, makeEvalError(SyntaxErr, "function %s needs parentheses", fn)
	}
	call := &callExpr{fn: fn}
	for {
		arg, err := parser.parseBinary(1)
		if err != nil {
			return nil, err
		}
		call.args = append(call.args, arg)
		if parser.peek() != "," {
			break
		}
		parser.next()
	}
	if parser.next() != ")" {
		return nil, makeEvalError(SyntaxErr, "missing closing parenthesis after %s arguments", fn)
	}
	wantArgs := 1
	if fn == "pow" {
		wantArgs = 2
	}
	if len(call.args) != wantArgs {
		return nil, makeEvalError(SyntaxErr, "function %s takes %d argument(s), got %d", fn, wantArgs, len(call.args))
	}
	return call, nil
}

// lexExpr splits the text into operator, literal, variable and name tokens.
func lexExpr(text string) ([]string, error) {
	var tokens []string
	i := 0
	for i < len(text) {
		b := text[i]
		switch {
		case util.IsSpace(b):
			i++
		case strings.ContainsRune("+-*/%^(),", rune(b)):
			tokens = append(tokens, string(b))
			i++
		case b == '<' || b == '>':
			if i+1 < len(text) && (text[i+1] == b || text[i+1] == '=') {
				tokens = append(tokens, text[i:i+2])
				i += 2
			} else {
				tokens = append(tokens, string(b))
				i++
			}
		case b == '=' || b == '!':
			if i+1 < len(text) && text[i+1] == '=' {
				tokens = append(tokens, text[i:i+2])
				i += 2
			} else if b == '!' {
				tokens = append(tokens, "!")
				i++
			} else {
				return nil, makeEvalError(SyntaxErr, "stray '=' in expression %q", text)
			}
		case b == '$':
			start := i
			i++
			for i < len(text) && util.IsLetterOrUnderscoreOrNumber(text[i]) {
				i++
			}
			if i == start+1 {
				return nil, makeEvalError(SyntaxErr, "'$' without a name in %q", text)
			}
			tokens = append(tokens, text[start:i])
		case util.IsNumber(b):
			start := i
			for i < len(text) && (util.IsHexNumber(text[i]) || text[i] == 'x' || text[i] == 'X' || text[i] == '_') {
				i++
			}
			tokens = append(tokens, text[start:i])
		case util.IsLetterOrUnderscore(b):
			start := i
			for i < len(text) && util.IsLetterOrUnderscoreOrNumber(text[i]) {
				i++
			}
			tokens = append(tokens, text[start:i])
		default:
			return nil, makeEvalError(SyntaxErr, "unexpected character %q in expression %q", string(b), text)
		}
	}
	return tokens, nil
}
