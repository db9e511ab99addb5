package rif

import (
	"errors"
	"fmt"

	"rifc/parser"
)

// All compilation errors are fatal to the unit being processed. The kind
// groups them by cause so callers and tests can classify without string
// matching.
type ErrorKind int

const (
	SyntaxErr        ErrorKind = iota // malformed indentation or tokens
	ReferenceErr                      // undefined $name, forward reference, missing include target
	ConflictErr                       // group mismatch, field overlap, ambiguous write
	RangeErr                          // address or value outside its legal bounds
	StructuralErr                     // document shape violations (zero pages, pending without mask, ...)
	CyclicIncludeErr                  // mutual includes between units
	UnitNotFoundErr                   // include target not on the search path
)

var errorKindNames = map[ErrorKind]string{
	SyntaxErr:        "syntax error",
	ReferenceErr:     "reference error",
	ConflictErr:      "conflict error",
	RangeErr:         "range error",
	StructuralErr:    "structural error",
	CyclicIncludeErr: "cyclic include error",
	UnitNotFoundErr:  "unit not found",
}

// Error is the single error type of the compiler. Unit names the compilation
// unit being processed when the error occurred; errors from an included unit
// are re-annotated with the dependent unit's name on propagation.
type Error struct {
	Kind ErrorKind
	Unit string
	Line int
	Msg  string
}

func (e *Error) Error() string {
	where := e.Unit
	if e.Line > 0 {
		where = fmt.Sprintf("%s:%d", e.Unit, e.Line)
	}
	if where == "" {
		return fmt.Sprintf("%s: %s", errorKindNames[e.Kind], e.Msg)
	}
	return fmt.Sprintf("%s: %s: %s", where, errorKindNames[e.Kind], e.Msg)
}

// KindOf extracts the error kind, or -1 for foreign errors.
func KindOf(err error) ErrorKind {
	var rifErr *Error
	if errors.As(err, &rifErr) {
		return rifErr.Kind
	}
	return -1
}

func makeError(kind ErrorKind, line int, format string, args ...interface{}) error {
	return &Error{Kind: kind, Line: line, Msg: fmt.Sprintf(format, args...)}
}

func makeSyntaxError(line int, format string, args ...interface{}) error {
	return makeError(SyntaxErr, line, format, args...)
}

func makeReferenceError(line int, format string, args ...interface{}) error {
	return makeError(ReferenceErr, line, format, args...)
}

func makeConflictError(line int, format string, args ...interface{}) error {
	return makeError(ConflictErr, line, format, args...)
}

func makeRangeError(line int, format string, args ...interface{}) error {
	return makeError(RangeErr, line, format, args...)
}

func makeStructuralError(line int, format string, args ...interface{}) error {
	return makeError(StructuralErr, line, format, args...)
}

// wrapExprError lifts an expression evaluation failure into the compiler
// taxonomy, attaching the line of the declaration holding the expression.
func wrapExprError(err error, line int) error {
	var parseErr *parser.Error
	if !errors.As(err, &parseErr) {
		return makeSyntaxError(line, "%v", err)
	}
	kind := SyntaxErr
	switch parseErr.Kind {
	case parser.UndefinedSymbolErr:
		kind = ReferenceErr
	case parser.DivisionByZeroErr:
		kind = RangeErr
	case parser.TypeErr:
		kind = StructuralErr
	}
	return makeError(kind, line, "%s", parseErr.Msg)
}

// annotateUnit stamps the causal unit name onto every error bubbling out of
// a unit's compilation, without overwriting an annotation set deeper down.
func annotateUnit(err error, unit string) error {
	if err == nil {
		return nil
	}
	var rifErr *Error
	if errors.As(err, &rifErr) {
		if rifErr.Unit == "" {
			rifErr.Unit = unit
		}
		return rifErr
	}
	return &Error{Kind: StructuralErr, Unit: unit, Msg: err.Error()}
}
