package parser

import "fmt"

type ErrorKind int

const (
	SyntaxErr          ErrorKind = iota // malformed tokens or indentation
	UndefinedSymbolErr                  // $name not present in the symbol table
	DivisionByZeroErr                   // x / 0 or x % 0
	TypeErr                             // boolean used arithmetically or number used as condition
)

// Error is a parse or evaluation failure. File and Line are set by the tree
// parser; expression errors carry position only when the caller adds it.
type Error struct {
	Kind ErrorKind
	File string
	Line int
	Msg  string
}

func (e *Error) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Msg)
	}
	return e.Msg
}

func makeSyntaxError(file string, line int, format string, args ...interface{}) error {
	return &Error{Kind: SyntaxErr, File: file, Line: line, Msg: fmt.Sprintf(format, args...)}
}

func makeEvalError(kind ErrorKind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}
