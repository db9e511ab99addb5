package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvalExpr_Arithmetic(t *testing.T) {
	symbols := MapSymbols{
		"N":  NumberValue(8),
		"EN": BoolValue(true),
	}
	testData := []struct {
		expr     string
		expected float64
	}{
		{expr: "1 + 2 * 3", expected: 7},
		{expr: "(1 + 2) * 3", expected: 9},
		{expr: "-4 + 10", expected: 6},
		{expr: "10 - 2 - 3", expected: 5},
		{expr: "7 % 4", expected: 3},
		{expr: "2 ^ 10", expected: 1024},
		{expr: "1 << 4", expected: 16},
		{expr: "256 >> 4", expected: 16},
		{expr: "0x10 + 0b101", expected: 21},
		{expr: "1_000 + 24", expected: 1024},
		{expr: "$N * 4", expected: 32},
		{expr: "log2(256)", expected: 8},
		{expr: "log10(1000)", expected: 3},
		{expr: "ceil(9 / 2)", expected: 5},
		{expr: "floor(9 / 2)", expected: 4},
		{expr: "round(7 / 2)", expected: 4},
		{expr: "int(7 / 2)", expected: 3},
		{expr: "pow(2, $N)", expected: 256},
		{expr: "ceil(log2(100))", expected: 7},
	}
	for _, testD := range testData {
		value, err := EvalExpr(testD.expr, symbols)
		assert.Nil(t, err, testD.expr)
		assert.False(t, value.IsBool, testD.expr)
		assert.Equal(t, testD.expected, value.Num, testD.expr)
	}
}

func TestEvalExpr_Booleans(t *testing.T) {
	symbols := MapSymbols{
		"N":  NumberValue(8),
		"EN": BoolValue(true),
	}
	testData := []struct {
		expr     string
		expected bool
	}{
		{expr: "true", expected: true},
		{expr: "false", expected: false},
		{expr: "!true", expected: false},
		{expr: "not false", expected: true},
		{expr: "$N == 8", expected: true},
		{expr: "$N != 8", expected: false},
		{expr: "$N > 4", expected: true},
		{expr: "$N >= 9", expected: false},
		{expr: "$N < 9", expected: true},
		{expr: "$N + 1 <= 9", expected: true},
		{expr: "$EN == true", expected: true},
	}
	for _, testD := range testData {
		value, err := EvalExpr(testD.expr, symbols)
		assert.Nil(t, err, testD.expr)
		assert.True(t, value.IsBool, testD.expr)
		assert.Equal(t, testD.expected, value.Bool, testD.expr)
	}
}

func TestEvalExpr_Errors(t *testing.T) {
	symbols := MapSymbols{"EN": BoolValue(true)}
	testData := []struct {
		expr string
		kind ErrorKind
	}{
		{expr: "$missing + 1", kind: UndefinedSymbolErr},
		{expr: "1 / 0", kind: DivisionByZeroErr},
		{expr: "5 % 0", kind: DivisionByZeroErr},
		{expr: "$EN + 1", kind: TypeErr},
		{expr: "-$EN", kind: TypeErr},
		{expr: "!5", kind: TypeErr},
		{expr: "$EN == 1", kind: TypeErr},
		{expr: "1 +", kind: SyntaxErr},
		{expr: "(1 + 2", kind: SyntaxErr},
		{expr: "sqrt(4)", kind: SyntaxErr},
		{expr: "pow(2)", kind: SyntaxErr},
		{expr: "1 = 2", kind: SyntaxErr},
		{expr: "", kind: SyntaxErr},
	}
	for _, testD := range testData {
		_, err := EvalExpr(testD.expr, symbols)
		assert.NotNil(t, err, testD.expr)
		assert.Equal(t, testD.kind, err.(*Error).Kind, testD.expr)
	}
}

func TestEvalCondition(t *testing.T) {
	symbols := MapSymbols{"N": NumberValue(8)}
	ok, err := EvalCondition("$N > 4", symbols)
	assert.Nil(t, err)
	assert.True(t, ok)
	// A bare number is not a condition.
	_, err = EvalCondition("$N", symbols)
	assert.NotNil(t, err)
	assert.Equal(t, TypeErr, err.(*Error).Kind)
}

func TestParseExpr_Reusable(t *testing.T) {
	expr, err := ParseExpr("$N * 2")
	assert.Nil(t, err)
	for n := 1; n <= 3; n++ {
		value, err := expr.Eval(MapSymbols{"N": NumberValue(float64(n))})
		assert.Nil(t, err)
		assert.Equal(t, float64(2*n), value.Num)
	}
}
