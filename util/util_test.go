package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseUint(t *testing.T) {
	testData := []struct {
		input string
		value uint64
		ok    bool
	}{
		{"0", 0, true},
		{"42", 42, true},
		{"1_000_000", 1000000, true},
		{"0x0", 0, true},
		{"0xdead_beef", 0xdeadbeef, true},
		{"0XFF", 255, true},
		{"0b1010", 10, true},
		{"0b1111_0000", 0xf0, true},
		{"", 0, false},
		{"_", 0, false},
		{"0x", 0, false},
		{"0xg1", 0, false},
		{"0b102", 0, false},
		{"12a", 0, false},
		{"-1", 0, false},
	}
	for _, test := range testData {
		value, ok := ParseUint(test.input)
		assert.Equal(t, test.ok, ok, test.input)
		if test.ok {
			assert.Equal(t, test.value, value, test.input)
		}
	}
}

func TestUnQuote(t *testing.T) {
	testData := []struct {
		input  string
		output string
	}{
		{`"hello"`, "hello"},
		{`plain`, "plain"},
		{`"`, `"`},
		{`""`, ""},
		{`"half`, `"half`},
	}
	for _, test := range testData {
		assert.Equal(t, test.output, UnQuote(test.input))
	}
}

func TestCharClasses(t *testing.T) {
	assert.True(t, IsLetterOrUnderscore('_'))
	assert.True(t, IsLetterOrUnderscore('a'))
	assert.False(t, IsLetterOrUnderscore('1'))
	assert.True(t, IsLetterOrUnderscoreOrNumber('1'))
	assert.True(t, IsHexNumber('f'))
	assert.False(t, IsHexNumber('g'))
	assert.True(t, IsBinNumber('1'))
	assert.False(t, IsBinNumber('2'))
	assert.True(t, IsSpace('\t'))
	assert.False(t, IsSpace('\n'))
}
