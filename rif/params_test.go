package rif

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"rifc/parser"
)

func compileSource(t *testing.T, src string, overrides map[string]string, lookup Lookup) (*Compiled, error) {
	tree, err := parser.ParseTree("test.rif", strings.NewReader(src))
	assert.Nil(t, err)
	compiled, _, err := CompileUnit("test.rif", tree, overrides, lookup)
	return compiled, err
}

func mustCompile(t *testing.T, src string, overrides map[string]string, lookup Lookup) *Compiled {
	compiled, err := compileSource(t, src, overrides, lookup)
	assert.Nil(t, err)
	return compiled
}

// wrapUnit embeds a parameters block in a minimal compilable unit.
func wrapUnit(params string) string {
	return `rif demo
  parameters:
` + params + `
  page main @ 0x0
    registers:
      reg r0
        field f0 7:0 rst=0x0
`
}

func TestResolveParams_InOrder(t *testing.T) {
	compiled := mustCompile(t, wrapUnit(`    DEPTH = 64
    AW = ceil(log2($DEPTH))
    LAST = $DEPTH - 1`), nil, nil)
	assert.Equal(t, []ParamValue{
		{Name: "DEPTH", Value: "64"},
		{Name: "AW", Value: "6"},
		{Name: "LAST", Value: "63"},
	}, compiled.Params)
}

func TestResolveParams_ForwardReferenceFails(t *testing.T) {
	// a references b before b is defined.
	_, err := compileSource(t, wrapUnit(`    a = $b + 1
    b = 2`), nil, nil)
	assert.NotNil(t, err)
	assert.Equal(t, ReferenceErr, KindOf(err))
	assert.Contains(t, err.Error(), "forward-references b")
	// Defining b first succeeds.
	compiled := mustCompile(t, wrapUnit(`    b = 2
    a = $b + 1`), nil, nil)
	assert.Equal(t, []ParamValue{{Name: "b", Value: "2"}, {Name: "a", Value: "3"}}, compiled.Params)
}

func TestResolveParams_UndefinedSymbolFails(t *testing.T) {
	_, err := compileSource(t, wrapUnit(`    a = $nowhere + 1`), nil, nil)
	assert.NotNil(t, err)
	assert.Equal(t, ReferenceErr, KindOf(err))
}

func TestResolveParams_OverrideBeforeDependents(t *testing.T) {
	src := wrapUnit(`    DEPTH = 64
    AW = ceil(log2($DEPTH))`)
	compiled := mustCompile(t, src, map[string]string{"DEPTH": "256"}, nil)
	assert.Equal(t, []ParamValue{
		{Name: "DEPTH", Value: "256"},
		{Name: "AW", Value: "8"},
	}, compiled.Params)
}

func TestResolveParams_UnknownOverrideWarns(t *testing.T) {
	tree, err := parser.ParseTree("test.rif", strings.NewReader(wrapUnit("    DEPTH = 64")))
	assert.Nil(t, err)
	_, warnings, err := CompileUnit("test.rif", tree, map[string]string{"NOPE": "1"}, nil)
	assert.Nil(t, err)
	assert.Equal(t, 1, len(warnings))
	assert.Contains(t, warnings[0], "NOPE")
}

func TestResolveParams_BooleanOverride(t *testing.T) {
	src := `rif demo
  parameters:
    WITH_IRQ = false
  page main @ 0x0
    registers:
      reg r0
        field f0 7:0 rst=0x0
      reg irq
        optional: $WITH_IRQ
        field pending 0:0
`
	compiled := mustCompile(t, src, map[string]string{"WITH_IRQ": "true"}, nil)
	assert.Equal(t, 2, len(compiled.Pages[0].Structs))
	compiled = mustCompile(t, src, nil, nil)
	assert.Equal(t, 1, len(compiled.Pages[0].Structs))
}

func TestGenerics_Triples(t *testing.T) {
	testData := []struct {
		spec                      string
		expectedMin, expectedDef, expectedMax int64
	}{
		{spec: "4", expectedMin: 1, expectedDef: 4, expectedMax: 4},
		{spec: "2:8", expectedMin: 1, expectedDef: 2, expectedMax: 8},
		{spec: "2:4:16", expectedMin: 2, expectedDef: 4, expectedMax: 16},
	}
	for _, testD := range testData {
		tree, err := parser.ParseTree("test.rif", strings.NewReader(`rif demo
  generics:
    PORTS = `+testD.spec+`
  page main @ 0x0
    registers:
      reg r0
        field f0 7:0 rst=0x0
`))
		assert.Nil(t, err)
		params, generics, err := buildParamDecls(tree)
		assert.Nil(t, err)
		assert.Equal(t, 0, len(params))
		assert.Equal(t, 1, len(generics))
		assert.Equal(t, testD.expectedMin, generics[0].Min, testD.spec)
		assert.Equal(t, testD.expectedDef, generics[0].Default, testD.spec)
		assert.Equal(t, testD.expectedMax, generics[0].Max, testD.spec)
	}
}

func TestGenerics_NotAllowedInOptional(t *testing.T) {
	_, err := compileSource(t, `rif demo
  generics:
    PORTS = 4
  page main @ 0x0
    registers:
      reg r0
        field f0 7:0 rst=0x0
      reg extra
        optional: $PORTS > 2
        field f0 7:0
`, nil, nil)
	assert.NotNil(t, err)
	assert.Equal(t, ReferenceErr, KindOf(err))
	assert.Contains(t, err.Error(), "generic PORTS")
}

func TestGenerics_DefaultOutOfBoundsFails(t *testing.T) {
	testData := []string{"4:2:16", "8:4"}
	for _, spec := range testData {
		_, err := compileSource(t, `rif demo
  generics:
    PORTS = `+spec+`
  page main @ 0x0
    registers:
      reg r0
        field f0 7:0 rst=0x0
`, nil, nil)
		assert.NotNil(t, err, spec)
		assert.Equal(t, RangeErr, KindOf(err), spec)
	}
}
