package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func parse(t *testing.T, src string) *Node {
	root, err := ParseTree("test.rif", strings.NewReader(src))
	assert.Nil(t, err)
	return root
}

func TestParseTree_Nesting(t *testing.T) {
	root := parse(t, `rif demo
  page main @ 0x0
    registers:
      reg status
        field f0 7:0
  clk: sys_clk
`)
	assert.Equal(t, 1, len(root.Children))
	top := root.Children[0]
	assert.Equal(t, "rif", top.Key)
	assert.Equal(t, "demo", top.Value)
	assert.Equal(t, 2, len(top.Children))
	page := top.Children[0]
	assert.Equal(t, "page", page.Key)
	assert.Equal(t, "main @ 0x0", page.Value)
	regs := page.Children[0]
	assert.Equal(t, "registers", regs.Key)
	reg := regs.Children[0]
	assert.Equal(t, "reg", reg.Key)
	assert.Equal(t, "status", reg.Value)
	assert.Equal(t, "field", reg.Children[0].Key)
	assert.Equal(t, "clk", top.Children[1].Key)
	assert.Equal(t, "sys_clk", top.Children[1].Value)
}

func TestParseTree_CommentsAndBlanks(t *testing.T) {
	root := parse(t, `// file comment
rif demo // trailing
  # hash comment

  dataWidth: 32
`)
	assert.Equal(t, 1, len(root.Children))
	top := root.Children[0]
	assert.Equal(t, "demo", top.Value)
	assert.Equal(t, 1, len(top.Children))
	assert.Equal(t, "dataWidth", top.Children[0].Key)
	assert.Equal(t, "32", top.Children[0].Value)
}

func TestParseTree_QuoteKeepsComment(t *testing.T) {
	root := parse(t, `desc: "a // not a comment"`)
	assert.Equal(t, `"a // not a comment"`, root.Children[0].Value)
}

func TestParseTree_LineNumbers(t *testing.T) {
	root := parse(t, `rif demo
  dataWidth: 32
`)
	assert.Equal(t, 1, root.Children[0].Line)
	assert.Equal(t, 2, root.Children[0].Children[0].Line)
}

func TestParseTree_MixedIndentFails(t *testing.T) {
	_, err := ParseTree("test.rif", strings.NewReader("rif demo\n  a: 1\n\tb: 2\n"))
	assert.NotNil(t, err)
	parseErr := err.(*Error)
	assert.Equal(t, SyntaxErr, parseErr.Kind)
	assert.Equal(t, 3, parseErr.Line)
	assert.Equal(t, "test.rif", parseErr.File)
}

func TestParseTree_DanglingIndentFails(t *testing.T) {
	testData := []struct {
		src     string
		badLine int
	}{
		// Depth 2 matches neither the open depth 4 nor the top level.
		{src: "rif demo\n    a: 1\n  b: 2\n", badLine: 3},
		{src: "rif demo\n  page p\n      a: 1\n    b: 2\n", badLine: 4},
	}
	for _, testD := range testData {
		_, err := ParseTree("test.rif", strings.NewReader(testD.src))
		assert.NotNil(t, err)
		parseErr := err.(*Error)
		assert.Equal(t, SyntaxErr, parseErr.Kind)
		assert.Equal(t, testD.badLine, parseErr.Line)
	}
}

func TestNode_Text(t *testing.T) {
	root := parse(t, `desc: "first line
  second line
  third line"
`)
	node := root.Children[0]
	assert.Equal(t, "first line\nsecond line\nthird line", node.Text())
}

func TestNode_Child(t *testing.T) {
	root := parse(t, "rif demo\n  dataWidth: 32\n")
	assert.NotNil(t, root.Child("rif"))
	assert.Nil(t, root.Child("page"))
}
