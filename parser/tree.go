package parser

import (
	"bufio"
	"io"
	"strings"

	"rifc/util"
)

// A Node is one line of a rif description: a key token, an optional inline
// value and the more deeply indented lines below it as children. The tree
// carries no semantics; the declaration builder interprets the keys.
type Node struct {
	Key      string
	Value    string
	Line     int
	Children []*Node
}

// HasChildren reports whether any line was indented under this one.
func (node *Node) HasChildren() bool {
	return len(node.Children) > 0
}

// Child returns the first child whose key matches, or nil.
func (node *Node) Child(key string) *Node {
	for _, child := range node.Children {
		if child.Key == key {
			return child
		}
	}
	return nil
}

// Text joins the inline value with all plain continuation children into one
// multi-line string, stripping one pair of quotes around the whole block.
func (node *Node) Text() string {
	lines := []string{node.Value}
	for _, child := range node.Children {
		line := child.Key
		if child.Value != "" {
			line += " " + child.Value
		}
		lines = append(lines, line)
	}
	return util.UnQuote(strings.Join(lines, "\n"))
}

// TreeParser builds the node tree from indented text. The indentation
// character is fixed by the first indented line of the file; mixing tabs and
// spaces afterwards is a syntax error.
type TreeParser struct {
	file       string
	indentChar byte
}

// An openBlock is a node still accepting children, together with its own
// indentation and the indentation its children must use (-1 until the first
// child is seen).
type openBlock struct {
	indent      int
	childIndent int
	node        *Node
}

// ParseTree reads the whole input and returns a synthetic root node whose
// children are the top-level lines of the file.
func ParseTree(file string, reader io.Reader) (*Node, error) {
	parser := &TreeParser{file: file}
	root := &Node{Key: ""}
	stack := []openBlock{{indent: -1, childIndent: -1, node: root}}
	scanner := bufio.NewScanner(reader)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		indent, content, err := parser.splitIndent(scanner.Text(), lineNum)
		if err != nil {
			return nil, err
		}
		if content == "" {
			continue
		}
		node := parser.splitKeyValue(content, lineNum)
		// Close every block this line is not inside of.
		for stack[len(stack)-1].indent >= indent {
			stack = stack[:len(stack)-1]
		}
		top := &stack[len(stack)-1]
		if top.childIndent == -1 {
			top.childIndent = indent
		} else if top.childIndent != indent {
			return nil, makeSyntaxError(parser.file, lineNum,
				"indentation depth %d does not match any open block", indent)
		}
		top.node.Children = append(top.node.Children, node)
		stack = append(stack, openBlock{indent: indent, childIndent: -1, node: node})
	}
	if err := scanner.Err(); err != nil {
		return nil, makeSyntaxError(parser.file, lineNum, "read failed: %v", err)
	}
	return root, nil
}

// splitIndent counts leading indentation and strips comments. Returns the
// indentation depth and the trimmed content, empty for blank/comment lines.
func (parser *TreeParser) splitIndent(line string, lineNum int) (int, string, error) {
	indent := 0
	for indent < len(line) && util.IsSpace(line[indent]) {
		if parser.indentChar == 0 {
			parser.indentChar = line[indent]
		} else if line[indent] != parser.indentChar {
			return 0, "", makeSyntaxError(parser.file, lineNum,
				"mixed tabs and spaces in indentation")
		}
		indent++
	}
	content := stripComment(line[indent:])
	return indent, strings.TrimRight(content, " \t"), nil
}

// stripComment removes a trailing // or # comment, quote-aware.
func stripComment(content string) string {
	inQuote := false
	for i := 0; i < len(content); i++ {
		switch {
		case content[i] == '"':
			inQuote = !inQuote
		case inQuote:
		case content[i] == '#':
			return content[:i]
		case content[i] == '/' && i+1 < len(content) && content[i+1] == '/':
			return content[:i]
		}
	}
	return content
}

// splitKeyValue splits "key: value" or "key value" into a node. A key ending
// in ':' keeps the colon out of the key token.
func (parser *TreeParser) splitKeyValue(content string, lineNum int) *Node {
	key := content
	value := ""
	for i := 0; i < len(content); i++ {
		if content[i] == '"' {
			break
		}
		if content[i] == ':' && (i+1 == len(content) || content[i+1] == ' ') {
			key, value = content[:i], strings.TrimSpace(content[i+1:])
			break
		}
		if util.IsSpace(content[i]) {
			key, value = content[:i], strings.TrimSpace(content[i+1:])
			break
		}
	}
	return &Node{Key: key, Value: value, Line: lineNum}
}
