// Package rifmux composes independently compiled rif units into one address
// space. It consumes compiled units through the cross-unit lookup only and
// never re-enters the elaborator: per-entry parameter overrides are recorded
// for the generators, not re-evaluated here.
package rifmux

import (
	"fmt"
	"strings"

	"rifc/parser"
	"rifc/rif"
	"rifc/util"
)

// Entry is one line of the mux map: a compiled unit, an external region, or
// a nested group with its own offset.
type Entry struct {
	Name         string
	Type         string // unit or nested mux name, "" for external regions
	External     bool
	ExtAddrWidth int
	AddrKind     rif.AddrKind
	Offset       uint64
	Overrides    map[string]string // inst.param = value lines
	Entries      []*Entry          // nested group members
	Line         int

	// Resolved by Compose.
	Addr uint64
	Size uint64
}

// Mux is a parsed rifmux description.
type Mux struct {
	Name      string
	AddrWidth int
	DataWidth int
	Interface rif.InterfaceKind
	Entries   []*Entry
}

var interfaceKinds = map[string]rif.InterfaceKind{
	"default": rif.IntfDefault,
	"apb":     rif.IntfAPB,
	"uaux":    rif.IntfUAUX,
}

// IsMuxTree reports whether a parsed file is a rifmux description.
func IsMuxTree(tree *parser.Node) bool {
	return tree.Child("rifmux") != nil
}

// Parse builds the mux from a node tree.
func Parse(tree *parser.Node) (*Mux, error) {
	muxNode := tree.Child("rifmux")
	if muxNode == nil {
		return nil, syntaxError(0, "no rifmux declaration in file")
	}
	mux := &Mux{Name: muxNode.Value, AddrWidth: 16, DataWidth: 32}
	if mux.Name == "" {
		return nil, syntaxError(muxNode.Line, "rifmux declaration needs a name")
	}
	for _, node := range muxNode.Children {
		switch node.Key {
		case "addrWidth":
			width, ok := util.ParseUint(node.Value)
			if !ok {
				return nil, syntaxError(node.Line, "malformed addrWidth %q", node.Value)
			}
			mux.AddrWidth = int(width)
		case "dataWidth":
			width, ok := util.ParseUint(node.Value)
			if !ok {
				return nil, syntaxError(node.Line, "malformed dataWidth %q", node.Value)
			}
			mux.DataWidth = int(width)
		case "interface":
			kind, ok := interfaceKinds[node.Value]
			if !ok {
				return nil, syntaxError(node.Line, "unknown interface kind %q", node.Value)
			}
			mux.Interface = kind
		case "map":
			entries, err := parseEntries(node.Children)
			if err != nil {
				return nil, err
			}
			mux.Entries = entries
		default:
			return nil, syntaxError(node.Line, "unknown rifmux property %q", node.Key)
		}
	}
	if len(mux.Entries) == 0 {
		return nil, structuralError(muxNode.Line, "rifmux %s has an empty map", mux.Name)
	}
	return mux, nil
}

func parseEntries(nodes []*parser.Node) ([]*Entry, error) {
	var entries []*Entry
	for _, node := range nodes {
		if node.Key != "-" {
			// inst.param = expr override line.
			if err := parseOverride(entries, node); err != nil {
				return nil, err
			}
			continue
		}
		entry, err := parseEntry(node)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// parseEntry handles "- name = type @addr", "- name external <aw> @addr" and
// "- group name @addr" lines.
func parseEntry(node *parser.Node) (*Entry, error) {
	tokens := strings.Fields(node.Value)
	if len(tokens) == 0 {
		return nil, syntaxError(node.Line, "map entry needs a name")
	}
	entry := &Entry{Line: node.Line}
	if tokens[0] == "group" {
		if len(tokens) < 2 {
			return nil, syntaxError(node.Line, "group entry needs a name")
		}
		entry.Name = tokens[1]
		if err := parseEntryAddr(entry, tokens[2:], node.Line); err != nil {
			return nil, err
		}
		members, err := parseEntries(node.Children)
		if err != nil {
			return nil, err
		}
		if len(members) == 0 {
			return nil, structuralError(node.Line, "group %s has no members", entry.Name)
		}
		entry.Entries = members
		return entry, nil
	}
	entry.Name = tokens[0]
	entry.Type = tokens[0]
	rest := tokens[1:]
	switch {
	case len(rest) > 0 && rest[0] == "=":
		if len(rest) < 2 {
			return nil, syntaxError(node.Line, "map entry '=' needs a type name")
		}
		entry.Type = rest[1]
		rest = rest[2:]
	case len(rest) > 0 && rest[0] == "external":
		if len(rest) < 2 {
			return nil, syntaxError(node.Line, "external entry needs an address width")
		}
		width, ok := util.ParseUint(rest[1])
		if !ok {
			return nil, syntaxError(node.Line, "malformed external address width %q", rest[1])
		}
		entry.External, entry.ExtAddrWidth, entry.Type = true, int(width), ""
		rest = rest[2:]
	}
	if err := parseEntryAddr(entry, rest, node.Line); err != nil {
		return nil, err
	}
	return entry, nil
}

func parseEntryAddr(entry *Entry, tokens []string, line int) error {
	for i := 0; i < len(tokens); i++ {
		token := tokens[i]
		if !strings.HasPrefix(token, "@") {
			return syntaxError(line, "unexpected map entry token %q", token)
		}
		spec := token[1:]
		switch {
		case strings.HasPrefix(spec, "+="):
			entry.AddrKind, spec = rif.AddrRelativeSet, spec[2:]
		case strings.HasPrefix(spec, "+"):
			entry.AddrKind, spec = rif.AddrRelative, spec[1:]
		default:
			entry.AddrKind = rif.AddrAbsolute
		}
		if spec == "" {
			i++
			if i == len(tokens) {
				return syntaxError(line, "'@' needs an address")
			}
			spec = tokens[i]
		}
		offset, ok := util.ParseUint(spec)
		if !ok {
			return syntaxError(line, "malformed address %q", spec)
		}
		entry.Offset = offset
	}
	return nil
}

// parseOverride attaches "inst.param = value" to the entry it names.
func parseOverride(entries []*Entry, node *parser.Node) error {
	dot := strings.Index(node.Key, ".")
	if dot < 0 {
		return syntaxError(node.Line, "unknown map line %q", node.Key)
	}
	instName, paramName := node.Key[:dot], node.Key[dot+1:]
	value := strings.TrimSpace(strings.TrimPrefix(node.Value, "="))
	if paramName == "" || value == "" {
		return syntaxError(node.Line, "override needs the form inst.param = value")
	}
	for _, entry := range entries {
		if entry.Name == instName {
			if entry.Overrides == nil {
				entry.Overrides = map[string]string{}
			}
			entry.Overrides[paramName] = value
			return nil
		}
	}
	return referenceError(node.Line, "override for unknown map entry %s", instName)
}

// Composer resolves entry addresses against compiled units. Nested muxes
// composed earlier can be registered so a mux can contain another mux.
type Composer struct {
	Lookup rif.Lookup
	Muxes  map[string]*Mux
}

// Compose assigns every entry its final address and size and validates
// containment within the mux address width. Relative entries add their
// offset (at least one footprint) to the previous entry's address; the
// persisting form also moves the base the next relative entry builds on.
func (composer *Composer) Compose(mux *Mux) error {
	limit := uint64(1) << uint(mux.AddrWidth)
	return composer.composeEntries(mux, mux.Entries, 0, limit)
}

func (composer *Composer) composeEntries(mux *Mux, entries []*Entry, base, limit uint64) error {
	var prev, prevSize uint64
	started := false
	for _, entry := range entries {
		size, err := composer.entrySize(mux, entry)
		if err != nil {
			return err
		}
		var addr uint64
		switch entry.AddrKind {
		case rif.AddrAbsolute:
			addr = base + entry.Offset
		case rif.AddrRelative:
			offset := entry.Offset
			if offset < prevSize {
				offset = prevSize
			}
			addr = prev + offset
		case rif.AddrRelativeSet:
			offset := entry.Offset
			if offset < prevSize {
				offset = prevSize
			}
			addr = prev + offset
		default:
			if started {
				addr = prev + prevSize
			} else {
				addr = base
			}
		}
		if entry.AddrKind != rif.AddrRelative {
			prev = addr
		}
		prevSize, started = size, true
		if addr < base || addr+size > limit {
			return rangeError(entry.Line,
				"entry %s at 0x%x..0x%x does not fit in %s's %d-bit address space",
				entry.Name, addr, addr+size-1, mux.Name, mux.AddrWidth)
		}
		entry.Addr, entry.Size = addr, size
		if len(entry.Entries) > 0 {
			if err := composer.composeEntries(mux, entry.Entries, addr, addr+size); err != nil {
				return err
			}
		}
	}
	return nil
}

// entrySize returns the number of bytes an entry occupies: 2^addrWidth for
// externals and nested muxes, the compiled unit size otherwise. Groups span
// from their base to the end of their largest member.
func (composer *Composer) entrySize(mux *Mux, entry *Entry) (uint64, error) {
	if entry.External {
		return uint64(1) << uint(entry.ExtAddrWidth), nil
	}
	if len(entry.Entries) > 0 {
		var size uint64
		for _, member := range entry.Entries {
			memberSize, err := composer.entrySize(mux, member)
			if err != nil {
				return 0, err
			}
			size += memberSize
		}
		return size, nil
	}
	if nested, ok := composer.Muxes[entry.Type]; ok {
		return uint64(1) << uint(nested.AddrWidth), nil
	}
	unit, err := composer.Lookup.Unit(entry.Type)
	if err != nil {
		return 0, err
	}
	return unit.Size(), nil
}

func syntaxError(line int, format string, args ...interface{}) error {
	return &rif.Error{Kind: rif.SyntaxErr, Line: line, Msg: fmt.Sprintf(format, args...)}
}

func structuralError(line int, format string, args ...interface{}) error {
	return &rif.Error{Kind: rif.StructuralErr, Line: line, Msg: fmt.Sprintf(format, args...)}
}

func referenceError(line int, format string, args ...interface{}) error {
	return &rif.Error{Kind: rif.ReferenceErr, Line: line, Msg: fmt.Sprintf(format, args...)}
}

func rangeError(line int, format string, args ...interface{}) error {
	return &rif.Error{Kind: rif.RangeErr, Line: line, Msg: fmt.Sprintf(format, args...)}
}
