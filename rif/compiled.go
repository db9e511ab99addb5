package rif

import "fmt"

// The frozen output model. Generators and the mux composer read it; nothing
// mutates it after elaboration.

// Field is one elaborated field occurrence. Array fields expand to one Field
// per index with the final bit range of that index.
type Field struct {
	Name     string
	Index    int // array index, -1 for scalar fields
	Lsb      int
	Width    int
	Reset    uint64
	HasReset bool
	Sw       SwAccess
	Hw       HwAccess
	Desc     string
	Partial  bool
	Hidden   bool
	Reserved bool
	Clock    string
	ResetSig string
	ClkEn    string
	Enum     *EnumDecl
	Mods     []Modifier
}

// Msb returns the most significant bit of the field's range.
func (field *Field) Msb() int {
	return field.Lsb + field.Width - 1
}

// InstName returns the per-index name of an array field element.
func (field *Field) InstName() string {
	if field.Index < 0 {
		return field.Name
	}
	return fmt.Sprintf("%s%d", field.Name, field.Index)
}

// RegStruct is one structural register layout. Grouped registers share one
// RegStruct; ungrouped registers own one each.
type RegStruct struct {
	Name         string
	Group        string // group name, "" for ungrouped registers
	Desc         string
	Reset        uint64 // OR of every field reset shifted to its lsb
	Fields       []*Field
	External     bool
	ExternalDone bool
	Pulses       []PulseSpec
	Intr         *IntrSpec
}

// field returns the first field occurrence with the given declared name.
func (reg *RegStruct) field(name string) *Field {
	for _, field := range reg.Fields {
		if field.Name == name {
			return field
		}
	}
	return nil
}

// Instance is one addressed placement of a RegStruct. AddrKind records how
// Addr was declared; the allocator resolves it to the final byte address.
type Instance struct {
	Name      string
	Type      string // RegStruct name
	Group     string // named group instantiation this placement belongs to
	AddrKind  AddrKind
	Addr      uint64
	ArraySize int
	Desc      string
	HwNA      bool
	Reset     uint64            // struct reset with per-instance overrides applied
	FieldDesc map[string]string // per-field description overrides, expanded
}

// Page is an elaborated address-space partition.
type Page struct {
	Name      string
	BaseAddr  uint64
	AddrWidth int
	External  bool
	Structs   []*RegStruct
	Instances []*Instance
}

// ParamValue records one resolved parameter for documentation output.
type ParamValue struct {
	Name  string
	Value string
}

// Compiled is the frozen result of compiling one unit.
type Compiled struct {
	Name      string
	AddrWidth int
	DataWidth int
	Interface InterfaceKind
	SwClock   string
	HwClocks  []string
	SwReset   ResetDecl
	HwResets  []ResetDecl
	SwClkEn   string
	HwClkEn   string
	SwClear   string
	HwClear   string
	Params    []ParamValue
	Pages     []*Page

	// Declarations are retained so that other units can include from this
	// one; they are read-only once here.
	decls   *TopDecl
	symbols *SymbolTable
}

// Size returns the number of addressable bytes the unit occupies.
func (compiled *Compiled) Size() uint64 {
	return uint64(1) << uint(compiled.AddrWidth)
}

// Struct finds a register structure by name across all pages, or nil.
func (compiled *Compiled) Struct(name string) *RegStruct {
	for _, page := range compiled.Pages {
		for _, reg := range page.Structs {
			if reg.Name == name {
				return reg
			}
		}
	}
	return nil
}

// GroupStruct finds the structure backing a register group, or nil.
func (compiled *Compiled) GroupStruct(group string) *RegStruct {
	for _, page := range compiled.Pages {
		for _, reg := range page.Structs {
			if reg.Group == group {
				return reg
			}
		}
	}
	return nil
}
