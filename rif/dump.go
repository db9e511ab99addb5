package rif

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// The YAML dump is the machine-readable form of a compiled unit, consumed by
// the downstream generators. Slices keep declaration order and the yaml
// encoder sorts map keys, so identical input produces byte-identical output.

type dumpField struct {
	Name  string          `yaml:"name"`
	Bits  string          `yaml:"bits"`
	Reset string          `yaml:"reset,omitempty"`
	Sw    string          `yaml:"sw"`
	Hw    string          `yaml:"hw"`
	Desc  string          `yaml:"desc,omitempty"`
	Enum  []dumpEnumEntry `yaml:"enum,omitempty"`
	Mods  []string        `yaml:"mods,omitempty"`
}

type dumpEnumEntry struct {
	Name  string `yaml:"name"`
	Value uint64 `yaml:"value"`
	Desc  string `yaml:"desc,omitempty"`
}

type dumpStruct struct {
	Name   string      `yaml:"name"`
	Group  string      `yaml:"group,omitempty"`
	Reset  string      `yaml:"reset"`
	Desc   string      `yaml:"desc,omitempty"`
	Fields []dumpField `yaml:"fields"`
}

type dumpInstance struct {
	Name      string            `yaml:"name"`
	Type      string            `yaml:"type"`
	Group     string            `yaml:"group,omitempty"`
	Addr      string            `yaml:"addr"`
	Array     int               `yaml:"array,omitempty"`
	Reset     string            `yaml:"reset"`
	Desc      string            `yaml:"desc,omitempty"`
	FieldDesc map[string]string `yaml:"fieldDesc,omitempty"`
}

type dumpPage struct {
	Name      string         `yaml:"name"`
	BaseAddr  string         `yaml:"baseAddr"`
	AddrWidth int            `yaml:"addrWidth"`
	External  bool           `yaml:"external,omitempty"`
	Structs   []dumpStruct   `yaml:"registers"`
	Instances []dumpInstance `yaml:"instances"`
}

type dumpParam struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

type dumpUnit struct {
	Name      string      `yaml:"rif"`
	AddrWidth int         `yaml:"addrWidth"`
	DataWidth int         `yaml:"dataWidth"`
	Interface string      `yaml:"interface"`
	SwClock   string      `yaml:"clk"`
	SwReset   string      `yaml:"rst"`
	HwClocks  []string    `yaml:"hwClk,omitempty"`
	Params    []dumpParam `yaml:"parameters,omitempty"`
	Pages     []dumpPage  `yaml:"pages"`
}

// DumpYAML renders the frozen model. Output order follows declaration order
// everywhere, making re-runs byte-identical.
func DumpYAML(compiled *Compiled) ([]byte, error) {
	unit := dumpUnit{
		Name:      compiled.Name,
		AddrWidth: compiled.AddrWidth,
		DataWidth: compiled.DataWidth,
		Interface: interfaceKindNames[compiled.Interface],
		SwClock:   compiled.SwClock,
		SwReset:   compiled.SwReset.Name,
		HwClocks:  compiled.HwClocks,
	}
	for _, param := range compiled.Params {
		unit.Params = append(unit.Params, dumpParam{Name: param.Name, Value: param.Value})
	}
	for _, page := range compiled.Pages {
		unit.Pages = append(unit.Pages, dumpPageOf(page))
	}
	return yaml.Marshal(unit)
}

func dumpPageOf(page *Page) dumpPage {
	out := dumpPage{
		Name:      page.Name,
		BaseAddr:  hex(page.BaseAddr),
		AddrWidth: page.AddrWidth,
		External:  page.External,
	}
	for _, regStruct := range page.Structs {
		out.Structs = append(out.Structs, dumpStructOf(regStruct))
	}
	for _, inst := range page.Instances {
		array := inst.ArraySize
		if array == 1 {
			array = 0
		}
		out.Instances = append(out.Instances, dumpInstance{
			Name:      inst.Name,
			Type:      inst.Type,
			Group:     inst.Group,
			Addr:      hex(inst.Addr),
			Array:     array,
			Reset:     hex(inst.Reset),
			Desc:      inst.Desc,
			FieldDesc: inst.FieldDesc,
		})
	}
	return out
}

func dumpStructOf(regStruct *RegStruct) dumpStruct {
	out := dumpStruct{
		Name:  regStruct.Name,
		Group: regStruct.Group,
		Reset: hex(regStruct.Reset),
		Desc:  regStruct.Desc,
	}
	for _, field := range regStruct.Fields {
		dumped := dumpField{
			Name: field.InstName(),
			Bits: fmt.Sprintf("[%d:%d]", field.Msb(), field.Lsb),
			Sw:   swAccessNames[field.Sw],
			Hw:   hwAccessNames[field.Hw],
			Desc: field.Desc,
		}
		if field.HasReset {
			dumped.Reset = hex(field.Reset)
		}
		if field.Enum != nil {
			for _, entry := range field.Enum.Entries {
				dumped.Enum = append(dumped.Enum, dumpEnumEntry(entry))
			}
		}
		for _, mod := range field.Mods {
			dumped.Mods = append(dumped.Mods, mod.modifierName())
		}
		out.Fields = append(out.Fields, dumped)
	}
	return out
}

func hex(value uint64) string {
	return fmt.Sprintf("0x%x", value)
}
