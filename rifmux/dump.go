package rifmux

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"rifc/rif"
)

type dumpEntry struct {
	Name      string            `yaml:"name"`
	Type      string            `yaml:"type,omitempty"`
	External  bool              `yaml:"external,omitempty"`
	Addr      string            `yaml:"addr"`
	Size      string            `yaml:"size"`
	Overrides map[string]string `yaml:"overrides,omitempty"`
	Entries   []dumpEntry       `yaml:"entries,omitempty"`
}

type dumpMux struct {
	Name      string      `yaml:"rifmux"`
	AddrWidth int         `yaml:"addrWidth"`
	DataWidth int         `yaml:"dataWidth"`
	Interface string      `yaml:"interface"`
	Entries   []dumpEntry `yaml:"map"`
}

var interfaceNames = map[rif.InterfaceKind]string{
	rif.IntfDefault: "default",
	rif.IntfAPB:     "apb",
	rif.IntfUAUX:    "uaux",
}

// DumpYAML renders a composed mux map in declaration order.
func DumpYAML(mux *Mux) ([]byte, error) {
	out := dumpMux{
		Name:      mux.Name,
		AddrWidth: mux.AddrWidth,
		DataWidth: mux.DataWidth,
		Interface: interfaceNames[mux.Interface],
	}
	for _, entry := range mux.Entries {
		out.Entries = append(out.Entries, dumpEntryOf(entry))
	}
	return yaml.Marshal(out)
}

func dumpEntryOf(entry *Entry) dumpEntry {
	dumped := dumpEntry{
		Name:      entry.Name,
		Type:      entry.Type,
		External:  entry.External,
		Addr:      fmt.Sprintf("0x%x", entry.Addr),
		Size:      fmt.Sprintf("0x%x", entry.Size),
		Overrides: entry.Overrides,
	}
	for _, member := range entry.Entries {
		dumped.Entries = append(dumped.Entries, dumpEntryOf(member))
	}
	return dumped
}
