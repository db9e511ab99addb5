package rifmux

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"rifc/parser"
	"rifc/rif"
)

// unitLookup serves pre-sized compiled units to the composer.
type unitLookup map[string]*rif.Compiled

func (lookup unitLookup) Unit(name string) (*rif.Compiled, error) {
	if unit, ok := lookup[name]; ok {
		return unit, nil
	}
	return nil, &rif.Error{Kind: rif.UnitNotFoundErr, Msg: fmt.Sprintf("unit %s is not available", name)}
}

func sizedUnit(name string, addrWidth int) *rif.Compiled {
	return &rif.Compiled{Name: name, AddrWidth: addrWidth}
}

func parseMux(t *testing.T, src string) (*Mux, error) {
	tree, err := parser.ParseTree("test.rif", strings.NewReader(src))
	assert.Nil(t, err)
	return Parse(tree)
}

func mustParseMux(t *testing.T, src string) *Mux {
	mux, err := parseMux(t, src)
	assert.Nil(t, err)
	return mux
}

func TestIsMuxTree(t *testing.T) {
	muxTree, err := parser.ParseTree("a.rif", strings.NewReader("rifmux chip\n  map:\n    - spi\n"))
	assert.Nil(t, err)
	assert.True(t, IsMuxTree(muxTree))
	rifTree, err := parser.ParseTree("b.rif", strings.NewReader("rif spi\n"))
	assert.Nil(t, err)
	assert.False(t, IsMuxTree(rifTree))
}

func TestParse_Map(t *testing.T) {
	mux := mustParseMux(t, `rifmux chip
  addrWidth: 20
  dataWidth: 32
  interface: apb
  map:
    - spi @ 0x0
    - uart0 = uart @ 0x1000
    uart0.BAUD = 115200
    - dbg external 8 @+ 0x100
    - group analog @ 0x8000
      - adc
      - dac @+= 0x100
`)
	assert.Equal(t, "chip", mux.Name)
	assert.Equal(t, 20, mux.AddrWidth)
	assert.Equal(t, rif.IntfAPB, mux.Interface)
	assert.Equal(t, 4, len(mux.Entries))

	spi := mux.Entries[0]
	assert.Equal(t, "spi", spi.Name)
	assert.Equal(t, "spi", spi.Type)
	assert.Equal(t, rif.AddrAbsolute, spi.AddrKind)
	assert.Equal(t, uint64(0), spi.Offset)

	uart := mux.Entries[1]
	assert.Equal(t, "uart0", uart.Name)
	assert.Equal(t, "uart", uart.Type)
	assert.Equal(t, uint64(0x1000), uart.Offset)
	assert.Equal(t, map[string]string{"BAUD": "115200"}, uart.Overrides)

	dbg := mux.Entries[2]
	assert.True(t, dbg.External)
	assert.Equal(t, 8, dbg.ExtAddrWidth)
	assert.Equal(t, rif.AddrRelative, dbg.AddrKind)
	assert.Equal(t, uint64(0x100), dbg.Offset)

	analog := mux.Entries[3]
	assert.Equal(t, "analog", analog.Name)
	assert.Equal(t, 2, len(analog.Entries))
	assert.Equal(t, rif.AddrRelativeSet, analog.Entries[1].AddrKind)
}

func TestParse_EmptyMapFails(t *testing.T) {
	_, err := parseMux(t, "rifmux chip\n  addrWidth: 16\n")
	assert.NotNil(t, err)
	assert.Equal(t, rif.StructuralErr, rif.KindOf(err))
}

func TestParse_OverrideUnknownEntryFails(t *testing.T) {
	_, err := parseMux(t, `rifmux chip
  map:
    - spi
    nope.BAUD = 9600
`)
	assert.NotNil(t, err)
	assert.Equal(t, rif.ReferenceErr, rif.KindOf(err))
}

func TestCompose_AutoLayout(t *testing.T) {
	mux := mustParseMux(t, `rifmux chip
  addrWidth: 16
  map:
    - spi
    - uart
`)
	composer := &Composer{Lookup: unitLookup{
		"spi":  sizedUnit("spi", 8),
		"uart": sizedUnit("uart", 8),
	}}
	assert.Nil(t, composer.Compose(mux))
	assert.Equal(t, uint64(0x0), mux.Entries[0].Addr)
	assert.Equal(t, uint64(0x100), mux.Entries[0].Size)
	assert.Equal(t, uint64(0x100), mux.Entries[1].Addr)
}

func TestCompose_RelativeForms(t *testing.T) {
	mux := mustParseMux(t, `rifmux chip
  addrWidth: 16
  map:
    - a
    - b @+ 0x10
    - c @+= 0x300
    - d
`)
	lookup := unitLookup{}
	for _, name := range []string{"a", "b", "c", "d"} {
		lookup[name] = sizedUnit(name, 8)
	}
	composer := &Composer{Lookup: lookup}
	assert.Nil(t, composer.Compose(mux))
	// b's offset is raised to a's footprint, and the plain relative form does
	// not move the base c builds on.
	assert.Equal(t, uint64(0x0), mux.Entries[0].Addr)
	assert.Equal(t, uint64(0x100), mux.Entries[1].Addr)
	assert.Equal(t, uint64(0x300), mux.Entries[2].Addr)
	assert.Equal(t, uint64(0x400), mux.Entries[3].Addr)
}

func TestCompose_GroupContainsMembers(t *testing.T) {
	mux := mustParseMux(t, `rifmux chip
  addrWidth: 16
  map:
    - group analog @ 0x1000
      - adc
      - dac
`)
	composer := &Composer{Lookup: unitLookup{
		"adc": sizedUnit("adc", 8),
		"dac": sizedUnit("dac", 8),
	}}
	assert.Nil(t, composer.Compose(mux))
	analog := mux.Entries[0]
	assert.Equal(t, uint64(0x1000), analog.Addr)
	assert.Equal(t, uint64(0x200), analog.Size)
	assert.Equal(t, uint64(0x1000), analog.Entries[0].Addr)
	assert.Equal(t, uint64(0x1100), analog.Entries[1].Addr)
}

func TestCompose_ExternalAndNestedMux(t *testing.T) {
	sub := mustParseMux(t, `rifmux sub
  addrWidth: 12
  map:
    - spi
`)
	mux := mustParseMux(t, `rifmux chip
  addrWidth: 20
  map:
    - sub @ 0x0
    - dbg external 8
`)
	composer := &Composer{
		Lookup: unitLookup{"spi": sizedUnit("spi", 8)},
		Muxes:  map[string]*Mux{"sub": sub},
	}
	assert.Nil(t, composer.Compose(mux))
	assert.Equal(t, uint64(0x1000), mux.Entries[0].Size)
	assert.Equal(t, uint64(0x1000), mux.Entries[1].Addr)
	assert.Equal(t, uint64(0x100), mux.Entries[1].Size)
}

func TestCompose_OutOfSpaceFails(t *testing.T) {
	mux := mustParseMux(t, `rifmux chip
  addrWidth: 8
  map:
    - spi @ 0x80
`)
	composer := &Composer{Lookup: unitLookup{"spi": sizedUnit("spi", 8)}}
	err := composer.Compose(mux)
	assert.NotNil(t, err)
	assert.Equal(t, rif.RangeErr, rif.KindOf(err))
}

func TestCompose_UnknownUnitFails(t *testing.T) {
	mux := mustParseMux(t, `rifmux chip
  map:
    - ghost
`)
	composer := &Composer{Lookup: unitLookup{}}
	err := composer.Compose(mux)
	assert.NotNil(t, err)
	assert.Equal(t, rif.UnitNotFoundErr, rif.KindOf(err))
}

func TestDumpYAML_ComposedMap(t *testing.T) {
	mux := mustParseMux(t, `rifmux chip
  addrWidth: 16
  map:
    - spi @ 0x0
    spi.MODE = 3
`)
	composer := &Composer{Lookup: unitLookup{"spi": sizedUnit("spi", 8)}}
	assert.Nil(t, composer.Compose(mux))
	out, err := DumpYAML(mux)
	assert.Nil(t, err)
	assert.Contains(t, string(out), "rifmux: chip")
	assert.Contains(t, string(out), "name: spi")
	assert.Contains(t, string(out), "MODE:")
	assert.Contains(t, string(out), "0x100")
}
