package rif

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"rifc/parser"
)

func buildSource(t *testing.T, src string, overrides map[string]string) (*TopDecl, error) {
	tree, err := parser.ParseTree("test.rif", strings.NewReader(src))
	assert.Nil(t, err)
	params, generics, err := buildParamDecls(tree)
	if err != nil {
		return nil, err
	}
	symbols, _, err := resolveParams(&TopDecl{Params: params, Generics: generics, Name: "test.rif"}, overrides)
	if err != nil {
		return nil, err
	}
	return buildDecl(tree, symbols, params, generics)
}

func TestBuildDecl_TopDefaults(t *testing.T) {
	top, err := buildSource(t, `rif demo
  page main @ 0x0
    registers:
      reg r0
        field f0 7:0
`, nil)
	assert.Nil(t, err)
	assert.Equal(t, "demo", top.Name)
	assert.Equal(t, 16, top.AddrWidth)
	assert.Equal(t, 32, top.DataWidth)
	assert.Equal(t, IntfDefault, top.Interface)
	assert.Equal(t, "clk", top.SwClock)
	assert.Equal(t, ResetDecl{Name: "rst_n", ActiveLow: true, Async: true}, top.SwReset)
}

func TestBuildDecl_ApbDefaults(t *testing.T) {
	top, err := buildSource(t, `rif demo
  interface: apb
  page main @ 0x0
    registers:
      reg r0
        field f0 7:0
`, nil)
	assert.Nil(t, err)
	assert.Equal(t, IntfAPB, top.Interface)
	assert.Equal(t, "pclk", top.SwClock)
	assert.Equal(t, "presetn", top.SwReset.Name)
}

func TestBuildDecl_TopProperties(t *testing.T) {
	top, err := buildSource(t, `rif demo
  addrWidth: 12
  dataWidth: 64
  clk: bus_clk
  hwClk: core_clk dsp_clk
  rst: soft_rst activeHigh sync
  hwRst: core_rst_n
  clkEn: bus_en
  page main @ 0x100
    registers:
      reg r0
        field f0 7:0
`, nil)
	assert.Nil(t, err)
	assert.Equal(t, 12, top.AddrWidth)
	assert.Equal(t, 64, top.DataWidth)
	assert.Equal(t, "bus_clk", top.SwClock)
	assert.Equal(t, []string{"core_clk", "dsp_clk"}, top.HwClocks)
	assert.Equal(t, ResetDecl{Name: "soft_rst", ActiveLow: false, Async: false}, top.SwReset)
	assert.Equal(t, []ResetDecl{{Name: "core_rst_n", ActiveLow: true, Async: true}}, top.HwResets)
	assert.Equal(t, "bus_en", top.SwClkEn)
	assert.Equal(t, uint64(0x100), top.Pages[0].BaseAddr)
}

func TestBuildDecl_ZeroPagesFails(t *testing.T) {
	_, err := buildSource(t, `rif demo
  dataWidth: 32
`, nil)
	assert.NotNil(t, err)
	assert.Equal(t, StructuralErr, KindOf(err))
}

func TestBuildDecl_FieldForms(t *testing.T) {
	top, err := buildSource(t, `rif demo
  parameters:
    W = 4
  page main @ 0x0
    registers:
      reg ctrl
        field mode 3:0 rst=0x5 "operating mode"
        field burst 8+:$W rst={1, 2, 3, 4}
          arrayPosIncr 4
        field en 1b
        field big[4] 16:16
`, nil)
	assert.Nil(t, err)
	fields := top.Pages[0].Registers[0].Fields
	assert.Equal(t, 4, len(fields))

	mode := fields[0]
	assert.Equal(t, "mode", mode.Name)
	assert.Equal(t, 0, mode.Lsb)
	assert.Equal(t, 4, mode.Width)
	assert.True(t, mode.HasPos)
	assert.Equal(t, []uint64{5}, mode.Resets)
	assert.Equal(t, "operating mode", mode.Desc)

	burst := fields[1]
	assert.Equal(t, 8, burst.Lsb)
	assert.Equal(t, 4, burst.Width)
	assert.Equal(t, []uint64{1, 2, 3, 4}, burst.Resets)
	assert.Equal(t, 4, burst.ArrayPosIncr)

	en := fields[2]
	assert.Equal(t, 1, en.Width)
	assert.False(t, en.HasPos)

	big := fields[3]
	assert.Equal(t, 4, big.ArraySize)
	assert.Equal(t, 16, big.Lsb)
	assert.Equal(t, 1, big.Width)
}

func TestBuildDecl_FieldModifierOrder(t *testing.T) {
	top, err := buildSource(t, `rif demo
  page main @ 0x0
    registers:
      reg cnt
        field events 15:0 rst=0
          counter up sat
          hw rw
        field guard 16:16
          lock cfg_lock
          we
`, nil)
	assert.Nil(t, err)
	fields := top.Pages[0].Registers[0].Fields
	events := fields[0]
	assert.Equal(t, 2, len(events.Mods))
	counter, ok := events.Mods[0].(ModCounter)
	assert.True(t, ok)
	assert.Equal(t, CounterUp, counter.Dir)
	assert.True(t, counter.Saturate)
	hwMod, ok := events.Mods[1].(ModHwAccess)
	assert.True(t, ok)
	assert.Equal(t, HwRW, hwMod.Access)

	guard := fields[1]
	lock, ok := guard.Mods[0].(ModLock)
	assert.True(t, ok)
	assert.Equal(t, "cfg_lock", lock.Signal)
	_, ok = guard.Mods[1].(ModWe)
	assert.True(t, ok)
}

func TestBuildDecl_InterruptSpec(t *testing.T) {
	top, err := buildSource(t, `rif demo
  page main @ 0x0
    registers:
      reg irq
        interrupt rising w1clr enable=0x1 mask=0x0 pending
        field done 0:0
        field err 1:1
`, nil)
	assert.Nil(t, err)
	intr := top.Pages[0].Registers[0].Intr
	assert.NotNil(t, intr)
	assert.Equal(t, IntrRising, intr.Trigger)
	assert.Equal(t, IntrW1clr, intr.Clear)
	assert.Equal(t, uint64(1), *intr.Enable)
	assert.Equal(t, uint64(0), *intr.Mask)
	assert.True(t, intr.Pending)
}

func TestBuildDecl_PendingWithoutMaskFails(t *testing.T) {
	_, err := buildSource(t, `rif demo
  page main @ 0x0
    registers:
      reg irq
        interrupt pending
        field done 0:0
`, nil)
	assert.NotNil(t, err)
	assert.Equal(t, StructuralErr, KindOf(err))
}

func TestBuildDecl_OptionalDropsNested(t *testing.T) {
	src := `rif demo
  parameters:
    DEBUG = %s
  page main @ 0x0
    registers:
      reg r0
        field f0 7:0
      reg dbg
        optional: $DEBUG == 1
        field trace 7:0
`
	top, err := buildSource(t, strings.Replace(src, "%s", "1", 1), nil)
	assert.Nil(t, err)
	assert.Equal(t, 2, len(top.Pages[0].Registers))
	top, err = buildSource(t, strings.Replace(src, "%s", "0", 1), nil)
	assert.Nil(t, err)
	assert.Equal(t, 1, len(top.Pages[0].Registers))
}

func TestBuildDecl_PageIncludeExclusivity(t *testing.T) {
	_, err := buildSource(t, `rif demo
  page main @ 0x0
    include other.main
    registers:
      reg r0
        field f0 7:0
`, nil)
	assert.NotNil(t, err)
	assert.Equal(t, StructuralErr, KindOf(err))
}

func TestBuildDecl_Instances(t *testing.T) {
	top, err := buildSource(t, `rif demo
  page main @ 0x0
    registers:
      reg cfg
        field f0 7:0
    instances:
      - cfg0 = cfg @ 0x10
        desc: primary config
        f0.rst: 0x7
      - cfg1 = cfg [4]
      - cfg2 = cfg @+ 0x20
`, nil)
	assert.Nil(t, err)
	instances := top.Pages[0].Instances
	assert.Equal(t, 3, len(instances))
	assert.Equal(t, "cfg0", instances[0].Name)
	assert.Equal(t, "cfg", instances[0].Type)
	assert.Equal(t, AddrAbsolute, instances[0].AddrKind)
	assert.Equal(t, uint64(0x10), instances[0].Addr)
	assert.Equal(t, "primary config", instances[0].Desc)
	assert.Equal(t, uint64(0x7), instances[0].FieldRst["f0"])
	assert.Equal(t, 4, instances[1].ArraySize)
	assert.Equal(t, AddrAuto, instances[1].AddrKind)
	assert.Equal(t, AddrRelative, instances[2].AddrKind)
	assert.Equal(t, uint64(0x20), instances[2].Addr)
}

func TestBuildDecl_Enum(t *testing.T) {
	top, err := buildSource(t, `rif demo
  page main @ 0x0
    registers:
      reg cfg
        field mode 1:0
          enum mode_t:
            off
            slow = 1 "reduced rate"
            fast = 3
`, nil)
	assert.Nil(t, err)
	enum := top.Pages[0].Registers[0].Fields[0].Enum
	assert.NotNil(t, enum)
	assert.Equal(t, "mode_t", enum.TypeName)
	assert.Equal(t, []EnumEntry{
		{Name: "off", Value: 0},
		{Name: "slow", Value: 1, Desc: "reduced rate"},
		{Name: "fast", Value: 3},
	}, enum.Entries)
}

func TestBuildDecl_DuplicateEnumValueFails(t *testing.T) {
	_, err := buildSource(t, `rif demo
  page main @ 0x0
    registers:
      reg cfg
        field mode 1:0
          enum:
            a = 1
            b = 1
`, nil)
	assert.NotNil(t, err)
	assert.Equal(t, ConflictErr, KindOf(err))
}

func TestBuildDecl_UnknownKeywordFails(t *testing.T) {
	_, err := buildSource(t, `rif demo
  page main @ 0x0
    registers:
      reg r0
        field f0 7:0
          wiggle
`, nil)
	assert.NotNil(t, err)
	assert.Equal(t, SyntaxErr, KindOf(err))
}
