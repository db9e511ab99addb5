package rif

// Typed declarations produced by the declaration builder. Declarations are
// built once per compilation unit and never mutated after elaboration; other
// units may read them through the compiled result but never change them.

type InterfaceKind int

const (
	IntfDefault InterfaceKind = iota // plain register bus
	IntfAPB                         // AMBA APB wrapper, clk defaults to pclk / presetn
	IntfUAUX                        // uAux auxiliary bus
)

var interfaceKindNames = map[InterfaceKind]string{
	IntfDefault: "default",
	IntfAPB:     "apb",
	IntfUAUX:    "uaux",
}

type SwAccess int

const (
	SwRW    SwAccess = iota // read-write (default)
	SwRO                    // read-only
	SwWO                    // write-only
	SwRCLR                  // read clears
	SwW1CLR                 // write-one clears
	SwW0CLR                 // write-zero clears
	SwW1SET                 // write-one sets
)

var swAccessNames = map[SwAccess]string{
	SwRW: "rw", SwRO: "ro", SwWO: "wo", SwRCLR: "rclr",
	SwW1CLR: "w1clr", SwW0CLR: "w0clr", SwW1SET: "w1set",
}

// CanRead / CanWrite describe the software side of the access pair.
func (access SwAccess) CanRead() bool {
	return access != SwWO
}

func (access SwAccess) CanWrite() bool {
	return access != SwRO && access != SwRCLR
}

type HwAccess int

const (
	HwR  HwAccess = iota // hardware reads the value (default)
	HwW                  // hardware writes the value
	HwRW                 // hardware reads and writes
	HwNA                 // no hardware port
)

var hwAccessNames = map[HwAccess]string{
	HwR: "r", HwW: "w", HwRW: "rw", HwNA: "na",
}

func (access HwAccess) CanWrite() bool {
	return access == HwW || access == HwRW
}

// ResetDecl describes one reset signal.
type ResetDecl struct {
	Name      string
	ActiveLow bool
	Async     bool
}

// ParamDecl is an unevaluated parameter; resolution order is source order.
type ParamDecl struct {
	Name string
	Expr string
	Line int
}

// GenericDecl is a (min, default, max) triple, never arithmetic-evaluated.
type GenericDecl struct {
	Name    string
	Min     int64
	Default int64
	Max     int64
	Line    int
}

// Field modifiers form a closed set of variants, each carrying its own typed
// parameters. The declaration keeps them in source order: ordering matters
// for the counter / hw-access interaction.
type Modifier interface {
	modifierName() string
}

type ModClkEn struct{ Signal string }
type ModHwSet struct{ Signal string } // empty signal = auto-named port
type ModHwClr struct{ Signal string }
type ModHwTgl struct{ Signal string }
type ModLock struct{ Signal string }
type ModWe struct{ Low bool } // write-enable qualifier, Low = wel
type ModPulse struct{ Comb bool }
type ModToggle struct{}
type ModSwSet struct{}
type ModSigned struct{}
type ModClear struct{}
type ModHidden struct{}
type ModReserved struct{}
type ModDisable struct{}
type ModPartial struct{ LsbOffset int }
type ModHwAccess struct{ Access HwAccess } // records where "hw ..." sat in the sequence

type CounterDir int

const (
	CounterUp CounterDir = iota
	CounterDown
	CounterUpDown
)

type ModCounter struct {
	Dir      CounterDir
	IncrSig  string
	DecrSig  string
	Clear    bool
	Saturate bool
}

type LimitKind int

const (
	LimitRange LimitKind = iota // inclusive [Min, Max]
	LimitSet                    // explicit legal values
	LimitEnum                   // legal values are the field's enum values
)

type ModLimit struct {
	Kind   LimitKind
	Min    uint64
	Max    uint64
	Values []uint64
	Bypass string
}

type PasswordKind int

const (
	PasswordOnce    PasswordKind = iota // unlocks a single following write
	PasswordHold                        // unlocks while the value is held
	PasswordProtect                     // this field is the protected one
)

type ModPassword struct {
	Kind  PasswordKind
	Value uint64
}

func (ModClkEn) modifierName() string    { return "clkEn" }
func (ModHwSet) modifierName() string    { return "hwset" }
func (ModHwClr) modifierName() string    { return "hwclr" }
func (ModHwTgl) modifierName() string    { return "hwtgl" }
func (ModLock) modifierName() string     { return "lock" }
func (ModWe) modifierName() string       { return "we" }
func (ModPulse) modifierName() string    { return "pulse" }
func (ModToggle) modifierName() string   { return "toggle" }
func (ModSwSet) modifierName() string    { return "swset" }
func (ModSigned) modifierName() string   { return "signed" }
func (ModClear) modifierName() string    { return "clear" }
func (ModHidden) modifierName() string   { return "hidden" }
func (ModReserved) modifierName() string { return "reserved" }
func (ModDisable) modifierName() string  { return "disable" }
func (ModPartial) modifierName() string  { return "partial" }
func (ModHwAccess) modifierName() string { return "hw" }
func (ModCounter) modifierName() string  { return "counter" }
func (ModLimit) modifierName() string    { return "limit" }
func (ModPassword) modifierName() string { return "password" }

// EnumEntry is one name/value/description triple of a field enum.
type EnumEntry struct {
	Name  string
	Value uint64
	Desc  string
}

type EnumDecl struct {
	TypeName string // optional emitted-type name
	Entries  []EnumEntry
}

// FieldDecl is one field of a register. Position is the declared location of
// array index 0; HasPos is false when the field takes the next free lsb.
type FieldDecl struct {
	Name         string
	Desc         string
	ArraySize    int
	ArrayPosIncr int // per-index lsb stride, 0 = field width
	ArrayPartial int // continuation lsb in the next register, -1 = none
	Lsb          int
	Width        int
	HasPos       bool
	Resets       []uint64 // one entry, or one per array index
	Sw           SwAccess
	HasSw        bool
	Hw           HwAccess
	HasHw        bool
	Mods         []Modifier
	Enum         *EnumDecl
	Line         int
}

// HasMod reports whether a modifier of the same variant as probe is present.
func (field *FieldDecl) HasMod(probe Modifier) bool {
	for _, mod := range field.Mods {
		if mod.modifierName() == probe.modifierName() {
			return true
		}
	}
	return false
}

type PulseKind int

const (
	PulseWrite PulseKind = iota
	PulseRead
	PulseAccess
)

// PulseSpec is a register-level access strobe. Read pulses default to
// combinational, write/access pulses to registered.
type PulseSpec struct {
	Kind  PulseKind
	Reg   bool
	Clock string
}

type IntrTrigger int

const (
	IntrHigh IntrTrigger = iota // level, active high (default)
	IntrLow
	IntrRising
	IntrFalling
	IntrEdge // both edges
)

type IntrClear int

const (
	IntrRclr  IntrClear = iota // read clears (default)
	IntrW1clr                  // write one clears
	IntrW0clr
	IntrHwclr
)

// IntrSpec turns a register into an interrupt status register with derived
// enable/mask/pending shadows.
type IntrSpec struct {
	Trigger IntrTrigger
	Clear   IntrClear
	Enable  *uint64 // shadow _en register with this per-field reset
	Mask    *uint64 // shadow _mask register with this per-field reset
	Pending bool    // shadow _pending register, requires Mask
}

// RegDecl is one register declaration, either a field list or an include
// directive, never both.
type RegDecl struct {
	Name         string
	Group        string // group name, "" = ungrouped
	GroupRif     string // non-empty for otherRif::group references
	Desc         string
	Clock        string
	HwReset      string
	ClkEn        string
	External     bool
	ExternalDone bool
	Pulses       []PulseSpec
	Intr         *IntrSpec
	Fields       []*FieldDecl
	Include      string // rifName.regName / rifName.pageName.* / rifName.*
	Line         int
}

type AddrKind int

const (
	AddrAuto        AddrKind = iota // previous address + previous size
	AddrAbsolute                    // @addr
	AddrRelative                    // @+offset, running base unchanged
	AddrRelativeSet                 // @+=offset, running base updated
)

// InstanceDecl places a register (or group) in a page's address space.
type InstanceDecl struct {
	Name      string
	Type      string // register or group name, defaults to Name
	GroupInst string
	AddrKind  AddrKind
	Addr      uint64
	ArraySize int
	Desc      string
	HwNA      bool              // per-instance hardware disconnect
	FieldDesc map[string]string // per-field description overrides
	FieldRst  map[string]uint64 // per-field reset overrides
	Line      int
}

// PageDecl partitions the unit's address space. It holds either explicit
// registers/instances or a whole-page include, never both.
type PageDecl struct {
	Name          string
	BaseAddr      uint64
	AddrWidth     int // 0 = inherit from the top unit
	ClkEn         string
	External      bool
	Include       string // rifName.pageName
	InstancesAuto bool
	Registers     []*RegDecl
	Instances     []*InstanceDecl
	Line          int
}

// TopDecl is the root declaration of one compilation unit.
type TopDecl struct {
	Name      string
	AddrWidth int
	DataWidth int
	Interface InterfaceKind
	SwClock   string
	HwClocks  []string // first entry is the default hardware clock
	SwReset   ResetDecl
	HwResets  []ResetDecl
	SwClkEn   string
	HwClkEn   string
	SwClear   string
	HwClear   string
	Params    []*ParamDecl
	Generics  []*GenericDecl
	Pages     []*PageDecl
	Line      int
}
