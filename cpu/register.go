package cpu

import (
	"strings"
)

// Register identifies one of the 64-bit register slots.
type Register byte

const (
	REG_RAX   = Register(0)
	REG_RBX   = Register(1)
	REG_RCX   = Register(2)
	REG_RDX   = Register(3)
	REG_RSI   = Register(4)
	REG_RDI   = Register(5)
	REG_RBP   = Register(6)
	REG_RSP   = Register(7)
	REG_R8    = Register(8)
	REG_R9    = Register(9)
	REG_R10   = Register(10)
	REG_R11   = Register(11)
	REG_R12   = Register(12)
	REG_R13   = Register(13)
	REG_R14   = Register(14)
	REG_R15   = Register(15)
	REG_RIP   = Register(16)
	REG_FLAGS = Register(17)
	REG_CS    = Register(18)
	REG_DS    = Register(19)
	REG_SS    = Register(20)
	REG_ES    = Register(21)
	REG_FS    = Register(22)
	REG_GS    = Register(23)

	REGISTER_COUNT = 24
)

// Region is a view of part of a register.
type Region byte

const (
	REGION_LOW_BYTE  = Region(0) // bits [0:8)
	REGION_HIGH_BYTE = Region(1) // bits [8:16)
	REGION_WORD      = Region(2) // bits [0:16)
	REGION_DWORD     = Region(3) // bits [0:32)
	REGION_QWORD     = Region(4) // bits [0:64)

	REGION_COUNT = 5
)

// Flag is a bit position in the FLAGS register.
type Flag byte

const (
	FLAG_CF = Flag(0)  // carry
	FLAG_PF = Flag(2)  // parity
	FLAG_AF = Flag(4)  // adjust, unused
	FLAG_ZF = Flag(6)  // zero
	FLAG_SF = Flag(7)  // sign
	FLAG_TF = Flag(8)  // trap, unused
	FLAG_IF = Flag(9)  // interrupt enable, unused
	FLAG_DF = Flag(10) // direction, unused
	FLAG_OF = Flag(11) // overflow
)

var flagNames = map[Flag]string{
	FLAG_CF: "cf",
	FLAG_PF: "pf",
	FLAG_AF: "af",
	FLAG_ZF: "zf",
	FLAG_SF: "sf",
	FLAG_TF: "tf",
	FLAG_IF: "if",
	FLAG_DF: "df",
	FLAG_OF: "of",
}

func (flag Flag) String() string {
	name, ok := flagNames[flag]
	if !ok {
		return "flag?"
	}
	return name
}

// ParseFlag looks up a flag by its two letter name.
func ParseFlag(name string) (flag Flag, ok bool) {
	name = strings.ToLower(name)
	for flag, text := range flagNames {
		if text == name {
			return flag, true
		}
	}
	return
}

var regionNames = [...]string{"low byte", "high byte", "word", "dword", "qword"}

func (region Region) String() string {
	if int(region) < len(regionNames) {
		return regionNames[region]
	}
	return "region?"
}

// Size of the data seen through the region.
func (region Region) Size() Size {
	switch region {
	case REGION_LOW_BYTE, REGION_HIGH_BYTE:
		return SIZE_BYTE
	case REGION_WORD:
		return SIZE_WORD
	case REGION_DWORD:
		return SIZE_DWORD
	default:
		return SIZE_QWORD
	}
}

type regionSet uint8

const (
	regionsAll   = regionSet(0b11111)
	regionsWide  = regionSet(1<<REGION_WORD | 1<<REGION_DWORD | 1<<REGION_QWORD)
	regionsQword = regionSet(1 << REGION_QWORD)
	regionsWord  = regionSet(1 << REGION_WORD)
)

type registerInfo struct {
	// Names by region, empty where the region is not allowed.
	names   [REGION_COUNT]string
	regions regionSet
}

var registerTable = [REGISTER_COUNT]registerInfo{
	REG_RAX:   {[REGION_COUNT]string{"al", "ah", "ax", "eax", "rax"}, regionsAll},
	REG_RBX:   {[REGION_COUNT]string{"bl", "bh", "bx", "ebx", "rbx"}, regionsAll},
	REG_RCX:   {[REGION_COUNT]string{"cl", "ch", "cx", "ecx", "rcx"}, regionsAll},
	REG_RDX:   {[REGION_COUNT]string{"dl", "dh", "dx", "edx", "rdx"}, regionsAll},
	REG_RSI:   {[REGION_COUNT]string{"", "", "si", "esi", "rsi"}, regionsWide},
	REG_RDI:   {[REGION_COUNT]string{"", "", "di", "edi", "rdi"}, regionsWide},
	REG_RBP:   {[REGION_COUNT]string{"", "", "bp", "ebp", "rbp"}, regionsWide},
	REG_RSP:   {[REGION_COUNT]string{"", "", "sp", "esp", "rsp"}, regionsWide},
	REG_R8:    {[REGION_COUNT]string{"", "", "", "", "r8"}, regionsQword},
	REG_R9:    {[REGION_COUNT]string{"", "", "", "", "r9"}, regionsQword},
	REG_R10:   {[REGION_COUNT]string{"", "", "", "", "r10"}, regionsQword},
	REG_R11:   {[REGION_COUNT]string{"", "", "", "", "r11"}, regionsQword},
	REG_R12:   {[REGION_COUNT]string{"", "", "", "", "r12"}, regionsQword},
	REG_R13:   {[REGION_COUNT]string{"", "", "", "", "r13"}, regionsQword},
	REG_R14:   {[REGION_COUNT]string{"", "", "", "", "r14"}, regionsQword},
	REG_R15:   {[REGION_COUNT]string{"", "", "", "", "r15"}, regionsQword},
	REG_RIP:   {[REGION_COUNT]string{"", "", "ip", "eip", "rip"}, regionsWide},
	REG_FLAGS: {[REGION_COUNT]string{"", "", "flags", "", ""}, regionsWord},
	REG_CS:    {[REGION_COUNT]string{"", "", "cs", "", ""}, regionsWord},
	REG_DS:    {[REGION_COUNT]string{"", "", "ds", "", ""}, regionsWord},
	REG_SS:    {[REGION_COUNT]string{"", "", "ss", "", ""}, regionsWord},
	REG_ES:    {[REGION_COUNT]string{"", "", "es", "", ""}, regionsWord},
	REG_FS:    {[REGION_COUNT]string{"", "", "fs", "", ""}, regionsWord},
	REG_GS:    {[REGION_COUNT]string{"", "", "gs", "", ""}, regionsWord},
}

// registerNames maps every register view name to its register and region.
var registerNames = map[string]RegisterRef{}

func init() {
	for reg, info := range registerTable {
		for region, name := range info.names {
			if len(name) != 0 {
				registerNames[name] = RegisterRef{Register: Register(reg), Region: Region(region)}
			}
		}
	}
}

// Valid is true for a defined register.
func (reg Register) Valid() bool {
	return reg < REGISTER_COUNT
}

// Allows is true if the register provides the region.
func (reg Register) Allows(region Region) bool {
	return reg.Valid() && region < REGION_COUNT && registerTable[reg].regions&(1<<region) != 0
}

func (reg Register) String() string {
	if !reg.Valid() {
		return "reg?"
	}
	names := registerTable[reg].names
	for n := len(names) - 1; n >= 0; n-- {
		if len(names[n]) != 0 {
			return names[n]
		}
	}
	return "reg?"
}

// RegisterRef is a register seen through one of its regions.
type RegisterRef struct {
	Register Register
	Region   Region
}

// ParseRegister looks up a register view by name, such as "eax" or "r9".
func ParseRegister(name string) (ref RegisterRef, ok bool) {
	ref, ok = registerNames[strings.ToLower(name)]
	return
}

// Size of the register view.
func (ref RegisterRef) Size() Size {
	return ref.Region.Size()
}

// Valid is true if the register allows the region.
func (ref RegisterRef) Valid() bool {
	return ref.Register.Allows(ref.Region)
}

func (ref RegisterRef) String() string {
	if !ref.Valid() {
		return "reg?"
	}
	return registerTable[ref.Register].names[ref.Region]
}

// encode packs the reference into the 5-bit register, 3-bit region byte.
func (ref RegisterRef) encode() byte {
	return byte(ref.Register)<<3 | byte(ref.Region)
}

func decodeRegisterRef(data uint8) (ref RegisterRef, err error) {
	ref = RegisterRef{Register: Register(data >> 3), Region: Region(data & 0b111)}
	if !ref.Register.Valid() {
		err = ErrRegisterInvalid
		return
	}
	if !ref.Valid() {
		err = ErrRegion{Register: ref.Register, Region: ref.Region}
		return
	}
	return
}

// Registers is the register file.
type Registers struct {
	Value [REGISTER_COUNT]uint64
}

// Read the full 64 bits of a register.
func (regs *Registers) Read(reg Register) uint64 {
	return regs.Value[reg]
}

// Write the full 64 bits of a register.
func (regs *Registers) Write(reg Register, value uint64) {
	regs.Value[reg] = value
}

// ReadRegion reads a register through one of its regions.
func (regs *Registers) ReadRegion(reg Register, region Region) (value uint64, err error) {
	if !reg.Allows(region) {
		err = ErrRegion{Register: reg, Region: region}
		return
	}

	full := regs.Value[reg]
	switch region {
	case REGION_LOW_BYTE:
		value = full & 0xff
	case REGION_HIGH_BYTE:
		value = (full >> 8) & 0xff
	case REGION_WORD:
		value = full & 0xffff
	case REGION_DWORD:
		value = full & 0xffff_ffff
	case REGION_QWORD:
		value = full
	}
	return
}

// WriteRegion merges value into the bits covered by the region, keeping the
// rest of the register.
func (regs *Registers) WriteRegion(reg Register, region Region, value uint64) (err error) {
	if !reg.Allows(region) {
		err = ErrRegion{Register: reg, Region: region}
		return
	}

	full := &regs.Value[reg]
	switch region {
	case REGION_LOW_BYTE:
		*full = (*full &^ 0xff) | (value & 0xff)
	case REGION_HIGH_BYTE:
		*full = (*full &^ 0xff00) | ((value & 0xff) << 8)
	case REGION_WORD:
		*full = (*full &^ 0xffff) | (value & 0xffff)
	case REGION_DWORD:
		*full = (*full &^ 0xffff_ffff) | (value & 0xffff_ffff)
	case REGION_QWORD:
		*full = value
	}
	return
}

// Flag reads a single bit of FLAGS.
func (regs *Registers) Flag(flag Flag) bool {
	return (regs.Value[REG_FLAGS]>>flag)&1 != 0
}

// SetFlag writes a single bit of FLAGS.
func (regs *Registers) SetFlag(flag Flag, value bool) {
	if value {
		regs.Value[REG_FLAGS] |= 1 << flag
	} else {
		regs.Value[REG_FLAGS] &^= 1 << flag
	}
}

// Reset zeroes every register.
func (regs *Registers) Reset() {
	clear(regs.Value[:])
}
