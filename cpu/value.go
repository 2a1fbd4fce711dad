package cpu

import (
	"fmt"
	"log"
	"strings"
)

// ValueType is the operand kind stored in bits 7:6 of the tag byte.
type ValueType byte

const (
	VALUE_REGISTER  = ValueType(0)
	VALUE_MEMORY    = ValueType(1)
	VALUE_IMMEDIATE = ValueType(2)
)

func (vt ValueType) String() string {
	switch vt {
	case VALUE_REGISTER:
		return "register"
	case VALUE_MEMORY:
		return "memory"
	case VALUE_IMMEDIATE:
		return "immediate"
	}
	return "type?"
}

// Mode is a memory addressing mode.
type Mode byte

const (
	MODE_DIRECT                      = Mode(0) // [disp]
	MODE_INDIRECT                    = Mode(1) // [base]
	MODE_DISPLACEMENT                = Mode(2) // [base + disp]
	MODE_INDEXED                     = Mode(3) // [base + index]
	MODE_INDEXED_DISPLACEMENT        = Mode(4) // [base + index + disp]
	MODE_SCALED                      = Mode(5) // [base * scale]
	MODE_SCALED_DISPLACEMENT         = Mode(6) // [base * scale + disp]
	MODE_INDEXED_SCALED              = Mode(7) // [base + index * scale]
	MODE_INDEXED_SCALED_DISPLACEMENT = Mode(8) // [base + index * scale + disp]

	MODE_COUNT = 9
)

var modeNames = [MODE_COUNT]string{
	"direct",
	"indirect",
	"displacement",
	"indexed",
	"indexed displacement",
	"scaled",
	"scaled displacement",
	"indexed scaled",
	"indexed scaled displacement",
}

func (mode Mode) String() string {
	if mode < MODE_COUNT {
		return modeNames[mode]
	}
	return "mode?"
}

func (mode Mode) hasDisplacement() bool {
	switch mode {
	case MODE_DIRECT, MODE_DISPLACEMENT, MODE_INDEXED_DISPLACEMENT,
		MODE_SCALED_DISPLACEMENT, MODE_INDEXED_SCALED_DISPLACEMENT:
		return true
	}
	return false
}

func (mode Mode) hasBase() bool {
	return mode != MODE_DIRECT
}

func (mode Mode) hasIndex() bool {
	switch mode {
	case MODE_INDEXED, MODE_INDEXED_DISPLACEMENT,
		MODE_INDEXED_SCALED, MODE_INDEXED_SCALED_DISPLACEMENT:
		return true
	}
	return false
}

func (mode Mode) hasScale() bool {
	return mode >= MODE_SCALED
}

// payload is the encoded size after the mode byte. Addresses and
// displacements are always 8 bytes and scales 2 bytes, whatever the data
// width of the operand.
func (mode Mode) payload() (length int) {
	if mode.hasDisplacement() {
		length += 8
	}
	if mode.hasBase() {
		length++
	}
	if mode.hasIndex() {
		length++
	}
	if mode.hasScale() {
		length += 2
	}
	return
}

// Segment selects the segment register of a memory operand.
type Segment byte

const (
	SEG_CS = Segment(0)
	SEG_DS = Segment(1)
	SEG_ES = Segment(2)
	SEG_FS = Segment(3)
	SEG_GS = Segment(4)
	SEG_SS = Segment(5)

	SEGMENT_COUNT = 6
)

var segmentRegister = [SEGMENT_COUNT]Register{REG_CS, REG_DS, REG_ES, REG_FS, REG_GS, REG_SS}

// Register holding the segment base.
func (seg Segment) Register() Register {
	return segmentRegister[seg]
}

func (seg Segment) String() string {
	if seg < SEGMENT_COUNT {
		return seg.Register().String()
	}
	return "seg?"
}

func parseSegment(name string) (seg Segment, ok bool) {
	for n, reg := range segmentRegister {
		if reg.String() == name {
			return Segment(n), true
		}
	}
	return
}

// Value is an instruction operand.
//
// Register operands use Base. Immediates use Literal. Memory operands use
// Mode, Segment and whichever of Literal (address or displacement), Base,
// Index and Scale the mode calls for.
//
// Until resolved, Label names the symbol that supplies Literal, subtracted
// when LabelNegated is set.
type Value struct {
	Type ValueType
	Size Size

	Literal      uint64
	Label        string
	LabelNegated bool

	Mode    Mode
	Segment Segment
	Base    RegisterRef
	Index   RegisterRef
	Scale   int16
}

// Immediate builds an immediate operand.
func Immediate(size Size, literal uint64) Value {
	return Value{Type: VALUE_IMMEDIATE, Size: size, Literal: literal}
}

// RegisterValue builds a register operand.
func RegisterValue(ref RegisterRef) Value {
	return Value{Type: VALUE_REGISTER, Size: ref.Size(), Base: ref}
}

// Length of the encoded operand, including the tag byte.
func (val *Value) Length() int {
	switch val.Type {
	case VALUE_REGISTER:
		return 2
	case VALUE_IMMEDIATE:
		return 1 + val.Size.Bytes()
	default:
		return 1 + val.memoryLength()
	}
}

// memoryLength counts the mode byte and the mode payload.
func (val *Value) memoryLength() int {
	return 1 + val.Mode.payload()
}

// Encode appends the tagged binary form.
func (val *Value) Encode(buf []byte) []byte {
	buf = append(buf, byte(val.Type)<<6|byte(val.Size))
	switch val.Type {
	case VALUE_REGISTER:
		buf = append(buf, val.Base.encode())
	case VALUE_IMMEDIATE:
		buf = appendLE(buf, val.Literal, val.Size.Bytes())
	default:
		buf = val.encodeMemory(buf)
	}
	return buf
}

// encodeMemory appends the mode byte and payload, without a tag.
func (val *Value) encodeMemory(buf []byte) []byte {
	mode := val.Mode
	buf = append(buf, byte(mode)<<3|byte(val.Segment))
	if mode.hasDisplacement() {
		buf = appendLE(buf, val.Literal, 8)
	}
	if mode.hasBase() {
		buf = append(buf, val.Base.encode())
	}
	if mode.hasIndex() {
		buf = append(buf, val.Index.encode())
	}
	if mode.hasScale() {
		buf = appendLE(buf, uint64(uint16(val.Scale)), 2)
	}
	return buf
}

func appendLE(buf []byte, value uint64, width int) []byte {
	for n := range width {
		buf = append(buf, byte(value>>(8*n)))
	}
	return buf
}

// DecodeValue loads a tagged operand from the instruction stream.
func DecodeValue(fetch Fetcher) (val Value, err error) {
	tag := fetch.FetchByte()
	val.Size = Size(tag & 0b11)
	val.Type = ValueType(tag >> 6)

	switch val.Type {
	case VALUE_REGISTER:
		val.Base, err = decodeRegisterRef(fetch.FetchByte())
		if err != nil {
			return
		}
		if val.Base.Size() != val.Size {
			err = ErrRegionSize
			return
		}
	case VALUE_IMMEDIATE:
		switch val.Size {
		case SIZE_BYTE:
			val.Literal = uint64(fetch.FetchByte())
		case SIZE_WORD:
			val.Literal = uint64(fetch.FetchWord())
		case SIZE_DWORD:
			val.Literal = uint64(fetch.FetchDword())
		case SIZE_QWORD:
			val.Literal = fetch.FetchQword()
		}
	case VALUE_MEMORY:
		val, err = decodeMemory(fetch, val.Size)
	default:
		err = ErrTypeInvalid
	}

	return
}

// decodeMemory loads an untagged memory operand.
func decodeMemory(fetch Fetcher, size Size) (val Value, err error) {
	data := fetch.FetchByte()
	val = Value{
		Type:    VALUE_MEMORY,
		Size:    size,
		Mode:    Mode(data >> 3),
		Segment: Segment(data & 0b111),
	}
	if val.Mode >= MODE_COUNT {
		err = ErrModeInvalid
		return
	}
	if val.Segment >= SEGMENT_COUNT {
		err = ErrSegmentInvalid
		return
	}

	if val.Mode.hasDisplacement() {
		val.Literal = fetch.FetchQword()
	}
	if val.Mode.hasBase() {
		val.Base, err = decodeRegisterRef(fetch.FetchByte())
		if err != nil {
			return
		}
	}
	if val.Mode.hasIndex() {
		val.Index, err = decodeRegisterRef(fetch.FetchByte())
		if err != nil {
			return
		}
	}
	if val.Mode.hasScale() {
		val.Scale = int16(fetch.FetchWord())
	}

	return
}

// LabelLookup finds the value of a label.
type LabelLookup func(label string) (value uint64, err error)

// Resolved returns a copy with the label replaced by its value.
func (val Value) Resolved(lookup LabelLookup) (resolved Value, err error) {
	resolved = val
	if len(val.Label) == 0 {
		return
	}

	value, err := lookup(val.Label)
	if err != nil {
		return
	}

	if val.LabelNegated {
		value = -value
	}
	if val.Type == VALUE_IMMEDIATE {
		value &= val.Size.Mask()
	}
	resolved.Literal = value
	resolved.Label = ""
	resolved.LabelNegated = false
	return
}

// Address computes the effective address of a memory operand, without the
// segment base.
func (val *Value) Address(ctx *Context) (address uint64, err error) {
	if val.Type != VALUE_MEMORY {
		err = ErrTypeInvalid
		return
	}

	regs := &ctx.Cpu.Registers
	var base, index uint64
	if val.Mode.hasBase() {
		base, err = regs.ReadRegion(val.Base.Register, val.Base.Region)
		if err != nil {
			return
		}
	}
	if val.Mode.hasIndex() {
		index, err = regs.ReadRegion(val.Index.Register, val.Index.Region)
		if err != nil {
			return
		}
	}
	scale := uint64(int64(val.Scale))

	switch val.Mode {
	case MODE_DIRECT:
		address = val.Literal
	case MODE_INDIRECT:
		address = base
	case MODE_DISPLACEMENT:
		address = base + val.Literal
	case MODE_INDEXED:
		address = base + index
	case MODE_INDEXED_DISPLACEMENT:
		address = base + index + val.Literal
	case MODE_SCALED:
		address = base * scale
	case MODE_SCALED_DISPLACEMENT:
		address = base*scale + val.Literal
	case MODE_INDEXED_SCALED:
		address = base + index*scale
	case MODE_INDEXED_SCALED_DISPLACEMENT:
		address = base + index*scale + val.Literal
	default:
		err = ErrModeInvalid
	}
	return
}

// segmentBase is the WORD view of the operand's segment register.
func (val *Value) segmentBase(ctx *Context) (uint64, error) {
	return ctx.Cpu.Registers.ReadRegion(val.Segment.Register(), REGION_WORD)
}

// Read the operand.
func (val *Value) Read(ctx *Context) (value uint64, err error) {
	switch val.Type {
	case VALUE_IMMEDIATE:
		value = val.Literal & val.Size.Mask()
	case VALUE_REGISTER:
		value, err = ctx.Cpu.Registers.ReadRegion(val.Base.Register, val.Base.Region)
	case VALUE_MEMORY:
		var address, segment uint64
		address, err = val.Address(ctx)
		if err != nil {
			return
		}
		segment, err = val.segmentBase(ctx)
		if err != nil {
			return
		}
		value = ctx.Cpu.Memory.ReadSized(address, segment, val.Size)
	default:
		err = ErrTypeInvalid
	}

	if err == nil && ctx.Cpu.Verbose {
		log.Printf("read %v = 0x%x", val, value)
	}
	return
}

// Write the operand. Immediates cannot be written.
func (val *Value) Write(ctx *Context, value uint64) (err error) {
	switch val.Type {
	case VALUE_IMMEDIATE:
		err = ErrImmediateWrite
	case VALUE_REGISTER:
		err = ctx.Cpu.Registers.WriteRegion(val.Base.Register, val.Base.Region, value)
	case VALUE_MEMORY:
		var address, segment uint64
		address, err = val.Address(ctx)
		if err != nil {
			return
		}
		segment, err = val.segmentBase(ctx)
		if err != nil {
			return
		}
		ctx.Cpu.Memory.WriteSized(address, segment, val.Size, value)
	default:
		err = ErrTypeInvalid
	}

	if err == nil && ctx.Cpu.Verbose {
		log.Printf("write %v = 0x%x", val, value&val.Size.Mask())
	}
	return
}

func (val Value) String() string {
	switch val.Type {
	case VALUE_REGISTER:
		return val.Base.String()
	case VALUE_IMMEDIATE:
		return val.Size.String() + " " + val.literalString()
	case VALUE_MEMORY:
		return val.Size.String() + " " + val.memoryString()
	}
	return "value?"
}

func (val *Value) literalString() string {
	if len(val.Label) != 0 {
		if val.LabelNegated {
			return "-$" + val.Label
		}
		return "$" + val.Label
	}
	return fmt.Sprintf("0x%x", val.Literal)
}

// displacementString renders " + disp" or " - $label".
func (val *Value) displacementString() string {
	if len(val.Label) != 0 && val.LabelNegated {
		return " - $" + val.Label
	}
	return " + " + val.literalString()
}

func (val *Value) scaleString() string {
	scale := int64(val.Scale)
	if scale < 0 {
		scale = -scale
	}
	return fmt.Sprintf(" * 0x%x", scale)
}

// memoryString renders the bracketed form, such as "ds:[rbx + rcx * 0x8]".
func (val *Value) memoryString() string {
	var text strings.Builder
	text.WriteString(val.Segment.String())
	text.WriteString(":[")

	negative := val.Scale < 0
	switch val.Mode {
	case MODE_DIRECT:
		text.WriteString(val.literalString())
	case MODE_INDIRECT:
		text.WriteString(val.Base.String())
	case MODE_DISPLACEMENT:
		text.WriteString(val.Base.String())
		text.WriteString(val.displacementString())
	case MODE_INDEXED, MODE_INDEXED_DISPLACEMENT:
		text.WriteString(val.Base.String() + " + " + val.Index.String())
		if val.Mode == MODE_INDEXED_DISPLACEMENT {
			text.WriteString(val.displacementString())
		}
	case MODE_SCALED, MODE_SCALED_DISPLACEMENT:
		if negative {
			text.WriteString("-")
		}
		text.WriteString(val.Base.String() + val.scaleString())
		if val.Mode == MODE_SCALED_DISPLACEMENT {
			text.WriteString(val.displacementString())
		}
	case MODE_INDEXED_SCALED, MODE_INDEXED_SCALED_DISPLACEMENT:
		op := " + "
		if negative {
			op = " - "
		}
		text.WriteString(val.Base.String() + op + val.Index.String() + val.scaleString())
		if val.Mode == MODE_INDEXED_SCALED_DISPLACEMENT {
			text.WriteString(val.displacementString())
		}
	default:
		text.WriteString("?")
	}

	text.WriteString("]")
	return text.String()
}
