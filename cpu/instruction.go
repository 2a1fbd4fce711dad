package cpu

import (
	"fmt"
	"strings"
)

// Fetcher supplies the bytes of an instruction stream in order.
type Fetcher interface {
	FetchByte() uint8
	FetchWord() uint16
	FetchDword() uint32
	FetchQword() uint64
}

// Instruction is an opcode with its operands.
//
// Raw holds the INT code or the RET byte count.
type Instruction struct {
	Opcode   Opcode
	Operands []Value
	Raw      uint16
}

// Length of the encoded instruction.
func (inst *Instruction) Length() (length int) {
	length = 1
	switch inst.Opcode.Form() {
	case FORM_BYTE:
		length += 1
	case FORM_WORD:
		length += 2
	case FORM_LEA:
		length += inst.Operands[0].Length() + inst.Operands[1].memoryLength()
	default:
		for n := range inst.Operands {
			length += inst.Operands[n].Length()
		}
	}
	return
}

// Encode appends the binary form. Labels must already be resolved.
func (inst *Instruction) Encode(buf []byte) []byte {
	buf = append(buf, byte(inst.Opcode))
	switch inst.Opcode.Form() {
	case FORM_BYTE:
		buf = append(buf, byte(inst.Raw))
	case FORM_WORD:
		buf = appendLE(buf, uint64(inst.Raw), 2)
	case FORM_LEA:
		buf = inst.Operands[0].Encode(buf)
		buf = inst.Operands[1].encodeMemory(buf)
	default:
		for n := range inst.Operands {
			buf = inst.Operands[n].Encode(buf)
		}
	}
	return buf
}

// Resolved returns a copy with every operand label replaced by its value.
// The receiver is not changed.
func (inst Instruction) Resolved(lookup LabelLookup) (resolved Instruction, err error) {
	resolved = inst
	if len(inst.Operands) == 0 {
		return
	}

	resolved.Operands = make([]Value, len(inst.Operands))
	for n, operand := range inst.Operands {
		resolved.Operands[n], err = operand.Resolved(lookup)
		if err != nil {
			return
		}
	}
	return
}

// Labels referenced by the operands.
func (inst *Instruction) Labels() (labels []string) {
	for _, operand := range inst.Operands {
		if len(operand.Label) != 0 {
			labels = append(labels, operand.Label)
		}
	}
	return
}

func (inst Instruction) String() string {
	name := inst.Opcode.String()
	switch inst.Opcode.Form() {
	case FORM_NONE:
		return name
	case FORM_BYTE, FORM_WORD:
		return fmt.Sprintf("%v 0x%x", name, inst.Raw)
	case FORM_LEA:
		return name + " " + inst.Operands[0].String() + ", " + inst.Operands[1].memoryString()
	}

	args := make([]string, len(inst.Operands))
	for n, operand := range inst.Operands {
		args[n] = operand.String()
	}
	return name + " " + strings.Join(args, ", ")
}

// DecodeInstruction loads one instruction, starting with the opcode byte.
func DecodeInstruction(fetch Fetcher) (inst Instruction, err error) {
	inst.Opcode = Opcode(fetch.FetchByte())
	def, err := inst.Opcode.def()
	if err != nil {
		return
	}

	switch def.form {
	case FORM_NONE:
	case FORM_BYTE:
		inst.Raw = uint16(fetch.FetchByte())
	case FORM_WORD:
		inst.Raw = fetch.FetchWord()
	case FORM_LEA:
		var dest, source Value
		dest, err = DecodeValue(fetch)
		if err != nil {
			return
		}
		source, err = decodeMemory(fetch, SIZE_QWORD)
		if err != nil {
			return
		}
		inst.Operands = []Value{dest, source}
	default:
		inst.Operands = make([]Value, def.form.Operands())
		for n := range inst.Operands {
			inst.Operands[n], err = DecodeValue(fetch)
			if err != nil {
				return
			}
		}
	}

	return
}

// ParseInstruction reads "MNEMONIC [arg[, arg...]]". The mnemonic is not
// case sensitive.
func ParseInstruction(text string) (inst Instruction, err error) {
	text = strings.TrimSpace(text)
	name, args, _ := strings.Cut(text, " ")
	args = strings.TrimSpace(args)

	op, ok := ParseOpcode(name)
	if !ok {
		err = ErrInstructionInvalid
		return
	}
	inst.Opcode = op

	form := op.Form()
	switch form {
	case FORM_NONE:
		if len(args) != 0 {
			err = ErrOpcodeExtraArgs
		}
		return
	case FORM_BYTE, FORM_WORD:
		if len(args) == 0 {
			if form == FORM_BYTE {
				err = ErrOpcodeValueMissing
			}
			return
		}
		var value uint64
		value, err = ParseNumber(strings.TrimPrefix(args, "$"))
		if err != nil {
			return
		}
		if form == FORM_BYTE {
			value &= 0xff
		}
		inst.Raw = uint16(value)
		return
	}

	var parts []string
	if len(args) != 0 {
		parts = strings.Split(args, ",")
	}
	switch want := form.Operands(); {
	case len(parts) < want:
		err = ErrOpcodeValueMissing
		return
	case len(parts) > want:
		err = ErrOpcodeExtraArgs
		return
	}

	inst.Operands = make([]Value, len(parts))
	for n, part := range parts {
		if form == FORM_LEA && n == 1 {
			inst.Operands[n], err = ParseMemory(part, SIZE_QWORD)
		} else {
			inst.Operands[n], err = ParseValue(part)
		}
		if err != nil {
			return
		}
	}

	return
}

// sliceFetcher reads an instruction out of a byte slice.
type sliceFetcher struct {
	data  []byte
	pos   int
	short bool
}

func (sf *sliceFetcher) fetch(width int) (value uint64) {
	for n := range width {
		if sf.pos >= len(sf.data) {
			sf.short = true
		} else {
			value |= uint64(sf.data[sf.pos]) << (8 * n)
		}
		sf.pos++
	}
	return
}

func (sf *sliceFetcher) FetchByte() uint8   { return uint8(sf.fetch(1)) }
func (sf *sliceFetcher) FetchWord() uint16  { return uint16(sf.fetch(2)) }
func (sf *sliceFetcher) FetchDword() uint32 { return uint32(sf.fetch(4)) }
func (sf *sliceFetcher) FetchQword() uint64 { return sf.fetch(8) }

// DecodeBytes decodes the instruction at the start of data, returning its
// encoded length.
func DecodeBytes(data []byte) (inst Instruction, length int, err error) {
	fetch := &sliceFetcher{data: data}
	inst, err = DecodeInstruction(fetch)
	length = fetch.pos
	if err == nil && fetch.short {
		err = ErrTruncated
	}
	return
}

// Disassembly is one decoded line of a byte image.
type Disassembly struct {
	Address     uint64
	Data        []byte
	Instruction Instruction
	Err         error // Set for bytes that do not decode.
}

func (dis Disassembly) String() string {
	if dis.Err != nil {
		return fmt.Sprintf("%08x: .data % x ; %v", dis.Address, dis.Data, dis.Err)
	}
	return fmt.Sprintf("%08x: %v", dis.Address, dis.Instruction)
}

// Disassemble decodes a byte image loaded at base. Undecodable bytes are
// reported one at a time, as the engine would skip them.
func Disassemble(data []byte, base uint64) (lines []Disassembly) {
	for offset := 0; offset < len(data); {
		line := Disassembly{Address: base + uint64(offset)}
		inst, length, err := DecodeBytes(data[offset:])
		if err != nil {
			length = 1
			line.Err = err
		} else {
			line.Instruction = inst
		}
		line.Data = data[offset : offset+length]
		lines = append(lines, line)
		offset += length
	}
	return
}
