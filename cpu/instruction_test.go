package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// sampleInstruction builds an instruction with operands that fit its form.
func sampleInstruction(op Opcode) (inst Instruction) {
	inst.Opcode = op
	switch op.Form() {
	case FORM_BYTE:
		inst.Raw = 0x3
	case FORM_WORD:
		inst.Raw = 0x10
	case FORM_ONE:
		inst.Operands = []Value{Immediate(SIZE_QWORD, 0x1234)}
	case FORM_TWO:
		inst.Operands = []Value{
			RegisterValue(refRAX),
			memoryValue(SIZE_QWORD, MODE_DISPLACEMENT, 8, refRBX, RegisterRef{}, 0),
		}
	case FORM_LEA:
		inst.Operands = []Value{
			RegisterValue(refRAX),
			memoryValue(SIZE_QWORD, MODE_INDEXED_SCALED, 0, refRBX, refRCX, 4),
		}
	case FORM_THREE:
		inst.Operands = []Value{
			Immediate(SIZE_BYTE, 1),
			Immediate(SIZE_QWORD, 0),
			RegisterValue(refEAX),
		}
	}
	return
}

func TestInstruction_RoundTrip(t *testing.T) {
	assert := assert.New(t)

	ops := Opcodes()
	assert.Equal(61, len(ops))

	for _, op := range ops {
		name := op.String()
		inst := sampleInstruction(op)

		data := inst.Encode(nil)
		assert.Equal(inst.Length(), len(data), name)

		decoded, length, err := DecodeBytes(data)
		assert.NoError(err, name)
		assert.Equal(len(data), length, name)
		assert.Equal(inst, decoded, name)

		parsed, err := ParseInstruction(inst.String())
		assert.NoError(err, inst.String())
		assert.Equal(inst, parsed, inst.String())
	}
}

func TestInstruction_Parse(t *testing.T) {
	assert := assert.New(t)

	table := []struct {
		text string
		inst Instruction
	}{
		{"nop", Instruction{Opcode: OP_NOP}},
		{"INT $0", Instruction{Opcode: OP_INT}},
		{"int 0x1ff", Instruction{Opcode: OP_INT, Raw: 0xff}},
		{"RET", Instruction{Opcode: OP_RET}},
		{"ret 16", Instruction{Opcode: OP_RET, Raw: 16}},
		{"MOV eax, $5", Instruction{Opcode: OP_MOV, Operands: []Value{RegisterValue(refEAX), Immediate(SIZE_QWORD, 5)}}},
		{"jmp $end", Instruction{Opcode: OP_JMP, Operands: []Value{{Type: VALUE_IMMEDIATE, Size: SIZE_QWORD, Label: "end"}}}},
	}

	for _, entry := range table {
		inst, err := ParseInstruction(entry.text)
		assert.NoError(err, entry.text)
		assert.Equal(entry.inst, inst, entry.text)
	}
}

func TestInstruction_ParseInvalid(t *testing.T) {
	assert := assert.New(t)

	table := []struct {
		text string
		err  error
	}{
		{"FOO rax", ErrInstructionInvalid},
		{"NOP rax", ErrOpcodeExtraArgs},
		{"INT", ErrOpcodeValueMissing},
		{"MOV rax", ErrOpcodeValueMissing},
		{"INC rax, rbx", ErrOpcodeExtraArgs},
		{"OUT $1, $2", ErrOpcodeValueMissing},
		{"MOV rax, bogus", ErrParseValue("bogus")},
		{"INT x", ErrParseNumber("x")},
	}

	for _, entry := range table {
		_, err := ParseInstruction(entry.text)
		assert.ErrorIs(err, entry.err, entry.text)
	}
}

func TestInstruction_Decode(t *testing.T) {
	assert := assert.New(t)

	_, length, err := DecodeBytes([]byte{0xff})
	assert.ErrorIs(err, ErrOpcodeUnknown(0xff))
	assert.Equal(1, length)

	_, _, err = DecodeBytes([]byte{byte(OP_MOV), 0x03})
	assert.ErrorIs(err, ErrTruncated)

	inst := sampleInstruction(OP_ADD)
	data := inst.Encode(nil)
	_, _, err = DecodeBytes(data[:len(data)-1])
	assert.ErrorIs(err, ErrTruncated)
}

func TestInstruction_Labels(t *testing.T) {
	assert := assert.New(t)

	inst, err := ParseInstruction("MOV qword [rbx + $table], $value")
	assert.NoError(err)
	assert.Equal([]string{"table", "value"}, inst.Labels())

	resolved, err := inst.Resolved(func(label string) (uint64, error) {
		return map[string]uint64{"table": 0x100, "value": 0x7}[label], nil
	})
	assert.NoError(err)
	assert.Nil(resolved.Labels())
	assert.Equal(uint64(0x100), resolved.Operands[0].Literal)
	assert.Equal(uint64(0x7), resolved.Operands[1].Literal)
	assert.Equal([]string{"table", "value"}, inst.Labels())
}

func TestDisassemble(t *testing.T) {
	assert := assert.New(t)

	var data []byte
	nop := Instruction{Opcode: OP_NOP}
	data = nop.Encode(data)
	data = append(data, 0xff)
	ret := Instruction{Opcode: OP_RET, Raw: 8}
	data = ret.Encode(data)

	lines := Disassemble(data, 0x1000)
	if !assert.Equal(3, len(lines)) {
		return
	}

	assert.Equal("00001000: NOP", lines[0].String())
	assert.Equal(uint64(0x1001), lines[1].Address)
	assert.ErrorIs(lines[1].Err, ErrOpcodeUnknown(0xff))
	assert.Equal("00001002: RET 0x8", lines[2].String())
}
