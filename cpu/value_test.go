package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var (
	refRAX = RegisterRef{REG_RAX, REGION_QWORD}
	refEAX = RegisterRef{REG_RAX, REGION_DWORD}
	refRBX = RegisterRef{REG_RBX, REGION_QWORD}
	refRCX = RegisterRef{REG_RCX, REGION_QWORD}
)

func memoryValue(size Size, mode Mode, literal uint64, base, index RegisterRef, scale int16) Value {
	return Value{
		Type:    VALUE_MEMORY,
		Size:    size,
		Mode:    mode,
		Segment: SEG_DS,
		Literal: literal,
		Base:    base,
		Index:   index,
		Scale:   scale,
	}
}

func TestValue_Encode(t *testing.T) {
	assert := assert.New(t)

	segmented := memoryValue(SIZE_WORD, MODE_INDEXED_SCALED_DISPLACEMENT, 0x1234, refRBX, refRCX, -8)
	segmented.Segment = SEG_ES

	table := []struct {
		name  string
		value Value
	}{
		{"register", RegisterValue(refEAX)},
		{"register_high", RegisterValue(RegisterRef{REG_RDX, REGION_HIGH_BYTE})},
		{"imm_byte", Immediate(SIZE_BYTE, 0x12)},
		{"imm_word", Immediate(SIZE_WORD, 0x1234)},
		{"imm_dword", Immediate(SIZE_DWORD, 0x12345678)},
		{"imm_qword", Immediate(SIZE_QWORD, 0x123456789abcdef0)},
		{"direct", memoryValue(SIZE_QWORD, MODE_DIRECT, 0x100, RegisterRef{}, RegisterRef{}, 0)},
		{"indirect", memoryValue(SIZE_BYTE, MODE_INDIRECT, 0, refRBX, RegisterRef{}, 0)},
		{"displacement", memoryValue(SIZE_DWORD, MODE_DISPLACEMENT, 0x10, refRBX, RegisterRef{}, 0)},
		{"indexed", memoryValue(SIZE_QWORD, MODE_INDEXED, 0, refRBX, refRCX, 0)},
		{"indexed_displacement", memoryValue(SIZE_QWORD, MODE_INDEXED_DISPLACEMENT, 0x20, refRBX, refRCX, 0)},
		{"scaled", memoryValue(SIZE_QWORD, MODE_SCALED, 0, refRBX, RegisterRef{}, 4)},
		{"scaled_displacement", memoryValue(SIZE_QWORD, MODE_SCALED_DISPLACEMENT, 0x30, refRBX, RegisterRef{}, -2)},
		{"indexed_scaled", memoryValue(SIZE_QWORD, MODE_INDEXED_SCALED, 0, refRBX, refRCX, 8)},
		{"indexed_scaled_displacement", segmented},
	}

	for _, entry := range table {
		data := entry.value.Encode(nil)
		assert.Equal(entry.value.Length(), len(data), entry.name)

		fetch := &sliceFetcher{data: data}
		decoded, err := DecodeValue(fetch)
		assert.NoError(err, entry.name)
		assert.False(fetch.short, entry.name)
		assert.Equal(len(data), fetch.pos, entry.name)
		assert.Equal(entry.value, decoded, entry.name)
	}
}

func TestValue_DecodeInvalid(t *testing.T) {
	assert := assert.New(t)

	table := []struct {
		name string
		data []byte
		err  error
	}{
		{"type", []byte{0xc3, 0}, ErrTypeInvalid},
		{"register", []byte{0x03, 0xf8}, ErrRegisterInvalid},
		{"region", []byte{0x00, byte(REG_R8)<<3 | byte(REGION_LOW_BYTE)}, ErrRegionInvalid},
		{"region_size", []byte{0x03, refEAX.encode()}, ErrRegionSize},
		{"mode", []byte{0x43, byte(MODE_COUNT) << 3}, ErrModeInvalid},
		{"segment", []byte{0x43, byte(MODE_INDIRECT)<<3 | 7, refRBX.encode()}, ErrSegmentInvalid},
	}

	for _, entry := range table {
		_, err := DecodeValue(&sliceFetcher{data: entry.data})
		assert.ErrorIs(err, entry.err, entry.name)
	}
}

func TestValue_Parse(t *testing.T) {
	assert := assert.New(t)

	labeled := memoryValue(SIZE_QWORD, MODE_INDEXED_DISPLACEMENT, 0, refRBX, refRCX, 0)
	labeled.Label = "table"

	negated := memoryValue(SIZE_QWORD, MODE_INDEXED_SCALED_DISPLACEMENT, 0, refRBX, refRCX, 8)
	negated.Label = "x"
	negated.LabelNegated = true

	extra := memoryValue(SIZE_DWORD, MODE_INDIRECT, 0, refRBX, RegisterRef{}, 0)
	extra.Segment = SEG_ES

	table := []struct {
		text  string
		value Value
	}{
		{"eax", RegisterValue(refEAX)},
		{"RAX", RegisterValue(refRAX)},
		{"$5", Immediate(SIZE_QWORD, 5)},
		{"$0x10", Immediate(SIZE_QWORD, 0x10)},
		{"$loop", Value{Type: VALUE_IMMEDIATE, Size: SIZE_QWORD, Label: "loop"}},
		{"byte 0xff", Immediate(SIZE_BYTE, 0xff)},
		{"word -1", Immediate(SIZE_WORD, 0xffff)},
		{"dword $0b1010", Immediate(SIZE_DWORD, 10)},
		{"qword 1_000", Immediate(SIZE_QWORD, 1000)},
		{"qword [0x100]", memoryValue(SIZE_QWORD, MODE_DIRECT, 0x100, RegisterRef{}, RegisterRef{}, 0)},
		{"dword es:[rbx]", extra},
		{"qword [rbx + 8]", memoryValue(SIZE_QWORD, MODE_DISPLACEMENT, 8, refRBX, RegisterRef{}, 0)},
		{"qword [rbx - 8]", memoryValue(SIZE_QWORD, MODE_DISPLACEMENT, 0xffff_ffff_ffff_fff8, refRBX, RegisterRef{}, 0)},
		{"qword [rbx + rcx]", memoryValue(SIZE_QWORD, MODE_INDEXED, 0, refRBX, refRCX, 0)},
		{"qword [rbx+rcx+$table]", labeled},
		{"qword [rbx * 4]", memoryValue(SIZE_QWORD, MODE_SCALED, 0, refRBX, RegisterRef{}, 4)},
		{"qword [-rbx * 4]", memoryValue(SIZE_QWORD, MODE_SCALED, 0, refRBX, RegisterRef{}, -4)},
		{"qword [rbx * 4 + 2]", memoryValue(SIZE_QWORD, MODE_SCALED_DISPLACEMENT, 2, refRBX, RegisterRef{}, 4)},
		{"qword [rbx + rcx * 8]", memoryValue(SIZE_QWORD, MODE_INDEXED_SCALED, 0, refRBX, refRCX, 8)},
		{"qword [rbx - rcx * 8]", memoryValue(SIZE_QWORD, MODE_INDEXED_SCALED, 0, refRBX, refRCX, -8)},
		{"qword [rbx + rcx * 8 - $x]", negated},
	}

	for _, entry := range table {
		value, err := ParseValue(entry.text)
		assert.NoError(err, entry.text)
		assert.Equal(entry.value, value, entry.text)

		// The printed form parses back to the same operand.
		again, err := ParseValue(value.String())
		assert.NoError(err, value.String())
		assert.Equal(value, again, value.String())
	}
}

func TestValue_ParseInvalid(t *testing.T) {
	assert := assert.New(t)

	table := []string{
		"",
		"foo",
		"5",
		"$",
		"$a-b",
		"qword",
		"qword rbx",
		"qword [rbx +]",
		"qword [rbx * 0x10000]",
		"qword xs:[rbx]",
		"qword [r8l]",
	}

	for _, text := range table {
		_, err := ParseValue(text)
		assert.Error(err, text)
	}
}

func TestValue_ReadWrite(t *testing.T) {
	assert := assert.New(t)

	cpu := NewCpu(0x1000)
	ctx := NewContext(cpu, 0, 0)
	regs := &cpu.Registers

	regs.Write(REG_RBX, 0x100)
	regs.Write(REG_RCX, 0x4)
	regs.Write(REG_DS, 0x10)

	// ds:[rbx + rcx * 8 + 0x20] = 0x100 + 0x20 + 0x20, plus ds * 16
	val := memoryValue(SIZE_DWORD, MODE_INDEXED_SCALED_DISPLACEMENT, 0x20, refRBX, refRCX, 8)

	address, err := val.Address(ctx)
	assert.NoError(err)
	assert.Equal(uint64(0x140), address)

	assert.NoError(val.Write(ctx, 0x1122334455))
	assert.Equal(uint64(0x22334455), cpu.Memory.ReadQword(0x240, 0))

	value, err := val.Read(ctx)
	assert.NoError(err)
	assert.Equal(uint64(0x22334455), value)

	negative := memoryValue(SIZE_BYTE, MODE_INDEXED_SCALED, 0, refRBX, refRCX, -8)
	address, err = negative.Address(ctx)
	assert.NoError(err)
	assert.Equal(uint64(0xe0), address)

	imm := Immediate(SIZE_BYTE, 0x1ff)
	value, err = imm.Read(ctx)
	assert.NoError(err)
	assert.Equal(uint64(0xff), value)
	assert.ErrorIs(imm.Write(ctx, 1), ErrImmediateWrite)

	reg := RegisterValue(RegisterRef{REG_RAX, REGION_HIGH_BYTE})
	assert.NoError(reg.Write(ctx, 0x12))
	assert.Equal(uint64(0x1200), regs.Read(REG_RAX))

	_, err = reg.Address(ctx)
	assert.ErrorIs(err, ErrTypeInvalid)
}

func TestValue_Resolved(t *testing.T) {
	assert := assert.New(t)

	lookup := func(label string) (uint64, error) {
		if label == "here" {
			return 0x10, nil
		}
		return 0, ErrLabelMissing(label)
	}

	val := Value{Type: VALUE_IMMEDIATE, Size: SIZE_BYTE, Label: "here", LabelNegated: true}
	resolved, err := val.Resolved(lookup)
	assert.NoError(err)
	assert.Equal(Immediate(SIZE_BYTE, 0xf0), resolved)
	assert.Equal("here", val.Label)

	val.Label = "there"
	_, err = val.Resolved(lookup)
	assert.ErrorIs(err, ErrLabelMissing("there"))
}
