package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAssembler_Empty(t *testing.T) {
	assert := assert.New(t)

	asm := &Assembler{}
	prog, err := asm.Assemble("")
	assert.NoError(err)
	assert.Equal(0, len(prog.Statements))
	assert.Equal(0, len(prog.Binary()))
}

func TestAssemble(t *testing.T) {
	assert := assert.New(t)

	bin, err := Assemble("NOP; INT 0", 0x100, "", nil)
	assert.NoError(err)
	assert.Equal([]byte{0x00, 0x01, 0x00}, bin)

	_, err = Assemble("NOP; BOGUS", 0x100, "", nil)
	assert.ErrorIs(err, ErrInstructionInvalid)
}

func TestAssembler_Labels(t *testing.T) {
	assert := assert.New(t)

	asm := &Assembler{BaseAddress: 0x1000}
	prog, err := asm.Assemble(`
		JMP $end;
		NOP;
		$end: INT 0;`)
	assert.NoError(err)

	end, err := asm.Labels.Lookup("end", 0)
	assert.NoError(err)
	assert.Equal(uint64(0x100b), end)

	jump := prog.Statements[0].Instruction
	assert.Equal(OP_JMP, jump.Opcode)
	assert.Equal(uint64(0x100b), jump.Operands[0].Literal)
	assert.Equal("", jump.Operands[0].Label)
}

func TestAssembler_Redefine(t *testing.T) {
	assert := assert.New(t)

	asm := &Assembler{BaseAddress: 0x1000}
	prog, err := asm.Assemble(`
		$x: NOP;
		MOV rax, $x;
		$x: $y: NOP;
		MOV rbx, $x;
		MOV rcx, $y;`)
	assert.NoError(err)

	values := []uint64{}
	for _, inst := range prog.Instructions() {
		if inst.Opcode == OP_MOV {
			values = append(values, inst.Operands[1].Literal)
		}
	}
	assert.Equal([]uint64{0x1000, 0x100d, 0x100d}, values)
}

func TestAssembler_Undefine(t *testing.T) {
	assert := assert.New(t)

	asm := &Assembler{}
	_, err := asm.Assemble("$x: NOP; .undefine x; MOV rax, $x")
	assert.ErrorIs(err, ErrLabelScope{Label: "x", Position: 1})

	var syntax ErrSyntax
	if assert.ErrorAs(err, &syntax) {
		assert.Equal(2, syntax.Statement)
		assert.Equal("MOV rax, $x", syntax.Text)
	}

	// A reference after the undefine binds to the next definition.
	prog, err := asm.Assemble("$x: NOP; .undefine $x; MOV rax, $x; $x: NOP")
	assert.NoError(err)
	assert.Equal(uint64(13), prog.Statements[1].Instruction.Operands[1].Literal)

	_, err = asm.Assemble(".undefine x")
	assert.ErrorIs(err, ErrLabelMissing("x"))

	_, err = asm.Assemble("$x: NOP; .undefine x; .undefine x")
	assert.ErrorIs(err, ErrLabelUndefined)

	_, err = asm.Assemble("MOV rax, $nowhere")
	assert.ErrorIs(err, ErrLabelMissing("nowhere"))
}

func TestAssembler_Directives(t *testing.T) {
	assert := assert.New(t)

	asm := &Assembler{BaseAddress: 0x100}
	prog, err := asm.Assemble(`
		.data 0x01 ff 7f;
		.ascii "hi\n";
		.space 3;
		.align 8;
		.fill 2 0xaa;
		.org ~2;
		.org 0x118;
		.repeat 3 NOP;
		.align 1;
		.space 0;`)
	assert.NoError(err)

	expected := []byte{
		0x01, 0xff, 0x7f,
		'h', 'i', '\n', 0x00,
		0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0xaa, 0xaa,
		0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00,
	}
	assert.Equal(expected, prog.Binary())
	assert.Equal(uint64(len(expected)), prog.Length())

	var repeated []uint64
	for address := range prog.Instructions() {
		repeated = append(repeated, address)
	}
	assert.Equal([]uint64{0x118, 0x119, 0x11a}, repeated)
}

func TestAssembler_DirectiveErrors(t *testing.T) {
	assert := assert.New(t)

	table := []struct {
		code string
		err  error
	}{
		{".org 0x10", ErrOrgBackward},
		{".bogus 1", ErrDirectiveSyntax},
		{".space", ErrDirectiveSyntax},
		{".space 1 2", ErrDirectiveSyntax},
		{".align 0", ErrDirectiveSyntax},
		{".fill 1", ErrDirectiveSyntax},
		{".ascii hi", ErrDirectiveSyntax},
		{`.ascii "\q"`, ErrDirectiveSyntax},
		{".data 0x100", ErrParseNumber("0x100")},
		{".repeat x NOP", ErrParseNumber("x")},
		{".repeat 2 FOO", ErrInstructionInvalid},
		{".undefine", ErrDirectiveSyntax},
		{".equ X", ErrEquateSyntax},
		{".equ 1X 2", ErrEquateSyntax},
		{".equ X 1; .equ X 2", ErrEquateDuplicate},
		{".space -1", ErrDirectiveRange},
		{".space 0x80000000", ErrDirectiveRange},
		{".fill -1 0", ErrDirectiveRange},
		{".org 0xffffffffffffffff", ErrDirectiveRange},
		{".org ~0x80000000", ErrDirectiveRange},
		{".align 0x8000000000000000; NOP; .align 0x8000000000000000", ErrDirectiveRange},
		{".repeat 0xffffffffffff NOP", ErrDirectiveRange},
	}

	for _, entry := range table {
		asm := &Assembler{BaseAddress: 0x100}
		_, err := asm.Assemble(entry.code)
		assert.ErrorIs(err, entry.err, entry.code)
	}
}

func TestAssembler_Expression(t *testing.T) {
	assert := assert.New(t)

	asm := &Assembler{BaseAddress: 0x1000}
	asm.Predefine("LIMIT", "0x10")
	asm.Predefine("NAME", "rax")

	prog, err := asm.Assemble(`
		.equ COUNT 4;
		MOV rax, $(COUNT * 2 + 1);
		MOV rbx, $(ADDRESS - BASE_ADDRESS);
		MOV rcx, qword $(LIMIT);
		MOV rdx, $(-1);
		.space $(COUNT);
		.ascii "$(1)";`)
	assert.NoError(err)

	var values []uint64
	for _, inst := range prog.Instructions() {
		values = append(values, inst.Operands[1].Literal)
	}
	assert.Equal([]uint64{9, 12, 0x10, ^uint64(0)}, values)

	last := prog.Statements[len(prog.Statements)-1]
	assert.Equal([]byte{'$', '(', '1', ')', 0}, last.Data)
	assert.Equal("4", asm.Equate["COUNT"])
	assert.Equal("0x10", asm.Equate["LIMIT"])

	table := []string{
		`MOV rax, $(1 +)`,
		`MOV rax, $("text")`,
		`MOV rax, $(UNKNOWN)`,
		`MOV rax, $(NAME)`,
		`MOV rax, $((1)`,
	}
	for _, code := range table {
		_, err = asm.Assemble(code)
		var exprErr ErrParseExpression
		assert.ErrorAs(err, &exprErr, code)
	}
}

func TestAssembler_Comments(t *testing.T) {
	assert := assert.New(t)

	prog, err := (&Assembler{}).Assemble(`
		// leading comment; NOP
		NOP; /* block ; INT 0 */ INT 0; // trailing
		.ascii "a;b  //c";`)
	assert.NoError(err)

	var data []byte
	data = append(data, 0x00, 0x01, 0x00)
	data = append(data, []byte("a;b  //c")...)
	data = append(data, 0x00)
	assert.Equal(data, prog.Binary())
}

func TestAssembler_QuotedDirective(t *testing.T) {
	assert := assert.New(t)

	prog, err := (&Assembler{}).Assemble(`.ascii "a@b;c"; @ignored; .ascii "@include <x>;";`)
	assert.NoError(err)

	var data []byte
	data = append(data, []byte("a@b;c")...)
	data = append(data, 0x00)
	data = append(data, []byte("@include <x>;")...)
	data = append(data, 0x00)
	assert.Equal(data, prog.Binary())
}
