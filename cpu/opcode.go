package cpu

import (
	"strings"
)

// Opcode is the first byte of an encoded instruction.
type Opcode byte

const (
	OP_NOP = Opcode(0x00) // NOP
	OP_INT = Opcode(0x01) // INT code

	OP_MOV  = Opcode(0x02) // MOV dst, src
	OP_XCHG = Opcode(0x03) // XCHG a, b
	OP_LEA  = Opcode(0x04) // LEA dst, [mem]

	OP_INC  = Opcode(0x10) // INC dst
	OP_DEC  = Opcode(0x11) // DEC dst
	OP_ADD  = Opcode(0x12) // ADD dst, src
	OP_ADC  = Opcode(0x13) // ADC dst, src
	OP_SUB  = Opcode(0x14) // SUB dst, src
	OP_SBB  = Opcode(0x15) // SBB dst, src
	OP_NEG  = Opcode(0x16) // NEG dst
	OP_MUL  = Opcode(0x18) // MUL dst, src
	OP_IMUL = Opcode(0x19) // IMUL dst, src
	OP_DIV  = Opcode(0x1A) // DIV dst, src
	OP_IDIV = Opcode(0x1B) // IDIV dst, src
	OP_MOD  = Opcode(0x1C) // MOD dst, src
	OP_IMOD = Opcode(0x1D) // IMOD dst, src

	OP_AND = Opcode(0x20) // AND dst, src
	OP_OR  = Opcode(0x21) // OR dst, src
	OP_XOR = Opcode(0x22) // XOR dst, src
	OP_NOT = Opcode(0x23) // NOT dst

	OP_SHL = Opcode(0x28) // SHL dst, count
	OP_SHR = Opcode(0x29) // SHR dst, count
	OP_SAL = Opcode(0x2A) // SAL dst, count
	OP_SAR = Opcode(0x2B) // SAR dst, count
	OP_ROL = Opcode(0x2C) // ROL dst, count
	OP_ROR = Opcode(0x2D) // ROR dst, count
	OP_RCL = Opcode(0x2E) // RCL dst, count
	OP_RCR = Opcode(0x2F) // RCR dst, count

	OP_TEST = Opcode(0x50) // TEST a, b
	OP_CMP  = Opcode(0x51) // CMP a, b

	OP_JMP = Opcode(0x60) // JMP target
	OP_JC  = Opcode(0x64) // JC target
	OP_JNC = Opcode(0x65) // JNC target
	OP_JP  = Opcode(0x66) // JP target
	OP_JNP = Opcode(0x67) // JNP target
	OP_JZ  = Opcode(0x68) // JZ target
	OP_JNZ = Opcode(0x69) // JNZ target
	OP_JS  = Opcode(0x6A) // JS target
	OP_JNS = Opcode(0x6B) // JNS target
	OP_JO  = Opcode(0x6C) // JO target
	OP_JNO = Opcode(0x6D) // JNO target

	OP_JL  = Opcode(0x70) // JL target
	OP_JLE = Opcode(0x71) // JLE target
	OP_JG  = Opcode(0x72) // JG target
	OP_JGE = Opcode(0x73) // JGE target
	OP_JB  = Opcode(0x78) // JB target
	OP_JBE = Opcode(0x79) // JBE target
	OP_JA  = Opcode(0x7A) // JA target
	OP_JAE = Opcode(0x7B) // JAE target

	OP_CALL = Opcode(0x80) // CALL target
	OP_RET  = Opcode(0x81) // RET [bytes]

	OP_PUSH  = Opcode(0x90) // PUSH src
	OP_POP   = Opcode(0x91) // POP dst
	OP_PUSHF = Opcode(0x92) // PUSHF
	OP_POPF  = Opcode(0x93) // POPF
	OP_PUSHA = Opcode(0x94) // PUSHA
	OP_POPA  = Opcode(0x95) // POPA

	OP_IN  = Opcode(0xA0) // IN port, address, dst
	OP_OUT = Opcode(0xA1) // OUT port, address, src
)

// Form is the operand layout of an instruction.
type Form int

const (
	FORM_NONE  = Form(iota) // no operands
	FORM_BYTE               // one raw byte
	FORM_WORD               // one raw little-endian word
	FORM_ONE                // one tagged operand
	FORM_TWO                // two tagged operands
	FORM_LEA                // tagged operand, then an untagged qword memory operand
	FORM_THREE              // three tagged operands
)

// Operands used by the form.
func (form Form) Operands() int {
	switch form {
	case FORM_ONE:
		return 1
	case FORM_TWO, FORM_LEA:
		return 2
	case FORM_THREE:
		return 3
	}
	return 0
}

type opcodeExec func(ctx *Context, inst *Instruction) error

type opcodeDef struct {
	name string
	form Form
	exec opcodeExec
}

// opcodeTable is filled in by init, breaking the initialization cycle
// through the executors.
var opcodeTable [256]*opcodeDef

var opcodeNames = map[string]Opcode{}

func defineOpcode(op Opcode, name string, form Form, exec opcodeExec) {
	opcodeTable[op] = &opcodeDef{name: name, form: form, exec: exec}
	opcodeNames[name] = op
}

func init() {
	defineOpcode(OP_NOP, "NOP", FORM_NONE, execNop)
	defineOpcode(OP_INT, "INT", FORM_BYTE, execInt)

	defineOpcode(OP_MOV, "MOV", FORM_TWO, execMov)
	defineOpcode(OP_XCHG, "XCHG", FORM_TWO, execXchg)
	defineOpcode(OP_LEA, "LEA", FORM_LEA, execLea)

	defineOpcode(OP_INC, "INC", FORM_ONE, execUnary(aluInc))
	defineOpcode(OP_DEC, "DEC", FORM_ONE, execUnary(aluDec))
	defineOpcode(OP_ADD, "ADD", FORM_TWO, execBinary(aluAdd))
	defineOpcode(OP_ADC, "ADC", FORM_TWO, execBinary(aluAdc))
	defineOpcode(OP_SUB, "SUB", FORM_TWO, execBinary(aluSub))
	defineOpcode(OP_SBB, "SBB", FORM_TWO, execBinary(aluSbb))
	defineOpcode(OP_NEG, "NEG", FORM_ONE, execUnary(aluNeg))
	defineOpcode(OP_MUL, "MUL", FORM_TWO, execBinary(aluMul))
	defineOpcode(OP_IMUL, "IMUL", FORM_TWO, execBinary(aluImul))
	defineOpcode(OP_DIV, "DIV", FORM_TWO, execBinary(aluDiv))
	defineOpcode(OP_IDIV, "IDIV", FORM_TWO, execBinary(aluIdiv))
	defineOpcode(OP_MOD, "MOD", FORM_TWO, execBinary(aluMod))
	defineOpcode(OP_IMOD, "IMOD", FORM_TWO, execBinary(aluImod))

	defineOpcode(OP_AND, "AND", FORM_TWO, execBinary(aluAnd))
	defineOpcode(OP_OR, "OR", FORM_TWO, execBinary(aluOr))
	defineOpcode(OP_XOR, "XOR", FORM_TWO, execBinary(aluXor))
	defineOpcode(OP_NOT, "NOT", FORM_ONE, execUnary(aluNot))

	defineOpcode(OP_SHL, "SHL", FORM_TWO, execBinary(aluShl))
	defineOpcode(OP_SHR, "SHR", FORM_TWO, execBinary(aluShr))
	defineOpcode(OP_SAL, "SAL", FORM_TWO, execBinary(aluShl))
	defineOpcode(OP_SAR, "SAR", FORM_TWO, execBinary(aluSar))
	defineOpcode(OP_ROL, "ROL", FORM_TWO, execBinary(aluRol))
	defineOpcode(OP_ROR, "ROR", FORM_TWO, execBinary(aluRor))
	defineOpcode(OP_RCL, "RCL", FORM_TWO, execBinary(aluRcl))
	defineOpcode(OP_RCR, "RCR", FORM_TWO, execBinary(aluRcr))

	defineOpcode(OP_TEST, "TEST", FORM_TWO, execCompare(aluAnd))
	defineOpcode(OP_CMP, "CMP", FORM_TWO, execCompare(aluSub))

	defineOpcode(OP_JMP, "JMP", FORM_ONE, execJump(condAlways))
	defineOpcode(OP_JC, "JC", FORM_ONE, execJump(condFlag(FLAG_CF, true)))
	defineOpcode(OP_JNC, "JNC", FORM_ONE, execJump(condFlag(FLAG_CF, false)))
	defineOpcode(OP_JP, "JP", FORM_ONE, execJump(condFlag(FLAG_PF, true)))
	defineOpcode(OP_JNP, "JNP", FORM_ONE, execJump(condFlag(FLAG_PF, false)))
	defineOpcode(OP_JZ, "JZ", FORM_ONE, execJump(condFlag(FLAG_ZF, true)))
	defineOpcode(OP_JNZ, "JNZ", FORM_ONE, execJump(condFlag(FLAG_ZF, false)))
	defineOpcode(OP_JS, "JS", FORM_ONE, execJump(condFlag(FLAG_SF, true)))
	defineOpcode(OP_JNS, "JNS", FORM_ONE, execJump(condFlag(FLAG_SF, false)))
	defineOpcode(OP_JO, "JO", FORM_ONE, execJump(condFlag(FLAG_OF, true)))
	defineOpcode(OP_JNO, "JNO", FORM_ONE, execJump(condFlag(FLAG_OF, false)))

	defineOpcode(OP_JL, "JL", FORM_ONE, execJump(condLess))
	defineOpcode(OP_JLE, "JLE", FORM_ONE, execJump(condLessEqual))
	defineOpcode(OP_JG, "JG", FORM_ONE, execJump(condGreater))
	defineOpcode(OP_JGE, "JGE", FORM_ONE, execJump(condGreaterEqual))
	defineOpcode(OP_JB, "JB", FORM_ONE, execJump(condBelow))
	defineOpcode(OP_JBE, "JBE", FORM_ONE, execJump(condBelowEqual))
	defineOpcode(OP_JA, "JA", FORM_ONE, execJump(condAbove))
	defineOpcode(OP_JAE, "JAE", FORM_ONE, execJump(condAboveEqual))

	defineOpcode(OP_CALL, "CALL", FORM_ONE, execCall)
	defineOpcode(OP_RET, "RET", FORM_WORD, execRet)

	defineOpcode(OP_PUSH, "PUSH", FORM_ONE, execPush)
	defineOpcode(OP_POP, "POP", FORM_ONE, execPop)
	defineOpcode(OP_PUSHF, "PUSHF", FORM_NONE, execPushf)
	defineOpcode(OP_POPF, "POPF", FORM_NONE, execPopf)
	defineOpcode(OP_PUSHA, "PUSHA", FORM_NONE, execPusha)
	defineOpcode(OP_POPA, "POPA", FORM_NONE, execPopa)

	defineOpcode(OP_IN, "IN", FORM_THREE, execIn)
	defineOpcode(OP_OUT, "OUT", FORM_THREE, execOut)
}

// Valid is true if the opcode is defined.
func (op Opcode) Valid() bool {
	return opcodeTable[op] != nil
}

func (op Opcode) def() (def *opcodeDef, err error) {
	def = opcodeTable[op]
	if def == nil {
		err = ErrOpcodeUnknown(op)
	}
	return
}

// Form of the instruction's operands.
func (op Opcode) Form() Form {
	def := opcodeTable[op]
	if def == nil {
		return FORM_NONE
	}
	return def.form
}

func (op Opcode) String() string {
	def := opcodeTable[op]
	if def == nil {
		return "OP?"
	}
	return def.name
}

// ParseOpcode looks up a mnemonic, ignoring case.
func ParseOpcode(name string) (op Opcode, ok bool) {
	op, ok = opcodeNames[strings.ToUpper(name)]
	return
}

// Opcodes lists every defined opcode in numeric order.
func Opcodes() (ops []Opcode) {
	for n, def := range opcodeTable {
		if def != nil {
			ops = append(ops, Opcode(n))
		}
	}
	return
}
