package cpu

import (
	"errors"

	"github.com/ezrec/qcpu/translate"
)

var f = translate.From

var (
	// Cpu errors
	ErrImmediateWrite = errors.New(f("immediate is not writable"))
	ErrDivideByZero   = errors.New(f("divide by zero"))
	ErrPortInUse      = errors.New(f("port in use"))
	ErrTruncated      = errors.New(f("instruction truncated"))

	// Instruction decode errors
	ErrRegisterInvalid = errors.New(f("register invalid"))
	ErrRegionInvalid   = errors.New(f("region invalid"))
	ErrRegionSize      = errors.New(f("region does not match operand size"))
	ErrTypeInvalid     = errors.New(f("operand type invalid"))
	ErrModeInvalid     = errors.New(f("addressing mode invalid"))
	ErrSegmentInvalid  = errors.New(f("segment invalid"))

	// Assembler errors
	ErrEquateSyntax       = errors.New(f(".equ syntax"))
	ErrEquateDuplicate    = errors.New(f(".equ duplicated"))
	ErrDirectiveSyntax    = errors.New(f("directive syntax"))
	ErrOrgBackward        = errors.New(f(".org moves backward"))
	ErrDirectiveRange     = errors.New(f("directive size out of range"))
	ErrLabelUndefined     = errors.New(f("label already undefined"))
	ErrOpcodeExtraArgs    = errors.New(f("excessive arguments"))
	ErrOpcodeValueMissing = errors.New(f("value missing"))
	ErrInstructionInvalid = errors.New(f("instruction invalid"))
	ErrIncludeCircular    = errors.New(f("circular include"))
)

// ErrLabelMissing is returned when a label was never defined.
type ErrLabelMissing string

func (el ErrLabelMissing) Error() string {
	return f("label %v missing", string(el))
}

// ErrLabelScope is returned when a label exists, but no binding covers the
// position of the reference.
type ErrLabelScope struct {
	Label    string
	Position uint64
}

func (el ErrLabelScope) Error() string {
	return f("label %v out of scope at 0x%x", el.Label, el.Position)
}

// ErrOpcodeUnknown is an opcode byte with no instruction definition.
type ErrOpcodeUnknown Opcode

func (eo ErrOpcodeUnknown) Error() string {
	return f("bad opcode 0x%02x", uint8(eo))
}

func (eo ErrOpcodeUnknown) Is(err error) (ok bool) {
	_, ok = err.(ErrOpcodeUnknown)
	return
}

// ErrRegion is a register accessed through a region it does not provide.
type ErrRegion struct {
	Register Register
	Region   Region
}

func (err ErrRegion) Error() string {
	return f("register %v has no %v region", err.Register, err.Region)
}

func (err ErrRegion) Unwrap() error {
	return ErrRegionInvalid
}

// ErrSyntax locates an assembly error by statement.
type ErrSyntax struct {
	Statement int
	Text      string
	Err       error
}

func (err ErrSyntax) Error() string {
	return f("statement %d '%v' %v", err.Statement, err.Text, err.Err)
}

func (err ErrSyntax) Unwrap() error {
	return err.Err
}

// ErrInclude is a failed @include.
type ErrInclude struct {
	Path string
	Err  error
}

func (err ErrInclude) Error() string {
	return f("include %v: %v", err.Path, err.Err)
}

func (err ErrInclude) Unwrap() error {
	return err.Err
}

type ErrParseNumber string

func (err ErrParseNumber) Error() string {
	return f("'%v' is not a number", string(err))
}

type ErrParseValue string

func (err ErrParseValue) Error() string {
	return f("'%v' is not a value or register", string(err))
}

type ErrParseExpression string

func (err ErrParseExpression) Error() string {
	return f("$(%v) is not a valid expression", string(err))
}

// ErrDecode is an instruction that could not be loaded from memory.
type ErrDecode struct {
	Address uint64
	Err     error
}

func (err *ErrDecode) Error() string {
	return f("decode at 0x%x: %v", err.Address, err.Err)
}

func (err *ErrDecode) Unwrap() error {
	return err.Err
}

// ErrExecute is an instruction that failed while executing.
type ErrExecute struct {
	Address     uint64
	Instruction Instruction
	Err         error
}

func (err *ErrExecute) Error() string {
	return f("execute at 0x%x '%v': %v", err.Address, &err.Instruction, err.Err)
}

func (err *ErrExecute) Unwrap() error {
	return err.Err
}
