// Copyright 2024, Jason S. McMullan <jason.mcmullan@gmail.com>

package cpu

import (
	"errors"
	"fmt"
	"log"
	"maps"
	"math"
	"regexp"
	"strconv"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// IMAGE_LIMIT is the largest program image, in bytes.
const IMAGE_LIMIT = math.MaxInt32

var (
	reLabelDefine = regexp.MustCompile(`^\$([a-zA-Z0-9_]+):\s*(.*)$`)
	reEquateName  = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
)

// Assembler is a two pass assembler.
//
// The first pass splits the source into statements, binds labels to
// addresses and lays out instructions and data. The second pass resolves
// label operands, each as of the address of the instruction using it, and
// encodes the image.
type Assembler struct {
	Verbose      bool     // If set, verbosely logs the assembler actions.
	BaseAddress  uint64   // Runtime address of the first emitted byte.
	BaseDir      string   // Directory for relative @include paths.
	IncludePaths []string // Search path for @include <...>.

	predefine map[string]string // Predefines
	Equate    map[string]string // Map of equates.
	Labels    LabelTable        // Label bindings of the last assembly.

	address uint64 // Emission offset from BaseAddress.
}

// Predefine defines a new equate or redefines an existing equate.
func (asm *Assembler) Predefine(equ string, value string) {
	if asm.predefine == nil {
		asm.predefine = map[string]string{equ: value}
	} else {
		asm.predefine[equ] = value
	}
}

// Assemble is a convenience wrapper returning only the image.
func Assemble(code string, baseAddress uint64, baseDir string, includePaths []string) (bin []byte, err error) {
	asm := &Assembler{
		BaseAddress:  baseAddress,
		BaseDir:      baseDir,
		IncludePaths: includePaths,
	}
	prog, err := asm.Assemble(code)
	if err != nil {
		return
	}
	bin = prog.Binary()
	return
}

// currentAddress is the runtime address of the next emitted byte.
func (asm *Assembler) currentAddress() uint64 {
	return asm.BaseAddress + asm.address
}

// Assemble translates source text into a Program.
func (asm *Assembler) Assemble(code string) (prog *Program, err error) {
	inc := &includer{Verbose: asm.Verbose, IncludePaths: asm.IncludePaths}
	code, err = inc.resolve(code, asm.BaseDir)
	if err != nil {
		return
	}
	statements := splitStatements(asm.removeDirectives(code))

	asm.Equate = make(map[string]string, len(asm.predefine))
	maps.Copy(asm.Equate, asm.predefine)
	asm.Labels.Reset()
	asm.Labels.Verbose = asm.Verbose
	asm.address = 0

	prog = &Program{BaseAddress: asm.BaseAddress}

	for index, text := range statements {
		if asm.Verbose {
			log.Printf("%08x: %v", asm.currentAddress(), text)
		}
		err = asm.parseStatement(prog, index, text)
		if err != nil {
			err = ErrSyntax{Statement: index, Text: text, Err: err}
			prog = nil
			return
		}
	}

	for n := range prog.Statements {
		stmt := &prog.Statements[n]
		if stmt.Instruction == nil {
			continue
		}
		var resolved Instruction
		resolved, err = stmt.Instruction.Resolved(asm.Labels.LookupAt(stmt.Address))
		if err != nil {
			err = ErrSyntax{Statement: stmt.Index, Text: stmt.Text, Err: err}
			prog = nil
			return
		}
		stmt.Instruction = &resolved
		stmt.Data = resolved.Encode(nil)
	}

	return
}

// reserve checks that count more bytes fit in the image.
func (asm *Assembler) reserve(count uint64) error {
	if count > IMAGE_LIMIT || asm.address+count > IMAGE_LIMIT {
		return ErrDirectiveRange
	}
	return nil
}

// emitData appends raw bytes at the current address.
func (asm *Assembler) emitData(prog *Program, index int, text string, data []byte) {
	if len(data) == 0 {
		return
	}
	prog.Statements = append(prog.Statements, Statement{
		Index:   index,
		Text:    text,
		Address: asm.currentAddress(),
		Data:    data,
	})
	asm.address += uint64(len(data))
}

// emitInstruction appends an instruction at the current address. Its bytes
// are filled in once labels are resolved.
func (asm *Assembler) emitInstruction(prog *Program, index int, text string, inst Instruction) {
	prog.Statements = append(prog.Statements, Statement{
		Index:       index,
		Text:        text,
		Address:     asm.currentAddress(),
		Instruction: &inst,
	})
	asm.address += uint64(inst.Length())
}

// parseStatement handles one statement of the first pass.
func (asm *Assembler) parseStatement(prog *Program, index int, text string) (err error) {
	line, err := asm.expand(text)
	if err != nil {
		return
	}

	for {
		match := reLabelDefine.FindStringSubmatch(line)
		if match == nil {
			break
		}
		address := asm.currentAddress()
		asm.Labels.Define(match[1], address, address)
		line = match[2]
	}
	if len(line) == 0 {
		return
	}

	if !strings.HasPrefix(line, ".") {
		var inst Instruction
		inst, err = ParseInstruction(line)
		if err != nil {
			return
		}
		asm.emitInstruction(prog, index, text, inst)
		return
	}

	directive, args, _ := strings.Cut(line, " ")
	words := strings.Fields(args)
	switch strings.ToLower(directive) {
	case ".equ":
		if len(words) != 2 || !reEquateName.MatchString(words[0]) {
			err = ErrEquateSyntax
			return
		}
		if _, ok := asm.Equate[words[0]]; ok {
			err = ErrEquateDuplicate
			return
		}
		asm.Equate[words[0]] = words[1]
	case ".undefine":
		if len(words) != 1 {
			err = ErrDirectiveSyntax
			return
		}
		err = asm.Labels.Undefine(strings.TrimPrefix(words[0], "$"), asm.currentAddress())
	case ".data":
		data := make([]byte, len(words))
		for n, word := range words {
			var value uint64
			value, err = strconv.ParseUint(strings.TrimPrefix(strings.ToLower(word), "0x"), 16, 8)
			if err != nil {
				err = ErrParseNumber(word)
				return
			}
			data[n] = byte(value)
		}
		asm.emitData(prog, index, text, data)
	case ".ascii":
		quoted := strings.TrimSpace(args)
		if !strings.HasPrefix(quoted, `"`) {
			err = ErrDirectiveSyntax
			return
		}
		var str string
		str, err = strconv.Unquote(quoted)
		if err != nil {
			err = ErrDirectiveSyntax
			return
		}
		asm.emitData(prog, index, text, append([]byte(str), 0))
	case ".space":
		var count uint64
		count, err = directiveArg(words)
		if err != nil {
			return
		}
		err = asm.reserve(count)
		if err != nil {
			return
		}
		asm.emitData(prog, index, text, make([]byte, count))
	case ".align":
		var align uint64
		align, err = directiveArg(words)
		if err != nil {
			return
		}
		if align == 0 {
			err = ErrDirectiveSyntax
			return
		}
		pad := (align - asm.currentAddress()%align) % align
		err = asm.reserve(pad)
		if err != nil {
			return
		}
		asm.emitData(prog, index, text, make([]byte, pad))
	case ".org":
		if len(words) != 1 {
			err = ErrDirectiveSyntax
			return
		}
		relative := strings.HasPrefix(words[0], "~")
		var target uint64
		target, err = directiveNumber(strings.TrimPrefix(words[0], "~"))
		if err != nil {
			return
		}
		current := asm.currentAddress()
		if relative {
			target += current
		}
		if target < current {
			err = ErrOrgBackward
			return
		}
		err = asm.reserve(target - current)
		if err != nil {
			return
		}
		asm.emitData(prog, index, text, make([]byte, target-current))
	case ".fill":
		var count, value uint64
		if len(words) != 2 {
			err = ErrDirectiveSyntax
			return
		}
		count, err = directiveNumber(words[0])
		if err != nil {
			return
		}
		value, err = directiveNumber(words[1])
		if err != nil {
			return
		}
		err = asm.reserve(count)
		if err != nil {
			return
		}
		data := make([]byte, count)
		for n := range data {
			data[n] = byte(value)
		}
		asm.emitData(prog, index, text, data)
	case ".repeat":
		count, code, _ := strings.Cut(args, " ")
		var times uint64
		times, err = directiveNumber(count)
		if err != nil {
			return
		}
		var inst Instruction
		inst, err = ParseInstruction(code)
		if err != nil {
			return
		}
		length := uint64(inst.Length())
		if times > IMAGE_LIMIT/length {
			err = ErrDirectiveRange
			return
		}
		err = asm.reserve(times * length)
		if err != nil {
			return
		}
		for range times {
			asm.emitInstruction(prog, index, text, inst)
		}
	default:
		err = ErrDirectiveSyntax
	}

	return
}

// directiveNumber reads a directive argument. A leading '$' is allowed.
func directiveNumber(word string) (uint64, error) {
	return ParseNumber(strings.TrimPrefix(word, "$"))
}

// directiveArg reads the single numeric argument of a directive.
func directiveArg(words []string) (uint64, error) {
	if len(words) != 1 {
		return 0, ErrDirectiveSyntax
	}
	return directiveNumber(words[0])
}

// expand replaces each $(...) outside of string quotes with the value of
// the expression, as a '$' immediate.
func (asm *Assembler) expand(text string) (line string, err error) {
	if !strings.Contains(text, "$(") {
		line = text
		return
	}

	var out strings.Builder
	quoted := false
	for n := 0; n < len(text); n++ {
		c := text[n]
		if quoted {
			if c == '\\' && n+1 < len(text) {
				out.WriteByte(c)
				n++
				c = text[n]
			} else if c == '"' {
				quoted = false
			}
			out.WriteByte(c)
			continue
		}
		if c == '"' {
			quoted = true
		}
		if !strings.HasPrefix(text[n:], "$(") {
			out.WriteByte(c)
			continue
		}

		depth := 0
		end := -1
		for m := n + 1; m < len(text) && end < 0; m++ {
			switch text[m] {
			case '(':
				depth++
			case ')':
				depth--
				if depth == 0 {
					end = m
				}
			}
		}
		if end < 0 {
			err = ErrParseExpression(text[n+2:])
			return
		}

		var value uint64
		value, err = asm.parenEval(text[n+2 : end])
		if err != nil {
			return
		}
		fmt.Fprintf(&out, "$0x%x", value)
		n = end
	}

	line = out.String()
	return
}

// parenEval does compile-time $(...) evaluations
func (asm *Assembler) parenEval(expr string) (value uint64, err error) {
	thread := starlark.Thread{}
	opts := syntax.FileOptions{}
	pred := starlark.StringDict{
		"ADDRESS":      starlark.MakeUint64(asm.currentAddress()),
		"BASE_ADDRESS": starlark.MakeUint64(asm.BaseAddress),
	}
	for key, str := range asm.Equate {
		equ, equErr := directiveNumber(str)
		if equErr != nil {
			// Ignore non-integer equates. They may be registers
			// or something else.
			continue
		}
		pred[key] = starlark.MakeUint64(equ)
	}
	prog := "rc=" + expr + "\n"
	dict, err := starlark.ExecFileOptions(&opts, &thread, "expr", prog, pred)
	if err != nil {
		err = errors.Join(ErrParseExpression(expr), err)
		return
	}
	st_rc, ok := dict["rc"]
	if !ok {
		err = ErrParseExpression(expr)
		return
	}
	st_int, ok := st_rc.(starlark.Int)
	if !ok {
		err = ErrParseExpression(expr)
		return
	}
	if value, ok = st_int.Uint64(); ok {
		return
	}
	st_int64, ok := st_int.Int64()
	if !ok {
		err = ErrParseExpression(expr)
		return
	}
	value = uint64(st_int64)
	return
}
