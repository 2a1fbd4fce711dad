package cpu

import (
	"fmt"
	"iter"
)

// Statement is one emitted item of an assembled program.
type Statement struct {
	Index       int    // Statement number in the preprocessed source.
	Text        string // Statement text.
	Address     uint64 // Runtime address of the first byte.
	Instruction *Instruction
	Data        []byte // Encoded bytes.
}

func (stmt *Statement) String() string {
	if stmt.Instruction != nil {
		return fmt.Sprintf("%08x: %v", stmt.Address, stmt.Instruction)
	}
	return fmt.Sprintf("%08x: .data % x", stmt.Address, stmt.Data)
}

// Program is the output of the assembler.
type Program struct {
	BaseAddress uint64
	Statements  []Statement
}

// Debug locates the statement covering an address.
type Debug struct {
	*Statement
	Offset int // Byte offset of the address in the statement.
}

// Debug finds the statement that emitted the byte at address. The result
// has a nil Statement when no statement covers it.
func (prog *Program) Debug(address uint64) (dbg Debug) {
	for n, stmt := range prog.Statements {
		if address >= stmt.Address && address < stmt.Address+uint64(len(stmt.Data)) {
			dbg = Debug{
				Statement: &prog.Statements[n],
				Offset:    int(address - stmt.Address),
			}
			break
		}
	}

	return
}

// Binary is the program image, to be loaded at BaseAddress.
func (prog *Program) Binary() (bin []byte) {
	for _, stmt := range prog.Statements {
		bin = append(bin, stmt.Data...)
	}

	return
}

// Length of the program image.
func (prog *Program) Length() (length uint64) {
	for _, stmt := range prog.Statements {
		length += uint64(len(stmt.Data))
	}
	return
}

// Instructions of the program, by address.
func (prog *Program) Instructions() iter.Seq2[uint64, *Instruction] {
	return func(yield func(address uint64, inst *Instruction) bool) {
		for _, stmt := range prog.Statements {
			if stmt.Instruction == nil {
				continue
			}
			if !yield(stmt.Address, stmt.Instruction) {
				return
			}
		}
	}
}
