// Package cpu implements the processor and assembler for the qcpu system.
//
// The CPU has a flat byte memory addressed as segment:offset, a bank of 24
// 64-bit registers with byte, word and dword views, a stack growing down from
// the top of memory, and port-mapped devices reached with IN and OUT.
//
// Instructions are one opcode byte followed by tagged operands. Each operand
// is a register, an immediate or a memory reference using one of nine
// addressing modes.
//
// The assembler compiles a semicolon separated assembly dialect with labels,
// includes, data directives and compile-time expressions into that binary
// format.
package cpu
