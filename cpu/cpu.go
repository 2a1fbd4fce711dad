package cpu

import (
	"fmt"
	"iter"
	"log"
	"maps"
	"slices"
	"strings"
)

// InterruptListener is offered non-zero interrupt codes, in registration
// order, until one returns true.
type InterruptListener interface {
	OnInterrupt(cpu *Cpu, code uint8) (handled bool)
}

// Cpu is the simulation context of the processor.
type Cpu struct {
	Verbose bool // Set to enable verbose logging.

	Memory    *Memory   // Main memory.
	Registers Registers // Register file.
	Stack     Stack     // Stack view over Memory.
	Devices   Devices   // Port-mapped devices.

	Steps uint64 // Completed instructions.

	Interrupted   bool  // Set by an unhandled interrupt.
	InterruptCode uint8 // Code of the unhandled interrupt.

	listeners []InterruptListener
}

// NewCpu creates a CPU with the given memory size, in reset state.
func NewCpu(memorySize uint32) (cpu *Cpu) {
	cpu = &Cpu{
		Memory: NewMemory(memorySize),
	}
	cpu.Stack = Stack{Memory: cpu.Memory, Registers: &cpu.Registers}
	cpu.Reset()

	return
}

// Entry is the initial instruction pointer, a third into memory.
func (cpu *Cpu) Entry() uint64 {
	return cpu.Memory.Size() / 3
}

// StackTop is the initial stack pointer.
func (cpu *Cpu) StackTop() uint64 {
	return cpu.Memory.Size() - 1
}

// Defines for the cpu.
func (cpu *Cpu) Defines() iter.Seq2[string, string] {
	defines := map[string]string{
		"MEMORY_SIZE": fmt.Sprintf("0x%x", cpu.Memory.Size()),
		"ENTRY":       fmt.Sprintf("0x%x", cpu.Entry()),
		"STACK_TOP":   fmt.Sprintf("0x%x", cpu.StackTop()),
	}
	return maps.All(defines)
}

// Reset the CPU state.
// - Clears memory and registers.
// - Points the instruction pointer at the entry.
// - Points the stack and frame pointers at the top of memory.
// - Clears the interrupt state, step counter and stack history.
func (cpu *Cpu) Reset() {
	if cpu.Verbose {
		log.Printf("cpu: reset")
	}

	cpu.Memory.Clear()
	cpu.Registers.Reset()
	cpu.Registers.Write(REG_RIP, cpu.Entry())
	cpu.Registers.Write(REG_RSP, cpu.StackTop())
	cpu.Registers.Write(REG_RBP, cpu.StackTop())
	cpu.Stack.History.Reset()
	cpu.ResetInterrupt()
	cpu.Steps = 0
}

// Interrupt raises a software interrupt. Non-zero codes go to the
// listeners first. Code 0 always stops the CPU.
func (cpu *Cpu) Interrupt(code uint8) {
	if cpu.Verbose {
		log.Printf("cpu: interrupt 0x%02x", code)
	}

	if code != 0 {
		for _, listener := range cpu.listeners {
			if listener.OnInterrupt(cpu, code) {
				return
			}
		}
	}

	cpu.Interrupted = true
	cpu.InterruptCode = code
}

// IsExiting is true once the program has raised interrupt 0.
func (cpu *Cpu) IsExiting() bool {
	return cpu.Interrupted && cpu.InterruptCode == 0
}

// ResetInterrupt clears the interrupt state.
func (cpu *Cpu) ResetInterrupt() {
	cpu.Interrupted = false
	cpu.InterruptCode = 0
}

// AddInterruptListener appends a listener to the chain.
func (cpu *Cpu) AddInterruptListener(listener InterruptListener) {
	cpu.listeners = append(cpu.listeners, listener)
}

// RemoveInterruptListener removes the first occurrence of a listener.
func (cpu *Cpu) RemoveInterruptListener(listener InterruptListener) {
	index := slices.Index(cpu.listeners, listener)
	if index >= 0 {
		cpu.listeners = slices.Delete(cpu.listeners, index, index+1)
	}
}

// codeSegment is the WORD view of CS.
func (cpu *Cpu) codeSegment() uint64 {
	return cpu.Registers.Read(REG_CS) & 0xffff
}

// InstructionAt decodes the instruction at address:segment without running
// it.
func (cpu *Cpu) InstructionAt(address, segment uint64) (inst Instruction, length int, err error) {
	ctx := NewContext(cpu, address, segment)
	inst, err = DecodeInstruction(ctx)
	length = ctx.Length
	return
}

// Step executes a single instruction.
//
// An instruction that does not decode is skipped one byte at a time. An
// instruction that fails leaves the instruction pointer after it, without
// jumping or counting the step.
func (cpu *Cpu) Step() (err error) {
	ip := cpu.Registers.Read(REG_RIP)
	ctx := NewContext(cpu, ip, cpu.codeSegment())

	inst, err := DecodeInstruction(ctx)
	if err != nil {
		cpu.Registers.Write(REG_RIP, ip+1)
		err = &ErrDecode{Address: ip, Err: err}
		if cpu.Verbose {
			log.Printf("cpu: %v", err)
		}
		return
	}

	cpu.Registers.Write(REG_RIP, ctx.Next())

	if cpu.Verbose {
		log.Printf("%08x: %v", ip, inst)
	}

	err = opcodeTable[inst.Opcode].exec(ctx, &inst)
	if err != nil {
		err = &ErrExecute{Address: ip, Instruction: inst, Err: err}
		if cpu.Verbose {
			log.Printf("cpu: %v", err)
		}
		return
	}

	cpu.Steps++
	ctx.commit()

	return
}

var flagOrder = [...]Flag{FLAG_OF, FLAG_DF, FLAG_IF, FLAG_TF, FLAG_SF, FLAG_ZF, FLAG_AF, FLAG_PF, FLAG_CF}

// FlagsString lists the set flags, such as "zf pf".
func (cpu *Cpu) FlagsString() string {
	var set []string
	for _, flag := range flagOrder {
		if cpu.Registers.Flag(flag) {
			set = append(set, flag.String())
		}
	}
	return strings.Join(set, " ")
}

// String returns the current CPU state as a string.
func (cpu *Cpu) String() (text string) {
	for n := range Register(REGISTER_COUNT) {
		val := cpu.Registers.Read(n)
		text += fmt.Sprintf("% 5s: %08X_%08X\n", n, val>>32, val&0xffff_ffff)
	}
	text += fmt.Sprintf("% 5s: [%v]\n", "set", cpu.FlagsString())
	text += fmt.Sprintf("% 5s: %d\n", "steps", cpu.Steps)
	return
}
