// Copyright 2024, Jason S. McMullan <jason.mcmullan@gmail.com>

// Package emulator hosts a qcpu processor with its devices and program.
package emulator

import (
	"context"
	"iter"
	"log"
	"sync"

	"github.com/ezrec/qcpu/cpu"
	"github.com/ezrec/qcpu/internal"
	"github.com/ezrec/qcpu/io"
)

const (
	PORT_SYSTEM  = 0
	PORT_CONSOLE = 1
	PORT_TEMP    = 2
	PORT_ROM     = 3
	PORT_DRUM    = 4

	MEMORY_SIZE = 0x10_0000 // Default memory size.
)

// Emulator state. CPU + devices + program listing.
//
// All methods are safe to call from multiple goroutines. Run holds the lock
// for one instruction at a time, so Inspect can observe a running CPU.
type Emulator struct {
	Verbose   bool         // If set, enables verbose logging.
	*cpu.Cpu               // Reference to the CPU simulation.
	Program   *cpu.Program // Reference to the current program listing.
	StepLimit uint64       // Maximum instructions per Run; zero for no limit.

	System    io.System    // System information device.
	Console   io.Console   // Console byte stream device.
	Temporary io.Temporary // Temporary FIFO device.
	Rom       io.Rom       // ROM image device.
	Drum      io.Drum      // Persistent drum storage device.

	mutex sync.Mutex
}

// NewEmulator creates a new emulator with the given memory size. Zero
// selects MEMORY_SIZE.
func NewEmulator(memorySize uint32) (emu *Emulator) {
	if memorySize == 0 {
		memorySize = MEMORY_SIZE
	}

	emu = &Emulator{
		Cpu:     cpu.NewCpu(memorySize),
		Program: &cpu.Program{},
	}

	emu.System.MemorySize = emu.Cpu.Memory.Size()
	emu.Temporary.Capacity = io.TEMP_CAPACITY

	for port, device := range emu.devices() {
		err := emu.Cpu.Devices.Add(port, device)
		if err != nil {
			// Only possible with duplicate fixed ports.
			panic(err)
		}
		device.Rewind()
	}

	return
}

// devices yields the emulator devices with their fixed ports.
func (emu *Emulator) devices() iter.Seq2[uint64, io.Device] {
	return func(yield func(port uint64, device io.Device) bool) {
		_ = yield(PORT_SYSTEM, &emu.System) &&
			yield(PORT_CONSOLE, &emu.Console) &&
			yield(PORT_TEMP, &emu.Temporary) &&
			yield(PORT_ROM, &emu.Rom) &&
			yield(PORT_DRUM, &emu.Drum)
	}
}

// Defines returns an iterator over all of the defines
func (emu *Emulator) Defines() iter.Seq2[string, string] {
	return internal.IterSeq2Concat(
		emu.Cpu.Defines(),
		emu.System.Defines(),
		emu.Console.Defines(),
		emu.Temporary.Defines(),
		emu.Rom.Defines(),
		emu.Drum.Defines(),
	)
}

// Assemble code at the entry point, with the emulator defines predefined.
// On success the program replaces the current one; call Reset to load it.
func (emu *Emulator) Assemble(code string, baseDir string, includePaths []string) (prog *cpu.Program, err error) {
	asm := &cpu.Assembler{
		Verbose:      emu.Verbose,
		BaseAddress:  emu.Cpu.Entry(),
		BaseDir:      baseDir,
		IncludePaths: includePaths,
	}
	for name, value := range emu.Defines() {
		asm.Predefine(name, value)
	}

	prog, err = asm.Assemble(code)
	if err != nil {
		return
	}

	emu.mutex.Lock()
	emu.Program = prog
	emu.mutex.Unlock()

	return
}

// Reset the CPU, rewind the devices and load the program image.
func (emu *Emulator) Reset() (err error) {
	emu.mutex.Lock()
	defer emu.mutex.Unlock()

	if emu.Program == nil {
		err = ErrNoProgram
		return
	}

	emu.Cpu.Verbose = false

	emu.Cpu.Reset()
	for _, device := range emu.devices() {
		device.Rewind()
	}

	bin := emu.Program.Binary()
	if n := emu.Cpu.Memory.Write(emu.Program.BaseAddress, 0, bin); n != len(bin) {
		log.Printf("emulator: %v", f("program truncated to %d of %d bytes", n, len(bin)))
	}
	emu.Cpu.Registers.Write(cpu.REG_RIP, emu.Program.BaseAddress)

	emu.Cpu.Verbose = emu.Verbose

	return
}

// Current returns the program statement at the instruction pointer.
func (emu *Emulator) Current() cpu.Debug {
	emu.mutex.Lock()
	defer emu.mutex.Unlock()

	return emu.current()
}

func (emu *Emulator) current() cpu.Debug {
	return emu.Program.Debug(emu.Cpu.Registers.Read(cpu.REG_RIP))
}

// Step performs a single instruction of the emulator.
func (emu *Emulator) Step() (err error) {
	emu.mutex.Lock()
	defer emu.mutex.Unlock()

	return emu.step()
}

func (emu *Emulator) step() (err error) {
	// Set CPU verbosity
	emu.Cpu.Verbose = emu.Verbose

	address := emu.Cpu.Registers.Read(cpu.REG_RIP)
	debug := emu.current()

	err = emu.Cpu.Step()
	if err != nil {
		rt := &ErrRuntime{Address: address, Err: err}
		if debug.Statement != nil {
			rt.Text = debug.Text
		}
		err = rt
	}

	return
}

// Run steps the CPU until the program raises interrupt 0.
//
// Decode and execute errors are logged and the run continues. Run stops
// early with the context error when ctx is done, with ErrStepLimit after
// StepLimit instructions, and with ErrInterrupt when a non-zero interrupt
// is not handled by a listener. A later Run resumes after the interrupt.
func (emu *Emulator) Run(ctx context.Context) (err error) {
	emu.mutex.Lock()
	if emu.Cpu.IsExiting() {
		emu.mutex.Unlock()
		return
	}
	emu.Cpu.ResetInterrupt()
	emu.mutex.Unlock()

	for steps := uint64(0); ; steps++ {
		err = ctx.Err()
		if err != nil {
			return
		}

		var done bool
		done, err = emu.runStep(steps)
		if done || err != nil {
			return
		}
	}
}

func (emu *Emulator) runStep(steps uint64) (done bool, err error) {
	emu.mutex.Lock()
	defer emu.mutex.Unlock()

	if emu.StepLimit != 0 && steps >= emu.StepLimit {
		err = ErrStepLimit
		return
	}

	stepErr := emu.step()
	if stepErr != nil {
		log.Printf("emulator: %v", stepErr)
	}

	if emu.Cpu.Interrupted {
		if emu.Cpu.IsExiting() {
			done = true
			return
		}
		err = ErrInterrupt{Code: emu.Cpu.InterruptCode}
	}

	return
}

// Inspect calls fn with the CPU while holding the emulator lock.
func (emu *Emulator) Inspect(fn func(c *cpu.Cpu)) {
	emu.mutex.Lock()
	defer emu.mutex.Unlock()

	fn(emu.Cpu)
}

// ExitCode is the low byte of RAX.
func (emu *Emulator) ExitCode() int {
	emu.mutex.Lock()
	defer emu.mutex.Unlock()

	return int(emu.Cpu.Registers.Read(cpu.REG_RAX) & 0xff)
}
