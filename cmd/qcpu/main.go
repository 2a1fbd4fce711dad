// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/ezrec/qcpu/cpu"
	"github.com/ezrec/qcpu/emulator"
	"github.com/ezrec/qcpu/io"
	"github.com/ezrec/qcpu/script"
)

func main() {
	os.Exit(run())
}

// loadProgram assembles source, or wraps a .bin image loaded at the entry.
func loadProgram(emu *emulator.Emulator, path string, includes []string) (prog *cpu.Program, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}

	if filepath.Ext(path) == ".bin" {
		entry := emu.Cpu.Entry()
		prog = &cpu.Program{
			BaseAddress: entry,
			Statements: []cpu.Statement{
				{Text: filepath.Base(path), Address: entry, Data: data},
			},
		}
		emu.Program = prog
		return
	}

	prog, err = emu.Assemble(string(data), filepath.Dir(path), includes)
	return
}

// listProgram prints the program listing, or a disassembly of a binary.
func listProgram(prog *cpu.Program) {
	for _, stmt := range prog.Statements {
		if stmt.Instruction != nil {
			fmt.Printf("%v\t; %v\n", &stmt, stmt.Text)
			continue
		}
		for _, line := range cpu.Disassemble(stmt.Data, stmt.Address) {
			if line.Err != nil {
				fmt.Printf("%08x: .data % x\t; %v\n", line.Address, line.Data, stmt.Text)
			} else {
				fmt.Printf("%v\n", line)
			}
		}
	}
}

func run() (status int) {
	var verbose bool
	var memory uint
	var includes string
	var output string
	var list bool
	var luaFile string
	var romFile string
	var drumDir string
	var raw bool
	var steps uint64
	var dump bool

	flag.BoolVar(&verbose, "v", false, "Verbose mode")
	flag.UintVar(&memory, "m", emulator.MEMORY_SIZE, "Memory size in bytes")
	flag.StringVar(&includes, "I", "", "Comma separated @include <...> search path")
	flag.StringVar(&output, "o", "", "Write the assembled binary to a file")
	flag.BoolVar(&list, "d", false, "Print the program listing")
	flag.StringVar(&luaFile, "lua", "", "Lua interrupt handler script")
	flag.StringVar(&romFile, "rom", "", "File to expose on the ROM device")
	flag.StringVar(&drumDir, "drum", "", "Directory of drum rings, saved on exit")
	flag.BoolVar(&raw, "raw", false, "Raw terminal mode for the console")
	flag.Uint64Var(&steps, "steps", 0, "Maximum instructions to run, zero for no limit")
	flag.BoolVar(&dump, "dump", false, "Print the CPU state on exit")

	flag.Parse()

	if flag.NArg() != 1 {
		log.Printf("usage: %v [flags] program.qasm", os.Args[0])
		flag.PrintDefaults()
		return 2
	}
	source := flag.Arg(0)

	var includePaths []string
	if len(includes) != 0 {
		includePaths = strings.Split(includes, ",")
	}

	emu := emulator.NewEmulator(uint32(memory))
	emu.Verbose = verbose
	emu.StepLimit = steps

	prog, err := loadProgram(emu, source, includePaths)
	if err != nil {
		log.Printf("%v: %v", source, err)
		return 1
	}

	if len(output) != 0 {
		err = os.WriteFile(output, prog.Binary(), 0644)
		if err != nil {
			log.Printf("%v: %v", output, err)
			return 1
		}
	}

	if list {
		listProgram(prog)
		return 0
	}

	if len(romFile) != 0 {
		emu.Rom.Data, err = os.ReadFile(romFile)
		if err != nil {
			log.Printf("%v: %v", romFile, err)
			return 1
		}
	}

	if len(drumDir) != 0 {
		err = emu.Drum.Unmarshal(os.DirFS(drumDir))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Printf("%v: %v", drumDir, err)
			return 1
		}
		defer func() {
			err := os.MkdirAll(drumDir, 0755)
			if err == nil {
				err = emu.Drum.Marshal(io.DirFS(drumDir))
			}
			if err != nil {
				log.Printf("%v: %v", drumDir, err)
				status = 1
			} else if verbose {
				log.Printf("%v: saved rings %v", drumDir, emu.Drum.RingIndices())
			}
		}()
	}

	if len(luaFile) != 0 {
		code, err := os.ReadFile(luaFile)
		if err != nil {
			log.Printf("%v: %v", luaFile, err)
			return 1
		}
		listener, err := script.NewListener(string(code))
		if err != nil {
			log.Printf("%v: %v", luaFile, err)
			return 1
		}
		defer listener.Close()
		listener.Verbose = verbose
		emu.AddInterruptListener(listener)
	}

	emu.Console.Input = os.Stdin
	emu.Console.Output = os.Stdout
	if raw {
		terminal, err := newRawTerminal()
		if err != nil {
			log.Printf("terminal: %v", err)
			return 1
		}
		defer terminal.Restore()
		if terminal != nil {
			emu.Console.Input = rawReader{os.Stdin}
			emu.Console.Output = rawWriter{os.Stdout}
		}
	}

	err = emu.Reset()
	if err != nil {
		log.Printf("%v: %v", source, err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err = emu.Run(ctx)
	if dump {
		emu.Inspect(func(c *cpu.Cpu) {
			fmt.Fprint(os.Stderr, c.String())
		})
	}
	if err != nil {
		log.Printf("%v: %v", source, err)
		return 1
	}

	return emu.ExitCode()
}
