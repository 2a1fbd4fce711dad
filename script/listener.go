// Package script provides CPU interrupt listeners written in Lua.
//
// A script defines a global function on_interrupt(code). It is called for
// each non-zero interrupt; returning true marks the interrupt as handled.
// While it runs, the script can use:
//
//	reg(name)              -- read a register view, such as "eax"
//	set_reg(name, value)   -- write a register view
//	flag(name)             -- read a flag, such as "zf"
//	peek(address [, size]) -- read memory; size is "byte" by default
//	poke(address, value [, size])
//
// Lua numbers are doubles, so values above 2^53 lose precision.
package script

import (
	"log"
	"math"

	lua "github.com/yuin/gopher-lua"

	"github.com/ezrec/qcpu/cpu"
)

// Listener runs a Lua on_interrupt handler.
type Listener struct {
	Verbose bool // If set, logs each call.

	state   *lua.LState
	handler lua.LValue
	cpu     *cpu.Cpu // CPU of the call in progress.
}

var _ cpu.InterruptListener = (*Listener)(nil)

// NewListener compiles and runs a Lua chunk, which must define
// on_interrupt.
func NewListener(source string) (ls *Listener, err error) {
	ls = &Listener{
		state: lua.NewState(),
	}

	for name, fn := range map[string]lua.LGFunction{
		"reg":     ls.luaReg,
		"set_reg": ls.luaSetReg,
		"flag":    ls.luaFlag,
		"peek":    ls.luaPeek,
		"poke":    ls.luaPoke,
	} {
		ls.state.SetGlobal(name, ls.state.NewFunction(fn))
	}

	err = ls.state.DoString(source)
	if err != nil {
		ls.Close()
		ls = nil
		return
	}

	ls.handler = ls.state.GetGlobal("on_interrupt")
	if ls.handler.Type() != lua.LTFunction {
		ls.Close()
		ls = nil
		err = ErrHandlerMissing
		return
	}

	return
}

// Close releases the Lua state.
func (ls *Listener) Close() {
	ls.state.Close()
}

// OnInterrupt calls on_interrupt(code). A script error is logged and leaves
// the interrupt unhandled.
func (ls *Listener) OnInterrupt(c *cpu.Cpu, code uint8) (handled bool) {
	ls.cpu = c
	defer func() {
		ls.cpu = nil
	}()

	err := ls.state.CallByParam(lua.P{
		Fn:      ls.handler,
		NRet:    1,
		Protect: true,
	}, lua.LNumber(code))
	if err != nil {
		log.Printf("script: %v", f("on_interrupt(%d): %v", code, err))
		return
	}

	ret := ls.state.Get(-1)
	ls.state.Pop(1)
	handled = lua.LVAsBool(ret)

	if ls.Verbose {
		log.Printf("script: on_interrupt(%d) = %v", code, handled)
	}
	return
}

// toValue converts a Lua number to a register value. Negative numbers are
// two's complement.
func toValue(n lua.LNumber) uint64 {
	if n < 0 {
		return uint64(int64(n))
	}
	if float64(n) >= math.MaxUint64 {
		return math.MaxUint64
	}
	return uint64(n)
}

func (ls *Listener) checkCpu(L *lua.LState) *cpu.Cpu {
	if ls.cpu == nil {
		L.RaiseError("%s", f("no interrupt in progress"))
	}
	return ls.cpu
}

func (ls *Listener) checkRegister(L *lua.LState, n int) cpu.RegisterRef {
	name := L.CheckString(n)
	ref, ok := cpu.ParseRegister(name)
	if !ok {
		L.ArgError(n, f("unknown register %q", name))
	}
	return ref
}

func (ls *Listener) checkSize(L *lua.LState, n int) cpu.Size {
	name := L.OptString(n, "byte")
	size, ok := cpu.ParseSize(name)
	if !ok {
		L.ArgError(n, f("unknown size %q", name))
	}
	return size
}

func (ls *Listener) luaReg(L *lua.LState) int {
	c := ls.checkCpu(L)
	ref := ls.checkRegister(L, 1)
	value, err := c.Registers.ReadRegion(ref.Register, ref.Region)
	if err != nil {
		L.RaiseError("%v", err)
	}
	L.Push(lua.LNumber(value))
	return 1
}

func (ls *Listener) luaSetReg(L *lua.LState) int {
	c := ls.checkCpu(L)
	ref := ls.checkRegister(L, 1)
	value := toValue(L.CheckNumber(2))
	err := c.Registers.WriteRegion(ref.Register, ref.Region, value)
	if err != nil {
		L.RaiseError("%v", err)
	}
	return 0
}

func (ls *Listener) luaFlag(L *lua.LState) int {
	c := ls.checkCpu(L)
	name := L.CheckString(1)
	flag, ok := cpu.ParseFlag(name)
	if !ok {
		L.ArgError(1, f("unknown flag %q", name))
	}
	L.Push(lua.LBool(c.Registers.Flag(flag)))
	return 1
}

func (ls *Listener) luaPeek(L *lua.LState) int {
	c := ls.checkCpu(L)
	address := toValue(L.CheckNumber(1))
	size := ls.checkSize(L, 2)
	L.Push(lua.LNumber(c.Memory.ReadSized(address, 0, size)))
	return 1
}

func (ls *Listener) luaPoke(L *lua.LState) int {
	c := ls.checkCpu(L)
	address := toValue(L.CheckNumber(1))
	value := toValue(L.CheckNumber(2))
	size := ls.checkSize(L, 3)
	c.Memory.WriteSized(address, 0, size, value)
	return 0
}
