package cpu

import (
	"log"
)

// pushaOrder is the register order of PUSHA. POPA restores in reverse.
var pushaOrder = [...]Register{
	REG_RAX, REG_RCX, REG_RDX, REG_RBX, REG_RSI, REG_RDI,
	REG_R8, REG_R9, REG_R10, REG_R11, REG_R12, REG_R13, REG_R14, REG_R15,
}

func execNop(ctx *Context, inst *Instruction) error {
	return nil
}

func execInt(ctx *Context, inst *Instruction) error {
	ctx.Cpu.Interrupt(uint8(inst.Raw))
	return nil
}

func execMov(ctx *Context, inst *Instruction) (err error) {
	dest, source := &inst.Operands[0], &inst.Operands[1]
	value, err := source.Read(ctx)
	if err != nil {
		return
	}
	err = dest.Write(ctx, value)
	return
}

func execXchg(ctx *Context, inst *Instruction) (err error) {
	first, second := &inst.Operands[0], &inst.Operands[1]
	if first.Type == VALUE_IMMEDIATE || second.Type == VALUE_IMMEDIATE {
		return ErrImmediateWrite
	}
	a, err := first.Read(ctx)
	if err != nil {
		return
	}
	b, err := second.Read(ctx)
	if err != nil {
		return
	}
	err = first.Write(ctx, b)
	if err != nil {
		return
	}
	err = second.Write(ctx, a)
	return
}

func execLea(ctx *Context, inst *Instruction) (err error) {
	dest, source := &inst.Operands[0], &inst.Operands[1]
	address, err := source.Address(ctx)
	if err != nil {
		return
	}
	err = dest.Write(ctx, address)
	return
}

// runAlu performs the operation at the given width, then writes the flags.
func runAlu(ctx *Context, fn aluFunc, size Size, a, b uint64) (alu aluState, err error) {
	regs := &ctx.Cpu.Registers
	alu = aluState{
		size:  size,
		a:     a & size.Mask(),
		b:     b & size.Mask(),
		carry: regs.Flag(FLAG_CF),
	}
	err = fn(&alu)
	return
}

func execUnary(fn aluFunc) opcodeExec {
	return func(ctx *Context, inst *Instruction) (err error) {
		dest := &inst.Operands[0]
		a, err := dest.Read(ctx)
		if err != nil {
			return
		}
		alu, err := runAlu(ctx, fn, dest.Size, a, 0)
		if err != nil {
			return
		}
		if !alu.skip {
			err = dest.Write(ctx, alu.result)
			if err != nil {
				return
			}
		}
		alu.apply(&ctx.Cpu.Registers)
		return
	}
}

func execBinary(fn aluFunc) opcodeExec {
	return func(ctx *Context, inst *Instruction) (err error) {
		dest, source := &inst.Operands[0], &inst.Operands[1]
		a, err := dest.Read(ctx)
		if err != nil {
			return
		}
		b, err := source.Read(ctx)
		if err != nil {
			return
		}
		alu, err := runAlu(ctx, fn, dest.Size, a, b)
		if err != nil {
			return
		}
		if !alu.skip {
			err = dest.Write(ctx, alu.result)
			if err != nil {
				return
			}
		}
		alu.apply(&ctx.Cpu.Registers)
		return
	}
}

// execCompare runs the operation at the wider operand width, keeping only
// the flags.
func execCompare(fn aluFunc) opcodeExec {
	return func(ctx *Context, inst *Instruction) (err error) {
		first, second := &inst.Operands[0], &inst.Operands[1]
		a, err := first.Read(ctx)
		if err != nil {
			return
		}
		b, err := second.Read(ctx)
		if err != nil {
			return
		}
		alu, err := runAlu(ctx, fn, maxSize(first.Size, second.Size), a, b)
		if err != nil {
			return
		}
		alu.apply(&ctx.Cpu.Registers)
		return
	}
}

type jumpCond func(regs *Registers) bool

func condAlways(regs *Registers) bool {
	return true
}

func condFlag(flag Flag, set bool) jumpCond {
	return func(regs *Registers) bool {
		return regs.Flag(flag) == set
	}
}

func condLess(regs *Registers) bool {
	return regs.Flag(FLAG_SF) != regs.Flag(FLAG_OF)
}

func condLessEqual(regs *Registers) bool {
	return regs.Flag(FLAG_ZF) || condLess(regs)
}

func condGreater(regs *Registers) bool {
	return !condLessEqual(regs)
}

func condGreaterEqual(regs *Registers) bool {
	return !condLess(regs)
}

func condBelow(regs *Registers) bool {
	return regs.Flag(FLAG_CF)
}

func condBelowEqual(regs *Registers) bool {
	return regs.Flag(FLAG_CF) || regs.Flag(FLAG_ZF)
}

func condAbove(regs *Registers) bool {
	return !condBelowEqual(regs)
}

func condAboveEqual(regs *Registers) bool {
	return !condBelow(regs)
}

func execJump(cond jumpCond) opcodeExec {
	return func(ctx *Context, inst *Instruction) (err error) {
		if !cond(&ctx.Cpu.Registers) {
			return
		}
		target, err := inst.Operands[0].Read(ctx)
		if err != nil {
			return
		}
		ctx.Jump(target)
		return
	}
}

// execCall pushes the return address, then the frame pointer, and starts a
// new frame at the stack pointer.
func execCall(ctx *Context, inst *Instruction) (err error) {
	target, err := inst.Operands[0].Read(ctx)
	if err != nil {
		return
	}
	stack := &ctx.Cpu.Stack
	stack.PushQword(ctx.Next())
	stack.PushQword(stack.BasePointer())
	ctx.Jump(target)
	stack.SetBasePointer(stack.Pointer())
	return
}

// execRet pops the frame pointer, then the return address, then releases
// the argument bytes.
func execRet(ctx *Context, inst *Instruction) error {
	stack := &ctx.Cpu.Stack
	frame := stack.PopQword()
	target := stack.PopQword()
	stack.SetBasePointer(frame)
	ctx.Jump(target)
	stack.Drop(uint64(inst.Raw))
	return nil
}

func execPush(ctx *Context, inst *Instruction) (err error) {
	source := &inst.Operands[0]
	value, err := source.Read(ctx)
	if err != nil {
		return
	}
	ctx.Cpu.Stack.Push(value, source.Size)
	return
}

func execPop(ctx *Context, inst *Instruction) (err error) {
	dest := &inst.Operands[0]
	if dest.Type == VALUE_IMMEDIATE {
		return ErrImmediateWrite
	}
	value := ctx.Cpu.Stack.Pop(dest.Size)
	err = dest.Write(ctx, value)
	return
}

func execPushf(ctx *Context, inst *Instruction) error {
	ctx.Cpu.Stack.Push(ctx.Cpu.Registers.Read(REG_FLAGS), SIZE_WORD)
	return nil
}

func execPopf(ctx *Context, inst *Instruction) error {
	value := ctx.Cpu.Stack.Pop(SIZE_WORD)
	return ctx.Cpu.Registers.WriteRegion(REG_FLAGS, REGION_WORD, value)
}

func execPusha(ctx *Context, inst *Instruction) error {
	for _, reg := range pushaOrder {
		ctx.Cpu.Stack.PushQword(ctx.Cpu.Registers.Read(reg))
	}
	return nil
}

func execPopa(ctx *Context, inst *Instruction) error {
	for n := len(pushaOrder) - 1; n >= 0; n-- {
		ctx.Cpu.Registers.Write(pushaOrder[n], ctx.Cpu.Stack.PopQword())
	}
	return nil
}

// readPort reads the port and device address operands.
func readPort(ctx *Context, inst *Instruction) (port, address uint64, err error) {
	port, err = inst.Operands[0].Read(ctx)
	if err != nil {
		return
	}
	address, err = inst.Operands[1].Read(ctx)
	return
}

func execIn(ctx *Context, inst *Instruction) (err error) {
	port, address, err := readPort(ctx, inst)
	if err != nil {
		return
	}

	var value uint64
	device := ctx.Cpu.Devices.Get(port)
	if device == nil {
		log.Printf("in: %v", f("no device on port 0x%x", port))
	} else {
		value = device.Read(address)
	}

	err = inst.Operands[2].Write(ctx, value)
	return
}

func execOut(ctx *Context, inst *Instruction) (err error) {
	port, address, err := readPort(ctx, inst)
	if err != nil {
		return
	}
	value, err := inst.Operands[2].Read(ctx)
	if err != nil {
		return
	}

	device := ctx.Cpu.Devices.Get(port)
	if device == nil {
		log.Printf("out: %v", f("no device on port 0x%x", port))
		return
	}
	device.Write(address, value)
	return
}
