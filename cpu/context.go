package cpu

// Context is the state of one instruction step.
//
// Fetches read the instruction stream at Ip:CodeSegment and advance Length.
// A jump requested during execution is only applied after the instruction
// completes.
type Context struct {
	Cpu         *Cpu
	Ip          uint64 // Address of the opcode byte.
	CodeSegment uint64
	Length      int // Bytes fetched so far.

	jump        bool
	jumpTarget  uint64
	jumpFar     bool
	jumpSegment uint64
}

// NewContext starts a step at the address.
func NewContext(cpu *Cpu, ip, codeSegment uint64) *Context {
	return &Context{Cpu: cpu, Ip: ip, CodeSegment: codeSegment}
}

func (ctx *Context) fetch(width int) (value uint64) {
	value = ctx.Cpu.Memory.readLE(ctx.Ip+uint64(ctx.Length), ctx.CodeSegment, width)
	ctx.Length += width
	return
}

func (ctx *Context) FetchByte() uint8   { return uint8(ctx.fetch(1)) }
func (ctx *Context) FetchWord() uint16  { return uint16(ctx.fetch(2)) }
func (ctx *Context) FetchDword() uint32 { return uint32(ctx.fetch(4)) }
func (ctx *Context) FetchQword() uint64 { return ctx.fetch(8) }

// Next is the address following the instruction.
func (ctx *Context) Next() uint64 {
	return ctx.Ip + uint64(ctx.Length)
}

// Jump requests a transfer to target in the current code segment.
func (ctx *Context) Jump(target uint64) {
	ctx.jump = true
	ctx.jumpTarget = target
}

// JumpFar requests a transfer to target:segment.
func (ctx *Context) JumpFar(target, segment uint64) {
	ctx.Jump(target)
	ctx.jumpFar = true
	ctx.jumpSegment = segment
}

// commit applies the pending jump to the registers.
func (ctx *Context) commit() {
	if !ctx.jump {
		return
	}
	regs := &ctx.Cpu.Registers
	regs.Write(REG_RIP, ctx.jumpTarget)
	if ctx.jumpFar {
		_ = regs.WriteRegion(REG_CS, REGION_WORD, ctx.jumpSegment)
	}
}
