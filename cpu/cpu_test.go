package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const testMemorySize = 0x1_0000

// loadCpu assembles code at the entry point of a new CPU.
func loadCpu(t *testing.T, code string) (cpu *Cpu) {
	cpu = NewCpu(testMemorySize)
	asm := &Assembler{BaseAddress: cpu.Entry()}
	prog, err := asm.Assemble(code)
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	cpu.Memory.Write(cpu.Entry(), 0, prog.Binary())
	return
}

// runCpu steps until the CPU is interrupted, a step fails, or the limit.
func runCpu(cpu *Cpu, limit int) (err error) {
	for range limit {
		if cpu.Interrupted {
			return
		}
		err = cpu.Step()
		if err != nil {
			return
		}
	}
	return
}

func TestCpu_Reset(t *testing.T) {
	assert := assert.New(t)

	cpu := NewCpu(0x3000)
	assert.Equal(uint64(0x1000), cpu.Registers.Read(REG_RIP))
	assert.Equal(uint64(0x2fff), cpu.Registers.Read(REG_RSP))
	assert.Equal(uint64(0x2fff), cpu.Registers.Read(REG_RBP))
	assert.Equal(uint64(0), cpu.Registers.Read(REG_CS))
	assert.Equal(uint64(0), cpu.Registers.Read(REG_FLAGS))

	cpu.Registers.Write(REG_RAX, 5)
	cpu.Memory.WriteByte(0, 0, 1)
	cpu.Steps = 3
	cpu.Interrupt(0)
	cpu.Reset()
	assert.Equal(uint64(0), cpu.Registers.Read(REG_RAX))
	assert.Equal(uint64(0), cpu.Memory.ReadByte(0, 0))
	assert.Equal(uint64(0), cpu.Steps)
	assert.False(cpu.Interrupted)

	defines := map[string]string{}
	for key, value := range cpu.Defines() {
		defines[key] = value
	}
	assert.Equal("0x3000", defines["MEMORY_SIZE"])
	assert.Equal("0x1000", defines["ENTRY"])
	assert.Equal("0x2fff", defines["STACK_TOP"])
}

func TestCpu_Programs(t *testing.T) {
	assert := assert.New(t)

	top := uint64(testMemorySize - 1)

	table := []struct {
		name     string
		code     string
		expected map[Register]uint64
	}{
		{"add", `
			MOV eax, $5;
			ADD eax, $3;
			INT $0;`,
			map[Register]uint64{REG_RAX: 8},
		},
		{"compare", `
			MOV rax, $3;
			CMP rax, $5;
			JL $less;
			MOV rbx, $1;
			INT 0;
			$less: MOV rbx, $2;
			INT 0;`,
			map[Register]uint64{REG_RBX: 2},
		},
		{"loop", `
			MOV rcx, $10;
			MOV rax, $0;
			$loop: ADD rax, rcx;
			DEC rcx;
			JNZ $loop;
			INT 0;`,
			map[Register]uint64{REG_RAX: 55, REG_RCX: 0},
		},
		{"call", `
			MOV rax, $1;
			CALL $func;
			ADD rax, $100;
			INT 0;
			$func: ADD rax, $10;
			RET;`,
			map[Register]uint64{REG_RAX: 111, REG_RSP: top, REG_RBP: top},
		},
		{"call_args", `
			PUSH $7;
			CALL $func;
			INT 0;
			$func: MOV rax, qword [rbp + 16];
			RET 8;`,
			map[Register]uint64{REG_RAX: 7, REG_RSP: top, REG_RBP: top},
		},
		{"push_pop", `
			MOV rax, $0x1234;
			PUSH rax;
			POP rbx;
			INT 0;`,
			map[Register]uint64{REG_RBX: 0x1234, REG_RSP: top},
		},
		{"pusha", `
			MOV rax, $1;
			MOV r15, $2;
			PUSHA;
			MOV rax, $0;
			MOV r15, $0;
			POPA;
			INT 0;`,
			map[Register]uint64{REG_RAX: 1, REG_R15: 2, REG_RSP: top},
		},
		{"pushf", `
			MOV al, byte 0xff;
			ADD al, byte 1;
			PUSHF;
			POP bx;
			INT 0;`,
			map[Register]uint64{REG_RBX: 1<<FLAG_CF | 1<<FLAG_PF | 1<<FLAG_ZF},
		},
		{"xchg", `
			MOV rax, $1;
			MOV rbx, $2;
			XCHG rax, rbx;
			INT 0;`,
			map[Register]uint64{REG_RAX: 2, REG_RBX: 1},
		},
		{"lea", `
			MOV rbx, $0x100;
			MOV rcx, $2;
			LEA rax, [rbx + rcx * 8 + 4];
			INT 0;`,
			map[Register]uint64{REG_RAX: 0x114},
		},
		{"memory", `
			MOV qword [0x200], $0x55;
			MOV rax, qword [0x200];
			MOV word [0x200], $0xffff;
			MOV rbx, qword [0x200];
			INT 0;`,
			map[Register]uint64{REG_RAX: 0x55, REG_RBX: 0xffff},
		},
		{"segment", `
			MOV ds, $0x10;
			MOV byte [0x0], $0x77;
			MOV ds, $0;
			MOV al, byte [0x100];
			INT 0;`,
			map[Register]uint64{REG_RAX: 0x77},
		},
		{"mul_div", `
			MOV rax, $6;
			MUL rax, $7;
			MOV rbx, $-7;
			MOV rcx, rbx;
			IDIV rbx, $2;
			IMOD rcx, $2;
			INT 0;`,
			map[Register]uint64{REG_RAX: 42, REG_RBX: ^uint64(2), REG_RCX: ^uint64(0)},
		},
		{"shift", `
			MOV eax, $1;
			SHL eax, $4;
			MOV ebx, $0x80000000;
			SAR ebx, $4;
			INT 0;`,
			map[Register]uint64{REG_RAX: 16, REG_RBX: 0xf8000000},
		},
		{"unsigned_jump", `
			MOV rax, $1;
			CMP rax, $-1;
			JA $above;
			MOV rbx, $1;
			INT 0;
			$above: MOV rbx, $2;
			INT 0;`,
			map[Register]uint64{REG_RBX: 1},
		},
	}

	for _, entry := range table {
		cpu := loadCpu(t, entry.code)
		err := runCpu(cpu, 1000)
		assert.NoError(err, entry.name)
		assert.True(cpu.IsExiting(), entry.name)
		for reg, value := range entry.expected {
			assert.Equal(value, cpu.Registers.Read(reg), entry.name+" "+reg.String())
		}
	}
}

func TestCpu_ByteWrap(t *testing.T) {
	assert := assert.New(t)

	cpu := loadCpu(t, "MOV al, byte 0xff; ADD al, byte 1; INT 0")
	assert.NoError(runCpu(cpu, 10))

	assert.Equal(uint64(0), cpu.Registers.Read(REG_RAX))
	assert.True(cpu.Registers.Flag(FLAG_ZF))
	assert.True(cpu.Registers.Flag(FLAG_CF))
	assert.False(cpu.Registers.Flag(FLAG_SF))
	assert.Equal(uint64(3), cpu.Steps)
}

func TestCpu_LoadAtZero(t *testing.T) {
	assert := assert.New(t)

	bin, err := Assemble("MOV eax, $5 ; ADD eax, $3 ; INT $0", 0, ".", nil)
	assert.NoError(err)

	cpu := NewCpu(testMemorySize)
	cpu.Memory.Write(0, 0, bin)
	cpu.Registers.Write(REG_RIP, 0)
	assert.NoError(runCpu(cpu, 10))

	assert.True(cpu.IsExiting())
	assert.Equal(uint64(8), cpu.Registers.Read(REG_RAX))
	assert.Equal(uint64(len(bin)), cpu.Registers.Read(REG_RIP))
}

func TestCpu_InvalidOpcode(t *testing.T) {
	assert := assert.New(t)

	cpu := NewCpu(testMemorySize)
	entry := cpu.Entry()
	cpu.Memory.WriteByte(entry, 0, 0xff)

	err := cpu.Step()
	assert.ErrorIs(err, ErrOpcodeUnknown(0xff))
	var decodeErr *ErrDecode
	if assert.ErrorAs(err, &decodeErr) {
		assert.Equal(entry, decodeErr.Address)
	}
	assert.Equal(entry+1, cpu.Registers.Read(REG_RIP))
	assert.Equal(uint64(0), cpu.Steps)

	// A bad operand skips only the opcode byte.
	cpu.Reset()
	cpu.Memory.Write(entry, 0, []byte{byte(OP_INC), 0xc3, 0x00})
	err = cpu.Step()
	assert.ErrorIs(err, ErrTypeInvalid)
	assert.Equal(entry+1, cpu.Registers.Read(REG_RIP))
	assert.Equal(uint64(0), cpu.Steps)
}

func TestCpu_ExecuteError(t *testing.T) {
	assert := assert.New(t)

	cpu := loadCpu(t, "MOV rax, $1; DIV rax, $0; INT 0")
	assert.NoError(cpu.Step())

	ip := cpu.Registers.Read(REG_RIP)
	inst, length, err := cpu.InstructionAt(ip, 0)
	assert.NoError(err)
	assert.Equal(OP_DIV, inst.Opcode)

	err = cpu.Step()
	assert.ErrorIs(err, ErrDivideByZero)
	var execErr *ErrExecute
	if assert.ErrorAs(err, &execErr) {
		assert.Equal(ip, execErr.Address)
		assert.Equal(OP_DIV, execErr.Instruction.Opcode)
	}
	assert.Equal(ip+uint64(length), cpu.Registers.Read(REG_RIP))
	assert.Equal(uint64(1), cpu.Registers.Read(REG_RAX))
	assert.Equal(uint64(1), cpu.Steps)
}

func TestCpu_CallTargetError(t *testing.T) {
	assert := assert.New(t)

	cpu := NewCpu(testMemorySize)
	sp := cpu.Stack.Pointer()
	entries := len(cpu.Stack.History.Entries)

	inst := Instruction{
		Opcode:   OP_CALL,
		Operands: []Value{{Type: ValueType(0xff), Size: SIZE_QWORD}},
	}
	ctx := NewContext(cpu, cpu.Entry(), 0)
	err := execCall(ctx, &inst)
	assert.ErrorIs(err, ErrTypeInvalid)
	assert.Equal(sp, cpu.Stack.Pointer())
	assert.Equal(entries, len(cpu.Stack.History.Entries))
}

func TestCpu_JumpAfterExecute(t *testing.T) {
	assert := assert.New(t)

	// The jump target is computed from the registers, not from the
	// instruction's own length.
	cpu := loadCpu(t, "MOV rbx, $target; JMP rbx; INT 1; $target: INT 0")
	assert.NoError(runCpu(cpu, 10))
	assert.True(cpu.IsExiting())
	assert.Equal(uint64(3), cpu.Steps)
}

type testListener struct {
	codes  []uint8
	handle bool
}

func (tl *testListener) OnInterrupt(cpu *Cpu, code uint8) bool {
	tl.codes = append(tl.codes, code)
	if tl.handle {
		cpu.Registers.Write(REG_RAX, uint64(code))
	}
	return tl.handle
}

func TestCpu_Interrupt(t *testing.T) {
	assert := assert.New(t)

	cpu := NewCpu(testMemorySize)
	first := &testListener{}
	second := &testListener{handle: true}
	cpu.AddInterruptListener(first)
	cpu.AddInterruptListener(second)

	cpu.Interrupt(3)
	assert.False(cpu.Interrupted)
	assert.Equal([]uint8{3}, first.codes)
	assert.Equal([]uint8{3}, second.codes)
	assert.Equal(uint64(3), cpu.Registers.Read(REG_RAX))

	cpu.Interrupt(0)
	assert.True(cpu.Interrupted)
	assert.True(cpu.IsExiting())
	assert.Equal([]uint8{3}, first.codes)

	cpu.ResetInterrupt()
	cpu.RemoveInterruptListener(second)
	cpu.Interrupt(4)
	assert.True(cpu.Interrupted)
	assert.False(cpu.IsExiting())
	assert.Equal(uint8(4), cpu.InterruptCode)
	assert.Equal([]uint8{3, 4}, first.codes)
	assert.Equal([]uint8{3}, second.codes)
}

type testDevice struct {
	name  string
	data  map[uint64]uint64
	port  uint64
	bound bool
}

func (td *testDevice) Name() string { return td.name }

func (td *testDevice) Read(address uint64) uint64 { return td.data[address] }

func (td *testDevice) Write(address uint64, value uint64) {
	if td.data == nil {
		td.data = make(map[uint64]uint64)
	}
	td.data[address] = value
}

func (td *testDevice) BindPort(port uint64) {
	td.port = port
	td.bound = true
}

func (td *testDevice) UnbindPort() {
	td.bound = false
}

func TestDevices(t *testing.T) {
	assert := assert.New(t)

	devs := &Devices{}
	a := &testDevice{name: "a"}
	b := &testDevice{name: "b"}

	assert.NoError(devs.Add(5, a))
	assert.NoError(devs.Add(5, a))
	assert.ErrorIs(devs.Add(5, b), ErrPortInUse)
	assert.NoError(devs.Add(2, b))
	assert.True(a.bound)
	assert.Equal(uint64(5), a.port)

	assert.Equal(Device(a), devs.Get(5))
	assert.Nil(devs.Get(6))

	var ports []uint64
	for port := range devs.All() {
		ports = append(ports, port)
	}
	assert.Equal([]uint64{2, 5}, ports)

	assert.True(devs.Reroute(5, 7))
	assert.Equal(uint64(7), a.port)
	assert.False(devs.Reroute(5, 8))
	assert.False(devs.Reroute(7, 2))
	assert.True(devs.Reroute(7, 7))

	port, ok := devs.Port(a)
	assert.True(ok)
	assert.Equal(uint64(7), port)

	assert.True(devs.Remove(7))
	assert.False(a.bound)
	assert.False(devs.Remove(7))
	_, ok = devs.Port(a)
	assert.False(ok)
}

func TestCpu_InOut(t *testing.T) {
	assert := assert.New(t)

	cpu := loadCpu(t, `
		OUT byte 1, byte 0, $0x41;
		IN byte 1, byte 2, rax;
		IN byte 9, byte 0, rbx;
		OUT byte 9, byte 0, rbx;
		INT 0;`)
	dev := &testDevice{data: map[uint64]uint64{2: 0x99}}
	assert.NoError(cpu.Devices.Add(1, dev))
	cpu.Registers.Write(REG_RBX, 0x55)

	assert.NoError(runCpu(cpu, 10))
	assert.Equal(uint64(0x41), dev.data[0])
	assert.Equal(uint64(0x99), cpu.Registers.Read(REG_RAX))
	assert.Equal(uint64(0), cpu.Registers.Read(REG_RBX))
}

func TestCpu_String(t *testing.T) {
	assert := assert.New(t)

	cpu := NewCpu(testMemorySize)
	cpu.Registers.SetFlag(FLAG_ZF, true)
	cpu.Registers.SetFlag(FLAG_CF, true)

	assert.Equal("zf cf", cpu.FlagsString())
	assert.Contains(cpu.String(), "  rax: 00000000_00000000\n")
	assert.Contains(cpu.String(), "  set: [zf cf]\n")
}
