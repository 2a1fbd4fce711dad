package cpu

import (
	"math/bits"
)

// aluState holds the inputs and outputs of one arithmetic operation.
//
// Inputs are masked to the operation width before the operation runs.
// ZF, SF and PF always follow the result. CF and OF are only written when
// the operation sets setCF and setOF.
type aluState struct {
	size  Size
	a, b  uint64
	carry bool // CF on entry

	result uint64
	cf, of bool
	setCF  bool
	setOF  bool
	skip   bool // Leave the destination and the flags alone.
}

type aluFunc func(alu *aluState) error

func (alu *aluState) mask() uint64 {
	return alu.size.Mask()
}

func (alu *aluState) sign() uint64 {
	return alu.size.SignBit()
}

func (alu *aluState) bits() uint {
	return alu.size.Bits()
}

func (alu *aluState) msb(value uint64) bool {
	return value&alu.sign() != 0
}

func (alu *aluState) carryIn() uint64 {
	if alu.carry {
		return 1
	}
	return 0
}

// arith records CF and OF.
func (alu *aluState) arith(cf, of bool) {
	alu.cf, alu.of = cf, of
	alu.setCF, alu.setOF = true, true
}

// apply writes the flags for the result.
func (alu *aluState) apply(regs *Registers) {
	if alu.skip {
		return
	}
	result := alu.result & alu.mask()
	regs.SetFlag(FLAG_ZF, result == 0)
	regs.SetFlag(FLAG_SF, alu.msb(result))
	regs.SetFlag(FLAG_PF, bits.OnesCount64(result)%2 == 0)
	if alu.setCF {
		regs.SetFlag(FLAG_CF, alu.cf)
	}
	if alu.setOF {
		regs.SetFlag(FLAG_OF, alu.of)
	}
}

func aluAdd(alu *aluState) error {
	a, b, m := alu.a, alu.b, alu.mask()
	r := (a + b) & m
	alu.result = r
	alu.arith(r < a, (a^r)&(b^r)&alu.sign() != 0)
	return nil
}

func aluAdc(alu *aluState) error {
	a, b, m := alu.a, alu.b, alu.mask()
	r := (a + b + alu.carryIn()) & m
	alu.result = r
	alu.arith(r < a || (alu.carry && r == a), (a^r)&(b^r)&alu.sign() != 0)
	return nil
}

func aluSub(alu *aluState) error {
	a, b, m := alu.a, alu.b, alu.mask()
	r := (a - b) & m
	alu.result = r
	alu.arith(a < b, (a^b)&(a^r)&alu.sign() != 0)
	return nil
}

func aluSbb(alu *aluState) error {
	a, b, m := alu.a, alu.b, alu.mask()
	r := (a - b - alu.carryIn()) & m
	alu.result = r
	alu.arith(a < b || (alu.carry && a == b), (a^b)&(a^r)&alu.sign() != 0)
	return nil
}

func aluInc(alu *aluState) error {
	a, m := alu.a, alu.mask()
	alu.result = (a + 1) & m
	alu.arith(a == m, a == m>>1)
	return nil
}

func aluDec(alu *aluState) error {
	a, m := alu.a, alu.mask()
	alu.result = (a - 1) & m
	alu.arith(a == 0, a == alu.sign())
	return nil
}

func aluNeg(alu *aluState) error {
	a, m := alu.a, alu.mask()
	alu.result = -a & m
	alu.arith(a != 0, a == alu.sign())
	return nil
}

func aluMul(alu *aluState) error {
	hi, lo := bits.Mul64(alu.a, alu.b)
	alu.result = lo & alu.mask()
	overflow := hi != 0 || lo != alu.result
	alu.arith(overflow, overflow)
	return nil
}

func aluImul(alu *aluState) error {
	sa := alu.size.SignExtend(alu.a)
	sb := alu.size.SignExtend(alu.b)

	// Signed 128-bit product from the unsigned one.
	hi, lo := bits.Mul64(uint64(sa), uint64(sb))
	if sa < 0 {
		hi -= uint64(sb)
	}
	if sb < 0 {
		hi -= uint64(sa)
	}

	alu.result = lo & alu.mask()
	ext := alu.size.SignExtend(alu.result)
	var extHi uint64
	if ext < 0 {
		extHi = ^uint64(0)
	}
	overflow := uint64(ext) != lo || hi != extHi
	alu.arith(overflow, overflow)
	return nil
}

func aluDiv(alu *aluState) error {
	if alu.b == 0 {
		return ErrDivideByZero
	}
	alu.result = alu.a / alu.b
	return nil
}

func aluIdiv(alu *aluState) error {
	if alu.b == 0 {
		return ErrDivideByZero
	}
	sa := alu.size.SignExtend(alu.a)
	sb := alu.size.SignExtend(alu.b)
	alu.result = uint64(sa/sb) & alu.mask()
	return nil
}

func aluMod(alu *aluState) error {
	if alu.b == 0 {
		return ErrDivideByZero
	}
	alu.result = alu.a % alu.b
	return nil
}

func aluImod(alu *aluState) error {
	if alu.b == 0 {
		return ErrDivideByZero
	}
	sa := alu.size.SignExtend(alu.a)
	sb := alu.size.SignExtend(alu.b)
	alu.result = uint64(sa%sb) & alu.mask()
	return nil
}

func aluAnd(alu *aluState) error {
	alu.result = alu.a & alu.b
	alu.arith(false, false)
	return nil
}

func aluOr(alu *aluState) error {
	alu.result = alu.a | alu.b
	alu.arith(false, false)
	return nil
}

func aluXor(alu *aluState) error {
	alu.result = alu.a ^ alu.b
	alu.arith(false, false)
	return nil
}

func aluNot(alu *aluState) error {
	alu.result = ^alu.a & alu.mask()
	return nil
}

// count is the shift count, masked as x86 does: 6 bits for qword, 5 for
// the rest. A zero count changes nothing.
func (alu *aluState) count() (count uint) {
	count = uint(alu.b & 0x1f)
	if alu.size == SIZE_QWORD {
		count = uint(alu.b & 0x3f)
	}
	if count == 0 {
		alu.skip = true
	}
	return
}

func aluShl(alu *aluState) error {
	count := alu.count()
	if alu.skip {
		return nil
	}
	a, w := alu.a, alu.bits()
	r := (a << count) & alu.mask()
	cf := count <= w && (a>>(w-count))&1 != 0
	alu.result = r
	alu.arith(cf, alu.msb(r) != cf)
	return nil
}

func aluShr(alu *aluState) error {
	count := alu.count()
	if alu.skip {
		return nil
	}
	a := alu.a
	alu.result = a >> count
	alu.arith((a>>(count-1))&1 != 0, count == 1 && alu.msb(a))
	return nil
}

func aluSar(alu *aluState) error {
	count := alu.count()
	if alu.skip {
		return nil
	}
	sa := alu.size.SignExtend(alu.a)
	alu.result = uint64(sa>>count) & alu.mask()
	alu.arith((sa>>(count-1))&1 != 0, false)
	return nil
}

func aluRol(alu *aluState) error {
	count := alu.count()
	if alu.skip {
		return nil
	}
	a, w := alu.a, alu.bits()
	n := count % w
	r := a
	if n != 0 {
		r = ((a << n) | (a >> (w - n))) & alu.mask()
	}
	cf := r&1 != 0
	alu.result = r
	alu.arith(cf, alu.msb(r) != cf)
	return nil
}

func aluRor(alu *aluState) error {
	count := alu.count()
	if alu.skip {
		return nil
	}
	a, w := alu.a, alu.bits()
	n := count % w
	r := a
	if n != 0 {
		r = ((a >> n) | (a << (w - n))) & alu.mask()
	}
	cf := alu.msb(r)
	alu.result = r
	alu.arith(cf, cf != alu.msb(r<<1))
	return nil
}

func aluRcl(alu *aluState) error {
	count := alu.count()
	if alu.skip {
		return nil
	}
	r, c := alu.a, alu.carry
	for range count % (alu.bits() + 1) {
		out := alu.msb(r)
		r = (r << 1) & alu.mask()
		if c {
			r |= 1
		}
		c = out
	}
	alu.result = r
	alu.arith(c, alu.msb(r) != c)
	return nil
}

func aluRcr(alu *aluState) error {
	count := alu.count()
	if alu.skip {
		return nil
	}
	r, c := alu.a, alu.carry
	for range count % (alu.bits() + 1) {
		out := r&1 != 0
		r >>= 1
		if c {
			r |= alu.sign()
		}
		c = out
	}
	alu.result = r
	alu.arith(c, alu.msb(r) != alu.msb(r<<1))
	return nil
}
