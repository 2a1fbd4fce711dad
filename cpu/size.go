package cpu

// Size is the data width of an operand.
type Size byte

const (
	SIZE_BYTE  = Size(0) // byte
	SIZE_WORD  = Size(1) // word
	SIZE_DWORD = Size(2) // dword
	SIZE_QWORD = Size(3) // qword
)

var sizeNames = [...]string{"byte", "word", "dword", "qword"}

func (size Size) String() string {
	if int(size) < len(sizeNames) {
		return sizeNames[size]
	}
	return "size?"
}

// Bytes in the width.
func (size Size) Bytes() int {
	return 1 << size
}

// Bits in the width.
func (size Size) Bits() uint {
	return 8 << size
}

// Mask of the width's bits.
func (size Size) Mask() uint64 {
	return ^uint64(0) >> (64 - size.Bits())
}

// SignBit is the most significant bit of the width.
func (size Size) SignBit() uint64 {
	return 1 << (size.Bits() - 1)
}

// SignExtend interprets the low bits of value as a signed number.
func (size Size) SignExtend(value uint64) int64 {
	shift := 64 - size.Bits()
	return int64(value<<shift) >> shift
}

func maxSize(a, b Size) Size {
	if a > b {
		return a
	}
	return b
}

// ParseSize looks up a width by name, such as "dword".
func ParseSize(word string) (size Size, ok bool) {
	for n, name := range sizeNames {
		if name == word {
			return Size(n), true
		}
	}
	return
}
