package cpu

// Memory is the flat byte store of the machine.
//
// An access at address:segment touches index (address + segment*16) taken
// modulo 2^32. Single-cell accesses past the end wrap modulo the memory size.
// Bulk accesses stop at the end of memory.
type Memory struct {
	Data []byte
}

// NewMemory allocates zeroed memory.
func NewMemory(size uint32) *Memory {
	return &Memory{Data: make([]byte, size)}
}

// Size of the memory in bytes.
func (mem *Memory) Size() uint64 {
	return uint64(len(mem.Data))
}

func (mem *Memory) index(address, segment uint64) uint64 {
	return uint64(uint32(address + (segment << 4)))
}

func (mem *Memory) cell(index uint64) *byte {
	return &mem.Data[index%uint64(len(mem.Data))]
}

func (mem *Memory) readLE(address, segment uint64, width int) (value uint64) {
	if len(mem.Data) == 0 {
		return
	}
	index := mem.index(address, segment)
	for n := range width {
		value |= uint64(*mem.cell(index + uint64(n))) << (8 * n)
	}
	return
}

func (mem *Memory) writeLE(address, segment uint64, width int, value uint64) {
	if len(mem.Data) == 0 {
		return
	}
	index := mem.index(address, segment)
	for n := range width {
		*mem.cell(index + uint64(n)) = byte(value >> (8 * n))
	}
}

func (mem *Memory) ReadByte(address, segment uint64) uint64 {
	return mem.readLE(address, segment, 1)
}

func (mem *Memory) ReadWord(address, segment uint64) uint64 {
	return mem.readLE(address, segment, 2)
}

func (mem *Memory) ReadDword(address, segment uint64) uint64 {
	return mem.readLE(address, segment, 4)
}

func (mem *Memory) ReadQword(address, segment uint64) uint64 {
	return mem.readLE(address, segment, 8)
}

func (mem *Memory) WriteByte(address, segment, value uint64) {
	mem.writeLE(address, segment, 1, value)
}

func (mem *Memory) WriteWord(address, segment, value uint64) {
	mem.writeLE(address, segment, 2, value)
}

func (mem *Memory) WriteDword(address, segment, value uint64) {
	mem.writeLE(address, segment, 4, value)
}

func (mem *Memory) WriteQword(address, segment, value uint64) {
	mem.writeLE(address, segment, 8, value)
}

// ReadSized reads a value of the given width.
func (mem *Memory) ReadSized(address, segment uint64, size Size) uint64 {
	return mem.readLE(address, segment, size.Bytes())
}

// WriteSized writes the low bits of value for the given width.
func (mem *Memory) WriteSized(address, segment uint64, size Size, value uint64) {
	mem.writeLE(address, segment, size.Bytes(), value)
}

// Read copies up to length bytes. The result is short if the range crosses
// the end of memory.
func (mem *Memory) Read(address, segment uint64, length int) (data []byte) {
	index := mem.index(address, segment)
	if index >= mem.Size() || length <= 0 {
		return
	}
	end := min(index+uint64(length), mem.Size())
	data = make([]byte, end-index)
	copy(data, mem.Data[index:end])
	return
}

// Write copies data into memory, returning the number of bytes that fit.
func (mem *Memory) Write(address, segment uint64, data []byte) (n int) {
	index := mem.index(address, segment)
	if index >= mem.Size() {
		return
	}
	n = copy(mem.Data[index:], data)
	return
}

// Clear zeroes all of memory.
func (mem *Memory) Clear() {
	clear(mem.Data)
}
