package cpu

import (
	"log"
)

// StackEntry records one push for display.
type StackEntry struct {
	Value   uint64
	Address uint64
	Size    Size
}

// StackHistory is the list of pushes still believed to be on the stack.
// It is only used to show frame boundaries, never to run programs.
type StackHistory struct {
	Entries  []StackEntry
	Revision uint64 // Incremented on every change.
	Mismatch int    // Pops that did not match the last push.
}

func (sh *StackHistory) push(entry StackEntry) {
	sh.Entries = append(sh.Entries, entry)
	sh.Revision++
}

// pop drops entries at or below the popped address.
func (sh *StackHistory) pop(address uint64) {
	if len(sh.Entries) == 0 || sh.Entries[len(sh.Entries)-1].Address != address {
		sh.Mismatch++
		log.Printf("stack: %v", f("stack may be corrupted at 0x%x", address))
	}
	sh.trim(func(entry StackEntry) bool { return entry.Address <= address })
}

// drop removes entries below the new stack pointer.
func (sh *StackHistory) drop(address uint64) {
	sh.trim(func(entry StackEntry) bool { return entry.Address < address })
}

func (sh *StackHistory) trim(gone func(entry StackEntry) bool) {
	n := len(sh.Entries)
	for n > 0 && gone(sh.Entries[n-1]) {
		n--
	}
	if n != len(sh.Entries) {
		sh.Entries = sh.Entries[:n]
		sh.Revision++
	}
}

// Reset forgets all entries.
func (sh *StackHistory) Reset() {
	sh.Entries = sh.Entries[:0]
	sh.Mismatch = 0
	sh.Revision++
}

// Stack is a view over memory at SS:RSP, growing down.
type Stack struct {
	Memory    *Memory
	Registers *Registers
	History   StackHistory
}

func (s *Stack) Pointer() uint64 {
	return s.Registers.Read(REG_RSP)
}

func (s *Stack) SetPointer(value uint64) {
	s.Registers.Write(REG_RSP, value)
}

func (s *Stack) BasePointer() uint64 {
	return s.Registers.Read(REG_RBP)
}

func (s *Stack) SetBasePointer(value uint64) {
	s.Registers.Write(REG_RBP, value)
}

// Segment is the WORD view of SS.
func (s *Stack) Segment() uint64 {
	return s.Registers.Read(REG_SS) & 0xffff
}

// Push stores the low bits of value below the stack pointer.
func (s *Stack) Push(value uint64, size Size) {
	sp := s.Pointer() - uint64(size.Bytes())
	s.SetPointer(sp)
	s.Memory.WriteSized(sp, s.Segment(), size, value)
	s.History.push(StackEntry{Value: value & size.Mask(), Address: sp, Size: size})
}

// Pop loads a value at the stack pointer and releases it.
func (s *Stack) Pop(size Size) (value uint64) {
	sp := s.Pointer()
	s.History.pop(sp)
	value = s.Memory.ReadSized(sp, s.Segment(), size)
	s.SetPointer(sp + uint64(size.Bytes()))
	return
}

func (s *Stack) PushQword(value uint64) {
	s.Push(value, SIZE_QWORD)
}

func (s *Stack) PopQword() uint64 {
	return s.Pop(SIZE_QWORD)
}

// Drop releases count bytes without reading them.
func (s *Stack) Drop(count uint64) {
	sp := s.Pointer() + count
	s.SetPointer(sp)
	s.History.drop(sp)
}

// ResolvedStackEntry is a span of stack memory. Entry is nil for spans that
// match no recorded push, such as locals in a frame.
type ResolvedStackEntry struct {
	From  uint64
	To    uint64 // Inclusive
	Entry *StackEntry
}

// Resolve splits the memory from the stack pointer to the top of memory into
// recorded pushes and the gaps between them.
func (s *Stack) Resolve() (spans []ResolvedStackEntry) {
	sp := s.Pointer()
	end := s.Memory.Size()
	history := s.History.Entries

	for sp+1 < end {
		var next *StackEntry
		for len(history) > 0 {
			last := history[len(history)-1]
			if last.Address >= sp {
				next = &last
				break
			}
			history = history[:len(history)-1]
		}

		if next != nil && next.Address == sp {
			history = history[:len(history)-1]
			width := uint64(next.Size.Bytes())
			spans = append(spans, ResolvedStackEntry{From: sp, To: sp + width - 1, Entry: next})
			sp += width
			continue
		}

		stop := end
		if next != nil {
			stop = next.Address
		}
		spans = append(spans, ResolvedStackEntry{From: sp, To: stop - 1})
		sp = stop
	}

	return
}
