package io

import (
	"encoding/binary"
	"fmt"
	"iter"
	"log"
)

// ROM_LENGTH is the address that reads the image length.
const ROM_LENGTH = ^uint64(0)

// Rom is a read-only byte image. A read at an offset returns the
// little-endian qword there, zero filled past the end.
type Rom struct {
	Binding
	Data []byte
}

var _ Device = (*Rom)(nil)

func (rc *Rom) Name() string {
	return "rom"
}

// Defines returns an iter of defines for the rom.
func (rc *Rom) Defines() iter.Seq2[string, string] {
	return rc.Binding.defines("ROM", map[string]string{
		"ROM_LENGTH": fmt.Sprintf("0x%x", ROM_LENGTH),
	})
}

// Rewind does nothing; the image is fixed.
func (rc *Rom) Rewind() {
}

func (rc *Rom) Read(address uint64) (value uint64) {
	if address == ROM_LENGTH {
		value = uint64(len(rc.Data))
		return
	}
	if address >= uint64(len(rc.Data)) {
		return
	}

	var qword [8]byte
	copy(qword[:], rc.Data[address:])
	value = binary.LittleEndian.Uint64(qword[:])
	return
}

func (rc *Rom) Write(address uint64, value uint64) {
	log.Printf("rom: %v", f("write 0x%x: %v", address, ErrReadOnly))
}
