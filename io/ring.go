package io

import (
	"encoding/binary"
	"io"
)

// RING_CAPACITY is the default capacity in bytes for a new ring.
const RING_CAPACITY = 65536

// Ring represents sequential byte storage with separate read and write
// positions. Data is transferred a little-endian qword at a time.
type Ring struct {
	Capacity int // Capacity in bytes. Zero means RING_CAPACITY.

	WriteIndex int
	ReadIndex  int
	Data       []uint8
}

// Rewind resets the ring's read position to the start and write position to the end
// of existing data.
func (ring *Ring) Rewind() {
	if ring.Capacity == 0 {
		ring.Capacity = max(RING_CAPACITY, len(ring.Data))
	}

	ring.ReadIndex = 0
	ring.WriteIndex = len(ring.Data)
}

// Unmarshal loads ring data from a reader, replacing any existing data.
func (ring *Ring) Unmarshal(file io.Reader) (err error) {
	data, err := io.ReadAll(file)
	if err != nil {
		return
	}

	ring.Data = data
	ring.Capacity = max(ring.Capacity, len(data))
	ring.ReadIndex = 0
	ring.WriteIndex = len(ring.Data)

	return
}

// Marshal writes the ring's data to a writer up to the current write position.
func (ring *Ring) Marshal(file io.Writer) (err error) {
	_, err = file.Write(ring.Data[:ring.WriteIndex])

	return
}

// Receive reads the qword at the read position. A qword that crosses the
// write position is zero filled. Returns ErrChannelEmpty at the write
// position.
func (ring *Ring) Receive() (value uint64, err error) {
	if ring.ReadIndex >= ring.WriteIndex {
		err = ErrChannelEmpty
		return
	}

	var qword [8]byte
	n := copy(qword[:], ring.Data[ring.ReadIndex:ring.WriteIndex])
	ring.ReadIndex += n
	value = binary.LittleEndian.Uint64(qword[:])

	return
}

// Send writes a qword at the write position.
// Returns ErrChannelFull if the ring would exceed its capacity.
func (ring *Ring) Send(value uint64) (err error) {
	if ring.WriteIndex+8 > ring.Capacity {
		err = ErrChannelFull
		return
	}

	if end := ring.WriteIndex + 8; end > len(ring.Data) {
		ring.Data = append(ring.Data, make([]uint8, end-len(ring.Data))...)
	}
	binary.LittleEndian.PutUint64(ring.Data[ring.WriteIndex:], value)
	ring.WriteIndex += 8

	return
}

// Seek moves the read and write positions. The write position is limited
// to the stored data, the read position to the write position.
func (ring *Ring) Seek(read, write uint64) {
	ring.WriteIndex = int(min(write, uint64(len(ring.Data))))
	ring.ReadIndex = int(min(read, uint64(ring.WriteIndex)))
}
