package io

import (
	"fmt"
	"iter"
	"log"
)

const (
	TEMP_DATA = 0 // Queue or dequeue a qword.
	TEMP_SIZE = 1 // Read the queued count, write to empty.

	TEMP_CAPACITY = 4096 // Default capacity in qwords.
)

// Temporary implements a circular buffer for temporary qword storage.
// It operates as a FIFO queue with a fixed capacity and separate read/write positions.
type Temporary struct {
	Binding
	Capacity int // Capacity in qwords. Zero means TEMP_CAPACITY.

	ReadIndex  int
	WriteIndex int
	Size       int
	Data       []uint64
}

var _ Device = (*Temporary)(nil)

func (temp *Temporary) Name() string {
	return "temporary"
}

// Defines returns an iter of defines for the temporary storage.
func (temp *Temporary) Defines() iter.Seq2[string, string] {
	return temp.Binding.defines("TEMP", map[string]string{
		"TEMP_DATA":     fmt.Sprintf("%d", TEMP_DATA),
		"TEMP_SIZE":     fmt.Sprintf("%d", TEMP_SIZE),
		"TEMP_CAPACITY": fmt.Sprintf("%d", temp.capacity()),
	})
}

func (temp *Temporary) capacity() int {
	if temp.Capacity <= 0 {
		return TEMP_CAPACITY
	}
	return temp.Capacity
}

// Rewind resets the temporary storage to empty, resetting indices and
// reinitializing the data buffer.
func (temp *Temporary) Rewind() {
	temp.ReadIndex = 0
	temp.WriteIndex = 0
	temp.Size = 0
	temp.Data = make([]uint64, temp.capacity())
}

// Receive removes the oldest qword. Returns ErrChannelEmpty if there is none.
func (temp *Temporary) Receive() (value uint64, err error) {
	if temp.Size == 0 {
		err = ErrChannelEmpty
		return
	}

	value = temp.Data[temp.ReadIndex]
	temp.ReadIndex++
	if temp.ReadIndex == len(temp.Data) {
		temp.ReadIndex = 0
	}
	temp.Size--

	return
}

// Send writes a qword to the buffer at the current write position.
// Returns ErrChannelFull if the buffer has reached capacity.
func (temp *Temporary) Send(value uint64) (err error) {
	if temp.Data == nil {
		temp.Rewind()
	}
	if temp.Size >= len(temp.Data) {
		err = ErrChannelFull
		return
	}

	temp.Data[temp.WriteIndex] = value

	temp.WriteIndex++
	if temp.WriteIndex == len(temp.Data) {
		temp.WriteIndex = 0
	}
	temp.Size++

	return
}

// Read dequeues at TEMP_DATA, all-ones when empty, and returns the queued
// count at TEMP_SIZE.
func (temp *Temporary) Read(address uint64) (value uint64) {
	switch address {
	case TEMP_DATA:
		var err error
		value, err = temp.Receive()
		if err != nil {
			value = ^uint64(0)
		}
	case TEMP_SIZE:
		value = uint64(temp.Size)
	default:
		log.Printf("temporary: %v", f("read: %v 0x%x", ErrAddressInvalid, address))
		value = ^uint64(0)
	}
	return
}

// Write queues at TEMP_DATA. A write to TEMP_SIZE empties the queue.
func (temp *Temporary) Write(address uint64, value uint64) {
	var err error
	switch address {
	case TEMP_DATA:
		err = temp.Send(value)
	case TEMP_SIZE:
		temp.Rewind()
	default:
		err = ErrAddressInvalid
	}
	if err != nil {
		log.Printf("temporary: %v", f("write 0x%x: %v", address, err))
	}
}
