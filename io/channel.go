// Package io provides the port-mapped devices of the qcpu emulator: a byte
// stream console, a temporary qword FIFO, a read-only image and the system
// information device.
package io

import (
	"iter"

	"github.com/ezrec/qcpu/cpu"
)

// Device is a port-mapped device with a power-on state and assembler
// defines.
type Device interface {
	cpu.Device
	// Rewind resets the device to its initial state.
	Rewind()
	// Defines returns the assembler defines of the device.
	Defines() iter.Seq2[string, string]
}
