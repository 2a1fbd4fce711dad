package io

import (
	"fmt"
	"iter"
	"maps"

	"github.com/ezrec/qcpu/cpu"
)

// Binding tracks the port a device is bound to. Embedding it makes a device
// a cpu.PortBinder.
type Binding struct {
	port  uint64
	bound bool
}

var _ cpu.PortBinder = (*Binding)(nil)

// BindPort records the port of the device.
func (bind *Binding) BindPort(port uint64) {
	bind.port = port
	bind.bound = true
}

// UnbindPort forgets the port of the device.
func (bind *Binding) UnbindPort() {
	bind.port = 0
	bind.bound = false
}

// Port returns the bound port, if any.
func (bind *Binding) Port() (port uint64, ok bool) {
	return bind.port, bind.bound
}

// defines adds a prefix_PORT define while bound.
func (bind *Binding) defines(prefix string, defines map[string]string) iter.Seq2[string, string] {
	if bind.bound {
		defines[prefix+"_PORT"] = fmt.Sprintf("0x%x", bind.port)
	}
	return maps.All(defines)
}
