package cpu

import (
	"iter"
	"log"
	"math"
	"slices"

	"github.com/ezrec/qcpu/internal"
)

// LabelBinding is one definition of a label. It covers reference positions
// below End. An open binding has End == math.MaxUint64.
type LabelBinding struct {
	Value uint64
	End   uint64
}

// Open is true while the binding has not been closed.
func (lb LabelBinding) Open() bool {
	return lb.End == math.MaxUint64
}

// LabelTable maps label names to their bindings, ordered by End.
type LabelTable struct {
	Verbose bool

	labels map[string][]LabelBinding
}

// Define binds name to value from address on. An open binding of the same
// name is closed at address.
func (lt *LabelTable) Define(name string, value uint64, address uint64) {
	if lt.labels == nil {
		lt.labels = make(map[string][]LabelBinding)
	}

	bindings := lt.labels[name]
	if last := len(bindings) - 1; last >= 0 && bindings[last].Open() {
		if lt.Verbose {
			log.Printf("label: $%v redefined at 0x%x", name, address)
		}
		bindings[last].End = address
	}

	lt.labels[name] = append(bindings, LabelBinding{Value: value, End: math.MaxUint64})
}

// Undefine closes the open binding of name at address.
func (lt *LabelTable) Undefine(name string, address uint64) (err error) {
	bindings, ok := lt.labels[name]
	if !ok {
		err = ErrLabelMissing(name)
		return
	}

	last := len(bindings) - 1
	if !bindings[last].Open() {
		err = ErrLabelUndefined
		return
	}

	bindings[last].End = address
	return
}

// Lookup finds the value of name for a reference at position: the binding
// with the smallest End above position.
func (lt *LabelTable) Lookup(name string, position uint64) (value uint64, err error) {
	bindings, ok := lt.labels[name]
	if !ok {
		err = ErrLabelMissing(name)
		return
	}

	index, _ := slices.BinarySearchFunc(bindings, position, func(lb LabelBinding, pos uint64) int {
		if lb.End <= pos {
			return -1
		}
		return 1
	})
	if index >= len(bindings) {
		err = ErrLabelScope{Label: name, Position: position}
		return
	}

	value = bindings[index].Value
	return
}

// LookupAt returns a LabelLookup for references at position.
func (lt *LabelTable) LookupAt(position uint64) LabelLookup {
	return func(name string) (uint64, error) {
		return lt.Lookup(name, position)
	}
}

// Bindings of a label, in definition order.
func (lt *LabelTable) Bindings(name string) []LabelBinding {
	return slices.Clone(lt.labels[name])
}

// All labels with their bindings, sorted by name.
func (lt *LabelTable) All() iter.Seq2[string, []LabelBinding] {
	return internal.IterSorted(lt.labels)
}

// Reset forgets all labels.
func (lt *LabelTable) Reset() {
	clear(lt.labels)
}
