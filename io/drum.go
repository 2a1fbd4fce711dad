package io

import (
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"log"
	"maps"
	"regexp"
	"slices"
	"strconv"

	"github.com/ezrec/qcpu/internal"
)

const (
	DRUM_SELECT      = 0 // Write selects a ring, read returns the selection.
	DRUM_DATA        = 1 // Read or append a qword.
	DRUM_READ_INDEX  = 2 // Read position in bytes.
	DRUM_WRITE_INDEX = 3 // Write position in bytes; writing it truncates.
)

var reRingName = regexp.MustCompile(`(?i)^[0-9a-f][0-9a-f]\.ring$`)

// Drum is persistent storage made of up to 256 numbered rings. Rings are
// created on first selection.
type Drum struct {
	Binding
	*Ring
	Selected uint8
	Rings    map[uint8](*Ring)
}

var _ Device = (*Drum)(nil)

func (dc *Drum) Name() string {
	return "drum"
}

// Defines returns an iter of defines for the drum.
func (dc *Drum) Defines() iter.Seq2[string, string] {
	return dc.Binding.defines("DRUM", map[string]string{
		"DRUM_SELECT":      fmt.Sprintf("%d", DRUM_SELECT),
		"DRUM_DATA":        fmt.Sprintf("%d", DRUM_DATA),
		"DRUM_READ_INDEX":  fmt.Sprintf("%d", DRUM_READ_INDEX),
		"DRUM_WRITE_INDEX": fmt.Sprintf("%d", DRUM_WRITE_INDEX),
	})
}

// Rewind rewinds every ring and selects ring 0.
func (dc *Drum) Rewind() {
	for _, ring := range dc.Rings {
		ring.Rewind()
	}
	dc.selectRing(0)
}

func (dc *Drum) selectRing(selected uint8) {
	ring, ok := dc.Rings[selected]
	if !ok {
		if dc.Rings == nil {
			dc.Rings = make(map[uint8](*Ring))
		}
		ring = &Ring{}
		ring.Rewind()
		dc.Rings[selected] = ring
	}
	dc.Selected = selected
	dc.Ring = ring
}

func (dc *Drum) ring() *Ring {
	if dc.Ring == nil {
		dc.selectRing(dc.Selected)
	}
	return dc.Ring
}

func (dc *Drum) Read(address uint64) (value uint64) {
	ring := dc.ring()
	switch address {
	case DRUM_SELECT:
		value = uint64(dc.Selected)
	case DRUM_DATA:
		var err error
		value, err = ring.Receive()
		if err != nil {
			value = ^uint64(0)
		}
	case DRUM_READ_INDEX:
		value = uint64(ring.ReadIndex)
	case DRUM_WRITE_INDEX:
		value = uint64(ring.WriteIndex)
	default:
		log.Printf("drum: %v", f("read: %v 0x%x", ErrAddressInvalid, address))
		value = ^uint64(0)
	}
	return
}

func (dc *Drum) Write(address uint64, value uint64) {
	var err error
	ring := dc.ring()
	switch address {
	case DRUM_SELECT:
		if value > 0xff {
			err = ErrAddressInvalid
			break
		}
		dc.selectRing(uint8(value))
	case DRUM_DATA:
		err = ring.Send(value)
	case DRUM_READ_INDEX:
		ring.Seek(value, uint64(ring.WriteIndex))
	case DRUM_WRITE_INDEX:
		ring.Seek(uint64(ring.ReadIndex), value)
		ring.Data = ring.Data[:ring.WriteIndex]
	default:
		err = ErrAddressInvalid
	}
	if err != nil {
		log.Printf("drum: %v", f("write 0x%x: %v", address, err))
	}
}

// Unmarshal loads rings from a file system, one XX.ring file (2 hex digits)
// per ring.
func (dc *Drum) Unmarshal(filesys fs.FS) (err error) {
	entries, err := fs.ReadDir(filesys, ".")
	if err != nil {
		return
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !reRingName.MatchString(name) {
			continue
		}
		var index uint64
		index, err = strconv.ParseUint(name[:2], 16, 8)
		if err != nil {
			return
		}

		var file fs.File
		file, err = filesys.Open(name)
		if err != nil {
			return
		}
		ring := &Ring{}
		err = ring.Unmarshal(file)
		file.Close()
		if err != nil {
			return
		}

		if dc.Rings == nil {
			dc.Rings = make(map[uint8](*Ring))
		}
		dc.Rings[uint8(index)] = ring
	}

	dc.Ring = nil
	return
}

// Marshal writes the non-empty rings to a file system as XX.ring files.
func (dc *Drum) Marshal(filesys CreateFS) (err error) {
	for index, ring := range internal.IterSorted(dc.Rings) {
		if ring.WriteIndex == 0 {
			continue
		}
		err = marshalRing(filesys, fmt.Sprintf("%02x.ring", index), ring)
		if err != nil {
			return
		}
	}

	return
}

func marshalRing(filesys CreateFS, name string, ring *Ring) (err error) {
	file, err := filesys.Create(name)
	if err != nil {
		return
	}
	defer func() {
		err = errors.Join(err, file.Close())
	}()

	err = ring.Marshal(file)
	return
}

// RingIndices lists the rings in use, in order.
func (dc *Drum) RingIndices() []uint8 {
	return slices.Sorted(maps.Keys(dc.Rings))
}
