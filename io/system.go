package io

import (
	"fmt"
	"iter"
	"log"
	"math/rand/v2"
	"time"
)

// System device read addresses.
const (
	SYSTEM_MEMORY_SIZE = 0x100

	SYSTEM_HOUR        = 0x200
	SYSTEM_MINUTE      = 0x201
	SYSTEM_SECOND      = 0x202
	SYSTEM_MILLISECOND = 0x203

	SYSTEM_MILLIS = 0x210 // Unix time in milliseconds.
	SYSTEM_NANOS  = 0x211 // Nanoseconds since the last rewind.

	SYSTEM_RANDOM = 0x1004 // A random qword.
)

var _system_defines = map[string]uint64{
	"SYSTEM_MEMORY_SIZE": SYSTEM_MEMORY_SIZE,
	"SYSTEM_HOUR":        SYSTEM_HOUR,
	"SYSTEM_MINUTE":      SYSTEM_MINUTE,
	"SYSTEM_SECOND":      SYSTEM_SECOND,
	"SYSTEM_MILLISECOND": SYSTEM_MILLISECOND,
	"SYSTEM_MILLIS":      SYSTEM_MILLIS,
	"SYSTEM_NANOS":       SYSTEM_NANOS,
	"SYSTEM_RANDOM":      SYSTEM_RANDOM,
}

// System reports machine information, the wall clock and random numbers.
// Unknown addresses read as zero.
type System struct {
	Binding
	MemorySize uint64
	Now        func() time.Time // Clock; time.Now if nil.
	Random     *rand.Rand       // Random source; the global source if nil.

	start time.Time
}

var _ Device = (*System)(nil)

func (sys *System) Name() string {
	return "system"
}

// Defines returns an iter of defines for the system device.
func (sys *System) Defines() iter.Seq2[string, string] {
	defines := make(map[string]string, len(_system_defines)+1)
	for name, address := range _system_defines {
		defines[name] = fmt.Sprintf("0x%x", address)
	}
	return sys.Binding.defines("SYSTEM", defines)
}

func (sys *System) now() time.Time {
	if sys.Now == nil {
		return time.Now()
	}
	return sys.Now()
}

// Rewind restarts the nanosecond counter.
func (sys *System) Rewind() {
	sys.start = sys.now()
}

func (sys *System) Read(address uint64) (value uint64) {
	now := sys.now()
	switch address {
	case SYSTEM_MEMORY_SIZE:
		value = sys.MemorySize
	case SYSTEM_HOUR:
		value = uint64(now.Hour())
	case SYSTEM_MINUTE:
		value = uint64(now.Minute())
	case SYSTEM_SECOND:
		value = uint64(now.Second())
	case SYSTEM_MILLISECOND:
		value = uint64(now.Nanosecond() / int(time.Millisecond))
	case SYSTEM_MILLIS:
		value = uint64(now.UnixMilli())
	case SYSTEM_NANOS:
		if sys.start.IsZero() {
			sys.start = now
		}
		value = uint64(now.Sub(sys.start).Nanoseconds())
	case SYSTEM_RANDOM:
		if sys.Random == nil {
			value = rand.Uint64()
		} else {
			value = sys.Random.Uint64()
		}
	}
	return
}

func (sys *System) Write(address uint64, value uint64) {
	log.Printf("system: %v", f("write 0x%x: %v", address, ErrReadOnly))
}
