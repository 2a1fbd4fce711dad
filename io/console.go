package io

import (
	"fmt"
	"io"
	"iter"
	"log"
)

const (
	CONSOLE_CHAR    = 0 // Byte stream address.
	CONSOLE_DECIMAL = 1 // Decimal number address.
)

// Console provides sequential I/O over byte streams. Reads at CONSOLE_CHAR
// return the next input byte, or all-ones at the end of input. Reads at
// CONSOLE_DECIMAL parse the next decimal number of the input.
type Console struct {
	Binding
	Input  io.Reader
	Output io.Writer

	hasInput  bool
	lastInput byte
}

var _ Device = (*Console)(nil)

func (con *Console) Name() string {
	return "console"
}

// Defines returns an iter of defines for the console.
func (con *Console) Defines() iter.Seq2[string, string] {
	return con.Binding.defines("CONSOLE", map[string]string{
		"CONSOLE_CHAR":    fmt.Sprintf("%d", CONSOLE_CHAR),
		"CONSOLE_DECIMAL": fmt.Sprintf("%d", CONSOLE_DECIMAL),
	})
}

// Rewind drops any pushed back input. The streams themselves are not
// rewound.
func (con *Console) Rewind() {
	con.hasInput = false
	con.lastInput = 0
}

// next reads one byte of input.
func (con *Console) next() (c byte, ok bool) {
	if con.hasInput {
		con.hasInput = false
		return con.lastInput, true
	}
	if con.Input == nil {
		return
	}

	var one [1]byte
	_, err := io.ReadFull(con.Input, one[:])
	if err != nil {
		return
	}
	return one[0], true
}

// unread pushes back one byte of input.
func (con *Console) unread(c byte) {
	con.lastInput = c
	con.hasInput = true
}

// readDecimal skips leading whitespace and reads an optionally signed
// decimal number. Without digits, the result is all-ones.
func (con *Console) readDecimal() (value uint64) {
	c, ok := con.next()
	for ok && (c == ' ' || c == '\t' || c == '\r' || c == '\n') {
		c, ok = con.next()
	}

	negative := false
	if ok && (c == '-' || c == '+') {
		negative = c == '-'
		c, ok = con.next()
	}

	digits := 0
	for ok && c >= '0' && c <= '9' {
		value = value*10 + uint64(c-'0')
		digits++
		c, ok = con.next()
	}
	if ok {
		con.unread(c)
	}

	if digits == 0 {
		value = ^uint64(0)
		return
	}
	if negative {
		value = -value
	}
	return
}

func (con *Console) Read(address uint64) (value uint64) {
	switch address {
	case CONSOLE_CHAR:
		c, ok := con.next()
		if !ok {
			value = ^uint64(0)
			return
		}
		value = uint64(c)
	case CONSOLE_DECIMAL:
		value = con.readDecimal()
	default:
		log.Printf("console: %v", f("read: %v 0x%x", ErrAddressInvalid, address))
		value = ^uint64(0)
	}
	return
}

// Write sends a byte at CONSOLE_CHAR, or a signed decimal number at
// CONSOLE_DECIMAL.
func (con *Console) Write(address uint64, value uint64) {
	if con.Output == nil {
		return
	}

	var err error
	switch address {
	case CONSOLE_CHAR:
		_, err = con.Output.Write([]byte{byte(value)})
	case CONSOLE_DECIMAL:
		_, err = fmt.Fprintf(con.Output, "%d", int64(value))
	default:
		err = ErrAddressInvalid
	}
	if err != nil {
		log.Printf("console: %v", f("write 0x%x: %v", address, err))
	}
}
