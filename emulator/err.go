package emulator

import (
	"errors"

	"github.com/ezrec/qcpu/translate"
)

var f = translate.From

var (
	ErrStepLimit = errors.New(f("step limit reached"))
	ErrNoProgram = errors.New(f("no program assembled"))
)

// ErrRuntime indicates the location of a runtime error.
type ErrRuntime struct {
	Address uint64
	Text    string // Source statement, if known.
	Err     error
}

func (err *ErrRuntime) Error() string {
	if len(err.Text) == 0 {
		return f("0x%08x: %v", err.Address, err.Err)
	}
	return f("0x%08x (%v): %v", err.Address, err.Text, err.Err)
}

func (err *ErrRuntime) Unwrap() error {
	return err.Err
}

// ErrInterrupt is an interrupt that no listener handled.
type ErrInterrupt struct {
	Code uint8
}

func (err ErrInterrupt) Error() string {
	return f("unhandled interrupt 0x%02x", err.Code)
}
