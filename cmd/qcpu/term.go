package main

import (
	"bytes"
	"io"
	"os"

	"golang.org/x/term"
)

// rawTerminal puts stdin in raw mode for the console device.
type rawTerminal struct {
	fd       int
	oldState *term.State
}

// newRawTerminal switches stdin to raw mode. Without a terminal it returns
// nil, and the console stays line buffered.
func newRawTerminal() (rt *rawTerminal, err error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return
	}

	rt = &rawTerminal{fd: fd, oldState: oldState}
	return
}

// Restore the terminal state.
func (rt *rawTerminal) Restore() {
	if rt == nil {
		return
	}
	_ = term.Restore(rt.fd, rt.oldState)
}

// rawReader maps the raw mode Enter (CR) to LF.
type rawReader struct {
	io.Reader
}

func (rr rawReader) Read(p []byte) (n int, err error) {
	n, err = rr.Reader.Read(p)
	for i := range n {
		if p[i] == '\r' {
			p[i] = '\n'
		}
	}
	return
}

// rawWriter maps LF to CRLF, as raw mode does not.
type rawWriter struct {
	io.Writer
}

func (rw rawWriter) Write(p []byte) (n int, err error) {
	_, err = rw.Writer.Write(bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n")))
	if err != nil {
		return
	}
	n = len(p)
	return
}
