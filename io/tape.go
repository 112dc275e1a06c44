package io

import (
	"bufio"
	"fmt"
	"io"
	"iter"
	"strconv"
)

// Tape provides sequential console I/O. Input is read as whitespace
// separated integers; output is written one decimal integer per line.
type Tape struct {
	Input  io.Reader
	Output io.Writer

	scanner *bufio.Scanner
}

var _ Channel = (*Tape)(nil)

// Rewind is not possible on a tape.
func (tc *Tape) Rewind() {
}

// Receive returns an iterator that yields integers from the input stream,
// reading words only as they are requested. Reading stops at the end of
// input or at the first word that is not an integer.
func (tc *Tape) Receive() iter.Seq[int64] {
	return func(yield func(value int64) bool) {
		if tc.Input == nil {
			return
		}
		if tc.scanner == nil {
			tc.scanner = bufio.NewScanner(tc.Input)
			tc.scanner.Split(bufio.ScanWords)
		}
		for tc.scanner.Scan() {
			value, err := strconv.ParseInt(tc.scanner.Text(), 0, 64)
			if err != nil {
				return
			}
			if !yield(value) {
				return
			}
		}
	}
}

// Send writes a value to the output stream.
func (tc *Tape) Send(value int64) (err error) {
	if tc.Output == nil {
		err = ErrChannelFull
		return
	}

	_, err = fmt.Fprintf(tc.Output, "%d\n", value)
	return
}
