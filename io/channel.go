// Package io provides the devices attached to the isk cpu: the console
// channels used by PRNT and SCAN (Tape, Temporary) and the binary program
// Image.
package io

import (
	"iter"
)

// Channel defines the interface for word-level console devices.
type Channel interface {
	// Rewind resets the channel to its initial state.
	Rewind()
	// Receive returns an iterator that yields values from the channel.
	// Values not consumed by the caller stay in the channel.
	Receive() iter.Seq[int64]
	// Send writes a single value to the channel.
	Send(value int64) error
}
