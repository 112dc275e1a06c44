package cpu

import (
	"iter"
)

// Statement is one tokenized source line.
type Statement struct {
	LineNo int
	Words  []string
}

// Opcode is an assembled statement and the address of its word.
type Opcode struct {
	LineNo int
	Ip     int
	Words  []string
	Code   Word
}

// Program is the listing produced by the assembler.
type Program struct {
	Origin  int
	Opcodes []Opcode
}

// Debug returns the opcode assembled at ip, or nil.
func (prog *Program) Debug(ip int) (dbg *Opcode) {
	for n, op := range prog.Opcodes {
		if op.Ip == ip {
			dbg = &prog.Opcodes[n]
			break
		}
	}

	return
}

// End returns the address just past the last word.
func (prog *Program) End() int {
	if len(prog.Opcodes) == 0 {
		return prog.Origin
	}
	return prog.Opcodes[len(prog.Opcodes)-1].Ip + 1
}

// Binary returns the program words in address order.
func (prog *Program) Binary() (bins []Word) {
	for _, code := range prog.Codes() {
		bins = append(bins, code)
	}

	return
}

// Codes iterates over the address and word of each opcode.
func (prog *Program) Codes() iter.Seq2[int, Word] {
	return func(yield func(ip int, code Word) bool) {
		for _, op := range prog.Opcodes {
			if !yield(op.Ip, op.Code) {
				return
			}
		}
	}
}
