package cpu

import (
	"fmt"
)

// FaultKind classifies a fault.
type FaultKind int

const (
	FAULT_DIVIDE_BY_ZERO = FaultKind(0) // Contained; result forced to zero.
	FAULT_IO             = FaultKind(1) // Contained; console missing or exhausted.
	FAULT_DECODE         = FaultKind(2) // Structural; opcode outside the table.
	FAULT_STORAGE        = FaultKind(3) // Structural; memory, register or stack access failed.
	FAULT_OPERAND        = FaultKind(4) // Structural; write to a read-only operand.
)

func (kind FaultKind) String() string {
	switch kind {
	case FAULT_DIVIDE_BY_ZERO:
		return "divide-by-zero"
	case FAULT_IO:
		return "io"
	case FAULT_DECODE:
		return "decode"
	case FAULT_STORAGE:
		return "storage"
	case FAULT_OPERAND:
		return "operand"
	}
	return fmt.Sprintf("FaultKind(%d)", int(kind))
}

// Structural is true for faults that may halt the cpu.
func (kind FaultKind) Structural() bool {
	return kind >= FAULT_DECODE
}

// Fault records a fault at the point it occurred.
type Fault struct {
	Kind    FaultKind
	Ip      int     // Address of the faulting word.
	Word    Word    // The faulting word.
	Arg     int     // Faulting operand (1 or 2), or 0.
	Operand Operand // Faulting operand fields, if Arg is set.
	Err     error
}

func (ft *Fault) Error() string {
	if ft.Arg != 0 {
		return f("%v fault at %v (0x%08x) arg%v %v: %v", ft.Kind, ft.Ip, uint32(ft.Word), ft.Arg, ft.Operand, ft.Err)
	}
	return f("%v fault at %v (0x%08x): %v", ft.Kind, ft.Ip, uint32(ft.Word), ft.Err)
}

func (ft *Fault) Unwrap() error {
	return ft.Err
}
