package cpu

import (
	"errors"

	"github.com/ezrec/isk/translate"
)

var f = translate.From

var (
	// Cpu errors
	ErrHalted          = errors.New(f("halted"))
	ErrStepLimit       = errors.New(f("step limit reached"))
	ErrDivideByZero    = errors.New(f("division by zero"))
	ErrStackEmpty      = errors.New(f("stack empty"))
	ErrStackFull       = errors.New(f("stack full"))
	ErrOperandReadOnly = errors.New(f("operand not writable"))
	ErrChannelInvalid  = errors.New(f("channel invalid"))
	ErrChannelEmpty    = errors.New(f("channel empty"))
	ErrWordRange       = errors.New(f("memory cell is not an instruction word"))

	// Instruction decode errors
	ErrOpcodeDecode = errors.New(f("decode"))
	ErrOpcodeArg1   = errors.New(f("arg1"))
	ErrOpcodeArg2   = errors.New(f("arg2"))

	// Assembler errors
	ErrDefineSyntax       = errors.New(f("DEF syntax"))
	ErrDefineDuplicate    = errors.New(f("DEF duplicated"))
	ErrLabelDuplicate     = errors.New(f("label duplicated"))
	ErrLabelRange         = errors.New(f("label beyond immediate range"))
	ErrOpcodeExtraArgs    = errors.New(f("excessive arguments"))
	ErrOpcodeMissing      = errors.New(f("opcode missing"))
	ErrOpcodeValueMissing = errors.New(f("value missing"))
	ErrOpcodeInvalid      = errors.New(f("opcode invalid"))
	ErrRegisterInvalid    = errors.New(f("register invalid"))
	ErrTargetInvalid      = errors.New(f("target invalid"))
	ErrImmediateRange     = errors.New(f("immediate out of range"))
	ErrAddressInvalid     = errors.New(f("address out of range"))
)

// ErrRegisterUndefined is returned when reading a register that was never stored.
type ErrRegisterUndefined string

func (err ErrRegisterUndefined) Error() string {
	return f("register %v undefined", string(err))
}

// ErrAddressRange is returned for memory accesses outside of memory.
type ErrAddressRange int

func (err ErrAddressRange) Error() string {
	return f("address %v out of range", int(err))
}

type ErrOpcode Word

func (eo ErrOpcode) Error() string {
	return f("bad opcode 0x%08x", uint32(eo))
}

func (eo ErrOpcode) Is(err error) (ok bool) {
	_, ok = err.(ErrOpcode)
	return
}

// ErrSyntax locates an assembler error in the program source.
type ErrSyntax struct {
	LineNo int
	Line   string
	Err    error
}

func (err ErrSyntax) Error() string {
	return f("line %d '%v' %v", err.LineNo, err.Line, err.Err)
}

func (err ErrSyntax) Unwrap() error {
	return err.Err
}

type ErrParseNumber string

func (err ErrParseNumber) Error() string {
	return f("'%v' is not a number", string(err))
}

type ErrParseValue string

func (err ErrParseValue) Error() string {
	return f("'%v' is not a valid operand", string(err))
}

type ErrParseExpression string

func (err ErrParseExpression) Error() string {
	return f("$(%v) is not a valid expression", string(err))
}
