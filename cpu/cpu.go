package cpu

import (
	"errors"
	"fmt"
	"iter"
	"log"
	"maps"
	"math"

	"github.com/ezrec/isk/io"
)

// Channel is the console interface.
type Channel io.Channel

// CpuState is the phase of the instruction cycle.
type CpuState int

const (
	STATE_FETCHING     = CpuState(0)
	STATE_DECODING     = CpuState(1)
	STATE_RESOLVING    = CpuState(2)
	STATE_EXECUTING    = CpuState(3)
	STATE_WRITING_BACK = CpuState(4)
	STATE_HALTED       = CpuState(5)
)

func (state CpuState) String() string {
	switch state {
	case STATE_FETCHING:
		return "fetching"
	case STATE_DECODING:
		return "decoding"
	case STATE_RESOLVING:
		return "resolving"
	case STATE_EXECUTING:
		return "executing"
	case STATE_WRITING_BACK:
		return "writing-back"
	case STATE_HALTED:
		return "halted"
	}
	return fmt.Sprintf("CpuState(%d)", int(state))
}

// HaltReason records why the cpu halted.
type HaltReason int

const (
	HALT_NONE       = HaltReason(0)
	HALT_EOP        = HaltReason(1) // EOP executed.
	HALT_WINDOW     = HaltReason(2) // PC left the bounded window.
	HALT_EMPTY      = HaltReason(3) // Zero word fetched in the bounded window.
	HALT_FAULT      = HaltReason(4) // Structural fault under POLICY_HALT.
	HALT_STEP_LIMIT = HaltReason(5) // Config.StepLimit reached.
)

func (reason HaltReason) String() string {
	switch reason {
	case HALT_NONE:
		return "none"
	case HALT_EOP:
		return "eop"
	case HALT_WINDOW:
		return "window"
	case HALT_EMPTY:
		return "empty"
	case HALT_FAULT:
		return "fault"
	case HALT_STEP_LIMIT:
		return "step-limit"
	}
	return fmt.Sprintf("HaltReason(%d)", int(reason))
}

// Flags are the condition flags set by the ALU.
type Flags struct {
	Zero     bool
	Negative bool
}

// Test returns true if a conditional jump should be taken.
func (fl Flags) Test(op Mnemonic) bool {
	switch op {
	case OP_JEQ:
		return fl.Zero
	case OP_JNE:
		return !fl.Zero
	case OP_JLT:
		return fl.Negative
	case OP_JLE:
		return fl.Negative || fl.Zero
	case OP_JGT:
		return !fl.Negative && !fl.Zero
	case OP_JGE:
		return !fl.Negative
	}
	return false
}

// Cpu is the simulation context for the isk processor.
type Cpu struct {
	Verbose bool // Set to enable verbose logging.

	Config   Config
	Storage  *Storage
	Stack    Stack
	Resolver Resolver

	State  CpuState   // Current phase of the instruction cycle.
	Halt   HaltReason // Why the cpu halted.
	Flags  Flags      // Condition flags.
	Ticks  int        // Executed instructions since reset.
	Faults []Fault    // Faults since reset.

	channel Channel // Console.
	ip      int     // Address of the executing word.
	word    Word    // Executing word.
}

// NewCpu creates a new CPU, reset and ready to load a program.
func NewCpu(config Config) (cpu *Cpu) {
	cpu = &Cpu{
		Config:  config,
		Storage: NewStorage(config.MemorySize),
	}
	cpu.Stack = Stack{Storage: cpu.Storage, Limit: config.StackSize}
	cpu.Resolver = Resolver{Storage: cpu.Storage, Stack: &cpu.Stack}

	cpu.Reset()

	return
}

// Defines for the cpu
func (cpu *Cpu) Defines() iter.Seq2[string, int64] {
	return maps.All(map[string]int64{
		"MEMORY_SIZE": int64(cpu.Config.MemorySize),
		"STACK_BASE":  int64(cpu.Config.stackBase()),
		"STACK_SIZE":  int64(cpu.Config.StackSize),
		"ORIGIN":      int64(cpu.Config.Origin),
	})
}

// Reset the CPU state.
// - Clears memory and defines the registers.
// - Empties the stack at the stack base.
// - Sets PC to the origin.
// - Clears flags, faults and counters.
func (cpu *Cpu) Reset() {
	if cpu.Verbose {
		log.Printf("cpu: reset")
	}

	cpu.Storage.Reset(cpu.Config.Registers)
	cpu.Stack.Reset(cpu.Config.stackBase())
	cpu.Storage.StoreRegister(REG_PC, int64(cpu.Config.Origin))

	cpu.State = STATE_FETCHING
	cpu.Halt = HALT_NONE
	cpu.Flags = Flags{}
	cpu.Ticks = 0
	cpu.Faults = nil

	if cpu.channel != nil {
		cpu.channel.Rewind()
	}
}

// SetChannel sets the console used by PRNT and SCAN.
func (cpu *Cpu) SetChannel(channel Channel) {
	cpu.channel = channel
}

// Load assembles statements into memory and points PC at the first word.
// A bounded cpu always loads at its origin.
func (cpu *Cpu) Load(asm *Assembler, stmts []Statement) (prog *Program, err error) {
	if cpu.Config.Bounded {
		asm.FixedOrigin = true
		asm.Origin = cpu.Config.Origin
	}

	prog, err = asm.EncodeProgram(cpu.Storage, stmts)
	if err != nil {
		return
	}

	cpu.Storage.StoreRegister(REG_PC, int64(prog.Origin))
	return
}

// LoadBinary stores words at the origin and points PC at the first word.
func (cpu *Cpu) LoadBinary(words []Word) (err error) {
	for n, word := range words {
		err = cpu.Storage.StoreMemory(cpu.Config.Origin+n, int64(word))
		if err != nil {
			return
		}
	}

	cpu.Storage.StoreRegister(REG_PC, int64(cpu.Config.Origin))
	return
}

// Halted is true once the cpu has stopped.
func (cpu *Cpu) Halted() bool {
	return cpu.State == STATE_HALTED
}

func (cpu *Cpu) halt(reason HaltReason) {
	if cpu.Verbose {
		log.Printf("cpu: halt %v at %v", reason, cpu.ip)
	}
	cpu.State = STATE_HALTED
	cpu.Halt = reason
}

// fault records a fault and applies the fault policy. Structural faults
// under POLICY_HALT halt the cpu and are returned.
func (cpu *Cpu) fault(kind FaultKind, err error) error {
	ft := Fault{Kind: kind, Ip: cpu.ip, Word: cpu.word, Err: err}

	arg1, arg2 := cpu.word.Args()
	switch {
	case errors.Is(err, ErrOpcodeArg1):
		ft.Arg = 1
		ft.Operand = arg1
	case errors.Is(err, ErrOpcodeArg2):
		ft.Arg = 2
		ft.Operand = arg2
	}

	cpu.Faults = append(cpu.Faults, ft)
	log.Printf("cpu: %v", &ft)

	policy := POLICY_SKIP
	switch kind {
	case FAULT_DECODE:
		policy = cpu.Config.DecodeFault
	case FAULT_STORAGE, FAULT_OPERAND:
		policy = cpu.Config.StorageFault
	}

	if policy == POLICY_HALT {
		cpu.halt(HALT_FAULT)
		return &ft
	}

	return nil
}

// Fetch reads the word at PC into IR and advances PC.
func (cpu *Cpu) Fetch() (word Word, err error) {
	cpu.State = STATE_FETCHING

	pc, err := cpu.Storage.LoadRegister(REG_PC)
	if err != nil {
		return
	}
	cpu.ip = int(pc)
	cpu.word = 0

	if cpu.Config.Bounded {
		lo, hi := cpu.Config.window()
		if pc < int64(lo) || pc >= int64(hi) {
			cpu.halt(HALT_WINDOW)
			err = ErrHalted
			return
		}
	}

	if pc < 0 || pc > math.MaxInt {
		err = ErrAddressRange(pc)
		return
	}
	cell, err := cpu.Storage.LoadMemory(int(pc))
	if err != nil {
		return
	}

	if cpu.Config.Bounded && cell == 0 {
		cpu.halt(HALT_EMPTY)
		err = ErrHalted
		return
	}

	cpu.Storage.StoreRegister(REG_PC, pc+1)

	if cell < 0 || cell > math.MaxUint32 {
		err = ErrWordRange
		return
	}

	word = Word(cell)
	cpu.word = word
	cpu.Storage.StoreRegister(REG_IR, cell)

	return
}

// Tick executes a single instruction cycle. It returns ErrHalted once the
// cpu has halted, and a *Fault when a structural fault halts it.
func (cpu *Cpu) Tick() (err error) {
	if cpu.Halted() {
		return ErrHalted
	}

	if cpu.Config.StepLimit > 0 && cpu.Ticks >= cpu.Config.StepLimit {
		cpu.halt(HALT_STEP_LIMIT)
		return ErrStepLimit
	}

	word, err := cpu.Fetch()
	switch {
	case errors.Is(err, ErrHalted):
		return
	case errors.Is(err, ErrWordRange):
		cpu.Ticks++
		return cpu.fault(FAULT_DECODE, err)
	case err != nil:
		// PC cannot advance past an unreadable cell, so this always halts.
		err = cpu.fault(FAULT_STORAGE, err)
		if err == nil {
			cpu.halt(HALT_FAULT)
			err = &cpu.Faults[len(cpu.Faults)-1]
		}
		return
	}

	cpu.Ticks++

	cpu.State = STATE_DECODING
	code, err := word.Decode()
	if err != nil {
		return cpu.fault(FAULT_DECODE, errors.Join(ErrOpcodeDecode, err))
	}

	err = cpu.Execute(code)
	if err != nil {
		kind := FAULT_STORAGE
		if errors.Is(err, ErrOperandReadOnly) {
			kind = FAULT_OPERAND
		}
		return cpu.fault(kind, err)
	}

	if !cpu.Halted() {
		cpu.State = STATE_FETCHING
	}

	return
}

// Run ticks until the cpu halts. A normal halt returns nil.
func (cpu *Cpu) Run() (err error) {
	for {
		err = cpu.Tick()
		if errors.Is(err, ErrHalted) {
			return nil
		}
		if err != nil {
			return
		}
	}
}

// read resolves operand n for reading.
func (cpu *Cpu) read(code Code, n int) (value int64, err error) {
	cpu.State = STATE_RESOLVING
	arg := code.Args[n]
	value, err = cpu.Resolver.Read(arg.Mode, arg.Addr)
	if err != nil {
		err = errors.Join([]error{ErrOpcodeArg1, ErrOpcodeArg2}[n], err)
	}
	return
}

// write stores value to the target of operand n.
func (cpu *Cpu) write(code Code, n int, value int64) (err error) {
	cpu.State = STATE_WRITING_BACK
	arg := code.Args[n]
	err = cpu.Resolver.Write(arg.Mode, arg.Addr, value)
	if err != nil {
		err = errors.Join([]error{ErrOpcodeArg1, ErrOpcodeArg2}[n], err)
	}
	return
}

// jump sets PC.
func (cpu *Cpu) jump(target int64) {
	if cpu.Verbose {
		log.Printf("%03d: jump %v", cpu.ip, target)
	}
	cpu.Storage.StoreRegister(REG_PC, target)
}

// Execute executes a single decoded instruction. PC has already been
// advanced past it.
func (cpu *Cpu) Execute(code Code) (err error) {
	if cpu.Verbose {
		log.Printf("%03d: %v", cpu.ip, code)
	}

	switch code.Op {
	case OP_ADD, OP_SUB, OP_MUL, OP_DIV, OP_MOD, OP_CMP:
		var a, b int64
		a, err = cpu.read(code, 0)
		if err != nil {
			return
		}
		b, err = cpu.read(code, 1)
		if err != nil {
			return
		}
		cpu.State = STATE_EXECUTING
		if code.Op == OP_CMP {
			cpu.Flags = Flags{Zero: a == b, Negative: a < b}
			return
		}
		result := cpu.doAlu(code.Op, a, b)
		cpu.Flags = Flags{Zero: result == 0, Negative: result < 0}
		err = cpu.write(code, 0, result)
	case OP_MOV:
		var value int64
		value, err = cpu.read(code, 1)
		if err != nil {
			return
		}
		err = cpu.write(code, 0, value)
	case OP_PUSH:
		var value int64
		value, err = cpu.read(code, 0)
		if err != nil {
			return
		}
		cpu.State = STATE_WRITING_BACK
		err = cpu.Stack.Push(value)
	case OP_POP:
		var value int64
		cpu.State = STATE_EXECUTING
		value, err = cpu.Stack.Pop()
		if err != nil {
			return
		}
		err = cpu.write(code, 0, value)
	case OP_JMP:
		var target int64
		target, err = cpu.read(code, 0)
		if err != nil {
			return
		}
		cpu.jump(target)
	case OP_JEQ, OP_JNE, OP_JLT, OP_JLE, OP_JGT, OP_JGE:
		cpu.State = STATE_EXECUTING
		if !cpu.Flags.Test(code.Op) {
			return
		}
		var target int64
		target, err = cpu.read(code, 0)
		if err != nil {
			return
		}
		cpu.jump(target)
	case OP_CALL:
		var target, ret int64
		target, err = cpu.read(code, 0)
		if err != nil {
			return
		}
		ret, err = cpu.Storage.LoadRegister(REG_PC)
		if err != nil {
			return
		}
		cpu.State = STATE_WRITING_BACK
		err = cpu.Stack.Push(ret)
		if err != nil {
			return
		}
		cpu.jump(target)
	case OP_RET:
		var target int64
		cpu.State = STATE_EXECUTING
		target, err = cpu.Stack.Pop()
		if err != nil {
			return
		}
		cpu.jump(target)
	case OP_PRNT:
		var value int64
		value, err = cpu.read(code, 0)
		if err != nil {
			return
		}
		cpu.State = STATE_EXECUTING
		if cpu.channel == nil {
			return cpu.fault(FAULT_IO, ErrChannelInvalid)
		}
		if serr := cpu.channel.Send(value); serr != nil {
			return cpu.fault(FAULT_IO, serr)
		}
	case OP_SCAN:
		var value int64
		cpu.State = STATE_EXECUTING
		if cpu.channel == nil {
			err = cpu.fault(FAULT_IO, ErrChannelInvalid)
		} else {
			ok := false
			for v := range cpu.channel.Receive() {
				value = v
				ok = true
				break
			}
			if !ok {
				value = 0
				err = cpu.fault(FAULT_IO, ErrChannelEmpty)
			}
		}
		if err != nil {
			return
		}
		err = cpu.write(code, 0, value)
	case OP_EOP:
		cpu.halt(HALT_EOP)
	default:
		err = errors.Join(ErrOpcodeDecode, ErrOpcode(code.Word()))
	}

	return
}

// doAlu performs the requested ALU action, and returns the output value.
func (cpu *Cpu) doAlu(op Mnemonic, input int64, value int64) (output int64) {
	switch op {
	case OP_ADD:
		output = input + value
	case OP_SUB:
		output = input - value
	case OP_MUL:
		output = input * value
	case OP_DIV, OP_MOD:
		if value == 0 {
			cpu.fault(FAULT_DIVIDE_BY_ZERO, errors.Join(ErrOpcodeArg2, ErrDivideByZero))
			output = 0
			break
		}
		floor := cpu.Config.Division == DIVISION_FLOOR
		switch {
		case op == OP_DIV && floor:
			output = floorDiv(input, value)
		case op == OP_DIV:
			output = input / value
		case floor:
			output = floorMod(input, value)
		default:
			output = input % value
		}
	}

	return
}

func floorDiv(a, b int64) (q int64) {
	q = a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return
}

func floorMod(a, b int64) (m int64) {
	m = a % b
	if m != 0 && (m < 0) != (b < 0) {
		m += b
	}
	return
}

// String returns the current CPU state as a string.
func (cpu *Cpu) String() (text string) {
	text = fmt.Sprintf("% 5s: %v\n", "state", cpu.State)
	if cpu.Halted() {
		text += fmt.Sprintf("% 5s: %v\n", "halt", cpu.Halt)
	}
	text += fmt.Sprintf("% 5s: z=%v n=%v\n", "flags", cpu.Flags.Zero, cpu.Flags.Negative)
	text += fmt.Sprintf("% 5s: %v\n", "ticks", cpu.Ticks)
	text += cpu.Storage.String()
	return
}
