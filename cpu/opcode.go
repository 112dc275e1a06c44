package cpu

import (
	"fmt"
	"strings"
)

// CodeClass is the opcode category held in the top two bits of a word.
type CodeClass int

const (
	CLASS_CONTROL = CodeClass(0) // ctl
	CLASS_DATA    = CodeClass(1) // data
	CLASS_JUMP    = CodeClass(2) // jump
	CLASS_ALU     = CodeClass(3) // alu
)

func (class CodeClass) String() string {
	switch class {
	case CLASS_CONTROL:
		return "ctl"
	case CLASS_DATA:
		return "data"
	case CLASS_JUMP:
		return "jump"
	case CLASS_ALU:
		return "alu"
	}
	return fmt.Sprintf("CodeClass(%d)", int(class))
}

// Mnemonic is the 5-bit opcode: the class in bits 4-3, the index within
// the class in bits 2-0.
type Mnemonic int

const (
	OP_PRNT = Mnemonic(CLASS_CONTROL<<3 | 0) // Print operand to the console.
	OP_EOP  = Mnemonic(CLASS_CONTROL<<3 | 1) // End of program.

	OP_MOV  = Mnemonic(CLASS_DATA<<3 | 0)
	OP_PUSH = Mnemonic(CLASS_DATA<<3 | 1)
	OP_POP  = Mnemonic(CLASS_DATA<<3 | 2)
	OP_CALL = Mnemonic(CLASS_DATA<<3 | 3)
	OP_RET  = Mnemonic(CLASS_DATA<<3 | 4)
	OP_SCAN = Mnemonic(CLASS_DATA<<3 | 5) // Read console into operand.

	OP_JEQ = Mnemonic(CLASS_JUMP<<3 | 0)
	OP_JNE = Mnemonic(CLASS_JUMP<<3 | 1)
	OP_JLT = Mnemonic(CLASS_JUMP<<3 | 2)
	OP_JLE = Mnemonic(CLASS_JUMP<<3 | 3)
	OP_JGT = Mnemonic(CLASS_JUMP<<3 | 4)
	OP_JGE = Mnemonic(CLASS_JUMP<<3 | 5)
	OP_JMP = Mnemonic(CLASS_JUMP<<3 | 6)

	OP_MOD = Mnemonic(CLASS_ALU<<3 | 0)
	OP_ADD = Mnemonic(CLASS_ALU<<3 | 1)
	OP_SUB = Mnemonic(CLASS_ALU<<3 | 2)
	OP_MUL = Mnemonic(CLASS_ALU<<3 | 3)
	OP_DIV = Mnemonic(CLASS_ALU<<3 | 4)
	OP_CMP = Mnemonic(CLASS_ALU<<3 | 5) // SUB that only sets flags.
)

// mnemonicInfo describes one entry of the opcode table.
type mnemonicInfo struct {
	Name string
	Args int // Number of operands the instruction consumes.
}

// opcodeTable is the closed set of decodable opcodes.
var opcodeTable = map[Mnemonic]mnemonicInfo{
	OP_PRNT: {"PRNT", 1},
	OP_EOP:  {"EOP", 0},
	OP_MOV:  {"MOV", 2},
	OP_PUSH: {"PUSH", 1},
	OP_POP:  {"POP", 1},
	OP_CALL: {"CALL", 1},
	OP_RET:  {"RET", 0},
	OP_SCAN: {"SCAN", 1},
	OP_JEQ:  {"JEQ", 1},
	OP_JNE:  {"JNE", 1},
	OP_JLT:  {"JLT", 1},
	OP_JLE:  {"JLE", 1},
	OP_JGT:  {"JGT", 1},
	OP_JGE:  {"JGE", 1},
	OP_JMP:  {"JMP", 1},
	OP_MOD:  {"MOD", 2},
	OP_ADD:  {"ADD", 2},
	OP_SUB:  {"SUB", 2},
	OP_MUL:  {"MUL", 2},
	OP_DIV:  {"DIV", 2},
	OP_CMP:  {"CMP", 2},
}

// mnemonicMap maps assembler names to opcodes.
var mnemonicMap = func() (names map[string]Mnemonic) {
	names = make(map[string]Mnemonic, len(opcodeTable))
	for op, info := range opcodeTable {
		names[info.Name] = op
	}
	return
}()

// LookupMnemonic finds the opcode for an assembler name, ignoring case.
func LookupMnemonic(name string) (op Mnemonic, ok bool) {
	op, ok = mnemonicMap[strings.ToUpper(name)]
	return
}

// Class returns the category of the opcode.
func (op Mnemonic) Class() CodeClass {
	return CodeClass((int(op) >> 3) & 0x3)
}

// Index returns the position of the opcode within its category.
func (op Mnemonic) Index() int {
	return int(op) & 0x7
}

// Valid is true if the opcode is in the opcode table.
func (op Mnemonic) Valid() (ok bool) {
	_, ok = opcodeTable[op]
	return
}

// Args returns the number of operands the opcode uses.
func (op Mnemonic) Args() int {
	return opcodeTable[op].Args
}

// Conditional is true for the flag-testing jumps.
func (op Mnemonic) Conditional() bool {
	return op.Class() == CLASS_JUMP && op != OP_JMP && op.Valid()
}

func (op Mnemonic) String() string {
	info, ok := opcodeTable[op]
	if !ok {
		return fmt.Sprintf("%v.%d", op.Class(), op.Index())
	}
	return info.Name
}

// CodeMode is an operand addressing mode.
type CodeMode int

const (
	MODE_REGISTER          = CodeMode(0) // Rn
	MODE_REGISTER_INDIRECT = CodeMode(1) // *Rn
	MODE_DIRECT            = CodeMode(2) // n
	MODE_INDIRECT          = CodeMode(3) // *n
	MODE_INDEXED           = CodeMode(4) // I1+n
	MODE_PUSH              = CodeMode(5) // push
	MODE_POP               = CodeMode(6) // pop
	MODE_IMMEDIATE         = CodeMode(7) // #n
)

// Writable returns true if the mode can be the target of a write.
func (mode CodeMode) Writable() bool {
	switch mode {
	case MODE_REGISTER, MODE_REGISTER_INDIRECT, MODE_DIRECT, MODE_INDIRECT, MODE_PUSH:
		return true
	}
	return false
}

func (mode CodeMode) String() string {
	switch mode {
	case MODE_REGISTER:
		return "register"
	case MODE_REGISTER_INDIRECT:
		return "register-indirect"
	case MODE_DIRECT:
		return "direct"
	case MODE_INDIRECT:
		return "indirect"
	case MODE_INDEXED:
		return "indexed"
	case MODE_PUSH:
		return "push"
	case MODE_POP:
		return "pop"
	case MODE_IMMEDIATE:
		return "immediate"
	}
	return fmt.Sprintf("CodeMode(%d)", int(mode))
}

// Operand is a decoded addressing mode and address pair.
type Operand struct {
	Mode CodeMode
	Addr uint8
}

// String returns the operand in assembler syntax.
func (arg Operand) String() string {
	switch arg.Mode {
	case MODE_REGISTER:
		return fmt.Sprintf("R%d", arg.Addr)
	case MODE_REGISTER_INDIRECT:
		return fmt.Sprintf("*R%d", arg.Addr)
	case MODE_DIRECT:
		return fmt.Sprintf("%d", arg.Addr)
	case MODE_INDIRECT:
		return fmt.Sprintf("*%d", arg.Addr)
	case MODE_INDEXED:
		disp := int8(arg.Addr)
		if disp < 0 {
			return fmt.Sprintf("I1%d", disp)
		}
		return fmt.Sprintf("I1+%d", disp)
	case MODE_PUSH:
		return "push"
	case MODE_POP:
		return "pop"
	case MODE_IMMEDIATE:
		return fmt.Sprintf("#%d", arg.Addr)
	}
	return "?"
}

// Word is an encoded instruction.
//
//	31-30 class | 29-27 index | 26-24 mode1 | 23-16 addr1 | 15-13 mode2 | 12-5 addr2 | 4-0 zero
type Word uint32

const (
	WORD_CLASS_SHIFT = 30
	WORD_INDEX_SHIFT = 27
	WORD_MODE1_SHIFT = 24
	WORD_ADDR1_SHIFT = 16
	WORD_MODE2_SHIFT = 13
	WORD_ADDR2_SHIFT = 5

	WORD_OPCODE_SHIFT = WORD_INDEX_SHIFT
	WORD_OPCODE_MASK  = 0x1f
	WORD_MODE_MASK    = 0x7
	WORD_ADDR_MASK    = 0xff
	WORD_RESERVED     = Word(0x1f)
)

// Opcode returns the raw 5-bit opcode field.
func (word Word) Opcode() Mnemonic {
	return Mnemonic((word >> WORD_OPCODE_SHIFT) & WORD_OPCODE_MASK)
}

// Args returns both operand fields.
func (word Word) Args() (arg1, arg2 Operand) {
	arg1 = Operand{
		Mode: CodeMode((word >> WORD_MODE1_SHIFT) & WORD_MODE_MASK),
		Addr: uint8((word >> WORD_ADDR1_SHIFT) & WORD_ADDR_MASK),
	}
	arg2 = Operand{
		Mode: CodeMode((word >> WORD_MODE2_SHIFT) & WORD_MODE_MASK),
		Addr: uint8((word >> WORD_ADDR2_SHIFT) & WORD_ADDR_MASK),
	}
	return
}

// Decode a word into an instruction. Opcodes outside the table and words
// with reserved bits set fail with ErrOpcode.
func (word Word) Decode() (code Code, err error) {
	if word&WORD_RESERVED != 0 || !word.Opcode().Valid() {
		err = ErrOpcode(word)
		return
	}

	code.Op = word.Opcode()
	code.Args[0], code.Args[1] = word.Args()

	return
}

// Code is a decoded instruction.
type Code struct {
	Op   Mnemonic
	Args [2]Operand
}

// MakeCode creates an instruction. Missing operands are register-direct R0,
// which encodes as all zero bits.
func MakeCode(op Mnemonic, args ...Operand) (code Code) {
	if len(args) > 2 {
		panic("at most two operands")
	}
	code.Op = op
	copy(code.Args[:], args)
	return
}

// Word packs the instruction into its 32-bit encoding.
func (code Code) Word() Word {
	return (Word(code.Op&WORD_OPCODE_MASK) << WORD_OPCODE_SHIFT) |
		(Word(code.Args[0].Mode&WORD_MODE_MASK) << WORD_MODE1_SHIFT) |
		(Word(code.Args[0].Addr) << WORD_ADDR1_SHIFT) |
		(Word(code.Args[1].Mode&WORD_MODE_MASK) << WORD_MODE2_SHIFT) |
		(Word(code.Args[1].Addr) << WORD_ADDR2_SHIFT)
}

// String returns the assembly language representation of this instruction.
func (code Code) String() string {
	switch code.Op.Args() {
	case 0:
		return code.Op.String()
	case 1:
		return fmt.Sprintf("%v %v", code.Op, code.Args[0])
	}
	return fmt.Sprintf("%v %v, %v", code.Op, code.Args[0], code.Args[1])
}
