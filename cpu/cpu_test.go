package cpu

import (
	"bytes"
	"errors"
	"maps"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ezrec/isk/io"
)

// runProgram assembles source into a new cpu and runs it to completion,
// with input on the console.
func runProgram(t *testing.T, config Config, source string, input string) (cpu *Cpu, output *bytes.Buffer, err error) {
	t.Helper()

	output = &bytes.Buffer{}
	cpu = NewCpu(config)
	cpu.SetChannel(&io.Tape{Input: strings.NewReader(input), Output: output})

	asm := &Assembler{}
	stmts, err := asm.Parse(strings.NewReader(source))
	if err != nil {
		t.Fatal(err)
	}

	_, err = cpu.Load(asm, stmts)
	if err != nil {
		t.Fatal(err)
	}

	err = cpu.Run()
	return
}

// runBinary loads words into a new cpu and runs it to completion.
func runBinary(t *testing.T, config Config, codes ...Code) (cpu *Cpu, err error) {
	t.Helper()

	cpu = NewCpu(config)

	words := make([]Word, len(codes))
	for n, code := range codes {
		words[n] = code.Word()
	}
	if err = cpu.LoadBinary(words); err != nil {
		t.Fatal(err)
	}

	err = cpu.Run()
	return
}

func reg(cpu *Cpu, name string) (value int64) {
	value, _ = cpu.Storage.LoadRegister(name)
	return
}

func TestCpu_Reset(t *testing.T) {
	assert := assert.New(t)

	cpu := NewCpu(DefaultConfig())
	assert.Equal(STATE_FETCHING, cpu.State)
	assert.Equal(HALT_NONE, cpu.Halt)
	assert.Equal(int64(0), reg(cpu, REG_PC))
	assert.Equal(int64(224), reg(cpu, REG_SPR))
	assert.Equal(int64(224), reg(cpu, REG_TSP))
	assert.True(cpu.Stack.Empty())

	_, err := cpu.Storage.LoadRegister("R7")
	assert.NoError(err)
	_, err = cpu.Storage.LoadRegister("R8")
	assert.Error(err)

	assert.Equal(map[string]int64{
		"MEMORY_SIZE": 256,
		"STACK_BASE":  224,
		"STACK_SIZE":  32,
		"ORIGIN":      0,
	}, maps.Collect(cpu.Defines()))

	config := DefaultConfig()
	config.Origin = 8
	config.StackBase = 100
	cpu = NewCpu(config)
	assert.Equal(int64(8), reg(cpu, REG_PC))
	assert.Equal(int64(100), reg(cpu, REG_SPR))
}

func TestCpu_StackBase(t *testing.T) {
	assert := assert.New(t)

	table := [](struct {
		name      string
		stackSize int
		stackBase int
		spr       int64
	}){
		{"auto", STACK_LIMIT, STACK_BASE_AUTO, 224},
		{"auto_unlimited", 0, STACK_BASE_AUTO, 128},
		{"zero", STACK_LIMIT, 0, 0},
		{"zero_unlimited", 0, 0, 0},
		{"explicit", 4, 200, 200},
	}

	source := "MOV R1, #7\nPUSH R1\nCALL sub\nPOP R2\nEOP\nsub: RET"

	for _, entry := range table {
		config := DefaultConfig()
		config.Origin = 64
		config.StackSize = entry.stackSize
		config.StackBase = entry.stackBase

		cpu, _, err := runProgram(t, config, source, "")
		assert.NoError(err, entry.name)
		assert.Equal(HALT_EOP, cpu.Halt, entry.name)
		assert.Equal(0, len(cpu.Faults), entry.name)
		assert.Equal(int64(7), reg(cpu, "R2"), entry.name)
		assert.Equal(entry.spr, reg(cpu, REG_SPR), entry.name)
		assert.Equal(entry.spr, reg(cpu, REG_TSP), entry.name)
		assert.Equal(entry.spr, maps.Collect(cpu.Defines())["STACK_BASE"], entry.name)
	}
}

func TestCpu_Move(t *testing.T) {
	assert := assert.New(t)

	cpu, _, err := runProgram(t, DefaultConfig(), "MOV R1, #5\nMOV R2, R1\nEOP", "")
	assert.NoError(err)
	assert.Equal(int64(5), reg(cpu, "R2"))
	assert.Equal(HALT_EOP, cpu.Halt)
	assert.Equal(STATE_HALTED, cpu.State)
	assert.Equal(3, cpu.Ticks)
	assert.Equal(int64(3), reg(cpu, REG_PC))
	assert.Equal(int64(MakeCode(OP_EOP).Word()), reg(cpu, REG_IR))
	assert.Equal(0, len(cpu.Faults))

	assert.ErrorIs(cpu.Tick(), ErrHalted)
}

func TestCpu_Memory(t *testing.T) {
	assert := assert.New(t)

	source := []string{
		"DEF total 100",
		"MOV total, #7",
		"MOV R1, #total",
		"MOV R2, *R1",
		"MOV 101, #100",
		"MOV R3, *101",
		"EOP",
	}

	cpu, _, err := runProgram(t, DefaultConfig(), strings.Join(source, "\n"), "")
	assert.NoError(err)
	assert.Equal(int64(7), reg(cpu, "R2"))
	assert.Equal(int64(7), reg(cpu, "R3"))
}

func TestCpu_Indexed(t *testing.T) {
	assert := assert.New(t)

	cpu := NewCpu(DefaultConfig())
	cpu.Storage.StoreRegister(REG_I1, 50)
	cpu.Storage.StoreMemory(48, 11)
	cpu.Storage.StoreMemory(53, 22)

	err := cpu.LoadBinary([]Word{
		MakeCode(OP_MOV, Operand{MODE_REGISTER, 1}, Operand{MODE_INDEXED, 0xfe}).Word(),
		MakeCode(OP_MOV, Operand{MODE_REGISTER, 2}, Operand{MODE_INDEXED, 3}).Word(),
		MakeCode(OP_EOP).Word(),
	})
	assert.NoError(err)
	assert.NoError(cpu.Run())
	assert.Equal(int64(11), reg(cpu, "R1"))
	assert.Equal(int64(22), reg(cpu, "R2"))
}

func TestCpu_Alu(t *testing.T) {
	assert := assert.New(t)

	table := [](struct {
		name   string
		source string
		result int64
		flags  Flags
	}){
		{"add", "MOV R1, #7\nADD R1, #2", 9, Flags{}},
		{"sub", "MOV R1, #7\nSUB R1, #9", -2, Flags{Negative: true}},
		{"sub_zero", "MOV R1, #7\nSUB R1, #7", 0, Flags{Zero: true}},
		{"mul", "MOV R1, #7\nMUL R1, #6", 42, Flags{}},
		{"div", "MOV R1, #7\nDIV R1, #2", 3, Flags{}},
		{"mod", "MOV R1, #7\nMOD R1, #2", 1, Flags{}},
		{"cmp_lt", "MOV R1, #7\nCMP R1, #9", 7, Flags{Negative: true}},
		{"cmp_eq", "MOV R1, #7\nCMP R1, #7", 7, Flags{Zero: true}},
		{"cmp_gt", "MOV R1, #7\nCMP R1, #1", 7, Flags{}},
		{"stack", "PUSH #4\nPUSH #5\nMOV R1, #1\nADD R1, pop\nADD R1, pop", 10, Flags{}},
	}

	for _, entry := range table {
		cpu, _, err := runProgram(t, DefaultConfig(), entry.source+"\nEOP", "")
		assert.NoError(err, entry.name)
		assert.Equal(entry.result, reg(cpu, "R1"), entry.name)
		assert.Equal(entry.flags, cpu.Flags, entry.name)
	}
}

func TestCpu_Division(t *testing.T) {
	assert := assert.New(t)

	table := [](struct {
		name     string
		source   string
		truncate int64
		floor    int64
	}){
		{"div_negative", "MOV R1, #0\nSUB R1, #7\nDIV R1, #2", -3, -4},
		{"mod_negative", "MOV R1, #0\nSUB R1, #7\nMOD R1, #2", -1, 1},
		{"div_positive", "MOV R1, #7\nDIV R1, #2", 3, 3},
		{"div_exact", "MOV R1, #0\nSUB R1, #8\nDIV R1, #2", -4, -4},
	}

	for _, entry := range table {
		config := DefaultConfig()
		cpu, _, err := runProgram(t, config, entry.source+"\nEOP", "")
		assert.NoError(err, entry.name)
		assert.Equal(entry.truncate, reg(cpu, "R1"), entry.name)

		config.Division = DIVISION_FLOOR
		cpu, _, err = runProgram(t, config, entry.source+"\nEOP", "")
		assert.NoError(err, entry.name)
		assert.Equal(entry.floor, reg(cpu, "R1"), entry.name)
	}
}

func TestFloorDivision(t *testing.T) {
	assert := assert.New(t)

	table := [](struct {
		a, b int64
		q, m int64
	}){
		{7, 2, 3, 1},
		{-7, 2, -4, 1},
		{7, -2, -4, -1},
		{-7, -2, 3, -1},
		{6, -3, -2, 0},
	}

	for _, entry := range table {
		assert.Equal(entry.q, floorDiv(entry.a, entry.b), "%v / %v", entry.a, entry.b)
		assert.Equal(entry.m, floorMod(entry.a, entry.b), "%v %% %v", entry.a, entry.b)
		assert.Equal(entry.a, entry.q*entry.b+entry.m)
	}
}

func TestCpu_DivideByZero(t *testing.T) {
	assert := assert.New(t)

	for _, op := range []string{"DIV", "MOD"} {
		cpu, _, err := runProgram(t, DefaultConfig(), "MOV R1, #9\n"+op+" R1, #0\nMOV R2, #1\nEOP", "")
		assert.NoError(err, op)
		assert.Equal(int64(0), reg(cpu, "R1"), op)
		assert.Equal(int64(1), reg(cpu, "R2"), op)
		assert.Equal(HALT_EOP, cpu.Halt, op)
		if assert.Equal(1, len(cpu.Faults), op) {
			ft := cpu.Faults[0]
			assert.Equal(FAULT_DIVIDE_BY_ZERO, ft.Kind, op)
			assert.Equal(1, ft.Ip, op)
			assert.ErrorIs(&ft, ErrDivideByZero, op)
			assert.Equal(2, ft.Arg, op)
			assert.Equal(Operand{MODE_IMMEDIATE, 0}, ft.Operand, op)
		}
	}
}

func TestCpu_Stack(t *testing.T) {
	assert := assert.New(t)

	source := []string{
		"MOV R1, #3",
		"PUSH R1",
		"PUSH #4",
		"POP R2",
		"POP R3",
		"MOV push, #9",
		"POP R4",
		"EOP",
	}

	cpu, _, err := runProgram(t, DefaultConfig(), strings.Join(source, "\n"), "")
	assert.NoError(err)
	assert.Equal(int64(4), reg(cpu, "R2"))
	assert.Equal(int64(3), reg(cpu, "R3"))
	assert.Equal(int64(9), reg(cpu, "R4"))
	assert.True(cpu.Stack.Empty())
	assert.Equal(reg(cpu, REG_SPR), reg(cpu, REG_TSP))
}

func TestCpu_StackFaults(t *testing.T) {
	assert := assert.New(t)

	cpu, _, err := runProgram(t, DefaultConfig(), "POP R1\nEOP", "")
	assert.ErrorIs(err, ErrStackEmpty)
	assert.Equal(HALT_FAULT, cpu.Halt)

	config := DefaultConfig()
	config.StackSize = 2
	cpu, _, err = runProgram(t, config, "PUSH #1\nPUSH #2\nPUSH #3\nEOP", "")
	assert.ErrorIs(err, ErrStackFull)
	assert.Equal(2, cpu.Stack.Depth())

	var ft *Fault
	if assert.True(errors.As(err, &ft)) {
		assert.Equal(FAULT_STORAGE, ft.Kind)
		assert.Equal(2, ft.Ip)
	}
}

func TestCpu_Jump(t *testing.T) {
	assert := assert.New(t)

	table := [](struct {
		name  string
		value string
		jump  string
		taken bool
	}){
		{"jeq_taken", "#2", "JEQ", true},
		{"jeq_not_taken", "#3", "JEQ", false},
		{"jne_taken", "#3", "JNE", true},
		{"jne_not_taken", "#2", "JNE", false},
		{"jlt_taken", "#3", "JLT", true},
		{"jlt_not_taken", "#1", "JLT", false},
		{"jle_equal", "#2", "JLE", true},
		{"jgt_taken", "#1", "JGT", true},
		{"jgt_not_taken", "#3", "JGT", false},
		{"jge_equal", "#2", "JGE", true},
	}

	for _, entry := range table {
		source := []string{
			"MOV R1, #2",
			entry.jump + " R1, " + entry.value + ", skip",
			"MOV R2, #1",
			"skip: MOV R3, #1",
			"EOP",
		}
		cpu, _, err := runProgram(t, DefaultConfig(), strings.Join(source, "\n"), "")
		assert.NoError(err, entry.name)
		assert.Equal(entry.taken, reg(cpu, "R2") == 0, entry.name)
		assert.Equal(int64(1), reg(cpu, "R3"), entry.name)
	}
}

func TestFlags_Test(t *testing.T) {
	assert := assert.New(t)

	lt := Flags{Negative: true}
	eq := Flags{Zero: true}
	gt := Flags{}

	table := [](struct {
		op         Mnemonic
		lt, eq, gt bool
	}){
		{OP_JEQ, false, true, false},
		{OP_JNE, true, false, true},
		{OP_JLT, true, false, false},
		{OP_JLE, true, true, false},
		{OP_JGT, false, false, true},
		{OP_JGE, false, true, true},
		{OP_JMP, false, false, false},
	}

	for _, entry := range table {
		assert.Equal(entry.lt, lt.Test(entry.op), entry.op.String())
		assert.Equal(entry.eq, eq.Test(entry.op), entry.op.String())
		assert.Equal(entry.gt, gt.Test(entry.op), entry.op.String())
	}
}

func TestCpu_Loop(t *testing.T) {
	assert := assert.New(t)

	source := []string{
		"      MOV R1, #0",
		"loop: ADD R1, #1",
		"      PRNT R1",
		"      JLT R1, #3, loop",
		"      EOP",
	}

	cpu, output, err := runProgram(t, DefaultConfig(), strings.Join(source, "\n"), "")
	assert.NoError(err)
	assert.Equal(int64(3), reg(cpu, "R1"))
	assert.Equal("1\n2\n3\n", output.String())
}

func TestCpu_Call(t *testing.T) {
	assert := assert.New(t)

	source := []string{
		"     CALL sub",
		"     MOV R2, #1",
		"     EOP",
		"sub: MOV R1, #42",
		"     RET",
	}

	cpu, _, err := runProgram(t, DefaultConfig(), strings.Join(source, "\n"), "")
	assert.NoError(err)
	assert.Equal(int64(42), reg(cpu, "R1"))
	assert.Equal(int64(1), reg(cpu, "R2"))
	assert.True(cpu.Stack.Empty())
	assert.Equal(5, cpu.Ticks)

	cpu, _, err = runProgram(t, DefaultConfig(), "RET", "")
	assert.ErrorIs(err, ErrStackEmpty)
	assert.Equal(HALT_FAULT, cpu.Halt)
}

func TestCpu_Console(t *testing.T) {
	assert := assert.New(t)

	source := []string{
		"SCAN R1",
		"SCAN R2",
		"ADD R1, R2",
		"PRNT R1",
		"PRNT #9",
		"EOP",
	}

	cpu, output, err := runProgram(t, DefaultConfig(), strings.Join(source, "\n"), "3 -4")
	assert.NoError(err)
	assert.Equal("-1\n9\n", output.String())
	assert.Equal(0, len(cpu.Faults))
}

func TestCpu_ConsoleExhausted(t *testing.T) {
	assert := assert.New(t)

	cpu, _, err := runProgram(t, DefaultConfig(), "MOV R1, #5\nSCAN R1\nEOP", "")
	assert.NoError(err)
	assert.Equal(int64(0), reg(cpu, "R1"))
	assert.Equal(HALT_EOP, cpu.Halt)
	if assert.Equal(1, len(cpu.Faults)) {
		assert.Equal(FAULT_IO, cpu.Faults[0].Kind)
		assert.ErrorIs(cpu.Faults[0].Err, ErrChannelEmpty)
	}
}

func TestCpu_Temporary(t *testing.T) {
	assert := assert.New(t)

	console := &io.Temporary{Capacity: 2}

	cpu := NewCpu(DefaultConfig())
	cpu.SetChannel(console)
	cpu.Reset()

	asm := &Assembler{}
	stmts, err := asm.Parse(strings.NewReader("PRNT #5\nPRNT R1\nPRNT #6\nEOP"))
	assert.NoError(err)
	_, err = cpu.Load(asm, stmts)
	assert.NoError(err)

	assert.NoError(cpu.Run())
	assert.Equal([]int64{5, 0}, console.Values())
	if assert.Equal(1, len(cpu.Faults)) {
		assert.Equal(FAULT_IO, cpu.Faults[0].Kind)
		assert.Equal(2, cpu.Faults[0].Ip)
		assert.ErrorIs(cpu.Faults[0].Err, io.ErrChannelFull)
	}

	cpu = NewCpu(DefaultConfig())
	assert.NoError(cpu.LoadBinary([]Word{MakeCode(OP_PRNT, Operand{MODE_IMMEDIATE, 1}).Word(), MakeCode(OP_EOP).Word()}))
	assert.NoError(cpu.Run())
	if assert.Equal(1, len(cpu.Faults)) {
		assert.ErrorIs(cpu.Faults[0].Err, ErrChannelInvalid)
	}
}

func TestCpu_Bounded(t *testing.T) {
	assert := assert.New(t)

	config := DefaultConfig()
	config.Bounded = true
	config.Origin = 16
	config.CodeSize = 4

	table := [](struct {
		name   string
		source string
		halt   HaltReason
		ticks  int
	}){
		{"eop", "MOV R1, #1\nEOP", HALT_EOP, 2},
		{"empty", "MOV R1, #1\nMOV R2, #2", HALT_EMPTY, 2},
		{"window_end", "MOV R1, #1\nMOV R1, #2\nMOV R1, #3\nMOV R1, #4", HALT_WINDOW, 4},
		{"window_jump", "MOV R1, #1\nJMP #100", HALT_WINDOW, 2},
	}

	for _, entry := range table {
		cpu, _, err := runProgram(t, config, entry.source, "")
		assert.NoError(err, entry.name)
		assert.Equal(entry.halt, cpu.Halt, entry.name)
		assert.Equal(entry.ticks, cpu.Ticks, entry.name)
		assert.NotEqual(int64(0), reg(cpu, "R1"), entry.name)

		cell, _ := cpu.Storage.LoadMemory(16)
		assert.NotEqual(int64(0), cell, entry.name)
	}
}

func TestCpu_StepLimit(t *testing.T) {
	assert := assert.New(t)

	config := DefaultConfig()
	config.StepLimit = 10

	cpu, _, err := runProgram(t, config, "loop: ADD R1, #1\nJMP loop", "")
	assert.ErrorIs(err, ErrStepLimit)
	assert.Equal(HALT_STEP_LIMIT, cpu.Halt)
	assert.Equal(10, cpu.Ticks)
	assert.Equal(int64(5), reg(cpu, "R1"))

	assert.ErrorIs(cpu.Tick(), ErrHalted)
}

func TestCpu_DecodeFault(t *testing.T) {
	assert := assert.New(t)

	bad := Code{Op: Mnemonic(0x07)}
	mov := MakeCode(OP_MOV, Operand{MODE_REGISTER, 1}, Operand{MODE_IMMEDIATE, 1})
	eop := MakeCode(OP_EOP)

	cpu, err := runBinary(t, DefaultConfig(), bad, mov, eop)
	assert.ErrorIs(err, ErrOpcodeDecode)
	assert.ErrorIs(err, ErrOpcode(0))
	assert.Equal(HALT_FAULT, cpu.Halt)
	assert.Equal(int64(0), reg(cpu, "R1"))

	var ft *Fault
	if assert.True(errors.As(err, &ft)) {
		assert.Equal(FAULT_DECODE, ft.Kind)
		assert.Equal(0, ft.Ip)
		assert.Equal(bad.Word(), ft.Word)
	}

	config := DefaultConfig()
	config.DecodeFault = POLICY_SKIP
	cpu, err = runBinary(t, config, bad, mov, eop)
	assert.NoError(err)
	assert.Equal(HALT_EOP, cpu.Halt)
	assert.Equal(int64(1), reg(cpu, "R1"))
	assert.Equal(3, cpu.Ticks)
	if assert.Equal(1, len(cpu.Faults)) {
		assert.Equal(FAULT_DECODE, cpu.Faults[0].Kind)
	}
}

func TestCpu_WordRange(t *testing.T) {
	assert := assert.New(t)

	cpu := NewCpu(DefaultConfig())
	cpu.Storage.StoreMemory(0, -1)
	cpu.Storage.StoreMemory(1, int64(MakeCode(OP_EOP).Word()))

	err := cpu.Run()
	assert.ErrorIs(err, ErrWordRange)

	config := DefaultConfig()
	config.DecodeFault = POLICY_SKIP
	cpu = NewCpu(config)
	cpu.Storage.StoreMemory(0, 1<<40)
	cpu.Storage.StoreMemory(1, int64(MakeCode(OP_EOP).Word()))

	assert.NoError(cpu.Run())
	assert.Equal(HALT_EOP, cpu.Halt)
	assert.Equal(1, len(cpu.Faults))
}

func TestCpu_StorageFault(t *testing.T) {
	assert := assert.New(t)

	source := "MOV R1, R9\nMOV R2, #1\nEOP"

	cpu, _, err := runProgram(t, DefaultConfig(), source, "")
	assert.Equal(HALT_FAULT, cpu.Halt)
	assert.Equal(int64(0), reg(cpu, "R2"))

	var undefined ErrRegisterUndefined
	if assert.True(errors.As(err, &undefined)) {
		assert.Equal(ErrRegisterUndefined("R9"), undefined)
	}

	var ft *Fault
	if assert.True(errors.As(err, &ft)) {
		assert.Equal(FAULT_STORAGE, ft.Kind)
		assert.Equal(2, ft.Arg)
		assert.Equal(Operand{MODE_REGISTER, 9}, ft.Operand)
	}

	config := DefaultConfig()
	config.StorageFault = POLICY_SKIP
	cpu, _, err = runProgram(t, config, source, "")
	assert.NoError(err)
	assert.Equal(HALT_EOP, cpu.Halt)
	assert.Equal(int64(1), reg(cpu, "R2"))
	assert.Equal(1, len(cpu.Faults))
}

func TestCpu_OperandFault(t *testing.T) {
	assert := assert.New(t)

	bad := MakeCode(OP_MOV, Operand{MODE_IMMEDIATE, 1}, Operand{MODE_IMMEDIATE, 2})

	cpu, err := runBinary(t, DefaultConfig(), bad, MakeCode(OP_EOP))
	assert.ErrorIs(err, ErrOperandReadOnly)
	assert.Equal(HALT_FAULT, cpu.Halt)

	var ft *Fault
	if assert.True(errors.As(err, &ft)) {
		assert.Equal(FAULT_OPERAND, ft.Kind)
		assert.Equal(1, ft.Arg)
		assert.Equal(Operand{MODE_IMMEDIATE, 1}, ft.Operand)
	}
}

func TestCpu_FetchOutOfMemory(t *testing.T) {
	assert := assert.New(t)

	config := DefaultConfig()
	config.StorageFault = POLICY_SKIP

	cpu, _, err := runProgram(t, config, "JMP #255", "")
	assert.ErrorIs(err, ErrAddressRange(256))
	assert.Equal(HALT_FAULT, cpu.Halt)
}

func TestCpu_String(t *testing.T) {
	assert := assert.New(t)

	cpu, _, err := runProgram(t, DefaultConfig(), "MOV R1, #5\nEOP", "")
	assert.NoError(err)

	text := cpu.String()
	assert.Contains(text, "halted")
	assert.Contains(text, "eop")
	assert.Contains(text, "R1: 5")
}
