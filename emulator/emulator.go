// Copyright 2024, Jason S. McMullan <jason.mcmullan@gmail.com>

package emulator

import (
	"errors"
	stdio "io"
	"iter"
	"maps"

	"github.com/k0kubun/pp/v3"

	"github.com/ezrec/isk/cpu"
	"github.com/ezrec/isk/internal"
	"github.com/ezrec/isk/io"
)

// Emulator state. CPU + console + program listing.
type Emulator struct {
	Verbose  bool         // If set, enables verbose logging.
	*cpu.Cpu              // Reference to the CPU simulation.
	Program  *cpu.Program // Reference to the currently loaded program listing.

	Tape     io.Tape       // Tape console channel.
	Warnings []cpu.Warning // Assembler warnings for the loaded program.
}

// NewEmulator creates a new emulator, with the tape as its console.
func NewEmulator(config cpu.Config) (emu *Emulator) {
	emu = &Emulator{
		Cpu:     cpu.NewCpu(config),
		Program: &cpu.Program{Origin: config.Origin},
	}

	emu.Cpu.SetChannel(&emu.Tape)

	return
}

// Defines returns an iterator over all of the defines
func (emu *Emulator) Defines() iter.Seq2[string, int64] {
	emulatorDefines := map[string]int64{
		"REGISTER_COUNT": int64(emu.Cpu.Config.Registers),
	}

	return internal.IterSeq2Concat(maps.All(emulatorDefines),
		emu.Cpu.Defines(),
	)
}

// Assemble compiles program source and loads it, ready to run.
func (emu *Emulator) Assemble(input stdio.Reader) (err error) {
	asm := &cpu.Assembler{Verbose: emu.Verbose}
	for name, value := range emu.Defines() {
		asm.Predefine(name, value)
	}

	stmts, err := asm.Parse(input)
	if err != nil {
		return
	}

	asm.Reset()
	emu.Cpu.Reset()
	prog, err := emu.Cpu.Load(asm, stmts)
	if err != nil {
		return
	}

	emu.Program = prog
	emu.Warnings = asm.Warnings

	return
}

// LoadImage loads a binary program image at the origin, ready to run.
// Images carry no source, so LineNo is always 0.
func (emu *Emulator) LoadImage(input stdio.Reader) (err error) {
	img := &io.Image{}
	err = img.Unmarshal(input)
	if err != nil {
		return
	}

	origin := emu.Cpu.Config.Origin
	prog := &cpu.Program{Origin: origin}
	for n, data := range img.Data {
		prog.Opcodes = append(prog.Opcodes, cpu.Opcode{Ip: origin + n, Code: cpu.Word(data)})
	}

	emu.Program = prog
	emu.Warnings = nil

	err = emu.Reset()
	return
}

// SaveImage writes the loaded program as a binary image.
func (emu *Emulator) SaveImage(output stdio.Writer) (err error) {
	img := &io.Image{}
	for _, word := range emu.Program.Binary() {
		img.Data = append(img.Data, uint32(word))
	}

	err = img.Marshal(output)
	return
}

// Reset the cpu and reload the program.
func (emu *Emulator) Reset() (err error) {
	emu.Cpu.Verbose = false

	emu.Cpu.Reset()
	for ip, code := range emu.Program.Codes() {
		err = emu.Cpu.Storage.StoreMemory(ip, int64(code))
		if err != nil {
			return
		}
	}
	emu.Cpu.Storage.StoreRegister(cpu.REG_PC, int64(emu.Program.Origin))

	emu.Cpu.Verbose = emu.Verbose

	return
}

// Ip returns the address of the next instruction.
func (emu *Emulator) Ip() int {
	pc, _ := emu.Cpu.Storage.LoadRegister(cpu.REG_PC)
	return int(pc)
}

// Code returns the next instruction code.
func (emu *Emulator) Code() cpu.Word {
	for ip, code := range emu.Program.Codes() {
		if emu.Ip() == ip {
			return code
		}
	}

	return 0
}

// LineNo returns the source line number of the next instruction.
func (emu *Emulator) LineNo() int {
	dbg := emu.Program.Debug(emu.Ip())
	if dbg == nil {
		return 0
	}

	return dbg.LineNo
}

// Tick performs a single tick of the emulator.
func (emu *Emulator) Tick() (done bool, err error) {
	// Set CPU verbosity
	emu.Cpu.Verbose = emu.Verbose

	lineno := emu.LineNo()
	defer func() {
		if err != nil {
			err = &ErrRuntime{LineNo: lineno, Err: err}
		}
	}()

	err = emu.Cpu.Tick()
	if errors.Is(err, cpu.ErrHalted) {
		err = nil
		done = true
		return
	}
	if err != nil {
		done = true
		return
	}

	return
}

// Run ticks until the program halts.
func (emu *Emulator) Run() (err error) {
	for done := false; !done; {
		done, err = emu.Tick()
		if err != nil {
			return
		}
	}

	return
}

// State is a snapshot of the machine for display.
type State struct {
	State     string
	Halt      string
	Flags     cpu.Flags
	Ticks     int
	LineNo    int
	Registers map[string]int64
	Memory    map[int]int64
	Faults    []string
	Warnings  []string
}

// Snapshot captures the current machine state.
func (emu *Emulator) Snapshot() (state *State) {
	state = &State{
		State:     emu.Cpu.State.String(),
		Halt:      emu.Cpu.Halt.String(),
		Flags:     emu.Cpu.Flags,
		Ticks:     emu.Cpu.Ticks,
		LineNo:    emu.LineNo(),
		Registers: maps.Collect(emu.Cpu.Storage.Registers()),
		Memory:    maps.Collect(emu.Cpu.Storage.Memory()),
	}

	for _, ft := range emu.Cpu.Faults {
		state.Faults = append(state.Faults, ft.Error())
	}
	for _, warn := range emu.Warnings {
		state.Warnings = append(state.Warnings, warn.String())
	}

	return
}

// Dump pretty-prints the machine state.
func (emu *Emulator) Dump(output stdio.Writer, color bool) (err error) {
	printer := pp.New()
	printer.SetColoringEnabled(color)

	_, err = printer.Fprintln(output, emu.Snapshot())
	return
}
