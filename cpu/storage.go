package cpu

import (
	"fmt"
	"iter"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// Special register names.
const (
	REG_PC  = "PC"  // Address of the next word to fetch.
	REG_IR  = "IR"  // Word being executed.
	REG_BR  = "BR"  // Base register.
	REG_SPR = "SPR" // Stack base.
	REG_TSP = "TSP" // Next free stack slot.
	REG_I1  = "I1"  // Index register for indexed addressing.
	REG_I2  = "I2"  // Second index register.
)

var specialRegisters = []string{REG_PC, REG_IR, REG_BR, REG_SPR, REG_TSP, REG_I1, REG_I2}

// RegisterName returns the name of general-purpose register n.
func RegisterName(n uint8) string {
	return "R" + strconv.Itoa(int(n))
}

// Storage holds the register file and main memory. All stores are visible to
// the next load.
type Storage struct {
	register map[string]int64
	memory   []int64
}

// NewStorage creates storage with size memory cells and no registers.
func NewStorage(size int) (st *Storage) {
	st = &Storage{
		register: make(map[string]int64, 16),
		memory:   make([]int64, size),
	}
	return
}

// Reset zeros memory and defines the special registers and registers
// R0 through R(general-1), all zero.
func (st *Storage) Reset(general int) {
	clear(st.memory)
	clear(st.register)

	for _, name := range specialRegisters {
		st.register[name] = 0
	}
	for n := range general {
		st.register[RegisterName(uint8(n))] = 0
	}
}

// Size returns the number of memory cells.
func (st *Storage) Size() int {
	return len(st.memory)
}

// LoadRegister returns the value of a register.
func (st *Storage) LoadRegister(name string) (value int64, err error) {
	value, ok := st.register[name]
	if !ok {
		err = ErrRegisterUndefined(name)
	}
	return
}

// StoreRegister sets a register, defining it if needed.
func (st *Storage) StoreRegister(name string, value int64) {
	st.register[name] = value
}

// LoadMemory returns the memory cell at addr.
func (st *Storage) LoadMemory(addr int) (value int64, err error) {
	if addr < 0 || addr >= len(st.memory) {
		err = ErrAddressRange(addr)
		return
	}
	value = st.memory[addr]
	return
}

// StoreMemory sets the memory cell at addr.
func (st *Storage) StoreMemory(addr int, value int64) (err error) {
	if addr < 0 || addr >= len(st.memory) {
		err = ErrAddressRange(addr)
		return
	}
	st.memory[addr] = value
	return
}

// registerLess orders special registers first, then R0, R1, ... numerically.
func registerLess(a, b string) int {
	ai := slices.Index(specialRegisters, a)
	bi := slices.Index(specialRegisters, b)
	switch {
	case ai >= 0 && bi >= 0:
		return ai - bi
	case ai >= 0:
		return -1
	case bi >= 0:
		return 1
	}

	an, aerr := strconv.Atoi(strings.TrimPrefix(a, "R"))
	bn, berr := strconv.Atoi(strings.TrimPrefix(b, "R"))
	if aerr == nil && berr == nil {
		return an - bn
	}
	return strings.Compare(a, b)
}

// Registers iterates over the defined registers in display order.
func (st *Storage) Registers() iter.Seq2[string, int64] {
	return func(yield func(name string, value int64) bool) {
		for _, name := range slices.SortedFunc(maps.Keys(st.register), registerLess) {
			if !yield(name, st.register[name]) {
				return
			}
		}
	}
}

// Memory iterates over the non-zero memory cells in address order.
func (st *Storage) Memory() iter.Seq2[int, int64] {
	return func(yield func(addr int, value int64) bool) {
		for addr, value := range st.memory {
			if value == 0 {
				continue
			}
			if !yield(addr, value) {
				return
			}
		}
	}
}

// String returns the registers and non-zero memory as text.
func (st *Storage) String() (text string) {
	for name, value := range st.Registers() {
		text += fmt.Sprintf("% 5s: %v\n", name, value)
	}
	for addr, value := range st.Memory() {
		text += fmt.Sprintf("[%03d]: %v\n", addr, value)
	}
	return
}
