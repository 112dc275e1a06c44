package cpu

// DivisionMode selects how DIV and MOD round.
type DivisionMode int

const (
	DIVISION_TRUNCATE = DivisionMode(0) // Round toward zero.
	DIVISION_FLOOR    = DivisionMode(1) // Round toward negative infinity.
)

// FaultPolicy selects what a structural fault does to the cpu.
type FaultPolicy int

const (
	POLICY_HALT = FaultPolicy(0) // Halt with the fault.
	POLICY_SKIP = FaultPolicy(1) // Record the fault and continue at the next word.
)

const (
	MEMORY_SIZE    = 256     // Default memory cells; the reach of an 8-bit address.
	REGISTER_COUNT = 8       // Default general-purpose registers defined at reset.
	STEP_LIMIT     = 1 << 20 // Default instruction limit.

	STACK_BASE_AUTO = -1 // Derive the stack base from the memory and stack sizes.
)

// Config holds the machine shape and the behavior of each configurable axis.
type Config struct {
	MemorySize int // Memory cells.
	Registers  int // General-purpose registers defined at reset.
	StackSize  int // Maximum stack depth, or 0 for unbounded.
	StackBase  int // Stack base address, or STACK_BASE_AUTO.

	Origin   int  // Program origin; PC at reset.
	Bounded  bool // Execute only within [Origin, Origin+CodeSize).
	CodeSize int  // Window size, or 0 to extend the window to the stack base.

	StepLimit int // Maximum executed instructions, or 0 for no limit.

	Division     DivisionMode
	DecodeFault  FaultPolicy
	StorageFault FaultPolicy
}

// DefaultConfig returns the default machine.
func DefaultConfig() Config {
	return Config{
		MemorySize: MEMORY_SIZE,
		Registers:  REGISTER_COUNT,
		StackSize:  STACK_LIMIT,
		StackBase:  STACK_BASE_AUTO,
		StepLimit:  STEP_LIMIT,
	}
}

// stackBase returns the configured or derived stack base. A derived
// stack sits at the top of memory, or in the upper half of memory when
// its size is unlimited.
func (cfg *Config) stackBase() int {
	if cfg.StackBase >= 0 {
		return cfg.StackBase
	}
	if cfg.StackSize == 0 {
		return cfg.MemorySize / 2
	}
	base := cfg.MemorySize - cfg.StackSize
	if base < 0 {
		base = 0
	}
	return base
}

// window returns the bounded execution window [lo, hi).
func (cfg *Config) window() (lo, hi int) {
	lo = cfg.Origin
	if cfg.CodeSize > 0 {
		hi = lo + cfg.CodeSize
	} else {
		hi = cfg.stackBase()
	}
	return
}
