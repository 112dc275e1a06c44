package cpu

const (
	STACK_LIMIT = 32 // Default maximum stack depth
)

// Stack is the memory-resident stack. SPR holds the base address and TSP
// the next free slot, so the stack occupies [SPR, TSP).
type Stack struct {
	Storage *Storage
	Limit   int // Maximum depth, or 0 for no limit.
}

func (s *Stack) pointers() (spr, tsp int64, err error) {
	spr, err = s.Storage.LoadRegister(REG_SPR)
	if err != nil {
		return
	}
	tsp, err = s.Storage.LoadRegister(REG_TSP)
	return
}

// Allocate reserves the slot at TSP and advances TSP past it.
func (s *Stack) Allocate() (addr int, err error) {
	_, tsp, err := s.pointers()
	if err != nil {
		return
	}

	if s.Full() {
		err = ErrStackFull
		return
	}

	if tsp < 0 || tsp >= int64(s.Storage.Size()) {
		err = ErrAddressRange(tsp)
		return
	}

	addr = int(tsp)
	s.Storage.StoreRegister(REG_TSP, tsp+1)
	return
}

// Push stores value in a newly allocated slot.
func (s *Stack) Push(value int64) (err error) {
	addr, err := s.Allocate()
	if err != nil {
		return
	}

	err = s.Storage.StoreMemory(addr, value)
	return
}

// Pop retreats TSP and returns the vacated slot.
func (s *Stack) Pop() (value int64, err error) {
	value, err = s.Peek()
	if err != nil {
		return
	}

	tsp, _ := s.Storage.LoadRegister(REG_TSP)
	s.Storage.StoreRegister(REG_TSP, tsp-1)
	return
}

// Peek returns the top of the stack without removing it.
func (s *Stack) Peek() (value int64, err error) {
	spr, tsp, err := s.pointers()
	if err != nil {
		return
	}

	if tsp <= spr {
		err = ErrStackEmpty
		return
	}

	value, err = s.Storage.LoadMemory(int(tsp - 1))
	return
}

// Depth returns the number of values on the stack.
func (s *Stack) Depth() int {
	spr, tsp, err := s.pointers()
	if err != nil || tsp < spr {
		return 0
	}
	return int(tsp - spr)
}

func (s *Stack) Empty() bool {
	return s.Depth() == 0
}

func (s *Stack) Full() bool {
	return s.Limit > 0 && s.Depth() >= s.Limit
}

// Reset empties the stack and moves its base to addr.
func (s *Stack) Reset(addr int) {
	s.Storage.StoreRegister(REG_SPR, int64(addr))
	s.Storage.StoreRegister(REG_TSP, int64(addr))
}
