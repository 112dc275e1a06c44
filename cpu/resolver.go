package cpu

// Resolver maps an operand's addressing mode and address field to a value
// or a write target in Storage.
type Resolver struct {
	Storage *Storage
	Stack   *Stack
}

// memory loads the cell at an address held in a 64-bit value.
func (rs *Resolver) memory(addr int64) (value int64, err error) {
	if addr < 0 || addr >= int64(rs.Storage.Size()) {
		err = ErrAddressRange(addr)
		return
	}
	return rs.Storage.LoadMemory(int(addr))
}

// store writes the cell at an address held in a 64-bit value.
func (rs *Resolver) store(addr int64, value int64) (err error) {
	if addr < 0 || addr >= int64(rs.Storage.Size()) {
		err = ErrAddressRange(addr)
		return
	}
	return rs.Storage.StoreMemory(int(addr), value)
}

// Read resolves an operand to a value.
func (rs *Resolver) Read(mode CodeMode, addr uint8) (value int64, err error) {
	switch mode {
	case MODE_REGISTER:
		value, err = rs.Storage.LoadRegister(RegisterName(addr))
	case MODE_REGISTER_INDIRECT:
		var ptr int64
		ptr, err = rs.Storage.LoadRegister(RegisterName(addr))
		if err != nil {
			return
		}
		value, err = rs.memory(ptr)
	case MODE_DIRECT:
		value, err = rs.memory(int64(addr))
	case MODE_INDIRECT:
		var ptr int64
		ptr, err = rs.memory(int64(addr))
		if err != nil {
			return
		}
		value, err = rs.memory(ptr)
	case MODE_INDEXED:
		var base int64
		base, err = rs.Storage.LoadRegister(REG_I1)
		if err != nil {
			return
		}
		value, err = rs.memory(base + int64(int8(addr)))
	case MODE_IMMEDIATE:
		value = int64(addr)
	case MODE_PUSH:
		// Reading a push operand yields the address of the new slot.
		var slot int
		slot, err = rs.Stack.Allocate()
		value = int64(slot)
	case MODE_POP:
		value, err = rs.Stack.Pop()
	default:
		err = ErrParseValue(mode.String())
	}

	return
}

// Write stores value to the target of an operand.
func (rs *Resolver) Write(mode CodeMode, addr uint8, value int64) (err error) {
	switch mode {
	case MODE_REGISTER:
		rs.Storage.StoreRegister(RegisterName(addr), value)
	case MODE_REGISTER_INDIRECT:
		var ptr int64
		ptr, err = rs.Storage.LoadRegister(RegisterName(addr))
		if err != nil {
			return
		}
		err = rs.store(ptr, value)
	case MODE_DIRECT:
		err = rs.store(int64(addr), value)
	case MODE_INDIRECT:
		var ptr int64
		ptr, err = rs.memory(int64(addr))
		if err != nil {
			return
		}
		err = rs.store(ptr, value)
	case MODE_PUSH:
		err = rs.Stack.Push(value)
	default:
		err = ErrOperandReadOnly
	}

	return
}

// AutoIncrement reads memory at the address held in reg, then adds one to reg.
func (rs *Resolver) AutoIncrement(reg string) (value int64, err error) {
	ptr, err := rs.Storage.LoadRegister(reg)
	if err != nil {
		return
	}

	value, err = rs.memory(ptr)
	if err != nil {
		return
	}

	rs.Storage.StoreRegister(reg, ptr+1)
	return
}

// AutoDecrement subtracts one from reg, then reads memory at the new address.
func (rs *Resolver) AutoDecrement(reg string) (value int64, err error) {
	ptr, err := rs.Storage.LoadRegister(reg)
	if err != nil {
		return
	}

	ptr--
	value, err = rs.memory(ptr)
	if err != nil {
		return
	}

	rs.Storage.StoreRegister(reg, ptr)
	return
}
