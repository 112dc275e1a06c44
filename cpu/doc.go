// Package cpu implements the processor and assembler for the isk system.
//
// The processor has a register file (general-purpose registers R0-R255 plus the
// special registers PC, IR, BR, SPR, TSP, I1 and I2), a flat memory of integer
// cells, and a stack that lives in memory between SPR and TSP. Every instruction
// is a single 32-bit word carrying a 5-bit opcode and two operands, each made of
// a 3-bit addressing mode and an 8-bit address.
//
// The assembler turns whitespace separated instruction lines into words,
// supporting DEF variables, labels, expanded conditional jumps and compile-time
// $(...) expression evaluation.
package cpu
