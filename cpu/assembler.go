// Copyright 2024, Jason S. McMullan <jason.mcmullan@gmail.com>

package cpu

import (
	"bufio"
	"io"
	"log"
	"maps"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Warning records a recoverable assembler problem.
type Warning struct {
	LineNo int
	Name   string // Unresolved name, encoded as address 0.
}

func (w Warning) String() string {
	return f("line %d: '%v' undefined, using address 0", w.LineNo, w.Name)
}

// Assembler is a two pass assembler for the isk instruction set.
//
// The first pass (PreEncode) consumes DEF declarations, records labels and
// expands three operand conditional jumps. The second pass (Encode) packs
// each remaining statement into a word.
type Assembler struct {
	Verbose     bool      // If set, verbosely logs the assembler actions.
	FixedOrigin bool      // If set, programs are placed at Origin instead of PC.
	Origin      int       // Fixed program origin.
	Warnings    []Warning // Unresolved names seen while encoding.

	Variable map[string]int64 // DEF name to address.
	Label    map[string]int   // Label to word offset from the program origin.

	predefine map[string]int64
	origin    int
	lineno    int
}

// Predefine defines a variable that survives Reset.
func (asm *Assembler) Predefine(name string, value int64) {
	if asm.predefine == nil {
		asm.predefine = map[string]int64{name: value}
	} else {
		asm.predefine[name] = value
	}
}

// Reset clears all variables, labels and warnings.
func (asm *Assembler) Reset() {
	asm.Variable = maps.Clone(asm.predefine)
	if asm.Variable == nil {
		asm.Variable = make(map[string]int64)
	}
	asm.Label = make(map[string]int)
	asm.Warnings = nil
	asm.origin = 0
	asm.lineno = 0
}

func (asm *Assembler) lazyInit() {
	if asm.Variable == nil || asm.Label == nil {
		asm.Reset()
	}
}

// Tokenize splits a source line into words. A ';' starts a comment;
// whitespace and commas separate words, except inside $(...).
func Tokenize(line string) (words []string) {
	line, _, _ = strings.Cut(line, ";")

	var word strings.Builder
	depth := 0
	flush := func() {
		if word.Len() > 0 {
			words = append(words, word.String())
			word.Reset()
		}
	}

	for _, r := range line {
		switch {
		case r == '(':
			depth++
		case r == ')' && depth > 0:
			depth--
		case depth == 0 && (r == ',' || unicode.IsSpace(r)):
			flush()
			continue
		}
		word.WriteRune(r)
	}
	flush()

	return
}

// Parse reads program source, one statement per non-blank line.
func (asm *Assembler) Parse(input io.Reader) (stmts []Statement, err error) {
	scanner := bufio.NewScanner(input)

	var lineno int
	for scanner.Scan() {
		text := scanner.Text()
		lineno += 1

		if asm.Verbose {
			log.Printf("%v: %v\n", lineno, text)
		}

		words := Tokenize(text)
		if len(words) == 0 {
			continue
		}
		stmts = append(stmts, Statement{LineNo: lineno, Words: words})
	}

	err = scanner.Err()
	return
}

// Assemble parses the source and encodes it into storage.
func (asm *Assembler) Assemble(st *Storage, input io.Reader) (prog *Program, err error) {
	stmts, err := asm.Parse(input)
	if err != nil {
		return
	}

	asm.Reset()
	prog, err = asm.EncodeProgram(st, stmts)
	return
}

// conditionalJump is true for the jumps that PreEncode expands.
func conditionalJump(name string) bool {
	op, ok := LookupMnemonic(name)
	return ok && op.Conditional()
}

// PreEncode normalizes statements. DEF declarations are consumed into the
// variable table, labels are recorded, aliases are rewritten and three
// operand conditional jumps become a CMP followed by a one operand jump.
func (asm *Assembler) PreEncode(stmts []Statement) (result []Statement, err error) {
	asm.lazyInit()

	var stmt Statement
	defer func() {
		if err != nil {
			err = ErrSyntax{LineNo: stmt.LineNo, Line: strings.Join(stmt.Words, " "), Err: err}
		}
	}()

	slot := 0
	for _, stmt = range stmts {
		words := stmt.Words

		for len(words) > 0 && strings.HasSuffix(words[0], ":") {
			label := strings.TrimSuffix(words[0], ":")
			if _, ok := asm.Label[label]; ok {
				err = ErrLabelDuplicate
				return
			}
			asm.Label[label] = slot
			words = words[1:]
		}

		if len(words) == 0 {
			continue
		}

		name := strings.ToUpper(words[0])
		switch {
		case name == "DEF":
			if len(words) != 3 {
				err = ErrDefineSyntax
				return
			}
			if _, ok := asm.Variable[words[1]]; ok {
				err = ErrDefineDuplicate
				return
			}
			var value int64
			value, err = asm.valueOf(words[2])
			if err != nil {
				return
			}
			asm.Variable[words[1]] = value
			if asm.Verbose {
				log.Printf("DEF %v = %v", words[1], value)
			}
			continue
		case name == "DEV":
			// DEV a, b => MOV a, b
			words = append([]string{"MOV"}, words[1:]...)
			if len(words) == 2 {
				words = append(words, "#0")
			}
		case name == "FUNC":
			words = []string{"EOP"}
		case conditionalJump(name) && len(words) == 4:
			// Jcc a, b, target => CMP a, b; Jcc target
			result = append(result, Statement{LineNo: stmt.LineNo, Words: []string{"CMP", words[1], words[2]}})
			slot++
			words = []string{name, words[3]}
		}

		result = append(result, Statement{LineNo: stmt.LineNo, Words: words})
		slot++
	}

	return
}

var registerRegexp = regexp.MustCompile(`^[rR]([0-9]+)$`)
var indexedRegexp = regexp.MustCompile(`^[iI]1(?:([+-][0-9]+))?$`)
var nameRegexp = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// register returns the register number of an Rn word.
func (asm *Assembler) register(word string) (reg uint8, ok bool, err error) {
	match := registerRegexp.FindStringSubmatch(word)
	if match == nil {
		return
	}
	ok = true

	n, err := strconv.ParseUint(match[1], 10, 8)
	if err != nil {
		err = ErrRegisterInvalid
		return
	}

	reg = uint8(n)
	return
}

// valueOf returns the value of a number, variable or $(...) expression.
func (asm *Assembler) valueOf(word string) (value int64, err error) {
	if strings.HasPrefix(word, "$(") && strings.HasSuffix(word, ")") {
		value, err = asm.parenEval(word[2 : len(word)-1])
		return
	}

	if v, ok := asm.Variable[word]; ok {
		value = v
		return
	}

	value, err = strconv.ParseInt(word, 0, 64)
	if err != nil {
		err = ErrParseNumber(word)
	}

	return
}

// parenEval does compile-time $(...) evaluations
func (asm *Assembler) parenEval(expr string) (value int64, err error) {
	thread := starlark.Thread{}
	opts := syntax.FileOptions{}
	pred := starlark.StringDict{}
	for key, value := range asm.Variable {
		pred[key] = starlark.MakeInt64(value)
	}
	for key, offset := range asm.Label {
		pred[key] = starlark.MakeInt(asm.origin + offset)
	}
	prog := "rc=" + expr + "\n"
	dict, err := starlark.ExecFileOptions(&opts, &thread, "expr", prog, pred)
	if err != nil {
		return
	}
	st_rc, ok := dict["rc"]
	if !ok {
		err = ErrParseExpression(expr)
		return
	}
	st_int, ok := st_rc.(starlark.Int)
	if !ok {
		err = ErrParseExpression(expr)
		return
	}
	value, ok = st_int.Int64()
	if !ok {
		err = ErrParseExpression(expr)
		return
	}
	return
}

// addressOf resolves a direct or indirect address word. Names that are
// neither variables nor labels resolve to address 0 with a warning.
func (asm *Assembler) addressOf(word string) (addr uint8, err error) {
	var value int64

	if offset, ok := asm.Label[word]; ok {
		value = int64(asm.origin + offset)
	} else {
		value, err = asm.valueOf(word)
		if err != nil {
			if !nameRegexp.MatchString(word) {
				err = ErrParseValue(word)
				return
			}
			err = nil
			warn := Warning{LineNo: asm.lineno, Name: word}
			asm.Warnings = append(asm.Warnings, warn)
			if asm.Verbose {
				log.Printf("warning: %v", warn)
			}
			return
		}
	}

	if value < 0 || value > 0xff {
		err = ErrAddressInvalid
		return
	}

	addr = uint8(value)
	return
}

// operand encodes a single operand word.
func (asm *Assembler) operand(word string) (arg Operand, err error) {
	if len(word) == 0 {
		err = ErrParseValue(word)
		return
	}

	switch strings.ToLower(word) {
	case "push":
		arg.Mode = MODE_PUSH
		return
	case "pop":
		arg.Mode = MODE_POP
		return
	}

	if reg, ok, rerr := asm.register(word); ok {
		arg = Operand{Mode: MODE_REGISTER, Addr: reg}
		err = rerr
		return
	}

	if match := indexedRegexp.FindStringSubmatch(word); match != nil {
		arg.Mode = MODE_INDEXED
		if len(match[1]) == 0 {
			return
		}
		var disp int64
		disp, err = strconv.ParseInt(match[1], 10, 8)
		if err != nil {
			err = ErrAddressInvalid
			return
		}
		arg.Addr = uint8(int8(disp))
		return
	}

	switch word[0] {
	case '#':
		var value int64
		value, err = asm.valueOf(word[1:])
		if err != nil {
			return
		}
		if value < 0 || value > 0xff {
			err = ErrImmediateRange
			return
		}
		arg = Operand{Mode: MODE_IMMEDIATE, Addr: uint8(value)}
		return
	case '*', '@':
		inner := word[1:]
		if len(inner) == 0 {
			err = ErrParseValue(word)
			return
		}
		if reg, ok, rerr := asm.register(inner); ok {
			arg = Operand{Mode: MODE_REGISTER_INDIRECT, Addr: reg}
			err = rerr
			return
		}
		if word[0] == '@' {
			err = ErrRegisterInvalid
			return
		}
		arg.Mode = MODE_INDIRECT
		arg.Addr, err = asm.addressOf(inner)
		return
	}

	// Labels are jump targets, so they encode as their address.
	if offset, ok := asm.Label[word]; ok {
		value := asm.origin + offset
		if value < 0 || value > 0xff {
			err = ErrLabelRange
			return
		}
		arg = Operand{Mode: MODE_IMMEDIATE, Addr: uint8(value)}
		return
	}

	arg.Mode = MODE_DIRECT
	arg.Addr, err = asm.addressOf(word)
	return
}

// destination is true for opcodes that write their first operand.
func destination(op Mnemonic) bool {
	switch op {
	case OP_MOV, OP_POP, OP_SCAN, OP_ADD, OP_SUB, OP_MUL, OP_DIV, OP_MOD:
		return true
	}
	return false
}

// Encode packs a normalized statement into a word.
func (asm *Assembler) Encode(stmt Statement) (word Word, err error) {
	asm.lazyInit()
	asm.lineno = stmt.LineNo

	if len(stmt.Words) == 0 {
		err = ErrOpcodeMissing
		return
	}

	op, ok := LookupMnemonic(stmt.Words[0])
	if !ok {
		err = ErrOpcodeInvalid
		return
	}

	words := stmt.Words[1:]
	if len(words) > op.Args() {
		err = ErrOpcodeExtraArgs
		return
	}
	if len(words) < op.Args() {
		err = ErrOpcodeValueMissing
		return
	}

	code := Code{Op: op}
	for n, w := range words {
		code.Args[n], err = asm.operand(w)
		if err != nil {
			return
		}
	}

	if destination(op) {
		target := code.Args[0].Mode
		if !target.Writable() || (op.Class() == CLASS_ALU && target == MODE_PUSH) {
			err = ErrTargetInvalid
			return
		}
	}

	word = code.Word()
	return
}

// EncodeProgram pre-encodes the statements, then stores their words
// sequentially from the origin, leaving PC just past the last word.
func (asm *Assembler) EncodeProgram(st *Storage, stmts []Statement) (prog *Program, err error) {
	asm.lazyInit()

	origin := asm.Origin
	if !asm.FixedOrigin {
		var pc int64
		pc, err = st.LoadRegister(REG_PC)
		if err != nil {
			return
		}
		origin = int(pc)
	}
	asm.origin = origin

	stmts, err = asm.PreEncode(stmts)
	if err != nil {
		return
	}

	if asm.Verbose {
		log.Printf("encoding %v statements at %v", len(stmts), origin)
	}

	prog = &Program{Origin: origin}
	ip := origin
	for _, stmt := range stmts {
		var word Word
		word, err = asm.Encode(stmt)
		if err == nil {
			err = st.StoreMemory(ip, int64(word))
		}
		if err != nil {
			err = ErrSyntax{LineNo: stmt.LineNo, Line: strings.Join(stmt.Words, " "), Err: err}
			prog = nil
			return
		}
		if asm.Verbose {
			log.Printf("%03d: %032b %v", ip, uint32(word), strings.Join(stmt.Words, " "))
		}
		prog.Opcodes = append(prog.Opcodes, Opcode{LineNo: stmt.LineNo, Ip: ip, Words: stmt.Words, Code: word})
		ip++
	}

	st.StoreRegister(REG_PC, int64(ip))

	return
}
