package script

import (
	"fmt"
	"path"

	"github.com/rt4serv/rt4serv/internal/buf"
)

// Opcode-range rule used only for on-disk operand width (§6): a small
// set of low-numbered control opcodes and every opcode above 100 use
// a single-byte operand; every other opcode uses four bytes.
func isLargeOperand(opcode int32) bool {
	if opcode > 100 {
		return false
	}
	switch Opcode(opcode) {
	case OpReturn, OpPopIntDiscard, OpPopStringDiscard, OpGosub, OpJump:
		return false
	default:
		return true
	}
}

// SwitchTable maps a case value to a target program counter.
type SwitchTable map[int32]int32

// Info carries a script's debug metadata: its name, source path, the
// lookup key it was compiled under, declared parameter types, and a
// pc-to-source-line table.
type Info struct {
	Name           string
	SourcePath     string
	LookupKey      int32
	ParameterTypes []int32
	pcs            []int32
	lines          []int32
}

// FileName returns the base name of the source path, if any.
func (i Info) FileName() string {
	if i.SourcePath == "" {
		return ""
	}
	return path.Base(i.SourcePath)
}

// File is one compiled script: instructions plus the metadata needed
// to resolve operands, switch statements, and gosub/return framing.
type File struct {
	Info            Info
	ID              int32
	IntLocalCount   int32
	StringLocalCount int32
	IntArgCount     int32
	StringArgCount  int32
	SwitchTables    []SwitchTable
	Opcodes         []Opcode
	IntOperands     []int32
	StringOperands  []string
}

// Name returns the script's declared name.
func (f *File) Name() string { return f.Info.Name }

// LineNumber returns the source line a given pc maps to, per the
// pc/line breakpoint table (the line in effect at pc is the one
// recorded just before the first pcs[] entry greater than pc).
func (f *File) LineNumber(pc int32) int32 {
	for i, p := range f.Info.pcs {
		if p > pc {
			if i > 0 {
				return f.Info.lines[i-1]
			}
			break
		}
	}
	if len(f.Info.lines) > 0 {
		return f.Info.lines[len(f.Info.lines)-1]
	}
	return 0
}

// Decode parses a compiled script from its binary form (§6): a fixed
// trailer at the tail describing local/arg counts and switch tables,
// a head holding name/path/lookup key/parameter types/line table, and
// a body of opcode+operand pairs running from the end of the head to
// the start of the trailer.
func Decode(id int32, raw []byte) (*File, error) {
	if len(raw) < 16 {
		return nil, fmt.Errorf("script: file too short (%d bytes)", len(raw))
	}

	b := buf.From(raw)
	length := len(raw)

	b.SetPosition(length - 2)
	trailerLength := b.ReadShortBE()
	trailerPosition := length - trailerLength - 12 - 2
	if trailerPosition < 0 || trailerPosition >= length {
		return nil, fmt.Errorf("script: invalid trailer position %d", trailerPosition)
	}

	b.SetPosition(trailerPosition)
	f := &File{ID: id}

	_ = b.ReadIntBE() // instruction count hint, unused: Go slices grow on demand

	f.IntLocalCount = int32(b.ReadShortBE())
	f.StringLocalCount = int32(b.ReadShortBE())
	f.IntArgCount = int32(b.ReadShortBE())
	f.StringArgCount = int32(b.ReadShortBE())

	switches := b.ReadByte()
	for i := 0; i < switches; i++ {
		count := b.ReadShortBE()
		table := make(SwitchTable, count)
		for j := 0; j < count; j++ {
			key := b.ReadIntSigned()
			offset := b.ReadIntSigned()
			table[key] = offset
		}
		f.SwitchTables = append(f.SwitchTables, table)
	}

	b.SetPosition(0)
	f.Info.Name = b.ReadString(0)
	f.Info.SourcePath = b.ReadString(0)
	f.Info.LookupKey = b.ReadIntSigned()

	paramCount := b.ReadByte()
	for i := 0; i < paramCount; i++ {
		f.Info.ParameterTypes = append(f.Info.ParameterTypes, int32(b.ReadByte()))
	}

	lineTableLength := b.ReadShortBE()
	for i := 0; i < lineTableLength; i++ {
		f.Info.pcs = append(f.Info.pcs, b.ReadIntSigned())
		f.Info.lines = append(f.Info.lines, b.ReadIntSigned())
	}

	// int_operands and string_operands are kept parallel to opcodes
	// (one slot per instruction, the unused type's slot left at its
	// zero value), so that get_int_operand/get_string_operand can
	// index both by the current pc.
	for trailerPosition > b.Position() {
		opcode := int32(b.ReadShortBE())
		op := Opcode(opcode)

		var intOperand int32
		var stringOperand string

		if op == OpPushConstantString {
			stringOperand = b.ReadString(0)
		} else if isLargeOperand(opcode) {
			intOperand = b.ReadIntSigned()
		} else {
			intOperand = int32(b.ReadByte())
		}

		f.Opcodes = append(f.Opcodes, op)
		f.IntOperands = append(f.IntOperands, intOperand)
		f.StringOperands = append(f.StringOperands, stringOperand)
	}

	return f, nil
}
