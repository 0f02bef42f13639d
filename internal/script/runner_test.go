package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scriptOf(opcodes []Opcode, intOperands []int32, stringOperands []string) *File {
	return &File{Opcodes: opcodes, IntOperands: intOperands, StringOperands: stringOperands}
}

func TestExecuteAddAndReturn(t *testing.T) {
	f := scriptOf(
		[]Opcode{OpAdd, OpReturn},
		[]int32{0, 0},
		[]string{"", ""},
	)
	s := New(f, nil, nil)
	s.PushInt(2)
	s.PushInt(3)

	status := Execute(s, false)
	require.Equal(t, Finished, status)
	assert.EqualValues(t, 5, s.PopInt())
}

func TestExecuteUnknownOpcodeAborts(t *testing.T) {
	f := scriptOf([]Opcode{Opcode(9999)}, []int32{0}, []string{""})
	s := New(f, nil, nil)

	status := Execute(s, false)
	assert.Equal(t, Aborted, status)
}

func TestExecuteOutOfRangePCAborts(t *testing.T) {
	f := scriptOf([]Opcode{OpReturn}, []int32{0}, []string{""})
	s := New(f, nil, nil)
	s.PC = 5

	status := Execute(s, false)
	assert.Equal(t, Aborted, status)
}

func TestExecuteOpcountLimitAborts(t *testing.T) {
	Register(Opcode(-100), func(s *State) {
		s.PC = -1 // loop forever by rewinding before the pc++ below
	})

	f := scriptOf([]Opcode{Opcode(-100)}, []int32{0}, []string{""})
	s := New(f, nil, nil)

	status := Execute(s, false)
	assert.Equal(t, Aborted, status)
	assert.Greater(t, s.Opcount, int32(maxOpcount))
}

func TestExecutePanicInHandlerAborts(t *testing.T) {
	Register(Opcode(-200), func(s *State) {
		panic("boom")
	})

	f := scriptOf([]Opcode{Opcode(-200)}, []int32{0}, []string{""})
	s := New(f, nil, nil)

	status := Execute(s, false)
	assert.Equal(t, Aborted, status)
}

func TestInterpolateUsesCorrectedFormula(t *testing.T) {
	f := scriptOf([]Opcode{OpInterpolate, OpReturn}, []int32{0, 0}, []string{"", ""})
	s := New(f, nil, nil)
	// y0=0, y1=100, x0=0, x1=10, x=5 -> expect 50
	s.PushInt(0)
	s.PushInt(100)
	s.PushInt(0)
	s.PushInt(10)
	s.PushInt(5)

	Execute(s, false)
	assert.EqualValues(t, 50, s.PopInt())
}

func TestInterpolateDegenerateReturnsY0(t *testing.T) {
	f := scriptOf([]Opcode{OpInterpolate, OpReturn}, []int32{0, 0}, []string{"", ""})
	s := New(f, nil, nil)
	s.PushInt(7)  // y0
	s.PushInt(99) // y1
	s.PushInt(3)  // x0
	s.PushInt(3)  // x1
	s.PushInt(3)  // x

	Execute(s, false)
	assert.EqualValues(t, 7, s.PopInt())
}

func TestClearBitAndClearBitRangeAreDistinct(t *testing.T) {
	single := scriptOf([]Opcode{OpClearBit, OpReturn}, []int32{0, 0}, []string{"", ""})
	s := New(single, nil, nil)
	s.PushInt(0xFF) // value
	s.PushInt(4)    // bit
	Execute(s, false)
	assert.EqualValues(t, 0xEF, s.PopInt())

	ranged := scriptOf([]Opcode{OpClearBitRange, OpReturn}, []int32{0, 0}, []string{"", ""})
	s2 := New(ranged, nil, nil)
	s2.PushInt(0xFF) // value
	s2.PushInt(4)    // start
	s2.PushInt(7)    // end
	Execute(s2, false)
	assert.EqualValues(t, 0x0F, s2.PopInt())
}
