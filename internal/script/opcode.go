package script

// Opcode is a single decoded script instruction. Numeric values are
// this project's own assignment (the binary script format carries
// whatever id the compiler wrote; only the ids below are understood
// by a registered handler at runtime).
type Opcode int32

const (
	OpPushConstantString Opcode = 0
	OpReturn             Opcode = 1
	OpPopIntDiscard      Opcode = 2
	OpPopStringDiscard   Opcode = 3
	OpGosub              Opcode = 4
	OpJump               Opcode = 5

	OpAdd         Opcode = 100
	OpSub         Opcode = 101
	OpMultiply    Opcode = 102
	OpDivide      Opcode = 103
	OpRandom      Opcode = 104
	OpRandomInc   Opcode = 105
	OpInterpolate Opcode = 106
	OpAddPercent  Opcode = 107
	OpSetBit      Opcode = 108
	OpClearBit    Opcode = 109
	OpTestBit     Opcode = 110
	OpModulo      Opcode = 111
	OpPow         Opcode = 112
	OpInvPow      Opcode = 113
	OpAnd         Opcode = 114
	OpOr          Opcode = 115
	OpMin         Opcode = 116
	OpMax         Opcode = 117
	OpScale       Opcode = 118
	OpBitCount    Opcode = 119
	OpToggleBit   Opcode = 120
	OpSetBitRange Opcode = 121
	// OpClearBitRange is a distinct opcode from OpClearBit: the
	// 3-operand range-clear form the compiler emits separately from
	// the 2-operand single-bit clear.
	OpClearBitRange    Opcode = 122
	OpGetBitRange      Opcode = 123
	OpSetBitRangeToInt Opcode = 124
	OpSinDeg           Opcode = 125
	OpCosDeg           Opcode = 126
	OpAtan2Deg         Opcode = 127
	OpAbs              Opcode = 128

	OpMes Opcode = 200
)
