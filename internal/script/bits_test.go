package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBitcount(t *testing.T) {
	assert.EqualValues(t, 0, bitcount(0))
	assert.EqualValues(t, 1, bitcount(1))
	assert.EqualValues(t, 8, bitcount(0xFF))
	assert.EqualValues(t, 32, bitcount(-1))
}

func TestSetAndClearBitRange(t *testing.T) {
	v := setBitRange(0, 4, 7)
	assert.EqualValues(t, 0xF0, v)

	cleared := clearBitRange(v, 5, 6)
	assert.EqualValues(t, 0x90, cleared)
}

func TestGetBitRange(t *testing.T) {
	v := int32(0b1011_0000)
	got := getBitRange(v, 4, 7)
	assert.EqualValues(t, 0b1011, got)
}

func TestSetBitRangeToIntClampsToMax(t *testing.T) {
	result := setBitRangeToInt(0, 999, 0, 3)
	assert.EqualValues(t, 0xF, result)
}
