package coord

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlagAndIsFlagged(t *testing.T) {
	g := NewZoneGrid()
	assert.False(t, g.IsFlagged(10, 10, 0))

	g.Flag(10, 10)
	assert.True(t, g.IsFlagged(10, 10, 0))
	assert.False(t, g.IsFlagged(20, 20, 0))
}

func TestUnflagClears(t *testing.T) {
	g := NewZoneGrid()
	g.Flag(5, 5)
	g.Unflag(5, 5)
	assert.False(t, g.IsFlagged(5, 5, 0))
}

func TestIsFlaggedWithinRadius(t *testing.T) {
	g := NewZoneGrid()
	g.Flag(100, 100)

	assert.True(t, g.IsFlagged(102, 102, 3))
	assert.False(t, g.IsFlagged(200, 200, 3))
}

func TestFlagCrossesWordBoundary(t *testing.T) {
	g := NewZoneGrid()
	g.Flag(3, 31)
	g.Flag(3, 32)

	assert.True(t, g.IsFlagged(3, 31, 0))
	assert.True(t, g.IsFlagged(3, 32, 0))
	assert.False(t, g.IsFlagged(4, 31, 0))
}

func TestDistinctXDoesNotAlias(t *testing.T) {
	g := NewZoneGrid()
	g.Flag(1, 0)
	assert.False(t, g.IsFlagged(2, 0, 0))
	assert.True(t, g.IsFlagged(1, 0, 0))
}
