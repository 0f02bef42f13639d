package slotlist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlayer struct {
	name string
}

func TestSetGetRemove(t *testing.T) {
	list := New[fakePlayer](10, 1)

	p := &fakePlayer{name: "zezima"}
	require.NoError(t, list.Set(5, p))
	assert.Equal(t, p, list.Get(5))
	assert.Equal(t, 1, list.Count())

	list.Remove(5)
	assert.Nil(t, list.Get(5))
	assert.Equal(t, 0, list.Count())
}

func TestSetRejectsDuplicateID(t *testing.T) {
	list := New[fakePlayer](10, 1)
	require.NoError(t, list.Set(2, &fakePlayer{}))
	err := list.Set(2, &fakePlayer{})
	assert.Error(t, err)
}

func TestSetRejectsOutOfBounds(t *testing.T) {
	list := New[fakePlayer](4, 1)
	assert.Error(t, list.Set(10, &fakePlayer{}))
}

func TestSetFailsWhenFull(t *testing.T) {
	list := New[fakePlayer](2, 0)
	require.NoError(t, list.Set(0, &fakePlayer{}))
	require.NoError(t, list.Set(1, &fakePlayer{}))
	assert.Error(t, list.Set(0, &fakePlayer{}))
}

func TestNextDefaultScanWrapsThroughPadding(t *testing.T) {
	list := New[fakePlayer](10, 2)
	for id := 2; id < 10; id++ {
		if id != 7 {
			require.NoError(t, list.Set(id, &fakePlayer{}))
		}
	}
	id, err := list.Next(8)
	require.NoError(t, err)
	assert.Equal(t, 7, id)
}

func TestNextFailsWhenFull(t *testing.T) {
	list := New[fakePlayer](3, 0)
	for id := 0; id < 3; id++ {
		require.NoError(t, list.Set(id, &fakePlayer{}))
	}
	_, err := list.Next(0)
	assert.Error(t, err)
}

func TestNextForIPv4PrefersSubnetWindow(t *testing.T) {
	list := New[fakePlayer](2000, 0)
	id, err := list.NextForIPv4(45) // (45 % 20) * 100 = 500
	require.NoError(t, err)
	assert.True(t, id >= 500 && id < 600)
}

func TestNextForIPv4FallsBackWhenWindowFull(t *testing.T) {
	list := New[fakePlayer](700, 0)
	for id := 500; id < 600; id++ {
		require.NoError(t, list.Set(id, &fakePlayer{}))
	}
	id, err := list.NextForIPv4(45)
	require.NoError(t, err)
	assert.True(t, id < 500 || id >= 600)
}

func TestResetClearsEverything(t *testing.T) {
	list := New[fakePlayer](5, 0)
	require.NoError(t, list.Set(1, &fakePlayer{}))
	list.Reset()
	assert.Equal(t, 0, list.Count())
	assert.Nil(t, list.Get(1))

	require.NoError(t, list.Set(1, &fakePlayer{}))
	assert.NotNil(t, list.Get(1))
}

func TestEachVisitsOccupiedIDs(t *testing.T) {
	list := New[fakePlayer](5, 0)
	require.NoError(t, list.Set(1, &fakePlayer{name: "a"}))
	require.NoError(t, list.Set(3, &fakePlayer{name: "b"}))

	var seen []int
	list.Each(func(id int, e *fakePlayer) bool {
		seen = append(seen, id)
		return true
	})
	assert.ElementsMatch(t, []int{1, 3}, seen)
}
