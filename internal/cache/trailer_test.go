package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPeekVersionDoesNotMutate(t *testing.T) {
	data := []byte{1, 2, 3, 0x01, 0x02}
	assert.EqualValues(t, 0x0102, PeekVersion(data))
	assert.Len(t, data, 5)
}

func TestStripVersionTruncates(t *testing.T) {
	data := []byte{1, 2, 3, 0x01, 0x02}
	stripped := StripVersion(data)
	assert.Equal(t, []byte{1, 2, 3}, stripped)
}

func TestTooShortIsUnchanged(t *testing.T) {
	assert.EqualValues(t, 0, PeekVersion([]byte{1}))
	assert.Equal(t, []byte{1}, StripVersion([]byte{1}))
}
