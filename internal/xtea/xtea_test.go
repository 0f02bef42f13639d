package xtea

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeKeysFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "xteaKeys.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAndGet(t *testing.T) {
	path := writeKeysFile(t, `[
		{"mapsquare": 12850, "key": [1, 2, 3, 4]},
		{"mapsquare": 12851, "key": [0, 0, 0, 0]}
	]`)

	table, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())
	assert.Equal(t, Key{1, 2, 3, 4}, table.Get(12850))
	assert.True(t, table.Get(12851).IsZero())
}

func TestGetMissingMapsquareReturnsZero(t *testing.T) {
	path := writeKeysFile(t, `[{"mapsquare": 1, "key": [9, 9, 9, 9]}]`)
	table, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, Zero, table.Get(999))
}

func TestGetOnNilTableReturnsZero(t *testing.T) {
	var table *Table
	assert.Equal(t, Zero, table.Get(1))
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load("/nonexistent/xteaKeys.json")
	assert.Error(t, err)
}
