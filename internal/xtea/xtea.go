// Package xtea holds the per-map-square XTEA key table loaded at
// startup. The server never decrypts anything with these keys; they
// are only embedded verbatim into outbound map-rebuild payloads for
// the client's own cache decryption.
package xtea

import (
	"encoding/json"
	"fmt"
	"os"
)

// Key is a 128-bit XTEA key as four 32-bit words, the shape used by
// the client's own cache loader.
type Key [4]int32

// Zero is the key used when a mapsquare has no configured key.
var Zero = Key{0, 0, 0, 0}

// IsZero reports whether k is the all-zero key.
func (k Key) IsZero() bool {
	return k[0] == 0 && k[1] == 0 && k[2] == 0 && k[3] == 0
}

// entry mirrors one record of the on-disk key list.
type entry struct {
	Mapsquare int32 `json:"mapsquare"`
	Key       Key   `json:"key"`
}

// Table is the process-wide, read-only map of mapsquare to XTEA key.
type Table struct {
	keys map[int32]Key
}

// Load parses a JSON array of {mapsquare, key} records from path into
// a lookup table.
func Load(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("xtea: read %s: %w", path, err)
	}

	var entries []entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("xtea: parse %s: %w", path, err)
	}

	keys := make(map[int32]Key, len(entries))
	for _, e := range entries {
		keys[e.Mapsquare] = e.Key
	}
	return &Table{keys: keys}, nil
}

// Get returns the key for mapsquare, or the zero key if none was
// configured.
func (t *Table) Get(mapsquare int32) Key {
	if t == nil {
		return Zero
	}
	if k, ok := t.keys[mapsquare]; ok {
		return k
	}
	return Zero
}

// Len returns the number of configured keys.
func (t *Table) Len() int { return len(t.keys) }
