package login

import "strings"

// base37Alphabet is '_' (0), then a..z (1-26), then 0..9 (27-36).
const base37Alphabet = "_abcdefghijklmnopqrstuvwxyz0123456789"

// DecodeUsername inverts the client's base-37 username encoding back
// into a display string. value 0 decodes to "_".
func DecodeUsername(value uint64) string {
	if value == 0 {
		return "_"
	}

	var chars []byte
	for value != 0 {
		remainder := value % 37
		value /= 37
		chars = append(chars, base37Alphabet[remainder])
	}

	for i, j := 0, len(chars)-1; i < j; i, j = i+1, j-1 {
		chars[i], chars[j] = chars[j], chars[i]
	}
	return string(chars)
}

// EncodeUsername is the forward direction of DecodeUsername: it maps
// a username string (lowercase letters and digits only) back to the
// base-37 integer the client would have sent. Returns false if the
// string is empty or contains any other character, underscore and
// space included.
func EncodeUsername(name string) (uint64, bool) {
	if name == "" || strings.ContainsRune(name, ' ') {
		return 0, false
	}

	var result uint64
	for _, r := range name {
		idx := strings.IndexRune(base37Alphabet, r)
		if idx <= 0 {
			// '_' (index 0) only ever appears as the whole-string
			// decode of 0; as a standalone character it has no valid
			// encoding, matching the reference encoder's rejection of
			// unrecognized characters.
			return 0, false
		}
		result = result*37 + uint64(idx)
	}
	return result, true
}
