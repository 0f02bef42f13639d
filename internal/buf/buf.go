// Package buf implements the wire-format byte cursor shared by every
// protocol component: a growable byte slice with an independent byte and
// bit position, clamp-on-underflow reads, and the smart-int encoding used
// throughout the RT4 client/server protocol.
package buf

import "unicode/utf8"

// Buffer is a mutable byte sequence with a read/write cursor. Reads past
// the end clamp the cursor to the length and return the zero value;
// writes past the end grow the backing slice. This asymmetry is
// deliberate: a malformed or truncated packet should never panic the
// connection that is decoding it.
type Buffer struct {
	data   []byte
	pos    int
	bitPos int
}

// New allocates a zero-filled buffer of the given size, cursor at 0.
func New(size int) *Buffer {
	return &Buffer{data: make([]byte, size)}
}

// From wraps an existing slice for reading or appending. Ownership of
// data transfers to the Buffer.
func From(data []byte) *Buffer {
	return &Buffer{data: data}
}

// Bytes returns the full backing slice.
func (b *Buffer) Bytes() []byte { return b.data }

// Len returns the total length of the backing slice.
func (b *Buffer) Len() int { return len(b.data) }

// Position returns the current byte cursor.
func (b *Buffer) Position() int { return b.pos }

// SetPosition moves the byte cursor directly, for protocols that need to
// rewrite a length field after the fact.
func (b *Buffer) SetPosition(pos int) { b.pos = pos }

// Remaining returns the number of unread bytes.
func (b *Buffer) Remaining() int { return len(b.data) - b.pos }

func (b *Buffer) grow(to int) {
	if len(b.data) < to {
		b.data = append(b.data, make([]byte, to-len(b.data))...)
	}
}

// --- writes ---

// WriteByte1 appends the low 8 bits of v.
func (b *Buffer) WriteByte1(v int) {
	b.grow(b.pos + 1)
	b.data[b.pos] = byte(v)
	b.pos++
}

// WriteByteAdd writes v+128 mod 256, the "add" ISAAC-family obfuscation.
func (b *Buffer) WriteByteAdd(v int) { b.WriteByte1(v + 128) }

// WriteByteNeg writes the two's-complement negation of v.
func (b *Buffer) WriteByteNeg(v int) { b.WriteByte1(-v) }

// WriteShortBE appends the low 16 bits of v, big-endian.
func (b *Buffer) WriteShortBE(v int) {
	b.grow(b.pos + 2)
	b.data[b.pos] = byte(v >> 8)
	b.data[b.pos+1] = byte(v)
	b.pos += 2
}

// WriteShortLE appends the low 16 bits of v, little-endian.
func (b *Buffer) WriteShortLE(v int) {
	b.grow(b.pos + 2)
	b.data[b.pos] = byte(v)
	b.data[b.pos+1] = byte(v >> 8)
	b.pos += 2
}

// WriteShortAdd writes a big-endian short with the low byte add-128
// obfuscated, used by the MAP_REBUILD_NORMAL builder.
func (b *Buffer) WriteShortAdd(v int) {
	b.grow(b.pos + 2)
	b.data[b.pos] = byte(v >> 8)
	b.data[b.pos+1] = byte(v + 128)
	b.pos += 2
}

// WriteMedium appends the low 24 bits of v, big-endian.
func (b *Buffer) WriteMedium(v int) {
	b.grow(b.pos + 3)
	b.data[b.pos] = byte(v >> 16)
	b.data[b.pos+1] = byte(v >> 8)
	b.data[b.pos+2] = byte(v)
	b.pos += 3
}

// WriteIntBE appends v big-endian.
func (b *Buffer) WriteIntBE(v int32) {
	b.grow(b.pos + 4)
	u := uint32(v)
	b.data[b.pos] = byte(u >> 24)
	b.data[b.pos+1] = byte(u >> 16)
	b.data[b.pos+2] = byte(u >> 8)
	b.data[b.pos+3] = byte(u)
	b.pos += 4
}

// WriteIntLE appends v little-endian.
func (b *Buffer) WriteIntLE(v int32) {
	b.grow(b.pos + 4)
	u := uint32(v)
	b.data[b.pos] = byte(u)
	b.data[b.pos+1] = byte(u >> 8)
	b.data[b.pos+2] = byte(u >> 16)
	b.data[b.pos+3] = byte(u >> 24)
	b.pos += 4
}

// WriteIntME swaps the two 16-bit halves of v and writes each half
// big-endian ("middle-endian"), the form used for XTEA words in
// MAP_REBUILD_NORMAL.
func (b *Buffer) WriteIntME(v int32) {
	u := uint32(v)
	swapped := (u << 16) | (u >> 16)
	b.WriteIntBE(int32(swapped))
}

// WriteLong appends v big-endian.
func (b *Buffer) WriteLong(v int64) {
	b.grow(b.pos + 8)
	u := uint64(v)
	for i := 0; i < 8; i++ {
		b.data[b.pos+i] = byte(u >> (56 - 8*i))
	}
	b.pos += 8
}

// WriteString writes raw string bytes followed by terminator.
func (b *Buffer) WriteString(s string, terminator byte) {
	b.grow(b.pos + len(s) + 1)
	copy(b.data[b.pos:], s)
	b.data[b.pos+len(s)] = terminator
	b.pos += len(s) + 1
}

// WriteStringVersioned writes a leading version byte (0) then a
// null-terminated string, the `pjstr2` convention used by most outbound
// text fields.
func (b *Buffer) WriteStringVersioned(s string) {
	b.WriteByte1(0)
	b.WriteString(s, 0)
}

// WriteSmart writes a self-describing unsigned int: one byte for
// [0,128), two bytes biased by 32768 for [0,32768). Panics outside that
// range, matching the reference encoder's hard failure on misuse.
func (b *Buffer) WriteSmart(v int) {
	switch {
	case v >= 0 && v < 128:
		b.WriteByte1(v)
	case v >= 0 && v < 32768:
		b.WriteShortBE(v + 32768)
	default:
		panic("buf: WriteSmart out of range")
	}
}

// WriteSmartSigned writes a self-describing signed int: one byte biased
// by 64 for [-64,64), two bytes biased by 49152 for [-16384,16384).
func (b *Buffer) WriteSmartSigned(v int) {
	switch {
	case v >= -64 && v < 64:
		b.WriteByte1(v + 64)
	case v >= -16384 && v < 16384:
		b.WriteShortBE(v + 49152)
	default:
		panic("buf: WriteSmartSigned out of range")
	}
}

// WriteBytes appends src verbatim.
func (b *Buffer) WriteBytes(src []byte) {
	b.grow(b.pos + len(src))
	copy(b.data[b.pos:], src)
	b.pos += len(src)
}

// --- reads ---

// ReadByte reads one unsigned byte, or 0 past the end.
func (b *Buffer) ReadByte() int {
	if b.pos >= len(b.data) {
		return 0
	}
	v := int(b.data[b.pos])
	b.pos++
	return v
}

// ReadByteSigned reads one signed byte, or 0 past the end.
func (b *Buffer) ReadByteSigned() int {
	if b.pos >= len(b.data) {
		return 0
	}
	v := int(int8(b.data[b.pos]))
	b.pos++
	return v
}

// ReadByteAdd reads a byte and undoes the add-128 obfuscation.
func (b *Buffer) ReadByteAdd() int { return b.ReadByte() - 128 }

func (b *Buffer) clampOOB(width int) bool {
	if b.pos+width > len(b.data) {
		b.pos = len(b.data)
		return true
	}
	return false
}

// ReadShortBE reads an unsigned big-endian short, clamping on underflow.
func (b *Buffer) ReadShortBE() int {
	if b.clampOOB(2) {
		return 0
	}
	v := int(b.data[b.pos])<<8 | int(b.data[b.pos+1])
	b.pos += 2
	return v
}

// ReadShortSigned reads a signed big-endian short.
func (b *Buffer) ReadShortSigned() int {
	if b.clampOOB(2) {
		return 0
	}
	v := int(int16(uint16(b.data[b.pos])<<8 | uint16(b.data[b.pos+1])))
	b.pos += 2
	return v
}

// ReadShortLE reads a signed little-endian short.
func (b *Buffer) ReadShortLE() int {
	if b.clampOOB(2) {
		return 0
	}
	v := int(int16(uint16(b.data[b.pos+1])<<8 | uint16(b.data[b.pos])))
	b.pos += 2
	return v
}

// ReadMedium reads an unsigned 24-bit big-endian value.
func (b *Buffer) ReadMedium() int {
	if b.clampOOB(3) {
		return 0
	}
	v := int(b.data[b.pos])<<16 | int(b.data[b.pos+1])<<8 | int(b.data[b.pos+2])
	b.pos += 3
	return v
}

// ReadIntBE reads an unsigned big-endian int.
func (b *Buffer) ReadIntBE() uint32 {
	if b.clampOOB(4) {
		return 0
	}
	v := uint32(b.data[b.pos])<<24 | uint32(b.data[b.pos+1])<<16 | uint32(b.data[b.pos+2])<<8 | uint32(b.data[b.pos+3])
	b.pos += 4
	return v
}

// ReadIntSigned reads a signed big-endian int.
func (b *Buffer) ReadIntSigned() int32 { return int32(b.ReadIntBE()) }

// ReadIntLE reads a signed little-endian int.
func (b *Buffer) ReadIntLE() int32 {
	if b.clampOOB(4) {
		return 0
	}
	v := uint32(b.data[b.pos]) | uint32(b.data[b.pos+1])<<8 | uint32(b.data[b.pos+2])<<16 | uint32(b.data[b.pos+3])<<24
	b.pos += 4
	return int32(v)
}

// ReadIntME reads a big-endian int with its two 16-bit halves swapped.
func (b *Buffer) ReadIntME() int32 {
	v := uint32(b.ReadIntBE())
	return int32((v << 16) | (v >> 16))
}

// ReadLongSigned reads a signed big-endian 64-bit value.
func (b *Buffer) ReadLongSigned() int64 {
	if b.clampOOB(8) {
		return 0
	}
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(b.data[b.pos+i])
	}
	b.pos += 8
	return int64(v)
}

// ReadString scans for terminator and returns the preceding bytes as a
// string. Invalid UTF-8 yields an empty string, but the cursor still
// advances past the terminator.
func (b *Buffer) ReadString(terminator byte) string {
	start := b.pos
	end := start
	for end < len(b.data) && b.data[end] != terminator {
		end++
	}
	if end >= len(b.data) {
		b.pos = len(b.data)
		return ""
	}
	raw := b.data[start:end]
	b.pos = end + 1
	if !utf8.Valid(raw) {
		return ""
	}
	return string(raw)
}

// ReadSmart reads the self-describing unsigned int written by WriteSmart.
func (b *Buffer) ReadSmart() int {
	if b.pos >= len(b.data) {
		return 0
	}
	if b.data[b.pos] < 128 {
		return b.ReadByte()
	}
	return b.ReadShortBE() - 32768
}

// ReadSmartSigned reads the self-describing signed int written by
// WriteSmartSigned.
func (b *Buffer) ReadSmartSigned() int {
	if b.pos >= len(b.data) {
		return 0
	}
	if b.data[b.pos] < 128 {
		return b.ReadByte() - 64
	}
	return b.ReadShortBE() - 49152
}

// ReadBytes reads length bytes, returning fewer (down to zero) if the
// buffer is short.
func (b *Buffer) ReadBytes(length int) []byte {
	if b.pos+length > len(b.data) {
		available := len(b.data) - b.pos
		if available < 0 {
			available = 0
		}
		out := make([]byte, available)
		copy(out, b.data[b.pos:])
		b.pos = len(b.data)
		return out
	}
	out := make([]byte, length)
	copy(out, b.data[b.pos:b.pos+length])
	b.pos += length
	return out
}

// EnterBitMode switches the cursor to bit addressing at the current byte
// position.
func (b *Buffer) EnterBitMode() { b.bitPos = b.pos * 8 }

// LeaveBitMode switches back to byte addressing, rounding up to the next
// whole byte.
func (b *Buffer) LeaveBitMode() { b.pos = (b.bitPos + 7) / 8 }
