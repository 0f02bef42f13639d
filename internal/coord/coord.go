// Package coord implements the packed 32-bit world coordinate and the
// zone-flag bitmap used for change tracking.
package coord

// Grid is a packed coordinate: z in bits 0-13, x in bits 14-27, y (the
// plane/level) in bits 28-29.
type Grid uint32

// ZoneSize is the edge length, in tiles, of one zone.
const ZoneSize = 8

// From packs (x, y, z) into a Grid value, masking each field to its
// declared width.
func From(x uint16, y uint8, z uint16) Grid {
	return Grid(uint32(z&0x3FFF) | (uint32(x&0x3FFF) << 14) | (uint32(y&0x3) << 28))
}

// X returns the packed x coordinate.
func (g Grid) X() uint16 { return uint16(uint32(g) >> 14 & 0x3FFF) }

// Z returns the packed z coordinate.
func (g Grid) Z() uint16 { return uint16(uint32(g) & 0x3FFF) }

// Y returns the packed plane/level, 0..3.
func (g Grid) Y() uint8 { return uint8(uint32(g) >> 28 & 0x3) }

// ZoneX returns the zone column containing this coordinate.
func (g Grid) ZoneX() uint16 { return g.X() / ZoneSize }

// ZoneZ returns the zone row containing this coordinate.
func (g Grid) ZoneZ() uint16 { return g.Z() / ZoneSize }

// LocalCoord packs the within-zone offset of x and z into the low 3
// bits of each, the form used by local-area update packets.
func (g Grid) LocalCoord() uint8 {
	return uint8((g.X()&0x7)<<4) | uint8(g.Z()&0x7)
}

// Translate returns the coordinate offset by (dx, dy, dz), wrapping
// each field modulo its own width rather than overflowing into
// neighboring fields.
func (g Grid) Translate(dx int16, dy int8, dz int16) Grid {
	x := uint16(int32(g.X()) + int32(dx))
	y := uint8(int32(g.Y()) + int32(dy))
	z := uint16(int32(g.Z()) + int32(dz))
	return From(x, y, z)
}

// WithPlane returns the same x/z with the plane replaced by y.
func (g Grid) WithPlane(y uint8) Grid {
	return From(g.X(), y, g.Z())
}
