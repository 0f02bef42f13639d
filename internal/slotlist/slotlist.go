// Package slotlist implements the fixed-capacity, id-indexed entity
// allocator shared by the player and NPC tables: a dense storage
// array, a sparse id-to-index map, and a LIFO free list, with an
// IP-biased placement policy for new logins.
package slotlist

import "fmt"

const empty = ^uint32(0)

// EntityList is a fixed-capacity slot table over T, addressed by a
// sparse id (the pid/nid) that never changes across the entity's
// lifetime, backed by a dense array that's compacted on removal.
type EntityList[T any] struct {
	entities   []*T
	idToIndex  []uint32
	free       []uint32 // LIFO stack, last element popped first
	padding    int
	lastUsedID int
}

// New creates a table with the given capacity. padding is the id the
// default scan's wrap-around pass starts from. The table reserves no
// id itself: a scan that starts below padding, or a padding of 0, can
// hand out ids below padding, including id 0.
func New[T any](capacity, padding int) *EntityList[T] {
	idToIndex := make([]uint32, capacity)
	for i := range idToIndex {
		idToIndex[i] = empty
	}
	free := make([]uint32, capacity)
	for i := 0; i < capacity; i++ {
		free[i] = uint32(capacity - 1 - i)
	}
	return &EntityList[T]{
		entities:  make([]*T, capacity),
		idToIndex: idToIndex,
		free:      free,
		padding:   padding,
	}
}

// Capacity returns the number of ids the table can address.
func (l *EntityList[T]) Capacity() int { return len(l.idToIndex) }

// Count returns the number of currently occupied ids.
func (l *EntityList[T]) Count() int { return len(l.entities) - len(l.free) }

// Get returns the entity at id, or nil if id is unused or out of
// range.
func (l *EntityList[T]) Get(id int) *T {
	if id < 0 || id >= len(l.idToIndex) {
		return nil
	}
	idx := l.idToIndex[id]
	if idx == empty {
		return nil
	}
	return l.entities[idx]
}

// Set installs entity at id. Fails if id is out of range, already
// occupied, or the table has no free dense slots.
func (l *EntityList[T]) Set(id int, entity *T) error {
	if id < 0 || id >= len(l.idToIndex) {
		return fmt.Errorf("slotlist: id %d out of bounds", id)
	}
	if l.idToIndex[id] != empty {
		return fmt.Errorf("slotlist: id %d already in use", id)
	}
	if len(l.free) == 0 {
		return fmt.Errorf("slotlist: no free slots")
	}

	idx := l.free[len(l.free)-1]
	l.free = l.free[:len(l.free)-1]

	l.entities[idx] = entity
	l.idToIndex[id] = idx
	l.lastUsedID = id
	return nil
}

// Remove clears id, returning its dense slot to the free list. No-op
// if id is unused or out of range.
func (l *EntityList[T]) Remove(id int) {
	if id < 0 || id >= len(l.idToIndex) {
		return
	}
	idx := l.idToIndex[id]
	if idx == empty {
		return
	}
	l.idToIndex[id] = empty
	l.entities[idx] = nil
	l.free = append(l.free, idx)
}

// Next finds the next available id per the placement policy in
// §4.K: with no explicit start hint, scan forward from the slot after
// the last id used, wrapping through the padding region; priority
// additionally restricts the initial 100-id scan to an IP-derived
// window before falling back to the default scan.
func (l *EntityList[T]) Next(start int) (int, error) {
	if start < 0 {
		start = l.lastUsedID + 1
	}
	if id, ok := l.scan(start, len(l.idToIndex)); ok {
		return id, nil
	}
	end := start
	if end > len(l.idToIndex) {
		end = len(l.idToIndex)
	}
	if id, ok := l.scan(l.padding, end); ok {
		return id, nil
	}
	return 0, fmt.Errorf("slotlist: no space for new entities")
}

// NextForIPv4 applies the IP-biased placement policy for IPv4 client
// addresses: start the scan from a subnet-derived window before
// falling back to the default scan.
func (l *EntityList[T]) NextForIPv4(fourthOctet byte) (int, error) {
	base := int(fourthOctet%20) * 100
	return l.nextWithWindow(base)
}

// NextForIPv6 applies the same policy keyed off the third 16-bit
// segment of an IPv6 address.
func (l *EntityList[T]) NextForIPv6(thirdSegment uint16) (int, error) {
	base := int(thirdSegment%20) * 100
	return l.nextWithWindow(base)
}

func (l *EntityList[T]) nextWithWindow(base int) (int, error) {
	window := base + 100
	if window > len(l.idToIndex) {
		window = len(l.idToIndex)
	}
	if id, ok := l.scan(base, window); ok {
		return id, nil
	}
	return l.Next(l.lastUsedID + 1)
}

func (l *EntityList[T]) scan(from, to int) (int, bool) {
	for id := from; id < to; id++ {
		if id < 0 {
			continue
		}
		if l.idToIndex[id] == empty {
			return id, true
		}
	}
	return 0, false
}

// Reset clears every id and entity, restoring a full free list.
func (l *EntityList[T]) Reset() {
	for i := range l.entities {
		l.entities[i] = nil
	}
	for i := range l.idToIndex {
		l.idToIndex[i] = empty
	}
	l.free = l.free[:0]
	for i := len(l.idToIndex) - 1; i >= 0; i-- {
		l.free = append(l.free, uint32(i))
	}
	l.lastUsedID = 0
}

// Each invokes fn for every occupied id in ascending id order,
// stopping early if fn returns false.
func (l *EntityList[T]) Each(fn func(id int, entity *T) bool) {
	for id, idx := range l.idToIndex {
		if idx == empty {
			continue
		}
		if !fn(id, l.entities[idx]) {
			return
		}
	}
}
