// Package netsession implements the per-player network session: the
// per-tick inbound packet drain (with category quotas and
// single-opcode resumption), the outbound IMMEDIATE/BUFFERED priority
// write path, and the MAP_REBUILD_NORMAL payload builder.
package netsession

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/rt4serv/rt4serv/internal/buf"
	"github.com/rt4serv/rt4serv/internal/coord"
	"github.com/rt4serv/rt4serv/internal/isaac"
	"github.com/rt4serv/rt4serv/internal/protoreg"
	"github.com/rt4serv/rt4serv/internal/xtea"
)

// VerificationMagic is the value the client verification handler
// compares its int payload against; a mismatch closes the session.
const VerificationMagic = 1057001181

// Category groups inbound opcodes for the per-tick quota discipline.
type Category int

const (
	ClientEvent Category = iota
	UserEvent
	RestrictedEvent
)

// Quotas bounds how many packets of each category a session may
// decode in a single tick.
type Quotas struct {
	ClientEvent     int
	UserEvent       int
	RestrictedEvent int
}

// DefaultQuotas matches the reference client/server's tuning.
var DefaultQuotas = Quotas{ClientEvent: 20, UserEvent: 5, RestrictedEvent: 2}

// PacketSpec describes one inbound opcode's framing: a fixed byte
// length (>=0), a 1-byte length prefix (-1), or a 2-byte length prefix
// (-2).
type PacketSpec struct {
	Length   int
	Category Category
}

const (
	LengthByte  = -1
	LengthShort = -2
)

// Priority controls how an outbound message reaches the wire.
type Priority int

const (
	// Immediate writes straight through, bypassing the per-tick
	// outbound buffer cap.
	Immediate Priority = iota
	// Buffered appends to the session's outbound buffer, subject to
	// the per-session byte budget.
	Buffered
)

// Session is one connected player's network state: the underlying
// connection, its two ISAAC directions (nil until keyed post-login),
// the inbound packet-spec table, single-opcode resumption state, and
// the outbound buffer.
type Session struct {
	conn   net.Conn
	reader *bufio.Reader

	registry *protoreg.Registry
	specs    map[int]PacketSpec

	inCipher  *isaac.Cipher
	outCipher *isaac.Cipher

	pendingOpcode  int
	hasPending     bool
	pendingSpec    PacketSpec
	pendingLength  int
	hasLength      bool

	outBuf      *buf.Buffer
	outBudget   int
	outUsed     int
	closed      bool

	originCoord coord.Grid
	xteaKeys    *xtea.Table
}

// New creates a session bound to conn, dispatching through registry
// and framing inbound opcodes per specs. outBudget is the per-session
// BUFFERED byte cap.
func New(conn net.Conn, registry *protoreg.Registry, specs map[int]PacketSpec, xteaKeys *xtea.Table, outBudget int) *Session {
	return &Session{
		conn:     conn,
		reader:   bufio.NewReader(conn),
		registry: registry,
		specs:    specs,
		outBuf:   buf.New(0),
		outBudget: outBudget,
		xteaKeys: xteaKeys,
	}
}

// SetCiphers binds the post-login ISAAC directions.
func (s *Session) SetCiphers(in, out *isaac.Cipher) {
	s.inCipher = in
	s.outCipher = out
}

// Close marks the session closed and closes the underlying
// connection.
func (s *Session) Close() error {
	s.closed = true
	return s.conn.Close()
}

// Closed reports whether the session has been torn down.
func (s *Session) Closed() bool { return s.closed }

// peekByteAvailable reports whether at least one byte is immediately
// readable without blocking, per the non-blocking-peek step of the
// per-tick drain.
func (s *Session) peekByteAvailable() bool {
	if err := s.conn.SetReadDeadline(time.Now()); err != nil {
		return false
	}
	defer s.conn.SetReadDeadline(time.Time{})

	_, err := s.reader.Peek(1)
	return err == nil
}

// readOpcode reads one obfuscated opcode byte, undoing the ISAAC
// addition when a direction is keyed.
func (s *Session) readOpcode() (int, error) {
	raw, err := s.reader.ReadByte()
	if err != nil {
		return 0, err
	}
	opcode := int(raw)
	if s.inCipher != nil {
		opcode = (opcode - int(s.inCipher.Next())) & 0xFF
	}
	return opcode, nil
}

// DrainInbound processes up to quotas.* packets of each category this
// tick, decoding and dispatching each to session against registry. It
// stops early once no more bytes are immediately available, once every
// quota is exhausted, or on the first fault (unknown opcode, short
// read, decode error) — any of which closes the session and returns
// the error.
func (s *Session) DrainInbound(session any, quotas Quotas) error {
	remaining := quotas

	for {
		if s.hasPending {
			// A resumed packet counts against this tick's quota too.
			switch s.pendingSpec.Category {
			case ClientEvent:
				remaining.ClientEvent--
			case UserEvent:
				remaining.UserEvent--
			case RestrictedEvent:
				remaining.RestrictedEvent--
			}
			if err := s.resumePending(session); err != nil {
				return err
			}
			if s.hasPending {
				// still short a full frame; try again next tick
				return nil
			}
			continue
		}

		if remaining.ClientEvent <= 0 && remaining.UserEvent <= 0 && remaining.RestrictedEvent <= 0 {
			return nil
		}
		if !s.peekByteAvailable() {
			return nil
		}

		opcode, err := s.readOpcode()
		if err != nil {
			s.Close()
			return fmt.Errorf("netsession: read opcode: %w", err)
		}

		spec, ok := s.specs[opcode]
		if !ok {
			s.Close()
			return fmt.Errorf("netsession: unknown opcode %d", opcode)
		}

		s.stashPending(opcode, spec)

		switch spec.Category {
		case ClientEvent:
			if remaining.ClientEvent <= 0 {
				return nil
			}
			remaining.ClientEvent--
		case UserEvent:
			if remaining.UserEvent <= 0 {
				return nil
			}
			remaining.UserEvent--
		case RestrictedEvent:
			if remaining.RestrictedEvent <= 0 {
				return nil
			}
			remaining.RestrictedEvent--
		}

		if err := s.resumePending(session); err != nil {
			return err
		}
		if s.hasPending {
			return nil
		}
	}
}

func (s *Session) stashPending(opcode int, spec PacketSpec) {
	s.pendingOpcode = opcode
	s.pendingSpec = spec
	s.hasPending = true
}

// resolvePendingLength reads the length prefix for a variable-length
// packet spec, if it hasn't been read yet.
func (s *Session) resolvePendingLength() (int, error) {
	if s.hasLength {
		return s.pendingLength, nil
	}

	switch s.pendingSpec.Length {
	case LengthByte:
		if s.reader.Buffered() < 1 {
			return 0, errShortFrame
		}
		b, err := s.reader.ReadByte()
		if err != nil {
			return 0, err
		}
		s.pendingLength = int(b)
	case LengthShort:
		if s.reader.Buffered() < 2 {
			return 0, errShortFrame
		}
		hi, err := s.reader.ReadByte()
		if err != nil {
			return 0, err
		}
		lo, err := s.reader.ReadByte()
		if err != nil {
			return 0, err
		}
		s.pendingLength = int(hi)<<8 | int(lo)
	default:
		s.pendingLength = s.pendingSpec.Length
	}
	s.hasLength = true
	return s.pendingLength, nil
}

var errShortFrame = errors.New("netsession: partial frame")

// resumePending tries to finish decoding and dispatching the currently
// stashed opcode. If the full frame isn't buffered yet, it leaves
// hasPending set so the next tick's DrainInbound call retries from
// where it left off (single-opcode resumption).
func (s *Session) resumePending(session any) error {
	length, err := s.resolvePendingLength()
	if err != nil {
		if errors.Is(err, errShortFrame) {
			return nil
		}
		s.Close()
		return err
	}

	if s.reader.Buffered() < length {
		return nil
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(s.reader, body); err != nil {
		s.Close()
		return fmt.Errorf("netsession: read body: %w", err)
	}

	ok, err := s.registry.Handle(s.pendingOpcode, session, buf.From(body), length)
	s.hasPending = false
	s.hasLength = false
	if err != nil {
		s.Close()
		return fmt.Errorf("netsession: handle opcode %d: %w", s.pendingOpcode, err)
	}
	if !ok {
		s.Close()
		return fmt.Errorf("netsession: no handler for opcode %d", s.pendingOpcode)
	}
	return nil
}

// SendImmediate writes messageType straight to the connection,
// bypassing the outbound buffer cap.
func (s *Session) SendImmediate(messageType string, message any) error {
	b := s.encode(messageType, message)
	_, err := s.conn.Write(b.Bytes())
	return err
}

// SendBuffered appends messageType's encoded form to the session's
// outbound buffer, dropping (and reporting) the message if it would
// exceed the per-session byte budget.
func (s *Session) SendBuffered(messageType string, message any) error {
	b := s.encode(messageType, message)
	if s.outUsed+b.Len() > s.outBudget {
		return fmt.Errorf("netsession: outbound buffer full, dropping %s", messageType)
	}
	s.outBuf.WriteBytes(b.Bytes())
	s.outUsed += b.Len()
	return nil
}

// Send dispatches message per priority.
func (s *Session) Send(priority Priority, messageType string, message any) error {
	if priority == Immediate {
		return s.SendImmediate(messageType, message)
	}
	return s.SendBuffered(messageType, message)
}

// FlushBuffered writes the accumulated BUFFERED outbound bytes to the
// connection and resets the buffer, typically once per tick.
func (s *Session) FlushBuffered() error {
	if s.outUsed == 0 {
		return nil
	}
	_, err := s.conn.Write(s.outBuf.Bytes())
	s.outBuf = buf.New(0)
	s.outUsed = 0
	return err
}

// encode writes the protocol id byte (ISAAC-keyed when a direction is
// bound) plus the message's encoded payload, as produced by the
// registered encoder.
func (s *Session) encode(messageType string, message any) *buf.Buffer {
	id, _ := s.registry.OutboundID(messageType)
	if s.outCipher != nil {
		id = (id + int(s.outCipher.Next())) & 0xFF
	}

	b := buf.New(0)
	b.WriteByte1(id)
	s.registry.Encode(messageType, b, message)
	return b
}

// buildAreaZoneRadius is the half-width, in zones, of the box centered
// on origin_coord outside of which the build area must be rebuilt.
const buildAreaZoneRadius = 4

// RebuildBuildArea sends MAP_REBUILD_NORMAL for current if it has left
// the 9x9-zone box centered on the session's last build origin, or
// unconditionally when force is set (reconnect, or a fresh login with
// no prior origin to compare against). On send, origin_coord is
// updated to current.
func (s *Session) RebuildBuildArea(current coord.Grid, keys *xtea.Table, force bool) error {
	originX := int(s.originCoord.ZoneX())
	originZ := int(s.originCoord.ZoneZ())
	x := int(current.ZoneX())
	z := int(current.ZoneZ())

	outside := x < originX-buildAreaZoneRadius || x > originX+buildAreaZoneRadius ||
		z < originZ-buildAreaZoneRadius || z > originZ+buildAreaZoneRadius
	if !outside && !force {
		return nil
	}

	if err := s.SendImmediate("MAP_REBUILD_NORMAL", BuildMapRebuildNormal(current, keys)); err != nil {
		return err
	}
	s.originCoord = current
	return nil
}

// mapRebuildZoneRadius is the zone radius the map-square sweep is
// sized from: 6/8+1 gives one map square on each side of the player's.
const mapRebuildZoneRadius = 6

// BuildMapRebuildNormal constructs the MAP_REBUILD_NORMAL payload for
// a player currently at coord: the obfuscated local x, a 3x3 sweep of
// XTEA keys (middle-endian words) over the map squares centred on the
// player's own map square, a trailer marker, zone coordinates, and the
// obfuscated local z.
func BuildMapRebuildNormal(current coord.Grid, keys *xtea.Table) []byte {
	b := buf.New(0)

	b.WriteShortAdd(int(current.X() & 0x7))

	zoneX := int(current.ZoneX())
	zoneZ := int(current.ZoneZ())
	mapSquareX := zoneX / 8
	mapSquareZ := zoneZ / 8

	span := mapRebuildZoneRadius/8 + 1
	for dx := -span; dx <= span; dx++ {
		for dz := -span; dz <= span; dz++ {
			mapsquare := int32((mapSquareX+dx)<<8 | (mapSquareZ + dz))
			key := keys.Get(mapsquare)
			for _, word := range key {
				b.WriteIntME(word)
			}
		}
	}

	b.WriteByte1(128)
	b.WriteShortBE(zoneX)
	b.WriteShortAdd(zoneZ)
	b.WriteShortAdd(int(current.Z() & 0x7))

	framed := buf.New(0)
	framed.WriteShortBE(b.Len())
	framed.WriteBytes(b.Bytes())
	return framed.Bytes()
}
