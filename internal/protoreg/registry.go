// Package protoreg is the protocol message registry: one map-based
// table per direction, built once at process startup by explicit
// Register calls rather than a switch statement, so a colliding
// registration is caught as a startup fault instead of silently
// shadowing a handler.
package protoreg

import (
	"fmt"

	"github.com/rt4serv/rt4serv/internal/buf"
)

// Decoder parses an inbound packet body into a message value.
type Decoder func(b *buf.Buffer, length int) (any, error)

// Handler processes a decoded inbound message against session.
type Handler func(session any, message any) error

// Encoder writes an outbound message's body into b.
type Encoder func(b *buf.Buffer, message any)

type inbound struct {
	decoder Decoder
	handler Handler
}

type outbound struct {
	protocolID int
	encoder    Encoder
}

// Registry holds one opcode-indexed inbound table and one
// message-type-indexed outbound table.
type Registry struct {
	inboundByOpcode map[int]inbound
	outboundByType  map[string]outbound
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		inboundByOpcode: make(map[int]inbound),
		outboundByType:  make(map[string]outbound),
	}
}

// RegisterInbound binds decoder and handler to opcode. A second call
// for the same opcode is a startup fault: stream desynchronization
// from a silently-shadowed decoder is worse than a panic the developer
// sees immediately.
func (r *Registry) RegisterInbound(opcode int, decoder Decoder, handler Handler) {
	if _, exists := r.inboundByOpcode[opcode]; exists {
		panic(fmt.Sprintf("protoreg: inbound opcode %d already registered", opcode))
	}
	r.inboundByOpcode[opcode] = inbound{decoder: decoder, handler: handler}
}

// RegisterOutbound binds protocolID and encoder to messageType (the
// wire discriminant tag of the outbound message variant, e.g.
// "MAP_REBUILD_NORMAL").
func (r *Registry) RegisterOutbound(messageType string, protocolID int, encoder Encoder) {
	if _, exists := r.outboundByType[messageType]; exists {
		panic(fmt.Sprintf("protoreg: outbound message type %q already registered", messageType))
	}
	r.outboundByType[messageType] = outbound{protocolID: protocolID, encoder: encoder}
}

// Decode looks up and runs the decoder registered for opcode. The
// caller is responsible for treating a missing decoder ("unknown
// packet") as a fault that closes the session — the minimum safe
// behavior against stream desynchronization.
func (r *Registry) Decode(opcode int, b *buf.Buffer, length int) (any, bool, error) {
	in, ok := r.inboundByOpcode[opcode]
	if !ok {
		return nil, false, nil
	}
	msg, err := in.decoder(b, length)
	return msg, true, err
}

// Dispatch runs the handler registered for opcode against message.
// Callers decode first via Decode, then Dispatch once the message is
// built; Handle exists as a convenience for the common decode-then-run
// path.
func (r *Registry) Dispatch(opcode int, session any, message any) (bool, error) {
	in, ok := r.inboundByOpcode[opcode]
	if !ok {
		return false, nil
	}
	return true, in.handler(session, message)
}

// Handle decodes and dispatches opcode in one call.
func (r *Registry) Handle(opcode int, session any, b *buf.Buffer, length int) (bool, error) {
	msg, ok, err := r.Decode(opcode, b, length)
	if err != nil {
		return ok, err
	}
	if !ok {
		return false, nil
	}
	_, err = r.Dispatch(opcode, session, msg)
	return true, err
}

// Encode looks up and runs the encoder registered for messageType,
// writing into b. It reports whether an encoder was found.
func (r *Registry) Encode(messageType string, b *buf.Buffer, message any) bool {
	out, ok := r.outboundByType[messageType]
	if !ok {
		return false
	}
	out.encoder(b, message)
	return true
}

// OutboundID returns the protocol id registered for messageType.
func (r *Registry) OutboundID(messageType string) (int, bool) {
	out, ok := r.outboundByType[messageType]
	return out.protocolID, ok
}

// HasInbound reports whether opcode has a registered decoder/handler.
func (r *Registry) HasInbound(opcode int) bool {
	_, ok := r.inboundByOpcode[opcode]
	return ok
}

// HasOutbound reports whether messageType has a registered encoder.
func (r *Registry) HasOutbound(messageType string) bool {
	_, ok := r.outboundByType[messageType]
	return ok
}
