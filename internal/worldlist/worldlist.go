// Package worldlist builds and serves the world-directory payload the
// client requests before it knows which world to log into.
package worldlist

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/rt4serv/rt4serv/internal/buf"
)

// Params describes the single active world advertised to clients.
// Country code 191 ("Sweden") and an empty activity name match the
// reference fixture response; operators can override Host/WorldID.
type Params struct {
	CountryCode int
	CountryName string
	Host        string
	WorldID     int
	Checksum    uint32
}

// DefaultParams is a ready-to-serve fixture matching the historical
// default single-world directory.
var DefaultParams = Params{
	CountryCode: 191,
	CountryName: "Sweden",
	Host:        "localhost",
	WorldID:     0,
	Checksum:    1,
}

// BuildResponse encodes the worldlist payload body (not including the
// outer {status, length} frame) for the given client-held checksum
// against p.Checksum. A matching checksum gets the short no-update
// form; a mismatch gets the full directory.
func BuildResponse(p Params, clientChecksum uint32) []byte {
	b := buf.New(0)
	b.WriteByte1(1) // version

	if clientChecksum == p.Checksum {
		b.WriteByte1(0) // updated flag: no
		return b.Bytes()
	}

	b.WriteByte1(1) // updated flag: yes
	b.WriteSmart(1) // count of world directories
	b.WriteSmart(p.CountryCode)
	b.WriteStringVersioned(p.CountryName)

	b.WriteSmart(1) // worlds-array offset
	b.WriteSmart(1) // worlds-array size
	b.WriteSmart(1) // active-world count

	b.WriteSmart(p.WorldID)
	b.WriteByte1(0) // flags
	b.WriteIntBE(0) // activity bitmask
	b.WriteStringVersioned("")
	b.WriteStringVersioned(p.Host)
	b.WriteIntBE(1) // population / default

	b.WriteSmart(0) // pings section
	b.WriteShortBE(40)
	b.WriteSmart(1)
	b.WriteShortBE(20)

	return b.Bytes()
}

// Listen accepts connections on ln until ctx is cancelled. A direct
// (non-proxied) connection here still opens with the WORLDLIST_FETCH
// classification byte, since the proxy re-forwards whatever byte it
// read rather than consuming it; Listen discards that one byte itself
// before handing off to Serve.
func Listen(ctx context.Context, ln net.Listener, p Params) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			wg.Wait()
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("worldlist: accept: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer conn.Close()

			opcode := make([]byte, 1)
			if _, err := io.ReadFull(conn, opcode); err != nil {
				slog.Debug("worldlist: closing, no classification byte", "error", err)
				return
			}
			if err := Serve(conn, p); err != nil {
				slog.Debug("worldlist: serve failed", "error", err)
			}
		}()
	}
}

// Serve reads the 4-byte client checksum from conn, writes the framed
// {status:u8=0, length:u16, payload} response, and returns — the
// caller is responsible for closing conn afterward, matching the
// handshake's "respond then close" behavior.
func Serve(conn net.Conn, p Params) error {
	checksumBytes := make([]byte, 4)
	if _, err := io.ReadFull(conn, checksumBytes); err != nil {
		return fmt.Errorf("worldlist: read checksum: %w", err)
	}
	clientChecksum := uint32(checksumBytes[0])<<24 | uint32(checksumBytes[1])<<16 | uint32(checksumBytes[2])<<8 | uint32(checksumBytes[3])

	payload := BuildResponse(p, clientChecksum)

	frame := buf.New(0)
	frame.WriteByte1(0) // status
	frame.WriteShortBE(len(payload))
	frame.WriteBytes(payload)

	_, err := conn.Write(frame.Bytes())
	if err != nil {
		return fmt.Errorf("worldlist: write response: %w", err)
	}
	return nil
}
