// Package login implements the INIT_GAME_CONNECTION / RECONNECT /
// LOGIN handshake: session-key exchange, the 28-archive checksum
// check, RSA-unwrapping the credential block, and handing the
// resulting session off to the world loop's pending-logins queue.
package login

import (
	"bufio"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net"
	"sync"

	"github.com/rt4serv/rt4serv/internal/buf"
	"github.com/rt4serv/rt4serv/internal/cache"
	"github.com/rt4serv/rt4serv/internal/isaac"
	"github.com/rt4serv/rt4serv/internal/netsession"
	"github.com/rt4serv/rt4serv/internal/protoreg"
	"github.com/rt4serv/rt4serv/internal/rsautil"
	"github.com/rt4serv/rt4serv/internal/xtea"
)

// Opcodes this sub-protocol dispatches on.
const (
	InitGameConnection = 14
	Login              = 16
	Reconnect          = 18
)

// Status bytes written back to the client.
const (
	OK                = 2
	ClientOutOfDate   = 6
	WorldFull         = 7
	ReconnectOK       = 15
	InvalidLoginPacket = 22
)

// ClientRevision is the only client build this revision accepts.
const ClientRevision = 530

// NumChecksummedArchives is how many archive checksums the client
// reports and the server verifies before accepting credentials.
const NumChecksummedArchives = 28

// WindowStatus mirrors the client's reported display configuration.
type WindowStatus struct {
	Mode    int8
	Width   uint16
	Height  uint16
	AAMode  int8
}

// Service drives the login handshake for one accepted connection: it
// owns the RSA keypair, the per-archive checksum table, and the
// packet registry/specs/xtea table a successful login needs to build
// a netsession.Session.
type Service struct {
	Keys        *rsautil.KeyPair
	MasterIndex *cache.MasterIndex

	Registry  *protoreg.Registry
	Specs     map[int]netsession.PacketSpec
	XTEAKeys  *xtea.Table
	OutBudget int

	// SubmitLogin hands a fully-authenticated session off to the
	// world loop (world.World.SubmitLogin matches this signature).
	SubmitLogin func(session *netsession.Session, username string, ipv4Last byte)
}

// Listen accepts connections on ln until ctx is cancelled, driving each
// through Handle. A connection Handle rejects is closed here; one that
// completes successfully has already been handed off to SubmitLogin
// and is left open under the world loop's ownership.
func (s *Service) Listen(ctx context.Context, ln net.Listener) error {
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
			return fmt.Errorf("login: accept: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Handle(conn, ipv4LastOctet(conn)); err != nil {
				slog.Debug("login: handshake ended", "error", err)
				conn.Close()
			}
		}()
	}
}

// ipv4LastOctet extracts the low octet of conn's remote IPv4 address,
// the input to the slot allocator's IP-biased placement policy. Non-IPv4
// peers (or anything that isn't a *net.TCPAddr, as in tests) get 0.
func ipv4LastOctet(conn net.Conn) byte {
	tcpAddr, ok := conn.RemoteAddr().(*net.TCPAddr)
	if !ok {
		return 0
	}
	ip4 := tcpAddr.IP.To4()
	if ip4 == nil {
		return 0
	}
	return ip4[3]
}

// Handle drives conn through the handshake to completion: it either
// hands a session off via SubmitLogin and returns nil, or returns once
// the connection has been rejected and closed by the caller.
func (s *Service) Handle(conn net.Conn, ipv4Last byte) error {
	reader := bufio.NewReader(conn)

	for {
		opcodeByte, err := reader.ReadByte()
		if err != nil {
			return fmt.Errorf("login: read opcode: %w", err)
		}

		switch int(opcodeByte) {
		case InitGameConnection:
			if err := s.handleInit(conn, reader); err != nil {
				return err
			}
		case Login, Reconnect:
			return s.handleCredentials(conn, reader, int(opcodeByte), ipv4Last)
		default:
			_, _ = conn.Write([]byte{InvalidLoginPacket})
			return fmt.Errorf("login: unexpected opcode %d on new connection", opcodeByte)
		}
	}
}

func (s *Service) handleInit(conn net.Conn, reader *bufio.Reader) error {
	if _, err := reader.ReadByte(); err != nil { // username-hash, load-balancing hint only
		return fmt.Errorf("login: read username hash: %w", err)
	}

	sessionKey := randomSessionKey()

	b := buf.New(0)
	b.WriteByte1(0)
	b.WriteLong(sessionKey)
	_, err := conn.Write(b.Bytes())
	return err
}

func randomSessionKey() int64 {
	hi, _ := rand.Int(rand.Reader, big.NewInt(1<<32))
	lo, _ := rand.Int(rand.Reader, big.NewInt(1<<32))
	return hi.Int64()<<32 | lo.Int64()
}

func (s *Service) handleCredentials(conn net.Conn, reader *bufio.Reader, opcode int, ipv4Last byte) error {
	lengthBytes := make([]byte, 2)
	if _, err := io.ReadFull(reader, lengthBytes); err != nil {
		return fmt.Errorf("login: read payload length: %w", err)
	}
	length := int(lengthBytes[0])<<8 | int(lengthBytes[1])

	payload := make([]byte, length)
	if _, err := io.ReadFull(reader, payload); err != nil {
		return fmt.Errorf("login: read payload: %w", err)
	}
	b := buf.From(payload)

	if b.ReadIntSigned() != ClientRevision {
		return s.reject(conn, ClientOutOfDate, "client revision mismatch")
	}

	_ = b.ReadByteSigned() // reserved
	_ = b.ReadByteSigned() // adverts_suppressed
	_ = b.ReadByteSigned() // client_signed

	ws := WindowStatus{
		Mode:   int8(b.ReadByteSigned()),
		Width:  uint16(b.ReadShortBE()),
		Height: uint16(b.ReadShortBE()),
		AAMode: int8(b.ReadByteSigned()),
	}

	_ = b.ReadBytes(24) // client UUID
	_ = b.ReadString(0) // site-settings cookie
	_ = b.ReadIntBE()   // affiliate_id
	_ = b.ReadIntBE()   // detail_options
	verifyID := b.ReadShortBE()

	for i := 0; i < NumChecksummedArchives; i++ {
		checksum := b.ReadIntBE()
		expected, ok := s.MasterIndex.ArchiveChecksum(i)
		if !ok || checksum != expected {
			return s.reject(conn, ClientOutOfDate, "archive checksum mismatch")
		}
	}

	rsaLength := b.ReadByte()
	rsaBlock := b.ReadBytes(rsaLength)
	decryptedRaw, err := rsautil.Unwrap(s.Keys.Private, rsaBlock)
	if err != nil {
		return fmt.Errorf("login: rsa unwrap: %w", err)
	}
	decrypted := buf.From(decryptedRaw)

	if decrypted.ReadByte() != 10 {
		return s.reject(conn, InvalidLoginPacket, "rsa verification byte mismatch")
	}

	var rawSeed, biasedSeed [4]int32
	for i := range rawSeed {
		rawSeed[i] = decrypted.ReadIntSigned()
		biasedSeed[i] = rawSeed[i] + 50
	}

	usernameValue := uint64(decrypted.ReadLongSigned())
	username := DecodeUsername(usernameValue)
	_ = decrypted.ReadString(0) // password; credential verification is out of this server's scope

	slog.Debug("login: handshake accepted", "username", username, "verify_id", verifyID,
		"window_mode", ws.Mode, "width", ws.Width, "height", ws.Height)

	status := OK
	if opcode == Reconnect {
		status = ReconnectOK
	}
	if _, err := conn.Write([]byte{byte(status)}); err != nil {
		return fmt.Errorf("login: write status: %w", err)
	}

	session := netsession.New(conn, s.Registry, s.Specs, s.XTEAKeys, s.OutBudget)
	// The client encodes with a cipher seeded from the raw session key
	// and decodes with one seeded from the +50'd key; the server mirrors
	// that, decoding (in) with the raw key and encoding (out) with the
	// +50'd key, so each direction gets its own ISAAC state.
	session.SetCiphers(isaac.New(rawSeed[:]), isaac.New(biasedSeed[:]))
	s.SubmitLogin(session, username, ipv4Last)
	return nil
}

func (s *Service) reject(conn net.Conn, status int, reason string) error {
	_, _ = conn.Write([]byte{byte(status)})
	return fmt.Errorf("login: rejected (%s)", reason)
}
