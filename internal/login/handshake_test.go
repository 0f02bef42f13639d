package login

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/rt4serv/rt4serv/internal/buf"
	"github.com/rt4serv/rt4serv/internal/cache"
	"github.com/rt4serv/rt4serv/internal/netsession"
	"github.com/rt4serv/rt4serv/internal/protoreg"
	"github.com/rt4serv/rt4serv/internal/rsautil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildCredentialPayload(t *testing.T, keys *rsautil.KeyPair, revision int32, username string) []byte {
	t.Helper()

	keySize := (keys.Private.N.BitLen() + 7) / 8

	innerBuf := buf.New(0)
	innerBuf.WriteByte1(10)
	for i := 0; i < 4; i++ {
		innerBuf.WriteIntBE(0) // session key parts, +50 applied server-side
	}
	usernameValue, ok := EncodeUsername(username)
	require.True(t, ok)
	innerBuf.WriteLong(int64(usernameValue))
	innerBuf.WriteString("password", 0)

	plain := make([]byte, keySize)
	copy(plain, innerBuf.Bytes())
	rsaBlock := rsautil.Wrap(&keys.Private.PublicKey, plain)

	outer := buf.New(0)
	outer.WriteIntBE(revision)
	outer.WriteByte1(0) // reserved
	outer.WriteByte1(0) // adverts_suppressed
	outer.WriteByte1(0) // client_signed
	outer.WriteByte1(0) // window mode
	outer.WriteShortBE(800)
	outer.WriteShortBE(600)
	outer.WriteByte1(0) // aa mode
	outer.WriteBytes(make([]byte, 24)) // uuid
	outer.WriteString("", 0)           // site cookie
	outer.WriteIntBE(0)                // affiliate
	outer.WriteIntBE(0)                // detail options
	outer.WriteShortBE(42)             // verify id
	for i := 0; i < NumChecksummedArchives; i++ {
		outer.WriteIntBE(0)
	}
	outer.WriteByte1(len(rsaBlock))
	outer.WriteBytes(rsaBlock)
	return outer.Bytes()
}

func newTestService(t *testing.T) (*Service, chan struct {
	session  *netsession.Session
	username string
	ipv4Last byte
}) {
	t.Helper()
	keys, err := rsautil.GenerateKeyPair()
	require.NoError(t, err)
	index, err := cache.BuildMasterIndex(t.TempDir())
	require.NoError(t, err)

	submitted := make(chan struct {
		session  *netsession.Session
		username string
		ipv4Last byte
	}, 1)

	svc := &Service{
		Keys:        keys,
		MasterIndex: index,
		Registry:    protoreg.New(),
		Specs:       map[int]netsession.PacketSpec{},
		OutBudget:   1024,
		SubmitLogin: func(session *netsession.Session, username string, ipv4Last byte) {
			submitted <- struct {
				session  *netsession.Session
				username string
				ipv4Last byte
			}{session, username, ipv4Last}
		},
	}
	return svc, submitted
}

func TestInitGameConnectionRepliesWithSessionKey(t *testing.T) {
	svc, _ := newTestService(t)
	client, server := net.Pipe()
	defer client.Close()

	go svc.Handle(server, 1)

	_, err := client.Write([]byte{InitGameConnection, 0})
	require.NoError(t, err)

	reply := make([]byte, 9)
	client.SetReadDeadline(time.Now().Add(time.Second))
	_, err = io.ReadFull(client, reply)
	require.NoError(t, err)
	assert.Equal(t, byte(0), reply[0])
}

func TestLoginAcceptsMatchingCredentials(t *testing.T) {
	svc, submitted := newTestService(t)
	client, server := net.Pipe()
	defer client.Close()

	go svc.Handle(server, 7)

	payload := buildCredentialPayload(t, svc.Keys, ClientRevision, "woox")
	req := buf.New(0)
	req.WriteByte1(Login)
	req.WriteShortBE(len(payload))
	req.WriteBytes(payload)

	go client.Write(req.Bytes())

	client.SetReadDeadline(time.Now().Add(time.Second))
	status := make([]byte, 1)
	_, err := io.ReadFull(client, status)
	require.NoError(t, err)
	assert.Equal(t, byte(OK), status[0])

	select {
	case result := <-submitted:
		assert.Equal(t, "woox", result.username)
		assert.Equal(t, byte(7), result.ipv4Last)
	case <-time.After(time.Second):
		t.Fatal("expected a submitted login")
	}
}

func TestLoginRejectsOutOfDateRevision(t *testing.T) {
	svc, submitted := newTestService(t)
	client, server := net.Pipe()
	defer client.Close()

	go svc.Handle(server, 1)

	payload := buildCredentialPayload(t, svc.Keys, ClientRevision-1, "woox")
	req := buf.New(0)
	req.WriteByte1(Login)
	req.WriteShortBE(len(payload))
	req.WriteBytes(payload)

	go client.Write(req.Bytes())

	client.SetReadDeadline(time.Now().Add(time.Second))
	status := make([]byte, 1)
	_, err := io.ReadFull(client, status)
	require.NoError(t, err)
	assert.Equal(t, byte(ClientOutOfDate), status[0])

	select {
	case <-submitted:
		t.Fatal("an out-of-date client must never be submitted to the world")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestReconnectRepliesWithReconnectOK(t *testing.T) {
	svc, submitted := newTestService(t)
	client, server := net.Pipe()
	defer client.Close()

	go svc.Handle(server, 3)

	payload := buildCredentialPayload(t, svc.Keys, ClientRevision, "woox")
	req := buf.New(0)
	req.WriteByte1(Reconnect)
	req.WriteShortBE(len(payload))
	req.WriteBytes(payload)

	go client.Write(req.Bytes())

	client.SetReadDeadline(time.Now().Add(time.Second))
	status := make([]byte, 1)
	_, err := io.ReadFull(client, status)
	require.NoError(t, err)
	assert.Equal(t, byte(ReconnectOK), status[0])

	<-submitted
}

func TestListenHandsOffSuccessfulLoginWithoutClosingTheConnection(t *testing.T) {
	svc, submitted := newTestService(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- svc.Listen(ctx, ln) }()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	payload := buildCredentialPayload(t, svc.Keys, ClientRevision, "woox")
	req := buf.New(0)
	req.WriteByte1(Login)
	req.WriteShortBE(len(payload))
	req.WriteBytes(payload)
	_, err = conn.Write(req.Bytes())
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	status := make([]byte, 1)
	_, err = io.ReadFull(conn, status)
	require.NoError(t, err)
	assert.Equal(t, byte(OK), status[0])

	select {
	case result := <-submitted:
		assert.Equal(t, "woox", result.username)
	case <-time.After(time.Second):
		t.Fatal("expected a submitted login")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Listen did not return after context cancellation")
	}
}

func TestListenClosesConnectionOnRejectedLogin(t *testing.T) {
	svc, _ := newTestService(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Listen(ctx, ln)

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	payload := buildCredentialPayload(t, svc.Keys, ClientRevision-1, "woox")
	req := buf.New(0)
	req.WriteByte1(Login)
	req.WriteShortBE(len(payload))
	req.WriteBytes(payload)
	_, err = conn.Write(req.Bytes())
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	status := make([]byte, 1)
	_, err = io.ReadFull(conn, status)
	require.NoError(t, err)
	assert.Equal(t, byte(ClientOutOfDate), status[0])

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, err = conn.Read(make([]byte, 1))
	assert.Error(t, err, "server should close the connection after a rejected login")
}
