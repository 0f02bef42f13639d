package netsession

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/rt4serv/rt4serv/internal/buf"
	"github.com/rt4serv/rt4serv/internal/coord"
	"github.com/rt4serv/rt4serv/internal/protoreg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// connPair returns two ends of a real loopback TCP connection, which
// (unlike net.Pipe) has a kernel buffer: writes complete without a
// concurrently-blocked reader, matching how the non-blocking peek
// trick behaves against a real socket.
func connPair(t *testing.T) (client, server net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	type result struct {
		conn net.Conn
		err  error
	}
	acceptCh := make(chan result, 1)
	go func() {
		c, err := ln.Accept()
		acceptCh <- result{c, err}
	}()

	client, err = net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)

	r := <-acceptCh
	require.NoError(t, r.err)
	return client, r.conn
}

func waitForData(t *testing.T, client net.Conn) {
	t.Helper()
	// give the kernel a moment to deliver the bytes to the server side
	time.Sleep(20 * time.Millisecond)
}

func TestDrainInboundDispatchesFixedLengthPacket(t *testing.T) {
	client, server := connPair(t)
	defer client.Close()
	defer server.Close()

	registry := protoreg.New()
	var received []byte
	registry.RegisterInbound(10,
		func(b *buf.Buffer, length int) (any, error) {
			return b.ReadBytes(length), nil
		},
		func(session any, message any) error {
			received = message.([]byte)
			return nil
		},
	)

	specs := map[int]PacketSpec{10: {Length: 3, Category: ClientEvent}}
	sess := New(server, registry, specs, nil, 1024)

	_, err := client.Write([]byte{10, 1, 2, 3})
	require.NoError(t, err)
	waitForData(t, client)

	err = sess.DrainInbound("session", DefaultQuotas)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, received)
	assert.False(t, sess.Closed())
}

func TestDrainInboundStopsWhenNoDataAvailable(t *testing.T) {
	client, server := connPair(t)
	defer client.Close()
	defer server.Close()

	registry := protoreg.New()
	sess := New(server, registry, map[int]PacketSpec{}, nil, 1024)

	err := sess.DrainInbound("session", DefaultQuotas)
	assert.NoError(t, err)
	assert.False(t, sess.Closed())
}

func TestDrainInboundUnknownOpcodeCloses(t *testing.T) {
	client, server := connPair(t)
	defer client.Close()
	defer server.Close()

	registry := protoreg.New()
	sess := New(server, registry, map[int]PacketSpec{}, nil, 1024)

	_, err := client.Write([]byte{99})
	require.NoError(t, err)
	waitForData(t, client)

	err = sess.DrainInbound("session", DefaultQuotas)
	assert.Error(t, err)
	assert.True(t, sess.Closed())
}

func TestDrainInboundRespectsQuotaAndResumesNextTick(t *testing.T) {
	client, server := connPair(t)
	defer client.Close()
	defer server.Close()

	registry := protoreg.New()
	count := 0
	registry.RegisterInbound(20,
		func(b *buf.Buffer, length int) (any, error) { return nil, nil },
		func(session any, message any) error { count++; return nil },
	)

	specs := map[int]PacketSpec{20: {Length: 0, Category: RestrictedEvent}}
	sess := New(server, registry, specs, nil, 1024)

	_, err := client.Write([]byte{20, 20})
	require.NoError(t, err)
	waitForData(t, client)

	quotaOne := Quotas{RestrictedEvent: 1}
	require.NoError(t, sess.DrainInbound("session", quotaOne))
	assert.Equal(t, 1, count, "only one packet should be processed under a quota of 1")

	require.NoError(t, sess.DrainInbound("session", quotaOne))
	assert.Equal(t, 2, count, "the second tick should resume and process the remaining packet")
}

func TestDrainInboundPartialFrameRetriesNextTick(t *testing.T) {
	client, server := connPair(t)
	defer client.Close()
	defer server.Close()

	registry := protoreg.New()
	dispatched := false
	registry.RegisterInbound(30,
		func(b *buf.Buffer, length int) (any, error) { return b.ReadBytes(length), nil },
		func(session any, message any) error { dispatched = true; return nil },
	)

	specs := map[int]PacketSpec{30: {Length: 4, Category: ClientEvent}}
	sess := New(server, registry, specs, nil, 1024)

	_, err := client.Write([]byte{30, 1, 2})
	require.NoError(t, err)
	waitForData(t, client)

	require.NoError(t, sess.DrainInbound("session", DefaultQuotas))
	assert.False(t, dispatched, "frame is incomplete and should not dispatch yet")
	assert.False(t, sess.Closed())

	_, err = client.Write([]byte{3, 4})
	require.NoError(t, err)
	waitForData(t, client)

	require.NoError(t, sess.DrainInbound("session", DefaultQuotas))
	assert.True(t, dispatched)
}

func TestSendImmediateWritesStraightThrough(t *testing.T) {
	client, server := connPair(t)
	defer client.Close()
	defer server.Close()

	registry := protoreg.New()
	registry.RegisterOutbound("PING", 42, func(b *buf.Buffer, message any) {
		b.WriteByte1(message.(int))
	})

	sess := New(server, registry, map[int]PacketSpec{}, nil, 1024)
	require.NoError(t, sess.SendImmediate("PING", 7))

	readBuf := make([]byte, 2)
	client.SetReadDeadline(time.Now().Add(time.Second))
	n, err := io.ReadFull(client, readBuf)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	assert.Equal(t, byte(42), readBuf[0], "protocol id byte should lead the frame")
	assert.Equal(t, byte(7), readBuf[1])
}

func TestSendBufferedDropsWhenOverBudget(t *testing.T) {
	_, server := connPair(t)
	defer server.Close()

	registry := protoreg.New()
	registry.RegisterOutbound("BIG", 1, func(b *buf.Buffer, message any) {
		b.WriteBytes(make([]byte, 10))
	})

	sess := New(server, registry, map[int]PacketSpec{}, nil, 5)
	err := sess.SendBuffered("BIG", nil)
	assert.Error(t, err)
}

func TestBuildMapRebuildNormalHasLengthPrefixAndTrailerMarker(t *testing.T) {
	current := coord.From(100, 0, 100)
	payload := BuildMapRebuildNormal(current, nil)

	b := buf.From(payload)
	length := b.ReadShortBE()
	assert.Equal(t, len(payload)-2, length)

	body := b.ReadBytes(length)
	// local_x add-128 obfuscated short, then the XTEA word sweep, then
	// the 128 trailer marker byte, then zone_x/zone_z/local_z shorts.
	assert.Equal(t, byte(128), body[len(body)-7])
}

func TestRebuildBuildAreaForcesSendWithNoPriorOrigin(t *testing.T) {
	client, server := connPair(t)
	defer client.Close()
	defer server.Close()

	registry := protoreg.New()
	registry.RegisterOutbound("MAP_REBUILD_NORMAL", 162, func(b *buf.Buffer, message any) {
		b.WriteBytes(message.([]byte))
	})
	sess := New(server, registry, map[int]PacketSpec{}, nil, 4096)

	current := coord.From(100, 0, 100)
	require.NoError(t, sess.RebuildBuildArea(current, nil, false))

	client.SetReadDeadline(time.Now().Add(time.Second))
	readBuf := make([]byte, 256)
	n, err := client.Read(readBuf)
	require.NoError(t, err)
	require.NotZero(t, n, "a fresh session (zero-value origin) outside the box must still send")
	assert.Equal(t, byte(162), readBuf[0])
}

func TestRebuildBuildAreaSkipsWhenStillInsideTheBox(t *testing.T) {
	client, server := connPair(t)
	defer client.Close()
	defer server.Close()

	registry := protoreg.New()
	registry.RegisterOutbound("MAP_REBUILD_NORMAL", 162, func(b *buf.Buffer, message any) {
		b.WriteBytes(message.([]byte))
	})
	sess := New(server, registry, map[int]PacketSpec{}, nil, 4096)

	origin := coord.From(100, 0, 100)
	require.NoError(t, sess.RebuildBuildArea(origin, nil, true))

	client.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	drain := make([]byte, 256)
	_, err := client.Read(drain)
	require.NoError(t, err, "drain the forced initial send")

	// Still inside the 9x9-zone box (±4 zones = ±32 tiles) around origin.
	nearby := coord.From(110, 0, 100)
	require.NoError(t, sess.RebuildBuildArea(nearby, nil, false))

	client.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, err = client.Read(drain)
	assert.True(t, err != nil && isTimeout(err), "no second send while still inside the build-area box")
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
