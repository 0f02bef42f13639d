// Package proxy implements the single front door: one listening port
// that peeks at the first byte of every connection, classifies it,
// and relays the connection byte-for-byte to the right backend
// service (JS5, worldlist, or login).
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Classification bytes read from the front of a new connection. Note
// JS5Open is 15, not the login-subprotocol's INIT_GAME_CONNECTION
// (14) — confirmed by the worked handshake scenario (opcode byte
// 0x0F) rather than going by prose alone, since the two disagree.
const (
	JS5Open        = 15
	WorldlistFetch = 255
)

// InitialByteTimeout bounds how long a new connection has to present
// its classification byte.
const InitialByteTimeout = 2000 * time.Millisecond

// Backends holds the dial addresses the proxy routes to once a
// connection's first byte has been classified.
type Backends struct {
	JS5       string
	Worldlist string
	Login     string
}

// Serve accepts on ln until ctx is cancelled, classifying and relaying
// each connection to one of backends.
func Serve(ctx context.Context, ln net.Listener, backends Backends) error {
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
			return fmt.Errorf("proxy: accept: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			handleConn(conn, backends)
		}()
	}
}

func handleConn(client net.Conn, backends Backends) {
	defer client.Close()

	if err := client.SetReadDeadline(time.Now().Add(InitialByteTimeout)); err != nil {
		slog.Warn("proxy: set read deadline", "error", err)
		return
	}
	first := make([]byte, 1)
	if _, err := io.ReadFull(client, first); err != nil {
		slog.Debug("proxy: closing, no classification byte", "error", err)
		return
	}
	if err := client.SetReadDeadline(time.Time{}); err != nil {
		slog.Warn("proxy: clear read deadline", "error", err)
		return
	}

	addr := backends.Login
	switch first[0] {
	case JS5Open:
		addr = backends.JS5
	case WorldlistFetch:
		addr = backends.Worldlist
	}

	backend, err := net.Dial("tcp", addr)
	if err != nil {
		slog.Warn("proxy: dial backend", "addr", addr, "error", err)
		return
	}
	defer backend.Close()

	if _, err := backend.Write(first); err != nil {
		slog.Warn("proxy: forward classification byte", "error", err)
		return
	}

	if err := relay(client, backend); err != nil {
		slog.Debug("proxy: relay ended", "error", err)
	}
}

// relay copies bytes in both directions until either side closes,
// propagating the first error and tearing down both halves.
func relay(a, b net.Conn) error {
	g := new(errgroup.Group)
	g.Go(func() error {
		_, err := io.Copy(b, a)
		closeWrite(b)
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(a, b)
		closeWrite(a)
		return err
	})
	return g.Wait()
}

// closeWrite half-closes the write side when the connection supports
// it, letting the peer observe EOF without tearing down the read side
// the other goroutine is still copying from.
func closeWrite(conn net.Conn) {
	type writeCloser interface {
		CloseWrite() error
	}
	if wc, ok := conn.(writeCloser); ok {
		_ = wc.CloseWrite()
	}
}
