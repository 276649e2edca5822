package client

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/pkg/protocol"
	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/pkg/transport"
)

var (
	alice   = protocol.UserInfo{ID: 7, Name: "Alice"}
	bob     = protocol.UserInfo{ID: 8, Name: "Bob"}
	watcher = protocol.UserInfo{ID: 9, Name: "Watcher", Monitor: true}
)

func testToken() string { return strings.Repeat("a", protocol.MaxTokenLen) }

// stubServer is the accepting end of a piped connection. Tests script
// its replies by hand.
type stubServer struct {
	t      *testing.T
	stream *transport.Stream[protocol.ServerCommand, protocol.ClientCommand]
	inbox  chan protocol.ClientCommand
}

func (s *stubServer) send(cmd protocol.ServerCommand) {
	s.t.Helper()
	require.NoError(s.t, s.stream.Send(context.Background(), cmd))
}

func (s *stubServer) next() protocol.ClientCommand {
	s.t.Helper()
	select {
	case cmd := <-s.inbox:
		return cmd
	case <-time.After(2 * time.Second):
		s.t.Fatal("timed out waiting for a client command")
		return nil
	}
}

// expect pulls commands until one of type T arrives, skipping heartbeat
// pings.
func expect[T protocol.ClientCommand](s *stubServer) T {
	s.t.Helper()
	for {
		cmd := s.next()
		if _, ok := cmd.(protocol.ClientPing); ok {
			continue
		}
		out, ok := cmd.(T)
		require.True(s.t, ok, "got %#v", cmd)
		return out
	}
}

// pongEveryPing answers heartbeats until the stream shuts down.
func (s *stubServer) pongEveryPing() {
	go func() {
		for {
			select {
			case cmd := <-s.inbox:
				if _, ok := cmd.(protocol.ClientPing); ok {
					_ = s.stream.Send(context.Background(), protocol.ServerPong{})
				}
			case <-s.stream.Done():
				return
			}
		}
	}()
}

// newPair wires a Client to a scripted server over an in-memory pipe.
// The server side handshakes in a goroutine because net.Pipe writes
// block until the peer reads.
func newPair(t *testing.T) (*Client, *stubServer) {
	t.Helper()
	serverConn, clientConn := net.Pipe()

	srv := &stubServer{t: t, inbox: make(chan protocol.ClientCommand, 64)}
	ready := make(chan error, 1)
	go func() {
		stream, err := transport.NewServer(serverConn, transport.Config[protocol.ServerCommand, protocol.ClientCommand]{
			Encode: protocol.EncodeServerCommand,
			Decode: protocol.DecodeClientCommand,
			Handler: func(ctx context.Context, cmd protocol.ClientCommand) {
				srv.inbox <- cmd
			},
		})
		srv.stream = stream
		ready <- err
	}()

	c, err := New(clientConn)
	require.NoError(t, err)
	require.NoError(t, <-ready)

	t.Cleanup(func() {
		_ = c.Close()
		_ = srv.stream.Close()
		<-c.Done()
		<-srv.stream.Done()
	})
	return c, srv
}

// authedClient authenticates against the stub, optionally restoring a
// mirrored room.
func authedClient(t *testing.T, room *protocol.ClientRoomState) (*Client, *stubServer) {
	t.Helper()
	c, srv := newPair(t)

	errCh := asyncErr(func() error { return c.Authenticate(context.Background(), testToken()) })
	expect[protocol.ClientAuthenticate](srv)
	srv.send(protocol.ServerAuthenticate{OK: true, Me: alice, Room: room})
	require.NoError(t, await(t, errCh))
	return c, srv
}

func hostRoom() *protocol.ClientRoomState {
	return &protocol.ClientRoomState{
		ID:     "garden",
		State:  protocol.RoomState{Type: protocol.RoomStateSelectChart},
		IsHost: true,
		Users:  map[int32]protocol.UserInfo{alice.ID: alice},
	}
}

func guestRoom() *protocol.ClientRoomState {
	return &protocol.ClientRoomState{
		ID:    "garden",
		State: protocol.RoomState{Type: protocol.RoomStateSelectChart},
		Users: map[int32]protocol.UserInfo{alice.ID: alice, bob.ID: bob},
	}
}

func asyncErr(fn func() error) <-chan error {
	ch := make(chan error, 1)
	go func() { ch <- fn() }()
	return ch
}

func await(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the call to return")
		return nil
	}
}

func setCallTimeout(t *testing.T, d time.Duration) {
	t.Helper()
	prev := callTimeout
	callTimeout = d
	t.Cleanup(func() { callTimeout = prev })
}

func setHeartbeat(t *testing.T, interval, timeout time.Duration) {
	t.Helper()
	prevInterval, prevTimeout := heartbeatInterval, heartbeatTimeout
	heartbeatInterval, heartbeatTimeout = interval, timeout
	t.Cleanup(func() {
		heartbeatInterval, heartbeatTimeout = prevInterval, prevTimeout
	})
}
