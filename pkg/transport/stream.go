// Package transport frames protocol payloads over a TCP connection.
//
// Each frame is a ULEB128 byte length followed by the encoded payload.
// A stream owns two goroutines: a read pump that decodes inbound frames
// and invokes the handler serially, and a write pump that drains a
// bounded send queue. Either pump failing tears the whole stream down.
package transport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/internal/v1/logging"
)

const (
	// HeartbeatInterval is how often an idle client pings the server.
	HeartbeatInterval = 3 * time.Second
	// HeartbeatTimeout is how long a client waits for a pong before
	// counting the ping as failed.
	HeartbeatTimeout = 2 * time.Second
	// HeartbeatDisconnectTimeout is how long the server tolerates
	// silence before treating the connection as lost.
	HeartbeatDisconnectTimeout = 10 * time.Second

	sendQueueSize = 1024
	writeWait     = 10 * time.Second
	handshakeWait = 10 * time.Second
)

// ErrStreamClosed is returned by Send after the stream has shut down.
var ErrStreamClosed = errors.New("stream closed")

// Config wires a stream to its payload codec and inbound handler.
// S is the outbound payload type, R the inbound one.
type Config[S, R any] struct {
	// Encode serializes an outbound payload.
	Encode func(S) ([]byte, error)
	// Decode parses an inbound payload. A decode failure closes the
	// stream.
	Decode func([]byte) (R, error)
	// Handler is invoked for each inbound payload, one at a time. The
	// next frame is not read until it returns. The context is canceled
	// when the stream shuts down.
	Handler func(ctx context.Context, payload R)
}

func (c Config[S, R]) validate() error {
	if c.Encode == nil || c.Decode == nil || c.Handler == nil {
		return errors.New("transport: config needs Encode, Decode and Handler")
	}
	return nil
}

// Stream is a framed, full-duplex payload pipe over a single
// connection. All methods are safe for concurrent use.
type Stream[S, R any] struct {
	conn    net.Conn
	reader  *bufio.Reader
	version byte
	cfg     Config[S, R]

	send chan S

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	done      chan struct{}

	mu  sync.Mutex
	err error

	lastRecv atomic.Int64
}

// NewClient wraps conn as the initiating side. It announces version to
// the peer before any frame is exchanged.
func NewClient[S, R any](conn net.Conn, version byte, cfg Config[S, R]) (*Stream[S, R], error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	s := newStream(conn, cfg)
	_ = conn.SetWriteDeadline(time.Now().Add(handshakeWait))
	if _, err := conn.Write([]byte{version}); err != nil {
		conn.Close()
		return nil, err
	}
	_ = conn.SetWriteDeadline(time.Time{})
	s.version = version
	s.start()
	return s, nil
}

// NewServer wraps conn as the accepting side. It reads the peer's
// version byte before any frame is exchanged.
func NewServer[S, R any](conn net.Conn, cfg Config[S, R]) (*Stream[S, R], error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	s := newStream(conn, cfg)
	_ = conn.SetReadDeadline(time.Now().Add(handshakeWait))
	version, err := s.reader.ReadByte()
	if err != nil {
		conn.Close()
		return nil, err
	}
	_ = conn.SetReadDeadline(time.Time{})
	s.version = version
	s.start()
	return s, nil
}

func newStream[S, R any](conn net.Conn, cfg Config[S, R]) *Stream[S, R] {
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Stream[S, R]{
		conn:   conn,
		reader: bufio.NewReader(conn),
		cfg:    cfg,
		send:   make(chan S, sendQueueSize),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.lastRecv.Store(time.Now().UnixNano())
	return s
}

func (s *Stream[S, R]) start() {
	go s.readPump()
	go s.writePump()
}

// Version reports the version byte exchanged during the handshake.
func (s *Stream[S, R]) Version() byte {
	return s.version
}

// RemoteAddr reports the peer address.
func (s *Stream[S, R]) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

// LastReceived reports when the last frame arrived from the peer.
func (s *Stream[S, R]) LastReceived() time.Time {
	return time.Unix(0, s.lastRecv.Load())
}

// Send queues payload for delivery. It blocks while the queue is full
// and fails once ctx is done or the stream has closed.
func (s *Stream[S, R]) Send(ctx context.Context, payload S) error {
	select {
	case <-s.done:
		return ErrStreamClosed
	default:
	}
	select {
	case s.send <- payload:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrStreamClosed
	}
}

// TrySend queues payload without blocking. It reports false when the
// queue is full or the stream has closed.
func (s *Stream[S, R]) TrySend(payload S) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- payload:
		return true
	default:
		return false
	}
}

// Done is closed once both pumps have been told to stop.
func (s *Stream[S, R]) Done() <-chan struct{} {
	return s.done
}

// Err reports the failure that shut the stream down, nil after a clean
// Close and io.EOF when the peer hung up.
func (s *Stream[S, R]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close shuts the stream down and releases both pumps. It is safe to
// call multiple times.
func (s *Stream[S, R]) Close() error {
	s.fail(nil)
	return nil
}

// fail records the first shutdown cause and tears the stream down.
func (s *Stream[S, R]) fail(err error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
		s.cancel()
		_ = s.conn.Close()
	})
}

func (s *Stream[S, R]) readPump() {
	remote := s.conn.RemoteAddr().String()
	for {
		length, err := readFrameLength(s.reader)
		if err != nil {
			s.fail(err)
			return
		}
		buf := make([]byte, length)
		if _, err := io.ReadFull(s.reader, buf); err != nil {
			s.fail(err)
			return
		}
		s.lastRecv.Store(time.Now().UnixNano())

		payload, err := s.cfg.Decode(buf)
		if err != nil {
			logging.Warn(s.ctx, "invalid packet", zap.String("remote", remote), zap.Error(err))
			s.fail(err)
			return
		}
		s.cfg.Handler(s.ctx, payload)
	}
}

func (s *Stream[S, R]) writePump() {
	var frame []byte
	for {
		select {
		case payload := <-s.send:
			data, err := s.cfg.Encode(payload)
			if err != nil {
				logging.Error(s.ctx, "failed to encode payload", zap.Error(err))
				s.fail(err)
				return
			}
			frame = appendFrameLength(frame[:0], uint32(len(data)))
			frame = append(frame, data...)
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if _, err := s.conn.Write(frame); err != nil {
				logging.Error(s.ctx, "failed to send", zap.Error(err))
				s.fail(err)
				return
			}
		case <-s.done:
			return
		}
	}
}
