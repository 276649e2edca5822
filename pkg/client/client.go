// Package client implements the player-side coordinator for the
// multiplayer protocol. A Client owns one framed stream, keeps a local
// mirror of the joined room, buffers live telemetry per player, and
// exposes the protocol's requests as blocking calls.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/internal/v1/logging"
	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/pkg/protocol"
	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/pkg/transport"
)

const protocolVersion byte = 1

// Overridable in tests.
var (
	callTimeout       = 7 * time.Second
	heartbeatInterval = transport.HeartbeatInterval
	heartbeatTimeout  = transport.HeartbeatTimeout
)

var (
	// ErrCallTimeout is returned when the server does not answer a call
	// within the call timeout.
	ErrCallTimeout = errors.New("call timed out")
	// ErrCallPending is returned when a call of the same kind is still
	// awaiting its reply. Callers serialize calls per kind.
	ErrCallPending = errors.New("call of this kind already pending")
)

// RemoteError is a refusal reported by the server, already rendered in
// the user's language.
type RemoteError struct {
	Reason string
}

func (e *RemoteError) Error() string { return e.Reason }

// LivePlayer accumulates one player's telemetry for the current round.
// Monitors drain it as they render the player's screen.
type LivePlayer struct {
	mu     sync.Mutex
	frames []protocol.TouchFrame
	judges []protocol.JudgeEvent
}

func (p *LivePlayer) appendFrames(frames []protocol.TouchFrame) {
	p.mu.Lock()
	p.frames = append(p.frames, frames...)
	p.mu.Unlock()
}

func (p *LivePlayer) appendJudges(judges []protocol.JudgeEvent) {
	p.mu.Lock()
	p.judges = append(p.judges, judges...)
	p.mu.Unlock()
}

// TakeFrames drains the buffered touch frames in arrival order.
func (p *LivePlayer) TakeFrames() []protocol.TouchFrame {
	p.mu.Lock()
	defer p.mu.Unlock()
	frames := p.frames
	p.frames = nil
	return frames
}

// TakeJudges drains the buffered judge events in arrival order.
func (p *LivePlayer) TakeJudges() []protocol.JudgeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	judges := p.judges
	p.judges = nil
	return judges
}

// Client is a connected coordinator. All methods are safe for
// concurrent use, though calls of the same kind must be serialized by
// the caller.
type Client struct {
	stream *transport.Stream[protocol.ClientCommand, protocol.ServerCommand]

	mu       sync.RWMutex
	me       *protocol.UserInfo
	room     *protocol.ClientRoomState
	delay    time.Duration
	hasDelay bool
	messages []protocol.Message

	liveMu      sync.Mutex
	livePlayers map[int32]*LivePlayer

	pendMu  sync.Mutex
	pending map[protocol.ServerCommandType]chan protocol.ServerCommand

	pongCh    chan struct{}
	pingFails atomic.Uint32

	cancelHeartbeat context.CancelFunc
	heartbeatDone   chan struct{}
	closeOnce       sync.Once
}

// Connect dials the coordination server and performs the version
// handshake.
func Connect(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}
	return New(conn)
}

// New wraps an established connection and starts the heartbeat.
func New(conn net.Conn) (*Client, error) {
	c := &Client{
		livePlayers:   make(map[int32]*LivePlayer),
		pending:       make(map[protocol.ServerCommandType]chan protocol.ServerCommand),
		pongCh:        make(chan struct{}, 1),
		heartbeatDone: make(chan struct{}),
	}
	stream, err := transport.NewClient(conn, protocolVersion, transport.Config[protocol.ClientCommand, protocol.ServerCommand]{
		Encode:  protocol.EncodeClientCommand,
		Decode:  protocol.DecodeServerCommand,
		Handler: c.handle,
	})
	if err != nil {
		return nil, err
	}
	c.stream = stream

	hbCtx, cancel := context.WithCancel(context.Background())
	c.cancelHeartbeat = cancel
	go c.heartbeat(hbCtx)
	return c, nil
}

// Close stops the heartbeat and tears down the stream. Safe to call
// multiple times.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.cancelHeartbeat()
		_ = c.stream.Close()
		<-c.heartbeatDone
	})
	return nil
}

// Done is closed once the underlying stream has shut down.
func (c *Client) Done() <-chan struct{} { return c.stream.Done() }

// Err reports the failure that shut the stream down, nil after a clean
// Close.
func (c *Client) Err() error { return c.stream.Err() }

// heartbeat pings on a fixed cadence and tracks consecutive misses so
// the UI can surface a degrading connection.
func (c *Client) heartbeat(ctx context.Context) {
	defer close(c.heartbeatDone)
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stream.Done():
			return
		case <-ticker.C:
		}

		start := time.Now()
		if err := c.stream.Send(ctx, protocol.ClientPing{}); err != nil {
			logging.Error(ctx, "failed to send heartbeat", zap.Error(err))
		} else {
			select {
			case <-c.pongCh:
				c.pingFails.Store(0)
			case <-time.After(heartbeatTimeout):
				logging.Warn(ctx, "heartbeat timeout")
				c.pingFails.Add(1)
			case <-ctx.Done():
				return
			}
		}
		c.setDelay(time.Since(start))
	}
}

// Ping measures a round trip outside the heartbeat cadence.
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := c.stream.Send(ctx, protocol.ClientPing{}); err != nil {
		return 0, err
	}
	select {
	case <-c.pongCh:
	case <-time.After(heartbeatTimeout):
		return 0, ErrCallTimeout
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	delay := time.Since(start)
	c.setDelay(delay)
	return delay, nil
}

func (c *Client) notifyPong() {
	select {
	case c.pongCh <- struct{}{}:
	default:
	}
}

func (c *Client) setDelay(d time.Duration) {
	c.mu.Lock()
	c.delay = d
	c.hasDelay = true
	c.mu.Unlock()
}

// Delay reports the most recent measured round trip.
func (c *Client) Delay() (time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.delay, c.hasDelay
}

// PingFailCount reports how many heartbeats in a row have gone
// unanswered.
func (c *Client) PingFailCount() uint32 { return c.pingFails.Load() }

// Me reports the authenticated account.
func (c *Client) Me() (protocol.UserInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.me == nil {
		return protocol.UserInfo{}, false
	}
	return *c.me, true
}

// UserName resolves a player id against the mirrored roster, "?" when
// unknown.
func (c *Client) UserName(id int32) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.room != nil {
		if u, ok := c.room.Users[id]; ok {
			return u.Name
		}
	}
	return "?"
}

// RoomMirror returns a copy of the locally mirrored room, nil when the
// user is not in one.
func (c *Client) RoomMirror() *protocol.ClientRoomState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.room == nil {
		return nil
	}
	room := *c.room
	room.Users = make(map[int32]protocol.UserInfo, len(c.room.Users))
	for id, u := range c.room.Users {
		room.Users[id] = u
	}
	return &room
}

// RoomID reports the mirrored room's id.
func (c *Client) RoomID() (protocol.RoomID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.room == nil {
		return "", false
	}
	return c.room.ID, true
}

// RoomState reports the mirrored room's public state.
func (c *Client) RoomState() (protocol.RoomState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.room == nil {
		return protocol.RoomState{}, false
	}
	return c.room.State, true
}

// IsHost reports whether this user hosts the mirrored room, false when
// not in one.
func (c *Client) IsHost() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.room != nil && c.room.IsHost
}

// IsReady reports whether this user counts toward the ready set, false
// when not in a room.
func (c *Client) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.room != nil && c.room.IsReady
}

func (c *Client) setReady(ready bool) {
	c.mu.Lock()
	if c.room != nil {
		c.room.IsReady = ready
	}
	c.mu.Unlock()
}

// TakeMessages drains the room event inbox in arrival order.
func (c *Client) TakeMessages() []protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := c.messages
	c.messages = nil
	return msgs
}

// LivePlayer returns the telemetry buffer for a player, creating it on
// demand. Buffers reset when the room changes state.
func (c *Client) LivePlayer(player int32) *LivePlayer {
	return c.livePlayer(player)
}

func (c *Client) livePlayer(player int32) *LivePlayer {
	c.liveMu.Lock()
	defer c.liveMu.Unlock()
	p, ok := c.livePlayers[player]
	if !ok {
		p = &LivePlayer{}
		c.livePlayers[player] = p
	}
	return p
}

// Send queues a raw command without awaiting any reply.
func (c *Client) Send(ctx context.Context, cmd protocol.ClientCommand) error {
	return c.stream.Send(ctx, cmd)
}

// SendTouches streams touch telemetry for the current round.
func (c *Client) SendTouches(ctx context.Context, frames []protocol.TouchFrame) error {
	return c.stream.Send(ctx, protocol.ClientTouches{Frames: frames})
}

// SendJudges streams judge telemetry for the current round.
func (c *Client) SendJudges(ctx context.Context, judges []protocol.JudgeEvent) error {
	return c.stream.Send(ctx, protocol.ClientJudges{Judges: judges})
}
