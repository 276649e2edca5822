// Package session implements the per-connection state machine of the
// coordination server.
//
// A Session owns one framed stream. It starts unauthenticated: the
// first command other than Ping must be Authenticate, which resolves
// the token against the identity service and attaches the session to a
// User, either freshly installed or reattached after a disconnect.
// Authenticated commands dispatch one at a time through handlers.go.
//
// A watchdog reports the session lost after ten silent seconds; the
// server-side reaper then detaches the session and lets the User
// dangle (user.go) until reconnect or grace expiry.
package session

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/internal/v1/identity"
	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/internal/v1/locale"
	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/internal/v1/logging"
	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/internal/v1/metrics"
	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/internal/v1/ratelimit"
	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/internal/v1/room"
	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/pkg/protocol"
	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/pkg/transport"
)

// watchdogTimeout is how much receive silence the server tolerates
// before reporting a session lost. Swappable in tests.
var watchdogTimeout = transport.HeartbeatDisconnectTimeout

// Registry is the server-wide state a session reads and mutates: the
// user and room registries, the monitor allow-list, and the
// lost-connection reporter.
type Registry interface {
	// GetOrInsertUser installs fresh unless a user with the same id
	// already exists, in which case that user is returned and the
	// second result is true.
	GetOrInsertUser(fresh *User) (u *User, reattached bool)
	// RemoveUser drops the user from the registry and marks it gone.
	RemoveUser(id int32)

	// Room looks up an active room.
	Room(id protocol.RoomID) (*room.Room, bool)
	// InsertRoom registers r unless its id is already taken.
	InsertRoom(r *room.Room) bool
	// RemoveRoom drops a room from the registry.
	RemoveRoom(id protocol.RoomID)

	// CanMonitor reports whether the user id is on the monitor
	// allow-list.
	CanMonitor(id int32) bool
	// ReportLost schedules the session for reaping. It must not block.
	ReportLost(sessionID uuid.UUID)
}

// Session binds one client connection to the server. Its handler runs
// on the stream's read pump, so command processing is serial per
// connection.
type Session struct {
	id   uuid.UUID
	reg  Registry
	idc  *identity.Client
	chat *ratelimit.ChatLimiter

	stream *transport.Stream[protocol.ServerCommand, protocol.ClientCommand]
	// ready gates the handler until the stream field is set; the read
	// pump starts before New returns.
	ready chan struct{}

	authed   atomic.Bool
	panicked atomic.Bool

	mu   sync.RWMutex
	user *User
}

// New wraps an accepted connection in a session and starts its pumps
// and watchdog. The handshake (the client's version byte) happens here;
// a connection that never completes it is an error.
func New(id uuid.UUID, conn net.Conn, reg Registry, idc *identity.Client, chat *ratelimit.ChatLimiter) (*Session, error) {
	s := &Session{
		id:    id,
		reg:   reg,
		idc:   idc,
		chat:  chat,
		ready: make(chan struct{}),
	}
	stream, err := transport.NewServer(conn, transport.Config[protocol.ServerCommand, protocol.ClientCommand]{
		Encode:  protocol.EncodeServerCommand,
		Decode:  protocol.DecodeClientCommand,
		Handler: s.handle,
	})
	if err != nil {
		return nil, err
	}
	s.stream = stream
	close(s.ready)
	go s.watchdog()
	return s, nil
}

func (s *Session) ID() uuid.UUID { return s.id }

// Version reports the protocol version byte the client announced.
func (s *Session) Version() byte { return s.stream.Version() }

func (s *Session) RemoteAddr() net.Addr { return s.stream.RemoteAddr() }

// User returns the authenticated user, nil before authentication.
func (s *Session) User() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// Done is closed once the underlying stream has shut down.
func (s *Session) Done() <-chan struct{} { return s.stream.Done() }

// Close tears the connection down. Safe to call multiple times.
func (s *Session) Close() error { return s.stream.Close() }

// TrySend queues cmd without blocking, dropping it if the send queue is
// full or the stream is gone. Broadcast fan-out must never stall on one
// slow client.
func (s *Session) TrySend(cmd protocol.ServerCommand) {
	if !s.stream.TrySend(cmd) {
		logging.Warn(context.Background(), "dropping command, session not writable",
			zap.String("session_id", s.id.String()), zap.Uint8("command", uint8(cmd.Type())))
	}
}

// watchdog reports the session lost after watchdogTimeout of receive
// silence. Any inbound frame, pings included, pushes the deadline out.
func (s *Session) watchdog() {
	for {
		deadline := s.stream.LastReceived().Add(watchdogTimeout)
		timer := time.NewTimer(time.Until(deadline))
		select {
		case <-timer.C:
			if time.Since(s.stream.LastReceived()) < watchdogTimeout {
				continue
			}
			logging.Warn(context.Background(), "session timed out",
				zap.String("session_id", s.id.String()))
			s.reg.ReportLost(s.id)
			return
		case <-s.stream.Done():
			timer.Stop()
			s.reg.ReportLost(s.id)
			return
		}
	}
}

// abort poisons the session and schedules it for reaping. Used when a
// reply cannot be delivered or authentication fails.
func (s *Session) abort() {
	s.panicked.Store(true)
	s.reg.ReportLost(s.id)
}

// handle processes one inbound command. It runs on the read pump, so
// invocations are serial and the next frame waits for this one.
func (s *Session) handle(ctx context.Context, cmd protocol.ClientCommand) {
	<-s.ready
	if s.panicked.Load() {
		return
	}
	ctx = logging.WithSessionID(ctx, s.id.String())
	defer func() {
		if r := recover(); r != nil {
			logging.Error(ctx, "panic while handling command",
				zap.Any("panic", r), zap.Stack("stack"))
			s.abort()
		}
	}()

	if _, ok := cmd.(protocol.ClientPing); ok {
		_ = s.stream.Send(ctx, protocol.ServerPong{})
		return
	}

	if !s.authed.Load() {
		if auth, ok := cmd.(protocol.ClientAuthenticate); ok {
			s.authenticate(ctx, auth.Token)
		} else {
			logging.Warn(ctx, "packet before authentication, ignoring",
				zap.String("command", commandName(cmd)))
		}
		return
	}

	user := s.User()
	ctx = logging.WithUserID(ctx, strconv.FormatInt(int64(user.ID()), 10))
	resp := s.dispatch(ctx, user, cmd)
	if resp == nil {
		return
	}
	if err := s.stream.Send(ctx, resp); err != nil {
		logging.Error(ctx, "failed to deliver reply, dropping connection", zap.Error(err))
		s.abort()
	}
}

// authenticate resolves the token, attaches the session to its user and
// replies. Failures poison the session: the client must reconnect to
// retry.
func (s *Session) authenticate(ctx context.Context, token string) {
	user, err := s.login(ctx, token)
	if err != nil {
		logging.Warn(ctx, "authentication failed", zap.Error(err))
		metrics.Commands.WithLabelValues("authenticate", "error").Inc()
		_ = s.stream.Send(ctx, protocol.ServerAuthenticate{Err: err.Error()})
		s.abort()
		return
	}
	metrics.Commands.WithLabelValues("authenticate", "ok").Inc()
	s.mu.Lock()
	s.user = user
	s.mu.Unlock()
	ctx = logging.WithUserID(ctx, strconv.FormatInt(int64(user.ID()), 10))

	reply := protocol.ServerAuthenticate{OK: true, Me: user.Info()}
	if r := user.Room(); r != nil {
		state := r.ClientState(user)
		reply.Room = &state
	}
	if err := s.stream.Send(ctx, reply); err != nil {
		logging.Error(ctx, "failed to deliver authenticate reply", zap.Error(err))
		s.abort()
		return
	}
	s.authed.Store(true)
	logging.Info(ctx, "session authenticated", zap.String("name", user.Name()))
}

func (s *Session) login(ctx context.Context, token string) (*User, error) {
	// Stricter than the wire type: a real token is exactly 32 bytes.
	if len(token) != protocol.MaxTokenLen {
		return nil, errors.New("invalid token")
	}
	me, err := s.idc.Me(ctx, token)
	if err != nil {
		logging.Warn(ctx, "failed to fetch info",
			zap.String("token", logging.RedactToken(token)), zap.Error(err))
		return nil, errors.New("failed to fetch info")
	}
	fresh := NewUser(me.ID, me.Name, locale.Parse(me.Language))
	user, reattached := s.reg.GetOrInsertUser(fresh)
	if reattached {
		logging.Info(ctx, "reconnect", zap.Int32("user", user.ID()))
		metrics.SessionsReattached.Inc()
	}
	user.SetSession(s)
	return user, nil
}
