// Package server owns the coordination server's shared state: the
// session, user and room registries, the TCP accept loop, and the
// reaper that tears down lost connections.
//
// It implements session.Registry. Sessions never touch the maps
// directly; everything flows through that interface, which keeps the
// locking in one place.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/internal/v1/config"
	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/internal/v1/identity"
	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/internal/v1/logging"
	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/internal/v1/metrics"
	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/internal/v1/ratelimit"
	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/internal/v1/room"
	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/internal/v1/session"
	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/pkg/protocol"
)

// lostQueueSize bounds the backlog of unreaped lost-connection reports.
const lostQueueSize = 16

// Server is the top of the coordination service.
type Server struct {
	cfg  *config.Config
	idc  *identity.Client
	chat *ratelimit.ChatLimiter

	// monitors is fixed at startup; reads need no lock.
	monitors map[int32]struct{}

	mu       sync.RWMutex
	sessions map[uuid.UUID]*session.Session
	users    map[int32]*session.User
	rooms    map[protocol.RoomID]*room.Room

	lost chan uuid.UUID

	lnMu  sync.Mutex
	ln    net.Listener
	ready atomic.Bool
}

// New assembles a server from validated configuration.
func New(cfg *config.Config) (*Server, error) {
	chat, err := ratelimit.NewChatLimiter(cfg.ChatRateLimit)
	if err != nil {
		return nil, fmt.Errorf("chat limiter: %w", err)
	}
	return &Server{
		cfg:      cfg,
		idc:      identity.New(cfg.APIBaseURL),
		chat:     chat,
		monitors: cfg.MonitorSet(),
		sessions: make(map[uuid.UUID]*session.Session),
		users:    make(map[int32]*session.User),
		rooms:    make(map[protocol.RoomID]*room.Room),
		lost:     make(chan uuid.UUID, lostQueueSize),
	}, nil
}

// Listen binds the game port. Serve may be called once Listen returns.
func (s *Server) Listen(ctx context.Context) error {
	ln, err := listen(ctx, s.cfg.Port)
	if err != nil {
		return err
	}
	s.lnMu.Lock()
	s.ln = ln
	s.lnMu.Unlock()
	s.ready.Store(true)
	logging.Info(ctx, "accepting connections", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr reports the bound address, nil before Listen.
func (s *Server) Addr() net.Addr {
	s.lnMu.Lock()
	defer s.lnMu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Ready reports whether the server is accepting connections. The
// readiness probe keys off this.
func (s *Server) Ready() bool { return s.ready.Load() }

// Counts snapshots registry sizes for the readiness payload.
func (s *Server) Counts() (sessions, users, rooms int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions), len(s.users), len(s.rooms)
}

// IdentityClient exposes the shared identity client so the health
// handler can read its circuit breaker.
func (s *Server) IdentityClient() *identity.Client { return s.idc }

// Serve accepts connections until ctx is canceled, then closes every
// live session and returns.
func (s *Server) Serve(ctx context.Context) error {
	s.lnMu.Lock()
	ln := s.ln
	s.lnMu.Unlock()
	if ln == nil {
		return errors.New("serve called before listen")
	}

	go s.reapLost(ctx)
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.ready.Store(false)
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.closeSessions(ctx)
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go s.acceptConn(ctx, conn)
	}
}

// acceptConn runs the protocol handshake and registers the session.
func (s *Server) acceptConn(ctx context.Context, conn net.Conn) {
	id := uuid.New()
	sess, err := session.New(id, conn, s, s.idc, s.chat)
	if err != nil {
		logging.Warn(ctx, "handshake failed",
			zap.String("remote_addr", conn.RemoteAddr().String()), zap.Error(err))
		_ = conn.Close()
		return
	}

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()
	metrics.IncConnection()
	logging.Info(ctx, "connection established",
		zap.String("session_id", id.String()),
		zap.String("remote_addr", sess.RemoteAddr().String()),
		zap.Uint8("version", sess.Version()))
}

// reapLost consumes lost-connection reports until ctx is canceled.
func (s *Server) reapLost(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-s.lost:
			s.reap(ctx, id)
		}
	}
}

// reap detaches a dead session. The session's user dangles until a
// reconnect claims it or the grace period drops it.
func (s *Server) reap(ctx context.Context, id uuid.UUID) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	if !ok {
		// Already reaped; the watchdog and a failed send can both
		// report the same session.
		return
	}

	logging.Warn(ctx, "lost connection", zap.String("session_id", id.String()))
	metrics.DecConnection()
	_ = sess.Close()

	if u := sess.User(); u != nil && u.Session() == sess {
		u.Dangle(ctx, s)
	}
}

// closeSessions tears down every registered session on shutdown.
func (s *Server) closeSessions(ctx context.Context) {
	s.mu.Lock()
	sessions := make([]*session.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.sessions = make(map[uuid.UUID]*session.Session)
	s.mu.Unlock()

	logging.Info(ctx, "closing sessions", zap.Int("count", len(sessions)))
	for _, sess := range sessions {
		_ = sess.Close()
		metrics.DecConnection()
	}
}

// GetOrInsertUser implements session.Registry.
func (s *Server) GetOrInsertUser(fresh *session.User) (*session.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[fresh.ID()]; ok {
		return u, true
	}
	s.users[fresh.ID()] = fresh
	metrics.AuthenticatedUsers.Inc()
	return fresh, false
}

// RemoveUser implements session.Registry.
func (s *Server) RemoveUser(id int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return
	}
	u.MarkGone()
	delete(s.users, id)
	metrics.AuthenticatedUsers.Dec()
}

// Room implements session.Registry.
func (s *Server) Room(id protocol.RoomID) (*room.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[id]
	return r, ok
}

// InsertRoom implements session.Registry.
func (s *Server) InsertRoom(r *room.Room) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[r.ID]; ok {
		return false
	}
	s.rooms[r.ID] = r
	metrics.ActiveRooms.Inc()
	return true
}

// RemoveRoom implements session.Registry.
func (s *Server) RemoveRoom(id protocol.RoomID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[id]; !ok {
		return
	}
	delete(s.rooms, id)
	metrics.ActiveRooms.Dec()
	metrics.RoomPlayers.DeleteLabelValues(string(id))
}

// CanMonitor implements session.Registry.
func (s *Server) CanMonitor(id int32) bool {
	_, ok := s.monitors[id]
	return ok
}

// ReportLost implements session.Registry. It must not block the
// caller's watchdog, so a report that finds the queue full is dropped
// with a warning.
func (s *Server) ReportLost(sessionID uuid.UUID) {
	select {
	case s.lost <- sessionID:
	default:
		logging.Warn(context.Background(), "lost-connection queue full, dropping report",
			zap.String("session_id", sessionID.String()))
	}
}
