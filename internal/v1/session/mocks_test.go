package session

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/internal/v1/identity"
	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/internal/v1/ratelimit"
	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/internal/v1/room"
	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/pkg/protocol"
	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/pkg/transport"
)

// MockRegistry is an in-memory Registry that records removals and lost
// reports for assertions.
type MockRegistry struct {
	mu           sync.Mutex
	users        map[int32]*User
	rooms        map[protocol.RoomID]*room.Room
	monitors     map[int32]struct{}
	removedUsers map[int32]bool
	removedRooms map[protocol.RoomID]bool

	lost chan uuid.UUID
}

func NewMockRegistry() *MockRegistry {
	return &MockRegistry{
		users:        make(map[int32]*User),
		rooms:        make(map[protocol.RoomID]*room.Room),
		monitors:     make(map[int32]struct{}),
		removedUsers: make(map[int32]bool),
		removedRooms: make(map[protocol.RoomID]bool),
		lost:         make(chan uuid.UUID, 16),
	}
}

func (m *MockRegistry) GetOrInsertUser(fresh *User) (*User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[fresh.ID()]; ok {
		return u, true
	}
	m.users[fresh.ID()] = fresh
	return fresh, false
}

func (m *MockRegistry) RemoveUser(id int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.MarkGone()
		delete(m.users, id)
	}
	m.removedUsers[id] = true
}

func (m *MockRegistry) Room(id protocol.RoomID) (*room.Room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	return r, ok
}

func (m *MockRegistry) InsertRoom(r *room.Room) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[r.ID]; ok {
		return false
	}
	m.rooms[r.ID] = r
	return true
}

func (m *MockRegistry) RemoveRoom(id protocol.RoomID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, id)
	m.removedRooms[id] = true
}

func (m *MockRegistry) CanMonitor(id int32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.monitors[id]
	return ok
}

func (m *MockRegistry) ReportLost(sessionID uuid.UUID) {
	select {
	case m.lost <- sessionID:
	default:
	}
}

func (m *MockRegistry) AllowMonitor(id int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.monitors[id] = struct{}{}
}

func (m *MockRegistry) UserRemoved(id int32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removedUsers[id]
}

func (m *MockRegistry) RoomRemoved(id protocol.RoomID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removedRooms[id]
}

// waitLost blocks for the next lost-session report.
func (m *MockRegistry) waitLost(t *testing.T) uuid.UUID {
	t.Helper()
	select {
	case id := <-m.lost:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("no lost session reported")
		return uuid.Nil
	}
}

// identityStub fakes the identity service endpoints the session touches.
type identityStub struct {
	mu      sync.Mutex
	srv     *httptest.Server
	tokens  map[string]identity.UserInfo
	charts  map[int32]identity.Chart
	records map[int32]identity.Record
}

func newIdentityStub(t *testing.T) *identityStub {
	s := &identityStub{
		tokens:  make(map[string]identity.UserInfo),
		charts:  make(map[int32]identity.Chart),
		records: make(map[int32]identity.Record),
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *identityStub) client() *identity.Client { return identity.New(s.srv.URL) }

func (s *identityStub) addUser(token string, info identity.UserInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = info
}

func (s *identityStub) addChart(c identity.Chart) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.charts[c.ID] = c
}

func (s *identityStub) addRecord(rec identity.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
}

func (s *identityStub) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case r.URL.Path == "/me":
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		info, ok := s.tokens[token]
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(info)
	case strings.HasPrefix(r.URL.Path, "/chart/"):
		id, _ := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/chart/"))
		c, ok := s.charts[int32(id)]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(c)
	case strings.HasPrefix(r.URL.Path, "/record/"):
		id, _ := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/record/"))
		rec, ok := s.records[int32(id)]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(rec)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// testToken is a syntactically valid token filled with one byte.
func testToken(c byte) string {
	return strings.Repeat(string(c), protocol.MaxTokenLen)
}

// harness wires a mock registry, a stubbed identity service and a chat
// limiter, and connects in-process clients over net.Pipe.
type harness struct {
	t    *testing.T
	reg  *MockRegistry
	stub *identityStub
	chat *ratelimit.ChatLimiter
}

func newHarness(t *testing.T) *harness {
	return newHarnessRate(t, "100-S")
}

func newHarnessRate(t *testing.T, chatRate string) *harness {
	t.Helper()
	chat, err := ratelimit.NewChatLimiter(chatRate)
	require.NoError(t, err)
	return &harness{t: t, reg: NewMockRegistry(), stub: newIdentityStub(t), chat: chat}
}

// connect opens a piped connection and runs a real session on its server
// end. Both ends are torn down on test cleanup.
func (h *harness) connect() (*Session, *testClient) {
	h.t.Helper()
	serverConn, clientConn := net.Pipe()

	type result struct {
		sess *Session
		err  error
	}
	// Both constructors block on the version byte crossing the pipe.
	done := make(chan result, 1)
	go func() {
		sess, err := New(uuid.New(), serverConn, h.reg, h.stub.client(), h.chat)
		done <- result{sess, err}
	}()

	inbox := make(chan protocol.ServerCommand, 64)
	stream, err := transport.NewClient(clientConn, 1, transport.Config[protocol.ClientCommand, protocol.ServerCommand]{
		Encode: protocol.EncodeClientCommand,
		Decode: protocol.DecodeServerCommand,
		Handler: func(_ context.Context, cmd protocol.ServerCommand) {
			inbox <- cmd
		},
	})
	require.NoError(h.t, err)

	res := <-done
	require.NoError(h.t, res.err)

	h.t.Cleanup(func() {
		_ = stream.Close()
		_ = res.sess.Close()
		<-stream.Done()
		<-res.sess.Done()
	})
	return res.sess, &testClient{t: h.t, stream: stream, inbox: inbox}
}

// authedClient connects and authenticates a session for the given user.
func (h *harness) authedClient(token string, info identity.UserInfo) (*Session, *testClient) {
	h.t.Helper()
	h.stub.addUser(token, info)
	sess, tc := h.connect()
	tc.send(protocol.ClientAuthenticate{Token: token})
	reply := recvAs[protocol.ServerAuthenticate](tc)
	require.True(h.t, reply.OK, "authenticate failed: %s", reply.Err)
	return sess, tc
}

// testClient is the player's side of the wire.
type testClient struct {
	t      *testing.T
	stream *transport.Stream[protocol.ClientCommand, protocol.ServerCommand]
	inbox  chan protocol.ServerCommand
}

func (c *testClient) send(cmd protocol.ClientCommand) {
	c.t.Helper()
	require.NoError(c.t, c.stream.Send(context.Background(), cmd))
}

func (c *testClient) recv() protocol.ServerCommand {
	c.t.Helper()
	select {
	case cmd := <-c.inbox:
		return cmd
	case <-time.After(2 * time.Second):
		c.t.Fatal("timed out waiting for a server command")
		return nil
	}
}

// assertSilence fails if any command arrives within d.
func (c *testClient) assertSilence(d time.Duration) {
	c.t.Helper()
	select {
	case cmd := <-c.inbox:
		c.t.Fatalf("unexpected command %#v", cmd)
	case <-time.After(d):
	}
}

// recvAs fails the test unless the next command is a T.
func recvAs[T protocol.ServerCommand](c *testClient) T {
	c.t.Helper()
	cmd := c.recv()
	out, ok := cmd.(T)
	if !ok {
		c.t.Fatalf("expected %T, got %#v", out, cmd)
	}
	return out
}

// recvMessage unwraps the next command as a room message.
func recvMessage(c *testClient) protocol.Message {
	c.t.Helper()
	return recvAs[protocol.ServerMessage](c).Message
}

// waitFor discards commands until one is a T.
func waitFor[T protocol.ServerCommand](c *testClient) T {
	c.t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case cmd := <-c.inbox:
			if out, ok := cmd.(T); ok {
				return out
			}
		case <-deadline:
			var zero T
			c.t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}
