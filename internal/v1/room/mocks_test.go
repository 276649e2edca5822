package room

import (
	"sync"
	"sync/atomic"

	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/pkg/protocol"
)

// MockPlayer implements Player for testing.
type MockPlayer struct {
	id      int32
	name    string
	monitor bool

	gone atomic.Bool

	mu          sync.Mutex
	sent        []protocol.ServerCommand
	roomCleared bool
	timeResets  int
}

func NewMockPlayer(id int32, name string, monitor bool) *MockPlayer {
	return &MockPlayer{id: id, name: name, monitor: monitor}
}

func (m *MockPlayer) ID() int32       { return m.id }
func (m *MockPlayer) Name() string    { return m.name }
func (m *MockPlayer) IsMonitor() bool { return m.monitor }
func (m *MockPlayer) Gone() bool      { return m.gone.Load() }

func (m *MockPlayer) Info() protocol.UserInfo {
	return protocol.UserInfo{ID: m.id, Name: m.name, Monitor: m.monitor}
}

func (m *MockPlayer) TrySend(cmd protocol.ServerCommand) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, cmd)
}

func (m *MockPlayer) ClearRoom() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roomCleared = true
}

func (m *MockPlayer) ResetGameTime() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeResets++
}

func (m *MockPlayer) markGone() { m.gone.Store(true) }

// Sent returns a copy of everything queued for this player so far.
func (m *MockPlayer) Sent() []protocol.ServerCommand {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]protocol.ServerCommand, len(m.sent))
	copy(out, m.sent)
	return out
}

// Messages filters Sent down to broadcast room messages.
func (m *MockPlayer) Messages() []protocol.Message {
	var out []protocol.Message
	for _, cmd := range m.Sent() {
		if sm, ok := cmd.(protocol.ServerMessage); ok {
			out = append(out, sm.Message)
		}
	}
	return out
}

// LastState returns the most recent ChangeState payload, if any.
func (m *MockPlayer) LastState() (protocol.RoomState, bool) {
	sent := m.Sent()
	for i := len(sent) - 1; i >= 0; i-- {
		if cs, ok := sent[i].(protocol.ServerChangeState); ok {
			return cs.State, true
		}
	}
	return protocol.RoomState{}, false
}

func (m *MockPlayer) resetsSeen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timeResets
}

func (m *MockPlayer) clearedRoom() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roomCleared
}
