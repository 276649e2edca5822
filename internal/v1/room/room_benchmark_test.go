package room

import (
	"fmt"
	"testing"

	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/pkg/protocol"
)

// benchPlayer swallows sends so the benchmark measures fan-out, not the
// mock's bookkeeping.
type benchPlayer struct {
	id      int32
	name    string
	monitor bool
	sends   int
}

func newBenchPlayer(id int32, monitor bool) *benchPlayer {
	return &benchPlayer{id: id, name: fmt.Sprintf("user-%d", id), monitor: monitor}
}

func (p *benchPlayer) ID() int32       { return p.id }
func (p *benchPlayer) Name() string    { return p.name }
func (p *benchPlayer) IsMonitor() bool { return p.monitor }
func (p *benchPlayer) Gone() bool      { return false }
func (p *benchPlayer) ClearRoom()      {}
func (p *benchPlayer) ResetGameTime()  {}

func (p *benchPlayer) Info() protocol.UserInfo {
	return protocol.UserInfo{ID: p.id, Name: p.name, Monitor: p.monitor}
}

func (p *benchPlayer) TrySend(cmd protocol.ServerCommand) {
	// Touch the command to keep the compiler honest.
	_ = cmd
	p.sends++
}

func benchRoom(extraMonitors int) *Room {
	r := New(protocol.RoomID("bench"), newBenchPlayer(1, false))
	for i := int32(2); i <= MaxPlayers; i++ {
		r.AddUser(newBenchPlayer(i, false), false)
	}
	for i := 0; i < extraMonitors; i++ {
		r.AddUser(newBenchPlayer(int32(100+i), true), true)
	}
	return r
}

func BenchmarkBroadcast(b *testing.B) {
	r := benchRoom(64)
	msg := protocol.MsgChat{User: 1, Content: "benchmark chat payload of a plausible everyday size"}

	b.ReportAllocs()

	for b.Loop() {
		r.Send(msg)
	}
}

func BenchmarkClientState(b *testing.B) {
	r := benchRoom(8)
	p := r.Users()[0]

	b.ReportAllocs()

	for b.Loop() {
		_ = r.ClientState(p)
	}
}

func BenchmarkOnStateChange(b *testing.B) {
	r := benchRoom(64)

	b.ReportAllocs()

	for b.Loop() {
		r.OnStateChange()
	}
}
