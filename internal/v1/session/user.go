package session

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/internal/v1/logging"
	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/internal/v1/metrics"
	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/internal/v1/room"
	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/pkg/protocol"
)

// dangleGrace is how long a disconnected user may reattach before being
// dropped. Swappable in tests.
var dangleGrace = 10 * time.Second

// dangleMark identifies one grace period by pointer. A reattach installs
// a new session and forgets the mark, so the expiry callback can tell
// whether its own grace period is still the current one.
type dangleMark struct{}

// User is an authenticated player. It outlives its session: a dropped
// connection leaves the user dangling until either a new session
// reattaches or the grace period lapses. Identity fields are fixed at
// first authentication.
type User struct {
	id   int32
	name string
	lang string

	monitor  atomic.Bool
	gameTime atomic.Uint32
	gone     atomic.Bool

	mu      sync.Mutex
	session *Session
	dangle  *dangleMark

	roomMu sync.RWMutex
	room   *room.Room
}

// NewUser builds a user from identity data. lang must already be
// normalized to a supported catalog tag.
func NewUser(id int32, name, lang string) *User {
	u := &User{id: id, name: name, lang: lang}
	u.ResetGameTime()
	return u
}

func (u *User) ID() int32    { return u.id }
func (u *User) Name() string { return u.name }
func (u *User) Lang() string { return u.lang }

func (u *User) Info() protocol.UserInfo {
	return protocol.UserInfo{ID: u.id, Name: u.name, Monitor: u.monitor.Load()}
}

func (u *User) IsMonitor() bool { return u.monitor.Load() }

func (u *User) SetMonitor(monitor bool) { u.monitor.Store(monitor) }

// Gone reports whether the user has been dropped from the server. Rooms
// prune gone users from their member lists.
func (u *User) Gone() bool { return u.gone.Load() }

// MarkGone flags the user as dropped. Only the server registry calls
// this, at the moment it removes the user.
func (u *User) MarkGone() { u.gone.Store(true) }

// GameTime is the playback time of the user's latest touch frame, used
// to spot stalled players. It resets to -inf between rounds.
func (u *User) GameTime() float32 {
	return math.Float32frombits(u.gameTime.Load())
}

func (u *User) SetGameTime(t float32) {
	u.gameTime.Store(math.Float32bits(t))
}

func (u *User) ResetGameTime() {
	u.gameTime.Store(math.Float32bits(float32(math.Inf(-1))))
}

// Room returns the room the user is currently in, or nil.
func (u *User) Room() *room.Room {
	u.roomMu.RLock()
	defer u.roomMu.RUnlock()
	return u.room
}

func (u *User) SetRoom(r *room.Room) {
	u.roomMu.Lock()
	u.room = r
	u.roomMu.Unlock()
}

func (u *User) ClearRoom() {
	u.SetRoom(nil)
}

// Session returns the session currently attached to the user, or nil
// while the user dangles.
func (u *User) Session() *Session {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.session
}

// SetSession attaches s to the user and cancels any pending dangle
// grace period.
func (u *User) SetSession(s *Session) {
	u.mu.Lock()
	u.session = s
	u.dangle = nil
	u.mu.Unlock()
}

// TrySend queues cmd on the user's session without blocking. Commands
// addressed to a dangling user are dropped with a warning.
func (u *User) TrySend(cmd protocol.ServerCommand) {
	s := u.Session()
	if s == nil {
		logging.Warn(context.Background(), "sending to dangling user",
			zap.Int32("user", u.id), zap.Uint8("command", uint8(cmd.Type())))
		return
	}
	s.TrySend(cmd)
}

// Dangle detaches the user from its dead session and arms the reattach
// grace timer. A user mid-round is leave-applied immediately instead: a
// round cannot stall on a player who may never return.
func (u *User) Dangle(ctx context.Context, reg Registry) {
	logging.Warn(ctx, "user dangling", zap.Int32("user", u.id))
	u.mu.Lock()
	u.session = nil
	u.mu.Unlock()

	if r := u.Room(); r != nil && r.RequirePlaying() == nil {
		logging.Warn(ctx, "lost connection while playing, dropping user", zap.Int32("user", u.id))
		u.drop(ctx, reg)
		return
	}

	mark := &dangleMark{}
	u.mu.Lock()
	u.dangle = mark
	u.mu.Unlock()
	time.AfterFunc(dangleGrace, func() {
		u.expireDangle(context.Background(), reg, mark)
	})
}

func (u *User) expireDangle(ctx context.Context, reg Registry, mark *dangleMark) {
	u.mu.Lock()
	if u.dangle != mark {
		u.mu.Unlock()
		return
	}
	u.dangle = nil
	u.mu.Unlock()

	logging.Warn(ctx, "reattach grace lapsed, dropping user", zap.Int32("user", u.id))
	metrics.DanglesExpired.Inc()
	u.drop(ctx, reg)
}

// drop removes the user from the server and applies the leave to its
// room, dropping the room too when it empties.
func (u *User) drop(ctx context.Context, reg Registry) {
	reg.RemoveUser(u.id)
	if r := u.Room(); r != nil {
		if r.OnUserLeave(ctx, u) {
			reg.RemoveRoom(r.ID)
		}
	}
}
