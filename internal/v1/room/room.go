// Package room implements the multiplayer room: membership, host
// assignment, chart selection and the select/ready/play state machine.
package room

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/internal/v1/identity"
	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/internal/v1/logging"
	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/internal/v1/metrics"
	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/pkg/protocol"
)

// MaxPlayers is the cap on non-monitor members of a room.
const MaxPlayers = 8

var (
	ErrNotHost         = errors.New("only host can do this")
	ErrInvalidState    = errors.New("invalid state")
	ErrAlreadyReady    = errors.New("already ready")
	ErrNotReady        = errors.New("not ready")
	ErrAborted         = errors.New("aborted")
	ErrAlreadyUploaded = errors.New("already uploaded")

	// ErrNoChartSelected carries a localization key; the dispatcher
	// renders it in the caller's language.
	ErrNoChartSelected = errors.New("start-no-chart-selected")
)

// Player is the view of a connected user this package needs. Implemented
// by session.User; the indirection keeps room free of session internals.
type Player interface {
	ID() int32
	Name() string
	Info() protocol.UserInfo
	IsMonitor() bool

	// TrySend queues a command without blocking, dropping it if the
	// player's session is gone or backed up.
	TrySend(cmd protocol.ServerCommand)

	// Gone reports that the user has been torn down server-side and
	// should be pruned from membership lists.
	Gone() bool

	ClearRoom()
	ResetGameTime()
}

// Room is one named multiplayer session: up to eight players plus any
// number of monitors advancing together through chart selection,
// ready-up and play.
//
// Each field group has its own lock. State transitions read state under
// the read lock, release it, then reacquire for writing; the mutation
// path revalidates after reacquiring.
type Room struct {
	ID protocol.RoomID

	stateMu sync.RWMutex
	state   internalState

	hostMu sync.RWMutex
	host   Player

	usersMu sync.RWMutex
	users   []Player

	monitorsMu sync.RWMutex
	monitors   []Player

	chartMu sync.RWMutex
	chart   *identity.Chart

	live   atomic.Bool
	locked atomic.Bool
	cycle  atomic.Bool
}

// New creates a room hosted (and initially solely occupied) by host.
func New(id protocol.RoomID, host Player) *Room {
	r := &Room{
		ID:    id,
		host:  host,
		users: []Player{host},
		state: internalState{phase: phaseSelectChart},
	}
	metrics.RoomPlayers.WithLabelValues(string(id)).Set(1)
	return r
}

// IsLive reports whether any monitor has ever joined.
func (r *Room) IsLive() bool { return r.live.Load() }

// MarkLive sets the live flag and reports whether it was already set.
// The flag never reverts for the lifetime of the room.
func (r *Room) MarkLive() (wasLive bool) { return r.live.Swap(true) }

func (r *Room) Locked() bool          { return r.locked.Load() }
func (r *Room) SetLocked(locked bool) { r.locked.Store(locked) }
func (r *Room) Cycle() bool           { return r.cycle.Load() }
func (r *Room) SetCycle(cycle bool)   { r.cycle.Store(cycle) }

// Chart returns the currently selected chart, if any.
func (r *Room) Chart() (identity.Chart, bool) {
	r.chartMu.RLock()
	defer r.chartMu.RUnlock()
	if r.chart == nil {
		return identity.Chart{}, false
	}
	return *r.chart, true
}

func (r *Room) chartID() *int32 {
	r.chartMu.RLock()
	defer r.chartMu.RUnlock()
	if r.chart == nil {
		return nil
	}
	id := r.chart.ID
	return &id
}

// AddUser admits a player, returning false when the room is full.
// Monitors bypass the player cap.
func (r *Room) AddUser(p Player, monitor bool) bool {
	if monitor {
		r.monitorsMu.Lock()
		defer r.monitorsMu.Unlock()
		r.monitors = append(r.monitors, p)
		return true
	}

	r.usersMu.Lock()
	defer r.usersMu.Unlock()
	kept := r.users[:0]
	for _, q := range r.users {
		if !q.Gone() {
			kept = append(kept, q)
		}
	}
	r.users = kept
	if len(r.users) >= MaxPlayers {
		return false
	}
	r.users = append(r.users, p)
	metrics.RoomPlayers.WithLabelValues(string(r.ID)).Set(float64(len(r.users)))
	return true
}

// Users returns the live participants in join order.
func (r *Room) Users() []Player {
	r.usersMu.RLock()
	defer r.usersMu.RUnlock()
	return livePlayers(r.users)
}

// Monitors returns the live monitors in join order.
func (r *Room) Monitors() []Player {
	r.monitorsMu.RLock()
	defer r.monitorsMu.RUnlock()
	return livePlayers(r.monitors)
}

func livePlayers(list []Player) []Player {
	out := make([]Player, 0, len(list))
	for _, p := range list {
		if !p.Gone() {
			out = append(out, p)
		}
	}
	return out
}

// CheckHost returns nil iff p currently hosts the room.
func (r *Room) CheckHost(p Player) error {
	r.hostMu.RLock()
	defer r.hostMu.RUnlock()
	if r.host == nil || r.host.Gone() || r.host.ID() != p.ID() {
		return ErrNotHost
	}
	return nil
}

func (r *Room) setHost(p Player) {
	r.hostMu.Lock()
	defer r.hostMu.Unlock()
	r.host = p
}

// Broadcast queues cmd for every participant and monitor. Delivery
// failures are handled per recipient and never abort the fan-out.
func (r *Room) Broadcast(cmd protocol.ServerCommand) {
	for _, p := range r.Users() {
		p.TrySend(cmd)
	}
	for _, p := range r.Monitors() {
		p.TrySend(cmd)
	}
}

// BroadcastMonitors queues cmd for monitors only.
func (r *Room) BroadcastMonitors(cmd protocol.ServerCommand) {
	for _, p := range r.Monitors() {
		p.TrySend(cmd)
	}
}

// Send broadcasts a room event message.
func (r *Room) Send(msg protocol.Message) {
	r.Broadcast(protocol.ServerMessage{Message: msg})
}

// SendAs broadcasts a chat line attributed to p.
func (r *Room) SendAs(p Player, content string) {
	r.Send(protocol.MsgChat{User: p.ID(), Content: content})
}

// ClientRoomState snapshots the public (wire-facing) room state.
func (r *Room) ClientRoomState() protocol.RoomState {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return r.state.toClient(r.chartID())
}

// ClientState snapshots the room as seen by p, for the authenticate
// reply and the join response.
func (r *Room) ClientState(p Player) protocol.ClientRoomState {
	users := make(map[int32]protocol.UserInfo)
	for _, q := range r.Users() {
		users[q.ID()] = q.Info()
	}
	for _, q := range r.Monitors() {
		users[q.ID()] = q.Info()
	}
	return protocol.ClientRoomState{
		ID:      r.ID,
		State:   r.ClientRoomState(),
		Live:    r.IsLive(),
		Locked:  r.Locked(),
		Cycle:   r.Cycle(),
		IsHost:  r.CheckHost(p) == nil,
		IsReady: r.isReady(p),
		Users:   users,
	}
}

func (r *Room) isReady(p Player) bool {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	if r.state.phase != phaseWaitForReady {
		return false
	}
	_, ok := r.state.started[p.ID()]
	return ok
}

// MemberInfos lists participants then monitors, in join order, for the
// join-room response.
func (r *Room) MemberInfos() []protocol.UserInfo {
	users := r.Users()
	monitors := r.Monitors()
	out := make([]protocol.UserInfo, 0, len(users)+len(monitors))
	for _, p := range users {
		out = append(out, p.Info())
	}
	for _, p := range monitors {
		out = append(out, p.Info())
	}
	return out
}

// OnStateChange broadcasts the current public state to all members.
func (r *Room) OnStateChange() {
	r.Broadcast(protocol.ServerChangeState{State: r.ClientRoomState()})
}

// OnUserLeave removes p from the room, migrating the host role if
// needed, and reports whether the room should be dropped.
func (r *Room) OnUserLeave(ctx context.Context, p Player) bool {
	r.Send(protocol.MsgLeaveRoom{User: p.ID(), Name: p.Name()})
	wasHost := r.CheckHost(p) == nil
	p.ClearRoom()

	if p.IsMonitor() {
		r.monitorsMu.Lock()
		r.monitors = removePlayer(r.monitors, p.ID())
		r.monitorsMu.Unlock()
	} else {
		r.usersMu.Lock()
		r.users = removePlayer(r.users, p.ID())
		metrics.RoomPlayers.WithLabelValues(string(r.ID)).Set(float64(len(r.users)))
		r.usersMu.Unlock()
	}

	remaining := r.Users()
	if len(remaining) == 0 {
		logging.Info(ctx, "room players all gone, dropping room",
			zap.String("room_id", string(r.ID)))
		return true
	}
	if wasHost {
		logging.Info(ctx, "host left, migrating",
			zap.String("room_id", string(r.ID)), zap.Int32("user_id", p.ID()))
		next := remaining[randIntn(len(remaining))]
		r.setHost(next)
		r.Send(protocol.MsgNewHost{User: next.ID()})
		next.TrySend(protocol.ServerChangeHost{IsHost: true})
	}
	r.CheckAllReady(ctx)
	return false
}

func removePlayer(list []Player, id int32) []Player {
	kept := list[:0]
	for _, p := range list {
		if !p.Gone() && p.ID() != id {
			kept = append(kept, p)
		}
	}
	return kept
}
