package session

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/internal/v1/locale"
	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/internal/v1/logging"
	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/internal/v1/metrics"
	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/internal/v1/room"
	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/pkg/protocol"
)

// Per-user request errors. The localized ones carry catalog keys; Tr
// renders them in the caller's language and passes the rest through
// verbatim.
var (
	errNoRoom        = errors.New("no room")
	errAlreadyInRoom = errors.New("already in room")
	errRoomNotFound  = errors.New("room not found")
	errIDOccupied    = errors.New("create-id-occupied")
	errRoomLocked    = errors.New("join-room-locked")
	errGameOngoing   = errors.New("join-game-ongoing")
	errCantMonitor   = errors.New("join-cant-monitor")
	errRoomFull      = errors.New("join-room-full")
	errChatTooFast   = errors.New("chat-too-frequent")
	errInvalidRecord = errors.New("invalid record")
)

// result localizes err for the user and records the command outcome.
func result(user *User, command string, err error) (bool, string) {
	if err != nil {
		metrics.Commands.WithLabelValues(command, "error").Inc()
		return false, locale.Tr(user.Lang(), err.Error())
	}
	metrics.Commands.WithLabelValues(command, "ok").Inc()
	return true, ""
}

// dispatch routes one authenticated command and returns the reply to
// deliver, nil for the fire-and-forget telemetry commands.
func (s *Session) dispatch(ctx context.Context, user *User, cmd protocol.ClientCommand) protocol.ServerCommand {
	switch c := cmd.(type) {
	case protocol.ClientAuthenticate:
		metrics.Commands.WithLabelValues("authenticate", "error").Inc()
		return protocol.ServerAuthenticate{Err: "repeated authenticate"}

	case protocol.ClientChat:
		ok, msg := result(user, "chat", s.handleChat(ctx, user, c.Message))
		return protocol.ServerChat{OK: ok, Err: msg}

	case protocol.ClientTouches:
		s.handleTouches(ctx, user, c.Frames)
		metrics.Commands.WithLabelValues("touches", "ok").Inc()
		return nil

	case protocol.ClientJudges:
		s.handleJudges(ctx, user, c.Judges)
		metrics.Commands.WithLabelValues("judges", "ok").Inc()
		return nil

	case protocol.ClientCreateRoom:
		ok, msg := result(user, "create_room", s.handleCreateRoom(ctx, user, c.ID))
		return protocol.ServerCreateRoom{OK: ok, Err: msg}

	case protocol.ClientJoinRoom:
		resp, err := s.handleJoinRoom(ctx, user, c.ID, c.Monitor)
		ok, msg := result(user, "join_room", err)
		return protocol.ServerJoinRoom{OK: ok, Response: resp, Err: msg}

	case protocol.ClientLeaveRoom:
		ok, msg := result(user, "leave_room", s.handleLeaveRoom(ctx, user))
		return protocol.ServerLeaveRoom{OK: ok, Err: msg}

	case protocol.ClientLockRoom:
		ok, msg := result(user, "lock_room", s.handleLockRoom(ctx, user, c.Lock))
		return protocol.ServerLockRoom{OK: ok, Err: msg}

	case protocol.ClientCycleRoom:
		ok, msg := result(user, "cycle_room", s.handleCycleRoom(ctx, user, c.Cycle))
		return protocol.ServerCycleRoom{OK: ok, Err: msg}

	case protocol.ClientSelectChart:
		ok, msg := result(user, "select_chart", s.handleSelectChart(ctx, user, c.ID))
		return protocol.ServerSelectChart{OK: ok, Err: msg}

	case protocol.ClientRequestStart:
		ok, msg := result(user, "request_start", s.handleRequestStart(ctx, user))
		return protocol.ServerRequestStart{OK: ok, Err: msg}

	case protocol.ClientReady:
		ok, msg := result(user, "ready", s.handleReady(ctx, user))
		return protocol.ServerReady{OK: ok, Err: msg}

	case protocol.ClientCancelReady:
		ok, msg := result(user, "cancel_ready", s.handleCancelReady(ctx, user))
		return protocol.ServerCancelReady{OK: ok, Err: msg}

	case protocol.ClientPlayed:
		ok, msg := result(user, "played", s.handlePlayed(ctx, user, c.ID))
		return protocol.ServerPlayed{OK: ok, Err: msg}

	case protocol.ClientAbort:
		ok, msg := result(user, "abort", s.handleAbort(ctx, user))
		return protocol.ServerAbort{OK: ok, Err: msg}

	default:
		logging.Warn(ctx, "unhandled command", zap.String("command", commandName(cmd)))
		return nil
	}
}

func (s *Session) handleChat(ctx context.Context, user *User, message string) error {
	r := user.Room()
	if r == nil {
		return errNoRoom
	}
	if !s.chat.Allow(ctx, user.ID()) {
		return errChatTooFast
	}
	r.SendAs(user, message)
	return nil
}

// handleTouches forwards touch telemetry to the room's monitors. There
// is no reply: telemetry is fire-and-forget and bad frames are dropped.
func (s *Session) handleTouches(ctx context.Context, user *User, frames []protocol.TouchFrame) {
	r := user.Room()
	if r == nil {
		logging.Warn(ctx, "touch frames outside a room, ignoring")
		return
	}
	if !r.IsLive() {
		logging.Warn(ctx, "touch frames in a room that is not live, ignoring")
		return
	}
	if len(frames) > 0 {
		user.SetGameTime(frames[len(frames)-1].Time)
	}
	r.BroadcastMonitors(protocol.ServerTouches{Player: user.ID(), Frames: frames})
}

func (s *Session) handleJudges(ctx context.Context, user *User, judges []protocol.JudgeEvent) {
	r := user.Room()
	if r == nil {
		logging.Warn(ctx, "judge events outside a room, ignoring")
		return
	}
	if !r.IsLive() {
		logging.Warn(ctx, "judge events in a room that is not live, ignoring")
		return
	}
	r.BroadcastMonitors(protocol.ServerJudges{Player: user.ID(), Judges: judges})
}

func (s *Session) handleCreateRoom(ctx context.Context, user *User, id protocol.RoomID) error {
	if user.Room() != nil {
		return errAlreadyInRoom
	}
	r := room.New(id, user)
	if !s.reg.InsertRoom(r) {
		return errIDOccupied
	}
	r.Send(protocol.MsgCreateRoom{User: user.ID()})
	user.SetRoom(r)
	logging.Info(ctx, "user created room",
		zap.Int32("user", user.ID()), zap.String("room", id.String()))
	return nil
}

func (s *Session) handleJoinRoom(ctx context.Context, user *User, id protocol.RoomID, monitor bool) (protocol.JoinRoomResponse, error) {
	if user.Room() != nil {
		return protocol.JoinRoomResponse{}, errAlreadyInRoom
	}
	r, ok := s.reg.Room(id)
	if !ok {
		return protocol.JoinRoomResponse{}, errRoomNotFound
	}
	if r.Locked() {
		return protocol.JoinRoomResponse{}, errRoomLocked
	}
	if r.RequireSelectChart() != nil {
		return protocol.JoinRoomResponse{}, errGameOngoing
	}
	if monitor && !s.reg.CanMonitor(user.ID()) {
		return protocol.JoinRoomResponse{}, errCantMonitor
	}
	if !r.AddUser(user, monitor) {
		return protocol.JoinRoomResponse{}, errRoomFull
	}
	logging.Info(ctx, "user joined room",
		zap.Int32("user", user.ID()), zap.String("room", id.String()), zap.Bool("monitor", monitor))

	user.SetMonitor(monitor)
	if monitor && !r.MarkLive() {
		logging.Info(ctx, "room goes live", zap.String("room", id.String()))
	}
	r.Broadcast(protocol.ServerOnJoinRoom{User: user.Info()})
	r.Send(protocol.MsgJoinRoom{User: user.ID(), Name: user.Name()})
	user.SetRoom(r)

	return protocol.JoinRoomResponse{
		State: r.ClientRoomState(),
		Users: r.MemberInfos(),
		Live:  r.IsLive(),
	}, nil
}

func (s *Session) handleLeaveRoom(ctx context.Context, user *User) error {
	r := user.Room()
	if r == nil {
		return errNoRoom
	}
	logging.Info(ctx, "user left room",
		zap.Int32("user", user.ID()), zap.String("room", r.ID.String()))
	if r.OnUserLeave(ctx, user) {
		s.reg.RemoveRoom(r.ID)
	}
	return nil
}

func (s *Session) handleLockRoom(ctx context.Context, user *User, lock bool) error {
	r := user.Room()
	if r == nil {
		return errNoRoom
	}
	if err := r.CheckHost(user); err != nil {
		return err
	}
	logging.Info(ctx, "room lock changed",
		zap.String("room", r.ID.String()), zap.Bool("lock", lock))
	r.SetLocked(lock)
	r.Send(protocol.MsgLockRoom{Lock: lock})
	return nil
}

func (s *Session) handleCycleRoom(ctx context.Context, user *User, cycle bool) error {
	r := user.Room()
	if r == nil {
		return errNoRoom
	}
	if err := r.CheckHost(user); err != nil {
		return err
	}
	logging.Info(ctx, "room cycle changed",
		zap.String("room", r.ID.String()), zap.Bool("cycle", cycle))
	r.SetCycle(cycle)
	r.Send(protocol.MsgCycleRoom{Cycle: cycle})
	return nil
}

func (s *Session) handleSelectChart(ctx context.Context, user *User, id int32) error {
	r := user.Room()
	if r == nil {
		return errNoRoom
	}
	if err := r.RequireSelectChart(); err != nil {
		return err
	}
	if err := r.CheckHost(user); err != nil {
		return err
	}
	chart, err := s.idc.Chart(ctx, id)
	if err != nil {
		logging.Warn(ctx, "failed to fetch chart", zap.Int32("chart", id), zap.Error(err))
		return err
	}
	logging.Info(ctx, "chart selected",
		zap.String("room", r.ID.String()), zap.Int32("chart", chart.ID), zap.String("name", chart.Name))
	r.SetChart(user, chart)
	return nil
}

func (s *Session) handleRequestStart(ctx context.Context, user *User) error {
	r := user.Room()
	if r == nil {
		return errNoRoom
	}
	return r.StartGame(ctx, user)
}

func (s *Session) handleReady(ctx context.Context, user *User) error {
	r := user.Room()
	if r == nil {
		return errNoRoom
	}
	return r.Ready(ctx, user)
}

func (s *Session) handleCancelReady(ctx context.Context, user *User) error {
	r := user.Room()
	if r == nil {
		return errNoRoom
	}
	return r.CancelReady(ctx, user)
}

func (s *Session) handlePlayed(ctx context.Context, user *User, id int32) error {
	r := user.Room()
	if r == nil {
		return errNoRoom
	}
	// Cheap state check first: don't fetch a record for a round that is
	// not running.
	if err := r.RequirePlaying(); err != nil {
		return err
	}
	rec, err := s.idc.Record(ctx, id)
	if err != nil {
		logging.Warn(ctx, "failed to fetch record", zap.Int32("record", id), zap.Error(err))
		return err
	}
	if rec.Player != user.ID() {
		return errInvalidRecord
	}
	return r.SubmitRecord(ctx, user, rec)
}

func (s *Session) handleAbort(ctx context.Context, user *User) error {
	r := user.Room()
	if r == nil {
		return errNoRoom
	}
	return r.AbortPlay(ctx, user)
}

// commandName labels commands for logs and metrics.
func commandName(cmd protocol.ClientCommand) string {
	switch cmd.Type() {
	case protocol.ClientCmdPing:
		return "ping"
	case protocol.ClientCmdAuthenticate:
		return "authenticate"
	case protocol.ClientCmdChat:
		return "chat"
	case protocol.ClientCmdTouches:
		return "touches"
	case protocol.ClientCmdJudges:
		return "judges"
	case protocol.ClientCmdCreateRoom:
		return "create_room"
	case protocol.ClientCmdJoinRoom:
		return "join_room"
	case protocol.ClientCmdLeaveRoom:
		return "leave_room"
	case protocol.ClientCmdLockRoom:
		return "lock_room"
	case protocol.ClientCmdCycleRoom:
		return "cycle_room"
	case protocol.ClientCmdSelectChart:
		return "select_chart"
	case protocol.ClientCmdRequestStart:
		return "request_start"
	case protocol.ClientCmdReady:
		return "ready"
	case protocol.ClientCmdCancelReady:
		return "cancel_ready"
	case protocol.ClientCmdPlayed:
		return "played"
	case protocol.ClientCmdAbort:
		return "abort"
	default:
		return "unknown"
	}
}
