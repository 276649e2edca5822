package client

import (
	"context"

	"go.uber.org/zap"

	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/internal/v1/logging"
	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/pkg/protocol"
)

// handle is the stream's inbound handler. The transport invokes it one
// command at a time, so mirror updates land in arrival order.
func (c *Client) handle(ctx context.Context, cmd protocol.ServerCommand) {
	switch cmd := cmd.(type) {
	case protocol.ServerPong:
		c.notifyPong()
	case protocol.ServerTouches:
		c.livePlayer(cmd.Player).appendFrames(cmd.Frames)
	case protocol.ServerJudges:
		c.livePlayer(cmd.Player).appendJudges(cmd.Judges)
	case protocol.ServerMessage:
		c.applyMessage(cmd.Message)
	case protocol.ServerChangeState:
		c.applyState(cmd.State)
	case protocol.ServerChangeHost:
		c.applyHost(cmd.IsHost)
	case protocol.ServerOnJoinRoom:
		c.applyJoin(cmd.User)
	default:
		c.complete(ctx, cmd)
	}
}

// applyMessage folds roster-affecting events into the mirror, then
// files the message in the inbox for the UI to render.
func (c *Client) applyMessage(msg protocol.Message) {
	c.mu.Lock()
	switch m := msg.(type) {
	case protocol.MsgLockRoom:
		if c.room != nil {
			c.room.Locked = m.Lock
		}
	case protocol.MsgCycleRoom:
		if c.room != nil {
			c.room.Cycle = m.Cycle
		}
	case protocol.MsgLeaveRoom:
		if c.room != nil {
			delete(c.room.Users, m.User)
		}
	}
	c.messages = append(c.messages, msg)
	c.mu.Unlock()
}

// applyState replaces the mirrored state and resets the round's
// telemetry buffers. The host never sends Ready, so a phase change
// marks them ready immediately and the roster shows them in the ready
// group.
func (c *Client) applyState(state protocol.RoomState) {
	c.liveMu.Lock()
	c.livePlayers = make(map[int32]*LivePlayer)
	c.liveMu.Unlock()

	c.mu.Lock()
	if c.room != nil {
		c.room.State = state
		c.room.IsReady = c.room.IsHost
	}
	c.mu.Unlock()
}

func (c *Client) applyHost(isHost bool) {
	c.mu.Lock()
	if c.room != nil {
		c.room.IsHost = isHost
	}
	c.mu.Unlock()
}

// applyJoin inserts or refreshes the joining user. A joining monitor
// latches the mirror live; it stays live until the mirror is rebuilt.
func (c *Client) applyJoin(user protocol.UserInfo) {
	c.mu.Lock()
	if c.room != nil {
		c.room.Live = c.room.Live || user.Monitor
		c.room.Users[user.ID] = user
	}
	c.mu.Unlock()
}

// complete resolves the pending call slot for a reply-shaped command.
func (c *Client) complete(ctx context.Context, cmd protocol.ServerCommand) {
	c.pendMu.Lock()
	slot, ok := c.pending[cmd.Type()]
	if ok {
		delete(c.pending, cmd.Type())
	}
	c.pendMu.Unlock()
	if !ok {
		logging.Warn(ctx, "reply without a pending call", zap.Uint8("kind", uint8(cmd.Type())))
		return
	}
	slot <- cmd
}
