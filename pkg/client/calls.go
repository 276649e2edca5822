package client

import (
	"context"
	"time"

	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/pkg/protocol"
)

// call installs a one-shot reply slot for the given kind, sends cmd,
// and waits for the dispatcher to resolve the slot. At most one call
// per kind may be outstanding.
func (c *Client) call(ctx context.Context, cmd protocol.ClientCommand, want protocol.ServerCommandType) (protocol.ServerCommand, error) {
	slot := make(chan protocol.ServerCommand, 1)

	c.pendMu.Lock()
	if _, exists := c.pending[want]; exists {
		c.pendMu.Unlock()
		return nil, ErrCallPending
	}
	c.pending[want] = slot
	c.pendMu.Unlock()

	// Remove the slot unless the dispatcher already took it, and never
	// remove a successor installed by a later call.
	clear := func() {
		c.pendMu.Lock()
		if c.pending[want] == slot {
			delete(c.pending, want)
		}
		c.pendMu.Unlock()
	}

	if err := c.stream.Send(ctx, cmd); err != nil {
		clear()
		return nil, err
	}

	timer := time.NewTimer(callTimeout)
	defer timer.Stop()
	select {
	case reply := <-slot:
		return reply, nil
	case <-timer.C:
		clear()
		return nil, ErrCallTimeout
	case <-ctx.Done():
		clear()
		return nil, ctx.Err()
	case <-c.stream.Done():
		clear()
		return nil, transportErr(c.stream.Err())
	}
}

func transportErr(err error) error {
	if err == nil {
		return ErrCallTimeout
	}
	return err
}

func unitReply(ok bool, reason string) error {
	if !ok {
		return &RemoteError{Reason: reason}
	}
	return nil
}

// Authenticate exchanges the token for the account it belongs to and
// restores any room the server still holds this user in.
func (c *Client) Authenticate(ctx context.Context, token string) error {
	if len(token) > protocol.MaxTokenLen {
		return protocol.ErrStringTooLong
	}
	reply, err := c.call(ctx, protocol.ClientAuthenticate{Token: token}, protocol.ServerCmdAuthenticate)
	if err != nil {
		return err
	}
	res := reply.(protocol.ServerAuthenticate)
	if !res.OK {
		return &RemoteError{Reason: res.Err}
	}
	c.mu.Lock()
	me := res.Me
	c.me = &me
	c.room = res.Room
	c.mu.Unlock()
	return nil
}

// Chat asks the server to broadcast a chat line to the current room.
func (c *Client) Chat(ctx context.Context, message string) error {
	if len(message) > protocol.MaxChatLen {
		return protocol.ErrStringTooLong
	}
	reply, err := c.call(ctx, protocol.ClientChat{Message: message}, protocol.ServerCmdChat)
	if err != nil {
		return err
	}
	res := reply.(protocol.ServerChat)
	return unitReply(res.OK, res.Err)
}

// CreateRoom claims the id and seeds the mirror with this user as the
// sole member and host.
func (c *Client) CreateRoom(ctx context.Context, id protocol.RoomID) error {
	if _, err := protocol.ParseRoomID(string(id)); err != nil {
		return err
	}
	reply, err := c.call(ctx, protocol.ClientCreateRoom{ID: id}, protocol.ServerCmdCreateRoom)
	if err != nil {
		return err
	}
	res := reply.(protocol.ServerCreateRoom)
	if err := unitReply(res.OK, res.Err); err != nil {
		return err
	}
	c.mu.Lock()
	users := make(map[int32]protocol.UserInfo, 1)
	if c.me != nil {
		users[c.me.ID] = *c.me
	}
	c.room = &protocol.ClientRoomState{
		ID:     id,
		State:  protocol.RoomState{Type: protocol.RoomStateSelectChart},
		IsHost: true,
		Users:  users,
	}
	c.mu.Unlock()
	return nil
}

// JoinRoom enters an existing room, as a monitor when monitor is set,
// and seeds the mirror from the server's response.
func (c *Client) JoinRoom(ctx context.Context, id protocol.RoomID, monitor bool) error {
	if _, err := protocol.ParseRoomID(string(id)); err != nil {
		return err
	}
	reply, err := c.call(ctx, protocol.ClientJoinRoom{ID: id, Monitor: monitor}, protocol.ServerCmdJoinRoom)
	if err != nil {
		return err
	}
	res := reply.(protocol.ServerJoinRoom)
	if !res.OK {
		return &RemoteError{Reason: res.Err}
	}
	users := make(map[int32]protocol.UserInfo, len(res.Response.Users))
	for _, u := range res.Response.Users {
		users[u.ID] = u
	}
	c.mu.Lock()
	c.room = &protocol.ClientRoomState{
		ID:    id,
		State: res.Response.State,
		Live:  res.Response.Live,
		Users: users,
	}
	c.mu.Unlock()
	return nil
}

// LeaveRoom exits the current room and drops the mirror.
func (c *Client) LeaveRoom(ctx context.Context) error {
	reply, err := c.call(ctx, protocol.ClientLeaveRoom{}, protocol.ServerCmdLeaveRoom)
	if err != nil {
		return err
	}
	res := reply.(protocol.ServerLeaveRoom)
	if err := unitReply(res.OK, res.Err); err != nil {
		return err
	}
	c.mu.Lock()
	c.room = nil
	c.mu.Unlock()
	return nil
}

// LockRoom sets the room's lock flag. Host only.
func (c *Client) LockRoom(ctx context.Context, lock bool) error {
	reply, err := c.call(ctx, protocol.ClientLockRoom{Lock: lock}, protocol.ServerCmdLockRoom)
	if err != nil {
		return err
	}
	res := reply.(protocol.ServerLockRoom)
	return unitReply(res.OK, res.Err)
}

// CycleRoom sets the room's host rotation flag. Host only.
func (c *Client) CycleRoom(ctx context.Context, cycle bool) error {
	reply, err := c.call(ctx, protocol.ClientCycleRoom{Cycle: cycle}, protocol.ServerCmdCycleRoom)
	if err != nil {
		return err
	}
	res := reply.(protocol.ServerCycleRoom)
	return unitReply(res.OK, res.Err)
}

// SelectChart picks the chart for the next round. Host only.
func (c *Client) SelectChart(ctx context.Context, id int32) error {
	reply, err := c.call(ctx, protocol.ClientSelectChart{ID: id}, protocol.ServerCmdSelectChart)
	if err != nil {
		return err
	}
	res := reply.(protocol.ServerSelectChart)
	return unitReply(res.OK, res.Err)
}

// RequestStart begins the ready phase. Host only; the host counts as
// ready immediately.
func (c *Client) RequestStart(ctx context.Context) error {
	reply, err := c.call(ctx, protocol.ClientRequestStart{}, protocol.ServerCmdRequestStart)
	if err != nil {
		return err
	}
	res := reply.(protocol.ServerRequestStart)
	if err := unitReply(res.OK, res.Err); err != nil {
		return err
	}
	c.setReady(true)
	return nil
}

// Ready marks this user ready for the requested round.
func (c *Client) Ready(ctx context.Context) error {
	reply, err := c.call(ctx, protocol.ClientReady{}, protocol.ServerCmdReady)
	if err != nil {
		return err
	}
	res := reply.(protocol.ServerReady)
	if err := unitReply(res.OK, res.Err); err != nil {
		return err
	}
	c.setReady(true)
	return nil
}

// CancelReady withdraws this user from the ready set.
func (c *Client) CancelReady(ctx context.Context) error {
	reply, err := c.call(ctx, protocol.ClientCancelReady{}, protocol.ServerCmdCancelReady)
	if err != nil {
		return err
	}
	res := reply.(protocol.ServerCancelReady)
	if err := unitReply(res.OK, res.Err); err != nil {
		return err
	}
	c.setReady(false)
	return nil
}

// Played reports the uploaded record that finished this user's round.
func (c *Client) Played(ctx context.Context, recordID int32) error {
	reply, err := c.call(ctx, protocol.ClientPlayed{ID: recordID}, protocol.ServerCmdPlayed)
	if err != nil {
		return err
	}
	res := reply.(protocol.ServerPlayed)
	return unitReply(res.OK, res.Err)
}

// Abort withdraws this user from the round without a record.
func (c *Client) Abort(ctx context.Context) error {
	reply, err := c.call(ctx, protocol.ClientAbort{}, protocol.ServerCmdAbort)
	if err != nil {
		return err
	}
	res := reply.(protocol.ServerAbort)
	return unitReply(res.OK, res.Err)
}
