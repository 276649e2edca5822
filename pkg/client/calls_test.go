package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/pkg/protocol"
)

func TestAuthenticate_SetsMirror(t *testing.T) {
	c, srv := newPair(t)
	ctx := context.Background()

	errCh := asyncErr(func() error { return c.Authenticate(ctx, testToken()) })
	auth := expect[protocol.ClientAuthenticate](srv)
	assert.Equal(t, testToken(), auth.Token)

	srv.send(protocol.ServerAuthenticate{OK: true, Me: alice, Room: hostRoom()})
	require.NoError(t, await(t, errCh))

	me, ok := c.Me()
	require.True(t, ok)
	assert.Equal(t, alice, me)

	id, ok := c.RoomID()
	require.True(t, ok)
	assert.Equal(t, protocol.RoomID("garden"), id)
	assert.True(t, c.IsHost())
}

func TestAuthenticate_RemoteRefusal(t *testing.T) {
	c, srv := newPair(t)

	errCh := asyncErr(func() error { return c.Authenticate(context.Background(), testToken()) })
	expect[protocol.ClientAuthenticate](srv)
	srv.send(protocol.ServerAuthenticate{Err: "invalid token"})

	err := await(t, errCh)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "invalid token", remote.Reason)

	_, ok := c.Me()
	assert.False(t, ok)
}

func TestAuthenticate_RejectsOverlongToken(t *testing.T) {
	c, _ := newPair(t)

	err := c.Authenticate(context.Background(), testToken()+"x")
	assert.ErrorIs(t, err, protocol.ErrStringTooLong)
}

func TestCreateRoom_SeedsMirror(t *testing.T) {
	c, srv := authedClient(t, nil)
	ctx := context.Background()

	errCh := asyncErr(func() error { return c.CreateRoom(ctx, "garden") })
	create := expect[protocol.ClientCreateRoom](srv)
	assert.Equal(t, protocol.RoomID("garden"), create.ID)

	srv.send(protocol.ServerCreateRoom{OK: true})
	require.NoError(t, await(t, errCh))

	mirror := c.RoomMirror()
	require.NotNil(t, mirror)
	assert.Equal(t, protocol.RoomID("garden"), mirror.ID)
	assert.Equal(t, protocol.RoomStateSelectChart, mirror.State.Type)
	assert.True(t, mirror.IsHost)
	assert.False(t, mirror.IsReady)
	assert.Equal(t, map[int32]protocol.UserInfo{alice.ID: alice}, mirror.Users)
}

func TestCreateRoom_RejectsBadID(t *testing.T) {
	c, _ := authedClient(t, nil)

	err := c.CreateRoom(context.Background(), "no spaces!")
	assert.ErrorIs(t, err, protocol.ErrInvalidRoomID)
}

func TestJoinRoom_SeedsMirror(t *testing.T) {
	c, srv := authedClient(t, nil)
	ctx := context.Background()

	errCh := asyncErr(func() error { return c.JoinRoom(ctx, "garden", false) })
	join := expect[protocol.ClientJoinRoom](srv)
	assert.Equal(t, protocol.RoomID("garden"), join.ID)
	assert.False(t, join.Monitor)

	srv.send(protocol.ServerJoinRoom{OK: true, Response: protocol.JoinRoomResponse{
		State: protocol.RoomState{Type: protocol.RoomStateSelectChart},
		Users: []protocol.UserInfo{alice, bob},
	}})
	require.NoError(t, await(t, errCh))

	mirror := c.RoomMirror()
	require.NotNil(t, mirror)
	assert.False(t, mirror.IsHost)
	assert.False(t, mirror.Live)
	assert.Equal(t, map[int32]protocol.UserInfo{alice.ID: alice, bob.ID: bob}, mirror.Users)
}

func TestJoinRoom_AsMonitorGoesLive(t *testing.T) {
	c, srv := authedClient(t, nil)

	errCh := asyncErr(func() error { return c.JoinRoom(context.Background(), "garden", true) })
	join := expect[protocol.ClientJoinRoom](srv)
	assert.True(t, join.Monitor)

	srv.send(protocol.ServerJoinRoom{OK: true, Response: protocol.JoinRoomResponse{
		State: protocol.RoomState{Type: protocol.RoomStatePlaying},
		Users: []protocol.UserInfo{alice},
		Live:  true,
	}})
	require.NoError(t, await(t, errCh))

	mirror := c.RoomMirror()
	require.NotNil(t, mirror)
	assert.True(t, mirror.Live)
	assert.Equal(t, protocol.RoomStatePlaying, mirror.State.Type)
}

func TestLeaveRoom_DropsMirror(t *testing.T) {
	c, srv := authedClient(t, hostRoom())

	errCh := asyncErr(func() error { return c.LeaveRoom(context.Background()) })
	expect[protocol.ClientLeaveRoom](srv)
	srv.send(protocol.ServerLeaveRoom{OK: true})
	require.NoError(t, await(t, errCh))

	_, ok := c.RoomID()
	assert.False(t, ok)
	assert.Nil(t, c.RoomMirror())
}

func TestReadyCalls_TrackReadiness(t *testing.T) {
	c, srv := authedClient(t, guestRoom())
	ctx := context.Background()

	errCh := asyncErr(func() error { return c.Ready(ctx) })
	expect[protocol.ClientReady](srv)
	srv.send(protocol.ServerReady{OK: true})
	require.NoError(t, await(t, errCh))
	assert.True(t, c.IsReady())

	errCh = asyncErr(func() error { return c.CancelReady(ctx) })
	expect[protocol.ClientCancelReady](srv)
	srv.send(protocol.ServerCancelReady{OK: true})
	require.NoError(t, await(t, errCh))
	assert.False(t, c.IsReady())
}

func TestRequestStart_MarksHostReady(t *testing.T) {
	c, srv := authedClient(t, hostRoom())

	errCh := asyncErr(func() error { return c.RequestStart(context.Background()) })
	expect[protocol.ClientRequestStart](srv)
	srv.send(protocol.ServerRequestStart{OK: true})
	require.NoError(t, await(t, errCh))

	assert.True(t, c.IsReady())
}

func TestHostToggles_RoundTrip(t *testing.T) {
	c, srv := authedClient(t, hostRoom())
	ctx := context.Background()

	errCh := asyncErr(func() error { return c.LockRoom(ctx, true) })
	lock := expect[protocol.ClientLockRoom](srv)
	assert.True(t, lock.Lock)
	srv.send(protocol.ServerLockRoom{OK: true})
	require.NoError(t, await(t, errCh))

	errCh = asyncErr(func() error { return c.CycleRoom(ctx, true) })
	cycle := expect[protocol.ClientCycleRoom](srv)
	assert.True(t, cycle.Cycle)
	srv.send(protocol.ServerCycleRoom{OK: true})
	require.NoError(t, await(t, errCh))

	errCh = asyncErr(func() error { return c.SelectChart(ctx, 42) })
	sel := expect[protocol.ClientSelectChart](srv)
	assert.Equal(t, int32(42), sel.ID)
	srv.send(protocol.ServerSelectChart{OK: true})
	require.NoError(t, await(t, errCh))

	errCh = asyncErr(func() error { return c.Abort(ctx) })
	expect[protocol.ClientAbort](srv)
	srv.send(protocol.ServerAbort{OK: true})
	require.NoError(t, await(t, errCh))
}

func TestPlayed_RemoteRefusal(t *testing.T) {
	c, srv := authedClient(t, guestRoom())

	errCh := asyncErr(func() error { return c.Played(context.Background(), 900) })
	played := expect[protocol.ClientPlayed](srv)
	assert.Equal(t, int32(900), played.ID)

	srv.send(protocol.ServerPlayed{Err: "invalid state"})
	err := await(t, errCh)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "invalid state", remote.Reason)
}

func TestCall_Timeout(t *testing.T) {
	setCallTimeout(t, 100*time.Millisecond)
	c, srv := authedClient(t, guestRoom())

	errCh := asyncErr(func() error { return c.Chat(context.Background(), "hello") })
	expect[protocol.ClientChat](srv)
	// No reply.
	assert.ErrorIs(t, await(t, errCh), ErrCallTimeout)
}

func TestCall_SecondOfKindRejected(t *testing.T) {
	c, srv := authedClient(t, guestRoom())
	ctx := context.Background()

	errCh := asyncErr(func() error { return c.Chat(ctx, "first") })
	expect[protocol.ClientChat](srv)

	assert.ErrorIs(t, c.Chat(ctx, "second"), ErrCallPending)

	srv.send(protocol.ServerChat{OK: true})
	require.NoError(t, await(t, errCh))
}

func TestCall_StreamFailureSurfaces(t *testing.T) {
	c, srv := authedClient(t, guestRoom())

	errCh := asyncErr(func() error { return c.Chat(context.Background(), "hello") })
	expect[protocol.ClientChat](srv)

	require.NoError(t, srv.stream.Close())
	assert.Error(t, await(t, errCh))
}

func TestChat_RejectsOverlongMessage(t *testing.T) {
	c, _ := authedClient(t, guestRoom())

	long := make([]byte, protocol.MaxChatLen+1)
	for i := range long {
		long[i] = 'a'
	}
	err := c.Chat(context.Background(), string(long))
	assert.ErrorIs(t, err, protocol.ErrStringTooLong)
}
