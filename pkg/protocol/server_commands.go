package protocol

import "fmt"

// ServerCommandType discriminates server-to-client commands. The
// numeric values are the wire discriminants.
type ServerCommandType uint8

const (
	ServerCmdPong ServerCommandType = iota
	ServerCmdAuthenticate
	ServerCmdChat
	ServerCmdTouches
	ServerCmdJudges
	ServerCmdMessage
	ServerCmdChangeState
	ServerCmdChangeHost
	ServerCmdCreateRoom
	ServerCmdJoinRoom
	ServerCmdOnJoinRoom
	ServerCmdLeaveRoom
	ServerCmdLockRoom
	ServerCmdCycleRoom
	ServerCmdSelectChart
	ServerCmdRequestStart
	ServerCmdReady
	ServerCmdCancelReady
	ServerCmdPlayed
	ServerCmdAbort
)

// ServerCommand is a command sent from the server to a client.
// Variants carrying OK and Err fields are replies to the client command
// of the same name: OK true means success, otherwise Err holds the
// failure message.
type ServerCommand interface {
	Type() ServerCommandType
}

type ServerPong struct{}

type ServerAuthenticate struct {
	OK   bool
	Me   UserInfo
	Room *ClientRoomState
	Err  string
}

type ServerChat struct {
	OK  bool
	Err string
}

type ServerTouches struct {
	Player int32
	Frames []TouchFrame
}

type ServerJudges struct {
	Player int32
	Judges []JudgeEvent
}

type ServerMessage struct {
	Message Message
}

type ServerChangeState struct {
	State RoomState
}

type ServerChangeHost struct {
	IsHost bool
}

type ServerCreateRoom struct {
	OK  bool
	Err string
}

type ServerJoinRoom struct {
	OK       bool
	Response JoinRoomResponse
	Err      string
}

type ServerOnJoinRoom struct {
	User UserInfo
}

type ServerLeaveRoom struct {
	OK  bool
	Err string
}

type ServerLockRoom struct {
	OK  bool
	Err string
}

type ServerCycleRoom struct {
	OK  bool
	Err string
}

type ServerSelectChart struct {
	OK  bool
	Err string
}

type ServerRequestStart struct {
	OK  bool
	Err string
}

type ServerReady struct {
	OK  bool
	Err string
}

type ServerCancelReady struct {
	OK  bool
	Err string
}

type ServerPlayed struct {
	OK  bool
	Err string
}

type ServerAbort struct {
	OK  bool
	Err string
}

func (ServerPong) Type() ServerCommandType         { return ServerCmdPong }
func (ServerAuthenticate) Type() ServerCommandType { return ServerCmdAuthenticate }
func (ServerChat) Type() ServerCommandType         { return ServerCmdChat }
func (ServerTouches) Type() ServerCommandType      { return ServerCmdTouches }
func (ServerJudges) Type() ServerCommandType       { return ServerCmdJudges }
func (ServerMessage) Type() ServerCommandType      { return ServerCmdMessage }
func (ServerChangeState) Type() ServerCommandType  { return ServerCmdChangeState }
func (ServerChangeHost) Type() ServerCommandType   { return ServerCmdChangeHost }
func (ServerCreateRoom) Type() ServerCommandType   { return ServerCmdCreateRoom }
func (ServerJoinRoom) Type() ServerCommandType     { return ServerCmdJoinRoom }
func (ServerOnJoinRoom) Type() ServerCommandType   { return ServerCmdOnJoinRoom }
func (ServerLeaveRoom) Type() ServerCommandType    { return ServerCmdLeaveRoom }
func (ServerLockRoom) Type() ServerCommandType     { return ServerCmdLockRoom }
func (ServerCycleRoom) Type() ServerCommandType    { return ServerCmdCycleRoom }
func (ServerSelectChart) Type() ServerCommandType  { return ServerCmdSelectChart }
func (ServerRequestStart) Type() ServerCommandType { return ServerCmdRequestStart }
func (ServerReady) Type() ServerCommandType        { return ServerCmdReady }
func (ServerCancelReady) Type() ServerCommandType  { return ServerCmdCancelReady }
func (ServerPlayed) Type() ServerCommandType       { return ServerCmdPlayed }
func (ServerAbort) Type() ServerCommandType        { return ServerCmdAbort }

func writeUnitResult(w *Writer, ok bool, errMsg string) {
	w.Bool(ok)
	if !ok {
		w.String(errMsg)
	}
}

func readUnitResult(r *Reader) (bool, string, error) {
	ok, err := r.Bool()
	if err != nil {
		return false, "", err
	}
	if ok {
		return true, "", nil
	}
	msg, err := r.String()
	if err != nil {
		return false, "", err
	}
	return false, msg, nil
}

// EncodeServerCommand serializes cmd into its wire form.
func EncodeServerCommand(cmd ServerCommand) ([]byte, error) {
	w := NewWriter()
	w.Byte(uint8(cmd.Type()))
	switch c := cmd.(type) {
	case ServerPong:
	case ServerAuthenticate:
		w.Bool(c.OK)
		if c.OK {
			c.Me.encode(w)
			if c.Room != nil {
				w.Bool(true)
				c.Room.encode(w)
			} else {
				w.Bool(false)
			}
		} else {
			w.String(c.Err)
		}
	case ServerChat:
		writeUnitResult(w, c.OK, c.Err)
	case ServerTouches:
		w.Int32(c.Player)
		w.ULEB(uint64(len(c.Frames)))
		for _, f := range c.Frames {
			f.encode(w)
		}
	case ServerJudges:
		w.Int32(c.Player)
		w.ULEB(uint64(len(c.Judges)))
		for _, j := range c.Judges {
			j.encode(w)
		}
	case ServerMessage:
		if err := encodeMessage(w, c.Message); err != nil {
			return nil, err
		}
	case ServerChangeState:
		c.State.encode(w)
	case ServerChangeHost:
		w.Bool(c.IsHost)
	case ServerCreateRoom:
		writeUnitResult(w, c.OK, c.Err)
	case ServerJoinRoom:
		w.Bool(c.OK)
		if c.OK {
			c.Response.encode(w)
		} else {
			w.String(c.Err)
		}
	case ServerOnJoinRoom:
		c.User.encode(w)
	case ServerLeaveRoom:
		writeUnitResult(w, c.OK, c.Err)
	case ServerLockRoom:
		writeUnitResult(w, c.OK, c.Err)
	case ServerCycleRoom:
		writeUnitResult(w, c.OK, c.Err)
	case ServerSelectChart:
		writeUnitResult(w, c.OK, c.Err)
	case ServerRequestStart:
		writeUnitResult(w, c.OK, c.Err)
	case ServerReady:
		writeUnitResult(w, c.OK, c.Err)
	case ServerCancelReady:
		writeUnitResult(w, c.OK, c.Err)
	case ServerPlayed:
		writeUnitResult(w, c.OK, c.Err)
	case ServerAbort:
		writeUnitResult(w, c.OK, c.Err)
	default:
		return nil, fmt.Errorf("unknown server command %T", cmd)
	}
	return w.Bytes(), nil
}

// DecodeServerCommand parses a server command from its wire form.
func DecodeServerCommand(data []byte) (ServerCommand, error) {
	r := NewReader(data)
	tag, err := r.Byte()
	if err != nil {
		return nil, err
	}
	switch ServerCommandType(tag) {
	case ServerCmdPong:
		return ServerPong{}, nil
	case ServerCmdAuthenticate:
		ok, err := r.Bool()
		if err != nil {
			return nil, err
		}
		if !ok {
			msg, err := r.String()
			if err != nil {
				return nil, err
			}
			return ServerAuthenticate{Err: msg}, nil
		}
		me, err := decodeUserInfo(r)
		if err != nil {
			return nil, err
		}
		cmd := ServerAuthenticate{OK: true, Me: me}
		has, err := r.Bool()
		if err != nil {
			return nil, err
		}
		if has {
			room, err := decodeClientRoomState(r)
			if err != nil {
				return nil, err
			}
			cmd.Room = &room
		}
		return cmd, nil
	case ServerCmdChat:
		ok, msg, err := readUnitResult(r)
		if err != nil {
			return nil, err
		}
		return ServerChat{OK: ok, Err: msg}, nil
	case ServerCmdTouches:
		player, err := r.Int32()
		if err != nil {
			return nil, err
		}
		n, err := r.ULEB()
		if err != nil {
			return nil, err
		}
		frames := make([]TouchFrame, 0, min(int(n), 64))
		for i := uint64(0); i < n; i++ {
			f, err := decodeTouchFrame(r)
			if err != nil {
				return nil, err
			}
			frames = append(frames, f)
		}
		return ServerTouches{Player: player, Frames: frames}, nil
	case ServerCmdJudges:
		player, err := r.Int32()
		if err != nil {
			return nil, err
		}
		n, err := r.ULEB()
		if err != nil {
			return nil, err
		}
		judges := make([]JudgeEvent, 0, min(int(n), 64))
		for i := uint64(0); i < n; i++ {
			j, err := decodeJudgeEvent(r)
			if err != nil {
				return nil, err
			}
			judges = append(judges, j)
		}
		return ServerJudges{Player: player, Judges: judges}, nil
	case ServerCmdMessage:
		msg, err := decodeMessage(r)
		if err != nil {
			return nil, err
		}
		return ServerMessage{Message: msg}, nil
	case ServerCmdChangeState:
		state, err := decodeRoomState(r)
		if err != nil {
			return nil, err
		}
		return ServerChangeState{State: state}, nil
	case ServerCmdChangeHost:
		isHost, err := r.Bool()
		if err != nil {
			return nil, err
		}
		return ServerChangeHost{IsHost: isHost}, nil
	case ServerCmdCreateRoom:
		ok, msg, err := readUnitResult(r)
		if err != nil {
			return nil, err
		}
		return ServerCreateRoom{OK: ok, Err: msg}, nil
	case ServerCmdJoinRoom:
		ok, err := r.Bool()
		if err != nil {
			return nil, err
		}
		if !ok {
			msg, err := r.String()
			if err != nil {
				return nil, err
			}
			return ServerJoinRoom{Err: msg}, nil
		}
		resp, err := decodeJoinRoomResponse(r)
		if err != nil {
			return nil, err
		}
		return ServerJoinRoom{OK: true, Response: resp}, nil
	case ServerCmdOnJoinRoom:
		user, err := decodeUserInfo(r)
		if err != nil {
			return nil, err
		}
		return ServerOnJoinRoom{User: user}, nil
	case ServerCmdLeaveRoom:
		ok, msg, err := readUnitResult(r)
		if err != nil {
			return nil, err
		}
		return ServerLeaveRoom{OK: ok, Err: msg}, nil
	case ServerCmdLockRoom:
		ok, msg, err := readUnitResult(r)
		if err != nil {
			return nil, err
		}
		return ServerLockRoom{OK: ok, Err: msg}, nil
	case ServerCmdCycleRoom:
		ok, msg, err := readUnitResult(r)
		if err != nil {
			return nil, err
		}
		return ServerCycleRoom{OK: ok, Err: msg}, nil
	case ServerCmdSelectChart:
		ok, msg, err := readUnitResult(r)
		if err != nil {
			return nil, err
		}
		return ServerSelectChart{OK: ok, Err: msg}, nil
	case ServerCmdRequestStart:
		ok, msg, err := readUnitResult(r)
		if err != nil {
			return nil, err
		}
		return ServerRequestStart{OK: ok, Err: msg}, nil
	case ServerCmdReady:
		ok, msg, err := readUnitResult(r)
		if err != nil {
			return nil, err
		}
		return ServerReady{OK: ok, Err: msg}, nil
	case ServerCmdCancelReady:
		ok, msg, err := readUnitResult(r)
		if err != nil {
			return nil, err
		}
		return ServerCancelReady{OK: ok, Err: msg}, nil
	case ServerCmdPlayed:
		ok, msg, err := readUnitResult(r)
		if err != nil {
			return nil, err
		}
		return ServerPlayed{OK: ok, Err: msg}, nil
	case ServerCmdAbort:
		ok, msg, err := readUnitResult(r)
		if err != nil {
			return nil, err
		}
		return ServerAbort{OK: ok, Err: msg}, nil
	default:
		return nil, fmt.Errorf("unknown server command %d", tag)
	}
}
