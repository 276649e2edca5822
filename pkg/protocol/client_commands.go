package protocol

import "fmt"

// ClientCommandType discriminates client-to-server commands. The
// numeric values are the wire discriminants.
type ClientCommandType uint8

const (
	ClientCmdPing ClientCommandType = iota
	ClientCmdAuthenticate
	ClientCmdChat
	ClientCmdTouches
	ClientCmdJudges
	ClientCmdCreateRoom
	ClientCmdJoinRoom
	ClientCmdLeaveRoom
	ClientCmdLockRoom
	ClientCmdCycleRoom
	ClientCmdSelectChart
	ClientCmdRequestStart
	ClientCmdReady
	ClientCmdCancelReady
	ClientCmdPlayed
	ClientCmdAbort
)

// ClientCommand is a command sent from a client to the server.
type ClientCommand interface {
	Type() ClientCommandType
}

type ClientPing struct{}

type ClientAuthenticate struct {
	Token string
}

type ClientChat struct {
	Message string
}

type ClientTouches struct {
	Frames []TouchFrame
}

type ClientJudges struct {
	Judges []JudgeEvent
}

type ClientCreateRoom struct {
	ID RoomID
}

type ClientJoinRoom struct {
	ID      RoomID
	Monitor bool
}

type ClientLeaveRoom struct{}

type ClientLockRoom struct {
	Lock bool
}

type ClientCycleRoom struct {
	Cycle bool
}

type ClientSelectChart struct {
	ID int32
}

type ClientRequestStart struct{}

type ClientReady struct{}

type ClientCancelReady struct{}

type ClientPlayed struct {
	ID int32
}

type ClientAbort struct{}

func (ClientPing) Type() ClientCommandType         { return ClientCmdPing }
func (ClientAuthenticate) Type() ClientCommandType { return ClientCmdAuthenticate }
func (ClientChat) Type() ClientCommandType         { return ClientCmdChat }
func (ClientTouches) Type() ClientCommandType      { return ClientCmdTouches }
func (ClientJudges) Type() ClientCommandType       { return ClientCmdJudges }
func (ClientCreateRoom) Type() ClientCommandType   { return ClientCmdCreateRoom }
func (ClientJoinRoom) Type() ClientCommandType     { return ClientCmdJoinRoom }
func (ClientLeaveRoom) Type() ClientCommandType    { return ClientCmdLeaveRoom }
func (ClientLockRoom) Type() ClientCommandType     { return ClientCmdLockRoom }
func (ClientCycleRoom) Type() ClientCommandType    { return ClientCmdCycleRoom }
func (ClientSelectChart) Type() ClientCommandType  { return ClientCmdSelectChart }
func (ClientRequestStart) Type() ClientCommandType { return ClientCmdRequestStart }
func (ClientReady) Type() ClientCommandType        { return ClientCmdReady }
func (ClientCancelReady) Type() ClientCommandType  { return ClientCmdCancelReady }
func (ClientPlayed) Type() ClientCommandType       { return ClientCmdPlayed }
func (ClientAbort) Type() ClientCommandType        { return ClientCmdAbort }

// EncodeClientCommand serializes cmd into its wire form. It fails when
// a string field exceeds its wire bound or a room id is malformed.
func EncodeClientCommand(cmd ClientCommand) ([]byte, error) {
	w := NewWriter()
	w.Byte(uint8(cmd.Type()))
	switch c := cmd.(type) {
	case ClientPing:
	case ClientAuthenticate:
		if len(c.Token) > MaxTokenLen {
			return nil, ErrStringTooLong
		}
		w.String(c.Token)
	case ClientChat:
		if len(c.Message) > MaxChatLen {
			return nil, ErrStringTooLong
		}
		w.String(c.Message)
	case ClientTouches:
		w.ULEB(uint64(len(c.Frames)))
		for _, f := range c.Frames {
			f.encode(w)
		}
	case ClientJudges:
		w.ULEB(uint64(len(c.Judges)))
		for _, j := range c.Judges {
			j.encode(w)
		}
	case ClientCreateRoom:
		if _, err := ParseRoomID(string(c.ID)); err != nil {
			return nil, err
		}
		c.ID.encode(w)
	case ClientJoinRoom:
		if _, err := ParseRoomID(string(c.ID)); err != nil {
			return nil, err
		}
		c.ID.encode(w)
		w.Bool(c.Monitor)
	case ClientLeaveRoom:
	case ClientLockRoom:
		w.Bool(c.Lock)
	case ClientCycleRoom:
		w.Bool(c.Cycle)
	case ClientSelectChart:
		w.Int32(c.ID)
	case ClientRequestStart:
	case ClientReady:
	case ClientCancelReady:
	case ClientPlayed:
		w.Int32(c.ID)
	case ClientAbort:
	default:
		return nil, fmt.Errorf("unknown client command %T", cmd)
	}
	return w.Bytes(), nil
}

// DecodeClientCommand parses a client command from its wire form.
func DecodeClientCommand(data []byte) (ClientCommand, error) {
	r := NewReader(data)
	tag, err := r.Byte()
	if err != nil {
		return nil, err
	}
	switch ClientCommandType(tag) {
	case ClientCmdPing:
		return ClientPing{}, nil
	case ClientCmdAuthenticate:
		token, err := r.Varchar(MaxTokenLen)
		if err != nil {
			return nil, err
		}
		return ClientAuthenticate{Token: token}, nil
	case ClientCmdChat:
		msg, err := r.Varchar(MaxChatLen)
		if err != nil {
			return nil, err
		}
		return ClientChat{Message: msg}, nil
	case ClientCmdTouches:
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
		return ClientTouches{Frames: frames}, nil
	case ClientCmdJudges:
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
		return ClientJudges{Judges: judges}, nil
	case ClientCmdCreateRoom:
		id, err := decodeRoomID(r)
		if err != nil {
			return nil, err
		}
		return ClientCreateRoom{ID: id}, nil
	case ClientCmdJoinRoom:
		id, err := decodeRoomID(r)
		if err != nil {
			return nil, err
		}
		monitor, err := r.Bool()
		if err != nil {
			return nil, err
		}
		return ClientJoinRoom{ID: id, Monitor: monitor}, nil
	case ClientCmdLeaveRoom:
		return ClientLeaveRoom{}, nil
	case ClientCmdLockRoom:
		lock, err := r.Bool()
		if err != nil {
			return nil, err
		}
		return ClientLockRoom{Lock: lock}, nil
	case ClientCmdCycleRoom:
		cycle, err := r.Bool()
		if err != nil {
			return nil, err
		}
		return ClientCycleRoom{Cycle: cycle}, nil
	case ClientCmdSelectChart:
		id, err := r.Int32()
		if err != nil {
			return nil, err
		}
		return ClientSelectChart{ID: id}, nil
	case ClientCmdRequestStart:
		return ClientRequestStart{}, nil
	case ClientCmdReady:
		return ClientReady{}, nil
	case ClientCmdCancelReady:
		return ClientCancelReady{}, nil
	case ClientCmdPlayed:
		id, err := r.Int32()
		if err != nil {
			return nil, err
		}
		return ClientPlayed{ID: id}, nil
	case ClientCmdAbort:
		return ClientAbort{}, nil
	default:
		return nil, fmt.Errorf("unknown client command %d", tag)
	}
}
