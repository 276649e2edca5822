package protocol

import "fmt"

// MessageType discriminates room event messages. The numeric values
// are the wire discriminants.
type MessageType uint8

const (
	MsgTypeChat MessageType = iota
	MsgTypeCreateRoom
	MsgTypeJoinRoom
	MsgTypeLeaveRoom
	MsgTypeNewHost
	MsgTypeSelectChart
	MsgTypeGameStart
	MsgTypeReady
	MsgTypeCancelReady
	MsgTypeCancelGame
	MsgTypeStartPlaying
	MsgTypePlayed
	MsgTypeGameEnd
	MsgTypeAbort
	MsgTypeLockRoom
	MsgTypeCycleRoom
)

// Message is a room event broadcast to every member, meant to be
// rendered in the room's event feed.
type Message interface {
	Type() MessageType
}

type MsgChat struct {
	User    int32
	Content string
}

type MsgCreateRoom struct {
	User int32
}

type MsgJoinRoom struct {
	User int32
	Name string
}

type MsgLeaveRoom struct {
	User int32
	Name string
}

type MsgNewHost struct {
	User int32
}

type MsgSelectChart struct {
	User int32
	Name string
	ID   int32
}

type MsgGameStart struct {
	User int32
}

type MsgReady struct {
	User int32
}

type MsgCancelReady struct {
	User int32
}

type MsgCancelGame struct {
	User int32
}

type MsgStartPlaying struct{}

type MsgPlayed struct {
	User      int32
	Score     int32
	Accuracy  float32
	FullCombo bool
}

type MsgGameEnd struct{}

type MsgAbort struct {
	User int32
}

type MsgLockRoom struct {
	Lock bool
}

type MsgCycleRoom struct {
	Cycle bool
}

func (MsgChat) Type() MessageType         { return MsgTypeChat }
func (MsgCreateRoom) Type() MessageType   { return MsgTypeCreateRoom }
func (MsgJoinRoom) Type() MessageType     { return MsgTypeJoinRoom }
func (MsgLeaveRoom) Type() MessageType    { return MsgTypeLeaveRoom }
func (MsgNewHost) Type() MessageType      { return MsgTypeNewHost }
func (MsgSelectChart) Type() MessageType  { return MsgTypeSelectChart }
func (MsgGameStart) Type() MessageType    { return MsgTypeGameStart }
func (MsgReady) Type() MessageType        { return MsgTypeReady }
func (MsgCancelReady) Type() MessageType  { return MsgTypeCancelReady }
func (MsgCancelGame) Type() MessageType   { return MsgTypeCancelGame }
func (MsgStartPlaying) Type() MessageType { return MsgTypeStartPlaying }
func (MsgPlayed) Type() MessageType       { return MsgTypePlayed }
func (MsgGameEnd) Type() MessageType      { return MsgTypeGameEnd }
func (MsgAbort) Type() MessageType        { return MsgTypeAbort }
func (MsgLockRoom) Type() MessageType     { return MsgTypeLockRoom }
func (MsgCycleRoom) Type() MessageType    { return MsgTypeCycleRoom }

func encodeMessage(w *Writer, msg Message) error {
	w.Byte(uint8(msg.Type()))
	switch m := msg.(type) {
	case MsgChat:
		w.Int32(m.User)
		w.String(m.Content)
	case MsgCreateRoom:
		w.Int32(m.User)
	case MsgJoinRoom:
		w.Int32(m.User)
		w.String(m.Name)
	case MsgLeaveRoom:
		w.Int32(m.User)
		w.String(m.Name)
	case MsgNewHost:
		w.Int32(m.User)
	case MsgSelectChart:
		w.Int32(m.User)
		w.String(m.Name)
		w.Int32(m.ID)
	case MsgGameStart:
		w.Int32(m.User)
	case MsgReady:
		w.Int32(m.User)
	case MsgCancelReady:
		w.Int32(m.User)
	case MsgCancelGame:
		w.Int32(m.User)
	case MsgStartPlaying:
	case MsgPlayed:
		w.Int32(m.User)
		w.Int32(m.Score)
		w.Float32(m.Accuracy)
		w.Bool(m.FullCombo)
	case MsgGameEnd:
	case MsgAbort:
		w.Int32(m.User)
	case MsgLockRoom:
		w.Bool(m.Lock)
	case MsgCycleRoom:
		w.Bool(m.Cycle)
	default:
		return fmt.Errorf("unknown message %T", msg)
	}
	return nil
}

func decodeMessage(r *Reader) (Message, error) {
	tag, err := r.Byte()
	if err != nil {
		return nil, err
	}
	switch MessageType(tag) {
	case MsgTypeChat:
		var m MsgChat
		if m.User, err = r.Int32(); err != nil {
			return nil, err
		}
		if m.Content, err = r.String(); err != nil {
			return nil, err
		}
		return m, nil
	case MsgTypeCreateRoom:
		var m MsgCreateRoom
		if m.User, err = r.Int32(); err != nil {
			return nil, err
		}
		return m, nil
	case MsgTypeJoinRoom:
		var m MsgJoinRoom
		if m.User, err = r.Int32(); err != nil {
			return nil, err
		}
		if m.Name, err = r.String(); err != nil {
			return nil, err
		}
		return m, nil
	case MsgTypeLeaveRoom:
		var m MsgLeaveRoom
		if m.User, err = r.Int32(); err != nil {
			return nil, err
		}
		if m.Name, err = r.String(); err != nil {
			return nil, err
		}
		return m, nil
	case MsgTypeNewHost:
		var m MsgNewHost
		if m.User, err = r.Int32(); err != nil {
			return nil, err
		}
		return m, nil
	case MsgTypeSelectChart:
		var m MsgSelectChart
		if m.User, err = r.Int32(); err != nil {
			return nil, err
		}
		if m.Name, err = r.String(); err != nil {
			return nil, err
		}
		if m.ID, err = r.Int32(); err != nil {
			return nil, err
		}
		return m, nil
	case MsgTypeGameStart:
		var m MsgGameStart
		if m.User, err = r.Int32(); err != nil {
			return nil, err
		}
		return m, nil
	case MsgTypeReady:
		var m MsgReady
		if m.User, err = r.Int32(); err != nil {
			return nil, err
		}
		return m, nil
	case MsgTypeCancelReady:
		var m MsgCancelReady
		if m.User, err = r.Int32(); err != nil {
			return nil, err
		}
		return m, nil
	case MsgTypeCancelGame:
		var m MsgCancelGame
		if m.User, err = r.Int32(); err != nil {
			return nil, err
		}
		return m, nil
	case MsgTypeStartPlaying:
		return MsgStartPlaying{}, nil
	case MsgTypePlayed:
		var m MsgPlayed
		if m.User, err = r.Int32(); err != nil {
			return nil, err
		}
		if m.Score, err = r.Int32(); err != nil {
			return nil, err
		}
		if m.Accuracy, err = r.Float32(); err != nil {
			return nil, err
		}
		if m.FullCombo, err = r.Bool(); err != nil {
			return nil, err
		}
		return m, nil
	case MsgTypeGameEnd:
		return MsgGameEnd{}, nil
	case MsgTypeAbort:
		var m MsgAbort
		if m.User, err = r.Int32(); err != nil {
			return nil, err
		}
		return m, nil
	case MsgTypeLockRoom:
		var m MsgLockRoom
		if m.Lock, err = r.Bool(); err != nil {
			return nil, err
		}
		return m, nil
	case MsgTypeCycleRoom:
		var m MsgCycleRoom
		if m.Cycle, err = r.Bool(); err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown message %d", tag)
	}
}
