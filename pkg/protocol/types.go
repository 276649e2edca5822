package protocol

import (
	"errors"
	"fmt"
)

const (
	// MaxRoomIDLen bounds the byte length of a room identifier.
	MaxRoomIDLen = 20
	// MaxTokenLen bounds the byte length of an authentication token.
	MaxTokenLen = 32
	// MaxChatLen bounds the byte length of a chat message.
	MaxChatLen = 200
)

// ErrInvalidRoomID is returned for empty room ids or ids containing
// characters outside [A-Za-z0-9_-].
var ErrInvalidRoomID = errors.New("invalid room id")

// RoomID names a room. It is non-empty, at most MaxRoomIDLen bytes, and
// restricted to ASCII letters, digits, '-' and '_'.
type RoomID string

// ParseRoomID validates s and returns it as a RoomID.
func ParseRoomID(s string) (RoomID, error) {
	if len(s) > MaxRoomIDLen {
		return "", ErrStringTooLong
	}
	if !validRoomID(s) {
		return "", ErrInvalidRoomID
	}
	return RoomID(s), nil
}

func validRoomID(s string) bool {
	if len(s) == 0 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_':
		default:
			return false
		}
	}
	return true
}

func (id RoomID) String() string {
	return string(id)
}

func (id RoomID) encode(w *Writer) {
	w.String(string(id))
}

func decodeRoomID(r *Reader) (RoomID, error) {
	s, err := r.Varchar(MaxRoomIDLen)
	if err != nil {
		return "", err
	}
	return ParseRoomID(s)
}

// UserInfo is the public identity of a connected user.
type UserInfo struct {
	ID      int32
	Name    string
	Monitor bool
}

func (u UserInfo) encode(w *Writer) {
	w.Int32(u.ID)
	w.String(u.Name)
	w.Bool(u.Monitor)
}

func decodeUserInfo(r *Reader) (UserInfo, error) {
	var u UserInfo
	var err error
	if u.ID, err = r.Int32(); err != nil {
		return u, err
	}
	if u.Name, err = r.String(); err != nil {
		return u, err
	}
	if u.Monitor, err = r.Bool(); err != nil {
		return u, err
	}
	return u, nil
}

// TouchPoint pairs a finger identifier with its packed position.
type TouchPoint struct {
	ID  int8
	Pos CompactPos
}

// TouchFrame is one frame of touch telemetry at a playback time.
type TouchFrame struct {
	Time   float32
	Points []TouchPoint
}

func (t TouchFrame) encode(w *Writer) {
	w.Float32(t.Time)
	w.ULEB(uint64(len(t.Points)))
	for _, p := range t.Points {
		w.Int8(p.ID)
		p.Pos.encode(w)
	}
}

func decodeTouchFrame(r *Reader) (TouchFrame, error) {
	var t TouchFrame
	var err error
	if t.Time, err = r.Float32(); err != nil {
		return t, err
	}
	n, err := r.ULEB()
	if err != nil {
		return t, err
	}
	t.Points = make([]TouchPoint, 0, min(int(n), 64))
	for i := uint64(0); i < n; i++ {
		var p TouchPoint
		if p.ID, err = r.Int8(); err != nil {
			return t, err
		}
		if p.Pos, err = decodeCompactPos(r); err != nil {
			return t, err
		}
		t.Points = append(t.Points, p)
	}
	return t, nil
}

// Judgement classifies a single note hit.
type Judgement uint8

const (
	JudgementPerfect Judgement = iota
	JudgementGood
	JudgementBad
	JudgementMiss
	JudgementHoldPerfect
	JudgementHoldGood
)

func decodeJudgement(r *Reader) (Judgement, error) {
	b, err := r.Byte()
	if err != nil {
		return 0, err
	}
	if b > uint8(JudgementHoldGood) {
		return 0, fmt.Errorf("unknown judgement %d", b)
	}
	return Judgement(b), nil
}

// JudgeEvent is one judgement outcome in play telemetry.
type JudgeEvent struct {
	Time      float32
	LineID    uint32
	NoteID    uint32
	Judgement Judgement
}

func (j JudgeEvent) encode(w *Writer) {
	w.Float32(j.Time)
	w.Uint32(j.LineID)
	w.Uint32(j.NoteID)
	w.Byte(uint8(j.Judgement))
}

func decodeJudgeEvent(r *Reader) (JudgeEvent, error) {
	var j JudgeEvent
	var err error
	if j.Time, err = r.Float32(); err != nil {
		return j, err
	}
	if j.LineID, err = r.Uint32(); err != nil {
		return j, err
	}
	if j.NoteID, err = r.Uint32(); err != nil {
		return j, err
	}
	if j.Judgement, err = decodeJudgement(r); err != nil {
		return j, err
	}
	return j, nil
}

// RoomStateType discriminates the public room state.
type RoomStateType uint8

const (
	RoomStateSelectChart RoomStateType = iota
	RoomStateWaitingForReady
	RoomStatePlaying
)

// RoomState is the public, wire-facing room state. ChartID is only
// meaningful while Type is RoomStateSelectChart.
type RoomState struct {
	Type    RoomStateType
	ChartID *int32
}

func (s RoomState) encode(w *Writer) {
	w.Byte(uint8(s.Type))
	if s.Type == RoomStateSelectChart {
		if s.ChartID != nil {
			w.Bool(true)
			w.Int32(*s.ChartID)
		} else {
			w.Bool(false)
		}
	}
}

func decodeRoomState(r *Reader) (RoomState, error) {
	b, err := r.Byte()
	if err != nil {
		return RoomState{}, err
	}
	if b > uint8(RoomStatePlaying) {
		return RoomState{}, fmt.Errorf("unknown room state %d", b)
	}
	s := RoomState{Type: RoomStateType(b)}
	if s.Type == RoomStateSelectChart {
		has, err := r.Bool()
		if err != nil {
			return s, err
		}
		if has {
			id, err := r.Int32()
			if err != nil {
				return s, err
			}
			s.ChartID = &id
		}
	}
	return s, nil
}

// ClientRoomState is the snapshot of a room a client mirrors locally.
type ClientRoomState struct {
	ID      RoomID
	State   RoomState
	Live    bool
	Locked  bool
	Cycle   bool
	IsHost  bool
	IsReady bool
	Users   map[int32]UserInfo
}

func (s ClientRoomState) encode(w *Writer) {
	s.ID.encode(w)
	s.State.encode(w)
	w.Bool(s.Live)
	w.Bool(s.Locked)
	w.Bool(s.Cycle)
	w.Bool(s.IsHost)
	w.Bool(s.IsReady)
	w.ULEB(uint64(len(s.Users)))
	for id, u := range s.Users {
		w.Int32(id)
		u.encode(w)
	}
}

func decodeClientRoomState(r *Reader) (ClientRoomState, error) {
	var s ClientRoomState
	var err error
	if s.ID, err = decodeRoomID(r); err != nil {
		return s, err
	}
	if s.State, err = decodeRoomState(r); err != nil {
		return s, err
	}
	if s.Live, err = r.Bool(); err != nil {
		return s, err
	}
	if s.Locked, err = r.Bool(); err != nil {
		return s, err
	}
	if s.Cycle, err = r.Bool(); err != nil {
		return s, err
	}
	if s.IsHost, err = r.Bool(); err != nil {
		return s, err
	}
	if s.IsReady, err = r.Bool(); err != nil {
		return s, err
	}
	n, err := r.ULEB()
	if err != nil {
		return s, err
	}
	s.Users = make(map[int32]UserInfo, n)
	for i := uint64(0); i < n; i++ {
		id, err := r.Int32()
		if err != nil {
			return s, err
		}
		u, err := decodeUserInfo(r)
		if err != nil {
			return s, err
		}
		s.Users[id] = u
	}
	return s, nil
}

// JoinRoomResponse is the payload of a successful join.
type JoinRoomResponse struct {
	State RoomState
	Users []UserInfo
	Live  bool
}

func (j JoinRoomResponse) encode(w *Writer) {
	j.State.encode(w)
	w.ULEB(uint64(len(j.Users)))
	for _, u := range j.Users {
		u.encode(w)
	}
	w.Bool(j.Live)
}

func decodeJoinRoomResponse(r *Reader) (JoinRoomResponse, error) {
	var j JoinRoomResponse
	var err error
	if j.State, err = decodeRoomState(r); err != nil {
		return j, err
	}
	n, err := r.ULEB()
	if err != nil {
		return j, err
	}
	j.Users = make([]UserInfo, 0, min(int(n), 64))
	for i := uint64(0); i < n; i++ {
		u, err := decodeUserInfo(r)
		if err != nil {
			return j, err
		}
		j.Users = append(j.Users, u)
	}
	j.Live, err = r.Bool()
	return j, err
}
