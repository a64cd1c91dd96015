package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cwrk-planet/room-sync/internal/domain"
	"github.com/cwrk-planet/room-sync/internal/protocol"
)

type EventType string

const (
	EventPlayerJoined     EventType = protocol.TypePlayerJoined
	EventPlayerLeft       EventType = protocol.TypePlayerLeft
	EventScoreTransferred EventType = protocol.TypeScoreTransferred
	EventRoomSettled      EventType = protocol.TypeRoomSettled
	EventPlayerUpdated    EventType = protocol.TypePlayerUpdated
	EventRoomUpdated      EventType = protocol.TypeRoomUpdated
	EventPong             EventType = protocol.TypePong
)

var ErrMalformedMessage = errors.New("malformed push message")

// Event is one decoded push message. The concrete type is chosen by the
// envelope's type field; unknown types decode to Unknown.
type Event interface {
	Type() EventType
	Info() Meta
}

// Meta is the envelope part shared by every event. Raw keeps the undecoded
// data field; PayloadErr is set when Raw did not fit the event's payload.
type Meta struct {
	RoomID     int64
	Timestamp  time.Time
	Raw        json.RawMessage
	PayloadErr error
}

func (m Meta) Info() Meta { return m }

type PlayerJoined struct {
	Meta
	UserID   int64
	Nickname string
}

type PlayerLeft struct {
	Meta
	UserID int64
}

type PlayerUpdated struct {
	Meta
	UserID   int64
	Nickname string
}

type ScoreTransferred struct {
	Meta
	Transfer domain.TransferRecord
}

type RoomSettled struct {
	Meta
	Settlements []domain.Settlement
}

type RoomUpdated struct {
	Meta
	Status domain.RoomStatus
}

type Pong struct {
	Meta
}

type Unknown struct {
	Meta
	Name string
}

func (PlayerJoined) Type() EventType     { return EventPlayerJoined }
func (PlayerLeft) Type() EventType       { return EventPlayerLeft }
func (PlayerUpdated) Type() EventType    { return EventPlayerUpdated }
func (ScoreTransferred) Type() EventType { return EventScoreTransferred }
func (RoomSettled) Type() EventType      { return EventRoomSettled }
func (RoomUpdated) Type() EventType      { return EventRoomUpdated }
func (Pong) Type() EventType             { return EventPong }
func (u Unknown) Type() EventType        { return EventType(u.Name) }

// Decode parses one frame. Only a broken envelope is an error; a payload
// that does not match its type yields the typed event with zero fields and
// the raw data kept in Meta.
func Decode(frame []byte) (Event, error) {
	var msg protocol.PushMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}

	meta := Meta{RoomID: msg.RoomID, Raw: msg.Data}
	if msg.Timestamp > 0 {
		meta.Timestamp = time.Unix(msg.Timestamp, 0)
	}

	switch EventType(msg.Type) {
	case EventPlayerJoined:
		var p protocol.PlayerEventPayload
		payload(&meta, &p)
		return PlayerJoined{Meta: meta, UserID: p.UserID, Nickname: p.Nickname}, nil
	case EventPlayerLeft:
		var p protocol.PlayerEventPayload
		payload(&meta, &p)
		return PlayerLeft{Meta: meta, UserID: p.UserID}, nil
	case EventPlayerUpdated:
		var p protocol.PlayerEventPayload
		payload(&meta, &p)
		return PlayerUpdated{Meta: meta, UserID: p.UserID, Nickname: p.Nickname}, nil
	case EventScoreTransferred:
		var p protocol.TransferEventPayload
		payload(&meta, &p)
		return ScoreTransferred{Meta: meta, Transfer: p.Transfer}, nil
	case EventRoomSettled:
		var p protocol.SettledEventPayload
		payload(&meta, &p)
		return RoomSettled{Meta: meta, Settlements: p.Settlements}, nil
	case EventRoomUpdated:
		var p protocol.RoomEventPayload
		payload(&meta, &p)
		return RoomUpdated{Meta: meta, Status: p.Status}, nil
	case EventPong:
		return Pong{Meta: meta}, nil
	default:
		return Unknown{Meta: meta, Name: msg.Type}, nil
	}
}

func payload(meta *Meta, dst any) {
	if err := protocol.DecodeData(meta.Raw, dst); err != nil && !errors.Is(err, protocol.ErrEmptyData) {
		meta.PayloadErr = err
	}
}
