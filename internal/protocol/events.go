package protocol

import (
	"encoding/json"
	"time"

	"github.com/cwrk-planet/room-sync/internal/domain"
)

// Push event types sent over /ws.
const (
	TypePlayerJoined     = "player_joined"
	TypePlayerLeft       = "player_left"
	TypeScoreTransferred = "score_transfer"
	TypeRoomSettled      = "room_settled"
	TypePlayerUpdated    = "player_updated"
	TypeRoomUpdated      = "room_updated"

	TypePing = "ping" // client -> server keep-alive
	TypePong = "pong"
)

type PushMessage struct {
	Type      string          `json:"type"`
	RoomID    int64           `json:"room_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

func NewPushMessage(eventType string, roomID int64, payload any) (PushMessage, error) {
	msg := PushMessage{
		Type:      eventType,
		RoomID:    roomID,
		Timestamp: time.Now().Unix(),
	}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return PushMessage{}, err
		}
		msg.Data = b
	}
	return msg, nil
}

type PlayerEventPayload struct {
	RoomID   int64  `json:"room_id"`
	UserID   int64  `json:"user_id"`
	Nickname string `json:"nickname,omitempty"`
}

type TransferEventPayload struct {
	Transfer domain.TransferRecord `json:"transfer"`
}

type SettledEventPayload struct {
	Settlements []domain.Settlement `json:"settlements"`
	Players     []domain.Player     `json:"players,omitempty"`
}

type RoomEventPayload struct {
	RoomID int64             `json:"room_id"`
	Status domain.RoomStatus `json:"status"`
}
