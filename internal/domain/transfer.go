package domain

import "time"

// TransferRecord is one score movement inside a room. Records are created by
// the server and never mutated afterwards; ID grows strictly within a room.
type TransferRecord struct {
	ID           int64     `json:"id"`
	RoomID       int64     `json:"room_id"`
	FromUserID   int64     `json:"from_user_id"`
	ToUserID     int64     `json:"to_user_id"`
	Amount       int64     `json:"amount"`
	CreatedAt    time.Time `json:"created_at"`
	FromUserName string    `json:"from_user_name,omitempty"`
	ToUserName   string    `json:"to_user_name,omitempty"`
}

// SignedAmount is the amount as seen by viewer: negative when viewer paid,
// positive when viewer received, zero when viewer is not involved.
func (t TransferRecord) SignedAmount(viewer int64) int64 {
	switch viewer {
	case t.FromUserID:
		return -t.Amount
	case t.ToUserID:
		return t.Amount
	default:
		return 0
	}
}

type Settlement struct {
	ID           int64     `json:"id,omitempty"`
	RoomID       int64     `json:"room_id"`
	FromUserID   int64     `json:"from_user_id"`
	ToUserID     int64     `json:"to_user_id"`
	Amount       int64     `json:"amount"`
	CreatedAt    time.Time `json:"created_at"`
	FromUserName string    `json:"from_user_name,omitempty"`
	ToUserName   string    `json:"to_user_name,omitempty"`
}
