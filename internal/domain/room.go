package domain

import "time"

type RoomStatus int32

const (
	RoomActive  RoomStatus = 1
	RoomSettled RoomStatus = 2
)

type Room struct {
	ID        int64      `json:"id"`
	Code      string     `json:"room_code"`
	Name      string     `json:"room_name"`
	CreatorID int64      `json:"creator_id"`
	Status    RoomStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	SettledAt *time.Time `json:"settled_at,omitempty"`
}

func (r Room) IsSettled() bool { return r.Status == RoomSettled }
