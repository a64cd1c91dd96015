package protocol

// REST paths, relative to the API base URL.
const (
	PathCreateRoom     = "/api/v1/createRoom"
	PathGetRoom        = "/api/v1/getRoom"
	PathGetRoomPlayers = "/api/v1/getRoomPlayers"
	PathGetTransfers   = "/api/v1/getRoomTransfers"
	PathGetSettlements = "/api/v1/getRoomSettlements"
	PathJoinRoom       = "/api/v1/joinRoom"
	PathTransferScore  = "/api/v1/transferScore"
	PathSettleRoom     = "/api/v1/settleRoom"
	PathPushChannel    = "/ws"

	QueryRoomID   = "room_id"
	QueryRoomCode = "room_code"
	QueryUserID   = "user_id"
	QueryAfterID  = "after_id"
)

// Failure messages the backend puts in Response.Message.
const (
	MsgRoomNotFound  = "room not found"
	MsgRoomSettled   = "room settled"
	MsgAlreadyMember = "already a member"
	MsgNotInRoom     = "user not in the room"
)

type CreateRoomRequest struct {
	CreatorID int64  `json:"creator_id"`
	RoomName  string `json:"room_name"`
	Nickname  string `json:"nickname,omitempty"`
}

type JoinRoomRequest struct {
	UserID   int64  `json:"user_id"`
	RoomID   int64  `json:"room_id"`
	Nickname string `json:"nickname,omitempty"`
}

type TransferScoreRequest struct {
	RoomID     int64 `json:"room_id"`
	FromUserID int64 `json:"from_user_id"`
	ToUserID   int64 `json:"to_user_id"`
	Amount     int64 `json:"amount"`
}

type SettleRoomRequest struct {
	RoomID int64 `json:"room_id"`
	UserID int64 `json:"user_id"`
}
