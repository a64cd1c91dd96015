package domain

import "time"

type Player struct {
	RoomID       int64     `json:"room_id"`
	UserID       int64     `json:"user_id"`
	Nickname     string    `json:"nickname"`
	AvatarURL    string    `json:"avatar_url,omitempty"`
	CurrentScore int64     `json:"current_score"`
	FinalScore   int64     `json:"final_score"`
	JoinedAt     time.Time `json:"joined_at"`
}

func HasPlayer(players []Player, userID int64) bool {
	for _, p := range players {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// ViewerFirst orders players so the viewing user comes first and everyone
// else keeps the server order.
func ViewerFirst(players []Player, viewer int64) []Player {
	out := make([]Player, 0, len(players))
	for _, p := range players {
		if p.UserID == viewer {
			out = append(out, p)
		}
	}
	for _, p := range players {
		if p.UserID != viewer {
			out = append(out, p)
		}
	}
	return out
}
