package session

import (
	"github.com/cwrk-planet/room-sync/internal/domain"
	"github.com/cwrk-planet/room-sync/internal/realtime"
)

// TransferView is a ledger entry with the amount signed from the viewer's
// side.
type TransferView struct {
	domain.TransferRecord
	Signed int64
}

// View is an immutable snapshot of the session state.
type View struct {
	Phase       Phase
	ViewerID    int64
	Room        domain.Room
	Players     []domain.Player
	Transfers   []TransferView
	Settlements []domain.Settlement
	Cursor      int64
	Terminal    bool
	Channel     realtime.State
}

// Viewer returns the viewing player, if present.
func (v View) Viewer() (domain.Player, bool) {
	for _, p := range v.Players {
		if p.UserID == v.ViewerID {
			return p, true
		}
	}
	return domain.Player{}, false
}

func (s *Session) View() View {
	s.mu.RLock()
	v := View{
		Phase:       s.phase,
		ViewerID:    s.userID,
		Room:        s.room,
		Players:     domain.ViewerFirst(s.players, s.userID),
		Settlements: append([]domain.Settlement(nil), s.settlements...),
		Terminal:    s.terminal,
	}
	records := s.ledger.Snapshot()
	v.Cursor = s.ledger.Cursor()
	s.mu.RUnlock()

	v.Transfers = make([]TransferView, 0, len(records))
	for _, r := range records {
		v.Transfers = append(v.Transfers, TransferView{TransferRecord: r, Signed: r.SignedAmount(v.ViewerID)})
	}
	v.Channel = s.ch.State()

	return v
}
