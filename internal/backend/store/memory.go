package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/cwrk-planet/room-sync/internal/domain"
)

type memRoom struct {
	room        domain.Room
	players     []domain.Player
	transfers   []domain.TransferRecord // ascending by id
	settlements []domain.Settlement
}

// Memory keeps everything in process. It is what the backend runs on when
// no database is configured, and what the tests use.
type Memory struct {
	mu         sync.RWMutex
	rooms      map[int64]*memRoom
	codes      map[string]int64
	nextRoom   int64
	nextRecord int64
	now        func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		rooms: make(map[int64]*memRoom),
		codes: make(map[string]int64),
		now:   time.Now,
	}
}

func (m *Memory) Close() {}

func (m *Memory) CreateRoom(_ context.Context, room *domain.Room, creator domain.Player) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.codes[room.Code]; ok {
		return ErrCodeTaken
	}
	m.nextRoom++
	room.ID = m.nextRoom
	room.CreatedAt = m.now()
	if room.Status == 0 {
		room.Status = domain.RoomActive
	}

	creator.RoomID = room.ID
	creator.JoinedAt = room.CreatedAt
	m.rooms[room.ID] = &memRoom{room: *room, players: []domain.Player{creator}}
	m.codes[room.Code] = room.ID

	return nil
}

func (m *Memory) Room(_ context.Context, id int64) (domain.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[id]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return r.room, nil
}

func (m *Memory) RoomByCode(ctx context.Context, code string) (domain.Room, error) {
	m.mu.RLock()
	id, ok := m.codes[code]
	m.mu.RUnlock()
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return m.Room(ctx, id)
}

func (m *Memory) Players(_ context.Context, roomID int64) ([]domain.Player, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return slices.Clone(r.players), nil
}

func (m *Memory) AddPlayer(_ context.Context, p *domain.Player) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[p.RoomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	if r.room.IsSettled() {
		return domain.ErrRoomSettled
	}
	if domain.HasPlayer(r.players, p.UserID) {
		return domain.ErrAlreadyJoined
	}
	p.JoinedAt = m.now()
	p.CurrentScore, p.FinalScore = 0, 0
	r.players = append(r.players, *p)

	return nil
}

func (m *Memory) Transfer(_ context.Context, t *domain.TransferRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[t.RoomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	if r.room.IsSettled() {
		return domain.ErrRoomSettled
	}
	from := slices.IndexFunc(r.players, func(p domain.Player) bool { return p.UserID == t.FromUserID })
	to := slices.IndexFunc(r.players, func(p domain.Player) bool { return p.UserID == t.ToUserID })
	if from < 0 || to < 0 {
		return domain.ErrNotInRoom
	}

	m.nextRecord++
	t.ID = m.nextRecord
	t.CreatedAt = m.now()
	t.FromUserName = r.players[from].Nickname
	t.ToUserName = r.players[to].Nickname
	r.players[from].CurrentScore -= t.Amount
	r.players[to].CurrentScore += t.Amount
	r.transfers = append(r.transfers, *t)

	return nil
}

func (m *Memory) Transfers(_ context.Context, roomID, afterID int64) ([]domain.TransferRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	out := make([]domain.TransferRecord, 0, len(r.transfers))
	for i := len(r.transfers) - 1; i >= 0; i-- {
		if r.transfers[i].ID <= afterID {
			break
		}
		out = append(out, r.transfers[i])
	}
	return out, nil
}

func (m *Memory) Settle(_ context.Context, roomID int64, plan SettlePlan) ([]domain.Settlement, []domain.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return nil, nil, domain.ErrRoomNotFound
	}
	if r.room.IsSettled() {
		return nil, nil, domain.ErrRoomSettled
	}

	now := m.now()
	for i := range r.players {
		r.players[i].FinalScore = r.players[i].CurrentScore
	}
	settlements := plan(slices.Clone(r.players))
	for i := range settlements {
		m.nextRecord++
		settlements[i].ID = m.nextRecord
		settlements[i].RoomID = roomID
		settlements[i].CreatedAt = now
	}
	r.settlements = settlements
	r.room.Status = domain.RoomSettled
	r.room.SettledAt = &now

	return slices.Clone(settlements), slices.Clone(r.players), nil
}

func (m *Memory) Settlements(_ context.Context, roomID int64) ([]domain.Settlement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return slices.Clone(r.settlements), nil
}
