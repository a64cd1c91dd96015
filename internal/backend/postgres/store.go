package postgres

import (
	"context"

	"github.com/cwrk-planet/room-sync/internal/backend/store"
	"github.com/cwrk-planet/room-sync/internal/domain"
)

// Store adapts the repositories to store.Store.
type Store struct {
	db          *DB
	rooms       *RoomRepository
	players     *PlayerRepository
	transfers   *TransferRepository
	settlements *SettlementRepository
}

var _ store.Store = (*Store)(nil)

func NewStore(db *DB) *Store {
	return &Store{
		db:          db,
		rooms:       NewRoomRepository(db.Pool),
		players:     NewPlayerRepository(db.Pool),
		transfers:   NewTransferRepository(db.Pool),
		settlements: NewSettlementRepository(db.Pool),
	}
}

func (s *Store) Close() { s.db.Close() }

func (s *Store) CreateRoom(ctx context.Context, room *domain.Room, creator domain.Player) error {
	return s.rooms.Create(ctx, room, creator)
}

func (s *Store) Room(ctx context.Context, id int64) (domain.Room, error) {
	return s.rooms.Get(ctx, id)
}

func (s *Store) RoomByCode(ctx context.Context, code string) (domain.Room, error) {
	return s.rooms.GetByCode(ctx, code)
}

func (s *Store) Players(ctx context.Context, roomID int64) ([]domain.Player, error) {
	if _, err := s.rooms.Get(ctx, roomID); err != nil {
		return nil, err
	}
	return s.players.ListByRoom(ctx, roomID)
}

func (s *Store) AddPlayer(ctx context.Context, p *domain.Player) error {
	return s.players.Add(ctx, p)
}

func (s *Store) Transfer(ctx context.Context, t *domain.TransferRecord) error {
	return s.transfers.Create(ctx, t)
}

func (s *Store) Transfers(ctx context.Context, roomID, afterID int64) ([]domain.TransferRecord, error) {
	if _, err := s.rooms.Get(ctx, roomID); err != nil {
		return nil, err
	}
	return s.transfers.ListAfter(ctx, roomID, afterID)
}

func (s *Store) Settle(ctx context.Context, roomID int64, plan store.SettlePlan) ([]domain.Settlement, []domain.Player, error) {
	return s.settlements.Settle(ctx, roomID, plan)
}

func (s *Store) Settlements(ctx context.Context, roomID int64) ([]domain.Settlement, error) {
	if _, err := s.rooms.Get(ctx, roomID); err != nil {
		return nil, err
	}
	return s.settlements.ListByRoom(ctx, roomID)
}
