// Package store defines the persistence contract of the reference backend
// and an in-memory implementation of it.
package store

import (
	"context"
	"errors"

	"github.com/cwrk-planet/room-sync/internal/domain"
)

var ErrCodeTaken = errors.New("room code taken")

// SettlePlan turns the final standings into payer -> payee movements.
type SettlePlan func(players []domain.Player) []domain.Settlement

type Store interface {
	// CreateRoom assigns ID and CreatedAt and adds the creator as the first
	// player. It returns ErrCodeTaken when room.Code is in use.
	CreateRoom(ctx context.Context, room *domain.Room, creator domain.Player) error
	Room(ctx context.Context, id int64) (domain.Room, error)
	RoomByCode(ctx context.Context, code string) (domain.Room, error)

	Players(ctx context.Context, roomID int64) ([]domain.Player, error)
	// AddPlayer returns domain.ErrAlreadyJoined for an existing member and
	// domain.ErrRoomSettled once the room is closed.
	AddPlayer(ctx context.Context, p *domain.Player) error

	// Transfer records t and moves the scores in one step. It assigns ID,
	// CreatedAt and the user names.
	Transfer(ctx context.Context, t *domain.TransferRecord) error
	// Transfers lists records with id > afterID, newest first.
	Transfers(ctx context.Context, roomID, afterID int64) ([]domain.TransferRecord, error)

	// Settle closes the room, freezes final scores and stores the plan's
	// settlements.
	Settle(ctx context.Context, roomID int64, plan SettlePlan) ([]domain.Settlement, []domain.Player, error)
	Settlements(ctx context.Context, roomID int64) ([]domain.Settlement, error)

	Close()
}
