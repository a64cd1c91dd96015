package postgres

import (
	"context"

	"github.com/cwrk-planet/room-sync/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PlayerRepository struct {
	db *pgxpool.Pool
}

func NewPlayerRepository(db *pgxpool.Pool) *PlayerRepository {
	return &PlayerRepository{db: db}
}

// Add is serialized per room by the row lock so it cannot race a settle.
func (r *PlayerRepository) Add(ctx context.Context, p *domain.Player) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	status, err := lockRoom(ctx, tx, p.RoomID)
	if err != nil {
		return err
	}
	if status == domain.RoomSettled {
		return domain.ErrRoomSettled
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO room_players (room_id, user_id, nickname, avatar_url)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING
		RETURNING joined_at`,
		p.RoomID, p.UserID, p.Nickname, p.AvatarURL).Scan(&p.JoinedAt)
	if err == pgx.ErrNoRows {
		return domain.ErrAlreadyJoined
	}
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *PlayerRepository) ListByRoom(ctx context.Context, roomID int64) ([]domain.Player, error) {
	rows, err := r.db.Query(ctx, playersQuery, roomID)
	if err != nil {
		return nil, err
	}
	return collectPlayers(rows)
}

const playersQuery = `
SELECT room_id, user_id, nickname, avatar_url, current_score, final_score, joined_at
FROM room_players
WHERE room_id = $1
ORDER BY joined_at ASC, user_id ASC`

func collectPlayers(rows pgx.Rows) ([]domain.Player, error) {
	defer rows.Close()

	list := make([]domain.Player, 0, 8)
	for rows.Next() {
		var p domain.Player
		if err := rows.Scan(&p.RoomID, &p.UserID, &p.Nickname, &p.AvatarURL,
			&p.CurrentScore, &p.FinalScore, &p.JoinedAt); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}
