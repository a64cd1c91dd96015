package postgres

import (
	"context"
	"errors"

	"github.com/cwrk-planet/room-sync/internal/backend/store"
	"github.com/cwrk-planet/room-sync/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type RoomRepository struct {
	db *pgxpool.Pool
}

func NewRoomRepository(db *pgxpool.Pool) *RoomRepository {
	return &RoomRepository{db: db}
}

// Create inserts the room and its creator in one transaction.
func (r *RoomRepository) Create(ctx context.Context, room *domain.Room, creator domain.Player) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if room.Status == 0 {
		room.Status = domain.RoomActive
	}
	query := `
		INSERT INTO rooms (room_code, room_name, creator_id, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`
	err = tx.QueryRow(ctx, query, room.Code, room.Name, room.CreatorID, room.Status).
		Scan(&room.ID, &room.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return store.ErrCodeTaken
		}
		return err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO room_players (room_id, user_id, nickname, avatar_url, joined_at)
		VALUES ($1, $2, $3, $4, $5)`,
		room.ID, creator.UserID, creator.Nickname, creator.AvatarURL, room.CreatedAt); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

const roomColumns = `id, room_code, room_name, creator_id, status, created_at, settled_at`

func (r *RoomRepository) Get(ctx context.Context, id int64) (domain.Room, error) {
	return scanRoom(r.db.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id=$1`, id))
}

func (r *RoomRepository) GetByCode(ctx context.Context, code string) (domain.Room, error) {
	return scanRoom(r.db.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE room_code=$1`, code))
}

func scanRoom(row pgx.Row) (domain.Room, error) {
	var rm domain.Room
	err := row.Scan(&rm.ID, &rm.Code, &rm.Name, &rm.CreatorID, &rm.Status, &rm.CreatedAt, &rm.SettledAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Room{}, domain.ErrRoomNotFound
		}
		return domain.Room{}, err
	}
	return rm, nil
}

// lockRoom takes a row lock on the room for the rest of tx and returns its
// status.
func lockRoom(ctx context.Context, tx pgx.Tx, roomID int64) (domain.RoomStatus, error) {
	var status domain.RoomStatus
	err := tx.QueryRow(ctx, `SELECT status FROM rooms WHERE id=$1 FOR UPDATE`, roomID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrRoomNotFound
	}
	return status, err
}
