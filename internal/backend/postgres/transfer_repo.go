package postgres

import (
	"context"

	"github.com/cwrk-planet/room-sync/internal/backend/store"
	"github.com/cwrk-planet/room-sync/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

type TransferRepository struct {
	db *pgxpool.Pool
}

func NewTransferRepository(db *pgxpool.Pool) *TransferRepository {
	return &TransferRepository{db: db}
}

// Create moves the scores and inserts the record under the room lock.
func (r *TransferRepository) Create(ctx context.Context, t *domain.TransferRecord) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	status, err := lockRoom(ctx, tx, t.RoomID)
	if err != nil {
		return err
	}
	if status == domain.RoomSettled {
		return domain.ErrRoomSettled
	}

	for _, step := range []struct {
		userID int64
		delta  int64
		name   *string
	}{
		{t.FromUserID, -t.Amount, &t.FromUserName},
		{t.ToUserID, t.Amount, &t.ToUserName},
	} {
		cmd, err := tx.Exec(ctx,
			`UPDATE room_players SET current_score = current_score + $3 WHERE room_id=$1 AND user_id=$2`,
			t.RoomID, step.userID, step.delta)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return domain.ErrNotInRoom
		}
		if err := tx.QueryRow(ctx,
			`SELECT nickname FROM room_players WHERE room_id=$1 AND user_id=$2`,
			t.RoomID, step.userID).Scan(step.name); err != nil {
			return err
		}
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO score_transfers (room_id, from_user_id, to_user_id, amount)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		t.RoomID, t.FromUserID, t.ToUserID, t.Amount).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *TransferRepository) ListAfter(ctx context.Context, roomID, afterID int64) ([]domain.TransferRecord, error) {
	const q = `
SELECT t.id, t.room_id, t.from_user_id, t.to_user_id, t.amount, t.created_at,
       COALESCE(f.nickname, ''), COALESCE(p.nickname, '')
FROM score_transfers AS t
LEFT JOIN room_players AS f ON f.room_id = t.room_id AND f.user_id = t.from_user_id
LEFT JOIN room_players AS p ON p.room_id = t.room_id AND p.user_id = t.to_user_id
WHERE t.room_id = $1 AND t.id > $2
ORDER BY t.id DESC
LIMIT $3`
	rows, err := r.db.Query(ctx, q, roomID, afterID, maxTransferPage)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.TransferRecord, 0, 16)
	for rows.Next() {
		var t domain.TransferRecord
		if err := rows.Scan(&t.ID, &t.RoomID, &t.FromUserID, &t.ToUserID, &t.Amount, &t.CreatedAt,
			&t.FromUserName, &t.ToUserName); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// maxTransferPage bounds one history response.
const maxTransferPage = 500

type SettlementRepository struct {
	db *pgxpool.Pool
}

func NewSettlementRepository(db *pgxpool.Pool) *SettlementRepository {
	return &SettlementRepository{db: db}
}

// Settle freezes final scores, stores the plan and closes the room in one
// transaction.
func (r *SettlementRepository) Settle(ctx context.Context, roomID int64, plan store.SettlePlan) ([]domain.Settlement, []domain.Player, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	status, err := lockRoom(ctx, tx, roomID)
	if err != nil {
		return nil, nil, err
	}
	if status == domain.RoomSettled {
		return nil, nil, domain.ErrRoomSettled
	}

	if _, err := tx.Exec(ctx, `UPDATE room_players SET final_score = current_score WHERE room_id=$1`, roomID); err != nil {
		return nil, nil, err
	}
	rows, err := tx.Query(ctx, playersQuery, roomID)
	if err != nil {
		return nil, nil, err
	}
	players, err := collectPlayers(rows)
	if err != nil {
		return nil, nil, err
	}

	settlements := plan(players)
	for i := range settlements {
		s := &settlements[i]
		s.RoomID = roomID
		if err := tx.QueryRow(ctx, `
			INSERT INTO settlements (room_id, from_user_id, to_user_id, amount)
			VALUES ($1, $2, $3, $4)
			RETURNING id, created_at`,
			roomID, s.FromUserID, s.ToUserID, s.Amount).Scan(&s.ID, &s.CreatedAt); err != nil {
			return nil, nil, err
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE rooms SET status=$2, settled_at=now() WHERE id=$1`, roomID, domain.RoomSettled); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}
	return settlements, players, nil
}

func (r *SettlementRepository) ListByRoom(ctx context.Context, roomID int64) ([]domain.Settlement, error) {
	const q = `
SELECT s.id, s.room_id, s.from_user_id, s.to_user_id, s.amount, s.created_at,
       COALESCE(f.nickname, ''), COALESCE(p.nickname, '')
FROM settlements AS s
LEFT JOIN room_players AS f ON f.room_id = s.room_id AND f.user_id = s.from_user_id
LEFT JOIN room_players AS p ON p.room_id = s.room_id AND p.user_id = s.to_user_id
WHERE s.room_id = $1
ORDER BY s.id ASC`
	rows, err := r.db.Query(ctx, q, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Settlement, 0, 8)
	for rows.Next() {
		var s domain.Settlement
		if err := rows.Scan(&s.ID, &s.RoomID, &s.FromUserID, &s.ToUserID, &s.Amount, &s.CreatedAt,
			&s.FromUserName, &s.ToUserName); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
