// Package devicestore persists what the client remembers between runs: who
// the user is and which room they were last in.
package devicestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

type Identity struct {
	UserID    int64
	Nickname  string
	Token     string
	UpdatedAt time.Time
}

// RecentRoom points at the room the user last entered. Code may be empty.
type RecentRoom struct {
	RoomID    int64
	Code      string
	EnteredAt time.Time
}

type Store struct {
	db *sql.DB
}

// Open opens (or creates) the sqlite file at path. ":memory:" is accepted
// for tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate() error {
	const stmt = `
CREATE TABLE IF NOT EXISTS identity (
  slot INTEGER PRIMARY KEY CHECK (slot = 1),
  user_id INTEGER NOT NULL,
  nickname TEXT NOT NULL DEFAULT '',
  token TEXT NOT NULL DEFAULT '',
  updated_at INTEGER NOT NULL -- unix seconds
);

CREATE TABLE IF NOT EXISTS recent_rooms (
  user_id INTEGER PRIMARY KEY,
  room_id INTEGER NOT NULL,
  room_code TEXT NOT NULL DEFAULT '',
  entered_at INTEGER NOT NULL -- unix seconds
);
`
	if _, err := s.db.Exec(stmt); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) SaveIdentity(ctx context.Context, id Identity) error {
	if id.UserID <= 0 {
		return fmt.Errorf("save identity: invalid user id %d", id.UserID)
	}
	if id.UpdatedAt.IsZero() {
		id.UpdatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO identity (slot, user_id, nickname, token, updated_at)
VALUES (1, ?, ?, ?, ?)
ON CONFLICT (slot) DO UPDATE SET
  user_id = excluded.user_id,
  nickname = excluded.nickname,
  token = excluded.token,
  updated_at = excluded.updated_at`,
		id.UserID, id.Nickname, id.Token, id.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("save identity: %w", err)
	}
	return nil
}

func (s *Store) Identity(ctx context.Context) (Identity, error) {
	var (
		id      Identity
		updated int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, nickname, token, updated_at FROM identity WHERE slot = 1`).
		Scan(&id.UserID, &id.Nickname, &id.Token, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Identity{}, ErrNotFound
	}
	if err != nil {
		return Identity{}, fmt.Errorf("load identity: %w", err)
	}
	id.UpdatedAt = time.Unix(updated, 0)

	return id, nil
}

func (s *Store) SaveRecentRoom(ctx context.Context, userID int64, r RecentRoom) error {
	if r.RoomID <= 0 {
		return fmt.Errorf("save recent room: invalid room id %d", r.RoomID)
	}
	if r.EnteredAt.IsZero() {
		r.EnteredAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO recent_rooms (user_id, room_id, room_code, entered_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (user_id) DO UPDATE SET
  room_id = excluded.room_id,
  room_code = excluded.room_code,
  entered_at = excluded.entered_at`,
		userID, r.RoomID, r.Code, r.EnteredAt.Unix())
	if err != nil {
		return fmt.Errorf("save recent room: %w", err)
	}
	return nil
}

func (s *Store) RecentRoom(ctx context.Context, userID int64) (RecentRoom, error) {
	var (
		r       RecentRoom
		entered int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT room_id, room_code, entered_at FROM recent_rooms WHERE user_id = ?`, userID).
		Scan(&r.RoomID, &r.Code, &entered)
	if errors.Is(err, sql.ErrNoRows) {
		return RecentRoom{}, ErrNotFound
	}
	if err != nil {
		return RecentRoom{}, fmt.Errorf("load recent room: %w", err)
	}
	r.EnteredAt = time.Unix(entered, 0)

	return r, nil
}

// ForgetRoom clears the pointer, typically after the room was settled.
func (s *Store) ForgetRoom(ctx context.Context, userID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM recent_rooms WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("forget room: %w", err)
	}
	return nil
}
