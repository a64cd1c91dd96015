package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/cwrk-planet/room-sync/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a real database only when ROOMSYNC_TEST_PG_DSN is set.
func testStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("ROOMSYNC_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("ROOMSYNC_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	db, err := New(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(ctx))
	s := NewStore(db)
	t.Cleanup(s.Close)
	return s
}

func TestStore_RoomLifecycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	room := domain.Room{Code: uuid.NewString()[:6], Name: "pg", CreatorID: 1}
	require.NoError(t, s.CreateRoom(ctx, &room, domain.Player{UserID: 1, Nickname: "east"}))
	require.NotZero(t, room.ID)

	require.NoError(t, s.AddPlayer(ctx, &domain.Player{RoomID: room.ID, UserID: 2, Nickname: "south"}))
	assert.ErrorIs(t, s.AddPlayer(ctx, &domain.Player{RoomID: room.ID, UserID: 2}), domain.ErrAlreadyJoined)

	rec := domain.TransferRecord{RoomID: room.ID, FromUserID: 1, ToUserID: 2, Amount: 6}
	require.NoError(t, s.Transfer(ctx, &rec))
	assert.Equal(t, "south", rec.ToUserName)

	after, err := s.Transfers(ctx, room.ID, rec.ID)
	require.NoError(t, err)
	assert.Empty(t, after)

	settlements, players, err := s.Settle(ctx, room.ID, func(ps []domain.Player) []domain.Settlement {
		return []domain.Settlement{{FromUserID: 1, ToUserID: 2, Amount: 6}}
	})
	require.NoError(t, err)
	require.Len(t, settlements, 1)
	require.Len(t, players, 2)
	assert.Equal(t, int64(-6), players[0].FinalScore)

	_, _, err = s.Settle(ctx, room.ID, nil)
	assert.ErrorIs(t, err, domain.ErrRoomSettled)

	_, err = s.Room(ctx, -1)
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}
