package store

import (
	"context"
	"testing"

	"github.com/cwrk-planet/room-sync/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seeded(t *testing.T) (*Memory, domain.Room) {
	t.Helper()
	m := NewMemory()
	room := domain.Room{Code: "ABC123", Name: "table", CreatorID: 1}
	require.NoError(t, m.CreateRoom(context.Background(), &room, domain.Player{UserID: 1, Nickname: "east"}))
	require.NoError(t, m.AddPlayer(context.Background(), &domain.Player{RoomID: room.ID, UserID: 2, Nickname: "south"}))
	return m, room
}

func TestMemory_CreateAndLookup(t *testing.T) {
	m, room := seeded(t)
	ctx := context.Background()

	assert.Equal(t, int64(1), room.ID)
	assert.Equal(t, domain.RoomActive, room.Status)

	byCode, err := m.RoomByCode(ctx, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, room.ID, byCode.ID)

	dup := domain.Room{Code: "ABC123"}
	assert.ErrorIs(t, m.CreateRoom(ctx, &dup, domain.Player{UserID: 3}), ErrCodeTaken)

	_, err = m.Room(ctx, 99)
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)

	err = m.AddPlayer(ctx, &domain.Player{RoomID: room.ID, UserID: 2})
	assert.ErrorIs(t, err, domain.ErrAlreadyJoined)
}

func TestMemory_TransfersAndScores(t *testing.T) {
	m, room := seeded(t)
	ctx := context.Background()

	for _, amt := range []int64{5, 7} {
		rec := domain.TransferRecord{RoomID: room.ID, FromUserID: 1, ToUserID: 2, Amount: amt}
		require.NoError(t, m.Transfer(ctx, &rec))
		assert.Equal(t, "east", rec.FromUserName)
	}
	bad := domain.TransferRecord{RoomID: room.ID, FromUserID: 1, ToUserID: 9, Amount: 1}
	assert.ErrorIs(t, m.Transfer(ctx, &bad), domain.ErrNotInRoom)

	all, err := m.Transfers(ctx, room.ID, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Greater(t, all[0].ID, all[1].ID)

	after, err := m.Transfers(ctx, room.ID, all[1].ID)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, all[0].ID, after[0].ID)

	players, err := m.Players(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(-12), players[0].CurrentScore)
	assert.Equal(t, int64(12), players[1].CurrentScore)
}

func TestMemory_Settle(t *testing.T) {
	m, room := seeded(t)
	ctx := context.Background()
	rec := domain.TransferRecord{RoomID: room.ID, FromUserID: 1, ToUserID: 2, Amount: 4}
	require.NoError(t, m.Transfer(ctx, &rec))

	plan := func(ps []domain.Player) []domain.Settlement {
		return []domain.Settlement{{FromUserID: ps[0].UserID, ToUserID: ps[1].UserID, Amount: 4}}
	}
	settlements, players, err := m.Settle(ctx, room.ID, plan)
	require.NoError(t, err)
	require.Len(t, settlements, 1)
	assert.Equal(t, room.ID, settlements[0].RoomID)
	assert.Equal(t, int64(-4), players[0].FinalScore)

	got, err := m.Room(ctx, room.ID)
	require.NoError(t, err)
	assert.True(t, got.IsSettled())
	assert.NotNil(t, got.SettledAt)

	_, _, err = m.Settle(ctx, room.ID, plan)
	assert.ErrorIs(t, err, domain.ErrRoomSettled)
	assert.ErrorIs(t, m.Transfer(ctx, &domain.TransferRecord{RoomID: room.ID, FromUserID: 2, ToUserID: 1, Amount: 1}), domain.ErrRoomSettled)
	assert.ErrorIs(t, m.AddPlayer(ctx, &domain.Player{RoomID: room.ID, UserID: 5}), domain.ErrRoomSettled)

	stored, err := m.Settlements(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, settlements, stored)
}
