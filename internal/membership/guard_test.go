package membership

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cwrk-planet/room-sync/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	rooms      map[string]domain.Room
	players    []domain.Player
	playersErr error
	joinErr    error
	joinCalls  int
}

func (f *fakeAPI) Room(_ context.Context, key domain.RoomKey) (domain.Room, error) {
	r, ok := f.rooms[key.String()]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return r, nil
}

func (f *fakeAPI) RoomPlayers(context.Context, int64) ([]domain.Player, error) {
	return f.players, f.playersErr
}

func (f *fakeAPI) JoinRoom(context.Context, int64, int64) error {
	f.joinCalls++
	return f.joinErr
}

type msgErr struct{ msg string }

func (e msgErr) Error() string  { return "join: " + e.msg }
func (e msgErr) Reason() string { return e.msg }

func TestEnsureMember_AlreadyMember(t *testing.T) {
	api := &fakeAPI{players: []domain.Player{{UserID: 1}, {UserID: 2}}}
	g := NewGuard(api, nil)

	out, err := g.EnsureMember(context.Background(), domain.ByID(5), 2)
	require.NoError(t, err)
	assert.Equal(t, AlreadyMember, out.Result)
	assert.Equal(t, int64(5), out.RoomID)
	assert.Zero(t, api.joinCalls)
}

func TestEnsureMember_Joined(t *testing.T) {
	api := &fakeAPI{players: []domain.Player{{UserID: 1}}}
	g := NewGuard(api, nil)

	out, err := g.EnsureMember(context.Background(), domain.ByID(5), 2)
	require.NoError(t, err)
	assert.Equal(t, Joined, out.Result)
	assert.True(t, out.Result.Member())
	assert.Equal(t, 1, api.joinCalls)
}

func TestEnsureMember_JoinRaceIsAlreadyMember(t *testing.T) {
	api := &fakeAPI{joinErr: fmt.Errorf("joinRoom: %w", domain.ErrAlreadyJoined)}
	g := NewGuard(api, nil)

	out, err := g.EnsureMember(context.Background(), domain.ByID(5), 2)
	require.NoError(t, err)
	assert.Equal(t, AlreadyMember, out.Result)
}

func TestEnsureMember_TerminalOutcomes(t *testing.T) {
	cases := []struct {
		name    string
		joinErr error
		want    Result
		reason  string
	}{
		{"settled", fmt.Errorf("joinRoom: %w", domain.ErrRoomSettled), RoomSettled, ""},
		{"not found", fmt.Errorf("joinRoom: %w", domain.ErrRoomNotFound), RoomNotFound, ""},
		{"other", msgErr{"room is full"}, JoinFailed, "room is full"},
		{"plain", errors.New("boom"), JoinFailed, "boom"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := NewGuard(&fakeAPI{joinErr: tc.joinErr}, nil)
			out, err := g.EnsureMember(context.Background(), domain.ByID(5), 2)
			require.NoError(t, err)
			assert.Equal(t, tc.want, out.Result)
			assert.False(t, out.Result.Member())
			if tc.reason != "" {
				assert.Equal(t, tc.reason, out.Reason)
			}
		})
	}
}

func TestEnsureMember_ResolvesCode(t *testing.T) {
	api := &fakeAPI{
		rooms:   map[string]domain.Room{domain.ByCode("AB12CD").String(): {ID: 44}},
		players: []domain.Player{{UserID: 2}},
	}
	g := NewGuard(api, nil)

	out, err := g.EnsureMember(context.Background(), domain.ByCode("AB12CD"), 2)
	require.NoError(t, err)
	assert.Equal(t, AlreadyMember, out.Result)
	assert.Equal(t, int64(44), out.RoomID)

	out, err = g.EnsureMember(context.Background(), domain.ByCode("NOPE00"), 2)
	require.NoError(t, err)
	assert.Equal(t, RoomNotFound, out.Result)
}

func TestEnsureMember_PlayersFetchFailureIsRetryable(t *testing.T) {
	api := &fakeAPI{playersErr: errors.New("connection reset")}
	g := NewGuard(api, nil)

	_, err := g.EnsureMember(context.Background(), domain.ByID(5), 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrFetchFailed)
	assert.True(t, domain.Retryable(err))

	var opErr *domain.OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "getRoomPlayers", opErr.Op)
	assert.Equal(t, domain.ByID(5), opErr.Key)
	assert.Zero(t, api.joinCalls)
}

func TestEnsureMember_PlayersParseFailure(t *testing.T) {
	api := &fakeAPI{playersErr: fmt.Errorf("getRoomPlayers: %w", domain.ErrParseFailed)}
	g := NewGuard(api, nil)

	_, err := g.EnsureMember(context.Background(), domain.ByID(5), 2)
	assert.ErrorIs(t, err, domain.ErrParseFailed)
	assert.NotErrorIs(t, err, domain.ErrFetchFailed)
}

func TestEnsureMember_Idempotent(t *testing.T) {
	api := &fakeAPI{}
	g := NewGuard(api, nil)

	out, err := g.EnsureMember(context.Background(), domain.ByID(5), 2)
	require.NoError(t, err)
	assert.Equal(t, Joined, out.Result)

	api.players = []domain.Player{{UserID: 2}}
	out, err = g.EnsureMember(context.Background(), domain.ByID(5), 2)
	require.NoError(t, err)
	assert.Equal(t, AlreadyMember, out.Result)
	assert.Equal(t, 1, api.joinCalls)
}
