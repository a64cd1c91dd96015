package membership_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cwrk-planet/room-sync/internal/api"
	"github.com/cwrk-planet/room-sync/internal/backend/service"
	"github.com/cwrk-planet/room-sync/internal/backend/store"
	httpx "github.com/cwrk-planet/room-sync/internal/backend/transport/http"
	"github.com/cwrk-planet/room-sync/internal/backend/transport/ws"
	"github.com/cwrk-planet/room-sync/internal/domain"
	"github.com/cwrk-planet/room-sync/internal/membership"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staleList answers the player list as it was before the user joined.
type staleList struct{ api.Client }

func (staleList) RoomPlayers(context.Context, int64) ([]domain.Player, error) {
	return []domain.Player{}, nil
}

func newClient(t *testing.T) api.Client {
	t.Helper()
	svc := service.NewRoomService(store.NewMemory(), nil, nil)
	hub := ws.NewHub()
	svc.SetNotifier(hub)

	router := httpx.NewRouter(httpx.NewHandler(svc), ws.NewServer(hub, svc, time.Second, nil), httpx.RouterOptions{
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
	})
	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)

	c, err := api.New(api.Options{BaseURL: ts.URL, Timeout: 2 * time.Second})
	require.NoError(t, err)
	return c
}

func TestEnsureMember_JoinedBetweenListAndJoin(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	room, err := c.CreateRoom(ctx, 1, "friday")
	require.NoError(t, err)
	require.NoError(t, c.JoinRoom(ctx, 2, room.ID))

	g := membership.NewGuard(staleList{c}, nil)
	out, err := g.EnsureMember(ctx, domain.ByID(room.ID), 2)
	require.NoError(t, err)
	assert.Equal(t, membership.AlreadyMember, out.Result)
	assert.Equal(t, room.ID, out.RoomID)
}

func TestEnsureMember_JoinsThroughBackend(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	room, err := c.CreateRoom(ctx, 1, "friday")
	require.NoError(t, err)

	g := membership.NewGuard(c, nil)
	out, err := g.EnsureMember(ctx, domain.ByCode(room.Code), 2)
	require.NoError(t, err)
	assert.Equal(t, membership.Joined, out.Result)

	out, err = g.EnsureMember(ctx, domain.ByID(room.ID), 2)
	require.NoError(t, err)
	assert.Equal(t, membership.AlreadyMember, out.Result)
}
