package session

import (
	"context"
	"strconv"
	"sync"

	"github.com/cwrk-planet/room-sync/internal/domain"
	"github.com/cwrk-planet/room-sync/internal/realtime"
)

type fakeAPI struct {
	mu sync.Mutex

	rooms       map[string]domain.Room
	players     []domain.Player
	transfers   []domain.TransferRecord
	settlements []domain.Settlement
	nextID      int64

	playersErr  error
	joinErr     error
	transferErr error

	joins         int
	fullCalls     int
	afterCalls    []int64
	transfersSent int

	// afterStarted/afterRelease block RoomTransfersAfter when set,
	// fullStarted/fullRelease block RoomTransfers the same way.
	afterStarted chan struct{}
	afterRelease chan struct{}
	fullStarted  chan struct{}
	fullRelease  chan struct{}

	// fetches records transfer fetches in call order.
	fetches []string
}

func newFakeAPI(room domain.Room, players ...domain.Player) *fakeAPI {
	f := &fakeAPI{rooms: map[string]domain.Room{}, players: players, nextID: 100}
	f.rooms[domain.ByID(room.ID).String()] = room
	if room.Code != "" {
		f.rooms[domain.ByCode(room.Code).String()] = room
	}
	return f
}

func (f *fakeAPI) Room(_ context.Context, key domain.RoomKey) (domain.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rooms[key.String()]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return r, nil
}

func (f *fakeAPI) RoomPlayers(context.Context, int64) ([]domain.Player, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.playersErr != nil {
		return nil, f.playersErr
	}
	return append([]domain.Player(nil), f.players...), nil
}

func (f *fakeAPI) JoinRoom(_ context.Context, userID, roomID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins++
	if f.joinErr != nil {
		return f.joinErr
	}
	f.players = append(f.players, domain.Player{RoomID: roomID, UserID: userID})
	return nil
}

func (f *fakeAPI) RoomTransfers(context.Context, int64) ([]domain.TransferRecord, error) {
	f.mu.Lock()
	f.fullCalls++
	f.fetches = append(f.fetches, "full")
	out := append([]domain.TransferRecord(nil), f.transfers...)
	started, release := f.fullStarted, f.fullRelease
	f.fullStarted, f.fullRelease = nil, nil
	f.mu.Unlock()

	// the snapshot is taken before blocking, like a response already in flight
	if started != nil {
		close(started)
		<-release
	}
	return out, nil
}

func (f *fakeAPI) RoomTransfersAfter(ctx context.Context, _ int64, afterID int64) ([]domain.TransferRecord, error) {
	f.mu.Lock()
	f.afterCalls = append(f.afterCalls, afterID)
	f.fetches = append(f.fetches, "after:"+strconv.FormatInt(afterID, 10))
	started, release := f.afterStarted, f.afterRelease
	f.mu.Unlock()

	if started != nil {
		close(started)
		<-release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.TransferRecord
	for _, t := range f.transfers {
		if t.ID > afterID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeAPI) RoomSettlements(context.Context, int64) ([]domain.Settlement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Settlement(nil), f.settlements...), nil
}

func (f *fakeAPI) TransferScore(_ context.Context, roomID, from, to, amount int64) (domain.TransferRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transfersSent++
	if f.transferErr != nil {
		return domain.TransferRecord{}, f.transferErr
	}
	f.nextID++
	rec := domain.TransferRecord{ID: f.nextID, RoomID: roomID, FromUserID: from, ToUserID: to, Amount: amount}
	f.transfers = append(f.transfers, rec)
	return rec, nil
}

func (f *fakeAPI) SettleRoom(_ context.Context, roomID, _ int64) ([]domain.Settlement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settleLocked(roomID)
	return append([]domain.Settlement(nil), f.settlements...), nil
}

func (f *fakeAPI) settleLocked(roomID int64) {
	for k, r := range f.rooms {
		if r.ID == roomID {
			r.Status = domain.RoomSettled
			f.rooms[k] = r
		}
	}
	f.settlements = []domain.Settlement{{RoomID: roomID, FromUserID: 2, ToUserID: 1, Amount: 5}}
}

func (f *fakeAPI) addTransfer(rec domain.TransferRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transfers = append(f.transfers, rec)
}

func (f *fakeAPI) fetchLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetches...)
}

func (f *fakeAPI) calls() (full int, after []int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fullCalls, append([]int64(nil), f.afterCalls...)
}

type fakeChannel struct {
	mu          sync.Mutex
	state       realtime.State
	connects    []int64
	disconnects int
	connectErr  error
	handlers    map[realtime.EventType][]realtime.Handler
	onErr       []func(error)
	onState     []func(realtime.State, int)
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{handlers: map[realtime.EventType][]realtime.Handler{}}
}

func (c *fakeChannel) Connect(_ context.Context, roomID, _ int64) error {
	c.mu.Lock()
	c.connects = append(c.connects, roomID)
	err := c.connectErr
	if err == nil {
		c.state = realtime.Connected
	} else {
		c.state = realtime.Reconnecting
	}
	c.mu.Unlock()
	return err
}

func (c *fakeChannel) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
	c.state = realtime.Disconnected
}

func (c *fakeChannel) On(t realtime.EventType, h realtime.Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[t] = append(c.handlers[t], h)
}

func (c *fakeChannel) OnError(f func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onErr = append(c.onErr, f)
}

func (c *fakeChannel) OnStateChange(f func(realtime.State, int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = append(c.onState, f)
}

func (c *fakeChannel) State() realtime.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeChannel) emit(ev realtime.Event) {
	c.mu.Lock()
	hs := append([]realtime.Handler(nil), c.handlers[ev.Type()]...)
	c.mu.Unlock()
	for _, h := range hs {
		h(ev)
	}
}

func (c *fakeChannel) fail(err error) {
	c.mu.Lock()
	fs := append([]func(error){}, c.onErr...)
	c.mu.Unlock()
	for _, f := range fs {
		f(err)
	}
}

// setState moves the fake through a channel transition and reports it.
func (c *fakeChannel) setState(st realtime.State, attempts int) {
	c.mu.Lock()
	c.state = st
	fs := append([]func(realtime.State, int){}, c.onState...)
	c.mu.Unlock()
	for _, f := range fs {
		f(st, attempts)
	}
}

func (c *fakeChannel) connected() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int64(nil), c.connects...)
}
