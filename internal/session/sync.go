package session

import (
	"context"
	"errors"

	"github.com/cwrk-planet/room-sync/internal/domain"
	"github.com/cwrk-planet/room-sync/internal/realtime"

	"golang.org/x/sync/errgroup"
)

type task struct {
	name string
	fn   func(ctx context.Context) error
	// ctx and done are set for tasks a caller waits on.
	ctx  context.Context
	done chan error
}

// run is the single worker that applies every sync in arrival order.
func (s *Session) run() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case t := <-s.tasks:
			ctx := s.ctx
			if t.ctx != nil {
				var cancel context.CancelFunc
				ctx, cancel = context.WithCancel(t.ctx)
				stop := context.AfterFunc(s.ctx, cancel)
				err := t.fn(ctx)
				stop()
				cancel()
				t.done <- err
				continue
			}
			if err := t.fn(ctx); err != nil && s.ctx.Err() == nil {
				s.log.Warn("session: background sync failed", "task", t.name, "err", err)
				s.emitError(err)
			}
		}
	}
}

// enqueue schedules fn without waiting. Push handlers use it, so it must not
// block past Leave.
func (s *Session) enqueue(name string, fn func(ctx context.Context) error) {
	select {
	case s.tasks <- task{name: name, fn: fn}:
	case <-s.ctx.Done():
	}
}

// await runs fn on the worker and waits for its result.
func (s *Session) await(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	t := task{name: name, fn: fn, ctx: ctx, done: make(chan error, 1)}
	select {
	case s.tasks <- t:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return ErrClosed
	}

	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return ErrClosed
	}
}

func (s *Session) subscribe() {
	full := func(realtime.Event) { s.enqueue("full sync", s.fullSync) }

	s.ch.On(realtime.EventScoreTransferred, func(ev realtime.Event) {
		if s.forRoom(ev) {
			s.enqueue("incremental sync", s.incrementalSync)
		}
	})
	for _, t := range []realtime.EventType{
		realtime.EventPlayerJoined,
		realtime.EventPlayerLeft,
		realtime.EventPlayerUpdated,
		realtime.EventRoomUpdated,
	} {
		s.ch.On(t, func(ev realtime.Event) {
			if s.forRoom(ev) {
				full(ev)
			}
		})
	}
	s.ch.On(realtime.EventRoomSettled, func(ev realtime.Event) {
		if !s.forRoom(ev) {
			return
		}
		s.enqueue("settled sync", func(ctx context.Context) error {
			s.markTerminal()
			return s.fullSync(ctx)
		})
	})

	s.ch.OnError(func(err error) {
		s.log.Error("session: push channel failed", "err", err)
		s.emitError(err)
	})
	s.ch.OnStateChange(func(st realtime.State, _ int) {
		if s.channelRecovered(st) {
			// pushes sent while the socket was down are lost
			s.enqueue("reconnect sync", s.fullSync)
			return
		}
		s.enqueue("channel state", func(context.Context) error {
			s.notify()
			return nil
		})
	})
}

// channelRecovered tracks channel drops and reports true on the first
// Connected after one.
func (s *Session) channelRecovered(st realtime.State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch st {
	case realtime.Reconnecting:
		s.channelDown = true
	case realtime.Connected:
		if s.channelDown {
			s.channelDown = false
			return s.phase == Live
		}
	}
	return false
}

// forRoom drops events stamped with another room id.
func (s *Session) forRoom(ev realtime.Event) bool {
	id := ev.Info().RoomID
	return id == 0 || id == s.roomID()
}

func (s *Session) markTerminal() {
	s.mu.Lock()
	s.terminal = true
	s.mu.Unlock()
}

func (s *Session) isTerminal() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.terminal
}

// fullSync reloads the room, then players and the whole transfer history
// concurrently, and replaces the cached state in one step.
func (s *Session) fullSync(ctx context.Context) error {
	roomID := s.roomID()

	room, err := s.api.Room(ctx, domain.ByID(roomID))
	if err != nil {
		return s.opError("getRoom", err)
	}

	var (
		players     []domain.Player
		transfers   []domain.TransferRecord
		settlements []domain.Settlement
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if players, err = s.api.RoomPlayers(gctx, roomID); err != nil {
			return s.opError("getRoomPlayers", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if transfers, err = s.api.RoomTransfers(gctx, roomID); err != nil {
			return s.opError("getRoomTransfers", err)
		}
		return nil
	})
	if room.IsSettled() {
		g.Go(func() error {
			var err error
			if settlements, err = s.api.RoomSettlements(gctx, roomID); err != nil {
				s.log.Warn("session: settlements unavailable", "room_id", roomID, "err", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if !s.apply(func() {
		s.room = room
		s.players = players
		s.settlements = settlements
		s.terminal = s.terminal || room.IsSettled()
		s.ledger.ReplaceAll(transfers)
	}) {
		return nil
	}
	s.notify()

	return nil
}

// incrementalSync fetches the transfers after the cursor, merges them and
// refreshes the players whose scores they changed.
func (s *Session) incrementalSync(ctx context.Context) error {
	if s.isTerminal() {
		return nil
	}
	roomID := s.roomID()

	cursor := s.ledger.Cursor()
	var (
		records []domain.TransferRecord
		err     error
	)
	if cursor == 0 {
		records, err = s.api.RoomTransfers(ctx, roomID)
	} else {
		records, err = s.api.RoomTransfersAfter(ctx, roomID, cursor)
	}
	if err != nil {
		return s.opError("getRoomTransfers", err)
	}

	players, err := s.api.RoomPlayers(ctx, roomID)
	if err != nil && !errors.Is(err, domain.ErrParseFailed) {
		return s.opError("getRoomPlayers", err)
	}

	if !s.apply(func() {
		if s.terminal {
			return
		}
		if cursor == 0 {
			s.ledger.ReplaceAll(records)
		} else {
			s.ledger.MergeIncremental(records)
		}
		if err == nil {
			s.players = players
		}
	}) {
		return nil
	}
	s.notify()

	return nil
}

// apply runs f under the state lock unless the session has been left. It
// reports whether f ran.
func (s *Session) apply(f func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil || s.phase == TornDown {
		return false
	}
	f()
	return true
}
