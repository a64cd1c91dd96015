package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/cwrk-planet/room-sync/internal/domain"
	"github.com/cwrk-planet/room-sync/internal/realtime"
)

// Transfer moves amount points from the viewer to toUserID. The ledger is
// refreshed asynchronously; the push event for the same record triggers a
// second merge that changes nothing.
func (s *Session) Transfer(ctx context.Context, toUserID, amount int64) (domain.TransferRecord, error) {
	s.mu.RLock()
	phase, terminal, userID := s.phase, s.terminal, s.userID
	roomID, _ := s.key.ID()
	s.mu.RUnlock()

	if phase != Live {
		return domain.TransferRecord{}, ErrNotLive
	}
	if terminal {
		return domain.TransferRecord{}, domain.ErrRoomSettled
	}
	if amount <= 0 {
		return domain.TransferRecord{}, fmt.Errorf("%w: %d", domain.ErrInvalidAmount, amount)
	}
	if toUserID == userID {
		return domain.TransferRecord{}, fmt.Errorf("%w: cannot transfer to yourself", domain.ErrInvalidAmount)
	}

	rec, err := s.api.TransferScore(ctx, roomID, userID, toUserID, amount)
	if err != nil {
		if errors.Is(err, domain.ErrRoomSettled) {
			s.enqueue("settled sync", func(ctx context.Context) error {
				s.markTerminal()
				return s.fullSync(ctx)
			})
		}
		return domain.TransferRecord{}, s.opError("transferScore", err)
	}
	s.log.Info("session: transfer sent", "room_id", roomID, "to_user_id", toUserID, "amount", amount, "transfer_id", rec.ID)

	s.enqueue("incremental sync", s.incrementalSync)

	return rec, nil
}

// Settle closes the room on the server and waits for the settled state to
// be loaded.
func (s *Session) Settle(ctx context.Context) ([]domain.Settlement, error) {
	s.mu.RLock()
	phase, userID := s.phase, s.userID
	roomID, _ := s.key.ID()
	s.mu.RUnlock()

	if phase != Live {
		return nil, ErrNotLive
	}

	settlements, err := s.api.SettleRoom(ctx, roomID, userID)
	if err != nil && !errors.Is(err, domain.ErrRoomSettled) {
		return nil, s.opError("settleRoom", err)
	}

	err = s.await(ctx, "settled sync", func(ctx context.Context) error {
		s.markTerminal()
		return s.fullSync(ctx)
	})
	if err != nil {
		return settlements, err
	}
	if len(settlements) == 0 {
		settlements = s.View().Settlements
	}

	return settlements, nil
}

// Resync reloads everything. It is the manual retry after a background
// failure, and reopens the push channel once it has given up.
func (s *Session) Resync(ctx context.Context) error {
	s.mu.RLock()
	phase, userID := s.phase, s.userID
	roomID, _ := s.key.ID()
	s.mu.RUnlock()

	if phase != Live {
		if phase == TornDown {
			return ErrClosed
		}
		return ErrNotLive
	}
	if s.ch.State() == realtime.Disconnected {
		if err := s.ch.Connect(ctx, roomID, userID); err != nil {
			s.log.Warn("session: push channel not reconnected", "room_id", roomID, "err", err)
		}
	}
	return s.await(ctx, "resync", s.fullSync)
}
