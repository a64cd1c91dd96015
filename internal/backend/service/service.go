// Package service holds the business rules of the reference backend.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/cwrk-planet/room-sync/internal/backend/store"
	"github.com/cwrk-planet/room-sync/internal/domain"
	"github.com/cwrk-planet/room-sync/internal/protocol"
	"github.com/cwrk-planet/room-sync/pkg/errs"
	"github.com/cwrk-planet/room-sync/pkg/logger"
)

const codeAttempts = 5

// Notifier fans push messages out to a room's connections and reports how
// many received them.
type Notifier interface {
	Broadcast(roomID int64, msg protocol.PushMessage) int
}

type nopNotifier struct{}

func (nopNotifier) Broadcast(int64, protocol.PushMessage) int { return 0 }

type RoomService struct {
	store    store.Store
	notifier Notifier
	newCode  func() string
	log      *slog.Logger
}

func NewRoomService(st store.Store, n Notifier, log *slog.Logger) *RoomService {
	if n == nil {
		n = nopNotifier{}
	}
	return &RoomService{
		store:    st,
		notifier: n,
		newCode:  NewRoomCode,
		log:      logger.Or(log).With("component", "room_service"),
	}
}

// SetNotifier swaps the push fan-out; the ws hub is built after the service.
func (s *RoomService) SetNotifier(n Notifier) {
	if n != nil {
		s.notifier = n
	}
}

// CreateRoom opens a room with a fresh code and seats the creator.
func (s *RoomService) CreateRoom(ctx context.Context, creatorID int64, name, nickname string) (domain.Room, error) {
	if creatorID <= 0 {
		return domain.Room{}, fmt.Errorf("%w: creator_id", errs.ErrInvalidInput)
	}
	name = strings.TrimSpace(name)

	for i := 0; i < codeAttempts; i++ {
		room := domain.Room{
			Code:      s.newCode(),
			Name:      name,
			CreatorID: creatorID,
			Status:    domain.RoomActive,
		}
		if room.Name == "" {
			room.Name = "Room " + room.Code
		}
		creator := domain.Player{UserID: creatorID, Nickname: nicknameOr(nickname, creatorID)}

		err := s.store.CreateRoom(ctx, &room, creator)
		if errors.Is(err, store.ErrCodeTaken) {
			s.log.Debug("room code collision, retrying", "code", room.Code)
			continue
		}
		if err != nil {
			return domain.Room{}, fmt.Errorf("store.CreateRoom: %w", err)
		}
		s.log.Info("room created", "room_id", room.ID, "code", room.Code, "creator_id", creatorID)
		return room, nil
	}

	return domain.Room{}, fmt.Errorf("create room: no free code after %d attempts", codeAttempts)
}

func (s *RoomService) GetRoom(ctx context.Context, key domain.RoomKey) (domain.Room, error) {
	if id, ok := key.ID(); ok {
		return s.store.Room(ctx, id)
	}
	if code, ok := key.Code(); ok {
		return s.store.RoomByCode(ctx, strings.ToUpper(code))
	}
	return domain.Room{}, fmt.Errorf("%w: room_id or room_code", errs.ErrInvalidInput)
}

func (s *RoomService) Players(ctx context.Context, roomID int64) ([]domain.Player, error) {
	return s.store.Players(ctx, roomID)
}

// Transfers lists the history newest first; afterID 0 means all of it.
func (s *RoomService) Transfers(ctx context.Context, roomID, afterID int64) ([]domain.TransferRecord, error) {
	if afterID < 0 {
		return nil, fmt.Errorf("%w: after_id", errs.ErrInvalidInput)
	}
	return s.store.Transfers(ctx, roomID, afterID)
}

func (s *RoomService) Settlements(ctx context.Context, roomID int64) ([]domain.Settlement, error) {
	return s.store.Settlements(ctx, roomID)
}

// JoinRoom seats userID. A repeated join returns domain.ErrAlreadyJoined,
// which callers treat as success.
func (s *RoomService) JoinRoom(ctx context.Context, roomID, userID int64, nickname string) error {
	if userID <= 0 {
		return fmt.Errorf("%w: user_id", errs.ErrInvalidInput)
	}
	p := domain.Player{RoomID: roomID, UserID: userID, Nickname: nicknameOr(nickname, userID)}
	if err := s.store.AddPlayer(ctx, &p); err != nil {
		return err
	}

	s.log.Info("player joined", "room_id", roomID, "user_id", userID)
	s.broadcast(roomID, protocol.TypePlayerJoined, protocol.PlayerEventPayload{
		RoomID:   roomID,
		UserID:   userID,
		Nickname: p.Nickname,
	})

	return nil
}

// TransferScore moves amount from one member to another. Scores may go
// negative.
func (s *RoomService) TransferScore(ctx context.Context, roomID, fromUserID, toUserID, amount int64) (domain.TransferRecord, error) {
	if amount <= 0 {
		return domain.TransferRecord{}, fmt.Errorf("%w: %d", domain.ErrInvalidAmount, amount)
	}
	if fromUserID == toUserID {
		return domain.TransferRecord{}, fmt.Errorf("%w: same user", domain.ErrInvalidAmount)
	}

	rec := domain.TransferRecord{RoomID: roomID, FromUserID: fromUserID, ToUserID: toUserID, Amount: amount}
	if err := s.store.Transfer(ctx, &rec); err != nil {
		return domain.TransferRecord{}, err
	}

	s.log.Info("score transferred", "room_id", roomID, "transfer_id", rec.ID,
		"from_user_id", fromUserID, "to_user_id", toUserID, "amount", amount)
	s.broadcast(roomID, protocol.TypeScoreTransferred, protocol.TransferEventPayload{Transfer: rec})

	return rec, nil
}

// SettleRoom closes the room. Only a member may settle.
func (s *RoomService) SettleRoom(ctx context.Context, roomID, userID int64) ([]domain.Settlement, error) {
	players, err := s.store.Players(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !domain.HasPlayer(players, userID) {
		return nil, domain.ErrNotInRoom
	}

	settlements, final, err := s.store.Settle(ctx, roomID, Plan)
	if err != nil {
		return nil, err
	}

	s.log.Info("room settled", "room_id", roomID, "by_user_id", userID, "movements", len(settlements))
	s.broadcast(roomID, protocol.TypeRoomSettled, protocol.SettledEventPayload{
		Settlements: settlements,
		Players:     final,
	})
	s.broadcast(roomID, protocol.TypeRoomUpdated, protocol.RoomEventPayload{
		RoomID: roomID,
		Status: domain.RoomSettled,
	})

	return settlements, nil
}

func (s *RoomService) broadcast(roomID int64, eventType string, payload any) {
	msg, err := protocol.NewPushMessage(eventType, roomID, payload)
	if err != nil {
		s.log.Error("encode push message", "type", eventType, "err", err)
		return
	}
	n := s.notifier.Broadcast(roomID, msg)
	s.log.Debug("push sent", "room_id", roomID, "type", eventType, "delivered", n)
}

func nicknameOr(nickname string, userID int64) string {
	if n := strings.TrimSpace(nickname); n != "" {
		return n
	}
	return "player " + strconv.FormatInt(userID, 10)
}
