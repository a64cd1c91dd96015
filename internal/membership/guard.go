// Package membership makes sure the viewing user is a participant of the
// room before the room is shown, joining on their behalf when needed.
package membership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cwrk-planet/room-sync/internal/domain"
	"github.com/cwrk-planet/room-sync/pkg/logger"
)

type Result int

const (
	AlreadyMember Result = iota + 1
	Joined
	RoomSettled
	RoomNotFound
	JoinFailed
)

func (r Result) String() string {
	switch r {
	case AlreadyMember:
		return "already_member"
	case Joined:
		return "joined"
	case RoomSettled:
		return "room_settled"
	case RoomNotFound:
		return "room_not_found"
	case JoinFailed:
		return "join_failed"
	default:
		return "unknown"
	}
}

// Member reports whether the user can proceed into the room.
func (r Result) Member() bool { return r == AlreadyMember || r == Joined }

type Outcome struct {
	Result Result
	RoomID int64
	// Reason is the server message for JoinFailed.
	Reason string
}

type RoomAPI interface {
	Room(ctx context.Context, key domain.RoomKey) (domain.Room, error)
	RoomPlayers(ctx context.Context, roomID int64) ([]domain.Player, error)
	JoinRoom(ctx context.Context, userID, roomID int64) error
}

type Guard struct {
	api RoomAPI
	log *slog.Logger
}

func NewGuard(api RoomAPI, log *slog.Logger) *Guard {
	return &Guard{api: api, log: logger.Or(log)}
}

// EnsureMember classifies the user's membership, joining when absent. The
// error return is reserved for retryable fetch and parse failures; terminal
// room states come back as an Outcome.
func (g *Guard) EnsureMember(ctx context.Context, key domain.RoomKey, userID int64) (Outcome, error) {
	roomID, ok := key.ID()
	if !ok {
		room, err := g.api.Room(ctx, key)
		if err != nil {
			if errors.Is(err, domain.ErrRoomNotFound) {
				return Outcome{Result: RoomNotFound}, nil
			}
			return Outcome{}, opError("getRoom", key, err)
		}
		roomID = room.ID
	}

	players, err := g.api.RoomPlayers(ctx, roomID)
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			return Outcome{Result: RoomNotFound, RoomID: roomID}, nil
		}
		return Outcome{}, opError("getRoomPlayers", domain.ByID(roomID), err)
	}
	if domain.HasPlayer(players, userID) {
		return Outcome{Result: AlreadyMember, RoomID: roomID}, nil
	}

	g.log.Info("membership: user not in room, joining", "room_id", roomID, "user_id", userID)

	err = g.api.JoinRoom(ctx, userID, roomID)
	switch {
	case err == nil:
		return Outcome{Result: Joined, RoomID: roomID}, nil
	case errors.Is(err, domain.ErrAlreadyJoined):
		// joined concurrently between the list fetch and the join call
		g.log.Debug("membership: join raced, already a member", "room_id", roomID, "user_id", userID)
		return Outcome{Result: AlreadyMember, RoomID: roomID}, nil
	case errors.Is(err, domain.ErrRoomSettled):
		return Outcome{Result: RoomSettled, RoomID: roomID}, nil
	case errors.Is(err, domain.ErrRoomNotFound):
		return Outcome{Result: RoomNotFound, RoomID: roomID}, nil
	default:
		g.log.Warn("membership: join failed", "room_id", roomID, "user_id", userID, "err", err)
		return Outcome{Result: JoinFailed, RoomID: roomID, Reason: reason(err)}, nil
	}
}

func opError(op string, key domain.RoomKey, err error) error {
	if !errors.Is(err, domain.ErrFetchFailed) && !errors.Is(err, domain.ErrParseFailed) {
		err = fmt.Errorf("%w: %w", domain.ErrFetchFailed, err)
	}
	return &domain.OpError{Op: op, Key: key, Err: err}
}

// reasoner is implemented by collaborator errors that carry a user-facing
// server message.
type reasoner interface{ Reason() string }

func reason(err error) string {
	var r reasoner
	if errors.As(err, &r) && r.Reason() != "" {
		return r.Reason()
	}
	return err.Error()
}
