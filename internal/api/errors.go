package api

import (
	"fmt"
	"strings"

	"github.com/cwrk-planet/room-sync/internal/domain"
	"github.com/cwrk-planet/room-sync/internal/protocol"
	"github.com/cwrk-planet/room-sync/pkg/errs"
)

// Error is a business failure reported inside the response envelope.
type Error struct {
	Op      string
	Code    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: code=%d message=%q", e.Op, e.Code, e.Message)
}

func (e *Error) Reason() string { return e.Message }

// Unwrap maps the envelope onto the domain sentinels so callers can use
// errors.Is without knowing the backend's wording.
func (e *Error) Unwrap() error {
	msg := strings.ToLower(e.Message)
	switch {
	case strings.Contains(msg, protocol.MsgRoomSettled), strings.Contains(e.Message, "房间已结算"):
		return domain.ErrRoomSettled
	case alreadyMember(e.Message), e.Code == 409:
		return domain.ErrAlreadyJoined
	case strings.Contains(msg, protocol.MsgNotInRoom):
		return domain.ErrNotInRoom
	case e.Code == 404, strings.Contains(msg, "not found"), strings.Contains(e.Message, "房间不存在"):
		return domain.ErrRoomNotFound
	case e.Code == 400:
		return errs.ErrInvalidInput
	default:
		return errs.ErrUpstream
	}
}

func alreadyMember(message string) bool {
	return strings.Contains(strings.ToLower(message), protocol.MsgAlreadyMember) ||
		strings.Contains(message, "已在房间中")
}
