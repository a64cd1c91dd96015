package domain

import (
	"errors"
	"fmt"
)

var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrRoomSettled   = errors.New("room settled")
	ErrAlreadyJoined = errors.New("already a member")
	ErrNotInRoom     = errors.New("user not in the room")
	ErrInvalidAmount = errors.New("invalid transfer amount")

	ErrLocateMissing = errors.New("missing room id or code")
	ErrLocateInvalid = errors.New("invalid room id")

	ErrFetchFailed = errors.New("fetch failed")
	ErrParseFailed = errors.New("parse failed")
)

// OpError attaches the operation name and room key to a failure so the
// caller can build a user-facing message and decide whether to retry.
type OpError struct {
	Op  string
	Key RoomKey
	Err error
}

func (e *OpError) Error() string {
	if e.Key.IsZero() {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %v", e.Op, e.Key, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// Retryable reports whether the failure is transient from the caller's
// point of view: fetch and parse failures can be retried, terminal room
// states cannot.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, ErrRoomSettled), errors.Is(err, ErrRoomNotFound):
		return false
	case errors.Is(err, ErrFetchFailed), errors.Is(err, ErrParseFailed):
		return true
	default:
		return false
	}
}
