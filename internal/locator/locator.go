// Package locator turns the raw entry parameters of a room page (explicit id,
// short code, or a scanned scene string) into a canonical room key.
package locator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cwrk-planet/room-sync/internal/domain"
)

const (
	SceneRoomID   = "roomId"
	SceneRoomCode = "roomCode"
)

type Input struct {
	RawID    string
	RawCode  string
	RawScene string
}

// Locate resolves the room key. An explicit id wins over an explicit code,
// which wins over whatever the scene carries.
func Locate(in Input) (domain.RoomKey, error) {
	if raw, ok := present(in.RawID); ok {
		id, err := parseID(raw)
		if err != nil {
			return domain.RoomKey{}, err
		}
		return domain.ByID(id), nil
	}

	if code, ok := present(in.RawCode); ok {
		return domain.ByCode(code), nil
	}

	scene := ParseScene(in.RawScene)
	if raw, ok := scene.Get(SceneRoomID); ok && isDigits(raw) {
		id, err := parseID(raw)
		if err != nil {
			return domain.RoomKey{}, err
		}
		return domain.ByID(id), nil
	}
	if code, ok := scene.Get(SceneRoomCode); ok {
		if code, ok := present(code); ok {
			return domain.ByCode(code), nil
		}
	}

	return domain.RoomKey{}, domain.ErrLocateMissing
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", domain.ErrLocateInvalid, raw)
	}
	if id <= 0 {
		return 0, fmt.Errorf("%w: %d", domain.ErrLocateInvalid, id)
	}
	return id, nil
}

// present filters the placeholder strings the host runtime produces for
// unset query parameters.
func present(s string) (string, bool) {
	s = strings.TrimSpace(s)
	switch s {
	case "", "undefined", "null":
		return "", false
	}
	return s, true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
