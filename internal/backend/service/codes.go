package service

import "github.com/google/uuid"

// roomCodeAlphabet leaves out 0/O and 1/I, which players misread.
const roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const RoomCodeLen = 6

// NewRoomCode returns a random upper-case code drawn from a v4 uuid.
func NewRoomCode() string {
	id := uuid.New()
	code := make([]byte, RoomCodeLen)
	for i := range code {
		code[i] = roomCodeAlphabet[int(id[i])%len(roomCodeAlphabet)]
	}
	return string(code)
}
