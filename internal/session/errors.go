package session

import "errors"

var (
	ErrDuplicateRoom       = errors.New("a session already exists for this room")
	ErrInvalidRoomID       = errors.New("room ID cannot be empty")
	ErrInvalidParticipants = errors.New("session requires a customer and a technician connection")
)
