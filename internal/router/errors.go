package router

import "errors"

var (
	ErrInvalidFrame      = errors.New("frame must be a JSON object with an event field")
	ErrUnknownEvent      = errors.New("unknown event")
	ErrInvalidPayload    = errors.New("invalid payload")
	ErrMissingRoomID     = errors.New("payload is missing roomId")
	ErrRateLimitExceeded = errors.New("rate limit exceeded: 100 messages per minute")
)
