package types

import "errors"

// Validation errors shared by the socket protocol and the HTTP API
var (
	ErrInvalidCustomerID = errors.New("user ID must be 1-64 characters: letters, digits, and _ - . : @")
	ErrInvalidCategory   = errors.New("category must be 1-50 characters without control characters")
	ErrInvalidRole       = errors.New("role must be 'customer' or 'technician'")
	ErrInvalidRoomID     = errors.New("room ID must be 1-200 characters")
	ErrNameTooLong       = errors.New("name exceeds 100 characters")
	ErrIssueTooLong      = errors.New("issue exceeds 2000 characters")
	ErrEmptyMessage      = errors.New("message text cannot be empty")
	ErrContentTooLarge   = errors.New("message content exceeds 64KB limit")
)
