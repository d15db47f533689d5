package interfaces

import "errors"

// Common interface errors used across components
var (
	ErrRecordNotFound     = errors.New("record not found")
	ErrConnectionNotFound = errors.New("connection not found")
)
