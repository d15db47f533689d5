package queue

import "errors"

var (
	ErrNotFound = errors.New("customer not found in queue")
)
