package database

import "errors"

var (
	ErrManagerClosed = errors.New("database manager is closed")
	ErrWriteTimeout  = errors.New("write operation timeout")
	ErrInvalidRecord = errors.New("record is missing required fields")
)
