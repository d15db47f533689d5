package interfaces

import (
	"context"

	"supportdesk/pkg/types"
)

// MessageStore persists chat messages and file records
// The dispatcher archives through it asynchronously; the HTTP API reads and
// writes through it directly.
type MessageStore interface {
	// AppendMessage persists a chat message
	AppendMessage(ctx context.Context, message *types.StoredMessage) error

	// ListMessages returns all messages ordered by timestamp.
	// An empty roomID lists every room.
	ListMessages(ctx context.Context, roomID string) ([]*types.StoredMessage, error)

	// CreateFile persists a file record
	CreateFile(ctx context.Context, file *types.StoredFile) error

	// GetFile retrieves a file record by ID
	GetFile(ctx context.Context, fileID string) (*types.StoredFile, error)

	// FilesForRoom returns the file records attached to a room
	FilesForRoom(ctx context.Context, roomID string) ([]*types.StoredFile, error)

	// RoomHistory returns the messages and files of a room
	RoomHistory(ctx context.Context, roomID string) (*types.RoomHistory, error)

	// HealthCheck verifies database connectivity
	HealthCheck(ctx context.Context) error

	// Close closes the store
	Close() error
}

// StateObserver receives dispatcher state changes after each transition.
// Implementations must not block; the dispatcher goroutine calls them inline.
type StateObserver interface {
	QueueChanged(snapshot types.QueueSnapshot)
	SessionOpened(session *types.Session)
	SessionClosed(roomID string)
}
