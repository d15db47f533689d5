package interfaces

import "supportdesk/pkg/types"

// Connection represents a live client connection
// Writes must be safe for concurrent use; implementations serialize them
// through a single writer goroutine.
type Connection interface {
	// ID returns the server-assigned connection identifier
	ID() string

	// WriteJSON sends a JSON frame to the client
	WriteJSON(v interface{}) error

	// Close closes the connection and releases its resources
	Close() error
}

// Sender delivers an encoded frame to a connection by ID
// The WebSocket registry implements it; tests substitute a recorder.
type Sender interface {
	Send(connID string, frame *types.Envelope) error
}
