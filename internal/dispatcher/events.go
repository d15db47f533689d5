package dispatcher

import (
	"encoding/json"

	"supportdesk/pkg/types"
)

// Event is one inbound unit of work for the dispatcher.
// The concrete types below are the only variants; Dispatch switches over them.
type Event interface {
	// Origin returns the connection that produced the event, or "" for internal queries
	Origin() string
}

// SetRole records the role a connection plays
type SetRole struct {
	ConnID string
	Role   string
}

// JoinRoom subscribes a connection to a room
type JoinRoom struct {
	ConnID string
	RoomID string
}

// LeaveRoom unsubscribes a connection from a room
type LeaveRoom struct {
	ConnID string
	RoomID string
}

// JoinQueue places a customer into a category queue
type JoinQueue struct {
	ConnID       string
	CustomerID   string
	Category     string
	DisplayName  string
	ContactEmail string
	IssueText    string
}

// AcceptChat is a technician taking a waiting customer.
// ConnID is the technician's connection; the payload's technicianId is not trusted.
type AcceptChat struct {
	ConnID     string
	CustomerID string
	Category   string
}

// EndChat closes the session bound to RoomID
type EndChat struct {
	ConnID  string
	RoomID  string
	EndedBy string
}

// Disconnect tears down everything a connection owns
type Disconnect struct {
	ConnID string
}

// ChatMessage is a text message relayed to a room
type ChatMessage struct {
	ConnID  string
	RoomID  string
	Message types.ChatMessage
}

// FileUpload is a file announcement relayed to a room
type FileUpload struct {
	ConnID string
	RoomID string
	File   types.FileData
}

// Signal is video-call control or WebRTC signaling traffic.
// Payload is forwarded untouched for offer, answer and ice-candidate.
type Signal struct {
	ConnID  string
	Event   string
	RoomID  string
	Caller  string
	Payload json.RawMessage
}

// StatusQuery asks for a read-only view of the dispatcher state.
// Reply must be buffered; the dispatcher never blocks on it.
type StatusQuery struct {
	Reply chan types.QueueStatus
}

func (e SetRole) Origin() string     { return e.ConnID }
func (e JoinRoom) Origin() string    { return e.ConnID }
func (e LeaveRoom) Origin() string   { return e.ConnID }
func (e JoinQueue) Origin() string   { return e.ConnID }
func (e AcceptChat) Origin() string  { return e.ConnID }
func (e EndChat) Origin() string     { return e.ConnID }
func (e Disconnect) Origin() string  { return e.ConnID }
func (e ChatMessage) Origin() string { return e.ConnID }
func (e FileUpload) Origin() string  { return e.ConnID }
func (e Signal) Origin() string      { return e.ConnID }
func (e StatusQuery) Origin() string { return "" }

// SessionRoomPrefix marks rooms created by accept-chat
const SessionRoomPrefix = "chat-"

// RoomID derives the session room for a customer accepted by a technician connection.
// Unique while the technician connection lives because a customer waits in at most one list.
func RoomID(customerID, technicianConnID string) string {
	return SessionRoomPrefix + customerID + "-" + technicianConnID
}
