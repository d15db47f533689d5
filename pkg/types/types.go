package types

import (
	"encoding/json"
	"time"
)

// Role identifies which side of a support conversation a connection is on
type Role string

const (
	RoleCustomer   Role = "customer"
	RoleTechnician Role = "technician"
)

// Outbound and inbound event names carried in Envelope.Event
// Names match the wire protocol used by the browser clients
const (
	EventSetRole           = "set-role"
	EventJoinRoom          = "join-room"
	EventLeaveRoom         = "leave-room"
	EventJoinQueue         = "join-queue"
	EventQueuePosition     = "queue-position"
	EventQueueUpdate       = "queue-update"
	EventAcceptChat        = "accept-chat"
	EventChatAccepted      = "chat-accepted"
	EventMessage           = "message"
	EventFileUpload        = "file-upload"
	EventFileReceived      = "file-received"
	EventEndChat           = "end-chat"
	EventChatEnded         = "chat-ended"
	EventChatHistory       = "chat-history"
	EventVideoCallRequest  = "video-call-request"
	EventVideoCallAccepted = "video-call-accepted"
	EventVideoCallDeclined = "video-call-declined"
	EventStartCall         = "start-call"
	EventCallDeclined      = "call-declined"
	EventEndCall           = "end-call"
	EventCallEnded         = "call-ended"
	EventReadyForCall      = "ready-for-call"
	EventOffer             = "offer"
	EventAnswer            = "answer"
	EventICECandidate      = "ice-candidate"
	EventError             = "error"
)

// EndedByDisconnect is the endedBy value used when a party drops mid-session
const EndedByDisconnect = "disconnect"

// Envelope is the frame exchanged over the WebSocket in both directions
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// QueueEntry is a waiting customer's record inside a category list.
// ConnectionID is private queue metadata and never leaves the server.
type QueueEntry struct {
	CustomerID   string    `json:"userId"`
	ConnectionID string    `json:"-"`
	Category     string    `json:"category"`
	DisplayName  string    `json:"name"`
	ContactEmail string    `json:"email,omitempty"`
	IssueText    string    `json:"issue"`
	JoinedAt     time.Time `json:"joinedAt"`
}

// QueueSnapshot is the full queue state: category -> waiting entries in FIFO order
type QueueSnapshot map[string][]QueueEntry

// Total returns the number of waiting entries across all categories
func (s QueueSnapshot) Total() int {
	total := 0
	for _, entries := range s {
		total += len(entries)
	}
	return total
}

// Session is the live binding between one customer and one technician in a room
type Session struct {
	RoomID                 string    `json:"roomId"`
	CustomerID             string    `json:"customerId"`
	CustomerConnectionID   string    `json:"-"`
	TechnicianConnectionID string    `json:"technicianId"`
	Category               string    `json:"category"`
	CreatedAt              time.Time `json:"createdAt"`
}

// HasParty reports whether connID is the customer or technician of the session
func (s *Session) HasParty(connID string) bool {
	return s.CustomerConnectionID == connID || s.TechnicianConnectionID == connID
}

// ChatMessage is a text message relayed inside a room
type ChatMessage struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Sender    string `json:"sender"`
	Timestamp string `json:"timestamp,omitempty"`
}

// FileData is a file announcement relayed inside a room. Content is opaque.
type FileData struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Sender  string `json:"sender"`
}

// StoredMessage is a chat message row in the persistent store
type StoredMessage struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	Sender    string    `json:"user"`
	Text      string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// StoredFile is a file record in the persistent store.
// Path is set for HTTP uploads; InlineContent for files announced over the socket.
type StoredFile struct {
	ID            string    `json:"id"`
	Filename      string    `json:"filename"`
	MimeType      string    `json:"type"`
	Path          string    `json:"-"`
	InlineContent string    `json:"content,omitempty"`
	RoomID        string    `json:"roomId"`
	Sender        string    `json:"sender"`
	Size          int64     `json:"size"`
	Timestamp     time.Time `json:"timestamp"`
}

// RoomHistory is the combined message and file history for a room
type RoomHistory struct {
	RoomID   string           `json:"roomId,omitempty"`
	Messages []*StoredMessage `json:"messages"`
	Files    []*StoredFile    `json:"files"`
}

// QueueStatus is the read-only diagnostic view of dispatcher state
type QueueStatus struct {
	QueueState  QueueSnapshot  `json:"queueState"`
	Counts      map[string]int `json:"counts"`
	Technicians int            `json:"technicians"`
	Sessions    int            `json:"sessions"`
}

// Wire payloads. Inbound payloads are decoded by the router; outbound ones are
// encoded once per publish by the relay.

// RolePayload is the set-role payload
type RolePayload struct {
	Role string `json:"role"`
}

// JoinQueuePayload is the join-queue payload
type JoinQueuePayload struct {
	UserID   string `json:"userId"`
	Category string `json:"category"`
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	Issue    string `json:"issue"`
}

// QueuePositionPayload tells a customer where it sits in its category
type QueuePositionPayload struct {
	Position int    `json:"position"`
	Category string `json:"category"`
}

// AcceptChatPayload is the accept-chat payload.
// TechnicianID is informational; the accepting connection is authoritative.
type AcceptChatPayload struct {
	TechnicianID string `json:"technicianId"`
	UserID       string `json:"userId"`
	Category     string `json:"category"`
}

// TechnicianAcceptedPayload is chat-accepted as delivered to the technician
type TechnicianAcceptedPayload struct {
	ChatRoomID string     `json:"chatRoomId"`
	User       QueueEntry `json:"user"`
}

// CustomerAcceptedPayload is chat-accepted as delivered to the customer
type CustomerAcceptedPayload struct {
	ChatRoomID     string `json:"chatRoomId"`
	TechnicianID   string `json:"technicianId"`
	TechnicianName string `json:"technicianName"`
}

// MessagePayload carries a chat message in both directions
type MessagePayload struct {
	RoomID  string      `json:"roomId"`
	Message ChatMessage `json:"message"`
}

// FilePayload carries file-upload inbound and file-received outbound
type FilePayload struct {
	RoomID   string   `json:"roomId"`
	FileData FileData `json:"fileData"`
}

// ChatEndedPayload is end-chat inbound and chat-ended outbound
type ChatEndedPayload struct {
	ChatID  string `json:"chatId"`
	EndedBy string `json:"endedBy"`
}

// CallPayload is the video-call control payload
type CallPayload struct {
	ChatID string `json:"chatId,omitempty"`
	RoomID string `json:"roomId,omitempty"`
	Caller string `json:"caller,omitempty"`
}

// StartCallPayload is start-call, computed per recipient
type StartCallPayload struct {
	RoomID   string `json:"roomId"`
	IsCaller bool   `json:"isCaller"`
}

// ChatHistoryPayload replays a room's archive to a joining connection
type ChatHistoryPayload struct {
	RoomID   string           `json:"roomId"`
	Messages []*StoredMessage `json:"messages"`
	Files    []*StoredFile    `json:"files"`
}

// ErrorPayload is the error event sent to the originating connection
type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	UserID  string `json:"userId,omitempty"`
}

// Error codes carried in ErrorPayload.Code
const (
	ErrCodeInvalidPayload = "invalid_payload"
	ErrCodeInvalidRole    = "invalid_role"
	ErrCodeNotFound       = "not_found"
	ErrCodeAlreadyQueued  = "already_queued"
	ErrCodeRoomActive     = "room_active"
	ErrCodeForbidden      = "forbidden"
	ErrCodeRateLimited    = "rate_limited"
	ErrCodeUnknownEvent   = "unknown_event"
	ErrCodeInternal       = "internal_error"
)
