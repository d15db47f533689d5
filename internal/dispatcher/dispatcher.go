package dispatcher

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"supportdesk/internal/queue"
	"supportdesk/internal/registry"
	"supportdesk/internal/relay"
	"supportdesk/internal/rooms"
	"supportdesk/internal/session"
	"supportdesk/pkg/interfaces"
	"supportdesk/pkg/types"
)

// Config holds dispatcher settings
type Config struct {
	// Categories always present in queue snapshots
	Categories []string
	// TechnicianName is shown to customers in chat-accepted
	TechnicianName string
}

// DefaultConfig returns the stock categories and technician label
func DefaultConfig() Config {
	return Config{
		Categories:     []string{"tech", "billing", "general"},
		TechnicianName: "Support Agent",
	}
}

// Dispatcher is the queue/session state machine.
// All state is owned by the goroutine calling Dispatch; it takes no locks.
type Dispatcher struct {
	config   Config
	registry *registry.Registry
	queue    *queue.Store
	sessions *session.Directory
	members  *rooms.Membership
	relay    *relay.Relay
	archiver *Archiver
	observer interfaces.StateObserver
	now      func() time.Time
	newID    func() string
}

// New creates a dispatcher with empty state that delivers through sender
func New(config Config, sender interfaces.Sender) *Dispatcher {
	members := rooms.NewMembership()
	return &Dispatcher{
		config:   config,
		registry: registry.New(),
		queue:    queue.NewStore(config.Categories...),
		sessions: session.NewDirectory(),
		members:  members,
		relay:    relay.New(members, sender),
		observer: nopObserver{},
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

// SetArchiver enables message/file persistence and history replay
func (d *Dispatcher) SetArchiver(archiver *Archiver) {
	d.archiver = archiver
}

// SetObserver registers a receiver for state changes
func (d *Dispatcher) SetObserver(observer interfaces.StateObserver) {
	if observer == nil {
		observer = nopObserver{}
	}
	d.observer = observer
}

// Unicast delivers a single event. It does not read membership and may be called from any goroutine.
func (d *Dispatcher) Unicast(connID, event string, payload any) bool {
	return d.relay.Unicast(connID, event, payload)
}

// Dispatch processes one event to completion
func (d *Dispatcher) Dispatch(ev Event) {
	switch e := ev.(type) {
	case SetRole:
		d.handleSetRole(e)
	case JoinRoom:
		d.handleJoinRoom(e)
	case LeaveRoom:
		d.members.Leave(e.ConnID, e.RoomID)
	case JoinQueue:
		d.handleJoinQueue(e)
	case AcceptChat:
		d.handleAcceptChat(e)
	case EndChat:
		d.handleEndChat(e)
	case Disconnect:
		d.handleDisconnect(e)
	case ChatMessage:
		d.handleChatMessage(e)
	case FileUpload:
		d.handleFileUpload(e)
	case Signal:
		d.handleSignal(e)
	case StatusQuery:
		d.handleStatusQuery(e)
	default:
		log.Printf("Dispatcher: unhandled event type %T", ev)
	}
}

func (d *Dispatcher) handleSetRole(e SetRole) {
	role, err := types.ParseRole(e.Role)
	if err != nil {
		d.sendError(e.ConnID, types.ErrCodeInvalidRole, err.Error(), "")
		return
	}

	if previous, ok := d.registry.RoleOf(e.ConnID); ok && previous == types.RoleTechnician && role != types.RoleTechnician {
		d.members.Leave(e.ConnID, rooms.TechniciansRoom)
	}
	d.registry.SetRole(e.ConnID, role)
	log.Printf("Connection %s assigned role: %s", e.ConnID, role)

	if role == types.RoleTechnician {
		d.members.Join(e.ConnID, rooms.TechniciansRoom)
		d.relay.Unicast(e.ConnID, types.EventQueueUpdate, d.queue.Snapshot())
	}
}

func (d *Dispatcher) handleJoinRoom(e JoinRoom) {
	if !types.IsValidRoomID(e.RoomID) {
		d.sendError(e.ConnID, types.ErrCodeInvalidPayload, types.ErrInvalidRoomID.Error(), "")
		return
	}
	if e.RoomID == rooms.TechniciansRoom {
		d.sendError(e.ConnID, types.ErrCodeForbidden, "technicians group is joined through set-role", "")
		return
	}

	live := d.sessions.Exists(e.RoomID)
	if !live && strings.HasPrefix(e.RoomID, SessionRoomPrefix) {
		d.sendError(e.ConnID, types.ErrCodeNotFound, fmt.Sprintf("Chat %s is not active", e.RoomID), "")
		return
	}

	d.members.Join(e.ConnID, e.RoomID)
	log.Printf("Connection %s joined room %s", e.ConnID, e.RoomID)

	if d.archiver != nil && live {
		d.archiver.ReplayHistory(e.RoomID, e.ConnID)
	}
}

func (d *Dispatcher) handleJoinQueue(e JoinQueue) {
	entry := types.QueueEntry{
		CustomerID:   e.CustomerID,
		ConnectionID: e.ConnID,
		Category:     e.Category,
		DisplayName:  e.DisplayName,
		ContactEmail: e.ContactEmail,
		IssueText:    e.IssueText,
		JoinedAt:     d.now(),
	}
	if err := entry.Validate(); err != nil {
		d.sendError(e.ConnID, types.ErrCodeInvalidPayload, err.Error(), e.CustomerID)
		return
	}

	if category, queued := d.queue.Contains(entry.CustomerID); queued {
		d.sendError(e.ConnID, types.ErrCodeAlreadyQueued,
			fmt.Sprintf("User %s is already waiting in the %s queue", entry.CustomerID, category), entry.CustomerID)
		return
	}

	position := d.queue.Enqueue(entry.Category, entry)
	log.Printf("User %s (%s) joined %s queue, %d waiting", entry.CustomerID, entry.DisplayName, entry.Category, d.queue.Len(entry.Category))

	d.broadcastQueue()

	d.relay.Unicast(e.ConnID, types.EventQueuePosition, types.QueuePositionPayload{
		Position: position,
		Category: entry.Category,
	})
}

func (d *Dispatcher) handleAcceptChat(e AcceptChat) {
	if role, ok := d.registry.RoleOf(e.ConnID); ok && role != types.RoleTechnician {
		d.sendError(e.ConnID, types.ErrCodeForbidden, "Only technicians can accept chats", e.CustomerID)
		return
	}

	if _, found := d.queue.Find(e.Category, e.CustomerID); !found {
		log.Printf("User %s not found in %s queue", e.CustomerID, e.Category)
		d.sendError(e.ConnID, types.ErrCodeNotFound,
			fmt.Sprintf("User %s not found in queue", e.CustomerID), e.CustomerID)
		return
	}

	// the room is checked before the entry moves so a refusal leaves the queue intact
	roomID := RoomID(e.CustomerID, e.ConnID)
	if d.sessions.Exists(roomID) {
		d.sendError(e.ConnID, types.ErrCodeRoomActive,
			fmt.Sprintf("Chat %s is already active", roomID), e.CustomerID)
		return
	}

	entry, err := d.queue.DequeueByCustomerID(e.Category, e.CustomerID)
	if err != nil {
		d.sendError(e.ConnID, types.ErrCodeNotFound,
			fmt.Sprintf("User %s not found in queue", e.CustomerID), e.CustomerID)
		return
	}

	sess, err := d.sessions.Create(roomID, entry.CustomerID, entry.ConnectionID, e.ConnID, entry.Category)
	if err != nil {
		// unreachable while the room check above holds; the entry is discarded
		log.Printf("INVARIANT VIOLATION: accept-chat for %s refused: %v", roomID, err)
		d.sendError(e.ConnID, types.ErrCodeInternal, "Chat could not be created", e.CustomerID)
		d.broadcastQueue()
		return
	}

	d.members.Join(e.ConnID, roomID)

	d.relay.Unicast(e.ConnID, types.EventChatAccepted, types.TechnicianAcceptedPayload{
		ChatRoomID: roomID,
		User:       entry,
	})
	d.relay.Unicast(entry.ConnectionID, types.EventChatAccepted, types.CustomerAcceptedPayload{
		ChatRoomID:     roomID,
		TechnicianID:   e.ConnID,
		TechnicianName: d.config.TechnicianName,
	})
	d.relay.Unicast(entry.ConnectionID, types.EventJoinRoom, roomID)

	d.broadcastQueue()
	d.observer.SessionOpened(sess)
	log.Printf("Technician %s accepted %s from %s queue: room=%s", e.ConnID, entry.CustomerID, entry.Category, roomID)
}

func (d *Dispatcher) handleEndChat(e EndChat) {
	sess, exists := d.sessions.Get(e.RoomID)
	if !exists {
		return
	}
	if !sess.HasParty(e.ConnID) && !d.members.IsMember(e.ConnID, e.RoomID) {
		d.sendError(e.ConnID, types.ErrCodeForbidden, "Only chat participants can end a chat", "")
		return
	}

	endedBy := e.EndedBy
	if role, ok := d.registry.RoleOf(e.ConnID); ok {
		endedBy = string(role)
	}
	d.endSession(e.RoomID, endedBy, "")
}

// endSession sends chat-ended to every member and to any party that has not
// joined yet, then empties the room and destroys the session. gone names a
// connection that is already closed and must not be written to.
// Absent sessions are a no-op so duplicate end-chat deliveries are harmless.
func (d *Dispatcher) endSession(roomID, endedBy, gone string) bool {
	sess, exists := d.sessions.Get(roomID)
	if !exists {
		return false
	}

	payload := types.ChatEndedPayload{
		ChatID:  roomID,
		EndedBy: endedBy,
	}
	d.relay.Publish(roomID, types.EventChatEnded, payload)
	for _, party := range []string{sess.CustomerConnectionID, sess.TechnicianConnectionID} {
		if party != "" && party != gone && !d.members.IsMember(party, roomID) {
			d.relay.Unicast(party, types.EventChatEnded, payload)
		}
	}
	d.members.Clear(roomID)
	d.sessions.Destroy(roomID)
	d.observer.SessionClosed(roomID)

	log.Printf("Chat %s ended by %s", roomID, endedBy)
	return true
}

func (d *Dispatcher) handleDisconnect(e Disconnect) {
	d.registry.Remove(e.ConnID)

	removed := d.queue.RemoveByConnectionID(e.ConnID)
	for _, r := range removed {
		log.Printf("Removing disconnected user %s from %s queue", r.Entry.CustomerID, r.Category)
		d.broadcastQueue()
	}

	for _, sess := range d.sessions.ByConnection(e.ConnID) {
		d.members.Leave(e.ConnID, sess.RoomID)
		d.endSession(sess.RoomID, types.EndedByDisconnect, e.ConnID)
	}

	d.members.RemoveConnection(e.ConnID)
	log.Printf("Connection %s disconnected", e.ConnID)
}

// senderFor returns the recorded role, falling back to the payload-supplied sender
func (d *Dispatcher) senderFor(connID, claimed string) string {
	if role, ok := d.registry.RoleOf(connID); ok {
		return string(role)
	}
	return claimed
}

func (d *Dispatcher) handleChatMessage(e ChatMessage) {
	if !types.IsValidRoomID(e.RoomID) {
		d.sendError(e.ConnID, types.ErrCodeInvalidPayload, types.ErrInvalidRoomID.Error(), "")
		return
	}
	msg := e.Message
	if err := msg.Validate(); err != nil {
		d.sendError(e.ConnID, types.ErrCodeInvalidPayload, err.Error(), "")
		return
	}

	msg.Sender = d.senderFor(e.ConnID, msg.Sender)
	if msg.ID == "" {
		msg.ID = d.newID()
	}
	if msg.Timestamp == "" {
		msg.Timestamp = d.now().UTC().Format(time.RFC3339Nano)
	}

	d.relay.Publish(e.RoomID, types.EventMessage, types.MessagePayload{
		RoomID:  e.RoomID,
		Message: msg,
	})

	if d.archiver != nil {
		d.archiver.ArchiveMessage(e.RoomID, msg)
	}
}

func (d *Dispatcher) handleFileUpload(e FileUpload) {
	if !types.IsValidRoomID(e.RoomID) {
		d.sendError(e.ConnID, types.ErrCodeInvalidPayload, types.ErrInvalidRoomID.Error(), "")
		return
	}
	file := e.File
	if file.Name == "" {
		d.sendError(e.ConnID, types.ErrCodeInvalidPayload, "file name cannot be empty", "")
		return
	}

	file.Sender = d.senderFor(e.ConnID, file.Sender)
	if file.ID == "" {
		file.ID = d.newID()
	}

	d.relay.Publish(e.RoomID, types.EventFileReceived, types.FilePayload{
		RoomID:   e.RoomID,
		FileData: file,
	})

	// files uploaded over HTTP are already stored and arrive here without content
	if d.archiver != nil && file.Content != "" {
		d.archiver.ArchiveFile(e.RoomID, file)
	}
}

func (d *Dispatcher) handleSignal(e Signal) {
	if !types.IsValidRoomID(e.RoomID) {
		d.sendError(e.ConnID, types.ErrCodeInvalidPayload, types.ErrInvalidRoomID.Error(), "")
		return
	}

	switch e.Event {
	case types.EventVideoCallRequest:
		d.relay.PublishExcept(e.RoomID, e.ConnID, types.EventVideoCallRequest, types.CallPayload{
			ChatID: e.RoomID,
			Caller: e.ConnID,
		})

	case types.EventVideoCallAccepted:
		caller := e.Caller
		d.relay.PublishEach(e.RoomID, types.EventStartCall, func(connID string) any {
			return types.StartCallPayload{RoomID: e.RoomID, IsCaller: connID == caller}
		})

	case types.EventVideoCallDeclined:
		d.relay.Publish(e.RoomID, types.EventCallDeclined, types.CallPayload{RoomID: e.RoomID})

	case types.EventEndCall:
		d.relay.PublishExcept(e.RoomID, e.ConnID, types.EventCallEnded, types.CallPayload{RoomID: e.RoomID})

	case types.EventReadyForCall, types.EventOffer, types.EventAnswer, types.EventICECandidate:
		d.relay.PublishExcept(e.RoomID, e.ConnID, e.Event, e.Payload)

	default:
		d.sendError(e.ConnID, types.ErrCodeUnknownEvent, "unknown signaling event "+e.Event, "")
	}
}

func (d *Dispatcher) handleStatusQuery(e StatusQuery) {
	select {
	case e.Reply <- d.Status():
	default:
		log.Printf("Dispatcher: status reply channel not ready, dropping reply")
	}
}

// Status builds the diagnostic view. Only call it from the dispatcher goroutine.
func (d *Dispatcher) Status() types.QueueStatus {
	snapshot := d.queue.Snapshot()
	counts := make(map[string]int, len(snapshot)+1)
	for category, entries := range snapshot {
		counts[category] = len(entries)
	}
	counts["total"] = snapshot.Total()

	return types.QueueStatus{
		QueueState:  snapshot,
		Counts:      counts,
		Technicians: len(d.members.Members(rooms.TechniciansRoom)),
		Sessions:    d.sessions.Count(),
	}
}

// broadcastQueue sends the entire snapshot to the technicians group.
// Cost is O(total waiting) per mutation; queues are expected to stay small.
func (d *Dispatcher) broadcastQueue() {
	snapshot := d.queue.Snapshot()
	d.relay.Publish(rooms.TechniciansRoom, types.EventQueueUpdate, snapshot)
	d.observer.QueueChanged(snapshot)
}

func (d *Dispatcher) sendError(connID, code, message, customerID string) {
	d.relay.Unicast(connID, types.EventError, types.ErrorPayload{
		Message: message,
		Code:    code,
		UserID:  customerID,
	})
}

type nopObserver struct{}

func (nopObserver) QueueChanged(types.QueueSnapshot) {}
func (nopObserver) SessionOpened(*types.Session)     {}
func (nopObserver) SessionClosed(string)             {}
