package relay

import (
	"encoding/json"
	"log"

	"supportdesk/internal/rooms"
	"supportdesk/pkg/interfaces"
	"supportdesk/pkg/types"
)

// Relay fans events out to room members.
// It only reads membership and never inspects payload content.
type Relay struct {
	members *rooms.Membership
	sender  interfaces.Sender
}

// New creates a relay over members that delivers through sender
func New(members *rooms.Membership, sender interfaces.Sender) *Relay {
	return &Relay{
		members: members,
		sender:  sender,
	}
}

// Publish delivers event to every member of roomID and returns the number of deliveries
func (r *Relay) Publish(roomID, event string, payload any) int {
	return r.PublishExcept(roomID, "", event, payload)
}

// PublishExcept delivers event to every member of roomID except exceptConnID
func (r *Relay) PublishExcept(roomID, exceptConnID, event string, payload any) int {
	envelope, err := encode(event, payload)
	if err != nil {
		log.Printf("Relay: failed to encode %s for room %s: %v", event, roomID, err)
		return 0
	}

	delivered := 0
	for _, connID := range r.members.Members(roomID) {
		if connID == exceptConnID {
			continue
		}
		if r.deliver(connID, envelope) {
			delivered++
		}
	}
	return delivered
}

// PublishEach delivers event to every member of roomID with a per-recipient payload
func (r *Relay) PublishEach(roomID, event string, payloadFor func(connID string) any) int {
	delivered := 0
	for _, connID := range r.members.Members(roomID) {
		envelope, err := encode(event, payloadFor(connID))
		if err != nil {
			log.Printf("Relay: failed to encode %s for %s: %v", event, connID, err)
			continue
		}
		if r.deliver(connID, envelope) {
			delivered++
		}
	}
	return delivered
}

// Unicast delivers event to a single connection
func (r *Relay) Unicast(connID, event string, payload any) bool {
	envelope, err := encode(event, payload)
	if err != nil {
		log.Printf("Relay: failed to encode %s for %s: %v", event, connID, err)
		return false
	}
	return r.deliver(connID, envelope)
}

// deliver logs and swallows per-recipient failures so the rest of the room still receives the event
func (r *Relay) deliver(connID string, envelope *types.Envelope) bool {
	if err := r.sender.Send(connID, envelope); err != nil {
		log.Printf("Failed to deliver %s to %s: %v", envelope.Event, connID, err)
		return false
	}
	return true
}

func encode(event string, payload any) (*types.Envelope, error) {
	envelope := &types.Envelope{Event: event}
	switch p := payload.(type) {
	case nil:
	case json.RawMessage:
		envelope.Payload = p
	default:
		data, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		envelope.Payload = data
	}
	return envelope, nil
}
