package router

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"supportdesk/internal/dispatcher"
	"supportdesk/pkg/types"
)

// Router turns raw WebSocket frames into dispatcher events and rate-limits room traffic
type Router struct {
	rateLimiter *RateLimiter
}

// NewRouter creates a router with the default per-connection rate limit
func NewRouter() *Router {
	return &Router{rateLimiter: NewRateLimiter()}
}

// Decode parses one {"event","payload"} frame from connID.
// Only the fields the dispatcher needs are extracted; signaling blobs stay raw.
func (r *Router) Decode(connID string, data []byte) (dispatcher.Event, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrInvalidFrame
	}
	frame := gjson.ParseBytes(data)
	if !frame.IsObject() {
		return nil, ErrInvalidFrame
	}
	event := frame.Get("event").String()
	if event == "" {
		return nil, ErrInvalidFrame
	}
	payload := frame.Get("payload")

	switch event {
	case types.EventSetRole:
		var p types.RolePayload
		if err := unmarshal(payload, &p); err != nil {
			return nil, err
		}
		return dispatcher.SetRole{ConnID: connID, Role: p.Role}, nil

	case types.EventJoinRoom, types.EventLeaveRoom:
		roomID := roomFromPayload(payload)
		if roomID == "" {
			return nil, ErrMissingRoomID
		}
		if event == types.EventJoinRoom {
			return dispatcher.JoinRoom{ConnID: connID, RoomID: roomID}, nil
		}
		return dispatcher.LeaveRoom{ConnID: connID, RoomID: roomID}, nil

	case types.EventJoinQueue:
		var p types.JoinQueuePayload
		if err := unmarshal(payload, &p); err != nil {
			return nil, err
		}
		return dispatcher.JoinQueue{
			ConnID:       connID,
			CustomerID:   p.UserID,
			Category:     p.Category,
			DisplayName:  p.Name,
			ContactEmail: p.Email,
			IssueText:    p.Issue,
		}, nil

	case types.EventAcceptChat:
		var p types.AcceptChatPayload
		if err := unmarshal(payload, &p); err != nil {
			return nil, err
		}
		return dispatcher.AcceptChat{ConnID: connID, CustomerID: p.UserID, Category: p.Category}, nil

	case types.EventEndChat:
		var p types.ChatEndedPayload
		if err := unmarshal(payload, &p); err != nil {
			return nil, err
		}
		if p.ChatID == "" {
			p.ChatID = payload.Get("roomId").String()
		}
		if p.ChatID == "" {
			return nil, ErrMissingRoomID
		}
		return dispatcher.EndChat{ConnID: connID, RoomID: p.ChatID, EndedBy: p.EndedBy}, nil

	case types.EventMessage:
		var p types.MessagePayload
		if err := unmarshal(payload, &p); err != nil {
			return nil, err
		}
		return dispatcher.ChatMessage{ConnID: connID, RoomID: p.RoomID, Message: p.Message}, nil

	case types.EventFileUpload:
		var p types.FilePayload
		if err := unmarshal(payload, &p); err != nil {
			return nil, err
		}
		return dispatcher.FileUpload{ConnID: connID, RoomID: p.RoomID, File: p.FileData}, nil

	case types.EventVideoCallRequest, types.EventVideoCallAccepted, types.EventVideoCallDeclined,
		types.EventEndCall, types.EventReadyForCall,
		types.EventOffer, types.EventAnswer, types.EventICECandidate:
		roomID := roomFromPayload(payload)
		if roomID == "" {
			return nil, ErrMissingRoomID
		}
		return dispatcher.Signal{
			ConnID:  connID,
			Event:   event,
			RoomID:  roomID,
			Caller:  payload.Get("caller").String(),
			Payload: rawPayload(payload),
		}, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, event)
	}
}

// Allow applies the per-connection rate limit to room traffic.
// Control events (roles, queue, accept, end) are never limited.
func (r *Router) Allow(ev dispatcher.Event) bool {
	switch ev.(type) {
	case dispatcher.ChatMessage, dispatcher.FileUpload, dispatcher.Signal:
		return r.rateLimiter.Allow(ev.Origin())
	default:
		return true
	}
}

// Forget drops rate-limit state for a closed connection
func (r *Router) Forget(connID string) {
	r.rateLimiter.Forget(connID)
}

// Cleanup removes stale rate-limit windows
func (r *Router) Cleanup() {
	r.rateLimiter.Cleanup()
}

// roomFromPayload accepts a bare string, {"roomId"} or {"chatId"}
func roomFromPayload(payload gjson.Result) string {
	if payload.Type == gjson.String {
		return payload.String()
	}
	if roomID := payload.Get("roomId").String(); roomID != "" {
		return roomID
	}
	return payload.Get("chatId").String()
}

func unmarshal(payload gjson.Result, v any) error {
	if !payload.IsObject() {
		return ErrInvalidPayload
	}
	if err := json.Unmarshal([]byte(payload.Raw), v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

func rawPayload(payload gjson.Result) json.RawMessage {
	if !payload.Exists() {
		return nil
	}
	raw := make(json.RawMessage, len(payload.Raw))
	copy(raw, payload.Raw)
	return raw
}
