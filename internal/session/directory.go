package session

import (
	"log"
	"sort"
	"time"

	"supportdesk/pkg/types"
)

// Directory maps room IDs to live support sessions.
// It is not safe for concurrent use; the dispatcher goroutine owns it.
type Directory struct {
	sessions map[string]*types.Session // roomID -> Session
	now      func() time.Time
}

// NewDirectory creates an empty session directory
func NewDirectory() *Directory {
	return &Directory{
		sessions: make(map[string]*types.Session),
		now:      time.Now,
	}
}

// Create binds a customer and a technician to roomID.
// A room can hold at most one session; a second Create fails with ErrDuplicateRoom.
func (d *Directory) Create(roomID, customerID, customerConnID, technicianConnID, category string) (*types.Session, error) {
	if roomID == "" {
		return nil, ErrInvalidRoomID
	}
	if customerConnID == "" || technicianConnID == "" {
		return nil, ErrInvalidParticipants
	}
	if _, exists := d.sessions[roomID]; exists {
		return nil, ErrDuplicateRoom
	}

	session := &types.Session{
		RoomID:                 roomID,
		CustomerID:             customerID,
		CustomerConnectionID:   customerConnID,
		TechnicianConnectionID: technicianConnID,
		Category:               category,
		CreatedAt:              d.now(),
	}
	d.sessions[roomID] = session

	log.Printf("Created session: room=%s customer=%s technician=%s category=%s",
		roomID, customerID, technicianConnID, category)
	return session, nil
}

// Get returns the session bound to roomID
func (d *Directory) Get(roomID string) (*types.Session, bool) {
	session, exists := d.sessions[roomID]
	return session, exists
}

// Exists reports whether roomID has a session
func (d *Directory) Exists(roomID string) bool {
	_, exists := d.sessions[roomID]
	return exists
}

// Destroy removes the session for roomID. Returns false when there was none.
func (d *Directory) Destroy(roomID string) bool {
	if _, exists := d.sessions[roomID]; !exists {
		return false
	}
	delete(d.sessions, roomID)
	log.Printf("Ended session: room=%s", roomID)
	return true
}

// ByConnection returns every session in which connID is the customer or the technician,
// ordered by creation time
func (d *Directory) ByConnection(connID string) []*types.Session {
	var matches []*types.Session
	for _, session := range d.sessions {
		if session.HasParty(connID) {
			matches = append(matches, session)
		}
	}
	sortByCreated(matches)
	return matches
}

// List returns all live sessions ordered by creation time
func (d *Directory) List() []*types.Session {
	sessions := make([]*types.Session, 0, len(d.sessions))
	for _, session := range d.sessions {
		sessions = append(sessions, session)
	}
	sortByCreated(sessions)
	return sessions
}

// Count returns the number of live sessions
func (d *Directory) Count() int {
	return len(d.sessions)
}

func sortByCreated(sessions []*types.Session) {
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].RoomID < sessions[j].RoomID
		}
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
}
