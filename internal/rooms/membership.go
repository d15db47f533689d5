package rooms

import "sort"

// TechniciansRoom is the reserved group every technician joins on set-role
const TechniciansRoom = "technicians"

// Membership is the many-to-many relation between connections and rooms.
// It is not safe for concurrent use; the dispatcher goroutine owns it.
type Membership struct {
	rooms       map[string]map[string]struct{} // roomID -> connIDs
	connections map[string]map[string]struct{} // connID -> roomIDs
}

// NewMembership creates an empty membership table
func NewMembership() *Membership {
	return &Membership{
		rooms:       make(map[string]map[string]struct{}),
		connections: make(map[string]map[string]struct{}),
	}
}

// Join adds connID to roomID. Joining twice is a no-op.
func (m *Membership) Join(connID, roomID string) {
	if m.rooms[roomID] == nil {
		m.rooms[roomID] = make(map[string]struct{})
	}
	m.rooms[roomID][connID] = struct{}{}

	if m.connections[connID] == nil {
		m.connections[connID] = make(map[string]struct{})
	}
	m.connections[connID][roomID] = struct{}{}
}

// Leave removes connID from roomID
func (m *Membership) Leave(connID, roomID string) {
	if members, ok := m.rooms[roomID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(m.rooms, roomID)
		}
	}
	if joined, ok := m.connections[connID]; ok {
		delete(joined, roomID)
		if len(joined) == 0 {
			delete(m.connections, connID)
		}
	}
}

// Clear removes every member of roomID
func (m *Membership) Clear(roomID string) {
	for connID := range m.rooms[roomID] {
		if joined, ok := m.connections[connID]; ok {
			delete(joined, roomID)
			if len(joined) == 0 {
				delete(m.connections, connID)
			}
		}
	}
	delete(m.rooms, roomID)
}

// RemoveConnection drops connID from every room it joined
func (m *Membership) RemoveConnection(connID string) {
	for roomID := range m.connections[connID] {
		if members, ok := m.rooms[roomID]; ok {
			delete(members, connID)
			if len(members) == 0 {
				delete(m.rooms, roomID)
			}
		}
	}
	delete(m.connections, connID)
}

// Members returns the connections in roomID in a stable order
func (m *Membership) Members(roomID string) []string {
	members := make([]string, 0, len(m.rooms[roomID]))
	for connID := range m.rooms[roomID] {
		members = append(members, connID)
	}
	sort.Strings(members)
	return members
}

// IsMember reports whether connID has joined roomID
func (m *Membership) IsMember(connID, roomID string) bool {
	_, ok := m.rooms[roomID][connID]
	return ok
}

// RoomsOf returns the rooms connID has joined
func (m *Membership) RoomsOf(connID string) []string {
	joined := make([]string, 0, len(m.connections[connID]))
	for roomID := range m.connections[connID] {
		joined = append(joined, roomID)
	}
	sort.Strings(joined)
	return joined
}
