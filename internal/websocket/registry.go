package websocket

import (
	"fmt"
	"log"
	"sync"

	"supportdesk/pkg/interfaces"
	"supportdesk/pkg/types"
)

// Registry tracks live connections by ID and implements interfaces.Sender
type Registry struct {
	mu          sync.RWMutex
	connections map[string]*Connection
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]*Connection),
	}
}

// RegisterConnection adds conn under its ID
func (r *Registry) RegisterConnection(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connections[conn.ID()]; exists {
		return ErrDuplicateConnection
	}
	r.connections[conn.ID()] = conn
	return nil
}

// UnregisterConnection removes conn if it is the instance registered under its ID
func (r *Registry) UnregisterConnection(conn *Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if registered, exists := r.connections[conn.ID()]; exists && registered == conn {
		delete(r.connections, conn.ID())
	}
}

// GetConnection returns the live connection for connID
func (r *Registry) GetConnection(connID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, exists := r.connections[connID]
	return conn, exists
}

// Send delivers frame to connID without blocking
func (r *Registry) Send(connID string, frame *types.Envelope) error {
	conn, exists := r.GetConnection(connID)
	if !exists {
		return fmt.Errorf("%w: %s", interfaces.ErrConnectionNotFound, connID)
	}
	return conn.Send(frame)
}

// Count returns the number of live connections
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// CloseAll closes every registered connection; read pumps then unregister themselves
func (r *Registry) CloseAll() {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		conns = append(conns, conn)
	}
	r.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.Close(); err != nil {
			log.Printf("Failed to close connection %s: %v", conn.ID(), err)
		}
	}
}

// GetStats returns registry statistics for health reporting
func (r *Registry) GetStats() map[string]int {
	return map[string]int{
		"total_connections": r.Count(),
	}
}
