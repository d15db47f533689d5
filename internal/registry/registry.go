package registry

import "supportdesk/pkg/types"

// Registry records the role each connection declared with set-role.
// It is not safe for concurrent use; the dispatcher goroutine owns it.
type Registry struct {
	roles map[string]types.Role // connID -> Role
}

// New creates an empty registry
func New() *Registry {
	return &Registry{roles: make(map[string]types.Role)}
}

// SetRole records role for connID, overwriting any earlier value
func (r *Registry) SetRole(connID string, role types.Role) {
	r.roles[connID] = role
}

// RoleOf returns the role recorded for connID. ok is false when none was set.
func (r *Registry) RoleOf(connID string) (types.Role, bool) {
	role, ok := r.roles[connID]
	return role, ok
}

// Remove forgets connID. Safe to call for unknown connections.
func (r *Registry) Remove(connID string) {
	delete(r.roles, connID)
}

// CountRole returns how many connections hold role
func (r *Registry) CountRole(role types.Role) int {
	count := 0
	for _, existing := range r.roles {
		if existing == role {
			count++
		}
	}
	return count
}
