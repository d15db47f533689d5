package registry

import (
	"testing"

	"supportdesk/pkg/types"
)

func TestRegistry_SetRoleOverwrites(t *testing.T) {
	r := New()

	if _, ok := r.RoleOf("c1"); ok {
		t.Fatal("unknown connection reported a role")
	}

	r.SetRole("c1", types.RoleCustomer)
	r.SetRole("c1", types.RoleTechnician)

	role, ok := r.RoleOf("c1")
	if !ok || role != types.RoleTechnician {
		t.Errorf("RoleOf = %q, %v; want technician, true", role, ok)
	}
}

func TestRegistry_Remove(t *testing.T) {
	r := New()
	r.SetRole("c1", types.RoleCustomer)
	r.Remove("c1")
	r.Remove("never-seen")

	if _, ok := r.RoleOf("c1"); ok {
		t.Error("role survived Remove")
	}
}

func TestRegistry_CountRole(t *testing.T) {
	r := New()
	r.SetRole("t1", types.RoleTechnician)
	r.SetRole("t2", types.RoleTechnician)
	r.SetRole("c1", types.RoleCustomer)

	if got := r.CountRole(types.RoleTechnician); got != 2 {
		t.Errorf("CountRole(technician) = %d, want 2", got)
	}
	if got := r.CountRole(types.RoleCustomer); got != 1 {
		t.Errorf("CountRole(customer) = %d, want 1", got)
	}
}
