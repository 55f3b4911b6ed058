package model

import "time"

// ModuleGrant describes what a role may do inside a single feature module.
// Enabled gates the module as a whole; Actions is the explicit allow-list
// checked for non-bypass roles.
type ModuleGrant struct {
	Enabled bool     `json:"enabled"`
	Actions []string `json:"actions"`
}

// Allows reports whether the grant covers the given action.  A disabled
// module allows nothing regardless of its action list.
func (g ModuleGrant) Allows(action string) bool {
	if !g.Enabled {
		return false
	}
	for _, a := range g.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// RolePermission is one row of the `role_permissions` table: the module map
// for a single role, stored as a JSON column.  admin and super_admin never
// consult this table; every other role is denied anything not listed here.
type RolePermission struct {
	Role      string
	Modules   map[string]ModuleGrant
	CreatedAt time.Time
	UpdatedAt time.Time
}
