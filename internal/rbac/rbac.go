// Package rbac holds the canonical role enumeration, the role hierarchy and
// the default module grants seeded for each role.  The `role_permissions`
// table is the source of truth at runtime; this package only decides how a
// stored grant (or its absence) is interpreted.
package rbac

import "github.com/evcore/fleet-api/internal/model"

// Canonical role names.  The platform went through an iteration with a much
// wider enumeration; everything has since been collapsed onto these four.
const (
	RoleSuperAdmin = "super_admin"
	RoleAdmin      = "admin"
	RoleEmployee   = "employee"
	RolePilot      = "pilot"
)

// Actions a grant may carry.
const (
	ActionView   = "view"
	ActionCreate = "create"
	ActionEdit   = "edit"
	ActionDelete = "delete"
	ActionExport = "export"
)

// Feature module identifiers.  These match the feature ids used by clients.
const (
	ModuleVehicleDeployment  = "vehicle-deployment"
	ModuleDriverInduction    = "driver-induction"
	ModuleOfflineBookings    = "offline-bookings"
	ModuleChargingTracker    = "charging-tracker"
	ModuleDatabaseManagement = "database-management"
	ModuleRideAnalytics      = "ride-analytics"
)

// levels orders roles for minimum-role comparisons.  The spacing leaves room
// for intermediate roles without renumbering.
var levels = map[string]int{
	RoleSuperAdmin: 10,
	RoleAdmin:      9,
	RoleEmployee:   5,
	RolePilot:      3,
}

// Valid reports whether role is part of the canonical enumeration.
func Valid(role string) bool {
	_, ok := levels[role]
	return ok
}

// Level returns the hierarchy level for a role, 0 for unknown roles.
func Level(role string) int { return levels[role] }

// AtLeast reports whether role sits at or above required in the hierarchy.
// Unknown roles compare as level 0 and therefore never satisfy a requirement.
func AtLeast(role, required string) bool {
	if !Valid(role) || !Valid(required) {
		return false
	}
	return levels[role] >= levels[required]
}

// Bypass reports whether the role skips the permission table entirely.
// The top two tiers are always-allow.
func Bypass(role string) bool {
	return role == RoleSuperAdmin || role == RoleAdmin
}

// Can decides a single (module, action) question against a stored module map.
// Bypass roles are always allowed; everyone else needs an explicit grant.
func Can(role string, modules map[string]model.ModuleGrant, module, action string) bool {
	if Bypass(role) {
		return true
	}
	return modules[module].Allows(action)
}

// FullGrants returns an all-modules, all-actions map.  Used to report
// effective permissions for bypass roles, which have no table row of their own.
func FullGrants() map[string]model.ModuleGrant {
	all := []string{ActionView, ActionCreate, ActionEdit, ActionDelete, ActionExport}
	out := make(map[string]model.ModuleGrant, len(allModules))
	for _, m := range allModules {
		out[m] = model.ModuleGrant{Enabled: true, Actions: all}
	}
	return out
}

var allModules = []string{
	ModuleVehicleDeployment,
	ModuleDriverInduction,
	ModuleOfflineBookings,
	ModuleChargingTracker,
	ModuleDatabaseManagement,
	ModuleRideAnalytics,
}

// DefaultModules returns the grants seeded into role_permissions the first
// time a user of the role is created.  Super-admin settings actions may
// rewrite them afterwards.
func DefaultModules(role string) map[string]model.ModuleGrant {
	switch role {
	case RoleSuperAdmin, RoleAdmin:
		return FullGrants()
	case RoleEmployee:
		return map[string]model.ModuleGrant{
			ModuleVehicleDeployment:  {Enabled: true, Actions: []string{ActionView, ActionCreate, ActionEdit}},
			ModuleDriverInduction:    {Enabled: true, Actions: []string{ActionView, ActionCreate, ActionEdit}},
			ModuleOfflineBookings:    {Enabled: true, Actions: []string{ActionView, ActionCreate, ActionEdit}},
			ModuleChargingTracker:    {Enabled: true, Actions: []string{ActionView, ActionCreate}},
			ModuleDatabaseManagement: {Enabled: true, Actions: []string{ActionView, ActionExport}},
			ModuleRideAnalytics:      {Enabled: true, Actions: []string{ActionView, ActionExport}},
		}
	case RolePilot:
		return map[string]model.ModuleGrant{
			ModuleVehicleDeployment: {Enabled: true, Actions: []string{ActionView}},
			ModuleOfflineBookings:   {Enabled: true, Actions: []string{ActionView, ActionCreate}},
			ModuleChargingTracker:   {Enabled: true, Actions: []string{ActionView, ActionCreate}},
		}
	default:
		return map[string]model.ModuleGrant{}
	}
}
