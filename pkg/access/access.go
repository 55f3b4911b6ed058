// Package access derives fine-grained action permissions from session state.
// It owns no state of its own: every answer is recomputed from the Session
// on each call, layered on top of its feature gating.
package access

import "github.com/evcore/fleet-api/pkg/session"

// Role hierarchy levels for minimum-role comparisons.  This is the client
// mirror of the server's table and must list the same roles.
var roleLevels = map[string]int{
	"super_admin": 10,
	"admin":       9,
	"employee":    5,
	"pilot":       3,
}

// actionMatrix lists, per non-bypass role, the actions allowed on each
// feature.  The top two tiers never consult it.
var actionMatrix = map[string]map[string][]string{
	"employee": {
		"vehicle-deployment":  {"view", "create", "edit"},
		"driver-induction":    {"view", "create", "edit"},
		"offline-bookings":    {"view", "create", "edit"},
		"charging-tracker":    {"view", "create"},
		"database-management": {"view", "export"},
		"ride-analytics":      {"view", "export"},
	},
	"pilot": {
		"vehicle-deployment": {"view"},
		"offline-bookings":   {"view", "create"},
		"charging-tracker":   {"view", "create"},
	},
}

// Resolver answers permission questions for one session.
type Resolver struct {
	s *session.Session
}

// New builds a Resolver over a session.
func New(s *session.Session) *Resolver { return &Resolver{s: s} }

// CanPerformAction reports whether the current user may perform action on a
// feature.  Feature access is checked first; a feature the role cannot see
// allows no actions at all.
func (r *Resolver) CanPerformAction(featureID, action string) bool {
	if !r.s.CanAccessFeature(featureID) {
		return false
	}
	u, ok := r.s.CurrentUser()
	if !ok {
		return false
	}
	if u.Role == "super_admin" || u.Role == "admin" {
		return true
	}
	for _, a := range actionMatrix[u.Role][featureID] {
		if a == action {
			return true
		}
	}
	return false
}

// HasMinimumRole compares the current role against a required role on the
// fixed hierarchy.  Unknown roles never qualify.
func (r *Resolver) HasMinimumRole(required string) bool {
	u, ok := r.s.CurrentUser()
	if !ok {
		return false
	}
	have, ok1 := roleLevels[u.Role]
	want, ok2 := roleLevels[required]
	return ok1 && ok2 && have >= want
}

// AccessibleFeatures lists every feature the current user can open.
func (r *Resolver) AccessibleFeatures() []string {
	u, ok := r.s.CurrentUser()
	if !ok {
		return nil
	}
	if u.Role == "super_admin" || u.Role == "admin" {
		return allFeatures()
	}
	var out []string
	for _, f := range allFeatures() {
		if r.s.CanAccessFeature(f) {
			out = append(out, f)
		}
	}
	return out
}

// IsSuperAdmin reports whether the current user holds the top tier role.
func (r *Resolver) IsSuperAdmin() bool {
	u, ok := r.s.CurrentUser()
	return ok && u.Role == "super_admin"
}

// IsAdmin reports whether the current user holds either bypass tier.
func (r *Resolver) IsAdmin() bool {
	u, ok := r.s.CurrentUser()
	return ok && (u.Role == "super_admin" || u.Role == "admin")
}

// HasAccess reports whether the current role is one of the given roles.
func (r *Resolver) HasAccess(roles ...string) bool {
	u, ok := r.s.CurrentUser()
	if !ok {
		return false
	}
	for _, role := range roles {
		if u.Role == role {
			return true
		}
	}
	return false
}

func allFeatures() []string {
	return []string{
		"vehicle-deployment", "driver-induction", "offline-bookings",
		"charging-tracker", "database-management", "ride-analytics",
	}
}
