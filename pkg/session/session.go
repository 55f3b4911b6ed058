// Package session is the client-side auth state holder: it owns the stored
// token pair, validates it on startup, and answers role and permission
// questions for the UI layer.  It is an injectable object rather than a
// package singleton so tests and multi-tenant tools can run isolated
// sessions side by side.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// State is the session lifecycle:
// uninitialized → validating → {authenticated, unauthenticated}.
type State int

const (
	StateUninitialized State = iota
	StateValidating
	StateAuthenticated
	StateUnauthenticated
)

var (
	// ErrLoginFailed is returned when neither the API nor the local
	// fallback set accepted the credentials.
	ErrLoginFailed = errors.New("login failed")
	// ErrNotAuthenticated is returned by operations needing a live session.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// LocalUser is one entry of the offline demo credential set.
type LocalUser struct {
	Email    string
	Password string
	Role     string
	FullName string
}

// DefaultLocalUsers is the fixed demo set honoured by the offline fallback
// path.  Development convenience only; production deployments configure an
// empty set.
var DefaultLocalUsers = []LocalUser{
	{Email: "super@example.com", Password: "super123", Role: "super_admin", FullName: "Demo Super Admin"},
	{Email: "admin@example.com", Password: "admin123", Role: "admin", FullName: "Demo Admin"},
	{Email: "employee@example.com", Password: "employee123", Role: "employee", FullName: "Demo Employee"},
	{Email: "pilot@example.com", Password: "pilot123", Role: "pilot", FullName: "Demo Pilot"},
}

// fallbackTTL is the lifetime of fabricated tokens.
const fallbackTTL = 24 * time.Hour

// featureAccess is the client-side mirror of per-role feature access, used
// until a verify response delivers the authoritative server grants.  The top
// two tiers bypass it entirely.
var featureAccess = map[string][]string{
	"employee": {
		"vehicle-deployment", "driver-induction", "offline-bookings",
		"charging-tracker", "database-management", "ride-analytics",
	},
	"pilot": {
		"vehicle-deployment", "offline-bookings", "charging-tracker",
	},
}

// Config wires a Session.  Store defaults to in-memory storage; LocalUsers
// nil means no offline fallback.
type Config struct {
	API        API
	Store      *Storage
	LocalUsers []LocalUser
}

// Session holds the current-user state.  All exported methods are safe for
// concurrent use.  The generation counter makes logout authoritative: any
// network result that started before the latest logout is discarded instead
// of resurrecting authenticated state.
type Session struct {
	mu    sync.Mutex
	api   API
	store *Storage
	local []LocalUser

	state   State
	user    *User
	modules map[string]ModuleGrant // server-delivered grants, nil until first verify
	gen     uint64
}

// New builds a Session in the uninitialized state.
func New(cfg Config) *Session {
	store := cfg.Store
	if store == nil {
		store = NewMemoryStorage()
	}
	return &Session{
		api:   cfg.API,
		store: store,
		local: cfg.LocalUsers,
		state: StateUninitialized,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CurrentUser returns the authenticated user.  Nothing is returned while
// validation is in flight: callers must not render protected state until the
// session settles.
func (s *Session) CurrentUser() (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAuthenticated || s.user == nil {
		return User{}, false
	}
	return *s.user, true
}

// Initialize classifies and validates any stored token before granting
// authenticated state.  Absent token settles unauthenticated; a fallback
// token is checked locally; a real token goes to the server.  Every failure
// path purges storage first so no concurrent reader can pick up the stale
// credential.
func (s *Session) Initialize(ctx context.Context) State {
	s.mu.Lock()
	s.state = StateValidating
	gen := s.gen
	raw := s.store.AccessToken()
	s.mu.Unlock()

	if raw == "" {
		return s.settle(gen, nil, nil, false)
	}

	kind, claims := Classify(raw)
	switch kind {
	case TokenMalformed:
		s.purge()
		return s.settle(gen, nil, nil, false)

	case TokenFallback:
		if claims.Expired() {
			s.purge()
			return s.settle(gen, nil, nil, false)
		}
		if lu, ok := s.findLocal(claims.Email, claims.Role); ok {
			u := localUser(lu)
			return s.settle(gen, &u, nil, true)
		}
		s.purge()
		return s.settle(gen, nil, nil, false)

	default: // TokenReal: only the server can judge it
		u, err := s.api.Verify(ctx, raw)
		if err != nil {
			// Network error, malformed response and explicit rejection all
			// land here: clear everything and force re-login.
			s.purge()
			return s.settle(gen, nil, nil, false)
		}
		return s.settle(gen, &u, u.Permissions, true)
	}
}

// Login tries the API first and falls back to the local demo set when the
// backend is unreachable or rejects the call.  On total failure the session
// state is left untouched.
func (s *Session) Login(ctx context.Context, email, password string) error {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	res, err := s.api.Login(ctx, email, password)
	if err == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.gen != gen { // logged out while the call was in flight
			return ErrLoginFailed
		}
		s.store.SetTokens(res.Token, res.RefreshToken)
		u := res.User
		s.user = &u
		s.modules = u.Permissions
		s.state = StateAuthenticated
		return nil
	}

	// Offline path: fixed local credentials, fabricated token.
	lu, ok := s.findLocalPassword(email, password)
	if !ok {
		return ErrLoginFailed
	}
	token := Fabricate(lu.Email, lu.Role, fallbackTTL)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return ErrLoginFailed
	}
	s.store.SetTokens(token, "")
	u := localUser(lu)
	s.user = &u
	s.modules = nil
	s.state = StateAuthenticated
	return nil
}

// Logout clears state and storage unconditionally and is safe to call any
// number of times.  The server call is best-effort; local cleanup never
// waits on it, and bumping the generation makes any in-flight refresh or
// login commit against a closed generation and discard itself.
func (s *Session) Logout(ctx context.Context) {
	s.mu.Lock()
	s.gen++
	access := s.store.AccessToken()
	refresh := s.store.RefreshToken()
	s.store.ClearTokens()
	s.user = nil
	s.modules = nil
	s.state = StateUnauthenticated
	s.mu.Unlock()

	if access != "" {
		// Ignore the outcome entirely; the local session is already gone.
		_ = s.api.Logout(ctx, access, refresh)
	}
}

// Refresh exchanges the stored refresh token for a new pair.  Latest wins:
// a result arriving after a logout is dropped.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	gen := s.gen
	refresh := s.store.RefreshToken()
	s.mu.Unlock()

	if refresh == "" {
		return ErrNotAuthenticated
	}
	pair, err := s.api.Refresh(ctx, refresh)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return nil // superseded by logout; discard silently
	}
	s.store.SetTokens(pair.Token, pair.RefreshToken)
	return nil
}

// HasRole reports an exact role match.
func (s *Session) HasRole(role string) bool {
	u, ok := s.CurrentUser()
	return ok && u.Role == role
}

// HasPermission answers a permission question against the server-delivered
// grants.  The top two tiers are always allowed.  perm is either a module id
// or "module:action".
func (s *Session) HasPermission(perm string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAuthenticated || s.user == nil {
		return false
	}
	if bypassRole(s.user.Role) {
		return true
	}
	module, action := perm, ""
	if i := strings.IndexByte(perm, ':'); i >= 0 {
		module, action = perm[:i], perm[i+1:]
	}
	g, ok := s.modules[module]
	if !ok || !g.Enabled {
		return false
	}
	if action == "" {
		return true
	}
	for _, a := range g.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// CanAccessFeature gates UI features by role.  Server-delivered grants are
// authoritative once a verify has run; before that the hardcoded mirror
// answers, as an optimistic same-session default.
func (s *Session) CanAccessFeature(featureID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAuthenticated || s.user == nil {
		return false
	}
	if bypassRole(s.user.Role) {
		return true
	}
	if s.modules != nil {
		return s.modules[featureID].Enabled
	}
	for _, f := range featureAccess[s.user.Role] {
		if f == featureID {
			return true
		}
	}
	return false
}

// settle commits a validation outcome unless a logout superseded it.
func (s *Session) settle(gen uint64, u *User, modules map[string]ModuleGrant, authed bool) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return s.state
	}
	if authed {
		s.user = u
		s.modules = modules
		s.state = StateAuthenticated
	} else {
		s.user = nil
		s.modules = nil
		s.state = StateUnauthenticated
	}
	return s.state
}

// purge clears stored credentials immediately.
func (s *Session) purge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.ClearTokens()
}

func (s *Session) findLocal(email, role string) (LocalUser, bool) {
	for _, lu := range s.local {
		if strings.EqualFold(lu.Email, email) && lu.Role == role {
			return lu, true
		}
	}
	return LocalUser{}, false
}

func (s *Session) findLocalPassword(email, password string) (LocalUser, bool) {
	for _, lu := range s.local {
		if strings.EqualFold(lu.Email, email) && lu.Password == password {
			return lu, true
		}
	}
	return LocalUser{}, false
}

func localUser(lu LocalUser) User {
	return User{Email: strings.ToLower(lu.Email), FullName: lu.FullName, Role: lu.Role}
}

func bypassRole(role string) bool {
	return role == "super_admin" || role == "admin"
}
