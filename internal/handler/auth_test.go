package handler_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evcore/fleet-api/internal/auth"
	"github.com/evcore/fleet-api/internal/config"
	"github.com/evcore/fleet-api/internal/handler"
	"github.com/evcore/fleet-api/internal/model"
	"github.com/evcore/fleet-api/internal/queue"
	"github.com/evcore/fleet-api/internal/rbac"
	"github.com/evcore/fleet-api/internal/repository"
	"github.com/evcore/fleet-api/internal/router"
)

// ----- in-memory fakes at the repository interfaces -----

type fakeUsers struct {
	mu     sync.Mutex
	nextID uint64
	byID   map[uint64]model.User
}

func newFakeUsers() *fakeUsers { return &fakeUsers{byID: make(map[uint64]model.User)} }

var _ handler.UserStore = (*fakeUsers)(nil)

func (f *fakeUsers) Create(_ context.Context, u model.User) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, x := range f.byID {
		if x.Email == strings.ToLower(u.Email) || x.Mobile == u.Mobile {
			return 0, auth.ErrDuplicateUser
		}
	}
	f.nextID++
	u.ID = f.nextID
	u.Email = strings.ToLower(u.Email)
	u.IsActive = true
	u.PasswordChangedAt = time.Now().UTC().Add(-time.Hour)
	f.byID[u.ID] = u
	return u.ID, nil
}

func (f *fakeUsers) GetByEmailOrMobile(_ context.Context, ident string) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Email == strings.ToLower(ident) || u.Mobile == ident {
			return u, nil
		}
	}
	return model.User{}, sql.ErrNoRows
}

func (f *fakeUsers) GetByID(_ context.Context, id uint64) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return model.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (f *fakeUsers) RecordLoginFailure(_ context.Context, id uint64, maxAttempts int, lockFor time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.byID[id]
	u.FailedLoginAttempts++
	if u.FailedLoginAttempts >= maxAttempts {
		t := time.Now().UTC().Add(lockFor)
		u.LockUntil = &t
	}
	f.byID[id] = u
	return nil
}

func (f *fakeUsers) ResetLoginFailures(_ context.Context, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.byID[id]
	u.FailedLoginAttempts = 0
	u.LockUntil = nil
	now := time.Now().UTC()
	u.LastLoginAt = &now
	f.byID[id] = u
	return nil
}

func (f *fakeUsers) UpdatePassword(_ context.Context, id uint64, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.byID[id]
	u.PasswordHash = hash
	u.PasswordChangedAt = time.Now().UTC()
	u.MustChangePassword = false
	f.byID[id] = u
	return nil
}

func (f *fakeUsers) UpdateProfile(_ context.Context, id uint64, fullName, mobile string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.FullName = fullName
	u.Mobile = mobile
	f.byID[id] = u
	return nil
}

// setRole flips a user's stored role out from under any issued tokens.
func (f *fakeUsers) setRole(id uint64, role string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.byID[id]
	u.Role = role
	f.byID[id] = u
}

func (f *fakeUsers) Deactivate(_ context.Context, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.IsActive = false
	f.byID[id] = u
	return nil
}

func (f *fakeUsers) deactivate(id uint64) { _ = f.Deactivate(context.Background(), id) }

// lock puts the account into the locked-out state until now+d.
func (f *fakeUsers) lock(id uint64, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.byID[id]
	t := time.Now().UTC().Add(d)
	u.LockUntil = &t
	f.byID[id] = u
}

type fakePerms struct {
	mu     sync.Mutex
	seeded map[string]bool
}

var _ handler.PermissionStore = (*fakePerms)(nil)

func newFakePerms() *fakePerms { return &fakePerms{seeded: make(map[string]bool)} }

func (f *fakePerms) EnsureDefaults(_ context.Context, role string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seeded[role] = true
	return nil
}

func (f *fakePerms) ModulesForRole(_ context.Context, role string) (map[string]model.ModuleGrant, error) {
	if rbac.Bypass(role) {
		return rbac.FullGrants(), nil
	}
	return rbac.DefaultModules(role), nil
}

type memRefresh struct {
	mu   sync.Mutex
	rows map[string]struct {
		userID  uint64
		exp     time.Time
		revoked bool
	}
}

var _ auth.RefreshStore = (*memRefresh)(nil)

func newMemRefresh() *memRefresh {
	return &memRefresh{rows: make(map[string]struct {
		userID  uint64
		exp     time.Time
		revoked bool
	})}
}

func (m *memRefresh) StoreRefresh(_ context.Context, userID uint64, hash string, exp time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[hash] = struct {
		userID  uint64
		exp     time.Time
		revoked bool
	}{userID, exp, false}
	return nil
}

func (m *memRefresh) ValidateRefresh(_ context.Context, hash string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[hash]
	if !ok || row.revoked || time.Now().UTC().After(row.exp) {
		return 0, sql.ErrNoRows
	}
	return row.userID, nil
}

func (m *memRefresh) RevokeByHash(_ context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[hash]; ok {
		row.revoked = true
		m.rows[hash] = row
	}
	return nil
}

func (m *memRefresh) RevokeAllForUser(_ context.Context, userID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for h, row := range m.rows {
		if row.userID == userID {
			row.revoked = true
			m.rows[h] = row
		}
	}
	return nil
}

// ----- harness -----

type testEnv struct {
	e     *echo.Echo
	users *fakeUsers
	h     *handler.AuthHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := config.Config{
		Env:              "test",
		BcryptCost:       4, // bcrypt.MinCost; keep the suite fast
		MaxLoginAttempts: 5,
		LockoutMinutes:   15,
	}
	users := newFakeUsers()
	ts := auth.NewTokenService("test-access", "test-refresh", 15*time.Minute, 24*time.Hour, newMemRefresh())
	h := &handler.AuthHandler{Cfg: cfg, Users: users, Perms: newFakePerms(), Tokens: ts, Publish: discardEvent}

	e := echo.New()
	router.RegisterRoutes(e)
	router.RegisterAuth(e, h, nil)
	router.RegisterAdmin(e, handler.NewPermissionHandler(&fakeAdminPerms{}), h)
	return &testEnv{e: e, users: users, h: h}
}

func discardEvent(context.Context, queue.AuthEvent) error { return nil }

func (env *testEnv) do(method, path, bearer string, body interface{}) *httptest.ResponseRecorder {
	var rd *strings.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		rd = strings.NewReader(string(raw))
	} else {
		rd = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) register(t *testing.T, email, mobile, password, role string) authBody {
	t.Helper()
	rec := env.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": email, "mobile": mobile, "password": password, "role": role,
		"fullName": "Test User",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out authBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

type authBody struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	User         struct {
		ID    uint64 `json:"id"`
		Email string `json:"email"`
		Role  string `json:"role"`
	} `json:"user"`
}

// ----- tests -----

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)
	reg := env.register(t, "asha@evcore.in", "9000000001", "fleetpass1", "employee")
	assert.NotEmpty(t, reg.Token)
	assert.NotEmpty(t, reg.RefreshToken)
	assert.Equal(t, "employee", reg.User.Role)

	rec := env.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "asha@evcore.in", "password": "fleetpass1",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body authBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Token)
	assert.NotContains(t, rec.Body.String(), "passwordHash")
	assert.NotContains(t, rec.Body.String(), "fleetpass1")
}

func TestLoginByMobile(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "asha@evcore.in", "9000000001", "fleetpass1", "pilot")

	rec := env.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "9000000001", "password": "fleetpass1",
	})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestRegisterDuplicate(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "asha@evcore.in", "9000000001", "fleetpass1", "employee")

	rec := env.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "asha@evcore.in", "mobile": "9000000002", "password": "fleetpass1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginUnknownUser(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "ghost@evcore.in", "password": "whatever1",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid credentials")
}

func TestLockoutAfterFiveFailures(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "asha@evcore.in", "9000000001", "fleetpass1", "employee")

	for i := 0; i < 5; i++ {
		rec := env.do(http.MethodPost, "/api/auth/login", "", map[string]string{
			"email": "asha@evcore.in", "password": "wrong-pass",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "attempt %d", i+1)
	}

	// Sixth attempt with the CORRECT password must still be rejected as locked.
	rec := env.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "asha@evcore.in", "password": "fleetpass1",
	})
	assert.Equal(t, http.StatusLocked, rec.Code, rec.Body.String())
}

func TestLoginDeactivatedAccount(t *testing.T) {
	env := newTestEnv(t)
	reg := env.register(t, "asha@evcore.in", "9000000001", "fleetpass1", "employee")
	env.users.deactivate(reg.User.ID)

	rec := env.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "asha@evcore.in", "password": "fleetpass1",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "deactivated")
}

func TestRefreshRotationRejectsReplay(t *testing.T) {
	env := newTestEnv(t)
	reg := env.register(t, "asha@evcore.in", "9000000001", "fleetpass1", "employee")

	rec := env.do(http.MethodPost, "/api/auth/refresh", "", map[string]string{
		"refreshToken": reg.RefreshToken,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// The same refresh token a second time must fail with a uniform 401.
	rec = env.do(http.MethodPost, "/api/auth/refresh", "", map[string]string{
		"refreshToken": reg.RefreshToken,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid refresh token")
}

func TestRefreshMissingToken(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodPost, "/api/auth/refresh", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerifyReturnsFreshPermissions(t *testing.T) {
	env := newTestEnv(t)
	reg := env.register(t, "asha@evcore.in", "9000000001", "fleetpass1", "employee")

	rec := env.do(http.MethodGet, "/api/auth/verify", reg.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out struct {
		User struct {
			Role        string                       `json:"role"`
			Permissions map[string]model.ModuleGrant `json:"permissions"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "employee", out.User.Role)
	assert.True(t, out.User.Permissions["database-management"].Enabled)
	_, pilotOnly := out.User.Permissions["nonexistent"]
	assert.False(t, pilotOnly)
}

func TestVerifyRejectsRoleChangedAfterIssuance(t *testing.T) {
	env := newTestEnv(t)
	reg := env.register(t, "asha@evcore.in", "9000000001", "fleetpass1", "employee")

	// The token still claims employee; the stored role moved on.
	env.users.setRole(reg.User.ID, "pilot")

	rec := env.do(http.MethodGet, "/api/auth/verify", reg.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestVerifyRejectsDeactivated(t *testing.T) {
	env := newTestEnv(t)
	reg := env.register(t, "asha@evcore.in", "9000000001", "fleetpass1", "employee")
	env.users.deactivate(reg.User.ID)

	rec := env.do(http.MethodGet, "/api/auth/verify", reg.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "deactivated")
}

func TestVerifyRejectsLockedAccount(t *testing.T) {
	env := newTestEnv(t)
	reg := env.register(t, "asha@evcore.in", "9000000001", "fleetpass1", "employee")

	// Tokens issued before the lockout must stop working while it holds.
	env.users.lock(reg.User.ID, 30*time.Minute)

	rec := env.do(http.MethodGet, "/api/auth/verify", reg.Token, nil)
	assert.Equal(t, http.StatusLocked, rec.Code, rec.Body.String())

	// Middleware-protected routes reject the same token uniformly.
	rec = env.do(http.MethodGet, "/api/auth/me", reg.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodPost, "/api/auth/refresh", "", map[string]string{
		"refreshToken": reg.RefreshToken,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChangePasswordInvalidatesRefreshTokens(t *testing.T) {
	env := newTestEnv(t)
	reg := env.register(t, "asha@evcore.in", "9000000001", "fleetpass1", "employee")

	rec := env.do(http.MethodPut, "/api/auth/change-password", reg.Token, map[string]string{
		"currentPassword":    "fleetpass1",
		"newPassword":        "fleetpass2",
		"newPasswordConfirm": "fleetpass2",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Pre-change refresh token is dead.
	rec = env.do(http.MethodPost, "/api/auth/refresh", "", map[string]string{
		"refreshToken": reg.RefreshToken,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Old password no longer logs in, new one does.
	rec = env.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "asha@evcore.in", "password": "fleetpass1",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = env.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "asha@evcore.in", "password": "fleetpass2",
	})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	env := newTestEnv(t)
	reg := env.register(t, "asha@evcore.in", "9000000001", "fleetpass1", "employee")

	rec := env.do(http.MethodPut, "/api/auth/change-password", reg.Token, map[string]string{
		"currentPassword":    "not-it",
		"newPassword":        "fleetpass2",
		"newPasswordConfirm": "fleetpass2",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChangePasswordConfirmMismatch(t *testing.T) {
	env := newTestEnv(t)
	reg := env.register(t, "asha@evcore.in", "9000000001", "fleetpass1", "employee")

	rec := env.do(http.MethodPut, "/api/auth/change-password", reg.Token, map[string]string{
		"currentPassword":    "fleetpass1",
		"newPassword":        "fleetpass2",
		"newPasswordConfirm": "fleetpass3",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "confirmation")
}

func TestLogoutSpecificTokenKeepsOthers(t *testing.T) {
	env := newTestEnv(t)
	reg := env.register(t, "asha@evcore.in", "9000000001", "fleetpass1", "employee")

	// Second session.
	rec := env.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "asha@evcore.in", "password": "fleetpass1",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var second authBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))

	// Log out only the first session's refresh token.
	rec = env.do(http.MethodPost, "/api/auth/logout", reg.Token, map[string]string{
		"refreshToken": reg.RefreshToken,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(http.MethodPost, "/api/auth/refresh", "", map[string]string{"refreshToken": reg.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = env.do(http.MethodPost, "/api/auth/refresh", "", map[string]string{"refreshToken": second.RefreshToken})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogoutEverywhere(t *testing.T) {
	env := newTestEnv(t)
	reg := env.register(t, "asha@evcore.in", "9000000001", "fleetpass1", "employee")

	rec := env.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "asha@evcore.in", "password": "fleetpass1",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var second authBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))

	// No body: revoke the caller's entire list.
	rec = env.do(http.MethodPost, "/api/auth/logout", reg.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	for i, rt := range []string{reg.RefreshToken, second.RefreshToken} {
		rec = env.do(http.MethodPost, "/api/auth/refresh", "", map[string]string{"refreshToken": rt})
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "token %d", i)
	}
}

func TestLogoutRequiresBearer(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodPost, "/api/auth/logout", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProductionRegisterRequiresSuperAdmin(t *testing.T) {
	env := newTestEnv(t)
	env.h.Cfg.Env = "prod"

	// Anonymous self-registration is rejected outright.
	rec := env.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "walkin@evcore.in", "mobile": "9000000009", "password": "fleetpass1",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Seed a super_admin while in dev posture, then switch back.
	env.h.Cfg.Env = "test"
	root := env.register(t, "root@evcore.in", "9000000000", "rootpass12", "super_admin")
	env.h.Cfg.Env = "prod"

	rec = env.do(http.MethodPost, "/api/auth/register", root.Token, map[string]string{
		"email": "staff@evcore.in", "mobile": "9000000002", "password": "fleetpass1", "role": "employee",
	})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// An employee bearer is authenticated but not authorized.
	login := env.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "staff@evcore.in", "password": "fleetpass1",
	})
	require.Equal(t, http.StatusOK, login.Code)
	var staff authBody
	require.NoError(t, json.Unmarshal(login.Body.Bytes(), &staff))

	rec = env.do(http.MethodPost, "/api/auth/register", staff.Token, map[string]string{
		"email": "more@evcore.in", "mobile": "9000000003", "password": "fleetpass1",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminDeactivateUser(t *testing.T) {
	env := newTestEnv(t)
	root := env.register(t, "root@evcore.in", "9000000000", "rootpass12", "super_admin")
	staff := env.register(t, "staff@evcore.in", "9000000002", "fleetpass1", "employee")

	path := fmt.Sprintf("/api/admin/users/%d/deactivate", staff.User.ID)
	rec := env.do(http.MethodPut, path, root.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// The account can no longer log in, verify, or refresh.
	rec = env.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "staff@evcore.in", "password": "fleetpass1",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = env.do(http.MethodGet, "/api/auth/verify", staff.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = env.do(http.MethodPost, "/api/auth/refresh", "", map[string]string{
		"refreshToken": staff.RefreshToken,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminDeactivateGuards(t *testing.T) {
	env := newTestEnv(t)
	root := env.register(t, "root@evcore.in", "9000000000", "rootpass12", "super_admin")
	staff := env.register(t, "staff@evcore.in", "9000000002", "fleetpass1", "employee")

	// Only super_admin reaches the admin group.
	rec := env.do(http.MethodPut,
		fmt.Sprintf("/api/admin/users/%d/deactivate", root.User.ID), staff.Token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Self-deactivation is refused.
	rec = env.do(http.MethodPut,
		fmt.Sprintf("/api/admin/users/%d/deactivate", root.User.ID), root.Token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown target.
	rec = env.do(http.MethodPut, "/api/admin/users/9999/deactivate", root.Token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMeAndProfile(t *testing.T) {
	env := newTestEnv(t)
	reg := env.register(t, "asha@evcore.in", "9000000001", "fleetpass1", "employee")

	rec := env.do(http.MethodGet, "/api/auth/me", reg.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "asha@evcore.in")

	rec = env.do(http.MethodPut, "/api/auth/profile", reg.Token, map[string]string{
		"fullName": "Asha Pilotkar",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "Asha Pilotkar")

	u, err := env.users.GetByID(context.Background(), reg.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "Asha Pilotkar", u.FullName)
	assert.Equal(t, "9000000001", u.Mobile, "mobile unchanged when omitted")
}

// Interface conformance for the real repositories; keeps the fakes honest.
var (
	_ handler.UserStore            = (*repository.UserRepo)(nil)
	_ handler.PermissionStore      = (*repository.PermissionRepo)(nil)
	_ auth.RefreshStore            = (*repository.TokenRepo)(nil)
	_ handler.PermissionAdminStore = (*repository.PermissionRepo)(nil)
)
