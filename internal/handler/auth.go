package handler

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/evcore/fleet-api/internal/auth"
	"github.com/evcore/fleet-api/internal/config"
	"github.com/evcore/fleet-api/internal/middleware"
	"github.com/evcore/fleet-api/internal/model"
	"github.com/evcore/fleet-api/internal/queue"
	"github.com/evcore/fleet-api/internal/rbac"
	"github.com/evcore/fleet-api/internal/service/audit"
)

// UserStore is the slice of repository.UserRepo the auth handlers need.
type UserStore interface {
	Create(ctx context.Context, u model.User) (uint64, error)
	GetByEmailOrMobile(ctx context.Context, ident string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
	RecordLoginFailure(ctx context.Context, id uint64, maxAttempts int, lockFor time.Duration) error
	ResetLoginFailures(ctx context.Context, id uint64) error
	UpdatePassword(ctx context.Context, id uint64, hash string) error
	UpdateProfile(ctx context.Context, id uint64, fullName, mobile string) error
	Deactivate(ctx context.Context, id uint64) error
}

// PermissionStore is the slice of repository.PermissionRepo the auth
// handlers need.
type PermissionStore interface {
	EnsureDefaults(ctx context.Context, role string) error
	ModulesForRole(ctx context.Context, role string) (map[string]model.ModuleGrant, error)
}

// AuthHandler bundles dependencies for the auth endpoints.  Publish defaults
// to the RabbitMQ audit publisher; tests inject a no-op.
type AuthHandler struct {
	Cfg     config.Config
	Users   UserStore
	Perms   PermissionStore
	Tokens  *auth.TokenService
	Publish func(ctx context.Context, ev queue.AuthEvent) error
}

func NewAuthHandler(cfg config.Config, users UserStore, perms PermissionStore, tokens *auth.TokenService) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: users, Perms: perms, Tokens: tokens, Publish: audit.Publish}
}

// ----- DTOs -----

type registerReq struct {
	Email    string `json:"email"`
	Mobile   string `json:"mobile"`
	FullName string `json:"fullName"`
	Password string `json:"password"`
	Role     string `json:"role"`
}
type loginReq struct {
	Email    string `json:"email"` // email or mobile number
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refreshToken"`
}
type changePasswordReq struct {
	CurrentPassword    string `json:"currentPassword"`
	NewPassword        string `json:"newPassword"`
	NewPasswordConfirm string `json:"newPasswordConfirm"`
}
type profileReq struct {
	FullName string `json:"fullName"`
	Mobile   string `json:"mobile"`
}

type userPayload struct {
	ID                 uint64                       `json:"id"`
	Email              string                       `json:"email"`
	Mobile             string                       `json:"mobile"`
	FullName           string                       `json:"fullName"`
	Role               string                       `json:"role"`
	MustChangePassword bool                         `json:"mustChangePassword"`
	Permissions        map[string]model.ModuleGrant `json:"permissions,omitempty"`
}

type authResp struct {
	Token        string      `json:"token"`
	RefreshToken string      `json:"refreshToken"`
	User         userPayload `json:"user"`
}

// sanitizeUser strips password hash and token list from the response shape.
func sanitizeUser(u model.User) userPayload {
	return userPayload{
		ID:                 u.ID,
		Email:              u.Email,
		Mobile:             u.Mobile,
		FullName:           u.FullName,
		Role:               u.Role,
		MustChangePassword: u.MustChangePassword,
	}
}

// fail translates the auth error taxonomy into a response.  Credential and
// token failures share bodies so callers cannot probe which check tripped.
func fail(c echo.Context, err error) error {
	switch {
	case errors.Is(err, auth.ErrAccountLocked):
		return c.JSON(http.StatusLocked, echo.Map{"error": "account locked, try again later"})
	case errors.Is(err, auth.ErrAccountDeactivated):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "account deactivated"})
	case errors.Is(err, auth.ErrInvalidCredentials):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	case errors.Is(err, auth.ErrPasswordMismatch):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "password confirmation does not match"})
	case errors.Is(err, auth.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, auth.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	default:
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
	}
}

func (h *AuthHandler) publish(ev queue.AuthEvent) {
	if h.Publish == nil {
		return
	}
	// Fire and forget: audit must never block or fail a request.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.Publish(ctx, ev)
	}()
}

// Register creates a user, seeds the role's permission row if missing, and
// returns a token pair.  In the production posture self-registration is
// disabled: only an authenticated super_admin may create accounts.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Mobile = strings.TrimSpace(req.Mobile)
	if req.Email == "" || !strings.Contains(req.Email, "@") || req.Mobile == "" || len(req.Password) < 8 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email, mobile and password (min 8 chars) required"})
	}
	role := strings.ToLower(strings.TrimSpace(req.Role))
	if role == "" {
		role = rbac.RoleEmployee
	}
	if !rbac.Valid(role) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown role"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if h.Cfg.Production() {
		raw, ok := middleware.BearerToken(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "registration requires authentication"})
		}
		caller, err := middleware.Authenticate(ctx, h.Tokens, h.Users, raw)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
		}
		if caller.Role != rbac.RoleSuperAdmin {
			return fail(c, auth.ErrForbidden)
		}
	}

	hash, err := auth.HashPassword(req.Password, h.Cfg.BcryptCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create user failed"})
	}
	uid, err := h.Users.Create(ctx, model.User{
		Email:        req.Email,
		Mobile:       req.Mobile,
		FullName:     strings.TrimSpace(req.FullName),
		PasswordHash: hash,
		Role:         role,
	})
	if err != nil {
		if errors.Is(err, auth.ErrDuplicateUser) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "email or mobile already registered"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create user failed"})
	}

	// First user of a role brings the role's default grants into existence.
	if err := h.Perms.EnsureDefaults(ctx, role); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "seed permissions failed"})
	}

	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load user failed"})
	}
	pair, err := h.Tokens.IssuePair(ctx, u)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue tokens failed"})
	}

	h.publish(queue.AuthEvent{Type: queue.EventUserRegistered, UserID: uid, Identity: u.Email, Role: role, RemoteIP: c.RealIP()})
	return c.JSON(http.StatusCreated, authResp{
		Token:        pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         sanitizeUser(u),
	})
}

// Login verifies credentials and returns a fresh pair plus the sanitized
// user.  Failure responses stay generic on purpose; the precise cause only
// reaches the audit queue.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ident := strings.TrimSpace(req.Email)
	if ident == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByEmailOrMobile(ctx, ident)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.publish(queue.AuthEvent{Type: queue.EventLoginFailed, Identity: ident, RemoteIP: c.RealIP()})
			return fail(c, auth.ErrInvalidCredentials)
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	// Lock beats everything, including a correct password.
	if u.Locked() {
		h.publish(queue.AuthEvent{Type: queue.EventLoginFailed, UserID: u.ID, Identity: ident, RemoteIP: c.RealIP()})
		return fail(c, auth.ErrAccountLocked)
	}
	if !u.IsActive {
		return fail(c, auth.ErrAccountDeactivated)
	}
	if !auth.CheckPassword(u.PasswordHash, req.Password) {
		lockFor := time.Duration(h.Cfg.LockoutMinutes) * time.Minute
		_ = h.Users.RecordLoginFailure(ctx, u.ID, h.Cfg.MaxLoginAttempts, lockFor)
		ev := queue.EventLoginFailed
		if u.FailedLoginAttempts+1 >= h.Cfg.MaxLoginAttempts {
			ev = queue.EventAccountLocked
		}
		h.publish(queue.AuthEvent{Type: ev, UserID: u.ID, Identity: ident, RemoteIP: c.RealIP()})
		return fail(c, auth.ErrInvalidCredentials)
	}

	if err := h.Users.ResetLoginFailures(ctx, u.ID); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update user failed"})
	}
	pair, err := h.Tokens.IssuePair(ctx, u)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue tokens failed"})
	}

	h.publish(queue.AuthEvent{Type: queue.EventLogin, UserID: u.ID, Identity: ident, Role: u.Role, RemoteIP: c.RealIP()})
	return c.JSON(http.StatusOK, authResp{
		Token:        pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         sanitizeUser(u),
	})
}

// Refresh rotates the presented refresh token.  Every verification failure
// maps to the same 401 body so callers cannot probe whether a token is
// expired, forged or revoked.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh token required"})
	}
	raw := strings.TrimSpace(req.RefreshToken)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	uid, err := h.Tokens.VerifyRefresh(ctx, raw)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
	}
	u, err := h.Users.GetByID(ctx, uid)
	if err != nil || !u.IsActive || u.Locked() {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
	}
	pair, err := h.Tokens.Rotate(ctx, raw, u)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue tokens failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"token":        pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	})
}

// Logout invalidates the refresh token named in the body, or the caller's
// entire list when the body names none (logout-everywhere).  Requires a
// valid bearer; BearerAuth has already stored the caller.
func (h *AuthHandler) Logout(c echo.Context) error {
	u, ok := middleware.User(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var req refreshReq
	_ = c.Bind(&req) // body is optional
	raw := strings.TrimSpace(req.RefreshToken)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	var err error
	if raw != "" {
		err = h.Tokens.RevokeRefresh(ctx, raw)
	} else {
		err = h.Tokens.RevokeAll(ctx, u.ID)
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
	}

	h.publish(queue.AuthEvent{Type: queue.EventLogout, UserID: u.ID, Identity: u.Email, Role: u.Role, RemoteIP: c.RealIP()})
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

// VerifyToken is the standalone verification endpoint: it accepts a bearer
// header with no prior middleware, re-fetches the user, and returns it with
// the role's current module grants so clients always receive fresh
// authorization data.
func (h *AuthHandler) VerifyToken(c echo.Context) error {
	raw, ok := middleware.BearerToken(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := middleware.Authenticate(ctx, h.Tokens, h.Users, raw)
	if err != nil {
		return fail(c, err)
	}

	modules, err := h.Perms.ModulesForRole(ctx, u.Role)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load permissions failed"})
	}
	payload := sanitizeUser(u)
	payload.Permissions = modules
	return c.JSON(http.StatusOK, echo.Map{"user": payload})
}

// ChangePassword rotates the caller's password and revokes every refresh
// token, forcing re-login on all devices.
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	u, ok := middleware.User(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req changePasswordReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.NewPassword != req.NewPasswordConfirm {
		return fail(c, auth.ErrPasswordMismatch)
	}
	if len(req.NewPassword) < 8 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "password must be at least 8 characters"})
	}
	if !auth.CheckPassword(u.PasswordHash, req.CurrentPassword) {
		return fail(c, auth.ErrInvalidCredentials)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	hash, err := auth.HashPassword(req.NewPassword, h.Cfg.BcryptCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update password failed"})
	}
	if err := h.Users.UpdatePassword(ctx, u.ID, hash); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update password failed"})
	}
	// Old sessions die with the old password.
	if err := h.Tokens.RevokeAll(ctx, u.ID); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "revoke sessions failed"})
	}

	h.publish(queue.AuthEvent{Type: queue.EventPasswordChanged, UserID: u.ID, Identity: u.Email, Role: u.Role, RemoteIP: c.RealIP()})
	return c.JSON(http.StatusOK, echo.Map{"message": "password changed"})
}

// Me returns the caller's sanitized profile.
func (h *AuthHandler) Me(c echo.Context) error {
	u, ok := middleware.User(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	return c.JSON(http.StatusOK, echo.Map{"user": sanitizeUser(u)})
}

// UpdateProfile changes the caller's mutable profile fields.
func (h *AuthHandler) UpdateProfile(c echo.Context) error {
	u, ok := middleware.User(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req profileReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	fullName := strings.TrimSpace(req.FullName)
	mobile := strings.TrimSpace(req.Mobile)
	if fullName == "" && mobile == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "nothing to update"})
	}
	if fullName == "" {
		fullName = u.FullName
	}
	if mobile == "" {
		mobile = u.Mobile
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Users.UpdateProfile(ctx, u.ID, fullName, mobile); err != nil {
		if errors.Is(err, auth.ErrDuplicateUser) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "mobile already registered"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update profile failed"})
	}
	u.FullName = fullName
	u.Mobile = mobile
	return c.JSON(http.StatusOK, echo.Map{"user": sanitizeUser(u)})
}

// DeactivateUser flips an account off and revokes its refresh-token list so
// live sessions end with it.  Registered under the super-admin group; the
// role check happens in the route middleware.
func (h *AuthHandler) DeactivateUser(c echo.Context) error {
	caller, ok := middleware.User(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	// Locking yourself out of the last super_admin account is unrecoverable.
	if id == caller.ID {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "cannot deactivate own account"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fail(c, auth.ErrNotFound)
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if !u.IsActive {
		return c.JSON(http.StatusOK, echo.Map{"message": "user deactivated"})
	}
	if err := h.Users.Deactivate(ctx, id); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "deactivate failed"})
	}
	if err := h.Tokens.RevokeAll(ctx, id); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "revoke sessions failed"})
	}

	h.publish(queue.AuthEvent{Type: queue.EventUserDeactivated, UserID: id, Identity: u.Email, Role: u.Role, RemoteIP: c.RealIP()})
	return c.JSON(http.StatusOK, echo.Map{"message": "user deactivated"})
}
