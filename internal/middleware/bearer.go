package middleware // middleware provides shared request processing for handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/evcore/fleet-api/internal/auth"
	"github.com/evcore/fleet-api/internal/model"
)

// UserLoader is the slice of the user repository the middleware needs.
type UserLoader interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// Context keys set by BearerAuth for downstream handlers.
const (
	CtxUser  = "auth_user"  // model.User, the freshly loaded account
	CtxToken = "auth_token" // raw bearer string, for logout
)

// BearerAuth validates the Authorization header and re-checks the live user
// record before letting the request through.  Claims alone are never
// sufficient: the role may have changed, the account may have been
// deactivated or locked, or the password rotated since the token was issued.
func BearerAuth(ts *auth.TokenService, users UserLoader) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := BearerToken(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
			defer cancel()

			u, err := Authenticate(ctx, ts, users, raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			c.Set(CtxUser, u)
			c.Set(CtxToken, raw)
			return next(c)
		}
	}
}

// BearerToken extracts the raw token from the Authorization header.
func BearerToken(c echo.Context) (string, bool) {
	h := c.Request().Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	return raw, raw != ""
}

// Authenticate resolves a raw access token to the current user record.
// Shared by BearerAuth and the standalone verify endpoint so both apply the
// same staleness rules:
//   - user must exist, be active and not be locked out
//   - the token's role claim must still match the stored role
//   - the password must not have changed after the token was issued
func Authenticate(ctx context.Context, ts *auth.TokenService, users UserLoader, raw string) (model.User, error) {
	claims, err := ts.VerifyAccess(raw)
	if err != nil {
		return model.User{}, err
	}
	u, err := users.GetByID(ctx, claims.UserID)
	if err != nil {
		return model.User{}, auth.ErrInvalidToken
	}
	if !u.IsActive {
		return model.User{}, auth.ErrAccountDeactivated
	}
	if u.Locked() {
		return model.User{}, auth.ErrAccountLocked
	}
	if u.Role != claims.Role {
		return model.User{}, auth.ErrInvalidToken
	}
	// iat has second granularity; a change in the same second counts as after.
	if u.PasswordChangedAt.After(claims.IssuedAt) {
		return model.User{}, auth.ErrInvalidToken
	}
	return u, nil
}

// User returns the account stored by BearerAuth.
func User(c echo.Context) (model.User, bool) {
	u, ok := c.Get(CtxUser).(model.User)
	return u, ok
}
