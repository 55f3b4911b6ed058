// Package auth implements the token service and the shared error taxonomy
// for the authentication subsystem.  Handlers translate these sentinels into
// HTTP status codes; nothing below the handler layer speaks HTTP.
package auth

import "errors"

var (
	// ErrInvalidCredentials covers unknown identities and wrong passwords
	// alike so the response never reveals which one it was.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountLocked is returned while lock_until is in the future.
	ErrAccountLocked = errors.New("account locked")

	// ErrAccountDeactivated is returned for inactive accounts on both login
	// and token verification.
	ErrAccountDeactivated = errors.New("account deactivated")

	// ErrDuplicateUser signals an email or mobile collision at registration.
	ErrDuplicateUser = errors.New("user already exists")

	// ErrInvalidToken covers bad signatures, malformed tokens and stale
	// claims (role changed or password rotated after issuance).
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is a specialisation of ErrInvalidToken kept distinct
	// for logging; endpoint responses fold it into the generic 401.
	ErrTokenExpired = errors.New("token expired")

	// ErrRefreshRevoked means the presented refresh token is cryptographically
	// fine but no longer in the user's server-side list.
	ErrRefreshRevoked = errors.New("refresh token revoked")

	// ErrPasswordMismatch means new password and confirmation differ.
	ErrPasswordMismatch = errors.New("password confirmation mismatch")

	// ErrValidationFailed covers malformed or incomplete request input.
	ErrValidationFailed = errors.New("validation failed")

	// ErrForbidden means the caller's role is insufficient.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("not found")
)
