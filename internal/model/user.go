package model

import "time"

// User represents an account row in the `users` table.  Accounts are never
// physically deleted; IsActive is flipped off instead so that issued tokens
// can still be traced back to their owner.
//
// Fields:
//  ID                  – primary key identifier of the user.
//  Email               – unique email address (stored lower-cased).
//  Mobile              – unique mobile number.
//  FullName            – display name.
//  PasswordHash        – bcrypt hashed password.
//  Role                – canonical role name (super_admin, admin, employee, pilot).
//  IsActive            – whether the account may log in or verify tokens.
//  FailedLoginAttempts – consecutive failed password checks since last success.
//  LockUntil           – account is locked while this is in the future (nullable).
//  MustChangePassword  – forces a password rotation on next login.
//  PasswordChangedAt   – tokens issued before this instant are stale.
//  LastLoginAt         – stamped on every successful login (nullable).
type User struct {
	ID                  uint64
	Email               string
	Mobile              string
	FullName            string
	PasswordHash        string
	Role                string
	IsActive            bool
	FailedLoginAttempts int
	LockUntil           *time.Time
	MustChangePassword  bool
	PasswordChangedAt   time.Time
	LastLoginAt         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Locked reports whether the account is currently locked out.
func (u *User) Locked() bool {
	return u.LockUntil != nil && time.Now().UTC().Before(*u.LockUntil)
}

// RefreshToken models an entry in the `refresh_tokens` table.  The raw token
// is never stored; only its SHA-256 hash.  A row with RevokedAt set is dead
// even if the token itself has not expired, which is how rotation and
// logout-everywhere are enforced.
type RefreshToken struct {
	ID        uint64
	UserID    uint64
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}

// Live reports whether the token can still be redeemed.
func (t *RefreshToken) Live() bool {
	return t.RevokedAt == nil && time.Now().UTC().Before(t.ExpiresAt)
}
