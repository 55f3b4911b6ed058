package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/evcore/fleet-api/internal/auth"
	"github.com/evcore/fleet-api/internal/model"
)

const userColumns = `id,email,mobile,full_name,password_hash,role,is_active,
failed_login_attempts,lock_until,must_change_password,password_changed_at,
last_login_at,created_at,updated_at`

// UserRepo persists accounts in the 'users' table.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// Create inserts a user and returns its ID.  Email and mobile both carry
// unique indexes; a 1062 on either maps to auth.ErrDuplicateUser.
func (r *UserRepo) Create(ctx context.Context, u model.User) (uint64, error) {
	email := strings.ToLower(strings.TrimSpace(u.Email))
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO users (email, mobile, full_name, password_hash, role, is_active, password_changed_at)
		 VALUES (?,?,?,?,?,1,UTC_TIMESTAMP())`,
		email, strings.TrimSpace(u.Mobile), u.FullName, u.PasswordHash, u.Role)
	if err != nil {
		if strings.Contains(err.Error(), "1062") {
			return 0, auth.ErrDuplicateUser
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmailOrMobile fetches a user by login identity.  The caller passes
// whatever was typed into the identity field; we match either column.
func (r *UserRepo) GetByEmailOrMobile(ctx context.Context, ident string) (model.User, error) {
	ident = strings.TrimSpace(ident)
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? OR mobile=? LIMIT 1",
		strings.ToLower(ident), ident))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// RecordLoginFailure bumps the failed-attempt counter and, when the counter
// reaches maxAttempts, sets lock_until in the same statement.  A single
// UPDATE keeps the check-and-lock atomic under concurrent logins.
func (r *UserRepo) RecordLoginFailure(ctx context.Context, id uint64, maxAttempts int, lockFor time.Duration) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE users SET
		   failed_login_attempts = failed_login_attempts + 1,
		   lock_until = IF(failed_login_attempts + 1 >= ?,
		                   DATE_ADD(UTC_TIMESTAMP(), INTERVAL ? SECOND),
		                   lock_until)
		 WHERE id=?`,
		maxAttempts, int(lockFor.Seconds()), id)
	return err
}

// ResetLoginFailures clears the counter and lock and stamps last_login_at.
// Called on every successful password check.
func (r *UserRepo) ResetLoginFailures(ctx context.Context, id uint64) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE users SET failed_login_attempts=0, lock_until=NULL,
		   last_login_at=UTC_TIMESTAMP()
		 WHERE id=?`, id)
	return err
}

// UpdatePassword stores a new hash, stamps password_changed_at so tokens
// issued before the change verify as stale, and clears must_change_password.
func (r *UserRepo) UpdatePassword(ctx context.Context, id uint64, hash string) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE users SET password_hash=?, password_changed_at=UTC_TIMESTAMP(),
		   must_change_password=0
		 WHERE id=?`, hash, id)
	return err
}

// UpdateProfile changes the mutable profile fields.
func (r *UserRepo) UpdateProfile(ctx context.Context, id uint64, fullName, mobile string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET full_name=?, mobile=? WHERE id=?",
		fullName, strings.TrimSpace(mobile), id)
	if err != nil {
		if strings.Contains(err.Error(), "1062") {
			return auth.ErrDuplicateUser
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

// Deactivate turns the account off.  Rows are never deleted.
func (r *UserRepo) Deactivate(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "UPDATE users SET is_active=0 WHERE id=?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (r *UserRepo) scanOne(row *sql.Row) (model.User, error) {
	var (
		u         model.User
		lockUntil sql.NullTime
		lastLogin sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Email, &u.Mobile, &u.FullName, &u.PasswordHash,
		&u.Role, &u.IsActive, &u.FailedLoginAttempts, &lockUntil,
		&u.MustChangePassword, &u.PasswordChangedAt, &lastLogin,
		&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return model.User{}, err
	}
	if lockUntil.Valid {
		t := lockUntil.Time
		u.LockUntil = &t
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return u, nil
}
