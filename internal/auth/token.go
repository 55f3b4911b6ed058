package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/evcore/fleet-api/internal/model"
)

// RefreshStore is the server-side refresh-token list.  Implemented by
// repository.TokenRepo; kept as an interface so the token service can be
// exercised against an in-memory list in tests.
type RefreshStore interface {
	StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error)
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID uint64) error
}

// AccessClaims is the decoded payload of an access token.  Claims are a
// snapshot taken at issuance; callers must re-check the live user record
// before trusting Role or treating the holder as active.
type AccessClaims struct {
	UserID    uint64
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Pair bundles the two tokens returned by login, register and refresh.
type Pair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// TokenService is the single owner of signing secrets and expiry windows.
// Access and refresh tokens are signed with different secrets so one leaking
// never compromises the other.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	store         RefreshStore
}

// NewTokenService builds a TokenService from the configured secrets and TTLs.
func NewTokenService(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration, store RefreshStore) *TokenService {
	return &TokenService{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		store:         store,
	}
}

// IssueAccess signs a short-lived HS256 access token carrying the user's id
// and role.
func (s *TokenService) IssueAccess(u model.User) (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(s.accessTTL)
	claims := jwt.MapClaims{
		"sub":  u.ID,
		"role": u.Role,
		"iat":  now.Unix(),
		"exp":  exp.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.accessSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// IssueRefresh signs a long-lived refresh token with the refresh secret and
// appends its hash to the user's server-side list.  The jti keeps two tokens
// minted in the same second from colliding.
func (s *TokenService) IssueRefresh(ctx context.Context, u model.User) (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(s.refreshTTL)
	claims := jwt.MapClaims{
		"sub": u.ID,
		"jti": uuid.NewString(),
		"iat": now.Unix(),
		"exp": exp.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.refreshSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	if err := s.store.StoreRefresh(ctx, u.ID, HashToken(signed), exp); err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// IssuePair mints an access+refresh pair for the user.
func (s *TokenService) IssuePair(ctx context.Context, u model.User) (Pair, error) {
	access, accessExp, err := s.IssueAccess(u)
	if err != nil {
		return Pair{}, err
	}
	refresh, refreshExp, err := s.IssueRefresh(ctx, u)
	if err != nil {
		return Pair{}, err
	}
	return Pair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// VerifyAccess checks signature and expiry of an access token and returns its
// claims.  A passing result only proves the token was once issued: callers
// must still load the user and re-check active/lock/role state.
func (s *TokenService) VerifyAccess(raw string) (AccessClaims, error) {
	claims, err := s.parse(raw, s.accessSecret)
	if err != nil {
		return AccessClaims{}, err
	}
	role, _ := claims["role"].(string)
	out := AccessClaims{
		UserID: claimUint64(claims["sub"]),
		Role:   role,
	}
	if iat, ok := claims["iat"].(float64); ok {
		out.IssuedAt = time.Unix(int64(iat), 0).UTC()
	}
	if exp, ok := claims["exp"].(float64); ok {
		out.ExpiresAt = time.Unix(int64(exp), 0).UTC()
	}
	if out.UserID == 0 || out.Role == "" {
		return AccessClaims{}, ErrInvalidToken
	}
	return out, nil
}

// VerifyRefresh checks signature and expiry of a refresh token, then checks
// the hash against the user's server-side list.  A signed token that has been
// rotated or revoked fails with ErrRefreshRevoked.
func (s *TokenService) VerifyRefresh(ctx context.Context, raw string) (uint64, error) {
	claims, err := s.parse(raw, s.refreshSecret)
	if err != nil {
		return 0, err
	}
	sub := claimUint64(claims["sub"])
	if sub == 0 {
		return 0, ErrInvalidToken
	}
	uid, err := s.store.ValidateRefresh(ctx, HashToken(raw))
	if err != nil || uid != sub {
		return 0, ErrRefreshRevoked
	}
	return uid, nil
}

// Rotate invalidates the presented refresh token and mints a fresh pair.
// Refresh tokens are single-use: the revocation happens before issuance so a
// replayed token is dead even if issuing the new pair fails.
func (s *TokenService) Rotate(ctx context.Context, raw string, u model.User) (Pair, error) {
	if err := s.store.RevokeByHash(ctx, HashToken(raw)); err != nil {
		return Pair{}, err
	}
	return s.IssuePair(ctx, u)
}

// RevokeRefresh invalidates a single refresh token.
func (s *TokenService) RevokeRefresh(ctx context.Context, raw string) error {
	return s.store.RevokeByHash(ctx, HashToken(raw))
}

// RevokeAll invalidates every refresh token of a user (logout-everywhere,
// password change).
func (s *TokenService) RevokeAll(ctx context.Context, userID uint64) error {
	return s.store.RevokeAllForUser(ctx, userID)
}

func (s *TokenService) parse(raw string, secret []byte) (jwt.MapClaims, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok || !tok.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// claimUint64 tolerates the number encodings the jwt library may hand back.
func claimUint64(v interface{}) uint64 {
	switch n := v.(type) {
	case float64:
		return uint64(n)
	case int64:
		return uint64(n)
	case uint64:
		return n
	}
	return 0
}

// HashToken returns the SHA-256 hex digest of a raw token.  Only digests are
// persisted so a leaked refresh_tokens table cannot be replayed.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
