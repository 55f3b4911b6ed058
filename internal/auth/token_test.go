package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evcore/fleet-api/internal/model"
)

type memRefreshStore struct {
	mu   sync.Mutex
	rows map[string]memRefreshRow
}

type memRefreshRow struct {
	userID  uint64
	exp     time.Time
	revoked bool
}

func newMemRefreshStore() *memRefreshStore {
	return &memRefreshStore{rows: make(map[string]memRefreshRow)}
}

func (m *memRefreshStore) StoreRefresh(_ context.Context, userID uint64, hash string, exp time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[hash] = memRefreshRow{userID: userID, exp: exp}
	return nil
}

func (m *memRefreshStore) ValidateRefresh(_ context.Context, hash string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[hash]
	if !ok || row.revoked || time.Now().UTC().After(row.exp) {
		return 0, ErrRefreshRevoked
	}
	return row.userID, nil
}

func (m *memRefreshStore) RevokeByHash(_ context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[hash]; ok {
		row.revoked = true
		m.rows[hash] = row
	}
	return nil
}

func (m *memRefreshStore) RevokeAllForUser(_ context.Context, userID uint64) error {
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

func newTestService(store RefreshStore) *TokenService {
	return NewTokenService("access-secret", "refresh-secret", 15*time.Minute, 7*24*time.Hour, store)
}

func testUser() model.User {
	return model.User{ID: 42, Email: "ops@evcore.in", Role: "employee", IsActive: true}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	ts := newTestService(newMemRefreshStore())

	raw, exp, err := ts.IssueAccess(testUser())
	require.NoError(t, err)
	require.NotEmpty(t, raw)
	assert.WithinDuration(t, time.Now().UTC().Add(15*time.Minute), exp, 5*time.Second)

	claims, err := ts.VerifyAccess(raw)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), claims.UserID)
	assert.Equal(t, "employee", claims.Role)
	assert.False(t, claims.IssuedAt.IsZero())
}

func TestAccessTokenWrongSecret(t *testing.T) {
	store := newMemRefreshStore()
	ts := newTestService(store)
	other := NewTokenService("different-secret", "refresh-secret", time.Minute, time.Hour, store)

	raw, _, err := ts.IssueAccess(testUser())
	require.NoError(t, err)

	_, err = other.VerifyAccess(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAccessAndRefreshSecretsAreNotInterchangeable(t *testing.T) {
	ts := newTestService(newMemRefreshStore())

	refresh, _, err := ts.IssueRefresh(context.Background(), testUser())
	require.NoError(t, err)

	// A refresh token must never pass access verification.
	_, err = ts.VerifyAccess(refresh)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExpiredAccessToken(t *testing.T) {
	store := newMemRefreshStore()
	ts := NewTokenService("access-secret", "refresh-secret", -time.Minute, time.Hour, store)

	raw, _, err := ts.IssueAccess(testUser())
	require.NoError(t, err)

	_, err = ts.VerifyAccess(raw)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestRefreshRotationIsSingleUse(t *testing.T) {
	ctx := context.Background()
	ts := newTestService(newMemRefreshStore())
	u := testUser()

	first, _, err := ts.IssueRefresh(ctx, u)
	require.NoError(t, err)

	uid, err := ts.VerifyRefresh(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, u.ID, uid)

	pair, err := ts.Rotate(ctx, first, u)
	require.NoError(t, err)
	require.NotEmpty(t, pair.RefreshToken)
	assert.NotEqual(t, first, pair.RefreshToken)

	// Replaying the exchanged token must fail even though the signature
	// is still valid.
	_, err = ts.VerifyRefresh(ctx, first)
	assert.ErrorIs(t, err, ErrRefreshRevoked)

	// The rotated-in token still works.
	_, err = ts.VerifyRefresh(ctx, pair.RefreshToken)
	assert.NoError(t, err)
}

func TestRevokeAllKillsEveryRefreshToken(t *testing.T) {
	ctx := context.Background()
	ts := newTestService(newMemRefreshStore())
	u := testUser()

	a, _, err := ts.IssueRefresh(ctx, u)
	require.NoError(t, err)
	b, _, err := ts.IssueRefresh(ctx, u)
	require.NoError(t, err)

	require.NoError(t, ts.RevokeAll(ctx, u.ID))

	_, err = ts.VerifyRefresh(ctx, a)
	assert.ErrorIs(t, err, ErrRefreshRevoked)
	_, err = ts.VerifyRefresh(ctx, b)
	assert.ErrorIs(t, err, ErrRefreshRevoked)
}

func TestVerifyRefreshRejectsUnlistedToken(t *testing.T) {
	ctx := context.Background()
	// Same secrets, separate stores: a token minted against one list is
	// cryptographically fine but unlisted in the other.
	tsA := newTestService(newMemRefreshStore())
	tsB := newTestService(newMemRefreshStore())

	raw, _, err := tsA.IssueRefresh(ctx, testUser())
	require.NoError(t, err)

	_, err = tsB.VerifyRefresh(ctx, raw)
	assert.ErrorIs(t, err, ErrRefreshRevoked)
}

func TestVerifyAccessGarbage(t *testing.T) {
	ts := newTestService(newMemRefreshStore())
	for _, raw := range []string{"", "not-a-token", "a.b", "a.b.c.d"} {
		_, err := ts.VerifyAccess(raw)
		assert.Error(t, err, "input %q", raw)
	}
}
