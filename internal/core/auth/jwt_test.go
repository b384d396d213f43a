package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t0 time.Time) (*time.Time, func() time.Time) {
	cur := t0
	return &cur, func() time.Time { return cur }
}

func newTestService(now func() time.Time) *TokenService {
	s := NewTokenService("test-secret", "auth-test", time.Hour, 24*time.Hour)
	s.Now = now
	return s
}

func TestTokenService_Defaults(t *testing.T) {
	s := NewTokenService("k", "iss", 0, 0)
	assert.Equal(t, DefaultAccessTTL, s.AccessTTL)
	assert.Equal(t, DefaultRefreshTTL, s.RefreshTTL)
}

func TestTokenService_IssueAndVerify(t *testing.T) {
	t0 := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	_, now := fixedClock(t0)
	s := newTestService(now)

	tok, exp, err := s.IssueAccessToken("user-1")
	require.NoError(t, err)
	assert.True(t, exp.Equal(t0.Add(time.Hour)))

	c, err := s.Verify(tok, KindAccess)
	require.NoError(t, err)
	assert.Equal(t, "user-1", c.UserID())
	assert.Equal(t, KindAccess, c.Kind)
	assert.Equal(t, "auth-test", c.Issuer)
	assert.True(t, c.IssuedAt.Time.Equal(t0))
}

func TestTokenService_ExpiryBoundary(t *testing.T) {
	t0 := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	cur, now := fixedClock(t0)
	s := newTestService(now)

	tok, exp, err := s.IssueRefreshToken("user-1")
	require.NoError(t, err)

	*cur = exp.Add(-time.Second)
	_, err = s.Verify(tok, KindRefresh)
	assert.NoError(t, err)

	*cur = exp
	_, err = s.Verify(tok, KindRefresh)
	assert.ErrorIs(t, err, ErrTokenExpired)

	*cur = exp.Add(time.Minute)
	_, err = s.Verify(tok, KindRefresh)
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.NotErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenService_InvalidTokens(t *testing.T) {
	_, now := fixedClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	s := newTestService(now)
	access, _, err := s.IssueAccessToken("user-1")
	require.NoError(t, err)

	other := newTestService(now)
	other.Secret = []byte("another-secret")
	forged, _, err := other.IssueAccessToken("user-1")
	require.NoError(t, err)

	otherIss := newTestService(now)
	otherIss.Issuer = "someone-else"
	wrongIss, _, err := otherIss.IssueAccessToken("user-1")
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Kind: KindAccess, RegisteredClaims: jwt.RegisteredClaims{
		Subject: "user-1", Issuer: "auth-test", ExpiresAt: jwt.NewNumericDate(now().Add(time.Hour)),
	}})
	noneTok, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	parts := strings.Split(access, ".")
	tests := []struct {
		name string
		tok  string
		kind Kind
	}{
		{"garbage", "not-a-jwt", KindAccess},
		{"empty", "", KindAccess},
		{"tampered", strings.Join(parts[:2], ".") + ".c2lnbmF0dXJl", KindAccess},
		{"wrong secret", forged, KindAccess},
		{"wrong issuer", wrongIss, KindAccess},
		{"alg none", noneTok, KindAccess},
		{"wrong kind", access, KindRefresh},
		{"truncated", strings.Join(parts[:2], "."), KindAccess},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Verify(tt.tok, tt.kind)
			assert.ErrorIs(t, err, ErrTokenInvalid)
			assert.NotErrorIs(t, err, ErrTokenExpired)
		})
	}
}

func TestTokenService_ExpiredWithBadSignatureIsInvalid(t *testing.T) {
	t0 := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	cur, now := fixedClock(t0)
	other := newTestService(now)
	other.Secret = []byte("another-secret")
	forged, exp, err := other.IssueAccessToken("user-1")
	require.NoError(t, err)

	s := newTestService(now)
	*cur = exp.Add(time.Hour)
	_, err = s.Verify(forged, KindAccess)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenService_EmptySubject(t *testing.T) {
	s := NewTokenService("k", "iss", time.Hour, time.Hour)
	_, _, err := s.IssueAccessToken("")
	assert.Error(t, err)
}
