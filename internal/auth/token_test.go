package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btouchard/taskboard/internal/domain"
)

func TestTokenManager_IssueAndVerify(t *testing.T) {
	t.Parallel()

	m := NewTokenManager([]byte("test-key"), time.Hour, "taskboard")

	token, expires, err := m.Issue(&domain.User{ID: 42})
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)

	id, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, domain.UserID(42), id)
}

func TestTokenManager_Verify_WrongKey(t *testing.T) {
	t.Parallel()

	issuer := NewTokenManager([]byte("key-a"), time.Hour, "taskboard")
	verifier := NewTokenManager([]byte("key-b"), time.Hour, "taskboard")

	token, _, err := issuer.Issue(&domain.User{ID: 1})
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenManager_Verify_Expired(t *testing.T) {
	t.Parallel()

	m := NewTokenManager([]byte("k"), time.Minute, "taskboard")
	m.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, _, err := m.Issue(&domain.User{ID: 1})
	require.NoError(t, err)

	m.now = time.Now
	_, err = m.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestTokenManager_Verify_RejectsOtherIssuer(t *testing.T) {
	t.Parallel()

	a := NewTokenManager([]byte("k"), time.Hour, "other")
	b := NewTokenManager([]byte("k"), time.Hour, "taskboard")

	token, _, err := a.Issue(&domain.User{ID: 1})
	require.NoError(t, err)

	_, err = b.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenManager_Verify_RejectsNonAccessToken(t *testing.T) {
	t.Parallel()

	m := NewTokenManager([]byte("k"), time.Hour, "taskboard")
	claims := Claims{
		UserID:    1,
		TokenType: "refresh",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "taskboard",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
	require.NoError(t, err)

	_, err = m.Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenManager_Verify_Garbage(t *testing.T) {
	t.Parallel()

	_, err := NewTokenManager([]byte("k"), time.Hour, "taskboard").Verify("not.a.jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenManager_DefaultTTL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 30*time.Minute, NewTokenManager([]byte("k"), 0, "x").TTL())
}
