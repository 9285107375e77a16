package auth

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/magicsocial/internal/domain"
)

const testSecret = "super-secret-jwt-token-with-at-least-32-characters"

func TestVerifier_Verify(t *testing.T) {
	v := NewVerifier(testSecret)
	user := domain.User{ID: uuid.New(), Email: "ada@example.com", Role: "authenticated"}

	t.Run("valid token", func(t *testing.T) {
		token, err := SignToken(testSecret, user, time.Hour)
		require.NoError(t, err)

		got, err := v.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
		assert.Equal(t, "ada@example.com", got.Email)
	})

	t.Run("expired token", func(t *testing.T) {
		token, err := SignToken(testSecret, user, -time.Hour)
		require.NoError(t, err)

		_, err = v.Verify(token)
		require.Error(t, err)
		assert.Equal(t, domain.EUNAUTHORIZED, domain.ErrorCode(err))
	})

	t.Run("wrong secret", func(t *testing.T) {
		token, err := SignToken("another-secret-another-secret-another", user, time.Hour)
		require.NoError(t, err)

		_, err = v.Verify(token)
		assert.Equal(t, domain.EUNAUTHORIZED, domain.ErrorCode(err))
	})

	t.Run("wrong audience", func(t *testing.T) {
		claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Audience:  jwt.ClaimStrings{"anon"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)

		_, err = v.Verify(token)
		assert.Error(t, err)
	})

	t.Run("non uuid subject", func(t *testing.T) {
		claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "service-role",
			Audience:  jwt.ClaimStrings{DefaultAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)

		_, err = v.Verify(token)
		assert.Equal(t, domain.EUNAUTHORIZED, domain.ErrorCode(err))
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := v.Verify("not.a.jwt")
		assert.Error(t, err)
	})
}

func TestVerifier_VerifyRequest(t *testing.T) {
	v := NewVerifier(testSecret)

	r := httptest.NewRequest("GET", "/api/usage", nil)
	_, err := v.VerifyRequest(r)
	assert.ErrorIs(t, err, ErrNoToken)

	user := domain.User{ID: uuid.New()}
	token, err := SignToken(testSecret, user, time.Minute)
	require.NoError(t, err)

	r.Header.Set("Authorization", "bearer "+token)
	got, err := v.VerifyRequest(r)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"", ""},
		{"Basic abc", ""},
		{"Bearer abc", "abc"},
		{"BEARER  abc ", "abc"},
		{"Bearer", ""},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("Authorization", tt.header)
		assert.Equal(t, tt.want, BearerToken(r), tt.header)
	}
}

func TestContextUser(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, GetUser(ctx))

	u := &domain.User{ID: uuid.New()}
	ctx = SetUser(ctx, u)
	assert.Equal(t, u, GetUser(ctx))

	r := httptest.NewRequest("GET", "/", nil).WithContext(ctx)
	assert.Equal(t, u, GetUserFromRequest(r))
}
