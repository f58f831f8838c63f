package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storm-platform/storm-go/internal/auth"
)

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("server-secret"))
	require.NoError(t, err)
	return tok
}

func TestInspect(t *testing.T) {
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	tok := signed(t, jwt.MapClaims{
		"sub":   "42",
		"scope": "user:email deposit:write",
		"iat":   time.Date(2029, 1, 1, 0, 0, 0, 0, time.UTC).Unix(),
		"exp":   exp.Unix(),
	})

	info, err := auth.Inspect("Bearer " + tok)
	require.NoError(t, err)
	assert.Equal(t, "42", info.Subject)
	assert.Equal(t, []string{"user:email", "deposit:write"}, info.Scopes)
	assert.True(t, info.ExpiresAt.Equal(exp))
	assert.False(t, info.Expired(exp.Add(-time.Second)))
	assert.True(t, info.Expired(exp))
}

func TestInspectWithoutExpiry(t *testing.T) {
	info, err := auth.Inspect(signed(t, jwt.MapClaims{"sub": "42"}))
	require.NoError(t, err)
	assert.True(t, info.ExpiresAt.IsZero())
	assert.False(t, info.Expired(time.Now()))
}

func TestInspectOpaque(t *testing.T) {
	_, err := auth.Inspect("Xk2Jr9lq0ab")
	assert.ErrorIs(t, err, auth.ErrOpaqueToken)

	_, err = auth.Inspect("not.a.jwt")
	assert.Error(t, err)
}

func TestStripBearer(t *testing.T) {
	assert.Equal(t, "abc", auth.StripBearer("bearer abc"))
	assert.Equal(t, "abc", auth.StripBearer(" abc "))
	assert.Equal(t, "", auth.StripBearer(""))
}
