package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"provably-fair-dice/internal/config"
)

func TestJWTService(t *testing.T) {
	svc := NewJWTService(&config.Config{JWTSecret: "test-secret", JWTTTL: time.Hour})

	token, issued, err := svc.GenerateToken("player-1")
	require.NoError(t, err)
	assert.NotEmpty(t, issued.SessionID)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "player-1", claims.PlayerID)
	assert.Equal(t, issued.SessionID, claims.SessionID)

	_, _, err = svc.GenerateToken("")
	assert.ErrorIs(t, err, ErrEmptyPlayerID)
}

func TestJWTService_Rejects(t *testing.T) {
	svc := NewJWTService(&config.Config{JWTSecret: "test-secret", JWTTTL: time.Hour})
	token, _, err := svc.GenerateToken("player-1")
	require.NoError(t, err)

	other := NewJWTService(&config.Config{JWTSecret: "other-secret"})
	_, err = other.ValidateToken(token)
	assert.Error(t, err, "wrong secret")

	_, err = svc.ValidateToken("not.a.token")
	assert.Error(t, err)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = svc.ValidateToken(token)
	assert.Error(t, err, "expired")
}
