package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	token, expiresAt, err := tm.GenerateToken("user-1", "Ada")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), expiresAt, 5*time.Second)

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "Ada", claims.Name)
}

func TestTokenRejectsOtherSecretAndExpiry(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	token, _, err := tm.GenerateToken("user-1", "")
	require.NoError(t, err)

	_, err = NewTokenManager("other", 5).ParseToken(token)
	assert.Error(t, err)

	tm.now = func() time.Time { return time.Now().Add(-time.Hour) }
	stale, _, err := tm.GenerateToken("user-1", "")
	require.NoError(t, err)
	_, err = NewTokenManager("secret", 5).ParseToken(stale)
	assert.Error(t, err)
}

func TestGenerateTokenRequiresUser(t *testing.T) {
	_, _, err := NewTokenManager("secret", 5).GenerateToken("", "")
	assert.Error(t, err)
}
