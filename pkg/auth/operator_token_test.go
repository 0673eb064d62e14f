package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperatorTokenRoundTrip(t *testing.T) {
	manager := NewTokenManager([]byte("secret"), time.Hour, "hybridsync")

	token, err := manager.GenerateOperatorToken("alice", "store-7", ScopeSync, "reports")
	require.NoError(t, err)

	claims, err := manager.ValidateOperatorToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, "store-7", claims.StoreID)
	assert.True(t, claims.HasScope(ScopeSync))
	assert.False(t, claims.HasScope("admin"))
}

func TestOperatorTokenRejectsForeignKey(t *testing.T) {
	issuer := NewTokenManager([]byte("secret"), time.Hour, "hybridsync")
	verifier := NewTokenManager([]byte("other"), time.Hour, "hybridsync")

	token, err := issuer.GenerateOperatorToken("alice", "", ScopeSync)
	require.NoError(t, err)

	_, err = verifier.ValidateOperatorToken(token)
	assert.Error(t, err)
}

func TestOperatorTokenRejectsExpired(t *testing.T) {
	manager := NewTokenManager([]byte("secret"), -time.Minute, "hybridsync")

	token, err := manager.GenerateOperatorToken("alice", "", ScopeSync)
	require.NoError(t, err)

	_, err = manager.ValidateOperatorToken(token)
	assert.Error(t, err)
}
