package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "0123456789abcdef0123456789abcdef"

func TestTokensRoundTrip(t *testing.T) {
	tokens := NewTokens(secret, time.Hour)

	raw, err := tokens.Issue(42)
	require.NoError(t, err)

	id, err := tokens.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestTokensRejects(t *testing.T) {
	tokens := NewTokens(secret, time.Hour)
	raw, err := tokens.Issue(7)
	require.NoError(t, err)

	t.Run("wrong secret", func(t *testing.T) {
		_, err := NewTokens("another-secret-another-secret-xx", time.Hour).Verify(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		later := NewTokens(secret, time.Hour)
		later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err := later.Verify(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := tokens.Verify("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestPasswords(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)

	assert.NoError(t, CheckPassword(hash, "correct horse"))
	assert.ErrorIs(t, CheckPassword(hash, "battery staple"), ErrInvalidCredentials)
}

func TestUserIDContext(t *testing.T) {
	_, ok := UserID(context.Background())
	assert.False(t, ok)

	id, ok := UserID(WithUserID(context.Background(), 9))
	assert.True(t, ok)
	assert.Equal(t, int64(9), id)
}
