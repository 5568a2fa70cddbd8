package auth

import (
	"net/http"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVerifier(t *testing.T) *Verifier {
	t.Helper()
	v, err := NewVerifier(Config{Secret: "test-secret"})
	require.NoError(t, err)
	return v
}

func TestNewVerifierRequiresSecret(t *testing.T) {
	_, err := NewVerifier(Config{})
	assert.Error(t, err)
}

func TestVerify(t *testing.T) {
	v := newTestVerifier(t)

	t.Run("issued token round trips", func(t *testing.T) {
		token, err := v.Issue("user-123")
		require.NoError(t, err)

		claims, err := v.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, "user-123", claims.Subject)
		assert.Equal(t, "atlas_scarlet", claims.Issuer)
		assert.Contains(t, claims.Audience, "as-cli")
		assert.True(t, claims.ExpiresAt.After(time.Now().Add(6*24*time.Hour)))
	})

	t.Run("empty token", func(t *testing.T) {
		_, err := v.Verify("")
		assert.True(t, IsMissing(err))
	})

	t.Run("expired token", func(t *testing.T) {
		token, err := v.IssueExpiring("user-123", -time.Minute)
		require.NoError(t, err)

		_, err = v.Verify(token)
		assert.True(t, IsExpired(err))
		assert.False(t, IsMissing(err))
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, err := NewVerifier(Config{Secret: "different-secret"})
		require.NoError(t, err)
		token, err := other.Issue("user-123")
		require.NoError(t, err)

		_, err = v.Verify(token)
		assert.True(t, errors.Is(err, ErrTokenInvalid))
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := v.Verify("not.a.jwt")
		assert.True(t, errors.Is(err, ErrTokenInvalid))
	})
}

func TestBearerToken(t *testing.T) {
	h := http.Header{}
	_, err := BearerToken(h)
	assert.True(t, IsMissing(err))

	h.Set("Authorization", "Basic dXNlcjpwYXNz")
	_, err = BearerToken(h)
	assert.True(t, errors.Is(err, ErrTokenInvalid))

	h.Set("Authorization", "Bearer abc.def.ghi")
	token, err := BearerToken(h)
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", token)
}
