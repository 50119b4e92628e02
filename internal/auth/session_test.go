package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionCookieRoundTrip(t *testing.T) {
	secret := []byte("unit-test-secret")
	token := randomToken()

	value := encodeSessionCookie(secret, token)
	got, ok := decodeSessionCookie(secret, value)
	require.True(t, ok)
	assert.Equal(t, token, got)
}

func TestSessionCookieRejectsTampering(t *testing.T) {
	secret := []byte("unit-test-secret")
	token := randomToken()
	value := encodeSessionCookie(secret, token)

	t.Run("altered token keeps old signature", func(t *testing.T) {
		forged := strings.Replace(value, token, randomToken(), 1)
		_, ok := decodeSessionCookie(secret, forged)
		assert.False(t, ok)
	})

	t.Run("altered signature", func(t *testing.T) {
		forged := value[:len(value)-1] + flipHexDigit(value[len(value)-1])
		_, ok := decodeSessionCookie(secret, forged)
		assert.False(t, ok)
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, ok := decodeSessionCookie([]byte("other-secret"), value)
		assert.False(t, ok)
	})
}

func TestSessionCookieRejectsMalformedValues(t *testing.T) {
	secret := []byte("unit-test-secret")
	for _, value := range []string{
		"",
		"no-separator",
		"." + signToken(secret, ""),
		"bare-token.",
	} {
		_, ok := decodeSessionCookie(secret, value)
		assert.False(t, ok, "value %q must not decode", value)
	}
}

func TestRandomTokensAreUnique(t *testing.T) {
	assert.NotEqual(t, randomToken(), randomToken())
	assert.Len(t, randomToken(), 64)
}

func flipHexDigit(b byte) string {
	if b == '0' {
		return "1"
	}
	return "0"
}
