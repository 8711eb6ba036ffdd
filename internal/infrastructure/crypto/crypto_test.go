package crypto

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef"

func newTestEncryptor(t *testing.T, key string) *Encryptor {
	t.Helper()
	enc, err := NewEncryptor(key)
	require.NoError(t, err)
	return enc
}

func TestNewEncryptor_KeyLength(t *testing.T) {
	for _, key := range []string{"", "short", testKey + "x"} {
		_, err := NewEncryptor(key)
		assert.ErrorIs(t, err, ErrInvalidKey, "key of length %d", len(key))
	}
}

func TestEncryptor_RoundTrip(t *testing.T) {
	enc := newTestEncryptor(t, testKey)

	tests := []struct {
		name  string
		token string
	}{
		{"access token", "eyJhbGciOiJSUzI1NiJ9.payload.sig"},
		{"refresh token", "rt-7f3c2a"},
		{"non ascii", "token-ção-☕"},
		{"long", strings.Repeat("refresh-", 600)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sealed, err := enc.Encrypt(tt.token)
			require.NoError(t, err)
			assert.NotContains(t, sealed, tt.token)

			opened, err := enc.Decrypt(sealed)
			require.NoError(t, err)
			assert.Equal(t, tt.token, opened)
		})
	}
}

func TestEncryptor_EmptyStaysEmpty(t *testing.T) {
	enc := newTestEncryptor(t, testKey)

	sealed, err := enc.Encrypt("")
	require.NoError(t, err)
	assert.Empty(t, sealed)

	opened, err := enc.Decrypt("")
	require.NoError(t, err)
	assert.Empty(t, opened)
}

func TestEncryptor_FreshNoncePerCall(t *testing.T) {
	enc := newTestEncryptor(t, testKey)

	a, err := enc.Encrypt("same")
	require.NoError(t, err)
	b, err := enc.Encrypt("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestEncryptor_RejectsBadCiphertext(t *testing.T) {
	enc := newTestEncryptor(t, testKey)
	sealed, err := enc.Encrypt("rt-123")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(sealed)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	flipped := base64.StdEncoding.EncodeToString(raw)

	tests := map[string]string{
		"not base64":         "%%%not-base64",
		"shorter than nonce": base64.StdEncoding.EncodeToString([]byte("a")),
		"tampered tag":       flipped,
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := enc.Decrypt(input)
			assert.ErrorIs(t, err, ErrInvalidCiphertext)
		})
	}
}

func TestEncryptor_WrongKey(t *testing.T) {
	sealed, err := newTestEncryptor(t, testKey).Encrypt("rt-123")
	require.NoError(t, err)

	_, err = newTestEncryptor(t, strings.Repeat("k", 32)).Decrypt(sealed)
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}
