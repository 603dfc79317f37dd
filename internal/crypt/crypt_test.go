package crypt_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"overcastmirror/internal/crypt"
)

func newTestKey(t *testing.T) crypt.Key {
	t.Helper()

	s, err := crypt.GenerateKey()
	require.NoError(t, err)
	key, err := crypt.ParseKey(s)
	require.NoError(t, err)
	return key
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	t.Parallel()

	key := newTestKey(t)

	tests := []string{
		"The Talk Show With John Gruber",
		"",
		"https://overcast.fm/+abcdef123",
		"exactly sixteenb", // block-size aligned plaintext
		"unicode — title",
	}

	for _, plaintext := range tests {
		ciphertext, err := key.Encrypt(plaintext)
		require.NoError(t, err)
		require.NotEqual(t, plaintext, ciphertext)

		got, err := key.Decrypt(ciphertext)
		require.NoError(t, err)
		require.Equal(t, plaintext, got)
	}
}

func TestEncrypt_Deterministic(t *testing.T) {
	t.Parallel()

	// The IV is part of the key, so equal plaintexts produce equal
	// ciphertexts. The store relies on this to keep CSV diffs stable.
	key := newTestKey(t)

	a, err := key.Encrypt("same input")
	require.NoError(t, err)
	b, err := key.Encrypt("same input")
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestParseKey_Invalid(t *testing.T) {
	t.Parallel()

	_, err := crypt.ParseKey("not base64!!!")
	require.Error(t, err)

	_, err = crypt.ParseKey("dG9vIHNob3J0") // valid base64, wrong length
	require.Error(t, err)
}

func TestDecrypt_Invalid(t *testing.T) {
	t.Parallel()

	key := newTestKey(t)

	_, err := key.Decrypt("not base64!!!")
	require.Error(t, err)

	_, err = key.Decrypt("c2hvcnQ=") // not block-aligned
	require.Error(t, err)
}
