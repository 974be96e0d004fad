package provider

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testKey = []byte("0123456789abcdef0123456789abcdef")
	testIV  = []byte("fedcba9876543210")
)

func TestEncryptHex_RoundTrip(t *testing.T) {
	for _, plaintext := range []string{
		"",
		"a",
		"exactly16bytes!!",
		`{"order_id":"REF1","amount":"500.00"}`,
	} {
		encoded, err := EncryptHex([]byte(plaintext), testKey, testIV)
		require.NoError(t, err)

		raw, err := hex.DecodeString(encoded)
		require.NoError(t, err)
		assert.Zero(t, len(raw)%16)
		assert.Greater(t, len(raw), len(plaintext), "PKCS#7 always pads")

		decoded, err := DecryptHex(encoded, testKey, testIV)
		require.NoError(t, err)
		assert.Equal(t, plaintext, string(decoded))
	}
}

func TestEncryptHex_Deterministic(t *testing.T) {
	a, err := EncryptHex([]byte("same payload"), testKey, testIV)
	require.NoError(t, err)
	b, err := EncryptHex([]byte("same payload"), testKey, testIV)
	require.NoError(t, err)
	assert.Equal(t, a, b, "fixed key and IV give identical ciphertext")
}

func TestDecryptHex_Errors(t *testing.T) {
	_, err := DecryptHex("not-hex", testKey, testIV)
	assert.Error(t, err)

	_, err = DecryptHex("abcd", testKey, testIV)
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	_, err = EncryptHex([]byte("x"), testKey, []byte("short"))
	assert.Error(t, err)

	_, err = EncryptHex([]byte("x"), []byte("bad key"), testIV)
	assert.Error(t, err)
}

func TestParseCredentials(t *testing.T) {
	creds, err := ParseCredentials(`{"api_key":"key-1","aes_key":"` + hex.EncodeToString(testKey) + `","iv":"` + hex.EncodeToString(testIV) + `"}`)
	require.NoError(t, err)
	assert.Equal(t, "key-1", creds.APIKey)
	assert.Equal(t, testKey, creds.AESKey)
	assert.Equal(t, testIV, creds.IV)

	_, err = ParseCredentials(`{"api_key":"key-1"}`)
	assert.Error(t, err)

	_, err = ParseCredentials(`{"api_key":"k","aes_key":"zz","iv":"00"}`)
	assert.Error(t, err)
}
