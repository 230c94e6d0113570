package encryption_test

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatforge/chat-service/internal/pkg/encryption"
)

func TestAESEncryptor_RoundTrip(t *testing.T) {
	key, err := encryption.GenerateKey()
	require.NoError(t, err)

	enc, err := encryption.NewAESEncryptor(key)
	require.NoError(t, err)

	ciphertext, err := enc.EncryptString("sk-very-secret")
	require.NoError(t, err)
	assert.NotEqual(t, "sk-very-secret", ciphertext)

	plaintext, err := enc.DecryptString(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "sk-very-secret", plaintext)
}

func TestAESEncryptor_RawKey(t *testing.T) {
	enc, err := encryption.NewAESEncryptor("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	ciphertext, err := enc.EncryptString("secret")
	require.NoError(t, err)

	plaintext, err := enc.DecryptString(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "secret", plaintext)
}

func TestAESEncryptor_NonceVariesPerCall(t *testing.T) {
	key, err := encryption.GenerateKey()
	require.NoError(t, err)

	enc, err := encryption.NewAESEncryptor(key)
	require.NoError(t, err)

	first, err := enc.EncryptString("same input")
	require.NoError(t, err)
	second, err := enc.EncryptString("same input")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestAESEncryptor_InvalidKeyLength(t *testing.T) {
	_, err := encryption.NewAESEncryptor("too-short")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "32 bytes")
}

func TestAESEncryptor_WrongKeyFailsToDecrypt(t *testing.T) {
	keyA, err := encryption.GenerateKey()
	require.NoError(t, err)
	keyB, err := encryption.GenerateKey()
	require.NoError(t, err)

	encA, err := encryption.NewAESEncryptor(keyA)
	require.NoError(t, err)
	encB, err := encryption.NewAESEncryptor(keyB)
	require.NoError(t, err)

	ciphertext, err := encA.EncryptString("secret")
	require.NoError(t, err)

	_, err = encB.DecryptString(ciphertext)
	assert.Error(t, err)
}

func TestAESEncryptor_TamperedCiphertext(t *testing.T) {
	key, err := encryption.GenerateKey()
	require.NoError(t, err)

	enc, err := encryption.NewAESEncryptor(key)
	require.NoError(t, err)

	ciphertext, err := enc.EncryptString("secret")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff

	_, err = enc.DecryptString(base64.StdEncoding.EncodeToString(raw))
	assert.Error(t, err)
}

func TestAESEncryptor_CiphertextTooShort(t *testing.T) {
	key, err := encryption.GenerateKey()
	require.NoError(t, err)

	enc, err := encryption.NewAESEncryptor(key)
	require.NoError(t, err)

	_, err = enc.DecryptString(base64.StdEncoding.EncodeToString([]byte("ab")))
	assert.Error(t, err)
}

func TestNoOpEncryptor_RoundTrip(t *testing.T) {
	enc := encryption.NewNoOpEncryptor()

	ciphertext, err := enc.EncryptString("sk-local-dev")
	require.NoError(t, err)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("sk-local-dev")), ciphertext)

	plaintext, err := enc.DecryptString(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "sk-local-dev", plaintext)
}
