package service

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Valid 32-byte key, base64-encoded.
var testAESKey = base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))

func TestAESEncryptionService_NewInvalidKey(t *testing.T) {
	_, err := NewAESEncryptionService("not-base64!!")
	assert.Error(t, err)

	short := base64.StdEncoding.EncodeToString([]byte("too-short"))
	_, err = NewAESEncryptionService(short)
	assert.Error(t, err)
}

func TestAESEncryptionService_EncryptDecrypt(t *testing.T) {
	svc, err := NewAESEncryptionService(testAESKey)
	require.NoError(t, err)

	plaintext := "whsec_live_4f8a2c"
	ciphertext, err := svc.Encrypt(plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	decrypted, err := svc.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestAESEncryptionService_DifferentNonces(t *testing.T) {
	svc, err := NewAESEncryptionService(testAESKey)
	require.NoError(t, err)

	plaintext := "same_secret"
	c1, err := svc.Encrypt(plaintext)
	require.NoError(t, err)
	c2, err := svc.Encrypt(plaintext)
	require.NoError(t, err)

	assert.NotEqual(t, c1, c2, "same plaintext should produce different ciphertext due to random nonce")

	d1, _ := svc.Decrypt(c1)
	d2, _ := svc.Decrypt(c2)
	assert.Equal(t, d1, d2)
}

func TestAESEncryptionService_TamperedCiphertext(t *testing.T) {
	svc, err := NewAESEncryptionService(testAESKey)
	require.NoError(t, err)

	ciphertext, err := svc.Encrypt("secret")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	tampered := base64.StdEncoding.EncodeToString(raw)

	_, err = svc.Decrypt(tampered)
	assert.Error(t, err)
}

func TestAESEncryptionService_DecryptGarbage(t *testing.T) {
	svc, err := NewAESEncryptionService(testAESKey)
	require.NoError(t, err)

	_, err = svc.Decrypt("%%%")
	assert.Error(t, err)

	_, err = svc.Decrypt(base64.StdEncoding.EncodeToString([]byte("xy")))
	assert.Error(t, err, "shorter than nonce should fail")
}
