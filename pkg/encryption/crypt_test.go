package encryption_test

import (
	"bytes"
	"testing"

	"github.com/benmeehan/location-agent/pkg/encryption"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptionManager_RejectsBadKey(t *testing.T) {
	_, err := encryption.NewEncryptionManager([]byte("short"))
	assert.Error(t, err)
}

func TestEncryptionManager_DecryptDetectsTampering(t *testing.T) {
	em, err := encryption.NewEncryptionManager(bytes.Repeat([]byte{7}, encryption.KeySize))
	require.NoError(t, err)

	ciphertext, err := em.Encrypt([]byte("refresh-token"))
	require.NoError(t, err)

	plaintext, err := em.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "refresh-token", string(plaintext))

	ciphertext[len(ciphertext)-1] ^= 0xff
	_, err = em.Decrypt(ciphertext)
	assert.Error(t, err)

	_, err = em.Decrypt([]byte{1, 2})
	assert.Error(t, err)
}
