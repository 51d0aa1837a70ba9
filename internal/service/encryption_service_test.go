package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAESKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestAESEncryptionService_RoundTrip(t *testing.T) {
	svc, err := NewAESEncryptionService(testAESKey)
	require.NoError(t, err)

	ct, err := svc.Encrypt("4111111111111111")
	require.NoError(t, err)
	assert.NotContains(t, ct, "4111111111111111")

	pt, err := svc.Decrypt(ct)
	require.NoError(t, err)
	assert.Equal(t, "4111111111111111", pt)
}

func TestAESEncryptionService_NonceUnique(t *testing.T) {
	svc, err := NewAESEncryptionService(testAESKey)
	require.NoError(t, err)

	a, err := svc.Encrypt("same plaintext")
	require.NoError(t, err)
	b, err := svc.Encrypt("same plaintext")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestAESEncryptionService_BadKey(t *testing.T) {
	_, err := NewAESEncryptionService("deadbeef")
	assert.Error(t, err, "short key")

	_, err = NewAESEncryptionService(strings.Repeat("zz", 32))
	assert.Error(t, err, "not hex")
}

func TestAESEncryptionService_TamperedCiphertext(t *testing.T) {
	svc, err := NewAESEncryptionService(testAESKey)
	require.NoError(t, err)

	ct, err := svc.Encrypt("secret")
	require.NoError(t, err)

	flipped := []byte(ct)
	if flipped[len(flipped)-1] == 'a' {
		flipped[len(flipped)-1] = 'b'
	} else {
		flipped[len(flipped)-1] = 'a'
	}
	_, err = svc.Decrypt(string(flipped))
	assert.Error(t, err, "GCM authentication must fail")
}
