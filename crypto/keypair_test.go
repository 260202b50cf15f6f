package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/curve25519"
)

func TestFromSecretKeyDerivesPublicKey(t *testing.T) {
	var secret [32]byte
	for i := range secret {
		secret[i] = byte(i + 1)
	}

	kp, err := FromSecretKey(secret)
	require.NoError(t, err)

	want, err := curve25519.X25519(kp.Private[:], curve25519.Basepoint)
	require.NoError(t, err)
	assert.Equal(t, want, kp.Public[:])

	// clamped
	assert.Equal(t, byte(0), kp.Private[0]&7)
	assert.Equal(t, byte(64), kp.Private[31]&192)
}

func TestFromSecretKeyRejectsZero(t *testing.T) {
	_, err := FromSecretKey([32]byte{})
	assert.Error(t, err)
}

func TestGenerateKeyPairUnique(t *testing.T) {
	a, err := GenerateKeyPair()
	require.NoError(t, err)
	b, err := GenerateKeyPair()
	require.NoError(t, err)
	assert.NotEqual(t, a.Public, b.Public)

	pub, err := PublicFromSecret(a.Private)
	require.NoError(t, err)
	assert.Equal(t, a.Public, pub)
}
