package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/curve25519"
)

// KeySize is the size of an X25519 public or private key.
const KeySize = curve25519.ScalarSize

// KeyPair is an X25519 key agreement pair.
type KeyPair struct {
	Public  [32]byte
	Private [32]byte
}

// GenerateKeyPair creates a new random X25519 key pair.
func GenerateKeyPair() (*KeyPair, error) {
	var secret [32]byte
	defer ZeroBytes(secret[:])

	if _, err := rand.Read(secret[:]); err != nil {
		return nil, fmt.Errorf("failed to read random key: %w", err)
	}
	return FromSecretKey(secret)
}

// FromSecretKey creates a key pair from an existing private key. The scalar
// is clamped before the public key is derived, so the returned Private may
// differ from secretKey in its low and high bits.
func FromSecretKey(secretKey [32]byte) (*KeyPair, error) {
	if IsZero(secretKey[:]) {
		return nil, errors.New("invalid secret key: all zeros")
	}

	kp := &KeyPair{Private: secretKey}
	clamp(&kp.Private)

	pub, err := curve25519.X25519(kp.Private[:], curve25519.Basepoint)
	if err != nil {
		ZeroBytes(kp.Private[:])
		return nil, fmt.Errorf("failed to derive public key: %w", err)
	}
	copy(kp.Public[:], pub)

	return kp, nil
}

// PublicFromSecret returns the X25519 public key for a secret scalar.
func PublicFromSecret(secretKey [32]byte) ([32]byte, error) {
	kp, err := FromSecretKey(secretKey)
	if err != nil {
		return [32]byte{}, err
	}
	defer WipeKeyPair(kp)
	return kp.Public, nil
}

func clamp(k *[32]byte) {
	k[0] &= 248
	k[31] &= 127
	k[31] |= 64
}
