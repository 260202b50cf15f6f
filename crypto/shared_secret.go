package crypto

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/curve25519"

	"github.com/opd-ai/paytrust/failure"
)

// ErrWeakPublicKey is returned when key agreement yields the all-zero output,
// which happens for low-order peer points.
var ErrWeakPublicKey = failure.New(failure.ErrAuthentication, "weak peer public key")

// DeriveSharedSecret computes a shared secret between two parties
// using X25519. The caller owns the result and must wipe it.
func DeriveSharedSecret(peerPublicKey, privateKey [32]byte) ([32]byte, error) {
	logrus.WithFields(logrus.Fields{
		"function":        "DeriveSharedSecret",
		"peer_key_prefix": fmt.Sprintf("%x", peerPublicKey[:8]),
	}).Debug("Computing shared secret")

	// Work on a copy so the caller's array is never aliased by x/crypto
	var privateKeyCopy [32]byte
	copy(privateKeyCopy[:], privateKey[:])
	defer ZeroBytes(privateKeyCopy[:])

	sharedSecret, err := curve25519.X25519(privateKeyCopy[:], peerPublicKey[:])
	if err != nil {
		// x/crypto reports low-order points as an all-zero output error
		logrus.WithFields(logrus.Fields{
			"function": "DeriveSharedSecret",
		}).Warn("X25519 rejected peer public key")
		return [32]byte{}, fmt.Errorf("%w: %v", ErrWeakPublicKey, err)
	}
	defer ZeroBytes(sharedSecret)

	var result [32]byte
	copy(result[:], sharedSecret)
	return result, nil
}
