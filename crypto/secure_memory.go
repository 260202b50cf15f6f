package crypto

import (
	"crypto/subtle"
	"errors"
	"runtime"
)

// SecureWipe attempts to securely erase the contents of a byte slice
// containing sensitive data. It returns an error if the byte slice is nil.
func SecureWipe(data []byte) error {
	if data == nil {
		return errors.New("cannot wipe nil data")
	}

	// Overwrite through subtle so the compiler cannot prove the store dead
	zeros := make([]byte, len(data))
	subtle.ConstantTimeCopy(1, data, zeros)

	runtime.KeepAlive(data)
	runtime.KeepAlive(zeros)

	return nil
}

// ZeroBytes erases the contents of a byte slice containing sensitive data.
// This is a convenience function that ignores the error from SecureWipe.
func ZeroBytes(data []byte) {
	_ = SecureWipe(data)
}

// WipeKeyPair securely erases the private key in a KeyPair.
// This should be called when a KeyPair is no longer needed.
func WipeKeyPair(kp *KeyPair) error {
	if kp == nil {
		return errors.New("cannot wipe nil KeyPair")
	}
	return SecureWipe(kp.Private[:])
}

// IsZero reports whether every byte of data is zero, in constant time.
func IsZero(data []byte) bool {
	var acc byte
	for _, b := range data {
		acc |= b
	}
	return subtle.ConstantTimeByteEq(acc, 0) == 1
}
