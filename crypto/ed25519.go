package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
)

// SignatureSize is the size of an Ed25519 signature in bytes.
const SignatureSize = ed25519.SignatureSize

// Signature represents an Ed25519 signature.
type Signature [SignatureSize]byte

// Identity is a long-term Ed25519 signing key, the root of trust for a peer.
// The application owns it; this module only signs bindings and handshake
// proofs with it.
type Identity struct {
	private ed25519.PrivateKey
	public  [32]byte
}

// GenerateIdentity creates a random identity.
func GenerateIdentity() (*Identity, error) {
	var seed [32]byte
	defer ZeroBytes(seed[:])
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, fmt.Errorf("failed to read identity seed: %w", err)
	}
	return IdentityFromSeed(seed), nil
}

// IdentityFromSeed rebuilds an identity from its 32-byte seed.
func IdentityFromSeed(seed [32]byte) *Identity {
	priv := ed25519.NewKeyFromSeed(seed[:])
	id := &Identity{private: priv}
	copy(id.public[:], priv.Public().(ed25519.PublicKey))
	return id
}

// PublicKey returns the identity's verification key.
func (id *Identity) PublicKey() [32]byte {
	return id.public
}

// PeerID returns the z-base-32 form of the public key.
func (id *Identity) PeerID() PeerID {
	return NewPeerID(id.public)
}

// Seed returns a copy of the 32-byte seed. The caller must wipe it.
func (id *Identity) Seed() [32]byte {
	var seed [32]byte
	copy(seed[:], id.private.Seed())
	return seed
}

// Sign signs message with the identity key.
func (id *Identity) Sign(message []byte) Signature {
	var sig Signature
	copy(sig[:], ed25519.Sign(id.private, message))
	return sig
}

// Wipe zeroes the private key. The identity is unusable afterwards.
func (id *Identity) Wipe() {
	ZeroBytes(id.private)
}

// Sign creates an Ed25519 signature for a message using a 32-byte seed.
func Sign(message []byte, seed [32]byte) (Signature, error) {
	if len(message) == 0 {
		return Signature{}, errors.New("empty message")
	}

	priv := ed25519.NewKeyFromSeed(seed[:])
	defer ZeroBytes(priv)

	var signature Signature
	copy(signature[:], ed25519.Sign(priv, message))
	return signature, nil
}

// Verify checks if a signature is valid for a message and public key.
func Verify(message []byte, signature Signature, publicKey [32]byte) bool {
	return ed25519.Verify(publicKey[:], message, signature[:])
}
