// Package crypto implements the key material primitives shared by the
// handshake engine and the sealed-blob codec.
//
// # Core Types
//
//   - [Identity]: long-term Ed25519 signing key, the root of trust
//   - [PeerID]: z-base-32 text form of an identity public key
//   - [KeyPair]: X25519 key agreement pair
//   - [StaticKeyMaterial]: a KeyPair derived for one context label
//   - [Signature]: Ed25519 signature
//
// # Key Derivation
//
// Static keys are derived deterministically from a root secret and a
// context label. There is no rotation counter: a new key is a new label.
//
//	material, err := crypto.DeriveStatic(rootSecret, "device-A")
//	if err != nil {
//	    return err
//	}
//	defer material.Destroy()
//
//	sig := crypto.SignBinding(identity, material.Public(), material.Label())
//	// publish (material.Public(), sig) in the directory
//
// A verifier holding only the identity public key checks the binding:
//
//	err := crypto.VerifyBinding(identityPub, staticPub, "device-A", sig)
//
// # Secure Memory Handling
//
// Every function that produces secret intermediates wipes them with
// [ZeroBytes] on all return paths, usually through defer. Callers that
// receive secret copies (StaticKeyMaterial.Secret, DeriveSharedSecret)
// own the copy and must wipe it.
//
// # Deterministic Testing
//
// Time-dependent components in other packages accept a [TimeProvider];
// tests use [ManualTimeProvider] to move the clock explicitly.
//
// # Thread Safety
//
// Pure functions are safe for concurrent use. StaticKeyMaterial guards its
// secret with a mutex so Destroy may race with Secret.
package crypto
