package sealed

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/opd-ai/paytrust/crypto"
	"github.com/opd-ai/paytrust/limits"
)

const (
	// NonceSize is the ChaCha20-Poly1305 nonce size.
	NonceSize = chacha20poly1305.NonceSize

	keyInfo = "paytrust-sealed-blob-v1"
)

// Option customizes the hints attached by Seal.
type Option func(*Envelope, [32]byte)

// WithPurpose sets the unauthenticated purpose hint.
func WithPurpose(purpose string) Option {
	return func(env *Envelope, _ [32]byte) {
		env.Purpose = purpose
	}
}

// WithKeyHint sets kid to the recipient key's KeyID.
func WithKeyHint() Option {
	return func(env *Envelope, recipient [32]byte) {
		env.KID = crypto.KeyID(recipient)
	}
}

// Seal encrypts plaintext so only the holder of recipientPub's secret key
// can read it, bound to aad. Ephemeral, shared and derived secrets are
// wiped before Seal returns.
func Seal(recipientPub [32]byte, plaintext, aad []byte, opts ...Option) (*Envelope, error) {
	if err := limits.ValidatePlaintext(plaintext); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPlaintextTooLarge, err)
	}

	eph, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	defer crypto.WipeKeyPair(eph)

	shared, err := crypto.DeriveSharedSecret(recipientPub, eph.Private)
	if err != nil {
		return nil, fmt.Errorf("invalid recipient key: %w", err)
	}
	defer crypto.ZeroBytes(shared[:])

	key, err := deriveKey(shared, eph.Public, recipientPub)
	if err != nil {
		return nil, err
	}
	defer crypto.ZeroBytes(key[:])

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, err
	}
	ct := aead.Seal(nil, nonce, plaintext, aad)

	env := &Envelope{
		V:     Version,
		EPK:   b64.EncodeToString(eph.Public[:]),
		Nonce: b64.EncodeToString(nonce),
		CT:    b64.EncodeToString(ct),
	}
	for _, opt := range opts {
		opt(env, recipientPub)
	}

	crypto.NewLogger("sealed", "Seal").
		WithField("plaintext_size", len(plaintext)).
		WithField("purpose", env.Purpose).
		Debug("Sealed blob")

	return env, nil
}

// Open decrypts env with the recipient's secret key. Structural problems
// are reported with specific errors before any key material is touched;
// every cryptographic failure is reported as ErrAuthentication.
func Open(recipientSecret [32]byte, env *Envelope, aad []byte) ([]byte, error) {
	if env == nil {
		return nil, ErrMalformedEnvelope
	}
	if env.V != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, env.V)
	}
	fields, err := decodeFields(env)
	if err != nil {
		return nil, err
	}

	log := crypto.NewLogger("sealed", "Open").WithField("purpose", env.Purpose)

	recipientPub, err := crypto.PublicFromSecret(recipientSecret)
	if err != nil {
		log.Debug("Unusable recipient key")
		return nil, ErrAuthentication
	}

	shared, err := crypto.DeriveSharedSecret(fields.epk, recipientSecret)
	if err != nil {
		log.Debug("Rejected ephemeral key")
		return nil, ErrAuthentication
	}
	defer crypto.ZeroBytes(shared[:])

	key, err := deriveKey(shared, fields.epk, recipientPub)
	if err != nil {
		return nil, err
	}
	defer crypto.ZeroBytes(key[:])

	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, fields.nonce, fields.ct, aad)
	if err != nil {
		log.Debug("Envelope failed authentication")
		return nil, ErrAuthentication
	}
	return plaintext, nil
}

// OpenBytes decodes and opens an encoded envelope.
func OpenBytes(recipientSecret [32]byte, data, aad []byte) ([]byte, error) {
	env, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return Open(recipientSecret, env, aad)
}

// SealBytes seals and encodes in one step.
func SealBytes(recipientPub [32]byte, plaintext, aad []byte, opts ...Option) ([]byte, error) {
	env, err := Seal(recipientPub, plaintext, aad, opts...)
	if err != nil {
		return nil, err
	}
	return Encode(env)
}

// deriveKey runs HKDF-SHA256 with salt epk ∥ recipientPub.
func deriveKey(shared, epk, recipientPub [32]byte) ([32]byte, error) {
	var key [32]byte

	salt := make([]byte, 0, 64)
	salt = append(salt, epk[:]...)
	salt = append(salt, recipientPub[:]...)

	kdf := hkdf.New(sha256.New, shared[:], salt, []byte(keyInfo))
	if _, err := io.ReadFull(kdf, key[:]); err != nil {
		return key, fmt.Errorf("failed to derive envelope key: %w", err)
	}
	return key, nil
}
