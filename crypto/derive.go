package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/hkdf"

	"github.com/opd-ai/paytrust/failure"
)

const (
	// MinRootSecretSize is the shortest root secret DeriveStatic accepts.
	MinRootSecretSize = 32

	staticKeySalt = "paytrust/static-key/v1"
)

var (
	// ErrRootSecretTooShort is returned for root secrets under MinRootSecretSize.
	ErrRootSecretTooShort = failure.New(failure.ErrProtocol, "root secret too short")

	// ErrEmptyLabel is returned when a context label is empty.
	ErrEmptyLabel = failure.New(failure.ErrProtocol, "empty context label")

	// ErrInvalidBinding is returned when a binding signature does not verify.
	ErrInvalidBinding = failure.New(failure.ErrAuthentication, "invalid key binding")

	// ErrMaterialDestroyed is returned when destroyed key material is used.
	ErrMaterialDestroyed = failure.New(failure.ErrProtocol, "static key material destroyed")
)

// StaticKeyMaterial is an X25519 key agreement pair tied to one context
// label. The secret half never leaves this struct except as a copy the
// caller must wipe.
type StaticKeyMaterial struct {
	public [32]byte
	label  string

	mu        sync.Mutex
	private   [32]byte
	destroyed bool
}

// NewStaticKeyMaterial wraps an existing key pair, for keys that were not
// derived from a root secret (cold keys held elsewhere, tests). The key
// pair's private half is copied; the caller keeps ownership of kp.
func NewStaticKeyMaterial(kp *KeyPair, label string) *StaticKeyMaterial {
	return &StaticKeyMaterial{public: kp.Public, private: kp.Private, label: label}
}

// Public returns the public key.
func (m *StaticKeyMaterial) Public() [32]byte { return m.public }

// Label returns the context label the key belongs to.
func (m *StaticKeyMaterial) Label() string { return m.label }

// Secret returns a copy of the private key. The caller must wipe it.
func (m *StaticKeyMaterial) Secret() ([32]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return [32]byte{}, ErrMaterialDestroyed
	}
	return m.private, nil
}

// Destroy wipes the private key. Safe to call more than once.
func (m *StaticKeyMaterial) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return
	}
	ZeroBytes(m.private[:])
	m.destroyed = true
}

// Destroyed reports whether Destroy has been called.
func (m *StaticKeyMaterial) Destroyed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.destroyed
}

// DeriveStatic derives the static key agreement pair for label from
// rootSecret with HKDF-SHA256. The same inputs always yield the same key;
// rotating a key means choosing a new label.
func DeriveStatic(rootSecret []byte, label string) (*StaticKeyMaterial, error) {
	if len(rootSecret) < MinRootSecretSize {
		return nil, fmt.Errorf("%w: got %d bytes, need %d", ErrRootSecretTooShort, len(rootSecret), MinRootSecretSize)
	}
	if label == "" {
		return nil, ErrEmptyLabel
	}

	okm := make([]byte, KeySize)
	defer ZeroBytes(okm)

	kdf := hkdf.New(sha256.New, rootSecret, []byte(staticKeySalt), []byte(label))
	if _, err := io.ReadFull(kdf, okm); err != nil {
		return nil, fmt.Errorf("failed to expand static key: %w", err)
	}

	var secret [32]byte
	defer ZeroBytes(secret[:])
	copy(secret[:], okm)

	kp, err := FromSecretKey(secret)
	if err != nil {
		return nil, err
	}
	defer WipeKeyPair(kp)

	NewLogger("crypto", "DeriveStatic").
		WithField("label", label).
		WithFields(KeyFields("static_pub", kp.Public[:])).
		Debug("Derived static key")

	return NewStaticKeyMaterial(kp, label), nil
}

func bindingMessage(staticPub [32]byte, label string) []byte {
	msg := make([]byte, 0, len(staticPub)+len(label))
	msg = append(msg, staticPub[:]...)
	return append(msg, label...)
}

// SignBinding signs staticPub ∥ label with the identity key, proving that
// the static key belongs to the identity for that context.
func SignBinding(id *Identity, staticPub [32]byte, label string) Signature {
	return id.Sign(bindingMessage(staticPub, label))
}

// VerifyBinding checks a signature produced by SignBinding.
func VerifyBinding(identityPub, staticPub [32]byte, label string, sig Signature) error {
	if !Verify(bindingMessage(staticPub, label), sig, identityPub) {
		return ErrInvalidBinding
	}
	return nil
}
