package crypto

import (
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/opd-ai/paytrust/failure"
)

const (
	z32Alphabet = "ybndrfg8ejkmcpqxot1uwisza345h769"

	// PeerIDLength is the length of a z-base-32 encoded 32-byte key.
	PeerIDLength = 52
)

var z32 = base32.NewEncoding(z32Alphabet).WithPadding(base32.NoPadding)

// ErrInvalidPeerID is returned when a peer identifier cannot be parsed.
var ErrInvalidPeerID = failure.New(failure.ErrProtocol, "invalid peer id")

// PeerID is the canonical text form of an identity public key: 52
// characters of lowercase z-base-32.
type PeerID string

// NewPeerID encodes an identity public key.
func NewPeerID(pub [32]byte) PeerID {
	return PeerID(z32.EncodeToString(pub[:]))
}

// ParsePeerID normalizes s (trims whitespace, strips a "pk:" prefix,
// lowercases) and checks that it is a canonical encoding of a 32-byte key.
func ParsePeerID(s string) (PeerID, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "pk:")
	s = strings.ToLower(s)

	if len(s) != PeerIDLength {
		return "", fmt.Errorf("%w: length %d, want %d", ErrInvalidPeerID, len(s), PeerIDLength)
	}
	raw, err := z32.DecodeString(s)
	if err != nil || len(raw) != 32 {
		return "", fmt.Errorf("%w: not z-base-32", ErrInvalidPeerID)
	}
	// the last character carries one spare bit; reject non-canonical forms
	if z32.EncodeToString(raw) != s {
		return "", fmt.Errorf("%w: non-canonical encoding", ErrInvalidPeerID)
	}
	return PeerID(s), nil
}

// PublicKey decodes the identity public key.
func (p PeerID) PublicKey() ([32]byte, error) {
	var pub [32]byte
	raw, err := z32.DecodeString(string(p))
	if err != nil || len(raw) != 32 {
		return pub, fmt.Errorf("%w: %q", ErrInvalidPeerID, p.Short())
	}
	copy(pub[:], raw)
	return pub, nil
}

// String returns the encoded form.
func (p PeerID) String() string { return string(p) }

// Short returns a log-friendly prefix.
func (p PeerID) Short() string {
	if len(p) <= 8 {
		return string(p)
	}
	return string(p[:8])
}

// ScopeHash returns hex(sha256(peer id)), the per-recipient directory
// component used in storage paths. Always 64 hex characters.
func ScopeHash(p PeerID) string {
	sum := sha256.Sum256([]byte(p))
	return hex.EncodeToString(sum[:])
}

// KeyID returns the 16-hex-character key hint for a public key: the first
// 8 bytes of its SHA-256.
func KeyID(pub [32]byte) string {
	sum := sha256.Sum256(pub[:])
	return hex.EncodeToString(sum[:8])
}
