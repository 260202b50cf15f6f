package keycache

import (
	"errors"
	"fmt"
	"time"

	"github.com/opd-ai/paytrust/crypto"
	"github.com/opd-ai/paytrust/failure"
)

// Provenance records how a cached key was obtained.
type Provenance string

const (
	ProvenanceTOFU      Provenance = "learned-via-trust-on-first-use"
	ProvenanceDirectory Provenance = "from-directory"
	ProvenanceManual    Provenance = "manual"
)

// Valid reports whether p is one of the known provenances.
func (p Provenance) Valid() bool {
	switch p {
	case ProvenanceTOFU, ProvenanceDirectory, ProvenanceManual:
		return true
	}
	return false
}

var (
	// ErrNotFound is returned for peers without a cache entry.
	ErrNotFound = errors.New("peer not in key cache")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("key cache closed")

	// ErrInvalidProvenance is returned for unknown provenance values.
	ErrInvalidProvenance = errors.New("invalid provenance")

	// ErrKeyConflict is the sentinel wrapped by every TrustError.
	ErrKeyConflict = failure.New(failure.ErrTrust, "cached key conflicts with discovered key")
)

// Entry is one peer's cached static key.
type Entry struct {
	Peer          crypto.PeerID
	StaticKey     [32]byte
	Provenance    Provenance
	FirstSeen     time.Time
	LastUsed      time.Time
	LastValidated time.Time
	Verified      bool
}

// Lookup is an entry as seen by Get. Stale entries are still returned so
// the caller can decide to re-validate them.
type Lookup struct {
	Entry
	Stale bool
}

// TrustError reports that a key discovered for a peer differs from the
// cached one. It is either a rotation or an attack and is never resolved by
// the cache; use Rotate to accept the new key.
type TrustError struct {
	Peer       crypto.PeerID
	Cached     [32]byte
	Discovered [32]byte
	Verified   bool
}

func (e *TrustError) Error() string {
	return fmt.Sprintf("key conflict for peer %s: cached %x, discovered %x (verified=%t)",
		e.Peer.Short(), e.Cached[:8], e.Discovered[:8], e.Verified)
}

// Unwrap lets errors.Is match ErrKeyConflict and failure.ErrTrust.
func (e *TrustError) Unwrap() error { return ErrKeyConflict }
