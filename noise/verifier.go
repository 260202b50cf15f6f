package noise

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/opd-ai/paytrust/crypto"
	"github.com/opd-ai/paytrust/interfaces"
)

var (
	errNoClaim        = errors.New("peer made no identity claim")
	errStaticMismatch = errors.New("static key does not match published binding")
)

// DirectoryVerifier returns a PeerVerifier that accepts a peer only if dir
// holds a binding, signed by the claimed identity, for exactly the static
// key used in the handshake.
func DirectoryVerifier(dir interfaces.IDirectory) PeerVerifier {
	return func(ctx context.Context, info PeerInfo) error {
		if info.Claim == nil {
			return errNoClaim
		}
		rec, err := dir.Lookup(ctx, info.Claim.PeerID(), info.Claim.Label)
		if err != nil {
			return fmt.Errorf("directory lookup failed: %w", err)
		}
		if subtle.ConstantTimeCompare(rec.StaticKey[:], info.RemoteStatic[:]) != 1 {
			return errStaticMismatch
		}
		return crypto.VerifyBinding(info.Claim.Identity, rec.StaticKey, info.Claim.Label, rec.Binding)
	}
}

// PinnedVerifier accepts only peers whose static key is one of keys.
func PinnedVerifier(keys ...[32]byte) PeerVerifier {
	return func(_ context.Context, info PeerInfo) error {
		for _, k := range keys {
			if subtle.ConstantTimeCompare(k[:], info.RemoteStatic[:]) == 1 {
				return nil
			}
		}
		return errStaticMismatch
	}
}

// ForPatterns applies v only to handshakes of the given patterns. Peers
// using any other pattern are passed through unchecked.
func ForPatterns(v PeerVerifier, patterns ...Pattern) PeerVerifier {
	return func(ctx context.Context, info PeerInfo) error {
		for _, p := range patterns {
			if info.Pattern == p {
				return v(ctx, info)
			}
		}
		return nil
	}
}

// ColdKeyVerifier checks IK-raw claims against dir and lets every other
// pattern through. It is the verifier for a listener that accepts several
// patterns: IK proves identity with a live signature and XX makes no claim.
func ColdKeyVerifier(dir interfaces.IDirectory) PeerVerifier {
	return ForPatterns(DirectoryVerifier(dir), PatternIKRaw)
}
