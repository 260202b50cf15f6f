package noise

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/opd-ai/paytrust/crypto"
	"github.com/opd-ai/paytrust/failure"
	"github.com/opd-ai/paytrust/interfaces"
)

const attestationDomain = "paytrust-nn-attestation-v1:"

// attestationSize is identity(32) ∥ signature(64).
const attestationSize = 32 + crypto.SignatureSize

// ErrAttestationFailed is returned when an attestation does not verify.
var ErrAttestationFailed = failure.New(failure.ErrAuthentication, "attestation failed")

func attestationDigest(signerEph, otherEph [32]byte) []byte {
	h := sha256.New()
	h.Write([]byte(attestationDomain))
	h.Write(signerEph[:])
	h.Write(otherEph[:])
	return h.Sum(nil)
}

// CreateAttestation signs both ephemeral keys of a fully-ephemeral session
// with id, binding the identity to this one session.
func CreateAttestation(id *crypto.Identity, localEph, remoteEph [32]byte) crypto.Signature {
	return id.Sign(attestationDigest(localEph, remoteEph))
}

// VerifyAttestation checks a signature made by the peer with
// CreateAttestation. peerEph is the signer's ephemeral.
func VerifyAttestation(identityPub [32]byte, sig crypto.Signature, peerEph, ourEph [32]byte) error {
	if !crypto.Verify(attestationDigest(peerEph, ourEph), sig, identityPub) {
		return ErrAttestationFailed
	}
	return nil
}

// Attestation returns our attestation for this session.
func (s *Session) Attestation(id *crypto.Identity) crypto.Signature {
	return CreateAttestation(id, s.LocalEphemeral, s.RemoteEphemeral)
}

// Attest verifies the peer's attestation and, on success, records its
// identity in RemoteIdentity. Call it before sharing the session between
// goroutines.
func (s *Session) Attest(identityPub [32]byte, sig crypto.Signature) error {
	if err := VerifyAttestation(identityPub, sig, s.RemoteEphemeral, s.LocalEphemeral); err != nil {
		return err
	}
	id := crypto.NewPeerID(identityPub)
	s.RemoteIdentity = &id
	s.attestedBy.Store(&id)
	return nil
}

// Attested reports whether the peer proved an identity after the handshake.
func (s *Session) Attested() bool {
	return s.attestedBy.Load() != nil
}

// RequiresAttestation reports whether the session must be attested before
// its peer can be trusted.
func (s *Session) RequiresAttestation() bool {
	return s.Pattern == PatternNN && !s.Attested()
}

// ExchangeAttestation swaps attestations over an established session. The
// initiator sends first. Each attestation travels encrypted in one frame.
func ExchangeAttestation(ctx context.Context, t interfaces.ITransport, s *Session, id *crypto.Identity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { t.Close() })
	defer stop()

	send := func() error {
		pub := id.PublicKey()
		sig := s.Attestation(id)
		msg := make([]byte, 0, attestationSize)
		msg = append(msg, pub[:]...)
		msg = append(msg, sig[:]...)
		ct, err := s.Encrypt(msg, nil)
		if err != nil {
			return err
		}
		return WriteFrame(t, ct)
	}
	recv := func() error {
		frame, err := ReadFrame(t, attestationSize+16)
		if err != nil {
			return err
		}
		msg, err := s.Decrypt(frame, nil)
		if err != nil {
			return err
		}
		if len(msg) != attestationSize {
			return fmt.Errorf("%w: attestation is %d bytes", ErrMalformedFrame, len(msg))
		}
		var pub [32]byte
		var sig crypto.Signature
		copy(pub[:], msg[:32])
		copy(sig[:], msg[32:])
		return s.Attest(pub, sig)
	}

	steps := []func() error{send, recv}
	if s.Role == Responder {
		steps[0], steps[1] = recv, send
	}
	for _, step := range steps {
		if err := step(); err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %v", failure.ErrTimeout, ctx.Err())
			}
			return err
		}
	}
	return nil
}
