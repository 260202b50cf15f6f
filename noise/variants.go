package noise

import (
	"errors"
	"fmt"

	"github.com/opd-ai/paytrust/crypto"
)

const (
	ikAuthDomain = "paytrust-ik-auth-v1:"
	maxLabelLen  = 255
)

var (
	errPayloadNotEmpty = errors.New("unexpected handshake payload")
	errShortPayload    = errors.New("handshake payload too short")
	errBadSignature    = errors.New("identity signature invalid")
)

// variant holds what differs between patterns: the payloads carried in
// each message and the checks made on them. The Noise message flow itself
// comes from the pattern's flynn/noise descriptor.
type variant interface {
	payload(h *Handshake, index int) ([]byte, error)
	accept(h *Handshake, index int, payload []byte) error
	// learnsStatic reports whether reading message index reveals the
	// peer's static key to role for the first time.
	learnsStatic(role HandshakeRole, index int) bool
}

func variantFor(p Pattern) variant {
	switch p {
	case PatternIK:
		return fullAuth{}
	case PatternIKRaw:
		return coldKey{}
	case PatternNK:
		return anonymousClient{}
	case PatternNN:
		return ephemeral{}
	default:
		return tofu{}
	}
}

// emptyPayloads is shared by the patterns that carry no application data
// during the handshake.
type emptyPayloads struct{}

func (emptyPayloads) payload(*Handshake, int) ([]byte, error) { return nil, nil }

func (emptyPayloads) accept(_ *Handshake, index int, payload []byte) error {
	if len(payload) != 0 {
		return fmt.Errorf("%w in message %d", errPayloadNotEmpty, index)
	}
	return nil
}

func (emptyPayloads) learnsStatic(HandshakeRole, int) bool { return false }

// fullAuth: the initiator's first message carries identity ∥ signature ∥
// label, where the signature covers both static keys and the label.
type fullAuth struct{ emptyPayloads }

func ikAuthMessage(initiatorStatic, responderStatic [32]byte, label string) []byte {
	msg := make([]byte, 0, len(ikAuthDomain)+64+len(label))
	msg = append(msg, ikAuthDomain...)
	msg = append(msg, initiatorStatic[:]...)
	msg = append(msg, responderStatic[:]...)
	return append(msg, label...)
}

func (fullAuth) payload(h *Handshake, index int) ([]byte, error) {
	if index != 0 {
		return nil, nil
	}
	id := h.cfg.Identity
	sig := id.Sign(ikAuthMessage(*h.localStatic, *h.cfg.RemoteStatic, h.cfg.Label))
	pub := id.PublicKey()

	out := make([]byte, 0, 32+len(sig)+len(h.cfg.Label))
	out = append(out, pub[:]...)
	out = append(out, sig[:]...)
	return append(out, h.cfg.Label...), nil
}

func (fullAuth) accept(h *Handshake, index int, payload []byte) error {
	if index != 0 {
		return emptyPayloads{}.accept(h, index, payload)
	}
	if len(payload) < 32+crypto.SignatureSize+1 || len(payload) > 32+crypto.SignatureSize+maxLabelLen {
		return errShortPayload
	}

	var claim Claim
	var sig crypto.Signature
	copy(claim.Identity[:], payload[:32])
	copy(sig[:], payload[32:32+crypto.SignatureSize])
	claim.Label = string(payload[32+crypto.SignatureSize:])

	var initiatorStatic [32]byte
	copy(initiatorStatic[:], h.hs.PeerStatic())
	if !crypto.Verify(ikAuthMessage(initiatorStatic, *h.localStatic, claim.Label), sig, claim.Identity) {
		return errBadSignature
	}
	claim.Signed = true
	h.claim = &claim
	return nil
}

func (fullAuth) learnsStatic(role HandshakeRole, index int) bool {
	return role == Responder && index == 0
}

// coldKey: the initiator only claims identity ∥ label. The responder's
// verifier must check the claim against a published binding.
type coldKey struct{ emptyPayloads }

func (coldKey) payload(h *Handshake, index int) ([]byte, error) {
	if index != 0 {
		return nil, nil
	}
	var pub [32]byte
	if h.cfg.ClaimedIdentity != nil {
		pub = *h.cfg.ClaimedIdentity
	} else {
		pub = h.cfg.Identity.PublicKey()
	}
	out := make([]byte, 0, 32+len(h.cfg.Label))
	out = append(out, pub[:]...)
	return append(out, h.cfg.Label...), nil
}

func (coldKey) accept(h *Handshake, index int, payload []byte) error {
	if index != 0 {
		return emptyPayloads{}.accept(h, index, payload)
	}
	if len(payload) < 33 || len(payload) > 32+maxLabelLen {
		return errShortPayload
	}
	claim := &Claim{Label: string(payload[32:])}
	copy(claim.Identity[:], payload[:32])
	h.claim = claim
	return nil
}

func (coldKey) learnsStatic(role HandshakeRole, index int) bool {
	return role == Responder && index == 0
}

// anonymousClient: only the responder has a static key, known in advance.
type anonymousClient struct{ emptyPayloads }

// ephemeral: no static keys at all.
type ephemeral struct{ emptyPayloads }

// tofu: both static keys travel in-band; the responder's in message 1 and
// the initiator's in message 2.
type tofu struct{ emptyPayloads }

func (tofu) learnsStatic(role HandshakeRole, index int) bool {
	return (role == Initiator && index == 1) || (role == Responder && index == 2)
}
