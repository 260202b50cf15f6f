package noise

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/flynn/noise"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/paytrust/crypto"
	"github.com/opd-ai/paytrust/failure"
	"github.com/opd-ai/paytrust/limits"
)

// prologuePrefix is mixed into every handshake together with the pattern
// byte, so a discriminator rewritten in transit breaks the handshake.
const prologuePrefix = "paytrust-noise-v1"

var (
	// ErrHandshakeNotComplete indicates handshake is still in progress
	ErrHandshakeNotComplete = failure.New(failure.ErrProtocol, "handshake not complete")

	// ErrUnexpectedMessage indicates a message arrived or was requested out of
	// turn. The handshake is failed.
	ErrUnexpectedMessage = failure.New(failure.ErrProtocol, "unexpected message for current handshake state")

	// ErrHandshakeFailed is the single error for every cryptographic or
	// peer-verification failure during a handshake.
	ErrHandshakeFailed = failure.New(failure.ErrAuthentication, "handshake failed")

	// ErrHandshakeAborted indicates the handshake was aborted, usually because
	// its transport was closed.
	ErrHandshakeAborted = failure.New(failure.ErrProtocol, "handshake aborted")

	// ErrMissingKeyMaterial indicates the configuration lacks a key the
	// pattern needs.
	ErrMissingKeyMaterial = errors.New("missing key material for pattern")

	// ErrMissingVerifier indicates a cold-key responder without a verifier.
	ErrMissingVerifier = errors.New("cold-key pattern requires a peer verifier")
)

// HandshakeRole defines whether we're initiating or responding to handshake
type HandshakeRole uint8

const (
	// Initiator sends the first handshake message
	Initiator HandshakeRole = iota
	// Responder answers the first handshake message
	Responder
)

func (r HandshakeRole) String() string {
	if r == Initiator {
		return "initiator"
	}
	return "responder"
}

// Claim is what a full-authenticated or cold-key initiator asserts about
// itself in its first message.
type Claim struct {
	Identity [32]byte
	Label    string
	// Signed is true when the claim carried a verified identity signature.
	Signed bool
}

// PeerID returns the claimed identity in text form.
func (c *Claim) PeerID() crypto.PeerID {
	return crypto.NewPeerID(c.Identity)
}

// PeerInfo is passed to a PeerVerifier when a peer's static key is learned
// in-band.
type PeerInfo struct {
	Pattern      Pattern
	Role         HandshakeRole
	RemoteStatic [32]byte
	Claim        *Claim
}

// PeerVerifier decides whether a peer may complete the handshake. Any
// error fails the handshake with ErrHandshakeFailed.
type PeerVerifier func(ctx context.Context, info PeerInfo) error

// HandshakeConfig carries the key material and hooks one side of a
// handshake needs. Which fields are required depends on pattern and role.
type HandshakeConfig struct {
	// Static is our static key. Required for IK, IK-raw and XX on both
	// sides, and for the NK responder.
	Static *crypto.StaticKeyMaterial

	// Identity signs the full-authenticated proof (IK initiator).
	Identity *crypto.Identity

	// ClaimedIdentity is the cold-key initiator's identity public key. If
	// nil, Identity's public key is used.
	ClaimedIdentity *[32]byte

	// Label is the context label of Static, sent in IK and IK-raw claims.
	Label string

	// RemoteStatic is the responder's static key, required by IK, IK-raw and
	// NK initiators.
	RemoteStatic *[32]byte

	// Verify runs when the peer's static key is learned in-band. Required
	// by the IK-raw responder.
	Verify PeerVerifier

	// Random overrides crypto/rand for ephemeral key generation.
	Random io.Reader

	// Clock stamps Session.Established. Defaults to the system clock.
	Clock crypto.TimeProvider
}

// Handshake is one side of one handshake attempt. It does no I/O: the
// caller moves messages between WriteMessage and ReadMessage, or uses
// Initiate and Respond.
//
// Messages must be processed in the order the pattern defines; anything
// else moves the handshake to StateFailed. Abort may be called from any
// goroutine and wipes all key material the handshake owns.
type Handshake struct {
	mu sync.Mutex

	ctx     context.Context
	pattern Pattern
	role    HandshakeRole
	variant variant
	cfg     HandshakeConfig

	hs          *noise.HandshakeState
	static      noise.DHKey
	localStatic *[32]byte

	state          State
	index          int
	claim          *Claim
	remoteVerified bool

	cs1, cs2 *noise.CipherState
	session  *Session
}

// NewHandshake creates one side of a handshake for pattern.
func NewHandshake(pattern Pattern, role HandshakeRole, cfg HandshakeConfig) (*Handshake, error) {
	return NewHandshakeContext(context.Background(), pattern, role, cfg)
}

// NewHandshakeContext is like NewHandshake; ctx is passed to the verifier.
func NewHandshakeContext(ctx context.Context, pattern Pattern, role HandshakeRole, cfg HandshakeConfig) (*Handshake, error) {
	if !pattern.Valid() {
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownPattern, uint8(pattern))
	}
	if err := validateConfig(pattern, role, &cfg); err != nil {
		return nil, err
	}
	if cfg.Random == nil {
		cfg.Random = rand.Reader
	}
	if cfg.Clock == nil {
		cfg.Clock = crypto.DefaultTimeProvider{}
	}

	h := &Handshake{
		ctx:     ctx,
		pattern: pattern,
		role:    role,
		variant: variantFor(pattern),
		cfg:     cfg,
		state:   StateInit,
	}

	config := noise.Config{
		CipherSuite: noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256),
		Random:      cfg.Random,
		Pattern:     pattern.noisePattern(),
		Initiator:   role == Initiator,
		Prologue:    append([]byte(prologuePrefix), pattern.Byte()),
	}

	if needsStatic(pattern, role) {
		secret, err := cfg.Static.Secret()
		if err != nil {
			return nil, err
		}
		pub := cfg.Static.Public()
		h.static = noise.DHKey{
			Private: make([]byte, 32),
			Public:  append([]byte(nil), pub[:]...),
		}
		copy(h.static.Private, secret[:])
		crypto.ZeroBytes(secret[:])
		h.localStatic = &pub
		config.StaticKeypair = h.static
	}

	if role == Initiator && pattern.KnownResponder() {
		config.PeerStatic = append([]byte(nil), cfg.RemoteStatic[:]...)
	}

	hs, err := noise.NewHandshakeState(config)
	if err != nil {
		h.wipeLocked()
		return nil, fmt.Errorf("failed to create handshake state: %w", err)
	}
	h.hs = hs

	return h, nil
}

func needsStatic(pattern Pattern, role HandshakeRole) bool {
	if role == Initiator {
		return pattern.InitiatorStatic()
	}
	return pattern.ResponderStatic()
}

func validateConfig(pattern Pattern, role HandshakeRole, cfg *HandshakeConfig) error {
	if needsStatic(pattern, role) && (cfg.Static == nil || cfg.Static.Destroyed()) {
		return fmt.Errorf("%w: %s %s needs a static key", ErrMissingKeyMaterial, pattern, role)
	}
	if role == Responder {
		if pattern == PatternIKRaw && cfg.Verify == nil {
			return ErrMissingVerifier
		}
		return nil
	}

	if pattern.KnownResponder() && cfg.RemoteStatic == nil {
		return fmt.Errorf("%w: %s initiator needs the responder's static key", ErrMissingKeyMaterial, pattern)
	}
	switch pattern {
	case PatternIK:
		if cfg.Identity == nil {
			return fmt.Errorf("%w: IK initiator needs an identity", ErrMissingKeyMaterial)
		}
	case PatternIKRaw:
		if cfg.ClaimedIdentity == nil && cfg.Identity == nil {
			return fmt.Errorf("%w: IK-raw initiator needs an identity claim", ErrMissingKeyMaterial)
		}
	}
	if pattern == PatternIK || pattern == PatternIKRaw {
		if cfg.Label == "" || len(cfg.Label) > maxLabelLen {
			return fmt.Errorf("%w: context label must be 1..%d bytes", ErrMissingKeyMaterial, maxLabelLen)
		}
	}
	return nil
}

// Pattern returns the handshake pattern.
func (h *Handshake) Pattern() Pattern { return h.pattern }

// Role returns our role.
func (h *Handshake) Role() HandshakeRole { return h.role }

// State returns the current state.
func (h *Handshake) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// MessageIndex returns the index of the next message to be processed.
func (h *Handshake) MessageIndex() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.index
}

// OurTurn reports whether the next message is ours to write.
func (h *Handshake) OurTurn() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ourTurnLocked()
}

func (h *Handshake) ourTurnLocked() bool {
	return writtenByInitiator(h.index) == (h.role == Initiator)
}

// Complete reports whether the handshake reached a terminal state.
func (h *Handshake) Complete() bool {
	return h.State().Terminal()
}

// Claim returns the identity claim received from the initiator, if any.
func (h *Handshake) Claim() *Claim {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.claim == nil {
		return nil
	}
	c := *h.claim
	return &c
}

func (h *Handshake) log(function string) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"function": function,
		"pattern":  h.pattern.String(),
		"role":     h.role.String(),
		"message":  h.index,
	})
}

// expectLocked checks that the next step is a write (or read) and fails
// the handshake otherwise.
func (h *Handshake) expectLocked(write bool) error {
	switch h.state {
	case StateFailed:
		return fmt.Errorf("%w: handshake already failed", ErrUnexpectedMessage)
	case StateEstablished:
		h.failLocked()
		return fmt.Errorf("%w: handshake already established", ErrUnexpectedMessage)
	}
	if h.ourTurnLocked() != write {
		h.failLocked()
		return fmt.Errorf("%w: message %d of %s belongs to the %s side",
			ErrUnexpectedMessage, h.index, h.pattern, otherRole(h.role, write))
	}
	return nil
}

func otherRole(r HandshakeRole, write bool) HandshakeRole {
	if write {
		if r == Initiator {
			return Responder
		}
		return Initiator
	}
	return r
}

// WriteMessage produces our next handshake message.
func (h *Handshake) WriteMessage() ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.expectLocked(true); err != nil {
		return nil, err
	}

	payload, err := h.variant.payload(h, h.index)
	if err != nil {
		h.failLocked()
		return nil, err
	}

	msg, cs1, cs2, err := h.hs.WriteMessage(nil, payload)
	if err != nil {
		h.log("WriteMessage").WithError(err).Error("Noise write failed")
		h.failLocked()
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	if err := limits.ValidateHandshakeMessage(msg); err != nil {
		h.failLocked()
		return nil, err
	}

	if err := h.advanceLocked(cs1, cs2); err != nil {
		return nil, err
	}
	h.log("WriteMessage").WithField("size", len(msg)).Debug("Handshake message written")
	return msg, nil
}

// ReadMessage consumes the peer's next handshake message. Every
// cryptographic or verification failure returns ErrHandshakeFailed.
func (h *Handshake) ReadMessage(msg []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.expectLocked(false); err != nil {
		return err
	}
	if err := limits.ValidateHandshakeMessage(msg); err != nil {
		h.failLocked()
		return err
	}

	payload, cs1, cs2, err := h.hs.ReadMessage(nil, msg)
	if err != nil {
		h.log("ReadMessage").Debug("Noise read failed")
		h.failLocked()
		return ErrHandshakeFailed
	}
	if err := h.variant.accept(h, h.index, payload); err != nil {
		h.log("ReadMessage").WithError(err).Debug("Handshake payload rejected")
		h.failLocked()
		return ErrHandshakeFailed
	}

	if h.variant.learnsStatic(h.role, h.index) && h.cfg.Verify != nil {
		info := PeerInfo{Pattern: h.pattern, Role: h.role, Claim: h.claim}
		copy(info.RemoteStatic[:], h.hs.PeerStatic())

		// the verifier may block on a directory lookup; do not hold the
		// lock so Abort stays synchronous
		h.mu.Unlock()
		verr := h.cfg.Verify(h.ctx, info)
		h.mu.Lock()

		if h.state == StateFailed {
			return ErrHandshakeAborted
		}
		if verr != nil {
			h.log("ReadMessage").WithError(verr).Warn("Peer verification failed")
			h.failLocked()
			return ErrHandshakeFailed
		}
		h.remoteVerified = true
	}

	if err := h.advanceLocked(cs1, cs2); err != nil {
		return err
	}
	h.log("ReadMessage").Debug("Handshake message accepted")
	return nil
}

func (h *Handshake) advanceLocked(cs1, cs2 *noise.CipherState) error {
	h.index++
	if h.index < h.pattern.MessageCount() {
		if h.ourTurnLocked() {
			h.state = StateWritePending
		} else {
			h.state = StateAwaitingPeerMessage
		}
		return nil
	}

	if cs1 == nil || cs2 == nil {
		h.failLocked()
		return fmt.Errorf("%w: no cipher states after final message", ErrHandshakeFailed)
	}
	h.cs1, h.cs2 = cs1, cs2
	h.state = StateEstablished
	// the static secret is not needed once the keys are split
	crypto.ZeroBytes(h.static.Private)
	return nil
}

// Session returns the established session. It may be called more than
// once and returns the same Session.
func (h *Handshake) Session() (*Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != StateEstablished {
		return nil, ErrHandshakeNotComplete
	}
	if h.session != nil {
		return h.session, nil
	}
	h.session = newSession(h)
	h.hs = nil
	h.cs1, h.cs2 = nil, nil
	return h.session, nil
}

// Abort fails an unfinished handshake and wipes its key material. It is
// safe to call from any goroutine and more than once. Aborting an
// established handshake only releases leftovers; a Session already handed
// out stays usable until it is closed.
func (h *Handshake) Abort() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == StateEstablished {
		crypto.ZeroBytes(h.static.Private)
		return
	}
	if h.state != StateFailed {
		h.log("Abort").Debug("Handshake aborted")
	}
	h.failLocked()
}

func (h *Handshake) failLocked() {
	h.state = StateFailed
	h.wipeLocked()
}

func (h *Handshake) wipeLocked() {
	crypto.ZeroBytes(h.static.Private)
	h.hs = nil
	h.cs1, h.cs2 = nil, nil
	h.claim = nil
}
