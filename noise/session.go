package noise

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flynn/noise"
	"github.com/google/uuid"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/opd-ai/paytrust/crypto"
	"github.com/opd-ai/paytrust/failure"
	"github.com/opd-ai/paytrust/limits"
)

// MaxSessionPlaintext is the largest payload one transport message can carry.
const MaxSessionPlaintext = noise.MaxMsgLen - limits.AEADOverhead

var (
	// ErrNonceExhausted is returned once a direction has used every nonce.
	// The session cannot be used in that direction again.
	ErrNonceExhausted = failure.New(failure.ErrProtocol, "session nonce exhausted")

	// ErrDecryptFailed is returned for any transport message that does not
	// authenticate. The receive counter is not advanced.
	ErrDecryptFailed = failure.New(failure.ErrAuthentication, "session message failed to authenticate")

	// ErrSessionClosed is returned by a closed session.
	ErrSessionClosed = failure.New(failure.ErrProtocol, "session closed")
)

// KeySource records how a session learned the remote static key.
type KeySource uint8

const (
	// KeyNone means the peer has no static key in this pattern.
	KeyNone KeySource = iota
	// KeyKnown means the key was supplied before the handshake.
	KeyKnown
	// KeyLearned means the key arrived in-band without outside proof.
	KeyLearned
	// KeySigned means the key arrived in-band covered by the peer's
	// identity signature.
	KeySigned
	// KeyDirectory means the key arrived in-band and the verifier matched
	// it against a published binding.
	KeyDirectory
)

func (k KeySource) String() string {
	switch k {
	case KeyKnown:
		return "known"
	case KeyLearned:
		return "learned"
	case KeySigned:
		return "signed"
	case KeyDirectory:
		return "directory"
	}
	return "none"
}

// Session is an established secure channel. Encrypt and Decrypt may be
// used concurrently with each other, but each direction is ordered: the
// peer must decrypt messages in the order they were encrypted.
type Session struct {
	ID      uuid.UUID
	Pattern Pattern
	Role    HandshakeRole

	// LocalStatic is nil for patterns where we had no static key.
	LocalStatic *[32]byte
	// RemoteStatic is nil for patterns where the peer had no static key.
	RemoteStatic       *[32]byte
	RemoteStaticSource KeySource
	// RemoteIdentity is the identity claimed by an IK or IK-raw initiator.
	RemoteIdentity *crypto.PeerID
	ContextLabel   string

	LocalEphemeral  [32]byte
	RemoteEphemeral [32]byte
	// HandshakeHash is the final handshake hash, unique per session.
	HandshakeHash []byte
	Established   time.Time

	sendMu    sync.Mutex
	sendKey   [32]byte
	sendNonce uint64

	recvMu    sync.Mutex
	recvKey   [32]byte
	recvNonce uint64

	closed     atomic.Bool
	attestedBy atomic.Pointer[crypto.PeerID]
}

func newSession(h *Handshake) *Session {
	s := &Session{
		ID:            uuid.New(),
		Pattern:       h.pattern,
		Role:          h.role,
		HandshakeHash: append([]byte(nil), h.hs.ChannelBinding()...),
		Established:   h.cfg.Clock.Now(),
	}

	send, recv := h.cs1, h.cs2
	if h.role == Responder {
		send, recv = h.cs2, h.cs1
	}
	s.sendKey = send.UnsafeKey()
	s.recvKey = recv.UnsafeKey()

	if h.localStatic != nil {
		pub := *h.localStatic
		s.LocalStatic = &pub
	}
	copy(s.LocalEphemeral[:], h.hs.LocalEphemeral().Public)
	copy(s.RemoteEphemeral[:], h.hs.PeerEphemeral())

	switch {
	case h.role == Initiator && h.pattern.KnownResponder():
		pub := *h.cfg.RemoteStatic
		s.RemoteStatic = &pub
		s.RemoteStaticSource = KeyKnown
	case len(h.hs.PeerStatic()) == 32:
		var pub [32]byte
		copy(pub[:], h.hs.PeerStatic())
		s.RemoteStatic = &pub
		switch {
		case h.pattern == PatternIK:
			s.RemoteStaticSource = KeySigned
		case h.pattern == PatternIKRaw && h.remoteVerified:
			s.RemoteStaticSource = KeyDirectory
		default:
			s.RemoteStaticSource = KeyLearned
		}
	}

	if h.claim != nil {
		id := h.claim.PeerID()
		s.RemoteIdentity = &id
		s.ContextLabel = h.claim.Label
	} else if h.role == Initiator {
		s.ContextLabel = h.cfg.Label
	}
	return s
}

// Authenticated reports whether the peer is bound to something beyond
// this connection: a known or verified static key, or an attestation.
func (s *Session) Authenticated() bool {
	switch s.RemoteStaticSource {
	case KeyKnown, KeySigned, KeyDirectory:
		return true
	}
	return s.attestedBy.Load() != nil
}

// SendNonce returns the number of messages encrypted so far.
func (s *Session) SendNonce() uint64 {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.sendNonce
}

// RecvNonce returns the number of messages decrypted so far.
func (s *Session) RecvNonce() uint64 {
	s.recvMu.Lock()
	defer s.recvMu.Unlock()
	return s.recvNonce
}

func sessionNonce(n uint64) []byte {
	var nonce [chacha20poly1305.NonceSize]byte
	binary.LittleEndian.PutUint64(nonce[4:], n)
	return nonce[:]
}

// Encrypt seals plaintext as the next message in the send direction.
func (s *Session) Encrypt(plaintext, ad []byte) ([]byte, error) {
	if len(plaintext) > MaxSessionPlaintext {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", limits.ErrMessageTooLarge, len(plaintext), MaxSessionPlaintext)
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if s.closed.Load() {
		return nil, ErrSessionClosed
	}
	// the last counter value is reserved
	if s.sendNonce == math.MaxUint64 {
		return nil, ErrNonceExhausted
	}

	aead, err := chacha20poly1305.New(s.sendKey[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	out := aead.Seal(nil, sessionNonce(s.sendNonce), plaintext, ad)
	s.sendNonce++
	return out, nil
}

// Decrypt opens the next message in the receive direction.
func (s *Session) Decrypt(ciphertext, ad []byte) ([]byte, error) {
	if len(ciphertext) > noise.MaxMsgLen {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", limits.ErrMessageTooLarge, len(ciphertext), noise.MaxMsgLen)
	}

	s.recvMu.Lock()
	defer s.recvMu.Unlock()

	if s.closed.Load() {
		return nil, ErrSessionClosed
	}
	if s.recvNonce == math.MaxUint64 {
		return nil, ErrNonceExhausted
	}
	if len(ciphertext) < limits.AEADOverhead {
		return nil, ErrDecryptFailed
	}

	aead, err := chacha20poly1305.New(s.recvKey[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	out, err := aead.Open(nil, sessionNonce(s.recvNonce), ciphertext, ad)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	s.recvNonce++
	return out, nil
}

// Close wipes the session keys. Safe to call more than once.
func (s *Session) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.sendMu.Lock()
	crypto.ZeroBytes(s.sendKey[:])
	s.sendMu.Unlock()

	s.recvMu.Lock()
	crypto.ZeroBytes(s.recvKey[:])
	s.recvMu.Unlock()
	return nil
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	return s.closed.Load()
}

