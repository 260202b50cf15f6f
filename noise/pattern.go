package noise

import (
	"fmt"
	"strings"

	"github.com/flynn/noise"

	"github.com/opd-ai/paytrust/failure"
)

// Pattern identifies a handshake variant. Its value is the wire
// discriminator byte.
type Pattern uint8

const (
	// PatternIK is full-authenticated: Noise IK with an identity signature
	// in the first message.
	PatternIK Pattern = 0x00
	// PatternIKRaw is cold-key-authenticated: Noise IK where the client's
	// static key is checked against a directory binding instead of a live
	// signature.
	PatternIKRaw Pattern = 0x01
	// PatternNK is anonymous-client: the server is authenticated by its
	// known static key, the client stays anonymous.
	PatternNK Pattern = 0x02
	// PatternNN is fully-ephemeral: no static keys. Must be followed by an
	// attestation before the session is trusted.
	PatternNN Pattern = 0x03
	// PatternXX is trust-on-first-use: both static keys are learned in-band.
	PatternXX Pattern = 0x04
)

// ErrUnknownPattern is returned for unassigned discriminator bytes and
// unknown pattern names.
var ErrUnknownPattern = failure.New(failure.ErrProtocol, "unknown handshake pattern")

// AllPatterns lists every assigned pattern in discriminator order.
func AllPatterns() []Pattern {
	return []Pattern{PatternIK, PatternIKRaw, PatternNK, PatternNN, PatternXX}
}

// PatternFromByte maps a discriminator byte to a pattern.
func PatternFromByte(b byte) (Pattern, error) {
	p := Pattern(b)
	if !p.Valid() {
		return 0, fmt.Errorf("%w: 0x%02x", ErrUnknownPattern, b)
	}
	return p, nil
}

// ParsePattern accepts pattern names as used in configuration files.
func ParsePattern(s string) (Pattern, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ik", "full-authenticated":
		return PatternIK, nil
	case "ik-raw", "ikraw", "cold-key", "cold-key-authenticated":
		return PatternIKRaw, nil
	case "nk", "n", "anonymous", "anonymous-client":
		return PatternNK, nil
	case "nn", "ephemeral", "fully-ephemeral":
		return PatternNN, nil
	case "xx", "tofu", "trust-on-first-use":
		return PatternXX, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownPattern, s)
}

// Valid reports whether p is an assigned pattern.
func (p Pattern) Valid() bool {
	return p <= PatternXX
}

// Byte returns the wire discriminator.
func (p Pattern) Byte() byte { return byte(p) }

func (p Pattern) String() string {
	switch p {
	case PatternIK:
		return "IK"
	case PatternIKRaw:
		return "IK-raw"
	case PatternNK:
		return "NK"
	case PatternNN:
		return "NN"
	case PatternXX:
		return "XX"
	}
	return fmt.Sprintf("Pattern(0x%02x)", uint8(p))
}

// TrustModel returns the human-readable trust model name.
func (p Pattern) TrustModel() string {
	switch p {
	case PatternIK:
		return "full-authenticated"
	case PatternIKRaw:
		return "cold-key-authenticated"
	case PatternNK:
		return "anonymous-client"
	case PatternNN:
		return "fully-ephemeral"
	case PatternXX:
		return "trust-on-first-use"
	}
	return "unknown"
}

// MessageCount is the number of handshake messages before Established.
func (p Pattern) MessageCount() int {
	if p == PatternXX {
		return 3
	}
	return 2
}

// InitiatorStatic reports whether the initiator needs static key material.
func (p Pattern) InitiatorStatic() bool {
	return p == PatternIK || p == PatternIKRaw || p == PatternXX
}

// ResponderStatic reports whether the responder needs static key material.
func (p Pattern) ResponderStatic() bool {
	return p != PatternNN
}

// KnownResponder reports whether the initiator must know the responder's
// static key in advance.
func (p Pattern) KnownResponder() bool {
	return p == PatternIK || p == PatternIKRaw || p == PatternNK
}

func (p Pattern) noisePattern() noise.HandshakePattern {
	switch p {
	case PatternIK, PatternIKRaw:
		return noise.HandshakeIK
	case PatternNK:
		return noise.HandshakeNK
	case PatternNN:
		return noise.HandshakeNN
	default:
		return noise.HandshakeXX
	}
}

// writer reports whether the message at index is written by the initiator.
func writtenByInitiator(index int) bool {
	return index%2 == 0
}
