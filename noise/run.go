package noise

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/paytrust/crypto"
	"github.com/opd-ai/paytrust/failure"
	"github.com/opd-ai/paytrust/interfaces"
	"github.com/opd-ai/paytrust/limits"
)

// DefaultTimeout bounds a whole handshake when the config sets none.
const DefaultTimeout = 10 * time.Second

var (
	// ErrHandshakeTimeout is returned when the handshake deadline passes
	// while waiting for the peer.
	ErrHandshakeTimeout = failure.New(failure.ErrTimeout, "handshake timed out")

	// ErrLegacyPattern is returned when legacy framing is combined with a
	// pattern other than IK.
	ErrLegacyPattern = failure.New(failure.ErrProtocol, "legacy framing only carries the IK pattern")
)

// Framing selects how the initiator opens the connection.
type Framing uint8

const (
	// FramingPatternAware prefixes the first frame with the pattern byte.
	FramingPatternAware Framing = iota
	// FramingLegacy sends bare IK frames for responders that predate
	// pattern negotiation.
	FramingLegacy
)

func (f Framing) String() string {
	if f == FramingLegacy {
		return "legacy"
	}
	return "pattern-aware"
}

// InitiatorConfig configures Initiate.
type InitiatorConfig struct {
	Pattern Pattern
	Framing Framing
	// Timeout defaults to DefaultTimeout.
	Timeout time.Duration

	Static          *crypto.StaticKeyMaterial
	Identity        *crypto.Identity
	ClaimedIdentity *[32]byte
	Label           string
	RemoteStatic    *[32]byte
	Verify          PeerVerifier
	Random          io.Reader
	Clock           crypto.TimeProvider
}

// ResponderConfig configures Respond. One responder config serves every
// pattern a listener accepts.
type ResponderConfig struct {
	// Timeout defaults to DefaultTimeout.
	Timeout time.Duration

	Static *crypto.StaticKeyMaterial
	Verify PeerVerifier
	// ReplayGuard, if set, rejects repeated first messages before any
	// handshake state is created for them.
	ReplayGuard *ReplayGuard
	Random      io.Reader
	Clock       crypto.TimeProvider
}

func timeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultTimeout
	}
	return d
}

// Initiate runs the initiator side of a handshake over t.
func Initiate(ctx context.Context, t interfaces.ITransport, cfg InitiatorConfig) (*Session, error) {
	if cfg.Framing == FramingLegacy && cfg.Pattern != PatternIK {
		return nil, fmt.Errorf("%w: got %s", ErrLegacyPattern, cfg.Pattern)
	}

	ctx, cancel := context.WithTimeout(ctx, timeoutOrDefault(cfg.Timeout))
	defer cancel()

	h, err := NewHandshakeContext(ctx, cfg.Pattern, Initiator, HandshakeConfig{
		Static:          cfg.Static,
		Identity:        cfg.Identity,
		ClaimedIdentity: cfg.ClaimedIdentity,
		Label:           cfg.Label,
		RemoteStatic:    cfg.RemoteStatic,
		Verify:          cfg.Verify,
		Random:          cfg.Random,
		Clock:           cfg.Clock,
	})
	if err != nil {
		return nil, err
	}

	r := newRunner(ctx, t)
	defer r.stop()
	r.attach(h)

	var prefix []byte
	if cfg.Framing == FramingPatternAware {
		prefix = []byte{cfg.Pattern.Byte()}
	}
	return r.drive(h, prefix, nil)
}

// Respond runs the responder side of a handshake for pattern over t. The
// pattern byte, if any, has already been consumed by the caller. A
// deadline already on ctx wins over a later cfg.Timeout, so a caller that
// read the pattern byte under the same deadline keeps one bound for the
// whole handshake.
func Respond(ctx context.Context, t interfaces.ITransport, pattern Pattern, cfg ResponderConfig) (*Session, error) {
	if !pattern.Valid() {
		t.Close()
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownPattern, uint8(pattern))
	}

	ctx, cancel := context.WithTimeout(ctx, timeoutOrDefault(cfg.Timeout))
	defer cancel()

	r := newRunner(ctx, t)
	defer r.stop()

	first, err := ReadFrame(t, limits.MaxHandshakeMessage)
	if err != nil {
		return nil, r.fail(err)
	}
	if cfg.ReplayGuard != nil {
		if err := cfg.ReplayGuard.Check(first); err != nil {
			t.Close()
			return nil, err
		}
	}

	h, err := NewHandshakeContext(ctx, pattern, Responder, HandshakeConfig{
		Static: cfg.Static,
		Verify: cfg.Verify,
		Random: cfg.Random,
		Clock:  cfg.Clock,
	})
	if err != nil {
		t.Close()
		return nil, err
	}
	r.attach(h)
	return r.drive(h, nil, first)
}

// runner ties one handshake to its transport and deadline. When the
// context ends the handshake is aborted and the transport closed, which
// unblocks any pending read.
type runner struct {
	ctx    context.Context
	t      interfaces.ITransport
	h      atomic.Pointer[Handshake]
	stopFn func() bool
}

func newRunner(ctx context.Context, t interfaces.ITransport) *runner {
	r := &runner{ctx: ctx, t: t}
	r.stopFn = context.AfterFunc(ctx, func() {
		if h := r.h.Load(); h != nil {
			h.Abort()
		}
		t.Close()
	})
	return r
}

func (r *runner) attach(h *Handshake) {
	r.h.Store(h)
	if n, ok := r.t.(interfaces.ICloseNotifier); ok {
		n.OnClose(h.Abort)
	}
	// the context may have ended before h was stored
	if r.ctx.Err() != nil {
		h.Abort()
	}
}

func (r *runner) stop() { r.stopFn() }

func (r *runner) log() *logrus.Entry {
	fields := logrus.Fields{"function": "drive"}
	if h := r.h.Load(); h != nil {
		fields["pattern"] = h.pattern.String()
		fields["role"] = h.role.String()
	}
	return logrus.WithFields(fields)
}

// fail aborts the handshake and maps err to the error the caller sees.
// A deadline always reads as ErrHandshakeTimeout, whatever I/O error the
// closed transport produced.
func (r *runner) fail(err error) error {
	if h := r.h.Load(); h != nil {
		h.Abort()
	}
	r.t.Close()

	ctxErr := r.ctx.Err()
	switch {
	case errors.Is(ctxErr, context.DeadlineExceeded):
		r.log().Debug("Handshake deadline exceeded")
		return ErrHandshakeTimeout
	case ctxErr != nil:
		return fmt.Errorf("%w: %v", ErrHandshakeAborted, ctxErr)
	case failure.KindOf(err) != nil:
		r.log().WithError(err).Debug("Handshake failed")
		return err
	}
	r.log().WithError(err).Debug("Handshake transport failed")
	return fmt.Errorf("%w: %v", ErrHandshakeAborted, err)
}

// drive moves messages between h and the transport until h is
// established. prefix is written before the first outgoing frame; first
// is an already-read incoming frame.
func (r *runner) drive(h *Handshake, prefix, first []byte) (*Session, error) {
	for h.State() != StateEstablished {
		if h.OurTurn() {
			msg, err := h.WriteMessage()
			if err != nil {
				return nil, r.fail(err)
			}
			if err := r.t.WriteAll(framed(prefix, msg)); err != nil {
				return nil, r.fail(err)
			}
			prefix = nil
			continue
		}

		msg := first
		first = nil
		if msg == nil {
			var err error
			if msg, err = ReadFrame(r.t, limits.MaxHandshakeMessage); err != nil {
				return nil, r.fail(err)
			}
		}
		if err := h.ReadMessage(msg); err != nil {
			return nil, r.fail(err)
		}
	}

	s, err := h.Session()
	if err != nil {
		return nil, r.fail(err)
	}
	// the deadline may have fired between the last message and here
	if !r.stopFn() && r.ctx.Err() != nil {
		s.Close()
		return nil, r.fail(r.ctx.Err())
	}
	// the session lives only as long as its connection
	if n, ok := r.t.(interfaces.ICloseNotifier); ok {
		n.OnClose(func() { s.Close() })
		if s.Closed() {
			return nil, r.fail(ErrSessionClosed)
		}
	}

	r.log().WithField("session", s.ID.String()).Debug("Handshake established")
	return s, nil
}

func framed(prefix, msg []byte) []byte {
	buf := make([]byte, len(prefix)+frameHeaderSize+len(msg))
	n := copy(buf, prefix)
	binary.BigEndian.PutUint32(buf[n:], uint32(len(msg)))
	copy(buf[n+frameHeaderSize:], msg)
	return buf
}
