package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/paytrust/interfaces"
	"github.com/opd-ai/paytrust/noise"
)

// Mode is how a listener expects handshakes to be framed. It is fixed per
// listener; the dispatcher never guesses from the bytes it receives.
type Mode uint8

const (
	// ModePatternAware reads a one-byte pattern discriminator first.
	ModePatternAware Mode = iota
	// ModeLegacy runs the IK responder directly on bare frames.
	ModeLegacy
)

func (m Mode) String() string {
	if m == ModeLegacy {
		return "legacy"
	}
	return "pattern-aware"
}

// ParseMode parses "pattern-aware" or "legacy".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "pattern-aware", "aware":
		return ModePatternAware, nil
	case "legacy":
		return ModeLegacy, nil
	}
	return 0, fmt.Errorf("unknown listener mode %q", s)
}

// Dispatcher routes an incoming connection to the responder for the
// pattern its first byte names.
type Dispatcher struct {
	Mode Mode
	// Patterns lists the accepted patterns. Nil accepts all of them.
	Patterns  map[noise.Pattern]bool
	Responder noise.ResponderConfig
	Metrics   *HandshakeMetrics
}

// Allows reports whether the dispatcher accepts p.
func (d *Dispatcher) Allows(p noise.Pattern) bool {
	if !p.Valid() {
		return false
	}
	if d.Patterns == nil {
		return true
	}
	return d.Patterns[p]
}

// Dispatch runs the responder side of one handshake on t. On any error t
// is closed. An unassigned or disabled pattern byte is rejected before any
// handshake state exists. One deadline of Responder.Timeout covers both
// the pattern byte and the handshake that follows it.
func (d *Dispatcher) Dispatch(ctx context.Context, t interfaces.ITransport) (*noise.Session, error) {
	start := time.Now()
	timeout := d.Responder.Timeout
	if timeout <= 0 {
		timeout = noise.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if d.Mode == ModeLegacy {
		s, err := noise.Respond(ctx, t, noise.PatternIK, d.Responder)
		d.observe(noise.PatternIK, start, err)
		return s, err
	}

	b, err := d.readDiscriminator(ctx, t)
	if err != nil {
		t.Close()
		return nil, err
	}

	p, err := noise.PatternFromByte(b)
	if err == nil && !d.Allows(p) {
		err = fmt.Errorf("%w: %s is disabled on this listener", noise.ErrUnknownPattern, p)
	}
	if err != nil {
		t.Close()
		d.Metrics.Reject(RejectUnknownPattern)
		logrus.WithFields(logrus.Fields{
			"function": "Dispatch",
			"byte":     fmt.Sprintf("0x%02x", b),
		}).Warn("Rejected connection with unknown or disabled pattern")
		return nil, err
	}

	s, err := noise.Respond(ctx, t, p, d.Responder)
	d.observe(p, start, err)
	return s, err
}

// readDiscriminator reads the pattern byte before ctx expires.
func (d *Dispatcher) readDiscriminator(ctx context.Context, t interfaces.ITransport) (byte, error) {
	stop := context.AfterFunc(ctx, func() { t.Close() })

	var b [1]byte
	err := t.ReadFull(b[:])
	if !stop() {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return 0, noise.ErrHandshakeTimeout
		}
		return 0, fmt.Errorf("%w: %v", noise.ErrHandshakeAborted, ctx.Err())
	}
	if err != nil {
		return 0, fmt.Errorf("%w: reading pattern byte: %v", noise.ErrHandshakeAborted, err)
	}
	return b[0], nil
}

func (d *Dispatcher) observe(p noise.Pattern, start time.Time, err error) {
	if errors.Is(err, noise.ErrReplay) {
		d.Metrics.Reject(RejectReplay)
		return
	}
	d.Metrics.ObserveHandshake(p, start, err)
}
