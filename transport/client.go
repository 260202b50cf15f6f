package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/paytrust/crypto"
	"github.com/opd-ai/paytrust/interfaces"
	"github.com/opd-ai/paytrust/keycache"
	"github.com/opd-ai/paytrust/noise"
)

// Client opens sessions to peers, choosing the handshake pattern from what
// its key cache knows about the peer.
type Client struct {
	Cache *keycache.Cache
	// Directory, if set, is consulted after a trust-on-first-use handshake
	// to cross-check the learned key.
	Directory interfaces.IDirectory

	Static *crypto.StaticKeyMaterial
	// Identity signs full-authenticated handshakes. Without it the client
	// uses the cold-key pattern and claims ClaimedIdentity instead.
	Identity        *crypto.Identity
	ClaimedIdentity *[32]byte
	// Label is the context label of Static, and the label under which
	// peers' keys are looked up in Directory.
	Label string

	Timeout time.Duration
	Framing noise.Framing
	Metrics *HandshakeMetrics
	// Clock stamps established sessions. Nil uses the system clock.
	Clock crypto.TimeProvider
}

// Connect opens a session to peer over t. A fresh cached key is used
// directly (IK, or IK-raw without an identity); otherwise the client runs
// XX, caches the learned key and, with a directory configured, checks it
// against the published binding. A conflict is returned as a
// *keycache.TrustError and the session is closed.
func (c *Client) Connect(ctx context.Context, t interfaces.ITransport, peer crypto.PeerID) (*noise.Session, error) {
	if key, fresh, ok := c.Cache.Known(peer); ok && fresh {
		pattern := noise.PatternIK
		if c.Identity == nil {
			pattern = noise.PatternIKRaw
		}
		s, err := c.initiate(ctx, t, pattern, &key)
		if err != nil {
			return nil, err
		}
		c.Cache.Touch(peer)
		return s, nil
	}

	s, err := c.initiate(ctx, t, noise.PatternXX, nil)
	if err != nil {
		return nil, err
	}
	if err := c.learn(ctx, peer, *s.RemoteStatic); err != nil {
		s.Close()
		t.Close()
		return nil, err
	}
	return s, nil
}

// learn records a key obtained through trust-on-first-use and cross-checks
// it with the directory.
func (c *Client) learn(ctx context.Context, peer crypto.PeerID, learned [32]byte) error {
	logger := logrus.WithFields(logrus.Fields{
		"function": "learn",
		"peer":     peer.Short(),
	})

	if _, err := c.Cache.Upsert(peer, learned, keycache.ProvenanceTOFU); err != nil {
		return err
	}
	if c.Directory == nil {
		return nil
	}

	rec, err := c.Directory.Lookup(ctx, peer, c.Label)
	switch {
	case errors.Is(err, interfaces.ErrNotFound):
		logger.Debug("Peer has no published key, keeping first-use key")
		return nil
	case err != nil:
		logger.WithError(err).Warn("Directory lookup failed, keeping first-use key")
		return nil
	}

	identity, err := peer.PublicKey()
	if err != nil {
		return err
	}
	if err := crypto.VerifyBinding(identity, rec.StaticKey, c.Label, rec.Binding); err != nil {
		logger.Warn("Ignoring directory record with invalid binding")
		return nil
	}
	if _, err := c.Cache.Reconcile(peer, rec.StaticKey); err != nil {
		return err
	}
	return nil
}

// ConnectAnonymous opens an anonymous-client session to a server whose
// static key is known.
func (c *Client) ConnectAnonymous(ctx context.Context, t interfaces.ITransport, serverStatic [32]byte) (*noise.Session, error) {
	return c.initiate(ctx, t, noise.PatternNK, &serverStatic)
}

// ConnectEphemeral opens a fully-ephemeral session. Neither side is
// authenticated until noise.ExchangeAttestation succeeds.
func (c *Client) ConnectEphemeral(ctx context.Context, t interfaces.ITransport) (*noise.Session, error) {
	return c.initiate(ctx, t, noise.PatternNN, nil)
}

func (c *Client) initiate(ctx context.Context, t interfaces.ITransport, p noise.Pattern, remote *[32]byte) (*noise.Session, error) {
	if c.Framing == noise.FramingLegacy && p != noise.PatternIK {
		return nil, fmt.Errorf("%w: %s needs a pattern-aware listener", noise.ErrLegacyPattern, p)
	}

	cfg := noise.InitiatorConfig{
		Pattern:      p,
		Framing:      c.Framing,
		Timeout:      c.Timeout,
		RemoteStatic: remote,
		Clock:        c.Clock,
	}
	if p.InitiatorStatic() {
		cfg.Static = c.Static
	}
	if p == noise.PatternIK || p == noise.PatternIKRaw {
		cfg.Identity = c.Identity
		cfg.ClaimedIdentity = c.ClaimedIdentity
		cfg.Label = c.Label
	}

	start := time.Now()
	s, err := noise.Initiate(ctx, t, cfg)
	c.Metrics.ObserveHandshake(p, start, err)
	return s, err
}
