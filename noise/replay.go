package noise

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/paytrust/crypto"
	"github.com/opd-ai/paytrust/failure"
)

const (
	// DefaultReplayWindow covers the handshake timeout plus clock drift.
	DefaultReplayWindow = 6 * time.Minute

	replayFileName = "handshake_ephemerals.dat"
	replayRecord   = 40
)

// ErrReplay is returned when a first handshake message reuses an ephemeral
// key seen within the replay window.
var ErrReplay = failure.New(failure.ErrProtocol, "replayed handshake message")

// ReplayGuard remembers the ephemeral key of every accepted first
// handshake message for a window, so a recorded message cannot be
// replayed against a responder.
//
// With a data directory the seen set survives restarts: it is loaded on
// creation and saved on Close. It is safe for concurrent use.
type ReplayGuard struct {
	mu       sync.Mutex
	seen     map[[32]byte]int64 // digest -> expiry (unix seconds)
	window   time.Duration
	saveFile string
	clock    crypto.TimeProvider
	logger   *logrus.Logger

	stop      chan struct{}
	closeOnce sync.Once
}

// ReplayOption configures a ReplayGuard.
type ReplayOption func(*ReplayGuard)

// WithReplayClock sets the guard's clock.
func WithReplayClock(tp crypto.TimeProvider) ReplayOption {
	return func(g *ReplayGuard) { g.clock = tp }
}

// NewReplayGuard creates a replay guard. dataDir "" keeps the set in
// memory only; window <= 0 uses DefaultReplayWindow.
func NewReplayGuard(dataDir string, window time.Duration, opts ...ReplayOption) (*ReplayGuard, error) {
	if window <= 0 {
		window = DefaultReplayWindow
	}
	g := &ReplayGuard{
		seen:   make(map[[32]byte]int64),
		window: window,
		clock:  crypto.DefaultTimeProvider{},
		logger: logrus.StandardLogger(),
		stop:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}

	if dataDir != "" {
		if err := os.MkdirAll(dataDir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		g.saveFile = filepath.Join(dataDir, replayFileName)
		if err := g.load(); err != nil {
			g.logger.WithError(err).Warn("Could not load replay guard state, starting fresh")
		}
	}

	go g.cleanupLoop()
	return g, nil
}

// Check records the ephemeral carried by a first handshake message and
// returns ErrReplay if it was seen within the window.
func (g *ReplayGuard) Check(firstMessage []byte) error {
	if len(firstMessage) < 32 {
		return fmt.Errorf("%w: first message shorter than an ephemeral key", ErrMalformedFrame)
	}
	digest := sha256.Sum256(firstMessage[:32])
	now := g.clock.Now().Unix()

	g.mu.Lock()
	defer g.mu.Unlock()

	if expiry, ok := g.seen[digest]; ok && expiry >= now {
		g.logger.WithFields(logrus.Fields{
			"function": "Check",
			"digest":   fmt.Sprintf("%x", digest[:8]),
		}).Warn("Replayed handshake message rejected")
		return ErrReplay
	}
	g.seen[digest] = now + int64(g.window.Seconds())
	return nil
}

// Size returns the number of remembered ephemerals.
func (g *ReplayGuard) Size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}

// Cleanup drops expired entries. It runs periodically on its own.
func (g *ReplayGuard) Cleanup() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now().Unix()
	removed := 0
	for digest, expiry := range g.seen {
		if expiry < now {
			delete(g.seen, digest)
			removed++
		}
	}
	if removed > 0 {
		g.logger.WithFields(logrus.Fields{
			"function":  "Cleanup",
			"removed":   removed,
			"remaining": len(g.seen),
		}).Debug("Expired replay entries removed")
	}
}

func (g *ReplayGuard) cleanupLoop() {
	interval := g.window / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.Cleanup()
		case <-g.stop:
			return
		}
	}
}

// load reads [count:8] followed by [digest:32][expiry:8] records.
func (g *ReplayGuard) load() error {
	data, err := os.ReadFile(g.saveFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read replay state: %w", err)
	}
	if len(data) < 8 {
		return errors.New("corrupted replay state: file too small")
	}

	count := binary.BigEndian.Uint64(data[:8])
	now := g.clock.Now().Unix()
	loaded := 0
	for i, off := uint64(0), 8; i < count && off+replayRecord <= len(data); i, off = i+1, off+replayRecord {
		var digest [32]byte
		copy(digest[:], data[off:off+32])
		expiry := binary.BigEndian.Uint64(data[off+32 : off+replayRecord])
		if expiry > math.MaxInt64 || int64(expiry) < now {
			continue
		}
		g.seen[digest] = int64(expiry)
		loaded++
	}

	g.logger.WithFields(logrus.Fields{
		"function": "load",
		"in_file":  count,
		"loaded":   loaded,
	}).Info("Replay guard state loaded")
	return nil
}

func (g *ReplayGuard) save() error {
	g.mu.Lock()
	buf := make([]byte, 8, 8+len(g.seen)*replayRecord)
	n := uint64(0)
	for digest, expiry := range g.seen {
		if expiry < 0 {
			continue
		}
		buf = append(buf, digest[:]...)
		buf = binary.BigEndian.AppendUint64(buf, uint64(expiry))
		n++
	}
	g.mu.Unlock()
	binary.BigEndian.PutUint64(buf[:8], n)

	tmp := g.saveFile + ".tmp"
	if err := os.WriteFile(tmp, buf, 0o600); err != nil {
		return fmt.Errorf("failed to write replay state: %w", err)
	}
	if err := os.Rename(tmp, g.saveFile); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename replay state: %w", err)
	}
	return nil
}

// Close stops the cleanup loop and saves the seen set when a data
// directory was configured.
func (g *ReplayGuard) Close() error {
	var err error
	g.closeOnce.Do(func() {
		close(g.stop)
		if g.saveFile != "" {
			err = g.save()
		}
	})
	return err
}
