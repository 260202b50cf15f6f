package keycache

import (
	"crypto/subtle"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/paytrust/crypto"
)

// slot holds one peer's entry. Writers to the same peer serialize on mu;
// the map lock is only held long enough to find or create the slot.
type slot struct {
	mu      sync.RWMutex
	entry   Entry
	present bool
	removed bool
}

// Cache maps peer identities to previously observed static keys.
//
// Reads run concurrently. Writes to one peer are atomic with respect to each
// other; writes to different peers proceed independently. A Cache is
// constructed with New and released with Close; there is no package-level
// instance.
type Cache struct {
	mu     sync.RWMutex
	slots  map[crypto.PeerID]*slot
	maxAge time.Duration
	clock  crypto.TimeProvider
	logger *logrus.Logger
	closed atomic.Bool
}

// Option configures a Cache.
type Option func(*Cache)

// WithMaxAge sets how long after its last validation an entry is
// considered stale. Zero disables staleness.
func WithMaxAge(d time.Duration) Option {
	return func(c *Cache) { c.maxAge = d }
}

// WithClock sets the time source.
func WithClock(tp crypto.TimeProvider) Option {
	return func(c *Cache) {
		if tp != nil {
			c.clock = tp
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logrus.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		slots:  make(map[crypto.PeerID]*slot),
		clock:  crypto.DefaultTimeProvider{},
		logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MaxAge returns the configured staleness bound.
func (c *Cache) MaxAge() time.Duration { return c.maxAge }

func (c *Cache) log(function string, peer crypto.PeerID) *logrus.Entry {
	return c.logger.WithFields(logrus.Fields{
		"function": function,
		"peer":     peer.Short(),
	})
}

// lookupSlot returns the live slot for peer, or nil.
func (c *Cache) lookupSlot(peer crypto.PeerID) *slot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.slots[peer]
}

// lockSlot returns peer's slot locked for writing, creating it if needed.
func (c *Cache) lockSlot(peer crypto.PeerID) *slot {
	for {
		s := c.lookupSlot(peer)
		if s == nil {
			c.mu.Lock()
			if s = c.slots[peer]; s == nil {
				s = &slot{}
				c.slots[peer] = s
			}
			c.mu.Unlock()
		}
		s.mu.Lock()
		if !s.removed {
			return s
		}
		// lost a race with Remove; the map now holds a new slot or none
		s.mu.Unlock()
	}
}

func (c *Cache) isStale(e *Entry) bool {
	if c.maxAge <= 0 {
		return false
	}
	base := e.FirstSeen
	if !e.LastValidated.IsZero() {
		base = e.LastValidated
	}
	return c.clock.Since(base) > c.maxAge
}

// Get returns peer's entry, flagged stale when it is older than MaxAge.
func (c *Cache) Get(peer crypto.PeerID) (Lookup, bool) {
	if c.closed.Load() {
		return Lookup{}, false
	}
	s := c.lookupSlot(peer)
	if s == nil {
		return Lookup{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.present || s.removed {
		return Lookup{}, false
	}
	e := s.entry
	return Lookup{Entry: e, Stale: c.isStale(&e)}, true
}

// Known answers the pattern-selection question: is a key cached for peer,
// and is it fresh enough to use without re-validation.
func (c *Cache) Known(peer crypto.PeerID) (key [32]byte, fresh, ok bool) {
	l, ok := c.Get(peer)
	if !ok {
		return key, false, false
	}
	return l.StaticKey, !l.Stale, true
}

// Upsert records key for peer. A new peer or the same key refreshes
// timestamps and provenance and keeps the verified flag. A different key
// replaces an unverified entry, but over a verified entry it returns a
// *TrustError and leaves the entry untouched.
func (c *Cache) Upsert(peer crypto.PeerID, key [32]byte, provenance Provenance) (Entry, error) {
	if c.closed.Load() {
		return Entry{}, ErrClosed
	}
	if !provenance.Valid() {
		return Entry{}, ErrInvalidProvenance
	}

	s := c.lockSlot(peer)
	defer s.mu.Unlock()

	now := c.clock.Now()
	switch {
	case !s.present:
		s.entry = Entry{
			Peer:       peer,
			StaticKey:  key,
			Provenance: provenance,
			FirstSeen:  now,
			LastUsed:   now,
		}
		s.present = true
		c.log("Upsert", peer).WithField("provenance", provenance).Debug("Cached new peer key")

	case sameKey(s.entry.StaticKey, key):
		s.entry.Provenance = provenance
		s.entry.LastUsed = now

	case s.entry.Verified:
		c.log("Upsert", peer).Warn("Refusing to replace verified key")
		return s.entry, &TrustError{Peer: peer, Cached: s.entry.StaticKey, Discovered: key, Verified: true}

	default:
		c.log("Upsert", peer).WithField("provenance", provenance).Warn("Replacing unverified cached key")
		s.entry = Entry{
			Peer:       peer,
			StaticKey:  key,
			Provenance: provenance,
			FirstSeen:  now,
			LastUsed:   now,
		}
	}
	return s.entry, nil
}

// Rotate replaces peer's key unconditionally. It is the explicit decision
// a caller makes after a TrustError. The new entry starts unverified.
func (c *Cache) Rotate(peer crypto.PeerID, key [32]byte, provenance Provenance) (Entry, error) {
	if c.closed.Load() {
		return Entry{}, ErrClosed
	}
	if !provenance.Valid() {
		return Entry{}, ErrInvalidProvenance
	}

	s := c.lockSlot(peer)
	defer s.mu.Unlock()

	now := c.clock.Now()
	s.entry = Entry{
		Peer:       peer,
		StaticKey:  key,
		Provenance: provenance,
		FirstSeen:  now,
		LastUsed:   now,
	}
	s.present = true
	c.log("Rotate", peer).WithField("provenance", provenance).Info("Rotated peer key")
	return s.entry, nil
}

// MarkValidated sets the verified flag and refreshes LastValidated.
func (c *Cache) MarkValidated(peer crypto.PeerID) error {
	if c.closed.Load() {
		return ErrClosed
	}
	s := c.lookupSlot(peer)
	if s == nil {
		return ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.present || s.removed {
		return ErrNotFound
	}
	s.entry.Verified = true
	s.entry.LastValidated = c.clock.Now()
	return nil
}

// Reconcile compares a key obtained from the directory with the cache.
// With no entry the key is cached as verified; a matching key marks the
// entry verified; a different key returns a *TrustError and changes
// nothing.
func (c *Cache) Reconcile(peer crypto.PeerID, discovered [32]byte) (Entry, error) {
	if c.closed.Load() {
		return Entry{}, ErrClosed
	}

	s := c.lockSlot(peer)
	defer s.mu.Unlock()

	now := c.clock.Now()
	switch {
	case !s.present:
		s.entry = Entry{
			Peer:          peer,
			StaticKey:     discovered,
			Provenance:    ProvenanceDirectory,
			FirstSeen:     now,
			LastUsed:      now,
			LastValidated: now,
			Verified:      true,
		}
		s.present = true

	case sameKey(s.entry.StaticKey, discovered):
		s.entry.Verified = true
		s.entry.LastValidated = now
		c.log("Reconcile", peer).WithField("provenance", s.entry.Provenance).Debug("Directory confirmed cached key")

	default:
		c.log("Reconcile", peer).WithField("verified", s.entry.Verified).Warn("Directory key differs from cached key")
		return s.entry, &TrustError{
			Peer:       peer,
			Cached:     s.entry.StaticKey,
			Discovered: discovered,
			Verified:   s.entry.Verified,
		}
	}
	return s.entry, nil
}

// Touch records that peer's key was just used.
func (c *Cache) Touch(peer crypto.PeerID) {
	if c.closed.Load() {
		return
	}
	s := c.lookupSlot(peer)
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.present && !s.removed {
		s.entry.LastUsed = c.clock.Now()
	}
	s.mu.Unlock()
}

// Remove forgets peer.
func (c *Cache) Remove(peer crypto.PeerID) {
	c.mu.Lock()
	s := c.slots[peer]
	delete(c.slots, peer)
	c.mu.Unlock()

	if s != nil {
		s.mu.Lock()
		s.removed = true
		s.present = false
		s.mu.Unlock()
	}
}

// Len returns the number of cached peers.
func (c *Cache) Len() int {
	return len(c.Snapshot())
}

// Snapshot returns a copy of every entry, sorted by peer.
func (c *Cache) Snapshot() []Entry {
	c.mu.RLock()
	slots := make([]*slot, 0, len(c.slots))
	for _, s := range c.slots {
		slots = append(slots, s)
	}
	c.mu.RUnlock()

	entries := make([]Entry, 0, len(slots))
	for _, s := range slots {
		s.mu.RLock()
		if s.present && !s.removed {
			entries = append(entries, s.entry)
		}
		s.mu.RUnlock()
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Peer < entries[j].Peer })
	return entries
}

// Close releases the cache. Safe to call more than once.
func (c *Cache) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.mu.Lock()
	c.slots = make(map[crypto.PeerID]*slot)
	c.mu.Unlock()
	return nil
}

func sameKey(a, b [32]byte) bool {
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}
