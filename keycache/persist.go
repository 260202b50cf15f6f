package keycache

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/paytrust/crypto"
	"github.com/opd-ai/paytrust/interfaces"
)

// StorageKey is where Save and Load keep the cache in secure storage.
const StorageKey = "keycache/entries"

const recordVersion = 1

type record struct {
	Peer          string     `json:"peer"`
	StaticKey     string     `json:"static_key"`
	Provenance    Provenance `json:"provenance"`
	FirstSeen     time.Time  `json:"first_seen"`
	LastUsed      time.Time  `json:"last_used"`
	LastValidated time.Time  `json:"last_validated,omitempty"`
	Verified      bool       `json:"verified"`
}

type snapshotFile struct {
	Version int      `json:"version"`
	Entries []record `json:"entries"`
}

// Save writes every entry to store under StorageKey.
func (c *Cache) Save(store interfaces.ISecureStorage) error {
	if c.closed.Load() {
		return ErrClosed
	}
	entries := c.Snapshot()
	file := snapshotFile{Version: recordVersion, Entries: make([]record, 0, len(entries))}
	for _, e := range entries {
		file.Entries = append(file.Entries, record{
			Peer:          string(e.Peer),
			StaticKey:     hex.EncodeToString(e.StaticKey[:]),
			Provenance:    e.Provenance,
			FirstSeen:     e.FirstSeen,
			LastUsed:      e.LastUsed,
			LastValidated: e.LastValidated,
			Verified:      e.Verified,
		})
	}

	data, err := json.Marshal(file)
	if err != nil {
		return fmt.Errorf("failed to encode key cache: %w", err)
	}
	if err := store.Put(StorageKey, data); err != nil {
		return fmt.Errorf("failed to store key cache: %w", err)
	}
	c.logger.WithFields(logrus.Fields{
		"function": "Save",
		"entries":  len(entries),
	}).Debug("Key cache saved")
	return nil
}

// Load reads entries saved by Save, replacing any cached entry for the
// same peer. A missing record is not an error.
func (c *Cache) Load(store interfaces.ISecureStorage) error {
	if c.closed.Load() {
		return ErrClosed
	}
	data, err := store.Get(StorageKey)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read key cache: %w", err)
	}

	var file snapshotFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("corrupted key cache: %w", err)
	}
	if file.Version != recordVersion {
		return fmt.Errorf("unsupported key cache version %d", file.Version)
	}

	loaded := 0
	for _, r := range file.Entries {
		e, err := r.entry()
		if err != nil {
			c.logger.WithFields(logrus.Fields{
				"function": "Load",
				"error":    err.Error(),
			}).Warn("Skipping invalid key cache record")
			continue
		}
		s := c.lockSlot(e.Peer)
		s.entry = e
		s.present = true
		s.mu.Unlock()
		loaded++
	}

	c.logger.WithFields(logrus.Fields{
		"function": "Load",
		"loaded":   loaded,
		"skipped":  len(file.Entries) - loaded,
	}).Info("Key cache loaded")
	return nil
}

func (r record) entry() (Entry, error) {
	peer, err := crypto.ParsePeerID(r.Peer)
	if err != nil {
		return Entry{}, err
	}
	raw, err := hex.DecodeString(r.StaticKey)
	if err != nil || len(raw) != 32 {
		return Entry{}, fmt.Errorf("invalid static key for %s", peer.Short())
	}
	if !r.Provenance.Valid() {
		return Entry{}, ErrInvalidProvenance
	}
	e := Entry{
		Peer:          peer,
		Provenance:    r.Provenance,
		FirstSeen:     r.FirstSeen,
		LastUsed:      r.LastUsed,
		LastValidated: r.LastValidated,
		Verified:      r.Verified,
	}
	copy(e.StaticKey[:], raw)
	return e, nil
}
