// Package directory provides an in-memory implementation of the
// interfaces.IDirectory key directory.
package directory

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/paytrust/crypto"
	"github.com/opd-ai/paytrust/interfaces"
)

type recordKey struct {
	peer  crypto.PeerID
	label string
}

// Memory is a directory held in a map. Publish only accepts records whose
// binding signature verifies against the publishing peer's identity.
type Memory struct {
	mu      sync.RWMutex
	records map[recordKey]interfaces.DirectoryRecord
}

// NewMemory creates an empty directory.
func NewMemory() *Memory {
	return &Memory{records: make(map[recordKey]interfaces.DirectoryRecord)}
}

// Lookup returns a copy of the record for peer under label.
func (m *Memory) Lookup(ctx context.Context, peer crypto.PeerID, label string) (*interfaces.DirectoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	rec, ok := m.records[recordKey{peer, label}]
	m.mu.RUnlock()
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return &rec, nil
}

// Publish stores rec after checking its binding.
func (m *Memory) Publish(ctx context.Context, peer crypto.PeerID, label string, rec interfaces.DirectoryRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if label == "" {
		return crypto.ErrEmptyLabel
	}
	identity, err := peer.PublicKey()
	if err != nil {
		return err
	}
	if err := crypto.VerifyBinding(identity, rec.StaticKey, label, rec.Binding); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Publish",
			"peer":     peer.Short(),
			"label":    label,
		}).Warn("Rejected record with invalid binding")
		return fmt.Errorf("publish %s: %w", label, err)
	}

	m.mu.Lock()
	m.records[recordKey{peer, label}] = rec
	m.mu.Unlock()
	return nil
}

// Remove deletes the record for peer under label.
func (m *Memory) Remove(peer crypto.PeerID, label string) {
	m.mu.Lock()
	delete(m.records, recordKey{peer, label})
	m.mu.Unlock()
}

// Len returns the number of records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// PublishStatic signs material's public key under its label with id and
// publishes the binding.
func PublishStatic(ctx context.Context, dir interfaces.IDirectory, id *crypto.Identity, material *crypto.StaticKeyMaterial) error {
	pub := material.Public()
	return dir.Publish(ctx, id.PeerID(), material.Label(), interfaces.DirectoryRecord{
		StaticKey: pub,
		Binding:   crypto.SignBinding(id, pub, material.Label()),
	})
}
