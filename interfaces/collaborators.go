package interfaces

import (
	"context"
	"errors"

	"github.com/opd-ai/paytrust/crypto"
)

// ErrNotFound is returned by IDirectory and ISecureStorage lookups for
// missing records.
var ErrNotFound = errors.New("not found")

// ITransport is an ordered, reliable byte stream. The handshake engine
// reads and writes whole frames through it and nothing else.
type ITransport interface {
	// ReadFull reads exactly len(p) bytes or returns an error
	ReadFull(p []byte) error

	// WriteAll writes all of p or returns an error
	WriteAll(p []byte) error

	// Close shuts down the stream. It must be safe to call more than once.
	Close() error
}

// ICloseNotifier is implemented by transports that can run cleanup hooks
// synchronously when they are closed.
type ICloseNotifier interface {
	// OnClose registers fn to run once when the transport closes. If the
	// transport is already closed fn runs immediately.
	OnClose(fn func())
}

// DirectoryRecord is what a peer publishes for one context label: its
// static key and the identity signature binding the key to the label.
type DirectoryRecord struct {
	StaticKey [32]byte
	Binding   crypto.Signature
}

// IDirectory resolves and publishes static keys for peers.
type IDirectory interface {
	// Lookup returns the record for peer under label, or ErrNotFound
	Lookup(ctx context.Context, peer crypto.PeerID, label string) (*DirectoryRecord, error)

	// Publish stores a record for peer under label
	Publish(ctx context.Context, peer crypto.PeerID, label string, record DirectoryRecord) error
}

// ISecureStorage persists small secret-bearing records. Implementations
// own encryption at rest; callers pass plaintext.
type ISecureStorage interface {
	// Put stores value under key, replacing any previous value
	Put(key string, value []byte) error

	// Get returns a copy of the value for key, or ErrNotFound
	Get(key string) ([]byte, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error

	// List returns the keys that start with prefix, sorted
	List(prefix string) ([]string, error)
}
