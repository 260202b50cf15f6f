// Package interfaces defines the collaborators the secure channel core
// consumes but does not implement: the byte-stream transport, the
// directory of published static keys, and secure storage.
//
// # Core Interfaces
//
// [ITransport] is an ordered, reliable stream with read-exact and
// write-all semantics. The transport package adapts net.Conn to it:
//
//	conn := transport.NewConn(netConn)
//	session, err := noise.Initiate(ctx, conn, cfg)
//
// Transports that also implement [ICloseNotifier] let the handshake engine
// abort and wipe in-flight state synchronously when the stream is closed.
//
// [IDirectory] returns a peer's published static key together with the
// identity signature that binds it to a context label. The core verifies the
// binding itself and never trusts the directory blindly:
//
//	rec, err := dir.Lookup(ctx, peer, "device-A")
//	if errors.Is(err, interfaces.ErrNotFound) {
//	    // fall back to trust-on-first-use
//	}
//
// [ISecureStorage] persists key cache entries and other records. The core
// defines only what is stored; the storage package provides an in-memory
// store and an encrypted file store.
package interfaces
