// Package keycache is the trust store that maps peer identities to the
// static keys previously observed for them.
//
// Each entry records how the key was obtained (trust-on-first-use,
// directory, manual), when it was first seen, last used and last
// validated, and whether it has been verified. The cache exposes
// primitives; policy belongs to the caller:
//
//	cache := keycache.New(keycache.WithMaxAge(24 * time.Hour))
//	defer cache.Close()
//
//	if key, fresh, ok := cache.Known(peer); ok && fresh {
//	    // two-message authenticated handshake with key
//	} else {
//	    // trust-on-first-use, then:
//	    cache.Upsert(peer, learned, keycache.ProvenanceTOFU)
//	    if _, err := cache.Reconcile(peer, directoryKey); err != nil {
//	        var te *keycache.TrustError
//	        if errors.As(err, &te) {
//	            // rotation or attack: decide explicitly, e.g. cache.Rotate
//	        }
//	    }
//	}
//
// A verified key is never replaced by Upsert; Rotate is the only way to
// accept a different key for a verified peer.
package keycache
