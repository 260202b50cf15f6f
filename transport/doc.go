// Package transport puts the handshake engine on the network.
//
// A listener is configured with a Mode. In pattern-aware mode the
// Dispatcher reads one discriminator byte from each connection and hands
// the rest of the stream to the responder for that pattern; unknown or
// disabled bytes are answered by closing the connection. Legacy mode runs
// the IK responder directly and never reads a pattern byte.
//
// Server adds the operational limits in front of the dispatcher: a token
// bucket per source IP (golang.org/x/time/rate) and a cap on handshakes in
// flight (golang.org/x/sync/semaphore).
//
//	d := &transport.Dispatcher{Responder: noise.ResponderConfig{Static: static}}
//	srv := transport.NewServer(d, transport.WithMaxConcurrentHandshakes(256))
//	err := srv.Serve(ctx, listener, func(ctx context.Context, s *noise.Session, c *transport.Conn) {
//	    ...
//	})
//
// Client picks the pattern for an outgoing connection from its key cache:
// IK when a fresh key is known, XX otherwise, after which the learned key
// is cached and optionally cross-checked with a directory.
package transport
