// Package noise runs the handshakes that open a secure channel between two
// payment peers, and the sessions they produce.
//
// Five patterns are supported, each identified on the wire by one byte:
//
//	Byte │ Pattern │ Trust model             │ Client proof              │ Server proof
//	─────┼─────────┼─────────────────────────┼───────────────────────────┼──────────────
//	0x00 │ IK      │ full-authenticated      │ identity signature        │ known static
//	0x01 │ IK-raw  │ cold-key-authenticated  │ directory binding         │ known static
//	0x02 │ NK      │ anonymous-client        │ none                      │ known static
//	0x03 │ NN      │ fully-ephemeral         │ attestation after         │ attestation after
//	0x04 │ XX      │ trust-on-first-use      │ static learned in-band    │ static learned in-band
//
// All patterns use Noise_*_25519_ChaChaPoly_SHA256 from flynn/noise. The
// prologue is "paytrust-noise-v1" followed by the pattern byte, so both
// sides must agree on the pattern for the handshake to complete.
//
// # Sans-IO core
//
// Handshake is a state machine with no I/O:
//
//	h, err := noise.NewHandshake(noise.PatternXX, noise.Initiator, noise.HandshakeConfig{
//	    Static: static,
//	})
//	msg, err := h.WriteMessage()
//	// send msg, receive reply
//	err = h.ReadMessage(reply)
//	...
//	session, err := h.Session()
//
// Processing a message out of turn fails the handshake. Every cryptographic
// or verification failure is reported as ErrHandshakeFailed and nothing
// more specific.
//
// # Driving a connection
//
// Initiate and Respond run a handshake over an interfaces.ITransport using
// 4-byte length-prefixed frames, enforce a deadline (ErrHandshakeTimeout)
// and abort the handshake if the transport is closed underneath them.
//
// A fully-ephemeral session authenticates nobody. Use ExchangeAttestation
// before trusting its peer.
package noise
