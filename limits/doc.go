// Package limits provides centralized size constants and validation functions
// for handshake frames and sealed blobs.
//
// # Size Hierarchy
//
//   - MaxPlaintext (64 KiB): the largest payload a sealed blob may carry.
//     Zero-length payloads are valid.
//
//   - MaxSealedCiphertext (64 KiB + 16): plaintext plus the Poly1305 tag.
//
//   - MaxEnvelope (100 KiB): the largest encoded envelope the decoder will
//     parse. Checked before any JSON or base64 work.
//
//   - MaxHandshakeMessage (65535 bytes): the Noise protocol message limit,
//     enforced on every length prefix before the body is allocated.
//
// # Validation Functions
//
//	err := limits.ValidateEnvelope(data)
//	if err != nil {
//	    // ErrMessageEmpty or ErrMessageTooLarge
//	}
//
// Both errors belong to the protocol kind of package failure, so callers can
// reject the input at the boundary without treating it as a crypto failure.
package limits
