package sealed

import "github.com/opd-ai/paytrust/failure"

// Errors surfaced by Seal, Open and Decode. Everything except
// ErrAuthentication is structural and safe to report in detail.
var (
	ErrUnsupportedVersion = failure.New(failure.ErrProtocol, "unsupported envelope version")
	ErrMalformedEnvelope  = failure.New(failure.ErrProtocol, "malformed envelope")
	ErrInvalidEncoding    = failure.New(failure.ErrProtocol, "invalid field encoding")
	ErrWrongKeySize       = failure.New(failure.ErrProtocol, "wrong ephemeral key size")
	ErrWrongNonceSize     = failure.New(failure.ErrProtocol, "wrong nonce size")
	ErrPlaintextTooLarge  = failure.New(failure.ErrProtocol, "plaintext too large")
	ErrEnvelopeTooLarge   = failure.New(failure.ErrProtocol, "envelope too large")
	ErrInvalidPath        = failure.New(failure.ErrProtocol, "invalid storage path component")

	// ErrAuthentication is the single error for every decryption failure:
	// wrong key, wrong AAD, tampered ciphertext, weak ephemeral key.
	ErrAuthentication = failure.New(failure.ErrAuthentication, "envelope authentication failed")
)
