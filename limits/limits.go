package limits

import (
	"fmt"

	"github.com/opd-ai/paytrust/failure"
)

const (
	// MaxPlaintext is the largest payload a sealed blob may carry (64 KiB).
	MaxPlaintext = 64 * 1024

	// MaxEnvelope is the largest encoded envelope accepted by the decoder (100 KiB).
	MaxEnvelope = 100 * 1024

	// MaxHandshakeMessage is the Noise protocol maximum message length.
	MaxHandshakeMessage = 65535

	// AEADOverhead is the Poly1305 tag appended by ChaCha20-Poly1305.
	AEADOverhead = 16

	// MaxSealedCiphertext is MaxPlaintext plus the tag.
	MaxSealedCiphertext = MaxPlaintext + AEADOverhead
)

var (
	// ErrMessageEmpty indicates an empty message was provided where one is required
	ErrMessageEmpty = failure.New(failure.ErrProtocol, "empty message")

	// ErrMessageTooLarge indicates message exceeds maximum size
	ErrMessageTooLarge = failure.New(failure.ErrProtocol, "message too large")
)

// ValidateMessageSize validates a message against the specified maximum size.
// Returns an error with context including the actual and maximum sizes.
func ValidateMessageSize(message []byte, maxSize int) error {
	if len(message) == 0 {
		return ErrMessageEmpty
	}
	return ValidateUpTo(len(message), maxSize)
}

// ValidateUpTo checks a length that may legitimately be zero.
func ValidateUpTo(size, maxSize int) error {
	if size > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrMessageTooLarge, size, maxSize)
	}
	return nil
}

// ValidateHandshakeMessage validates a single Noise handshake message.
func ValidateHandshakeMessage(message []byte) error {
	return ValidateMessageSize(message, MaxHandshakeMessage)
}

// ValidatePlaintext validates a sealed-blob plaintext. Empty plaintexts are allowed.
func ValidatePlaintext(plaintext []byte) error {
	if len(plaintext) > MaxPlaintext {
		return fmt.Errorf("%w: plaintext size %d exceeds limit %d", ErrMessageTooLarge, len(plaintext), MaxPlaintext)
	}
	return nil
}

// ValidateEnvelope validates the encoded size of a sealed-blob envelope.
func ValidateEnvelope(encoded []byte) error {
	if len(encoded) == 0 {
		return ErrMessageEmpty
	}
	if len(encoded) > MaxEnvelope {
		return fmt.Errorf("%w: envelope size %d exceeds limit %d", ErrMessageTooLarge, len(encoded), MaxEnvelope)
	}
	return nil
}
