package sealed

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/opd-ai/paytrust/crypto"
	"github.com/opd-ai/paytrust/limits"
)

// Version is the only envelope version this package produces or opens.
const Version = 1

var b64 = base64.RawURLEncoding.Strict()

// Envelope is the sealed-blob wire record. Field order in the struct is the
// serialization order. KID and Purpose are hints only; the AAD passed to
// Seal and Open is the authenticated context.
type Envelope struct {
	V       int    `json:"v"`
	EPK     string `json:"epk"`
	Nonce   string `json:"nonce"`
	CT      string `json:"ct"`
	KID     string `json:"kid,omitempty"`
	Purpose string `json:"purpose,omitempty"`
}

// wireEnvelope detects missing fields, which the public struct cannot.
type wireEnvelope struct {
	V       *int    `json:"v"`
	EPK     *string `json:"epk"`
	Nonce   *string `json:"nonce"`
	CT      *string `json:"ct"`
	KID     string  `json:"kid"`
	Purpose string  `json:"purpose"`
}

// MatchesKey reports whether the key hint, if any, names pub. An envelope
// without a hint matches every key.
func (e *Envelope) MatchesKey(pub [32]byte) bool {
	return e.KID == "" || e.KID == crypto.KeyID(pub)
}

// checkEnvelopeSize applies the envelope size limit. Empty input is left
// to the parser, which reports it as malformed.
func checkEnvelopeSize(data []byte) error {
	if err := limits.ValidateEnvelope(data); errors.Is(err, limits.ErrMessageTooLarge) {
		return fmt.Errorf("%w: %w", ErrEnvelopeTooLarge, err)
	}
	return nil
}

// Encode serializes the envelope as compact JSON.
func Encode(env *Envelope) ([]byte, error) {
	if env == nil {
		return nil, ErrMalformedEnvelope
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if err := checkEnvelopeSize(data); err != nil {
		return nil, err
	}
	return data, nil
}

// Decode parses an encoded envelope. The size bound is checked before the
// input is parsed, and the version before any other field.
func Decode(data []byte) (*Envelope, error) {
	if err := checkEnvelopeSize(data); err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, fmt.Errorf("%w: not a JSON object", ErrMalformedEnvelope)
	}

	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if w.V == nil {
		return nil, fmt.Errorf("%w: missing v", ErrMalformedEnvelope)
	}
	if *w.V != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, *w.V)
	}
	if w.EPK == nil || w.Nonce == nil || w.CT == nil {
		return nil, fmt.Errorf("%w: missing required field", ErrMalformedEnvelope)
	}

	return &Envelope{
		V:       *w.V,
		EPK:     *w.EPK,
		Nonce:   *w.Nonce,
		CT:      *w.CT,
		KID:     w.KID,
		Purpose: w.Purpose,
	}, nil
}

// IsSealedBlob reports whether data looks like an envelope this package can
// open. It does no cryptographic work.
func IsSealedBlob(data []byte) bool {
	_, err := Decode(data)
	return err == nil
}

type decodedFields struct {
	epk   [32]byte
	nonce []byte
	ct    []byte
}

// decodeFields validates sizes in the order Open reports them.
func decodeFields(env *Envelope) (*decodedFields, error) {
	epk, err := b64.DecodeString(env.EPK)
	if err != nil {
		return nil, fmt.Errorf("%w: epk", ErrInvalidEncoding)
	}
	if len(epk) != crypto.KeySize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrWrongKeySize, len(epk), crypto.KeySize)
	}
	nonce, err := b64.DecodeString(env.Nonce)
	if err != nil {
		return nil, fmt.Errorf("%w: nonce", ErrInvalidEncoding)
	}
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrWrongNonceSize, len(nonce), NonceSize)
	}
	// reject oversized ct text before allocating for it
	if b64.DecodedLen(len(env.CT)) > limits.MaxSealedCiphertext {
		return nil, fmt.Errorf("%w: ciphertext exceeds %d bytes", ErrPlaintextTooLarge, limits.MaxSealedCiphertext)
	}
	ct, err := b64.DecodeString(env.CT)
	if err != nil {
		return nil, fmt.Errorf("%w: ct", ErrInvalidEncoding)
	}
	if len(ct) < limits.AEADOverhead {
		return nil, fmt.Errorf("%w: ciphertext shorter than tag", ErrMalformedEnvelope)
	}

	f := &decodedFields{nonce: nonce, ct: ct}
	copy(f.epk[:], epk)
	return f, nil
}
