// Package sealed encrypts bounded payloads for a single recipient so they
// can be stored in public locations.
//
// A blob is sealed with an ephemeral X25519 key, HKDF-SHA256 and
// ChaCha20-Poly1305, and serialized as a small JSON envelope:
//
//	{"v":1,"epk":"...","nonce":"...","ct":"...","kid":"...","purpose":"request"}
//
// Binary fields are unpadded base64url. The caller supplies AAD of the form
// "<purpose>:<owner>:<path>" (see BuildAAD), rebuilt from the storage
// location when the blob is opened:
//
//	aad, _ := sealed.PaymentRequestAAD(sender, recipient, "req-1")
//	data, err := sealed.SealBytes(recipientPub, payload, aad, sealed.WithPurpose("request"))
//	...
//	payload, err := sealed.OpenBytes(recipientSecret, data, aad)
//
// Plaintexts are capped at 64 KiB and encoded envelopes at 100 KiB; both
// bounds are enforced before any cryptographic work. Size, version and
// encoding problems are reported with specific errors; every decryption
// failure is ErrAuthentication.
//
// All functions are stateless and safe for concurrent use.
package sealed
