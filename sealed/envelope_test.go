package sealed

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/paytrust/crypto"
	"github.com/opd-ai/paytrust/limits"
)

func TestEncodeFieldOrder(t *testing.T) {
	env := &Envelope{V: 1, EPK: "e", Nonce: "n", CT: "c", KID: "k", Purpose: "p"}
	data, err := Encode(env)
	require.NoError(t, err)
	assert.Equal(t, `{"v":1,"epk":"e","nonce":"n","ct":"c","kid":"k","purpose":"p"}`, string(data))

	data, err = Encode(&Envelope{V: 1, EPK: "e", Nonce: "n", CT: "c"})
	require.NoError(t, err)
	assert.Equal(t, `{"v":1,"epk":"e","nonce":"n","ct":"c"}`, string(data))
}

func TestEncodedFieldsAreUnpaddedBase64URL(t *testing.T) {
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	data, err := SealBytes(kp.Public, bytes.Repeat([]byte{0xff}, 100), nil)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "=")
	assert.NotContains(t, string(data), "+")
	assert.NotContains(t, string(data), "/")
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"empty", "", ErrMalformedEnvelope},
		{"not json", "hello", ErrMalformedEnvelope},
		{"array", "[1,2]", ErrMalformedEnvelope},
		{"missing v", `{"epk":"a","nonce":"b","ct":"c"}`, ErrMalformedEnvelope},
		{"v as string", `{"v":"1","epk":"a","nonce":"b","ct":"c"}`, ErrMalformedEnvelope},
		{"future version", `{"v":2}`, ErrUnsupportedVersion},
		{"missing ct", `{"v":1,"epk":"a","nonce":"b"}`, ErrMalformedEnvelope},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.input))
			assert.ErrorIs(t, err, tt.want)
			assert.False(t, IsSealedBlob([]byte(tt.input)))
		})
	}
}

func TestDecodeRejectsOversizedInputBeforeParsing(t *testing.T) {
	huge := []byte(`{"v":1,"epk":"` + strings.Repeat("A", limits.MaxEnvelope) + `"}`)
	_, err := Decode(huge)
	assert.ErrorIs(t, err, ErrEnvelopeTooLarge)

	// not even valid JSON: the size check must still win
	_, err = Decode(bytes.Repeat([]byte{'x'}, limits.MaxEnvelope+1))
	assert.ErrorIs(t, err, ErrEnvelopeTooLarge)
	assert.ErrorIs(t, err, limits.ErrMessageTooLarge)

	// exactly at the limit the parser decides
	_, err = Decode(bytes.Repeat([]byte{'x'}, limits.MaxEnvelope))
	assert.ErrorIs(t, err, ErrMalformedEnvelope)

	_, err = Decode(nil)
	assert.ErrorIs(t, err, ErrMalformedEnvelope)
}

func TestOpenBytesRoundTripAtLimit(t *testing.T) {
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	plaintext := bytes.Repeat([]byte{7}, limits.MaxPlaintext)
	data, err := SealBytes(kp.Public, plaintext, []byte("aad"), WithPurpose("request"), WithKeyHint())
	require.NoError(t, err)
	assert.LessOrEqual(t, len(data), limits.MaxEnvelope)
	assert.True(t, IsSealedBlob(data))

	got, err := OpenBytes(kp.Private, data, []byte("aad"))
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestDecodeIgnoresUnknownFields(t *testing.T) {
	env, err := Decode([]byte(`{"v":1,"epk":"a","nonce":"b","ct":"c","extra":true}`))
	require.NoError(t, err)
	assert.Equal(t, "c", env.CT)
}

func FuzzDecode(f *testing.F) {
	f.Add([]byte(`{"v":1,"epk":"a","nonce":"b","ct":"c"}`))
	f.Add([]byte(`{"v":2}`))
	f.Add([]byte(`{}`))

	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		f.Fatal(err)
	}

	f.Fuzz(func(t *testing.T, data []byte) {
		env, err := Decode(data)
		if err != nil {
			return
		}
		// must never panic, and never succeed on garbage
		if _, err := Open(kp.Private, env, nil); err == nil {
			t.Fatalf("opened fuzzed envelope %q", data)
		}
	})
}
