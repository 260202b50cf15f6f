package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeerIDRoundTrip(t *testing.T) {
	id, err := GenerateIdentity()
	require.NoError(t, err)

	p := id.PeerID()
	assert.Len(t, string(p), PeerIDLength)
	for _, c := range string(p) {
		assert.Contains(t, z32Alphabet, string(c))
	}

	pub, err := p.PublicKey()
	require.NoError(t, err)
	assert.Equal(t, id.PublicKey(), pub)
}

func TestParsePeerIDNormalizes(t *testing.T) {
	id, err := GenerateIdentity()
	require.NoError(t, err)
	canonical := id.PeerID()

	inputs := []string{
		string(canonical),
		"pk:" + string(canonical),
		"  " + strings.ToUpper(string(canonical)) + "\n",
	}
	for _, in := range inputs {
		got, err := ParsePeerID(in)
		require.NoError(t, err, in)
		assert.Equal(t, canonical, got)
	}
}

func TestParsePeerIDRejects(t *testing.T) {
	tests := []string{
		"",
		"short",
		strings.Repeat("y", PeerIDLength-1),
		strings.Repeat("l", PeerIDLength), // 'l' is not in the alphabet
	}
	for _, in := range tests {
		_, err := ParsePeerID(in)
		assert.ErrorIs(t, err, ErrInvalidPeerID, in)
	}
}

func TestZeroKeyEncodesToAllY(t *testing.T) {
	p := NewPeerID([32]byte{})
	assert.Equal(t, strings.Repeat("y", PeerIDLength), string(p))
}

func TestScopeHash(t *testing.T) {
	p := NewPeerID([32]byte{})
	sum := sha256.Sum256([]byte(strings.Repeat("y", PeerIDLength)))

	got := ScopeHash(p)
	assert.Len(t, got, 64)
	assert.Equal(t, hex.EncodeToString(sum[:]), got)

	other := NewPeerID([32]byte{1})
	assert.NotEqual(t, got, ScopeHash(other))
}

func TestKeyID(t *testing.T) {
	var pub [32]byte
	pub[0] = 9
	sum := sha256.Sum256(pub[:])

	kid := KeyID(pub)
	assert.Len(t, kid, 16)
	assert.Equal(t, hex.EncodeToString(sum[:8]), kid)
}
