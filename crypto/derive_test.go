package crypto

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/paytrust/failure"
)

func testRoot() []byte {
	return bytes.Repeat([]byte{0x42}, 32)
}

func TestDeriveStaticDeterministic(t *testing.T) {
	root := testRoot()

	a1, err := DeriveStatic(root, "device-A")
	require.NoError(t, err)
	a2, err := DeriveStatic(root, "device-A")
	require.NoError(t, err)
	b, err := DeriveStatic(root, "device-B")
	require.NoError(t, err)

	assert.Equal(t, a1.Public(), a2.Public())
	assert.NotEqual(t, a1.Public(), b.Public())

	s1, err := a1.Secret()
	require.NoError(t, err)
	s2, err := a2.Secret()
	require.NoError(t, err)
	assert.Equal(t, s1, s2)

	pub, err := PublicFromSecret(s1)
	require.NoError(t, err)
	assert.Equal(t, a1.Public(), pub)
	assert.Equal(t, "device-A", a1.Label())
}

func TestDeriveStaticDifferentRoots(t *testing.T) {
	other := bytes.Repeat([]byte{0x43}, 32)

	a, err := DeriveStatic(testRoot(), "device-A")
	require.NoError(t, err)
	b, err := DeriveStatic(other, "device-A")
	require.NoError(t, err)
	assert.NotEqual(t, a.Public(), b.Public())
}

func TestDeriveStaticInputValidation(t *testing.T) {
	_, err := DeriveStatic(make([]byte, 31), "device-A")
	assert.ErrorIs(t, err, ErrRootSecretTooShort)
	assert.True(t, errors.Is(err, failure.ErrProtocol))

	_, err = DeriveStatic(testRoot(), "")
	assert.ErrorIs(t, err, ErrEmptyLabel)
}

func TestStaticKeyMaterialDestroy(t *testing.T) {
	m, err := DeriveStatic(testRoot(), "device-A")
	require.NoError(t, err)

	m.Destroy()
	m.Destroy()
	assert.True(t, m.Destroyed())
	assert.True(t, IsZero(m.private[:]))

	_, err = m.Secret()
	assert.ErrorIs(t, err, ErrMaterialDestroyed)
}

func TestBindingRoundTrip(t *testing.T) {
	id, err := GenerateIdentity()
	require.NoError(t, err)
	m, err := DeriveStatic(testRoot(), "device-A")
	require.NoError(t, err)

	sig := SignBinding(id, m.Public(), m.Label())
	require.NoError(t, VerifyBinding(id.PublicKey(), m.Public(), "device-A", sig))

	// wrong label
	assert.ErrorIs(t, VerifyBinding(id.PublicKey(), m.Public(), "device-B", sig), ErrInvalidBinding)

	// wrong key
	other, err := DeriveStatic(testRoot(), "device-B")
	require.NoError(t, err)
	assert.ErrorIs(t, VerifyBinding(id.PublicKey(), other.Public(), "device-A", sig), ErrInvalidBinding)

	// wrong identity
	stranger, err := GenerateIdentity()
	require.NoError(t, err)
	err = VerifyBinding(stranger.PublicKey(), m.Public(), "device-A", sig)
	assert.True(t, errors.Is(err, failure.ErrAuthentication))
}
