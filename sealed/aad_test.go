package sealed

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/paytrust/crypto"
)

const testPeer = crypto.PeerID("ybndrfg8ejkmcpqxot1uwisza345h769ybndrfg8ejkmcpqxot1u")

func TestBuildAAD(t *testing.T) {
	got := BuildAAD(PurposeRequest, testPeer, "/some/path")
	assert.Equal(t, "request:"+string(testPeer)+":/some/path", string(got))
}

func TestPaymentRequestPath(t *testing.T) {
	path, err := PaymentRequestPath(testPeer, "req-123")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(path, "/pub/paykit.app/v0/requests/"))
	assert.True(t, strings.HasSuffix(path, "/req-123"))

	parts := strings.Split(path, "/")
	require.Len(t, parts, 7)
	assert.Len(t, parts[5], 64)
	assert.Equal(t, crypto.ScopeHash(testPeer), parts[5])
	assert.True(t, strings.HasPrefix(path, PaymentRequestsDir(testPeer)))
}

func TestSubscriptionProposalPath(t *testing.T) {
	path, err := SubscriptionProposalPath(testPeer, "prop-456")
	require.NoError(t, err)

	parts := strings.Split(path, "/")
	require.Len(t, parts, 8)
	assert.Equal(t, "subscriptions", parts[4])
	assert.Equal(t, "proposals", parts[5])
	assert.Len(t, parts[6], 64)
}

func TestSecureHandoffPath(t *testing.T) {
	path, err := SecureHandoffPath("handoff-789")
	require.NoError(t, err)
	assert.Equal(t, "/pub/paykit.app/v0/handoff/handoff-789", path)
	assert.Equal(t, "/pub/paykit.app/v0/noise", NoiseEndpointPath())
}

func TestPathIDValidation(t *testing.T) {
	for _, id := range []string{"", "a/b", `a\b`, "..", "x..y"} {
		_, err := PaymentRequestPath(testPeer, id)
		assert.ErrorIs(t, err, ErrInvalidPath, id)
		_, err = SecureHandoffAAD(testPeer, id)
		assert.ErrorIs(t, err, ErrInvalidPath, id)
	}
}

func TestAADDiffersByContext(t *testing.T) {
	other := crypto.PeerID("8pinxxgqs41n4aididenw5apqp1urfmzdztr8jt4abrkdn435ewo")

	a, err := PaymentRequestAAD(testPeer, other, "req-1")
	require.NoError(t, err)
	b, err := PaymentRequestAAD(testPeer, other, "req-2")
	require.NoError(t, err)
	c, err := PaymentRequestAAD(other, testPeer, "req-1")
	require.NoError(t, err)
	d, err := SubscriptionProposalAAD(testPeer, other, "req-1")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)

	again, err := PaymentRequestAAD(testPeer, other, "req-1")
	require.NoError(t, err)
	assert.Equal(t, a, again)
}

func TestRelocatedBlobDoesNotOpen(t *testing.T) {
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	recipient := crypto.NewPeerID(kp.Public)

	aad, err := PaymentRequestAAD(testPeer, recipient, "req-1")
	require.NoError(t, err)
	data, err := SealBytes(kp.Public, []byte("pay 10 sats"), aad, WithPurpose(string(PurposeRequest)))
	require.NoError(t, err)

	moved, err := PaymentRequestAAD(testPeer, recipient, "req-2")
	require.NoError(t, err)
	_, err = OpenBytes(kp.Private, data, moved)
	assert.ErrorIs(t, err, ErrAuthentication)

	got, err := OpenBytes(kp.Private, data, aad)
	require.NoError(t, err)
	assert.Equal(t, "pay 10 sats", string(got))
}
