package noise

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/paytrust/crypto"
	"github.com/opd-ai/paytrust/failure"
	"github.com/opd-ai/paytrust/limits"
)

func (s *Session) setNonces(send, recv uint64) {
	s.sendMu.Lock()
	s.sendNonce = send
	s.sendMu.Unlock()
	s.recvMu.Lock()
	s.recvNonce = recv
	s.recvMu.Unlock()
}

func TestSessionNoncesAdvance(t *testing.T) {
	is, rs := establishedPair(t, PatternXX)

	for i := 0; i < 5; i++ {
		ct, err := is.Encrypt([]byte{byte(i)}, nil)
		require.NoError(t, err)
		pt, err := rs.Decrypt(ct, nil)
		require.NoError(t, err)
		assert.Equal(t, []byte{byte(i)}, pt)
	}
	assert.Equal(t, uint64(5), is.SendNonce())
	assert.Equal(t, uint64(5), rs.RecvNonce())
	assert.Equal(t, uint64(0), is.RecvNonce())
}

func TestSessionEmptyPlaintext(t *testing.T) {
	is, rs := establishedPair(t, PatternNN)
	ct, err := is.Encrypt(nil, nil)
	require.NoError(t, err)
	assert.Len(t, ct, limits.AEADOverhead)
	pt, err := rs.Decrypt(ct, nil)
	require.NoError(t, err)
	assert.Empty(t, pt)
}

func TestSessionDecryptFailureKeepsNonce(t *testing.T) {
	is, rs := establishedPair(t, PatternNK)

	ct, err := is.Encrypt([]byte("payment request"), []byte("ad"))
	require.NoError(t, err)

	tampered := append([]byte(nil), ct...)
	tampered[0] ^= 0xff
	_, err = rs.Decrypt(tampered, []byte("ad"))
	assert.ErrorIs(t, err, ErrDecryptFailed)
	assert.ErrorIs(t, err, failure.ErrAuthentication)

	_, err = rs.Decrypt(ct, []byte("other ad"))
	assert.ErrorIs(t, err, ErrDecryptFailed)

	_, err = rs.Decrypt(ct[:10], []byte("ad"))
	assert.ErrorIs(t, err, ErrDecryptFailed)
	assert.Equal(t, uint64(0), rs.RecvNonce())

	pt, err := rs.Decrypt(ct, []byte("ad"))
	require.NoError(t, err)
	assert.Equal(t, "payment request", string(pt))
	assert.Equal(t, uint64(1), rs.RecvNonce())
}

func TestSessionRejectsReorderedMessages(t *testing.T) {
	is, rs := establishedPair(t, PatternIK)

	first, err := is.Encrypt([]byte("one"), nil)
	require.NoError(t, err)
	second, err := is.Encrypt([]byte("two"), nil)
	require.NoError(t, err)

	_, err = rs.Decrypt(second, nil)
	assert.ErrorIs(t, err, ErrDecryptFailed)

	_, err = rs.Decrypt(first, nil)
	require.NoError(t, err)
	_, err = rs.Decrypt(first, nil)
	assert.ErrorIs(t, err, ErrDecryptFailed, "replayed message must not decrypt")
}

func TestSessionNonceExhaustion(t *testing.T) {
	is, rs := establishedPair(t, PatternNN)

	is.setNonces(math.MaxUint64-1, 0)
	rs.setNonces(0, math.MaxUint64-1)

	ct, err := is.Encrypt([]byte("last"), nil)
	require.NoError(t, err)
	_, err = rs.Decrypt(ct, nil)
	require.NoError(t, err)

	_, err = is.Encrypt([]byte("one too many"), nil)
	assert.ErrorIs(t, err, ErrNonceExhausted)
	_, err = rs.Decrypt(ct, nil)
	assert.ErrorIs(t, err, ErrNonceExhausted)

	// still exhausted
	_, err = is.Encrypt(nil, nil)
	assert.ErrorIs(t, err, ErrNonceExhausted)
}

func TestSessionSizeLimit(t *testing.T) {
	is, _ := establishedPair(t, PatternNN)
	_, err := is.Encrypt(make([]byte, MaxSessionPlaintext), nil)
	assert.NoError(t, err)
	_, err = is.Encrypt(make([]byte, MaxSessionPlaintext+1), nil)
	assert.ErrorIs(t, err, limits.ErrMessageTooLarge)
}

func TestSessionClose(t *testing.T) {
	is, _ := establishedPair(t, PatternXX)
	require.NoError(t, is.Close())
	require.NoError(t, is.Close())
	assert.True(t, is.Closed())
	assert.Equal(t, [32]byte{}, is.sendKey)
	assert.Equal(t, [32]byte{}, is.recvKey)

	_, err := is.Encrypt([]byte("x"), nil)
	assert.ErrorIs(t, err, ErrSessionClosed)
	_, err = is.Decrypt(make([]byte, 32), nil)
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestSessionConcurrentDirections(t *testing.T) {
	is, rs := establishedPair(t, PatternXX)

	const n = 100
	var wg sync.WaitGroup
	wg.Add(2)
	toResp := make(chan []byte, n)
	toInit := make(chan []byte, n)

	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			ct, err := is.Encrypt([]byte("ping"), nil)
			if !assert.NoError(t, err) {
				return
			}
			toResp <- ct
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			ct, err := rs.Encrypt([]byte("pong"), nil)
			if !assert.NoError(t, err) {
				return
			}
			toInit <- ct
		}
	}()
	wg.Wait()
	close(toResp)
	close(toInit)

	for ct := range toResp {
		_, err := rs.Decrypt(ct, nil)
		require.NoError(t, err)
	}
	for ct := range toInit {
		_, err := is.Decrypt(ct, nil)
		require.NoError(t, err)
	}
}

func TestSessionCloseDuringEncrypt(t *testing.T) {
	is, _ := establishedPair(t, PatternXX)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			_, err := is.Encrypt([]byte("ping"), nil)
			if err != nil {
				assert.ErrorIs(t, err, ErrSessionClosed)
				return
			}
		}
	}()
	require.NoError(t, is.Close())
	wg.Wait()
	assert.Equal(t, [32]byte{}, is.sendKey)
}

func TestSessionAuthenticated(t *testing.T) {
	is, rs := establishedPair(t, PatternNK)
	assert.True(t, is.Authenticated())
	assert.False(t, rs.Authenticated())

	is, rs = establishedPair(t, PatternXX)
	assert.False(t, is.Authenticated())
	assert.False(t, rs.Authenticated())
	assert.Equal(t, "learned", rs.RemoteStaticSource.String())
}

func TestSessionEstablishedUsesClock(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clientClock := crypto.NewManualTimeProvider(start)
	serverClock := crypto.NewManualTimeProvider(start.Add(time.Hour))

	client, server := newTestPeer(t), newTestPeer(t)
	ic, rc := configsFor(PatternNK, client, server, nil)
	ic.Clock, rc.Clock = clientClock, serverClock

	ih, err := NewHandshake(PatternNK, Initiator, ic)
	require.NoError(t, err)
	rh, err := NewHandshake(PatternNK, Responder, rc)
	require.NoError(t, err)

	clientClock.Advance(5 * time.Second)
	exchange(t, ih, rh)

	is, err := ih.Session()
	require.NoError(t, err)
	rs, err := rh.Session()
	require.NoError(t, err)
	assert.Equal(t, start.Add(5*time.Second), is.Established)
	assert.Equal(t, start.Add(time.Hour), rs.Established)
}
