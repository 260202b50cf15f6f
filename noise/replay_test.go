package noise

import (
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/paytrust/crypto"
	"github.com/opd-ai/paytrust/failure"
)

func randomMessage(t *testing.T) []byte {
	t.Helper()
	msg := make([]byte, 48)
	_, err := rand.Read(msg)
	require.NoError(t, err)
	return msg
}

func TestReplayGuardRejectsRepeat(t *testing.T) {
	g, err := NewReplayGuard("", time.Minute)
	require.NoError(t, err)
	defer g.Close()

	msg := randomMessage(t)
	require.NoError(t, g.Check(msg))

	err = g.Check(msg)
	assert.ErrorIs(t, err, ErrReplay)
	assert.ErrorIs(t, err, failure.ErrProtocol)

	// only the ephemeral prefix counts
	altered := append([]byte(nil), msg...)
	altered[40] ^= 0xff
	assert.ErrorIs(t, g.Check(altered), ErrReplay)

	assert.NoError(t, g.Check(randomMessage(t)))
	assert.Equal(t, 2, g.Size())

	assert.ErrorIs(t, g.Check(make([]byte, 31)), ErrMalformedFrame)
}

func TestReplayGuardWindow(t *testing.T) {
	clock := crypto.NewManualTimeProvider(time.Unix(1_700_000_000, 0))
	g, err := NewReplayGuard("", time.Minute, WithReplayClock(clock))
	require.NoError(t, err)
	defer g.Close()

	msg := randomMessage(t)
	require.NoError(t, g.Check(msg))

	clock.Advance(30 * time.Second)
	assert.ErrorIs(t, g.Check(msg), ErrReplay)

	clock.Advance(2 * time.Minute)
	g.Cleanup()
	assert.Equal(t, 0, g.Size())
	assert.NoError(t, g.Check(msg))
}

func TestReplayGuardPersistence(t *testing.T) {
	dir := t.TempDir()
	clock := crypto.NewManualTimeProvider(time.Unix(1_700_000_000, 0))

	g, err := NewReplayGuard(dir, time.Minute, WithReplayClock(clock))
	require.NoError(t, err)
	fresh, stale := randomMessage(t), randomMessage(t)
	require.NoError(t, g.Check(stale))
	clock.Advance(45 * time.Second)
	require.NoError(t, g.Check(fresh))
	require.NoError(t, g.Close())
	require.NoError(t, g.Close())

	clock.Advance(30 * time.Second)
	g2, err := NewReplayGuard(dir, time.Minute, WithReplayClock(clock))
	require.NoError(t, err)
	defer g2.Close()

	assert.Equal(t, 1, g2.Size(), "expired entries are pruned on load")
	assert.ErrorIs(t, g2.Check(fresh), ErrReplay)
	assert.NoError(t, g2.Check(stale))
}
