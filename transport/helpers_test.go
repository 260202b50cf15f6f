package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opd-ai/paytrust/crypto"
	"github.com/opd-ai/paytrust/keycache"
	"github.com/opd-ai/paytrust/noise"
)

const testLabel = "paykit/noise/v0"

type endpoint struct {
	id     *crypto.Identity
	static *crypto.StaticKeyMaterial
}

func newEndpoint(t *testing.T) endpoint {
	t.Helper()
	id, err := crypto.GenerateIdentity()
	require.NoError(t, err)
	seed := id.Seed()
	defer crypto.ZeroBytes(seed[:])
	static, err := crypto.DeriveStatic(seed[:], testLabel)
	require.NoError(t, err)
	return endpoint{id: id, static: static}
}

func (e endpoint) client(cache *keycache.Cache) *Client {
	return &Client{
		Cache:    cache,
		Static:   e.static,
		Identity: e.id,
		Label:    testLabel,
		Timeout:  5 * time.Second,
	}
}

type dispatched struct {
	s   *noise.Session
	err error
}

// dispatchOnPipe runs d on one end of a pipe and returns the other end.
func dispatchOnPipe(t *testing.T, d *Dispatcher) (*Conn, <-chan dispatched) {
	t.Helper()
	a, b := net.Pipe()
	client, server := NewConn(a), NewConn(b)
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})

	out := make(chan dispatched, 1)
	go func() {
		s, err := d.Dispatch(context.Background(), server)
		out <- dispatched{s, err}
	}()
	return client, out
}
