package noise

import (
	"context"
	"io"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opd-ai/paytrust/crypto"
	"github.com/opd-ai/paytrust/interfaces"
)

const testLabel = "paytrust/test/v1"

// pipeTransport adapts one end of net.Pipe to interfaces.ITransport and
// runs close hooks like the transport package's Conn.
type pipeTransport struct {
	conn   net.Conn
	mu     sync.Mutex
	hooks  []func()
	closed bool
}

func newPipe() (*pipeTransport, *pipeTransport) {
	a, b := net.Pipe()
	return &pipeTransport{conn: a}, &pipeTransport{conn: b}
}

func (p *pipeTransport) ReadFull(b []byte) error {
	_, err := io.ReadFull(p.conn, b)
	return err
}

func (p *pipeTransport) WriteAll(b []byte) error {
	_, err := p.conn.Write(b)
	return err
}

func (p *pipeTransport) OnClose(fn func()) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		fn()
		return
	}
	p.hooks = append(p.hooks, fn)
	p.mu.Unlock()
}

func (p *pipeTransport) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	hooks := p.hooks
	p.hooks = nil
	p.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
	return p.conn.Close()
}

type testPeer struct {
	static *crypto.StaticKeyMaterial
	id     *crypto.Identity
}

func newTestPeer(t *testing.T) testPeer {
	t.Helper()
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	id, err := crypto.GenerateIdentity()
	require.NoError(t, err)
	return testPeer{static: crypto.NewStaticKeyMaterial(kp, testLabel), id: id}
}

func (p testPeer) staticPub() *[32]byte {
	pub := p.static.Public()
	return &pub
}

type dirKey struct {
	peer  crypto.PeerID
	label string
}

type fakeDirectory struct {
	mu      sync.Mutex
	records map[dirKey]interfaces.DirectoryRecord
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{records: make(map[dirKey]interfaces.DirectoryRecord)}
}

func (d *fakeDirectory) Lookup(_ context.Context, peer crypto.PeerID, label string) (*interfaces.DirectoryRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.records[dirKey{peer, label}]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return &rec, nil
}

func (d *fakeDirectory) Publish(_ context.Context, peer crypto.PeerID, label string, rec interfaces.DirectoryRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.records[dirKey{peer, label}] = rec
	return nil
}

// publishBinding publishes p's static key under its identity.
func (d *fakeDirectory) publishBinding(p testPeer) {
	pub := p.static.Public()
	d.Publish(context.Background(), p.id.PeerID(), testLabel, interfaces.DirectoryRecord{
		StaticKey: pub,
		Binding:   crypto.SignBinding(p.id, pub, testLabel),
	})
}

// configsFor builds matching initiator and responder configs for pattern.
func configsFor(pattern Pattern, client, server testPeer, dir interfaces.IDirectory) (HandshakeConfig, HandshakeConfig) {
	var ic, rc HandshakeConfig
	if pattern.InitiatorStatic() {
		ic.Static = client.static
	}
	if pattern.KnownResponder() {
		ic.RemoteStatic = server.staticPub()
	}
	if pattern == PatternIK || pattern == PatternIKRaw {
		ic.Identity = client.id
		ic.Label = testLabel
	}
	if pattern.ResponderStatic() {
		rc.Static = server.static
	}
	if pattern == PatternIKRaw {
		rc.Verify = DirectoryVerifier(dir)
	}
	return ic, rc
}

func handshakePair(t *testing.T, pattern Pattern) (*Handshake, *Handshake, testPeer, testPeer) {
	t.Helper()
	client, server := newTestPeer(t), newTestPeer(t)
	dir := newFakeDirectory()
	dir.publishBinding(client)

	ic, rc := configsFor(pattern, client, server, dir)
	ih, err := NewHandshake(pattern, Initiator, ic)
	require.NoError(t, err)
	rh, err := NewHandshake(pattern, Responder, rc)
	require.NoError(t, err)
	return ih, rh, client, server
}

// exchange moves messages until both sides are established and returns
// the number of messages sent.
func exchange(t *testing.T, ih, rh *Handshake) int {
	t.Helper()
	count := 0
	for ih.State() != StateEstablished || rh.State() != StateEstablished {
		from, to := rh, ih
		if ih.State() != StateEstablished && ih.OurTurn() {
			from, to = ih, rh
		}
		msg, err := from.WriteMessage()
		require.NoError(t, err)
		require.NoError(t, to.ReadMessage(msg))
		count++
		require.LessOrEqual(t, count, 3, "handshake did not converge")
	}
	return count
}

func establishedPair(t *testing.T, pattern Pattern) (*Session, *Session) {
	t.Helper()
	ih, rh, _, _ := handshakePair(t, pattern)
	exchange(t, ih, rh)
	is, err := ih.Session()
	require.NoError(t, err)
	rs, err := rh.Session()
	require.NoError(t, err)
	return is, rs
}
