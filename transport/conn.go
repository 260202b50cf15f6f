package transport

import (
	"io"
	"net"
	"sync"
	"time"
)

// Conn adapts a net.Conn to interfaces.ITransport. Hooks registered with
// OnClose run synchronously, once, on the first Close.
type Conn struct {
	conn         net.Conn
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
	hooks  []func()
}

// NewConn wraps c.
func NewConn(c net.Conn) *Conn {
	return &Conn{conn: c, writeTimeout: 5 * time.Second}
}

// ReadFull reads exactly len(p) bytes.
func (c *Conn) ReadFull(p []byte) error {
	_, err := io.ReadFull(c.conn, p)
	return err
}

// WriteAll writes all of p. Each write has a deadline so a peer that
// stops reading cannot stall us forever.
func (c *Conn) WriteAll(p []byte) error {
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	for len(p) > 0 {
		n, err := c.conn.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

// OnClose registers fn to run when the connection closes. If it is
// already closed fn runs immediately.
func (c *Conn) OnClose(fn func()) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		fn()
		return
	}
	c.hooks = append(c.hooks, fn)
	c.mu.Unlock()
}

// Close runs the close hooks and closes the connection. Safe to call more
// than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	hooks := c.hooks
	c.hooks = nil
	c.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
	return c.conn.Close()
}

// RemoteAddr returns the peer's network address.
func (c *Conn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// LocalAddr returns our network address.
func (c *Conn) LocalAddr() net.Addr { return c.conn.LocalAddr() }
