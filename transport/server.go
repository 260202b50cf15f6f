package transport

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/opd-ai/paytrust/noise"
)

// Handler serves one established session. The session and connection are
// closed when it returns.
type Handler func(ctx context.Context, s *noise.Session, c *Conn)

// Server accepts connections and runs a handshake on each in its own
// goroutine.
type Server struct {
	dispatcher *Dispatcher
	limiter    *RateLimiter
	sem        *semaphore.Weighted
	wg         sync.WaitGroup
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithRateLimiter limits handshake attempts per source IP.
func WithRateLimiter(r *RateLimiter) ServerOption {
	return func(s *Server) { s.limiter = r }
}

// WithMaxConcurrentHandshakes caps handshakes in flight across all peers.
// Connections over the cap are closed immediately.
func WithMaxConcurrentHandshakes(n int64) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.sem = semaphore.NewWeighted(n)
		}
	}
}

// NewServer creates a server that hands connections to d.
func NewServer(d *Dispatcher, opts ...ServerOption) *Server {
	s := &Server{dispatcher: d}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve accepts connections on l until ctx is done or l is closed, then
// waits for running handlers to return.
func (s *Server) Serve(ctx context.Context, l net.Listener, h Handler) error {
	stop := context.AfterFunc(ctx, func() { l.Close() })
	defer stop()
	defer s.wg.Wait()

	for {
		c, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			logrus.WithFields(logrus.Fields{
				"function": "Serve",
				"error":    err.Error(),
			}).Warn("Accept failed")
			continue
		}

		if s.limiter != nil && !s.limiter.Allow(remoteIP(c.RemoteAddr())) {
			s.dispatcher.Metrics.Reject(RejectRateLimited)
			c.Close()
			continue
		}
		if s.sem != nil && !s.sem.TryAcquire(1) {
			s.dispatcher.Metrics.Reject(RejectTooMany)
			c.Close()
			continue
		}

		s.wg.Add(1)
		go s.handle(ctx, NewConn(c), h)
	}
}

func (s *Server) handle(ctx context.Context, c *Conn, h Handler) {
	defer s.wg.Done()
	defer c.Close()

	sess, err := s.dispatcher.Dispatch(ctx, c)
	if s.sem != nil {
		s.sem.Release(1)
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handle",
			"remote":   c.RemoteAddr().String(),
			"error":    err.Error(),
		}).Debug("Handshake failed")
		return
	}
	defer sess.Close()

	h(ctx, sess, c)
}

func remoteIP(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
