package ipc

import (
	"bufio"
	"net"
	"sync"
	"time"
)

// PushSocket is the outbound side of a push/pull pair. Sends are best
// effort with a deadline: when the puller is backed up the TCP window
// fills and Send fails fast instead of blocking the caller.
type PushSocket struct {
	endpoint string

	mu     sync.Mutex
	conn   net.Conn
	w      *bufio.Writer
	closed bool
}

// DialPush connects a push socket to endpoint.
func DialPush(endpoint string, timeout time.Duration) (*PushSocket, error) {
	conn, err := net.DialTimeout("tcp", endpoint, timeout)
	if err != nil {
		return nil, err
	}
	return &PushSocket{
		endpoint: endpoint,
		conn:     conn,
		w:        bufio.NewWriter(conn),
	}, nil
}

// Endpoint returns the address this socket is connected to.
func (s *PushSocket) Endpoint() string {
	return s.endpoint
}

// Send writes one frame with the given deadline.
func (s *PushSocket) Send(v any, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	if err := writeFrame(s.w, v); err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return ErrTimeout
		}
		return err
	}
	return s.conn.SetWriteDeadline(time.Time{})
}

// Close closes the underlying connection without flushing (linger zero).
func (s *PushSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}
