package ipc

import (
	"bufio"
	"encoding/json"
	"net"
	"sync"
	"time"
)

// ReqSocket is the client half of a request/reply pair. Requests are
// strictly lockstep: one outstanding request per socket at a time, which
// the pool's single-owner rule already guarantees.
type ReqSocket struct {
	endpoint string

	mu     sync.Mutex
	conn   net.Conn
	r      *bufio.Reader
	w      *bufio.Writer
	closed bool
}

// DialReq connects a request socket to endpoint.
func DialReq(endpoint string, timeout time.Duration) (*ReqSocket, error) {
	conn, err := net.DialTimeout("tcp", endpoint, timeout)
	if err != nil {
		return nil, err
	}
	return &ReqSocket{
		endpoint: endpoint,
		conn:     conn,
		r:        bufio.NewReaderSize(conn, 64*1024),
		w:        bufio.NewWriter(conn),
	}, nil
}

// Endpoint returns the address this socket is connected to.
func (s *ReqSocket) Endpoint() string {
	return s.endpoint
}

// Do sends one request frame and decodes the reply into out. The timeout
// covers the whole round trip.
func (s *ReqSocket) Do(req any, out any, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	deadline := time.Now().Add(timeout)
	if err := s.conn.SetDeadline(deadline); err != nil {
		return err
	}
	if err := writeFrame(s.w, req); err != nil {
		return timeoutOr(err)
	}
	frame, err := readFrame(s.r)
	if err != nil {
		return timeoutOr(err)
	}
	if err := s.conn.SetDeadline(time.Time{}); err != nil {
		return err
	}
	return json.Unmarshal(frame, out)
}

// Close closes the underlying connection (linger zero).
func (s *ReqSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}

func timeoutOr(err error) error {
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return ErrTimeout
	}
	return err
}

// Request is one inbound request on a RepSocket, paired with the writer
// that must receive exactly one reply.
type Request struct {
	Frame json.RawMessage

	conn net.Conn
	w    *bufio.Writer
	done chan struct{}
}

// Reply sends the reply frame for this request. It must be called exactly
// once; the originating connection reads no further requests until then.
func (r *Request) Reply(v any) error {
	defer close(r.done)
	r.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	err := writeFrame(r.w, v)
	r.conn.SetWriteDeadline(time.Time{})
	return err
}

// RepSocket is the server half of a request/reply pair. Each connection is
// lockstep (request, reply, request, ...); requests from all connections
// are serialized into one queue so the consumer loop sees a single stream.
type RepSocket struct {
	ln   net.Listener
	reqs chan *Request
	done chan struct{}

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// ListenRep binds a reply socket on addr. hwm bounds queued requests.
func ListenRep(addr string, hwm int) (*RepSocket, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &RepSocket{
		ln:    ln,
		reqs:  make(chan *Request, hwm),
		done:  make(chan struct{}),
		conns: make(map[net.Conn]struct{}),
	}
	go s.acceptLoop()
	return s, nil
}

// Addr returns the bound address.
func (s *RepSocket) Addr() string {
	return s.ln.Addr().String()
}

func (s *RepSocket) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()
		go s.serveConn(conn)
	}
}

func (s *RepSocket) serveConn(conn net.Conn) {
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	r := bufio.NewReaderSize(conn, 64*1024)
	w := bufio.NewWriter(conn)
	for {
		frame, err := readFrame(r)
		if err != nil {
			return
		}
		req := &Request{Frame: frame, conn: conn, w: w, done: make(chan struct{})}
		select {
		case s.reqs <- req:
		case <-s.done:
			return
		}
		// Lockstep: wait for the reply before reading the next request.
		select {
		case <-req.done:
		case <-s.done:
			return
		}
	}
}

// Recv waits up to timeout for the next request.
func (s *RepSocket) Recv(timeout time.Duration) (*Request, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case req := <-s.reqs:
		return req, nil
	case <-timer.C:
		return nil, ErrTimeout
	case <-s.done:
		return nil, ErrClosed
	}
}

// Close shuts the listener and every connection (linger zero).
func (s *RepSocket) Close() error {
	select {
	case <-s.done:
		return nil
	default:
	}
	close(s.done)
	err := s.ln.Close()
	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
	return err
}
