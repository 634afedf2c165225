package ipc

import (
	"bufio"
	"encoding/json"
	"net"
	"sync"
	"time"
)

// PullSocket is the inbound side of a push/pull pair. It accepts any number
// of writers and funnels their frames into one bounded queue. When the queue
// reaches the high-water mark the per-connection readers stop draining their
// sockets, so backpressure propagates to the pushers over TCP.
type PullSocket struct {
	ln   net.Listener
	msgs chan json.RawMessage
	done chan struct{}

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// ListenPull binds a pull socket on addr. hwm is the receive high-water
// mark: the number of frames buffered before pushers start blocking.
func ListenPull(addr string, hwm int) (*PullSocket, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &PullSocket{
		ln:    ln,
		msgs:  make(chan json.RawMessage, hwm),
		done:  make(chan struct{}),
		conns: make(map[net.Conn]struct{}),
	}
	go s.acceptLoop()
	return s, nil
}

// Addr returns the bound address.
func (s *PullSocket) Addr() string {
	return s.ln.Addr().String()
}

func (s *PullSocket) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()
		go s.readLoop(conn)
	}
}

func (s *PullSocket) readLoop(conn net.Conn) {
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	r := bufio.NewReaderSize(conn, 64*1024)
	for {
		frame, err := readFrame(r)
		if err != nil {
			return
		}
		select {
		case s.msgs <- frame:
		case <-s.done:
			return
		}
	}
}

// Recv waits up to timeout for the next frame. It returns ErrTimeout when
// nothing arrives in time and ErrClosed after Close.
func (s *PullSocket) Recv(timeout time.Duration) (json.RawMessage, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case frame := <-s.msgs:
		return frame, nil
	case <-timer.C:
		return nil, ErrTimeout
	case <-s.done:
		return nil, ErrClosed
	}
}

// Close shuts the listener and every accepted connection. Buffered frames
// are dropped (linger zero).
func (s *PullSocket) Close() error {
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
