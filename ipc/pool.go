package ipc

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrPoolExhausted is returned when no socket becomes available within the
// pool's connection timeout.
var ErrPoolExhausted = errors.New("ipc: connection pool exhausted")

// Conn is a pooled socket handle. PushSocket and ReqSocket both qualify.
type Conn interface {
	Endpoint() string
	Close() error
}

// DialFunc creates a new socket connected to endpoint.
type DialFunc func(endpoint string) (Conn, error)

// PoolConfig bounds a Pool.
type PoolConfig struct {
	// MaxPoolSize is the total number of sockets (idle + in-use) the pool
	// may hold.
	MaxPoolSize int
	// MaxConcurrentUsers gates how many sockets may be checked out at once.
	MaxConcurrentUsers int
	// ConnectionTimeout is how long Get waits before failing with
	// ErrPoolExhausted.
	ConnectionTimeout time.Duration
}

// Pool hands out connected sockets and takes them back. Without it every
// poll cycle would open a fresh socket and the process runs out of file
// descriptors once the source count grows.
type Pool struct {
	dial DialFunc
	cfg  PoolConfig

	users chan struct{}

	mu    sync.Mutex
	idle  []Conn
	inUse int
}

// NewPool creates a pool that dials sockets on demand.
func NewPool(dial DialFunc, cfg PoolConfig) *Pool {
	if cfg.MaxPoolSize <= 0 {
		cfg.MaxPoolSize = 50
	}
	if cfg.MaxConcurrentUsers <= 0 || cfg.MaxConcurrentUsers > cfg.MaxPoolSize {
		cfg.MaxConcurrentUsers = cfg.MaxPoolSize
	}
	if cfg.ConnectionTimeout <= 0 {
		cfg.ConnectionTimeout = 10 * time.Second
	}
	return &Pool{
		dial:  dial,
		cfg:   cfg,
		users: make(chan struct{}, cfg.MaxConcurrentUsers),
	}
}

// Get returns a socket connected to endpoint. It prefers an idle socket
// already connected there, then reassigns the oldest idle socket, then
// dials a new one while under MaxPoolSize. It blocks up to the connection
// timeout and fails with ErrPoolExhausted afterwards.
func (p *Pool) Get(ctx context.Context, endpoint string) (Conn, error) {
	timer := time.NewTimer(p.cfg.ConnectionTimeout)
	defer timer.Stop()
	select {
	case p.users <- struct{}{}:
	case <-timer.C:
		return nil, ErrPoolExhausted
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	conn, err := p.take(endpoint)
	if err != nil {
		<-p.users
		return nil, err
	}
	return conn, nil
}

func (p *Pool) take(endpoint string) (Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// An idle socket already connected to the endpoint wins.
	for i, c := range p.idle {
		if c.Endpoint() == endpoint {
			p.idle = append(p.idle[:i], p.idle[i+1:]...)
			p.inUse++
			return c, nil
		}
	}

	// Reassign the oldest idle socket to the new endpoint.
	if len(p.idle) > 0 {
		old := p.idle[0]
		p.idle = p.idle[1:]
		old.Close()
		c, err := p.dial(endpoint)
		if err != nil {
			return nil, err
		}
		p.inUse++
		return c, nil
	}

	if p.inUse < p.cfg.MaxPoolSize {
		c, err := p.dial(endpoint)
		if err != nil {
			return nil, err
		}
		p.inUse++
		return c, nil
	}

	return nil, ErrPoolExhausted
}

// Put returns a socket to the pool. If the pool is over capacity the
// oldest idle socket is evicted.
func (p *Pool) Put(c Conn) {
	p.mu.Lock()
	p.inUse--
	p.idle = append(p.idle, c)
	for p.inUse+len(p.idle) > p.cfg.MaxPoolSize && len(p.idle) > 0 {
		old := p.idle[0]
		p.idle = p.idle[1:]
		old.Close()
	}
	p.mu.Unlock()
	<-p.users
}

// Discard drops a broken socket instead of returning it.
func (p *Pool) Discard(c Conn) {
	c.Close()
	p.mu.Lock()
	p.inUse--
	p.mu.Unlock()
	<-p.users
}

// InUse reports how many sockets are currently checked out.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inUse
}

// Idle reports how many sockets are parked in the pool.
func (p *Pool) Idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// CloseAll closes every idle socket and resets counters. In-use sockets
// are closed by their borrowers on release.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.idle {
		c.Close()
	}
	p.idle = nil
}
