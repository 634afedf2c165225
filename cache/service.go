package cache

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"news-engine/ipc"
)

// NAValue is the reply value that denotes absence.
const NAValue = "NA"

const (
	statusSuccess = "success"
	statusFailed  = "failed"

	actionGet = "get"
	actionSet = "set"
)

// request is the wire shape of a cache request. Action selects one of the
// two arms; Value is only meaningful for "set".
type request struct {
	Action string `json:"action"`
	Key    string `json:"key"`
	Value  string `json:"value,omitempty"`
}

// reply is the wire shape of a cache reply.
type reply struct {
	Status string `json:"status"`
	Value  string `json:"value,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ServiceConfig configures the cache service endpoint and store.
type ServiceConfig struct {
	// Addr is the bind address for the reply socket.
	Addr string
	// HighWaterMark bounds queued requests.
	HighWaterMark int
	// TTL is the entry lifetime.
	TTL time.Duration
	// Capacity is the maximum entry count.
	Capacity int
	// RecvTimeout is the poll interval of the consumer loop; it bounds how
	// long shutdown takes to be observed.
	RecvTimeout time.Duration
}

// Service owns the TTL store and serves get/set requests one at a time.
// Because the loop is the store's only consumer, the store needs no lock.
type Service struct {
	store  *TTLStore
	sock   *ipc.RepSocket
	logger *slog.Logger

	recvTimeout time.Duration
	done        chan struct{}
	wg          sync.WaitGroup
	closeOnce   sync.Once
}

// NewService binds the reply socket and prepares the store. Call Start to
// begin serving.
func NewService(cfg ServiceConfig, logger *slog.Logger) (*Service, error) {
	if cfg.HighWaterMark <= 0 {
		cfg.HighWaterMark = 1000
	}
	if cfg.RecvTimeout <= 0 {
		cfg.RecvTimeout = time.Second
	}
	sock, err := ipc.ListenRep(cfg.Addr, cfg.HighWaterMark)
	if err != nil {
		return nil, fmt.Errorf("cache: bind %s: %w", cfg.Addr, err)
	}
	return &Service{
		store:       NewTTLStore(cfg.TTL, cfg.Capacity),
		sock:        sock,
		logger:      logger,
		recvTimeout: cfg.RecvTimeout,
		done:        make(chan struct{}),
	}, nil
}

// Addr returns the bound endpoint address.
func (s *Service) Addr() string {
	return s.sock.Addr()
}

// Start runs the consumer loop on its own goroutine.
func (s *Service) Start() {
	s.wg.Add(1)
	go s.run()
}

func (s *Service) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		default:
		}

		req, err := s.sock.Recv(s.recvTimeout)
		if err != nil {
			if err == ipc.ErrTimeout {
				continue
			}
			return
		}
		s.handle(req)
	}
}

func (s *Service) handle(req *ipc.Request) {
	var msg request
	if err := json.Unmarshal(req.Frame, &msg); err != nil {
		s.logger.Error("cache service received malformed request", "error", err)
		s.replyFailed(req, fmt.Sprintf("malformed request: %v", err))
		return
	}

	switch msg.Action {
	case actionGet:
		value, ok := s.store.Get(msg.Key)
		if !ok {
			value = NAValue
		}
		s.reply(req, reply{Status: statusSuccess, Value: value})
	case actionSet:
		s.store.Set(msg.Key, msg.Value)
		s.reply(req, reply{Status: statusSuccess})
	default:
		s.logger.Error("cache service received unknown action", "action", msg.Action)
		s.replyFailed(req, fmt.Sprintf("unknown action %q", msg.Action))
	}
}

func (s *Service) reply(req *ipc.Request, r reply) {
	if err := req.Reply(r); err != nil {
		s.logger.Error("cache service failed to send reply", "error", err)
	}
}

func (s *Service) replyFailed(req *ipc.Request, msg string) {
	s.reply(req, reply{Status: statusFailed, Error: msg})
}

// Stop shuts the service down: the loop exits after its current request
// and the endpoint closes with zero linger.
func (s *Service) Stop() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	s.wg.Wait()
	s.sock.Close()
}

// Len reports the live entry count. Only safe to call after Stop; it
// exists for tests.
func (s *Service) Len() int {
	return s.store.Len()
}
