// Package engine schedules one long-lived poller per news source. Each
// poller drives its feed reader on an adaptive cadence derived from the
// feed's own TTL hint and pushes extraction requests for new entries.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"news-engine/feed"
	"news-engine/ipc"
	"news-engine/models"
)

// Config holds the engine's scheduling parameters and endpoints.
type Config struct {
	// MinRefreshInterval is the initial and minimum poll interval.
	MinRefreshInterval time.Duration
	// RefreshBuffer is added after phase-aligning to the feed's cadence so
	// the poll lands just after the next expected publish.
	RefreshBuffer time.Duration
	// ExtractEndpoint is the extraction queue's pull address.
	ExtractEndpoint string
	// CacheEndpoint is the dedup cache service's reply address.
	CacheEndpoint string
	// CacheRequestTimeout bounds one cache round trip.
	CacheRequestTimeout time.Duration
	// PushTimeout bounds one extraction push; pushes fail fast when the
	// queue is backed up and the event is recovered on the next cycle.
	PushTimeout time.Duration
	// FetchTimeout bounds one feed HTTP fetch.
	FetchTimeout time.Duration
}

func (c *Config) defaults() {
	if c.MinRefreshInterval <= 0 {
		c.MinRefreshInterval = 10 * time.Second
	}
	if c.RefreshBuffer <= 0 {
		c.RefreshBuffer = 5 * time.Second
	}
	if c.CacheRequestTimeout <= 0 {
		c.CacheRequestTimeout = 2 * time.Second
	}
	if c.PushTimeout <= 0 {
		c.PushTimeout = time.Second
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 30 * time.Second
	}
}

// PollerHandle pairs a source with its reader and running worker.
type PollerHandle struct {
	Source *models.Source
	Reader *feed.Reader
}

// Engine owns the poller registry and the socket pools the pollers borrow
// from each cycle.
type Engine struct {
	cfg      Config
	pushPool *ipc.Pool
	reqPool  *ipc.Pool
	logger   *slog.Logger

	mu      sync.Mutex
	pollers map[string]*PollerHandle

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an engine borrowing sockets from the given pools.
func New(cfg Config, pushPool, reqPool *ipc.Pool, logger *slog.Logger) *Engine {
	cfg.defaults()
	return &Engine{
		cfg:      cfg,
		pushPool: pushPool,
		reqPool:  reqPool,
		logger:   logger,
		pollers:  make(map[string]*PollerHandle),
	}
}

// Register creates a feed reader and poller handle for source. Must be
// called before Start.
func (e *Engine) Register(source *models.Source) {
	reader := feed.NewReader(source,
		feed.WithMinRefreshInterval(e.cfg.MinRefreshInterval),
	)
	e.mu.Lock()
	e.pollers[source.ID] = &PollerHandle{Source: source, Reader: reader}
	e.mu.Unlock()
}

// Pollers returns the registered handles.
func (e *Engine) Pollers() []*PollerHandle {
	e.mu.Lock()
	defer e.mu.Unlock()
	handles := make([]*PollerHandle, 0, len(e.pollers))
	for _, h := range e.pollers {
		handles = append(handles, h)
	}
	return handles
}

// Start spawns one poller goroutine per registered source.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, h := range e.pollers {
		e.wg.Add(1)
		go e.runPoller(ctx, h)
	}
	e.logger.Info("engine started", "pollers", len(e.pollers))
}

// Stop cancels every poller, waits for them to release their sockets and
// exit, then closes the pools.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	e.pushPool.CloseAll()
	e.reqPool.CloseAll()
	e.logger.Info("engine stopped")
}
