// Package publisher delivers article records to the downstream message
// bus (Redis Streams). A fixed pool of producer workers drains a bounded
// FIFO; when the bus is unreachable the pool runs in fallback mode and
// every publish is refused so callers divert to the table sink.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"news-engine/metrics"
)

const (
	// maxProducers caps the worker pool regardless of configuration.
	maxProducers = 5

	defaultProducers    = 3
	defaultQueueSize    = 10000
	defaultOfferTimeout = 2 * time.Second

	producerRetries  = 3
	retryBackoffBase = time.Second
	retryBackoffMax  = 30 * time.Second

	shutdownTimeout = 10 * time.Second
	flushTimeout    = 2 * time.Second
)

// Config holds the bus connection settings, read once at construction.
type Config struct {
	// RedisURL is the bus bootstrap endpoint.
	RedisURL string
	// Stream is the stream key articles are appended to.
	Stream string
	// ClientIDPrefix names producer connections (<prefix>-worker-<i>).
	ClientIDPrefix string
	// Producers is the worker pool size, capped at 5.
	Producers int
	// QueueSize bounds the FIFO between extraction jobs and workers.
	QueueSize int
	// OfferTimeout is how long Publish waits for FIFO space.
	OfferTimeout time.Duration
}

func (c *Config) defaults() {
	if c.Producers <= 0 {
		c.Producers = defaultProducers
	}
	if c.Producers > maxProducers {
		c.Producers = maxProducers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.OfferTimeout <= 0 {
		c.OfferTimeout = defaultOfferTimeout
	}
	if c.Stream == "" {
		c.Stream = "news:articles"
	}
	if c.ClientIDPrefix == "" {
		c.ClientIDPrefix = "news-engine"
	}
}

type message struct {
	key   string
	value []byte
}

// Stats describes the pool for monitoring.
type Stats struct {
	QueueDepth    int
	ActiveWorkers int
	FallbackMode  bool
}

// Pool is a fixed-size producer pool over a bounded FIFO.
type Pool struct {
	cfg    Config
	logger *slog.Logger

	clients []*redis.Client
	queue   chan message

	draining chan struct{}
	wg       sync.WaitGroup

	mu       sync.Mutex
	fallback bool
	closed   bool
	workers  int
}

// New builds the producer pool. Each producer is created with up to three
// attempts and exponential backoff; if none comes up the pool starts in
// fallback mode and every Publish returns false immediately.
func New(ctx context.Context, cfg Config, logger *slog.Logger) *Pool {
	cfg.defaults()
	p := &Pool{
		cfg:      cfg,
		logger:   logger,
		queue:    make(chan message, cfg.QueueSize),
		draining: make(chan struct{}),
	}

	logger.Info("connecting to message bus", "url", cfg.RedisURL, "producers", cfg.Producers)

	for i := 0; i < cfg.Producers; i++ {
		client, err := p.newProducer(ctx, i)
		if err != nil {
			logger.Error("failed to create producer", "worker", i, "error", err)
			continue
		}
		p.clients = append(p.clients, client)
		p.workers++
		p.wg.Add(1)
		go p.worker(client, i)
	}

	if p.workers == 0 {
		logger.Error("no producers available, entering fallback mode")
		p.fallback = true
	}
	return p
}

func (p *Pool) newProducer(ctx context.Context, worker int) (*redis.Client, error) {
	opts, err := redis.ParseURL(p.cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("publisher: parse redis url: %w", err)
	}
	opts.ClientName = fmt.Sprintf("%s-worker-%d", p.cfg.ClientIDPrefix, worker)

	backoff := retryBackoffBase
	var lastErr error
	for attempt := 1; attempt <= producerRetries; attempt++ {
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err == nil {
			return client, nil
		} else {
			lastErr = err
			client.Close()
		}
		if attempt < producerRetries {
			p.logger.Warn("producer creation failed, retrying",
				"worker", worker, "attempt", attempt, "backoff", backoff, "error", lastErr)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoff *= 2
			if backoff > retryBackoffMax {
				backoff = retryBackoffMax
			}
		}
	}
	return nil, fmt.Errorf("publisher: create producer after %d attempts: %w", producerRetries, lastErr)
}

func (p *Pool) worker(client *redis.Client, id int) {
	defer p.wg.Done()
	p.logger.Info("publisher worker started", "worker", id)

	for {
		select {
		case msg := <-p.queue:
			p.produce(client, msg)
		case <-p.draining:
			// Drain what is left, then exit.
			for {
				select {
				case msg := <-p.queue:
					p.produce(client, msg)
				default:
					p.logger.Info("publisher worker draining complete", "worker", id)
					return
				}
			}
		}
	}
}

func (p *Pool) produce(client *redis.Client, msg message) {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	err := client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.cfg.Stream,
		Values: map[string]any{
			"key":   msg.key,
			"value": string(msg.value),
		},
	}).Err()
	metrics.PublishQueueDepth.Set(float64(len(p.queue)))
	if err != nil {
		metrics.PublishTotal.WithLabelValues("error").Inc()
		p.logger.Error("failed to produce message", "key", msg.key, "error", err)
		return
	}
	metrics.PublishTotal.WithLabelValues("ok").Inc()
}

// Publish serializes value as JSON and offers it to the FIFO. It returns
// false when the pool is in fallback mode, shutting down, serialization
// fails, or the FIFO stays full for the offer timeout. A false return is
// the caller's signal to use the table sink.
func (p *Pool) Publish(key string, value any) bool {
	p.mu.Lock()
	refused := p.fallback || p.closed
	p.mu.Unlock()
	if refused {
		metrics.PublishTotal.WithLabelValues("refused").Inc()
		return false
	}

	data, err := json.Marshal(value)
	if err != nil {
		p.logger.Error("failed to serialize message", "key", key, "error", err)
		return false
	}

	timer := time.NewTimer(p.cfg.OfferTimeout)
	defer timer.Stop()
	select {
	case p.queue <- message{key: key, value: data}:
		metrics.PublishQueueDepth.Set(float64(len(p.queue)))
		return true
	case <-timer.C:
		metrics.PublishTotal.WithLabelValues("queue_full").Inc()
		p.logger.Error("publish queue full, message refused", "key", key)
		return false
	}
}

// FallbackMode reports whether the pool refuses all publishes.
func (p *Pool) FallbackMode() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fallback
}

// GetStats returns queue and worker statistics.
func (p *Pool) GetStats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		QueueDepth:    len(p.queue),
		ActiveWorkers: p.workers,
		FallbackMode:  p.fallback,
	}
}

// Close stops accepting publishes, lets workers drain the FIFO, then
// closes every producer. The whole shutdown is bounded by a deadline.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	close(p.draining)

	finished := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(shutdownTimeout):
		p.logger.Warn("publisher workers did not drain in time")
	}

	for _, client := range p.clients {
		if err := client.Close(); err != nil {
			p.logger.Error("failed to close producer", "error", err)
		}
	}
	p.logger.Info("publisher pool closed")
}
