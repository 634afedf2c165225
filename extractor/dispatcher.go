// Package extractor consumes extraction requests from the engine's push
// queue and turns them into published article records. A pull socket
// feeds a small worker pool; each worker downloads the article, parses
// it and publishes the record, falling back to the table sink when the
// bus refuses it.
package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"news-engine/ipc"
	"news-engine/metrics"
	"news-engine/models"
	"news-engine/registry"
)

// Publisher delivers records to the message bus. A false return means
// the record was not accepted and must go to the sink.
type Publisher interface {
	Publish(key string, value any) bool
}

// Appender is the fallback destination for refused records.
type Appender interface {
	Append(models.ArticleRecord) error
}

// Config holds the dispatcher's socket and pool settings.
type Config struct {
	// ListenAddr is the pull socket bind address.
	ListenAddr string
	// HighWaterMark bounds queued frames before senders block.
	HighWaterMark int
	// Workers is the extraction pool size.
	Workers int
	// RecvTimeout paces the receive loop's shutdown checks.
	RecvTimeout time.Duration
	// FetchTimeout bounds one article download and parse.
	FetchTimeout time.Duration
}

func (c *Config) defaults() {
	if c.HighWaterMark <= 0 {
		c.HighWaterMark = 100
	}
	if c.Workers <= 0 {
		c.Workers = 3
	}
	if c.RecvTimeout <= 0 {
		c.RecvTimeout = time.Second
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 30 * time.Second
	}
}

// Dispatcher owns the pull socket and the extraction worker pool.
type Dispatcher struct {
	cfg     Config
	sock    *ipc.PullSocket
	reg     *registry.Registry
	scraper *Scraper
	pub     Publisher
	sink    Appender
	logger  *slog.Logger

	jobs chan models.ExtractionRequest
	done chan struct{}

	stopOnce sync.Once
	recvDone chan struct{}
	workDone chan struct{}
}

// NewDispatcher binds the pull socket and prepares the pool. Start must
// be called before requests flow.
func NewDispatcher(cfg Config, reg *registry.Registry, scraper *Scraper, pub Publisher, sink Appender, logger *slog.Logger) (*Dispatcher, error) {
	cfg.defaults()
	sock, err := ipc.ListenPull(cfg.ListenAddr, cfg.HighWaterMark)
	if err != nil {
		return nil, err
	}
	return &Dispatcher{
		cfg:      cfg,
		sock:     sock,
		reg:      reg,
		scraper:  scraper,
		pub:      pub,
		sink:     sink,
		logger:   logger,
		jobs:     make(chan models.ExtractionRequest, cfg.Workers),
		done:     make(chan struct{}),
		recvDone: make(chan struct{}),
		workDone: make(chan struct{}),
	}, nil
}

// Addr returns the pull socket's bound address.
func (d *Dispatcher) Addr() string {
	return d.sock.Addr()
}

// Start spawns the receive loop and the worker pool.
func (d *Dispatcher) Start() {
	go d.recvLoop()
	go d.workers()
	d.logger.Info("extractor started", "addr", d.Addr(), "workers", d.cfg.Workers)
}

func (d *Dispatcher) recvLoop() {
	defer close(d.recvDone)
	defer close(d.jobs)

	for {
		frame, err := d.sock.Recv(d.cfg.RecvTimeout)
		if err != nil {
			if errors.Is(err, ipc.ErrClosed) {
				return
			}
			if errors.Is(err, ipc.ErrTimeout) {
				select {
				case <-d.done:
					return
				default:
					continue
				}
			}
			d.logger.Error("extraction queue receive failed", "error", err)
			continue
		}

		var msg models.ExtractionRequest
		if err := json.Unmarshal(frame, &msg); err != nil {
			metrics.ExtractionsTotal.WithLabelValues("malformed").Inc()
			d.logger.Error("malformed extraction request", "error", err)
			continue
		}
		d.logger.Debug("received extraction request", "source", msg.Name, "url", msg.URL)

		select {
		case d.jobs <- msg:
		case <-d.done:
			return
		}
	}
}

func (d *Dispatcher) workers() {
	defer close(d.workDone)

	sem := make(chan struct{}, d.cfg.Workers)
	for msg := range d.jobs {
		sem <- struct{}{}
		go func(msg models.ExtractionRequest) {
			defer func() { <-sem }()
			d.handle(msg)
		}(msg)
	}
	for i := 0; i < d.cfg.Workers; i++ {
		sem <- struct{}{}
	}
}

// handle runs one extraction job end to end. Failures are logged and
// counted; the job itself is never retried, the next novelty event for
// the source supersedes it.
func (d *Dispatcher) handle(msg models.ExtractionRequest) {
	src, ok := d.reg.Lookup(msg.SourceID)
	if !ok {
		metrics.ExtractionsTotal.WithLabelValues("unknown_source").Inc()
		d.logger.Error("extraction request for unknown source", "source_id", msg.SourceID, "url", msg.URL)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.FetchTimeout)
	defer cancel()

	article, err := d.scraper.FetchArticle(ctx, src, msg.URL)
	if err != nil {
		status := "error"
		if errors.Is(err, ErrInvalidDomain) {
			status = "invalid_domain"
		}
		metrics.ExtractionsTotal.WithLabelValues(status).Inc()
		d.logger.Error("article extraction failed", "source", src.Name, "url", msg.URL, "error", err)
		return
	}

	record := article.Record()
	if d.pub.Publish(record.URL, record) {
		metrics.ExtractionsTotal.WithLabelValues("published").Inc()
		d.logger.Info("article published", "source", src.Name, "url", record.URL, "id", record.ID)
		return
	}

	if err := d.sink.Append(record); err != nil {
		metrics.ExtractionsTotal.WithLabelValues("lost").Inc()
		d.logger.Error("article lost, sink append failed", "source", src.Name, "url", record.URL, "error", err)
		return
	}
	metrics.ExtractionsTotal.WithLabelValues("sunk").Inc()
	d.logger.Info("article diverted to table sink", "source", src.Name, "url", record.URL, "id", record.ID)
}

// Stop closes the socket, waits for in-flight jobs to finish and returns.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.done)
		d.sock.Close()
		<-d.recvDone
		<-d.workDone
		d.logger.Info("extractor stopped")
	})
}
