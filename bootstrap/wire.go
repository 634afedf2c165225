// Package bootstrap wires the engine's components together and owns the
// process lifecycle: ordered startup, signal handling, ordered shutdown.
package bootstrap

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"news-engine/cache"
	"news-engine/config"
	"news-engine/driver"
	"news-engine/engine"
	"news-engine/extractor"
	"news-engine/ipc"
	"news-engine/publisher"
	"news-engine/ratelimit"
	"news-engine/registry"
	"news-engine/sink"
)

// Dependencies holds every long-lived component of the running engine.
type Dependencies struct {
	Config   *config.Config
	Logger   *slog.Logger
	DBPool   *pgxpool.Pool
	Registry *registry.Registry

	CacheService *cache.Service
	Sink         *sink.TableSink
	Publisher    *publisher.Pool
	Dispatcher   *extractor.Dispatcher
	Engine       *engine.Engine
}

// BuildDependencies constructs the full component graph in dependency
// order. Nothing is started yet; Run drives the lifecycle.
func BuildDependencies(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Dependencies, error) {
	dbPool, err := driver.Init(ctx, &driver.DatabaseConfig{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	}, log)
	if err != nil {
		return nil, err
	}

	sources, err := driver.LoadSources(ctx, dbPool, log)
	if err != nil {
		dbPool.Close()
		return nil, err
	}
	reg := registry.New(sources)

	cacheService, err := cache.NewService(cache.ServiceConfig{
		Addr:          cfg.Cache.ListenAddr,
		HighWaterMark: cfg.Cache.HighWaterMark,
		TTL:           cfg.Cache.TTL,
		Capacity:      cfg.Cache.Capacity,
		RecvTimeout:   cfg.Cache.RecvTimeout,
	}, log)
	if err != nil {
		dbPool.Close()
		return nil, err
	}

	tableSink, err := sink.Open(cfg.Sink.Path, log)
	if err != nil {
		cacheService.Stop()
		dbPool.Close()
		return nil, err
	}

	pub := publisher.New(ctx, publisher.Config{
		RedisURL:       cfg.Publisher.RedisURL,
		Stream:         cfg.Publisher.Stream,
		ClientIDPrefix: cfg.Publisher.ClientIDPrefix,
		Producers:      cfg.Publisher.Producers,
		QueueSize:      cfg.Publisher.QueueSize,
		OfferTimeout:   cfg.Publisher.OfferTimeout,
	}, log)

	scraper := extractor.NewScraper(
		&http.Client{Timeout: cfg.Extractor.FetchTimeout},
		ratelimit.NewHostRateLimiter(cfg.Extractor.HostDelay),
	)
	dispatcher, err := extractor.NewDispatcher(extractor.Config{
		ListenAddr:    cfg.Extractor.ListenAddr,
		HighWaterMark: cfg.Extractor.HighWaterMark,
		Workers:       cfg.Extractor.Workers,
		RecvTimeout:   cfg.Extractor.RecvTimeout,
		FetchTimeout:  cfg.Extractor.FetchTimeout,
	}, reg, scraper, pub, tableSink, log)
	if err != nil {
		pub.Close()
		tableSink.Close()
		cacheService.Stop()
		dbPool.Close()
		return nil, err
	}

	pushPool := ipc.NewPool(func(endpoint string) (ipc.Conn, error) {
		return ipc.DialPush(endpoint, cfg.IPC.ConnectionTimeout)
	}, ipc.PoolConfig{
		MaxPoolSize:        cfg.IPC.MaxPoolSize,
		MaxConcurrentUsers: cfg.IPC.MaxConcurrentUsers,
		ConnectionTimeout:  cfg.IPC.ConnectionTimeout,
	})
	reqPool := ipc.NewPool(func(endpoint string) (ipc.Conn, error) {
		return ipc.DialReq(endpoint, cfg.IPC.ConnectionTimeout)
	}, ipc.PoolConfig{
		MaxPoolSize:        cfg.IPC.MaxPoolSize,
		MaxConcurrentUsers: cfg.IPC.MaxConcurrentUsers,
		ConnectionTimeout:  cfg.IPC.ConnectionTimeout,
	})

	eng := engine.New(engine.Config{
		MinRefreshInterval:  cfg.Engine.MinRefreshInterval,
		RefreshBuffer:       cfg.Engine.RefreshBuffer,
		ExtractEndpoint:     cfg.IPC.ExtractEndpoint,
		CacheEndpoint:       cfg.IPC.CacheEndpoint,
		CacheRequestTimeout: cfg.IPC.CacheRequestTimeout,
		PushTimeout:         cfg.IPC.PushTimeout,
		FetchTimeout:        cfg.Engine.FetchTimeout,
	}, pushPool, reqPool, log)
	for _, src := range reg.All() {
		eng.Register(src)
	}

	return &Dependencies{
		Config:       cfg,
		Logger:       log,
		DBPool:       dbPool,
		Registry:     reg,
		CacheService: cacheService,
		Sink:         tableSink,
		Publisher:    pub,
		Dispatcher:   dispatcher,
		Engine:       eng,
	}, nil
}

// shutdownTimeout bounds the whole ordered teardown.
const shutdownTimeout = 30 * time.Second
