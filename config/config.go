// Package config loads the engine's configuration from environment
// variables, with validated defaults for every setting.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Environment string

	Engine    EngineConfig
	IPC       IPCConfig
	Cache     CacheConfig
	Extractor ExtractorConfig
	Publisher PublisherConfig
	Sink      SinkConfig
	Database  DatabaseConfig
	Metrics   MetricsConfig
}

type EngineConfig struct {
	MinRefreshInterval time.Duration
	RefreshBuffer      time.Duration
	FetchTimeout       time.Duration
}

type IPCConfig struct {
	ExtractEndpoint     string
	CacheEndpoint       string
	MaxPoolSize         int
	MaxConcurrentUsers  int
	ConnectionTimeout   time.Duration
	PushTimeout         time.Duration
	CacheRequestTimeout time.Duration
}

type CacheConfig struct {
	ListenAddr    string
	HighWaterMark int
	TTL           time.Duration
	Capacity      int
	RecvTimeout   time.Duration
}

type ExtractorConfig struct {
	ListenAddr    string
	HighWaterMark int
	Workers       int
	RecvTimeout   time.Duration
	FetchTimeout  time.Duration
	HostDelay     time.Duration
}

type PublisherConfig struct {
	RedisURL       string
	Stream         string
	ClientIDPrefix string
	Producers      int
	QueueSize      int
	OfferTimeout   time.Duration
}

type SinkConfig struct {
	Path string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type MetricsConfig struct {
	Enabled bool
	Addr    string
}

// LoadConfig reads every setting from the environment and validates the
// result. Parse errors on set variables are returned, never silently
// replaced with defaults.
func LoadConfig() (*Config, error) {
	c := &Config{Environment: getEnv("ENVIRONMENT", "production")}

	var err error
	load := func(f func() error) {
		if err == nil {
			err = f()
		}
	}
	load(c.loadEngine)
	load(c.loadIPC)
	load(c.loadCache)
	load(c.loadExtractor)
	load(c.loadPublisher)
	load(c.loadSink)
	load(c.loadDatabase)
	load(c.loadMetrics)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := validateConfig(c); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return c, nil
}

// IsDevelopment reports whether the engine runs in development mode,
// which lowers the log level to debug.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) loadEngine() error {
	var err error
	c.Engine.MinRefreshInterval, err = parseDurationEnv("ENGINE_MIN_REFRESH_INTERVAL", 10*time.Second)
	if err != nil {
		return err
	}
	c.Engine.RefreshBuffer, err = parseDurationEnv("ENGINE_REFRESH_BUFFER", 5*time.Second)
	if err != nil {
		return err
	}
	c.Engine.FetchTimeout, err = parseDurationEnv("ENGINE_FETCH_TIMEOUT", 30*time.Second)
	return err
}

func (c *Config) loadIPC() error {
	c.IPC.ExtractEndpoint = getEnv("IPC_EXTRACT_ENDPOINT", "127.0.0.1:5555")
	c.IPC.CacheEndpoint = getEnv("IPC_CACHE_ENDPOINT", "127.0.0.1:5558")

	var err error
	c.IPC.MaxPoolSize, err = parseIntEnv("IPC_MAX_POOL_SIZE", 32)
	if err != nil {
		return err
	}
	c.IPC.MaxConcurrentUsers, err = parseIntEnv("IPC_MAX_CONCURRENT_USERS", 32)
	if err != nil {
		return err
	}
	c.IPC.ConnectionTimeout, err = parseDurationEnv("IPC_CONNECTION_TIMEOUT", 5*time.Second)
	if err != nil {
		return err
	}
	c.IPC.PushTimeout, err = parseDurationEnv("IPC_PUSH_TIMEOUT", time.Second)
	if err != nil {
		return err
	}
	c.IPC.CacheRequestTimeout, err = parseDurationEnv("IPC_CACHE_REQUEST_TIMEOUT", 2*time.Second)
	return err
}

func (c *Config) loadCache() error {
	c.Cache.ListenAddr = getEnv("CACHE_LISTEN_ADDR", "127.0.0.1:5558")

	var err error
	c.Cache.HighWaterMark, err = parseIntEnv("CACHE_HIGH_WATER_MARK", 1000)
	if err != nil {
		return err
	}
	c.Cache.TTL, err = parseDurationEnv("CACHE_TTL", 18600*time.Second)
	if err != nil {
		return err
	}
	c.Cache.Capacity, err = parseIntEnv("CACHE_CAPACITY", 10000)
	if err != nil {
		return err
	}
	c.Cache.RecvTimeout, err = parseDurationEnv("CACHE_RECV_TIMEOUT", time.Second)
	return err
}

func (c *Config) loadExtractor() error {
	c.Extractor.ListenAddr = getEnv("EXTRACTOR_LISTEN_ADDR", "127.0.0.1:5555")

	var err error
	c.Extractor.HighWaterMark, err = parseIntEnv("EXTRACTOR_HIGH_WATER_MARK", 100)
	if err != nil {
		return err
	}
	c.Extractor.Workers, err = parseIntEnv("EXTRACTOR_WORKERS", 3)
	if err != nil {
		return err
	}
	c.Extractor.RecvTimeout, err = parseDurationEnv("EXTRACTOR_RECV_TIMEOUT", time.Second)
	if err != nil {
		return err
	}
	c.Extractor.FetchTimeout, err = parseDurationEnv("EXTRACTOR_FETCH_TIMEOUT", 30*time.Second)
	if err != nil {
		return err
	}
	c.Extractor.HostDelay, err = parseDurationEnv("EXTRACTOR_HOST_DELAY", 2*time.Second)
	return err
}

func (c *Config) loadPublisher() error {
	c.Publisher.RedisURL = getEnv("PUBLISHER_REDIS_URL", "redis://localhost:6379")
	c.Publisher.Stream = getEnv("PUBLISHER_STREAM", "news:articles")
	c.Publisher.ClientIDPrefix = getEnv("PUBLISHER_CLIENT_ID_PREFIX", "news-engine")

	var err error
	c.Publisher.Producers, err = parseIntEnv("PUBLISHER_PRODUCERS", 3)
	if err != nil {
		return err
	}
	c.Publisher.QueueSize, err = parseIntEnv("PUBLISHER_QUEUE_SIZE", 10000)
	if err != nil {
		return err
	}
	c.Publisher.OfferTimeout, err = parseDurationEnv("PUBLISHER_OFFER_TIMEOUT", 2*time.Second)
	return err
}

func (c *Config) loadSink() error {
	c.Sink.Path = getEnv("SINK_PATH", "data/articles.db")
	return nil
}

func (c *Config) loadDatabase() error {
	c.Database.Host = getEnv("DB_HOST", "localhost")
	c.Database.Port = getEnv("DB_PORT", "5432")
	c.Database.User = getEnv("NEWS_ENGINE_DB_USER", "devuser")
	c.Database.Password = getEnv("NEWS_ENGINE_DB_PASSWORD", "devpassword")
	c.Database.DBName = getEnv("DB_NAME", "devdb")
	c.Database.SSLMode = getEnv("DB_SSL_MODE", "prefer")
	return nil
}

func (c *Config) loadMetrics() error {
	var err error
	c.Metrics.Enabled, err = parseBoolEnv("METRICS_ENABLED", true)
	if err != nil {
		return err
	}
	c.Metrics.Addr = getEnv("METRICS_ADDR", ":9260")
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseIntEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %s", key, v)
	}
	return n, nil
}

func parseDurationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %s", key, v)
	}
	return d, nil
}

func parseBoolEnv(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %s", key, v)
	}
	return b, nil
}
