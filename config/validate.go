package config

import "fmt"

func validateConfig(c *Config) error {
	if c.Engine.MinRefreshInterval <= 0 {
		return fmt.Errorf("engine min refresh interval must be positive: %v", c.Engine.MinRefreshInterval)
	}
	if c.Engine.RefreshBuffer < 0 {
		return fmt.Errorf("engine refresh buffer must be non-negative: %v", c.Engine.RefreshBuffer)
	}
	if c.Engine.FetchTimeout <= 0 {
		return fmt.Errorf("engine fetch timeout must be positive: %v", c.Engine.FetchTimeout)
	}

	if c.IPC.MaxPoolSize <= 0 {
		return fmt.Errorf("ipc max pool size must be positive: %d", c.IPC.MaxPoolSize)
	}
	if c.IPC.MaxConcurrentUsers <= 0 {
		return fmt.Errorf("ipc max concurrent users must be positive: %d", c.IPC.MaxConcurrentUsers)
	}
	if c.IPC.ExtractEndpoint == "" {
		return fmt.Errorf("ipc extract endpoint cannot be empty")
	}
	if c.IPC.CacheEndpoint == "" {
		return fmt.Errorf("ipc cache endpoint cannot be empty")
	}

	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache ttl must be positive: %v", c.Cache.TTL)
	}
	if c.Cache.Capacity <= 0 {
		return fmt.Errorf("cache capacity must be positive: %d", c.Cache.Capacity)
	}

	if c.Extractor.Workers <= 0 {
		return fmt.Errorf("extractor workers must be positive: %d", c.Extractor.Workers)
	}
	if c.Extractor.HostDelay <= 0 {
		return fmt.Errorf("extractor host delay must be positive: %v", c.Extractor.HostDelay)
	}

	if c.Publisher.RedisURL == "" {
		return fmt.Errorf("publisher redis url cannot be empty")
	}
	if c.Publisher.Producers <= 0 {
		return fmt.Errorf("publisher producers must be positive: %d", c.Publisher.Producers)
	}
	if c.Publisher.QueueSize <= 0 {
		return fmt.Errorf("publisher queue size must be positive: %d", c.Publisher.QueueSize)
	}

	if c.Sink.Path == "" {
		return fmt.Errorf("sink path cannot be empty")
	}

	return nil
}
