package appcache

import (
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kanenguyen264/library-management-sub003/pkg/metrics"
)

// DefaultNamespace is the namespace wrapped functions use when none is
// configured.
const DefaultNamespace = "app"

// defaultMaxEntries bounds the memory store when no capacity is configured.
const defaultMaxEntries = 1000

// StoreType selects the entry store backend.
type StoreType int

const (
	// StoreTypeMemory uses in-process LRU storage (default).
	StoreTypeMemory StoreType = iota
	// StoreTypeRedis uses Redis as backend storage.
	StoreTypeRedis
)

// RedisConfig holds Redis-specific configuration.
type RedisConfig struct {
	// Client is a pre-configured Redis client. If nil, a client is created
	// from Addr, Password and DB.
	Client redis.Cmdable

	// Addr is the Redis server address (host:port). Only used if Client is nil.
	Addr string

	// Password for Redis authentication. Only used if Client is nil.
	Password string

	// DB is the Redis database number. Only used if Client is nil.
	DB int

	// KeyPrefix is prepended to all cache keys in Redis.
	// Default: "appcache:".
	KeyPrefix string
}

// MetricsConfig holds metrics exporter configuration.
type MetricsConfig struct {
	// Exporter receives the metrics.
	Exporter metrics.Exporter

	// Enabled turns metrics collection on.
	Enabled bool

	// CacheName is the name label applied to all metrics for this instance.
	CacheName string

	// ReportingInterval is how often stats are exported automatically.
	// Zero disables automatic reporting.
	ReportingInterval time.Duration

	// Labels are additional labels applied to all metrics.
	Labels metrics.Labels
}

// Config defines the configuration options for a cache Manager.
type Config struct {
	// StoreType determines which backend store to use.
	// Default: StoreTypeMemory.
	StoreType StoreType

	// MaxEntries bounds the memory store (LRU). Default: 1000.
	MaxEntries int

	// DefaultTTL applies to entries stored without an explicit TTL.
	// Default: 5 minutes.
	DefaultTTL time.Duration

	// ReapInterval is how often the background reaper removes expired
	// entries. Only the memory store needs it (Redis expires keys natively).
	// Default: 1 minute. Zero disables the reaper; lazy eviction on Get
	// still keeps reads correct.
	ReapInterval time.Duration

	// MaxKeyLength bounds generated key length. Keys over the limit fail
	// with KeyTooLongError. Default: MaxKeyLength.
	MaxKeyLength int

	// Hooks defines event callbacks for cache operations.
	Hooks *Hooks

	// Logger receives backend failure reports and debug traces.
	// Default: NoOpLogger.
	Logger Logger

	// Redis holds Redis-specific configuration.
	// Only used when StoreType is StoreTypeRedis.
	Redis *RedisConfig

	// Metrics holds metrics exporter configuration.
	// If nil, no metrics are exported.
	Metrics *MetricsConfig
}

// NewDefaultConfig returns a Config with sensible defaults for memory storage.
func NewDefaultConfig() *Config {
	return &Config{
		StoreType:    StoreTypeMemory,
		MaxEntries:   defaultMaxEntries,
		DefaultTTL:   5 * time.Minute,
		ReapInterval: time.Minute,
		MaxKeyLength: MaxKeyLength,
		Hooks:        &Hooks{},
		Logger:       NewNoOpLogger(),
	}
}

// NewRedisConfig returns a Config configured for Redis storage.
func NewRedisConfig(addr string) *Config {
	cfg := NewDefaultConfig()
	return cfg.WithRedis(&RedisConfig{Addr: addr})
}

// NewRedisConfigWithClient returns a Config configured for Redis with a
// pre-configured client.
func NewRedisConfigWithClient(client redis.Cmdable) *Config {
	cfg := NewDefaultConfig()
	return cfg.WithRedis(&RedisConfig{Client: client})
}

// WithMaxEntries sets the maximum number of cache entries.
func (c *Config) WithMaxEntries(maxEntries int) *Config {
	c.MaxEntries = maxEntries
	return c
}

// WithDefaultTTL sets the default TTL for cache entries.
func (c *Config) WithDefaultTTL(ttl time.Duration) *Config {
	c.DefaultTTL = ttl
	return c
}

// WithReapInterval sets the reaper interval for expired entries.
func (c *Config) WithReapInterval(interval time.Duration) *Config {
	c.ReapInterval = interval
	return c
}

// WithMaxKeyLength sets the generated key length limit.
func (c *Config) WithMaxKeyLength(limit int) *Config {
	c.MaxKeyLength = limit
	return c
}

// WithHooks sets the event hooks for cache operations.
func (c *Config) WithHooks(hooks *Hooks) *Config {
	c.Hooks = hooks
	return c
}

// WithLogger sets the cache logger.
func (c *Config) WithLogger(logger Logger) *Config {
	c.Logger = logger
	return c
}

// WithRedis configures the cache to use Redis storage.
func (c *Config) WithRedis(redisConfig *RedisConfig) *Config {
	c.StoreType = StoreTypeRedis
	c.Redis = redisConfig
	// Memory-specific settings do not apply to Redis.
	c.MaxEntries = 0
	c.ReapInterval = 0
	return c
}

// WithRedisClient configures the cache to use Redis with a pre-configured client.
func (c *Config) WithRedisClient(client redis.Cmdable) *Config {
	return c.WithRedis(&RedisConfig{Client: client})
}

// WithMetrics configures cache metrics export.
func (c *Config) WithMetrics(metricsConfig *MetricsConfig) *Config {
	c.Metrics = metricsConfig
	return c
}

// WithMetricsExporter configures metrics with the given exporter.
func (c *Config) WithMetricsExporter(exporter metrics.Exporter, cacheName string) *Config {
	c.Metrics = &MetricsConfig{
		Exporter:          exporter,
		Enabled:           true,
		CacheName:         cacheName,
		ReportingInterval: 30 * time.Second,
		Labels:            make(metrics.Labels),
	}
	return c
}
