package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all service configuration
type Config struct {
	Service     ServiceConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Queue       QueueConfig
	Cache       CacheConfig
	Buffer      BufferConfig
	Selector    SelectorConfig
	PostProcess PostProcessConfig
	Sync        SyncConfig
	RateLimit   RateLimitConfig
	Telemetry   TelemetryConfig
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// QueueConfig holds sync queue settings
type QueueConfig struct {
	Type string // "redis" for production, "memory" for dev/tests
	Key  string // Redis list key holding pending sync jobs
}

// CacheConfig holds media metadata cache settings
type CacheConfig struct {
	Enabled bool
	Type    string        // "redis" shares entries across instances, "memory" is per-process
	TTL     time.Duration // how long a cached record stays valid
}

// BufferConfig holds local buffer settings
type BufferConfig struct {
	Dir          string        // root of the sharded local buffer tree
	MaxBlobBytes int64         // hard cap on a single blob; 0 disables the cap
	SpoolTimeout time.Duration // bound on reading the inbound stream to disk
	MinFreeBytes int64         // refuse spooling when the buffer volume has less free space
}

// SelectorConfig holds box selection settings
type SelectorConfig struct {
	TolerancePercent float64 // width of the usage band round-robined over, in percentage points
	MaxRetries       int     // reservation attempts before selection fails hard
}

// PostProcessConfig holds optional post-processing hook settings
type PostProcessConfig struct {
	Enabled bool
	Command string        // argv template with {in} and {out} placeholders
	Timeout time.Duration // hard bound on one transform run
	Gate    string        // CEL expression over mime, ext, size_bytes
}

// SyncConfig holds durable sync hand-off settings
type SyncConfig struct {
	DirectUpload      bool          // attempt synchronous upload before queueing
	ReconcileInterval time.Duration // how often the worker sweeps pending records
	ReconcileAge      time.Duration // pending records older than this get re-enqueued
}

// RateLimitConfig holds ingest rate limit settings
type RateLimitConfig struct {
	Enabled   bool
	PerMinute int64 // allowed archivals per client IP per window
}

// TelemetryConfig holds observability settings
type TelemetryConfig struct {
	EnablePprof bool
	PprofPort   int
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"),
		},
		Database: DatabaseConfig{
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "mediastore"),
			User:        getEnv("POSTGRES_USER", "mediastore"),
			Password:    getEnv("POSTGRES_PASSWORD", "mediastore"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 50),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 10),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Queue: QueueConfig{
			Type: getEnv("QUEUE_TYPE", "redis"),
			Key:  getEnv("QUEUE_KEY", "media:sync:jobs"),
		},
		Cache: CacheConfig{
			Enabled: getEnvBool("CACHE_ENABLED", true),
			Type:    getEnv("CACHE_TYPE", "redis"),
			TTL:     getEnvDuration("CACHE_TTL", 5*time.Minute),
		},
		Buffer: BufferConfig{
			Dir:          getEnv("BUFFER_DIR", "/var/lib/mediastore/buffer"),
			MaxBlobBytes: getEnvInt64("BUFFER_MAX_BLOB_BYTES", 2<<30),
			SpoolTimeout: getEnvDuration("BUFFER_SPOOL_TIMEOUT", 5*time.Minute),
			MinFreeBytes: getEnvInt64("BUFFER_MIN_FREE_BYTES", 1<<30),
		},
		Selector: SelectorConfig{
			TolerancePercent: getEnvFloat("SELECTOR_TOLERANCE_PERCENT", 5.0),
			MaxRetries:       getEnvInt("SELECTOR_MAX_RETRIES", 5),
		},
		PostProcess: PostProcessConfig{
			Enabled: getEnvBool("POSTPROCESS_ENABLED", false),
			Command: getEnv("POSTPROCESS_COMMAND", "ffmpeg -y -i {in} -c copy -movflags +faststart {out}"),
			Timeout: getEnvDuration("POSTPROCESS_TIMEOUT", 2*time.Minute),
			Gate:    getEnv("POSTPROCESS_GATE", `mime.startsWith("video/")`),
		},
		Sync: SyncConfig{
			DirectUpload:      getEnvBool("SYNC_DIRECT_UPLOAD", true),
			ReconcileInterval: getEnvDuration("SYNC_RECONCILE_INTERVAL", 5*time.Minute),
			ReconcileAge:      getEnvDuration("SYNC_RECONCILE_AGE", 15*time.Minute),
		},
		RateLimit: RateLimitConfig{
			Enabled:   getEnvBool("RATELIMIT_ENABLED", false),
			PerMinute: getEnvInt64("RATELIMIT_PER_MINUTE", 120),
		},
		Telemetry: TelemetryConfig{
			EnablePprof: getEnvBool("ENABLE_PPROF", true),
			PprofPort:   getEnvInt("PPROF_PORT", 6060),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns must be >= min_conns")
	}

	if c.Queue.Type != "redis" && c.Queue.Type != "memory" {
		return fmt.Errorf("unknown queue type: %s", c.Queue.Type)
	}

	if c.Cache.Type != "redis" && c.Cache.Type != "memory" {
		return fmt.Errorf("unknown cache type: %s", c.Cache.Type)
	}

	if !filepath.IsAbs(c.Buffer.Dir) {
		return fmt.Errorf("buffer dir must be absolute: %s", c.Buffer.Dir)
	}

	if c.Selector.TolerancePercent < 0 || c.Selector.TolerancePercent > 100 {
		return fmt.Errorf("selector tolerance must be within [0, 100]: %f", c.Selector.TolerancePercent)
	}

	if c.Selector.MaxRetries < 1 {
		return fmt.Errorf("selector max retries must be >= 1: %d", c.Selector.MaxRetries)
	}

	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// RedisAddr returns the Redis host:port address
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// TempDir returns the spool directory. It lives under the buffer root so the
// final rename into the buffer tree never crosses filesystems.
func (c *Config) TempDir() string {
	return filepath.Join(c.Buffer.Dir, "tmp")
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
