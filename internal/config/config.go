package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"orderbookcollection/internal/orderbook"
)

const (
	defaultEnv                = "development"
	defaultLogLevel           = "info"
	defaultEngine             = orderbook.EngineBTree
	defaultSnapshotFile       = "resources/snapshot.bin"
	defaultIncrementalFile    = "resources/incremental.bin"
	defaultInstrumentsFile    = "config/instruments.yaml"
	defaultInstrumentsSource  = SourceFile
	defaultWorkers            = 1
	defaultHTTPHost           = "0.0.0.0"
	defaultHTTPPort           = 8080
	defaultRedisDB            = 0
	defaultCacheTTLSeconds    = 5
	defaultOrderBooksExchange = "orderbooks.views"
	defaultPrefetch           = 64
	defaultBatchSize          = 500
	defaultBatchTimeoutMS     = 1000
)

const (
	SourceFile     = "file"
	SourcePostgres = "postgres"
)

// Config keeps the runtime configuration for the service.
type Config struct {
	Env         string
	LogLevel    string
	Engine      string
	Feed        FeedConfig
	Instruments InstrumentsConfig
	Collection  CollectionConfig
	ServeHTTP   bool
	HTTP        HTTPConfig
	Postgres    PostgresConfig
	RabbitMQ    RabbitMQConfig
	Redis       RedisConfig
	Cache       CacheConfig
	MetricsAddr string
}

// FeedConfig points at the recorded binary feed.
type FeedConfig struct {
	SnapshotFile    string
	IncrementalFile string
	// BufferSize is 0 when INCREMENTAL_BUFFER_SIZE is unset.
	BufferSize int
}

// ResolveBufferSize prefers the environment, then the instruments file,
// then the reader default (0).
func (f FeedConfig) ResolveBufferSize(fromFile int) int {
	if f.BufferSize > 0 {
		return f.BufferSize
	}
	return fromFile
}

// InstrumentsConfig says where instrument bounds come from.
type InstrumentsConfig struct {
	File   string
	Source string
}

// CollectionConfig tunes the order book collection.
type CollectionConfig struct {
	AutoResize         bool
	Workers            int
	ReportDepth        int
	PublishEveryUpdate bool
}

// HTTPConfig holds HTTP server related settings.
type HTTPConfig struct {
	Host string
	Port int
}

// Addr renders the listen address in host:port form.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// PostgresConfig stores database connection parameters.
type PostgresConfig struct {
	DSN string
}

// RabbitMQConfig configures view publication and consumption.
type RabbitMQConfig struct {
	URL                string
	OrderBooksExchange string
	Prefetch           int
	BatchSize          int
	BatchTimeout       time.Duration
}

// RedisConfig stores Redis connection parameters.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// CacheConfig stores cache behavior.
type CacheConfig struct {
	TTLSeconds int
}

// TTL returns the cache lifetime as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// Load builds Config from environment variables.
func Load() (*Config, error) {
	engine := strings.ToLower(getString("ORDERBOOK_ENGINE", defaultEngine))
	if engine != orderbook.EngineBTree && engine != orderbook.EngineArray {
		return nil, fmt.Errorf("ORDERBOOK_ENGINE must be %s or %s, got %q", orderbook.EngineBTree, orderbook.EngineArray, engine)
	}

	source := strings.ToLower(getString("INSTRUMENTS_SOURCE", defaultInstrumentsSource))
	if source != SourceFile && source != SourcePostgres {
		return nil, fmt.Errorf("INSTRUMENTS_SOURCE must be %s or %s, got %q", SourceFile, SourcePostgres, source)
	}

	bufferSize, err := getInt("INCREMENTAL_BUFFER_SIZE", 0)
	if err != nil {
		return nil, fmt.Errorf("parse INCREMENTAL_BUFFER_SIZE: %w", err)
	}
	if bufferSize < 0 {
		return nil, errors.New("INCREMENTAL_BUFFER_SIZE must not be negative")
	}

	autoResize, err := getBool("ARRAY_AUTO_RESIZE", false)
	if err != nil {
		return nil, fmt.Errorf("parse ARRAY_AUTO_RESIZE: %w", err)
	}
	workers, err := getInt("WORKERS", defaultWorkers)
	if err != nil {
		return nil, fmt.Errorf("parse WORKERS: %w", err)
	}
	if workers < 1 {
		return nil, errors.New("WORKERS must be at least 1")
	}
	reportDepth, err := getInt("REPORT_DEPTH", 0)
	if err != nil {
		return nil, fmt.Errorf("parse REPORT_DEPTH: %w", err)
	}
	if reportDepth < 0 {
		return nil, errors.New("REPORT_DEPTH must not be negative")
	}
	publishEvery, err := getBool("PUBLISH_EVERY_UPDATE", false)
	if err != nil {
		return nil, fmt.Errorf("parse PUBLISH_EVERY_UPDATE: %w", err)
	}

	serveHTTP, err := getBool("SERVE_HTTP", false)
	if err != nil {
		return nil, fmt.Errorf("parse SERVE_HTTP: %w", err)
	}
	host := getString("HTTP_HOST", defaultHTTPHost)
	port, err := getInt("HTTP_PORT", defaultHTTPPort)
	if err != nil {
		return nil, fmt.Errorf("parse HTTP_PORT: %w", err)
	}

	dsn := os.Getenv("DATABASE_DSN")
	if source == SourcePostgres && dsn == "" {
		return nil, errors.New("DATABASE_DSN is required when INSTRUMENTS_SOURCE=postgres")
	}

	prefetch, err := getInt("RABBITMQ_PREFETCH", defaultPrefetch)
	if err != nil {
		return nil, fmt.Errorf("parse RABBITMQ_PREFETCH: %w", err)
	}
	batchSize, err := getInt("BATCH_SIZE", defaultBatchSize)
	if err != nil {
		return nil, fmt.Errorf("parse BATCH_SIZE: %w", err)
	}
	batchTimeout, err := getInt("BATCH_TIMEOUT_MS", defaultBatchTimeoutMS)
	if err != nil {
		return nil, fmt.Errorf("parse BATCH_TIMEOUT_MS: %w", err)
	}

	redisDB, err := getInt("REDIS_DB", defaultRedisDB)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_DB: %w", err)
	}

	cacheTTL, err := getInt("CACHE_TTL_SECONDS", defaultCacheTTLSeconds)
	if err != nil {
		return nil, fmt.Errorf("parse CACHE_TTL_SECONDS: %w", err)
	}

	return &Config{
		Env:      getString("APP_ENV", defaultEnv),
		LogLevel: getString("LOG_LEVEL", defaultLogLevel),
		Engine:   engine,
		Feed: FeedConfig{
			SnapshotFile:    getString("SNAPSHOT_FILE", defaultSnapshotFile),
			IncrementalFile: getString("INCREMENTAL_FILE", defaultIncrementalFile),
			BufferSize:      bufferSize,
		},
		Instruments: InstrumentsConfig{
			File:   getString("INSTRUMENTS_FILE", defaultInstrumentsFile),
			Source: source,
		},
		Collection: CollectionConfig{
			AutoResize:         autoResize,
			Workers:            workers,
			ReportDepth:        reportDepth,
			PublishEveryUpdate: publishEvery,
		},
		ServeHTTP: serveHTTP,
		HTTP:      HTTPConfig{Host: host, Port: port},
		Postgres: PostgresConfig{
			DSN: dsn,
		},
		RabbitMQ: RabbitMQConfig{
			URL:                os.Getenv("RABBITMQ_URL"),
			OrderBooksExchange: getString("RABBITMQ_ORDERBOOKS_EXCHANGE", defaultOrderBooksExchange),
			Prefetch:           prefetch,
			BatchSize:          batchSize,
			BatchTimeout:       time.Duration(batchTimeout) * time.Millisecond,
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Cache: CacheConfig{
			TTLSeconds: cacheTTL,
		},
		MetricsAddr: os.Getenv("METRICS_ADDR"),
	}, nil
}

func getString(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	return value
}

func getInt(key string, fallback int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("convert %s value %q to int: %w", key, value, err)
	}
	return parsed, nil
}

func getBool(key string, fallback bool) (bool, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("convert %s value %q to bool: %w", key, value, err)
	}
	return parsed, nil
}
