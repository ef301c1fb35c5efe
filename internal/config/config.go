package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures runtime configuration for the API service.
type Config struct {
	HTTP           HTTPConfig
	Database       DatabaseConfig
	RateLimit      RateLimitConfig
	Idempotency    IdempotencyConfig
	Breaker        BreakerConfig
	Retry          RetryConfig
	ReferenceCache ReferenceCacheConfig
	Batch          BatchConfig
	Kafka          KafkaConfig
	Telemetry      TelemetryConfig
	Service        ServiceConfig
}

type HTTPConfig struct {
	Port          int
	MetricsPath   string
	ShutdownGrace int
}

type DatabaseConfig struct {
	URL            string
	AutoMigrate    bool
	MigrationsPath string
}

// RateLimitConfig controls the admission layer. Backend is "memory" or
// "postgres".
type RateLimitConfig struct {
	Enabled        bool
	Backend        string
	DefaultProfile string
}

// IdempotencyConfig controls duplicate-request handling. Backend is "memory"
// or "postgres".
type IdempotencyConfig struct {
	Backend         string
	TTL             time.Duration
	CleanupInterval time.Duration
}

type BreakerConfig struct {
	Threshold int
	Cooldown  time.Duration
}

type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	Jitter      float64
}

type ReferenceCacheConfig struct {
	TTL time.Duration
}

type BatchConfig struct {
	ChunkSize    int
	StoreTimeout time.Duration
}

type KafkaConfig struct {
	Brokers []string
}

type TelemetryConfig struct {
	LogLevel      string
	OTelEndpoint  string
	EnableTracing bool
	EnableMetrics bool
	SampleRate    float64
}

type ServiceConfig struct {
	Name        string
	Version     string
	Environment string
}

const (
	defaultHTTPPort            = 8080
	defaultMetricsPath         = "/metrics"
	defaultShutdownGrace       = 15
	defaultMigrationsPath      = "migrations"
	defaultAutoMigrate         = true
	defaultServiceName         = "ingestd-api"
	defaultServiceVersion      = "0.1.0"
	defaultEnvironment         = "development"
	defaultLogLevel            = "info"
	defaultOTelSampleRate      = 1.0
	defaultRateLimitBackend    = "memory"
	defaultRateLimitProfile    = "ingest"
	defaultIdempotencyBackend  = "postgres"
	defaultIdempotencyTTL      = 24 * time.Hour
	defaultCleanupInterval     = time.Hour
	defaultBreakerThreshold    = 5
	defaultBreakerCooldown     = 30 * time.Second
	defaultRetryMaxAttempts    = 3
	defaultRetryBaseDelay      = 200 * time.Millisecond
	defaultRetryMultiplier     = 2.0
	defaultRetryJitter         = 0.2
	defaultReferenceCacheTTL   = 5 * time.Minute
	defaultBatchChunkSize      = 50
	defaultBatchStoreTimeout   = 5 * time.Second
)

// Load reads configuration from environment variables, applying defaults when needed.
func Load() (*Config, error) {
	httpCfg, err := loadHTTPConfig()
	if err != nil {
		return nil, fmt.Errorf("loading HTTP config: %w", err)
	}

	dbCfg := loadDatabaseConfig()

	rateCfg, err := loadRateLimitConfig()
	if err != nil {
		return nil, fmt.Errorf("loading rate limit config: %w", err)
	}

	idemCfg, err := loadIdempotencyConfig()
	if err != nil {
		return nil, fmt.Errorf("loading idempotency config: %w", err)
	}

	breakerCfg, err := loadBreakerConfig()
	if err != nil {
		return nil, fmt.Errorf("loading breaker config: %w", err)
	}

	retryCfg, err := loadRetryConfig()
	if err != nil {
		return nil, fmt.Errorf("loading retry config: %w", err)
	}

	refCfg, err := loadReferenceCacheConfig()
	if err != nil {
		return nil, fmt.Errorf("loading reference cache config: %w", err)
	}

	batchCfg, err := loadBatchConfig()
	if err != nil {
		return nil, fmt.Errorf("loading batch config: %w", err)
	}

	kafkaCfg := loadKafkaConfig()
	telCfg, err := loadTelemetryConfig()
	if err != nil {
		return nil, fmt.Errorf("loading telemetry config: %w", err)
	}

	serviceCfg := loadServiceConfig()

	return &Config{
		HTTP:           httpCfg,
		Database:       dbCfg,
		RateLimit:      rateCfg,
		Idempotency:    idemCfg,
		Breaker:        breakerCfg,
		Retry:          retryCfg,
		ReferenceCache: refCfg,
		Batch:          batchCfg,
		Kafka:          kafkaCfg,
		Telemetry:      telCfg,
		Service:        serviceCfg,
	}, nil
}

func loadHTTPConfig() (HTTPConfig, error) {
	port := defaultHTTPPort
	if value, ok := os.LookupEnv("API_HTTP_PORT"); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return HTTPConfig{}, fmt.Errorf("invalid API_HTTP_PORT: %w", err)
		}
		port = parsed
	}

	shutdownGrace := defaultShutdownGrace
	if value, ok := os.LookupEnv("API_SHUTDOWN_GRACE_SECONDS"); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return HTTPConfig{}, fmt.Errorf("invalid API_SHUTDOWN_GRACE_SECONDS: %w", err)
		}
		shutdownGrace = parsed
	}

	metricsPath := getEnvOrDefault("API_METRICS_PATH", defaultMetricsPath)

	return HTTPConfig{
		Port:          port,
		MetricsPath:   metricsPath,
		ShutdownGrace: shutdownGrace,
	}, nil
}

func loadDatabaseConfig() DatabaseConfig {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		databaseURL = buildDatabaseURL()
	}

	autoMigrate := defaultAutoMigrate
	if value, ok := os.LookupEnv("AUTO_MIGRATE"); ok {
		autoMigrate = value == "true"
	}

	migrationsPath := getEnvOrDefault("MIGRATIONS_PATH", defaultMigrationsPath)

	return DatabaseConfig{
		URL:            databaseURL,
		AutoMigrate:    autoMigrate,
		MigrationsPath: migrationsPath,
	}
}

func loadRateLimitConfig() (RateLimitConfig, error) {
	backend := getEnvOrDefault("RATE_LIMIT_BACKEND", defaultRateLimitBackend)
	if backend != "memory" && backend != "postgres" {
		return RateLimitConfig{}, fmt.Errorf("invalid RATE_LIMIT_BACKEND: %q", backend)
	}

	return RateLimitConfig{
		Enabled:        getBoolEnv("RATE_LIMIT_ENABLED", true),
		Backend:        backend,
		DefaultProfile: getEnvOrDefault("RATE_LIMIT_PROFILE", defaultRateLimitProfile),
	}, nil
}

func loadIdempotencyConfig() (IdempotencyConfig, error) {
	backend := getEnvOrDefault("IDEMPOTENCY_BACKEND", defaultIdempotencyBackend)
	if backend != "memory" && backend != "postgres" {
		return IdempotencyConfig{}, fmt.Errorf("invalid IDEMPOTENCY_BACKEND: %q", backend)
	}

	ttl, err := getDurationEnv("IDEMPOTENCY_TTL", defaultIdempotencyTTL)
	if err != nil {
		return IdempotencyConfig{}, err
	}

	cleanup, err := getDurationEnv("IDEMPOTENCY_CLEANUP_INTERVAL", defaultCleanupInterval)
	if err != nil {
		return IdempotencyConfig{}, err
	}

	return IdempotencyConfig{
		Backend:         backend,
		TTL:             ttl,
		CleanupInterval: cleanup,
	}, nil
}

func loadBreakerConfig() (BreakerConfig, error) {
	threshold := defaultBreakerThreshold
	if value, ok := os.LookupEnv("BREAKER_FAILURE_THRESHOLD"); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return BreakerConfig{}, fmt.Errorf("invalid BREAKER_FAILURE_THRESHOLD: %w", err)
		}
		threshold = parsed
	}

	cooldown, err := getDurationEnv("BREAKER_COOLDOWN", defaultBreakerCooldown)
	if err != nil {
		return BreakerConfig{}, err
	}

	return BreakerConfig{
		Threshold: threshold,
		Cooldown:  cooldown,
	}, nil
}

func loadRetryConfig() (RetryConfig, error) {
	maxAttempts := defaultRetryMaxAttempts
	if value, ok := os.LookupEnv("RETRY_MAX_ATTEMPTS"); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return RetryConfig{}, fmt.Errorf("invalid RETRY_MAX_ATTEMPTS: %w", err)
		}
		maxAttempts = parsed
	}

	baseDelay, err := getDurationEnv("RETRY_BASE_DELAY", defaultRetryBaseDelay)
	if err != nil {
		return RetryConfig{}, err
	}

	multiplier := defaultRetryMultiplier
	if value, ok := os.LookupEnv("RETRY_MULTIPLIER"); ok {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return RetryConfig{}, fmt.Errorf("invalid RETRY_MULTIPLIER: %w", err)
		}
		multiplier = parsed
	}

	jitter := defaultRetryJitter
	if value, ok := os.LookupEnv("RETRY_JITTER"); ok {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return RetryConfig{}, fmt.Errorf("invalid RETRY_JITTER: %w", err)
		}
		jitter = parsed
	}

	return RetryConfig{
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
		Multiplier:  multiplier,
		Jitter:      jitter,
	}, nil
}

func loadReferenceCacheConfig() (ReferenceCacheConfig, error) {
	ttl, err := getDurationEnv("REFERENCE_CACHE_TTL", defaultReferenceCacheTTL)
	if err != nil {
		return ReferenceCacheConfig{}, err
	}
	return ReferenceCacheConfig{TTL: ttl}, nil
}

func loadBatchConfig() (BatchConfig, error) {
	chunkSize := defaultBatchChunkSize
	if value, ok := os.LookupEnv("BATCH_CHUNK_SIZE"); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return BatchConfig{}, fmt.Errorf("invalid BATCH_CHUNK_SIZE: %w", err)
		}
		chunkSize = parsed
	}
	storeTimeout, err := getDurationEnv("BATCH_STORE_TIMEOUT", defaultBatchStoreTimeout)
	if err != nil {
		return BatchConfig{}, err
	}
	return BatchConfig{ChunkSize: chunkSize, StoreTimeout: storeTimeout}, nil
}

func loadKafkaConfig() KafkaConfig {
	var brokers []string
	if value, ok := os.LookupEnv("KAFKA_BROKERS"); ok && value != "" {
		brokers = strings.Split(value, ",")
	}

	return KafkaConfig{
		Brokers: brokers,
	}
}

func loadTelemetryConfig() (TelemetryConfig, error) {
	logLevel := getEnvOrDefault("LOG_LEVEL", defaultLogLevel)
	otelEndpoint := getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	enableTracing := getBoolEnv("OTEL_ENABLE_TRACING", true)
	enableMetrics := getBoolEnv("OTEL_ENABLE_METRICS", true)

	sampleRate := defaultOTelSampleRate
	if value, ok := os.LookupEnv("OTEL_SAMPLE_RATE"); ok {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return TelemetryConfig{}, fmt.Errorf("invalid OTEL_SAMPLE_RATE: %w", err)
		}
		sampleRate = parsed
	}

	return TelemetryConfig{
		LogLevel:      logLevel,
		OTelEndpoint:  otelEndpoint,
		EnableTracing: enableTracing,
		EnableMetrics: enableMetrics,
		SampleRate:    sampleRate,
	}, nil
}

func loadServiceConfig() ServiceConfig {
	return ServiceConfig{
		Name:        getEnvOrDefault("API_SERVICE_NAME", defaultServiceName),
		Version:     getEnvOrDefault("SERVICE_VERSION", defaultServiceVersion),
		Environment: getEnvOrDefault("ENVIRONMENT", defaultEnvironment),
	}
}

func buildDatabaseURL() string {
	host := getEnvOrDefault("DB_HOST", "localhost")
	port := getEnvOrDefault("DB_PORT", "5432")
	user := getEnvOrDefault("DB_USER", "postgres")
	password := getEnvOrDefault("DB_PASSWORD", "postgres")
	dbName := getEnvOrDefault("DB_NAME", "ingestd")
	sslMode := getEnvOrDefault("DB_SSLMODE", "disable")

	maxConns := getEnvOrDefault("DB_MAX_CONNS", "25")
	minConns := getEnvOrDefault("DB_MIN_CONNS", "5")
	maxLifetime := getEnvOrDefault("DB_MAX_CONN_LIFETIME", "5m")

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s&pool_max_conns=%s&pool_min_conns=%s&pool_max_conn_lifetime=%s",
		user, password, host, port, dbName, sslMode, maxConns, minConns, maxLifetime,
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		return value == "true"
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return defaultValue, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}
