package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App        AppConfig
	Postgres   PostgresConfig
	Redis      RedisConfig
	Logger     LoggerConfig
	Auth       AuthConfig
	Queue      QueueConfig
	Jobs       JobsConfig
	Reconciler ReconcilerConfig
	Cache      CacheConfig
	Notify     NotifyConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN                string
	MaxConns           int32
	MinConns           int32
	RunMigrations      bool
	ConnMaxIdleSec     int32
	ConnMaxLifeSec     int32
	LockTimeoutMS      int
	StatementTimeoutMS int
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr           string
	Password       string
	DB             int
	PoolSize       int
	DialTimeoutMS  int
	ReadTimeoutMS  int
	WriteTimeoutMS int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level  string
	Format string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// QueueConfig holds defaults for queues that leave settings unset.
type QueueConfig struct {
	DefaultServiceSlots int
	DefaultGraceMinutes int
	PageSize            int
}

// JobsConfig configures the durable job facility and its consumer.
type JobsConfig struct {
	KeyPrefix           string
	PollIntervalMS      int
	MaxAttempts         int
	BackoffMS           int
	Concurrency         int
	VisibilityTimeoutMS int
	PromoteBackupMS     int
}

// ReconcilerConfig schedules the safety-net sweep.
type ReconcilerConfig struct {
	Enabled   bool
	Spec      string
	BatchSize int
}

// CacheConfig configures the read-through cache.
type CacheConfig struct {
	Enabled    bool
	KeyPrefix  string
	TTLSeconds int
}

// NotifyConfig names the pub/sub channels.
type NotifyConfig struct {
	ChannelPrefix string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	pageSize := getEnvAsInt("QUEUE_PAGE_SIZE", 10)
	if pageSize <= 0 {
		return nil, fmt.Errorf("invalid QUEUE_PAGE_SIZE: %d", pageSize)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "queue-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:                os.Getenv("POSTGRES_DSN"),
			MaxConns:           maxConns,
			MinConns:           minConns,
			RunMigrations:      runMigrations,
			ConnMaxIdleSec:     connMaxIdle,
			ConnMaxLifeSec:     connMaxLife,
			LockTimeoutMS:      getEnvAsInt("POSTGRES_LOCK_TIMEOUT_MS", 5000),
			StatementTimeoutMS: getEnvAsInt("POSTGRES_STATEMENT_TIMEOUT_MS", 15000),
		},
		Redis: RedisConfig{
			Addr:           getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:       os.Getenv("REDIS_PASSWORD"),
			DB:             redisDB,
			PoolSize:       getEnvAsInt("REDIS_POOL_SIZE", 20),
			DialTimeoutMS:  getEnvAsInt("REDIS_DIAL_TIMEOUT_MS", 2000),
			ReadTimeoutMS:  getEnvAsInt("REDIS_READ_TIMEOUT_MS", 1000),
			WriteTimeoutMS: getEnvAsInt("REDIS_WRITE_TIMEOUT_MS", 1000),
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Queue: QueueConfig{
			DefaultServiceSlots: getEnvAsInt("QUEUE_DEFAULT_SERVICE_SLOTS", 1),
			DefaultGraceMinutes: getEnvAsInt("QUEUE_DEFAULT_GRACE_MINUTES", 5),
			PageSize:            pageSize,
		},
		Jobs: JobsConfig{
			KeyPrefix:           getEnv("JOBS_KEY_PREFIX", "queue-service"),
			PollIntervalMS:      getEnvAsInt("JOBS_POLL_INTERVAL_MS", 500),
			MaxAttempts:         getEnvAsInt("JOBS_MAX_ATTEMPTS", 5),
			BackoffMS:           getEnvAsInt("JOBS_BACKOFF_MS", 5000),
			Concurrency:         getEnvAsInt("JOBS_CONCURRENCY", 4),
			VisibilityTimeoutMS: getEnvAsInt("JOBS_VISIBILITY_TIMEOUT_MS", 30000),
			PromoteBackupMS:     getEnvAsInt("JOBS_PROMOTE_BACKUP_MS", 5000),
		},
		Reconciler: ReconcilerConfig{
			Enabled:   getEnvAsBool("RECONCILER_ENABLED", true),
			Spec:      getEnv("RECONCILER_CRON", "*/30 * * * * *"),
			BatchSize: getEnvAsInt("RECONCILER_BATCH_SIZE", 500),
		},
		Cache: CacheConfig{
			Enabled:    getEnvAsBool("CACHE_ENABLED", true),
			KeyPrefix:  getEnv("CACHE_KEY_PREFIX", "queue-service:cache"),
			TTLSeconds: getEnvAsInt("CACHE_TTL_SECONDS", 30),
		},
		Notify: NotifyConfig{
			ChannelPrefix: getEnv("NOTIFY_CHANNEL_PREFIX", "queue-service:events"),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// IsDevelopment reports whether the service runs in a local environment.
func (a AppConfig) IsDevelopment() bool {
	return a.Env == "development" || a.Env == "dev" || a.Env == "local"
}

// DialTimeout bounds establishing a Redis connection.
func (r RedisConfig) DialTimeout() time.Duration {
	return time.Duration(r.DialTimeoutMS) * time.Millisecond
}

// ReadTimeout bounds a single Redis read.
func (r RedisConfig) ReadTimeout() time.Duration {
	return time.Duration(r.ReadTimeoutMS) * time.Millisecond
}

// WriteTimeout bounds a single Redis write.
func (r RedisConfig) WriteTimeout() time.Duration {
	return time.Duration(r.WriteTimeoutMS) * time.Millisecond
}

// LockTimeout bounds how long a transaction waits for a row lock.
func (p PostgresConfig) LockTimeout() time.Duration {
	return time.Duration(p.LockTimeoutMS) * time.Millisecond
}

// StatementTimeout bounds a single statement.
func (p PostgresConfig) StatementTimeout() time.Duration {
	return time.Duration(p.StatementTimeoutMS) * time.Millisecond
}

// PollInterval is how often an idle worker looks for due jobs.
func (j JobsConfig) PollInterval() time.Duration {
	return time.Duration(j.PollIntervalMS) * time.Millisecond
}

// Backoff is the delay before the first retry.
func (j JobsConfig) Backoff() time.Duration {
	return time.Duration(j.BackoffMS) * time.Millisecond
}

// VisibilityTimeout is how long a claimed job stays hidden from other workers.
func (j JobsConfig) VisibilityTimeout() time.Duration {
	return time.Duration(j.VisibilityTimeoutMS) * time.Millisecond
}

// PromoteBackup is the delay of the durable promotion job armed next to
// every in-process promotion.
func (j JobsConfig) PromoteBackup() time.Duration {
	return time.Duration(j.PromoteBackupMS) * time.Millisecond
}

// TTL returns the cache entry lifetime.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
