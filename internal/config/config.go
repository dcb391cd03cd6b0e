package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers understood by StoreConfig.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
)

// Lock backends understood by LockConfig.
const (
	LockBackendMemory = "memory"
	LockBackendRedis  = "redis"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Store        StoreConfig
	Postgres     PostgresConfig
	SQLite       SQLiteConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	Sequence     SequenceConfig
	Sweep        SweepConfig
	Lock         LockConfig
	Report       ReportConfig
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

// StoreConfig selects the ticket store backend.
type StoreConfig struct {
	Driver string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// SQLiteConfig holds the embedded database location.
type SQLiteConfig struct {
	Path string
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
}

// NotificationConfig holds outbound email and chatter mirror settings.
// An empty SMTPHost routes email through the logging notifier.
type NotificationConfig struct {
	EmailFrom    string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SlackToken   string
	SlackChannel string
}

// SequenceConfig controls human-readable reference generation.
type SequenceConfig struct {
	Code    string
	Prefix  string
	Padding int
	Strict  bool
}

// SweepConfig controls the unresolved-ticket reminder job.
type SweepConfig struct {
	Enabled       bool
	Schedule      string
	ThresholdDays int
	Concurrency   int
}

// LockConfig selects the per-ticket lock implementation.
type LockConfig struct {
	Backend    string
	TTLSeconds int
}

// ReportConfig controls printable document retention.
type ReportConfig struct {
	TTLMinutes int
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

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "helpdesk-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Store: StoreConfig{
			Driver: strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		SQLite: SQLiteConfig{
			Path: getEnv("SQLITE_PATH", "helpdesk.db"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Notification: NotificationConfig{
			EmailFrom:    getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			SMTPHost:     os.Getenv("NOTIFY_SMTP_HOST"),
			SMTPPort:     getEnvAsInt("NOTIFY_SMTP_PORT", 587),
			SMTPUsername: os.Getenv("NOTIFY_SMTP_USERNAME"),
			SMTPPassword: os.Getenv("NOTIFY_SMTP_PASSWORD"),
			SlackToken:   os.Getenv("NOTIFY_SLACK_TOKEN"),
			SlackChannel: os.Getenv("NOTIFY_SLACK_CHANNEL"),
		},
		Sequence: SequenceConfig{
			Code:    getEnv("SEQUENCE_CODE", "helpdesk.ticket"),
			Prefix:  getEnv("SEQUENCE_PREFIX", "TCK"),
			Padding: getEnvAsInt("SEQUENCE_PADDING", 5),
			Strict:  getEnvAsBool("SEQUENCE_STRICT", false),
		},
		Sweep: SweepConfig{
			Enabled:       getEnvAsBool("SWEEP_ENABLED", true),
			Schedule:      getEnv("SWEEP_SCHEDULE", "@daily"),
			ThresholdDays: getEnvAsInt("SWEEP_THRESHOLD_DAYS", 7),
			Concurrency:   getEnvAsInt("SWEEP_CONCURRENCY", 4),
		},
		Lock: LockConfig{
			Backend:    strings.ToLower(getEnv("LOCK_BACKEND", LockBackendMemory)),
			TTLSeconds: getEnvAsInt("LOCK_TTL_SECONDS", 10),
		},
		Report: ReportConfig{
			TTLMinutes: getEnvAsInt("REPORT_TTL_MINUTES", 60),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case StoreDriverPostgres, StoreDriverSQLite:
	default:
		return fmt.Errorf("invalid STORE_DRIVER %q", c.Store.Driver)
	}
	switch c.Lock.Backend {
	case LockBackendMemory, LockBackendRedis:
	default:
		return fmt.Errorf("invalid LOCK_BACKEND %q", c.Lock.Backend)
	}
	if c.Sweep.ThresholdDays <= 0 {
		return fmt.Errorf("SWEEP_THRESHOLD_DAYS must be positive")
	}
	return nil
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

// Threshold returns how long a ticket may stay unresolved before reminders start.
func (s SweepConfig) Threshold() time.Duration {
	return time.Duration(s.ThresholdDays) * 24 * time.Hour
}

// TTL returns the lock lease duration.
func (l LockConfig) TTL() time.Duration {
	if l.TTLSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(l.TTLSeconds) * time.Second
}

// TTL returns how long rendered documents are retained.
func (r ReportConfig) TTL() time.Duration {
	if r.TTLMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(r.TTLMinutes) * time.Minute
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
