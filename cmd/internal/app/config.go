package app

import (
	"time"

	"interviewprep/cmd/internal/outbox"
	"interviewprep/cmd/internal/storage"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL   string
	DBMaxConns    int32
	DBMinConns    int32
	DBSchema      string
	DBApplySchema bool

	// RedisURL selects the Redis outbox; empty keeps retries in memory.
	RedisURL       string
	OutboxKey      string
	OutboxInterval time.Duration
	OutboxBatch    int
	OutboxAttempts int

	// GroupAProbability is the chance a new account lands in experiment group A.
	GroupAProbability float64

	// If true, /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	// If true, PREP_PASETO_V4_SECRET_KEY_HEX must be set; ephemeral signing keys are refused.
	RequireSigningKey bool

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	ob := outbox.DefaultConfig()
	return Config{
		HTTPAddr:  EnvString("PREP_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("PREP_LOG_LEVEL", "info"),
		LogFormat: EnvString("PREP_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("PREP_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("PREP_HTTP_READ_TIMEOUT", 15*time.Second),
		// Scoring calls can take up to the oracle timeout.
		WriteTimeout:   EnvDuration("PREP_HTTP_WRITE_TIMEOUT", 45*time.Second),
		IdleTimeout:    EnvDuration("PREP_HTTP_IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes: EnvInt("PREP_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL:   EnvString("PREP_DATABASE_URL", ""),
		DBMaxConns:    EnvInt32("PREP_DB_MAX_CONNS", 10),
		DBMinConns:    EnvInt32("PREP_DB_MIN_CONNS", 0),
		DBSchema:      EnvString("PREP_DB_SCHEMA", storage.DefaultSchema),
		DBApplySchema: EnvBool("PREP_DB_APPLY_SCHEMA", false),

		RedisURL:       EnvString("PREP_REDIS_URL", ""),
		OutboxKey:      EnvString("PREP_OUTBOX_KEY", outbox.DefaultRedisKey),
		OutboxInterval: EnvDuration("PREP_OUTBOX_INTERVAL", ob.Interval),
		OutboxBatch:    EnvInt("PREP_OUTBOX_BATCH", ob.Batch),
		OutboxAttempts: EnvInt("PREP_OUTBOX_MAX_ATTEMPTS", ob.MaxAttempts),

		GroupAProbability: EnvFloat("PREP_GROUP_A_PROBABILITY", 0.5),

		ReadinessRequireDB: EnvBool("PREP_READINESS_REQUIRE_DB", false),
		RequireSigningKey:  EnvBool("PREP_REQUIRE_SIGNING_KEY", false),

		CORSAllowedOrigins:   EnvCSV("PREP_CORS_ALLOWED_ORIGINS"),
		CORSAllowCredentials: EnvBool("PREP_CORS_ALLOW_CREDENTIALS", false),
		CORSMaxAgeSeconds:    EnvInt("PREP_CORS_MAX_AGE_SECONDS", 600),
	}
}

func (c Config) outbox() outbox.Config {
	return outbox.Config{
		Interval:    c.OutboxInterval,
		Batch:       c.OutboxBatch,
		MaxAttempts: c.OutboxAttempts,
	}
}
