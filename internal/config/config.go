package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds configuration for the gateway.
type Config struct {
	HTTPPort      string
	JWTSecret     []byte
	LogLevel      string
	EncryptionKey string

	Database DatabaseConfig
	Cache    CacheConfig
	Redis    RedisConfig
	Provider ProviderConfig
	Cost     CostConfig
	Usage    UsageConfig
	Business BusinessConfig
	Scoring  ScoringConfig
	Journal  JournalConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// CacheConfig holds cache settings
type CacheConfig struct {
	ContextCacheSize int
	ContextCacheTTL  time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled      bool
	Address      string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// ProviderConfig holds provider-related settings
type ProviderConfig struct {
	ReloadInterval time.Duration // How often to reload providers from database
	RequestTimeout time.Duration // Timeout for a single provider call
}

// CostConfig controls spend enforcement.
type CostConfig struct {
	FailOpenOnLedgerError bool
	DefaultAlertThreshold float64
	Timezone              string
	TotalsBackend         string // "ledger" or "redis"
}

// UsageConfig controls how usage records reach the ledger.
type UsageConfig struct {
	Async        bool
	QueueBackend string // "memory" or "redis"
	BatchSize    int
	BatchTimeout time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// BusinessConfig selects where per-device business contexts come from.
type BusinessConfig struct {
	Source                 string // "file" or "database"
	Dir                    string
	RecordHistoryExchanges bool
}

// ScoringConfig holds the product-image heuristic weights.
type ScoringConfig struct {
	NameInResponse float64
	WordOverlap    float64
	IntentBonus    float64
	Threshold      float64
}

// JournalConfig controls the exchange journal. An empty File disables it.
type JournalConfig struct {
	File          string // template with one %s for the rotation stamp
	MaxSizeMB     int
	MaxFiles      int
	BufferSize    int
	FlushInterval time.Duration
}

func getEnvInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getEnvFloat(key string, defaultValue float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultValue
	}
	return f
}

func getEnvBool(key string, defaultValue bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultValue
	}
	return b
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(val)
	if err != nil {
		return defaultValue
	}

	return duration
}

func getEnvString(key string, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val
}

// Load reads configuration from a .env file (when present) and the environment.
// Variables already set in the environment win over the file.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err == nil {
			if err := godotenv.Load(f); err != nil {
				return nil, fmt.Errorf("failed to load %s: %w", f, err)
			}
		}
	}

	logLevel := getEnvString("LOG_LEVEL", "warn")
	if getEnvBool("LOCAL", false) {
		logLevel = "debug"
	}

	cfg := &Config{
		HTTPPort:      getEnvString("HTTP_PORT", "8080"),
		JWTSecret:     []byte(getEnvString("JWT_SECRET", "")),
		LogLevel:      logLevel,
		EncryptionKey: getEnvString("ENCRYPTION_KEY", ""),
		Database: DatabaseConfig{
			URL:             getEnvString("DATABASE_URL", "sqlite://gateway.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute),
		},
		Cache: CacheConfig{
			ContextCacheSize: getEnvInt("CACHE_CONTEXT_SIZE", 500),
			ContextCacheTTL:  getEnvDuration("CACHE_CONTEXT_TTL", 1*time.Minute),
		},
		Redis: RedisConfig{
			Enabled:      getEnvBool("REDIS_ENABLED", false),
			Address:      getEnvString("REDIS_ADDRESS", "localhost:6379"),
			Password:     getEnvString("REDIS_PASSWORD", ""),
			DB:           getEnvInt("REDIS_DB", 0),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Provider: ProviderConfig{
			ReloadInterval: getEnvDuration("PROVIDER_RELOAD_INTERVAL", 5*time.Minute),
			RequestTimeout: getEnvDuration("PROVIDER_REQUEST_TIMEOUT", 30*time.Second),
		},
		Cost: CostConfig{
			FailOpenOnLedgerError: getEnvBool("COST_FAIL_OPEN_ON_LEDGER_ERROR", true),
			DefaultAlertThreshold: getEnvFloat("COST_DEFAULT_ALERT_THRESHOLD", 0.8),
			Timezone:              getEnvString("COST_TIMEZONE", "UTC"),
			TotalsBackend:         strings.ToLower(getEnvString("COST_TOTALS_BACKEND", "ledger")),
		},
		Usage: UsageConfig{
			Async:        getEnvBool("USAGE_ASYNC", false),
			QueueBackend: strings.ToLower(getEnvString("USAGE_QUEUE_BACKEND", "memory")),
			BatchSize:    getEnvInt("USAGE_QUEUE_BATCH_SIZE", 100),
			BatchTimeout: getEnvDuration("USAGE_QUEUE_BATCH_TIMEOUT", 5*time.Second),
			MaxRetries:   getEnvInt("USAGE_QUEUE_MAX_RETRIES", 3),
			RetryBackoff: getEnvDuration("USAGE_QUEUE_RETRY_BACKOFF", 1*time.Second),
		},
		Business: BusinessConfig{
			Source:                 strings.ToLower(getEnvString("BUSINESS_CONTEXT_SOURCE", "file")),
			Dir:                    getEnvString("BUSINESS_CONTEXT_DIR", "./contexts"),
			RecordHistoryExchanges: getEnvBool("HISTORY_RECORD_EXCHANGES", false),
		},
		Scoring: ScoringConfig{
			NameInResponse: getEnvFloat("SCORING_NAME_IN_RESPONSE", 50),
			WordOverlap:    getEnvFloat("SCORING_WORD_OVERLAP", 30),
			IntentBonus:    getEnvFloat("SCORING_INTENT_BONUS", 20),
			Threshold:      getEnvFloat("SCORING_THRESHOLD", 40),
		},
		Journal: JournalConfig{
			File:          getEnvString("EXCHANGE_LOG_FILE", ""),
			MaxSizeMB:     getEnvInt("EXCHANGE_LOG_MAX_SIZE_MB", 50),
			MaxFiles:      getEnvInt("EXCHANGE_LOG_MAX_FILES", 10),
			BufferSize:    getEnvInt("EXCHANGE_LOG_BUFFER_SIZE", 1000),
			FlushInterval: getEnvDuration("EXCHANGE_LOG_FLUSH_INTERVAL", 1*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail later at first use.
func (c *Config) Validate() error {
	if len(c.JWTSecret) == 0 {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Provider.RequestTimeout <= 0 {
		return fmt.Errorf("PROVIDER_REQUEST_TIMEOUT must be positive")
	}
	if c.Cost.DefaultAlertThreshold <= 0 || c.Cost.DefaultAlertThreshold > 1 {
		return fmt.Errorf("COST_DEFAULT_ALERT_THRESHOLD must be in (0, 1], got %v", c.Cost.DefaultAlertThreshold)
	}
	if _, err := time.LoadLocation(c.Cost.Timezone); err != nil {
		return fmt.Errorf("invalid COST_TIMEZONE %q: %w", c.Cost.Timezone, err)
	}
	switch c.Cost.TotalsBackend {
	case "ledger":
	case "redis":
		if !c.Redis.Enabled {
			return fmt.Errorf("COST_TOTALS_BACKEND=redis requires REDIS_ENABLED=true")
		}
	default:
		return fmt.Errorf("unknown COST_TOTALS_BACKEND %q", c.Cost.TotalsBackend)
	}
	switch c.Usage.QueueBackend {
	case "memory":
	case "redis":
		if c.Usage.Async && !c.Redis.Enabled {
			return fmt.Errorf("USAGE_QUEUE_BACKEND=redis requires REDIS_ENABLED=true")
		}
	default:
		return fmt.Errorf("unknown USAGE_QUEUE_BACKEND %q", c.Usage.QueueBackend)
	}
	switch c.Business.Source {
	case "file", "database":
	default:
		return fmt.Errorf("unknown BUSINESS_CONTEXT_SOURCE %q", c.Business.Source)
	}
	if c.Journal.File != "" && strings.Count(c.Journal.File, "%s") != 1 {
		return fmt.Errorf("EXCHANGE_LOG_FILE must contain exactly one %%s, got %q", c.Journal.File)
	}
	return nil
}
