package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ErrConfig marks configuration problems that must stop the process at startup.
var ErrConfig = errors.New("config error")

// Supported database drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all configuration for the application
// ⭐ SSOT: every environment variable is read here and nowhere else
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Upstream BringYour API
	Upstream UpstreamConfig

	// Location feed
	Location LocationConfig

	// Proxy endpoint limiter (requests per second)
	ProxyRateLimit float64
	ProxyBurst     int

	// Logging
	LogLevel  string
	LogFormat string
}

// DatabaseConfig holds storage configuration
type DatabaseConfig struct {
	Driver string // sqlite | postgres

	// SQLite
	Path        string
	BusyTimeout time.Duration

	// Postgres
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
	TTL      time.Duration
}

// UpstreamConfig holds BringYour API configuration
type UpstreamConfig struct {
	BaseURL        string
	MaxRetries     int
	RetryInterval  time.Duration
	RequestTimeout time.Duration
}

// LocationConfig holds the snapshot/delta engine configuration
type LocationConfig struct {
	Schedule            string // "@aligned 1h" or a cron spec
	Retention           time.Duration
	Tolerance           time.Duration
	MaintenanceSchedule string
}

// Load reads configuration from environment variables
// ⭐ SSOT: only this function calls os.Getenv()
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8080"),
		Env:  getEnv("ENV", "development"),

		// Database
		Database: DatabaseConfig{
			Driver:          getEnv("DB_DRIVER", DriverSQLite),
			Path:            getEnv("DB_PATH", filepath.Join("data", "location.db")),
			BusyTimeout:     getEnvAsDuration("DB_BUSY_TIMEOUT", "5s"),
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 1),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		// Redis
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			TTL:      getEnvAsDuration("REDIS_TTL", "10m"),
		},

		// Upstream
		Upstream: UpstreamConfig{
			BaseURL:        getEnv("UPSTREAM_BASE_URL", "https://api.bringyour.com"),
			MaxRetries:     getEnvAsInt("UPSTREAM_MAX_RETRIES", 10),
			RetryInterval:  getEnvAsDuration("UPSTREAM_RETRY_INTERVAL", "60s"),
			RequestTimeout: getEnvAsDuration("UPSTREAM_REQUEST_TIMEOUT", "10s"),
		},

		// Location feed
		Location: LocationConfig{
			Schedule:            getEnv("LOCATION_SCHEDULE", "@aligned 1h"),
			Retention:           getEnvAsDuration("LOCATION_RETENTION", "26h"),
			Tolerance:           getEnvAsDuration("LOCATION_TOLERANCE", "30m"),
			MaintenanceSchedule: getEnv("MAINTENANCE_SCHEDULE", "0 3 * * *"),
		},

		ProxyRateLimit: getEnvAsFloat("PROXY_RATE_LIMIT", 2),
		ProxyBurst:     getEnvAsInt("PROXY_BURST", 5),

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%w: validation failed: %v", ErrConfig, err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("DB_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be one of: %s, %s", DriverSQLite, DriverPostgres)
	}

	if c.Upstream.MaxRetries < 1 {
		return fmt.Errorf("UPSTREAM_MAX_RETRIES must be at least 1")
	}

	// 24h lookback + tolerance must stay inside the retention window
	if c.Location.Retention < 24*time.Hour+c.Location.Tolerance {
		return fmt.Errorf("LOCATION_RETENTION must cover 24h plus LOCATION_TOLERANCE")
	}

	return nil
}

// EnsureDataDir creates the directory holding the SQLite file.
// Failure here is fatal at startup.
func (c *Config) EnsureDataDir() error {
	if c.Database.Driver != DriverSQLite {
		return nil
	}

	dir := filepath.Dir(c.Database.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create data directory %s: %v", ErrConfig, dir, err)
	}
	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{".env"}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		// Fallback to default
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
