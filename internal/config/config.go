package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

var (
	ErrMissingDatabaseURL = errors.New("DATABASE_URL is required when STORE_DRIVER=postgres")
	ErrInvalidStoreDriver = errors.New("STORE_DRIVER must be postgres or memory")
	ErrInvalidCacheDriver = errors.New("CACHE_DRIVER must be memory or redis")
	ErrMissingJWTSecret   = errors.New("JWT_SECRET must be set in production")
	ErrHeaderAuthInProd   = errors.New("AUTH_ALLOW_USER_HEADER cannot be enabled in production")
)

// Config represents application configuration
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Redis    RedisConfig    `json:"redis"`
	Logging  LoggingConfig  `json:"logging"`
	Security SecurityConfig `json:"security"`
	Notify   NotifyConfig   `json:"notify"`
	Cache    CacheConfig    `json:"cache"`
	Jobs     JobsConfig     `json:"jobs"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Port            string        `json:"port"`
	Host            string        `json:"host"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	Environment     string        `json:"environment"`
}

// DatabaseConfig represents storage configuration
type DatabaseConfig struct {
	Driver          string        `json:"driver"` // postgres, memory
	URL             string        `json:"-"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	ConnectTimeout  time.Duration `json:"connect_timeout"`
	MigrationsPath  string        `json:"migrations_path"`
}

// RedisConfig represents Redis configuration
type RedisConfig struct {
	URL      string        `json:"-"`
	PoolSize int           `json:"pool_size"`
	Timeout  time.Duration `json:"timeout"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level               string `json:"level"`
	Format              string `json:"format"` // json, text
	CorrelationIDHeader string `json:"correlation_id_header"`
	EnableRequestLog    bool   `json:"enable_request_log"`
}

// SecurityConfig represents authentication and request-shaping configuration
type SecurityConfig struct {
	JWTSecret          string        `json:"-"`
	JWTIssuer          string        `json:"jwt_issuer"`
	AccessTokenTTL     time.Duration `json:"access_token_ttl"`
	AllowUserHeader    bool          `json:"allow_user_header"`
	CORSAllowedOrigins []string      `json:"cors_allowed_origins"`
	CORSCredentials    bool          `json:"cors_allow_credentials"`
	AutosaveLimit      int           `json:"autosave_limit"`
	AutosaveWindow     time.Duration `json:"autosave_window"`
}

// NotifyConfig represents post-commit notification delivery
type NotifyConfig struct {
	WebhookURL string        `json:"webhook_url"`
	BufferSize int           `json:"buffer_size"`
	Workers    int           `json:"workers"`
	Timeout    time.Duration `json:"timeout"`
}

// CacheConfig represents the published body cache
type CacheConfig struct {
	Driver     string        `json:"driver"` // memory, redis
	TTL        time.Duration `json:"ttl"`
	MaxEntries int           `json:"max_entries"`
}

// JobsConfig represents background job configuration
type JobsConfig struct {
	AuditVerifySchedule string        `json:"audit_verify_schedule"`
	AuditVerifyLookback time.Duration `json:"audit_verify_lookback"`
}

// Load loads configuration from .env, environment variables and defaults
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getEnvOrDefaultDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvOrDefaultDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvOrDefaultDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvOrDefaultDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			Environment:     getEnvOrDefault("ENV", "development"),
		},
		Database: DatabaseConfig{
			Driver:          strings.ToLower(getEnvOrDefault("STORE_DRIVER", "postgres")),
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getEnvOrDefaultInt("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    getEnvOrDefaultInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxIdleTime: getEnvOrDefaultDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Minute),
			ConnectTimeout:  getEnvOrDefaultDuration("DB_CONNECT_TIMEOUT", 10*time.Second),
			MigrationsPath:  getEnvOrDefault("DB_MIGRATIONS_PATH", "migrations"),
		},
		Redis: RedisConfig{
			URL:      os.Getenv("REDIS_URL"),
			PoolSize: getEnvOrDefaultInt("REDIS_POOL_SIZE", 10),
			Timeout:  getEnvOrDefaultDuration("REDIS_TIMEOUT", 3*time.Second),
		},
		Logging: LoggingConfig{
			Level:               getEnvOrDefault("LOG_LEVEL", "info"),
			Format:              getEnvOrDefault("LOG_FORMAT", "json"),
			CorrelationIDHeader: getEnvOrDefault("LOG_CORRELATION_ID_HEADER", "X-Correlation-ID"),
			EnableRequestLog:    getEnvOrDefaultBool("LOG_ENABLE_REQUEST_LOG", true),
		},
		Security: SecurityConfig{
			JWTSecret:          getEnvOrDefault("JWT_SECRET", defaultJWTSecret),
			JWTIssuer:          getEnvOrDefault("JWT_ISSUER", ""),
			AccessTokenTTL:     getEnvOrDefaultDuration("ACCESS_TOKEN_TTL", time.Hour),
			AllowUserHeader:    getEnvOrDefaultBool("AUTH_ALLOW_USER_HEADER", false),
			CORSAllowedOrigins: parseList(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "*")),
			CORSCredentials:    getEnvOrDefaultBool("CORS_ALLOW_CREDENTIALS", false),
			AutosaveLimit:      getEnvOrDefaultInt("AUTOSAVE_LIMIT", 30),
			AutosaveWindow:     getEnvOrDefaultDuration("AUTOSAVE_WINDOW", time.Minute),
		},
		Notify: NotifyConfig{
			WebhookURL: os.Getenv("NOTIFY_WEBHOOK_URL"),
			BufferSize: getEnvOrDefaultInt("NOTIFY_BUFFER_SIZE", 256),
			Workers:    getEnvOrDefaultInt("NOTIFY_WORKERS", 2),
			Timeout:    getEnvOrDefaultDuration("NOTIFY_TIMEOUT", 5*time.Second),
		},
		Cache: CacheConfig{
			Driver:     strings.ToLower(getEnvOrDefault("CACHE_DRIVER", "memory")),
			TTL:        getEnvOrDefaultDuration("CACHE_TTL", 10*time.Minute),
			MaxEntries: getEnvOrDefaultInt("CACHE_MAX_ENTRIES", 1024),
		},
		Jobs: JobsConfig{
			AuditVerifySchedule: getEnvOrDefault("AUDIT_VERIFY_SCHEDULE", "@every 15m"),
			AuditVerifyLookback: getEnvOrDefaultDuration("AUDIT_VERIFY_LOOKBACK", 24*time.Hour),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	switch c.Database.Driver {
	case "postgres":
		if c.Database.URL == "" {
			return ErrMissingDatabaseURL
		}
	case "memory":
	default:
		return ErrInvalidStoreDriver
	}

	switch c.Cache.Driver {
	case "memory":
	case "redis":
		if c.Redis.URL == "" {
			return fmt.Errorf("REDIS_URL is required when CACHE_DRIVER=redis")
		}
	default:
		return ErrInvalidCacheDriver
	}

	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("CACHE_MAX_ENTRIES must be positive")
	}
	if c.Notify.Workers <= 0 || c.Notify.BufferSize <= 0 {
		return fmt.Errorf("NOTIFY_WORKERS and NOTIFY_BUFFER_SIZE must be positive")
	}

	if c.IsProduction() {
		if c.Security.JWTSecret == "" || c.Security.JWTSecret == defaultJWTSecret {
			return ErrMissingJWTSecret
		}
		if c.Security.AllowUserHeader {
			return ErrHeaderAuthInProd
		}
	}

	return nil
}

// IsProduction checks if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// Address returns the listen address
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// RateLimitEnabled reports whether autosave throttling has a backend
func (c *Config) RateLimitEnabled() bool {
	return c.Redis.URL != "" && c.Security.AutosaveLimit > 0
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefaultBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

func getEnvOrDefaultDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func parseList(value string) []string {
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	res := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			res = append(res, p)
		}
	}
	return res
}
