package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	CORS     CORSConfig
	Ledger   LedgerConfig
	Payments PaymentsConfig
	Events   EventsConfig
	Cache    CacheConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string
	Env  string
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	PoolMin  int
	PoolMax  int
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	Origins []string
}

// LedgerConfig holds violation ledger settings.
type LedgerConfig struct {
	// GraceDays is the minimum number of days between a violation and its due date.
	GraceDays int
}

// PaymentsConfig holds payment gateway credentials and outbound call tuning.
// A gateway whose secret key is empty is not registered.
type PaymentsConfig struct {
	CallbackURL string
	Currency    string

	PaystackSecretKey string
	PaystackBaseURL   string

	FlutterwaveSecretKey     string
	FlutterwaveWebhookSecret string
	FlutterwaveBaseURL       string

	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
}

// EventsConfig holds domain event publishing configuration.
// With no brokers configured events are written to the log instead.
type EventsConfig struct {
	Brokers []string
	Topic   string
}

// CacheConfig holds Redis configuration for the plate index cache.
// An empty URL disables caching.
type CacheConfig struct {
	RedisURL string
	PlateTTL time.Duration
}

// Load reads configuration from environment variables.
// It uses viper to read values and provides sensible defaults for development.
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults for development
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_NAME", "roadwarden")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_POOL_MIN", 2)
	v.SetDefault("DB_POOL_MAX", 10)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000,http://localhost:3001")
	v.SetDefault("VIOLATION_GRACE_DAYS", 30)
	v.SetDefault("PAYMENT_CALLBACK_URL", "http://localhost:3000/payments/callback")
	v.SetDefault("PAYMENT_CURRENCY", "NGN")
	v.SetDefault("PAYSTACK_BASE_URL", "https://api.paystack.co")
	v.SetDefault("FLUTTERWAVE_BASE_URL", "https://api.flutterwave.com/v3")
	v.SetDefault("GATEWAY_TIMEOUT", "15s")
	v.SetDefault("GATEWAY_MAX_RETRIES", 2)
	v.SetDefault("GATEWAY_INITIAL_BACKOFF", "200ms")
	v.SetDefault("KAFKA_TOPIC", "roadwarden.events")
	v.SetDefault("PLATE_CACHE_TTL", "5m")

	// Bind environment variables
	v.AutomaticEnv()

	// Build configuration
	cfg := &Config{
		Server: ServerConfig{
			Port: v.GetString("PORT"),
			Env:  v.GetString("ENV"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			Name:     v.GetString("DB_NAME"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			PoolMin:  v.GetInt("DB_POOL_MIN"),
			PoolMax:  v.GetInt("DB_POOL_MAX"),
		},
		CORS: CORSConfig{
			Origins: parseList(v.GetString("CORS_ORIGINS")),
		},
		Ledger: LedgerConfig{
			GraceDays: v.GetInt("VIOLATION_GRACE_DAYS"),
		},
		Payments: PaymentsConfig{
			CallbackURL:              v.GetString("PAYMENT_CALLBACK_URL"),
			Currency:                 v.GetString("PAYMENT_CURRENCY"),
			PaystackSecretKey:        v.GetString("PAYSTACK_SECRET_KEY"),
			PaystackBaseURL:          v.GetString("PAYSTACK_BASE_URL"),
			FlutterwaveSecretKey:     v.GetString("FLUTTERWAVE_SECRET_KEY"),
			FlutterwaveWebhookSecret: v.GetString("FLUTTERWAVE_WEBHOOK_SECRET"),
			FlutterwaveBaseURL:       v.GetString("FLUTTERWAVE_BASE_URL"),
			Timeout:                  v.GetDuration("GATEWAY_TIMEOUT"),
			MaxRetries:               v.GetInt("GATEWAY_MAX_RETRIES"),
			InitialBackoff:           v.GetDuration("GATEWAY_INITIAL_BACKOFF"),
		},
		Events: EventsConfig{
			Brokers: parseList(v.GetString("KAFKA_BROKERS")),
			Topic:   v.GetString("KAFKA_TOPIC"),
		},
		Cache: CacheConfig{
			RedisURL: v.GetString("REDIS_URL"),
			PlateTTL: v.GetDuration("PLATE_CACHE_TTL"),
		},
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	// Validate database config
	if c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if c.Database.Port == "" {
		return fmt.Errorf("DB_PORT is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("DB_NAME is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("DB_USER is required")
	}
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.Database.PoolMin < 0 {
		return fmt.Errorf("DB_POOL_MIN must be non-negative")
	}
	if c.Database.PoolMax < 1 {
		return fmt.Errorf("DB_POOL_MAX must be at least 1")
	}
	if c.Database.PoolMin > c.Database.PoolMax {
		return fmt.Errorf("DB_POOL_MIN must be less than or equal to DB_POOL_MAX")
	}

	// Validate CORS config
	if len(c.CORS.Origins) == 0 {
		return fmt.Errorf("CORS_ORIGINS is required")
	}

	if c.Ledger.GraceDays < 1 {
		return fmt.Errorf("VIOLATION_GRACE_DAYS must be at least 1")
	}

	// Validate payment gateway config
	if c.Payments.Currency == "" {
		return fmt.Errorf("PAYMENT_CURRENCY is required")
	}
	if c.Payments.Timeout <= 0 {
		return fmt.Errorf("GATEWAY_TIMEOUT must be positive")
	}
	if c.Payments.MaxRetries < 0 {
		return fmt.Errorf("GATEWAY_MAX_RETRIES must be non-negative")
	}
	if c.Payments.FlutterwaveSecretKey != "" && c.Payments.FlutterwaveWebhookSecret == "" {
		return fmt.Errorf("FLUTTERWAVE_WEBHOOK_SECRET is required when FLUTTERWAVE_SECRET_KEY is set")
	}

	if len(c.Events.Brokers) > 0 && c.Events.Topic == "" {
		return fmt.Errorf("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	return nil
}

// parseList splits a comma-separated string into a slice of trimmed, non-empty values.
func parseList(values string) []string {
	if values == "" {
		return []string{}
	}

	parts := strings.Split(values, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
