package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_WithDefaults(t *testing.T) {
	// Clear all environment variables
	clearConfigEnvVars()

	// Set only required env var (password has no default)
	os.Setenv("DB_PASSWORD", "testpass")
	defer os.Unsetenv("DB_PASSWORD")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// Verify defaults
	if cfg.Server.Port != "8080" {
		t.Errorf("Expected port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.Env != "development" {
		t.Errorf("Expected env development, got %s", cfg.Server.Env)
	}
	if cfg.Database.Host != "localhost" {
		t.Errorf("Expected host localhost, got %s", cfg.Database.Host)
	}
	if cfg.Database.Name != "roadwarden" {
		t.Errorf("Expected db name roadwarden, got %s", cfg.Database.Name)
	}
	if cfg.Database.PoolMin != 2 {
		t.Errorf("Expected pool min 2, got %d", cfg.Database.PoolMin)
	}
	if cfg.Database.PoolMax != 10 {
		t.Errorf("Expected pool max 10, got %d", cfg.Database.PoolMax)
	}
	if len(cfg.CORS.Origins) != 2 {
		t.Errorf("Expected 2 CORS origins, got %d", len(cfg.CORS.Origins))
	}
	if cfg.Ledger.GraceDays != 30 {
		t.Errorf("Expected 30 grace days, got %d", cfg.Ledger.GraceDays)
	}
	if cfg.Payments.Currency != "NGN" {
		t.Errorf("Expected currency NGN, got %s", cfg.Payments.Currency)
	}
	if cfg.Payments.Timeout != 15*time.Second {
		t.Errorf("Expected gateway timeout 15s, got %s", cfg.Payments.Timeout)
	}
	if cfg.Payments.InitialBackoff != 200*time.Millisecond {
		t.Errorf("Expected initial backoff 200ms, got %s", cfg.Payments.InitialBackoff)
	}
	if cfg.Payments.PaystackSecretKey != "" {
		t.Error("Expected Paystack to be unconfigured by default")
	}
	if len(cfg.Events.Brokers) != 0 {
		t.Errorf("Expected no Kafka brokers, got %v", cfg.Events.Brokers)
	}
	if cfg.Cache.RedisURL != "" {
		t.Errorf("Expected no Redis URL, got %s", cfg.Cache.RedisURL)
	}
	if cfg.Cache.PlateTTL != 5*time.Minute {
		t.Errorf("Expected plate cache TTL 5m, got %s", cfg.Cache.PlateTTL)
	}
}

func TestLoad_WithEnvironmentVariables(t *testing.T) {
	// Set all environment variables
	os.Setenv("PORT", "9090")
	os.Setenv("ENV", "production")
	os.Setenv("DB_HOST", "db")
	os.Setenv("DB_PORT", "5433")
	os.Setenv("DB_NAME", "testdb")
	os.Setenv("DB_USER", "testuser")
	os.Setenv("DB_PASSWORD", "testpass")
	os.Setenv("DB_POOL_MIN", "5")
	os.Setenv("DB_POOL_MAX", "20")
	os.Setenv("CORS_ORIGINS", "http://example.com,https://app.example.com")
	os.Setenv("VIOLATION_GRACE_DAYS", "45")
	os.Setenv("PAYSTACK_SECRET_KEY", "sk_test_123")
	os.Setenv("FLUTTERWAVE_SECRET_KEY", "FLWSECK_TEST")
	os.Setenv("FLUTTERWAVE_WEBHOOK_SECRET", "whsec")
	os.Setenv("GATEWAY_TIMEOUT", "5s")
	os.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	os.Setenv("REDIS_URL", "redis://localhost:6379/0")
	defer clearConfigEnvVars()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// Verify all values from environment
	if cfg.Server.Port != "9090" {
		t.Errorf("Expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.Env != "production" {
		t.Errorf("Expected env production, got %s", cfg.Server.Env)
	}
	if cfg.Database.Host != "db" {
		t.Errorf("Expected host db, got %s", cfg.Database.Host)
	}
	if cfg.Database.PoolMax != 20 {
		t.Errorf("Expected pool max 20, got %d", cfg.Database.PoolMax)
	}
	if cfg.CORS.Origins[0] != "http://example.com" {
		t.Errorf("Expected first origin http://example.com, got %s", cfg.CORS.Origins[0])
	}
	if cfg.Ledger.GraceDays != 45 {
		t.Errorf("Expected 45 grace days, got %d", cfg.Ledger.GraceDays)
	}
	if cfg.Payments.PaystackSecretKey != "sk_test_123" {
		t.Errorf("Expected Paystack key from env, got %s", cfg.Payments.PaystackSecretKey)
	}
	if cfg.Payments.FlutterwaveWebhookSecret != "whsec" {
		t.Errorf("Expected Flutterwave webhook secret from env, got %s", cfg.Payments.FlutterwaveWebhookSecret)
	}
	if cfg.Payments.Timeout != 5*time.Second {
		t.Errorf("Expected gateway timeout 5s, got %s", cfg.Payments.Timeout)
	}
	if len(cfg.Events.Brokers) != 2 || cfg.Events.Brokers[1] != "kafka-2:9092" {
		t.Errorf("Expected two trimmed Kafka brokers, got %v", cfg.Events.Brokers)
	}
	if cfg.Cache.RedisURL != "redis://localhost:6379/0" {
		t.Errorf("Expected Redis URL from env, got %s", cfg.Cache.RedisURL)
	}
}

func TestLoad_MissingPassword(t *testing.T) {
	// Clear all environment variables (password has no default)
	clearConfigEnvVars()

	_, err := Load()
	if err == nil {
		t.Error("Expected error when DB_PASSWORD is missing")
	}
}

func TestValidate_InvalidPoolSizes(t *testing.T) {
	tests := []struct {
		name    string
		poolMin int
		poolMax int
		wantErr bool
	}{
		{name: "negative pool min", poolMin: -1, poolMax: 10, wantErr: true},
		{name: "zero pool max", poolMin: 0, poolMax: 0, wantErr: true},
		{name: "pool min greater than max", poolMin: 15, poolMax: 10, wantErr: true},
		{name: "valid pool sizes", poolMin: 2, poolMax: 10, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Database.PoolMin = tt.poolMin
			cfg.Database.PoolMax = tt.poolMax

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_MissingRequiredFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "missing port", mutate: func(c *Config) { c.Server.Port = "" }},
		{name: "missing db host", mutate: func(c *Config) { c.Database.Host = "" }},
		{name: "missing db password", mutate: func(c *Config) { c.Database.Password = "" }},
		{name: "missing CORS origins", mutate: func(c *Config) { c.CORS.Origins = []string{} }},
		{name: "zero grace days", mutate: func(c *Config) { c.Ledger.GraceDays = 0 }},
		{name: "missing currency", mutate: func(c *Config) { c.Payments.Currency = "" }},
		{name: "zero gateway timeout", mutate: func(c *Config) { c.Payments.Timeout = 0 }},
		{name: "negative retries", mutate: func(c *Config) { c.Payments.MaxRetries = -1 }},
		{
			name: "flutterwave without webhook secret",
			mutate: func(c *Config) {
				c.Payments.FlutterwaveSecretKey = "FLWSECK_TEST"
				c.Payments.FlutterwaveWebhookSecret = ""
			},
		},
		{
			name: "kafka brokers without topic",
			mutate: func(c *Config) {
				c.Events.Brokers = []string{"localhost:9092"}
				c.Events.Topic = ""
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error but got none")
			}
		})
	}
}

func TestParseList(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect []string
	}{
		{name: "single value", input: "http://localhost:3000", expect: []string{"http://localhost:3000"}},
		{name: "multiple values", input: "http://localhost:3000,http://localhost:3001", expect: []string{"http://localhost:3000", "http://localhost:3001"}},
		{name: "values with spaces", input: " kafka-1:9092 , kafka-2:9092 ", expect: []string{"kafka-1:9092", "kafka-2:9092"}},
		{name: "empty string", input: "", expect: []string{}},
		{name: "only commas", input: ",,,", expect: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseList(tt.input)
			if len(result) != len(tt.expect) {
				t.Errorf("Expected %d values, got %d", len(tt.expect), len(result))
				return
			}
			for i, value := range result {
				if value != tt.expect[i] {
					t.Errorf("Expected %s at index %d, got %s", tt.expect[i], i, value)
				}
			}
		})
	}
}

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: "8080", Env: "development"},
		Database: DatabaseConfig{
			Host: "localhost", Port: "5432", Name: "roadwarden",
			User: "postgres", Password: "postgres", PoolMin: 2, PoolMax: 10,
		},
		CORS:   CORSConfig{Origins: []string{"http://localhost:3000"}},
		Ledger: LedgerConfig{GraceDays: 30},
		Payments: PaymentsConfig{
			Currency:   "NGN",
			Timeout:    15 * time.Second,
			MaxRetries: 2,
		},
		Events: EventsConfig{Topic: "roadwarden.events"},
	}
}

// Helper function to clear all config-related environment variables
func clearConfigEnvVars() {
	for _, key := range []string{
		"PORT", "ENV", "DB_HOST", "DB_PORT", "DB_NAME", "DB_USER", "DB_PASSWORD",
		"DB_POOL_MIN", "DB_POOL_MAX", "CORS_ORIGINS", "VIOLATION_GRACE_DAYS",
		"PAYMENT_CALLBACK_URL", "PAYMENT_CURRENCY", "PAYSTACK_SECRET_KEY", "PAYSTACK_BASE_URL",
		"FLUTTERWAVE_SECRET_KEY", "FLUTTERWAVE_WEBHOOK_SECRET", "FLUTTERWAVE_BASE_URL",
		"GATEWAY_TIMEOUT", "GATEWAY_MAX_RETRIES", "GATEWAY_INITIAL_BACKOFF",
		"KAFKA_BROKERS", "KAFKA_TOPIC", "REDIS_URL", "PLATE_CACHE_TTL",
	} {
		os.Unsetenv(key)
	}
}
