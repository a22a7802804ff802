package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Env string

	// Database configuration
	Database DatabaseConfig

	// Server configuration
	Server ServerConfig

	// Security configuration
	Security SecurityConfig

	// CORS configuration
	CORS CORSConfig

	// Logging configuration
	Logging LoggingConfig

	Kafka    KafkaConfig
	Redis    RedisConfig
	Payments PaymentsConfig
	Waitlist WaitlistConfig

	// SeedDemoData loads sample events on startup.
	SeedDemoData bool
}

// DatabaseConfig holds database connection settings. An empty URL selects
// the in-memory store.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration // how long startup waits for the database
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port int
	Host string
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SecurityConfig holds security-related settings
type SecurityConfig struct {
	JWTSecret string
	JWTExpiry time.Duration
}

// CORSConfig holds CORS settings
type CORSConfig struct {
	AllowedOrigins []string
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, text
}

// KafkaConfig controls the notification producer.
type KafkaConfig struct {
	Enabled            bool
	Brokers            []string
	NotificationsTopic string
}

// RedisConfig points at the webhook de-duplication store. An empty Addr
// keeps delivery ids in process memory.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// PaymentsConfig holds the payment provider webhook settings.
type PaymentsConfig struct {
	WebhookSecret string
}

// WaitlistConfig selects what happens to notified entries whose window lapsed.
type WaitlistConfig struct {
	ExpiryPolicy string // keep, expire, requeue
}

// Load reads .env files when present and then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	_ = godotenv.Load("config/local.env")

	cfg := &Config{
		Env: strings.ToLower(getEnvOrDefault("ENV", "development")),
	}
	if err := cfg.loadDatabase(); err != nil {
		return nil, fmt.Errorf("load database config: %w", err)
	}
	if err := cfg.loadServer(); err != nil {
		return nil, fmt.Errorf("load server config: %w", err)
	}
	if err := cfg.loadSecurity(); err != nil {
		return nil, fmt.Errorf("load security config: %w", err)
	}
	if err := cfg.loadRedis(); err != nil {
		return nil, fmt.Errorf("load redis config: %w", err)
	}
	cfg.loadCORS()
	cfg.loadLogging()
	cfg.loadKafka()

	cfg.Payments.WebhookSecret = os.Getenv("PAYMENT_WEBHOOK_SECRET")
	cfg.Waitlist.ExpiryPolicy = strings.ToLower(getEnvOrDefault("WAITLIST_EXPIRY_POLICY", "keep"))
	cfg.SeedDemoData = parseBool(os.Getenv("SEED_DEMO_DATA"))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadDatabase() error {
	c.Database.URL = os.Getenv("DATABASE_URL")

	var err error
	if c.Database.MaxOpenConns, err = strconv.Atoi(getEnvOrDefault("DB_MAX_OPEN_CONNS", "20")); err != nil {
		return fmt.Errorf("invalid DB_MAX_OPEN_CONNS: %w", err)
	}
	if c.Database.MaxIdleConns, err = strconv.Atoi(getEnvOrDefault("DB_MAX_IDLE_CONNS", "5")); err != nil {
		return fmt.Errorf("invalid DB_MAX_IDLE_CONNS: %w", err)
	}
	if c.Database.ConnMaxLifetime, err = time.ParseDuration(getEnvOrDefault("DB_CONN_MAX_LIFETIME", "30m")); err != nil {
		return fmt.Errorf("invalid DB_CONN_MAX_LIFETIME: %w", err)
	}
	if c.Database.ConnectTimeout, err = time.ParseDuration(getEnvOrDefault("DB_CONNECT_TIMEOUT", "30s")); err != nil {
		return fmt.Errorf("invalid DB_CONNECT_TIMEOUT: %w", err)
	}
	return nil
}

func (c *Config) loadServer() error {
	portStr := getEnvOrDefault("PORT", "8080")
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid PORT: %w", err)
	}
	c.Server.Port = port
	c.Server.Host = getEnvOrDefault("HOST", "0.0.0.0")
	return nil
}

func (c *Config) loadSecurity() error {
	c.Security.JWTSecret = os.Getenv("JWT_SECRET")

	expiry, err := time.ParseDuration(getEnvOrDefault("JWT_EXPIRY", "24h"))
	if err != nil {
		return fmt.Errorf("invalid JWT_EXPIRY: %w", err)
	}
	c.Security.JWTExpiry = expiry
	return nil
}

func (c *Config) loadRedis() error {
	c.Redis.Addr = os.Getenv("REDIS_ADDR")
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")

	db, err := strconv.Atoi(getEnvOrDefault("REDIS_DB", "0"))
	if err != nil {
		return fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	c.Redis.DB = db
	return nil
}

func (c *Config) loadCORS() {
	originsEnv := os.Getenv("CORS_ALLOWED_ORIGINS")
	if originsEnv != "" {
		c.CORS.AllowedOrigins = splitList(originsEnv)
	} else {
		// Default for local development
		c.CORS.AllowedOrigins = []string{
			"http://localhost:3000",
			"http://localhost:5173",
		}
	}
}

func (c *Config) loadLogging() {
	c.Logging.Level = getEnvOrDefault("LOG_LEVEL", "info")
	c.Logging.Format = getEnvOrDefault("LOG_FORMAT", "json")
}

func (c *Config) loadKafka() {
	c.Kafka.Enabled = parseBool(os.Getenv("KAFKA_ENABLED"))
	c.Kafka.Brokers = splitList(getEnvOrDefault("KAFKA_BROKERS", "localhost:9092"))
	c.Kafka.NotificationsTopic = getEnvOrDefault("KAFKA_TOPIC_NOTIFICATIONS", "nightlife.notifications")
}

// Validate checks that all required configuration is present and valid
func (c *Config) Validate() error {
	var errors []string

	if c.Database.URL == "" && c.IsProduction() {
		errors = append(errors, "DATABASE_URL is required in production")
	}
	if c.Database.MaxOpenConns < 1 {
		errors = append(errors, "DB_MAX_OPEN_CONNS must be positive")
	}
	if c.Database.MaxIdleConns < 0 || c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		errors = append(errors, "DB_MAX_IDLE_CONNS must be between 0 and DB_MAX_OPEN_CONNS")
	}
	if c.Database.ConnectTimeout <= 0 {
		errors = append(errors, "DB_CONNECT_TIMEOUT must be positive")
	}

	// Validate security configuration
	if len(c.Security.JWTSecret) < 16 {
		errors = append(errors, "JWT_SECRET must be at least 16 characters")
	}
	if c.Security.JWTExpiry <= 0 {
		errors = append(errors, "JWT_EXPIRY must be positive")
	}
	if c.Payments.WebhookSecret == "" && c.IsProduction() {
		errors = append(errors, "PAYMENT_WEBHOOK_SECRET is required in production")
	}

	// Validate server configuration
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errors = append(errors, "PORT must be between 1 and 65535")
	}

	// Validate logging configuration
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		errors = append(errors, "LOG_LEVEL must be one of: debug, info, warn, error")
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		errors = append(errors, "LOG_FORMAT must be one of: json, text")
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errors = append(errors, "KAFKA_BROKERS is required when KAFKA_ENABLED is set")
	}

	validPolicies := map[string]bool{"keep": true, "expire": true, "requeue": true}
	if !validPolicies[c.Waitlist.ExpiryPolicy] {
		errors = append(errors, "WAITLIST_EXPIRY_POLICY must be one of: keep, expire, requeue")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "" || c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// getEnvOrDefault returns the environment variable value or a default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseBool(raw string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	return err == nil && v
}
