package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `env:",prefix=SERVER_"`

	// Database configuration
	Database DatabaseConfig `env:",prefix=DB_"`

	// Redis configuration, used by the first-login event queue
	Redis RedisConfig `env:",prefix=REDIS_"`

	// Application configuration
	App AppConfig `env:",prefix=APP_"`

	// Promotion rules
	Promotion PromotionConfig `env:",prefix=PROMO_"`

	// Simulated payment gateway
	Payment PaymentConfig `env:",prefix=PAYMENT_"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string `env:"PORT,default=8080"`
	Host           string `env:"HOST,default=0.0.0.0"`
	ReadTimeout    int    `env:"READ_TIMEOUT,default=30"`    // seconds
	WriteTimeout   int    `env:"WRITE_TIMEOUT,default=30"`   // seconds
	RequestTimeout int    `env:"REQUEST_TIMEOUT,default=10"` // seconds, bounds each RPC and queued enrollment
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host          string `env:"HOST,default=localhost"`
	Port          string `env:"PORT,default=5432"`
	User          string `env:"USER,default=postgres"`
	Password      string `env:"PASSWORD,default=postgres"`
	Name          string `env:"NAME,default=promotion"`
	SSLMode       string `env:"SSL_MODE,default=disable"`
	MaxConns      int    `env:"MAX_CONNS,default=25"`
	MinConns      int    `env:"MIN_CONNS,default=5"`
	LockTimeoutMS int    `env:"LOCK_TIMEOUT_MS,default=5000"`
	AutoMigrate   bool   `env:"AUTO_MIGRATE,default=true"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr     string `env:"ADDR,default=localhost:6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB,default=0"`
	PoolSize int    `env:"POOL_SIZE,default=10"`
}

// AppConfig holds application-specific configuration
type AppConfig struct {
	Environment  string `env:"ENVIRONMENT,default=development"`
	LogLevel     string `env:"LOG_LEVEL,default=info"`
	Debug        bool   `env:"DEBUG,default=false"`
	Name         string `env:"NAME,default=promotion"`
	Storage      string `env:"STORAGE,default=postgres"`    // postgres or memory
	SeedCampaign bool   `env:"SEED_CAMPAIGN,default=false"` // create a demo campaign at startup if none is active
}

// PromotionConfig holds the first-login promotion rules
type PromotionConfig struct {
	VoucherThreshold int32  `env:"VOUCHER_THRESHOLD,default=100"`
	CodePrefix       string `env:"CODE_PREFIX,default=CAKE-"`
	CodeAttempts     int    `env:"CODE_ATTEMPTS,default=5"`
}

// PaymentConfig tunes the simulated payment gateway
type PaymentConfig struct {
	SuccessRate float64 `env:"SUCCESS_RATE,default=0.95"`
	LatencyMS   int     `env:"LATENCY_MS,default=100"`
}

// Load loads configuration from environment variables
func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the promotion core cannot run with
func (c *Config) Validate() error {
	switch c.App.Storage {
	case StoragePostgres, StorageMemory:
	default:
		return fmt.Errorf("invalid APP_STORAGE %q: want %s or %s", c.App.Storage, StoragePostgres, StorageMemory)
	}
	if c.Promotion.VoucherThreshold < 1 {
		return fmt.Errorf("PROMO_VOUCHER_THRESHOLD must be positive, got %d", c.Promotion.VoucherThreshold)
	}
	if c.Promotion.CodeAttempts < 1 {
		return fmt.Errorf("PROMO_CODE_ATTEMPTS must be positive, got %d", c.Promotion.CodeAttempts)
	}
	if c.Server.RequestTimeout < 1 {
		return fmt.Errorf("SERVER_REQUEST_TIMEOUT must be positive, got %d", c.Server.RequestTimeout)
	}
	if c.Payment.SuccessRate < 0 || c.Payment.SuccessRate > 1 {
		return fmt.Errorf("PAYMENT_SUCCESS_RATE must be within [0, 1], got %v", c.Payment.SuccessRate)
	}
	return nil
}

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// GetDatabaseURL returns the PostgreSQL connection URL
func (c *DatabaseConfig) GetDatabaseURL() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// LockTimeout returns the row lock wait bound
func (c *DatabaseConfig) LockTimeout() time.Duration {
	return time.Duration(c.LockTimeoutMS) * time.Millisecond
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// IsDevelopment returns true if running in development environment
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production environment
func (c *AppConfig) IsProduction() bool {
	return c.Environment == "production"
}
