package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/commercekit/cart-service/pkg/config"
)

// Config holds all configuration for the cart service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort      int  `env:"CART_HTTP_PORT" envDefault:"8003"`
	SecureCookies bool `env:"SECURE_COOKIES" envDefault:"false"`

	// Postgres
	PostgresHost     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER" envDefault:"cart"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" envDefault:"cart_secret"`
	PostgresDB       string `env:"POSTGRES_DB" envDefault:"cart"`
	PostgresSSLMode  string `env:"POSTGRES_SSLMODE" envDefault:"disable"`

	// Redis (cleanup gate)
	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Inventory service
	InventoryURL     string `env:"INVENTORY_URL" envDefault:"http://localhost:8005"`
	CheckStockLevels bool   `env:"CHECK_STOCK_LEVELS" envDefault:"false"`
	StockEnabled     bool   `env:"STOCK_ENABLED" envDefault:"true"`

	// Stale-cart cleanup
	CleanupCheckInterval time.Duration `env:"CLEANUP_CHECK_INTERVAL" envDefault:"1h"`
	CleanupRunInterval   time.Duration `env:"CLEANUP_RUN_INTERVAL" envDefault:"24h"`
	CartRetentionDays    int           `env:"CART_RETENTION_DAYS" envDefault:"30"`

	// Tracing
	TracingEnabled  bool    `env:"TRACING_ENABLED" envDefault:"false"`
	TracingEndpoint string  `env:"TRACING_ENDPOINT" envDefault:"localhost:4318"`
	TracingSample   float64 `env:"TRACING_SAMPLE_RATE" envDefault:"1.0"`

	// Pprof access allowlist
	PprofCIDRs []string `env:"PPROF_CIDRS" envDefault:"127.0.0.1/32" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load cart config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.CartRetentionDays < 1 {
		return fmt.Errorf("cart retention must be at least 1 day, got %d", c.CartRetentionDays)
	}
	if c.CleanupCheckInterval <= 0 || c.CleanupRunInterval <= 0 {
		return fmt.Errorf("cleanup intervals must be positive")
	}
	return nil
}
