package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
	LogLevel    string `koanf:"log_level"`

	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`

	Auction   AuctionConfig   `koanf:"auction"`
	Security  SecurityConfig  `koanf:"security"`
	SMTP      SMTPConfig      `koanf:"smtp"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type ServerConfig struct {
	Address         string        `koanf:"address"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

type RedisConfig struct {
	URL          string        `koanf:"url"`
	Password     string        `koanf:"password"`
	DB           int           `koanf:"db"`
	PoolSize     int           `koanf:"pool_size"`
	MinIdleConns int           `koanf:"min_idle_conns"`
	MaxRetries   int           `koanf:"max_retries"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	Enabled      bool          `koanf:"enabled"`
	CacheTTL     time.Duration `koanf:"cache_ttl"`
}

// AuctionConfig tunes the bidding engine and lifecycle scheduler.
type AuctionConfig struct {
	// LockWait bounds how long a bid placement waits for the per-auction
	// lock before failing with BUSY.
	LockWait time.Duration `koanf:"lock_wait"`
	// ConflictRetries bounds how many times a conflicting conditional
	// write is retried before surfacing BUSY.
	ConflictRetries int `koanf:"conflict_retries"`
	// SweepInterval is the lifecycle scheduler period.
	SweepInterval time.Duration `koanf:"sweep_interval"`
	// DefaultCurrency applies to auctions created without one.
	DefaultCurrency string `koanf:"default_currency"`
	// DefaultPageSize and MaxPageSize bound listing pagination.
	DefaultPageSize int `koanf:"default_page_size"`
	MaxPageSize     int `koanf:"max_page_size"`
}

type SecurityConfig struct {
	JWTSecret   string          `koanf:"jwt_secret"`
	TokenExpiry time.Duration   `koanf:"token_expiry"`
	Issuer      string          `koanf:"issuer"`
	RateLimit   RateLimitConfig `koanf:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `koanf:"requests_per_second"`
	Burst             int `koanf:"burst"`
}

type SMTPConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	From     string `koanf:"from"`
	Enabled  bool   `koanf:"enabled"`
}

type TelemetryConfig struct {
	Enabled       bool          `koanf:"enabled"`
	OTLPEndpoint  string        `koanf:"otlp_endpoint"`
	SamplingRate  float64       `koanf:"sampling_rate"`
	ExportTimeout time.Duration `koanf:"export_timeout"`
	BatchTimeout  time.Duration `koanf:"batch_timeout"`
}

// Load reads configuration from defaults, an optional YAML file, and
// BIDHAUS_-prefixed environment variables, in that precedence order.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		Server: ServerConfig{
			Address:         ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			URL:          "localhost:6379",
			DB:           0,
			PoolSize:     10,
			MinIdleConns: 5,
			MaxRetries:   3,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			Enabled:      true,
			CacheTTL:     5 * time.Second,
		},
		Auction: AuctionConfig{
			LockWait:        3 * time.Second,
			ConflictRetries: 3,
			SweepInterval:   time.Minute,
			DefaultCurrency: "USD",
			DefaultPageSize: 15,
			MaxPageSize:     100,
		},
		Security: SecurityConfig{
			TokenExpiry: 24 * time.Hour,
			Issuer:      "bidhaus",
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 100,
				Burst:             200,
			},
		},
		SMTP: SMTPConfig{
			Port: 587,
		},
		Telemetry: TelemetryConfig{
			Enabled:       false,
			OTLPEndpoint:  "localhost:4317",
			SamplingRate:  1.0,
			ExportTimeout: 30 * time.Second,
			BatchTimeout:  5 * time.Second,
		},
	}

	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path == "" {
		path = "configs/config.yaml"
	}
	// Config file is optional
	_ = k.Load(file.Provider(path), yaml.Parser())

	if err := k.Load(env.Provider("BIDHAUS_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "BIDHAUS_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Auction.LockWait <= 0 {
		return fmt.Errorf("auction.lock_wait must be positive")
	}
	if c.Auction.ConflictRetries < 1 {
		return fmt.Errorf("auction.conflict_retries must be at least 1")
	}
	if c.Auction.SweepInterval <= 0 {
		return fmt.Errorf("auction.sweep_interval must be positive")
	}
	if c.Auction.MaxPageSize < c.Auction.DefaultPageSize {
		return fmt.Errorf("auction.max_page_size must be at least the default page size")
	}
	return nil
}
