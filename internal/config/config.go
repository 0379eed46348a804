package config

import (
	"time"
)

type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Scanner   ScannerConfig   `mapstructure:"scanner"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Enrich    EnrichConfig    `mapstructure:"enrich"`
}

type LoggerConfig struct {
	Level       string   `mapstructure:"level"`
	Format      string   `mapstructure:"format"`
	OutputPaths []string `mapstructure:"output_paths"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	MaxRetries   int           `mapstructure:"max_retries"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type TelemetryConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	ServiceName  string  `mapstructure:"service_name"`
	ExporterType string  `mapstructure:"exporter_type"`
	Endpoint     string  `mapstructure:"endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate"`
}

// ScannerConfig carries the probe-level defaults. Per-scan options override
// these at the call site.
type ScannerConfig struct {
	MaxEndpoints    int           `mapstructure:"max_endpoints"`
	Timeout         time.Duration `mapstructure:"timeout"`
	Delay           time.Duration `mapstructure:"delay"`
	BatchSize       int           `mapstructure:"batch_size"`
	Workers         int           `mapstructure:"workers"`
	BatchPause      time.Duration `mapstructure:"batch_pause"`
	FollowRedirects bool          `mapstructure:"follow_redirects"`
	VerifyTLS       bool          `mapstructure:"verify_tls"`
	Region          string        `mapstructure:"region"`
	UserAgent       string        `mapstructure:"user_agent"`
	CheckpointEvery int           `mapstructure:"checkpoint_every"`
	CheckpointTTL   time.Duration `mapstructure:"checkpoint_ttl"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	BurstSize         int           `mapstructure:"burst_size"`
	BaseDelay         time.Duration `mapstructure:"base_delay"`
	MaxDelay          time.Duration `mapstructure:"max_delay"`
	MaxRetries        int           `mapstructure:"max_retries"`
}

type EnrichConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DefaultConfig returns the programmatic defaults. Flags and APIWARD_* env
// vars override these through viper in cmd/root.go.
func DefaultConfig() *Config {
	return &Config{
		Logger: LoggerConfig{
			Level:       "info",
			Format:      "console",
			OutputPaths: []string{"stdout"},
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			DSN:             "",
			MaxConnections:  25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 1 * time.Hour,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			DB:           0,
			MaxRetries:   3,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			ServiceName:  "apiward",
			ExporterType: "otlp",
			Endpoint:     "localhost:4318",
			SampleRate:   1.0,
		},
		Scanner: ScannerConfig{
			MaxEndpoints:    50,
			Timeout:         10 * time.Second,
			Delay:           100 * time.Millisecond,
			BatchSize:       5,
			Workers:         3,
			BatchPause:      500 * time.Millisecond,
			FollowRedirects: true,
			VerifyTLS:       true,
			Region:          "Netherlands",
			UserAgent:       "apiward-api-scanner/1.0",
			CheckpointEvery: 5,
			CheckpointTTL:   24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 10,
			BurstSize:         20,
			BaseDelay:         100 * time.Millisecond,
			MaxDelay:          10 * time.Second,
			MaxRetries:        5,
		},
		Enrich: EnrichConfig{
			Enabled: false,
			Timeout: 15 * time.Second,
		},
	}
}
