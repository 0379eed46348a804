package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "console", cfg.Logger.Format)
	assert.Contains(t, cfg.Logger.OutputPaths, "stdout")

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Empty(t, cfg.Database.DSN, "result store is opt-in")

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 3, cfg.Redis.MaxRetries)

	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "apiward", cfg.Telemetry.ServiceName)
}

func TestDefaultScannerConfig(t *testing.T) {
	cfg := DefaultConfig().Scanner

	assert.Equal(t, 50, cfg.MaxEndpoints)
	assert.Equal(t, 5, cfg.BatchSize)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, 500*time.Millisecond, cfg.BatchPause)
	assert.Equal(t, 5, cfg.CheckpointEvery)
	assert.Equal(t, 24*time.Hour, cfg.CheckpointTTL)
	assert.True(t, cfg.VerifyTLS)
	assert.Equal(t, "Netherlands", cfg.Region)
}

func TestDefaultRateLimitConfig(t *testing.T) {
	cfg := DefaultConfig().RateLimit

	assert.Equal(t, 100*time.Millisecond, cfg.BaseDelay)
	assert.Equal(t, 10*time.Second, cfg.MaxDelay)
	assert.Equal(t, 5, cfg.MaxRetries)
}
