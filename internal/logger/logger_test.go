package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apiward/apiward/internal/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  config.LoggerConfig
		wantErr bool
	}{
		{
			name: "valid json config",
			config: config.LoggerConfig{
				Level:  "debug",
				Format: "json",
			},
			wantErr: false,
		},
		{
			name: "valid console config",
			config: config.LoggerConfig{
				Level:  "info",
				Format: "console",
			},
			wantErr: false,
		},
		{
			name: "invalid level",
			config: config.LoggerConfig{
				Level:  "invalid",
				Format: "json",
			},
			wantErr: true,
		},
		{
			name:    "empty config uses defaults",
			config:  config.LoggerConfig{},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, logger)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, logger)
			}
		})
	}
}

func TestLoggerMethods(t *testing.T) {
	logger, err := New(config.LoggerConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)

	logger.Info("test info message")
	logger.Infow("test structured info", "key", "value", "number", 42)
	logger.Debugw("test structured debug", "key", "value")
	logger.Warnw("test structured warn", "key", "value")
	logger.Errorw("test structured error", "key", "value")
}

func TestWithContext(t *testing.T) {
	logger, err := New(config.LoggerConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)

	// No recording span: WithContext should hand back the same logger.
	ctx := context.Background()
	contextLogger := logger.WithContext(ctx)
	assert.Same(t, logger, contextLogger)
	contextLogger.Info("test with context")
}

func TestStartOperation(t *testing.T) {
	logger, err := New(config.LoggerConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)

	ctx := context.Background()
	newCtx, span := logger.StartOperation(ctx, "test.operation", "key1", "value1")

	assert.NotNil(t, newCtx)
	assert.NotNil(t, span)

	logger.FinishOperation(newCtx, span, "test.operation", time.Now(), nil)
}

func TestFinishOperationWithError(t *testing.T) {
	logger, err := New(config.LoggerConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)

	ctx, span := logger.StartOperation(context.Background(), "test.failing")
	logger.FinishOperation(ctx, span, "test.failing", time.Now(), errors.New("boom"))
}

func TestWithFields(t *testing.T) {
	logger, err := New(config.LoggerConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)

	fieldLogger := logger.WithFields("component", "test", "version", "1.0")
	assert.NotNil(t, fieldLogger)
	fieldLogger.Info("test from field logger")
}

func TestScopedLoggers(t *testing.T) {
	logger, err := New(config.LoggerConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)

	assert.NotNil(t, logger.WithComponent("scanner"))
	assert.NotNil(t, logger.WithTarget("https://example.com"))
	assert.NotNil(t, logger.WithScanID("api-12345"))
}

func TestLogHelpers(t *testing.T) {
	logger, err := New(config.LoggerConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)

	ctx := context.Background()
	logger.LogHTTPRequest(ctx, "GET", "https://example.com/api", 200, 15*time.Millisecond)
	logger.LogHTTPRequest(ctx, "POST", "https://example.com/api", 503, 20*time.Millisecond)
	logger.LogFinding(ctx, "pii_exposure", "high", "https://example.com/api/users", "email addresses in response")
	logger.LogFinding(ctx, "security_header", "medium", "https://example.com/api", "missing X-Frame-Options")
	logger.LogScanProgress(ctx, "api-12345", 3, 10, "batch complete")
	logger.LogDuration(ctx, "probe", time.Now())
	logger.LogError(ctx, errors.New("connection refused"), "probe")
	logger.LogError(ctx, nil, "probe")
}

func TestFromContext(t *testing.T) {
	logger, err := New(config.LoggerConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)

	ctx := WithLogger(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))

	// Missing logger falls back to a usable default.
	fallback := FromContext(context.Background())
	assert.NotNil(t, fallback)
}

func TestSync(t *testing.T) {
	logger, err := New(config.LoggerConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)

	// Sync can return an error for stdout in test environments; it must not
	// panic.
	_ = logger.Sync()
}

func TestLoggerConcurrency(t *testing.T) {
	logger, err := New(config.LoggerConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func(id int) {
			logger.Infow("concurrent log", "goroutine", id)
			done <- true
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}
}
