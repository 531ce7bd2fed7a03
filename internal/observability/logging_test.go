package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/spec-kit/queue-service/internal/config"
)

func TestLoggerConfigProduction(t *testing.T) {
	app := config.AppConfig{Name: "queue-service", Env: "production", Version: "1.4.0"}
	cfg := loggerConfig(app, config.LoggerConfig{Level: "WARN"})

	assert.False(t, cfg.Development)
	assert.NotNil(t, cfg.Sampling)
	assert.Equal(t, "json", cfg.Encoding)
	assert.Equal(t, zapcore.WarnLevel, cfg.Level.Level())
	assert.Equal(t, map[string]any{"service": "queue-service", "env": "production", "version": "1.4.0"}, cfg.InitialFields)
}

func TestLoggerConfigDevelopment(t *testing.T) {
	cfg := loggerConfig(config.AppConfig{Env: "development"}, config.LoggerConfig{Level: "bogus", Format: "console"})

	assert.True(t, cfg.Development)
	assert.Nil(t, cfg.Sampling)
	assert.Equal(t, "console", cfg.Encoding)
	assert.Equal(t, zapcore.InfoLevel, cfg.Level.Level())
}

func TestNewLoggerBuilds(t *testing.T) {
	logger, err := NewLogger(config.AppConfig{Env: "production"}, config.LoggerConfig{Level: "info"}, "worker")
	require.NoError(t, err)
	assert.NotNil(t, logger)
}
