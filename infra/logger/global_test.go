package logger

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func resetGlobal() {
	mu.Lock()
	globalLogger = nil
	mu.Unlock()
	once = sync.Once{}
}

func TestInitGlobalLogger(t *testing.T) {
	resetGlobal()
	defer resetGlobal()

	InitGlobalLogger(nil, "")

	assert.NotNil(t, globalLogger)
	assert.Equal(t, "oxipay", globalLogger.service)
	assert.Equal(t, "1.0.0", globalLogger.version)
	assert.False(t, globalLogger.enableOpenSearch)
}

func TestGetGlobalLogger(t *testing.T) {
	resetGlobal()
	defer resetGlobal()

	logger := GetGlobalLogger()
	assert.NotNil(t, logger)
	assert.Equal(t, "oxipay", logger.service)
	assert.Same(t, logger, GetGlobalLogger())
}

func TestGlobalLoggerConvenienceFunctions(t *testing.T) {
	resetGlobal()
	defer resetGlobal()

	InitGlobalLogger(nil, "")
	globalLogger.enableConsole = false

	Debug("Debug message")
	Info("Info message")
	Warn("Warning message")
	Error("Error message", nil)

	ctx := LogContext{SessionRef: "Q1"}
	Debug("Debug with context", ctx)
	Info("Info with context", ctx)
	Warn("Warning with context", ctx)
	Error("Error with context", nil, ctx)
}

func TestWithSession(t *testing.T) {
	resetGlobal()
	defer resetGlobal()

	InitGlobalLogger(nil, "")

	contextLogger := WithSession("Q123")
	assert.NotNil(t, contextLogger)
	assert.Equal(t, "Q123", contextLogger.context.SessionRef)
}

func TestInitGlobalLogger_OnlyOnce(t *testing.T) {
	resetGlobal()
	defer resetGlobal()

	InitGlobalLogger(nil, "")
	firstLogger := globalLogger

	InitGlobalLogger(&mockEventWriter{}, "")
	assert.Same(t, firstLogger, globalLogger)
}

func TestGlobalLogger_EnvironmentConfiguration(t *testing.T) {
	resetGlobal()
	defer resetGlobal()
	t.Setenv("ENVIRONMENT", "development")

	InitGlobalLogger(nil, "")
	assert.Equal(t, LevelDebug, globalLogger.minLevel)
}

func TestGlobalLogger_ProductionLevel(t *testing.T) {
	resetGlobal()
	defer resetGlobal()
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("LOGGING_LEVEL", "warn")

	InitGlobalLogger(nil, "")
	assert.Equal(t, LevelWarn, globalLogger.minLevel)
}
