package logger

import (
	"sync"

	"github.com/mstgnz/oxipay/infra/config"
)

var (
	globalLogger *SystemLogger
	once         sync.Once
	mu           sync.Mutex
)

// InitGlobalLogger initializes the global system logger. eventWriter may be nil.
func InitGlobalLogger(eventWriter SystemEventWriter, logFile string) {
	once.Do(func() {
		cfg := SystemLoggerConfig{
			EnableConsole:    true,
			EnableOpenSearch: eventWriter != nil,
			MinLevel:         LogLevel(config.GetEnv("LOGGING_LEVEL", string(LevelInfo))),
			Service:          "oxipay",
			Version:          "1.0.0",
			Environment:      config.GetEnv("ENVIRONMENT", "development"),
			FilePath:         logFile,
		}

		if cfg.Environment == "development" {
			cfg.MinLevel = LevelDebug
		}

		mu.Lock()
		globalLogger = NewSystemLogger(eventWriter, cfg)
		mu.Unlock()
	})
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *SystemLogger {
	mu.Lock()
	defer mu.Unlock()
	if globalLogger == nil {
		// console-only until InitGlobalLogger runs
		globalLogger = NewSystemLogger(nil, SystemLoggerConfig{
			EnableConsole: true,
			MinLevel:      LevelInfo,
			Service:       "oxipay",
			Version:       "1.0.0",
			Environment:   "development",
		})
	}
	return globalLogger
}

// Debug logs a debug message using the global logger
func Debug(message string, ctx ...LogContext) {
	GetGlobalLogger().Debug(message, ctx...)
}

// Info logs an info message using the global logger
func Info(message string, ctx ...LogContext) {
	GetGlobalLogger().Info(message, ctx...)
}

// Warn logs a warning message using the global logger
func Warn(message string, ctx ...LogContext) {
	GetGlobalLogger().Warn(message, ctx...)
}

// Error logs an error message using the global logger
func Error(message string, err error, ctx ...LogContext) {
	GetGlobalLogger().Error(message, err, ctx...)
}

// Fatal logs a fatal message using the global logger and exits
func Fatal(message string, err error, ctx ...LogContext) {
	GetGlobalLogger().Fatal(message, err, ctx...)
}

// WithContext creates a context logger from the global logger
func WithContext(ctx LogContext) *ContextLogger {
	return GetGlobalLogger().WithContext(ctx)
}

// WithSession creates a context logger for a checkout session
func WithSession(sessionRef string) *ContextLogger {
	return WithContext(LogContext{SessionRef: sessionRef})
}
