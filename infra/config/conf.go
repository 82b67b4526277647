package config

import (
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/mstgnz/oxipay/infra/validate"
)

type CKey string

const RequestIDKey CKey = "request_id"

type Config struct {
	Validator  *validator.Validate
	InstanceID string
}

// AppConfig represents the application configuration
type AppConfig struct {
	Port          string `validate:"required,numeric"`
	AppURL        string `validate:"required,url"`
	Environment   string `validate:"oneof=development production test"`
	SQLitePath    string `validate:"required"`
	LockBackend   string `validate:"oneof=memory redis"`
	RedisAddr     string `validate:"required_if=LockBackend redis"`
	RedisPassword string
	// LockTTL is how long a crashed holder can block a session. A live holder re-arms it every LockTTL/3.
	LockTTL            time.Duration `validate:"min=1s"`
	OpenSearchURL      string        `validate:"omitempty,url"`
	OpenSearchUser     string
	OpenSearchPass     string
	EnableLogging      bool
	LoggingLevel       string `validate:"oneof=debug info warn error"`
	LogFile            string
	RateLimitPerMinute int `validate:"min=1"`
}

var (
	instance          *Config
	appConfigInstance *AppConfig
)

func App() *Config {
	if instance == nil {
		v := validator.New()
		if err := validate.CustomValidate(v); err != nil {
			panic(err)
		}
		instance = &Config{
			Validator: v,
			// identifies this process in lock tokens and event documents
			InstanceID: uuid.New().String(),
		}
	}
	return instance
}

// GetAppConfig returns the application configuration
func GetAppConfig() *AppConfig {
	if appConfigInstance == nil {
		appConfigInstance = &AppConfig{
			Port:               GetEnv("APP_PORT", "9999"),
			AppURL:             GetEnv("APP_URL", "http://localhost:9999"),
			Environment:        GetEnv("ENVIRONMENT", "development"),
			SQLitePath:         GetEnv("SQLITE_PATH", "./data/oxipay.db"),
			LockBackend:        GetEnv("LOCK_BACKEND", "memory"),
			RedisAddr:          GetEnv("REDIS_ADDR", ""),
			RedisPassword:      GetEnv("REDIS_PASSWORD", ""),
			LockTTL:            time.Duration(GetIntEnv("LOCK_TTL_SECONDS", 30)) * time.Second,
			OpenSearchURL:      GetEnv("OPENSEARCH_URL", "http://localhost:9200"),
			OpenSearchUser:     GetEnv("OPENSEARCH_USER", ""),
			OpenSearchPass:     GetEnv("OPENSEARCH_PASSWORD", ""),
			EnableLogging:      GetBoolEnv("ENABLE_OPENSEARCH_LOGGING", false),
			LoggingLevel:       GetEnv("LOGGING_LEVEL", "info"),
			LogFile:            GetEnv("LOG_FILE", ""),
			RateLimitPerMinute: GetIntEnv("RATE_LIMIT_PER_MINUTE", 120),
		}
	}
	return appConfigInstance
}

// Validate checks the configuration with the shared validator
func (c *AppConfig) Validate() error {
	return App().Validator.Struct(c)
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetBoolEnv returns the boolean value of an environment variable or a default value
func GetBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetIntEnv returns the integer value of an environment variable or a default value
func GetIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
