package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port        string
	Env         string
	LogLevel    string
	DatabaseURL string

	// In-memory mode skips Postgres and Redis; used for local dev and tests.
	UseMemoryStore bool

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Booking engine tuning
	SlotGranularity     time.Duration
	SlotSuggestionLimit int
	DefaultBufferMins   int
	LockTimeout         time.Duration
	IdempotencyTTL      time.Duration

	// Event delivery
	EventsQueueURL     string
	AWSRegion          string
	OutboxPollInterval time.Duration

	// AWS credentials/endpoint overrides, used with LocalStack in dev.
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Booking notification emails (fixed-form, sent on create/cancel)
	SendGridAPIKey      string
	SendGridFromEmail   string
	SendGridFromName    string
	NotifyOperatorEmail string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		UseMemoryStore: getEnvAsBool("USE_MEMORY_STORE", false),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		SlotGranularity:     getEnvAsDuration("SLOT_GRANULARITY", 15*time.Minute),
		SlotSuggestionLimit: getEnvAsInt("SLOT_SUGGESTION_LIMIT", 5),
		DefaultBufferMins:   getEnvAsInt("DEFAULT_BUFFER_MINS", 15),
		LockTimeout:         getEnvAsDuration("BOOKING_LOCK_TIMEOUT", 3*time.Second),
		IdempotencyTTL:      getEnvAsDuration("IDEMPOTENCY_TTL", 24*time.Hour),

		EventsQueueURL:     getEnv("EVENTS_QUEUE_URL", ""),
		AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
		OutboxPollInterval: getEnvAsDuration("OUTBOX_POLL_INTERVAL", 2*time.Second),

		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		SendGridAPIKey:      getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail:   getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:    getEnv("SENDGRID_FROM_NAME", "Mario Beauty Salon"),
		NotifyOperatorEmail: getEnv("NOTIFY_OPERATOR_EMAIL", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
