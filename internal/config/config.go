package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port           string
	Env            string
	LogLevel       string
	LogFormat      string
	UseMemoryStore bool

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	DynamoDBEndpoint    string
	S3Endpoint          string

	AvailabilityTable string
	BookingsTable     string
	MediaBucket       string
	MediaBaseURL      string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	LockIndexKey  string

	LockTTL         time.Duration
	LockMaxAttempts int
	LockBaseBackoff time.Duration

	ReaperEnabled  bool
	ReaperInterval time.Duration
	ReaperBatch    int

	ScheduleHorizonDays int
	Timezone            string

	AdminJWTSecret     string
	CORSAllowedOrigins []string
	CORSAllowedHeaders []string
	CORSMaxAge         time.Duration
	RateLimitRPS       float64
	RateLimitBurst     int
}

func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      strings.ToLower(getEnv("LOG_FORMAT", "json")),
		UseMemoryStore: getEnvAsBool("USE_MEMORY_STORE", false),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		DynamoDBEndpoint:    getEnv("DYNAMODB_ENDPOINT", ""),
		S3Endpoint:          getEnv("S3_ENDPOINT", ""),

		AvailabilityTable: getEnv("AVAILABILITY_TABLE", "availability"),
		BookingsTable:     getEnv("BOOKINGS_TABLE", "bookings"),
		MediaBucket:       getEnv("MEDIA_BUCKET", ""),
		MediaBaseURL:      getEnv("MEDIA_BASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		LockIndexKey:  getEnv("LOCK_INDEX_KEY", "kalos:reservation:lock-expiry"),

		LockTTL:         getEnvAsDuration("LOCK_TTL", 5*time.Minute),
		LockMaxAttempts: getEnvAsInt("LOCK_MAX_ATTEMPTS", 4),
		LockBaseBackoff: getEnvAsDuration("LOCK_BASE_BACKOFF", 25*time.Millisecond),

		ReaperEnabled:  getEnvAsBool("REAPER_ENABLED", true),
		ReaperInterval: getEnvAsDuration("REAPER_INTERVAL", 30*time.Second),
		ReaperBatch:    getEnvAsInt("REAPER_BATCH", 100),

		ScheduleHorizonDays: getEnvAsInt("SCHEDULE_HORIZON_DAYS", 365),
		Timezone:            getEnv("TIMEZONE", "UTC"),

		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		CORSAllowedHeaders: getEnvAsList("CORS_ALLOWED_HEADERS", nil),
		CORSMaxAge:         getEnvAsDuration("CORS_MAX_AGE", 10*time.Minute),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 40),
	}
}

// Location resolves Timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	if c == nil || c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Endpoint returns the endpoint configured for an AWS service ("dynamodb" or
// "s3"), falling back to AWSEndpointOverride. Empty means the AWS default.
func (c *Config) Endpoint(service string) string {
	if c == nil {
		return ""
	}
	var specific string
	switch strings.ToLower(service) {
	case "dynamodb":
		specific = c.DynamoDBEndpoint
	case "s3":
		specific = c.S3Endpoint
	}
	if strings.TrimSpace(specific) != "" {
		return specific
	}
	return c.AWSEndpointOverride
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
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

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
