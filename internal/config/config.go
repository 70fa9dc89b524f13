package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DatabaseConfig holds Postgres connection settings.  URL wins over the
// individual parts when set.
type DatabaseConfig struct {
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// DSN returns the connection string handed to the pq driver.
func (c *DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig holds the reminder dedup store settings.  An empty Addr
// disables dedup.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LLMConfig configures the OpenAI-compatible completion endpoint.
type LLMConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	Timeout     time.Duration
}

// SMSConfig selects and configures the SMS gateway.
type SMSConfig struct {
	Provider   string // "twilio", "sns" or "log"
	From       string
	TwilioSID  string
	TwilioAuth string
	TwilioURL  string
	AWSRegion  string
	RetryCount int
	Timeout    time.Duration
}

// FeedConfig tunes the feed pipeline.
type FeedConfig struct {
	SchemaPolicy  string // "strict" or "lenient"
	BatchWorkers  int
	Timezone      string
	NotifyChannel string
}

// Config is the full service configuration.
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	LLM      LLMConfig
	SMS      SMSConfig
	Feed     FeedConfig

	HTTP struct {
		Addr           string
		AllowedOrigins []string
		ReadTimeout    time.Duration
		WriteTimeout   time.Duration
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load reads configuration from the environment.  A .env file in the working
// directory (or the path in ENV_FILE) is loaded first when present; real
// environment variables take precedence over it.
func Load() (*Config, error) {
	envFile := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	cfg := &Config{}

	cfg.Database.URL = os.Getenv("DATABASE_URL")
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "healthfeed")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getInt("DB_MAX_CONNS", 10)
	cfg.Database.MaxIdle = getInt("DB_MAX_IDLE", 5)

	cfg.Redis.Addr = os.Getenv("REDIS_ADDR")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	cfg.Redis.DB = getInt("REDIS_DB", 0)

	cfg.LLM.APIKey = firstEnv("LLM_API_KEY", "GROQ_API_KEY", "OPENAI_API_KEY")
	cfg.LLM.BaseURL = getEnv("LLM_BASE_URL", "https://api.groq.com/openai/v1")
	cfg.LLM.Model = getEnv("LLM_MODEL", "llama-3.3-70b-versatile")
	cfg.LLM.Temperature = float32(getFloat("LLM_TEMPERATURE", 0.5))
	cfg.LLM.Timeout = getDuration("LLM_TIMEOUT", 60*time.Second)

	cfg.SMS.Provider = strings.ToLower(getEnv("SMS_PROVIDER", "twilio"))
	cfg.SMS.From = firstEnv("SMS_FROM", "TWILIO_FROM_NUMBER")
	cfg.SMS.TwilioSID = os.Getenv("TWILIO_ACCOUNT_SID")
	cfg.SMS.TwilioAuth = os.Getenv("TWILIO_AUTH_TOKEN")
	cfg.SMS.TwilioURL = getEnv("TWILIO_API_URL", "https://api.twilio.com")
	cfg.SMS.AWSRegion = getEnv("AWS_REGION", "ap-south-1")
	cfg.SMS.RetryCount = getInt("SMS_RETRY_COUNT", 0)
	cfg.SMS.Timeout = getDuration("SMS_TIMEOUT", 15*time.Second)

	cfg.Feed.SchemaPolicy = strings.ToLower(getEnv("FEED_SCHEMA_POLICY", "strict"))
	cfg.Feed.BatchWorkers = getInt("FEED_BATCH_WORKERS", 1)
	cfg.Feed.Timezone = getEnv("FEED_TIMEZONE", "Asia/Kolkata")
	cfg.Feed.NotifyChannel = getEnv("FEED_NOTIFY_CHANNEL", "feed_refreshed")

	cfg.HTTP.Addr = ":" + getEnv("PORT", "8080")
	cfg.HTTP.AllowedOrigins = splitList(getEnv("CORS_ORIGINS",
		"http://localhost:5173,http://127.0.0.1:5173,http://localhost:3000"))
	cfg.HTTP.ReadTimeout = getDuration("HTTP_READ_TIMEOUT", 15*time.Second)
	// batch refresh runs inside the request
	cfg.HTTP.WriteTimeout = getDuration("HTTP_WRITE_TIMEOUT", 10*time.Minute)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Feed.SchemaPolicy {
	case "strict", "lenient":
	default:
		return fmt.Errorf("invalid FEED_SCHEMA_POLICY %q", c.Feed.SchemaPolicy)
	}
	switch c.SMS.Provider {
	case "twilio", "sns", "log":
	default:
		return fmt.Errorf("invalid SMS_PROVIDER %q", c.SMS.Provider)
	}
	if c.Feed.BatchWorkers < 1 {
		c.Feed.BatchWorkers = 1
	}
	if _, err := time.LoadLocation(c.Feed.Timezone); err != nil {
		return fmt.Errorf("invalid FEED_TIMEZONE %q: %w", c.Feed.Timezone, err)
	}
	return nil
}

// RequireLLM reports a missing API key; only feed generation needs one.
func (c *Config) RequireLLM() error {
	if c.LLM.APIKey == "" {
		return errors.New("LLM_API_KEY (or GROQ_API_KEY / OPENAI_API_KEY) must be set")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func getInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
