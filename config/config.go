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

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	AWS      AWSConfig
	Email    EmailConfig
	Stream   StreamConfig
	Video    VideoConfig
}

// EmailConfig for SMTP delivery of operator alerts.
type EmailConfig struct {
	FromAddress     string
	FromName        string
	SMTPHost        string // empty = dev mode, emails are logged
	SMTPPort        int
	SMTPUser        string
	SMTPPass        string
	AlertRecipients []string // terminal failure alerts (comma-separated in env)
}

// StreamConfig holds the video provider API settings.
type StreamConfig struct {
	BaseURL       string
	AccountID     string
	APIToken      string
	WebhookSecret string // empty disables webhook signature checks
	Timeout       time.Duration
}

// VideoConfig tunes the video engine: cache, retry policy and schedulers.
type VideoConfig struct {
	CacheTTL              time.Duration
	MaxRetries            int
	RetryInitialDelay     time.Duration
	RetryMaxDelay         time.Duration
	RetryMultiplier       float64
	ItemDelay             time.Duration // pause between videos in batch runs
	StuckThresholdMinutes int
	ReconcileInterval     time.Duration // 0 disables the scheduler loop
	RetryInterval         time.Duration
	StuckInterval         time.Duration
	AdminBaseURL          string
	AttemptTTL            time.Duration
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all (e.g. http://localhost:3000,http://localhost:3001)
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/academy?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// AWSConfig holds AWS credentials and the source staging bucket.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	SourceBucket         string // empty disables upload and import endpoints
	PresignExpireMinutes int
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:3001"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "academy"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			SourceBucket:         getEnv("AWS_S3_SOURCE_BUCKET", ""),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 60),
		},
		Email: EmailConfig{
			FromAddress:     getEnv("EMAIL_FROM_ADDRESS", "noreply@example.com"),
			FromName:        getEnv("EMAIL_FROM_NAME", "Aura Academy"),
			SMTPHost:        getEnv("SMTP_HOST", ""),
			SMTPPort:        getEnvInt("SMTP_PORT", 587),
			SMTPUser:        getEnv("SMTP_USER", ""),
			SMTPPass:        getEnv("SMTP_PASS", ""),
			AlertRecipients: splitTrim(getEnv("VIDEO_ALERT_RECIPIENTS", ""), ","),
		},
		Stream: StreamConfig{
			BaseURL:       getEnv("STREAM_API_BASE_URL", "https://api.cloudflare.com/client/v4"),
			AccountID:     getEnv("STREAM_ACCOUNT_ID", ""),
			APIToken:      getEnv("STREAM_API_TOKEN", ""),
			WebhookSecret: getEnv("STREAM_WEBHOOK_SECRET", ""),
			Timeout:       getEnvDuration("STREAM_TIMEOUT", 15*time.Second),
		},
		Video: VideoConfig{
			CacheTTL:              getEnvDuration("VIDEO_CACHE_TTL", 5*time.Minute),
			MaxRetries:            getEnvInt("VIDEO_MAX_RETRIES", 3),
			RetryInitialDelay:     getEnvDuration("VIDEO_RETRY_INITIAL_DELAY", 5*time.Second),
			RetryMaxDelay:         getEnvDuration("VIDEO_RETRY_MAX_DELAY", 5*time.Minute),
			RetryMultiplier:       getEnvFloat("VIDEO_RETRY_MULTIPLIER", 2),
			ItemDelay:             getEnvDuration("VIDEO_BATCH_ITEM_DELAY", time.Second),
			StuckThresholdMinutes: getEnvInt("VIDEO_STUCK_THRESHOLD_MINUTES", 60),
			ReconcileInterval:     getEnvDuration("VIDEO_RECONCILE_INTERVAL", 5*time.Minute),
			RetryInterval:         getEnvDuration("VIDEO_RETRY_INTERVAL", 30*time.Minute),
			StuckInterval:         getEnvDuration("VIDEO_STUCK_INTERVAL", 15*time.Minute),
			AdminBaseURL:          getEnv("ADMIN_BASE_URL", "http://localhost:3000"),
			AttemptTTL:            getEnvDuration("VIDEO_RETRY_HISTORY_TTL", 7*24*time.Hour),
		},
	}
	if err := cfg.Video.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (v VideoConfig) validate() error {
	var errs []error
	if v.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("VIDEO_MAX_RETRIES must be at least 1, got %d", v.MaxRetries))
	}
	if v.RetryMultiplier < 1 {
		errs = append(errs, fmt.Errorf("VIDEO_RETRY_MULTIPLIER must be at least 1, got %g", v.RetryMultiplier))
	}
	if v.RetryMaxDelay < v.RetryInitialDelay {
		errs = append(errs, fmt.Errorf("VIDEO_RETRY_MAX_DELAY %s is below the initial delay %s", v.RetryMaxDelay, v.RetryInitialDelay))
	}
	if v.CacheTTL <= 0 {
		errs = append(errs, errors.New("VIDEO_CACHE_TTL must be positive"))
	}
	return errors.Join(errs...)
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("90s", "5m") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func splitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
