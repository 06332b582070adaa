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

// DevJWTSecret is the signing secret used when JWT_SECRET is unset outside production.
const DevJWTSecret = "dev-secret-change-me"

// S3Config holds settings for an S3-compatible bucket (AWS S3, Cloudflare R2, MinIO).
type S3Config struct {
	Bucket          string
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	PublicURL       string
}

// Config holds the application configuration.
type Config struct {
	ServerPort     int
	Production     bool
	JWTSecret      string
	AllowedOrigins []string

	DBDriver    string // "sqlite" or "mongo"
	DatabaseURL string
	MongoDB     string

	MediaDriver  string // "disk" or "s3"
	MediaDir     string
	MediaBaseURL string
	S3           S3Config
	MaxUploadMB  int64

	RedisAddr     string
	RedisPassword string
	CacheTTL      time.Duration

	LogLevel string
	LogFile  string

	ReconcileSchedule string
	AuthRateLimit     int
}

// Load loads configuration from an optional .env file and environment variables, applying defaults.
func Load() (*Config, error) {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	port, err := getEnvInt("PORT", 3000)
	if err != nil {
		return nil, err
	}
	maxUpload, err := getEnvInt("MAX_UPLOAD_MB", 10)
	if err != nil {
		return nil, err
	}
	rateLimit, err := getEnvInt("AUTH_RATE_LIMIT", 20)
	if err != nil {
		return nil, err
	}
	cacheTTL, err := time.ParseDuration(getEnv("CACHE_TTL", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid CACHE_TTL: %w", err)
	}

	cfg := &Config{
		ServerPort:     port,
		Production:     getEnv("APP_ENV", "development") == "production",
		JWTSecret:      getEnv("JWT_SECRET", ""),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:5173")),

		DBDriver:    strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
		DatabaseURL: getEnv("DATABASE_URL", "./milligram.db"),
		MongoDB:     getEnv("MONGO_DB", "milligram"),

		MediaDriver:  strings.ToLower(getEnv("MEDIA_DRIVER", "disk")),
		MediaDir:     getEnv("MEDIA_DIR", "./static/uploads"),
		MediaBaseURL: getEnv("MEDIA_BASE_URL", "/uploads"),
		S3: S3Config{
			Bucket:          getEnv("S3_BUCKET", ""),
			Endpoint:        getEnv("S3_ENDPOINT", ""),
			Region:          getEnv("S3_REGION", "auto"),
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			PublicURL:       getEnv("S3_PUBLIC_URL", ""),
		},
		MaxUploadMB: int64(maxUpload),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		CacheTTL:      cacheTTL,

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),

		ReconcileSchedule: getEnv("RECONCILE_SCHEDULE", "@every 1h"),
		AuthRateLimit:     rateLimit,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		if c.Production {
			return errors.New("JWT_SECRET must be set in production")
		}
		c.JWTSecret = DevJWTSecret
	}

	switch c.DBDriver {
	case "sqlite", "mongo":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}

	switch c.MediaDriver {
	case "disk":
	case "s3":
		if c.S3.Bucket == "" || c.S3.PublicURL == "" {
			return errors.New("S3_BUCKET and S3_PUBLIC_URL are required when MEDIA_DRIVER is s3")
		}
	default:
		return fmt.Errorf("unsupported MEDIA_DRIVER %q", c.MediaDriver)
	}

	if c.MaxUploadMB <= 0 {
		return errors.New("MAX_UPLOAD_MB must be positive")
	}
	if c.AuthRateLimit <= 0 {
		return errors.New("AUTH_RATE_LIMIT must be positive")
	}
	return nil
}

// MaxUploadBytes is the largest accepted image size.
func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}

// Helper to get an environment variable with a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
