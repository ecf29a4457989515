package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Billing   BillingConfig
	Analyzer  AnalyzerConfig
	Credits   CreditsConfig
	Scheduler SchedulerConfig
}

type ServerConfig struct {
	Port         string
	Env          string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
	Issuer        string
}

// BillingConfig holds the Stripe keys. Empty values fall back to the
// persisted system settings at startup (see cmd/server).
type BillingConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
	Currency      string
}

type AnalyzerConfig struct {
	BaseURL            string
	InteractiveTimeout time.Duration
	DeepTimeout        time.Duration
	HealthTimeout      time.Duration
}

type CreditsConfig struct {
	UnitPriceCents int64 // price per purchased credit
}

type SchedulerConfig struct {
	Interval   time.Duration
	BatchSize  int
	MaxRetries int
}

// CloudinaryConfig holds artifact store credentials.
type CloudinaryConfig struct {
	CloudName string
	APIKey    string
	APISecret string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         envOr("PORT", "8080"),
			Env:          envOr("APP_ENV", "development"),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			DSN:             envOr("DATABASE_DSN", "partsight:partsight@tcp(localhost:3306)/partsight?charset=utf8mb4&parseTime=True&loc=Local"),
			MaxIdleConns:    10,
			MaxOpenConns:    100,
			ConnMaxLifetime: time.Hour,
		},
		JWT: JWTConfig{
			AccessSecret:  envOr("JWT_ACCESS_SECRET", "change-me-in-production"),
			RefreshSecret: envOr("JWT_REFRESH_SECRET", "change-me-refresh"),
			AccessExpiry:  15 * time.Minute,
			RefreshExpiry: 168 * time.Hour,
			Issuer:        "partsight",
		},
		Billing: BillingConfig{
			SecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
			WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
			SuccessURL:    envOr("BILLING_SUCCESS_URL", "https://app.partsight.io/billing/success"),
			CancelURL:     envOr("BILLING_CANCEL_URL", "https://app.partsight.io/billing/cancel"),
			Currency:      envOr("BILLING_CURRENCY", "usd"),
		},
		Analyzer: AnalyzerConfig{
			BaseURL:            envOr("ANALYZER_BASE_URL", "http://localhost:9000"),
			InteractiveTimeout: envDurationOr("ANALYZER_TIMEOUT", 120*time.Second),
			DeepTimeout:        envDurationOr("ANALYZER_DEEP_TIMEOUT", 300*time.Second),
			HealthTimeout:      5 * time.Second,
		},
		Credits: CreditsConfig{
			UnitPriceCents: envInt64Or("CREDIT_UNIT_PRICE_CENTS", 50),
		},
		Scheduler: SchedulerConfig{
			Interval:   envDurationOr("RETRY_INTERVAL", 5*time.Minute),
			BatchSize:  5,
			MaxRetries: 3,
		},
	}
}

// LoadCloudinary reads artifact store credentials from the environment.
func LoadCloudinary() CloudinaryConfig {
	return CloudinaryConfig{
		CloudName: os.Getenv("CLOUDINARY_CLOUD_NAME"),
		APIKey:    os.Getenv("CLOUDINARY_API_KEY"),
		APISecret: os.Getenv("CLOUDINARY_API_SECRET"),
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDurationOr(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envInt64Or(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}
