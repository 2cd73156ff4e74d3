package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	CORSOrigins []string

	AuthJWTSecret      string
	AuthAccessTTL      time.Duration
	AuthRefreshTTL     time.Duration
	InternalAPIKey     string
	LoginRatePerMinute int64

	SnowflakeNode int64
	AutoMigrate   bool

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBSQLitePath      string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Idempotency IdempotencyConfig
	Paystack    PaystackConfig
	Workflow    WorkflowConfig
	Metrics     PlatformMetricsConfig

	PublicBaseURL     string
	PayPageRatePerMin int64
}

type IdempotencyConfig struct {
	Backend string
	TTL     time.Duration
}

type PaystackConfig struct {
	BaseURL       string
	PublicKey     string
	SecretKey     string
	WebhookSecret string
	CallbackURL   string
	Timeout       time.Duration
}

type WorkflowConfig struct {
	BaseURL string
	Timeout time.Duration
	Workers int
	Buffer  int
}

type PlatformMetricsConfig struct {
	Enabled   bool
	Exporter  string
	Endpoint  string
	AuthToken string
	Interval  time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:            getenv("APP_SERVICE", "schoolpay"),
		AppVersion:         getenv("APP_VERSION", "0.1.0"),
		Environment:        getenv("ENVIRONMENT", "development"),
		HTTPAddr:           getenv("HTTP_ADDR", ":8080"),
		CORSOrigins:        parseList(getenv("CORS_ORIGINS", "http://localhost:3000")),
		AuthJWTSecret:      strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
		AuthAccessTTL:      time.Duration(getenvInt64("AUTH_ACCESS_TTL_MINUTES", 480)) * time.Minute,
		AuthRefreshTTL:     time.Duration(getenvInt64("AUTH_REFRESH_TTL_DAYS", 30)) * 24 * time.Hour,
		InternalAPIKey:     strings.TrimSpace(getenv("INTERNAL_API_KEY", "")),
		LoginRatePerMinute: getenvInt64("LOGIN_RATE_PER_MINUTE", 10),
		SnowflakeNode:      getenvInt64("SNOWFLAKE_NODE", 1),
		AutoMigrate:        getenvBool("AUTO_MIGRATE", true),
		DBType:             getenv("DATABASE_TYPE", "postgres"),
		DBHost:             getenv("DATABASE_HOST", "localhost"),
		DBPort:             getenv("DATABASE_PORT", "5432"),
		DBName:             getenv("DATABASE_NAME", "schoolpay"),
		DBUser:             getenv("DATABASE_USER", "postgres"),
		DBPassword:         getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:          getenv("DATABASE_SSLMODE", "disable"),
		DBSQLitePath:       getenv("DATABASE_PATH", "schoolpay.db"),
		DBMaxIdleConn:      int(getenvInt64("DATABASE_MAX_IDLE_CONN", 10)),
		DBMaxOpenConn:      int(getenvInt64("DATABASE_MAX_OPEN_CONN", 50)),
		DBConnMaxLifetime:  int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 300)),
		DBConnMaxIdleTime:  int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 60)),
		RedisAddr:          strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword:      getenv("REDIS_PASSWORD", ""),
		RedisDB:            int(getenvInt64("REDIS_DB", 0)),
		Idempotency: IdempotencyConfig{
			Backend: strings.ToLower(getenv("IDEMPOTENCY_BACKEND", "sql")),
			TTL:     time.Duration(getenvInt64("IDEMPOTENCY_TTL_SECONDS", 600)) * time.Second,
		},
		Paystack: PaystackConfig{
			BaseURL:       strings.TrimRight(getenv("PAYSTACK_BASE_URL", "https://api.paystack.co"), "/"),
			PublicKey:     strings.TrimSpace(getenv("PAYSTACK_PUBLIC_KEY", "")),
			SecretKey:     strings.TrimSpace(getenv("PAYSTACK_SECRET_KEY", "")),
			WebhookSecret: strings.TrimSpace(getenv("PAYSTACK_WEBHOOK_SECRET", "")),
			CallbackURL:   getenv("PAYSTACK_CALLBACK_URL", ""),
			Timeout:       time.Duration(getenvInt64("PAYSTACK_TIMEOUT_SECONDS", 8)) * time.Second,
		},
		Workflow: WorkflowConfig{
			BaseURL: strings.TrimRight(strings.TrimSpace(getenv("N8N_WEBHOOK_BASE_URL", "")), "/"),
			Timeout: time.Duration(getenvInt64("N8N_TIMEOUT_SECONDS", 5)) * time.Second,
			Workers: int(getenvInt64("NOTIFICATION_WORKERS", 4)),
			Buffer:  int(getenvInt64("NOTIFICATION_BUFFER", 256)),
		},
		Metrics: PlatformMetricsConfig{
			Enabled:   getenvBool("PLATFORM_METRICS_ENABLED", false),
			Exporter:  strings.ToLower(getenv("PLATFORM_METRICS_EXPORTER", "")),
			Endpoint:  strings.TrimSpace(getenv("PLATFORM_METRICS_ENDPOINT", "")),
			AuthToken: strings.TrimSpace(getenv("PLATFORM_METRICS_AUTH_TOKEN", "")),
			Interval:  time.Duration(getenvInt64("PLATFORM_METRICS_INTERVAL_SECONDS", 60)) * time.Second,
		},
		PublicBaseURL:     strings.TrimRight(getenv("PUBLIC_BASE_URL", "http://localhost:3000"), "/"),
		PayPageRatePerMin: getenvInt64("PAY_PAGE_RATE_PER_MINUTE", 30),
	}

	// Webhook signatures fall back to the API secret, which is what Paystack signs with.
	if cfg.Paystack.WebhookSecret == "" {
		cfg.Paystack.WebhookSecret = cfg.Paystack.SecretKey
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
