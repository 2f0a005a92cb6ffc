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

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBSlowQueryMS     int

	Auth      AuthConfig
	Webhook   WebhookConfig
	CORS      CORSConfig
	RateLimit RateLimitConfig

	SnowflakeNode int64
}

// AuthConfig configures bearer token verification for user-facing channels.
type AuthConfig struct {
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
}

// WebhookConfig configures inbound payment webhook verification.
type WebhookConfig struct {
	Secret          string
	SignatureHeader string
	Tolerance       time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	OrderLinkRate  float64
	OrderLinkBurst int
	EmailOpenRate  float64
	EmailOpenBurst int
}

const DefaultSignatureHeader = "X-Payment-Signature"

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	redisAddr := strings.TrimSpace(getenv("REDIS_ADDR", ""))

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "reconcile"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "postgres"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		DBSlowQueryMS:     getenvInt("DATABASE_SLOW_QUERY_MS", 200),

		Auth: AuthConfig{
			JWTSecret:   strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
			JWTIssuer:   strings.TrimSpace(getenv("AUTH_JWT_ISSUER", "")),
			JWTAudience: strings.TrimSpace(getenv("AUTH_JWT_AUDIENCE", "")),
		},
		Webhook: WebhookConfig{
			Secret:          strings.TrimSpace(getenv("PAYMENT_WEBHOOK_SECRET", "")),
			SignatureHeader: getenv("PAYMENT_WEBHOOK_SIGNATURE_HEADER", DefaultSignatureHeader),
			Tolerance:       getenvDuration("PAYMENT_WEBHOOK_TOLERANCE", 5*time.Minute),
		},
		CORS: CORSConfig{
			AllowedOrigins: parseList(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		RateLimit: RateLimitConfig{
			Enabled:        redisAddr != "" && getenvBool("RATE_LIMIT_ENABLED", true),
			RedisAddr:      redisAddr,
			RedisPassword:  strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			RedisDB:        getenvInt("REDIS_DB", 0),
			OrderLinkRate:  getenvFloat("RATE_LIMIT_ORDER_LINK_RATE", 0.2),
			OrderLinkBurst: getenvInt("RATE_LIMIT_ORDER_LINK_BURST", 5),
			EmailOpenRate:  getenvFloat("RATE_LIMIT_EMAIL_OPEN_RATE", 5),
			EmailOpenBurst: getenvInt("RATE_LIMIT_EMAIL_OPEN_BURST", 50),
		},
		SnowflakeNode: getenvInt64("SNOWFLAKE_NODE", 1),
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
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

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
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

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
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
