package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration, loaded once at startup from the
// environment (optionally seeded from a .env file in development).
type Config struct {
	Environment string

	Server    ServerConfig
	Redis     RedisConfig
	Scylla    ScyllaConfig
	Kafka     KafkaConfig
	Email     EmailConfig
	Identity  IdentityConfig
	OTP       OTPConfig
	RateLimit RateLimitConfig
	Bucketing BucketingConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	EnableTLS    bool
	CertFile     string
	KeyFile      string
	CertDir      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type ScyllaConfig struct {
	Nodes    []string
	Keyspace string
	Username string
	Password string
}

type KafkaConfig struct {
	Enabled     bool
	Brokers     []string
	AuditTopic  string
	MaxAttempts int
}

type EmailConfig struct {
	Provider             string // "postmark" or "dev"
	PostmarkServerToken  string
	PostmarkAccountToken string
	SenderEmail          string
	SenderName           string
}

type IdentityConfig struct {
	BaseURL     string
	ServiceKey  string
	RedirectURL string
	Timeout     time.Duration
}

type OTPConfig struct {
	CodeTTL           time.Duration
	MaxVerifyAttempts int
	HashAlgorithm     string // "sha256-v1" or "argon2id-v1"
}

type RateLimitConfig struct {
	MaxAttempts int
	Window      time.Duration
}

type BucketingConfig struct {
	EmailBuckets int
	EventBuckets int
}

type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig reads configuration from the environment. Missing values fall
// back to development defaults; production deployments are expected to set
// everything explicitly.
func LoadConfig() *Config {
	// Best effort; a missing .env is fine outside local development.
	_ = godotenv.Load()

	return &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			EnableTLS:    getEnvBool("SERVER_ENABLE_TLS", false),
			CertFile:     getEnv("SERVER_CERT_FILE", ""),
			KeyFile:      getEnv("SERVER_KEY_FILE", ""),
			CertDir:      getEnv("SERVER_CERT_DIR", "./certs"),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 50),
		},
		Scylla: ScyllaConfig{
			Nodes:    splitList(getEnv("SCYLLA_NODES", "localhost:9042")),
			Keyspace: getEnv("SCYLLA_KEYSPACE", "otp_auth"),
			Username: getEnv("SCYLLA_USERNAME", ""),
			Password: getEnv("SCYLLA_PASSWORD", ""),
		},
		Kafka: KafkaConfig{
			Enabled:     getEnvBool("KAFKA_ENABLED", false),
			Brokers:     splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
			AuditTopic:  getEnv("KAFKA_AUDIT_TOPIC", "security-events"),
			MaxAttempts: getEnvInt("KAFKA_MAX_ATTEMPTS", 3),
		},
		Email: EmailConfig{
			Provider:             getEnv("EMAIL_PROVIDER", "dev"),
			PostmarkServerToken:  getEnv("POSTMARK_SERVER_TOKEN", ""),
			PostmarkAccountToken: getEnv("POSTMARK_ACCOUNT_TOKEN", ""),
			SenderEmail:          getEnv("EMAIL_SENDER", "no-reply@localhost"),
			SenderName:           getEnv("EMAIL_SENDER_NAME", "Finance Tracker"),
		},
		Identity: IdentityConfig{
			BaseURL:     getEnv("IDENTITY_BASE_URL", "http://localhost:9999"),
			ServiceKey:  getEnv("IDENTITY_SERVICE_KEY", ""),
			RedirectURL: getEnv("IDENTITY_REDIRECT_URL", "http://localhost:3000/auth/callback"),
			Timeout:     getEnvDuration("IDENTITY_TIMEOUT", 10*time.Second),
		},
		OTP: OTPConfig{
			CodeTTL:           getEnvDuration("OTP_CODE_TTL", 10*time.Minute),
			MaxVerifyAttempts: getEnvInt("OTP_MAX_VERIFY_ATTEMPTS", 5),
			HashAlgorithm:     getEnv("OTP_HASH_ALGORITHM", "sha256-v1"),
		},
		RateLimit: RateLimitConfig{
			MaxAttempts: getEnvInt("RATE_LIMIT_MAX_ATTEMPTS", 5),
			Window:      getEnvDuration("RATE_LIMIT_WINDOW", time.Hour),
		},
		Bucketing: BucketingConfig{
			EmailBuckets: getEnvInt("BUCKETING_EMAIL_BUCKETS", 64),
			EventBuckets: getEnvInt("BUCKETING_EVENT_BUCKETS", 16),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
	}
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
