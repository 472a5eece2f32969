package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Payments PaymentsConfig
	Security SecurityConfig
	Email    EmailConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
}

type AuthConfig struct {
	JWTSecret         string
	AccessTokenExpiry time.Duration
}

// PaymentsConfig holds provider credentials and checkout policy. SecretKey
// may be empty at load time; the payment service rejects intent creation
// with a configuration error when it is missing.
type PaymentsConfig struct {
	SecretKey             string
	PublishableKey        string
	WebhookSecret         string
	DefaultCurrency       string
	VerificationThreshold int64 // minor units; larger amounts need out-of-band verification
	VerificationCodeTTL   time.Duration
	ReconcileInterval     time.Duration
	ReconcileAfter        time.Duration
}

// SecurityConfig tunes the security event pipeline.
type SecurityConfig struct {
	EventBufferSize     int
	EscalationThreshold int
	EscalationWindow    time.Duration
	AlertRecipient      string
	EventRetentionDays  int
	CleanupInterval     time.Duration
}

type EmailConfig struct {
	AWSRegion   string
	FromAddress string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "meridian"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
		},
		Auth: AuthConfig{
			JWTSecret:         jwtSecret,
			AccessTokenExpiry: getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 24*time.Hour),
		},
		Payments: PaymentsConfig{
			SecretKey:             getEnv("STRIPE_SECRET_KEY", ""),
			PublishableKey:        getEnv("STRIPE_PUBLISHABLE_KEY", ""),
			WebhookSecret:         getEnv("STRIPE_WEBHOOK_SECRET", ""),
			DefaultCurrency:       getEnv("PAYMENT_DEFAULT_CURRENCY", "usd"),
			VerificationThreshold: int64(getEnvAsInt("PAYMENT_VERIFICATION_THRESHOLD_CENTS", 100000)),
			VerificationCodeTTL:   getEnvAsDuration("PAYMENT_VERIFICATION_CODE_TTL", 10*time.Minute),
			ReconcileInterval:     getEnvAsDuration("PAYMENT_RECONCILE_INTERVAL", 5*time.Minute),
			ReconcileAfter:        getEnvAsDuration("PAYMENT_RECONCILE_AFTER", 15*time.Minute),
		},
		Security: SecurityConfig{
			EventBufferSize:     getEnvAsInt("SECURITY_EVENT_BUFFER_SIZE", 100),
			EscalationThreshold: getEnvAsInt("SECURITY_ESCALATION_THRESHOLD", 5),
			EscalationWindow:    getEnvAsDuration("SECURITY_ESCALATION_WINDOW", 15*time.Minute),
			AlertRecipient:      getEnv("SECURITY_ALERT_RECIPIENT", ""),
			EventRetentionDays:  getEnvAsInt("SECURITY_EVENT_RETENTION_DAYS", 90),
			CleanupInterval:     getEnvAsDuration("SECURITY_CLEANUP_INTERVAL", 1*time.Hour),
		},
		Email: EmailConfig{
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", "no-reply@meridianinvest.example"),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	// A configured webhook secret that is obviously truncated is worse
	// than none: signature checks would reject every delivery.
	if s := cfg.Payments.WebhookSecret; s != "" && len(s) < 16 {
		return nil, fmt.Errorf("STRIPE_WEBHOOK_SECRET is too short to be a valid signing secret")
	}

	return cfg, nil
}

// validateJWTSecret enforces minimum security standards for the JWT secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

// ProviderConfigured reports whether the payment provider credentials are
// present. Checked at request time, not load time, so the rest of the API
// stays usable without them.
func (c *PaymentsConfig) ProviderConfigured() bool {
	return c.SecretKey != ""
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		originsStr := getEnv("ALLOWED_ORIGINS", "")
		if originsStr == "" {
			return []string{} // Default to no origins in production
		}
		origins := strings.Split(originsStr, ",")
		for i, origin := range origins {
			origins[i] = strings.TrimSpace(origin)
		}
		return origins
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173", // Vite default
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:5173",
	}
}
