package config // package config loads application configuration from environment variables

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
	Env       string // application environment (e.g. "dev", "prod")
	Port      string // HTTP port to listen on
	Store     string // "mysql" or "memory"
	DBUser    string // database username
	DBPass    string // database password (optional)
	DBHost    string // database host address
	DBPort    string // database port number
	DBName    string // database name
	JWTSecret string // secret used to verify access tokens

	Booking  BookingConfig
	Payment  PaymentConfig
	Log      LogConfig
	SMTP     SMTPConfig
	AMQPURL   string // RabbitMQ URL; empty uses the local default
	JaegerURL string // collector endpoint; empty disables trace export
}

// BookingConfig holds the booking rules.
type BookingConfig struct {
	TaxRate       float64
	Currency      string
	CancelCutoff  time.Duration
	PendingTTL    time.Duration // 0 disables the pending sweeper
	SweepInterval time.Duration
}

// PaymentConfig selects and tunes the payment provider.  An empty
// StripeKey selects the in-process sandbox.
type PaymentConfig struct {
	StripeKey          string
	WebhookSecret      string
	Timeout            time.Duration
	SimulateEnabled    bool
	BreakerMaxFailures int
	BreakerOpenTimeout time.Duration
}

// LogConfig configures the application logger.
type LogConfig struct {
	Level      string
	File       string // rotate into this file as well as stdout when set
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// SMTPConfig configures guest emails.  An empty Host disables them.
type SMTPConfig struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

// IsProd reports whether the service runs in production.
func (c Config) IsProd() bool { return strings.EqualFold(c.Env, "prod") || strings.EqualFold(c.Env, "production") }

// Load reads a .env file when present, then builds the Config from the
// environment.  Required variables are enforced by must() and missing
// values cause the program to exit with a fatal log message.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: .env not loaded: %v", err)
	}

	cfg := Config{
		Env:       must("APP_ENV"),
		Port:      must("APP_PORT"),
		Store:     strings.ToLower(envStr("STORE", "mysql")),
		JWTSecret: must("JWT_SECRET"),
		AMQPURL:   envStr("RABBITMQ_URL", os.Getenv("AMQP_URL")),
		JaegerURL: os.Getenv("OTEL_EXPORTER_JAEGER_ENDPOINT"),
	}
	if cfg.Store != "memory" {
		cfg.Store = "mysql"
		cfg.DBUser = must("DB_USER")
		cfg.DBPass = os.Getenv("DB_PASS") // empty allowed
		cfg.DBHost = must("DB_HOST")
		cfg.DBPort = must("DB_PORT")
		cfg.DBName = must("DB_NAME")
	}

	cfg.Booking = BookingConfig{
		TaxRate:       envFloat("TAX_RATE", 0.10),
		Currency:      strings.ToLower(envStr("CURRENCY", "usd")),
		CancelCutoff:  envDur("CANCEL_CUTOFF", 24*time.Hour),
		PendingTTL:    envDur("PENDING_TTL", 30*time.Minute),
		SweepInterval: envDur("SWEEP_INTERVAL", time.Minute),
	}
	if cfg.Booking.TaxRate < 0 {
		log.Fatalf("invalid TAX_RATE: %v", cfg.Booking.TaxRate)
	}

	cfg.Payment = PaymentConfig{
		StripeKey:          os.Getenv("STRIPE_SECRET_KEY"),
		WebhookSecret:      os.Getenv("STRIPE_WEBHOOK_SECRET"),
		Timeout:            envDur("PAYMENT_TIMEOUT", 10*time.Second),
		SimulateEnabled:    envBool("PAYMENT_SIMULATE_ENABLED", !cfg.IsProd()),
		BreakerMaxFailures: envInt("PAYMENT_BREAKER_MAX_FAILURES", 5),
		BreakerOpenTimeout: envDur("PAYMENT_BREAKER_OPEN_TIMEOUT", 30*time.Second),
	}
	if cfg.IsProd() {
		cfg.Payment.SimulateEnabled = false // never in production
		if cfg.Payment.StripeKey != "" && cfg.Payment.WebhookSecret == "" {
			log.Fatalf("missing required env var: STRIPE_WEBHOOK_SECRET")
		}
	}
	if cfg.Payment.WebhookSecret == "" {
		cfg.Payment.WebhookSecret = "whsec_sandbox"
	}

	cfg.Log = LogConfig{
		Level:      envStr("LOG_LEVEL", "info"),
		File:       os.Getenv("LOG_FILE"),
		MaxSizeMB:  envInt("LOG_MAX_SIZE_MB", 50),
		MaxBackups: envInt("LOG_MAX_BACKUPS", 5),
		MaxAgeDays: envInt("LOG_MAX_AGE_DAYS", 28),
	}
	cfg.SMTP = SMTPConfig{
		Host: os.Getenv("SMTP_HOST"),
		Port: envInt("SMTP_PORT", 587),
		User: os.Getenv("SMTP_USER"),
		Pass: os.Getenv("SMTP_PASS"),
		From: envStr("SMTP_FROM", "bookings@localhost"),
	}
	return cfg
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

func envFloat(k string, d float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Fatalf("invalid float for %s: %q", k, v)
	}
	return f
}
