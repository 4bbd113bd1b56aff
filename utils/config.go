package utils

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config is the process configuration, read from the environment after an
// optional .env file.
type Config struct {
	Port          string
	MongoURI      string
	MongoDatabase string
	RedisAddr     string
	RedisPassword string
	JWTSecret     string

	PaymentGateway      string
	StripeSecretKey     string
	StripeWebhookSecret string
	GatewayTimeout      time.Duration
	RequestTimeout      time.Duration

	Currency    string
	TaxRate     decimal.Decimal
	ShippingFee decimal.Decimal

	EmailProvider    string
	PostmarkToken    string
	SendGridAPIKey   string
	EmailSender      string
	AMQPURL          string
	AMQPExchange     string
	OutboxPoll       time.Duration
	OutboxMaxAttempt int

	LogLevel  string
	LogFormat string
}

// LoadConfig loads .env if present and reads the environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found. Proceeding with environment variables.")
	}
	return configFromEnv()
}

func configFromEnv() (*Config, error) {
	var errs []error
	cfg := &Config{
		Port:                getEnv("PORT", "8000"),
		MongoURI:            os.Getenv("MONGO_URI"),
		MongoDatabase:       getEnv("MONGO_DATABASE", "ecommerce"),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		PaymentGateway:      strings.ToLower(getEnv("PAYMENT_GATEWAY", "stripe")),
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		Currency:            strings.ToLower(getEnv("CURRENCY", "inr")),
		EmailProvider:       strings.ToLower(getEnv("EMAIL_PROVIDER", "none")),
		PostmarkToken:       os.Getenv("POSTMARK_API_TOKEN"),
		SendGridAPIKey:      os.Getenv("SENDGRID_API_KEY"),
		EmailSender:         os.Getenv("EMAIL_SENDER"),
		AMQPURL:             os.Getenv("AMQP_URL"),
		AMQPExchange:        getEnv("AMQP_EXCHANGE", "shophub.notifications"),
		LogLevel:            strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:           strings.ToLower(getEnv("LOG_FORMAT", "json")),
	}

	cfg.GatewayTimeout = durationEnv("GATEWAY_TIMEOUT", 10*time.Second, &errs)
	cfg.RequestTimeout = durationEnv("REQUEST_TIMEOUT", 10*time.Second, &errs)
	cfg.OutboxPoll = durationEnv("OUTBOX_POLL_INTERVAL", 2*time.Second, &errs)
	cfg.TaxRate = decimalEnv("TAX_RATE", "0.18", &errs)
	cfg.ShippingFee = decimalEnv("SHIPPING_FEE", "0", &errs)

	attempts, err := strconv.Atoi(getEnv("OUTBOX_MAX_ATTEMPTS", "5"))
	if err != nil || attempts < 1 {
		errs = append(errs, errors.New("OUTBOX_MAX_ATTEMPTS must be a positive integer"))
	}
	cfg.OutboxMaxAttempt = attempts

	if err := cfg.validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	switch c.PaymentGateway {
	case "stripe":
		if c.StripeSecretKey == "" {
			errs = append(errs, errors.New("STRIPE_SECRET_KEY is required for the stripe gateway"))
		}
	case "mock":
	default:
		errs = append(errs, fmt.Errorf("PAYMENT_GATEWAY %q is not one of stripe, mock", c.PaymentGateway))
	}
	if c.StripeWebhookSecret == "" {
		errs = append(errs, errors.New("STRIPE_WEBHOOK_SECRET is required"))
	}
	if c.TaxRate.IsNegative() {
		errs = append(errs, errors.New("TAX_RATE cannot be negative"))
	}
	if c.ShippingFee.IsNegative() {
		errs = append(errs, errors.New("SHIPPING_FEE cannot be negative"))
	}
	switch c.EmailProvider {
	case "none":
	case "postmark":
		if c.PostmarkToken == "" || c.EmailSender == "" {
			errs = append(errs, errors.New("POSTMARK_API_TOKEN and EMAIL_SENDER are required for postmark"))
		}
	case "sendgrid":
		if c.SendGridAPIKey == "" || c.EmailSender == "" {
			errs = append(errs, errors.New("SENDGRID_API_KEY and EMAIL_SENDER are required for sendgrid"))
		}
	default:
		errs = append(errs, fmt.Errorf("EMAIL_PROVIDER %q is not one of postmark, sendgrid, none", c.EmailProvider))
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT %q is not one of json, text", c.LogFormat))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration, errs *[]error) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		*errs = append(*errs, fmt.Errorf("%s must be a positive duration, got %q", key, raw))
		return fallback
	}
	return d
}

func decimalEnv(key, fallback string, errs *[]error) decimal.Decimal {
	raw := getEnv(key, fallback)
	d, err := decimal.NewFromString(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s must be a number, got %q", key, raw))
		return decimal.Zero
	}
	return d
}
