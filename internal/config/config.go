package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	AppPort    string
	AppEnv     string
	JWTSecret  string

	CORSAllowedOrigin string

	// Pricing
	Currency              string
	TaxRate               decimal.Decimal
	FreeShippingThreshold decimal.Decimal
	ShippingCost          decimal.Decimal
	CheckoutSessionTTL    time.Duration

	// Payment providers
	StripeSecretKey     string
	StripeWebhookSecret string
	PaypalClientID      string
	PaypalClientSecret  string
	PaypalWebhookID     string
	PaypalBaseURL       string

	InternalSecretKey string
}

func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		DBHost:     os.Getenv("DB_HOST"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		DBPort:     os.Getenv("DB_PORT"),
		AppPort:    getEnv("APP_PORT", "8080"),
		AppEnv:     os.Getenv("APP_ENV"),
		JWTSecret:  os.Getenv("JWT_SECRET"),

		CORSAllowedOrigin: getEnv("CORS_ALLOWED_ORIGIN", "http://localhost:3000"),

		Currency:              getEnv("CURRENCY", "MXN"),
		TaxRate:               getDecimal("TAX_RATE", "0.16"),
		FreeShippingThreshold: getDecimal("FREE_SHIPPING_THRESHOLD", "1000"),
		ShippingCost:          getDecimal("SHIPPING_COST", "25"),
		CheckoutSessionTTL:    getDuration("CHECKOUT_SESSION_TTL", 30*time.Minute),

		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		PaypalClientID:      os.Getenv("PAYPAL_CLIENT_ID"),
		PaypalClientSecret:  os.Getenv("PAYPAL_CLIENT_SECRET"),
		PaypalWebhookID:     os.Getenv("PAYPAL_WEBHOOK_ID"),
		PaypalBaseURL:       getEnv("PAYPAL_BASE_URL", "https://api-m.sandbox.paypal.com"),

		InternalSecretKey: os.Getenv("INTERNAL_SECRET_KEY"),
	}

	if cfg.DBHost == "" {
		log.Fatal("Environment variables not loaded properly")
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getDecimal falls back to def when the variable is unset or not a number.
func getDecimal(key, def string) decimal.Decimal {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
		log.Printf("invalid decimal for %s=%q, using %s", key, v, def)
	}
	return decimal.RequireFromString(def)
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Printf("invalid duration for %s=%q, using %s", key, v, def)
	}
	return def
}
