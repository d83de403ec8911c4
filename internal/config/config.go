// Package config defines the global configuration structure for the FruitBox
// platform. Configuration is loaded once at process initialization and is
// immutable thereafter. It follows 12-Factor App principles by strictly
// separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// Any missing required value or invalid format causes the application to fail
// immediately on startup (fail fast).
package config

import (
	"time"

	"fruitbox/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the FruitBox platform.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require
// (Least Privilege principle).
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"fruitbox-api"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	IsTestMode  bool   `envconfig:"IS_TEST_MODE" default:"false"`

	// Domain Configurations
	Server   ServerConfig
	Database DatabaseConfig
	AWS      AWSConfig
	Billing  BillingConfig
	Email    EmailConfig
	Auth     AuthConfig
	Security SecurityConfig
	Catalog  CatalogConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// Public URLs for redirects and emails (no trailing slash)
	APIExternalURL string `envconfig:"API_EXTERNAL_URL" validate:"required,url"` // e.g., https://api.fruitbox.io
	StorefrontURL  string `envconfig:"STOREFRONT_URL" validate:"required,url"`   // e.g., https://shop.fruitbox.io
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`     // Fail fast when pool exhausted
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"` // Detect dead connections during failover
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"eu-west-1"`

	// Resource Identifiers
	ImageBucket   string `envconfig:"IMAGE_BUCKET" validate:"required"`
	OrderQueueURL string `envconfig:"SQS_ORDER_EVENTS" validate:"required,url"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// BillingConfig holds Stripe payment integration credentials and keys.
type BillingConfig struct {
	StripeSecretKey      SecretString `envconfig:"STRIPE_SECRET_KEY" validate:"required"`
	StripeWebhookSecret  SecretString `envconfig:"STRIPE_WEBHOOK_SECRET" validate:"required"`
	StripePublishableKey string       `envconfig:"STRIPE_PUBLISHABLE_KEY" validate:"required"`
}

// EmailConfig holds email delivery provider credentials and sender identity.
type EmailConfig struct {
	SendGridAPIKey SecretString `envconfig:"SENDGRID_API_KEY" validate:"required"`
	FromAddress    string       `envconfig:"EMAIL_FROM_ADDRESS" default:"orders@fruitbox.io"`
	FromName       string       `envconfig:"EMAIL_FROM_NAME" default:"FruitBox Orders"`
	Enabled        bool         `envconfig:"EMAIL_ENABLED" default:"true"`
}

// AuthConfig holds session management secrets and credential policy.
type AuthConfig struct {
	SessionKey      SecretString  `envconfig:"SESSION_KEY" validate:"required,min=32"`
	SessionTTL      time.Duration `envconfig:"SESSION_TTL" default:"720h"` // 30 days
	BcryptCost      int           `envconfig:"BCRYPT_COST" default:"12" validate:"min=10,max=16"`
	LoginMaxFails   int           `envconfig:"LOGIN_MAX_FAILS" default:"5"`
	LoginLockWindow time.Duration `envconfig:"LOGIN_LOCK_WINDOW" default:"15m"`
}

// SecurityConfig holds CORS and cookie hardening settings.
type SecurityConfig struct {
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	SecureCookies      bool     `envconfig:"SECURE_COOKIES" default:"true"`
	MetricNamespace    string   `envconfig:"METRIC_NAMESPACE" default:"FruitBox"`
}

// CatalogConfig holds product catalog and feed export settings.
type CatalogConfig struct {
	DefaultPageSize int `envconfig:"CATALOG_PAGE_SIZE" default:"24" validate:"min=1,max=100"`
	MaxPageSize     int `envconfig:"CATALOG_MAX_PAGE_SIZE" default:"100"`
	FeedGzipLevel   int `envconfig:"FEED_GZIP_LEVEL" default:"6" validate:"min=1,max=9"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
