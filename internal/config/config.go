// Package config defines the process configuration for the entitlements
// service. Configuration is loaded once at startup and is immutable
// thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> SecretProvider (Lowest)
//
// Any missing required value or invalid format fails startup.
package config

import (
	"time"

	"github.com/shopspring/decimal"

	"profilehub/internal/resilience"
	"profilehub/internal/types"
)

// SecretString is an alias for types.SecretString so secrets in config are
// redacted from logs and JSON dumps.
type SecretString = types.SecretString

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Metrics backends.
const (
	MetricsPrometheus = "prometheus"
	MetricsCloudWatch = "cloudwatch"
	MetricsNone       = "none"
)

// Config is the top-level configuration struct. Sub-components receive only
// the section they need.
type Config struct {
	Environment  string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service      string `envconfig:"SERVICE_NAME" default:"profilehub-entitlements"`
	LogLevel     string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	StoreBackend string `envconfig:"STORE_BACKEND" default:"postgres" validate:"oneof=postgres memory"`

	Server     ServerConfig
	Database   DatabaseConfig
	Ledger     LedgerConfig
	Membership MembershipConfig
	Pricing    PricingConfig
	Billing    BillingConfig
	Metrics    MetricsConfig
	Events     EventsConfig
	AWS        AWSConfig
	Security   SecurityConfig

	// Injected via ldflags, not env.
	Build BuildInfo
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port           string        `envconfig:"PORT" default:"8080"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"10s"`
	IdempotencyTTL time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`
}

// DatabaseConfig holds connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL"`

	MaxConns          int32         `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int32         `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// LedgerConfig tunes the guard in front of the usage store.
type LedgerConfig struct {
	Timeout             time.Duration `envconfig:"LEDGER_TIMEOUT" default:"2s"`
	ConsecutiveFailures uint32        `envconfig:"LEDGER_BREAKER_FAILURES" default:"5" validate:"min=1"`
	OpenTimeout         time.Duration `envconfig:"LEDGER_BREAKER_OPEN_TIMEOUT" default:"30s"`
	Interval            time.Duration `envconfig:"LEDGER_BREAKER_INTERVAL" default:"60s"`
}

// Settings converts the section into guard settings.
func (c LedgerConfig) Settings() resilience.Settings {
	return resilience.Settings{
		Timeout:             c.Timeout,
		ConsecutiveFailures: c.ConsecutiveFailures,
		OpenTimeout:         c.OpenTimeout,
		Interval:            c.Interval,
	}
}

// MembershipConfig tunes the guard in front of the membership store.
type MembershipConfig struct {
	Timeout             time.Duration `envconfig:"MEMBERSHIP_TIMEOUT" default:"2s"`
	ConsecutiveFailures uint32        `envconfig:"MEMBERSHIP_BREAKER_FAILURES" default:"5" validate:"min=1"`
	OpenTimeout         time.Duration `envconfig:"MEMBERSHIP_BREAKER_OPEN_TIMEOUT" default:"30s"`
	Interval            time.Duration `envconfig:"MEMBERSHIP_BREAKER_INTERVAL" default:"60s"`
}

// Settings converts the section into guard settings.
func (c MembershipConfig) Settings() resilience.Settings {
	return resilience.Settings{
		Timeout:             c.Timeout,
		ConsecutiveFailures: c.ConsecutiveFailures,
		OpenTimeout:         c.OpenTimeout,
		Interval:            c.Interval,
	}
}

// PricingConfig holds the estimated per-run costs of billable operations,
// as decimal strings.
type PricingConfig struct {
	AIRunCost  string `envconfig:"PRICE_AI_RUN" default:"0.05" validate:"numeric"`
	APIRunCost string `envconfig:"PRICE_API_RUN" default:"0.02" validate:"numeric"`
}

// AIRun returns the AI run price. Validation guarantees the value parses.
func (c PricingConfig) AIRun() decimal.Decimal {
	return decimal.RequireFromString(c.AIRunCost)
}

// APIRun returns the API run price.
func (c PricingConfig) APIRun() decimal.Decimal {
	return decimal.RequireFromString(c.APIRunCost)
}

// BillingConfig holds the payment provider webhook settings. PriceLevels maps
// Stripe price IDs to subscription levels, e.g. "price_123:pro,price_456:business".
type BillingConfig struct {
	StripeWebhookSecret SecretString      `envconfig:"STRIPE_WEBHOOK_SECRET"`
	PriceLevels         map[string]string `envconfig:"STRIPE_PRICE_LEVELS"`
}

// MetricsConfig selects the metrics backend.
type MetricsConfig struct {
	Backend   string `envconfig:"METRICS_BACKEND" default:"prometheus" validate:"oneof=prometheus cloudwatch none"`
	Namespace string `envconfig:"METRIC_NAMESPACE" default:"ProfileHub"`
}

// EventsConfig holds the usage event queue. An empty URL disables publishing.
type EventsConfig struct {
	UsageQueueURL string `envconfig:"SQS_USAGE_EVENTS" validate:"omitempty,url"`
}

// AWSConfig holds regional configuration for the AWS clients.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`
	// LocalStack support; empty in prod.
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// SecurityConfig holds CORS settings and, for the memory backend only, a
// fixed set of bearer tokens ("token:user_id,...").
type SecurityConfig struct {
	CorsAllowedOrigins []string          `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	DevTokens          map[string]string `envconfig:"DEV_API_TOKENS"`
}

// NeedsAWS reports whether any configured component talks to AWS.
func (c *Config) NeedsAWS() bool {
	return c.Metrics.Backend == MetricsCloudWatch || c.Events.UsageQueueURL != ""
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	ErrMissingEnv       ConfigErrorType = "MISSING_ENV"
	ErrSecretResolution ConfigErrorType = "SECRET_FAILURE"
	ErrValidation       ConfigErrorType = "VALIDATION_FAILED"
	ErrParsing          ConfigErrorType = "PARSING_FAILED"
)
