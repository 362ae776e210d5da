package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix envconfig uses for nested keys (SPOTBOOK_DATABASE_HOST, ...).
// Every field also answers to the short name in its envconfig tag.
const EnvPrefix = "SPOTBOOK"

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	GRPC       GRPCConfig       `yaml:"grpc"`
	Database   DatabaseConfig   `yaml:"database"`
	Log        LogConfig        `yaml:"log"`
	Booking    BookingConfig    `yaml:"booking"`
	Payment    PaymentConfig    `yaml:"payment"`
	Payout     PayoutConfig     `yaml:"payout"`
	Settlement SettlementConfig `yaml:"settlement"`
	Notify     NotifyConfig     `yaml:"notify"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `yaml:"host" envconfig:"SERVER_HOST"`
	Port int    `yaml:"port" envconfig:"SERVER_PORT"`
}

// GRPCConfig controls the gRPC health endpoint. Port 0 disables it.
type GRPCConfig struct {
	Port int `yaml:"port" envconfig:"GRPC_PORT"`
}

// DatabaseConfig contains ledger storage settings
type DatabaseConfig struct {
	Driver   string `yaml:"driver" envconfig:"DB_DRIVER"` // "postgres" or "memory"
	Host     string `yaml:"host" envconfig:"DB_HOST"`
	Port     int    `yaml:"port" envconfig:"DB_PORT"`
	User     string `yaml:"user" envconfig:"DB_USER"`
	Password string `yaml:"password" envconfig:"DB_PASSWORD"`
	Database string `yaml:"database" envconfig:"DB_NAME"`
	SSLMode  string `yaml:"ssl_mode" envconfig:"DB_SSL_MODE"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level" envconfig:"LOG_LEVEL"`   // "debug", "info", "warn", "error"
	Format string `yaml:"format" envconfig:"LOG_FORMAT"` // "json" or "text"
}

// BookingConfig holds the reservation window policy
type BookingConfig struct {
	WindowDuration time.Duration `yaml:"window_duration" envconfig:"BOOKING_WINDOW_DURATION"`
	HoldTTL        time.Duration `yaml:"hold_ttl" envconfig:"BOOKING_HOLD_TTL"`
}

// PaymentConfig holds payment gateway settings
type PaymentConfig struct {
	Gateway        string        `yaml:"gateway" envconfig:"PAYMENT_GATEWAY"` // "sandbox" or "omise"
	PublicKey      string        `yaml:"public_key" envconfig:"OMISE_PUBLIC_KEY"`
	SecretKey      string        `yaml:"secret_key" envconfig:"OMISE_SECRET_KEY"`
	Currency       string        `yaml:"currency" envconfig:"PAYMENT_CURRENCY"`
	MinimumAmount  string        `yaml:"minimum_amount" envconfig:"PAYMENT_MINIMUM_AMOUNT"`
	CaptureTimeout time.Duration `yaml:"capture_timeout" envconfig:"PAYMENT_CAPTURE_TIMEOUT"`
	WebhookSecret  string        `yaml:"webhook_secret" envconfig:"PAYMENT_WEBHOOK_SECRET"`
	ReturnURI      string        `yaml:"return_uri" envconfig:"PAYMENT_RETURN_URI"`
}

// PayoutConfig holds the platform fee policy
type PayoutConfig struct {
	PlatformFeeRate string `yaml:"platform_fee_rate" envconfig:"PAYOUT_PLATFORM_FEE_RATE"`
}

// SettlementConfig controls the queue between the webhook and the settlement engine
type SettlementConfig struct {
	Queue       string        `yaml:"queue" envconfig:"SETTLEMENT_QUEUE"` // "memory" or "amqp"
	AMQPURL     string        `yaml:"amqp_url" envconfig:"AMQP_URL"`
	Exchange    string        `yaml:"exchange" envconfig:"SETTLEMENT_EXCHANGE"`
	QueueName   string        `yaml:"queue_name" envconfig:"SETTLEMENT_QUEUE_NAME"`
	MaxAttempts int           `yaml:"max_attempts" envconfig:"SETTLEMENT_MAX_ATTEMPTS"`
	Backoff     time.Duration `yaml:"backoff" envconfig:"SETTLEMENT_BACKOFF"`
	Capacity    int           `yaml:"capacity" envconfig:"SETTLEMENT_CAPACITY"`
	OrphanGrace time.Duration `yaml:"orphan_grace" envconfig:"SETTLEMENT_ORPHAN_GRACE"`
}

// NotifyConfig contains SendGrid settings for operator notifications
type NotifyConfig struct {
	SendGridAPIKey string `yaml:"sendgrid_api_key" envconfig:"SENDGRID_API_KEY"`
	FromEmail      string `yaml:"from_email" envconfig:"NOTIFY_FROM_EMAIL"`
	FromName       string `yaml:"from_name" envconfig:"NOTIFY_FROM_NAME"`
	OpsEmail       string `yaml:"ops_email" envconfig:"NOTIFY_OPS_EMAIL"`
}

// SchedulerConfig contains cron schedule settings
type SchedulerConfig struct {
	InProcess                 bool   `yaml:"in_process" envconfig:"SCHEDULER_IN_PROCESS"`
	ExpirePendingReservations string `yaml:"expire_pending_reservations"`
	ReportManualPayouts       string `yaml:"report_manual_payouts"`
	ReconcileOrphanedPayments string `yaml:"reconcile_orphaned_payments"`
}

// RateLimitConfig throttles booking submissions
type RateLimitConfig struct {
	BookingsPerSecond float64 `yaml:"bookings_per_second" envconfig:"RATE_LIMIT_BOOKINGS_PER_SECOND"`
	Burst             int     `yaml:"burst" envconfig:"RATE_LIMIT_BURST"`
}

// Load reads configuration from a YAML file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies environment overrides and validates the result
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks if the configuration is valid and fills defaults
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.GRPC.Port < 0 || c.GRPC.Port > 65535 {
		return fmt.Errorf("invalid grpc port: %d", c.GRPC.Port)
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}

	c.Database.Driver = strings.ToLower(c.Database.Driver)
	switch c.Database.Driver {
	case "":
		c.Database.Driver = "postgres"
		fallthrough
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
		if c.Database.SSLMode == "" {
			c.Database.SSLMode = "disable"
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	// Booking defaults
	if c.Booking.WindowDuration == 0 {
		c.Booking.WindowDuration = 2 * time.Hour
	}
	if c.Booking.WindowDuration < 0 {
		return fmt.Errorf("booking window duration must be positive")
	}
	if c.Booking.HoldTTL == 0 {
		c.Booking.HoldTTL = 15 * time.Minute
	}

	// Payment
	if c.Payment.Gateway == "" {
		c.Payment.Gateway = "sandbox"
	}
	if c.Payment.Gateway == "omise" && (c.Payment.PublicKey == "" || c.Payment.SecretKey == "") {
		return fmt.Errorf("omise gateway requires public and secret keys")
	}
	if c.Payment.Gateway != "omise" && c.Payment.Gateway != "sandbox" {
		return fmt.Errorf("unsupported payment gateway: %s", c.Payment.Gateway)
	}
	if c.Payment.Currency == "" {
		c.Payment.Currency = "usd"
	}
	if c.Payment.MinimumAmount == "" {
		c.Payment.MinimumAmount = "1.00"
	}
	if _, err := decimal.NewFromString(c.Payment.MinimumAmount); err != nil {
		return fmt.Errorf("invalid minimum payment amount: %w", err)
	}
	if c.Payment.CaptureTimeout == 0 {
		c.Payment.CaptureTimeout = 10 * time.Second
	}
	if c.Payment.WebhookSecret == "" {
		return fmt.Errorf("payment webhook secret is required")
	}
	if len(c.Payment.WebhookSecret) < 16 {
		return fmt.Errorf("payment webhook secret must be at least 16 characters")
	}

	// Payout
	if c.Payout.PlatformFeeRate == "" {
		c.Payout.PlatformFeeRate = "0.10"
	}
	rate, err := decimal.NewFromString(c.Payout.PlatformFeeRate)
	if err != nil {
		return fmt.Errorf("invalid platform fee rate: %w", err)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("platform fee rate must be between 0 and 1")
	}

	// Settlement queue
	if c.Settlement.Queue == "" {
		c.Settlement.Queue = "memory"
	}
	switch c.Settlement.Queue {
	case "memory":
	case "amqp":
		if c.Settlement.AMQPURL == "" {
			return fmt.Errorf("amqp settlement queue requires amqp_url")
		}
	default:
		return fmt.Errorf("unsupported settlement queue: %s", c.Settlement.Queue)
	}
	if c.Settlement.Exchange == "" {
		c.Settlement.Exchange = "payments"
	}
	if c.Settlement.QueueName == "" {
		c.Settlement.QueueName = "settlement"
	}
	if c.Settlement.MaxAttempts <= 0 {
		c.Settlement.MaxAttempts = 5
	}
	if c.Settlement.Backoff == 0 {
		c.Settlement.Backoff = 2 * time.Second
	}
	if c.Settlement.Capacity <= 0 {
		c.Settlement.Capacity = 1024
	}
	if c.Settlement.OrphanGrace == 0 {
		c.Settlement.OrphanGrace = time.Hour
	}

	// Scheduler defaults
	if c.Scheduler.ExpirePendingReservations == "" {
		c.Scheduler.ExpirePendingReservations = "0 * * * * *" // every minute
	}
	if c.Scheduler.ReportManualPayouts == "" {
		c.Scheduler.ReportManualPayouts = "0 0 9 * * *" // 9 AM UTC
	}
	if c.Scheduler.ReconcileOrphanedPayments == "" {
		c.Scheduler.ReconcileOrphanedPayments = "0 */30 * * * *"
	}

	if c.RateLimit.BookingsPerSecond < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}
	if c.RateLimit.BookingsPerSecond > 0 && c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = int(c.RateLimit.BookingsPerSecond) + 1
	}

	return nil
}

// MinimumAmount returns the charge used for spots without a price
func (c *Config) MinimumAmount() decimal.Decimal {
	return decimal.RequireFromString(c.Payment.MinimumAmount)
}

// PlatformFeeRate returns the platform share of each settled payment
func (c *Config) PlatformFeeRate() decimal.Decimal {
	return decimal.RequireFromString(c.Payout.PlatformFeeRate)
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// GetServerAddress returns the HTTP server address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GetGRPCAddress returns the gRPC health server address
func (c *Config) GetGRPCAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.GRPC.Port)
}
