package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	ierr "github.com/subflow/subflow/internal/errors"
)

// Configuration is the root config for the billing engine process.
type Configuration struct {
	Deployment DeploymentConfig `mapstructure:"deployment"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Stripe     StripeConfig     `mapstructure:"stripe"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`
	Renewal    RenewalConfig    `mapstructure:"renewal"`
}

type DeploymentConfig struct {
	Mode string `mapstructure:"mode"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	UseTLS   bool          `mapstructure:"use_tls"`
	PoolSize int           `mapstructure:"pool_size"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type StripeConfig struct {
	SecretKey string `mapstructure:"secret_key"`
}

type LedgerConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// RenewalConfig carries the sweep and reconciler tuning knobs.
type RenewalConfig struct {
	// SweepInterval is how often the renewal sweep job runs.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	// ReconcileInterval is how often the payment reconciler job runs.
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
	// LookaheadWindow bounds how far before end_date a candidate counts as due.
	LookaheadWindow time.Duration `mapstructure:"lookahead_window"`
	// BatchSize caps candidates considered per sweep pass.
	BatchSize int `mapstructure:"batch_size"`
	// RetryDelay is the fixed reschedule delay for recoverable failures.
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	// PendingPaymentTimeout is how long a local pending payment is trusted
	// before it must be reconciled against the gateway.
	PendingPaymentTimeout time.Duration `mapstructure:"pending_payment_timeout"`
	// FulfillmentDue is how soon after a credit renewal the fulfillment task
	// is due.
	FulfillmentDue time.Duration `mapstructure:"fulfillment_due"`
	// JobLockTTL is the distributed lock TTL for scheduler jobs.
	JobLockTTL time.Duration `mapstructure:"job_lock_ttl"`
	// MMUInterval is how often the manual upgrade cycle job runs.
	MMUInterval time.Duration `mapstructure:"mmu_interval"`
	// MMULeadDays is how many days before a cycle end the upgrade task is cut.
	MMULeadDays int `mapstructure:"mmu_lead_days"`
}

// NewConfig loads configuration from config files and environment variables.
// Env vars use the SUBFLOW_ prefix with underscores, e.g.
// SUBFLOW_REDIS_HOST.
func NewConfig() (*Configuration, error) {
	// Best effort; absence of .env is normal outside local dev
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.SetEnvPrefix("subflow")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, ierr.WithError(err).
				WithHint("Failed to read config file").
				Mark(ierr.ErrSystem)
		}
	}

	var cfg Configuration
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to unmarshal configuration").
			Mark(ierr.ErrSystem)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("deployment.mode", "scheduler")
	v.SetDefault("logging.level", "info")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.timeout", 5*time.Second)

	v.SetDefault("ledger.timeout", 15*time.Second)

	v.SetDefault("renewal.sweep_interval", 15*time.Minute)
	v.SetDefault("renewal.reconcile_interval", 30*time.Minute)
	v.SetDefault("renewal.lookahead_window", 24*time.Hour)
	v.SetDefault("renewal.batch_size", 200)
	v.SetDefault("renewal.retry_delay", 6*time.Hour)
	v.SetDefault("renewal.pending_payment_timeout", 24*time.Hour)
	v.SetDefault("renewal.fulfillment_due", 72*time.Hour)
	v.SetDefault("renewal.job_lock_ttl", 10*time.Minute)
	v.SetDefault("renewal.mmu_interval", 6*time.Hour)
	v.SetDefault("renewal.mmu_lead_days", 3)
}

// Validate checks the parts of the config that would otherwise fail at an
// awkward moment mid-sweep.
func (c *Configuration) Validate() error {
	if c.Renewal.BatchSize <= 0 {
		return ierr.NewError("renewal batch_size must be positive").
			WithReportableDetails(map[string]interface{}{
				"batch_size": c.Renewal.BatchSize,
			}).
			Mark(ierr.ErrValidation)
	}
	if c.Renewal.SweepInterval <= 0 {
		return ierr.NewError("renewal sweep_interval must be positive").
			Mark(ierr.ErrValidation)
	}
	if c.Renewal.RetryDelay <= 0 {
		return ierr.NewError("renewal retry_delay must be positive").
			Mark(ierr.ErrValidation)
	}
	if c.Renewal.PendingPaymentTimeout <= 0 {
		return ierr.NewError("renewal pending_payment_timeout must be positive").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// GetDefaultConfig returns a config suitable for tests and scripts.
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Deployment: DeploymentConfig{Mode: "test"},
		Logging:    LoggingConfig{Level: "debug"},
		Renewal: RenewalConfig{
			SweepInterval:         15 * time.Minute,
			ReconcileInterval:     30 * time.Minute,
			LookaheadWindow:       24 * time.Hour,
			BatchSize:             200,
			RetryDelay:            6 * time.Hour,
			PendingPaymentTimeout: 24 * time.Hour,
			FulfillmentDue:        72 * time.Hour,
			JobLockTTL:            10 * time.Minute,
			MMUInterval:           6 * time.Hour,
			MMULeadDays:           3,
		},
	}
}

// RedisAddr returns the host:port address for the configured Redis.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
