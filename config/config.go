package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	AES      AESConfig      `mapstructure:"aes"`
	Log      LogConfig      `mapstructure:"log"`
	Admin    AdminConfig    `mapstructure:"admin"`
	Acquirer AcquirerConfig `mapstructure:"acquirer"`
	Lock     LockConfig     `mapstructure:"lock"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Deadlock DeadlockConfig `mapstructure:"deadlock"`
	Rate     RateConfig     `mapstructure:"ratelimit"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Limits   LimitsConfig   `mapstructure:"limits"`
}

type ServerConfig struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	Mode    string `mapstructure:"mode"` // debug, release, test
	BaseURL string `mapstructure:"base_url"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

type AESConfig struct {
	Key string `mapstructure:"key"` // 32-byte hex-encoded key for AES-256
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// AdminConfig holds the operator credential guarding team registration.
type AdminConfig struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"` // argon2id encoded hash
}

// AcquirerConfig points at the external card network adapter.
type AcquirerConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	TerminalID string        `mapstructure:"terminal_id"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// LockConfig tunes the distributed lock service.
type LockConfig struct {
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
	LeaseDuration  time.Duration `mapstructure:"lease_duration"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
}

// QueueConfig tunes the payment work queue.
type QueueConfig struct {
	Capacity          int           `mapstructure:"capacity"`
	Workers           int           `mapstructure:"workers"`
	ProcessingTimeout time.Duration `mapstructure:"processing_timeout"`
	Retries           int           `mapstructure:"retries"`
	BackoffBase       time.Duration `mapstructure:"backoff_base"`
}

// DeadlockConfig tunes the lock-wait-graph detector.
type DeadlockConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	MaxWait     time.Duration `mapstructure:"max_wait"`
	AutoResolve bool          `mapstructure:"auto_resolve"`
	HistoryCap  int           `mapstructure:"history_cap"`
}

// RatePolicy defines one token-bucket policy.
type RatePolicy struct {
	Rate  float64 `mapstructure:"rate"`  // tokens per second
	Burst float64 `mapstructure:"burst"` // bucket capacity
	Scope string  `mapstructure:"scope"` // "merchant" or "global"
}

type RateConfig struct {
	Policies map[string]RatePolicy `mapstructure:"policies"`
}

// WebhookConfig tunes merchant notification delivery.
type WebhookConfig struct {
	Schedule    []time.Duration `mapstructure:"schedule"`
	MaxAttempts int             `mapstructure:"max_attempts"`
	Timeout     time.Duration   `mapstructure:"timeout"`
}

// LimitsConfig bounds accepted payment amounts (minor units) and the
// payment deadline.
type LimitsConfig struct {
	MinAmount  int64         `mapstructure:"min_amount"`
	MaxAmount  int64         `mapstructure:"max_amount"`
	PaymentTTL time.Duration `mapstructure:"payment_ttl"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: GW_.
// Nested keys use underscore: GW_DATABASE_HOST, GW_JWT_SECRET, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "acquiring_gateway")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("jwt.issuer", "acquiring-gateway")
	v.SetDefault("aes.key", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("admin.username", "admin")
	v.SetDefault("admin.password_hash", "")
	v.SetDefault("acquirer.base_url", "http://localhost:9090")
	v.SetDefault("acquirer.terminal_id", "")
	v.SetDefault("acquirer.timeout", "10s")
	v.SetDefault("acquirer.max_retries", 2)
	v.SetDefault("lock.default_timeout", "30s")
	v.SetDefault("lock.lease_duration", "60s")
	v.SetDefault("lock.max_retries", 3)
	v.SetDefault("lock.retry_delay", "50ms")
	v.SetDefault("queue.capacity", 10000)
	v.SetDefault("queue.workers", 50)
	v.SetDefault("queue.processing_timeout", "5m")
	v.SetDefault("queue.retries", 3)
	v.SetDefault("queue.backoff_base", "30s")
	v.SetDefault("deadlock.interval", "30s")
	v.SetDefault("deadlock.max_wait", "30s")
	v.SetDefault("deadlock.auto_resolve", true)
	v.SetDefault("deadlock.history_cap", 100)
	v.SetDefault("webhook.max_attempts", 7)
	v.SetDefault("webhook.timeout", "10s")
	v.SetDefault("limits.min_amount", 1000)
	v.SetDefault("limits.max_amount", 9999999999)
	v.SetDefault("limits.payment_ttl", "24h")

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: GW_DATABASE_HOST -> database.host
	v.SetEnvPrefix("GW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required — env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if len(cfg.Rate.Policies) == 0 {
		cfg.Rate.Policies = DefaultRatePolicies()
	}
	if len(cfg.Webhook.Schedule) == 0 {
		cfg.Webhook.Schedule = DefaultWebhookSchedule()
	}

	return &cfg, nil
}

// Policy names referenced by the HTTP layer and the coordinator.
const (
	PolicyGeneral     = "general"
	PolicyPaymentInit = "payment_init"
	PolicyProcessing  = "processing"
)

// DefaultRatePolicies returns the shipped token-bucket policies.
func DefaultRatePolicies() map[string]RatePolicy {
	return map[string]RatePolicy{
		PolicyGeneral:     {Rate: 100, Burst: 200, Scope: "merchant"},
		PolicyPaymentInit: {Rate: 20, Burst: 40, Scope: "merchant"},
		PolicyProcessing:  {Rate: 50, Burst: 50, Scope: "global"},
	}
}

// DefaultWebhookSchedule returns the delivery retry offsets.
func DefaultWebhookSchedule() []time.Duration {
	return []time.Duration{
		0,
		1 * time.Minute,
		5 * time.Minute,
		15 * time.Minute,
		60 * time.Minute,
		240 * time.Minute,
		1440 * time.Minute,
	}
}
