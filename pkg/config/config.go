package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Paystack     PaystackConfig
	Raffle       RaffleConfig
	SMTP         SMTPConfig
	Outbox       OutboxConfig
	Notify       NotifyConfig
	Cron         CronConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.DB.DSN == "" {
		dsn, err := cfg.DB.legacyDSN()
		if err != nil {
			return nil, err
		}
		cfg.DB.DSN = dsn
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"RAFFLEPOT_APP_ENV" required:"true"`
	Port         string   `envconfig:"RAFFLEPOT_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"RAFFLEPOT_LOG_LEVEL" default:"info"`
	LogFormat    string   `envconfig:"RAFFLEPOT_LOG_FORMAT" default:"json"`
	LogWarnStack bool     `envconfig:"RAFFLEPOT_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"RAFFLEPOT_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"RAFFLEPOT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"RAFFLEPOT_DB_DSN"`
	Driver string `envconfig:"RAFFLEPOT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"RAFFLEPOT_DB_HOST"`
	LegacyPort     int    `envconfig:"RAFFLEPOT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"RAFFLEPOT_DB_USER"`
	LegacyPassword string `envconfig:"RAFFLEPOT_DB_PASSWORD"`
	LegacyName     string `envconfig:"RAFFLEPOT_DB_NAME"`
	LegacySSLMode  string `envconfig:"RAFFLEPOT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"RAFFLEPOT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"RAFFLEPOT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"RAFFLEPOT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"RAFFLEPOT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"RAFFLEPOT_DB_SLOW_QUERY" default:"500ms"`
	TxAttempts      int           `envconfig:"RAFFLEPOT_DB_TX_ATTEMPTS" default:"3"`
}

type RedisConfig struct {
	URL          string        `envconfig:"RAFFLEPOT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"RAFFLEPOT_REDIS_ADDR"`
	Password     string        `envconfig:"RAFFLEPOT_REDIS_PASSWORD"`
	DB           int           `envconfig:"RAFFLEPOT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"RAFFLEPOT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"RAFFLEPOT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"RAFFLEPOT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"RAFFLEPOT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"RAFFLEPOT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"RAFFLEPOT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"RAFFLEPOT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"RAFFLEPOT_JWT_EXPIRATION_MINUTES" default:"60"`
}

// Expiration returns the access token lifetime.
func (j JWTConfig) Expiration() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"RAFFLEPOT_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"RAFFLEPOT_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL  time.Duration `envconfig:"RAFFLEPOT_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	RequestIdempotencyTTL time.Duration `envconfig:"RAFFLEPOT_REQUEST_IDEMPOTENCY_TTL" default:"24h"`
	WebhookIdempotencyTTL time.Duration `envconfig:"RAFFLEPOT_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"RAFFLEPOT_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"RAFFLEPOT_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"RAFFLEPOT_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DrawTopic        string `envconfig:"RAFFLEPOT_PUBSUB_DRAW_TOPIC" default:"rafflepot-draw-events"`
	DrawSubscription string `envconfig:"RAFFLEPOT_PUBSUB_DRAW_SUBSCRIPTION" default:"rafflepot-draw-events-notifier"`
}

type PaystackConfig struct {
	SecretKey   string        `envconfig:"RAFFLEPOT_PAYSTACK_SECRET_KEY"`
	BaseURL     string        `envconfig:"RAFFLEPOT_PAYSTACK_BASE_URL" default:"https://api.paystack.co"`
	CallbackURL string        `envconfig:"RAFFLEPOT_PAYSTACK_CALLBACK_URL"`
	Currency    string        `envconfig:"RAFFLEPOT_PAYSTACK_CURRENCY" default:"NGN"`
	Timeout     time.Duration `envconfig:"RAFFLEPOT_PAYSTACK_TIMEOUT" default:"15s"`
}

type RaffleConfig struct {
	PointsPerCurrencyUnit decimal.Decimal `envconfig:"RAFFLEPOT_POINTS_PER_CURRENCY_UNIT" default:"10"`
	WithdrawalMin         decimal.Decimal `envconfig:"RAFFLEPOT_WITHDRAWAL_MIN" default:"1000"`
}

type SMTPConfig struct {
	Host     string `envconfig:"RAFFLEPOT_SMTP_HOST"`
	Port     int    `envconfig:"RAFFLEPOT_SMTP_PORT" default:"587"`
	Username string `envconfig:"RAFFLEPOT_SMTP_USERNAME"`
	Password string `envconfig:"RAFFLEPOT_SMTP_PASSWORD"`
	From     string `envconfig:"RAFFLEPOT_SMTP_FROM" default:"no-reply@rafflepot.app"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"RAFFLEPOT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"RAFFLEPOT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"RAFFLEPOT_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type NotifyConfig struct {
	MaxAttempts int `envconfig:"RAFFLEPOT_NOTIFY_MAX_ATTEMPTS" default:"5"`
}

type CronConfig struct {
	Tick                     time.Duration `envconfig:"RAFFLEPOT_CRON_TICK" default:"1m"`
	DepositReconcileInterval time.Duration `envconfig:"RAFFLEPOT_CRON_DEPOSIT_RECONCILE_INTERVAL" default:"5m"`
	OutboxRetentionInterval  time.Duration `envconfig:"RAFFLEPOT_CRON_OUTBOX_RETENTION_INTERVAL" default:"1h"`
	StaleDepositAge          time.Duration `envconfig:"RAFFLEPOT_CRON_STALE_DEPOSIT_AGE" default:"30m"`
	DepositExpiry            time.Duration `envconfig:"RAFFLEPOT_CRON_DEPOSIT_EXPIRY" default:"24h"`
	DepositBatchLimit        int           `envconfig:"RAFFLEPOT_CRON_DEPOSIT_BATCH_LIMIT" default:"100"`
}

// RateLimitConfig bounds money-moving requests per caller. A zero limit
// disables the check.
type RateLimitConfig struct {
	Window       time.Duration `envconfig:"RAFFLEPOT_RATE_LIMIT_WINDOW" default:"1m"`
	MoneyLimit   int           `envconfig:"RAFFLEPOT_RATE_LIMIT_MONEY" default:"20"`
	WebhookLimit int           `envconfig:"RAFFLEPOT_RATE_LIMIT_WEBHOOK" default:"300"`
}
