package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix  = ""
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

type Config struct {
	App    AppConfig
	DB     DBConfig
	Redis  RedisConfig
	JWT    JWTConfig
	GCP    GCPConfig
	PubSub PubSubConfig
	Outbox OutboxConfig
	Stripe StripeConfig
	Square SquareConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MENTORA_APP_ENV" required:"true"`
	Port         string `envconfig:"MENTORA_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MENTORA_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MENTORA_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"MENTORA_DB_DSN"`
	Driver string `envconfig:"MENTORA_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"MENTORA_DB_HOST"`
	Port     int    `envconfig:"MENTORA_DB_PORT" default:"5432"`
	User     string `envconfig:"MENTORA_DB_USER"`
	Password string `envconfig:"MENTORA_DB_PASSWORD"`
	Name     string `envconfig:"MENTORA_DB_NAME"`
	SSLMode  string `envconfig:"MENTORA_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MENTORA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MENTORA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MENTORA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MENTORA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (d *DBConfig) ensureDSN() error {
	if strings.TrimSpace(d.DSN) != "" {
		return nil
	}
	if d.Host == "" || d.User == "" || d.Name == "" {
		return fmt.Errorf("database DSN or host/user/name must be configured")
	}
	d.DSN = fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(d.User),
		url.QueryEscape(d.Password),
		d.Host,
		d.Port,
		d.Name,
		d.SSLMode,
	)
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"MENTORA_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MENTORA_REDIS_ADDR"`
	Password     string        `envconfig:"MENTORA_REDIS_PASSWORD"`
	DB           int           `envconfig:"MENTORA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MENTORA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MENTORA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MENTORA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MENTORA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MENTORA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"MENTORA_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"MENTORA_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"MENTORA_JWT_EXPIRATION_MINUTES" default:"60"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"MENTORA_GCP_PROJECT_ID" required:"true"`
}

type PubSubConfig struct {
	OrdersTopic        string `envconfig:"MENTORA_PUBSUB_ORDERS_TOPIC" required:"true"`
	NotificationTopic  string `envconfig:"MENTORA_PUBSUB_NOTIFICATION_TOPIC" default:"mentora-notification-events"`
	OrdersSubscription string `envconfig:"MENTORA_PUBSUB_ORDERS_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"MENTORA_OUTBOX_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"MENTORA_OUTBOX_POLL_INTERVAL_MS" default:"500"`
	MaxAttempts    int `envconfig:"MENTORA_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type StripeConfig struct {
	APIKey        string        `envconfig:"MENTORA_STRIPE_API_KEY" required:"true"`
	WebhookSecret string        `envconfig:"MENTORA_STRIPE_WEBHOOK_SECRET" required:"true"`
	Env           string        `envconfig:"MENTORA_STRIPE_ENV" default:"test"`
	SuccessURL    string        `envconfig:"MENTORA_STRIPE_SUCCESS_URL" required:"true"`
	CancelURL     string        `envconfig:"MENTORA_STRIPE_CANCEL_URL" required:"true"`
	Timeout       time.Duration `envconfig:"MENTORA_STRIPE_TIMEOUT" default:"15s"`
}

func (s StripeConfig) Environment() string {
	return s.Env
}

type SquareConfig struct {
	AccessToken     string        `envconfig:"MENTORA_SQUARE_ACCESS_TOKEN" required:"true"`
	WebhookSecret   string        `envconfig:"MENTORA_SQUARE_WEBHOOK_SECRET" required:"true"`
	Env             string        `envconfig:"MENTORA_SQUARE_ENV" default:"sandbox"`
	LocationID      string        `envconfig:"MENTORA_SQUARE_LOCATION_ID" required:"true"`
	NotificationURL string        `envconfig:"MENTORA_SQUARE_NOTIFICATION_URL" required:"true"`
	Timeout         time.Duration `envconfig:"MENTORA_SQUARE_TIMEOUT" default:"15s"`
}

func (s SquareConfig) Environment() string {
	return s.Env
}
