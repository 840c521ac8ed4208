package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
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
	Outbox       OutboxConfig
	Paymob       PaymobConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = "sqlite"
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env             string        `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port            string        `envconfig:"STOREFRONT_APP_PORT" required:"true"`
	LogLevel        string        `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack    bool          `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
	CORSOrigins     []string      `envconfig:"STOREFRONT_CORS_ORIGINS" default:"http://localhost:3000"`
	ShutdownTimeout time.Duration `envconfig:"STOREFRONT_SHUTDOWN_TIMEOUT" default:"15s"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"STOREFRONT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"STOREFRONT_DB_DSN"`
	Driver string `envconfig:"STOREFRONT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STOREFRONT_DB_HOST"`
	LegacyPort     int    `envconfig:"STOREFRONT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STOREFRONT_DB_USER"`
	LegacyPassword string `envconfig:"STOREFRONT_DB_PASSWORD"`
	LegacyName     string `envconfig:"STOREFRONT_DB_NAME"`
	LegacySSLMode  string `envconfig:"STOREFRONT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"STOREFRONT_DB_SLOW_QUERY" default:"250ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"STOREFRONT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"STOREFRONT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"STOREFRONT_JWT_EXPIRATION_MINUTES" required:"true"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"STOREFRONT_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	WebhookIdempotencyTTL time.Duration `envconfig:"STOREFRONT_EVENTING_WEBHOOK_IDEMPOTENCY_TTL" default:"72h"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"STOREFRONT_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"STOREFRONT_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	OrdersTopic       string `envconfig:"STOREFRONT_PUBSUB_ORDERS_TOPIC" default:"storefront-order-events"`
	NotificationTopic string `envconfig:"STOREFRONT_PUBSUB_NOTIFICATION_TOPIC" default:"storefront-notification-events"`
	// EmulatorHost points the client at a local Pub/Sub emulator; TLS and
	// credentials are skipped when set.
	EmulatorHost string `envconfig:"STOREFRONT_PUBSUB_EMULATOR_HOST"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"STOREFRONT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"STOREFRONT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"STOREFRONT_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// PaymobConfig holds the payment gateway credentials and call policy.
type PaymobConfig struct {
	BaseURL              string        `envconfig:"STOREFRONT_PAYMOB_BASE_URL" default:"https://accept.paymob.com/api"`
	APIKey               string        `envconfig:"STOREFRONT_PAYMOB_API_KEY"`
	IntegrationID        int64         `envconfig:"STOREFRONT_PAYMOB_INTEGRATION_ID"`
	IframeID             string        `envconfig:"STOREFRONT_PAYMOB_IFRAME_ID"`
	Currency             string        `envconfig:"STOREFRONT_PAYMOB_CURRENCY" default:"EGP"`
	HMACSecret           string        `envconfig:"STOREFRONT_PAYMOB_HMAC_SECRET"`
	Timeout              time.Duration `envconfig:"STOREFRONT_PAYMOB_TIMEOUT" default:"15s"`
	MaxRetries           int           `envconfig:"STOREFRONT_PAYMOB_MAX_RETRIES" default:"2"`
	RetryBaseDelay       time.Duration `envconfig:"STOREFRONT_PAYMOB_RETRY_BASE_DELAY" default:"250ms"`
	PaymentKeyExpiration int           `envconfig:"STOREFRONT_PAYMOB_PAYMENT_KEY_EXPIRATION" default:"3600"`

	// Billing fields fill the payment key's customer block. Blank values
	// fall back to the gateway placeholders.
	BillingEmail     string `envconfig:"STOREFRONT_PAYMOB_BILLING_EMAIL"`
	BillingFirstName string `envconfig:"STOREFRONT_PAYMOB_BILLING_FIRST_NAME"`
	BillingLastName  string `envconfig:"STOREFRONT_PAYMOB_BILLING_LAST_NAME"`
	BillingPhone     string `envconfig:"STOREFRONT_PAYMOB_BILLING_PHONE"`
	BillingCity      string `envconfig:"STOREFRONT_PAYMOB_BILLING_CITY"`
	BillingCountry   string `envconfig:"STOREFRONT_PAYMOB_BILLING_COUNTRY"`
}

// Enabled reports whether the gateway credentials are present.
func (p PaymobConfig) Enabled() bool {
	return strings.TrimSpace(p.APIKey) != "" && p.IntegrationID > 0 && strings.TrimSpace(p.IframeID) != ""
}

type CronConfig struct {
	Interval            time.Duration `envconfig:"STOREFRONT_CRON_INTERVAL" default:"15m"`
	LockName            string        `envconfig:"STOREFRONT_CRON_LOCK_NAME" default:"cron-worker"`
	OutboxRetentionDays int           `envconfig:"STOREFRONT_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
	MetricsAddr         string        `envconfig:"STOREFRONT_CRON_METRICS_ADDR" default:":9102"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.Driver == "sqlite" {
		db.DSN = "file:storefront.db?cache=shared"
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
