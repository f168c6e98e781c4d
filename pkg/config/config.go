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
	Checkout     CheckoutConfig
	Cron         CronConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
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
	Env          string `envconfig:"ORDERCORE_APP_ENV" required:"true"`
	Port         string `envconfig:"ORDERCORE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"ORDERCORE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"ORDERCORE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"ORDERCORE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"ORDERCORE_DB_DSN"`
	Driver string `envconfig:"ORDERCORE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"ORDERCORE_DB_HOST"`
	LegacyPort     int    `envconfig:"ORDERCORE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ORDERCORE_DB_USER"`
	LegacyPassword string `envconfig:"ORDERCORE_DB_PASSWORD"`
	LegacyName     string `envconfig:"ORDERCORE_DB_NAME"`
	LegacySSLMode  string `envconfig:"ORDERCORE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ORDERCORE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ORDERCORE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ORDERCORE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ORDERCORE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ORDERCORE_REDIS_URL" required:"true"`
	Password     string        `envconfig:"ORDERCORE_REDIS_PASSWORD"`
	DB           int           `envconfig:"ORDERCORE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ORDERCORE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ORDERCORE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ORDERCORE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ORDERCORE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ORDERCORE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"ORDERCORE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"ORDERCORE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"ORDERCORE_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"ORDERCORE_AUTO_MIGRATE" default:"false"`
}

type CheckoutConfig struct {
	// PaymentWindow is how long a new order stays payable before its
	// reservations are released.
	PaymentWindow time.Duration `envconfig:"ORDERCORE_CHECKOUT_PAYMENT_WINDOW" default:"15m"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"ORDERCORE_CRON_INTERVAL" default:"1m"`
	LockTTL  time.Duration `envconfig:"ORDERCORE_CRON_LOCK_TTL" default:"5m"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"ORDERCORE_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	OrdersTopic string `envconfig:"ORDERCORE_PUBSUB_ORDERS_TOPIC" default:"ordercore-order-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"ORDERCORE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"ORDERCORE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"ORDERCORE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
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
