package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App        AppConfig
	DB         DBConfig
	Redis      RedisConfig
	Stripe     StripeConfig
	Scheduler  SchedulerConfig
	Settlement SettlementConfig
	Tokens     TokensConfig
	GCP        GCPConfig
	PubSub     PubSubConfig
	Flags      FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if _, err := cfg.Settlement.FeeRate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"DECODE_APP_ENV" required:"true"`
	Port         string `envconfig:"DECODE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"DECODE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"DECODE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"DECODE_DB_DSN"`
	Driver string `envconfig:"DECODE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"DECODE_DB_HOST"`
	LegacyPort     int    `envconfig:"DECODE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"DECODE_DB_USER"`
	LegacyPassword string `envconfig:"DECODE_DB_PASSWORD"`
	LegacyName     string `envconfig:"DECODE_DB_NAME"`
	LegacySSLMode  string `envconfig:"DECODE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"DECODE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"DECODE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DECODE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"DECODE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"DECODE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"DECODE_REDIS_ADDR"`
	Password     string        `envconfig:"DECODE_REDIS_PASSWORD"`
	DB           int           `envconfig:"DECODE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"DECODE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"DECODE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DECODE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"DECODE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"DECODE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type StripeConfig struct {
	APIKey string `envconfig:"DECODE_STRIPE_API_KEY"`
	Secret string `envconfig:"DECODE_STRIPE_SECRET"`
	Env    string `envconfig:"DECODE_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type SchedulerConfig struct {
	BaseURL       string        `envconfig:"DECODE_SCHEDULER_BASE_URL"`
	Token         string        `envconfig:"DECODE_SCHEDULER_TOKEN" required:"true"`
	CallbackURL   string        `envconfig:"DECODE_SCHEDULER_CALLBACK_URL"`
	CallbackToken string        `envconfig:"DECODE_SCHEDULER_CALLBACK_TOKEN" required:"true"`
	Timeout       time.Duration `envconfig:"DECODE_SCHEDULER_TIMEOUT" default:"10s"`
	MaxRetries    int           `envconfig:"DECODE_SCHEDULER_MAX_RETRIES" default:"4"`
}

type SettlementConfig struct {
	PlatformFeeRate    string        `envconfig:"DECODE_SETTLEMENT_FEE_RATE" default:"0.25"`
	PayoutUnlockWindow time.Duration `envconfig:"DECODE_SETTLEMENT_PAYOUT_UNLOCK_WINDOW" default:"72h"`
	WebhookDedupeTTL   time.Duration `envconfig:"DECODE_SETTLEMENT_WEBHOOK_DEDUPE_TTL" default:"720h"`
}

// FeeRate parses the configured platform fee rate as a decimal fraction.
func (s SettlementConfig) FeeRate() (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(s.PlatformFeeRate))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid settlement fee rate %q: %w", s.PlatformFeeRate, err)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.New(1, 0)) {
		return decimal.Zero, fmt.Errorf("settlement fee rate %q must be within [0, 1]", s.PlatformFeeRate)
	}
	return rate, nil
}

type TokensConfig struct {
	Secret         string        `envconfig:"DECODE_TOKENS_SECRET" required:"true"`
	Issuer         string        `envconfig:"DECODE_TOKENS_ISSUER" default:"decode-backend"`
	DeliverableTTL time.Duration `envconfig:"DECODE_TOKENS_DELIVERABLE_TTL" default:"168h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"DECODE_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"DECODE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"DECODE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	NotificationTopic string `envconfig:"DECODE_PUBSUB_NOTIFICATION_TOPIC" default:"decode-notification-events"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"DECODE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"DECODE_AUTO_MIGRATE" default:"false"`
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
