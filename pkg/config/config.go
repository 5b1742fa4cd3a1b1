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
	Password     PasswordConfig
	LoginLimit   LoginRateLimitConfig
	FeatureFlags FeatureFlagsConfig
	Stripe       StripeConfig
	Checkout     CheckoutConfig
	Cart         CartConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Stripe.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MARKETPLACE_APP_ENV" required:"true"`
	Port         string `envconfig:"MARKETPLACE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MARKETPLACE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MARKETPLACE_LOG_WARN_STACK" default:"false"`
	LoginPath    string `envconfig:"MARKETPLACE_LOGIN_PATH" default:"/login"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"MARKETPLACE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"MARKETPLACE_DB_DSN"`
	Driver string `envconfig:"MARKETPLACE_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"MARKETPLACE_DB_HOST"`
	Port     int    `envconfig:"MARKETPLACE_DB_PORT" default:"5432"`
	User     string `envconfig:"MARKETPLACE_DB_USER"`
	Password string `envconfig:"MARKETPLACE_DB_PASSWORD"`
	Name     string `envconfig:"MARKETPLACE_DB_NAME"`
	SSLMode  string `envconfig:"MARKETPLACE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MARKETPLACE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MARKETPLACE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MARKETPLACE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MARKETPLACE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MARKETPLACE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MARKETPLACE_REDIS_ADDR"`
	Password     string        `envconfig:"MARKETPLACE_REDIS_PASSWORD"`
	DB           int           `envconfig:"MARKETPLACE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MARKETPLACE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MARKETPLACE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MARKETPLACE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MARKETPLACE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MARKETPLACE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"MARKETPLACE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"MARKETPLACE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"MARKETPLACE_JWT_EXPIRATION_MINUTES" default:"60"`
}

// TTL returns the access token lifetime.
func (j JWTConfig) TTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"MARKETPLACE_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"MARKETPLACE_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"MARKETPLACE_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"MARKETPLACE_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"MARKETPLACE_ARGON_KEY_LEN" default:"32"`
}

type LoginRateLimitConfig struct {
	Window     time.Duration `envconfig:"MARKETPLACE_LOGIN_RATE_LIMIT_WINDOW" default:"1m"`
	EmailLimit int           `envconfig:"MARKETPLACE_LOGIN_RATE_LIMIT_EMAIL" default:"5"`
	IPLimit    int           `envconfig:"MARKETPLACE_LOGIN_RATE_LIMIT_IP" default:"20"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"MARKETPLACE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"MARKETPLACE_AUTO_MIGRATE" default:"false"`
}

type StripeConfig struct {
	APIKey            string        `envconfig:"MARKETPLACE_STRIPE_API_KEY"`
	WebhookSecret     string        `envconfig:"MARKETPLACE_STRIPE_WEBHOOK_SECRET"`
	Env               string        `envconfig:"MARKETPLACE_STRIPE_ENV" default:"test"`
	Currency          string        `envconfig:"MARKETPLACE_STRIPE_CURRENCY" default:"usd"`
	ShippingCountries []string      `envconfig:"MARKETPLACE_STRIPE_SHIPPING_COUNTRIES" default:"US,CA,GB,AU"`
	SessionTTL        time.Duration `envconfig:"MARKETPLACE_STRIPE_SESSION_TTL" default:"24h"`
	WebhookDedupeTTL  time.Duration `envconfig:"MARKETPLACE_STRIPE_WEBHOOK_DEDUPE_TTL" default:"720h"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return StripeEnvTest
	}
	return env
}

func (s StripeConfig) validate() error {
	switch s.Environment() {
	case StripeEnvTest, StripeEnvLive:
	default:
		return fmt.Errorf("%s must be %q or %q", EnvStripeEnv, StripeEnvTest, StripeEnvLive)
	}
	// stripe only accepts sessions that expire between 30 minutes and 24 hours out
	if s.SessionTTL < 30*time.Minute || s.SessionTTL > 24*time.Hour {
		return fmt.Errorf("%s must be between 30m and 24h", EnvStripeSessionTTL)
	}
	return nil
}

type CheckoutConfig struct {
	PublicOrigin   string   `envconfig:"MARKETPLACE_CHECKOUT_PUBLIC_ORIGIN" default:"http://localhost:3000"`
	AllowedOrigins []string `envconfig:"MARKETPLACE_CHECKOUT_ALLOWED_ORIGINS"`
}

type CartConfig struct {
	GuestTTL time.Duration `envconfig:"MARKETPLACE_CART_GUEST_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"MARKETPLACE_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	OrdersTopic    string `envconfig:"MARKETPLACE_PUBSUB_ORDERS_TOPIC" default:"marketplace-order-events"`
	InventoryTopic string `envconfig:"MARKETPLACE_PUBSUB_INVENTORY_TOPIC" default:"marketplace-inventory-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"MARKETPLACE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"MARKETPLACE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"MARKETPLACE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Interval        time.Duration `envconfig:"MARKETPLACE_CRON_INTERVAL" default:"15m"`
	LockTTL         time.Duration `envconfig:"MARKETPLACE_CRON_LOCK_TTL" default:"10m"`
	OrderPendingTTL time.Duration `envconfig:"MARKETPLACE_ORDER_PENDING_TTL" default:"25h"`
}

func (db *DBConfig) ensureDSN(sqlite bool) error {
	if db.DSN != "" {
		return nil
	}
	if sqlite {
		db.DSN = "file:marketplace.db?cache=shared"
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range splitDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}
	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
