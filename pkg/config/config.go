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
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Razorpay  RazorpayConfig
	Kafka     KafkaConfig
	Outbox    OutboxConfig
	Orders    OrdersConfig
	RateLimit RateLimitConfig
	Payouts   PayoutsConfig
	Storage   StorageConfig
	Cron      CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if _, err := cfg.Orders.Tax(); err != nil {
		return nil, err
	}
	if _, err := cfg.Payouts.Commission(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"KARTMITRA_APP_ENV" required:"true"`
	Port         string `envconfig:"KARTMITRA_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"KARTMITRA_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"KARTMITRA_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN string `envconfig:"KARTMITRA_DB_DSN"`

	Host     string `envconfig:"KARTMITRA_DB_HOST"`
	Port     int    `envconfig:"KARTMITRA_DB_PORT" default:"5432"`
	User     string `envconfig:"KARTMITRA_DB_USER"`
	Password string `envconfig:"KARTMITRA_DB_PASSWORD"`
	Name     string `envconfig:"KARTMITRA_DB_NAME"`
	SSLMode  string `envconfig:"KARTMITRA_DB_SSLMODE" default:"disable"`

	AutoMigrate bool `envconfig:"KARTMITRA_DB_AUTO_MIGRATE" default:"false"`

	MaxOpenConns    int           `envconfig:"KARTMITRA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"KARTMITRA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"KARTMITRA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"KARTMITRA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"KARTMITRA_REDIS_URL" required:"true"`
	Address      string        `envconfig:"KARTMITRA_REDIS_ADDR"`
	Password     string        `envconfig:"KARTMITRA_REDIS_PASSWORD"`
	DB           int           `envconfig:"KARTMITRA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"KARTMITRA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"KARTMITRA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"KARTMITRA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"KARTMITRA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"KARTMITRA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"KARTMITRA_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"KARTMITRA_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"KARTMITRA_JWT_EXPIRATION_MINUTES" default:"60"`
}

// RazorpayConfig carries the gateway credentials. Key/secret are required for
// the API binary; the fake-gateway fallback is only honored outside production.
type RazorpayConfig struct {
	KeyID         string `envconfig:"KARTMITRA_RAZORPAY_KEY_ID"`
	KeySecret     string `envconfig:"KARTMITRA_RAZORPAY_KEY_SECRET"`
	WebhookSecret string `envconfig:"KARTMITRA_RAZORPAY_WEBHOOK_SECRET"`
	BaseURL       string `envconfig:"KARTMITRA_RAZORPAY_BASE_URL" default:"https://api.razorpay.com/v1"`
	AllowFake     bool   `envconfig:"KARTMITRA_RAZORPAY_ALLOW_FAKE" default:"false"`
}

type KafkaConfig struct {
	Brokers       []string `envconfig:"KARTMITRA_KAFKA_BROKERS" default:"localhost:9092"`
	DomainTopic   string   `envconfig:"KARTMITRA_KAFKA_DOMAIN_TOPIC" default:"kartmitra-domain-events"`
	ConsumerGroup string   `envconfig:"KARTMITRA_KAFKA_CONSUMER_GROUP" default:"kartmitra-notification-worker"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"KARTMITRA_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"KARTMITRA_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"KARTMITRA_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"KARTMITRA_OUTBOX_RETENTION_DAYS" default:"14"`
}

type OrdersConfig struct {
	ReservationTTLMinutes int    `envconfig:"KARTMITRA_RESERVATION_TTL_MINUTES" default:"10"`
	AutoCancelMinutes     int    `envconfig:"KARTMITRA_ORDER_AUTO_CANCEL_MINUTES" default:"15"`
	TaxPercent            string `envconfig:"KARTMITRA_ORDER_TAX_PERCENT" default:"5"`
}

// Tax parses the configured order tax percentage.
func (o OrdersConfig) Tax() (decimal.Decimal, error) {
	pct, err := decimal.NewFromString(strings.TrimSpace(o.TaxPercent))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid tax percent %q: %w", o.TaxPercent, err)
	}
	if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Zero, fmt.Errorf("tax percent %s out of range", pct)
	}
	return pct, nil
}

// ReservationTTL returns the hold duration granted to a freshly placed order.
func (o OrdersConfig) ReservationTTL() time.Duration {
	if o.ReservationTTLMinutes <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(o.ReservationTTLMinutes) * time.Minute
}

// AutoCancelAfter returns how long an order may sit in PLACED before the sweep
// cancels it.
func (o OrdersConfig) AutoCancelAfter() time.Duration {
	if o.AutoCancelMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(o.AutoCancelMinutes) * time.Minute
}

// RateLimitConfig throttles private API traffic. The write policy covers
// order placement, payment, and return endpoints; the general policy covers
// everything else behind auth.
type RateLimitConfig struct {
	Window         time.Duration `envconfig:"KARTMITRA_RATELIMIT_WINDOW" default:"1m"`
	IPLimit        int           `envconfig:"KARTMITRA_RATELIMIT_IP_LIMIT" default:"300"`
	UserLimit      int           `envconfig:"KARTMITRA_RATELIMIT_USER_LIMIT" default:"120"`
	WriteWindow    time.Duration `envconfig:"KARTMITRA_RATELIMIT_WRITE_WINDOW" default:"1m"`
	WriteIPLimit   int           `envconfig:"KARTMITRA_RATELIMIT_WRITE_IP_LIMIT" default:"60"`
	WriteUserLimit int           `envconfig:"KARTMITRA_RATELIMIT_WRITE_USER_LIMIT" default:"30"`
}

type PayoutsConfig struct {
	CommissionPercent string `envconfig:"KARTMITRA_PAYOUT_COMMISSION_PERCENT" default:"10"`
	PeriodDays        int    `envconfig:"KARTMITRA_PAYOUT_PERIOD_DAYS" default:"7"`
}

// Commission parses the configured marketplace commission percentage.
func (p PayoutsConfig) Commission() (decimal.Decimal, error) {
	pct, err := decimal.NewFromString(strings.TrimSpace(p.CommissionPercent))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid commission percent %q: %w", p.CommissionPercent, err)
	}
	if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Zero, fmt.Errorf("commission percent %s out of range", pct)
	}
	return pct, nil
}

type StorageConfig struct {
	OSSEndpoint     string `envconfig:"KARTMITRA_OSS_ENDPOINT"`
	OSSBucket       string `envconfig:"KARTMITRA_OSS_BUCKET"`
	AccessKeyID     string `envconfig:"KARTMITRA_OSS_ACCESS_KEY_ID"`
	AccessKeySecret string `envconfig:"KARTMITRA_OSS_ACCESS_KEY_SECRET"`
	PublicBaseURL   string `envconfig:"KARTMITRA_OSS_PUBLIC_BASE_URL"`
	MaxUploadMB     int    `envconfig:"KARTMITRA_MAX_UPLOAD_MB" default:"10"`
	MaxLogoMB       int    `envconfig:"KARTMITRA_MAX_LOGO_MB" default:"5"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"KARTMITRA_CRON_INTERVAL" default:"1m"`
	LockKey  string        `envconfig:"KARTMITRA_CRON_LOCK_KEY" default:"cron:leader"`
	LockTTL  time.Duration `envconfig:"KARTMITRA_CRON_LOCK_TTL" default:"5m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	parts := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, name := range requiredDBEnvVars {
		if parts[name] == "" {
			missing = append(missing, name)
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
