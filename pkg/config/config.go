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
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	FeatureFlags  FeatureFlagsConfig
	PayPal        PayPalConfig
	Checkout      CheckoutConfig
	AuthRateLimit AuthRateLimitConfig
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
	Env          string `envconfig:"KAPEHAN_APP_ENV" required:"true"`
	Port         string `envconfig:"KAPEHAN_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"KAPEHAN_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"KAPEHAN_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"KAPEHAN_DB_DSN"`
	Driver string `envconfig:"KAPEHAN_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"KAPEHAN_DB_HOST"`
	LegacyPort     int    `envconfig:"KAPEHAN_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"KAPEHAN_DB_USER"`
	LegacyPassword string `envconfig:"KAPEHAN_DB_PASSWORD"`
	LegacyName     string `envconfig:"KAPEHAN_DB_NAME"`
	LegacySSLMode  string `envconfig:"KAPEHAN_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"KAPEHAN_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"KAPEHAN_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"KAPEHAN_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"KAPEHAN_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"KAPEHAN_REDIS_URL" required:"true"`
	Address      string        `envconfig:"KAPEHAN_REDIS_ADDR"`
	Password     string        `envconfig:"KAPEHAN_REDIS_PASSWORD"`
	DB           int           `envconfig:"KAPEHAN_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"KAPEHAN_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"KAPEHAN_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"KAPEHAN_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"KAPEHAN_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"KAPEHAN_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"KAPEHAN_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"KAPEHAN_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"KAPEHAN_JWT_EXPIRATION_MINUTES" required:"true"`
	RefreshTokenTTLMinutes int    `envconfig:"KAPEHAN_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"KAPEHAN_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"KAPEHAN_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"KAPEHAN_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"KAPEHAN_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"KAPEHAN_ARGON_KEY_LEN" default:"32"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"KAPEHAN_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"KAPEHAN_AUTO_MIGRATE" default:"false"`
}

type PayPalConfig struct {
	ClientID string        `envconfig:"KAPEHAN_PAYPAL_CLIENT_ID"`
	Secret   string        `envconfig:"KAPEHAN_PAYPAL_SECRET"`
	Env      string        `envconfig:"KAPEHAN_PAYPAL_ENV" default:"sandbox"`
	Currency string        `envconfig:"KAPEHAN_PAYPAL_CURRENCY" default:"PHP"`
	Timeout  time.Duration `envconfig:"KAPEHAN_PAYPAL_TIMEOUT" default:"30s"`
}

// Environment returns the normalized PayPal environment (sandbox/live).
func (p PayPalConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(p.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"KAPEHAN_AUTH_LOGIN_WINDOW" default:"1m"`
	LoginIPLimit       int           `envconfig:"KAPEHAN_AUTH_LOGIN_IP_LIMIT" default:"10"`
	LoginEmailLimit    int           `envconfig:"KAPEHAN_AUTH_LOGIN_EMAIL_LIMIT" default:"5"`
	RegisterWindow     time.Duration `envconfig:"KAPEHAN_AUTH_REGISTER_WINDOW" default:"1h"`
	RegisterIPLimit    int           `envconfig:"KAPEHAN_AUTH_REGISTER_IP_LIMIT" default:"30"`
	RegisterEmailLimit int           `envconfig:"KAPEHAN_AUTH_REGISTER_EMAIL_LIMIT" default:"10"`
}

type CheckoutConfig struct {
	TaxRate          string        `envconfig:"KAPEHAN_CHECKOUT_TAX_RATE" default:"0.02"`
	PendingOrderTTL  time.Duration `envconfig:"KAPEHAN_CHECKOUT_PENDING_ORDER_TTL" default:"30m"`
	GCashRedirectURL string        `envconfig:"KAPEHAN_CHECKOUT_GCASH_REDIRECT_URL" default:"https://payments.kapehan.ph/gcash/checkout"`
}

// TaxRateDecimal parses the configured rate. An empty value disables the
// server-side tax check.
func (c CheckoutConfig) TaxRateDecimal() (decimal.Decimal, error) {
	raw := strings.TrimSpace(c.TaxRate)
	if raw == "" {
		return decimal.Zero, nil
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing tax rate %q: %w", c.TaxRate, err)
	}
	if rate.IsNegative() {
		return decimal.Zero, fmt.Errorf("tax rate %q must not be negative", c.TaxRate)
	}
	return rate, nil
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
