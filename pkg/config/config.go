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
	Ledger       LedgerConfig
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
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"FASTREPAIR_APP_ENV" required:"true"`
	Port         string `envconfig:"FASTREPAIR_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"FASTREPAIR_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FASTREPAIR_LOG_WARN_STACK" default:"false"`

	// CORSOrigins lists the console origins allowed to call the API.
	CORSOrigins []string `envconfig:"FASTREPAIR_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"FASTREPAIR_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"FASTREPAIR_DB_DSN"`
	Driver string `envconfig:"FASTREPAIR_DB_DRIVER" default:"postgres"`

	// SQLitePath is used instead of the DSN on single-workstation installs.
	SQLitePath string `envconfig:"FASTREPAIR_SQLITE_PATH" default:"fastrepair.db"`

	LegacyHost     string `envconfig:"FASTREPAIR_DB_HOST"`
	LegacyPort     int    `envconfig:"FASTREPAIR_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"FASTREPAIR_DB_USER"`
	LegacyPassword string `envconfig:"FASTREPAIR_DB_PASSWORD"`
	LegacyName     string `envconfig:"FASTREPAIR_DB_NAME"`
	LegacySSLMode  string `envconfig:"FASTREPAIR_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FASTREPAIR_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FASTREPAIR_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FASTREPAIR_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FASTREPAIR_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FASTREPAIR_REDIS_URL"`
	Address      string        `envconfig:"FASTREPAIR_REDIS_ADDR"`
	Password     string        `envconfig:"FASTREPAIR_REDIS_PASSWORD"`
	DB           int           `envconfig:"FASTREPAIR_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FASTREPAIR_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FASTREPAIR_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FASTREPAIR_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FASTREPAIR_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FASTREPAIR_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a Redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type JWTConfig struct {
	Secret            string `envconfig:"FASTREPAIR_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"FASTREPAIR_JWT_ISSUER" default:"fastrepair"`
	ExpirationMinutes int    `envconfig:"FASTREPAIR_JWT_EXPIRATION_MINUTES" default:"720"`
	// LeewaySeconds tolerates clock skew between the console and the API.
	LeewaySeconds int `envconfig:"FASTREPAIR_JWT_LEEWAY_SECONDS" default:"30"`
}

// Expiration returns the access token lifetime.
func (j JWTConfig) Expiration() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

// Leeway returns the accepted clock skew for exp/iat checks.
func (j JWTConfig) Leeway() time.Duration {
	if j.LeewaySeconds <= 0 {
		return 0
	}
	return time.Duration(j.LeewaySeconds) * time.Second
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"FASTREPAIR_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"FASTREPAIR_AUTO_MIGRATE" default:"false"`
}

type LedgerConfig struct {
	// AllowNegativeBalance keeps the historical behavior of letting the
	// register go below zero.
	AllowNegativeBalance bool          `envconfig:"FASTREPAIR_LEDGER_ALLOW_NEGATIVE_BALANCE" default:"true"`
	LockTimeout          time.Duration `envconfig:"FASTREPAIR_LEDGER_LOCK_TIMEOUT" default:"3s"`
	MaxRetries           uint64        `envconfig:"FASTREPAIR_LEDGER_MAX_RETRIES" default:"4"`
	RetryBaseDelay       time.Duration `envconfig:"FASTREPAIR_LEDGER_RETRY_BASE_DELAY" default:"25ms"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"FASTREPAIR_OUTBOX_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"FASTREPAIR_OUTBOX_POLL_MS" default:"1000"`
	MaxAttempts    int `envconfig:"FASTREPAIR_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// PollInterval converts the poll setting into a duration.
func (o OutboxConfig) PollInterval() time.Duration {
	if o.PollIntervalMS <= 0 {
		return time.Second
	}
	return time.Duration(o.PollIntervalMS) * time.Millisecond
}

type CronConfig struct {
	Interval            time.Duration `envconfig:"FASTREPAIR_CRON_INTERVAL" default:"24h"`
	LockTTL             time.Duration `envconfig:"FASTREPAIR_CRON_LOCK_TTL" default:"30m"`
	OutboxRetentionDays int           `envconfig:"FASTREPAIR_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" || useSQLite {
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
