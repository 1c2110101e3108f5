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
	DB           DBConfig
	Redis        RedisConfig
	Session      SessionConfig
	Identity     IdentityConfig
	StatusCache  StatusCacheConfig
	Moderation   ModerationConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.StatusCache.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"BACKOFFICE_APP_ENV" required:"true"`
	Port         string `envconfig:"BACKOFFICE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"BACKOFFICE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"BACKOFFICE_LOG_WARN_STACK" default:"false"`
	// LogFormat is "json" or "console".
	LogFormat string `envconfig:"BACKOFFICE_LOG_FORMAT" default:"json"`
	// CORSOrigins is a comma separated allow-list for the admin frontend.
	CORSOrigins string `envconfig:"BACKOFFICE_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// AllowedOrigins splits CORSOrigins into a trimmed slice.
func (a AppConfig) AllowedOrigins() []string {
	out := []string{}
	for _, part := range strings.Split(a.CORSOrigins, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

type DBConfig struct {
	DSN    string `envconfig:"BACKOFFICE_DB_DSN"`
	Driver string `envconfig:"BACKOFFICE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"BACKOFFICE_DB_HOST"`
	LegacyPort     int    `envconfig:"BACKOFFICE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"BACKOFFICE_DB_USER"`
	LegacyPassword string `envconfig:"BACKOFFICE_DB_PASSWORD"`
	LegacyName     string `envconfig:"BACKOFFICE_DB_NAME"`
	LegacySSLMode  string `envconfig:"BACKOFFICE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BACKOFFICE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BACKOFFICE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BACKOFFICE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BACKOFFICE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	// SlowQueryThreshold logs statements slower than this at warn. Zero disables it.
	SlowQueryThreshold time.Duration `envconfig:"BACKOFFICE_DB_SLOW_QUERY_THRESHOLD" default:"200ms"`
}

// IsSQLite reports whether the store runs on the embedded sqlite driver.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"BACKOFFICE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"BACKOFFICE_REDIS_ADDR"`
	Password     string        `envconfig:"BACKOFFICE_REDIS_PASSWORD"`
	DB           int           `envconfig:"BACKOFFICE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BACKOFFICE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BACKOFFICE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BACKOFFICE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BACKOFFICE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BACKOFFICE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// SessionConfig describes how session tokens minted by the identity provider are verified.
type SessionConfig struct {
	Secret            string `envconfig:"BACKOFFICE_SESSION_SECRET" required:"true"`
	Issuer            string `envconfig:"BACKOFFICE_SESSION_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"BACKOFFICE_SESSION_EXPIRATION_MINUTES" default:"60"`
	CookieName        string `envconfig:"BACKOFFICE_SESSION_COOKIE" default:"__session"`
}

// Lifetime returns the maximum age of a session token.
func (s SessionConfig) Lifetime() time.Duration {
	if s.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(s.ExpirationMinutes) * time.Minute
}

type IdentityConfig struct {
	BaseURL        string        `envconfig:"BACKOFFICE_IDENTITY_BASE_URL" required:"true"`
	APIKey         string        `envconfig:"BACKOFFICE_IDENTITY_API_KEY" required:"true"`
	RequestTimeout time.Duration `envconfig:"BACKOFFICE_IDENTITY_TIMEOUT" default:"5s"`
	WebhookSecret  string        `envconfig:"BACKOFFICE_IDENTITY_WEBHOOK_SECRET"`
	WebhookDedupe  time.Duration `envconfig:"BACKOFFICE_IDENTITY_WEBHOOK_DEDUPE_TTL" default:"72h"`
}

type StatusCacheConfig struct {
	TTL              time.Duration `envconfig:"BACKOFFICE_STATUS_CACHE_TTL" default:"60s"`
	Capacity         int           `envconfig:"BACKOFFICE_STATUS_CACHE_CAPACITY" default:"1000"`
	SweepProbability float64       `envconfig:"BACKOFFICE_STATUS_CACHE_SWEEP_PROBABILITY" default:"0.1"`
	// ClaimsStaleWindow bounds how long an invalidation keeps older session claims off the fast path.
	ClaimsStaleWindow time.Duration `envconfig:"BACKOFFICE_STATUS_CLAIMS_STALE_WINDOW" default:"1h"`
}

func (s StatusCacheConfig) validate() error {
	if s.TTL <= 0 {
		return fmt.Errorf("%s must be positive", EnvStatusCacheTTL)
	}
	if s.Capacity <= 0 {
		return fmt.Errorf("%s must be positive", EnvStatusCacheCapacity)
	}
	if s.SweepProbability < 0 || s.SweepProbability > 1 {
		return fmt.Errorf("%s must be within [0,1]", EnvStatusCacheSweepProbability)
	}
	return nil
}

type ModerationConfig struct {
	InitialCreditGrant int           `envconfig:"BACKOFFICE_MODERATION_INITIAL_CREDITS" default:"100"`
	StoreTimeout       time.Duration `envconfig:"BACKOFFICE_MODERATION_STORE_TIMEOUT" default:"5s"`
	PropagationTimeout time.Duration `envconfig:"BACKOFFICE_MODERATION_PROPAGATION_TIMEOUT" default:"5s"`
	AwaitPropagation   bool          `envconfig:"BACKOFFICE_MODERATION_AWAIT_PROPAGATION" default:"false"`
	RetryAttempts      int           `envconfig:"BACKOFFICE_MODERATION_RETRY_ATTEMPTS" default:"3"`
	// RateLimit caps decisions per moderator and per IP within RateLimitWindow. Zero disables it.
	RateLimit       int           `envconfig:"BACKOFFICE_MODERATION_RATE_LIMIT" default:"30"`
	RateLimitWindow time.Duration `envconfig:"BACKOFFICE_MODERATION_RATE_LIMIT_WINDOW" default:"1m"`
	IdempotencyTTL  time.Duration `envconfig:"BACKOFFICE_MODERATION_IDEMPOTENCY_TTL" default:"24h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"BACKOFFICE_GCP_PROJECT_ID"`
	// Inline service account JSON wins over the file path; both blank means ambient credentials.
	CredentialsJSON        string `envconfig:"BACKOFFICE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"BACKOFFICE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	ModerationTopic string `envconfig:"BACKOFFICE_PUBSUB_MODERATION_TOPIC"`
}

// Enabled reports whether moderation events should be published.
func (p PubSubConfig) Enabled() bool {
	return strings.TrimSpace(p.ModerationTopic) != ""
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"BACKOFFICE_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		return fmt.Errorf("%s is required for the sqlite driver", EnvDBDSN)
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
