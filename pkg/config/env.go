package config

// EnvPrefix is passed to envconfig; every field carries its full variable name.
const EnvPrefix = "BACKOFFICE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv = "BACKOFFICE_APP_ENV"
	EnvPort   = "BACKOFFICE_APP_PORT"

	EnvDBDSN  = "BACKOFFICE_DB_DSN"
	EnvDBHost = "BACKOFFICE_DB_HOST"
	EnvDBUser = "BACKOFFICE_DB_USER"
	EnvDBName = "BACKOFFICE_DB_NAME"

	EnvRedisURL = "BACKOFFICE_REDIS_URL"

	EnvSessionSecret = "BACKOFFICE_SESSION_SECRET"
	EnvSessionIssuer = "BACKOFFICE_SESSION_ISSUER"

	EnvIdentityBaseURL = "BACKOFFICE_IDENTITY_BASE_URL"
	EnvIdentityAPIKey  = "BACKOFFICE_IDENTITY_API_KEY"

	EnvStatusCacheTTL              = "BACKOFFICE_STATUS_CACHE_TTL"
	EnvStatusCacheCapacity         = "BACKOFFICE_STATUS_CACHE_CAPACITY"
	EnvStatusCacheSweepProbability = "BACKOFFICE_STATUS_CACHE_SWEEP_PROBABILITY"

	EnvModerationAwait = "BACKOFFICE_MODERATION_AWAIT_PROPAGATION"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
