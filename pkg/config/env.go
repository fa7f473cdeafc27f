package config

const (
	EnvPrefix = "FASTREPAIR"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "FASTREPAIR_APP_ENV"
	EnvPort     = "FASTREPAIR_APP_PORT"
	EnvLogLevel = "FASTREPAIR_LOG_LEVEL"

	EnvDBDSN  = "FASTREPAIR_DB_DSN"
	EnvDBHost = "FASTREPAIR_DB_HOST"
	EnvDBUser = "FASTREPAIR_DB_USER"
	EnvDBName = "FASTREPAIR_DB_NAME"

	EnvUseSQLite  = "FASTREPAIR_USE_SQLITE"
	EnvSQLitePath = "FASTREPAIR_SQLITE_PATH"

	EnvRedisURL = "FASTREPAIR_REDIS_URL"

	EnvJWTSecret  = "FASTREPAIR_JWT_SECRET"
	EnvJWTIssuer  = "FASTREPAIR_JWT_ISSUER"
	EnvJWTExpMins = "FASTREPAIR_JWT_EXPIRATION_MINUTES"

	EnvLedgerAllowNegative = "FASTREPAIR_LEDGER_ALLOW_NEGATIVE_BALANCE"
	EnvLedgerMaxRetries    = "FASTREPAIR_LEDGER_MAX_RETRIES"
	EnvLedgerLockTimeout   = "FASTREPAIR_LEDGER_LOCK_TIMEOUT"

	EnvOutboxMaxAttempts = "FASTREPAIR_OUTBOX_MAX_ATTEMPTS"

	EnvCronRetentionDays = "FASTREPAIR_CRON_OUTBOX_RETENTION_DAYS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
