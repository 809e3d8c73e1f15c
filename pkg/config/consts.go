package config

// EnvPrefix is passed to envconfig; individual fields carry explicit
// envconfig tags so the prefix mostly matters for error messages.
const EnvPrefix = "KAPEHAN"

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

const (
	EnvAppEnv = "KAPEHAN_APP_ENV"
	EnvDBDSN  = "KAPEHAN_DB_DSN"
	EnvDBHost = "KAPEHAN_DB_HOST"
	EnvDBUser = "KAPEHAN_DB_USER"
	EnvDBName = "KAPEHAN_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
