package config

const (
	// EnvPrefix namespaces every environment variable the service reads.
	EnvPrefix = "PARCELHIVE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv = "PARCELHIVE_APP_ENV"
	EnvDBDSN  = "PARCELHIVE_DB_DSN"
	EnvDBHost = "PARCELHIVE_DB_HOST"
	EnvDBUser = "PARCELHIVE_DB_USER"
	EnvDBName = "PARCELHIVE_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
