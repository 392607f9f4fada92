package config

const (
	EnvPrefix = "MEDIGO"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "MEDIGO_DB_DSN"
	EnvDBHost = "MEDIGO_DB_HOST"
	EnvDBUser = "MEDIGO_DB_USER"
	EnvDBName = "MEDIGO_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
