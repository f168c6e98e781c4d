package config

// EnvPrefix is applied by envconfig when resolving struct fields without an
// explicit envconfig tag.
const EnvPrefix = "ORDERCORE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "ORDERCORE_DB_DSN"
	EnvDBHost = "ORDERCORE_DB_HOST"
	EnvDBUser = "ORDERCORE_DB_USER"
	EnvDBName = "ORDERCORE_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
